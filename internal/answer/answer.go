// Package answer turns a compiled plan's execution result into a short
// natural-language summary: an LLM-backed narrative when a real model is
// configured, a rule-based template otherwise.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/lhxgrid/text2sql/internal/dbexec"
	"github.com/lhxgrid/text2sql/internal/kb"
	"github.com/lhxgrid/text2sql/internal/llmclient"
	"github.com/lhxgrid/text2sql/internal/plandsl"
)

// Generator produces a one-paragraph answer for a completed query.
type Generator struct {
	Client llmclient.Client
}

// New returns a Generator backed by client. Pass a *llmclient.MockClient
// (or nil) to always use the rule-based path.
func New(client llmclient.Client) *Generator {
	return &Generator{Client: client}
}

func (g *Generator) canUseLLM() bool {
	return g.Client != nil && g.Client.Name() != "mock"
}

// Generate builds the answer text for plan/result, using the LLM when
// available and falling back to the rule-based template otherwise (and
// whenever the LLM call itself fails).
func (g *Generator) Generate(ctx context.Context, question string, plan plandsl.Plan, metricDef kb.MetricDef, result *dbexec.ExecutionResult) string {
	if g.canUseLLM() {
		prompt := buildNarrativePrompt(question, plan, metricDef, result)
		if text, err := g.Client.GenerateText(ctx, prompt); err == nil {
			return text
		}
	}
	return ruleBased(plan, metricDef, result)
}

func buildNarrativePrompt(question string, plan plandsl.Plan, metricDef kb.MetricDef, result *dbexec.ExecutionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", question)
	fmt.Fprintf(&b, "Metric: %s (%s)\n", metricDef.DisplayName, metricDef.Unit)
	fmt.Fprintf(&b, "Rows returned: %d\n", len(result.DataPreview.Rows))
	b.WriteString("Write one short paragraph summarizing the result for a business reader.")
	return b.String()
}

func ruleBased(plan plandsl.Plan, metricDef kb.MetricDef, result *dbexec.ExecutionResult) string {
	if len(result.DataPreview.Rows) == 0 {
		return fmt.Sprintf("No data was found for %s in the requested time range. Check whether the filters or time window are too narrow.", metricDef.DisplayName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s", metricDef.DisplayName)
	if metricDef.Unit != "" {
		fmt.Fprintf(&b, " (%s)", metricDef.Unit)
	}
	if plan.TimeRange != nil {
		fmt.Fprintf(&b, " for %s to %s", plan.TimeRange.Start, plan.TimeRange.End)
	}

	if avg, ok := extractMetricAverage(result.DataPreview); ok {
		fmt.Fprintf(&b, ": average value %.3f across %d rows.", avg, len(result.DataPreview.Rows))
	} else {
		fmt.Fprintf(&b, ": %d rows returned.", len(result.DataPreview.Rows))
	}

	if plan.Output.ChartSuggest != "" {
		fmt.Fprintf(&b, " Suggested chart: %s.", plan.Output.ChartSuggest)
	}

	for _, w := range result.QualityWarnings {
		fmt.Fprintf(&b, " Note: %s.", w)
	}

	return b.String()
}

func extractMetricAverage(preview dbexec.DataPreview) (float64, bool) {
	metricCol := -1
	for i, c := range preview.Columns {
		if c != "time_bucket" && c != "name" {
			metricCol = i
		}
	}
	if metricCol < 0 {
		return 0, false
	}
	var sum float64
	var count int
	for _, row := range preview.Rows {
		if metricCol >= len(row) {
			continue
		}
		switch v := row[metricCol].(type) {
		case float64:
			sum += v
			count++
		case int:
			sum += float64(v)
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}
