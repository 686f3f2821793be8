package planner

import (
	"fmt"
	"strings"

	"github.com/lhxgrid/text2sql/internal/kb"
	"github.com/lhxgrid/text2sql/internal/plandsl"
)

// buildFixedPlan constructs a deterministic plan without calling any
// model, used when the pipeline is running in no_llm mode. It requires a
// non-nil timeRange from the caller (no_llm mode cannot infer one);
// everything else is derived from the evidence bundle.
func buildFixedPlan(s slots, evidence kb.EvidenceBundle, fixedMetricID string, timeRange *plandsl.TimeRange) (plandsl.RawPlan, error) {
	if timeRange == nil {
		return nil, fmt.Errorf("no_llm mode requires an explicit time_range")
	}

	metricID, err := pickFixedMetric(evidence, fixedMetricID)
	if err != nil {
		return nil, err
	}
	metricDef, _ := findMetricInEvidence(evidence, metricID)

	tables := baseTablesFromRequiredFields(metricDef.RequiredFields)
	timeTable := pickTimeTable(evidence, metricDef)
	if timeTable != "" {
		tables = appendUnique(tables, timeTable)
	}

	joinPathID := "NONE"
	if len(tables) > 1 {
		path, ok := findCoveringJoinPath(evidence, tables)
		if !ok {
			return nil, fmt.Errorf("no covering join path for tables %v", tables)
		}
		joinPathID = path.JoinPathID
	}

	plan := plandsl.RawPlan{
		"version":      "1.0",
		"intent":       "aggregate",
		"metric_id":    metricID,
		"dimensions":   []any{},
		"time_range":   map[string]any{"start": timeRange.Start, "end": timeRange.End},
		"join_path_id": joinPathID,
		"confidence":   0.1,
		"limit":        200,
		"output":       map[string]any{"format": "single_value", "chart_suggest": "none"},
	}
	return plan, nil
}

func pickFixedMetric(evidence kb.EvidenceBundle, fixedMetricID string) (string, error) {
	if fixedMetricID != "" {
		if _, ok := findMetricInEvidence(evidence, fixedMetricID); ok {
			return fixedMetricID, nil
		}
	}
	if len(evidence.MetricCandidates) > 0 {
		return evidence.MetricCandidates[0].MetricID, nil
	}
	return "", fmt.Errorf("no metric candidates available for no_llm plan")
}

func findMetricInEvidence(evidence kb.EvidenceBundle, metricID string) (kb.MetricDef, bool) {
	for _, m := range evidence.MetricCandidates {
		if m.MetricID == metricID {
			return m, true
		}
	}
	return kb.MetricDef{}, false
}

func baseTablesFromRequiredFields(fields []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, f := range fields {
		if i := strings.Index(f, "."); i >= 0 {
			t := f[:i]
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				out = append(out, t)
			}
		}
	}
	return out
}

func pickTimeTable(evidence kb.EvidenceBundle, metricDef kb.MetricDef) string {
	for _, f := range metricDef.RequiredFields {
		if strings.HasSuffix(f, ".ts") || strings.HasSuffix(f, ".date") {
			return strings.SplitN(f, ".", 2)[0]
		}
	}
	for _, s := range evidence.SchemaCandidates {
		lower := strings.ToLower(s.Field)
		if lower == "ts" || lower == "timestamp" || lower == "event_time" || lower == "date" || lower == "dt" {
			return s.Table
		}
	}
	return ""
}

func appendUnique(xs []string, x string) []string {
	for _, v := range xs {
		if v == x {
			return xs
		}
	}
	return append(xs, x)
}

func findCoveringJoinPath(evidence kb.EvidenceBundle, tables []string) (kb.JoinPath, bool) {
	for _, jp := range evidence.JoinPaths {
		if isSubsetSlice(tables, jp.Tables) {
			return jp, true
		}
	}
	return kb.JoinPath{}, false
}

func isSubsetSlice(a, b []string) bool {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	for _, v := range a {
		if _, ok := set[v]; !ok {
			return false
		}
	}
	return true
}
