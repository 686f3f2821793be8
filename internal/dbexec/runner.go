package dbexec

import (
	"context"
	"fmt"

	"github.com/lhxgrid/text2sql/internal/kb"
	"github.com/lhxgrid/text2sql/internal/plandsl"
)

// ExecutionResult is the full outcome of running a compiled plan:
// whichever backend ran it, the bounded preview it produced, and any
// quality warnings raised against that preview.
type ExecutionResult struct {
	SQL             string
	Backend         string
	DataPreview     DataPreview
	QualityWarnings []string
}

// Runner estimates cost, then executes a compiled plan against either a
// live Executor or the deterministic mock backend.
type Runner struct {
	Live    Executor // nil when running in mock-only mode
	UseMock bool
}

// NewRunner builds a Runner. If live is nil, UseMock is forced true
// regardless of its argument, since there is nothing else to execute
// against.
func NewRunner(live Executor, useMock bool) *Runner {
	if live == nil {
		useMock = true
	}
	return &Runner{Live: live, UseMock: useMock}
}

// Execute rejects over-budget plans outright, then runs sql through the
// configured backend and attaches quality warnings to the result.
func (r *Runner) Execute(ctx context.Context, sql string, plan plandsl.Plan, evidence kb.EvidenceBundle) (*ExecutionResult, error) {
	cost := EstimateCost(plan)
	if cost.Rejected {
		return nil, fmt.Errorf("dbexec: plan rejected: %s", cost.Reason)
	}

	metricDef, _ := findMetric(evidence, plan.MetricID)

	if r.UseMock || r.Live == nil {
		preview := Preview(plan, metricDef)
		return &ExecutionResult{
			SQL:             sql,
			Backend:         "mock",
			DataPreview:     preview,
			QualityWarnings: RunQualityChecks(preview, metricDef),
		}, nil
	}

	qr, err := r.Live.ExecuteQuery(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("dbexec: execute query: %w", err)
	}
	preview := fromQueryResult(qr)
	return &ExecutionResult{
		SQL:             sql,
		Backend:         "live",
		DataPreview:     preview,
		QualityWarnings: RunQualityChecks(preview, metricDef),
	}, nil
}

func fromQueryResult(qr *QueryResult) DataPreview {
	rows := make([][]any, 0, len(qr.Rows))
	for _, row := range qr.Rows {
		r := make([]any, len(qr.Columns))
		for i, col := range qr.Columns {
			r[i] = row[col]
		}
		rows = append(rows, r)
	}
	return DataPreview{Columns: qr.Columns, Rows: rows}
}

func findMetric(evidence kb.EvidenceBundle, metricID string) (kb.MetricDef, bool) {
	for _, m := range evidence.MetricCandidates {
		if m.MetricID == metricID {
			return m, true
		}
	}
	return kb.MetricDef{}, false
}
