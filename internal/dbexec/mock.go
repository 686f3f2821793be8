package dbexec

import (
	"context"
	"fmt"

	"github.com/lhxgrid/text2sql/internal/kb"
	"github.com/lhxgrid/text2sql/internal/plandsl"
)

// MockExecutor synthesizes a plausible-looking result set instead of
// running SQL against a real database. It implements Executor so the
// rest of the pipeline can treat mock and live execution identically;
// Preview is what actually shapes the synthetic rows, keyed off the
// plan's intent the way the original mock preview logic did.
type MockExecutor struct{}

func (m *MockExecutor) Connect(ctx context.Context) error { return nil }
func (m *MockExecutor) Close() error                       { return nil }

func (m *MockExecutor) GetDatabaseType() string { return "mock" }

func (m *MockExecutor) GetDatabaseVersion(ctx context.Context) (string, error) {
	return "mock-1.0", nil
}

func (m *MockExecutor) DryRunSQL(ctx context.Context, query string) error { return nil }

// ExecuteQuery ignores query's text entirely; callers that need
// intent-shaped synthetic data should call Preview directly via Runner.
func (m *MockExecutor) ExecuteQuery(ctx context.Context, query string) (*QueryResult, error) {
	return &QueryResult{Columns: []string{"value"}, Rows: []map[string]interface{}{{"value": 0.08}}, RowCount: 1}, nil
}

// Preview synthesizes a DataPreview shaped by the plan's intent and
// metric, mirroring the original mock execution backend: trend queries
// get two time-bucketed rows, rank queries get two ranked rows, everything
// else gets a single scalar-ish row.
func Preview(plan plandsl.Plan, metricDef kb.MetricDef) DataPreview {
	metricCol := plan.MetricID
	if metricCol == "" {
		metricCol = "metric"
	}

	switch plan.Intent {
	case "trend":
		start, end := "start", "end"
		if plan.TimeRange != nil {
			start, end = plan.TimeRange.Start, plan.TimeRange.End
		}
		return DataPreview{
			Columns: []string{"time_bucket", metricCol},
			Rows: [][]any{
				{start, 0.05},
				{end, 0.06},
			},
		}
	case "rank":
		return DataPreview{
			Columns: []string{"name", metricCol},
			Rows: [][]any{
				{"sample_a", 0.12},
				{"sample_b", 0.11},
			},
		}
	default:
		return DataPreview{
			Columns: []string{metricCol},
			Rows:    [][]any{{0.08}},
		}
	}
}

// DataPreview is the result set handed to answer generation and returned
// to the caller, bounded by MaxRows: a live query's preview holds every
// row the executor returned.
type DataPreview struct {
	Columns []string
	Rows    [][]any
}

// CostEstimate is computed before any SQL runs. A plan missing a
// time_range, or asking for more than MaxRows, is rejected outright
// rather than executed.
type CostEstimate struct {
	Rejected bool
	Reason   string
}

const MaxRows = 10000

// EstimateCost rejects plans that would be unreasonably expensive or
// unbounded to run: every query must carry a time_range, and a limit
// above MaxRows is refused rather than silently capped.
func EstimateCost(plan plandsl.Plan) CostEstimate {
	if plan.TimeRange == nil {
		return CostEstimate{Rejected: true, Reason: "plan has no time_range"}
	}
	if plan.Limit > MaxRows {
		return CostEstimate{Rejected: true, Reason: fmt.Sprintf("limit %d exceeds max %d", plan.Limit, MaxRows)}
	}
	return CostEstimate{}
}
