// Package plandsl defines the Plan DSL: the versioned JSON intermediate
// representation that sits between planning (LLM or deterministic) and
// SQL compilation.
package plandsl

// Dimension is one GROUP BY column.
type Dimension struct {
	Table string `json:"table"`
	Field string `json:"field"`
}

// FilterOp is the closed set of comparison operators a Filter may use.
type FilterOp string

const (
	OpEq      FilterOp = "="
	OpNeq     FilterOp = "!="
	OpGt      FilterOp = ">"
	OpGte     FilterOp = ">="
	OpLt      FilterOp = "<"
	OpLte     FilterOp = "<="
	OpLike    FilterOp = "like"
	OpIn      FilterOp = "in"
	OpBetween FilterOp = "between"
)

// Filter is one WHERE-clause predicate.
type Filter struct {
	Table string   `json:"table"`
	Field string   `json:"field"`
	Op    FilterOp `json:"op"`
	Value any      `json:"value"`
}

// SortSpec is the ORDER BY clause.
type SortSpec struct {
	By    string `json:"by"`
	Order string `json:"order"`
}

// OutputSpec describes the presentation the caller asked for.
type OutputSpec struct {
	Format       string `json:"format"`
	ChartSuggest string `json:"chart_suggest,omitempty"`
}

// PlanVersion is the only Plan DSL version this package accepts.
const PlanVersion = "1.0"

// TimeRange is an inclusive [Start, End] window, both RFC3339-ish
// strings supplied by the caller of the planner; the compiler treats them as
// opaque literals.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Plan is the frozen, validated Plan DSL document. It is only
// constructed after semantic validation succeeds; everything upstream of
// that point works with RawPlan instead, since an unvalidated LLM or
// repair response cannot be trusted to satisfy Plan's invariants.
type Plan struct {
	Version          string         `json:"version"`
	Intent           string         `json:"intent"`
	MetricID         string         `json:"metric_id"`
	MetricParams     map[string]any `json:"metric_params,omitempty"`
	Dimensions       []Dimension    `json:"dimensions,omitempty"`
	TimeRange        *TimeRange     `json:"time_range,omitempty"`
	TimeGrain        string         `json:"time_grain,omitempty"`
	Filters          []Filter       `json:"filters,omitempty"`
	JoinPathID       string         `json:"join_path_id"`
	Sort             *SortSpec      `json:"sort,omitempty"`
	Limit            int            `json:"limit,omitempty"`
	Output           OutputSpec     `json:"output"`
	Confidence       float64        `json:"confidence"`
	Clarifications   []string       `json:"clarifications,omitempty"`
	ErrorsUnresolved []string       `json:"errors_unresolved,omitempty"`
}

// RawPlan is the unvalidated wire shape of a plan as it comes back from
// an LLM call or a repair call: a free-form map, not yet known to
// satisfy the Plan DSL schema or any semantic rule. Every planning stage
// before the validator passes RawPlan around rather than Plan.
type RawPlan = map[string]any
