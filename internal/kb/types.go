// Package kb holds the four knowledge bases (schema, join, metric,
// template) that back evidence retrieval, plus the shared entity types
// every stage of the pipeline passes around.
package kb

// SchemaEntity describes one queryable field of one table, keyed
// uniquely by Table+"."+Field.
type SchemaEntity struct {
	Table        string   `json:"table"`
	Field        string   `json:"field"`
	DataType     string   `json:"data_type"`
	Description  string   `json:"description"`
	Synonyms     []string `json:"synonyms,omitempty"`
	Unit         string   `json:"unit,omitempty"`
	QualityTags  []string `json:"quality_tags,omitempty"`
}

// JoinEdge is one directed hop of a JoinPath.
type JoinEdge struct {
	LeftTable  string `json:"left_table"`
	LeftField  string `json:"left_field"`
	RightTable string `json:"right_table"`
	RightField string `json:"right_field"`
	JoinType   string `json:"join_type"`
}

// JoinPath is a named, pre-enumerated sequence of edges connecting a set
// of tables. Only paths present in a JoinKB may ever be emitted by the
// compiler; joins are never derived ad hoc.
type JoinPath struct {
	JoinPathID  string     `json:"join_path_id"`
	Tables      []string   `json:"tables"`
	Edges       []JoinEdge `json:"edges"`
	Description string     `json:"description"`
}

// MetricDef is a named, pre-defined aggregate expression. A metric with
// exactly one RequiredFields entry compiles to SUM(field); two compile to
// SUM(a)/NULLIF(SUM(b),0); zero is invalid.
type MetricDef struct {
	MetricID         string   `json:"metric_id"`
	DisplayName      string   `json:"display_name"`
	Definition       string   `json:"definition,omitempty"`
	Formula          string   `json:"formula,omitempty"`
	Unit             string   `json:"unit"`
	RequiredFields   []string `json:"required_fields"`
	DefaultTimeGrain string   `json:"default_time_grain,omitempty"`
	Description      string   `json:"description"`
	Synonyms         []string `json:"synonyms,omitempty"`
}

// TemplateRule constrains which SQL functions/aggregates/clauses an
// intent+grain combination may use.
type TemplateRule struct {
	TemplateID      string   `json:"template_id"`
	Intent          string   `json:"intent"`
	AllowedFuncs    []string `json:"allowed_funcs,omitempty"`
	AllowedAggs     []string `json:"allowed_aggs,omitempty"`
	RequiredClauses []string `json:"required_clauses,omitempty"`
	Description     string   `json:"description"`
}

// EvidenceBundle is the sole allow-list for a single planning request:
// everything the validator and compiler are permitted to reference comes
// from one of these four slices.
type EvidenceBundle struct {
	MetricCandidates  []MetricDef    `json:"metric_candidates"`
	SchemaCandidates  []SchemaEntity `json:"schema_candidates"`
	JoinPaths         []JoinPath     `json:"join_paths"`
	TemplateRules     []TemplateRule `json:"template_rules"`
}
