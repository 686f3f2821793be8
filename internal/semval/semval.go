// Package semval implements the Semantic Validator: a pure function from
// (plan, evidence) to a list of validation errors. It never mutates its
// inputs and never talks to an LLM; its output is acted on by the
// planner (metric auto-fix, evidence augmentation) and the Repair Driver.
package semval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lhxgrid/text2sql/internal/kb"
	"github.com/lhxgrid/text2sql/internal/plandsl"
)

// Closed set of validation error codes. Every error this package emits
// uses one of these.
const (
	CodeNotJSON                = "not_json"
	CodeSchema                 = "schema"
	CodeMetricNotFound         = "metric_not_found"
	CodeDimensionFieldInvalid  = "dimension_field_invalid"
	CodeFilterFieldInvalid     = "filter_field_invalid"
	CodeJoinPathNotFound       = "join_path_not_found"
	CodeJoinRequired           = "join_required"
	CodeJoinPathUnreachable    = "join_path_unreachable"
	CodeTimeRangeMissing       = "time_range_missing"
	CodeTimeRangeInvalid       = "time_range_invalid"
	CodeTimeGrainRequired      = "time_grain_required"
	CodeTimeFieldMissing       = "time_field_missing"
	CodeFunctionNotAllowed     = "function_not_allowed"
	CodeAggNotAllowed          = "agg_not_allowed"
	CodeRequiredClauseMissing  = "required_clause_missing"
)

// ValidationError is one finding against a plan.
type ValidationError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	FieldPath   string   `json:"field_path"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func errAt(code, fieldPath, format string, args ...any) ValidationError {
	return ValidationError{Code: code, Message: fmt.Sprintf(format, args...), FieldPath: fieldPath}
}

// Validate runs every semantic rule against raw using only what's
// present in evidence as the allow-list, and returns every violation
// found (nil if raw is fully valid). structuralErrors are Draft-7 schema
// violations already collected by plandsl.ValidateStructure; Validate
// folds them in as CodeSchema errors and still runs the remaining rules
// so a caller gets a complete picture in one pass.
func Validate(raw plandsl.RawPlan, structuralErrors []plandsl.StructuralError, evidence kb.EvidenceBundle) []ValidationError {
	var errs []ValidationError
	for _, se := range structuralErrors {
		errs = append(errs, errAt(CodeSchema, se.FieldPath, "%s", se.Message))
	}

	metricID := plandsl.GetString(raw, "metric_id")
	metricDef, metricOK := findMetric(evidence, metricID)
	if metricID == "" || !metricOK {
		errs = append(errs, errAt(CodeMetricNotFound, "metric_id", "metric_id %q not found in evidence", metricID))
	}

	allowed := allowedFields(evidence, metricDef, plandsl.GetString(raw, "join_path_id"))

	for i, d := range plandsl.GetMapSlice(raw, "dimensions") {
		table, _ := d["table"].(string)
		field, _ := d["field"].(string)
		key := table + "." + field
		if _, ok := allowed[key]; !ok {
			errs = append(errs, errAt(CodeDimensionFieldInvalid, fmt.Sprintf("dimensions[%d]", i), "dimension field %q not in evidence", key))
		}
	}

	for i, f := range plandsl.GetMapSlice(raw, "filters") {
		table, _ := f["table"].(string)
		field, _ := f["field"].(string)
		key := table + "." + field
		if _, ok := allowed[key]; !ok {
			errs = append(errs, errAt(CodeFilterFieldInvalid, fmt.Sprintf("filters[%d]", i), "filter field %q not in evidence", key))
		}
	}

	joinPathID := plandsl.GetString(raw, "join_path_id")
	tables := collectTables(raw, evidence, metricDef)
	errs = append(errs, checkJoinReachability(joinPathID, tables, evidence)...)

	intent := plandsl.GetString(raw, "intent")
	timeGrain := plandsl.GetString(raw, "time_grain")
	timeRange, hasTimeRange := raw["time_range"].(map[string]any)

	if !hasTimeRange {
		errs = append(errs, errAt(CodeTimeRangeMissing, "time_range", "time_range is required"))
	} else {
		start, _ := timeRange["start"].(string)
		end, _ := timeRange["end"].(string)
		if start == "" || end == "" || start > end {
			errs = append(errs, errAt(CodeTimeRangeInvalid, "time_range", "time_range start/end invalid"))
		}
	}

	if intent == "trend" && timeGrain == "" {
		errs = append(errs, errAt(CodeTimeGrainRequired, "time_grain", "time_grain is required for trend intent"))
	}

	if hasTimeRange && !hasTimeField(evidence, metricDef) {
		errs = append(errs, errAt(CodeTimeFieldMissing, "time_range", "no time-typed field available in evidence"))
	}

	errs = append(errs, checkTemplateRules(intent, timeGrain, metricID, raw, evidence)...)

	return errs
}

func findMetric(evidence kb.EvidenceBundle, metricID string) (kb.MetricDef, bool) {
	for _, m := range evidence.MetricCandidates {
		if m.MetricID == metricID {
			return m, true
		}
	}
	return kb.MetricDef{}, false
}

func allowedFields(evidence kb.EvidenceBundle, metricDef kb.MetricDef, joinPathID string) map[string]struct{} {
	allowed := make(map[string]struct{})
	for _, s := range evidence.SchemaCandidates {
		allowed[s.Table+"."+s.Field] = struct{}{}
	}
	for _, f := range metricDef.RequiredFields {
		if strings.Contains(f, ".") {
			allowed[f] = struct{}{}
		}
	}
	for _, jp := range evidence.JoinPaths {
		if jp.JoinPathID != joinPathID {
			continue
		}
		for _, e := range jp.Edges {
			allowed[e.LeftTable+"."+e.LeftField] = struct{}{}
			allowed[e.RightTable+"."+e.RightField] = struct{}{}
		}
	}
	return allowed
}

// collectTables computes the referenced-tables set spec §4.4 defines for
// join-reachability checking: dimension tables ∪ filter tables ∪
// metric-required-field tables ∪ the chosen time table. The time table
// must be included here, not just left to the compiler, because
// retrieval can legitimately surface time-typed columns on tables the
// plan never otherwise mentions (internal/planner/retrieve.go's
// ensureTimeTypedSchema) and the compiler will pick one of them whether
// or not a join path can actually reach it.
func collectTables(raw plandsl.RawPlan, evidence kb.EvidenceBundle, metricDef kb.MetricDef) []string {
	set := map[string]struct{}{}
	add := func(t string) {
		if t != "" {
			set[t] = struct{}{}
		}
	}
	for _, d := range plandsl.GetMapSlice(raw, "dimensions") {
		if t, ok := d["table"].(string); ok {
			add(t)
		}
	}
	for _, f := range plandsl.GetMapSlice(raw, "filters") {
		if t, ok := f["table"].(string); ok {
			add(t)
		}
	}
	metricTables := map[string]struct{}{}
	for _, f := range metricDef.RequiredFields {
		if i := strings.Index(f, "."); i >= 0 {
			table := f[:i]
			add(table)
			metricTables[table] = struct{}{}
		}
	}

	if timeTable := pickTimeTable(evidence, metricTables); timeTable != "" {
		add(timeTable)
	}

	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// pickTimeTable picks the table whose time column the join path must
// reach: first a time-typed column on one of preferredTables (the
// metric's own required-field tables), falling back to any time-typed
// column in evidence at all. The compiler's pickTimeField does not prefer
// the metric's tables; it takes the first time-typed schema candidate, so
// the two can name different tables when several tables carry time columns.
func pickTimeTable(evidence kb.EvidenceBundle, preferredTables map[string]struct{}) string {
	timeNames := map[string]struct{}{"ts": {}, "timestamp": {}, "event_time": {}, "date": {}, "dt": {}}
	timeTypes := map[string]struct{}{"datetime": {}, "timestamp": {}, "date": {}}

	if len(preferredTables) > 0 {
		for _, s := range evidence.SchemaCandidates {
			if _, ok := preferredTables[s.Table]; !ok {
				continue
			}
			if _, ok := timeNames[strings.ToLower(s.Field)]; ok {
				return s.Table
			}
			if _, ok := timeTypes[strings.ToLower(s.DataType)]; ok {
				return s.Table
			}
		}
	}
	for _, s := range evidence.SchemaCandidates {
		if _, ok := timeNames[strings.ToLower(s.Field)]; ok {
			return s.Table
		}
		if _, ok := timeTypes[strings.ToLower(s.DataType)]; ok {
			return s.Table
		}
	}
	return ""
}

func checkJoinReachability(joinPathID string, tables []string, evidence kb.EvidenceBundle) []ValidationError {
	if joinPathID == "" || joinPathID == "NONE" {
		if len(tables) > 1 {
			return []ValidationError{errAt(CodeJoinRequired, "join_path_id", "query touches %d tables but no join_path_id given", len(tables))}
		}
		return nil
	}
	path, ok := findJoinPath(evidence, joinPathID)
	if !ok {
		return []ValidationError{errAt(CodeJoinPathNotFound, "join_path_id", "join_path_id %q not found in evidence", joinPathID)}
	}
	if !isSubset(tables, path.Tables) {
		suggestions := suggestJoinPaths(tables, evidence)
		e := errAt(CodeJoinPathUnreachable, "join_path_id", "join_path_id %q does not cover tables %v", joinPathID, tables)
		e.Suggestions = suggestions
		return []ValidationError{e}
	}
	return nil
}

func findJoinPath(evidence kb.EvidenceBundle, id string) (kb.JoinPath, bool) {
	for _, jp := range evidence.JoinPaths {
		if jp.JoinPathID == id {
			return jp, true
		}
	}
	return kb.JoinPath{}, false
}

func isSubset(a, b []string) bool {
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

func suggestJoinPaths(tables []string, evidence kb.EvidenceBundle) []string {
	var out []string
	for _, jp := range evidence.JoinPaths {
		if isSubset(tables, jp.Tables) {
			out = append(out, jp.JoinPathID)
		}
	}
	return out
}

func hasTimeField(evidence kb.EvidenceBundle, metricDef kb.MetricDef) bool {
	timeTypes := map[string]struct{}{"datetime": {}, "timestamp": {}, "date": {}}
	timeNames := map[string]struct{}{"ts": {}, "timestamp": {}, "event_time": {}, "date": {}, "dt": {}}
	for _, s := range evidence.SchemaCandidates {
		if _, ok := timeNames[strings.ToLower(s.Field)]; ok {
			return true
		}
		if _, ok := timeTypes[strings.ToLower(s.DataType)]; ok {
			return true
		}
	}
	for _, f := range metricDef.RequiredFields {
		if strings.HasSuffix(f, ".ts") || strings.HasSuffix(f, ".date") {
			return true
		}
	}
	return false
}

// requiredFuncs maps a time_grain to the SQL functions a trend query at
// that grain needs; each must appear in the template's allowed_funcs.
func requiredFuncs(grain string) map[string]struct{} {
	switch grain {
	case "15m":
		return set("from_unixtime", "unix_timestamp", "floor")
	case "hour", "day":
		return set("date_format")
	case "week":
		return set("yearweek")
	case "month":
		return set("date_format")
	default:
		return nil
	}
}

func set(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, i := range items {
		m[i] = struct{}{}
	}
	return m
}

func checkTemplateRules(intent, timeGrain, metricID string, raw plandsl.RawPlan, evidence kb.EvidenceBundle) []ValidationError {
	var errs []ValidationError
	for _, rule := range evidence.TemplateRules {
		if rule.Intent != intent {
			continue
		}
		if intent == "trend" && timeGrain != "" && len(rule.AllowedFuncs) > 0 {
			needed := requiredFuncs(timeGrain)
			allowed := set(rule.AllowedFuncs...)
			for fn := range needed {
				if _, ok := allowed[fn]; !ok {
					errs = append(errs, errAt(CodeFunctionNotAllowed, "time_grain", "function %q not allowed by template %s", fn, rule.TemplateID))
				}
			}
		}
		if len(rule.AllowedAggs) > 0 && isKnownSummableMetric(metricID) {
			allowed := set(rule.AllowedAggs...)
			if _, ok := allowed["sum"]; !ok {
				errs = append(errs, errAt(CodeAggNotAllowed, "metric_id", "aggregate sum not allowed by template %s", rule.TemplateID))
			}
		}
		for _, clause := range rule.RequiredClauses {
			if !hasClause(raw, clause) {
				errs = append(errs, errAt(CodeRequiredClauseMissing, "$", "template %s requires clause %q", rule.TemplateID, clause))
			}
		}
	}
	return errs
}

func isKnownSummableMetric(metricID string) bool {
	return metricID != ""
}

func hasClause(raw plandsl.RawPlan, clause string) bool {
	switch clause {
	case "time_range":
		_, ok := raw["time_range"]
		return ok
	case "time_grain":
		return plandsl.GetString(raw, "time_grain") != ""
	case "group_by_time":
		return len(plandsl.GetMapSlice(raw, "dimensions")) > 0 || plandsl.GetString(raw, "time_grain") != ""
	case "order_by":
		_, ok := raw["sort"]
		return ok
	case "limit":
		_, ok := raw["limit"]
		return ok
	default:
		return true
	}
}
