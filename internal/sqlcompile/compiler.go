// Package sqlcompile deterministically compiles a validated Plan DSL
// document into MySQL-dialect SQL text. It re-checks the allow-list
// itself as defense in depth: the validator should have already rejected
// anything out of bounds, but the compiler never trusts that and refuses
// to emit SQL referencing a field, table, or join edge outside the
// evidence bundle.
//
// There is no general SQL AST library in this codebase's dependency
// closure, so the compiler builds SQL text directly with strings.Builder
// rather than through a query-builder package.
package sqlcompile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lhxgrid/text2sql/internal/kb"
	"github.com/lhxgrid/text2sql/internal/plandsl"
)

// GuardError is raised when the compiler's own allow-list check catches
// something the validator should already have rejected.
type GuardError struct {
	Kind    string
	Message string
}

func (e *GuardError) Error() string { return fmt.Sprintf("sqlcompile: %s: %s", e.Kind, e.Message) }

func guard(kind, format string, args ...any) error {
	return &GuardError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

var joinTypeSQL = map[string]string{
	"inner": "INNER JOIN",
	"left":  "LEFT JOIN",
	"right": "RIGHT JOIN",
}

// Compile builds the SQL text for plan against evidence.
func Compile(plan plandsl.Plan, evidence kb.EvidenceBundle) (string, error) {
	metricDef, ok := findMetric(evidence, plan.MetricID)
	if !ok {
		return "", guard("compile_missing_metric", "metric_id %q not in evidence", plan.MetricID)
	}

	allowed := buildAllowedFields(plan, evidence, metricDef)

	timeTable, timeField, err := pickTimeField(evidence, metricDef)
	if err != nil {
		return "", err
	}

	joinPath, _ := findJoinPath(evidence, plan.JoinPathID)
	baseTable := pickBaseTable(plan, joinPath, metricDef, timeTable)

	var selectExprs []string
	var groupExprs []string

	if plan.Intent == "trend" {
		bucketExpr, err := timeBucketExpr(timeTable, timeField, plan.TimeGrain)
		if err != nil {
			return "", err
		}
		selectExprs = append(selectExprs, bucketExpr+" AS time_bucket")
		groupExprs = append(groupExprs, "time_bucket")
	}

	for _, dim := range plan.Dimensions {
		key := dim.Table + "." + dim.Field
		if _, ok := allowed[key]; !ok {
			return "", guard("compile_unauthorized_field", "dimension field %q not allowed", key)
		}
		col := qualify(dim.Table, dim.Field)
		selectExprs = append(selectExprs, col)
		groupExprs = append(groupExprs, col)
	}

	metricExpr, err := metricExpression(metricDef)
	if err != nil {
		return "", err
	}
	selectExprs = append(selectExprs, fmt.Sprintf("%s AS %s", metricExpr, plan.MetricID))

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s\nFROM %s", strings.Join(selectExprs, ", "), baseTable)

	if joinPath.JoinPathID != "" {
		for _, e := range joinPath.Edges {
			jt := joinTypeSQL[strings.ToLower(e.JoinType)]
			if jt == "" {
				jt = "INNER JOIN"
			}
			fmt.Fprintf(&b, "\n%s %s ON %s = %s", jt, e.RightTable,
				qualify(e.LeftTable, e.LeftField), qualify(e.RightTable, e.RightField))
		}
	}

	var whereParts []string
	if plan.TimeRange != nil {
		whereParts = append(whereParts, fmt.Sprintf("%s BETWEEN %s AND %s",
			qualify(timeTable, timeField), quoteString(plan.TimeRange.Start), quoteString(plan.TimeRange.End)))
	}
	for _, f := range plan.Filters {
		key := f.Table + "." + f.Field
		if _, ok := allowed[key]; !ok {
			return "", guard("compile_unauthorized_field", "filter field %q not allowed", key)
		}
		expr, err := filterExpr(f)
		if err != nil {
			return "", err
		}
		whereParts = append(whereParts, expr)
	}
	if len(whereParts) > 0 {
		fmt.Fprintf(&b, "\nWHERE %s", strings.Join(whereParts, " AND "))
	}

	if len(groupExprs) > 0 {
		fmt.Fprintf(&b, "\nGROUP BY %s", strings.Join(groupExprs, ", "))
	}

	orderExpr, err := orderExpr(plan, allowed)
	if err != nil {
		return "", err
	}
	if orderExpr != "" {
		fmt.Fprintf(&b, "\nORDER BY %s", orderExpr)
	} else if plan.Intent == "trend" {
		fmt.Fprintf(&b, "\nORDER BY time_bucket ASC")
	}

	limit := plan.Limit
	if limit <= 0 {
		limit = 200
	}
	fmt.Fprintf(&b, "\nLIMIT %d", limit)

	return b.String(), nil
}

func qualify(table, field string) string { return table + "." + field }

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func findMetric(evidence kb.EvidenceBundle, metricID string) (kb.MetricDef, bool) {
	for _, m := range evidence.MetricCandidates {
		if m.MetricID == metricID {
			return m, true
		}
	}
	return kb.MetricDef{}, false
}

func findJoinPath(evidence kb.EvidenceBundle, id string) (kb.JoinPath, bool) {
	if id == "" || id == "NONE" {
		return kb.JoinPath{}, false
	}
	for _, jp := range evidence.JoinPaths {
		if jp.JoinPathID == id {
			return jp, true
		}
	}
	return kb.JoinPath{}, false
}

func buildAllowedFields(plan plandsl.Plan, evidence kb.EvidenceBundle, metricDef kb.MetricDef) map[string]struct{} {
	allowed := map[string]struct{}{}
	for _, s := range evidence.SchemaCandidates {
		allowed[s.Table+"."+s.Field] = struct{}{}
	}
	for _, f := range metricDef.RequiredFields {
		if strings.Contains(f, ".") {
			allowed[f] = struct{}{}
		}
	}
	if jp, ok := findJoinPath(evidence, plan.JoinPathID); ok {
		for _, e := range jp.Edges {
			allowed[e.LeftTable+"."+e.LeftField] = struct{}{}
			allowed[e.RightTable+"."+e.RightField] = struct{}{}
		}
	}
	return allowed
}

func pickTimeField(evidence kb.EvidenceBundle, metricDef kb.MetricDef) (string, string, error) {
	timeNames := map[string]struct{}{"ts": {}, "timestamp": {}, "event_time": {}, "date": {}, "dt": {}}
	timeTypes := map[string]struct{}{"datetime": {}, "timestamp": {}, "date": {}}
	for _, s := range evidence.SchemaCandidates {
		if _, ok := timeNames[strings.ToLower(s.Field)]; ok {
			return s.Table, s.Field, nil
		}
		if _, ok := timeTypes[strings.ToLower(s.DataType)]; ok {
			return s.Table, s.Field, nil
		}
	}
	for _, f := range metricDef.RequiredFields {
		if strings.HasSuffix(f, ".ts") || strings.HasSuffix(f, ".date") {
			parts := strings.SplitN(f, ".", 2)
			return parts[0], parts[1], nil
		}
	}
	return "", "", guard("compile_missing_time_field", "no time field available for plan")
}

func pickBaseTable(plan plandsl.Plan, joinPath kb.JoinPath, metricDef kb.MetricDef, timeTable string) string {
	if len(joinPath.Edges) > 0 {
		return joinPath.Edges[0].LeftTable
	}
	if len(plan.Dimensions) > 0 {
		return plan.Dimensions[0].Table
	}
	if len(metricDef.RequiredFields) > 0 && strings.Contains(metricDef.RequiredFields[0], ".") {
		return strings.SplitN(metricDef.RequiredFields[0], ".", 2)[0]
	}
	return timeTable
}

func timeBucketExpr(table, field, grain string) (string, error) {
	col := qualify(table, field)
	switch grain {
	case "15m":
		return fmt.Sprintf("FROM_UNIXTIME(FLOOR(UNIX_TIMESTAMP(%s)/900)*900)", col), nil
	case "hour":
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d %%H:00:00')", col), nil
	case "day":
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d')", col), nil
	case "week":
		return fmt.Sprintf("YEARWEEK(%s, 1)", col), nil
	case "month":
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m')", col), nil
	default:
		return "", guard("compile_unsupported_grain", "unsupported time_grain %q", grain)
	}
}

func metricExpression(metricDef kb.MetricDef) (string, error) {
	fields := metricDef.RequiredFields
	if len(fields) == 0 {
		return "", guard("compile_missing_metric", "metric %q has no required fields", metricDef.MetricID)
	}
	if len(fields) == 1 {
		parts := strings.SplitN(fields[0], ".", 2)
		return fmt.Sprintf("SUM(%s)", qualify(parts[0], parts[1])), nil
	}
	a := strings.SplitN(fields[0], ".", 2)
	b := strings.SplitN(fields[1], ".", 2)
	return fmt.Sprintf("SUM(%s) / NULLIF(SUM(%s), 0)", qualify(a[0], a[1]), qualify(b[0], b[1])), nil
}

func filterExpr(f plandsl.Filter) (string, error) {
	col := qualify(f.Table, f.Field)
	switch f.Op {
	case plandsl.OpEq:
		return fmt.Sprintf("%s = %s", col, literal(f.Value)), nil
	case plandsl.OpNeq:
		return fmt.Sprintf("%s != %s", col, literal(f.Value)), nil
	case plandsl.OpGt:
		return fmt.Sprintf("%s > %s", col, literal(f.Value)), nil
	case plandsl.OpGte:
		return fmt.Sprintf("%s >= %s", col, literal(f.Value)), nil
	case plandsl.OpLt:
		return fmt.Sprintf("%s < %s", col, literal(f.Value)), nil
	case plandsl.OpLte:
		return fmt.Sprintf("%s <= %s", col, literal(f.Value)), nil
	case plandsl.OpLike:
		return fmt.Sprintf("%s LIKE %s", col, literal(f.Value)), nil
	case plandsl.OpIn:
		values, ok := f.Value.([]any)
		if !ok || len(values) == 0 {
			return "", guard("compile_unsupported_op", "in operator requires a non-empty list value")
		}
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = literal(v)
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(parts, ", ")), nil
	case plandsl.OpBetween:
		values, ok := f.Value.([]any)
		if !ok || len(values) != 2 {
			return "", guard("compile_unsupported_op", "between operator requires exactly two values")
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, literal(values[0]), literal(values[1])), nil
	default:
		return "", guard("compile_unsupported_op", "unsupported filter op %q", f.Op)
	}
}

func literal(v any) string {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	case string:
		return quoteString(val)
	default:
		return quoteString(fmt.Sprintf("%v", val))
	}
}

func orderExpr(plan plandsl.Plan, allowed map[string]struct{}) (string, error) {
	if plan.Sort == nil {
		return "", nil
	}
	by := plan.Sort.By
	desc := plan.Sort.Order == "desc"
	dir := "ASC"
	if desc {
		dir = "DESC"
	}

	if by == "metric" || by == plan.MetricID {
		return fmt.Sprintf("%s %s", plan.MetricID, dir), nil
	}
	if by == "time" || by == "time_bucket" {
		if plan.Intent != "trend" {
			return "", nil
		}
		return fmt.Sprintf("time_bucket %s", dir), nil
	}
	if strings.Contains(by, ".") {
		if _, ok := allowed[by]; !ok {
			return "", guard("compile_unauthorized_field", "sort field %q not allowed", by)
		}
		return fmt.Sprintf("%s %s", by, dir), nil
	}
	for key := range allowed {
		if strings.HasSuffix(key, "."+by) {
			return fmt.Sprintf("%s %s", by, dir), nil
		}
	}
	return "", guard("compile_unauthorized_field", "sort field %q not allowed", by)
}
