package dbexec

import (
	"fmt"

	"github.com/lhxgrid/text2sql/internal/kb"
)

// RunQualityChecks inspects a DataPreview against the metric it's
// supposed to represent and returns human-readable warnings: an empty
// result set, a ratio/percent metric outside a plausible [0, 1.5] band,
// a negative value for a count/min-unit metric, or inconsistent unit
// values across rows.
func RunQualityChecks(preview DataPreview, metricDef kb.MetricDef) []string {
	var warnings []string

	if len(preview.Rows) == 0 {
		warnings = append(warnings, "query returned no rows")
		return warnings
	}

	metricColIdx := -1
	unitColIdx := -1
	for i, c := range preview.Columns {
		if c == metricDef.MetricID || c == "metric" {
			metricColIdx = i
		}
		if c == "unit" {
			unitColIdx = i
		}
	}

	unit := metricDef.Unit
	if metricColIdx >= 0 && (unit == "%" || unit == "ratio") {
		min, max := minMax(preview.Rows, metricColIdx)
		if min < 0 || max > 1.5 {
			warnings = append(warnings, fmt.Sprintf("%s values (%.3f..%.3f) look out of range for a %s metric", metricDef.MetricID, min, max, unit))
		}
	}

	if metricColIdx >= 0 && (unit == "count" || unit == "min") {
		min, _ := minMax(preview.Rows, metricColIdx)
		if min < 0 {
			warnings = append(warnings, fmt.Sprintf("%s has negative values for a %s metric", metricDef.MetricID, unit))
		}
	}

	if unitColIdx >= 0 {
		seen := map[string]struct{}{}
		for _, row := range preview.Rows {
			if u, ok := row[unitColIdx].(string); ok {
				seen[u] = struct{}{}
			}
		}
		if len(seen) > 1 {
			warnings = append(warnings, "result mixes more than one unit value")
		}
	}

	return warnings
}

func minMax(rows [][]any, col int) (float64, float64) {
	min, max := 0.0, 0.0
	first := true
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		v, ok := toFloat(row[col])
		if !ok {
			continue
		}
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
