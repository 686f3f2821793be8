package sqlcompile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhxgrid/text2sql/internal/kb"
	"github.com/lhxgrid/text2sql/internal/plandsl"
)

func evidenceForCompile() kb.EvidenceBundle {
	return kb.EvidenceBundle{
		MetricCandidates: []kb.MetricDef{
			{MetricID: "energy_consumption_kwh", RequiredFields: []string{"readings.kwh"}},
			{MetricID: "average_rate_per_kwh", RequiredFields: []string{"bills.amount", "bills.kwh_billed"}},
		},
		SchemaCandidates: []kb.SchemaEntity{
			{Table: "readings", Field: "kwh", DataType: "float"},
			{Table: "readings", Field: "ts", DataType: "datetime"},
			{Table: "customers", Field: "region", DataType: "string"},
		},
		JoinPaths: []kb.JoinPath{
			{
				JoinPathID: "jp_readings_customers",
				Tables:     []string{"readings", "customers"},
				Edges: []kb.JoinEdge{
					{LeftTable: "readings", LeftField: "customer_id", RightTable: "customers", RightField: "customer_id", JoinType: "inner"},
				},
			},
		},
	}
}

func TestCompileSimpleAggregate(t *testing.T) {
	plan := plandsl.Plan{
		Intent:     "aggregate",
		MetricID:   "energy_consumption_kwh",
		JoinPathID: "NONE",
		TimeRange:  &plandsl.TimeRange{Start: "2024-01-01", End: "2024-01-31"},
		Limit:      50,
	}
	sql, err := Compile(plan, evidenceForCompile())
	require.NoError(t, err)
	assert.Contains(t, sql, "SUM(readings.kwh) AS energy_consumption_kwh")
	assert.Contains(t, sql, "FROM readings")
	assert.Contains(t, sql, "WHERE readings.ts BETWEEN '2024-01-01' AND '2024-01-31'")
	assert.Contains(t, sql, "LIMIT 50")
}

func TestCompileTrendEmitsTimeBucket(t *testing.T) {
	plan := plandsl.Plan{
		Intent:     "trend",
		MetricID:   "energy_consumption_kwh",
		JoinPathID: "NONE",
		TimeRange:  &plandsl.TimeRange{Start: "2024-01-01", End: "2024-01-31"},
		TimeGrain:  "day",
	}
	sql, err := Compile(plan, evidenceForCompile())
	require.NoError(t, err)
	assert.Contains(t, sql, "DATE_FORMAT(readings.ts, '%Y-%m-%d') AS time_bucket")
	assert.Contains(t, sql, "GROUP BY time_bucket")
	assert.Contains(t, sql, "ORDER BY time_bucket ASC")
}

func TestCompileRatioMetricUsesNullif(t *testing.T) {
	plan := plandsl.Plan{
		Intent:     "aggregate",
		MetricID:   "average_rate_per_kwh",
		JoinPathID: "NONE",
		TimeRange:  &plandsl.TimeRange{Start: "2024-01-01", End: "2024-01-31"},
	}
	evidence := evidenceForCompile()
	evidence.SchemaCandidates = append(evidence.SchemaCandidates, kb.SchemaEntity{Table: "bills", Field: "ts", DataType: "datetime"})
	sql, err := Compile(plan, evidence)
	require.NoError(t, err)
	assert.Contains(t, sql, "SUM(bills.amount) / NULLIF(SUM(bills.kwh_billed), 0) AS average_rate_per_kwh")
}

func TestCompileEmitsJoin(t *testing.T) {
	plan := plandsl.Plan{
		Intent:     "aggregate",
		MetricID:   "energy_consumption_kwh",
		JoinPathID: "jp_readings_customers",
		TimeRange:  &plandsl.TimeRange{Start: "2024-01-01", End: "2024-01-31"},
		Dimensions: []plandsl.Dimension{{Table: "customers", Field: "region"}},
	}
	sql, err := Compile(plan, evidenceForCompile())
	require.NoError(t, err)
	assert.Contains(t, sql, "INNER JOIN customers ON readings.customer_id = customers.customer_id")
	assert.Contains(t, sql, "customers.region")
	assert.Contains(t, sql, "GROUP BY customers.region")
}

func TestCompileRejectsUnauthorizedDimension(t *testing.T) {
	plan := plandsl.Plan{
		Intent:     "aggregate",
		MetricID:   "energy_consumption_kwh",
		JoinPathID: "NONE",
		TimeRange:  &plandsl.TimeRange{Start: "2024-01-01", End: "2024-01-31"},
		Dimensions: []plandsl.Dimension{{Table: "secret", Field: "field"}},
	}
	_, err := Compile(plan, evidenceForCompile())
	require.Error(t, err)
	var guardErr *GuardError
	require.ErrorAs(t, err, &guardErr)
	assert.Equal(t, "compile_unauthorized_field", guardErr.Kind)
}

func TestCompileRejectsMetricWithNoRequiredFields(t *testing.T) {
	evidence := evidenceForCompile()
	evidence.MetricCandidates = append(evidence.MetricCandidates, kb.MetricDef{MetricID: "empty_metric"})
	plan := plandsl.Plan{
		Intent:     "aggregate",
		MetricID:   "empty_metric",
		JoinPathID: "NONE",
		TimeRange:  &plandsl.TimeRange{Start: "2024-01-01", End: "2024-01-31"},
	}
	_, err := Compile(plan, evidence)
	require.Error(t, err)
	var guardErr *GuardError
	require.ErrorAs(t, err, &guardErr)
	assert.Equal(t, "compile_missing_metric", guardErr.Kind)
}

func TestCompileRejectsUnknownMetric(t *testing.T) {
	plan := plandsl.Plan{
		Intent:     "aggregate",
		MetricID:   "not_a_metric",
		JoinPathID: "NONE",
	}
	_, err := Compile(plan, evidenceForCompile())
	require.Error(t, err)
	var guardErr *GuardError
	require.ErrorAs(t, err, &guardErr)
	assert.Equal(t, "compile_missing_metric", guardErr.Kind)
}

func TestCompileRejectsUnsupportedGrain(t *testing.T) {
	plan := plandsl.Plan{
		Intent:     "trend",
		MetricID:   "energy_consumption_kwh",
		JoinPathID: "NONE",
		TimeRange:  &plandsl.TimeRange{Start: "2024-01-01", End: "2024-01-31"},
		TimeGrain:  "fortnight",
	}
	_, err := Compile(plan, evidenceForCompile())
	require.Error(t, err)
	var guardErr *GuardError
	require.ErrorAs(t, err, &guardErr)
	assert.Equal(t, "compile_unsupported_grain", guardErr.Kind)
}

func TestTimeBucketExprMatchesGrainTable(t *testing.T) {
	cases := []struct {
		grain string
		want  string
	}{
		{"15m", "FROM_UNIXTIME(FLOOR(UNIX_TIMESTAMP(readings.ts)/900)*900)"},
		{"hour", "DATE_FORMAT(readings.ts, '%Y-%m-%d %H:00:00')"},
		{"day", "DATE_FORMAT(readings.ts, '%Y-%m-%d')"},
		{"week", "YEARWEEK(readings.ts, 1)"},
		{"month", "DATE_FORMAT(readings.ts, '%Y-%m')"},
	}
	for _, c := range cases {
		t.Run(c.grain, func(t *testing.T) {
			got, err := timeBucketExpr("readings", "ts", c.grain)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestCompileFilterOperators(t *testing.T) {
	plan := plandsl.Plan{
		Intent:     "aggregate",
		MetricID:   "energy_consumption_kwh",
		JoinPathID: "NONE",
		TimeRange:  &plandsl.TimeRange{Start: "2024-01-01", End: "2024-01-31"},
		Filters: []plandsl.Filter{
			{Table: "readings", Field: "kwh", Op: plandsl.OpGt, Value: float64(10)},
		},
	}
	sql, err := Compile(plan, evidenceForCompile())
	require.NoError(t, err)
	assert.Contains(t, sql, "readings.kwh > 10")
}

func TestCompileRejectsUnauthorizedFilterField(t *testing.T) {
	plan := plandsl.Plan{
		Intent:     "aggregate",
		MetricID:   "energy_consumption_kwh",
		JoinPathID: "NONE",
		TimeRange:  &plandsl.TimeRange{Start: "2024-01-01", End: "2024-01-31"},
		Filters: []plandsl.Filter{
			{Table: "secret", Field: "field", Op: plandsl.OpGt, Value: float64(1)},
		},
	}
	_, err := Compile(plan, evidenceForCompile())
	require.Error(t, err)
	var guardErr *GuardError
	require.ErrorAs(t, err, &guardErr)
	assert.Equal(t, "compile_unauthorized_field", guardErr.Kind)
}

func TestCompileSortByMetricDescending(t *testing.T) {
	plan := plandsl.Plan{
		Intent:     "rank",
		MetricID:   "energy_consumption_kwh",
		JoinPathID: "NONE",
		TimeRange:  &plandsl.TimeRange{Start: "2024-01-01", End: "2024-01-31"},
		Sort:       &plandsl.SortSpec{By: "metric", Order: "desc"},
		Limit:      10,
	}
	sql, err := Compile(plan, evidenceForCompile())
	require.NoError(t, err)
	assert.Contains(t, sql, "ORDER BY energy_consumption_kwh DESC")
	assert.Contains(t, sql, "LIMIT 10")
}
