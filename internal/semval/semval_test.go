package semval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhxgrid/text2sql/internal/kb"
	"github.com/lhxgrid/text2sql/internal/plandsl"
)

func baseEvidence() kb.EvidenceBundle {
	return kb.EvidenceBundle{
		MetricCandidates: []kb.MetricDef{
			{MetricID: "energy_consumption_kwh", RequiredFields: []string{"readings.kwh"}},
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
					{LeftTable: "readings", LeftField: "customer_id", RightTable: "customers", RightField: "customer_id"},
				},
			},
		},
	}
}

func TestValidateAcceptsWellFormedPlan(t *testing.T) {
	raw := plandsl.RawPlan{
		"version":      "1.0",
		"intent":       "aggregate",
		"metric_id":    "energy_consumption_kwh",
		"join_path_id": "NONE",
		"time_range":   map[string]any{"start": "2024-01-01", "end": "2024-01-31"},
		"output":       map[string]any{"format": "single_value"},
		"confidence":   0.9,
	}
	errs := Validate(raw, nil, baseEvidence())
	assert.Empty(t, errs)
}

func TestValidateRejectsUnknownMetric(t *testing.T) {
	raw := plandsl.RawPlan{
		"metric_id":    "not_a_real_metric",
		"join_path_id": "NONE",
		"time_range":   map[string]any{"start": "2024-01-01", "end": "2024-01-31"},
	}
	errs := Validate(raw, nil, baseEvidence())
	require.NotEmpty(t, errs)
	assert.Equal(t, CodeMetricNotFound, errs[0].Code)
}

func TestValidateRejectsMissingTimeRange(t *testing.T) {
	raw := plandsl.RawPlan{
		"metric_id":    "energy_consumption_kwh",
		"join_path_id": "NONE",
	}
	errs := Validate(raw, nil, baseEvidence())
	var codes []string
	for _, e := range errs {
		codes = append(codes, e.Code)
	}
	assert.Contains(t, codes, CodeTimeRangeMissing)
}

func TestValidateRequiresJoinWhenMultipleTables(t *testing.T) {
	raw := plandsl.RawPlan{
		"metric_id":    "energy_consumption_kwh",
		"join_path_id": "NONE",
		"time_range":   map[string]any{"start": "2024-01-01", "end": "2024-01-31"},
		"dimensions": []any{
			map[string]any{"table": "customers", "field": "region"},
		},
	}
	errs := Validate(raw, nil, baseEvidence())
	var codes []string
	for _, e := range errs {
		codes = append(codes, e.Code)
	}
	assert.Contains(t, codes, CodeJoinRequired)
}

func TestValidateJoinPathUnreachableSuggestsAlternative(t *testing.T) {
	evidence := baseEvidence()
	evidence.JoinPaths = append(evidence.JoinPaths, kb.JoinPath{
		JoinPathID: "jp_unrelated",
		Tables:     []string{"readings"},
	})
	raw := plandsl.RawPlan{
		"metric_id":    "energy_consumption_kwh",
		"join_path_id": "jp_unrelated",
		"time_range":   map[string]any{"start": "2024-01-01", "end": "2024-01-31"},
		"dimensions": []any{
			map[string]any{"table": "customers", "field": "region"},
		},
	}
	errs := Validate(raw, nil, evidence)
	require.NotEmpty(t, errs)
	found := false
	for _, e := range errs {
		if e.Code == CodeJoinPathUnreachable {
			found = true
			assert.Contains(t, e.Suggestions, "jp_readings_customers")
		}
	}
	assert.True(t, found)
}

func TestValidateRejectsMissingJoinPathID(t *testing.T) {
	evidence := kb.EvidenceBundle{
		MetricCandidates: []kb.MetricDef{
			{MetricID: "energy_consumption_kwh", RequiredFields: []string{"readings.kwh"}},
		},
		SchemaCandidates: []kb.SchemaEntity{
			{Table: "feeder", Field: "feeder_id", DataType: "string"},
		},
		JoinPaths: []kb.JoinPath{
			{JoinPathID: "valid_path", Tables: []string{"feeder"}},
		},
	}
	raw := plandsl.RawPlan{
		"metric_id":    "energy_consumption_kwh",
		"join_path_id": "missing_path",
		"time_range":   map[string]any{"start": "2024-01-01", "end": "2024-01-31"},
	}
	errs := Validate(raw, nil, evidence)
	require.NotEmpty(t, errs)
	var codes []string
	for _, e := range errs {
		codes = append(codes, e.Code)
	}
	assert.Contains(t, codes, CodeJoinPathNotFound)
}

func TestValidateCatchesJoinPathUnreachableToTimeTable(t *testing.T) {
	evidence := kb.EvidenceBundle{
		MetricCandidates: []kb.MetricDef{
			{MetricID: "energy_consumption_kwh", RequiredFields: []string{"readings.kwh"}},
		},
		SchemaCandidates: []kb.SchemaEntity{
			{Table: "readings", Field: "kwh", DataType: "float"},
			{Table: "meter_events", Field: "ts", DataType: "datetime"},
		},
		JoinPaths: []kb.JoinPath{
			{JoinPathID: "jp_readings_only", Tables: []string{"readings"}},
		},
	}
	raw := plandsl.RawPlan{
		"metric_id":    "energy_consumption_kwh",
		"join_path_id": "jp_readings_only",
		"time_range":   map[string]any{"start": "2024-01-01", "end": "2024-01-31"},
	}
	errs := Validate(raw, nil, evidence)
	require.NotEmpty(t, errs)
	var codes []string
	for _, e := range errs {
		codes = append(codes, e.Code)
	}
	assert.Contains(t, codes, CodeJoinPathUnreachable)
}

func TestValidateIsIdempotent(t *testing.T) {
	raw := plandsl.RawPlan{
		"metric_id":    "energy_consumption_kwh",
		"join_path_id": "jp_unrelated",
		"time_range":   map[string]any{"start": "2024-01-01", "end": "2024-01-31"},
		"dimensions": []any{
			map[string]any{"table": "customers", "field": "region"},
		},
	}
	evidence := baseEvidence()
	evidence.JoinPaths = append(evidence.JoinPaths, kb.JoinPath{
		JoinPathID: "jp_unrelated",
		Tables:     []string{"readings"},
	})

	first := Validate(raw, nil, evidence)
	second := Validate(raw, nil, evidence)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Code, second[i].Code)
		assert.Equal(t, first[i].FieldPath, second[i].FieldPath)
		assert.Equal(t, first[i].Message, second[i].Message)
		assert.Equal(t, first[i].Suggestions, second[i].Suggestions)
	}
}

func TestValidateFoldsStructuralErrors(t *testing.T) {
	raw := plandsl.RawPlan{
		"metric_id":    "energy_consumption_kwh",
		"join_path_id": "NONE",
		"time_range":   map[string]any{"start": "2024-01-01", "end": "2024-01-31"},
	}
	structural := []plandsl.StructuralError{{Message: "missing required field 'version'", FieldPath: "$"}}
	errs := Validate(raw, structural, baseEvidence())
	assert.Equal(t, CodeSchema, errs[0].Code)
}
