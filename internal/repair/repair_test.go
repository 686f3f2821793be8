package repair

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhxgrid/text2sql/internal/kb"
	"github.com/lhxgrid/text2sql/internal/llmclient"
	"github.com/lhxgrid/text2sql/internal/plandsl"
	"github.com/lhxgrid/text2sql/internal/semval"
)

func TestRepairCallsClientWithInputsPayload(t *testing.T) {
	mock := &llmclient.MockClient{}
	driver := New(mock)

	original := plandsl.RawPlan{"metric_id": "not_a_real_metric", "intent": "aggregate"}
	errs := []semval.ValidationError{{Code: semval.CodeMetricNotFound, Message: "metric_id not found"}}
	evidence := kb.EvidenceBundle{
		MetricCandidates: []kb.MetricDef{{MetricID: "energy_consumption_kwh"}},
	}

	fixed, err := driver.Repair(context.Background(), original, errs, evidence)
	require.NoError(t, err)
	assert.Equal(t, "aggregate", fixed["intent"])
}

func TestRepairPropagatesClientError(t *testing.T) {
	mock := &llmclient.MockClient{ForceInvalid: true}
	driver := New(mock)

	_, err := driver.Repair(context.Background(), plandsl.RawPlan{}, nil, kb.EvidenceBundle{})
	require.Error(t, err)
}
