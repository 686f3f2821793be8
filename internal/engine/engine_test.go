package engine

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhxgrid/text2sql/internal/answer"
	"github.com/lhxgrid/text2sql/internal/audit"
	"github.com/lhxgrid/text2sql/internal/config"
	"github.com/lhxgrid/text2sql/internal/dbexec"
	"github.com/lhxgrid/text2sql/internal/kb"
	"github.com/lhxgrid/text2sql/internal/llmclient"
	"github.com/lhxgrid/text2sql/internal/planner"
	"github.com/lhxgrid/text2sql/internal/plandsl"
)

func repoRoot(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(thisFile), "..", "..")
}

func buildTestEngine(t *testing.T) *Engine {
	t.Helper()

	schema := kb.NewSchemaKB([]kb.SchemaEntity{
		{Table: "readings", Field: "kwh", DataType: "float", Description: "energy consumed"},
		{Table: "readings", Field: "ts", DataType: "datetime", Description: "reading timestamp"},
	})
	metric := kb.NewMetricKB([]kb.MetricDef{
		{MetricID: "energy_consumption_kwh", DisplayName: "Energy Consumption", Unit: "kWh",
			RequiredFields: []string{"readings.kwh"}, Synonyms: []string{"consumption", "usage"}},
	})
	join := kb.NewJoinKB(nil)
	template := kb.NewTemplateKB([]kb.TemplateRule{
		{TemplateID: "tmpl_aggregate", Intent: "aggregate", RequiredClauses: []string{"time_range"}},
	})
	kbs := planner.KnowledgeBases{Schema: schema, Join: join, Metric: metric, Template: template}

	cfg := planner.Config{TopK: 5, FixedMetricID: "energy_consumption_kwh", UseLLM: false}
	p := planner.New(cfg, kbs, nil, nil, logrus.NewEntry(logrus.StandardLogger()))

	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := audit.New(logPath)
	require.NoError(t, err)

	return &Engine{
		Planner:  p,
		Runner:   dbexec.NewRunner(nil, true),
		Answerer: answer.New(&llmclient.MockClient{}),
		Audit:    logger,
		Log:      logrus.NewEntry(logrus.StandardLogger()),
	}
}

func TestRunQuerySucceeds(t *testing.T) {
	eng := buildTestEngine(t)
	tr := &plandsl.TimeRange{Start: "2024-01-01", End: "2024-01-31"}

	resp, err := eng.RunQuery(context.Background(), "total energy consumption", tr)
	require.NoError(t, err)
	assert.Contains(t, resp.SQL, "SUM(readings.kwh)")
	assert.NotEmpty(t, resp.Answer)
}

func TestRunQueryFailsWithoutTimeRangeInNoLLMMode(t *testing.T) {
	eng := buildTestEngine(t)

	_, err := eng.RunQuery(context.Background(), "total energy consumption", nil)
	require.Error(t, err)
}

func TestBuildWiresEngineFromSettings(t *testing.T) {
	root := repoRoot(t)
	settings := config.Settings{
		SchemaKBPath:   filepath.Join(root, "data", "schema_kb.json"),
		JoinKBPath:     filepath.Join(root, "data", "join_kb.json"),
		MetricKBPath:   filepath.Join(root, "data", "metric_kb.json"),
		TemplateKBPath: filepath.Join(root, "data", "template_kb.json"),
		AuditLogPath:   filepath.Join(t.TempDir(), "audit.jsonl"),
		LLMMode:        "no_llm",
		UseMockDB:      true,
		FixedMetricID:  "energy_consumption_kwh",
		RAGTopK:        5,
		RAGTopKSecond:  8,
	}

	eng, err := Build(settings, nil)
	require.NoError(t, err)
	require.NotNil(t, eng)

	tr := &plandsl.TimeRange{Start: "2024-01-01", End: "2024-01-31"}
	resp, err := eng.RunQuery(context.Background(), "total energy consumption", tr)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SQL)
}
