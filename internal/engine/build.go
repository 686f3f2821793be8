package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lhxgrid/text2sql/internal/answer"
	"github.com/lhxgrid/text2sql/internal/audit"
	"github.com/lhxgrid/text2sql/internal/config"
	"github.com/lhxgrid/text2sql/internal/dbexec"
	"github.com/lhxgrid/text2sql/internal/kb"
	"github.com/lhxgrid/text2sql/internal/llmclient"
	"github.com/lhxgrid/text2sql/internal/planner"
	"github.com/lhxgrid/text2sql/internal/repair"
)

// Build wires every collaborator from settings, the same way the
// original engine's constructor assembled its four knowledge bases, LLM
// client, validator/repairer/planner/compiler/executor, and answer
// generator from a single settings object.
func Build(settings config.Settings, log *logrus.Logger) (*Engine, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	entry := log.WithField("component", "engine")

	schemaKB, err := kb.LoadSchemaKB(settings.SchemaKBPath)
	if err != nil {
		return nil, fmt.Errorf("engine: load schema kb: %w", err)
	}
	joinKB, err := kb.LoadJoinKB(settings.JoinKBPath)
	if err != nil {
		return nil, fmt.Errorf("engine: load join kb: %w", err)
	}
	metricKB, err := kb.LoadMetricKB(settings.MetricKBPath)
	if err != nil {
		return nil, fmt.Errorf("engine: load metric kb: %w", err)
	}
	templateKB, err := kb.LoadTemplateKB(settings.TemplateKBPath)
	if err != nil {
		return nil, fmt.Errorf("engine: load template kb: %w", err)
	}

	client, err := buildLLMClient(settings)
	if err != nil {
		return nil, fmt.Errorf("engine: build llm client: %w", err)
	}

	var repairer *repair.Driver
	if settings.LLMMode != "no_llm" {
		repairer = repair.New(client)
	}

	plannerCfg := planner.Config{
		TopK:                        settings.RAGTopK,
		TopKSecond:                  settings.RAGTopKSecond,
		TrimTopK:                    settings.LLMPlanTrimTopK,
		UseLLM:                      settings.LLMMode != "no_llm",
		FixedMetricID:               settings.FixedMetricID,
		ReconstructOnEmptyRetrieval: settings.ReconstructOnEmptyRetrieval,
		RetryOnTimeout:              settings.LLMRetryOnTimeout,
	}
	kbs := planner.KnowledgeBases{Schema: schemaKB, Join: joinKB, Metric: metricKB, Template: templateKB}
	p := planner.New(plannerCfg, kbs, client, repairer, entry.WithField("stage", "planner"))

	var live dbexec.Executor
	if !settings.UseMockDB {
		live, err = dbexec.NewExecutor(&dbexec.DBConfig{
			Type:           "mysql",
			Host:           settings.MySQLHost,
			Port:           settings.MySQLPort,
			Database:       settings.MySQLDatabase,
			User:           settings.MySQLUser,
			Password:       settings.MySQLPassword,
			MaxOpenConns:   settings.MySQLMaxOpenConns,
			MaxIdleConns:   settings.MySQLMaxIdleConns,
			ConnectTimeout: settings.MySQLConnectTimeout,
			ReadTimeout:    settings.MySQLReadTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("engine: build live executor: %w", err)
		}
		if err := live.Connect(context.Background()); err != nil {
			return nil, fmt.Errorf("engine: connect live executor: %w", err)
		}
	}
	runner := dbexec.NewRunner(live, settings.UseMockDB)

	answerer := answer.New(client)

	auditLogger, err := audit.New(settings.AuditLogPath)
	if err != nil {
		return nil, fmt.Errorf("engine: open audit log: %w", err)
	}

	return &Engine{
		Planner:  p,
		Runner:   runner,
		Answerer: answerer,
		Audit:    auditLogger,
		Log:      entry,
	}, nil
}

func buildLLMClient(settings config.Settings) (llmclient.Client, error) {
	switch settings.LLMMode {
	case "mock", "no_llm":
		return &llmclient.MockClient{}, nil
	case "real":
		client, err := llmclient.NewOpenAIClient(llmclient.OpenAIConfig{
			Model:     settings.LLMModel,
			BaseURL:   settings.LLMBaseURL,
			APIToken:  settings.LLMAPIKey,
			Timeout:   settings.LLMTimeout,
			ForceJSON: settings.LLMForceJSON,
		})
		if err != nil {
			// Fall back to mock rather than fail startup, mirroring the
			// original engine's real-client-falls-back-to-mock behavior.
			return &llmclient.MockClient{}, nil
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown llm_mode %q", settings.LLMMode)
	}
}
