// Package engine wires every pipeline stage together behind a single
// entry point, RunQuery, mirroring the original engine's orchestration:
// plan, compile, execute, answer — with an audit record written for
// both success and failure.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lhxgrid/text2sql/internal/answer"
	"github.com/lhxgrid/text2sql/internal/audit"
	"github.com/lhxgrid/text2sql/internal/dbexec"
	"github.com/lhxgrid/text2sql/internal/kb"
	"github.com/lhxgrid/text2sql/internal/planner"
	"github.com/lhxgrid/text2sql/internal/plandsl"
	"github.com/lhxgrid/text2sql/internal/sqlcompile"
)

// Engine is the top-level orchestrator a CLI or server handler calls
// into for every incoming question.
type Engine struct {
	Planner  *planner.Planner
	Runner   *dbexec.Runner
	Answerer *answer.Generator
	Audit    *audit.Logger
	Log      *logrus.Entry
}

// Response is what callers of RunQuery receive on success.
type Response struct {
	SQL              string
	Plan             plandsl.Plan
	DataPreview      dbexec.DataPreview
	QualityWarnings  []string
	Answer           string
}

// RunQuery executes the full pipeline for one natural-language question,
// writing an audit record regardless of outcome.
func (e *Engine) RunQuery(ctx context.Context, question string, timeRange *plandsl.TimeRange) (*Response, error) {
	start := time.Now()
	auditID := audit.NewID()
	log := e.Log.WithField("audit_log_id", auditID)

	rec := audit.Record{AuditLogID: auditID, Question: question}

	resp, err := e.runStages(ctx, question, timeRange, &rec)
	rec.ElapsedMs = time.Since(start).Milliseconds()
	if err != nil {
		rec.Error = err.Error()
		log.WithError(err).Warn("query failed")
	}

	if e.Audit != nil {
		if writeErr := e.Audit.Write(rec, time.Now()); writeErr != nil {
			log.WithError(writeErr).Error("failed to write audit record")
		}
	}

	return resp, err
}

func (e *Engine) runStages(ctx context.Context, question string, timeRange *plandsl.TimeRange, rec *audit.Record) (*Response, error) {
	result, err := e.Planner.GeneratePlan(ctx, question, timeRange)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	rec.PlanInitial = result.InitialRawPlan
	rec.ValidationErrors = result.ValidationErrors
	finalRaw, _ := plandsl.ToRaw(result.Plan)
	rec.PlanFinal = finalRaw
	rec.EvidenceSummary = summarizeEvidence(result.Evidence)

	sql, err := sqlcompile.Compile(result.Plan, result.Evidence)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	rec.SQL = sql

	execResult, err := e.Runner.Execute(ctx, sql, result.Plan, result.Evidence)
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}

	metricDef, _ := findMetric(result.Evidence, result.Plan.MetricID)
	answerText := e.Answerer.Generate(ctx, question, result.Plan, metricDef, execResult)

	return &Response{
		SQL:             sql,
		Plan:            result.Plan,
		DataPreview:     execResult.DataPreview,
		QualityWarnings: execResult.QualityWarnings,
		Answer:          answerText,
	}, nil
}

func findMetric(evidence kb.EvidenceBundle, metricID string) (kb.MetricDef, bool) {
	for _, m := range evidence.MetricCandidates {
		if m.MetricID == metricID {
			return m, true
		}
	}
	return kb.MetricDef{}, false
}

func summarizeEvidence(evidence kb.EvidenceBundle) string {
	return fmt.Sprintf("[metrics=%d schema=%d joins=%d templates=%d]",
		len(evidence.MetricCandidates), len(evidence.SchemaCandidates), len(evidence.JoinPaths), len(evidence.TemplateRules))
}
