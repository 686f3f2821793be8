// Package planner orchestrates the planning stage of the pipeline: slot
// extraction, evidence retrieval, plan acquisition (LLM or deterministic
// no_llm), semantic validation, and a single bounded repair round before
// failing closed.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lhxgrid/text2sql/internal/kb"
	"github.com/lhxgrid/text2sql/internal/llmclient"
	"github.com/lhxgrid/text2sql/internal/plandsl"
	"github.com/lhxgrid/text2sql/internal/repair"
	"github.com/lhxgrid/text2sql/internal/semval"
)

// Config tunes the planning algorithm. Zero-value Config is usable but
// will retrieve with TopK=0 (nothing); callers should set at least TopK.
type Config struct {
	TopK       int  // how many candidates each KB returns per query
	TopKSecond int  // widened top_k used when augmenting evidence for a repair attempt
	TrimTopK   int  // candidates per KB kept on the trimmed timeout retry
	UseLLM     bool // false selects the deterministic no_llm path

	FixedMetricID string // preferred metric_id for the no_llm path, if set

	// ReconstructOnEmptyRetrieval controls whether the LLM path also
	// reconstructs any empty evidence list from the full KB, the way the
	// no_llm path always does. Defaults to false: an LLM call with a
	// genuinely empty candidate list is itself informative (it usually
	// means the question doesn't match anything), whereas the no_llm path
	// has no model to fall back on and must always have something to work
	// with. See DESIGN.md for the full rationale.
	ReconstructOnEmptyRetrieval bool

	RetryOnTimeout bool // retry the initial LLM call once, with trimmed evidence, on TimeoutError
}

// Planner runs the full plan-acquisition algorithm for one request.
type Planner struct {
	cfg     Config
	kbs     KnowledgeBases
	client  llmclient.Client
	repairer *repair.Driver
	log     *logrus.Entry
}

// New builds a Planner.
func New(cfg Config, kbs KnowledgeBases, client llmclient.Client, repairer *repair.Driver, log *logrus.Entry) *Planner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Planner{cfg: cfg, kbs: kbs, client: client, repairer: repairer, log: log}
}

// Result is everything downstream stages (compiler, audit) need from a
// successful planning run.
type Result struct {
	Plan             plandsl.Plan
	Evidence         kb.EvidenceBundle
	InitialRawPlan   plandsl.RawPlan
	ValidationErrors []semval.ValidationError
}

var sqlKeywordPattern = regexp.MustCompile(`(?i)\b(select|from|where|join|group by|order by|insert|update|delete)\b`)

// GeneratePlan runs slot extraction, retrieval, plan acquisition,
// validation, and (if needed) one repair round, returning a frozen Plan
// or a *PlanError describing which stage failed.
func (p *Planner) GeneratePlan(ctx context.Context, question string, timeRange *plandsl.TimeRange) (*Result, error) {
	log := p.log.WithField("request_stage", "generate_plan")

	s := parseSlots(question, p.kbs.Schema, p.kbs.Metric)
	q := buildQueries(question, s)

	log.WithField("stage", StageRetrieve).Debug("retrieving evidence")
	evidence := p.kbs.retrieve(q, p.cfg.TopK)

	var raw plandsl.RawPlan
	var err error
	if !p.cfg.UseLLM {
		if timeRange == nil {
			return nil, stageErr(StagePlan, KindNoLLMInfeasible, fmt.Errorf("no_llm mode requires an explicit time_range"))
		}
		evidence = p.kbs.ensureNonEmpty(evidence)
		raw, err = buildFixedPlan(s, evidence, p.cfg.FixedMetricID, timeRange)
		if err != nil {
			return nil, stageErr(StagePlan, KindNoLLMInfeasible, err)
		}
	} else {
		if p.cfg.ReconstructOnEmptyRetrieval {
			evidence = p.kbs.ensureNonEmpty(evidence)
		}
		raw, err = p.callLLM(ctx, question, evidence)
		if err != nil {
			return nil, err
		}
	}

	initialRaw := cloneRaw(raw)

	structErrs, err := plandsl.ValidateStructure(raw)
	if err != nil {
		return nil, stageErr(StageValidate, "schema_compile", err)
	}
	valErrs := semval.Validate(raw, structErrs, evidence)

	if hasCode(valErrs, semval.CodeMetricNotFound) {
		if fixedID, ok := autoFixMetricID(question, plandsl.GetString(raw, "metric_id"), evidence); ok {
			raw["metric_id"] = fixedID
			structErrs, err = plandsl.ValidateStructure(raw)
			if err != nil {
				return nil, stageErr(StageValidate, "schema_compile", err)
			}
			valErrs = semval.Validate(raw, structErrs, evidence)
		}
	}

	if len(valErrs) > 0 && p.repairer != nil {
		log.WithField("stage", StageRepair).WithField("errors", len(valErrs)).Debug("repairing plan")

		suggestions := collectSuggestions(valErrs, 8)
		refinedQuery := joinWithQuestion(question, suggestions)
		topK2 := p.cfg.TopKSecond
		if topK2 <= 0 {
			topK2 = p.cfg.TopK
		}
		evidence = p.kbs.retrieve(queries{metric: refinedQuery, schema: refinedQuery, join: refinedQuery, template: refinedQuery}, topK2)
		evidence = p.kbs.augmentForErrors(evidence, codesOf(valErrs))

		fixed, err := p.repairer.Repair(ctx, raw, valErrs, evidence)
		if err != nil {
			var malformed *llmclient.MalformedJSONError
			if errors.As(err, &malformed) {
				return nil, stageErr(StageRepair, KindRepairNotJSON, err)
			}
			return nil, stageErr(StageRepair, "repair_call_failed", err)
		}
		raw = fixed

		structErrs, err = plandsl.ValidateStructure(raw)
		if err != nil {
			return nil, stageErr(StageValidate, "schema_compile", err)
		}
		valErrs = semval.Validate(raw, structErrs, evidence)

		if hasCode(valErrs, semval.CodeMetricNotFound) {
			if fixedID, ok := autoFixMetricID(question, plandsl.GetString(raw, "metric_id"), evidence); ok {
				raw["metric_id"] = fixedID
				structErrs, err = plandsl.ValidateStructure(raw)
				if err != nil {
					return nil, stageErr(StageValidate, "schema_compile", err)
				}
				valErrs = semval.Validate(raw, structErrs, evidence)
			}
		}
	}

	if len(valErrs) > 0 {
		return nil, stageErr(StageValidate, KindPlanValidationFail, fmt.Errorf("%d validation errors remain: %v", len(valErrs), valErrs))
	}

	if err := scanForSQLKeywords(raw); err != nil {
		return nil, stageErr(StagePlan, KindLLMUnsafe, err)
	}

	plan, err := plandsl.ParseRaw(raw)
	if err != nil {
		return nil, stageErr(StageValidate, "schema_compile", err)
	}

	return &Result{
		Plan:             plan,
		Evidence:         evidence,
		InitialRawPlan:   initialRaw,
		ValidationErrors: valErrs,
	}, nil
}

// callLLM invokes the model once, and on a TimeoutError retries exactly
// once more with trimmed evidence. It never retries twice and never
// retries a non-timeout failure.
func (p *Planner) callLLM(ctx context.Context, question string, evidence kb.EvidenceBundle) (plandsl.RawPlan, error) {
	raw, err := p.client.GenerateJSON(ctx, buildPlanningPrompt(question, evidence, false))
	if err == nil {
		return raw, nil
	}

	var timeoutErr *llmclient.TimeoutError
	if errors.As(err, &timeoutErr) && p.cfg.RetryOnTimeout {
		p.log.WithField("stage", StagePlan).Warn("planning call timed out, retrying once with trimmed evidence")
		trimmed := trim(evidence, p.cfg.TrimTopK)
		raw, err2 := p.client.GenerateJSON(ctx, buildPlanningPrompt(question, trimmed, true))
		if err2 != nil {
			return nil, classifyLLMErr(err2)
		}
		return raw, nil
	}

	return nil, classifyLLMErr(err)
}

func classifyLLMErr(err error) error {
	var malformed *llmclient.MalformedJSONError
	if errors.As(err, &malformed) {
		return stageErr(StagePlan, KindLLMNotJSON, err)
	}
	return stageErr(StagePlan, "llm_call_failed", err)
}

func buildPlanningPrompt(question string, evidence kb.EvidenceBundle, trimmed bool) string {
	buf, _ := json.Marshal(map[string]any{
		"question": question,
		"evidence": evidence,
	})

	var b strings.Builder
	b.WriteString("Produce a single JSON object matching the Plan DSL schema, using only the tables, fields, ")
	b.WriteString("metrics, and join paths present in the evidence below. Do not invent fields.\n\n")
	if trimmed {
		b.WriteString("<INPUTS_TRIMMED>\n")
	} else {
		b.WriteString("<INPUTS>\n")
	}
	b.Write(buf)
	if trimmed {
		b.WriteString("\n</INPUTS_TRIMMED>\n")
	} else {
		b.WriteString("\n</INPUTS>\n")
	}
	return b.String()
}

func scanForSQLKeywords(raw plandsl.RawPlan) error {
	buf, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	if sqlKeywordPattern.Match(buf) {
		return fmt.Errorf("plan JSON contains raw SQL keywords")
	}
	return nil
}

// collectSuggestions flattens every error's Suggestions in order, capped
// at max total strings, for the repair round's refined retrieval query.
func collectSuggestions(errs []semval.ValidationError, max int) []string {
	var out []string
	for _, e := range errs {
		for _, s := range e.Suggestions {
			if len(out) >= max {
				return out
			}
			out = append(out, s)
		}
	}
	return out
}

func hasCode(errs []semval.ValidationError, code string) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}

func codesOf(errs []semval.ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func cloneRaw(raw plandsl.RawPlan) plandsl.RawPlan {
	buf, err := json.Marshal(raw)
	if err != nil {
		return raw
	}
	var out plandsl.RawPlan
	if err := json.Unmarshal(buf, &out); err != nil {
		return raw
	}
	return out
}
