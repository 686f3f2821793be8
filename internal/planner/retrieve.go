package planner

import (
	"strings"

	"github.com/lhxgrid/text2sql/internal/kb"
)

// KnowledgeBases groups the four read-only catalogues a Planner queries.
// They are built once at startup and shared across every request.
type KnowledgeBases struct {
	Schema   *kb.SchemaKB
	Join     *kb.JoinKB
	Metric   *kb.MetricKB
	Template *kb.TemplateKB
}

func (kbs KnowledgeBases) retrieve(q queries, topK int) kb.EvidenceBundle {
	evidence := kb.EvidenceBundle{
		MetricCandidates: kbs.Metric.Query(q.metric, topK),
		SchemaCandidates: kbs.Schema.Query(q.schema, topK),
		JoinPaths:        kbs.Join.Query(q.join, topK),
		TemplateRules:    kbs.Template.Query(q.template, topK),
	}
	evidence.SchemaCandidates = kbs.ensureTimeTypedSchema(evidence.SchemaCandidates)
	return evidence
}

// ensureTimeTypedSchema guarantees the retrieved schema candidates
// include at least one time-typed field (by name or data_type); if the
// first-pass retrieval missed every time column, every time-typed row
// from the full schema catalogue is merged in, preserving order.
func (kbs KnowledgeBases) ensureTimeTypedSchema(candidates []kb.SchemaEntity) []kb.SchemaEntity {
	if len(timeFields(candidates)) > 0 {
		return candidates
	}
	return mergePreserveOrder(candidates, timeFields(kbs.Schema.All()))
}

// ensureNonEmpty reconstructs any empty candidate list from the full
// catalogue. The no_llm path always does this (a deterministic fixed
// plan can't work from a partial bundle); the LLM path only does it when
// Config.ReconstructOnEmptyRetrieval is set.
func (kbs KnowledgeBases) ensureNonEmpty(evidence kb.EvidenceBundle) kb.EvidenceBundle {
	if len(evidence.MetricCandidates) == 0 {
		evidence.MetricCandidates = kbs.Metric.All()
	}
	if len(evidence.SchemaCandidates) == 0 {
		evidence.SchemaCandidates = kbs.Schema.All()
	}
	if len(evidence.JoinPaths) == 0 {
		evidence.JoinPaths = kbs.Join.All()
	}
	if len(evidence.TemplateRules) == 0 {
		evidence.TemplateRules = kbs.Template.All()
	}
	return evidence
}

// trim cuts evidence down for the trimmed-retry-on-timeout path: each
// candidate list is truncated to topK items; the items keep all fields.
func trim(evidence kb.EvidenceBundle, topK int) kb.EvidenceBundle {
	out := evidence
	if len(out.MetricCandidates) > topK {
		out.MetricCandidates = out.MetricCandidates[:topK]
	}
	if len(out.SchemaCandidates) > topK {
		out.SchemaCandidates = out.SchemaCandidates[:topK]
	}
	if len(out.JoinPaths) > topK {
		out.JoinPaths = out.JoinPaths[:topK]
	}
	if len(out.TemplateRules) > topK {
		out.TemplateRules = out.TemplateRules[:topK]
	}
	return out
}

// augmentForErrors widens evidence in response to specific validation
// error codes before a repair attempt: a metric_not_found swaps in the
// full metric catalogue so the repair model has every candidate to
// choose from, and a time_field_missing forces every time-typed schema
// field into the bundle.
func (kbs KnowledgeBases) augmentForErrors(evidence kb.EvidenceBundle, errs []validationCode) kb.EvidenceBundle {
	for _, code := range errs {
		switch code {
		case "metric_not_found":
			evidence.MetricCandidates = kbs.Metric.All()
		case "time_field_missing":
			evidence.SchemaCandidates = mergePreserveOrder(evidence.SchemaCandidates, timeFields(kbs.Schema.All()))
		}
	}
	return evidence
}

type validationCode = string

func timeFields(all []kb.SchemaEntity) []kb.SchemaEntity {
	timeNames := map[string]struct{}{"ts": {}, "timestamp": {}, "event_time": {}, "date": {}, "dt": {}}
	timeTypes := map[string]struct{}{"datetime": {}, "timestamp": {}, "date": {}}
	var out []kb.SchemaEntity
	for _, e := range all {
		if _, ok := timeNames[strings.ToLower(e.Field)]; ok {
			out = append(out, e)
			continue
		}
		if _, ok := timeTypes[strings.ToLower(e.DataType)]; ok {
			out = append(out, e)
		}
	}
	return out
}

func mergePreserveOrder(base []kb.SchemaEntity, extra []kb.SchemaEntity) []kb.SchemaEntity {
	seen := make(map[string]struct{}, len(base))
	for _, e := range base {
		seen[e.Table+"."+e.Field] = struct{}{}
	}
	out := append([]kb.SchemaEntity{}, base...)
	for _, e := range extra {
		key := e.Table + "." + e.Field
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}
