package kb

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/lhxgrid/text2sql/internal/vectorindex"
)

// MetricKB indexes every MetricDef for lexical retrieval.
type MetricKB struct {
	index   *vectorindex.Index
	metrics map[string]MetricDef
}

// LoadMetricKB reads a JSON array of MetricDef from path and builds the KB.
func LoadMetricKB(path string) (*MetricKB, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kb: read metric catalogue: %w", err)
	}
	var metrics []MetricDef
	if err := json.Unmarshal(raw, &metrics); err != nil {
		return nil, fmt.Errorf("kb: parse metric catalogue: %w", err)
	}
	return NewMetricKB(metrics), nil
}

// NewMetricKB builds a MetricKB from already-loaded metric definitions.
func NewMetricKB(metrics []MetricDef) *MetricKB {
	kb := &MetricKB{
		index:   vectorindex.New(),
		metrics: make(map[string]MetricDef, len(metrics)),
	}
	for _, m := range metrics {
		docID := "metric::" + m.MetricID
		kb.metrics[docID] = m
		searchable := append([]string{m.MetricID, m.DisplayName, m.Unit, m.Description, m.Definition, m.Formula}, m.Synonyms...)
		searchable = append(searchable, m.RequiredFields...)
		text := strings.Join(searchable, " ")
		kb.index.Upsert(vectorindex.Document{ID: docID, Text: text, Metadata: map[string]any{"doc_id": docID}})
	}
	return kb
}

// Query returns the topK metric candidates most similar to queryText.
func (kb *MetricKB) Query(queryText string, topK int) []MetricDef {
	hits := kb.index.Query(queryText, topK, nil)
	out := make([]MetricDef, 0, len(hits))
	for _, h := range hits {
		out = append(out, kb.metrics[h.Document.ID])
	}
	return out
}

// All returns every metric definition in catalogue order.
func (kb *MetricKB) All() []MetricDef {
	out := make([]MetricDef, 0, len(kb.metrics))
	for _, id := range kb.index.AllIDsOrdered() {
		out = append(out, kb.metrics[id])
	}
	return out
}

// Get returns the MetricDef by id, if present.
func (kb *MetricKB) Get(metricID string) (MetricDef, bool) {
	m, ok := kb.metrics["metric::"+metricID]
	return m, ok
}
