package kb

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/lhxgrid/text2sql/internal/vectorindex"
)

// TemplateKB indexes every TemplateRule for lexical retrieval.
type TemplateKB struct {
	index     *vectorindex.Index
	templates map[string]TemplateRule
}

// LoadTemplateKB reads a JSON array of TemplateRule from path and builds
// the KB.
func LoadTemplateKB(path string) (*TemplateKB, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kb: read template catalogue: %w", err)
	}
	var rules []TemplateRule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("kb: parse template catalogue: %w", err)
	}
	return NewTemplateKB(rules), nil
}

// NewTemplateKB builds a TemplateKB from already-loaded rules.
func NewTemplateKB(rules []TemplateRule) *TemplateKB {
	kb := &TemplateKB{
		index:     vectorindex.New(),
		templates: make(map[string]TemplateRule, len(rules)),
	}
	for _, r := range rules {
		docID := "template::" + r.TemplateID
		kb.templates[docID] = r
		text := strings.Join([]string{r.TemplateID, r.Intent, r.Description}, " ")
		kb.index.Upsert(vectorindex.Document{ID: docID, Text: text, Metadata: map[string]any{"doc_id": docID}})
	}
	return kb
}

// Query returns the topK template rules most similar to queryText.
func (kb *TemplateKB) Query(queryText string, topK int) []TemplateRule {
	hits := kb.index.Query(queryText, topK, nil)
	out := make([]TemplateRule, 0, len(hits))
	for _, h := range hits {
		out = append(out, kb.templates[h.Document.ID])
	}
	return out
}

// All returns every template rule in catalogue order.
func (kb *TemplateKB) All() []TemplateRule {
	out := make([]TemplateRule, 0, len(kb.templates))
	for _, id := range kb.index.AllIDsOrdered() {
		out = append(out, kb.templates[id])
	}
	return out
}

// ForIntent returns the rules whose Intent matches intent, case-insensitively.
func (kb *TemplateKB) ForIntent(intent string) []TemplateRule {
	var out []TemplateRule
	for _, r := range kb.templates {
		if strings.EqualFold(r.Intent, intent) {
			out = append(out, r)
		}
	}
	return out
}
