package kb

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/lhxgrid/text2sql/internal/vectorindex"
)

// SchemaKB indexes every SchemaEntity in the catalogue for lexical
// retrieval, namespacing doc ids as "schema::table.field".
type SchemaKB struct {
	index    *vectorindex.Index
	entities map[string]SchemaEntity
}

// LoadSchemaKB reads a JSON array of SchemaEntity from path and builds
// the index.
func LoadSchemaKB(path string) (*SchemaKB, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kb: read schema catalogue: %w", err)
	}
	var entities []SchemaEntity
	if err := json.Unmarshal(raw, &entities); err != nil {
		return nil, fmt.Errorf("kb: parse schema catalogue: %w", err)
	}
	return NewSchemaKB(entities), nil
}

// NewSchemaKB builds a SchemaKB from already-loaded entities.
func NewSchemaKB(entities []SchemaEntity) *SchemaKB {
	kb := &SchemaKB{
		index:    vectorindex.New(),
		entities: make(map[string]SchemaEntity, len(entities)),
	}
	for _, e := range entities {
		docID := fmt.Sprintf("schema::%s.%s", e.Table, e.Field)
		kb.entities[docID] = e
		searchable := append([]string{e.Table, e.Field, e.DataType, e.Description, e.Unit}, e.Synonyms...)
		searchable = append(searchable, e.QualityTags...)
		text := strings.Join(searchable, " ")
		kb.index.Upsert(vectorindex.Document{ID: docID, Text: text, Metadata: map[string]any{"doc_id": docID}})
	}
	return kb
}

// Query returns the topK schema candidates most similar to queryText.
func (kb *SchemaKB) Query(queryText string, topK int) []SchemaEntity {
	hits := kb.index.Query(queryText, topK, nil)
	out := make([]SchemaEntity, 0, len(hits))
	for _, h := range hits {
		out = append(out, kb.entities[h.Document.ID])
	}
	return out
}

// All returns every schema entity in catalogue order; used when an
// empty retrieval must be reconstructed from the full KB.
func (kb *SchemaKB) All() []SchemaEntity {
	out := make([]SchemaEntity, 0, len(kb.entities))
	for _, doc := range kb.index.AllIDsOrdered() {
		out = append(out, kb.entities[doc])
	}
	return out
}
