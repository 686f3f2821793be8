package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	toks := Tokenize("Energy Usage 用电量 2024")
	assert.Contains(t, toks, "energy")
	assert.Contains(t, toks, "usage")
	assert.Contains(t, toks, "2024")
	assert.Contains(t, toks, "用")
	assert.Contains(t, toks, "电")
	assert.Contains(t, toks, "量")
}

func TestQueryRanksByOverlap(t *testing.T) {
	idx := New()
	idx.Upsert(Document{ID: "a", Text: "energy consumption kwh"})
	idx.Upsert(Document{ID: "b", Text: "bill amount currency"})
	idx.Upsert(Document{ID: "c", Text: "energy bill amount"})

	hits := idx.Query("energy consumption", 2, nil)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Document.ID)
}

func TestQueryExcludesNoOverlap(t *testing.T) {
	idx := New()
	idx.Upsert(Document{ID: "a", Text: "energy consumption"})
	hits := idx.Query("totally unrelated", 5, nil)
	assert.Empty(t, hits)
}

func TestQueryTiesBreakByInsertionOrder(t *testing.T) {
	idx := New()
	idx.Upsert(Document{ID: "first", Text: "meter reading"})
	idx.Upsert(Document{ID: "second", Text: "meter reading"})

	hits := idx.Query("meter reading", 2, nil)
	require.Len(t, hits, 2)
	assert.Equal(t, "first", hits[0].Document.ID)
	assert.Equal(t, "second", hits[1].Document.ID)
	assert.InDelta(t, hits[0].Score, hits[1].Score, 1e-9)
}

func TestUpsertReplacesPreservingOrder(t *testing.T) {
	idx := New()
	idx.Upsert(Document{ID: "a", Text: "old text"})
	idx.Upsert(Document{ID: "b", Text: "meter reading"})
	idx.Upsert(Document{ID: "a", Text: "meter reading"})

	hits := idx.Query("meter reading", 2, nil)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Document.ID)
}

func TestQueryFilterRestrictsByMetadata(t *testing.T) {
	idx := New()
	idx.Upsert(Document{ID: "a", Text: "meter reading", Metadata: map[string]any{"table": "feeder"}})
	idx.Upsert(Document{ID: "b", Text: "meter reading", Metadata: map[string]any{"table": "bills"}})

	hits := idx.Query("meter reading", 5, map[string]string{"table": "bills"})
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].Document.ID)
}

func TestEmptyQueryReturnsNil(t *testing.T) {
	idx := New()
	idx.Upsert(Document{ID: "a", Text: "energy"})
	assert.Nil(t, idx.Query("", 5, nil))
	assert.Nil(t, idx.Query("energy", 0, nil))
}
