// Package vectorindex implements a lexical term-overlap ranking index.
//
// It is deliberately not an embedding store: documents and queries are
// tokenized into term sets and ranked by set cosine similarity. Every
// knowledge base in internal/kb builds one of these per catalogue at
// startup and queries it read-only afterwards.
package vectorindex

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// tokenPattern matches runs of ASCII word characters or a single CJK
// ideograph, mirroring the tokenizer used by the catalogue loaders this
// index serves.
var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9_]+|[\x{4e00}-\x{9fff}]`)

// Tokenize lowercases s and splits it into the term set used for both
// indexing and querying.
func Tokenize(s string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(s), -1)
	return matches
}

// Document is one entry in the index: an opaque id, the metadata the
// caller wants back on a hit, and the raw text the id was indexed under.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Hit is a scored Document returned from Query.
type Hit struct {
	Document Document
	Score    float64
}

// Index is a lexical term-set similarity index over a fixed set of
// documents. It is built once via Upsert calls and then queried
// read-only; it holds no synchronization because nothing in this system
// mutates a KB after startup.
type Index struct {
	docs    []Document
	termSet [][]string
	order   map[string]int
}

// New returns an empty Index.
func New() *Index {
	return &Index{order: make(map[string]int)}
}

// Upsert adds or replaces a document. Re-upserting an existing id
// preserves its original insertion-order position, since ties in Query
// are broken by insertion order.
func (idx *Index) Upsert(doc Document) {
	terms := Tokenize(doc.Text)
	if pos, ok := idx.order[doc.ID]; ok {
		idx.docs[pos] = doc
		idx.termSet[pos] = terms
		return
	}
	idx.order[doc.ID] = len(idx.docs)
	idx.docs = append(idx.docs, doc)
	idx.termSet = append(idx.termSet, terms)
}

// Query ranks every indexed document against queryText by term-set
// cosine similarity, |A∩B| / sqrt(|A|*|B|), and returns the topK
// highest-scoring hits. Documents that share no terms with the query
// are excluded. Ties are broken by insertion order. A non-empty filter
// restricts candidates to documents whose metadata matches every given
// key/value pair; pass nil for no restriction.
func (idx *Index) Query(queryText string, topK int, filter map[string]string) []Hit {
	queryTerms := uniqueSet(Tokenize(queryText))
	if len(queryTerms) == 0 || topK <= 0 {
		return nil
	}

	hits := make([]Hit, 0, len(idx.docs))
	for i, doc := range idx.docs {
		if !matchesFilter(doc.Metadata, filter) {
			continue
		}
		docTerms := uniqueSet(idx.termSet[i])
		if len(docTerms) == 0 {
			continue
		}
		overlap := intersectionSize(queryTerms, docTerms)
		if overlap == 0 {
			continue
		}
		score := float64(overlap) / math.Sqrt(float64(len(queryTerms))*float64(len(docTerms)))
		hits = append(hits, Hit{Document: doc, Score: score})
	}

	// Stable sort by descending score; equal scores keep their relative
	// (insertion) order because hits was built in insertion order.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Score > hits[j-1].Score; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits
}

// Len reports how many documents are indexed.
func (idx *Index) Len() int {
	return len(idx.docs)
}

// AllIDsOrdered returns every document id in insertion order, for
// callers that need to reconstruct a full, unranked catalogue listing.
func (idx *Index) AllIDsOrdered() []string {
	ids := make([]string, len(idx.docs))
	for i, d := range idx.docs {
		ids[i] = d.ID
	}
	return ids
}

func matchesFilter(metadata map[string]any, filter map[string]string) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}

func uniqueSet(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}

func intersectionSize(a, b map[string]struct{}) int {
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	count := 0
	for t := range small {
		if _, ok := big[t]; ok {
			count++
		}
	}
	return count
}
