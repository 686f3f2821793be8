package kb

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/lhxgrid/text2sql/internal/vectorindex"
)

// JoinKB indexes every pre-enumerated JoinPath, and separately keeps a
// bidirectional table-adjacency graph derived from the same paths so
// callers can check reachability without re-querying the index.
type JoinKB struct {
	index *vectorindex.Index
	paths map[string]JoinPath
	graph map[string][]string
}

// LoadJoinKB reads a JSON array of JoinPath from path and builds the KB.
func LoadJoinKB(path string) (*JoinKB, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kb: read join catalogue: %w", err)
	}
	var paths []JoinPath
	if err := json.Unmarshal(raw, &paths); err != nil {
		return nil, fmt.Errorf("kb: parse join catalogue: %w", err)
	}
	return NewJoinKB(paths), nil
}

// NewJoinKB builds a JoinKB from already-loaded paths.
func NewJoinKB(paths []JoinPath) *JoinKB {
	kb := &JoinKB{
		index: vectorindex.New(),
		paths: make(map[string]JoinPath, len(paths)),
		graph: make(map[string][]string),
	}
	for _, p := range paths {
		docID := "join::" + p.JoinPathID
		kb.paths[docID] = p
		text := strings.Join(append(append([]string{}, p.Tables...), p.Description), " ")
		kb.index.Upsert(vectorindex.Document{ID: docID, Text: text, Metadata: map[string]any{"doc_id": docID}})
		for _, e := range p.Edges {
			kb.addEdge(e.LeftTable, e.RightTable)
		}
	}
	return kb
}

func (kb *JoinKB) addEdge(a, b string) {
	if !contains(kb.graph[a], b) {
		kb.graph[a] = append(kb.graph[a], b)
	}
	if !contains(kb.graph[b], a) {
		kb.graph[b] = append(kb.graph[b], a)
	}
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// Query returns the topK join paths most similar to queryText.
func (kb *JoinKB) Query(queryText string, topK int) []JoinPath {
	hits := kb.index.Query(queryText, topK, nil)
	out := make([]JoinPath, 0, len(hits))
	for _, h := range hits {
		out = append(out, kb.paths[h.Document.ID])
	}
	return out
}

// All returns every join path in catalogue order.
func (kb *JoinKB) All() []JoinPath {
	out := make([]JoinPath, 0, len(kb.paths))
	for _, id := range kb.index.AllIDsOrdered() {
		out = append(out, kb.paths[id])
	}
	return out
}

// Reachable reports whether the adjacency graph built from the full
// catalogue of join paths connects `from` to `to`, via breadth-first
// search. The validator's join_path_unreachable suggestions do not use
// it; they are drawn from the evidence bundle's join paths.
func (kb *JoinKB) Reachable(from, to string) bool {
	if from == to {
		return true
	}
	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range kb.graph[cur] {
			if next == to {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}
