package planner

import (
	"regexp"
	"strings"

	"github.com/lhxgrid/text2sql/internal/kb"
)

// slots is the result of lexically matching a question against the full
// catalogue, before any retrieval happens. It exists to build a query
// string the KBs can rank against, and to seed intent detection.
type slots struct {
	metricTerms []string
	schemaTerms []string
	objectTerms []string
	intentTerms []string
}

var simpleTokenPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

func simpleTokens(s string) []string {
	return simpleTokenPattern.FindAllString(strings.ToLower(s), -1)
}

// parseSlots scans question for any term that literally appears in the
// metric or schema catalogue, building up the slot lists used by
// buildQueries; the join and template catalogues are not scanned. It never
// invents terms not already present in a catalogue, matching the original
// substring-matching approach.
func parseSlots(question string, schemaKB *kb.SchemaKB, metricKB *kb.MetricKB) slots {
	lower := strings.ToLower(question)
	var s slots

	for _, m := range metricKB.All() {
		candidates := append([]string{m.MetricID, m.DisplayName}, m.Synonyms...)
		for _, c := range candidates {
			if c != "" && strings.Contains(lower, strings.ToLower(c)) {
				s.metricTerms = append(s.metricTerms, c)
			}
		}
	}

	for _, e := range schemaKB.All() {
		candidates := append([]string{e.Field, e.Table}, e.Synonyms...)
		for _, c := range candidates {
			if c != "" && strings.Contains(lower, strings.ToLower(c)) {
				s.schemaTerms = append(s.schemaTerms, c)
			}
		}
		if strings.Contains(lower, strings.ToLower(e.Table)) {
			s.objectTerms = append(s.objectTerms, e.Table)
		}
	}

	s.intentTerms = []string{detectIntent(lower)}
	return s
}

// detectIntent applies a small keyword heuristic to classify the
// question's intent. It defaults to "aggregate" when nothing matches.
func detectIntent(lowerQuestion string) string {
	switch {
	case containsAny(lowerQuestion, "top", "rank", "highest", "lowest", "most", "least"):
		return "rank"
	case containsAny(lowerQuestion, "trend", "over time", "by day", "by hour", "by month", "daily", "hourly", "monthly"):
		return "trend"
	case containsAny(lowerQuestion, "compare", "versus", " vs ", "year over year", "month over month", "yoy", "mom"):
		return "compare"
	case containsAny(lowerQuestion, "list", "detail", "show all", "breakdown"):
		return "detail"
	default:
		return "aggregate"
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// queries is the four specialized retrieval strings built from one
// question's slots, one per knowledge base.
type queries struct {
	metric   string
	schema   string
	join     string
	template string
}

// buildQueries builds the four KB-specific query strings spec §4.3 step 2
// calls for: each KB is queried with its own matched-term bag plus the raw
// question, not a single blob shared across all four.
func buildQueries(question string, s slots) queries {
	join := append(append([]string{}, s.objectTerms...), s.schemaTerms...)
	return queries{
		metric:   joinWithQuestion(question, s.metricTerms),
		schema:   joinWithQuestion(question, s.schemaTerms),
		join:     joinWithQuestion(question, join),
		template: joinWithQuestion(question, s.intentTerms),
	}
}

func joinWithQuestion(question string, terms []string) string {
	parts := append([]string{question}, terms...)
	return strings.Join(parts, " ")
}
