package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// MockClient deterministically synthesizes a plan from the <INPUTS>
// payload embedded in a planning prompt, without ever calling a network
// model. It is used for no_llm mode and in tests, and mirrors the
// keyword-matching synthesis strategy the original implementation used:
// only the intent is chosen from keywords in the question; no metric or
// dimension is scored or chosen from the evidence bundle.
type MockClient struct {
	// ForceInvalid makes GenerateJSON return unparseable text, for
	// exercising the llm_output_not_json failure path.
	ForceInvalid bool
	// ForceSQL makes GenerateJSON return a plan whose serialized form
	// contains a raw SQL keyword, for exercising the fail-closed guard.
	ForceSQL bool
}

func (m *MockClient) Name() string { return "mock" }

var inputsPattern = regexp.MustCompile(`(?s)<INPUTS(?:_TRIMMED)?>(.*?)</INPUTS(?:_TRIMMED)?>`)

// GenerateJSON extracts the evidence/question payload a planner prompt
// embeds between <INPUTS>...</INPUTS> (or <INPUTS_TRIMMED>) markers and
// builds a plausible plan from it: pick an intent from keyword hints in
// the question and fill in defaults for sort/output/limit based on the
// chosen intent. metric_id is left empty and no dimension is chosen.
func (m *MockClient) GenerateJSON(ctx context.Context, prompt string) (map[string]any, error) {
	if m.ForceInvalid {
		return nil, &MalformedJSONError{Raw: "not json at all", Err: fmt.Errorf("mock: forced invalid")}
	}

	question := extractQuestion(prompt)
	intent := detectIntent(question)

	plan := map[string]any{
		"version":      "1.0",
		"intent":       intent,
		"metric_id":    "",
		"dimensions":   []any{},
		"join_path_id": "NONE",
		"confidence":   0.4,
		"output":       map[string]any{"format": "table"},
	}

	if m.ForceSQL {
		plan["clarifications"] = []any{"SELECT * FROM bills"}
		return plan, nil
	}

	if intent == "trend" {
		plan["time_grain"] = "day"
		plan["sort"] = map[string]any{"by": "time", "order": "asc"}
	} else if intent == "rank" {
		plan["sort"] = map[string]any{"by": "metric", "order": "desc"}
		plan["limit"] = 10
	}

	return plan, nil
}

// GenerateText returns a short deterministic placeholder. The answer
// generator does not call it: it skips LLM narration for the mock client.
func (m *MockClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	return "Summary unavailable in mock mode.", nil
}

func extractQuestion(prompt string) string {
	if m := inputsPattern.FindStringSubmatch(prompt); m != nil {
		var payload map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &payload); err == nil {
			q, _ := payload["question"].(string)
			return q
		}
		return m[1]
	}
	return prompt
}

func detectIntent(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "top", "rank", "highest", "lowest", "most"):
		return "rank"
	case containsAny(lower, "trend", "over time", "by day", "by month", "by hour"):
		return "trend"
	case containsAny(lower, "compare", "versus", "vs", "year over year", "month over month"):
		return "compare"
	case containsAny(lower, "list", "detail", "show all"):
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
