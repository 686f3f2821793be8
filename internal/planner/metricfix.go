package planner

import (
	"strings"

	"github.com/lhxgrid/text2sql/internal/kb"
)

// costKeywords and consumptionKeywords are the question-side cues that,
// combined with a matching signal on the metric's own text, earn the
// cost/amount and consumption/kWh family bonuses.
var costKeywords = []string{"cost", "amount"}
var consumptionKeywords = []string{"consumption", "kwh"}

// autoFixMetricID scores every metric candidate against the question
// text and the plan's attempted metric_id, and returns the best-scoring
// candidate. It exists to recover from a metric_not_found error without
// going straight to a repair round-trip.
func autoFixMetricID(question string, attemptedMetricID string, evidence kb.EvidenceBundle) (string, bool) {
	if len(evidence.MetricCandidates) == 0 {
		return "", false
	}

	lowerQuestion := strings.ToLower(question)
	questionTokens := simpleTokens(lowerQuestion + " " + attemptedMetricID)
	tokenSet := make(map[string]struct{}, len(questionTokens))
	for _, t := range questionTokens {
		tokenSet[t] = struct{}{}
	}
	mentionsBills := strings.Contains(lowerQuestion, "bill")

	var bestID string
	bestScore := -1
	for _, m := range evidence.MetricCandidates {
		score := 0
		combined := strings.ToLower(strings.Join([]string{m.MetricID, m.DisplayName, m.Definition, m.Formula, strings.Join(m.RequiredFields, " ")}, " "))
		for _, tok := range simpleTokens(combined) {
			if _, ok := tokenSet[tok]; ok {
				score += 2
			}
		}
		if containsAny(lowerQuestion, costKeywords...) && (strings.Contains(combined, "amount") || strings.Contains(combined, "total_amount")) {
			score += 5
		}
		if containsAny(lowerQuestion, consumptionKeywords...) && strings.Contains(combined, "consumption") {
			score += 5
		}
		if mentionsBills && hasFieldOnTable(m.RequiredFields, "bills") {
			score += 3
		}
		if score > bestScore {
			bestScore = score
			bestID = m.MetricID
		}
	}

	if bestScore <= 0 {
		return evidence.MetricCandidates[0].MetricID, true
	}
	return bestID, true
}

func hasFieldOnTable(fields []string, table string) bool {
	for _, f := range fields {
		if strings.HasPrefix(f, table+".") {
			return true
		}
	}
	return false
}
