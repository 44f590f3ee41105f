// Package scoring turns a question set and the answers given into a result summary.
package scoring

import (
	"math"

	"proctored-quiz-service/internal/domain"
)

// Score compares every selection to the question's answer. It has no side effects.
// Answers for questions outside the set are ignored.
func Score(topic string, questions []domain.Question, answers map[int]string) domain.ResultSummary {
	summary := domain.ResultSummary{Topic: topic, Total: len(questions)}
	for _, q := range questions {
		selected, ok := answers[q.ID]
		switch {
		case !ok:
			summary.NotAttempted++
		case selected == q.Answer:
			summary.Correct++
		default:
			summary.Wrong++
		}
	}
	summary.Attempted = summary.Correct + summary.Wrong
	summary.Percentage = Percentage(summary.Correct, summary.Total)
	return summary
}

// Percentage is correct/total*100 rounded to two decimals, 0 when total is 0.
func Percentage(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(correct)/float64(total)*10000) / 100
}
