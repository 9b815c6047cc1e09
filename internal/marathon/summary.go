package marathon

import (
	"math"

	"github.com/conorfennell/examprep/internal/domain"
)

// Summarize computes attempt statistics for a session. Accuracy is a rounded
// percentage and both accuracy and mean time are 0 when nothing was answered.
func Summarize(sess domain.Session, records []domain.AnswerRecord) domain.Summary {
	summary := domain.Summary{
		SessionID:      sess.ID,
		Status:         sess.Status,
		TotalQuestions: sess.TotalQuestions,
		Mastered:       sess.QuestionsMastered,
		TotalAttempts:  len(records),
	}
	if len(records) == 0 {
		return summary
	}

	var totalTime int
	for _, r := range records {
		if r.IsCorrect {
			summary.CorrectAttempts++
		}
		totalTime += r.TimeTakenSeconds
	}
	summary.Accuracy = int(math.Round(100 * float64(summary.CorrectAttempts) / float64(summary.TotalAttempts)))
	summary.AvgTimeSeconds = float64(totalTime) / float64(summary.TotalAttempts)
	return summary
}
