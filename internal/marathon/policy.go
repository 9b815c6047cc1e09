package marathon

import (
	"math"
	"time"

	"github.com/conorfennell/examprep/internal/domain"
)

// SentinelPriority sorts after every active item. Mastered items are
// filtered out of selection, so it only matters if that filter changes.
const SentinelPriority = math.MaxInt32

// Policy holds the parameters of the queue state transitions.
type Policy struct {
	RetryDelay   time.Duration // how long a missed question is held back
	WrongPenalty int           // added to priority on a miss
}

// DefaultPolicy holds a missed question back for 45 seconds, roughly the time
// of five other questions, and demotes it by 5.
func DefaultPolicy() Policy {
	return Policy{
		RetryDelay:   45 * time.Second,
		WrongPenalty: 5,
	}
}

// Eligible reports whether an item may be served at now: not mastered and not
// delay-locked. There is no stored Delayed state; it ends when time passes.
func (p Policy) Eligible(it domain.QueueItem, now time.Time) bool {
	if it.IsMastered {
		return false
	}
	return it.NextEligibleAt == nil || !it.NextEligibleAt.After(now)
}

// Next calculates the scheduling fields of an item after an answer.
// Mastery is reached on the first correct answer and is terminal.
func (p Policy) Next(it domain.QueueItem, correct bool, timeTakenSeconds int, now time.Time) domain.QueuePatch {
	patch := domain.QueuePatch{
		Priority:       it.Priority,
		TimesCorrect:   it.TimesCorrect,
		TimesWrong:     it.TimesWrong,
		IsMastered:     it.IsMastered,
		NextEligibleAt: it.NextEligibleAt,
		AvgTimeSeconds: timeTakenSeconds, // latest value, not a running mean
	}

	if correct {
		patch.TimesCorrect++
		patch.IsMastered = true
		patch.Priority = SentinelPriority
		patch.NextEligibleAt = nil
		return patch
	}

	// No partial credit survives a miss.
	patch.TimesWrong++
	patch.TimesCorrect = 0
	if it.IsMastered {
		return patch
	}
	retryAt := now.Add(p.RetryDelay)
	patch.NextEligibleAt = &retryAt
	patch.Priority = it.Priority + p.WrongPenalty
	return patch
}
