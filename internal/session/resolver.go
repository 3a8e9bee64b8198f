package session

import (
	"time"

	"github.com/gokatarajesh/quiz-session/internal/quiz"
)

// Resolution states.
const (
	// ResolveActive means a question is live and should be presented.
	ResolveActive = "active"
	// ResolveSearching is the transient gap between an advance commit and
	// its propagation. Callers must not treat it as an error.
	ResolveSearching = "searching"
	// ResolveComplete means every question has ended; time to show results.
	ResolveComplete = "complete"
)

// Resolution is the resolver output: the question to present, if any, and a
// continuation signal.
type Resolution struct {
	Question *quiz.Question
	State    string
}

// Resolve derives the question that should be presented from a snapshot and
// the current time. It is pure with respect to its inputs: identical inputs
// yield the identical question reference, and no state is kept here.
// Change detection belongs to the caller.
func Resolve(snap *quiz.Snapshot, now time.Time) Resolution {
	if snap == nil {
		return Resolution{State: ResolveSearching}
	}

	// An explicit pointer from the backend wins.
	if snap.CurrentQuestionID != nil {
		for i := range snap.Questions {
			if snap.Questions[i].ID == *snap.CurrentQuestionID {
				return Resolution{Question: &snap.Questions[i], State: ResolveActive}
			}
		}
	}

	switch snap.Session.Status {
	case quiz.StatusCompleted:
		return Resolution{State: ResolveComplete}
	case quiz.StatusInProgress:
	default:
		return Resolution{State: ResolveSearching}
	}

	// At most one question has a started, still-open window.
	for i := range snap.Questions {
		if snap.Questions[i].ActiveAt(now) {
			return Resolution{Question: &snap.Questions[i], State: ResolveActive}
		}
	}

	if len(snap.Questions) > 0 && allEnded(snap.Questions) {
		return Resolution{State: ResolveComplete}
	}
	return Resolution{State: ResolveSearching}
}

func allEnded(questions []quiz.Question) bool {
	for _, q := range questions {
		if q.EndedAt == nil {
			return false
		}
	}
	return true
}
