package session

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-session/internal/quiz"
)

// View states.
const (
	ViewMenu             = "menu"
	ViewHostLobby        = "host_lobby"
	ViewParticipantLobby = "participant_lobby"
	ViewQuizActive       = "quiz_active"
	ViewResults          = "results"
)

// NextView maps a session status onto the screen a client should show.
// It only depends on the status and the caller's role, which is what lets
// any client converge to the right screen purely from snapshot updates.
func NextView(current, status string, isHost bool) string {
	switch status {
	case quiz.StatusWaiting:
		if isHost {
			return ViewHostLobby
		}
		return ViewParticipantLobby
	case quiz.StatusInProgress:
		return ViewQuizActive
	case quiz.StatusCompleted:
		return ViewResults
	}
	return current
}

// ViewMachine tracks the active view and clears per-question guards on the
// transitions that demand it. It is re-evaluated on every mirror change,
// not on explicit navigation.
type ViewMachine struct {
	mu          sync.Mutex
	current     string
	clearGuards func()
	logger      zerolog.Logger
}

// NewViewMachine starts at the menu. clearGuards is invoked on entry into
// quiz_active and on a revert from quiz_active back to a lobby (a host may
// reset a session mid-quiz).
func NewViewMachine(clearGuards func(), logger zerolog.Logger) *ViewMachine {
	return &ViewMachine{
		current:     ViewMenu,
		clearGuards: clearGuards,
		logger:      logger.With().Str("component", "view_machine").Logger(),
	}
}

// Current returns the active view.
func (v *ViewMachine) Current() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Apply feeds a session status into the machine and returns the resulting
// view plus whether it changed.
func (v *ViewMachine) Apply(status string, isHost bool) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	next := NextView(v.current, status, isHost)
	if next == v.current {
		return v.current, false
	}

	enteringQuiz := next == ViewQuizActive
	revertedToLobby := v.current == ViewQuizActive &&
		(next == ViewHostLobby || next == ViewParticipantLobby)
	if (enteringQuiz || revertedToLobby) && v.clearGuards != nil {
		v.clearGuards()
	}

	v.logger.Debug().Str("from", v.current).Str("to", next).Msg("view transition")
	v.current = next
	return next, true
}

// ForceMenu drops back to the menu regardless of session status. Used for
// terminal aborts (session gone, loading stall).
func (v *ViewMachine) ForceMenu() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current != ViewMenu {
		v.logger.Debug().Str("from", v.current).Str("to", ViewMenu).Msg("view forced to menu")
	}
	v.current = ViewMenu
}
