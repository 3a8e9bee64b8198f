package gateway

import (
	"context"

	"github.com/google/uuid"

	"github.com/gokatarajesh/quiz-session/internal/quiz"
)

// Gateway is the only boundary through which a client talks to the session
// backend. All failures come back as *Error values with a code tag.
type Gateway interface {
	// FetchSnapshot returns a full consistent read of the session.
	// Idempotent, safe to call repeatedly.
	FetchSnapshot(ctx context.Context, sessionID uuid.UUID) (*quiz.Snapshot, error)

	// SubmitAnswer records a selection. A second submission for the same
	// (user, question) pair yields a conflict error, not a new answer.
	SubmitAnswer(ctx context.Context, req SubmitRequest) (*SubmitResult, error)

	// AdvanceToNext moves the session to the next question (primary path).
	AdvanceToNext(ctx context.Context, sessionID uuid.UUID) (*quiz.Session, error)

	// AdvanceFallback reaches the same effect through an alternate route,
	// used when the primary path fails transiently.
	AdvanceFallback(ctx context.Context, sessionID uuid.UUID) (*quiz.Session, error)

	// StartSession transitions waiting -> in_progress. Host only.
	StartSession(ctx context.Context, sessionID uuid.UUID, quizMode string) (*quiz.Session, error)

	// EndSession transitions to completed. Calling it twice is harmless.
	EndSession(ctx context.Context, sessionID uuid.UUID) (*quiz.Session, error)

	// CreateSession registers a new session with the caller as host.
	CreateSession(ctx context.Context, req CreateRequest) (*quiz.Session, error)

	// JoinByCode adds the caller to a session identified by its join code.
	JoinByCode(ctx context.Context, joinCode, displayName string) (*quiz.Session, error)

	// RejoinSession re-enters a session from a remembered handle.
	RejoinSession(ctx context.Context, handle RejoinHandle) (*quiz.Session, error)

	// LeaveSession removes the caller from a session.
	LeaveSession(ctx context.Context, sessionID, userID uuid.UUID) error

	// ActiveSessionsFor lists sessions the participant is still part of.
	ActiveSessionsFor(ctx context.Context, userID uuid.UUID) ([]quiz.Session, error)
}

// SubmitRequest carries one answer submission.
type SubmitRequest struct {
	SessionID      uuid.UUID `json:"session_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedOption int       `json:"selected_option"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
}

// SubmitResult is the scored outcome of a submission.
type SubmitResult struct {
	IsCorrect bool `json:"is_correct"`
	Points    int  `json:"points"`
}

// CreateRequest configures a new session.
type CreateRequest struct {
	HostRole          string `json:"host_role"`
	AdvanceMode       string `json:"advance_mode"`
	QuizMode          string `json:"quiz_mode"`
	QuestionTimeLimit int    `json:"question_time_limit"`
	AllowLateJoin     bool   `json:"allow_late_join"`
}

// RejoinHandle identifies a previously joined session for a returning
// participant.
type RejoinHandle struct {
	JoinCode string    `json:"join_code"`
	UserID   uuid.UUID `json:"user_id"`
}
