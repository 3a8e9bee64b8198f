package quiz

import (
	"time"

	"github.com/google/uuid"
)

// Session lifecycle states.
const (
	StatusWaiting    = "waiting"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Advance modes.
const (
	AdvanceAuto   = "auto"
	AdvanceManual = "manual"
)

// Quiz pacing modes.
const (
	ModeSynchronized   = "synchronized"
	ModeIndividualAuto = "individual_auto"
)

// Host roles.
const (
	HostRoleParticipant = "participant"
	HostRoleMediator    = "mediator"
)

// NoAnswer is the sentinel option submitted when a question times out
// without a selection.
const NoAnswer = -1

// Session is one run of a quiz, owned by the backend. Clients never mutate
// it directly, only through gateway operations that return an updated copy.
type Session struct {
	ID                uuid.UUID  `json:"id"`
	JoinCode          string     `json:"join_code"`
	HostUserID        uuid.UUID  `json:"host_user_id"`
	HostRole          string     `json:"host_role"`
	Status            string     `json:"status"`
	AdvanceMode       string     `json:"advance_mode"`
	QuizMode          string     `json:"quiz_mode"`
	QuestionTimeLimit int        `json:"question_time_limit"`
	ScheduledStartAt  *time.Time `json:"scheduled_start_time,omitempty"`
	AllowLateJoin     bool       `json:"allow_late_join"`
}

// Player is a session participant. IsPlaying=false marks a host acting
// purely as mediator; mediators never answer and are excluded from
// answered-player counts.
type Player struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	DisplayName    string     `json:"display_name"`
	AvatarURL      string     `json:"avatar_url,omitempty"`
	IsHost         bool       `json:"is_host"`
	IsPlaying      bool       `json:"is_playing"`
	Score          int        `json:"score"`
	LastAnsweredAt *time.Time `json:"last_answered_at,omitempty"`
}

// Question carries its own deadline window. StartedAt/EndedAt are assigned
// by the backend when the question becomes active/inactive; at most one
// question in a session has StartedAt set with EndedAt unset or in the
// future.
type Question struct {
	ID               uuid.UUID  `json:"id"`
	Index            int        `json:"question_index"`
	Text             string     `json:"question_text"`
	Options          []string   `json:"options"`
	CorrectAnswer    int        `json:"correct_answer"`
	TimeLimitSeconds int        `json:"time_limit_seconds"`
	StartedAt        *time.Time `json:"start_time,omitempty"`
	EndedAt          *time.Time `json:"end_time,omitempty"`
}

// ActiveAt reports whether the question's deadline window covers now.
func (q Question) ActiveAt(now time.Time) bool {
	if q.StartedAt == nil {
		return false
	}
	return q.EndedAt == nil || q.EndedAt.After(now)
}

// Ended reports whether the question's window has closed.
func (q Question) Ended(now time.Time) bool {
	return q.EndedAt != nil && !q.EndedAt.After(now)
}

// Answer is a recorded response. The backend enforces at most one per
// (user, question) pair; a duplicate submission is a no-op, never a new row.
type Answer struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedOption int       `json:"selected_option"`
	IsCorrect      bool      `json:"is_correct"`
	Points         int       `json:"points"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// Snapshot is a full, consistent read of one session at one instant.
// CurrentQuestionID is an optional explicit pointer from the backend;
// when absent the client derives the active question itself.
type Snapshot struct {
	Session           Session    `json:"session"`
	Players           []Player   `json:"players"`
	Questions         []Question `json:"questions"`
	Answers           []Answer   `json:"answers"`
	CurrentQuestionID *uuid.UUID `json:"current_question_id,omitempty"`
}
