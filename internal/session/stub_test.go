package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gokatarajesh/quiz-session/internal/gateway"
	"github.com/gokatarajesh/quiz-session/internal/quiz"
)

// stubGateway lets each test script the backend. Unset functions fail the
// operation with a transient error so accidental calls are visible.
type stubGateway struct {
	mu sync.Mutex

	fetch           func(ctx context.Context, sessionID uuid.UUID) (*quiz.Snapshot, error)
	submit          func(ctx context.Context, req gateway.SubmitRequest) (*gateway.SubmitResult, error)
	advance         func(ctx context.Context, sessionID uuid.UUID) (*quiz.Session, error)
	advanceFallback func(ctx context.Context, sessionID uuid.UUID) (*quiz.Session, error)
	end             func(ctx context.Context, sessionID uuid.UUID) (*quiz.Session, error)
	rejoin          func(ctx context.Context, handle gateway.RejoinHandle) (*quiz.Session, error)

	fetchCalls    int
	submitCalls   int
	submitted     []gateway.SubmitRequest
	advanceCalls  int
	fallbackCalls int
	endCalls      int
}

func unscripted(op string) error {
	return gateway.NewError(gateway.CodeTransient, op, "not scripted", nil)
}

func (s *stubGateway) FetchSnapshot(ctx context.Context, sessionID uuid.UUID) (*quiz.Snapshot, error) {
	s.mu.Lock()
	s.fetchCalls++
	fn := s.fetch
	s.mu.Unlock()
	if fn == nil {
		return nil, unscripted("fetch_snapshot")
	}
	return fn(ctx, sessionID)
}

func (s *stubGateway) SubmitAnswer(ctx context.Context, req gateway.SubmitRequest) (*gateway.SubmitResult, error) {
	s.mu.Lock()
	s.submitCalls++
	s.submitted = append(s.submitted, req)
	fn := s.submit
	s.mu.Unlock()
	if fn == nil {
		return nil, unscripted("submit_answer")
	}
	return fn(ctx, req)
}

func (s *stubGateway) AdvanceToNext(ctx context.Context, sessionID uuid.UUID) (*quiz.Session, error) {
	s.mu.Lock()
	s.advanceCalls++
	fn := s.advance
	s.mu.Unlock()
	if fn == nil {
		return nil, unscripted("advance_to_next")
	}
	return fn(ctx, sessionID)
}

func (s *stubGateway) AdvanceFallback(ctx context.Context, sessionID uuid.UUID) (*quiz.Session, error) {
	s.mu.Lock()
	s.fallbackCalls++
	fn := s.advanceFallback
	s.mu.Unlock()
	if fn == nil {
		return nil, unscripted("advance_fallback")
	}
	return fn(ctx, sessionID)
}

func (s *stubGateway) StartSession(ctx context.Context, sessionID uuid.UUID, quizMode string) (*quiz.Session, error) {
	return nil, unscripted("start_session")
}

func (s *stubGateway) EndSession(ctx context.Context, sessionID uuid.UUID) (*quiz.Session, error) {
	s.mu.Lock()
	s.endCalls++
	fn := s.end
	s.mu.Unlock()
	if fn == nil {
		return nil, unscripted("end_session")
	}
	return fn(ctx, sessionID)
}

func (s *stubGateway) CreateSession(ctx context.Context, req gateway.CreateRequest) (*quiz.Session, error) {
	return nil, unscripted("create_session")
}

func (s *stubGateway) JoinByCode(ctx context.Context, joinCode, displayName string) (*quiz.Session, error) {
	return nil, unscripted("join_by_code")
}

func (s *stubGateway) RejoinSession(ctx context.Context, handle gateway.RejoinHandle) (*quiz.Session, error) {
	s.mu.Lock()
	fn := s.rejoin
	s.mu.Unlock()
	if fn == nil {
		return nil, unscripted("rejoin_session")
	}
	return fn(ctx, handle)
}

func (s *stubGateway) LeaveSession(ctx context.Context, sessionID, userID uuid.UUID) error {
	return unscripted("leave_session")
}

func (s *stubGateway) ActiveSessionsFor(ctx context.Context, userID uuid.UUID) ([]quiz.Session, error) {
	return nil, unscripted("active_sessions_for")
}

func (s *stubGateway) counts() (submit, advance, fallback, end int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitCalls, s.advanceCalls, s.fallbackCalls, s.endCalls
}

func (s *stubGateway) lastSubmitted() (gateway.SubmitRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.submitted) == 0 {
		return gateway.SubmitRequest{}, false
	}
	return s.submitted[len(s.submitted)-1], true
}

// Snapshot fixtures shared across the package tests.

func timePtr(t time.Time) *time.Time { return &t }

type fixture struct {
	sessionID uuid.UUID
	hostID    uuid.UUID
	playerID  uuid.UUID
	questions []quiz.Question
}

func newFixture(questionCount int, now time.Time, limit int) *fixture {
	f := &fixture{
		sessionID: uuid.New(),
		hostID:    uuid.New(),
		playerID:  uuid.New(),
	}
	for i := 0; i < questionCount; i++ {
		f.questions = append(f.questions, quiz.Question{
			ID:               uuid.New(),
			Index:            i,
			Text:             "question",
			Options:          []string{"a", "b", "c", "d"},
			CorrectAnswer:    1,
			TimeLimitSeconds: limit,
		})
	}
	return f
}

// snapshot builds an in_progress snapshot with question activeIdx live as of
// now. Questions before activeIdx are closed; a negative activeIdx leaves
// every question untouched.
func (f *fixture) snapshot(status string, activeIdx int, now time.Time, limit int) *quiz.Snapshot {
	questions := make([]quiz.Question, len(f.questions))
	copy(questions, f.questions)
	for i := range questions {
		questions[i].StartedAt = nil
		questions[i].EndedAt = nil
		if activeIdx < 0 {
			continue
		}
		switch {
		case i < activeIdx:
			questions[i].StartedAt = timePtr(now.Add(-10 * time.Minute))
			questions[i].EndedAt = timePtr(now.Add(-9 * time.Minute))
		case i == activeIdx:
			questions[i].StartedAt = timePtr(now)
			questions[i].EndedAt = timePtr(now.Add(time.Duration(limit) * time.Second))
		}
	}

	return &quiz.Snapshot{
		Session: quiz.Session{
			ID:                f.sessionID,
			JoinCode:          "ABC123",
			HostUserID:        f.hostID,
			HostRole:          quiz.HostRoleParticipant,
			Status:            status,
			AdvanceMode:       quiz.AdvanceAuto,
			QuizMode:          quiz.ModeSynchronized,
			QuestionTimeLimit: limit,
		},
		Players: []quiz.Player{
			{ID: uuid.New(), UserID: f.hostID, DisplayName: "host", IsHost: true, IsPlaying: true},
			{ID: uuid.New(), UserID: f.playerID, DisplayName: "player", IsPlaying: true},
		},
		Questions: questions,
	}
}

// allEndedSnapshot closes every question window.
func (f *fixture) allEndedSnapshot(now time.Time) *quiz.Snapshot {
	snap := f.snapshot(quiz.StatusInProgress, -1, now, 10)
	for i := range snap.Questions {
		snap.Questions[i].StartedAt = timePtr(now.Add(-10 * time.Minute))
		snap.Questions[i].EndedAt = timePtr(now.Add(-time.Minute))
	}
	return snap
}
