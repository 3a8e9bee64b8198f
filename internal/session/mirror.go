package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/gokatarajesh/quiz-session/internal/quiz"
)

// Mirror is the client-local copy of one session's state. It is a cache,
// never authoritative: every refresh overwrites it wholesale, field-by-field
// merging is deliberately not supported so drift cannot accumulate.
type Mirror struct {
	mu           sync.RWMutex
	snap         *quiz.Snapshot
	lastQuestion uuid.UUID
}

// NewMirror creates an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{}
}

// Replace installs a fresh snapshot, discarding the previous one entirely.
func (m *Mirror) Replace(snap *quiz.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
}

// Reset clears all cached state. Called on leave and on terminal aborts.
func (m *Mirror) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = nil
	m.lastQuestion = uuid.Nil
}

// Snapshot returns the current snapshot, or nil before the first refresh.
// Callers must treat it as read-only.
func (m *Mirror) Snapshot() *quiz.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Session returns the cached session.
func (m *Mirror) Session() (quiz.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return quiz.Session{}, false
	}
	return m.snap.Session, true
}

// PlayerByUser finds the player row for a user id.
func (m *Mirror) PlayerByUser(userID uuid.UUID) (quiz.Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return quiz.Player{}, false
	}
	for _, p := range m.snap.Players {
		if p.UserID == userID {
			return p, true
		}
	}
	return quiz.Player{}, false
}

// QuestionByID finds a question in the cached list.
func (m *Mirror) QuestionByID(id uuid.UUID) (quiz.Question, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return quiz.Question{}, false
	}
	for _, q := range m.snap.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return quiz.Question{}, false
}

// AnswerFor returns the recorded answer for a (user, question) pair.
func (m *Mirror) AnswerFor(userID, questionID uuid.UUID) (quiz.Answer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return quiz.Answer{}, false
	}
	for _, a := range m.snap.Answers {
		if a.UserID == userID && a.QuestionID == questionID {
			return a, true
		}
	}
	return quiz.Answer{}, false
}

// AnsweredCount counts recorded answers for a question from playing
// participants. Mediators are excluded even if a stray answer exists.
func (m *Mirror) AnsweredCount(questionID uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return 0
	}
	playing := make(map[uuid.UUID]bool, len(m.snap.Players))
	for _, p := range m.snap.Players {
		if p.IsPlaying {
			playing[p.UserID] = true
		}
	}
	count := 0
	for _, a := range m.snap.Answers {
		if a.QuestionID == questionID && playing[a.UserID] {
			count++
		}
	}
	return count
}

// PlayingCount returns the number of answering participants.
func (m *Mirror) PlayingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return 0
	}
	count := 0
	for _, p := range m.snap.Players {
		if p.IsPlaying {
			count++
		}
	}
	return count
}

// IsHost reports whether the user hosts the cached session.
func (m *Mirror) IsHost(userID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap != nil && m.snap.Session.HostUserID == userID
}

// ObserveQuestion records the given question as the latest one seen and
// reports whether it differs from the previous one. Callers use this to
// detect question changes and reset per-question local state.
func (m *Mirror) ObserveQuestion(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastQuestion == id {
		return false
	}
	m.lastQuestion = id
	return true
}

// LastSeenQuestion returns the most recently observed question id.
func (m *Mirror) LastSeenQuestion() uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuestion
}
