package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/quiz-session/internal/quiz"
)

func TestMirrorReplaceIsWholesale(t *testing.T) {
	now := time.Now()
	f := newFixture(2, now, 10)
	m := NewMirror()

	first := f.snapshot(quiz.StatusInProgress, 0, now, 10)
	first.Answers = []quiz.Answer{{
		ID:         uuid.New(),
		UserID:     f.playerID,
		QuestionID: f.questions[0].ID,
	}}
	m.Replace(first)
	require.Equal(t, 1, m.AnsweredCount(f.questions[0].ID))

	// The next snapshot has no answers; nothing from the old one survives.
	m.Replace(f.snapshot(quiz.StatusInProgress, 1, now, 10))
	assert.Equal(t, 0, m.AnsweredCount(f.questions[0].ID))
	_, ok := m.AnswerFor(f.playerID, f.questions[0].ID)
	assert.False(t, ok)
}

func TestMirrorAnsweredCountExcludesMediator(t *testing.T) {
	now := time.Now()
	f := newFixture(1, now, 10)
	snap := f.snapshot(quiz.StatusInProgress, 0, now, 10)
	snap.Session.HostRole = quiz.HostRoleMediator
	snap.Players[0].IsPlaying = false // host mediates
	snap.Answers = []quiz.Answer{
		{ID: uuid.New(), UserID: f.playerID, QuestionID: f.questions[0].ID},
		// Stray mediator answer must not count.
		{ID: uuid.New(), UserID: f.hostID, QuestionID: f.questions[0].ID},
	}

	m := NewMirror()
	m.Replace(snap)

	assert.Equal(t, 1, m.AnsweredCount(f.questions[0].ID))
	assert.Equal(t, 1, m.PlayingCount())
}

func TestMirrorLookups(t *testing.T) {
	now := time.Now()
	f := newFixture(2, now, 10)
	m := NewMirror()
	m.Replace(f.snapshot(quiz.StatusInProgress, 0, now, 10))

	sess, ok := m.Session()
	require.True(t, ok)
	assert.Equal(t, f.sessionID, sess.ID)
	assert.True(t, m.IsHost(f.hostID))
	assert.False(t, m.IsHost(f.playerID))

	player, ok := m.PlayerByUser(f.playerID)
	require.True(t, ok)
	assert.True(t, player.IsPlaying)

	q, ok := m.QuestionByID(f.questions[1].ID)
	require.True(t, ok)
	assert.Equal(t, 1, q.Index)

	_, ok = m.QuestionByID(uuid.New())
	assert.False(t, ok)
}

func TestMirrorObserveQuestionDetectsChange(t *testing.T) {
	m := NewMirror()
	first, second := uuid.New(), uuid.New()

	assert.True(t, m.ObserveQuestion(first))
	assert.False(t, m.ObserveQuestion(first))
	assert.True(t, m.ObserveQuestion(second))
	assert.Equal(t, second, m.LastSeenQuestion())
}

func TestMirrorResetClearsEverything(t *testing.T) {
	now := time.Now()
	f := newFixture(1, now, 10)
	m := NewMirror()
	m.Replace(f.snapshot(quiz.StatusInProgress, 0, now, 10))
	m.ObserveQuestion(f.questions[0].ID)

	m.Reset()

	assert.Nil(t, m.Snapshot())
	_, ok := m.Session()
	assert.False(t, ok)
	assert.Equal(t, uuid.Nil, m.LastSeenQuestion())
}
