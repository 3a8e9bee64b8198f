package session

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/quiz-session/internal/gateway"
	"github.com/gokatarajesh/quiz-session/internal/quiz"
)

func newParticipantHarness(t *testing.T, chooser Chooser) (*syncHarness, *AnswerController) {
	t.Helper()
	h := newSyncHarness(t, false, SyncerOptions{})
	answers := NewAnswerController(h.gw, h.mirror, h.clock, nil, h.syncer.RequestRefresh, AnswerOptions{
		UserID: h.fixture.playerID,
	}, zerolog.New(io.Discard))
	countdown := NewCountdown(h.clock, zerolog.New(io.Discard))
	p := NewParticipant(h.syncer, h.mirror, answers, countdown, h.clock, chooser, zerolog.New(io.Discard))
	p.Attach(context.Background())
	return h, answers
}

func TestParticipantBindsLiveQuestionOnRefresh(t *testing.T) {
	h, answers := newParticipantHarness(t, nil)
	snap := h.fixture.snapshot(quiz.StatusInProgress, 0, h.clock.Now(), 10)
	h.serve(snap)

	require.NoError(t, h.syncer.refresh(context.Background(), "initial"))

	assert.Equal(t, snap.Questions[0].ID, h.mirror.LastSeenQuestion())
	assert.Equal(t, AnswerUnanswered, answers.State())
	// The bound question accepts a submission right away.
	h.gw.submit = acceptSubmit(gateway.SubmitResult{IsCorrect: true})
	require.NoError(t, answers.Submit(context.Background(), 0, 5))
}

func TestParticipantChooserSubmitsSelection(t *testing.T) {
	chosen := make(chan quiz.Question, 1)
	h, answers := newParticipantHarness(t, func(q quiz.Question) int {
		chosen <- q
		return 2
	})
	h.gw.submit = acceptSubmit(gateway.SubmitResult{Points: 80})
	snap := h.fixture.snapshot(quiz.StatusInProgress, 1, h.clock.Now(), 10)
	h.serve(snap)

	require.NoError(t, h.syncer.refresh(context.Background(), "push"))

	select {
	case q := <-chosen:
		assert.Equal(t, snap.Questions[1].ID, q.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("chooser was never invoked")
	}

	assert.Eventually(t, func() bool {
		return answers.State() == AnswerAnswered
	}, 2*time.Second, 10*time.Millisecond)

	req, ok := h.gw.lastSubmitted()
	require.True(t, ok)
	assert.Equal(t, 2, req.SelectedOption)
	assert.Equal(t, snap.Questions[1].ID, req.QuestionID)
}

func TestParticipantChooserDeclines(t *testing.T) {
	h, _ := newParticipantHarness(t, func(q quiz.Question) int { return quiz.NoAnswer })
	h.serve(h.fixture.snapshot(quiz.StatusInProgress, 0, h.clock.Now(), 10))

	require.NoError(t, h.syncer.refresh(context.Background(), "push"))

	// Give the answer goroutine a moment; no submission must go out.
	time.Sleep(50 * time.Millisecond)
	submits, _, _, _ := h.gw.counts()
	assert.Equal(t, 0, submits)
}

func TestParticipantIgnoresSearchingRefreshes(t *testing.T) {
	h, answers := newParticipantHarness(t, nil)
	now := h.clock.Now()
	snap := h.fixture.snapshot(quiz.StatusInProgress, -1, now, 10)
	snap.Questions[0].StartedAt = timePtr(now.Add(-time.Minute))
	snap.Questions[0].EndedAt = timePtr(now.Add(-30 * time.Second))
	h.serve(snap)

	require.NoError(t, h.syncer.refresh(context.Background(), "push"))

	assert.ErrorIs(t, answers.Submit(context.Background(), 0, 5), ErrNoQuestionBound)
}

func TestQuestionDeadlineFallsBackToTimeLimit(t *testing.T) {
	now := time.Now()
	q := quiz.Question{TimeLimitSeconds: 15, StartedAt: timePtr(now)}

	deadline, ok := questionDeadline(q)
	require.True(t, ok)
	assert.Equal(t, now.Add(15*time.Second), deadline)

	end := now.Add(9 * time.Second)
	q.EndedAt = &end
	deadline, _ = questionDeadline(q)
	assert.Equal(t, end, deadline)

	_, ok = questionDeadline(quiz.Question{TimeLimitSeconds: 15})
	assert.False(t, ok)
}
