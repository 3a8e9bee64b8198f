package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-session/internal/quiz"
)

// Chooser picks an option index for a question. Returning quiz.NoAnswer
// means "do not answer"; the timeout sentinel goes out when the countdown
// hits zero.
type Chooser func(q quiz.Question) int

// Participant ties the refresh stream to the answer-side components: on
// every question change it rebinds the answer controller, restarts the
// countdown against the server deadline, and (when a chooser is set)
// submits a selection.
type Participant struct {
	syncer    *Syncer
	mirror    *Mirror
	answers   *AnswerController
	countdown *Countdown
	clock     clockwork.Clock
	chooser   Chooser
	logger    zerolog.Logger

	mu        sync.Mutex
	cancelRun context.CancelFunc
}

// NewParticipant wires the answering side of one client.
func NewParticipant(syncer *Syncer, mirror *Mirror, answers *AnswerController, countdown *Countdown, clock clockwork.Clock, chooser Chooser, logger zerolog.Logger) *Participant {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Participant{
		syncer:    syncer,
		mirror:    mirror,
		answers:   answers,
		countdown: countdown,
		clock:     clock,
		chooser:   chooser,
		logger:    logger.With().Str("component", "participant").Logger(),
	}
}

// Attach registers the refresh hook. ctx bounds every countdown and
// submission the participant starts; cancel it to stop all activity.
func (p *Participant) Attach(ctx context.Context) {
	p.syncer.OnRefresh(func(snap *quiz.Snapshot) {
		p.handleRefresh(ctx, snap)
	})
}

func (p *Participant) handleRefresh(ctx context.Context, snap *quiz.Snapshot) {
	res := Resolve(snap, p.clock.Now())
	if res.State != ResolveActive {
		return
	}
	q := *res.Question

	if !p.mirror.ObserveQuestion(q.ID) {
		// Same question as before; keep the running countdown, but refresh
		// the bound deadline fields.
		p.answers.BindQuestion(q)
		return
	}

	p.answers.BindQuestion(q)
	p.logger.Info().
		Str("question_id", q.ID.String()).
		Int("index", q.Index).
		Msg("question is live")

	p.restartCountdown(ctx, q)

	if p.chooser != nil {
		go p.answer(ctx, q)
	}
}

// restartCountdown cancels the countdown of the previous question and runs
// a fresh one against the new absolute deadline.
func (p *Participant) restartCountdown(ctx context.Context, q quiz.Question) {
	deadline, ok := questionDeadline(q)
	if !ok {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if p.cancelRun != nil {
		p.cancelRun()
	}
	p.cancelRun = cancel
	p.mu.Unlock()

	go func() {
		// The zero signal names the question it was armed for; if the
		// session has moved on by the time it fires, the controller drops it.
		err := p.countdown.Run(runCtx, deadline, nil, func() {
			if err := p.answers.SubmitTimeout(runCtx, q.ID); err != nil {
				p.logger.Warn().Err(err).Msg("timeout submission failed")
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Warn().Err(err).Msg("countdown stopped")
		}
	}()
}

func (p *Participant) answer(ctx context.Context, q quiz.Question) {
	selection := p.chooser(q)
	if selection == quiz.NoAnswer {
		return
	}
	remaining := Remaining(mustDeadline(q), p.clock.Now())
	err := p.answers.Submit(ctx, selection, remaining)
	switch {
	case err == nil, errors.Is(err, ErrAlreadySubmitted), errors.Is(err, ErrSubmissionInFlight):
	case errors.Is(err, ErrTimeExpired):
		p.logger.Debug().Str("question_id", q.ID.String()).Msg("chose too late, leaving it to the timeout path")
	default:
		p.logger.Warn().Err(err).Str("question_id", q.ID.String()).Msg("submission failed, retry available")
	}
}

// questionDeadline resolves the absolute end instant of a question: the
// server-assigned end when present, otherwise start plus the time limit.
func questionDeadline(q quiz.Question) (time.Time, bool) {
	if q.EndedAt != nil {
		return *q.EndedAt, true
	}
	if q.StartedAt != nil && q.TimeLimitSeconds > 0 {
		return q.StartedAt.Add(time.Duration(q.TimeLimitSeconds) * time.Second), true
	}
	return time.Time{}, false
}

func mustDeadline(q quiz.Question) time.Time {
	deadline, _ := questionDeadline(q)
	return deadline
}
