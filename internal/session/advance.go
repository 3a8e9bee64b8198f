package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-session/internal/gateway"
	"github.com/gokatarajesh/quiz-session/internal/metrics"
	"github.com/gokatarajesh/quiz-session/internal/quiz"
)

var (
	ErrNotHost   = errors.New("only the host can advance the session")
	ErrNoSession = errors.New("no session in mirror")
)

// AdvanceController drives host-side question progression. The primary call
// path has a known class of transient failures, so a structurally different
// fallback path is tried exactly once before the error is surfaced; neither
// path is auto-retried, to avoid duplicate-advance races.
type AdvanceController struct {
	gw             gateway.Gateway
	mirror         *Mirror
	clock          clockwork.Clock
	metrics        *metrics.Metrics
	requestRefresh RefreshFunc
	clearGuards    func()
	userID         uuid.UUID
	pollInterval   time.Duration
	logger         zerolog.Logger

	mu               sync.Mutex
	lastAutoAdvanced uuid.UUID
}

// AdvanceOptions configures the controller.
type AdvanceOptions struct {
	UserID uuid.UUID
	// PollInterval paces the auto-advance detection loop. It is longer than
	// the 1 Hz countdown tick and independent of push delivery, which is
	// not guaranteed timely enough to drive advancement deadlines.
	PollInterval time.Duration
}

// NewAdvanceController creates the host progression controller.
func NewAdvanceController(gw gateway.Gateway, mirror *Mirror, clock clockwork.Clock, m *metrics.Metrics, refresh RefreshFunc, clearGuards func(), opts AdvanceOptions, logger zerolog.Logger) *AdvanceController {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &AdvanceController{
		gw:             gw,
		mirror:         mirror,
		clock:          clock,
		metrics:        m,
		requestRefresh: refresh,
		clearGuards:    clearGuards,
		userID:         opts.UserID,
		pollInterval:   opts.PollInterval,
		logger:         logger.With().Str("component", "advance_controller").Logger(),
	}
}

// Advance moves the session to the next question: primary path first, the
// fallback once on failure. On success the per-question guards reset so the
// next question starts clean, and a refresh reconciles the mirror.
func (a *AdvanceController) Advance(ctx context.Context) error {
	sess, ok := a.mirror.Session()
	if !ok {
		return ErrNoSession
	}
	if sess.HostUserID != a.userID {
		return ErrNotHost
	}

	_, err := a.gw.AdvanceToNext(ctx, sess.ID)
	if err != nil {
		a.metrics.Advance("primary", "failed")
		a.logger.Warn().Err(err).Msg("primary advance failed, trying fallback")

		if _, ferr := a.gw.AdvanceFallback(ctx, sess.ID); ferr != nil {
			a.metrics.Advance("fallback", "failed")
			return fmt.Errorf("advance: primary: %v; fallback: %w", err, ferr)
		}
		a.metrics.Advance("fallback", "ok")
	} else {
		a.metrics.Advance("primary", "ok")
	}

	if a.clearGuards != nil {
		a.clearGuards()
	}
	if a.requestRefresh != nil {
		a.requestRefresh("advance")
	}
	a.logger.Info().Str("session_id", sess.ID.String()).Msg("session advanced")
	return nil
}

// RunAutoLoop polls the mirror and advances past questions whose windows
// have closed. Only effective while the view is quiz_active, advance mode
// is auto, and the local user hosts the session. Blocks until the context
// is cancelled.
func (a *AdvanceController) RunAutoLoop(ctx context.Context, view func() string) error {
	ticker := a.clock.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			a.autoTick(ctx, view)
		}
	}
}

func (a *AdvanceController) autoTick(ctx context.Context, view func() string) {
	if view() != ViewQuizActive {
		return
	}
	snap := a.mirror.Snapshot()
	if snap == nil {
		return
	}
	sess := snap.Session
	if sess.AdvanceMode != quiz.AdvanceAuto || sess.HostUserID != a.userID || sess.Status != quiz.StatusInProgress {
		return
	}

	now := a.clock.Now()
	if res := Resolve(snap, now); res.State != ResolveSearching {
		// A live question or full completion; nothing for the loop to do.
		return
	}

	expired := latestEndedQuestion(snap.Questions, now)
	if expired == nil {
		return
	}

	// One attempt per expired question. A failed attempt is not retried by
	// the loop; the host recovers with a manual advance.
	a.mu.Lock()
	if a.lastAutoAdvanced == expired.ID {
		a.mu.Unlock()
		return
	}
	a.lastAutoAdvanced = expired.ID
	a.mu.Unlock()

	if err := a.Advance(ctx); err != nil {
		a.logger.Error().Err(err).
			Str("question_id", expired.ID.String()).
			Msg("auto advance failed; waiting for manual advance")
	}
}

// latestEndedQuestion returns the highest-index question whose window opened
// and has closed, i.e. the question the session should move past.
func latestEndedQuestion(questions []quiz.Question, now time.Time) *quiz.Question {
	var found *quiz.Question
	for i := range questions {
		q := &questions[i]
		if q.StartedAt == nil || !q.Ended(now) {
			continue
		}
		if found == nil || q.Index > found.Index {
			found = q
		}
	}
	return found
}
