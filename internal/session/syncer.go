package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-session/internal/gateway"
	"github.com/gokatarajesh/quiz-session/internal/metrics"
	"github.com/gokatarajesh/quiz-session/internal/quiz"
)

var (
	// ErrSessionGone terminates a sync run when the backend no longer knows
	// the session. There is nothing to recover; the caller returns to menu.
	ErrSessionGone = errors.New("session no longer exists")
	// ErrLoadingStall terminates a sync run when quiz_active persisted with
	// no resolvable question for the whole stall window.
	ErrLoadingStall = errors.New("no resolvable current question")
)

// Syncer owns the mirror's single refresh path. Push notifications, poll
// ticks and on-demand requests all funnel into one loop, so there is never
// more than one refresh in flight and derived state is re-evaluated after
// every mirror change.
type Syncer struct {
	gw        gateway.Gateway
	mirror    *Mirror
	view      *ViewMachine
	clock     clockwork.Clock
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	userID    uuid.UUID
	sessionID uuid.UUID

	pollInterval time.Duration
	stallTimeout time.Duration
	goneDelay    time.Duration

	refreshCh chan string
	onRefresh []func(*quiz.Snapshot)

	endRequested bool
	stallSince   time.Time
}

// SyncerOptions tunes the sync loop.
type SyncerOptions struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
	// PollInterval paces the fallback poll that covers for missed push
	// notifications.
	PollInterval time.Duration
	// StallTimeout bounds how long quiz_active may persist without a
	// resolvable question before aborting to menu.
	StallTimeout time.Duration
	// SessionGoneDelay holds the terminal screen briefly before the abort
	// so the caller can surface the condition.
	SessionGoneDelay time.Duration
}

// NewSyncer creates the refresh owner for one session.
func NewSyncer(gw gateway.Gateway, mirror *Mirror, view *ViewMachine, clock clockwork.Clock, m *metrics.Metrics, opts SyncerOptions, logger zerolog.Logger) *Syncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.StallTimeout <= 0 {
		opts.StallTimeout = 10 * time.Second
	}
	if opts.SessionGoneDelay < 0 {
		opts.SessionGoneDelay = 0
	}
	return &Syncer{
		gw:           gw,
		mirror:       mirror,
		view:         view,
		clock:        clock,
		metrics:      m,
		logger:       logger.With().Str("component", "syncer").Logger(),
		userID:       opts.UserID,
		sessionID:    opts.SessionID,
		pollInterval: opts.PollInterval,
		stallTimeout: opts.StallTimeout,
		goneDelay:    opts.SessionGoneDelay,
		refreshCh:    make(chan string, 8),
	}
}

// OnRefresh registers a hook invoked inside the sync loop after every
// successful refresh. Register before Run.
func (s *Syncer) OnRefresh(fn func(*quiz.Snapshot)) {
	s.onRefresh = append(s.onRefresh, fn)
}

// RequestRefresh queues an on-demand refresh. Safe from any goroutine; a
// full queue drops the request because a refresh is already pending.
func (s *Syncer) RequestRefresh(trigger string) {
	select {
	case s.refreshCh <- trigger:
	default:
	}
}

// HandleChange is the push-notification callback: the notification only
// triggers a snapshot fetch, its payload is never trusted to carry state.
func (s *Syncer) HandleChange() {
	s.RequestRefresh("push")
}

// Run fetches an initial snapshot and then serves poll ticks and queued
// refresh requests until the context is cancelled or a terminal condition
// (ErrSessionGone, ErrLoadingStall) fires.
func (s *Syncer) Run(ctx context.Context) error {
	if err := s.refresh(ctx, "initial"); err != nil {
		return err
	}

	ticker := s.clock.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if err := s.refresh(ctx, "poll"); err != nil {
				return err
			}
		case trigger := <-s.refreshCh:
			if err := s.refresh(ctx, trigger); err != nil {
				return err
			}
		}
	}
}

// refresh is the only write path into the mirror. Non-terminal fetch
// failures keep the previous snapshot; the next trigger tries again.
func (s *Syncer) refresh(ctx context.Context, trigger string) error {
	snap, err := s.gw.FetchSnapshot(ctx, s.sessionID)
	if err != nil {
		if gateway.IsNotFound(err) {
			return s.abortGone(ctx, err)
		}
		s.metrics.Refresh(trigger, "failed")
		s.logger.Warn().Err(err).Str("trigger", trigger).Msg("snapshot fetch failed")
		return nil
	}
	s.metrics.Refresh(trigger, "ok")

	s.mirror.Replace(snap)
	isHost := snap.Session.HostUserID == s.userID
	s.view.Apply(snap.Session.Status, isHost)

	res := Resolve(snap, s.clock.Now())
	if res.State == ResolveComplete {
		s.maybeEndSession(ctx, snap, isHost)
	}
	if err := s.checkStall(res); err != nil {
		return err
	}

	for _, fn := range s.onRefresh {
		fn(snap)
	}
	return nil
}

// maybeEndSession asks the backend to terminate the session exactly once
// when all questions have ended and the local user hosts. The backend call
// is idempotent, the latch just keeps repeated resolver completions from
// re-issuing it.
func (s *Syncer) maybeEndSession(ctx context.Context, snap *quiz.Snapshot, isHost bool) {
	if !isHost || s.endRequested || snap.Session.Status == quiz.StatusCompleted {
		return
	}
	s.endRequested = true
	if _, err := s.gw.EndSession(ctx, s.sessionID); err != nil {
		s.logger.Warn().Err(err).Msg("end session request failed")
		return
	}
	s.logger.Info().Str("session_id", s.sessionID.String()).Msg("session termination requested")
	s.RequestRefresh("session_end")
}

// checkStall aborts to the menu when quiz_active has had no resolvable
// question for the whole stall window. This is the only unconditional
// timeout in the core: a stall this long almost always means a question
// list the resolver cannot reconcile.
func (s *Syncer) checkStall(res Resolution) error {
	if s.view.Current() != ViewQuizActive || res.State != ResolveSearching {
		s.stallSince = time.Time{}
		return nil
	}

	now := s.clock.Now()
	if s.stallSince.IsZero() {
		s.stallSince = now
		return nil
	}
	if now.Sub(s.stallSince) < s.stallTimeout {
		return nil
	}

	s.metrics.StallAbort()
	s.logger.Error().Dur("stalled_for", now.Sub(s.stallSince)).Msg("loading stall, aborting to menu")
	s.view.ForceMenu()
	s.mirror.Reset()
	return ErrLoadingStall
}

// abortGone handles the one terminal error class with autonomous
// navigation: the session is gone and there is nothing to recover.
func (s *Syncer) abortGone(ctx context.Context, cause error) error {
	s.metrics.Refresh("any", "gone")
	s.logger.Error().Err(cause).Str("session_id", s.sessionID.String()).Msg("session no longer exists")

	if s.goneDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(s.goneDelay):
		}
	}
	s.view.ForceMenu()
	s.mirror.Reset()
	return ErrSessionGone
}
