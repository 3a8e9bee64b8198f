package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-session/internal/config"
	"github.com/gokatarajesh/quiz-session/internal/gateway"
	"github.com/gokatarajesh/quiz-session/internal/logging"
	"github.com/gokatarajesh/quiz-session/internal/metrics"
	"github.com/gokatarajesh/quiz-session/internal/quiz"
	"github.com/gokatarajesh/quiz-session/internal/rejoinstore"
	"github.com/gokatarajesh/quiz-session/internal/session"
)

// Application aggregates shared infrastructure for one client process.
type Application struct {
	cfg    *config.App
	logger zerolog.Logger
	clock  clockwork.Clock

	gw         *gateway.HTTPGateway
	subscriber *gateway.Subscriber
	store      rejoinstore.Store
	redis      *redis.Client
	metrics    *metrics.Metrics
	metricsSrv *http.Server
}

// New bootstraps logger, gateway, rejoin store and metrics.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	clock := clockwork.NewRealClock()

	gw := gateway.NewHTTPGateway(gateway.HTTPOptions{
		BaseURL:     cfg.Backend.BaseURL,
		AccessToken: cfg.Backend.AccessToken,
		HTTPClient:  &http.Client{Timeout: cfg.Backend.HTTPTimeout},
		Clock:       clock,
	}, logger)

	eventsURL := cfg.Backend.EventsURL
	if eventsURL == "" {
		eventsURL = strings.Replace(cfg.Backend.BaseURL, "http", "ws", 1)
	}
	subscriber := gateway.NewSubscriber(eventsURL, cfg.Backend.AccessToken, clock, logger)

	app := &Application{
		cfg:        cfg,
		logger:     logger,
		clock:      clock,
		gw:         gw,
		subscriber: subscriber,
	}

	if cfg.Redis.Addr != "" {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		app.store = rejoinstore.NewRedisStore(app.redis, cfg.Redis.TTL, logger)
	} else {
		app.store = rejoinstore.NewMemoryStore()
		logger.Info().Msg("no REDIS_ADDR configured; rejoin handles kept in memory only")
	}

	if cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		app.metrics = metrics.New(registry)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		app.metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	}

	return app, nil
}

// UserID extracts the participant identity from the configured access
// token's subject claim.
func (a *Application) UserID() (uuid.UUID, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(a.cfg.Backend.AccessToken, &claims); err != nil {
		return uuid.Nil, fmt.Errorf("parse access token: %w", err)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("token subject is not a user id: %w", err)
	}
	return userID, nil
}

// RunPlayer joins (or rejoins) a session as a playing participant and
// auto-plays until the session completes or a terminal condition fires.
func (a *Application) RunPlayer(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	a.startMetrics(ctx)
	defer a.close()

	userID, err := a.UserID()
	if err != nil {
		return err
	}
	rejoiner := session.NewRejoiner(a.gw, a.store, a.logger)

	var sess *quiz.Session
	if handle, ok := rejoiner.Recall(ctx, userID); ok {
		sess, err = rejoiner.Rejoin(ctx, handle)
		if err != nil && !gateway.IsNotFound(err) {
			return err
		}
	}
	if sess == nil {
		// No remembered handle; the backend may still know about us.
		sess = a.recoverActiveSession(ctx, userID, rejoiner)
	}
	if sess == nil {
		if a.cfg.Client.JoinCode == "" {
			return fmt.Errorf("no remembered session and JOIN_CODE is empty")
		}
		sess, err = a.gw.JoinByCode(ctx, a.cfg.Client.JoinCode, a.cfg.Client.DisplayName)
		if err != nil {
			return fmt.Errorf("join session: %w", err)
		}
		rejoiner.Remember(ctx, *sess, userID)
		a.logger.Info().Str("join_code", sess.JoinCode).Msg("joined session")
	}

	chooser := func(q quiz.Question) int {
		return rand.Intn(len(q.Options))
	}
	return a.runSession(ctx, sess, userID, rejoiner, chooser, nil)
}

// RunHost creates and runs a session as host: starts it after the
// configured delay, then advances automatically or on stdin input.
func (a *Application) RunHost(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	a.startMetrics(ctx)
	defer a.close()

	userID, err := a.UserID()
	if err != nil {
		return err
	}
	rejoiner := session.NewRejoiner(a.gw, a.store, a.logger)

	hostRole := quiz.HostRoleParticipant
	if a.cfg.Host.AsMediator {
		hostRole = quiz.HostRoleMediator
	}
	sess, err := a.gw.CreateSession(ctx, gateway.CreateRequest{
		HostRole:          hostRole,
		AdvanceMode:       a.cfg.Host.AdvanceMode,
		QuizMode:          a.cfg.Host.QuizMode,
		QuestionTimeLimit: a.cfg.Host.QuestionTimeLimit,
		AllowLateJoin:     a.cfg.Host.AllowLateJoin,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	rejoiner.Remember(ctx, *sess, userID)
	a.logger.Info().
		Str("session_id", sess.ID.String()).
		Str("join_code", sess.JoinCode).
		Msg("session created, waiting for players")

	go a.startAfterDelay(ctx, sess.ID)

	var chooser session.Chooser
	if !a.cfg.Host.AsMediator {
		chooser = func(q quiz.Question) int {
			return rand.Intn(len(q.Options))
		}
	}
	return a.runSession(ctx, sess, userID, rejoiner, chooser, a.hostControls)
}

// runSession wires mirror, view machine, controllers, subscription and sync
// loop for one session and blocks until it ends.
func (a *Application) runSession(ctx context.Context, sess *quiz.Session, userID uuid.UUID, rejoiner *session.Rejoiner, chooser session.Chooser, extra func(ctx context.Context, advance *session.AdvanceController, view *session.ViewMachine)) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	mirror := session.NewMirror()

	var syncer *session.Syncer
	requestRefresh := func(reason string) {
		if syncer != nil {
			syncer.RequestRefresh(reason)
		}
	}

	answers := session.NewAnswerController(a.gw, mirror, a.clock, a.metrics, requestRefresh, session.AnswerOptions{
		UserID:      userID,
		SettleDelay: a.cfg.Client.SettleDelay,
	}, a.logger)

	view := session.NewViewMachine(answers.ClearGuards, a.logger)
	syncer = session.NewSyncer(a.gw, mirror, view, a.clock, a.metrics, session.SyncerOptions{
		UserID:           userID,
		SessionID:        sess.ID,
		PollInterval:     a.cfg.Client.PollInterval,
		StallTimeout:     a.cfg.Client.StallTimeout,
		SessionGoneDelay: a.cfg.Client.SessionGoneDelay,
	}, a.logger)

	countdown := session.NewCountdown(a.clock, a.logger)
	participant := session.NewParticipant(syncer, mirror, answers, countdown, a.clock, chooser, a.logger)
	participant.Attach(runCtx)

	go func() {
		if err := a.subscriber.Run(runCtx, sess.ID, syncer.HandleChange); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn().Err(err).Msg("change subscription stopped")
		}
	}()

	advance := session.NewAdvanceController(a.gw, mirror, a.clock, a.metrics, requestRefresh, answers.ClearGuards, session.AdvanceOptions{
		UserID:       userID,
		PollInterval: a.cfg.Client.PollInterval,
	}, a.logger)
	if sess.HostUserID == userID {
		go func() {
			if err := advance.RunAutoLoop(runCtx, view.Current); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Msg("auto advance loop stopped")
			}
		}()
	}
	if extra != nil {
		go extra(runCtx, advance, view)
	}

	// Completion is not a sync-loop error; detect it here and wind the
	// session down after the results have had a moment on screen.
	completed := make(chan struct{})
	var completeOnce sync.Once
	syncer.OnRefresh(func(snap *quiz.Snapshot) {
		if snap.Session.Status == quiz.StatusCompleted {
			completeOnce.Do(func() { close(completed) })
		}
	})
	go func() {
		select {
		case <-runCtx.Done():
		case <-completed:
			select {
			case <-runCtx.Done():
			case <-a.clock.After(a.cfg.Client.SessionGoneDelay):
				cancel()
			}
		}
	}()

	err := syncer.Run(runCtx)
	switch {
	case errors.Is(err, session.ErrSessionGone):
		rejoiner.Forget(ctx, userID)
		return err
	case errors.Is(err, context.Canceled):
		select {
		case <-completed:
			return a.finishSession(ctx, sess.ID, userID, rejoiner)
		default:
			a.logger.Info().Msg("shutting down")
			return nil
		}
	default:
		return err
	}
}

// finishSession leaves a completed session and drops the rejoin handle; there
// is nothing to come back to.
func (a *Application) finishSession(ctx context.Context, sessionID, userID uuid.UUID, rejoiner *session.Rejoiner) error {
	if err := a.gw.LeaveSession(ctx, sessionID, userID); err != nil {
		a.logger.Warn().Err(err).Msg("leave session failed")
	}
	rejoiner.Forget(ctx, userID)
	a.logger.Info().Str("session_id", sessionID.String()).Msg("session complete")
	return nil
}

// recoverActiveSession asks the backend which sessions still count the user
// as a member and picks the first live one. Covers the case where the local
// handle store was lost but the membership survived.
func (a *Application) recoverActiveSession(ctx context.Context, userID uuid.UUID, rejoiner *session.Rejoiner) *quiz.Session {
	sessions, err := a.gw.ActiveSessionsFor(ctx, userID)
	if err != nil {
		a.logger.Warn().Err(err).Msg("active session lookup failed")
		return nil
	}
	for i := range sessions {
		if sessions[i].Status == quiz.StatusCompleted {
			continue
		}
		sess := sessions[i]
		rejoiner.Remember(ctx, sess, userID)
		a.logger.Info().
			Str("session_id", sess.ID.String()).
			Str("status", sess.Status).
			Msg("recovered active session membership")
		return &sess
	}
	return nil
}

// startAfterDelay gives joiners a window before the quiz begins.
func (a *Application) startAfterDelay(ctx context.Context, sessionID uuid.UUID) {
	select {
	case <-ctx.Done():
		return
	case <-a.clock.After(a.cfg.Host.StartDelay):
	}
	if _, err := a.gw.StartSession(ctx, sessionID, a.cfg.Host.QuizMode); err != nil {
		a.logger.Error().Err(err).Msg("start session failed")
		return
	}
	a.logger.Info().Str("session_id", sessionID.String()).Msg("session started")
}

// hostControls advances on every stdin line while in manual mode.
func (a *Application) hostControls(ctx context.Context, advance *session.AdvanceController, view *session.ViewMachine) {
	if a.cfg.Host.AdvanceMode != quiz.AdvanceManual {
		return
	}
	lines := make(chan struct{})
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := os.Stdin.Read(buf); err != nil {
				close(lines)
				return
			}
			select {
			case lines <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-lines:
			if !ok {
				return
			}
			if view.Current() != session.ViewQuizActive {
				continue
			}
			if err := advance.Advance(ctx); err != nil {
				a.logger.Error().Err(err).Msg("manual advance failed; press enter to retry")
			}
		}
	}
}

func (a *Application) startMetrics(ctx context.Context) {
	if a.metricsSrv == nil {
		return
	}
	go func() {
		a.logger.Info().Str("addr", a.metricsSrv.Addr).Msg("metrics listening")
		if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = a.metricsSrv.Shutdown(shutdownCtx)
	}()
}

func (a *Application) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("redis shutdown error")
		}
	}
}
