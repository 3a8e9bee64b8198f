package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-session/internal/gateway"
	"github.com/gokatarajesh/quiz-session/internal/quiz"
	"github.com/gokatarajesh/quiz-session/internal/rejoinstore"
)

// Rejoiner rebuilds a participant's place in a session. There is no
// separate rejoin state anywhere: resolving the handle yields a session,
// the first snapshot populates the mirror, and the view machine places the
// participant. Mid-question sessions land directly in quiz_active,
// completed ones in results.
type Rejoiner struct {
	gw     gateway.Gateway
	store  rejoinstore.Store
	logger zerolog.Logger
}

// NewRejoiner creates a rejoin handler backed by a handle store.
func NewRejoiner(gw gateway.Gateway, store rejoinstore.Store, logger zerolog.Logger) *Rejoiner {
	return &Rejoiner{
		gw:     gw,
		store:  store,
		logger: logger.With().Str("component", "rejoiner").Logger(),
	}
}

// Remember persists the handle so the next process can pick the session up.
func (r *Rejoiner) Remember(ctx context.Context, sess quiz.Session, userID uuid.UUID) {
	if r.store == nil {
		return
	}
	handle := rejoinstore.Handle{
		JoinCode:  sess.JoinCode,
		UserID:    userID,
		SessionID: sess.ID,
		SavedAt:   time.Now(),
	}
	if err := r.store.Save(ctx, handle); err != nil {
		r.logger.Warn().Err(err).Msg("failed to persist rejoin handle")
	}
}

// Recall returns the remembered handle for the user, if any.
func (r *Rejoiner) Recall(ctx context.Context, userID uuid.UUID) (gateway.RejoinHandle, bool) {
	if r.store == nil {
		return gateway.RejoinHandle{}, false
	}
	handle, err := r.store.Load(ctx, userID)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to load rejoin handle")
		return gateway.RejoinHandle{}, false
	}
	if handle == nil {
		return gateway.RejoinHandle{}, false
	}
	return gateway.RejoinHandle{JoinCode: handle.JoinCode, UserID: handle.UserID}, true
}

// Forget drops the remembered handle, e.g. after the session disappeared.
func (r *Rejoiner) Forget(ctx context.Context, userID uuid.UUID) {
	if r.store == nil {
		return
	}
	if err := r.store.Clear(ctx, userID); err != nil {
		r.logger.Warn().Err(err).Msg("failed to clear rejoin handle")
	}
}

// Rejoin resolves a handle to a live session. A not-found error passes
// through tagged so the caller can fall back to a fresh join or the menu.
func (r *Rejoiner) Rejoin(ctx context.Context, handle gateway.RejoinHandle) (*quiz.Session, error) {
	sess, err := r.gw.RejoinSession(ctx, handle)
	if err != nil {
		if gateway.IsNotFound(err) {
			r.logger.Info().Str("join_code", handle.JoinCode).Msg("remembered session is gone")
			r.Forget(ctx, handle.UserID)
		}
		return nil, fmt.Errorf("rejoin session: %w", err)
	}
	r.logger.Info().
		Str("session_id", sess.ID.String()).
		Str("status", sess.Status).
		Msg("rejoined session")
	return sess, nil
}
