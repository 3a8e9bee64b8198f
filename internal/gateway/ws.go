package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	readDeadline     = 60 * time.Second
	reconnectBackoff = 2 * time.Second
	maxBackoff       = 30 * time.Second
)

// Subscriber maintains a change-notification channel for one session.
// Delivery is at-least-once and not guaranteed prompt; every notification
// only triggers the callback, its payload is never trusted as state.
type Subscriber struct {
	eventsURL   string
	accessToken string
	clock       clockwork.Clock
	logger      zerolog.Logger
	dialer      *websocket.Dialer
}

// changeEvent is the only shape the backend pushes. Everything beyond the
// type tag is ignored on purpose.
type changeEvent struct {
	Type string `json:"type"`
}

// NewSubscriber creates a push-notification subscriber.
func NewSubscriber(eventsURL, accessToken string, clock clockwork.Clock, logger zerolog.Logger) *Subscriber {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Subscriber{
		eventsURL:   eventsURL,
		accessToken: accessToken,
		clock:       clock,
		logger:      logger.With().Str("component", "change_subscriber").Logger(),
		dialer:      websocket.DefaultDialer,
	}
}

// Run connects and dispatches notifications until the context is cancelled.
// Dropped connections are re-dialed with backoff; missed notifications are
// harmless because the poll loop covers the gap.
func (s *Subscriber) Run(ctx context.Context, sessionID uuid.UUID, onChange func()) error {
	backoff := reconnectBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.listen(ctx, sessionID, onChange)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn().Err(err).Dur("backoff", backoff).Msg("subscription dropped, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *Subscriber) listen(ctx context.Context, sessionID uuid.UUID, onChange func()) error {
	url := fmt.Sprintf("%s/v1/sessions/%s/events", s.eventsURL, sessionID)
	header := http.Header{}
	if s.accessToken != "" {
		header.Set("Authorization", "Bearer "+s.accessToken)
	}

	conn, _, err := s.dialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("dial events: %w", err)
	}
	defer conn.Close()

	// Unblock the read loop when the context dies.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetReadDeadline(s.clock.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(s.clock.Now().Add(readDeadline))
		return nil
	})

	s.logger.Info().Str("session_id", sessionID.String()).Msg("subscribed to session events")

	for {
		var evt changeEvent
		if err := conn.ReadJSON(&evt); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return fmt.Errorf("read event: %w", err)
			}
			return err
		}
		conn.SetReadDeadline(s.clock.Now().Add(readDeadline))
		onChange()
	}
}
