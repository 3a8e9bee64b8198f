package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-session/internal/quiz"
)

// HTTPGateway talks to the session backend over its REST API.
type HTTPGateway struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	clock       clockwork.Clock
	logger      zerolog.Logger
}

// HTTPOptions configures the gateway client.
type HTTPOptions struct {
	BaseURL     string
	AccessToken string
	HTTPClient  *http.Client
	Clock       clockwork.Clock
}

// NewHTTPGateway creates a REST gateway client.
func NewHTTPGateway(opts HTTPOptions, logger zerolog.Logger) *HTTPGateway {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 8 * time.Second}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &HTTPGateway{
		baseURL:     opts.BaseURL,
		accessToken: opts.AccessToken,
		httpClient:  opts.HTTPClient,
		clock:       opts.Clock,
		logger:      logger.With().Str("component", "http_gateway").Logger(),
	}
}

// errorBody is the backend's standard error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// checkToken rejects an expired bearer token locally before spending a round
// trip. The signature is not verified here; only the backend can do that.
func (g *HTTPGateway) checkToken(op string) error {
	if g.accessToken == "" {
		return nil
	}
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(g.accessToken, &claims); err != nil {
		return NewError(CodeUnauthorized, op, "malformed access token", err)
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(g.clock.Now()) {
		return NewError(CodeUnauthorized, op, "access token expired", nil)
	}
	return nil
}

// do executes one JSON request and decodes the response into out (if non-nil).
func (g *HTTPGateway) do(ctx context.Context, op, method, path string, body, out any) error {
	if err := g.checkToken(op); err != nil {
		return err
	}

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return NewError(CodeInternal, op, "encode request", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return NewError(CodeInternal, op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+g.accessToken)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return NewError(CodeTransient, op, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return g.errorFromStatus(op, resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return NewError(CodeInternal, op, "decode response", err)
		}
	}
	return nil
}

// errorFromStatus maps HTTP status codes onto the tagged taxonomy. Conflict
// detection is structural: status 409, never message sniffing.
func (g *HTTPGateway) errorFromStatus(op string, resp *http.Response) error {
	var body errorBody
	_ = json.NewDecoder(resp.Body).Decode(&body)
	msg := body.Message
	if msg == "" {
		msg = fmt.Sprintf("status %d", resp.StatusCode)
	}

	code := CodeInternal
	switch {
	case resp.StatusCode == http.StatusConflict:
		code = CodeConflict
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		code = CodeNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		code = CodeUnauthorized
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		code = CodeInvalidRequest
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		code = CodeTransient
	}
	return NewError(code, op, msg, nil)
}

// FetchSnapshot implements Gateway.
func (g *HTTPGateway) FetchSnapshot(ctx context.Context, sessionID uuid.UUID) (*quiz.Snapshot, error) {
	var snap quiz.Snapshot
	path := fmt.Sprintf("/v1/sessions/%s/snapshot", sessionID)
	if err := g.do(ctx, "fetch_snapshot", http.MethodGet, path, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SubmitAnswer implements Gateway.
func (g *HTTPGateway) SubmitAnswer(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	var result SubmitResult
	path := fmt.Sprintf("/v1/sessions/%s/answers", req.SessionID)
	if err := g.do(ctx, "submit_answer", http.MethodPost, path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type advanceRequest struct {
	SessionID uuid.UUID `json:"session_id"`
}

// AdvanceToNext implements Gateway via the RPC-style primary path.
func (g *HTTPGateway) AdvanceToNext(ctx context.Context, sessionID uuid.UUID) (*quiz.Session, error) {
	var sess quiz.Session
	if err := g.do(ctx, "advance_to_next", http.MethodPost, "/v1/rpc/advance_question", advanceRequest{SessionID: sessionID}, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// AdvanceFallback implements Gateway via the resource-style alternate path.
func (g *HTTPGateway) AdvanceFallback(ctx context.Context, sessionID uuid.UUID) (*quiz.Session, error) {
	var sess quiz.Session
	path := fmt.Sprintf("/v1/sessions/%s/advance", sessionID)
	if err := g.do(ctx, "advance_fallback", http.MethodPost, path, nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

type startRequest struct {
	QuizMode string `json:"quiz_mode"`
}

// StartSession implements Gateway.
func (g *HTTPGateway) StartSession(ctx context.Context, sessionID uuid.UUID, quizMode string) (*quiz.Session, error) {
	var sess quiz.Session
	path := fmt.Sprintf("/v1/sessions/%s/start", sessionID)
	if err := g.do(ctx, "start_session", http.MethodPost, path, startRequest{QuizMode: quizMode}, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// EndSession implements Gateway.
func (g *HTTPGateway) EndSession(ctx context.Context, sessionID uuid.UUID) (*quiz.Session, error) {
	var sess quiz.Session
	path := fmt.Sprintf("/v1/sessions/%s/end", sessionID)
	if err := g.do(ctx, "end_session", http.MethodPost, path, nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// CreateSession implements Gateway.
func (g *HTTPGateway) CreateSession(ctx context.Context, req CreateRequest) (*quiz.Session, error) {
	var sess quiz.Session
	if err := g.do(ctx, "create_session", http.MethodPost, "/v1/sessions", req, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

type joinRequest struct {
	JoinCode    string `json:"join_code"`
	DisplayName string `json:"display_name"`
}

// JoinByCode implements Gateway.
func (g *HTTPGateway) JoinByCode(ctx context.Context, joinCode, displayName string) (*quiz.Session, error) {
	var sess quiz.Session
	if err := g.do(ctx, "join_by_code", http.MethodPost, "/v1/sessions/join", joinRequest{JoinCode: joinCode, DisplayName: displayName}, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// RejoinSession implements Gateway.
func (g *HTTPGateway) RejoinSession(ctx context.Context, handle RejoinHandle) (*quiz.Session, error) {
	var sess quiz.Session
	if err := g.do(ctx, "rejoin_session", http.MethodPost, "/v1/sessions/rejoin", handle, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

type leaveRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

// LeaveSession implements Gateway.
func (g *HTTPGateway) LeaveSession(ctx context.Context, sessionID, userID uuid.UUID) error {
	path := fmt.Sprintf("/v1/sessions/%s/leave", sessionID)
	return g.do(ctx, "leave_session", http.MethodPost, path, leaveRequest{UserID: userID}, nil)
}

// ActiveSessionsFor implements Gateway.
func (g *HTTPGateway) ActiveSessionsFor(ctx context.Context, userID uuid.UUID) ([]quiz.Session, error) {
	var sessions []quiz.Session
	path := fmt.Sprintf("/v1/participants/%s/sessions", userID)
	if err := g.do(ctx, "active_sessions_for", http.MethodGet, path, nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}
