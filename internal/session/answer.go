package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-session/internal/gateway"
	"github.com/gokatarajesh/quiz-session/internal/metrics"
	"github.com/gokatarajesh/quiz-session/internal/quiz"
)

// Answer lifecycle states, per question.
const (
	AnswerUnanswered = "unanswered"
	AnswerSubmitting = "submitting"
	AnswerAnswered   = "answered"
)

var (
	ErrNoQuestionBound    = errors.New("no question bound")
	ErrNotPlaying         = errors.New("caller is not a playing participant")
	ErrAlreadySubmitted   = errors.New("answer already submitted for this question")
	ErrSubmissionInFlight = errors.New("submission already in flight")
	ErrTimeExpired        = errors.New("question time has expired")
	ErrInvalidOption      = errors.New("selected option out of range")
)

// RefreshFunc requests a mirror refresh; the reason tags the trigger.
type RefreshFunc func(reason string)

// AnswerController enforces the exactly-once-per-question submission
// discipline. The unanswered state plus the per-question timeout latch is
// the single authoritative gate; no UI flag is trusted, because delayed
// event delivery can bypass any of those.
type AnswerController struct {
	gw             gateway.Gateway
	mirror         *Mirror
	clock          clockwork.Clock
	metrics        *metrics.Metrics
	requestRefresh RefreshFunc
	settleDelay    time.Duration
	userID         uuid.UUID
	logger         zerolog.Logger

	mu          sync.Mutex
	question    quiz.Question
	bound       bool
	state       string
	timeoutSent map[uuid.UUID]bool
	lastResult  *gateway.SubmitResult
}

// AnswerOptions configures the controller.
type AnswerOptions struct {
	UserID uuid.UUID
	// SettleDelay postpones the post-submit refresh so backend-derived
	// aggregates settle before we re-read them.
	SettleDelay time.Duration
}

// NewAnswerController creates the per-session submission controller.
func NewAnswerController(gw gateway.Gateway, mirror *Mirror, clock clockwork.Clock, m *metrics.Metrics, refresh RefreshFunc, opts AnswerOptions, logger zerolog.Logger) *AnswerController {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 1500 * time.Millisecond
	}
	return &AnswerController{
		gw:             gw,
		mirror:         mirror,
		clock:          clock,
		metrics:        m,
		requestRefresh: refresh,
		settleDelay:    opts.SettleDelay,
		userID:         opts.UserID,
		logger:         logger.With().Str("component", "answer_controller").Logger(),
		state:          AnswerUnanswered,
		timeoutSent:    map[uuid.UUID]bool{},
	}
}

// BindQuestion points the controller at the live question. When the
// question changed since the last bind, the local machine resets to
// unanswered; re-binding the same question keeps all state.
func (c *AnswerController) BindQuestion(q quiz.Question) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bound && c.question.ID == q.ID {
		c.question = q // pick up refreshed deadline fields
		return false
	}
	c.question = q
	c.bound = true
	c.state = AnswerUnanswered
	c.lastResult = nil
	return true
}

// State returns the submission state for the bound question.
func (c *AnswerController) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastResult returns local feedback from the last accepted submission.
// It is nil after a conflict, where the true outcome is unknown until the
// next refresh.
func (c *AnswerController) LastResult() *gateway.SubmitResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResult
}

// ClearGuards wipes all per-question state. Invoked when the view machine
// enters quiz_active, when it reverts to a lobby, and after an advance.
func (c *AnswerController) ClearGuards() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bound = false
	c.question = quiz.Question{}
	c.state = AnswerUnanswered
	c.lastResult = nil
	c.timeoutSent = map[uuid.UUID]bool{}
}

// Submit records the user's selection. Allowed only while unanswered, for a
// playing participant, with time still remaining. A conflict from the
// gateway (answer already recorded) counts as success for view purposes;
// the true outcome is reconciled by the follow-up refresh.
func (c *AnswerController) Submit(ctx context.Context, selection, remaining int) error {
	c.mu.Lock()
	if !c.bound {
		c.mu.Unlock()
		return ErrNoQuestionBound
	}
	switch c.state {
	case AnswerSubmitting:
		c.mu.Unlock()
		return ErrSubmissionInFlight
	case AnswerAnswered:
		c.mu.Unlock()
		return ErrAlreadySubmitted
	}
	if remaining <= 0 {
		c.mu.Unlock()
		return ErrTimeExpired
	}
	q := c.question
	if selection < 0 || selection >= len(q.Options) {
		c.mu.Unlock()
		return ErrInvalidOption
	}
	// Transition inside the same critical section as the gate, so a second
	// caller racing past the unanswered check is impossible.
	c.state = AnswerSubmitting
	c.mu.Unlock()

	if player, ok := c.mirror.PlayerByUser(c.userID); !ok || !player.IsPlaying {
		c.setState(AnswerUnanswered)
		return ErrNotPlaying
	}
	sess, ok := c.mirror.Session()
	if !ok {
		c.setState(AnswerUnanswered)
		return ErrNoQuestionBound
	}

	result, err := c.gw.SubmitAnswer(ctx, gateway.SubmitRequest{
		SessionID:      sess.ID,
		QuestionID:     q.ID,
		SelectedOption: selection,
		ElapsedSeconds: c.elapsedSeconds(q, remaining),
	})
	switch {
	case err == nil:
		c.finish(result)
		c.metrics.Submit("accepted")
		c.logger.Info().
			Str("question_id", q.ID.String()).
			Int("selection", selection).
			Bool("correct", result.IsCorrect).
			Msg("answer submitted")
		c.scheduleSettledRefresh(ctx)
		return nil
	case gateway.IsConflict(err):
		// Already recorded server-side; not an error from the user's
		// perspective. Correctness stays unknown until the refresh lands.
		c.finish(nil)
		c.metrics.Submit("conflict")
		c.logger.Info().Str("question_id", q.ID.String()).Msg("answer already recorded")
		if c.requestRefresh != nil {
			c.requestRefresh("submit_conflict")
		}
		return nil
	default:
		c.setState(AnswerUnanswered)
		c.metrics.Submit("failed")
		c.logger.Warn().Err(err).Str("question_id", q.ID.String()).Msg("answer submission failed")
		return err
	}
}

// SubmitTimeout sends the no-answer sentinel when the countdown for
// questionID hits zero and the participant never answered. The zero signal
// can be delivered late, after the session already moved to the next
// question, so it carries the question it was armed for and is dropped when
// that no longer matches the bound one. The per-question latch guarantees a
// single send no matter how many times the zero state is observed.
func (c *AnswerController) SubmitTimeout(ctx context.Context, questionID uuid.UUID) error {
	c.mu.Lock()
	if !c.bound || c.state != AnswerUnanswered || c.question.ID != questionID {
		c.mu.Unlock()
		return nil
	}
	q := c.question
	if c.timeoutSent[q.ID] {
		c.mu.Unlock()
		return nil
	}
	c.timeoutSent[q.ID] = true
	c.state = AnswerSubmitting
	c.mu.Unlock()

	if player, ok := c.mirror.PlayerByUser(c.userID); !ok || !player.IsPlaying {
		c.setState(AnswerUnanswered)
		return nil
	}
	sess, ok := c.mirror.Session()
	if !ok {
		c.setState(AnswerUnanswered)
		return nil
	}

	result, err := c.gw.SubmitAnswer(ctx, gateway.SubmitRequest{
		SessionID:      sess.ID,
		QuestionID:     q.ID,
		SelectedOption: quiz.NoAnswer,
		ElapsedSeconds: q.TimeLimitSeconds,
	})
	switch {
	case err == nil:
		c.finish(result)
		c.metrics.Submit("timeout")
		c.logger.Info().Str("question_id", q.ID.String()).Msg("timeout answer submitted")
		c.scheduleSettledRefresh(ctx)
		return nil
	case gateway.IsConflict(err):
		c.finish(nil)
		c.metrics.Submit("conflict")
		if c.requestRefresh != nil {
			c.requestRefresh("submit_conflict")
		}
		return nil
	default:
		// The latch stays set: a failed timeout submission is not retried,
		// the next refresh reconciles whatever the server recorded.
		c.setState(AnswerUnanswered)
		c.metrics.Submit("timeout_failed")
		c.logger.Warn().Err(err).Str("question_id", q.ID.String()).Msg("timeout submission failed")
		return err
	}
}

func (c *AnswerController) setState(state string) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *AnswerController) finish(result *gateway.SubmitResult) {
	c.mu.Lock()
	c.state = AnswerAnswered
	c.lastResult = result
	c.mu.Unlock()
}

// elapsedSeconds prefers the server-assigned start instant; the remaining
// count is the fallback when the window fields are missing.
func (c *AnswerController) elapsedSeconds(q quiz.Question, remaining int) int {
	if q.StartedAt != nil {
		elapsed := int(c.clock.Now().Sub(*q.StartedAt) / time.Second)
		if elapsed < 0 {
			elapsed = 0
		}
		if q.TimeLimitSeconds > 0 && elapsed > q.TimeLimitSeconds {
			elapsed = q.TimeLimitSeconds
		}
		return elapsed
	}
	elapsed := q.TimeLimitSeconds - remaining
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed
}

// scheduleSettledRefresh requests a refresh after a bounded delay, giving
// backend-derived aggregates time to settle.
func (c *AnswerController) scheduleSettledRefresh(ctx context.Context) {
	if c.requestRefresh == nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
		case <-c.clock.After(c.settleDelay):
			c.requestRefresh("post_submit")
		}
	}()
}
