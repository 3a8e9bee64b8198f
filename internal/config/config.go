package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration for a session client process.
type App struct {
	Name        string `env:"APP_NAME" envDefault:"quiz-session"`
	Env         string `env:"APP_ENV" envDefault:"development"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:""`

	Backend Backend
	Client  Client
	Host    Host
	Redis   Redis
}

// Backend captures how to reach the remote session authority.
type Backend struct {
	BaseURL     string        `env:"BACKEND_BASE_URL,notEmpty"`
	EventsURL   string        `env:"BACKEND_EVENTS_URL" envDefault:""`
	AccessToken string        `env:"ACCESS_TOKEN,notEmpty"`
	HTTPTimeout time.Duration `env:"BACKEND_HTTP_TIMEOUT" envDefault:"8s"`
}

// Client groups sync-loop tuning knobs.
type Client struct {
	DisplayName      string        `env:"DISPLAY_NAME" envDefault:"player"`
	JoinCode         string        `env:"JOIN_CODE" envDefault:""`
	PollInterval     time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`
	StallTimeout     time.Duration `env:"STALL_TIMEOUT" envDefault:"10s"`
	SettleDelay      time.Duration `env:"REFRESH_SETTLE_DELAY" envDefault:"1500ms"`
	SessionGoneDelay time.Duration `env:"SESSION_GONE_DELAY" envDefault:"3s"`
}

// Host groups settings used only by the hosting client.
type Host struct {
	AdvanceMode       string        `env:"HOST_ADVANCE_MODE" envDefault:"auto"`
	QuizMode          string        `env:"HOST_QUIZ_MODE" envDefault:"synchronized"`
	QuestionTimeLimit int           `env:"HOST_QUESTION_TIME_LIMIT" envDefault:"15"`
	AllowLateJoin     bool          `env:"HOST_ALLOW_LATE_JOIN" envDefault:"true"`
	AsMediator        bool          `env:"HOST_AS_MEDIATOR" envDefault:"false"`
	StartDelay        time.Duration `env:"HOST_START_DELAY" envDefault:"10s"`
}

// Redis configures the optional rejoin-handle store.
type Redis struct {
	Addr     string        `env:"REDIS_ADDR" envDefault:""`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	PoolSize int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	TTL      time.Duration `env:"REJOIN_HANDLE_TTL" envDefault:"24h"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
