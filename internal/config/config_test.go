package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "http://localhost:8080")
	t.Setenv("ACCESS_TOKEN", "test-token")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "quiz-session", cfg.Name)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 2*time.Second, cfg.Client.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Client.StallTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.Client.SettleDelay)
	assert.Equal(t, "auto", cfg.Host.AdvanceMode)
	assert.Equal(t, "synchronized", cfg.Host.QuizMode)
	assert.Equal(t, 15, cfg.Host.QuestionTimeLimit)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "https://quiz.example.com")
	t.Setenv("ACCESS_TOKEN", "test-token")
	t.Setenv("POLL_INTERVAL", "5s")
	t.Setenv("JOIN_CODE", "ABC123")
	t.Setenv("HOST_ADVANCE_MODE", "manual")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Client.PollInterval)
	assert.Equal(t, "ABC123", cfg.Client.JoinCode)
	assert.Equal(t, "manual", cfg.Host.AdvanceMode)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadRequiresBackend(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "")
	t.Setenv("ACCESS_TOKEN", "test-token")

	_, err := Load(context.Background())
	assert.Error(t, err)
}
