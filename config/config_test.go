package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ludo")
	t.Setenv("GAME_SERVICE_TOKEN", "secret")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "5200", cfg.Port)
	assert.Equal(t, 10*time.Minute, cfg.WaitingRoomTimeout)
	assert.Zero(t, cfg.TurnTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.False(t, cfg.Archive.Enabled)
}

func TestParseRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GAME_SERVICE_TOKEN", "secret")

	_, err := Parse()
	assert.Error(t, err)
}

func TestParseArchiveNeedsBucket(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ludo")
	t.Setenv("GAME_SERVICE_TOKEN", "secret")
	t.Setenv("ARCHIVE_ENABLED", "true")
	t.Setenv("R2_BUCKET_NAME", "")

	_, err := Parse()
	assert.Error(t, err)

	t.Setenv("R2_BUCKET_NAME", "games")
	t.Setenv("CLOUDFLARE_ACCOUNT_ID", "acc")
	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "https://acc.r2.cloudflarestorage.com", cfg.Archive.R2Endpoint())
}
