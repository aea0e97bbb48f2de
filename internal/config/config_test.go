package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("POST_AUTHORIZATION_KEY", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", " http://a.test , ,http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "memory-map-v1", cfg.AppID)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, int64(10<<20), cfg.UploadMaxBytes)
	assert.Equal(t, 10, cfg.AuthorizeRateLimit)
	assert.Empty(t, cfg.PostAuthorizationKey)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowedOrigins)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")

	t.Setenv("STORE_BACKEND", "mongo")
	_, err := Load()
	assert.ErrorContains(t, err, "STORE_BACKEND")

	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("SESSION_TTL", "forever")
	_, err = Load()
	assert.ErrorContains(t, err, "SESSION_TTL")
}

func TestLoad_PanicsWithoutRequired(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("STORE_BACKEND", "memory")
	assert.PanicsWithValue(t, "missing env: SESSION_SECRET", func() { _, _ = Load() })

	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")
	assert.PanicsWithValue(t, "missing env: DATABASE_URL", func() { _, _ = Load() })
}
