package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"planora/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("PLANORA_TEST_KEY", "secret-key")

	path := writeConfig(t, `
app:
  name: planora
database:
  path: "data/planora.db"
api:
  http:
    port: 9000
  auth:
    enabled: true
    api_keys:
      - key: "${PLANORA_TEST_KEY}"
        name: "web"
        permissions: ["read", "write"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "data/planora.db", cfg.Database.Path)
	assert.Equal(t, 9000, cfg.API.HTTP.Port)
	require.Len(t, cfg.API.Auth.APIKeys, 1)
	assert.Equal(t, "secret-key", cfg.API.Auth.APIKeys[0].Key)

	// defaults
	assert.Equal(t, 8081, cfg.API.GRPC.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, models.MaxTransitionAttempts, cfg.Booking.MaxTransitionAttempts)
	assert.Equal(t, models.RateLimitMessages, cfg.API.RateLimit.MessagesLimit)
	assert.Equal(t, 7*24*time.Hour, cfg.Cart.TTL)
	assert.Equal(t, 10*time.Second, cfg.API.HTTP.ShutdownTimeout)
	assert.Equal(t, "Bookings", cfg.Google.BookingsSheetName)
	assert.False(t, cfg.Google.Enabled())
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("BadYAML", func(t *testing.T) {
		_, err := Load(writeConfig(t, "database: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := Load(writeConfig(t, "app:\n  name: x\n"))
		assert.ErrorContains(t, err, "database path is required")
	})
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		c := Config{Database: DatabaseConfig{Path: "path"}}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing db path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.API.HTTP.Port = 70000 }, wantErr: true},
		{
			name: "same ports",
			mutate: func(c *Config) {
				c.API.GRPC.Enabled = true
				c.API.GRPC.Port = c.API.HTTP.Port
			},
			wantErr: true,
		},
		{name: "auth without keys", mutate: func(c *Config) { c.API.Auth.Enabled = true }, wantErr: true},
		{
			name: "auth with empty key",
			mutate: func(c *Config) {
				c.API.Auth.Enabled = true
				c.API.Auth.APIKeys = []APIClientKey{{Name: "x"}}
			},
			wantErr: true,
		},
		{
			name:    "sheet without credentials",
			mutate:  func(c *Config) { c.Google.BookingsSpreadsheetID = "sheet" },
			wantErr: true,
		},
		{name: "negative attempts", mutate: func(c *Config) { c.Booking.MaxTransitionAttempts = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
