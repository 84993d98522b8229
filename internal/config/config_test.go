package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	yamlContent := `
app:
  name: coachdesk-test
database:
  path: "test.db"
stripe:
  secret_key: "sk_test_123"
  timeout: "5s"
api:
  auth:
    enabled: true
    api_keys:
      - key: "k1"
        name: "admin"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "coachdesk-test", cfg.App.Name)
	assert.Equal(t, "sk_test_123", cfg.Stripe.SecretKey)
	assert.Equal(t, 5*time.Second, cfg.Stripe.CallTimeout())

	// Defaults
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, 2, cfg.Stripe.MaxAttempts)
	assert.Equal(t, float64(10), cfg.API.RateLimit.RPS)
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("TEST_STRIPE_KEY", "sk_from_env")

	yamlContent := `
database:
  path: "test.db"
stripe:
  secret_key: "${TEST_STRIPE_KEY}"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "sk_from_env", cfg.Stripe.SecretKey)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Stripe:   StripeConfig{SecretKey: "sk"},
			},
			wantErr: false,
		},
		{
			name:    "missing database path",
			cfg:     Config{Stripe: StripeConfig{SecretKey: "sk"}},
			wantErr: true,
		},
		{
			name:    "missing stripe key",
			cfg:     Config{Database: DatabaseConfig{Path: "path"}},
			wantErr: true,
		},
		{
			name: "telegram enabled without token",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Stripe:   StripeConfig{SecretKey: "sk"},
				Telegram: TelegramConfig{Enabled: true},
			},
			wantErr: true,
		},
		{
			name: "google enabled without credentials",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Stripe:   StripeConfig{SecretKey: "sk"},
				Google:   GoogleConfig{Enabled: true},
			},
			wantErr: true,
		},
		{
			name: "auth enabled without keys",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Stripe:   StripeConfig{SecretKey: "sk"},
				API:      APIConfig{Auth: APIAuthConfig{Enabled: true}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStripeCallTimeoutDefaults(t *testing.T) {
	assert.Equal(t, 10*time.Second, StripeConfig{}.CallTimeout())
	assert.Equal(t, 10*time.Second, StripeConfig{Timeout: "bogus"}.CallTimeout())
	assert.Equal(t, 30*time.Second, StripeConfig{Timeout: "30s"}.CallTimeout())
}
