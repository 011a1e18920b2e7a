package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
telegram:
  token: from-file
  run_mode: polling
logging:
  level: info
`), 0o644))
	t.Setenv("LOG_LEVEL", "debug")

	var cfg Config
	require.NoError(t, Decode(path, &cfg))
	require.NoError(t, Normalize(&cfg))

	assert.Equal(t, "from-file", cfg.Telegram.Token)
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestDecodeWithoutFile(t *testing.T) {
	t.Setenv("BOT_TOKEN", "env-token")

	var cfg Config
	require.NoError(t, Decode("", &cfg))
	assert.Equal(t, "env-token", cfg.Telegram.Token)
}

func TestNormalizeRejects(t *testing.T) {
	cases := map[string]Config{
		"missing token": {},
		"bad run mode":  {Telegram: TelegramConfig{Token: "t", RunMode: "carrier-pigeon"}},
		"webhook without url": {
			Telegram: TelegramConfig{Token: "t", RunMode: RunModeWebhook},
		},
		"bad exclude": {
			Telegram:  TelegramConfig{Token: "t"},
			RateLimit: RateLimitConfig{ExcludeUpdates: []string{"photo"}},
		},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, Normalize(&cfg))
		})
	}
}

func TestNormalizeRateLimitExcludes(t *testing.T) {
	cfg := Config{
		Telegram:  TelegramConfig{Token: "t"},
		RateLimit: RateLimitConfig{ExcludeUpdates: []string{" Callback", "", "MESSAGE"}},
	}
	require.NoError(t, Normalize(&cfg))
	assert.Equal(t, []string{UpdateCallback, UpdateMessage}, cfg.RateLimit.ExcludeUpdates)
}

func TestNormalizeWebhook(t *testing.T) {
	cfg := Config{
		Telegram: TelegramConfig{Token: "t", RunMode: " Webhook "},
		Webhook:  WebhookConfig{URL: "https://bot.test/hook", Listen: "0.0.0.0"},
	}
	assert.ErrorContains(t, Normalize(&cfg), "webhook.port")

	cfg.Webhook.Port = 8443
	require.NoError(t, Normalize(&cfg))
	assert.Equal(t, RunModeWebhook, cfg.Telegram.RunMode)
}
