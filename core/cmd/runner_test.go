package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	coretelegram "github.com/m3rciful/shopbot/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type fakeApp struct {
	opts coretelegram.RunOptions
	err  error
}

func (a fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) { return a.opts, a.err }

func TestResolveConfigPath(t *testing.T) {
	dir := t.TempDir()
	def := filepath.Join(dir, "config.yaml")

	t.Setenv("SHOPBOT_CONFIG", "")
	assert.Empty(t, resolveConfigPath(Options{ConfigEnvVar: "SHOPBOT_CONFIG", DefaultConfigPath: def}))

	require.NoError(t, os.WriteFile(def, []byte("{}"), 0o644))
	assert.Equal(t, def, resolveConfigPath(Options{ConfigEnvVar: "SHOPBOT_CONFIG", DefaultConfigPath: def}))

	t.Setenv("SHOPBOT_CONFIG", "/etc/shopbot.yaml")
	assert.Equal(t, "/etc/shopbot.yaml", resolveConfigPath(Options{ConfigEnvVar: "SHOPBOT_CONFIG", DefaultConfigPath: def}))
	assert.Equal(t, "flag.yaml", resolveConfigPath(Options{ConfigPath: "flag.yaml", ConfigEnvVar: "SHOPBOT_CONFIG"}))
}

func TestLoadEnvFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SHOPBOT_TEST_VALUE=from-file\n"), 0o644))
	t.Setenv("SHOPBOT_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("SHOPBOT_TEST_VALUE"))

	require.NoError(t, loadEnvFiles([]string{filepath.Join(t.TempDir(), "missing.env"), path}))
	assert.Equal(t, "from-file", os.Getenv("SHOPBOT_TEST_VALUE"))
}

func TestRunWiresLifecycle(t *testing.T) {
	var calls []string
	app := fakeApp{opts: coretelegram.RunOptions{
		OnStart: func(context.Context, coretelegram.Runtime) error { calls = append(calls, "start"); return nil },
		OnStop:  func(context.Context, coretelegram.Runtime) error { calls = append(calls, "stop"); return nil },
	}}

	err := Run(Options{
		ConfigPath: "given.yaml",
		LoadConfig: func(path string) (ConfigCarrier, error) {
			assert.Equal(t, "given.yaml", path)
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap:      func(context.Context, ConfigCarrier) (TelegramApp, error) { return app, nil },
		ShutdownLogger: func() error { calls = append(calls, "logger"); return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			require.NoError(t, opts.OnStart(ctx, coretelegram.Runtime{}))
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "stop", "logger"}, calls)
}

func TestRunFailures(t *testing.T) {
	boom := errors.New("boom")
	load := func(string) (ConfigCarrier, error) { return carrier{cfg: &coreconfig.Config{}}, nil }

	assert.Error(t, Run(Options{}))
	assert.ErrorIs(t, Run(Options{
		LoadConfig: func(string) (ConfigCarrier, error) { return nil, boom },
		Bootstrap:  func(context.Context, ConfigCarrier) (TelegramApp, error) { return fakeApp{}, nil },
	}), boom)
	assert.Error(t, Run(Options{
		LoadConfig: func(string) (ConfigCarrier, error) { return carrier{}, nil },
		Bootstrap:  func(context.Context, ConfigCarrier) (TelegramApp, error) { return fakeApp{}, nil },
	}))
	assert.ErrorIs(t, Run(Options{
		LoadConfig: load,
		Bootstrap:  func(context.Context, ConfigCarrier) (TelegramApp, error) { return nil, boom },
	}), boom)
	assert.ErrorIs(t, Run(Options{
		LoadConfig:     load,
		Bootstrap:      func(context.Context, ConfigCarrier) (TelegramApp, error) { return fakeApp{err: boom}, nil },
		ShutdownLogger: func() error { return nil },
	}), boom)
}
