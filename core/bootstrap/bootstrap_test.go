package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	coredatabase "github.com/m3rciful/shopbot/core/database"
	"github.com/m3rciful/shopbot/migrations"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunWithoutDatabase(t *testing.T) {
	provider := TypedServiceProviderFunc[string](func(_ context.Context, cfg interface{}, storage Storage) (string, error) {
		assert.Nil(t, storage)
		return cfg.(string), nil
	})
	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noLogger,
		AppConfig:  "memory",
		Modules:    Modules{Services: provider},
	})
	require.NoError(t, err)
	assert.Nil(t, res.DB)
	assert.Equal(t, "memory", res.Services)
}

func TestRunMigratesSQLite(t *testing.T) {
	dbCfg := coredatabase.Config{Driver: coredatabase.DriverSQLite, Path: filepath.Join(t.TempDir(), "shop.db")}
	provider := ServiceProviderFunc(func(ctx context.Context, _ interface{}, storage Storage) (interface{}, error) {
		db := storage.(*sqlx.DB)
		var n int
		err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM items`)
		return n, err
	})
	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Database:   &dbCfg,
		Migrations: migrations.FS,
		LoggerInit: noLogger,
		Modules:    Modules{Services: provider},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.DB.Close() })
	assert.Equal(t, 0, res.Services)
}

func TestRunFailures(t *testing.T) {
	boom := errors.New("boom")

	_, err := Run(context.Background(), Options{})
	assert.Error(t, err)

	_, err = Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { return boom },
	})
	assert.ErrorIs(t, err, boom)

	_, err = Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Database:   &coredatabase.Config{},
		LoggerInit: noLogger,
		Connect:    func(coredatabase.Config) (*sqlx.DB, error) { return nil, boom },
	})
	assert.ErrorIs(t, err, boom)

	_, err = Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noLogger,
		Modules: Modules{Services: ServiceProviderFunc(func(context.Context, interface{}, Storage) (interface{}, error) {
			return nil, boom
		})},
	})
	assert.ErrorIs(t, err, boom)
}
