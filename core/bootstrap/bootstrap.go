package bootstrap

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	coredatabase "github.com/m3rciful/shopbot/core/database"
	"github.com/m3rciful/shopbot/core/logger"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config *coreconfig.Config
	// Database is nil when the application needs no SQL connection.
	Database *coredatabase.Config
	// Migrations holds per-driver migration directories applied after connecting.
	Migrations fs.FS

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(*sqlx.DB, fs.FS) error

	// AppConfig is handed to module hooks untouched.
	AppConfig any
	Modules   Modules
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB       *sqlx.DB
	Services any
}

// Run initializes the logger, connects to the database, applies migrations
// and finally asks the service provider for the application services.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{}
	if opts.Database != nil {
		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		db, err := connect(*opts.Database)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}

		if opts.Migrations != nil {
			migrate := opts.Migrate
			if migrate == nil {
				migrate = coredatabase.Migrate
			}
			if err := migrate(db, opts.Migrations); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
			}
		}
		res.DB = db
	}

	var storage Storage
	if res.DB != nil {
		storage = res.DB
	}
	if opts.Modules.Services != nil {
		svc, err := opts.Modules.Services.Provide(ctx, opts.AppConfig, storage)
		if err != nil {
			res.close()
			return nil, fmt.Errorf("bootstrap: services failed: %w", err)
		}
		res.Services = svc
	}

	return res, nil
}

func (r *Result) close() {
	if r.DB != nil {
		_ = r.DB.Close()
	}
}
