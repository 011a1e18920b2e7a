// Package logger provides the structured slog setup shared by the bot: one
// line per event with stable key order, per-update context fields and
// sampled debug output.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/shopbot/core/buildinfo"
	coreconfig "github.com/m3rciful/shopbot/core/config"
)

// Component names shared by the bot packages.
const (
	CompApp          = "app"
	CompTG           = "tg"
	CompTGWire       = "tg.wire"
	CompTGSender     = "tg.sender"
	CompDB           = "db"
	CompMigrate      = "db.migrate"
	CompStore        = "store"
	CompDialog       = "dialog"
	CompConversation = "conversation"
)

var (
	mu      sync.Mutex
	started bool
	writer  *asyncWriter
	files   []io.Closer

	levelVar      slog.LevelVar
	debugSampler  = newEventSampler(1, 50)
	traceOverride bool

	// L is the base logger.
	L *slog.Logger

	// DB logs database connection events.
	DB *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
	// TWire logs Telegram wiring steps.
	TWire *slog.Logger
)

func init() {
	// usable before InitLogger runs, e.g. in tests
	L = slog.Default()
	wireComponents()
}

// settings is the logging configuration with defaults applied.
type settings struct {
	format   logFormat
	order    []string
	level    slog.Level
	sample   [2]int
	trace    bool
	profile  string
	dir      string
	mainFile string
	errFile  string
}

func settingsFrom(cfg *coreconfig.Config) settings {
	s := settings{
		format:  formatJSON,
		order:   slices.Clone(defaultKeyOrder),
		level:   slog.LevelInfo,
		sample:  [2]int{1, 50},
		trace:   isTruthy(os.Getenv("TRACE")) || isTruthy(os.Getenv("LOG_TRACE")),
		profile: "prod",
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}
	if keys := strings.TrimSpace(lc.KeysOrder); keys != "" && keys != "default" {
		var order []string
		for _, k := range strings.Split(keys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
		if len(order) > 0 {
			s.order = order
		}
	}
	s.level = ParseLevel(lc.Level)
	// "0" or an unparsable ratio logs every debug line
	if raw := strings.TrimSpace(lc.DebugSample); raw != "" {
		n, d := parseRatio(raw)
		s.sample = [2]int{n, d}
	}
	s.dir = strings.TrimSpace(lc.Dir)
	s.mainFile = strings.TrimSpace(lc.BotFile)
	s.errFile = strings.TrimSpace(lc.ErrorsFile)
	return s
}

// InitLogger installs the structured handler as the slog default. Lines go
// to stdout and, when logging.dir is set, to the bot file; error lines also
// go to the errors file. Later calls are no-ops.
func InitLogger(cfg *coreconfig.Config) error {
	mu.Lock()
	defer mu.Unlock()
	if started {
		return nil
	}

	s := settingsFrom(cfg)
	outs := []io.Writer{os.Stdout}
	var errOuts []io.Writer
	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return fmt.Errorf("logger: create log dir: %w", err)
		}
		for _, f := range []struct {
			name string
			dst  *[]io.Writer
		}{{s.mainFile, &outs}, {s.errFile, &errOuts}} {
			if f.name == "" {
				continue
			}
			file, err := os.OpenFile(filepath.Join(s.dir, f.name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				closeFiles()
				return fmt.Errorf("logger: open log file: %w", err)
			}
			*f.dst = append(*f.dst, file)
			files = append(files, file)
		}
	}

	levelVar.Set(s.level)
	debugSampler.Set(s.sample[0], s.sample[1])
	traceOverride = s.trace

	writer = newAsyncWriter(outs, errOuts, 64*1024)
	L = slog.New(newStructuredHandler(handlerConfig{
		level:    &levelVar,
		writer:   writer,
		format:   s.format,
		keyOrder: s.order,
	}))
	slog.SetDefault(L)
	wireComponents()
	started = true

	L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
		slog.String("component", CompApp),
		slog.String("event", "startup"),
		slog.String("go_version", runtime.Version()),
		slog.String("build_version", buildinfo.Version),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
		slog.String("cfg_profile", s.profile),
		slog.String("log_level", s.level.String()),
	)
	return nil
}

func closeFiles() []error {
	var errs []error
	for _, f := range files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	files = nil
	return errs
}

// SetLevel changes the minimum level at runtime.
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

func wireComponents() {
	DB = L.With("component", CompDB)
	TG = L.With("component", CompTG)
	MIG = L.With("component", CompMigrate)
	TWire = L.With("component", CompTGWire)
}

// Shutdown flushes pending lines and closes the log files.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()
	if !started || writer == nil {
		return nil
	}
	errs := []error{writer.Flush(), writer.Close()}
	errs = append(errs, closeFiles()...)
	writer = nil
	return errors.Join(errs...)
}

// ParseLevel maps a config level name to slog.Level, defaulting to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// Background returns context.Background().
func Background() context.Context {
	return context.Background()
}

// LogEvent writes a message-less record with the event attribute in front.
// A nil logg falls back to the context logger and then to L.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns L scoped to the named component.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Event logs event for component at level.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), level, event, attrs...)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a debug line for the high-volume event should be written.
// TRACE=1 disables sampling.
func ShouldSampleDebug(event string) bool {
	if traceOverride {
		return true
	}
	return debugSampler.Allow(event)
}
