package router

import (
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/middleware"
	"github.com/m3rciful/shopbot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

// handled runs fn as the named handler and writes one handler.handled line.
// A nil fn is logged as skipped.
func handled(c tele.Context, name string, fn tele.HandlerFunc, extras ...slog.Attr) error {
	ctx := tghelpers.WithHandler(c, name)
	start := time.Now()

	status := "skip"
	var err error
	if fn != nil {
		status = "ok"
		if err = fn(c); err != nil {
			status = "fail"
		}
	}

	msgs, kb := middleware.GetCounters(c)
	attrs := append([]slog.Attr{
		slog.String("status", status),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", logger.Took(start)),
	}, extras...)
	if err != nil {
		attrs = append(attrs,
			slog.String("err", netutil.Redact(err)),
			slog.String("error_kind", netutil.Kind(err)),
		)
		logger.Warn(ctx, logger.CompTG, "handler.handled", attrs...)
		return err
	}
	logger.Info(ctx, logger.CompTG, "handler.handled", attrs...)
	return nil
}

func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = strings.TrimPrefix(name, "/")
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}

func parseCallback(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	return callbacks.ParseCallbackData(cb)
}

// commandToken returns the lowercased command of a "/cmd@bot args" text or "".
func commandToken(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	tok, _, _ := strings.Cut(strings.TrimPrefix(fields[0], "/"), "@")
	return strings.ToLower(tok)
}
