package dialog

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/internal/store"
)

const checkedMark = "✔ "

// entryOptions renders entries as options keyed by item id.
func entryOptions(entries []store.Entry, labelPrefix string) []Option {
	opts := make([]Option, 0, len(entries))
	for _, e := range entries {
		opts = append(opts, Option{Key: e.Key(), Label: labelPrefix + e.Text})
	}
	return opts
}

// selectedID extracts the item id from a selection event.
// Text events and malformed keys yield ok=false.
func selectedID(ctx context.Context, ev Event) (int64, bool) {
	if ev.Kind != EventSelection {
		logger.Debug(ctx, logger.CompDialog, "dialog.event.ignored",
			slog.String("status", "skip"),
			slog.String("kind", ev.Kind.String()),
		)
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(ev.SelectionKey), 10, 64)
	if err != nil {
		logger.Warn(ctx, logger.CompDialog, "dialog.event.malformed",
			slog.String("status", "skip"),
			slog.String("selection_key", logger.SanitizeLimit(ev.SelectionKey, 64)),
		)
		return 0, false
	}
	return id, true
}

// outdated reports whether ev came from a message other than prompt.
func outdated(ev Event, prompt MessageRef) bool {
	return !ev.Message.IsZero() && !prompt.IsZero() && ev.Message.ID != prompt.ID
}

// acknowledge answers a selection event. Failures only cost the toast, so they are logged.
func acknowledge(ctx context.Context, env Env, ev Event, text string) {
	if ev.Kind != EventSelection || ev.SelectionRef.ID == "" {
		return
	}
	if err := env.Responder.Acknowledge(ctx, ev.SelectionRef, text); err != nil {
		logger.Warn(ctx, logger.CompDialog, "dialog.ack.failed",
			slog.String("status", "error"),
			slog.String("err", err.Error()),
		)
	}
}

// removeOptions clears the selection UI of prompt if one was rendered.
func removeOptions(ctx context.Context, env Env, prompt MessageRef) error {
	if prompt.IsZero() {
		return nil
	}
	return env.Responder.UpdateOptions(ctx, prompt, nil)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
