package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// seenUpdates remembers recently logged update ids for ttl.
type seenUpdates struct {
	mu    sync.Mutex
	ttl   time.Duration
	ids   map[int]time.Time
	swept time.Time
}

// first reports whether id is logged for the first time.
func (s *seenUpdates) first(id int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.swept) > s.ttl {
		for k, ts := range s.ids {
			if now.Sub(ts) > s.ttl {
				delete(s.ids, k)
			}
		}
		s.swept = now
	}
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = now
	return true
}

var received = &seenUpdates{ttl: 10 * time.Second, ids: make(map[int]time.Time)}

// LoggerMiddleware prepares the per-update log context and writes one
// sampled update.received line. It runs both globally and per route, so
// receipts are deduplicated by update id.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		if received.first(c.Update().ID, time.Now()) && logger.ShouldSampleDebug("update.received") {
			logger.Debug(ctx, logger.CompTG, "update.received", receiptAttrs(c)...)
		}
		return next(c)
	}
}

// receiptAttrs describes the update; ids come from the context.
func receiptAttrs(c tele.Context) []slog.Attr {
	upd := c.Update()
	attrs := []slog.Attr{slog.String("kind", UpdateKind(upd))}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}

	switch {
	case upd.Callback != nil:
		key, payload := callbacks.ParseCallbackData(upd.Callback)
		if upd.Callback.Unique != "" {
			key, payload = upd.Callback.Unique, upd.Callback.Data
		}
		if key != "" {
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		}
		if payload != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
		}
	case upd.Message != nil:
		if t := c.Text(); t != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
		}
	}
	return attrs
}
