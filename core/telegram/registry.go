package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/m3rciful/shopbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Registry maps inline button uniques to their callback handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]tele.HandlerFunc
	notFound tele.HandlerFunc
}

// NewRegistry returns a Registry whose fallback answers "Unsupported action".
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]tele.HandlerFunc),
		notFound: func(c tele.Context) error {
			_ = c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
			return nil
		},
	}
}

// RegisterCallback binds handler to the button unique key. A key can be
// registered once.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	ctx := context.Background()
	if key == "" || handler == nil {
		logger.Warn(ctx, logger.CompTGWire, "register.callback.skip",
			slog.String("key", key),
			slog.Bool("handler_nil", handler == nil),
		)
		return errors.New("invalid callback registration")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[key]; dup {
		logger.Warn(ctx, logger.CompTGWire, "register.callback.duplicate", slog.String("key", key))
		return fmt.Errorf("callback already registered: %s", key)
	}
	r.handlers[key] = handler
	return nil
}

// GetCallback returns the handler bound to key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[key]
	return h, ok
}

// ListCallbacks returns the registered keys in sorted order.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.handlers))
}

// SetCallbackNotFound replaces the fallback used for unknown keys; nil is ignored.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.notFound = h
	r.mu.Unlock()
}

// CallbackNotFound returns the fallback for unknown keys.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.notFound
}

// InitBotCommands publishes the command menu shown by Telegram clients.
// Failures are logged; the bot keeps running without a menu.
func InitBotCommands(bot *tele.Bot, commands []tele.Command) {
	if bot == nil || len(commands) == 0 {
		return
	}
	ctx := context.Background()
	if err := bot.SetCommands(commands); err != nil {
		logger.Error(ctx, logger.CompTGWire, "register.commands.set_failed", slog.String("err", err.Error()))
		return
	}
	logger.Info(ctx, logger.CompTGWire, "register.commands.set", slog.Int("commands", len(commands)))
}
