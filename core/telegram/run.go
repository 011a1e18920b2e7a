package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	"github.com/m3rciful/shopbot/core/logger"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/netutil"
	tgsender "github.com/m3rciful/shopbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Middleware is a named global middleware registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route binds a handler to a telebot endpoint such as tele.OnText.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	DisableWebhookCleanup   bool
	DisableHelperDispatcher bool

	// OnStart runs after wiring and before updates are received.
	OnStart func(ctx context.Context, rt Runtime) error
	// OnStop runs after the poller stopped and before the dispatcher drains.
	OnStop func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram starts the bot and blocks until ctx is done or the poller
// stops. Cancellation is a clean shutdown and returns nil.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return errors.New("telegram: nil config provided")
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}

	bot, pollOpts, err := newBot(opts.Config)
	if err != nil {
		return err
	}
	logMode(ctx, bot, pollOpts, opts.DisableWebhookCleanup)

	rt := Runtime{Bot: bot, Dispatcher: opts.Dispatcher, Registry: opts.Registry}
	if rt.Dispatcher == nil {
		rt.Dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	if !opts.DisableHelperDispatcher {
		tghelpers.SetDispatcher(rt.Dispatcher)
	}
	release := func() {
		rt.Dispatcher.Close()
		if !opts.DisableHelperDispatcher {
			tghelpers.SetDispatcher(nil)
		}
	}

	wire(bot, opts)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			release()
			return err
		}
	}

	runErr := serve(ctx, bot)

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(ctx, rt)
	}
	release()

	if stopErr != nil {
		return stopErr
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func newBot(cfg *coreconfig.Config) (*tele.Bot, PollerOptions, error) {
	pollOpts := PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
	}

	start := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: BuildPoller(pollOpts),
		Client: BuildHTTPClient(pollOpts.LongPollTimeout()),
		OnError: func(err error, _ tele.Context) {
			logger.TG.Error("handler error",
				slog.String("event", "handler.error"),
				slog.String("err", netutil.Redact(err)),
			)
		},
	})
	if err != nil {
		return nil, pollOpts, fmt.Errorf("telegram: bot initialization failed: %s", netutil.Redact(err))
	}
	logger.TG.Debug("bot ready",
		slog.String("event", "bot.init"),
		slog.Duration("duration", logger.Took(start)),
	)
	return bot, pollOpts, nil
}

// logMode reports how updates arrive. In polling mode a leftover webhook is
// removed first because it makes getUpdates fail.
func logMode(ctx context.Context, bot *tele.Bot, pollOpts PollerOptions, keepWebhook bool) {
	if wh, ok := bot.Poller.(*tele.Webhook); ok {
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "webhook mode",
			slog.String("event", "mode"),
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", wh.Listen),
			slog.String("public_url", wh.Endpoint.PublicURL),
		)
		return
	}

	logger.TG.LogAttrs(ctx, slog.LevelInfo, "polling mode",
		slog.String("event", "mode"),
		slog.String("mode", coreconfig.RunModeLongpoll),
		slog.Duration("timeout", pollOpts.LongPollTimeout()),
		slog.Any("allowed_updates", AllowedUpdates),
	)
	if keepWebhook {
		return
	}
	if err := bot.RemoveWebhook(false); err != nil {
		logger.TG.Warn("failed to delete webhook",
			slog.String("event", "delete_webhook"),
			slog.String("err", netutil.Redact(err)),
		)
		return
	}
	logger.TG.Info("webhook deleted", slog.String("event", "delete_webhook"))
}

// wire installs global middlewares and routes.
func wire(bot *tele.Bot, opts RunOptions) {
	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	routes := 0
	for _, r := range opts.Routes {
		if r.Endpoint == nil || r.Handler == nil {
			continue
		}
		bot.Handle(r.Endpoint, r.Handler)
		routes++
	}
	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("middlewares", len(opts.Middlewares)),
		slog.Int("routes", routes),
		slog.Int("callbacks", len(opts.Registry.ListCallbacks())),
	)
}

// serve runs the poller until it stops by itself or ctx is done.
func serve(ctx context.Context, bot *tele.Bot) error {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		bot.Start()
	}()

	select {
	case <-ctx.Done():
		bot.Stop()
		<-stopped
		return ctx.Err()
	case <-stopped:
		return nil
	}
}
