// Package app wires the shopping list bot: configuration, storage, the
// conversation manager and the Telegram transport.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/shopbot/core/bootstrap"
	"github.com/m3rciful/shopbot/core/logger"
	coretelegram "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/middleware"
	tgrouter "github.com/m3rciful/shopbot/core/telegram/router"
	"github.com/m3rciful/shopbot/core/telegram/sender"
	"github.com/m3rciful/shopbot/internal/command"
	"github.com/m3rciful/shopbot/internal/conversation"
	"github.com/m3rciful/shopbot/internal/dialog"
	"github.com/m3rciful/shopbot/internal/store"
	"github.com/m3rciful/shopbot/migrations"

	tele "gopkg.in/telebot.v4"
)

// App holds the long-lived components of a running bot.
type App struct {
	cfg    *Config
	store  store.Store
	router *command.Router
	convs  *conversation.Manager
	tr     atomic.Pointer[transport]
}

// transport is the outbound side of a running bot.
type transport struct {
	bot  botAPI
	disp enqueuer
}

// Bootstrap initializes logging and storage and builds the conversation manager.
func Bootstrap(ctx context.Context, cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	opts := bootstrap.Options{
		Config:    &cfg.Config,
		AppConfig: cfg,
		Modules:   bootstrap.Modules{Services: storeProvider},
	}
	if cfg.UsesSQL() {
		opts.Database = &cfg.Database
		opts.Migrations = migrations.FS
	}
	res, err := bootstrap.Run(ctx, opts)
	if err != nil {
		return nil, err
	}
	st, ok := res.Services.(store.Store)
	if !ok {
		return nil, fmt.Errorf("app: unexpected service %T", res.Services)
	}
	return New(cfg, st), nil
}

// storeProvider builds the configured store backend.
var storeProvider = bootstrap.TypedServiceProviderFunc[store.Store](func(ctx context.Context, raw interface{}, storage bootstrap.Storage) (store.Store, error) {
	cfg, ok := raw.(*Config)
	if !ok {
		return nil, fmt.Errorf("store provider: unexpected config %T", raw)
	}
	switch cfg.Store.Backend {
	case BackendSQLite, BackendPostgres:
		db, ok := storage.(*sqlx.DB)
		if !ok || db == nil {
			return nil, errors.New("store provider: sql backend without database")
		}
		return store.NewSQLStore(db), nil
	case BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Store.Redis.Addr, err)
		}
		logger.Info(ctx, logger.CompStore, "store.redis.connected",
			slog.String("addr", cfg.Store.Redis.Addr),
			slog.Int("db", cfg.Store.Redis.DB),
		)
		return store.NewRedisStore(rdb, cfg.Store.Redis.Prefix), nil
	default:
		return store.NewMemoryStore(), nil
	}
})

// New assembles an App around an already opened store.
func New(cfg *Config, st store.Store) *App {
	a := &App{
		cfg:    cfg,
		store:  st,
		router: command.NewRouter(),
	}
	conversation.RegisterDefaults(a.router, st, cfg.Dialogs.Timeouts())
	a.convs = conversation.NewManager(a.router, a.newResponder, conversation.SystemScheduler)
	a.convs.SetBotName(cfg.Telegram.BotName)
	return a
}

// Conversations returns the conversation manager.
func (a *App) Conversations() *conversation.Manager { return a.convs }

// TelegramRunOptions describes routes and lifecycle hooks for the Telegram runtime.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	reg.SetCallbackNotFound(func(c tele.Context) error {
		return c.Respond()
	})
	if err := reg.RegisterCallback(selectionUnique, a.handleSelection); err != nil {
		return coretelegram.RunOptions{}, err
	}

	routes := tgrouter.TextRoutes(tgrouter.TextOptions{
		Text:        a.handleText,
		Unsupported: a.handleUnsupported,
	})
	routes = append(routes, tgrouter.CallbackRoute(reg, tgrouter.CallbackOptions{}))

	return coretelegram.RunOptions{
		Config:            &a.cfg.Config,
		Registry:          reg,
		DispatcherOptions: sender.Options{MaxRetries: 2},
		Middlewares:       coretelegram.DefaultMiddlewares(&a.cfg.Config, onLimited),
		Routes:            routes,
		OnStart:           a.onStart,
		OnStop:            a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, rt coretelegram.Runtime) error {
	var disp enqueuer
	if rt.Dispatcher != nil {
		disp = rt.Dispatcher
	}
	a.attach(rt.Bot, disp)
	if a.cfg.Telegram.BotName == "" && rt.Bot != nil && rt.Bot.Me != nil {
		a.convs.SetBotName(rt.Bot.Me.Username)
	}
	coretelegram.InitBotCommands(rt.Bot, botCommands(a.router.Commands()))
	logger.Info(ctx, logger.CompApp, "app.start",
		slog.String("bot_name", a.convs.BotName()),
		slog.String("store", a.cfg.Store.Backend),
		slog.Int("commands", len(a.router.Commands())),
	)
	return nil
}

func (a *App) onStop(ctx context.Context, _ coretelegram.Runtime) error {
	// dialogs flush their summaries while the dispatcher still runs
	a.convs.CloseAll(context.WithoutCancel(ctx))
	return a.Close()
}

// Close releases the store together with its connection.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// attach makes bot the target of every responder created from now on.
func (a *App) attach(bot botAPI, disp enqueuer) {
	a.tr.Store(&transport{bot: bot, disp: disp})
}

func (a *App) newResponder(conv string) dialog.Responder {
	tr := a.tr.Load()
	if tr == nil || tr.bot == nil {
		return errResponder{err: errors.New("telegram bot is not running")}
	}
	r, err := NewResponder(tr.bot, tr.disp, conv)
	if err != nil {
		logger.Error(context.Background(), logger.CompTG, "responder.create",
			slog.String("conversation_id", conv),
			slog.String("err", err.Error()),
		)
		return errResponder{err: err}
	}
	return r
}

func (a *App) handleText(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	a.convs.HandleEvent(ctx, dialog.Event{
		ConversationID: conversationID(chat),
		Kind:           dialog.EventText,
		Text:           c.Text(),
		Sender:         a.sender(c.Sender()),
	})
	return nil
}

func (a *App) handleSelection(c tele.Context) error {
	cb := c.Callback()
	chat := c.Chat()
	if cb == nil || chat == nil {
		// inline-mode callbacks carry no chat
		return c.Respond()
	}
	ctx := tghelpers.BuildContext(c)
	conv := conversationID(chat)
	ev := dialog.Event{
		ConversationID: conv,
		Kind:           dialog.EventSelection,
		SelectionKey:   callbacks.CallbackPayload(c),
		SelectionRef:   dialog.SelectionRef{ID: cb.ID},
		Sender:         a.sender(c.Sender()),
	}
	if cb.Message != nil {
		ev.Message = dialog.MessageRef{Conversation: conv, ID: strconv.Itoa(cb.Message.ID)}
	}
	a.convs.HandleEvent(ctx, ev)
	return nil
}

func (a *App) handleUnsupported(c tele.Context, kind string) error {
	return tghelpers.SendText(c, "Unsupported content type: "+kind)
}

func (a *App) sender(u *tele.User) dialog.Sender {
	if u == nil {
		return dialog.Sender{}
	}
	return dialog.Sender{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		Admin:     middleware.IsAdmin(a.cfg.Telegram.AdminID, u.ID),
	}
}

// onLimited answers throttled callbacks so the client stops spinning.
func onLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond()
	}
	return nil
}

func conversationID(chat *tele.Chat) string {
	return strconv.FormatInt(chat.ID, 10)
}

// botCommands converts visible router commands to the Telegram command menu.
func botCommands(cmds []command.Command) []tele.Command {
	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		desc := strings.TrimSpace(c.Help)
		if desc == "" {
			desc = c.Token
		}
		out = append(out, tele.Command{Text: c.Token, Description: desc})
	}
	return out
}

// errResponder fails every call; it stands in when no chat can be addressed.
type errResponder struct{ err error }

func (e errResponder) Send(context.Context, string, []dialog.Option) (dialog.MessageRef, error) {
	return dialog.MessageRef{}, e.err
}

func (e errResponder) UpdateOptions(context.Context, dialog.MessageRef, []dialog.Option) error {
	return e.err
}

func (e errResponder) UpdateText(context.Context, dialog.MessageRef, string) error {
	return e.err
}

func (e errResponder) Acknowledge(context.Context, dialog.SelectionRef, string) error {
	return e.err
}
