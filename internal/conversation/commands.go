package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/internal/command"
	"github.com/m3rciful/shopbot/internal/dialog"
	"github.com/m3rciful/shopbot/internal/store"
)

const (
	helpIntro    = "I keep your shopping list. Commands:"
	msgListEmpty = "Your shopping list is empty"
	msgAddUsage  = "Usage: /add <item>"
)

// Timeouts are the idle timeouts per dialog type. Zero values fall back to the
// dialog defaults.
type Timeouts struct {
	AddItems time.Duration
	Shopping time.Duration
	Swap     time.Duration
}

// DefaultCommands returns the bot's built-in commands. Help texts are rendered
// from r at call time.
func DefaultCommands(r *command.Router, st store.Store, t Timeouts) []command.Command {
	return []command.Command{
		{
			Token: "start", Kind: command.Action, Priority: 100, Help: "Say hello",
			Action: func(ctx context.Context, req command.Request) error {
				welcome := "Welcome"
				if name := req.Event.Sender.DisplayName(); name != "" {
					welcome += " " + name
				}
				return send(ctx, req, welcome+"\n\n"+r.Help(helpIntro))
			},
		},
		{
			Token: "help", Kind: command.Action, Priority: 90, Help: "Show this help",
			Action: func(ctx context.Context, req command.Request) error {
				return send(ctx, req, r.Help(helpIntro))
			},
		},
		{
			Token: "multiadd", Kind: command.Dialog, Priority: 80, Help: "Add several items, one per message",
			NewDialog: func(req command.Request) dialog.Dialog {
				return dialog.NewAddItems(req.Env(), st, t.AddItems)
			},
		},
		{
			Token: "add", Kind: command.Action, Priority: 70, Help: "Add one item: /add milk",
			Action: func(ctx context.Context, req command.Request) error {
				return addOne(ctx, st, req)
			},
		},
		{
			Token: "shop", Kind: command.Dialog, Priority: 60, Help: "Tick off items while shopping",
			NewDialog: func(req command.Request) dialog.Dialog {
				return dialog.NewShopping(req.Env(), st, t.Shopping)
			},
		},
		{
			Token: "list", Kind: command.Action, Priority: 50, Help: "Show the shopping list",
			Action: func(ctx context.Context, req command.Request) error {
				return showList(ctx, st, req)
			},
		},
		{
			Token: "swap", Kind: command.Dialog, Priority: 40, Help: "Swap two items",
			NewDialog: func(req command.Request) dialog.Dialog {
				return dialog.NewSwap(req.Env(), st, t.Swap)
			},
		},
		{
			Token: "cancel", Kind: command.Noop, Priority: 10, Help: "Cancel the current action",
		},
		{
			Token: "dump", Kind: command.Action, Priority: 0, Help: "Dump the store to the log",
			Hidden: true, AdminOnly: true,
			Action: func(ctx context.Context, req command.Request) error {
				return dump(ctx, st, req)
			},
		},
	}
}

// RegisterDefaults registers DefaultCommands on r.
func RegisterDefaults(r *command.Router, st store.Store, t Timeouts) {
	for _, cmd := range DefaultCommands(r, st, t) {
		r.Register(cmd)
	}
}

func send(ctx context.Context, req command.Request, text string) error {
	_, err := req.Responder.Send(ctx, text, nil)
	return err
}

func addOne(ctx context.Context, st store.Store, req command.Request) error {
	text := strings.TrimSpace(req.Args)
	if text == "" {
		return send(ctx, req, msgAddUsage)
	}
	if _, err := st.Add(ctx, req.ConversationID, text); err != nil {
		return fmt.Errorf("add item: %w", err)
	}
	return send(ctx, req, fmt.Sprintf("Added “%s” 😀", text))
}

func showList(ctx context.Context, st store.Store, req command.Request) error {
	items, err := st.List(ctx, req.ConversationID, false)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	if len(items) == 0 {
		return send(ctx, req, msgListEmpty)
	}
	var b strings.Builder
	b.WriteString("Your shopping list:")
	for _, it := range items {
		b.WriteString("\n• ")
		b.WriteString(it)
	}
	return send(ctx, req, b.String())
}

func dump(ctx context.Context, st store.Store, req command.Request) error {
	items, err := st.Dump(ctx)
	if err != nil {
		return fmt.Errorf("dump store: %w", err)
	}
	lines := make([]string, len(items))
	convs := make(map[string]struct{})
	for i, it := range items {
		lines[i] = it.ConversationID + "/" + strconv.FormatInt(it.ID, 10) + ":" + strconv.FormatBool(it.Checked)
		convs[it.ConversationID] = struct{}{}
	}
	preview, truncated := logger.SummarizeStrings(lines, 20)
	logger.Info(ctx, logger.CompStore, "store.dump",
		slog.String("status", "ok"),
		slog.Int("items", len(items)),
		slog.Int("conversations", len(convs)),
		slog.String("items_preview", preview),
		slog.Bool("items_truncated", truncated),
	)
	return send(ctx, req, fmt.Sprintf("Dumped %d %s to the log", len(items), plural(len(items))))
}

func plural(n int) string {
	if n == 1 {
		return "item"
	}
	return "items"
}
