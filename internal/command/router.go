// Package command maps slash commands to bot behaviour.
package command

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/internal/dialog"
)

// Kind is what a matched command does.
type Kind uint8

const (
	// Action runs once and returns.
	Action Kind = iota + 1
	// Dialog starts a new dialog.
	Dialog
	// Noop only cancels the active dialog.
	Noop
)

func (k Kind) String() string {
	switch k {
	case Action:
		return "action"
	case Dialog:
		return "dialog"
	case Noop:
		return "noop"
	default:
		return "unknown"
	}
}

// Request carries what a command needs to run.
type Request struct {
	ConversationID string
	// Args is the text after the command token.
	Args      string
	Event     dialog.Event
	Responder dialog.Responder
}

// Env returns the dialog environment for the request's conversation.
func (r Request) Env() dialog.Env {
	return dialog.Env{ConversationID: r.ConversationID, Responder: r.Responder}
}

// ActionFunc implements an Action command.
type ActionFunc func(ctx context.Context, req Request) error

// DialogFactory creates the dialog of a Dialog command.
type DialogFactory func(req Request) dialog.Dialog

// Command is a registered slash command.
type Command struct {
	// Token is the command name without the leading slash.
	Token     string
	Kind      Kind
	Priority  int
	Help      string
	Hidden    bool
	AdminOnly bool
	Action    ActionFunc
	NewDialog DialogFactory
}

// Args returns the text following the command token.
func (c Command) Args(text string) string {
	text = strings.TrimSpace(text)
	i := strings.IndexFunc(text, isSpace)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(text[i:])
}

// Router resolves command tokens. It is safe for concurrent use.
type Router struct {
	mu       sync.RWMutex
	commands map[string]Command
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{commands: make(map[string]Command)}
}

// Register adds cmd, replacing any command with the same token.
func (r *Router) Register(cmd Command) {
	token := normalizeToken(cmd.Token)
	if token == "" {
		logger.TWire.Warn("register.command.skip",
			slog.String("event", "register"),
			slog.String("reason", "empty_token"),
		)
		return
	}
	cmd.Token = token
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[token]; exists {
		logger.TWire.Debug("register.command.overwrite",
			slog.String("event", "register"),
			slog.String("command", token),
		)
	}
	r.commands[token] = cmd
}

// Match resolves text to a command. text must start with /token, optionally
// followed by @botName. A command addressed to another bot never matches.
func (r *Router) Match(ctx context.Context, text, botName string) (Command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return Command{}, false
	}
	head := text[1:]
	if i := strings.IndexFunc(head, isSpace); i >= 0 {
		head = head[:i]
	}
	token, suffix, addressed := strings.Cut(head, "@")
	token = normalizeToken(token)

	r.mu.RLock()
	cmd, ok := r.commands[token]
	r.mu.RUnlock()
	if !ok {
		return Command{}, false
	}

	botName = strings.TrimPrefix(botName, "@")
	switch {
	case addressed && (botName == "" || !strings.EqualFold(suffix, botName)):
		logger.Debug(ctx, logger.CompConversation, "command.foreign",
			slog.String("status", "skip"),
			slog.String("command", token),
			slog.String("bot", logger.SanitizeLimit(suffix, 64)),
		)
		return Command{}, false
	case !addressed:
		logger.Debug(ctx, logger.CompConversation, "command.unaddressed",
			slog.String("status", "ok"),
			slog.String("command", token),
		)
	}
	return cmd, true
}

// Lookup returns the command registered for token.
func (r *Router) Lookup(token string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[normalizeToken(token)]
	return cmd, ok
}

// Commands returns the visible commands sorted by priority (desc), then token.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	out := make([]Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		if !cmd.Hidden {
			out = append(out, cmd)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Token < out[j].Token
	})
	return out
}

// Help renders intro followed by one "/token - help" line per visible command.
func (r *Router) Help(intro string) string {
	var b strings.Builder
	b.WriteString(intro)
	for _, cmd := range r.Commands() {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("/" + cmd.Token + " - " + cmd.Help)
	}
	return b.String()
}

// List renders the compact "token - help" form accepted by BotFather.
func (r *Router) List() string {
	cmds := r.Commands()
	lines := make([]string, len(cmds))
	for i, cmd := range cmds {
		lines[i] = cmd.Token + " - " + cmd.Help
	}
	return strings.Join(lines, "\n")
}

func normalizeToken(token string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(token), "/"))
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
