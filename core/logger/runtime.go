package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

type ctxKey int

const (
	keyLogger ctxKey = iota
	keyRID
	keyUpdate
	keyHandler
	keyConversation
	keyDialog
	keyDialogRun
)

// updateMeta identifies the Telegram update a context belongs to.
type updateMeta struct {
	updateID int
	userID   int64
	chatID   int64
}

// dialogMeta names the active dialog and its state.
type dialogMeta struct {
	name  string
	state string
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func with(ctx context.Context, key ctxKey, val any) context.Context {
	return context.WithValue(orBackground(ctx), key, val)
}

func value[T any](ctx context.Context, key ctxKey) T {
	var zero T
	if ctx == nil {
		return zero
	}
	v, _ := ctx.Value(key).(T)
	return v
}

// WithLogger stores log in ctx; FromContext returns it.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if log == nil {
		return orBackground(ctx)
	}
	return with(ctx, keyLogger, log)
}

// FromContext returns the logger stored in ctx or the global one.
func FromContext(ctx context.Context) *slog.Logger {
	if l := value[*slog.Logger](ctx, keyLogger); l != nil {
		return l
	}
	return L
}

// WithRID attaches the request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return with(ctx, keyRID, rid)
}

// RIDFrom returns the request correlation id.
func RIDFrom(ctx context.Context) string {
	return value[string](ctx, keyRID)
}

// WithUpdateMeta attaches the update, user and chat ids.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return with(ctx, keyUpdate, updateMeta{updateID: updateID, userID: userID, chatID: chatID})
}

// UpdateIDFrom returns the Telegram update id.
func UpdateIDFrom(ctx context.Context) int {
	return value[updateMeta](ctx, keyUpdate).updateID
}

// UserIDFrom returns the Telegram user id.
func UserIDFrom(ctx context.Context) int64 {
	return value[updateMeta](ctx, keyUpdate).userID
}

// ChatIDFrom returns the Telegram chat id.
func ChatIDFrom(ctx context.Context) int64 {
	return value[updateMeta](ctx, keyUpdate).chatID
}

// WithHandler records the handler serving the update. Empty names are ignored.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		return orBackground(ctx)
	}
	return with(ctx, keyHandler, handler)
}

// HandlerFrom returns the handler name.
func HandlerFrom(ctx context.Context) string {
	return value[string](ctx, keyHandler)
}

// WithConversation records the conversation (chat) the work belongs to.
func WithConversation(ctx context.Context, conversationID string) context.Context {
	if conversationID == "" {
		return orBackground(ctx)
	}
	return with(ctx, keyConversation, conversationID)
}

// ConversationFrom returns the conversation id.
func ConversationFrom(ctx context.Context) string {
	return value[string](ctx, keyConversation)
}

// WithDialog records the active dialog and its current state.
func WithDialog(ctx context.Context, dialog, state string) context.Context {
	return with(ctx, keyDialog, dialogMeta{name: dialog, state: state})
}

// DialogFrom returns the dialog name and state stored by WithDialog.
func DialogFrom(ctx context.Context) (string, string) {
	d := value[dialogMeta](ctx, keyDialog)
	return d.name, d.state
}

// WithDialogRun records the id of one dialog run, from start to close.
func WithDialogRun(ctx context.Context, run string) context.Context {
	if run == "" {
		return orBackground(ctx)
	}
	return with(ctx, keyDialogRun, run)
}

// DialogRunFrom returns the dialog run id.
func DialogRunFrom(ctx context.Context) string {
	return value[string](ctx, keyDialogRun)
}

// Sanitize drops control and format runes except newline and tab.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit sanitizes s and cuts it to at most max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(Sanitize(s))
	if len(r) > max {
		r = r[:max]
	}
	return string(r)
}

// BuildRID returns the request id "updateID:chatID:userID".
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// CompactRID rewrites a BuildRID value as dot separated base36 numbers.
// Anything else is returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}
