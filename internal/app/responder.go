package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/keyboard"
	"github.com/m3rciful/shopbot/core/telegram/sender"
	"github.com/m3rciful/shopbot/internal/dialog"

	tele "gopkg.in/telebot.v4"
)

// selectionUnique is the callback unique carried by every option button.
const selectionUnique = "sel"

// botAPI is the part of *tele.Bot the responder needs.
type botAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	EditReplyMarkup(msg tele.Editable, markup *tele.ReplyMarkup) (*tele.Message, error)
	Respond(c *tele.Callback, resp ...*tele.CallbackResponse) error
}

// enqueuer runs outbound calls asynchronously; *sender.Dispatcher satisfies it.
type enqueuer interface {
	Enqueue(ctx context.Context, action, endpoint string, run func() error) error
}

// Responder delivers dialog output to one Telegram chat. Options are cached per
// message because editing the text of a message drops its inline keyboard.
type Responder struct {
	bot  botAPI
	disp enqueuer
	conv string
	chat tele.ChatID

	mu      sync.Mutex
	options map[string][]dialog.Option
}

var _ dialog.Responder = (*Responder)(nil)

// NewResponder returns a responder for conversation conv, which must be a chat id.
// disp may be nil, in which case acknowledgements are sent synchronously.
func NewResponder(bot botAPI, disp enqueuer, conv string) (*Responder, error) {
	id, err := strconv.ParseInt(conv, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("conversation %q is not a chat id: %w", conv, err)
	}
	return &Responder{
		bot:     bot,
		disp:    disp,
		conv:    conv,
		chat:    tele.ChatID(id),
		options: make(map[string][]dialog.Option),
	}, nil
}

func (r *Responder) Send(ctx context.Context, text string, options []dialog.Option) (dialog.MessageRef, error) {
	var (
		msg *tele.Message
		err error
	)
	if len(options) > 0 {
		msg, err = r.bot.Send(r.chat, text, markup(options))
	} else {
		msg, err = r.bot.Send(r.chat, text)
	}
	if err != nil {
		return dialog.MessageRef{}, fmt.Errorf("send message: %w", err)
	}
	ref := dialog.MessageRef{Conversation: r.conv, ID: strconv.Itoa(msg.ID)}
	if len(options) > 0 {
		r.remember(ref.ID, options)
	}
	logger.Debug(ctx, logger.CompTG, "responder.send",
		slog.String("message_id", ref.ID),
		slog.Int("options", len(options)),
		slog.Int("text_len", len(text)),
	)
	return ref, nil
}

func (r *Responder) UpdateOptions(ctx context.Context, ref dialog.MessageRef, options []dialog.Option) error {
	msg, err := r.editable(ref)
	if err != nil {
		return err
	}
	rm := &tele.ReplyMarkup{}
	if len(options) > 0 {
		rm = markup(options)
	}
	if _, err := r.bot.EditReplyMarkup(msg, rm); err != nil && !notModified(err) {
		return fmt.Errorf("edit reply markup: %w", err)
	}
	r.remember(ref.ID, options)
	logger.Debug(ctx, logger.CompTG, "responder.update_options",
		slog.String("message_id", ref.ID),
		slog.Int("options", len(options)),
	)
	return nil
}

func (r *Responder) UpdateText(ctx context.Context, ref dialog.MessageRef, text string) error {
	msg, err := r.editable(ref)
	if err != nil {
		return err
	}
	var opts []interface{}
	if cached := r.cached(ref.ID); len(cached) > 0 {
		opts = append(opts, markup(cached))
	}
	if _, err := r.bot.Edit(msg, text, opts...); err != nil && !notModified(err) {
		return fmt.Errorf("edit message: %w", err)
	}
	logger.Debug(ctx, logger.CompTG, "responder.update_text",
		slog.String("message_id", ref.ID),
		slog.Int("text_len", len(text)),
	)
	return nil
}

// Acknowledge answers the callback query through the dispatcher so a slow
// answer never holds the session lock.
func (r *Responder) Acknowledge(ctx context.Context, ref dialog.SelectionRef, text string) error {
	if ref.ID == "" {
		return nil
	}
	run := func() error {
		return r.bot.Respond(&tele.Callback{ID: ref.ID}, &tele.CallbackResponse{Text: text})
	}
	if r.disp == nil {
		return run()
	}
	if err := r.disp.Enqueue(ctx, "callback.answer", "answerCallbackQuery", run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, logger.CompTGSender, "queue.fallback",
				slog.String("action", "callback.answer"),
				slog.String("err", err.Error()),
			)
			return run()
		}
		return err
	}
	return nil
}

func (r *Responder) editable(ref dialog.MessageRef) (tele.StoredMessage, error) {
	if ref.Conversation != "" && ref.Conversation != r.conv {
		return tele.StoredMessage{}, fmt.Errorf("message %s belongs to conversation %s", ref.ID, ref.Conversation)
	}
	if ref.ID == "" {
		return tele.StoredMessage{}, errors.New("empty message reference")
	}
	return tele.StoredMessage{MessageID: ref.ID, ChatID: int64(r.chat)}, nil
}

func (r *Responder) remember(id string, options []dialog.Option) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(options) == 0 {
		delete(r.options, id)
		return
	}
	r.options[id] = append([]dialog.Option(nil), options...)
}

func (r *Responder) cached(id string) []dialog.Option {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.options[id]
}

// markup renders options as one inline button per row.
func markup(options []dialog.Option) *tele.ReplyMarkup {
	btns := make([]keyboard.InlineBtn, len(options))
	for i, o := range options {
		btns[i] = keyboard.InlineBtn{Text: o.Label, Unique: selectionUnique, Data: o.Key}
	}
	return keyboard.InlineButtons(btns)
}

// notModified reports Telegram's rejection of an edit that changes nothing.
func notModified(err error) bool {
	return errors.Is(err, tele.ErrSameMessageContent) || errors.Is(err, tele.ErrMessageNotModified)
}
