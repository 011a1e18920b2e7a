package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/internal/store"
)

// SwapName is the dialog name used in logs and config.
const SwapName = "swap"

const (
	stateSelectFirst  StateID = "select_first"
	stateSelectSecond StateID = "select_second"
)

const msgPickFirst = "Pick the first item to swap:"

type swapItems struct {
	store  store.Store
	prompt MessageRef
	// labels of the options currently rendered, by key
	labels map[string]string
	first  int64
	// hasFirst is false until select_first recorded a selection
	hasFirst bool
}

var swapGraph = NewGraph(SwapName, 120*time.Second, map[StateID]StateFunc[*swapItems]{
	StateStart:        (*swapItems).start,
	stateSelectFirst:  (*swapItems).selectFirst,
	stateSelectSecond: (*swapItems).selectSecond,
	StateClose:        (*swapItems).close,
})

// NewSwap starts a dialog that exchanges the texts of two picked items.
func NewSwap(env Env, st store.Store, timeout time.Duration) Dialog {
	return New(swapGraph, &swapItems{store: st}, env, timeout)
}

// options lists unchecked items first, then checked ones, skipping exclude.
func (d *swapItems) options(ctx context.Context, conv string, exclude string) ([]Option, error) {
	unchecked, err := d.store.Enumerate(ctx, conv, false)
	if err != nil {
		return nil, fmt.Errorf("enumerate items: %w", err)
	}
	checked, err := d.store.Enumerate(ctx, conv, true)
	if err != nil {
		return nil, fmt.Errorf("enumerate items: %w", err)
	}
	all := append(entryOptions(unchecked, ""), entryOptions(checked, checkedMark)...)
	d.labels = make(map[string]string, len(all))
	out := all[:0]
	for _, opt := range all {
		d.labels[opt.Key] = opt.Label
		if opt.Key != exclude {
			out = append(out, opt)
		}
	}
	return out, nil
}

func (d *swapItems) start(ctx context.Context, env Env, _ Event) (Transition, error) {
	opts, err := d.options(ctx, env.ConversationID, "")
	if err != nil {
		return Stay(), err
	}
	if len(opts) == 0 {
		logger.Debug(ctx, logger.CompDialog, "dialog.swap.empty", slog.String("status", "skip"))
		return Close(), nil
	}
	ref, err := env.Responder.Send(ctx, msgPickFirst, opts)
	if err != nil {
		return Stay(), err
	}
	d.prompt = ref
	return GoTo(stateSelectFirst), nil
}

func (d *swapItems) selectFirst(ctx context.Context, env Env, ev Event) (Transition, error) {
	if outdated(ev, d.prompt) {
		acknowledge(ctx, env, ev, msgOutdated)
		return Stay(), nil
	}
	id, ok := selectedID(ctx, ev)
	if !ok {
		acknowledge(ctx, env, ev, "")
		return Stay(), nil
	}
	d.first, d.hasFirst = id, true
	label := d.labels[ev.SelectionKey]

	opts, err := d.options(ctx, env.ConversationID, ev.SelectionKey)
	if err != nil {
		return Stay(), err
	}
	if len(opts) == 0 {
		acknowledge(ctx, env, ev, "Nothing to swap with")
		return Close(), nil
	}
	acknowledge(ctx, env, ev, label)
	if err := env.Responder.UpdateText(ctx, d.prompt, fmt.Sprintf("Swap “%s” with:", label)); err != nil {
		return Stay(), err
	}
	if err := env.Responder.UpdateOptions(ctx, d.prompt, opts); err != nil {
		return Stay(), err
	}
	return GoTo(stateSelectSecond), nil
}

func (d *swapItems) selectSecond(ctx context.Context, env Env, ev Event) (Transition, error) {
	if outdated(ev, d.prompt) {
		acknowledge(ctx, env, ev, msgOutdated)
		return Stay(), nil
	}
	id, ok := selectedID(ctx, ev)
	if !ok {
		acknowledge(ctx, env, ev, "")
		return Stay(), nil
	}
	first, hasFirst := d.first, d.hasFirst
	d.first, d.hasFirst = 0, false

	switch {
	case !hasFirst || id == first:
		// nothing to swap
		acknowledge(ctx, env, ev, "")
	default:
		err := d.store.Swap(ctx, env.ConversationID, first, id)
		switch {
		case err == nil:
			acknowledge(ctx, env, ev, "Swapped")
		case errors.Is(err, store.ErrNotOwned), errors.Is(err, store.ErrNotFound):
			acknowledge(ctx, env, ev, "")
		default:
			return Stay(), fmt.Errorf("swap items %d and %d: %w", first, id, err)
		}
	}

	if err := d.rerender(ctx, env); err != nil {
		return Stay(), err
	}
	return GoTo(stateSelectFirst), nil
}

// rerender shows the full list again under the first-pick prompt.
func (d *swapItems) rerender(ctx context.Context, env Env) error {
	opts, err := d.options(ctx, env.ConversationID, "")
	if err != nil {
		return err
	}
	if err := env.Responder.UpdateText(ctx, d.prompt, msgPickFirst); err != nil {
		return err
	}
	return env.Responder.UpdateOptions(ctx, d.prompt, opts)
}

func (d *swapItems) close(ctx context.Context, env Env, _ Event) (Transition, error) {
	return Close(), removeOptions(ctx, env, d.prompt)
}
