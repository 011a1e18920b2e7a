package dialog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/shopbot/internal/store"
)

// ShoppingName is the dialog name used in logs and config.
const ShoppingName = "shopping"

const stateSelect StateID = "select"

const (
	msgAlreadyEmpty = "Your shopping list is already empty 😀"
	msgOutdated     = "This list is outdated"
)

type shopping struct {
	store  store.Store
	prompt MessageRef
}

var shoppingGraph = NewGraph(ShoppingName, 300*time.Second, map[StateID]StateFunc[*shopping]{
	StateStart:  (*shopping).start,
	stateSelect: (*shopping).pick,
	StateClose:  (*shopping).close,
})

// NewShopping starts a dialog that ticks off unchecked items one tap at a time.
func NewShopping(env Env, st store.Store, timeout time.Duration) Dialog {
	return New(shoppingGraph, &shopping{store: st}, env, timeout)
}

func (d *shopping) start(ctx context.Context, env Env, _ Event) (Transition, error) {
	entries, err := d.store.Enumerate(ctx, env.ConversationID, false)
	if err != nil {
		return Stay(), fmt.Errorf("enumerate items: %w", err)
	}
	if len(entries) == 0 {
		if _, err := env.Responder.Send(ctx, msgAlreadyEmpty, nil); err != nil {
			return Stay(), err
		}
		return Close(), nil
	}
	ref, err := env.Responder.Send(ctx, "Tap what you have picked up:", entryOptions(entries, ""))
	if err != nil {
		return Stay(), err
	}
	d.prompt = ref
	return GoTo(stateSelect), nil
}

func (d *shopping) pick(ctx context.Context, env Env, ev Event) (Transition, error) {
	if outdated(ev, d.prompt) {
		acknowledge(ctx, env, ev, msgOutdated)
		return Stay(), nil
	}
	id, ok := selectedID(ctx, ev)
	if !ok {
		acknowledge(ctx, env, ev, "")
		return Stay(), nil
	}
	owned, item, err := d.store.Check(ctx, env.ConversationID, id)
	if err != nil {
		return Stay(), fmt.Errorf("check item %d: %w", id, err)
	}
	if !owned {
		acknowledge(ctx, env, ev, "")
		return Stay(), nil
	}
	if item != nil {
		acknowledge(ctx, env, ev, "Checked: "+item.Text)
	} else {
		acknowledge(ctx, env, ev, "")
	}

	remaining, err := d.store.Enumerate(ctx, env.ConversationID, false)
	if err != nil {
		return Stay(), fmt.Errorf("enumerate items: %w", err)
	}
	if len(remaining) > 0 {
		if err := env.Responder.UpdateOptions(ctx, d.prompt, entryOptions(remaining, "")); err != nil {
			return Stay(), err
		}
		return Stay(), nil
	}
	return d.finish(ctx, env)
}

// finish reports the checked items, drops them and closes the dialog.
func (d *shopping) finish(ctx context.Context, env Env) (Transition, error) {
	bought, err := d.store.List(ctx, env.ConversationID, true)
	if err != nil {
		return Stay(), fmt.Errorf("list checked items: %w", err)
	}
	var b strings.Builder
	b.WriteString("All done 🎉 You bought:")
	for _, text := range bought {
		b.WriteString("\n")
		b.WriteString(checkedMark)
		b.WriteString(text)
	}
	if _, err := env.Responder.Send(ctx, b.String(), nil); err != nil {
		return Stay(), err
	}
	if _, err := d.store.RemoveChecked(ctx, env.ConversationID); err != nil {
		return Stay(), fmt.Errorf("remove checked items: %w", err)
	}
	return Close(), nil
}

func (d *shopping) close(ctx context.Context, env Env, _ Event) (Transition, error) {
	return Close(), removeOptions(ctx, env, d.prompt)
}
