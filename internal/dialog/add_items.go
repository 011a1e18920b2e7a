package dialog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/shopbot/internal/store"
)

// AddItemsName is the dialog name used in logs and config.
const AddItemsName = "add_items"

const stateCollect StateID = "collect"

type addItems struct {
	store store.Store
	count int
}

var addItemsGraph = NewGraph(AddItemsName, 60*time.Second, map[StateID]StateFunc[*addItems]{
	StateStart:   (*addItems).start,
	stateCollect: (*addItems).collect,
	StateClose:   (*addItems).close,
})

// NewAddItems starts a dialog that stores every text message as a new item.
func NewAddItems(env Env, st store.Store, timeout time.Duration) Dialog {
	return New(addItemsGraph, &addItems{store: st}, env, timeout)
}

func (d *addItems) start(ctx context.Context, env Env, _ Event) (Transition, error) {
	if _, err := env.Responder.Send(ctx, "What should I add? Send one item per message.", nil); err != nil {
		return Stay(), err
	}
	return GoTo(stateCollect), nil
}

func (d *addItems) collect(ctx context.Context, env Env, ev Event) (Transition, error) {
	if ev.Kind != EventText {
		// no keyboard belongs to this dialog; answer so the client stops waiting
		acknowledge(ctx, env, ev, "")
		return Stay(), nil
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return Stay(), nil
	}
	if _, err := d.store.Add(ctx, env.ConversationID, text); err != nil {
		return Stay(), fmt.Errorf("add item: %w", err)
	}
	d.count++
	return Stay(), nil
}

func (d *addItems) close(ctx context.Context, env Env, _ Event) (Transition, error) {
	if d.count == 0 {
		return Close(), nil
	}
	msg := fmt.Sprintf("Added %d %s 😀", d.count, plural(d.count, "item", "items"))
	if _, err := env.Responder.Send(ctx, msg, nil); err != nil {
		return Close(), err
	}
	return Close(), nil
}
