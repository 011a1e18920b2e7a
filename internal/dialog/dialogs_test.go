package dialog_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/internal/dialog"
	"github.com/m3rciful/shopbot/internal/dialog/dialogtest"
	"github.com/m3rciful/shopbot/internal/store"
)

const conv = "C1"

func env(rec *dialogtest.Recorder) dialog.Env {
	return dialog.Env{ConversationID: conv, Responder: rec}
}

func key(id int64) string { return strconv.FormatInt(id, 10) }

func TestAddItemsCollectsAndSummarizes(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	rec := dialogtest.NewRecorder(conv)
	d := dialog.NewAddItems(env(rec), st, 0)

	require.True(t, d.Handle(ctx, dialogtest.Text(conv, "/multiadd")))
	assert.Equal(t, dialog.StateID("collect"), d.State())
	require.Len(t, rec.Messages(), 1)

	for _, text := range []string{"milk", "  ", "eggs"} {
		assert.True(t, d.Handle(ctx, dialogtest.Text(conv, text)))
	}
	items, err := st.List(ctx, conv, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"milk", "eggs"}, items)

	d.Close(ctx)
	assert.False(t, d.Active())
	assert.Equal(t, "Added 2 items 😀", rec.Last().Text)
	assert.Len(t, rec.Messages(), 2)
}

func TestAddItemsSummaryPluralization(t *testing.T) {
	ctx := context.Background()

	rec := dialogtest.NewRecorder(conv)
	d := dialog.NewAddItems(env(rec), store.NewMemoryStore(), 0)
	d.Handle(ctx, dialogtest.Text(conv, "/multiadd"))
	d.Handle(ctx, dialogtest.Text(conv, "bread"))
	d.Close(ctx)
	assert.Equal(t, "Added 1 item 😀", rec.Last().Text)

	// nothing added, no summary
	rec = dialogtest.NewRecorder(conv)
	d = dialog.NewAddItems(env(rec), store.NewMemoryStore(), 0)
	d.Handle(ctx, dialogtest.Text(conv, "/multiadd"))
	d.Close(ctx)
	assert.Len(t, rec.Messages(), 1)
}

func TestAddItemsIgnoresSelections(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	rec := dialogtest.NewRecorder(conv)
	d := dialog.NewAddItems(env(rec), st, 0)
	d.Handle(ctx, dialogtest.Text(conv, "/multiadd"))

	assert.True(t, d.Handle(ctx, dialogtest.Select(conv, dialog.MessageRef{ID: "99"}, "1")))
	items, _ := st.List(ctx, conv, false)
	assert.Empty(t, items)
	assert.Equal(t, []dialogtest.Ack{{Ref: dialog.SelectionRef{ID: "cb-1"}}}, rec.Acks())
	assert.True(t, d.Active())
}

func TestShoppingEmptyList(t *testing.T) {
	ctx := context.Background()
	rec := dialogtest.NewRecorder(conv)
	d := dialog.NewShopping(env(rec), store.NewMemoryStore(), 0)

	assert.True(t, d.Handle(ctx, dialogtest.Text(conv, "/shop")))
	assert.False(t, d.Active())
	assert.Equal(t, []string{"Your shopping list is already empty 😀"}, rec.Texts())
}

func TestShoppingTicksOffItems(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	milk, _ := st.Add(ctx, conv, "milk")
	eggs, _ := st.Add(ctx, conv, "eggs")
	rec := dialogtest.NewRecorder(conv)
	d := dialog.NewShopping(env(rec), st, 0)

	require.True(t, d.Handle(ctx, dialogtest.Text(conv, "/shop")))
	prompt := rec.Last()
	assert.Equal(t, []dialog.Option{{Key: key(milk), Label: "milk"}, {Key: key(eggs), Label: "eggs"}}, prompt.Options)

	require.True(t, d.Handle(ctx, dialogtest.Select(conv, prompt.Ref, key(milk))))
	assert.True(t, d.Active())
	checked, _ := st.List(ctx, conv, true)
	assert.Equal(t, []string{"milk"}, checked)
	assert.Equal(t, []string{"eggs"}, dialogtest.Labels(rec.Messages()[0].Options))
	assert.Equal(t, "Checked: milk", rec.Acks()[0].Text)

	require.True(t, d.Handle(ctx, dialogtest.Select(conv, prompt.Ref, key(eggs))))
	assert.False(t, d.Active())
	assert.Equal(t, "All done 🎉 You bought:\n✔ milk\n✔ eggs", rec.Last().Text)
	assert.Empty(t, rec.Messages()[0].Options, "selection UI removed on close")

	dump, _ := st.Dump(ctx)
	assert.Empty(t, dump)
}

func TestShoppingMalformedAndStaleSelections(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	milk, _ := st.Add(ctx, conv, "milk")
	_, _ = st.Add(ctx, conv, "eggs")
	foreign, _ := st.Add(ctx, "C2", "salt")
	rec := dialogtest.NewRecorder(conv)
	d := dialog.NewShopping(env(rec), st, 0)
	d.Handle(ctx, dialogtest.Text(conv, "/shop"))
	prompt := rec.Last()

	// text while selecting
	assert.True(t, d.Handle(ctx, dialogtest.Text(conv, "hello")))
	// unparsable key
	assert.True(t, d.Handle(ctx, dialogtest.Select(conv, prompt.Ref, "abc")))
	// id of another conversation
	assert.True(t, d.Handle(ctx, dialogtest.Select(conv, prompt.Ref, key(foreign))))
	// keyboard of an older message
	old := dialog.MessageRef{Conversation: conv, ID: "old"}
	assert.True(t, d.Handle(ctx, dialogtest.Select(conv, old, key(milk))))

	assert.True(t, d.Active())
	checked, _ := st.List(ctx, conv, true)
	assert.Empty(t, checked)
	other, _ := st.List(ctx, "C2", false)
	assert.Equal(t, []string{"salt"}, other)
	assert.Equal(t, "This list is outdated", rec.Acks()[len(rec.Acks())-1].Text)
}

func TestShoppingStoreFailureStays(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	_, _ = st.Add(ctx, conv, "milk")
	rec := dialogtest.NewRecorder(conv)
	d := dialog.NewShopping(env(rec), st, 0)

	rec.Err = errors.New("network")
	assert.False(t, d.Handle(ctx, dialogtest.Text(conv, "/shop")))
	assert.True(t, d.Active())
	assert.Equal(t, dialog.StateStart, d.State())

	rec.Err = nil
	assert.True(t, d.Handle(ctx, dialogtest.Text(conv, "/shop")))
	assert.Equal(t, dialog.StateID("select"), d.State())
}

func TestShoppingCloseRemovesOptions(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	_, _ = st.Add(ctx, conv, "milk")
	rec := dialogtest.NewRecorder(conv)
	d := dialog.NewShopping(env(rec), st, 0)
	d.Handle(ctx, dialogtest.Text(conv, "/shop"))
	require.NotEmpty(t, rec.Last().Options)

	d.Close(ctx)
	assert.Empty(t, rec.Last().Options)
	items, _ := st.List(ctx, conv, false)
	assert.Equal(t, []string{"milk"}, items)
}

func TestSwapExchangesTexts(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	milk, _ := st.Add(ctx, conv, "milk")
	eggs, _ := st.Add(ctx, conv, "eggs")
	rec := dialogtest.NewRecorder(conv)
	d := dialog.NewSwap(env(rec), st, 0)

	require.True(t, d.Handle(ctx, dialogtest.Text(conv, "/swap")))
	prompt := rec.Last()
	assert.Equal(t, []string{"milk", "eggs"}, dialogtest.Labels(prompt.Options))

	require.True(t, d.Handle(ctx, dialogtest.Select(conv, prompt.Ref, key(milk))))
	assert.Equal(t, dialog.StateID("select_second"), d.State())
	assert.Equal(t, []string{"eggs"}, dialogtest.Labels(rec.Messages()[0].Options))
	assert.Equal(t, "Swap “milk” with:", rec.Messages()[0].Text)

	require.True(t, d.Handle(ctx, dialogtest.Select(conv, prompt.Ref, key(eggs))))
	assert.Equal(t, dialog.StateID("select_first"), d.State())
	assert.True(t, d.Active())

	entries, _ := st.Enumerate(ctx, conv, false)
	assert.Equal(t, []store.Entry{{ID: milk, Text: "eggs"}, {ID: eggs, Text: "milk"}}, entries)
	assert.Equal(t, []string{"eggs", "milk"}, dialogtest.Labels(rec.Messages()[0].Options))
	assert.Equal(t, "Pick the first item to swap:", rec.Messages()[0].Text)

	d.Close(ctx)
	assert.Empty(t, rec.Messages()[0].Options)
}

func TestSwapIncludesCheckedItems(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	bread, _ := st.Add(ctx, conv, "bread")
	_, _ = st.Add(ctx, conv, "milk")
	_, _, _ = st.Check(ctx, conv, bread)
	rec := dialogtest.NewRecorder(conv)
	d := dialog.NewSwap(env(rec), st, 0)

	d.Handle(ctx, dialogtest.Text(conv, "/swap"))
	assert.Equal(t, []string{"milk", "✔ bread"}, dialogtest.Labels(rec.Last().Options))
}

func TestSwapSameItemAborts(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	milk, _ := st.Add(ctx, conv, "milk")
	_, _ = st.Add(ctx, conv, "eggs")
	rec := dialogtest.NewRecorder(conv)
	d := dialog.NewSwap(env(rec), st, 0)
	d.Handle(ctx, dialogtest.Text(conv, "/swap"))
	prompt := rec.Last()

	d.Handle(ctx, dialogtest.Select(conv, prompt.Ref, key(milk)))
	require.True(t, d.Handle(ctx, dialogtest.Select(conv, prompt.Ref, key(milk))))
	assert.Equal(t, dialog.StateID("select_first"), d.State())
	items, _ := st.List(ctx, conv, false)
	assert.Equal(t, []string{"milk", "eggs"}, items)
}

func TestSwapEmptyAndSingle(t *testing.T) {
	ctx := context.Background()
	rec := dialogtest.NewRecorder(conv)
	d := dialog.NewSwap(env(rec), store.NewMemoryStore(), 0)
	assert.True(t, d.Handle(ctx, dialogtest.Text(conv, "/swap")))
	assert.False(t, d.Active())
	assert.Empty(t, rec.Messages())

	st := store.NewMemoryStore()
	only, _ := st.Add(ctx, conv, "milk")
	rec = dialogtest.NewRecorder(conv)
	d = dialog.NewSwap(env(rec), st, 0)
	d.Handle(ctx, dialogtest.Text(conv, "/swap"))
	d.Handle(ctx, dialogtest.Select(conv, rec.Last().Ref, key(only)))
	assert.False(t, d.Active())
	assert.Equal(t, "Nothing to swap with", rec.Acks()[0].Text)
}
