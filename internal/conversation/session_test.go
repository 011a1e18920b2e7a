package conversation_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/m3rciful/shopbot/internal/command"
	"github.com/m3rciful/shopbot/internal/conversation"
	"github.com/m3rciful/shopbot/internal/dialog"
	"github.com/m3rciful/shopbot/internal/dialog/dialogtest"
	"github.com/m3rciful/shopbot/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTimer struct {
	sched   *fakeScheduler
	d       time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) conversation.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{sched: s, d: d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// pending returns the armed timers.
func (s *fakeScheduler) pending() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

// fire runs the latest armed timer as if it expired.
func (s *fakeScheduler) fire(t *testing.T) {
	t.Helper()
	p := s.pending()
	require.NotEmpty(t, p, "no armed timer")
	timer := p[len(p)-1]
	timer.Stop()
	timer.fn()
}

type fixture struct {
	st      *store.MemoryStore
	sched   *fakeScheduler
	mgr     *conversation.Manager
	mu      sync.Mutex
	replies map[string]*dialogtest.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		st:      store.NewMemoryStore(),
		sched:   &fakeScheduler{},
		replies: make(map[string]*dialogtest.Recorder),
	}
	router := command.NewRouter()
	conversation.RegisterDefaults(router, f.st, conversation.Timeouts{AddItems: time.Minute})
	f.mgr = conversation.NewManager(router, func(conv string) dialog.Responder {
		f.mu.Lock()
		defer f.mu.Unlock()
		// a chat keeps its history across evicted sessions
		rec, ok := f.replies[conv]
		if !ok {
			rec = dialogtest.NewRecorder(conv)
			f.replies[conv] = rec
		}
		return rec
	}, f.sched)
	f.mgr.SetBotName("ShopBot")
	return f
}

func (f *fixture) text(conv, text string) {
	f.mgr.HandleEvent(context.Background(), dialogtest.Text(conv, text))
}

func (f *fixture) textFrom(conv, text string, sender dialog.Sender) {
	ev := dialogtest.Text(conv, text)
	ev.Sender = sender
	f.mgr.HandleEvent(context.Background(), ev)
}

func (f *fixture) pick(conv string, ref dialog.MessageRef, id int64) {
	f.mgr.HandleEvent(context.Background(), dialogtest.Select(conv, ref, strconv.FormatInt(id, 10)))
}

func (f *fixture) out(conv string) *dialogtest.Recorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replies[conv]
}

func TestMultiAddTimeoutSummary(t *testing.T) {
	f := newFixture(t)
	f.text("C1", "/multiadd")
	f.text("C1", "milk")
	f.text("C1", "eggs")

	items, err := f.st.Enumerate(context.Background(), "C1", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"milk", "eggs"}, store.Texts(items))
	assert.Equal(t, dialog.AddItemsName, f.mgr.Session("C1").ActiveDialog())

	pending := f.sched.pending()
	require.Len(t, pending, 1)
	assert.Equal(t, time.Minute, pending[0].d)

	f.sched.fire(t)
	assert.Equal(t, "Added 2 items 😀", f.out("C1").Last().Text)
	assert.Empty(t, f.mgr.Session("C1").ActiveDialog())
	assert.Empty(t, f.sched.pending())
}

func TestMultiAddTimeoutWithoutItems(t *testing.T) {
	f := newFixture(t)
	f.text("C1", "/multiadd")
	before := len(f.out("C1").Messages())

	f.sched.fire(t)
	assert.Len(t, f.out("C1").Messages(), before)
	assert.Empty(t, f.mgr.Session("C1").ActiveDialog())
}

func TestEveryEventRearmsTimer(t *testing.T) {
	f := newFixture(t)
	f.text("C1", "/multiadd")
	first := f.sched.pending()
	require.Len(t, first, 1)

	f.text("C1", "milk")
	assert.True(t, first[0].stopped)
	require.Len(t, f.sched.pending(), 1)

	// a stale timer that fires anyway is ignored
	first[0].fn()
	assert.Equal(t, dialog.AddItemsName, f.mgr.Session("C1").ActiveDialog())
}

func TestShopScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	milk, _ := f.st.Add(ctx, "C1", "milk")
	eggs, _ := f.st.Add(ctx, "C1", "eggs")

	f.text("C1", "/shop")
	prompt := f.out("C1").Last()
	assert.Equal(t, []string{"milk", "eggs"}, dialogtest.Labels(prompt.Options))

	f.pick("C1", prompt.Ref, milk)
	checked, _ := f.st.List(ctx, "C1", true)
	assert.Equal(t, []string{"milk"}, checked)
	assert.Equal(t, []string{"eggs"}, dialogtest.Labels(f.out("C1").Messages()[0].Options))

	f.pick("C1", prompt.Ref, eggs)
	assert.Equal(t, "All done 🎉 You bought:\n✔ milk\n✔ eggs", f.out("C1").Last().Text)
	dump, _ := f.st.Dump(ctx)
	assert.Empty(t, dump)
	assert.Empty(t, f.mgr.Session("C1").ActiveDialog())
	assert.Empty(t, f.sched.pending())
}

func TestSwapScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	milk, _ := f.st.Add(ctx, "C1", "milk")
	eggs, _ := f.st.Add(ctx, "C1", "eggs")

	f.text("C1", "/swap")
	prompt := f.out("C1").Last()
	f.pick("C1", prompt.Ref, milk)
	f.pick("C1", prompt.Ref, eggs)

	entries, _ := f.st.Enumerate(ctx, "C1", false)
	assert.Equal(t, []store.Entry{{ID: milk, Text: "eggs"}, {ID: eggs, Text: "milk"}}, entries)
	assert.Equal(t, dialog.SwapName, f.mgr.Session("C1").ActiveDialog())
}

func TestCommandPreemptsDialog(t *testing.T) {
	f := newFixture(t)
	f.text("C1", "/multiadd")
	f.text("C1", "milk")

	f.text("C1", "/list")
	texts := f.out("C1").Texts()
	assert.Equal(t, "Added 1 item 😀", texts[len(texts)-2])
	assert.Equal(t, "Your shopping list:\n• milk", texts[len(texts)-1])
	assert.Empty(t, f.mgr.Session("C1").ActiveDialog())
	assert.Empty(t, f.sched.pending())

	// after the pre-emption plain text is no longer an item
	f.text("C1", "bread")
	items, _ := f.st.List(context.Background(), "C1", false)
	assert.Equal(t, []string{"milk"}, items)
}

func TestCancelClosesDialog(t *testing.T) {
	f := newFixture(t)
	f.text("C1", "/multiadd")
	f.text("C1", "milk")
	f.text("C1", "/cancel")
	assert.Equal(t, "Added 1 item 😀", f.out("C1").Last().Text)
	assert.Empty(t, f.mgr.Session("C1").ActiveDialog())

	// noop without a dialog does nothing
	n := len(f.out("C1").Messages())
	f.text("C1", "/cancel")
	assert.Len(t, f.out("C1").Messages(), n)
}

func TestForeignBotCommandGoesToDialog(t *testing.T) {
	f := newFixture(t)
	f.text("C1", "/multiadd")
	f.text("C1", "/list@OtherBot")
	assert.Equal(t, dialog.AddItemsName, f.mgr.Session("C1").ActiveDialog())
	items, _ := f.st.List(context.Background(), "C1", false)
	assert.Equal(t, []string{"/list@OtherBot"}, items)
}

func TestConversationsAreIsolated(t *testing.T) {
	f := newFixture(t)
	f.text("C1", "/multiadd")
	f.text("C2", "/multiadd")
	f.text("C1", "milk")
	f.text("C2", "salt")

	c1, _ := f.st.List(context.Background(), "C1", false)
	c2, _ := f.st.List(context.Background(), "C2", false)
	assert.Equal(t, []string{"milk"}, c1)
	assert.Equal(t, []string{"salt"}, c2)
	assert.Equal(t, 2, f.mgr.Len())
}

func TestActionCommands(t *testing.T) {
	f := newFixture(t)
	f.textFrom("C1", "/start", dialog.Sender{ID: 7, FirstName: "Ada", LastName: "Lovelace"})
	assert.Contains(t, f.out("C1").Last().Text, "Welcome Ada Lovelace")
	assert.Contains(t, f.out("C1").Last().Text, "/multiadd - ")
	assert.NotContains(t, f.out("C1").Last().Text, "/dump")

	f.text("C1", "/list")
	assert.Equal(t, "Your shopping list is empty", f.out("C1").Last().Text)

	f.text("C1", "/add")
	assert.Equal(t, "Usage: /add <item>", f.out("C1").Last().Text)

	f.text("C1", "/add@ShopBot whole milk")
	assert.Equal(t, "Added “whole milk” 😀", f.out("C1").Last().Text)
	items, _ := f.st.List(context.Background(), "C1", false)
	assert.Equal(t, []string{"whole milk"}, items)

	f.text("C1", "hello")
	assert.Equal(t, "Added “whole milk” 😀", f.out("C1").Last().Text)
}

func TestDumpIsAdminOnly(t *testing.T) {
	f := newFixture(t)
	_, _ = f.st.Add(context.Background(), "C1", "milk")

	f.textFrom("C1", "/dump", dialog.Sender{ID: 1})
	assert.Empty(t, f.out("C1").Messages())

	f.textFrom("C1", "/dump", dialog.Sender{ID: 1, Admin: true})
	assert.Equal(t, "Dumped 1 item to the log", f.out("C1").Last().Text)
}

func TestSelectionWithoutDialogIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	f.pick("C1", dialog.MessageRef{Conversation: "C1", ID: "9"}, 1)
	acks := f.out("C1").Acks()
	require.Len(t, acks, 1)
	assert.Equal(t, "", acks[0].Text)
}

func TestCloseAllFlushesSummaries(t *testing.T) {
	f := newFixture(t)
	f.text("C1", "/multiadd")
	f.text("C1", "milk")
	f.text("C2", "/list")

	f.mgr.CloseAll(context.Background())
	assert.Equal(t, "Added 1 item 😀", f.out("C1").Last().Text)
	assert.Empty(t, f.mgr.Session("C1").ActiveDialog())
	assert.Empty(t, f.sched.pending())
}

func TestSystemSchedulerTimeout(t *testing.T) {
	router := command.NewRouter()
	st := store.NewMemoryStore()
	conversation.RegisterDefaults(router, st, conversation.Timeouts{AddItems: 20 * time.Millisecond})
	rec := dialogtest.NewRecorder("C1")
	s := conversation.NewSession("C1", router, rec, nil, nil)

	s.HandleEvent(context.Background(), dialogtest.Text("C1", "/multiadd"))
	s.HandleEvent(context.Background(), dialogtest.Text("C1", "milk"))
	assert.Eventually(t, func() bool { return s.ActiveDialog() == "" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Added 1 item 😀", rec.Last().Text)
}

func TestIdleSessionsAreEvicted(t *testing.T) {
	f := newFixture(t)
	f.text("C1", "/list")
	assert.Zero(t, f.mgr.Len())

	f.text("C1", "/multiadd")
	f.text("C1", "milk")
	assert.Equal(t, 1, f.mgr.Len())

	f.sched.fire(t)
	assert.Zero(t, f.mgr.Len())
	assert.Equal(t, []string{
		"Your shopping list is empty",
		"What should I add? Send one item per message.",
		"Added 1 item 😀",
	}, f.out("C1").Texts())

	f.text("C2", "/multiadd")
	f.text("C2", "/cancel")
	assert.Zero(t, f.mgr.Len())
}

func TestConcurrentEventsAcrossEviction(t *testing.T) {
	f := newFixture(t)
	const n = 32

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.text("C1", "/add item"+strconv.Itoa(i))
		}()
	}
	wg.Wait()

	items, err := f.st.List(context.Background(), "C1", false)
	require.NoError(t, err)
	assert.Len(t, items, n)
	assert.Zero(t, f.mgr.Len())
}
