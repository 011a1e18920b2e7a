package middleware

import (
	"sync"

	tele "gopkg.in/telebot.v4"
)

const countersKey = "reply_counters"

// replyCounters tracks what a handler sent back through its tele.Context.
type replyCounters struct {
	mu       sync.Mutex
	messages int
	keyboard bool
}

func (r *replyCounters) add(opts []interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages++
	if hasKeyboard(opts) {
		r.keyboard = true
	}
}

func hasKeyboard(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

// countingContext counts successful replies made through the context.
type countingContext struct {
	tele.Context
	counters *replyCounters
}

func (m countingContext) Send(what interface{}, opts ...interface{}) error {
	err := m.Context.Send(what, opts...)
	if err == nil {
		m.counters.add(opts)
	}
	return err
}

func (m countingContext) Reply(what interface{}, opts ...interface{}) error {
	err := m.Context.Reply(what, opts...)
	if err == nil {
		m.counters.add(opts)
	}
	return err
}

func (m countingContext) Edit(what interface{}, opts ...interface{}) error {
	err := m.Context.Edit(what, opts...)
	if err == nil {
		m.counters.add(opts)
	}
	return err
}

func (m countingContext) Respond(resp ...*tele.CallbackResponse) error {
	err := m.Context.Respond(resp...)
	if err == nil {
		m.counters.add(nil)
	}
	return err
}

// MessageMetricsMiddleware wraps the context so GetCounters can report the
// replies a handler produced.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		rc := &replyCounters{}
		c.Set(countersKey, rc)
		return next(countingContext{Context: c, counters: rc})
	}
}

// GetCounters returns the number of replies sent for the update and whether
// any of them carried a keyboard.
func GetCounters(c tele.Context) (int, bool) {
	rc, ok := c.Get(countersKey).(*replyCounters)
	if !ok {
		return 0, false
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.messages, rc.keyboard
}
