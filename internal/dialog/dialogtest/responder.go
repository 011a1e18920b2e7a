// Package dialogtest provides a recording Responder for tests.
package dialogtest

import (
	"context"
	"strconv"
	"sync"

	"github.com/m3rciful/shopbot/internal/dialog"
)

// Sent is a message sent through the Recorder.
type Sent struct {
	Ref     dialog.MessageRef
	Text    string
	Options []dialog.Option
}

// Ack is a recorded selection acknowledgement.
type Ack struct {
	Ref  dialog.SelectionRef
	Text string
}

// Recorder implements dialog.Responder in memory. Messages keep their latest
// text and options so tests can assert on what the user currently sees.
type Recorder struct {
	mu     sync.Mutex
	conv   string
	nextID int
	sent   []*Sent
	acks   []Ack
	// Err, when set, is returned by every call.
	Err error
}

var _ dialog.Responder = (*Recorder)(nil)

// NewRecorder returns a Recorder for conversation conv.
func NewRecorder(conv string) *Recorder {
	return &Recorder{conv: conv}
}

func (r *Recorder) Send(_ context.Context, text string, options []dialog.Option) (dialog.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return dialog.MessageRef{}, r.Err
	}
	r.nextID++
	ref := dialog.MessageRef{Conversation: r.conv, ID: strconv.Itoa(r.nextID)}
	r.sent = append(r.sent, &Sent{Ref: ref, Text: text, Options: append([]dialog.Option(nil), options...)})
	return ref, nil
}

func (r *Recorder) UpdateOptions(_ context.Context, ref dialog.MessageRef, options []dialog.Option) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if m := r.find(ref); m != nil {
		m.Options = append([]dialog.Option(nil), options...)
	}
	return nil
}

func (r *Recorder) UpdateText(_ context.Context, ref dialog.MessageRef, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if m := r.find(ref); m != nil {
		m.Text = text
	}
	return nil
}

func (r *Recorder) Acknowledge(_ context.Context, ref dialog.SelectionRef, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.acks = append(r.acks, Ack{Ref: ref, Text: text})
	return nil
}

func (r *Recorder) find(ref dialog.MessageRef) *Sent {
	for _, m := range r.sent {
		if m.Ref == ref {
			return m
		}
	}
	return nil
}

// Messages returns a snapshot of every sent message.
func (r *Recorder) Messages() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sent, len(r.sent))
	for i, m := range r.sent {
		out[i] = *m
	}
	return out
}

// Texts returns the current texts of sent messages in order.
func (r *Recorder) Texts() []string {
	msgs := r.Messages()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

// Last returns the latest sent message, or a zero Sent.
func (r *Recorder) Last() Sent {
	msgs := r.Messages()
	if len(msgs) == 0 {
		return Sent{}
	}
	return msgs[len(msgs)-1]
}

// Acks returns the recorded acknowledgements.
func (r *Recorder) Acks() []Ack {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Ack(nil), r.acks...)
}

// Labels projects options to their labels.
func Labels(options []dialog.Option) []string {
	out := make([]string, len(options))
	for i, o := range options {
		out[i] = o.Label
	}
	return out
}

// Select builds a selection event for option key on message ref.
func Select(conv string, ref dialog.MessageRef, key string) dialog.Event {
	return dialog.Event{
		ConversationID: conv,
		Kind:           dialog.EventSelection,
		SelectionKey:   key,
		SelectionRef:   dialog.SelectionRef{ID: "cb-" + key},
		Message:        ref,
	}
}

// Text builds a text event.
func Text(conv, text string) dialog.Event {
	return dialog.Event{ConversationID: conv, Kind: dialog.EventText, Text: text}
}
