// Package dialog implements the per-conversation state machines behind the
// multi-step commands (add items, shopping, swap).
//
// A dialog type is a Graph: a fixed table of named states mapped to handler
// functions. Handlers return a Transition (Stay, GoTo or Close). The engine in
// Machine runs one handler per event, contains handler failures and executes the
// close state exactly once. Dialogs never talk to the transport directly; they
// go through the Responder passed in Env.
package dialog

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// EventKind tells text messages and selection callbacks apart.
type EventKind uint8

const (
	// EventText is a plain text message.
	EventText EventKind = iota + 1
	// EventSelection is a tap on one of the rendered options.
	EventSelection
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventSelection:
		return "selection"
	default:
		return "unknown"
	}
}

// Sender describes who produced an event.
type Sender struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	Admin     bool
}

// DisplayName returns "First Last", falling back to the username and then the id.
func (s Sender) DisplayName() string {
	name := strings.TrimSpace(s.FirstName + " " + s.LastName)
	if name != "" {
		return name
	}
	if s.Username != "" {
		return s.Username
	}
	if s.ID != 0 {
		return strconv.FormatInt(s.ID, 10)
	}
	return ""
}

// SelectionRef identifies a selection event so it can be acknowledged.
type SelectionRef struct {
	ID string
}

// MessageRef points at a message sent through a Responder.
type MessageRef struct {
	Conversation string
	ID           string
}

// IsZero reports whether the reference was never set.
func (r MessageRef) IsZero() bool {
	return r.ID == ""
}

// Option is a selectable choice rendered under a message.
type Option struct {
	Key   string
	Label string
}

// Event is one inbound interaction for a conversation.
type Event struct {
	ConversationID string
	Kind           EventKind
	Text           string
	// SelectionKey is the option key of a selection event.
	SelectionKey string
	SelectionRef SelectionRef
	// Message is the message whose option was selected.
	Message MessageRef
	Sender  Sender
}

// Responder is the outbound capability of a conversation.
type Responder interface {
	Send(ctx context.Context, text string, options []Option) (MessageRef, error)
	// UpdateOptions replaces the options of ref; nil or empty options remove them.
	UpdateOptions(ctx context.Context, ref MessageRef, options []Option) error
	UpdateText(ctx context.Context, ref MessageRef, text string) error
	Acknowledge(ctx context.Context, ref SelectionRef, text string) error
}

// Env is the dialog-scoped context handed to every state function.
type Env struct {
	ConversationID string
	Responder      Responder
}

// Dialog is a running dialog instance.
type Dialog interface {
	Name() string
	State() StateID
	Active() bool
	Timeout() time.Duration
	// Handle runs the current state on ev and reports whether it ran cleanly.
	Handle(ctx context.Context, ev Event) bool
	// Close forces the close state. Calling it on an inactive dialog does nothing.
	Close(ctx context.Context)
}
