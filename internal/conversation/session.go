// Package conversation owns one Session per chat: it routes inbound events to
// the command router or the active dialog and runs the idle timer.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/internal/command"
	"github.com/m3rciful/shopbot/internal/dialog"
)

// Session serializes the events of one conversation.
type Session struct {
	id        string
	router    *command.Router
	responder dialog.Responder
	sched     Scheduler
	botName   func() string
	// onIdle runs after an idle timeout closed the dialog
	onIdle func(*Session)
	// retired sessions accept no more events; set under mu
	retired atomic.Bool

	mu     sync.Mutex
	active dialog.Dialog
	// run tags the log lines of the active dialog
	run   string
	timer Timer
	// gen invalidates timers that fired after being replaced
	gen uint64
}

// NewSession builds a standalone session. Most callers go through Manager.
func NewSession(id string, router *command.Router, responder dialog.Responder, sched Scheduler, botName func() string) *Session {
	if sched == nil {
		sched = SystemScheduler
	}
	if botName == nil {
		botName = func() string { return "" }
	}
	return &Session{id: id, router: router, responder: responder, sched: sched, botName: botName}
}

// ActiveDialog returns the name of the active dialog, or "".
func (s *Session) ActiveDialog() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ""
	}
	return s.active.Name()
}

// HandleEvent processes ev. Commands pre-empt the active dialog; everything
// else goes to the dialog, if any.
func (s *Session) HandleEvent(ctx context.Context, ev dialog.Event) {
	s.handle(ctx, ev)
}

// handle reports false when the session was retired and ev was not processed.
func (s *Session) handle(ctx context.Context, ev dialog.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired.Load() {
		return false
	}

	ev.ConversationID = s.id
	ctx = logger.WithDialogRun(logger.WithConversation(ctx, s.id), s.run)

	if ev.Kind == dialog.EventText {
		if cmd, ok := s.router.Match(ctx, ev.Text, s.botName()); ok {
			s.runCommand(ctx, cmd, ev)
			return true
		}
	}

	if s.active == nil {
		if ev.Kind == dialog.EventSelection && ev.SelectionRef.ID != "" {
			// keyboard of a finished dialog
			if err := s.responder.Acknowledge(ctx, ev.SelectionRef, ""); err != nil {
				logger.Warn(ctx, logger.CompConversation, "conversation.ack.failed",
					slog.String("status", "error"),
					slog.String("err", err.Error()),
				)
			}
		}
		logger.Debug(ctx, logger.CompConversation, "conversation.event.ignored",
			slog.String("status", "skip"),
			slog.String("kind", ev.Kind.String()),
		)
		return true
	}

	clean := s.active.Handle(ctx, ev)
	s.afterHandle(ctx, clean)
	return true
}

// retire marks an idle session as finished. It fails while a dialog is active.
func (s *Session) retire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return false
	}
	s.retired.Store(true)
	return true
}

// Close force-closes the active dialog, if any.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeActive(logger.WithDialogRun(logger.WithConversation(ctx, s.id), s.run), "shutdown")
}

func (s *Session) runCommand(ctx context.Context, cmd command.Command, ev dialog.Event) {
	if cmd.AdminOnly && !ev.Sender.Admin {
		logger.Warn(ctx, logger.CompConversation, "command.denied",
			slog.String("status", "fail"),
			slog.String("command", cmd.Token),
			slog.Int64("user_id", ev.Sender.ID),
		)
		return
	}
	s.closeActive(ctx, "superseded")

	logger.Info(ctx, logger.CompConversation, "command.run",
		slog.String("status", "ok"),
		slog.String("command", cmd.Token),
		slog.String("kind", cmd.Kind.String()),
	)
	req := command.Request{
		ConversationID: s.id,
		Args:           cmd.Args(ev.Text),
		Event:          ev,
		Responder:      s.responder,
	}
	switch cmd.Kind {
	case command.Action:
		if cmd.Action == nil {
			return
		}
		if err := runAction(ctx, cmd, req); err != nil {
			logger.Error(ctx, logger.CompConversation, "command.failed",
				slog.String("status", "error"),
				slog.String("command", cmd.Token),
				slog.String("err", err.Error()),
			)
		}
	case command.Dialog:
		if cmd.NewDialog == nil {
			return
		}
		s.active = cmd.NewDialog(req)
		if s.active == nil {
			return
		}
		s.run = uuid.NewString()
		ctx = logger.WithDialogRun(ctx, s.run)
		logger.Debug(ctx, logger.CompConversation, "dialog.start",
			slog.String("status", "ok"),
			slog.String("dialog", s.active.Name()),
		)
		clean := s.active.Handle(ctx, ev)
		s.afterHandle(ctx, clean)
	case command.Noop:
	}
}

func runAction(ctx context.Context, cmd command.Command, req command.Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return cmd.Action(ctx, req)
}

// afterHandle drops a finished dialog or re-arms the idle timer.
func (s *Session) afterHandle(ctx context.Context, clean bool) {
	if s.active == nil {
		return
	}
	if !s.active.Active() {
		s.stopTimer()
		s.active = nil
		s.run = ""
		return
	}
	if clean || s.timer == nil {
		s.resetTimer(ctx)
	}
}

func (s *Session) resetTimer(ctx context.Context) {
	s.stopTimer()
	gen := s.gen
	timeout := s.active.Timeout()
	name := s.active.Name()
	s.timer = s.sched.AfterFunc(timeout, func() {
		s.expire(context.WithoutCancel(ctx), gen, name, timeout)
	})
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *Session) expire(ctx context.Context, gen uint64, name string, timeout time.Duration) {
	if s.expireLocked(ctx, gen, name, timeout) && s.onIdle != nil {
		s.onIdle(s)
	}
}

func (s *Session) expireLocked(ctx context.Context, gen uint64, name string, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.active == nil {
		return false
	}
	logger.Info(ctx, logger.CompConversation, "dialog.timeout",
		slog.String("status", "timeout"),
		slog.String("dialog", name),
		slog.Int64("timeout_ms", timeout.Milliseconds()),
	)
	s.timer = nil
	s.closeActive(ctx, "timeout")
	return true
}

func (s *Session) closeActive(ctx context.Context, reason string) {
	if s.active == nil {
		return
	}
	s.stopTimer()
	d := s.active
	s.active = nil
	s.run = ""
	logger.Debug(ctx, logger.CompConversation, "dialog.preempt",
		slog.String("status", "ok"),
		slog.String("dialog", d.Name()),
		slog.String("reason", reason),
	)
	d.Close(ctx)
}
