package conversation

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/internal/command"
	"github.com/m3rciful/shopbot/internal/dialog"
)

// closeParallelism bounds how many sessions send their closing messages at once.
const closeParallelism = 8

// ResponderFactory builds the outbound capability of a conversation.
type ResponderFactory func(conversationID string) dialog.Responder

// Manager keeps one Session per conversation.
type Manager struct {
	router       *command.Router
	newResponder ResponderFactory
	sched        Scheduler

	// botName is read by sessions under their own lock, so it avoids mu
	botName atomic.Pointer[string]

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager. A nil scheduler selects SystemScheduler.
func NewManager(router *command.Router, newResponder ResponderFactory, sched Scheduler) *Manager {
	if sched == nil {
		sched = SystemScheduler
	}
	return &Manager{
		router:       router,
		newResponder: newResponder,
		sched:        sched,
		sessions:     make(map[string]*Session),
	}
}

// SetBotName sets the @name commands may be addressed to.
func (m *Manager) SetBotName(name string) {
	m.botName.Store(&name)
}

// BotName returns the configured bot name.
func (m *Manager) BotName() string {
	if p := m.botName.Load(); p != nil {
		return *p
	}
	return ""
}

// Session returns the session of conv, creating it on first use or when
// the previous one was evicted.
func (m *Manager) Session(conv string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[conv]
	m.mu.RUnlock()
	if ok && !s.retired.Load() {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[conv]; ok && !s.retired.Load() {
		return s
	}
	s = NewSession(conv, m.router, m.newResponder(conv), m.sched, m.BotName)
	s.onIdle = m.evict
	m.sessions[conv] = s
	logger.Debug(context.Background(), logger.CompConversation, "session.create",
		slog.String("status", "ok"),
		slog.String("conversation_id", conv),
		slog.Int("sessions", len(m.sessions)),
	)
	return s
}

// HandleEvent dispatches ev to the session of its conversation. A session
// left without a dialog is evicted, so only chats in a dialog stay in memory.
func (m *Manager) HandleEvent(ctx context.Context, ev dialog.Event) {
	for {
		s := m.Session(ev.ConversationID)
		if s.handle(ctx, ev) {
			m.evict(s)
			return
		}
		// lost the race against eviction; the next lookup builds a new session
	}
}

// evict drops s if it has no active dialog.
func (m *Manager) evict(s *Session) {
	if !s.retire() {
		return
	}
	m.mu.Lock()
	if m.sessions[s.id] == s {
		delete(m.sessions, s.id)
	}
	n := len(m.sessions)
	m.mu.Unlock()
	logger.Debug(context.Background(), logger.CompConversation, "session.evict",
		slog.String("status", "ok"),
		slog.String("conversation_id", s.id),
		slog.Int("sessions", n),
	)
}

// Len returns the number of sessions held in memory.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll force-closes every active dialog so closing messages go out before shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	var closed atomic.Int32
	g := new(errgroup.Group)
	g.SetLimit(closeParallelism)
	for _, s := range sessions {
		g.Go(func() error {
			if s.ActiveDialog() != "" {
				closed.Add(1)
			}
			s.Close(ctx)
			return nil
		})
	}
	_ = g.Wait()
	logger.Info(ctx, logger.CompConversation, "conversation.close_all",
		slog.String("status", "ok"),
		slog.Int("sessions", len(sessions)),
		slog.Int("closed", int(closed.Load())),
	)
}
