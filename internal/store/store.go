// Package store keeps the per-conversation shopping lists.
//
// Items are partitioned by conversation id. Every item gets an id on insertion
// that is never reused and never changed by Check or Swap. Three backends share
// the same contract: MemoryStore, SQLStore (PostgreSQL or SQLite) and RedisStore.
package store

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/m3rciful/shopbot/core/logger"
)

var (
	// ErrNotOwned is returned by Swap when an id belongs to another conversation.
	ErrNotOwned = errors.New("store: item belongs to another conversation")
	// ErrNotFound is returned by Swap when an id no longer exists.
	ErrNotFound = errors.New("store: item not found")
)

// Item is a single shopping-list entry.
type Item struct {
	ID             int64  `db:"id" json:"id"`
	ConversationID string `db:"conversation_id" json:"conversation_id"`
	Text           string `db:"text" json:"text"`
	Checked        bool   `db:"checked" json:"checked"`
}

// Entry is the (id, text) projection returned by Enumerate.
type Entry struct {
	ID   int64  `db:"id"`
	Text string `db:"text"`
}

// Key renders the id the way it travels in selection callbacks.
func (e Entry) Key() string {
	return strconv.FormatInt(e.ID, 10)
}

// Store is the list store contract. All list operations are scoped to a conversation.
//
// Check reports ok=false only when id belongs to another conversation; an id that
// does not exist anymore yields ok=true with a nil item. Errors are reserved for
// infrastructure failures, except Swap which reports ErrNotOwned and ErrNotFound.
type Store interface {
	Add(ctx context.Context, conv, text string) (int64, error)
	Enumerate(ctx context.Context, conv string, checked bool) ([]Entry, error)
	List(ctx context.Context, conv string, checked bool) ([]string, error)
	Check(ctx context.Context, conv string, id int64) (bool, *Item, error)
	// Swap exchanges the texts of a and b. Ids and checked flags stay with their rows.
	Swap(ctx context.Context, conv string, a, b int64) error
	RemoveChecked(ctx context.Context, conv string) (int, error)
	// Dump returns every stored item for diagnostics.
	Dump(ctx context.Context) ([]Item, error)
	Close() error
}

// Texts projects entries to their texts.
func Texts(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}

func listVia(ctx context.Context, s Store, conv string, checked bool) ([]string, error) {
	entries, err := s.Enumerate(ctx, conv, checked)
	if err != nil {
		return nil, err
	}
	return Texts(entries), nil
}

func logNotOwned(ctx context.Context, op, conv string, id int64, owner string) {
	logger.Error(ctx, logger.CompStore, "store."+op+".not_owned",
		slog.String("status", "fail"),
		slog.String("conversation_id", conv),
		slog.Int64("item_id", id),
		slog.String("owner", owner),
	)
}

func logStale(ctx context.Context, op, conv string, id int64) {
	logger.Debug(ctx, logger.CompStore, "store."+op+".stale",
		slog.String("status", "skip"),
		slog.String("conversation_id", conv),
		slog.Int64("item_id", id),
	)
}
