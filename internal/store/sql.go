package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/shopbot/core/database"
	"github.com/m3rciful/shopbot/core/logger"
)

// SQLStore persists items in the items table (see migrations/).
// It works with the postgres and sqlite drivers.
type SQLStore struct {
	db *sqlx.DB
	// row lock clause appended to reads inside mutations
	lock string
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps an opened and migrated database.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	s := &SQLStore{db: db}
	if db.DriverName() == database.DriverPostgres {
		s.lock = " FOR UPDATE"
	}
	return s
}

// Add appends a new unchecked item.
func (s *SQLStore) Add(ctx context.Context, conv, text string) (int64, error) {
	start := time.Now()
	var id int64
	q := s.db.Rebind(`INSERT INTO items (conversation_id, text, checked) VALUES (?, ?, ?) RETURNING id`)
	if err := s.db.QueryRowxContext(ctx, q, conv, text, false).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert item: %w", err)
	}
	logger.Debug(ctx, logger.CompStore, "store.add",
		slog.String("status", "ok"),
		slog.String("backend", s.db.DriverName()),
		slog.String("conversation_id", conv),
		slog.Int64("item_id", id),
		slog.Duration("duration", logger.Took(start)),
	)
	return id, nil
}

// Enumerate returns live items of conv with the given checked flag ordered by id.
func (s *SQLStore) Enumerate(ctx context.Context, conv string, checked bool) ([]Entry, error) {
	var out []Entry
	q := s.db.Rebind(`SELECT id, text FROM items WHERE conversation_id = ? AND checked = ? ORDER BY id`)
	if err := s.db.SelectContext(ctx, &out, q, conv, checked); err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	return out, nil
}

// List is the text projection of Enumerate.
func (s *SQLStore) List(ctx context.Context, conv string, checked bool) ([]string, error) {
	return listVia(ctx, s, conv, checked)
}

// Check marks the item checked inside a transaction.
func (s *SQLStore) Check(ctx context.Context, conv string, id int64) (bool, *Item, error) {
	var (
		ok   bool
		item *Item
	)
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		it, err := s.getItem(ctx, tx, id)
		if errors.Is(err, sql.ErrNoRows) {
			logStale(ctx, "check", conv, id)
			ok = true
			return nil
		}
		if err != nil {
			return err
		}
		if it.ConversationID != conv {
			logNotOwned(ctx, "check", conv, id, it.ConversationID)
			return nil
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE items SET checked = ? WHERE id = ?`), true, id); err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		it.Checked = true
		ok, item = true, &it
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return ok, item, nil
}

// Swap exchanges the texts of a and b inside a transaction.
func (s *SQLStore) Swap(ctx context.Context, conv string, a, b int64) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		first, err := s.ownedItem(ctx, tx, conv, a)
		if err != nil {
			return err
		}
		second, err := s.ownedItem(ctx, tx, conv, b)
		if err != nil {
			return err
		}
		update := tx.Rebind(`UPDATE items SET text = ? WHERE id = ?`)
		if _, err := tx.ExecContext(ctx, update, second.Text, first.ID); err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		if _, err := tx.ExecContext(ctx, update, first.Text, second.ID); err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) ownedItem(ctx context.Context, tx *sqlx.Tx, conv string, id int64) (Item, error) {
	it, err := s.getItem(ctx, tx, id)
	if errors.Is(err, sql.ErrNoRows) {
		logStale(ctx, "swap", conv, id)
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, err
	}
	if it.ConversationID != conv {
		logNotOwned(ctx, "swap", conv, id, it.ConversationID)
		return Item{}, ErrNotOwned
	}
	return it, nil
}

// RemoveChecked deletes every checked item of conv.
func (s *SQLStore) RemoveChecked(ctx context.Context, conv string) (int, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM items WHERE conversation_id = ? AND checked = ?`), conv, true)
	if err != nil {
		return 0, fmt.Errorf("delete checked items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete checked items: %w", err)
	}
	return int(n), nil
}

// Dump returns every item ordered by id.
func (s *SQLStore) Dump(ctx context.Context) ([]Item, error) {
	var out []Item
	if err := s.db.SelectContext(ctx, &out, `SELECT id, conversation_id, text, checked FROM items ORDER BY id`); err != nil {
		return nil, fmt.Errorf("dump items: %w", err)
	}
	return out, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) getItem(ctx context.Context, tx *sqlx.Tx, id int64) (Item, error) {
	var it Item
	q := tx.Rebind(`SELECT id, conversation_id, text, checked FROM items WHERE id = ?` + s.lock)
	err := tx.GetContext(ctx, &it, q, id)
	return it, err
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
