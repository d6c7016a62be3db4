// Package sqlite provides a SQLite-backed order store.
//
// Orders live in a single table keyed by id, with the items stored as a JSON
// document. WAL mode is enabled so the read path does not block writers.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aescanero/costume-orders/pkg/domain"
	"go.uber.org/zap"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id          TEXT PRIMARY KEY,
    items       TEXT NOT NULL
);
`

// OrderStore is the SQLite implementation of ports.OrderStore.
type OrderStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at path and applies the schema.
//
//	store, err := sqlite.Open("./data/orders.db", logger)
func Open(path string, logger *zap.Logger) (*OrderStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &OrderStore{db: db, logger: logger}, nil
}

// Close releases the database connection.
func (s *OrderStore) Close() error {
	return s.db.Close()
}

// Put upserts the order. Retrying a write for the same id overwrites the
// same row.
func (s *OrderStore) Put(ctx context.Context, order *domain.Order) error {
	if order == nil || order.ID == "" {
		return fmt.Errorf("%w: order id is required", domain.ErrPermanentStore)
	}

	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("%w: sqlite: marshal items: %w", domain.ErrPermanentStore, err)
	}

	const q = `
		INSERT INTO orders (id, items) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET items = excluded.items`

	if _, err := s.db.ExecContext(ctx, q, order.ID, string(items)); err != nil {
		return classify(fmt.Sprintf("sqlite: save order %q", order.ID), err)
	}

	s.logger.Debug("order saved", zap.String("order_id", order.ID))
	return nil
}

// Get returns the order with the given id.
func (s *OrderStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	const q = `SELECT id, items FROM orders WHERE id = ?`

	var (
		order domain.Order
		items string
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(&order.ID, &items)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, classify(fmt.Sprintf("sqlite: get order %q", id), err)
	}

	if err := json.Unmarshal([]byte(items), &order.Items); err != nil {
		return nil, fmt.Errorf("%w: sqlite: decode items of %q: %w", domain.ErrPermanentStore, id, err)
	}

	return &order, nil
}

func classify(msg string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	if isBusy(err) {
		return fmt.Errorf("%w: %s: %w", domain.ErrTransientStore, msg, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrPermanentStore, msg, err)
}

func isBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}
