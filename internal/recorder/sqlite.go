// Package recorder persists the order and operation audit trail.
package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/core"
	apperrors "github.com/marcosgabbardo/mercadobitcoin-grid/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	order_id           TEXT PRIMARY KEY,
	pair               TEXT NOT NULL,
	side               TEXT NOT NULL,
	limit_price        TEXT NOT NULL,
	requested_qty      TEXT NOT NULL,
	executed_qty       TEXT NOT NULL DEFAULT '0',
	executed_price_avg TEXT NOT NULL DEFAULT '0',
	fee                TEXT NOT NULL DEFAULT '0',
	status             TEXT NOT NULL,
	created_at         TIMESTAMP NOT NULL,
	updated_at         TIMESTAMP NOT NULL,
	canceled_at        TIMESTAMP
);

CREATE TABLE IF NOT EXISTS operations_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	operation_type TEXT NOT NULL,
	order_id       TEXT,
	pair           TEXT NOT NULL,
	quantity       TEXT NOT NULL,
	price          TEXT NOT NULL,
	details        TEXT,
	created_at     TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_operations_log_order_id ON operations_log(order_id);
`

// SQLiteRecorder stores orders and operations in a local SQLite database.
// Decimal values are stored as text so they round-trip without float loss.
type SQLiteRecorder struct {
	db     *sql.DB
	logger core.ILogger
}

// NewSQLiteRecorder opens (and if needed creates) the database at dbPath.
func NewSQLiteRecorder(dbPath string, logger core.ILogger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL keeps the writer from blocking concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteRecorder{
		db:     db,
		logger: logger.WithField("component", "recorder"),
	}, nil
}

// RecordEvent appends one entry to the operations log.
func (r *SQLiteRecorder) RecordEvent(ctx context.Context, event *core.Event) error {
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO operations_log (operation_type, order_id, pair, quantity, price, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.OperationType, event.OrderID, event.Pair,
		event.Quantity.String(), event.Price.String(), event.Details, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert operation %s: %w: %w", event.OperationType, apperrors.ErrPersistence, err)
	}
	return nil
}

// RecordOrder upserts the venue's latest view of an order.
func (r *SQLiteRecorder) RecordOrder(ctx context.Context, order *core.Order) error {
	var canceledAt interface{}
	if order.CanceledAt != nil {
		canceledAt = *order.CanceledAt
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO orders (order_id, pair, side, limit_price, requested_qty, executed_qty,
		                     executed_price_avg, fee, status, created_at, updated_at, canceled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(order_id) DO UPDATE SET
		   executed_qty = excluded.executed_qty,
		   executed_price_avg = excluded.executed_price_avg,
		   fee = excluded.fee,
		   status = excluded.status,
		   updated_at = excluded.updated_at,
		   canceled_at = excluded.canceled_at`,
		order.ID, order.Pair, string(order.Side),
		order.LimitPrice.String(), order.RequestedQty.String(), order.ExecutedQty.String(),
		order.ExecutedPriceAvg.String(), order.Fee.String(), string(order.Status),
		order.CreatedAt, order.UpdatedAt, canceledAt,
	)
	if err != nil {
		return fmt.Errorf("upsert order %s: %w: %w", order.ID, apperrors.ErrPersistence, err)
	}
	return nil
}

// OrderStatus reads back the persisted status of an order, mainly for
// inspection tooling and tests.
func (r *SQLiteRecorder) OrderStatus(ctx context.Context, orderID string) (core.OrderStatus, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE order_id = ?`, orderID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("order %s: %w", orderID, apperrors.ErrOrderNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query order %s: %w: %w", orderID, apperrors.ErrPersistence, err)
	}
	return core.OrderStatus(status), nil
}

// CountEvents returns the number of logged operations of a type, empty type
// counting all.
func (r *SQLiteRecorder) CountEvents(ctx context.Context, operationType string) (int, error) {
	query := `SELECT COUNT(*) FROM operations_log`
	args := []interface{}{}
	if operationType != "" {
		query += ` WHERE operation_type = ?`
		args = append(args, operationType)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count operations: %w: %w", apperrors.ErrPersistence, err)
	}
	return count, nil
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
