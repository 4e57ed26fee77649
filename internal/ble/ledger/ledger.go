// Package ledger implements C6, the offline BLE credit ledger: a durable,
// dedup-by-tx_id store of BLE-settled credit transactions that survives
// process restart, backed by modernc.org/sqlite (pure Go, no cgo) per
// spec §7's persisted state layout.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Transaction is one BLE-settled credit transfer, pending sync to the
// central credit engine.
type Transaction struct {
	TxID        string
	RequesterID string
	ProviderID  string
	Credits     float64
	CPUSeconds  float64
	TaskHash    string
	Signature   string
	CreatedAt   time.Time
	SyncedAt    *time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS ble_credit_tx (
	tx_id        TEXT PRIMARY KEY,
	requester_id TEXT NOT NULL,
	provider_id  TEXT NOT NULL,
	credits      REAL NOT NULL,
	cpu_seconds  REAL NOT NULL,
	task_hash    TEXT NOT NULL,
	signature    TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	synced_at    INTEGER
);`

// Ledger is a durable offline BLE credit transaction store.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite-backed ledger at path. Use
// ":memory:" for an ephemeral in-process instance, matching the
// teacher's preference for modernc.org/sqlite over a cgo driver.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: migrate: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error { return l.db.Close() }

// Record inserts tx if absent. A repeated tx_id is a silent no-op (spec
// §4.6: "deduplicated by tx_id").
func (l *Ledger) Record(ctx context.Context, tx Transaction) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO ble_credit_tx (tx_id, requester_id, provider_id, credits, cpu_seconds, task_hash, signature, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tx_id) DO NOTHING`,
		tx.TxID, tx.RequesterID, tx.ProviderID, tx.Credits, tx.CPUSeconds, tx.TaskHash, tx.Signature, tx.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("ledger: record: %w", err)
	}
	return nil
}

// Pending returns all transactions not yet marked synced.
func (l *Ledger) Pending(ctx context.Context) ([]Transaction, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT tx_id, requester_id, provider_id, credits, cpu_seconds, task_hash, signature, created_at, synced_at
		FROM ble_credit_tx WHERE synced_at IS NULL ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("ledger: pending: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// ExportBatch returns a snapshot of all pending transactions, identical
// to Pending; kept as a distinct method because spec §4.6 names it
// separately from pending() for callers that want an explicit "batch to
// ship" boundary.
func (l *Ledger) ExportBatch(ctx context.Context) ([]Transaction, error) {
	return l.Pending(ctx)
}

// MarkSynced flags the given tx_ids as synced at syncedAt.
func (l *Ledger) MarkSynced(ctx context.Context, ids []string, syncedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	txn, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: mark synced: %w", err)
	}
	defer txn.Rollback()

	stmt, err := txn.PrepareContext(ctx, `UPDATE ble_credit_tx SET synced_at = ? WHERE tx_id = ?`)
	if err != nil {
		return fmt.Errorf("ledger: mark synced: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, syncedAt.UnixMilli(), id); err != nil {
			return fmt.Errorf("ledger: mark synced %s: %w", id, err)
		}
	}
	return txn.Commit()
}

// All returns every transaction in the ledger, synced or not, ordered by
// creation time. Used by tests and operational inspection.
func (l *Ledger) All(ctx context.Context) ([]Transaction, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT tx_id, requester_id, provider_id, credits, cpu_seconds, task_hash, signature, created_at, synced_at
		FROM ble_credit_tx ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("ledger: all: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

func scanAll(rows *sql.Rows) ([]Transaction, error) {
	var out []Transaction
	for rows.Next() {
		var tx Transaction
		var createdAtMs int64
		var syncedAtMs sql.NullInt64
		if err := rows.Scan(&tx.TxID, &tx.RequesterID, &tx.ProviderID, &tx.Credits, &tx.CPUSeconds, &tx.TaskHash, &tx.Signature, &createdAtMs, &syncedAtMs); err != nil {
			return nil, fmt.Errorf("ledger: scan: %w", err)
		}
		tx.CreatedAt = time.UnixMilli(createdAtMs).UTC()
		if syncedAtMs.Valid {
			t := time.UnixMilli(syncedAtMs.Int64).UTC()
			tx.SyncedAt = &t
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}
