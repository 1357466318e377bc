package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ashmarin/filebutler/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS transfers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL,
		flow TEXT NOT NULL,
		name TEXT NOT NULL,
		bytes INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transfers_finished ON transfers(finished_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordTransfer appends one finished transfer to the audit log.
func (s *SQLiteStore) RecordTransfer(ctx context.Context, rec *domain.TransferRecord) error {
	query := `
		INSERT INTO transfers (chat_id, flow, name, bytes, status, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := s.db.ExecContext(ctx, query,
		rec.ChatID, rec.Flow, rec.Name, rec.Bytes, string(rec.Status), rec.Error,
		rec.StartedAt.Unix(), rec.FinishedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert transfer record: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// RecentTransfers returns the most recent transfers, newest first.
func (s *SQLiteStore) RecentTransfers(ctx context.Context, limit int) ([]*domain.TransferRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, chat_id, flow, name, bytes, status, error, started_at, finished_at
		FROM transfers ORDER BY finished_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	var out []*domain.TransferRecord
	for rows.Next() {
		var rec domain.TransferRecord
		var status string
		var startedAt, finishedAt int64
		if err := rows.Scan(&rec.ID, &rec.ChatID, &rec.Flow, &rec.Name, &rec.Bytes,
			&status, &rec.Error, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan transfer record: %w", err)
		}
		rec.Status = domain.TransferStatus(status)
		rec.StartedAt = time.Unix(startedAt, 0)
		rec.FinishedAt = time.Unix(finishedAt, 0)
		out = append(out, &rec)
	}
	return out, rows.Err()
}
