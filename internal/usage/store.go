// Package usage persists per-request token accounting in SQLite.
package usage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage_logs (
    usage_id          INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id        TEXT NOT NULL,
    endpoint          TEXT NOT NULL,
    model             TEXT NOT NULL,
    prompt_tokens     INTEGER NOT NULL DEFAULT 0,
    completion_tokens INTEGER NOT NULL DEFAULT 0,
    total_tokens      INTEGER NOT NULL DEFAULT 0,
    created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_usage_logs_model ON usage_logs (model);
`

// Record is one completed request's usage accounting.
type Record struct {
	RequestID        string
	Endpoint         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CreatedAt        time.Time
}

// Store wraps the SQLite usage database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the usage database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping usage db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create usage schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Log inserts a usage record for a completed request.
func (s *Store) Log(rec Record) error {
	_, err := s.db.Exec(
		`INSERT INTO usage_logs (request_id, endpoint, model, prompt_tokens, completion_tokens, total_tokens)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Endpoint, rec.Model,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens,
	)
	if err != nil {
		return fmt.Errorf("log usage: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT request_id, endpoint, model, prompt_tokens, completion_tokens, total_tokens, created_at
		 FROM usage_logs ORDER BY usage_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.RequestID, &rec.Endpoint, &rec.Model,
			&rec.PromptTokens, &rec.CompletionTokens, &rec.TotalTokens, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// TotalTokens returns the sum of total_tokens across all logged requests.
func (s *Store) TotalTokens() (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRow(`SELECT SUM(total_tokens) FROM usage_logs`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum usage: %w", err)
	}
	return total.Int64, nil
}
