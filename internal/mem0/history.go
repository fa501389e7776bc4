package mem0

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// UserCount pairs a user id with the number of adds recorded for it.
type UserCount struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// History is the local relational log of add/delete operations issued
// through this server. The upstream store keeps its own history; this
// table exists so the server can answer questions the upstream API
// doesn't expose, such as which user ids have data.
type History struct {
	db *sql.DB
}

// OpenHistory opens (and migrates) the history database at path,
// creating parent directories as needed.
func OpenHistory(path string) (*History, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("history: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("history: pragma %q: %w", p, err)
		}
	}

	h := &History{db: db}
	if err := h.migrate(); err != nil {
		return nil, fmt.Errorf("history: migration: %w", err)
	}
	return h, nil
}

// Close closes the underlying database connection.
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS history (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			op         TEXT NOT NULL CHECK (op IN ('add', 'delete')),
			memory_id  TEXT NOT NULL,
			user_id    TEXT NOT NULL DEFAULT '',
			text_len   INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_history_user ON history(user_id);
		CREATE INDEX IF NOT EXISTS idx_history_memory ON history(memory_id);
	`
	_, err := h.db.Exec(schema)
	return err
}

// RecordAdd logs a successful add.
func (h *History) RecordAdd(memoryID, userID string, textLen int) error {
	_, err := h.db.Exec(
		`INSERT INTO history (op, memory_id, user_id, text_len, created_at) VALUES ('add', ?, ?, ?, ?)`,
		memoryID, userID, textLen, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// RecordDelete logs a successful delete.
func (h *History) RecordDelete(memoryID string) error {
	_, err := h.db.Exec(
		`INSERT INTO history (op, memory_id, created_at) VALUES ('delete', ?, ?)`,
		memoryID, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// UserCounts returns the distinct user ids that have added memories
// through this server, with per-user add counts, most active first.
func (h *History) UserCounts() ([]UserCount, error) {
	rows, err := h.db.Query(`
		SELECT user_id, COUNT(*)
		FROM history
		WHERE op = 'add' AND user_id != ''
		GROUP BY user_id
		ORDER BY COUNT(*) DESC, user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("history: query user counts: %w", err)
	}
	defer rows.Close()

	var counts []UserCount
	for rows.Next() {
		var uc UserCount
		if err := rows.Scan(&uc.UserID, &uc.Count); err != nil {
			return nil, fmt.Errorf("history: scan user count: %w", err)
		}
		counts = append(counts, uc)
	}
	return counts, rows.Err()
}
