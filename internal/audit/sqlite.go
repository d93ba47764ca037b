package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSink persists decision-log entries in a SQLite database.
// Unlike the JSONL Log it carries no hash chain; it exists for
// queryable history, not tamper evidence.
type SQLiteSink struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenSQLite creates (or opens) the database at path and ensures the
// schema.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	s := &SQLiteSink{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts TEXT NOT NULL,
		kind TEXT NOT NULL,
		tab_id TEXT,
		host TEXT,
		url TEXT,
		profile_id TEXT,
		risk INTEGER,
		decision TEXT,
		pin_verified INTEGER,
		cause TEXT,
		user_id TEXT,
		user_role TEXT,
		prompt_text TEXT,
		prompt_digest TEXT,
		policy_hash TEXT
	);`)
	if err != nil {
		return fmt.Errorf("audit: init schema: %w", err)
	}
	return nil
}

// Record implements Sink.
func (s *SQLiteSink) Record(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(TimestampFormat)
	}
	_, err := s.db.Exec(`INSERT INTO entries
		(ts, kind, tab_id, host, url, profile_id, risk, decision, pin_verified, cause, user_id, user_role, prompt_text, prompt_digest, policy_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp,
		entry.Kind,
		entry.TabID,
		entry.Host,
		entry.URL,
		entry.ProfileID,
		entry.Risk,
		entry.Decision,
		entry.PINVerified,
		entry.Cause,
		entry.UserID,
		entry.UserRole,
		entry.PromptText,
		entry.PromptDigest,
		entry.PolicyHash,
	)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

// Export returns stored entries matching the filter in insertion order.
func (s *SQLiteSink) Export(filter Filter) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT ts, kind, tab_id, host, url, profile_id, risk, decision, pin_verified, cause, user_id, user_role, prompt_text, prompt_digest, policy_hash
		FROM entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("audit: query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.Timestamp, &e.Kind, &e.TabID, &e.Host, &e.URL, &e.ProfileID,
			&e.Risk, &e.Decision, &e.PINVerified, &e.Cause, &e.UserID, &e.UserRole,
			&e.PromptText, &e.PromptDigest, &e.PolicyHash,
		); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		if filter.matches(e) {
			entries = append(entries, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate entries: %w", err)
	}
	return entries, nil
}

// Close releases the database handle.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
