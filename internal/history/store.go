// Package history records every synthesis in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one rendered utterance.
type Record struct {
	ID        int64         `json:"id" yaml:"id"`
	CreatedAt time.Time     `json:"created_at" yaml:"created_at"`
	Kind      string        `json:"kind" yaml:"kind"`
	SpeakerID uint32        `json:"speaker_id" yaml:"speaker_id"`
	Text      string        `json:"text" yaml:"text"`
	Kana      string        `json:"kana,omitempty" yaml:"kana,omitempty"`
	Bytes     int           `json:"bytes" yaml:"bytes"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`
	CacheHit  bool          `json:"cache_hit" yaml:"cache_hit"`
	Output    string        `json:"output,omitempty" yaml:"output,omitempty"`
}

// Store wraps the history database.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Open creates or opens the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS syntheses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at INTEGER NOT NULL,
    kind TEXT NOT NULL,
    speaker_id INTEGER NOT NULL,
    text TEXT NOT NULL,
    kana TEXT NOT NULL DEFAULT '',
    bytes INTEGER NOT NULL,
    duration_ns INTEGER NOT NULL,
    elapsed_ns INTEGER NOT NULL,
    cache_hit INTEGER NOT NULL,
    output TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_syntheses_created ON syntheses(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts rec and returns its ID. A zero CreatedAt is set to now.
func (s *Store) Append(ctx context.Context, rec Record) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO syntheses(created_at, kind, speaker_id, text, kana, bytes, duration_ns, elapsed_ns, cache_hit, output)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CreatedAt.UTC().UnixNano(), rec.Kind, int64(rec.SpeakerID), rec.Text, rec.Kana,
		rec.Bytes, int64(rec.Duration), int64(rec.Elapsed), rec.CacheHit, rec.Output)
	if err != nil {
		return 0, fmt.Errorf("append history: %w", err)
	}
	return res.LastInsertId()
}

// List returns up to limit records, newest first. A non-positive limit means 50.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, kind, speaker_id, text, kana, bytes, duration_ns, elapsed_ns, cache_hit, output
		 FROM syntheses ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var created, speaker, duration, elapsed int64
		if err := rows.Scan(&r.ID, &created, &r.Kind, &speaker, &r.Text, &r.Kana,
			&r.Bytes, &duration, &elapsed, &r.CacheHit, &r.Output); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		r.SpeakerID = uint32(speaker)
		r.Duration = time.Duration(duration)
		r.Elapsed = time.Duration(elapsed)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM syntheses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

// Prune deletes records created before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM syntheses WHERE created_at < ?`, cutoff.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

// Clear deletes every record.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM syntheses`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}
