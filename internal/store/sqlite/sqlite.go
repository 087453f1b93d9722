// Package sqlite persists the mention cursor and a journal of ingested
// mentions in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection keeps ":memory:" databases shared across calls
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		_ = d.Close()
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS cursors (
	  key TEXT PRIMARY KEY,
	  value TEXT NOT NULL,
	  updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS mentions (
	  seq INTEGER PRIMARY KEY AUTOINCREMENT,
	  tweet_id TEXT NOT NULL UNIQUE,
	  thread_id TEXT NOT NULL,
	  author_id TEXT NOT NULL,
	  text TEXT NOT NULL,
	  ingested_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_mentions_thread ON mentions(thread_id, seq);
	`)
	return err
}

// SaveCursor upserts a named cursor.
func (d *DB) SaveCursor(ctx context.Context, key, value string) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO cursors(key, value, updated_at) VALUES(?,?,?)
	ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UTC().Unix())
	return err
}

// LoadCursor returns the cursor for key, or "" if it was never saved.
func (d *DB) LoadCursor(ctx context.Context, key string) (string, error) {
	var v string
	err := d.sql.QueryRowContext(ctx, `SELECT value FROM cursors WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

// JournalEntry is one ingested mention.
type JournalEntry struct {
	TweetID    string
	ThreadID   string
	AuthorID   string
	Text       string
	IngestedAt time.Time
}

// PutMention records a mention once; a repeated tweet id is ignored and
// reported as not inserted.
func (d *DB) PutMention(ctx context.Context, e JournalEntry) (bool, error) {
	res, err := d.sql.ExecContext(ctx, `INSERT OR IGNORE INTO mentions(tweet_id, thread_id, author_id, text, ingested_at) VALUES(?,?,?,?,?)`,
		e.TweetID, e.ThreadID, e.AuthorID, e.Text, e.IngestedAt.UTC().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// CountMentions returns the number of journaled mentions.
func (d *DB) CountMentions(ctx context.Context) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM mentions`).Scan(&n)
	return n, err
}

// LoadThread returns up to limit of the most recent journaled mentions of
// a thread, oldest first.
func (d *DB) LoadThread(ctx context.Context, threadID string, limit int) ([]JournalEntry, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT tweet_id, thread_id, author_id, text, ingested_at FROM (
	  SELECT * FROM mentions WHERE thread_id=? ORDER BY seq DESC LIMIT ?
	) ORDER BY seq`, threadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var ms int64
		if err := rows.Scan(&e.TweetID, &e.ThreadID, &e.AuthorID, &e.Text, &ms); err != nil {
			return nil, err
		}
		e.IngestedAt = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
