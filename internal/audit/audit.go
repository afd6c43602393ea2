// Package audit persists a journal of hook decisions and wrapped
// commands to a local SQLite database. The journal exists for
// operators looking back at what happened; a journal that cannot be
// opened or written must never block a push, so callers treat every
// error here as a warning.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Config locates the journal database. An empty path disables the
// journal.
type Config struct {
	Path string `yaml:"path"`
}

// Entry is one journal row. User is only set for wrapped commands;
// hook decisions carry the ref update instead.
type Entry struct {
	When    time.Time
	Event   string
	Repo    string
	Refname string
	User    string
	OldID   string
	NewID   string
	Allowed bool
	Detail  string
}

// Journal appends entries to the database. A nil *Journal discards
// everything, which is how hooks run when no journal is configured.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the journal. Safe on a nil journal.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at INTEGER NOT NULL,
			event TEXT NOT NULL,
			repo TEXT,
			refname TEXT,
			user TEXT,
			old_id TEXT,
			new_id TEXT,
			allowed INTEGER NOT NULL,
			detail TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_journal_at ON journal(at);
		CREATE INDEX IF NOT EXISTS idx_journal_event ON journal(event);
	`
	_, err := db.Exec(schema)
	return err
}

// Record appends one entry, stamping it with the current time when
// the entry carries none. Safe on a nil journal.
func (j *Journal) Record(e Entry) error {
	if j == nil {
		return nil
	}
	when := e.When
	if when.IsZero() {
		when = time.Now()
	}
	_, err := j.db.Exec(`
		INSERT INTO journal (at, event, repo, refname, user, old_id, new_id, allowed, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, when.Unix(), e.Event, e.Repo, e.Refname, e.User, e.OldID, e.NewID, boolInt(e.Allowed), e.Detail)
	if err != nil {
		return fmt.Errorf("recording %s entry: %w", e.Event, err)
	}
	return nil
}

// Tail returns the most recent entries, newest first.
func (j *Journal) Tail(limit int) ([]Entry, error) {
	if j == nil {
		return nil, nil
	}
	rows, err := j.db.Query(`
		SELECT at, event, repo, refname, user, old_id, new_id, allowed, detail
		FROM journal ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var at int64
		var allowed int
		if err := rows.Scan(&at, &e.Event, &e.Repo, &e.Refname, &e.User, &e.OldID, &e.NewID, &allowed, &e.Detail); err != nil {
			return nil, err
		}
		e.When = time.Unix(at, 0)
		e.Allowed = allowed != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries older than the cutoff and reports how many
// went away.
func (j *Journal) Prune(before time.Time) (int64, error) {
	if j == nil {
		return 0, nil
	}
	res, err := j.db.Exec("DELETE FROM journal WHERE at < ?", before.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning journal: %w", err)
	}
	return res.RowsAffected()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
