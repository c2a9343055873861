package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/joeycumines/go-arbiter/internal/behavior"
)

const schema = `
CREATE TABLE IF NOT EXISTS transitions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session TEXT NOT NULL,
	seq INTEGER NOT NULL,
	at INTEGER NOT NULL,
	from_id TEXT NOT NULL,
	from_class TEXT NOT NULL,
	to_id TEXT NOT NULL,
	to_class TEXT NOT NULL,
	trigger_kind TEXT NOT NULL,
	reason TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_session ON transitions(session, seq);
`

// SQLiteSink persists transitions in a SQLite database. Each sink has its
// own session id, stamped on every record it writes.
type SQLiteSink struct {
	db      *sql.DB
	session string
}

// Open creates or opens the database at path.
func Open(path string) (*SQLiteSink, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newSQLiteSink(db)
}

// OpenInMemory creates an in-memory database, mostly for tests.
func OpenInMemory() (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every pooled connection would otherwise get its own empty database
	db.SetMaxOpenConns(1)
	return newSQLiteSink(db)
}

func newSQLiteSink(db *sql.DB) (*SQLiteSink, error) {
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteSink{db: db, session: uuid.NewString()}, nil
}

// Session returns the session id of this sink.
func (s *SQLiteSink) Session() string { return s.session }

// Record implements Sink. A transition with an empty Session is stamped
// with the sink's own.
func (s *SQLiteSink) Record(t Transition) error {
	if t.Session == "" {
		t.Session = s.session
	}
	_, err := s.db.Exec(`INSERT INTO transitions
		(session, seq, at, from_id, from_class, to_id, to_class, trigger_kind, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Session, int64(t.Seq), t.Time.UnixNano(),
		string(t.FromID), string(t.FromClass),
		string(t.ToID), string(t.ToClass),
		string(t.Trigger), string(t.Reason))
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

// Recent returns up to limit transitions of session, oldest first. An
// empty session selects this sink's own.
func (s *SQLiteSink) Recent(ctx context.Context, session string, limit int) ([]Transition, error) {
	if session == "" {
		session = s.session
	}
	if limit <= 0 {
		limit = DefaultRingSize
	}
	rows, err := s.db.QueryContext(ctx, `SELECT session, seq, at, from_id, from_class, to_id, to_class, trigger_kind, reason
		FROM (SELECT * FROM transitions WHERE session = ? ORDER BY seq DESC LIMIT ?)
		ORDER BY seq ASC`, session, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			t                                      Transition
			seq, at                                int64
			fromID, fromClass, toID, toClass, kind string
			reason                                 string
		)
		if err := rows.Scan(&t.Session, &seq, &at, &fromID, &fromClass, &toID, &toClass, &kind, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		t.Seq = uint64(seq)
		t.Time = time.Unix(0, at)
		t.FromID = behavior.ID(fromID)
		t.FromClass = behavior.Class(fromClass)
		t.ToID = behavior.ID(toID)
		t.ToClass = behavior.Class(toClass)
		t.Trigger = behavior.TriggerKind(kind)
		t.Reason = Reason(reason)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Sessions lists distinct session ids, most recently written first.
func (s *SQLiteSink) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session FROM transitions GROUP BY session ORDER BY MAX(id) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
