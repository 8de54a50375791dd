package history

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSink writes usage-history events to a SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the history database.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func NewSQLite(dsn string) (*SQLiteSink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	sink := &SQLiteSink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *SQLiteSink) ensureSchema(ctx context.Context) error {
	// Append-only usage table; one row per state transition or traffic sample.
	stmt := `CREATE TABLE IF NOT EXISTS core_history(
		timestamp TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
		session_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		state TEXT,
		upload INTEGER,
		download INTEGER,
		upload_bps INTEGER,
		download_bps INTEGER,
		detail TEXT
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *SQLiteSink) Send(ctx context.Context, e Event) error {
	occur := e.OccurredAt
	if occur.IsZero() {
		occur = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO core_history(timestamp, session_id, kind, state, upload, download, upload_bps, download_bps, detail)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		occur.UTC(), e.SessionID, string(e.Type), e.State,
		int64(e.Upload), int64(e.Download), e.UploadBps, e.DownloadBps, e.Detail) // #nosec G115 -- counters fit well below int64 range in practice
	return err
}

func (s *SQLiteSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
