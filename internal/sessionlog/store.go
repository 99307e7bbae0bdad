// Package sessionlog keeps a SQLite journal of streaming session outcomes,
// one row per session.
package sessionlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/RomanSlack/rsfx/internal/config"
)

// Session is one recorded streaming session.
type Session struct {
	ID          string
	Reference   string
	Audio       string
	Width       int
	Height      int
	FPS         int
	FramesSent  int
	Termination string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Store wraps the SQLite-backed session journal. A disabled store is valid
// and turns every operation into a no-op.
type Store struct {
	db    *sql.DB
	cfg   config.SessionLogConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the journal according to config.
func Open(ctx context.Context, cfg config.SessionLogConfig, log *slog.Logger) (*Store, error) {
	if !cfg.Enabled {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    reference TEXT,
    audio TEXT,
    width INTEGER,
    height INTEGER,
    fps INTEGER,
    frames_sent INTEGER,
    termination TEXT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record writes a finished session row.
func (s *Store) Record(ctx context.Context, sess Session) error {
	if s.db == nil {
		return nil
	}
	if sess.FinishedAt.IsZero() {
		sess.FinishedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, reference, audio, width, height, fps,
		                      frames_sent, termination, started_at, finished_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Reference, sess.Audio, sess.Width, sess.Height, sess.FPS,
		sess.FramesSent, sess.Termination, sess.StartedAt.UTC(), sess.FinishedAt)
	return err
}

// ListRecent returns up to limit sessions, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Session, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, reference, audio, width, height, fps,
		        frames_sent, termination, started_at, finished_at
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Reference, &sess.Audio, &sess.Width,
			&sess.Height, &sess.FPS, &sess.FramesSent, &sess.Termination,
			&sess.StartedAt, &sess.FinishedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
