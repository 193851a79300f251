package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"tenniscoach/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	video_uri  TEXT NOT NULL,
	video_mime TEXT NOT NULL DEFAULT '',
	model      TEXT NOT NULL,
	preset     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS turns (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role       TEXT NOT NULL CHECK (role IN ('user', 'model')),
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, id);
`

// SQLiteStore persists coaching sessions in a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *logx.Logger
}

// OpenSQLiteStore opens (creating if needed) the history database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger := logx.NewLogger("history")
	logger.Debug("history database opened: %s", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, rec SessionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, video_uri, video_mime, model, preset, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.VideoURI, rec.VideoMIME, rec.Model, rec.Preset, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (SessionRecord, error) {
	var rec SessionRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, video_uri, video_mime, model, preset, created_at
		 FROM sessions WHERE id = ?`, id).
		Scan(&rec.ID, &rec.VideoURI, &rec.VideoMIME, &rec.Model, &rec.Preset, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, errSessionNotFound(id)
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, video_uri, video_mime, model, preset, created_at
		 FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(&rec.ID, &rec.VideoURI, &rec.VideoMIME, &rec.Model, &rec.Preset, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AppendTurns writes turns in one transaction so a partial exchange is never
// visible.
func (s *SQLiteStore) AppendTurns(ctx context.Context, sessionID string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin turn transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	for _, turn := range turns {
		createdAt := turn.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO turns (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			sessionID, turn.Role, turn.Content, createdAt); err != nil {
			return fmt.Errorf("failed to append turn: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turns: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM turns WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load turns for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var turn Turn
		if err := rows.Scan(&turn.Role, &turn.Content, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		out = append(out, turn)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
