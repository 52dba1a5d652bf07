// Package sqlite persists notifications and thread records in a
// single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/google/uuid"

	"github.com/mistakeknot/vigil/internal/core"
	"github.com/mistakeknot/vigil/internal/glob"
	"github.com/mistakeknot/vigil/internal/log"
	"github.com/mistakeknot/vigil/internal/storage"
)

//go:embed schema.sql
var schema string

// timeFormat is fixed-width so stored timestamps compare correctly as
// strings in SQL.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db dbHandle
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite is single-writer; one connection avoids SQLITE_BUSY storms.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("wal mode: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: &queryLogger{inner: db}}, nil
}

func NewInMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: &queryLogger{inner: db}}, nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Enqueue(ctx context.Context, n core.Notification) (core.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	n.Status = core.NotificationPending

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, content, conversation_id, source, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.Content, n.ConversationID, n.Source, string(n.Status), n.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return core.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

func (s *Store) Pending(ctx context.Context, conversationID string, limit int) ([]core.Notification, error) {
	query := `SELECT id, content, conversation_id, source, created_at
	          FROM notifications WHERE status = 'pending'`
	args := []any{}
	if conversationID != "" {
		query += ` AND conversation_id = ?`
		args = append(args, conversationID)
	}
	query += ` ORDER BY created_at ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var out []core.Notification
	for rows.Next() {
		var n core.Notification
		var createdAt string
		if err := rows.Scan(&n.ID, &n.Content, &n.ConversationID, &n.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Status = core.NotificationPending
		n.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkDelivered(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = 'delivered', delivered_at = ? WHERE id = ? AND status = 'pending'`,
		time.Now().UTC().Format(timeFormat), id,
	)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) PurgeDelivered(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE status = 'delivered' AND delivered_at < ?`,
		olderThan.UTC().Format(timeFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("purge delivered: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

func (s *Store) RegisterThread(ctx context.Context, rec core.ThreadRecord) error {
	if err := glob.Validate(rec.SessionPattern); err != nil {
		return fmt.Errorf("session pattern: %w", err)
	}
	if rec.FilePath == "" {
		return fmt.Errorf("file path required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.warnOnOverlap(ctx, rec)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (session_pattern, file_path, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_pattern, file_path) DO NOTHING`,
		rec.SessionPattern, rec.FilePath, rec.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

// warnOnOverlap logs when a new registration's pattern overlaps an
// existing pattern for the same file, which usually means a stale
// registration was left behind.
func (s *Store) warnOnOverlap(ctx context.Context, rec core.ThreadRecord) {
	if !glob.IsPattern(rec.SessionPattern) {
		return
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_pattern FROM threads WHERE file_path = ? AND session_pattern != ?`,
		rec.FilePath, rec.SessionPattern,
	)
	if err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		var existing string
		if err := rows.Scan(&existing); err != nil {
			return
		}
		if glob.Overlap(existing, rec.SessionPattern) {
			logger := log.With("sqlite")
			logger.Warn().
				Str("existing", existing).
				Str("new", rec.SessionPattern).
				Str("file", rec.FilePath).
				Msg("overlapping thread session patterns")
		}
	}
}

func (s *Store) FindThreadsForAgent(ctx context.Context, sessionName string) ([]core.ThreadRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_pattern, file_path, created_at FROM threads ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	var out []core.ThreadRecord
	for rows.Next() {
		var rec core.ThreadRecord
		var createdAt string
		if err := rows.Scan(&rec.SessionPattern, &rec.FilePath, &createdAt); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		if matchesSession(rec.SessionPattern, sessionName) {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}

func (s *Store) RemoveThread(ctx context.Context, sessionPattern, filePath string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM threads WHERE session_pattern = ? AND file_path = ?`,
		sessionPattern, filePath,
	)
	if err != nil {
		return false, fmt.Errorf("delete thread: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func matchesSession(pattern, sessionName string) bool {
	if !glob.IsPattern(pattern) {
		return pattern == sessionName
	}
	return glob.Match(pattern, sessionName)
}
