package outbox

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"flowrunner/internal/jobstate"
	"flowrunner/internal/library"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes incompatibly.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was written by another version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Entry is one stored completion report.
type Entry struct {
	ID            int64
	RunnerUID     uuid.UUID
	FileUID       uuid.UUID
	FileName      string
	Status        library.Status
	SnapshotJSON  string
	Log           string
	CreatedAt     time.Time
	Attempts      int
	LastAttemptAt time.Time
	LastError     string
}

// Snapshot decodes the stored runner snapshot.
func (e Entry) Snapshot() (jobstate.Snapshot, error) {
	var snap jobstate.Snapshot
	if err := json.Unmarshal([]byte(e.SnapshotJSON), &snap); err != nil {
		return jobstate.Snapshot{}, fmt.Errorf("decode report %d: %w", e.ID, err)
	}
	return snap, nil
}

// Store manages outbox persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the outbox database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create outbox directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save stores a completion report and returns its id.
func (s *Store) Save(ctx context.Context, snap jobstate.Snapshot, log string) (int64, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}
	var id int64
	err = retryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx,
			`INSERT INTO reports (runner_uid, file_uid, file_name, status, snapshot_json, log_text, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			snap.RunnerUID.String(),
			snap.LibraryFile.UID.String(),
			snap.LibraryFile.Name,
			int(snap.LibraryFile.Status),
			string(data),
			nullableString(log),
			time.Now().UTC().Format(time.RFC3339Nano),
		)
		if execErr != nil {
			return execErr
		}
		id, execErr = res.LastInsertId()
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("insert report: %w", err)
	}
	return id, nil
}

// List returns stored reports, oldest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, runner_uid, file_uid, file_name, status, snapshot_json, log_text,
                created_at, attempts, last_attempt_at, last_error
         FROM reports ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                          Entry
			runnerUID, fileUID, create string
			status                     int
			logText, lastAt, lastErr   sql.NullString
		)
		if err := rows.Scan(&e.ID, &runnerUID, &fileUID, &e.FileName, &status, &e.SnapshotJSON, &logText,
			&create, &e.Attempts, &lastAt, &lastErr); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		e.RunnerUID, _ = uuid.Parse(runnerUID)
		e.FileUID, _ = uuid.Parse(fileUID)
		e.Status = library.Status(status)
		e.Log = logText.String
		e.CreatedAt = parseTime(create)
		e.LastAttemptAt = parseTime(lastAt.String)
		e.LastError = lastErr.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return entries, nil
}

// Delete removes a delivered report.
func (s *Store) Delete(ctx context.Context, id int64) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
		return err
	})
}

// MarkAttempt records a failed delivery attempt.
func (s *Store) MarkAttempt(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE reports SET attempts = attempts + 1, last_attempt_at = ?, last_error = ? WHERE id = ?`,
			time.Now().UTC().Format(time.RFC3339Nano), nullableString(msg), id)
		return err
	})
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (replay pending reports with a matching version or delete the database)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func nullableString(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
