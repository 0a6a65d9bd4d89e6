// Package storage provides the embedded SQLite store for the vocabulary
// service: the two-tier translation cache, accumulated translation variants,
// dictionary metadata, spaced-repetition cards and reviews, and reading
// bookmarks. All tables live in a single database file; the schema is
// versioned via PRAGMA user_version (see schema.go).
//
// Writers run inside BEGIN IMMEDIATE transactions so the writer lock is
// acquired up-front; under WAL this keeps readers unblocked and avoids
// mid-transaction lock upgrades. Lock contention surfaces as [ErrBusy] only
// after the busy timeout is exhausted.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"
)

// Sentinel errors for the two caller-distinguishable failure classes. All
// other database errors are wrapped with their operation name.
var (
	ErrBusy     = errors.New("database busy")
	ErrNotFound = errors.New("not found")
)

// busyTimeoutMS is applied per connection via the DSN. Ten seconds per the
// storage contract: fail with ErrBusy only after this long.
const busyTimeoutMS = 10000

// Querier is the query surface shared by the pooled *sql.DB (autocommit
// reads) and a *sql.Conn holding an immediate transaction. Repo methods are
// written against it so the same code serves both scopes.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns the database handle and exposes transaction scopes.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the vocabulary database at path and
// migrates it to the current schema version. The parent directory is created
// when missing.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", connString(path))
	if err != nil {
		return nil, fmt.Errorf("storage: open %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping %q: %w", path, err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate %q: %w", path, err)
	}
	return s, nil
}

// connString builds the DSN with the per-connection pragmas: foreign keys,
// WAL journaling, relaxed synchronous, and the busy timeout.
func connString(path string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)",
		path, busyTimeoutMS,
	)
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Repo returns an autocommit repository view, used for single-statement
// reads and writes that need no multi-statement atomicity.
func (s *Store) Repo() *Repo {
	return &Repo{q: s.db}
}

// View runs fn inside a deferred read transaction.
func (s *Store) View(ctx context.Context, fn func(r *Repo) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("begin read tx", err)
	}
	if err := fn(&Repo{q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return wrapDBError("commit read tx", tx.Commit())
}

// Update runs fn inside a BEGIN IMMEDIATE transaction on a dedicated
// connection. database/sql cannot express transaction modes in BeginTx and
// the sqlite driver always begins DEFERRED, so the statements are issued
// directly. The initial BEGIN IMMEDIATE is retried briefly with exponential
// backoff before the busy timeout is left to do its work.
func (s *Store) Update(ctx context.Context, fn func(r *Repo) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return wrapDBError("acquire connection", err)
	}
	defer conn.Close()

	if err := beginImmediate(ctx, conn); err != nil {
		return wrapDBError("begin immediate", err)
	}

	committed := false
	defer func() {
		if !committed {
			// Rollback must run even when ctx is already cancelled.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(&Repo{q: conn}); err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return wrapDBError("commit", err)
	}
	committed = true
	return nil
}

// UpdateWithRetry runs Update and retries once when the busy timeout was
// exhausted. One retry per the storage contract; persistent contention
// surfaces to the caller.
func (s *Store) UpdateWithRetry(ctx context.Context, fn func(r *Repo) error) error {
	err := s.Update(ctx, fn)
	if errors.Is(err, ErrBusy) {
		err = s.Update(ctx, fn)
	}
	return err
}

// beginImmediate issues BEGIN IMMEDIATE with a short backoff loop on busy.
func beginImmediate(ctx context.Context, conn *sql.Conn) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(10*time.Millisecond),
			backoff.WithMaxInterval(200*time.Millisecond),
		), 5), ctx)

	return backoff.Retry(func() error {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err == nil {
			return nil
		}
		if isBusyErr(err) {
			return err
		}
		return backoff.Permanent(err)
	}, bo)
}

// isBusyErr reports whether err is a SQLite lock-contention failure.
func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// wrapDBError classifies err: sql.ErrNoRows becomes ErrNotFound, lock
// contention becomes ErrBusy, anything else keeps its cause with the
// operation name prepended.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if isBusyErr(err) {
		return fmt.Errorf("%s: %w", op, ErrBusy)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Repo exposes the typed table accessors. The zero value is not usable;
// obtain one from [Store.Repo], [Store.View], or [Store.Update].
type Repo struct {
	q Querier
}

// NowString formats t as the canonical textual timestamp used for
// created_at/last_used columns.
func NowString(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseTime parses the textual timestamps found in the database. Rows
// written by this implementation are RFC 3339; legacy rows use the older
// space-separated layout, with or without fractional seconds.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("storage: unparseable timestamp %q", s)
}
