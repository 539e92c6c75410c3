// Package store persists job postings in an embedded SQLite database. Multiple
// scraping and evaluation workers write concurrently; every write path goes
// through a shared guard with bounded, jittered retries on lock contention
// instead of a centralized transaction coordinator.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	sqlite "modernc.org/sqlite"

	"github.com/jobscout-dev/jobscout/internal/utils"
)

const (
	defaultMaxAttempts = 5
	defaultRetryDelay  = 100 * time.Millisecond
	retryJitterFrac    = 0.5

	sqliteBusy   = 5
	sqliteLocked = 6
)

// ErrBusy is returned when a write batch is dropped after exhausting its
// contention retries.
var ErrBusy = errors.New("store busy, batch dropped after retries")

// Store wraps the SQLite connection pool and serializes writes.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	// writeMu guards the connect, batch-execute, commit critical section.
	// Reads do not take it.
	writeMu     sync.Mutex
	maxAttempts int
	retryDelay  time.Duration
}

// Open opens (and migrates) the database at path. Pool size is bounded to the
// expected number of concurrent workers.
func Open(path string, maxWorkers int, logger *zap.Logger) (*Store, error) {
	// modernc sqlite uses DSN like: file:foo.db?_pragma=busy_timeout(5000)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	db.SetMaxOpenConns(maxWorkers)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		db:          db,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
	}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}

	if v >= 1 {
		return tx.Commit()
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS job_postings (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  posting_id TEXT UNIQUE,
  posting_url TEXT UNIQUE,
  job_title TEXT,
  description TEXT,
  experience TEXT,
  employment_type TEXT,
  industries TEXT,
  agent_response TEXT,
  applied INTEGER NOT NULL DEFAULT 0,
  insert_timestamp TEXT NOT NULL DEFAULT (datetime('now'))
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_job_postings_insert_timestamp
ON job_postings(insert_timestamp);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`PRAGMA user_version = 1;`); err != nil {
		return err
	}

	return tx.Commit()
}

// withWriteRetry runs fn inside a transaction under the write guard. On a
// busy/locked error the whole batch is retried with a jittered delay; the
// batch is dropped (ErrBusy) once attempts are exhausted, so a retry never
// leaves a batch partially applied.
func (s *Store) withWriteRetry(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isContention(err) {
			return fmt.Errorf("%s: %w", op, err)
		}

		lastErr = err
		if attempt < s.maxAttempts {
			delay := utils.Jitter(s.retryDelay*time.Duration(attempt), retryJitterFrac)
			s.logger.Debug("store contention, retrying batch",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)
			if err := utils.WaitFor(ctx, delay); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	s.logger.Error("dropping batch after retries",
		zap.String("op", op),
		zap.Int("attempts", s.maxAttempts),
		zap.Error(lastErr),
	)
	return fmt.Errorf("%s: %w", op, ErrBusy)
}

func (s *Store) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func isContention(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code() & 0xff
		return code == sqliteBusy || code == sqliteLocked
	}
	return strings.Contains(err.Error(), "database is locked")
}
