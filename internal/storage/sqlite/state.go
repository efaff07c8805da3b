package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yegors/spotlog/internal/state"
	"github.com/yegors/spotlog/pkg/logger"
	_ "modernc.org/sqlite"
)

// lockTimeLayout is fixed width so lease timestamps compare correctly as text
const lockTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// StateStore is a SQLite-backed implementation of state.Store
type StateStore struct {
	db     *sql.DB
	logger *logger.Logger
}

var _ state.Store = (*StateStore)(nil)

// NewStateStore opens (or creates) the state database at dbPath
func NewStateStore(dbPath string, log *logger.Logger) (*StateStore, error) {
	storageLogger := log.Named("sqlite-state")

	storageLogger.Info("Opening state database",
		logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := initSchema(db, storageLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &StateStore{db: db, logger: storageLogger}, nil
}

// Close closes the database connection
func (s *StateStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func initSchema(db *sql.DB, log *logger.Logger) error {
	log.Debug("Initializing state schema")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS known_messages (
			id TEXT PRIMARY KEY,
			seen_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create known_messages table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_known_messages_seen_at ON known_messages(seen_at)`)
	if err != nil {
		return fmt.Errorf("failed to create seen_at index: %w", err)
	}

	// Single-slot tables: the CHECK keeps them at most one row.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS pending_takeoff (
			slot INTEGER PRIMARY KEY CHECK (slot = 1),
			takeoff_utc TEXT NOT NULL,
			time_zone TEXT NOT NULL,
			airport TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create pending_takeoff table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS pass_lock (
			slot INTEGER PRIMARY KEY CHECK (slot = 1),
			owner TEXT NOT NULL,
			acquired_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create pass_lock table: %w", err)
	}

	return nil
}

// IsKnown reports whether a feed message id has already been handled
func (s *StateStore) IsKnown(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM known_messages WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query known message %s: %w", id, err)
	}
	return true, nil
}

// MarkKnown records a feed message id. Marking an id twice keeps the first timestamp.
func (s *StateStore) MarkKnown(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO known_messages (id, seen_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		id, at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to mark message %s known: %w", id, err)
	}
	return nil
}

// Prune removes ids recorded before the cutoff
func (s *StateStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM known_messages WHERE seen_at < ?`,
		before.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune known messages: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n > 0 {
		s.logger.Info("Pruned known messages",
			logger.Int64("removed", n),
			logger.Time("before", before))
	}
	return n, nil
}

// Pending returns the pending takeoff, or nil when the slot is empty
func (s *StateStore) Pending(ctx context.Context) (*state.PendingTakeoff, error) {
	var takeoff, zone string
	var airport sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT takeoff_utc, time_zone, airport FROM pending_takeoff WHERE slot = 1`,
	).Scan(&takeoff, &zone, &airport)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pending takeoff: %w", err)
	}

	at, err := time.Parse(time.RFC3339, takeoff)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pending takeoff time: %w", err)
	}

	return &state.PendingTakeoff{
		TakeoffUTC: at.UTC(),
		TimeZone:   zone,
		Airport:    airport.String,
	}, nil
}

// SetPending overwrites the pending takeoff slot
func (s *StateStore) SetPending(ctx context.Context, p state.PendingTakeoff) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_takeoff (slot, takeoff_utc, time_zone, airport) VALUES (1, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			takeoff_utc = excluded.takeoff_utc,
			time_zone = excluded.time_zone,
			airport = excluded.airport`,
		p.TakeoffUTC.UTC().Format(time.RFC3339),
		p.TimeZone,
		p.Airport,
	)
	if err != nil {
		return fmt.Errorf("failed to store pending takeoff: %w", err)
	}
	return nil
}

// ClearPending empties the pending takeoff slot
func (s *StateStore) ClearPending(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_takeoff WHERE slot = 1`); err != nil {
		return fmt.Errorf("failed to clear pending takeoff: %w", err)
	}
	return nil
}

// Acquire takes the pass lease for owner. The upsert only succeeds when the
// slot is free, already held by owner, or held longer than staleAfter.
func (s *StateStore) Acquire(ctx context.Context, owner string, staleAfter time.Duration) error {
	now := time.Now().UTC()
	staleBefore := now.Add(-staleAfter)

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO pass_lock (slot, owner, acquired_at) VALUES (1, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			owner = excluded.owner,
			acquired_at = excluded.acquired_at
		WHERE pass_lock.owner = excluded.owner OR pass_lock.acquired_at < ?`,
		owner,
		now.Format(lockTimeLayout),
		staleBefore.Format(lockTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to acquire pass lock: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return state.ErrLocked
	}
	return nil
}

// Release drops the pass lease if owner holds it
func (s *StateStore) Release(ctx context.Context, owner string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pass_lock WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("failed to release pass lock: %w", err)
	}
	return nil
}
