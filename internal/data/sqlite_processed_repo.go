package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/target/greeter-api/internal/core"
	"github.com/target/greeter-api/internal/domain/model"
	"github.com/target/greeter-api/internal/migrate"
)

// SQLiteProcessedRecordRepo implements core.ProcessedRecordStore on a local SQLite file.
type SQLiteProcessedRecordRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ core.ProcessedRecordStore = (*SQLiteProcessedRecordRepo)(nil)

// SQLiteOptions configures OpenSQLiteProcessedRecordRepo.
type SQLiteOptions struct {
	Path         string
	BusyTimeout  time.Duration // optional; defaults to 5s
	TimeProvider TimeProvider  // optional
}

// OpenSQLiteProcessedRecordRepo opens (creating if needed) the database file
// and applies migrations.
func OpenSQLiteProcessedRecordRepo(ctx context.Context, opts SQLiteOptions) (*SQLiteProcessedRecordRepo, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, pErr := db.ExecContext(ctx, p); pErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, pErr)
		}
	}

	if mErr := migrate.Run(ctx, db, migrate.SQLite); mErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", mErr)
	}

	clock := opts.TimeProvider
	if clock == nil {
		clock = &RealTimeProvider{}
	}
	return &SQLiteProcessedRecordRepo{DB: db, timeProvider: clock}, nil
}

// Close releases the underlying database.
func (r *SQLiteProcessedRecordRepo) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Exists reports whether the follower was already handled for the owner.
func (r *SQLiteProcessedRecordRepo) Exists(ctx context.Context, followerID, accountOwner string) (bool, error) {
	f, o, err := normalizeKey(followerID, accountOwner)
	if err != nil {
		return false, err
	}

	var n int
	err = r.DB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM processed_followers WHERE follower_id = ? AND account_owner = ?`,
		f, o,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check processed follower: %w", err)
	}
	return n > 0, nil
}

// Record marks the follower as handled. Recording an existing pair is a no-op.
func (r *SQLiteProcessedRecordRepo) Record(ctx context.Context, followerID, accountOwner string) error {
	f, o, err := normalizeKey(followerID, accountOwner)
	if err != nil {
		return err
	}

	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO processed_followers (follower_id, account_owner, processed_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (follower_id, account_owner) DO NOTHING`,
		f, o, r.timeProvider.FormatForDB(r.timeProvider.Now()),
	)
	if err != nil {
		return fmt.Errorf("record processed follower: %w", err)
	}
	return nil
}

// ListByOwner returns the most recent records for an account owner.
func (r *SQLiteProcessedRecordRepo) ListByOwner(ctx context.Context, accountOwner string, limit int) ([]model.ProcessedRecord, error) {
	_, o, err := normalizeKey("-", accountOwner)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := r.DB.QueryContext(ctx,
		`SELECT follower_id, account_owner, processed_at
		 FROM processed_followers
		 WHERE account_owner = ?
		 ORDER BY processed_at DESC
		 LIMIT ?`, o, limit)
	if err != nil {
		return nil, fmt.Errorf("list processed followers: %w", err)
	}
	defer rows.Close()

	var out []model.ProcessedRecord
	for rows.Next() {
		var rec model.ProcessedRecord
		var at string
		if scanErr := rows.Scan(&rec.FollowerID, &rec.AccountOwner, &at); scanErr != nil {
			return nil, fmt.Errorf("scan processed follower: %w", scanErr)
		}
		rec.ProcessedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, rec)
	}
	return out, rows.Err()
}
