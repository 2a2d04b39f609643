package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/target/greeter-api/internal/core"
	"github.com/target/greeter-api/internal/data/pgxutil"
	"github.com/target/greeter-api/internal/domain/model"
	apperrors "github.com/target/greeter-api/internal/errors"
)

// ErrIdentityRequired is returned when a follower id or account owner is blank.
var ErrIdentityRequired = errors.New("follower_id and account_owner are required")

// ProcessedRecordRepo implements core.ProcessedRecordStore using PostgreSQL.
type ProcessedRecordRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ core.ProcessedRecordStore = (*ProcessedRecordRepo)(nil)

// NewProcessedRecordRepo creates a new ProcessedRecordRepo with the given database connection.
func NewProcessedRecordRepo(db *sql.DB) *ProcessedRecordRepo {
	return &ProcessedRecordRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

func normalizeKey(followerID, accountOwner string) (string, string, error) {
	f := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(followerID), "@"))
	o := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(accountOwner), "@"))
	if f == "" || o == "" {
		return "", "", ErrIdentityRequired
	}
	return f, o, nil
}

// Exists reports whether the follower was already handled for the owner.
func (r *ProcessedRecordRepo) Exists(ctx context.Context, followerID, accountOwner string) (bool, error) {
	f, o, err := normalizeKey(followerID, accountOwner)
	if err != nil {
		return false, err
	}

	var exists bool
	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM processed_followers
				WHERE follower_id = $1 AND account_owner = $2
			)`, f, o).Scan(&exists)
	})
	if err != nil {
		return false, fmt.Errorf("check processed follower: %w", apperrors.MapDBError(err))
	}
	return exists, nil
}

// Record marks the follower as handled. Recording an existing pair is a no-op.
func (r *ProcessedRecordRepo) Record(ctx context.Context, followerID, accountOwner string) error {
	f, o, err := normalizeKey(followerID, accountOwner)
	if err != nil {
		return err
	}

	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, execErr := conn.Exec(ctx, `
			INSERT INTO processed_followers (follower_id, account_owner, processed_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (follower_id, account_owner) DO NOTHING`,
			f, o, r.timeProvider.Now().UTC())
		return execErr
	})
	if err != nil {
		return fmt.Errorf("record processed follower: %w", apperrors.MapDBError(err))
	}
	return nil
}

// ListByOwner returns the most recent records for an account owner.
func (r *ProcessedRecordRepo) ListByOwner(ctx context.Context, accountOwner string, limit int) ([]model.ProcessedRecord, error) {
	_, o, err := normalizeKey("-", accountOwner)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var out []model.ProcessedRecord
	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qErr := conn.Query(ctx, `
			SELECT follower_id, account_owner, processed_at
			FROM processed_followers
			WHERE account_owner = $1
			ORDER BY processed_at DESC
			LIMIT $2`, o, limit)
		if qErr != nil {
			return qErr
		}
		var cErr error
		out, cErr = pgx.CollectRows(rows, pgx.RowToStructByName[model.ProcessedRecord])
		return cErr
	})
	if err != nil {
		return nil, fmt.Errorf("list processed followers: %w", apperrors.MapDBError(err))
	}
	return out, nil
}
