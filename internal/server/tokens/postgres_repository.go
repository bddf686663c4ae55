package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avdeev-m/tokenkeeper/internal/common"
	"github.com/avdeev-m/tokenkeeper/internal/dbx"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique constraint errors.
const pgUniqueViolation = "23505"

// PostgresRepository implements the ledger operations over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// PostgresFactory adapts NewPostgresRepository to the RepositoryFactory type.
func PostgresFactory(db dbx.DBTX) Repository {
	return NewPostgresRepository(db)
}

// CreateOutstanding inserts the ledger record for an issued refresh token.
func (r *PostgresRepository) CreateOutstanding(ctx context.Context, token *OutstandingToken) error {
	query := `
		INSERT INTO outstanding_tokens (jti, user_id, token, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query,
		token.JTI, token.UserID, token.Token, token.CreatedAt, token.ExpiresAt); err != nil {
		return fmt.Errorf("error performing sql request: %v", err)
	}
	return nil
}

// ListValid returns the user's unexpired outstanding tokens that have no
// blacklist record for their jti.
func (r *PostgresRepository) ListValid(ctx context.Context, userID string) ([]*OutstandingToken, error) {
	query := `
		SELECT o.jti, o.user_id, o.token, o.created_at, o.expires_at
		FROM outstanding_tokens o
		WHERE o.user_id = $1
		  AND o.expires_at > $2
		  AND NOT EXISTS (
		      SELECT 1 FROM blacklisted_tokens b WHERE b.jti = o.jti
		  )
	`
	rows, err := r.db.QueryContext(ctx, query, userID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []*OutstandingToken{}
	for rows.Next() {
		t := &OutstandingToken{}
		if err := rows.Scan(&t.JTI, &t.UserID, &t.Token, &t.CreatedAt, &t.ExpiresAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// Blacklist inserts a revocation record for jti. A duplicate insert maps to
// common.ErrTokenBlacklisted so concurrent revocations stay idempotent.
func (r *PostgresRepository) Blacklist(ctx context.Context, jti string) error {
	query := `
		INSERT INTO blacklisted_tokens (jti, blacklisted_at)
		VALUES ($1, $2)
	`
	if _, err := r.db.ExecContext(ctx, query, jti, time.Now()); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return common.ErrTokenBlacklisted
		}
		return fmt.Errorf("error performing sql request: %v", err)
	}
	return nil
}

// IsBlacklisted reports whether a blacklist record exists for jti.
func (r *PostgresRepository) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM blacklisted_tokens WHERE jti = $1
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, jti).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}
