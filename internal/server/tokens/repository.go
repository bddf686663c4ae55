// Package tokens implements the refresh-token lifecycle: issuing, listing,
// rotating, and revoking long-lived refresh tokens backed by two persistent
// ledgers, the outstanding-token table and the blacklist.
package tokens

import (
	"context"

	"github.com/avdeev-m/tokenkeeper/internal/dbx"
)

// Repository defines the ledger operations the lifecycle service depends on.
// There is no update or delete; a token leaves circulation by expiring or by
// gaining a blacklist record.
type Repository interface {
	// CreateOutstanding stores the ledger record for a freshly issued token.
	CreateOutstanding(ctx context.Context, token *OutstandingToken) error

	// ListValid returns the user's outstanding tokens whose expiry is in the
	// future and whose jti has no blacklist record.
	ListValid(ctx context.Context, userID string) ([]*OutstandingToken, error)

	// Blacklist inserts a blacklist record for jti. If one already exists it
	// returns common.ErrTokenBlacklisted.
	Blacklist(ctx context.Context, jti string) error

	// IsBlacklisted reports whether a blacklist record exists for jti.
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// RepositoryFactory builds a Repository bound to the given handle, so the
// same repository code can run against the pool or inside a transaction.
type RepositoryFactory func(db dbx.DBTX) Repository
