package tokens

import "time"

// OutstandingToken is the durable ledger record created for every issued
// refresh token, keyed by jti. One record per token, never updated.
type OutstandingToken struct {
	JTI       string
	UserID    string
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// BlacklistedToken marks an outstanding token as revoked. Presence of a
// record for a jti is the sole authority on whether that token is usable.
// Records are never deleted by this service.
type BlacklistedToken struct {
	JTI           string
	BlacklistedAt time.Time
}
