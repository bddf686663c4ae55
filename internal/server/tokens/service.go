package tokens

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/avdeev-m/tokenkeeper/internal/common"
	"github.com/avdeev-m/tokenkeeper/internal/dbx"
	"github.com/avdeev-m/tokenkeeper/internal/logging"
	"github.com/avdeev-m/tokenkeeper/internal/server/auth"
	"github.com/avdeev-m/tokenkeeper/internal/server/config"
	"github.com/google/uuid"
)

// IssuedToken is the result of minting a refresh token: the full encoded
// credential plus the ledger fields callers may present to the user.
type IssuedToken struct {
	Token     string
	JTI       string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// TruncatedToken is the non-sensitive representation used when listing a
// user's tokens. Token carries the header and payload segments only; the
// signature is stripped, so the value cannot be replayed.
type TruncatedToken struct {
	JTI       string
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// TokenPair bundles a short-lived access token and a long-lived refresh
// token, as returned by login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Service is the refresh-token lifecycle manager. Per token the state
// machine is ISSUED -> (expired | blacklisted), both terminal.
//
// Note: the one-outstanding-token check in Issue is read-then-write and is
// not mutually excluded across concurrent requests for the same user. Two
// concurrent Issue calls can both pass the check and both persist a token.
// Contention on a single user is rare enough that this is accepted rather
// than serialized with a per-user lock.
type Service struct {
	db                           *sql.DB
	newRepo                      RepositoryFactory
	logger                       logging.Logger
	secretKey                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

// NewService constructs the lifecycle manager. The factory is invoked with
// the pool for standalone reads and with a transaction inside Rotate.
func NewService(db *sql.DB, f RepositoryFactory, l logging.Logger, cfg *config.Config) *Service {
	return &Service{
		db:                           db,
		newRepo:                      f,
		logger:                       l.With("module", "tokens"),
		secretKey:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

// Issue mints a refresh token for userID and persists its outstanding
// record. It fails with common.ErrTokenConflict while the user still has a
// valid (unexpired, non-blacklisted) token; the caller must revoke first.
func (s *Service) Issue(ctx context.Context, userID string) (*IssuedToken, error) {
	repo := s.newRepo(s.db)

	existing, err := repo.ListValid(ctx, userID)
	if err != nil {
		s.logger.Error(ctx, "listing outstanding tokens failed", "error", err)
		return nil, common.ErrorInternal
	}
	if len(existing) > 0 {
		return nil, common.ErrTokenConflict
	}

	return s.mint(ctx, userID, repo)
}

// List returns every valid refresh token belonging to userID in truncated
// form. Records that fail to decode or validate are logged and skipped
// rather than failing the whole listing.
func (s *Service) List(ctx context.Context, userID string) ([]*TruncatedToken, error) {
	repo := s.newRepo(s.db)

	records, err := repo.ListValid(ctx, userID)
	if err != nil {
		s.logger.Error(ctx, "listing outstanding tokens failed", "error", err)
		return nil, common.ErrorInternal
	}

	result := make([]*TruncatedToken, 0, len(records))
	for _, rec := range records {
		claims, err := auth.ParseToken(rec.Token, s.secretKey)
		if err != nil {
			s.logger.Debug(ctx, "skipping ledger record that failed validation", "jti", rec.JTI, "error", err)
			continue
		}
		if claims.TokenType != auth.TokenTypeRefresh {
			continue
		}
		result = append(result, &TruncatedToken{
			JTI:       rec.JTI,
			Token:     Truncate(rec.Token),
			CreatedAt: rec.CreatedAt,
			ExpiresAt: rec.ExpiresAt,
		})
	}
	return result, nil
}

// Blacklist revokes the presented refresh token. The token must carry a
// valid signature, be of type refresh, and not be expired or already
// blacklisted; validation failures come back as the corresponding sentinel.
func (s *Service) Blacklist(ctx context.Context, rawToken string) error {
	claims, err := s.validateRefresh(rawToken)
	if err != nil {
		return err
	}

	repo := s.newRepo(s.db)

	blacklisted, err := repo.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		s.logger.Error(ctx, "blacklist lookup failed", "error", err)
		return common.ErrorInternal
	}
	if blacklisted {
		return common.ErrTokenBlacklisted
	}

	if err := repo.Blacklist(ctx, claims.ID); err != nil {
		if errors.Is(err, common.ErrTokenBlacklisted) {
			return common.ErrTokenBlacklisted
		}
		s.logger.Error(ctx, "blacklist insert failed", "error", err)
		return common.ErrorInternal
	}

	s.logger.Info(ctx, "token blacklisted", "jti", claims.ID)
	return nil
}

// Rotate retires the presented refresh token and mints a replacement for
// sessionUserID in one transaction. Authorization comes from the live
// session, not from the token's own subject: rotation capability is bound
// to the authenticated caller. The one-outstanding-token conflict check is
// bypassed because the old token is retired in the same transaction.
func (s *Service) Rotate(ctx context.Context, rawToken string, sessionUserID string) (*IssuedToken, error) {
	if sessionUserID == "" {
		return nil, common.ErrorUnauthorized
	}

	claims, err := s.validateRefresh(rawToken)
	if err != nil {
		return nil, err
	}

	repo := s.newRepo(s.db)
	blacklisted, err := repo.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		s.logger.Error(ctx, "blacklist lookup failed", "error", err)
		return nil, common.ErrorInternal
	}
	if blacklisted {
		return nil, common.ErrTokenBlacklisted
	}

	var issued *IssuedToken
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repoTx := s.newRepo(tx)
		if err := repoTx.Blacklist(ctx, claims.ID); err != nil {
			return err
		}
		var mintErr error
		issued, mintErr = s.mint(ctx, sessionUserID, repoTx)
		return mintErr
	}); err != nil {
		if errors.Is(err, common.ErrTokenBlacklisted) {
			return nil, common.ErrTokenBlacklisted
		}
		s.logger.Error(ctx, "token rotation failed", "error", err)
		return nil, common.ErrorInternal
	}

	s.logger.Info(ctx, "token rotated", "old_jti", claims.ID, "jti", issued.JTI)
	return issued, nil
}

// IssuePair mints an access/refresh pair for userID, as used by login.
// Unlike Issue it does not apply the one-outstanding-token conflict check.
func (s *Service) IssuePair(ctx context.Context, userID string) (*TokenPair, error) {
	access, err := auth.GenerateToken(userID, uuid.NewString(), auth.TokenTypeAccess,
		s.secretKey, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}

	issued, err := s.mint(ctx, userID, s.newRepo(s.db))
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: issued.Token}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself stays outstanding.
func (s *Service) Refresh(ctx context.Context, rawToken string) (string, error) {
	claims, err := s.validateRefresh(rawToken)
	if err != nil {
		return "", err
	}

	blacklisted, err := s.newRepo(s.db).IsBlacklisted(ctx, claims.ID)
	if err != nil {
		s.logger.Error(ctx, "blacklist lookup failed", "error", err)
		return "", common.ErrorInternal
	}
	if blacklisted {
		return "", common.ErrTokenBlacklisted
	}

	access, err := auth.GenerateToken(claims.Subject, uuid.NewString(), auth.TokenTypeAccess,
		s.secretKey, s.accessTokenValidityDuration)
	if err != nil {
		return "", common.ErrorInternal
	}
	return access, nil
}

// ParseAccessToken verifies an access token and returns the user it is
// bound to. Used by the HTTP auth middleware.
func (s *Service) ParseAccessToken(rawToken string) (string, error) {
	claims, err := auth.ParseToken(rawToken, s.secretKey)
	if err != nil {
		return "", err
	}
	if claims.TokenType != auth.TokenTypeAccess {
		return "", common.ErrInvalidToken
	}
	return claims.Subject, nil
}

// Truncate strips the signature segment from an encoded token, leaving the
// decodable but unusable "header.payload." form.
func Truncate(rawToken string) string {
	parts := strings.SplitN(rawToken, ".", 3)
	if len(parts) != 3 {
		return rawToken
	}
	return parts[0] + "." + parts[1] + "."
}

func (s *Service) validateRefresh(rawToken string) (*auth.Claims, error) {
	claims, err := auth.ParseToken(rawToken, s.secretKey)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != auth.TokenTypeRefresh {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) mint(ctx context.Context, userID string, repo Repository) (*IssuedToken, error) {
	jti := uuid.NewString()
	now := time.Now()

	raw, err := auth.GenerateToken(userID, jti, auth.TokenTypeRefresh,
		s.secretKey, s.refreshTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}

	record := &OutstandingToken{
		JTI:       jti,
		UserID:    userID,
		Token:     raw,
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTokenValidityDuration),
	}
	if err := repo.CreateOutstanding(ctx, record); err != nil {
		s.logger.Error(ctx, "persisting outstanding token failed", "error", err)
		return nil, common.ErrorInternal
	}

	return &IssuedToken{
		Token:     raw,
		JTI:       jti,
		UserID:    userID,
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
	}, nil
}
