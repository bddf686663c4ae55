package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avdeev-m/tokenkeeper/internal/common"
	"github.com/avdeev-m/tokenkeeper/internal/cryptox"
	"github.com/avdeev-m/tokenkeeper/internal/server/tokens"
)

// Service verifies credentials and hands out token pairs through the
// token lifecycle manager.
type Service struct {
	repo   Repository
	tokens *tokens.Service
}

func NewService(repo Repository, ts *tokens.Service) *Service {
	return &Service{repo: repo, tokens: ts}
}

// Register creates a new account with an Argon2id-hashed password.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	salt := common.GenerateRandByteArray(32)

	user := &User{
		Email:        normalizeEmail(email),
		Salt:         salt,
		PasswordHash: cryptox.HashPassword([]byte(password), salt),
	}

	user, err := s.repo.Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("error creating user: %v", err)
	}

	return user, nil
}

// Login verifies email/password and, on success, issues an access/refresh
// pair. The one-outstanding-token conflict check does not apply to login.
func (s *Service) Login(ctx context.Context, email, password string) (*tokens.TokenPair, error) {
	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	if !cryptox.CheckPassword([]byte(password), user.Salt, user.PasswordHash) {
		return nil, common.ErrorUnauthorized
	}

	return s.tokens.IssuePair(ctx, user.ID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
