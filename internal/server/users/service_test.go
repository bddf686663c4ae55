package users

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/avdeev-m/tokenkeeper/internal/common"
	"github.com/avdeev-m/tokenkeeper/internal/dbx"
	"github.com/avdeev-m/tokenkeeper/internal/logging"
	"github.com/avdeev-m/tokenkeeper/internal/server/config"
	"github.com/avdeev-m/tokenkeeper/internal/server/tokens"
)

type fakeUsersRepo struct {
	createOut *User
	createErr error

	getOut *User
	getErr error

	gotEmail string
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *User) (*User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createOut != nil {
		return f.createOut, nil
	}
	u.ID = "u1"
	return u, nil
}

func (f *fakeUsersRepo) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	f.gotEmail = email
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}

type fakeTokenRepo struct {
	created []*tokens.OutstandingToken
}

func (f *fakeTokenRepo) CreateOutstanding(ctx context.Context, t *tokens.OutstandingToken) error {
	f.created = append(f.created, t)
	return nil
}

func (f *fakeTokenRepo) ListValid(ctx context.Context, userID string) ([]*tokens.OutstandingToken, error) {
	return nil, nil
}

func (f *fakeTokenRepo) Blacklist(ctx context.Context, jti string) error { return nil }

func (f *fakeTokenRepo) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	return false, nil
}

func newTestService(t *testing.T, repo Repository) (*Service, *fakeTokenRepo) {
	t.Helper()
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{
		SecretKey:                    "k",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
	}
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	tr := &fakeTokenRepo{}
	ts := tokens.NewService(db, func(dbx.DBTX) tokens.Repository { return tr }, logger, cfg)

	return NewService(repo, ts), tr
}

func TestRegister_HashesPassword(t *testing.T) {
	repo := &fakeUsersRepo{}
	s, _ := newTestService(t, repo)

	user, err := s.Register(context.Background(), " Alice@Example.COM ", "pass123")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if len(user.Salt) != 32 {
		t.Fatalf("expected 32-byte salt, got %d", len(user.Salt))
	}
	if len(user.PasswordHash) == 0 {
		t.Fatalf("expected password hash to be set")
	}
	if string(user.PasswordHash) == "pass123" {
		t.Fatalf("password stored in clear")
	}
}

func TestLogin_Success(t *testing.T) {
	repo := &fakeUsersRepo{}
	s, tr := newTestService(t, repo)

	// create via Register so the stored hash matches
	user, err := s.Register(context.Background(), "alice@example.com", "pass123")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	repo.getOut = user

	pair, err := s.Login(context.Background(), "alice@example.com", "pass123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("incomplete pair: %+v", pair)
	}
	if len(tr.created) != 1 {
		t.Fatalf("expected one outstanding record, got %d", len(tr.created))
	}
	if tr.created[0].UserID != "u1" {
		t.Fatalf("outstanding record for user %q, want u1", tr.created[0].UserID)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	repo := &fakeUsersRepo{}
	s, _ := newTestService(t, repo)

	user, err := s.Register(context.Background(), "alice@example.com", "pass123")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	repo.getOut = user

	_, err = s.Login(context.Background(), "alice@example.com", "wrong")
	if !errors.Is(err, common.ErrorUnauthorized) {
		t.Fatalf("expected common.ErrorUnauthorized, got %v", err)
	}
}

func TestLogin_UnknownUser(t *testing.T) {
	repo := &fakeUsersRepo{getErr: common.ErrorNotFound}
	s, _ := newTestService(t, repo)

	_, err := s.Login(context.Background(), "ghost@example.com", "pass")
	if !errors.Is(err, common.ErrorUnauthorized) {
		t.Fatalf("expected common.ErrorUnauthorized, got %v", err)
	}
}

func TestLogin_RepoFailureIsInternal(t *testing.T) {
	repo := &fakeUsersRepo{getErr: errors.New("db down")}
	s, _ := newTestService(t, repo)

	_, err := s.Login(context.Background(), "alice@example.com", "pass")
	if !errors.Is(err, common.ErrorInternal) {
		t.Fatalf("expected common.ErrorInternal, got %v", err)
	}
}

func TestLogin_NormalizesEmailForLookup(t *testing.T) {
	repo := &fakeUsersRepo{getErr: common.ErrorNotFound}
	s, _ := newTestService(t, repo)

	_, _ = s.Login(context.Background(), "  Alice@Example.COM ", "pass")
	if repo.gotEmail != "alice@example.com" {
		t.Fatalf("lookup used %q, want normalized email", repo.gotEmail)
	}
}
