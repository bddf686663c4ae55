// Package httpapi exposes the token lifecycle over HTTP/JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/avdeev-m/tokenkeeper/internal/common"
	"github.com/avdeev-m/tokenkeeper/internal/logging"
	"github.com/avdeev-m/tokenkeeper/internal/server/tokens"
	"github.com/avdeev-m/tokenkeeper/internal/server/users"
)

// TokenLifecycle is the slice of the token service the handlers consume.
type TokenLifecycle interface {
	Issue(ctx context.Context, userID string) (*tokens.IssuedToken, error)
	List(ctx context.Context, userID string) ([]*tokens.TruncatedToken, error)
	Blacklist(ctx context.Context, rawToken string) error
	Rotate(ctx context.Context, rawToken string, sessionUserID string) (*tokens.IssuedToken, error)
	Refresh(ctx context.Context, rawToken string) (string, error)
	ParseAccessToken(rawToken string) (string, error)
}

// Authenticator is the slice of the user service the handlers consume.
type Authenticator interface {
	Register(ctx context.Context, email, password string) (*users.User, error)
	Login(ctx context.Context, email, password string) (*tokens.TokenPair, error)
}

// Handler carries the dependencies shared by all endpoints.
type Handler struct {
	logger logging.Logger
	tokens TokenLifecycle
	auth   Authenticator
}

func NewHandler(l logging.Logger, ts TokenLifecycle, auth Authenticator) *Handler {
	return &Handler{
		logger: l.With("module", "httpapi"),
		tokens: ts,
		auth:   auth,
	}
}

type tokenResponse struct {
	JTI       string    `json:"jti"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// CreateToken handles POST /api/v1/tokens.
func (h *Handler) CreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "authentication required")
		return
	}

	issued, err := h.tokens.Issue(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrTokenConflict) {
			writeDetail(w, http.StatusConflict,
				"You already have a valid token. Please revoke it before creating a new one.")
			return
		}
		h.logger.Error(ctx, "token creation failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, tokenResponse{
		JTI:       issued.JTI,
		Token:     issued.Token,
		CreatedAt: issued.CreatedAt,
		ExpiresAt: issued.ExpiresAt,
	})
}

// ListTokens handles GET /api/v1/tokens.
func (h *Handler) ListTokens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "authentication required")
		return
	}

	list, err := h.tokens.List(ctx, userID)
	if err != nil {
		h.logger.Error(ctx, "token listing failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]tokenResponse, 0, len(list))
	for _, tok := range list {
		resp = append(resp, tokenResponse{
			JTI:       tok.JTI,
			Token:     tok.Token,
			CreatedAt: tok.CreatedAt,
			ExpiresAt: tok.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// BlacklistToken handles POST /api/v1/tokens/blacklist. The presented token
// is the credential here; no session is required.
func (h *Handler) BlacklistToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Refresh == "" {
		writeDetail(w, http.StatusBadRequest, "refresh token is required")
		return
	}

	if err := h.tokens.Blacklist(ctx, req.Refresh); err != nil {
		switch {
		case errors.Is(err, common.ErrInvalidToken),
			errors.Is(err, common.ErrTokenExpired),
			errors.Is(err, common.ErrTokenBlacklisted):
			h.logger.Warn(ctx, "blacklist request rejected", "error", err)
			writeDetail(w, http.StatusNotFound, "Token is invalid or already blacklisted.")
		default:
			h.logger.Error(ctx, "blacklist request failed", "error", err)
			writeDetail(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RotateToken handles POST /api/v1/tokens/rotate.
func (h *Handler) RotateToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Refresh == "" {
		writeDetail(w, http.StatusBadRequest, "refresh token is required")
		return
	}

	issued, err := h.tokens.Rotate(ctx, req.Refresh, userID)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorUnauthorized):
			writeDetail(w, http.StatusUnauthorized, "authentication required")
		case errors.Is(err, common.ErrInvalidToken),
			errors.Is(err, common.ErrTokenExpired),
			errors.Is(err, common.ErrTokenBlacklisted):
			h.logger.Warn(ctx, "rotate request rejected", "error", err)
			writeDetail(w, http.StatusBadRequest, "Token is invalid or already blacklisted.")
		default:
			h.logger.Error(ctx, "rotate request failed", "error", err)
			writeDetail(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"refresh": issued.Token})
}

// RefreshToken handles POST /api/v1/tokens/refresh, exchanging a refresh
// token for a fresh access token.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Refresh == "" {
		writeDetail(w, http.StatusBadRequest, "refresh token is required")
		return
	}

	access, err := h.tokens.Refresh(ctx, req.Refresh)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrInvalidToken),
			errors.Is(err, common.ErrTokenExpired),
			errors.Is(err, common.ErrTokenBlacklisted):
			h.logger.Warn(ctx, "refresh request rejected", "error", err)
			writeDetail(w, http.StatusUnauthorized, "Token is invalid or expired.")
		default:
			h.logger.Error(ctx, "refresh request failed", "error", err)
			writeDetail(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /api/v1/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeDetail(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.auth.Register(ctx, req.Email, req.Password)
	if err != nil {
		h.logger.Error(ctx, "registration failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.logger.Info(ctx, "user registered", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, map[string]string{"id": user.ID, "email": user.Email})
}

// Login handles POST /api/v1/auth/login using HTTP Basic credentials and
// returns an access/refresh pair.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	email, password, ok := r.BasicAuth()
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Missing or invalid Basic Auth header.")
		return
	}

	pair, err := h.auth.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			writeDetail(w, http.StatusBadRequest, "Invalid credentials")
			return
		}
		h.logger.Error(ctx, "login failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"access":  pair.AccessToken,
		"refresh": pair.RefreshToken,
	})
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
