// Package auth implements the signed-token codec: encoding the lifecycle
// claims (jti, subject, type, iat, exp) into an HS256 JWT and decoding them
// back with distinguishable validation errors.
package auth

import (
	"errors"
	"time"

	"github.com/avdeev-m/tokenkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenTypeRefresh marks long-lived tokens tracked by the ledgers.
	TokenTypeRefresh = "refresh"
	// TokenTypeAccess marks short-lived tokens that are never persisted.
	TokenTypeAccess = "access"
)

// Claims carries the registered claim set plus the token type.
// The jti lives in RegisteredClaims.ID and the user id in Subject.
type Claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"token_type"`
}

// GenerateToken signs a token of the given type for userID, identified by
// jti and valid for validityDuration from now.
func GenerateToken(userID, jti, tokenType string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		TokenType: tokenType,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies the signature and registered claims of tokenString and
// returns its claim set. Failures map to sentinel errors so callers can tell
// an expired token (common.ErrTokenExpired) from a malformed or forged one
// (common.ErrInvalidToken).
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return secretKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.ID == "" || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
