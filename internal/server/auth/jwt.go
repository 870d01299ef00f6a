// Package auth issues and parses the access tokens handed out at login.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/minmer/recreatio-sub002/internal/common"
)

// Claims bind a token to an account and to the session created at login.
// SessionID is the raw session id; the server stores only its hash.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string `json:"aid"`
	SessionID string `json:"sid"`
}

// Identity is what a valid token proves.
type Identity struct {
	AccountID string
	SessionID string
}

func GenerateToken(id Identity, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.AccountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		AccountID: id.AccountID,
		SessionID: id.SessionID,
	})

	return token.SignedString(secretKey)
}

// ParseToken validates tokenString and returns its identity. Expired tokens
// yield common.ErrTokenExpired, anything else common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, common.ErrTokenExpired
		}
		return Identity{}, common.ErrInvalidToken
	}

	if !token.Valid || claims.AccountID == "" || claims.SessionID == "" {
		return Identity{}, common.ErrInvalidToken
	}

	return Identity{AccountID: claims.AccountID, SessionID: claims.SessionID}, nil
}
