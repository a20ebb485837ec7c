package auth

import (
	"errors"
	"fmt"
	"time"

	"lrnchat/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type (
	// Verifier validates bearer tokens against the shared HMAC secret and
	// extracts the identity they carry. Verification is the single atomic
	// authentication gate for a connection.
	Verifier struct {
		secret []byte
	}

	claims struct {
		Username string `json:"username"`
		jwt.RegisteredClaims
	}
)

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify checks signature and expiry and returns the identity bound to the
// token. Any failure collapses into ErrInvalidToken; callers never learn why.
func (v *Verifier) Verify(token string) (model.Identity, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return model.Identity{}, ErrInvalidToken
	}
	if c.Subject == "" {
		return model.Identity{}, ErrInvalidToken
	}

	return model.Identity{ID: c.Subject, DisplayName: c.Username}, nil
}

// Sign issues a token for an identity. The relay itself never issues tokens
// in production (that belongs to the auth service); this exists for the
// client binary's dev mode and for tests.
func (v *Verifier) Sign(identity model.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	c := &claims{
		Username: identity.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}
