package codec

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"classattend/internal/apperr"
)

// Payload is what a session token carries. Tokens are self-contained;
// decoding never touches the database.
type Payload struct {
	SessionID string
	IssuedAt  time.Time
}

type tokenClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Codec encodes session tokens as HS256 JWTs so a structurally valid
// payload cannot be forged without the signing key.
type Codec struct {
	key    []byte
	issuer string
}

// New creates a codec signing with key on behalf of issuer.
func New(key, issuer string) *Codec {
	return &Codec{key: []byte(key), issuer: issuer}
}

// Encode produces an opaque token for the session.
func (c *Codec) Encode(sessionID string, issuedAt time.Time) (string, error) {
	if sessionID == "" {
		return "", apperr.New(apperr.Validation, "session id required")
	}
	claims := tokenClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   c.issuer,
			Subject:  sessionID,
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

// Decode parses a token back into its payload. Any structural or
// signature failure comes back as a Validation error rather than a panic
// or a bare parse error, so callers can distinguish bad input from
// valid-but-expired downstream.
func (c *Codec) Decode(token string) (Payload, error) {
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return c.key, nil
	})
	if err != nil {
		return Payload{}, apperr.Wrap(apperr.Validation, "malformed token", err)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return Payload{}, apperr.New(apperr.Validation, "malformed token")
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return Payload{}, apperr.New(apperr.Validation, "malformed token")
	}
	if claims.SessionID == "" || claims.IssuedAt == nil {
		return Payload{}, apperr.New(apperr.Validation, "malformed token")
	}
	return Payload{SessionID: claims.SessionID, IssuedAt: claims.IssuedAt.Time}, nil
}
