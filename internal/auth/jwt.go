// Package auth provides session tokens, password hashing, GitHub sign-in and
// the HTTP middleware that turns a session cookie into a model.Principal.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. User signs up or logs in (password or GitHub)
//  2. Server issues a JWT carrying the user id and role flags, stored in an
//     HttpOnly cookie
//  3. On later requests the middleware validates the cookie and puts the
//     Principal in the request context
//
// Role flags travel inside the token, so a role change takes effect on the
// user's next login (or when the current token expires).
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sakif/pulsecheck/internal/model"
)

const issuer = "pulsecheck"

// DefaultTokenTTL is used when NewTokenService is given a non-positive ttl.
const DefaultTokenTTL = 24 * time.Hour

// TokenService handles JWT creation and validation with an HMAC secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret.
// Example: PULSECHECK_JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is the lifetime of tokens issued by Generate. The session cookie uses
// the same value for Max-Age.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// claims is the JWT payload. "sub" carries the user id.
type claims struct {
	jwt.RegisteredClaims
	Admin      bool `json:"adm,omitempty"`
	Instructor bool `json:"ins,omitempty"`
}

// Generate signs a session token for p using the configured TTL.
func (s *TokenService) Generate(p model.Principal) (string, error) {
	return s.GenerateWithDuration(p, s.ttl)
}

// GenerateWithDuration signs a token with a custom lifetime. Tests use a
// negative duration to mint expired tokens.
func (s *TokenService) GenerateWithDuration(p model.Principal, d time.Duration) (string, error) {
	if p.UserID == "" {
		return "", errors.New("auth: cannot issue a token without a subject")
	}
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
		Admin:      p.IsAdmin,
		Instructor: p.IsInstructor,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a JWT string and returns its principal.
//
// Checked: HS256 signature, expiry present and in the future, issuer.
// jwt.WithValidMethods rules out the "none" algorithm.
func (s *TokenService) Validate(tokenStr string) (model.Principal, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Principal{}, fmt.Errorf("auth: token expired")
		}
		return model.Principal{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return model.Principal{}, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return model.Principal{}, fmt.Errorf("auth: token has no subject")
	}

	return model.Principal{
		UserID:       c.Subject,
		IsAdmin:      c.Admin,
		IsInstructor: c.Instructor,
	}, nil
}
