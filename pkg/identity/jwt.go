// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-docvault.
//
// go-docvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a bearer token fails verification.
var ErrInvalidToken = errors.New("identity: invalid token")

// JWTConfig configures HMAC-signed session tokens.
type JWTConfig struct {
	// Secret is the HS256 signing key (required, at least 32 bytes)
	Secret []byte
	// Issuer is the iss claim (default: "go-docvault")
	Issuer string
	// Audience is the aud claim (default: "docvault-sync")
	Audience string
	// ExpiresIn is how long issued tokens are valid (default: 24 hours)
	ExpiresIn time.Duration
}

// JWT issues and verifies HS256 tokens whose sub claim is the user id.
type JWT struct {
	secret    []byte
	issuer    string
	audience  string
	expiresIn time.Duration
	now       func() time.Time
}

// NewJWT creates a token issuer/verifier.
func NewJWT(config *JWTConfig) (*JWT, error) {
	if config == nil {
		return nil, fmt.Errorf("identity: config is required")
	}
	if len(config.Secret) < 32 {
		return nil, fmt.Errorf("identity: secret must be at least 32 bytes")
	}

	issuer := config.Issuer
	if issuer == "" {
		issuer = "go-docvault"
	}
	audience := config.Audience
	if audience == "" {
		audience = "docvault-sync"
	}
	expiresIn := config.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 24 * time.Hour
	}

	return &JWT{
		secret:    config.Secret,
		issuer:    issuer,
		audience:  audience,
		expiresIn: expiresIn,
		now:       time.Now,
	}, nil
}

// Issue signs a token for userID.
func (j *JWT) Issue(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("identity: user id is required")
	}

	now := j.now()
	claims := jwt.RegisteredClaims{
		Issuer:    j.issuer,
		Subject:   userID,
		Audience:  jwt.ClaimStrings{j.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(j.expiresIn)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("identity: failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer, audience and expiry, and returns the
// subject.
func (j *JWT) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) {
			return j.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithAudience(j.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// TokenProvider is a CurrentUserProvider backed by a bearer token. With a
// Verifier the user is authenticated while the token verifies. Without one
// (a client that does not hold the signing key) the unverified sub claim is
// used and the server remains responsible for verification.
type TokenProvider struct {
	Token    string
	Verifier *JWT
}

// UserID returns the subject of the token.
func (p *TokenProvider) UserID(ctx context.Context) (string, bool) {
	if p == nil || p.Token == "" {
		return "", false
	}
	if p.Verifier == nil {
		sub, err := Subject(p.Token)
		return sub, err == nil
	}
	sub, err := p.Verifier.Verify(p.Token)
	if err != nil {
		return "", false
	}
	return sub, true
}

// Subject returns the sub claim of token without verifying its signature.
func Subject(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// BearerToken returns the raw token for outbound requests.
func (p *TokenProvider) BearerToken(ctx context.Context) (string, error) {
	if p == nil || p.Token == "" {
		return "", ErrInvalidToken
	}
	return p.Token, nil
}

var _ CurrentUserProvider = (*TokenProvider)(nil)
