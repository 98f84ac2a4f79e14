// Package auth resolves the calling owner from a bearer token.
//
// Tokens are issued elsewhere (the session service). This package only
// verifies HS256 signatures and extracts the owner id, which every ledger
// operation is scoped to.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/ledger-engine/ledger"
)

// Common errors
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrMissingOwner = errors.New("missing owner in claims")
)

// Claims carries the owner either as the standard subject or as owner_id.
type Claims struct {
	jwt.RegisteredClaims
	OwnerID string `json:"owner_id,omitempty"`
}

// Owner returns the owner id, preferring owner_id over sub.
func (c *Claims) Owner() ledger.OwnerID {
	if c.OwnerID != "" {
		return ledger.OwnerID(c.OwnerID)
	}
	return ledger.OwnerID(c.Subject)
}

// Verifier validates bearer tokens.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier for HS256 tokens signed with secret. An
// empty issuer accepts any issuer.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses a raw token and returns the owner it authenticates.
func (v *Verifier) Verify(tokenString string) (ledger.OwnerID, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	owner := claims.Owner()
	if owner == "" {
		return "", ErrMissingOwner
	}
	return owner, nil
}

// Sign issues a token for owner. Used by tests and the development
// token printer; production tokens come from the session service.
func Sign(secret, issuer string, owner ledger.OwnerID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   string(owner),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// =============================================================================
// CONTEXT
// =============================================================================

type ownerKey struct{}

// WithOwner stores the authenticated owner in ctx.
func WithOwner(ctx context.Context, owner ledger.OwnerID) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFrom returns the authenticated owner, or "" when there is none.
func OwnerFrom(ctx context.Context) ledger.OwnerID {
	owner, _ := ctx.Value(ownerKey{}).(ledger.OwnerID)
	return owner
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}
