// Package auth defines the token-verification contract SSE and API handlers
// depend on. Per the spec's Open Question on SSE auth, the core contract is
// "verify a token string" — any HTTP/JWKS-shaping machinery is an
// implementation detail behind this interface, never the contract itself.
package auth

import "context"

// Claims is the minimal identity carried by a verified token.
type Claims struct {
	TenantID string
	UserID   string
}

// TokenVerifier is the one-method contract every handler depends on.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}
