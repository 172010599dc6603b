package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwtClaims is the wire shape of the tokens this verifier accepts, adapted
// from the teacher's auth.Claims (auth/jwt.go) down to the fields the core
// actually needs: tenant and user identity.
type jwtClaims struct {
	Sub      string `json:"sub"`
	Iss      string `json:"iss"`
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// JWTVerifier is the HTTP/JWKS-backed TokenVerifier implementation. It is
// one concrete implementation behind the TokenVerifier interface, not the
// interface's contract (spec's SSE-auth Open Question).
type JWTVerifier struct {
	allowedIssuers []string
	httpClient     *http.Client

	mu       sync.Mutex
	keyCache map[string]*rsa.PublicKey // kid -> key
}

func NewJWTVerifier(allowedIssuers []string) *JWTVerifier {
	return &JWTVerifier{
		allowedIssuers: allowedIssuers,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		keyCache:       make(map[string]*rsa.PublicKey),
	}
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (Claims, error) {
	token = strings.TrimPrefix(token, "Bearer ")

	parser := jwt.NewParser()
	unverified, _, err := parser.ParseUnverified(token, &jwtClaims{})
	if err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}
	unverifiedClaims, ok := unverified.Claims.(*jwtClaims)
	if !ok {
		return Claims{}, errors.New("unexpected claims shape")
	}
	jwksURL := unverifiedClaims.Iss + "/protocol/openid-connect/certs"

	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{}, func(t *jwt.Token) (interface{}, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok {
			return nil, errors.New("token missing kid header")
		}
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.publicKey(ctx, kid, jwksURL)
	})
	if err != nil {
		return Claims{}, fmt.Errorf("validate token: %w", err)
	}

	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token claims")
	}

	if len(v.allowedIssuers) > 0 {
		ok := false
		for _, iss := range v.allowedIssuers {
			if claims.Iss == iss {
				ok = true
				break
			}
		}
		if !ok {
			return Claims{}, fmt.Errorf("issuer %q not allowed", claims.Iss)
		}
	}

	tenantID := claims.TenantID
	if tenantID == "" {
		tenantID = "tenant_" + claims.Sub
	}

	return Claims{TenantID: tenantID, UserID: claims.Sub}, nil
}

func (v *JWTVerifier) publicKey(ctx context.Context, kid, jwksURL string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	if key, ok := v.keyCache[kid]; ok {
		v.mu.Unlock()
		return key, nil
	}
	v.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}

	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	for _, k := range set.Keys {
		if k.Kid == kid && k.Kty == "RSA" {
			key, err := parseRSAPublicKey(k)
			if err != nil {
				return nil, err
			}
			v.mu.Lock()
			v.keyCache[kid] = key
			v.mu.Unlock()
			return key, nil
		}
	}
	return nil, fmt.Errorf("no RSA key found with kid %s", kid)
}

func parseRSAPublicKey(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}
