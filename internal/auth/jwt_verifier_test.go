package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newJWKSServer(t *testing.T, key *rsa.PrivateKey, kid string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/protocol/openid-connect/certs", func(w http.ResponseWriter, r *http.Request) {
		pub := key.PublicKey
		set := jwks{Keys: []jwk{{
			Kty: "RSA",
			Kid: kid,
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(set)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwtClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, &claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWTVerifier_Verify_ValidTokenReturnsClaims(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := newJWKSServer(t, key, "kid-1")

	token := signToken(t, key, "kid-1", jwtClaims{
		Sub:      "user-123",
		Iss:      srv.URL,
		TenantID: "tenant-abc",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	v := NewJWTVerifier([]string{srv.URL})
	claims, err := v.Verify(context.Background(), "Bearer "+token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.TenantID != "tenant-abc" {
		t.Errorf("TenantID = %q, want tenant-abc", claims.TenantID)
	}
	if claims.UserID != "user-123" {
		t.Errorf("UserID = %q, want user-123", claims.UserID)
	}
}

func TestJWTVerifier_Verify_MissingTenantIDFallsBackToSubject(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv := newJWKSServer(t, key, "kid-1")

	token := signToken(t, key, "kid-1", jwtClaims{
		Sub: "user-456",
		Iss: srv.URL,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	v := NewJWTVerifier(nil)
	claims, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.TenantID != "tenant_user-456" {
		t.Errorf("TenantID = %q, want tenant_user-456", claims.TenantID)
	}
}

func TestJWTVerifier_Verify_RejectsDisallowedIssuer(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv := newJWKSServer(t, key, "kid-1")

	token := signToken(t, key, "kid-1", jwtClaims{
		Sub: "user-1",
		Iss: srv.URL,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	v := NewJWTVerifier([]string{"https://some-other-issuer.example.com"})
	if _, err := v.Verify(context.Background(), token); err == nil {
		t.Fatalf("expected an error for a disallowed issuer")
	}
}

func TestJWTVerifier_Verify_RejectsExpiredToken(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv := newJWKSServer(t, key, "kid-1")

	token := signToken(t, key, "kid-1", jwtClaims{
		Sub: "user-1",
		Iss: srv.URL,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	v := NewJWTVerifier(nil)
	if _, err := v.Verify(context.Background(), token); err == nil {
		t.Fatalf("expected an error for an expired token")
	}
}

func TestJWTVerifier_Verify_RejectsUnknownKid(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv := newJWKSServer(t, key, "kid-1")

	token := signToken(t, key, "kid-does-not-exist", jwtClaims{
		Sub: "user-1",
		Iss: srv.URL,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	v := NewJWTVerifier(nil)
	if _, err := v.Verify(context.Background(), token); err == nil {
		t.Fatalf("expected an error when no matching JWKS key is found")
	}
}

func TestJWTVerifier_PublicKey_CachesAcrossCalls(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	requests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/protocol/openid-connect/certs", func(w http.ResponseWriter, r *http.Request) {
		requests++
		pub := key.PublicKey
		set := jwks{Keys: []jwk{{
			Kty: "RSA",
			Kid: "kid-1",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(set)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	v := NewJWTVerifier(nil)
	ctx := context.Background()
	if _, err := v.publicKey(ctx, "kid-1", srv.URL+"/protocol/openid-connect/certs"); err != nil {
		t.Fatalf("publicKey: %v", err)
	}
	if _, err := v.publicKey(ctx, "kid-1", srv.URL+"/protocol/openid-connect/certs"); err != nil {
		t.Fatalf("publicKey: %v", err)
	}
	if requests != 1 {
		t.Errorf("expected the JWKS endpoint to be hit once due to caching, got %d requests", requests)
	}
}
