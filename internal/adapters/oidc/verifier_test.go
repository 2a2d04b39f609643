package oidc

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://issuer.example.com"
	testAudience = "greeter-api"
)

func signToken(t *testing.T, key *rsa.PrivateKey, claims map[string]any) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	signingInput := base64.RawURLEncoding.EncodeToString(header) + "." + base64.RawURLEncoding.EncodeToString(payload)
	sum := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, sum[:])
	require.NoError(t, err)
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func newStatic(t *testing.T) (*Verifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keys := &gooidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	return NewStaticVerifier(testIssuer, testAudience, keys), key
}

func baseClaims() map[string]any {
	return map[string]any{
		"iss": testIssuer,
		"aud": testAudience,
		"sub": "user-123",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
}

func TestVerifier_Verify(t *testing.T) {
	v, key := newStatic(t)

	t.Run("standard claims", func(t *testing.T) {
		claims := baseClaims()
		claims["email"] = "ops@example.com"
		claims["groups"] = []string{"greeter-admins"}

		p, err := v.Verify(context.Background(), signToken(t, key, claims))
		require.NoError(t, err)
		assert.Equal(t, "user-123", p.Subject)
		assert.Equal(t, "ops@example.com", p.Email)
		assert.Equal(t, []string{"greeter-admins"}, p.Groups)
		assert.False(t, p.ExpiresAt.IsZero())
	})

	t.Run("directory claims take precedence", func(t *testing.T) {
		claims := baseClaims()
		claims["samaccountname"] = "z001"
		claims["mail"] = "z001@example.com"
		claims["memberof"] = []string{"CN=ops"}

		p, err := v.Verify(context.Background(), signToken(t, key, claims))
		require.NoError(t, err)
		assert.Equal(t, "z001", p.Subject)
		assert.Equal(t, "z001@example.com", p.Email)
		assert.Equal(t, []string{"CN=ops"}, p.Groups)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := baseClaims()
		claims["aud"] = "someone-else"
		_, err := v.Verify(context.Background(), signToken(t, key, claims))
		require.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		claims := baseClaims()
		claims["exp"] = time.Now().Add(-time.Hour).Unix()
		_, err := v.Verify(context.Background(), signToken(t, key, claims))
		require.Error(t, err)
	})

	t.Run("foreign key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		_, err = v.Verify(context.Background(), signToken(t, other, baseClaims()))
		require.Error(t, err)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := v.Verify(context.Background(), "  ")
		require.ErrorIs(t, err, ErrMissingToken)
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{header: "Bearer abc.def", want: "abc.def"},
		{header: "bearer   abc", want: "abc"},
		{header: "Basic Zm9vOmJhcg==", wantErr: true},
		{header: "Bearer", wantErr: true},
		{header: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := BearerToken(tt.header)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMissingToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewVerifier(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		_, err := NewVerifier(context.Background(), VerifierConfig{Audience: testAudience})
		require.EqualError(t, err, "issuer is required")
		_, err = NewVerifier(context.Background(), VerifierConfig{Issuer: testIssuer})
		require.EqualError(t, err, "audience is required")
	})

	t.Run("discovery", func(t *testing.T) {
		var issuer string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/.well-known/openid-configuration" {
				http.NotFound(w, r)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"issuer":                 issuer,
				"authorization_endpoint": issuer + "/auth",
				"token_endpoint":         issuer + "/token",
				"jwks_uri":               issuer + "/jwks",
			})
		}))
		defer srv.Close()
		issuer = srv.URL

		v, err := NewVerifier(context.Background(), VerifierConfig{
			Issuer:     srv.URL + "/.well-known/openid-configuration",
			Audience:   testAudience,
			HTTPClient: srv.Client(),
		})
		require.NoError(t, err)
		assert.NotNil(t, v)
	})

	t.Run("unreachable issuer", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()
		_, err := NewVerifier(context.Background(), VerifierConfig{Issuer: srv.URL, Audience: testAudience})
		require.Error(t, err)
	})
}
