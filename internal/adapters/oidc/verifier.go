// Package oidc verifies OIDC bearer tokens presented to the job API.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ErrMissingToken is returned when a request carries no bearer token.
var ErrMissingToken = errors.New("bearer token is required")

// Principal is the caller identity extracted from a verified token.
type Principal struct {
	Subject   string
	Email     string
	Groups    []string
	ExpiresAt time.Time
}

// VerifierConfig holds configuration for the bearer-token verifier.
type VerifierConfig struct {
	Issuer     string
	Audience   string
	HTTPClient *http.Client // Optional, defaults to a 30s client
}

// Verifier validates ID tokens against an issuer's published keys.
type Verifier struct {
	verifier *gooidc.IDTokenVerifier
}

// NewVerifier discovers the issuer's configuration and builds a verifier.
func NewVerifier(ctx context.Context, cfg VerifierConfig) (*Verifier, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	dctx := context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	issuer := strings.TrimSuffix(cfg.Issuer, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(dctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	return &Verifier{verifier: op.Verifier(&gooidc.Config{ClientID: cfg.Audience})}, nil
}

// NewStaticVerifier builds a verifier over a fixed key set, skipping discovery.
func NewStaticVerifier(issuer, audience string, keys gooidc.KeySet) *Verifier {
	return &Verifier{verifier: gooidc.NewVerifier(issuer, keys, &gooidc.Config{ClientID: audience})}
}

// Verify checks the token's signature, issuer, audience and expiry.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (Principal, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return Principal{}, ErrMissingToken
	}

	tok, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return Principal{}, fmt.Errorf("verify token: %w", err)
	}

	var claims tokenClaims
	if claimsErr := tok.Claims(&claims); claimsErr != nil {
		return Principal{}, fmt.Errorf("parse token claims: %w", claimsErr)
	}

	p := mapClaims(claims)
	if p.Subject == "" {
		p.Subject = tok.Subject
	}
	p.ExpiresAt = tok.Expiry
	return p, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

// tokenClaims is a superset of standard OIDC and AD/ADFS claim shapes.
type tokenClaims struct {
	Sub            string   `json:"sub"`
	SamAccountName string   `json:"samaccountname"`
	Email          string   `json:"email"`
	Mail           string   `json:"mail"`
	Groups         []string `json:"groups"`
	MemberOf       []string `json:"memberof"`
}

func mapClaims(c tokenClaims) Principal {
	p := Principal{
		Subject: firstNonEmpty(c.SamAccountName, c.Sub),
		Email:   firstNonEmpty(c.Email, c.Mail),
		Groups:  c.Groups,
	}
	if len(p.Groups) == 0 {
		p.Groups = c.MemberOf
	}
	return p
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
