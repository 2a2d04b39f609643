// Package credentials loads and validates exported browser session cookies.
package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/target/greeter-api/internal/core"
	"github.com/target/greeter-api/internal/domain/model"
	apperrors "github.com/target/greeter-api/internal/errors"
)

// DefaultMaxBytes caps the size of a cookie export read from disk.
const DefaultMaxBytes int64 = 1 << 20

// Resolver implements core.CredentialsResolver. Every cookie must belong to
// PlatformDomain (compared by registrable domain) when it is set.
//
// Cookie files are only read from inside BaseDir. With no BaseDir, file
// references are rejected and callers must send cookies inline.
type Resolver struct {
	PlatformDomain string
	BaseDir        string
	MaxBytes       int64
}

var _ core.CredentialsResolver = (*Resolver)(nil)

const (
	fieldCookies     = "cookies"
	fieldCookiesPath = "cookies_path"
)

// errCookiesFileUnavailable is the single answer for any file that cannot be
// opened inside BaseDir, so responses do not reveal the server's filesystem.
var errCookiesFileUnavailable = apperrors.ValidationField(fieldCookiesPath, "cookies file not found or not readable")

// NewResolver creates a resolver bound to a platform domain.
func NewResolver(platformDomain string) *Resolver {
	return &Resolver{
		PlatformDomain: strings.ToLower(strings.TrimSpace(platformDomain)),
		MaxBytes:       DefaultMaxBytes,
	}
}

// Resolve reads the referenced export and validates it. All failures are
// validation errors.
func (r *Resolver) Resolve(_ context.Context, creds model.SessionCredentials) (model.ResolvedCredentials, error) {
	if err := creds.Validate(); err != nil {
		return model.ResolvedCredentials{}, apperrors.ValidationField(fieldFor(creds.Kind), err.Error())
	}

	switch creds.Kind {
	case model.CredentialsFile:
		data, err := r.Load(creds.FilePath)
		if err != nil {
			return model.ResolvedCredentials{}, err
		}
		return r.parse(data, fieldCookiesPath)
	default:
		return r.parse(creds.Bytes, fieldCookies)
	}
}

// Load reads a cookie export relative to BaseDir, enforcing the size cap.
// Absolute paths and paths that leave BaseDir, including through symlinks,
// are rejected.
func (r *Resolver) Load(path string) ([]byte, error) {
	if strings.TrimSpace(r.BaseDir) == "" {
		return nil, apperrors.ValidationField(fieldCookiesPath, "cookies_path is not enabled on this server; send cookies inline")
	}
	if filepath.IsAbs(path) || !filepath.IsLocal(path) {
		return nil, apperrors.ValidationField(fieldCookiesPath, "cookies_path must be a relative path inside the cookies directory")
	}

	root, err := os.OpenRoot(r.BaseDir)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "cookies directory unavailable")
	}
	defer root.Close()

	f, err := root.Open(path)
	if err != nil {
		return nil, errCookiesFileUnavailable
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return nil, errCookiesFileUnavailable
	}
	limit := r.maxBytes()
	if info.Size() > limit {
		return nil, apperrors.ValidationField(fieldCookiesPath, fmt.Sprintf("cookies file exceeds %d bytes", limit))
	}

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, errCookiesFileUnavailable
	}
	if int64(len(data)) > limit {
		return nil, apperrors.ValidationField(fieldCookiesPath, fmt.Sprintf("cookies file exceeds %d bytes", limit))
	}
	return data, nil
}

// Parse accepts either a bare JSON array of cookies or an object with a
// "cookies" array.
func (r *Resolver) Parse(data []byte) (model.ResolvedCredentials, error) {
	return r.parse(data, fieldCookies)
}

func (r *Resolver) parse(data []byte, field string) (model.ResolvedCredentials, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return model.ResolvedCredentials{}, apperrors.ValidationField(field, "cookies are empty")
	}
	if int64(len(data)) > r.maxBytes() {
		return model.ResolvedCredentials{}, apperrors.ValidationField(field, "cookies payload too large")
	}

	var cookies []model.Cookie
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &cookies); err != nil {
			return model.ResolvedCredentials{}, apperrors.ValidationField(field, "cookies must be valid JSON: "+err.Error())
		}
	case '{':
		var wrapped struct {
			Cookies []model.Cookie `json:"cookies"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return model.ResolvedCredentials{}, apperrors.ValidationField(field, "cookies must be valid JSON: "+err.Error())
		}
		cookies = wrapped.Cookies
	default:
		return model.ResolvedCredentials{}, apperrors.ValidationField(field, "cookies must be a JSON array or an object with a cookies array")
	}

	if len(cookies) == 0 {
		return model.ResolvedCredentials{}, apperrors.ValidationField(field, "no cookies found")
	}
	for i := range cookies {
		if err := r.checkCookie(&cookies[i]); err != nil {
			return model.ResolvedCredentials{}, apperrors.ValidationField(field, fmt.Sprintf("cookie %d: %v", i, err))
		}
	}
	return model.ResolvedCredentials{Cookies: cookies}, nil
}

func (r *Resolver) checkCookie(c *model.Cookie) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Domain = strings.ToLower(strings.TrimSpace(c.Domain))
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Domain == "" {
		return fmt.Errorf("%s: domain is required", c.Name)
	}
	if r.PlatformDomain == "" {
		return nil
	}

	registrable, err := publicsuffix.EffectiveTLDPlusOne(strings.TrimPrefix(c.Domain, "."))
	if err != nil {
		return fmt.Errorf("%s: invalid domain %q: %w", c.Name, c.Domain, err)
	}
	if registrable != r.PlatformDomain {
		return fmt.Errorf("%s: domain %q does not belong to %s", c.Name, c.Domain, r.PlatformDomain)
	}
	return nil
}

func (r *Resolver) maxBytes() int64 {
	if r.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return r.MaxBytes
}

func fieldFor(kind model.CredentialsKind) string {
	if kind == model.CredentialsFile {
		return fieldCookiesPath
	}
	return fieldCookies
}
