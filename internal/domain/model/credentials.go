package model

import (
	"errors"
	"strings"
)

// CredentialsKind discriminates the SessionCredentials union.
type CredentialsKind string

const (
	// CredentialsBytes carries the cookie export inline.
	CredentialsBytes CredentialsKind = "bytes"
	// CredentialsFile points at a cookie export on the server's filesystem.
	CredentialsFile CredentialsKind = "file"
)

// SessionCredentials references the imported session cookies for a run.
// Exactly one of Bytes or FilePath is meaningful, selected by Kind.
type SessionCredentials struct {
	Kind     CredentialsKind `json:"kind"`
	Bytes    []byte          `json:"-"`
	FilePath string          `json:"file_path,omitempty"`
}

// CredentialsFromBytes builds an inline credentials reference.
func CredentialsFromBytes(b []byte) SessionCredentials {
	return SessionCredentials{Kind: CredentialsBytes, Bytes: b}
}

// CredentialsFromFile builds a file-path credentials reference.
func CredentialsFromFile(path string) SessionCredentials {
	return SessionCredentials{Kind: CredentialsFile, FilePath: strings.TrimSpace(path)}
}

// Validate checks the union is well formed. Content is checked when resolved.
func (c SessionCredentials) Validate() error {
	switch c.Kind {
	case CredentialsBytes:
		if len(c.Bytes) == 0 {
			return errors.New("cookies are empty")
		}
	case CredentialsFile:
		if c.FilePath == "" {
			return errors.New("cookies_path is empty")
		}
	case "":
		return errors.New("session cookies are required")
	default:
		return errors.New("unknown credentials kind")
	}
	return nil
}

// Cookie is one browser cookie from a session export.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// ResolvedCredentials is the validated cookie set handed to the driver.
type ResolvedCredentials struct {
	Cookies []Cookie `json:"cookies"`
}
