// Package browserworker implements core.MessagingDriver against the remote
// browser-automation worker's HTTP API.
package browserworker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/target/greeter-api/internal/core"
	"github.com/target/greeter-api/internal/domain/model"
)

// DefaultFollowersExpr extracts follower identities from a notifications payload.
const DefaultFollowersExpr = "notifications[?type=='follow'].user.username"

const maxErrorBody = 4 << 10

// ErrWorker is wrapped by every non-2xx worker response.
var ErrWorker = errors.New("browser worker error")

// OAuthOptions enables client-credentials tokens on worker requests.
type OAuthOptions struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Options configures a Client.
type Options struct {
	BaseURL string
	// Timeout bounds every call except SendMessage, which relies on the caller's deadline.
	Timeout       time.Duration
	FollowersExpr string
	HTTPClient    *http.Client
	OAuth         *OAuthOptions
	Logger        *slog.Logger
}

// Client talks to the worker over HTTP JSON.
type Client struct {
	baseURL       string
	timeout       time.Duration
	followersExpr string
	http          *http.Client
	logger        *slog.Logger
}

var _ core.MessagingDriver = (*Client)(nil)

// NewClient validates options and builds a worker client. When OAuth is set the
// underlying transport is wrapped with a client-credentials token source.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("browser worker base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid browser worker url: %w", err)
	}

	expr := strings.TrimSpace(opts.FollowersExpr)
	if expr == "" {
		expr = DefaultFollowersExpr
	}
	if _, err := jmespath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid followers expression: %w", err)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if opts.OAuth != nil && opts.OAuth.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     opts.OAuth.ClientID,
			ClientSecret: opts.OAuth.ClientSecret,
			TokenURL:     opts.OAuth.TokenURL,
			Scopes:       opts.OAuth.Scopes,
		}
		// The token source reuses the base client for token requests.
		hc = cc.Client(context.WithValue(ctx, oauth2.HTTPClient, hc))
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:       base,
		timeout:       timeout,
		followersExpr: expr,
		http:          hc,
		logger:        logger.With("component", "browser_worker"),
	}, nil
}

type connectRequest struct {
	Cookies  []model.Cookie `json:"cookies"`
	Headless bool           `json:"headless"`
	Proxy    string         `json:"proxy,omitempty"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
}

type statusResponse struct {
	Connected bool `json:"connected"`
}

type messageRequest struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
}

type messageResponse struct {
	Sent  bool   `json:"sent"`
	Error string `json:"error,omitempty"`
}

// Connect opens a new authenticated session on the worker.
func (c *Client) Connect(
	ctx context.Context,
	creds model.ResolvedCredentials,
	opts model.DriverOptions,
) (core.DriverSession, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out sessionResponse
	body := connectRequest{Cookies: creds.Cookies, Headless: opts.Headless, Proxy: opts.Proxy}
	if err := c.do(ctx, http.MethodPost, "/sessions", body, &out); err != nil {
		return core.DriverSession{}, err
	}
	if out.SessionID == "" {
		return core.DriverSession{}, fmt.Errorf("%w: connect returned no session id", ErrWorker)
	}
	return core.DriverSession{ID: out.SessionID}, nil
}

// IsConnected asks the worker whether the session is still usable. Any
// transport or protocol error is treated as disconnected.
func (c *Client) IsConnected(ctx context.Context, session core.DriverSession) bool {
	if session.ID == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out statusResponse
	if err := c.do(ctx, http.MethodGet, sessionPath(session), nil, &out); err != nil {
		c.logger.DebugContext(ctx, "liveness probe failed", "session_id", session.ID, "error", err)
		return false
	}
	return out.Connected
}

// Reconnect asks the worker to re-establish the session. The worker may
// return a new session id.
func (c *Client) Reconnect(ctx context.Context, session core.DriverSession) (core.DriverSession, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out sessionResponse
	if err := c.do(ctx, http.MethodPost, sessionPath(session)+"/reconnect", nil, &out); err != nil {
		return core.DriverSession{}, err
	}
	if out.SessionID == "" {
		out.SessionID = session.ID
	}
	return core.DriverSession{ID: out.SessionID}, nil
}

// DiscoverNewFollowers fetches the notifications payload and extracts
// follower identities with the configured JMESPath expression.
func (c *Client) DiscoverNewFollowers(
	ctx context.Context,
	session core.DriverSession,
	accountOwner string,
) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	path := sessionPath(session) + "/notifications?owner=" + url.QueryEscape(accountOwner)
	var payload any
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	return extractIdentities(c.followersExpr, payload)
}

func extractIdentities(expr string, payload any) ([]string, error) {
	res, err := jmespath.Search(expr, payload)
	if err != nil {
		return nil, fmt.Errorf("evaluate followers expression: %w", err)
	}
	if res == nil {
		return []string{}, nil
	}

	items, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("followers expression yielded %T, want list", res)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, isStr := it.(string); isStr {
			out = append(out, s)
		}
	}
	return out, nil
}

// SendMessage composes and sends a direct message. The caller's context
// bounds the call. A worker reply of sent=false with a reason is returned as
// an error so the reason reaches the job record.
func (c *Client) SendMessage(
	ctx context.Context,
	session core.DriverSession,
	identity, text string,
) (bool, error) {
	var out messageResponse
	body := messageRequest{Recipient: identity, Text: text}
	if err := c.do(ctx, http.MethodPost, sessionPath(session)+"/messages", body, &out); err != nil {
		return false, err
	}
	if !out.Sent && out.Error != "" {
		return false, fmt.Errorf("%w: %s", ErrWorker, out.Error)
	}
	return out.Sent, nil
}

// Close tears the session down. Unknown sessions are not an error.
func (c *Client) Close(ctx context.Context, session core.DriverSession) error {
	if session.ID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.do(ctx, http.MethodDelete, sessionPath(session), nil, nil)
	if errors.Is(err, core.ErrSessionClosed) {
		return nil
	}
	return err
}

func sessionPath(s core.DriverSession) string {
	return "/sessions/" + url.PathEscape(s.ID)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode worker request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create worker request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error keeps the transport text (connection reset, EOF, ...) intact.
		return fmt.Errorf("worker %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(method, path, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if decErr := json.NewDecoder(resp.Body).Decode(out); decErr != nil {
		return fmt.Errorf("decode worker response: %w", decErr)
	}
	return nil
}

func statusError(method, path string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))

	var structured struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &structured) == nil && structured.Error != "" {
		msg = structured.Error
	}

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("worker %s %s: %w", method, path, core.ErrSessionClosed)
	default:
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrWorker, method, path, resp.StatusCode, msg)
	}
}
