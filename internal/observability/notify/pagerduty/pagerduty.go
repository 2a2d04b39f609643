// Package pagerduty triggers PagerDuty Events API v2 incidents for failed jobs.
package pagerduty

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/target/greeter-api/internal/observability/notify"
)

// DefaultEndpoint is the PagerDuty Events API v2 ingest URL.
const DefaultEndpoint = "https://events.pagerduty.com/v2/enqueue"

const (
	defaultTimeout  = 5 * time.Second
	defaultSource   = "greeter"
	retryStep       = 200 * time.Millisecond
	maxErrorBodyLen = 4 << 10
)

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	// Endpoint overrides DefaultEndpoint.
	Endpoint   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client publishes trigger events. Events for the same job share a dedup key,
// so a retried notification updates the open incident instead of opening a
// second one.
type Client struct {
	routingKey string
	endpoint   string
	source     string
	component  string
	retryLimit int
	http       *http.Client
}

// event is the Events API v2 trigger body.
type event struct {
	RoutingKey  string       `json:"routing_key"`
	EventAction string       `json:"event_action"`
	DedupKey    string       `json:"dedup_key"`
	Payload     eventPayload `json:"payload"`
}

type eventPayload struct {
	Summary       string         `json:"summary"`
	Severity      string         `json:"severity"`
	Source        string         `json:"source"`
	Component     string         `json:"component"`
	Timestamp     string         `json:"timestamp"`
	CustomDetails map[string]any `json:"custom_details"`
}

// NewClient validates cfg. A routing key is required.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}

	hc := cfg.Client
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		routingKey: key,
		endpoint:   orDefault(cfg.Endpoint, DefaultEndpoint),
		source:     orDefault(cfg.Source, defaultSource),
		component:  orDefault(cfg.Component, defaultSource),
		retryLimit: max(cfg.RetryLimit, 0),
		http:       hc,
	}, nil
}

// SendJobFailure triggers an incident for the failed job. Network errors,
// 429 and 5xx responses are retried with a linear backoff; other rejections
// are returned at once.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := json.Marshal(c.buildEvent(payload))
	if err != nil {
		return fmt.Errorf("encode pagerduty event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryLimit; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(time.Duration(attempt) * retryStep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(lastErr, ctx.Err())
			case <-timer.C:
			}
		}

		retry, err := c.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return lastErr
}

func (c *Client) buildEvent(p notify.JobFailurePayload) event {
	severity := strings.ToLower(strings.TrimSpace(p.Severity))
	if severity == "" {
		severity = notify.SeverityCritical
	}
	at := p.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}

	details := make(map[string]any, len(p.Metadata)+7)
	for k, v := range p.Metadata {
		details[k] = v
	}
	// Job fields win over metadata with the same key.
	details["job_id"] = p.JobID
	details["account_owner"] = p.AccountOwner
	details["stage"] = p.Stage
	details["processed"] = p.Processed
	details["total"] = p.Total
	details["error"] = p.Error
	details["error_class"] = p.ErrorClass

	return event{
		RoutingKey:  c.routingKey,
		EventAction: "trigger",
		DedupKey:    dedupKey(p.JobID),
		Payload: eventPayload{
			Summary: fmt.Sprintf("Welcome job %s for @%s failed",
				orDefault(p.JobID, "unknown"), orDefault(p.AccountOwner, "unknown")),
			Severity:      severity,
			Source:        c.source,
			Component:     c.component,
			Timestamp:     at.UTC().Format(time.RFC3339),
			CustomDetails: details,
		},
	}
}

func dedupKey(jobID string) string {
	if jobID == "" {
		return "welcome"
	}
	return "welcome:" + jobID
}

// post sends one event and reports whether a failure is worth retrying.
func (c *Client) post(ctx context.Context, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create pagerduty request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("pagerduty request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
	retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return retry, fmt.Errorf("pagerduty api %s: %s", resp.Status, strings.TrimSpace(string(msg)))
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
