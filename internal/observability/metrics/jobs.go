// Package metrics emits the greeter's StatsD metrics with consistent tags.
package metrics

import (
	"time"

	obserrors "github.com/target/greeter-api/internal/observability/errors"
	"github.com/target/greeter-api/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobTransition captures a lifecycle transition for metric emission.
type JobTransition struct {
	From     string
	To       string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitJobTransition counts job.transition and, for terminal transitions,
// records job.duration.
func EmitJobTransition(sink statsd.Sink, in JobTransition) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"from":   in.From,
		"to":     in.To,
		"result": in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// Delivery describes one send attempt.
type Delivery struct {
	Outcome  string
	Duration time.Duration
	Err      error
}

// EmitDelivery counts delivery.message tagged with the outcome.
func EmitDelivery(sink statsd.Sink, in Delivery) {
	if sink == nil {
		return
	}

	tags := map[string]string{"outcome": in.Outcome}
	if class := obserrors.Classify(in.Err); class != "" {
		tags["error_class"] = class
	}

	sink.Count("delivery.message", 1, tags)
	if in.Duration > 0 {
		sink.Timing("delivery.message_duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
