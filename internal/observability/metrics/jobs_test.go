package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/greeter-api/internal/observability/statsd"
)

func TestEmitJobTransition(t *testing.T) {
	rec := statsd.NewRecorder()

	EmitJobTransition(rec, JobTransition{
		From:     "sending_messages",
		To:       "failed",
		Result:   ResultError,
		Duration: 3 * time.Second,
		Err:      context.DeadlineExceeded,
	})

	counts := rec.Counts("job.transition")
	require.Len(t, counts, 1)
	assert.Equal(t, "failed", counts[0].Tags["to"])
	assert.Equal(t, "timeout", counts[0].Tags["error_class"])

	timings := rec.Timings("job.duration")
	require.Len(t, timings, 1)
	assert.Equal(t, 3*time.Second, timings[0].Duration)
}

func TestEmitJobTransition_NoDurationForIntermediate(t *testing.T) {
	rec := statsd.NewRecorder()
	EmitJobTransition(rec, JobTransition{From: "queued", To: "running", Result: ResultSuccess})

	assert.Len(t, rec.Counts("job.transition"), 1)
	assert.Empty(t, rec.Timings("job.duration"))
}

func TestEmitDelivery(t *testing.T) {
	rec := statsd.NewRecorder()
	EmitDelivery(rec, Delivery{Outcome: "sent", Duration: time.Second})
	EmitDelivery(rec, Delivery{Outcome: "failed", Err: context.DeadlineExceeded})

	counts := rec.Counts("delivery.message")
	require.Len(t, counts, 2)
	assert.Equal(t, "sent", counts[0].Tags["outcome"])
	assert.NotContains(t, counts[0].Tags, "error_class")
	assert.Equal(t, "timeout", counts[1].Tags["error_class"])
}

func TestNilSinkIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		EmitJobTransition(nil, JobTransition{})
		EmitDelivery(nil, Delivery{})
	})
}
