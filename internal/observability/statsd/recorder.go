package statsd

import (
	"sync"
	"time"
)

// Sample is one metric captured by a Recorder.
type Sample struct {
	Name     string
	Value    float64
	Duration time.Duration
	Tags     map[string]string
}

// Recorder is an in-memory Sink used by tests and dry runs.
type Recorder struct {
	mu      sync.Mutex
	counts  []Sample
	gauges  []Sample
	timings []Sample
}

var _ Sink = (*Recorder)(nil)

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Count records a counter sample.
func (r *Recorder) Count(name string, value int64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = append(r.counts, Sample{Name: name, Value: float64(value), Tags: mergeTags(tags, nil)})
}

// Gauge records a gauge sample.
func (r *Recorder) Gauge(name string, value float64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges = append(r.gauges, Sample{Name: name, Value: value, Tags: mergeTags(tags, nil)})
}

// Timing records a timing sample.
func (r *Recorder) Timing(name string, value time.Duration, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timings = append(r.timings, Sample{Name: name, Duration: value, Tags: mergeTags(tags, nil)})
}

// Counts returns counter samples with the given name.
func (r *Recorder) Counts(name string) []Sample { return r.filter(&r.counts, name) }

// Gauges returns gauge samples with the given name.
func (r *Recorder) Gauges(name string) []Sample { return r.filter(&r.gauges, name) }

// Timings returns timing samples with the given name.
func (r *Recorder) Timings(name string) []Sample { return r.filter(&r.timings, name) }

func (r *Recorder) filter(src *[]Sample, name string) []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Sample
	for _, s := range *src {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}
