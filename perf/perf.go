// Package perf holds the observability collector that compute stages report timings and
// scalar readings to. A collector is always injected by the caller; nothing in this module
// reports to a process-wide instance.
package perf

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

// Collector receives stage timings and scalar readings.
type Collector interface {
	// Begin starts timing the named stage. The returned function ends it.
	Begin(stage string) (end func())
	// Value records a scalar reading for the named metric.
	Value(metric string, v float64)
}

type noop struct{}

func (noop) Begin(string) func()    { return func() {} }
func (noop) Value(string, float64) {}

// Noop returns a collector that discards everything.
func Noop() Collector {
	return noop{}
}

// Summary describes the samples recorded under one name.
type Summary struct {
	Count  int
	Mean   float64
	Median float64
	P95    float64
	Max    float64
}

// ErrNoSamples is returned when summarizing a name nothing was recorded under.
var ErrNoSamples = errors.New("no samples recorded")

// Recorder is a Collector that keeps every sample in memory. Timings are stored in seconds.
// It is safe for concurrent use.
type Recorder struct {
	clock clock.Clock

	mu      sync.Mutex
	samples map[string][]float64
}

// NewRecorder returns a Recorder measuring durations with the given clock. A nil clock uses
// the wall clock.
func NewRecorder(clk clock.Clock) *Recorder {
	if clk == nil {
		clk = clock.New()
	}
	return &Recorder{clock: clk, samples: map[string][]float64{}}
}

// Begin starts timing the named stage.
func (r *Recorder) Begin(stage string) func() {
	start := r.clock.Now()
	return func() {
		r.Value(stage, r.clock.Since(start).Seconds())
	}
}

// Value records a scalar reading.
func (r *Recorder) Value(metric string, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[metric] = append(r.samples[metric], v)
}

// Names returns the recorded names in lexical order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.samples))
	for name := range r.samples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summary summarizes the samples recorded under name.
func (r *Recorder) Summary(name string) (Summary, error) {
	r.mu.Lock()
	data := stats.Float64Data(append([]float64(nil), r.samples[name]...))
	r.mu.Unlock()
	if len(data) == 0 {
		return Summary{}, errors.Wrapf(ErrNoSamples, "%q", name)
	}

	mean, err := data.Mean()
	if err != nil {
		return Summary{}, err
	}
	median, err := data.Median()
	if err != nil {
		return Summary{}, err
	}
	p95, err := data.Percentile(95)
	if err != nil {
		return Summary{}, err
	}
	maxV, err := data.Max()
	if err != nil {
		return Summary{}, err
	}
	return Summary{Count: len(data), Mean: mean, Median: median, P95: p95, Max: maxV}, nil
}

// Stats returns a snapshot of every summary keyed by name.
func (r *Recorder) Stats() any {
	out := map[string]Summary{}
	for _, name := range r.Names() {
		if summary, err := r.Summary(name); err == nil {
			out[name] = summary
		}
	}
	return out
}

// Elapsed is a convenience for timing a whole function with defer:
//
//	defer perf.Elapsed(collector, "stage")()
func Elapsed(c Collector, stage string) func() {
	if c == nil {
		return func() {}
	}
	return c.Begin(stage)
}

// DurationOf converts a recorded timing sample back into a duration.
func DurationOf(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
