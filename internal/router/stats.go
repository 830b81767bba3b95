package router

import (
	"sort"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/feedoracle/internal/feed"
)

// Stats summarises resolutions of one output feed type.
type Stats struct {
	Output    feed.Type
	Resolves  int64
	Errors    int64
	LastError string

	// Latency quantiles in milliseconds; zero when the sketch is empty.
	P50Ms float64
	P90Ms float64
	P99Ms float64
	MaxMs float64
}

type typeStats struct {
	resolves  int64
	errors    int64
	lastError string
	maxMs     float64
	sketch    *ddsketch.DDSketch
}

type statsRegistry struct {
	mu       sync.Mutex
	accuracy float64
	byType   map[feed.Type]*typeStats
}

func newStatsRegistry(accuracy float64) *statsRegistry {
	return &statsRegistry{
		accuracy: accuracy,
		byType:   make(map[feed.Type]*typeStats),
	}
}

func (s *statsRegistry) record(t feed.Type, elapsed time.Duration, err error) {
	ms := float64(elapsed) / float64(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.byType[t]
	if !ok {
		ts = &typeStats{}
		// Sketch stays nil on error; quantiles then read as zero.
		if sketch, serr := ddsketch.NewDefaultDDSketch(s.accuracy); serr == nil {
			ts.sketch = sketch
		}
		s.byType[t] = ts
	}

	ts.resolves++
	if err != nil {
		ts.errors++
		ts.lastError = err.Error()
	}
	if ms > ts.maxMs {
		ts.maxMs = ms
	}
	if ts.sketch != nil {
		ts.sketch.Add(ms)
	}
}

func (s *statsRegistry) snapshot() []Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Stats, 0, len(s.byType))
	for t, ts := range s.byType {
		st := Stats{
			Output:    t,
			Resolves:  ts.resolves,
			Errors:    ts.errors,
			LastError: ts.lastError,
			MaxMs:     ts.maxMs,
		}
		if ts.sketch != nil && ts.sketch.GetCount() > 0 {
			st.P50Ms, _ = ts.sketch.GetValueAtQuantile(0.50)
			st.P90Ms, _ = ts.sketch.GetValueAtQuantile(0.90)
			st.P99Ms, _ = ts.sketch.GetValueAtQuantile(0.99)
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Output < out[j].Output })
	return out
}
