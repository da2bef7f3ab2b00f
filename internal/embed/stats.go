package embed

import (
	"slices"
	"sync"
	"time"
)

// Call is one completed request to the embeddings endpoint.
type Call struct {
	Task     string
	Outcome  string
	Tokens   int
	Duration time.Duration
}

type sample struct {
	at   time.Time
	call Call
}

// LatencySummary aggregates request latencies in milliseconds.
type LatencySummary struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// StatsSnapshot covers the calls still inside the window. Latency fields
// describe successful calls only, since a rejected batch returns early.
type StatsSnapshot struct {
	LatencySummary
	Calls        int                       `json:"calls"`
	Tokens       int                       `json:"estimated_tokens"`
	MsPer1kToken float64                   `json:"ms_per_1k_tokens"`
	ByTask       map[string]LatencySummary `json:"by_task,omitempty"`
	Outcomes     map[string]int            `json:"outcomes,omitempty"`
}

// LatencyStats keeps embedding calls for a rolling window.
type LatencyStats struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
	now     func() time.Time
}

func NewLatencyStats(maxAge time.Duration) *LatencyStats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &LatencyStats{
		samples: make([]sample, 0, 256),
		maxAge:  maxAge,
		now:     time.Now,
	}
}

func (s *LatencyStats) Record(c Call) {
	if s == nil {
		return
	}
	c.Duration = max(c.Duration, 0)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	s.samples = append(s.samples, sample{at: now, call: c})
}

func (s *LatencyStats) Snapshot() StatsSnapshot {
	if s == nil {
		return StatsSnapshot{}
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	if len(s.samples) == 0 {
		return StatsSnapshot{}
	}

	snap := StatsSnapshot{
		Calls:    len(s.samples),
		Outcomes: make(map[string]int),
		ByTask:   make(map[string]LatencySummary),
	}
	var all []int64
	byTask := make(map[string][]int64)
	var okMs int64
	okTokens := 0
	for _, sm := range s.samples {
		snap.Outcomes[sm.call.Outcome]++
		if sm.call.Outcome != outcomeOK {
			continue
		}
		ms := sm.call.Duration.Milliseconds()
		all = append(all, ms)
		byTask[sm.call.Task] = append(byTask[sm.call.Task], ms)
		okMs += ms
		okTokens += sm.call.Tokens
	}
	snap.LatencySummary = summarize(all)
	snap.Tokens = okTokens
	if okTokens > 0 {
		snap.MsPer1kToken = float64(okMs) * 1000 / float64(okTokens)
	}
	for task, values := range byTask {
		snap.ByTask[task] = summarize(values)
	}
	return snap
}

func summarize(values []int64) LatencySummary {
	if len(values) == 0 {
		return LatencySummary{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	var sum int64
	for _, v := range sorted {
		sum += v
	}
	return LatencySummary{
		Count: len(sorted),
		MinMs: sorted[0],
		MaxMs: sorted[len(sorted)-1],
		AvgMs: float64(sum) / float64(len(sorted)),
		P50Ms: percentile(sorted, 50),
		P95Ms: percentile(sorted, 95),
		P99Ms: percentile(sorted, 99),
	}
}

func (s *LatencyStats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.maxAge)
	keep := s.samples[:0]
	for _, sm := range s.samples {
		if !sm.at.Before(cutoff) {
			keep = append(keep, sm)
		}
	}
	s.samples = keep
}

// percentile interpolates linearly between the two nearest ranks.
func percentile(sorted []int64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[len(sorted)-1])
	}
	rank := float64(len(sorted)-1) * pct / 100
	lower := int(rank)
	if lower+1 >= len(sorted) {
		return float64(sorted[lower])
	}
	lo, hi := float64(sorted[lower]), float64(sorted[lower+1])
	return lo + (hi-lo)*(rank-float64(lower))
}
