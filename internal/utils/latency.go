package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker stores recent duration samples per pipeline stage and computes percentiles.
type LatencyTracker struct {
	mu      sync.RWMutex
	samples map[string][]time.Duration
	maxSize int
}

// NewLatencyTracker creates a tracker storing up to maxSize samples per stage.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &LatencyTracker{maxSize: maxSize, samples: make(map[string][]time.Duration)}
}

// Observe records a new duration for stage.
func (l *LatencyTracker) Observe(stage string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	buf := append(l.samples[stage], d)
	if len(buf) > l.maxSize {
		buf = buf[len(buf)-l.maxSize:]
	}
	l.samples[stage] = buf
}

// Percentile returns the percentile (0-100) duration for stage. Returns zero if no samples.
func (l *LatencyTracker) Percentile(stage string, p float64) time.Duration {
	l.mu.RLock()
	sorted := append([]time.Duration(nil), l.samples[stage]...)
	l.mu.RUnlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	return sorted[int((p/100.0)*float64(len(sorted)-1))]
}

// Count returns number of samples recorded for stage.
func (l *LatencyTracker) Count(stage string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples[stage])
}

// Stages lists the stages with at least one sample, sorted by name.
func (l *LatencyTracker) Stages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stages := make([]string, 0, len(l.samples))
	for stage := range l.samples {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	return stages
}
