package timing

import (
	"sort"
	"sync"
	"time"
)

// Span marks the start of one timed operation.
type Span struct {
	Operation string
	StartTime time.Time
}

// Summary aggregates every recorded duration of one operation.
type Summary struct {
	Operation string
	Count     int
	Total     time.Duration
	Average   time.Duration
	Max       time.Duration
}

type Tracker struct {
	timings map[string][]time.Duration
	mu      sync.RWMutex
	enabled bool
	now     func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		timings: make(map[string][]time.Duration),
		enabled: true,
		now:     time.Now,
	}
}

func (tt *Tracker) StartTiming(operation string) Span {
	return Span{Operation: operation, StartTime: tt.now()}
}

// EndTiming records the time elapsed since span started and returns it. Disabled trackers
// return the duration without recording it.
func (tt *Tracker) EndTiming(span Span) time.Duration {
	duration := tt.now().Sub(span.StartTime)

	tt.mu.Lock()
	defer tt.mu.Unlock()

	if !tt.enabled || span.StartTime.IsZero() {
		return duration
	}
	tt.timings[span.Operation] = append(tt.timings[span.Operation], duration)
	return duration
}

func (tt *Tracker) GetTimings(operation string) []time.Duration {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	timings := tt.timings[operation]
	if timings == nil {
		return nil
	}

	result := make([]time.Duration, len(timings))
	copy(result, timings)
	return result
}

func (tt *Tracker) GetAverageTime(operation string) time.Duration {
	timings := tt.GetTimings(operation)
	if len(timings) == 0 {
		return 0
	}

	var total time.Duration
	for _, duration := range timings {
		total += duration
	}

	return total / time.Duration(len(timings))
}

// Summaries returns one entry per operation, sorted by name.
func (tt *Tracker) Summaries() []Summary {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	result := make([]Summary, 0, len(tt.timings))
	for operation, timings := range tt.timings {
		s := Summary{Operation: operation, Count: len(timings)}
		for _, d := range timings {
			s.Total += d
			if d > s.Max {
				s.Max = d
			}
		}
		if s.Count > 0 {
			s.Average = s.Total / time.Duration(s.Count)
		}
		result = append(result, s)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Operation < result[j].Operation
	})
	return result
}

func (tt *Tracker) SetEnabled(enabled bool) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.enabled = enabled
}

// Reset drops the timings of one operation, or of all operations when operation is empty.
func (tt *Tracker) Reset(operation string) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if operation == "" {
		tt.timings = make(map[string][]time.Duration)
	} else {
		delete(tt.timings, operation)
	}
}
