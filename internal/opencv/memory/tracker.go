package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/logger"
)

// Tracker records every live safe.Mat so a run can prove it released what it allocated.
type Tracker struct {
	allocations map[uint64]AllocationRecord
	mu          sync.RWMutex
	stats       Stats
	logger      logger.Logger
}

type AllocationRecord struct {
	Tag       string
	Size      int64
	CreatedAt time.Time
}

type Stats struct {
	TotalAllocated int64
	TotalReleased  int64
	ActiveMats     int64
	PeakActiveMats int64
	AllocCount     int64
}

func NewTracker(log logger.Logger) *Tracker {
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{
		allocations: make(map[uint64]AllocationRecord),
		logger:      log,
	}
}

func (t *Tracker) TrackAllocation(id uint64, size int64, tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.allocations[id] = AllocationRecord{
		Tag:       tag,
		Size:      size,
		CreatedAt: time.Now(),
	}
	t.stats.TotalAllocated += size
	t.stats.AllocCount++
	t.stats.ActiveMats++
	if t.stats.ActiveMats > t.stats.PeakActiveMats {
		t.stats.PeakActiveMats = t.stats.ActiveMats
	}
}

func (t *Tracker) TrackDeallocation(id uint64, tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, exists := t.allocations[id]
	if !exists {
		t.logger.Warning("MemoryTracker", "release of untracked Mat", map[string]interface{}{
			"id":  id,
			"tag": tag,
		})
		return
	}

	delete(t.allocations, id)
	t.stats.TotalReleased += record.Size
	t.stats.ActiveMats--
}

func (t *Tracker) GetStats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stats
}

// Live returns the tags of Mats that are still open, sorted for stable output.
func (t *Tracker) Live() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tags := make([]string, 0, len(t.allocations))
	for _, record := range t.allocations {
		tags = append(tags, record.Tag)
	}
	sort.Strings(tags)
	return tags
}

// Report logs a warning for every Mat still open and returns how many there were.
func (t *Tracker) Report() int {
	live := t.Live()
	if len(live) > 0 {
		t.logger.Warning("MemoryTracker", "Mats still open at end of run", map[string]interface{}{
			"count": len(live),
			"tags":  live,
		})
		return len(live)
	}

	stats := t.GetStats()
	t.logger.Debug("MemoryTracker", "all Mats released", map[string]interface{}{
		"allocations": stats.AllocCount,
		"peak_active": stats.PeakActiveMats,
		"bytes":       stats.TotalAllocated,
	})
	return 0
}
