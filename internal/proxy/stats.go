package proxy

import (
	"sync"
	"sync/atomic"

	"github.com/haianbui/clawrouter/internal/catalog"
)

// Stats holds approximate, atomically-updated counters for GET /stats.
// Spec.md §5 explicitly allows approximate counts with no cross-counter
// consistency requirement, so a per-key atomic counter under a read-path
// map lock is sufficient; it need not be a single atomic snapshot.
type Stats struct {
	mu             sync.Mutex
	byTier         map[catalog.Tier]*int64
	byModel        map[string]*int64
	totalSavingsBits atomic.Uint64 // math.Float64bits, accumulated by addFloat64's CAS loop
	startedAt      int64          // unix seconds, set once at construction
}

// NewStats builds an empty Stats ledger, startedAtUnix is the process
// start time (unix seconds), reported back as Snapshot.StartedAt.
func NewStats(startedAtUnix int64) *Stats {
	return &Stats{
		byTier:    make(map[catalog.Tier]*int64),
		byModel:   make(map[string]*int64),
		startedAt: startedAtUnix,
	}
}

// Record increments the counters for a completed decision and adds its
// savings (in USD) to the running total.
func (s *Stats) Record(tier catalog.Tier, model string, savingsUSD float64) {
	s.mu.Lock()
	tierCounter, ok := s.byTier[tier]
	if !ok {
		var z int64
		tierCounter = &z
		s.byTier[tier] = tierCounter
	}
	modelCounter, ok := s.byModel[model]
	if !ok {
		var z int64
		modelCounter = &z
		s.byModel[model] = modelCounter
	}
	s.mu.Unlock()

	atomic.AddInt64(tierCounter, 1)
	atomic.AddInt64(modelCounter, 1)
	addFloat64(&s.totalSavingsBits, savingsUSD)
}

// Snapshot is a point-in-time read suitable for JSON encoding.
type Snapshot struct {
	ByTier          map[string]int64
	ByModel         map[string]int64
	TotalSavingsUSD float64
	StartedAt       int64
}

// Snapshot copies the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTier := make(map[string]int64, len(s.byTier))
	for tier, counter := range s.byTier {
		byTier[string(tier)] = atomic.LoadInt64(counter)
	}
	byModel := make(map[string]int64, len(s.byModel))
	for model, counter := range s.byModel {
		byModel[model] = atomic.LoadInt64(counter)
	}

	return Snapshot{
		ByTier:          byTier,
		ByModel:         byModel,
		TotalSavingsUSD: loadFloat64(&s.totalSavingsBits),
		StartedAt:       s.startedAt,
	}
}
