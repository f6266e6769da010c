package stats

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saviobatista/globe-worker/internal/types"
)

// ErrNoStore is returned by Persist when no store has been set
var ErrNoStore = errors.New("stats store not set")

// Store persists worker statistics snapshots
type Store interface {
	StoreWorkerStats(ctx context.Context, stats *types.WorkerStats) error
}

// Stats tracks batch processing statistics
type Stats struct {
	// Batch counts
	Batches         uint64
	DecodeFailures  uint64
	PublishFailures uint64

	// Vector and point counts
	StatesReceived uint64
	PointsEmitted  uint64
	StatesDropped  uint64

	// Emitted points per emitter category
	CategoryCounts [types.NumCategories]uint64

	// Timing
	LastBatchTime  time.Time
	ProcessingTime time.Duration
	startedAt      time.Time

	store Store

	mu sync.RWMutex
}

// New creates a new Stats instance
func New() *Stats {
	now := time.Now()
	return &Stats{
		LastBatchTime: now,
		startedAt:     now,
	}
}

// SetStore sets the store used for persistence
func (s *Stats) SetStore(store Store) {
	s.mu.Lock()
	s.store = store
	s.mu.Unlock()
}

// Persist stores the current statistics
func (s *Stats) Persist(ctx context.Context) error {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()

	if store == nil {
		return ErrNoStore
	}

	return store.StoreWorkerStats(ctx, s.Snapshot())
}

// IncrementBatches increments the handled batches counter
func (s *Stats) IncrementBatches() {
	atomic.AddUint64(&s.Batches, 1)
}

// IncrementDecodeFailures increments the undecodable batches counter
func (s *Stats) IncrementDecodeFailures() {
	atomic.AddUint64(&s.DecodeFailures, 1)
}

// IncrementPublishFailures increments the failed publishes counter
func (s *Stats) IncrementPublishFailures() {
	atomic.AddUint64(&s.PublishFailures, 1)
}

// AddBatch records the outcome of a transformed batch
func (s *Stats) AddBatch(received int, points []types.Point) {
	atomic.AddUint64(&s.StatesReceived, uint64(received))
	atomic.AddUint64(&s.PointsEmitted, uint64(len(points)))
	atomic.AddUint64(&s.StatesDropped, uint64(received-len(points)))

	for _, p := range points {
		s.IncrementCategory(p.Category)
	}
}

// IncrementCategory increments the counter for an emitter category
func (s *Stats) IncrementCategory(category float64) {
	if category != float64(int(category)) {
		return
	}
	idx := int(category)
	if idx >= 0 && idx < len(s.CategoryCounts) {
		atomic.AddUint64(&s.CategoryCounts[idx], 1)
	}
}

// UpdateLastBatchTime updates the last batch time
func (s *Stats) UpdateLastBatchTime() {
	s.mu.Lock()
	s.LastBatchTime = time.Now()
	s.mu.Unlock()
}

// AddProcessingTime adds to the total processing time
func (s *Stats) AddProcessingTime(duration time.Duration) {
	s.mu.Lock()
	s.ProcessingTime += duration
	s.mu.Unlock()
}

// Snapshot returns a copy of the current statistics
func (s *Stats) Snapshot() *types.WorkerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &types.WorkerStats{
		Time:            time.Now(),
		Batches:         atomic.LoadUint64(&s.Batches),
		DecodeFailures:  atomic.LoadUint64(&s.DecodeFailures),
		PublishFailures: atomic.LoadUint64(&s.PublishFailures),
		StatesReceived:  atomic.LoadUint64(&s.StatesReceived),
		PointsEmitted:   atomic.LoadUint64(&s.PointsEmitted),
		StatesDropped:   atomic.LoadUint64(&s.StatesDropped),
		LastBatchTime:   s.LastBatchTime,
		ProcessingTime:  s.ProcessingTime,
		Uptime:          time.Since(s.startedAt),
	}
	for i := range s.CategoryCounts {
		snap.CategoryCounts[i] = atomic.LoadUint64(&s.CategoryCounts[i])
	}
	return snap
}

// String returns a string representation of the statistics
func (s *Stats) String() string {
	snap := s.Snapshot()
	return fmt.Sprintf(
		"Batches: %d\n"+
			"Decode Failures: %d\n"+
			"Publish Failures: %d\n"+
			"States Received: %d\n"+
			"Points Emitted: %d\n"+
			"States Dropped: %d\n"+
			"Last Batch Time: %s\n"+
			"Processing Time: %s\n"+
			"Uptime: %s",
		snap.Batches,
		snap.DecodeFailures,
		snap.PublishFailures,
		snap.StatesReceived,
		snap.PointsEmitted,
		snap.StatesDropped,
		snap.LastBatchTime.Format(time.RFC3339),
		snap.ProcessingTime,
		snap.Uptime.Truncate(time.Second),
	)
}

// StartPersistence starts periodic persistence of statistics
func (s *Stats) StartPersistence(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final persistence before shutdown, ctx is already done
			if err := s.Persist(context.WithoutCancel(ctx)); err != nil {
				log.Printf("Failed to persist final statistics: %v", err)
			}
			return
		case <-ticker.C:
			if err := s.Persist(ctx); err != nil {
				log.Printf("Failed to persist statistics: %v", err)
			}
		}
	}
}
