package chunk

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	collisionsTotalMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storemill_chunk_collision_groups_total",
		Help: "The number of key groups with more than one record, across all workers in this process.",
	})

	maxGroupSizeMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storemill_chunk_max_group_size",
		Help: "The largest key group observed by any worker in this process.",
	})

	bytesWrittenMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storemill_chunk_bytes_written_total",
		Help: "Bytes written to chunk scratch files, by stream.",
	}, []string{"stream"})

	bytesReadMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storemill_chunk_bytes_read_total",
		Help: "Bytes read back from published chunk files during verification, by stream.",
	}, []string{"stream"})

	maxGroupMu   sync.Mutex
	maxGroupSeen int
)

// CollisionStats counts key groups with more than one record and tracks the
// maximum group size a worker has observed.  A worker owns one CollisionStats
// and updates it single-threadedly; the surrounding job reads it after the
// worker completes and aggregates across workers.
type CollisionStats struct {
	events       uint64
	maxGroupSize int
}

// Observe records a group of the given size.  Groups of size <= 1 are not
// collisions and are ignored.
func (s *CollisionStats) Observe(groupSize int) {
	if groupSize <= 1 {
		return
	}
	s.events++
	if groupSize > s.maxGroupSize {
		s.maxGroupSize = groupSize
	}
	collisionsTotalMetric.Inc()
	maxGroupMu.Lock()
	if groupSize > maxGroupSeen {
		maxGroupSeen = groupSize
		maxGroupSizeMetric.Set(float64(groupSize))
	}
	maxGroupMu.Unlock()
}

// Events returns the number of groups observed with more than one record.
func (s *CollisionStats) Events() uint64 {
	return s.events
}

// MaxGroupSize returns the largest group size observed, or 0 if none.
func (s *CollisionStats) MaxGroupSize() int {
	return s.maxGroupSize
}

// Merge folds other into s.  The driver uses this to aggregate per-worker
// stats after all workers complete.
func (s *CollisionStats) Merge(other *CollisionStats) {
	s.events += other.events
	if other.maxGroupSize > s.maxGroupSize {
		s.maxGroupSize = other.maxGroupSize
	}
}
