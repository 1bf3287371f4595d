package audio

import (
	"sync"
	"time"
)

// latencyWindow is how many recent samples the rolling average covers.
const latencyWindow = 100

// Stats aggregates pipeline counters and a rolling latency window. All
// methods are safe for concurrent use.
type Stats struct {
	mu             sync.Mutex
	framesIn       uint64
	framesOut      uint64
	framesDropped  uint64
	bytesIn        uint64
	bytesOut       uint64
	latencies      [latencyWindow]time.Duration
	latencyCount   int
	latencyNextIdx int
}

// Snapshot is a point-in-time copy of the pipeline counters.
type Snapshot struct {
	FramesIn      uint64
	FramesOut     uint64
	FramesDropped uint64
	BytesIn       uint64
	BytesOut      uint64
	AvgLatency    time.Duration
}

// RecordIn counts one inbound frame of n bytes.
func (s *Stats) RecordIn(n int) {
	s.mu.Lock()
	s.framesIn++
	s.bytesIn += uint64(n)
	s.mu.Unlock()
}

// RecordOut counts one outbound frame of n bytes.
func (s *Stats) RecordOut(n int) {
	s.mu.Lock()
	s.framesOut++
	s.bytesOut += uint64(n)
	s.mu.Unlock()
}

// RecordDrop counts one dropped frame.
func (s *Stats) RecordDrop() {
	s.mu.Lock()
	s.framesDropped++
	s.mu.Unlock()
}

// RecordLatency adds one end-to-end latency sample to the rolling window.
func (s *Stats) RecordLatency(d time.Duration) {
	s.mu.Lock()
	s.latencies[s.latencyNextIdx] = d
	s.latencyNextIdx = (s.latencyNextIdx + 1) % latencyWindow
	if s.latencyCount < latencyWindow {
		s.latencyCount++
	}
	s.mu.Unlock()
}

// Snapshot returns a copy of the current counters. AvgLatency is the mean of
// the most recent samples, up to the window size.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var avg time.Duration
	if s.latencyCount > 0 {
		var sum time.Duration
		for i := 0; i < s.latencyCount; i++ {
			sum += s.latencies[i]
		}
		avg = sum / time.Duration(s.latencyCount)
	}

	return Snapshot{
		FramesIn:      s.framesIn,
		FramesOut:     s.framesOut,
		FramesDropped: s.framesDropped,
		BytesIn:       s.bytesIn,
		BytesOut:      s.bytesOut,
		AvgLatency:    avg,
	}
}
