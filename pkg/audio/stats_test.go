package audio

import (
	"testing"
	"time"
)

func TestStatsCounters(t *testing.T) {
	t.Parallel()

	var s Stats
	s.RecordIn(100)
	s.RecordIn(50)
	s.RecordOut(30)
	s.RecordDrop()

	snap := s.Snapshot()
	if snap.FramesIn != 2 || snap.BytesIn != 150 {
		t.Errorf("in: %d frames / %d bytes", snap.FramesIn, snap.BytesIn)
	}
	if snap.FramesOut != 1 || snap.BytesOut != 30 {
		t.Errorf("out: %d frames / %d bytes", snap.FramesOut, snap.BytesOut)
	}
	if snap.FramesDropped != 1 {
		t.Errorf("dropped = %d", snap.FramesDropped)
	}
}

func TestStatsLatencyWindow(t *testing.T) {
	t.Parallel()

	var s Stats
	s.RecordLatency(10 * time.Millisecond)
	s.RecordLatency(30 * time.Millisecond)

	if avg := s.Snapshot().AvgLatency; avg != 20*time.Millisecond {
		t.Errorf("avg = %v, want 20ms", avg)
	}

	// Overflow the window: only the most recent 100 samples count.
	for i := 0; i < latencyWindow; i++ {
		s.RecordLatency(100 * time.Millisecond)
	}
	if avg := s.Snapshot().AvgLatency; avg != 100*time.Millisecond {
		t.Errorf("avg after window overflow = %v, want 100ms", avg)
	}
}

func TestFramePool(t *testing.T) {
	t.Parallel()

	p := NewFramePool(OpusFrameBytes)
	buf := p.Get()
	if len(buf) != OpusFrameBytes {
		t.Fatalf("len = %d, want %d", len(buf), OpusFrameBytes)
	}
	p.Put(buf)

	// Wrong-size buffers are discarded, and the pool keeps handing out
	// full-size ones.
	p.Put(make([]byte, 10))
	if got := p.Get(); len(got) != OpusFrameBytes {
		t.Fatalf("len after foreign put = %d, want %d", len(got), OpusFrameBytes)
	}
}
