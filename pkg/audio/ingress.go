package audio

import (
	"sync"
	"time"
)

// Bucket is one aggregated window of STT-rate PCM produced by an Ingress.
// IsVoice reports whether any frame inside the window carried speech.
type Bucket struct {
	// PCM is little-endian int16 mono at the STT sample rate.
	PCM []byte

	// IsVoice is true when at least one frame in the window was classified
	// as speech.
	IsVoice bool

	// Start is the capture offset of the bucket's first sample.
	Start time.Duration
}

// ingressBuffer is the outbound bucket channel capacity. A full channel
// means the consumer has stalled for several seconds; further buckets are
// dropped rather than backing the decode loop up into the network reader.
const ingressBuffer = 8

// Ingress is the inbound half of a room audio pipeline: Opus packets in,
// speech-gated STT-rate buckets out. One Ingress per consumed stream; Push
// must be called from a single goroutine.
type Ingress struct {
	dec    *OpusDecoder
	vad    EnergyVAD
	stats  *Stats
	bucket time.Duration

	out chan Bucket

	mu     sync.Mutex
	closed bool

	pcm      []byte
	voiced   bool
	start    time.Duration
	elapsed  time.Duration
	capacity int
}

// NewIngress creates an ingress producing buckets of the given duration.
// bucket <= 0 selects one second. vadThreshold gates the speech classifier.
func NewIngress(bucket time.Duration, vadThreshold float64, stats *Stats) (*Ingress, error) {
	if bucket <= 0 {
		bucket = time.Second
	}
	dec, err := NewOpusDecoder()
	if err != nil {
		return nil, err
	}
	capacity := int(bucket.Seconds()*float64(STTFormat.SampleRate)) * 2
	return &Ingress{
		dec:      dec,
		vad:      EnergyVAD{Threshold: vadThreshold},
		stats:    stats,
		bucket:   bucket,
		out:      make(chan Bucket, ingressBuffer),
		pcm:      make([]byte, 0, capacity),
		capacity: capacity,
	}, nil
}

// Out is the bucket stream. It is closed by Close.
func (in *Ingress) Out() <-chan Bucket {
	return in.out
}

// Push decodes one Opus packet and folds it into the current bucket,
// emitting the bucket when it reaches the configured duration. Decode
// failures drop the packet.
func (in *Ingress) Push(packet []byte) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil
	}

	pcm48, err := in.dec.Decode(packet)
	if err != nil {
		if in.stats != nil {
			in.stats.RecordDrop()
		}
		return err
	}
	if in.stats != nil {
		in.stats.RecordIn(len(packet))
	}

	if in.vad.ProcessFrame(pcm48) {
		in.voiced = true
	}

	frame := ToSTT(Frame{
		Data:       pcm48,
		SampleRate: RoomFormat.SampleRate,
		Channels:   RoomFormat.Channels,
		Timestamp:  in.elapsed,
	})
	in.elapsed += OpusFrameSizeMs * time.Millisecond
	if len(frame.Data) == 0 {
		return nil
	}

	in.pcm = append(in.pcm, frame.Data...)
	if len(in.pcm) >= in.capacity {
		in.flushLocked()
	}
	return nil
}

// flushLocked emits the current bucket. Caller holds in.mu.
func (in *Ingress) flushLocked() {
	if len(in.pcm) == 0 {
		return
	}
	b := Bucket{
		PCM:     in.pcm,
		IsVoice: in.voiced,
		Start:   in.start,
	}
	in.pcm = make([]byte, 0, in.capacity)
	in.voiced = false
	in.start = in.elapsed

	select {
	case in.out <- b:
	default:
		if in.stats != nil {
			in.stats.RecordDrop()
		}
	}
}

// Close flushes the partial bucket and closes the output channel. Safe to
// call more than once.
func (in *Ingress) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return
	}
	in.closed = true
	in.flushLocked()
	close(in.out)
}
