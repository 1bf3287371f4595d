package audio

import (
	"fmt"
	"io"
	"sync"

	"github.com/hajimehoshi/go-mp3"
)

// egressBuffer is the outbound packet channel capacity: enough to keep the
// media writer fed without buffering whole utterances in memory.
const egressBuffer = 32

// Egress is the outbound half of a room audio pipeline: synthesized audio in,
// 20 ms Opus packets out. It accepts raw PCM in any rate/channel layout and
// MP3 streams, converts to the room format and chunks into encoder frames.
// One Egress per playback; writes must come from a single goroutine.
type Egress struct {
	enc   *OpusEncoder
	stats *Stats

	out  chan []byte
	done chan struct{}

	// writers counts in-flight WritePCM calls so Close can wait for them to
	// stop sending before it closes the packet channel.
	writers sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	pending []byte
}

// NewEgress creates an egress ready to accept audio.
func NewEgress(stats *Stats) (*Egress, error) {
	enc, err := NewOpusEncoder()
	if err != nil {
		return nil, err
	}
	return &Egress{
		enc:   enc,
		stats: stats,
		out:   make(chan []byte, egressBuffer),
		done:  make(chan struct{}),
	}, nil
}

// Out is the Opus packet stream. It is closed after Close has flushed the
// final partial frame.
func (eg *Egress) Out() <-chan []byte {
	return eg.out
}

// WritePCM converts pcm from the given source format to the room format and
// emits every complete 20 ms frame. A trailing partial frame is held until
// more data arrives or Close pads and flushes it. Write blocks when the
// packet channel is full; it returns early when the egress is closed.
func (eg *Egress) WritePCM(pcm []byte, src Format) error {
	frame := ToRoom(Frame{Data: pcm, SampleRate: src.SampleRate, Channels: src.Channels})
	if len(frame.Data) == 0 {
		return nil
	}

	eg.mu.Lock()
	if eg.closed {
		eg.mu.Unlock()
		return fmt.Errorf("audio: egress closed")
	}
	eg.writers.Add(1)
	defer eg.writers.Done()
	eg.pending = append(eg.pending, frame.Data...)
	var packets [][]byte
	for len(eg.pending) >= OpusFrameBytes {
		chunk := eg.pending[:OpusFrameBytes]
		packet, err := eg.enc.Encode(chunk)
		if err != nil {
			eg.mu.Unlock()
			return err
		}
		eg.pending = eg.pending[OpusFrameBytes:]
		packets = append(packets, packet)
	}
	eg.mu.Unlock()

	for _, p := range packets {
		select {
		case eg.out <- p:
			if eg.stats != nil {
				eg.stats.RecordOut(len(p))
			}
		case <-eg.done:
			return nil
		}
	}
	return nil
}

// WriteMP3 decodes an MP3 stream and feeds its PCM through WritePCM. go-mp3
// always emits 16-bit stereo at the stream's sample rate.
func (eg *Egress) WriteMP3(r io.Reader) error {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return fmt.Errorf("audio: mp3 decode: %w", err)
	}

	buf := make([]byte, 8192)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			if werr := eg.WritePCM(buf[:n], Format{SampleRate: dec.SampleRate(), Channels: 2}); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("audio: mp3 decode: %w", err)
		}
	}
}

// DecodeMP3 decodes a complete MP3 stream into PCM. go-mp3 always emits
// 16-bit stereo at the stream's sample rate.
func DecodeMP3(r io.Reader) ([]byte, Format, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: mp3 decode: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: mp3 decode: %w", err)
	}
	return pcm, Format{SampleRate: dec.SampleRate(), Channels: 2}, nil
}

// Drain discards the pending partial frame and every packet still buffered in
// the output channel. Used when a playback is cut off so no stale audio leaks
// into the next one.
func (eg *Egress) Drain() {
	eg.mu.Lock()
	eg.pending = nil
	eg.mu.Unlock()
	for {
		select {
		case _, ok := <-eg.out:
			if !ok {
				return
			}
			if eg.stats != nil {
				eg.stats.RecordDrop()
			}
		default:
			return
		}
	}
}

// Close pads the trailing partial frame with silence, emits it, and closes
// the packet channel. Safe to call more than once; safe to call while a
// WritePCM is blocked on a full channel.
func (eg *Egress) Close() {
	eg.mu.Lock()
	if eg.closed {
		eg.mu.Unlock()
		return
	}
	eg.closed = true
	pending := eg.pending
	eg.pending = nil
	eg.mu.Unlock()

	// Unblock senders, then wait for them to leave before closing the
	// channel they were sending on.
	close(eg.done)
	eg.writers.Wait()
	if len(pending) > 0 {
		padded := make([]byte, OpusFrameBytes)
		copy(padded, pending)
		if packet, err := eg.enc.Encode(padded); err == nil {
			select {
			case eg.out <- packet:
				if eg.stats != nil {
					eg.stats.RecordOut(len(packet))
				}
			default:
				if eg.stats != nil {
					eg.stats.RecordDrop()
				}
			}
		}
	}
	close(eg.out)
}
