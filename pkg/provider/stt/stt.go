// Package stt defines the speech-recognition boundary of the voice pipeline.
//
// A Recognizer offers two modes: batch transcription of a finished PCM
// buffer, and a live [Stream] fed incrementally while results flow back on a
// channel. Streams deliver partial transcripts as recognition progresses and
// final transcripts when an utterance is done.
//
// Implementations must be safe for concurrent use across sessions. A single
// Stream must not be shared across goroutines unless documented otherwise.
package stt

import (
	"context"

	"github.com/voxroom/voxroom/pkg/audio"
	"github.com/voxroom/voxroom/pkg/types"
)

// StreamConfig holds the parameters for one live recognition session.
type StreamConfig struct {
	// SessionID tags every transcript the stream emits. Convention is
	// "<room>-<suffix>" so consumers can recover the room id.
	SessionID string

	// Language is the BCP-47 recognition language. Empty selects the
	// recognizer's default.
	Language string

	// SampleRate of the PCM fed to SendAudio. Zero selects 16000.
	SampleRate int
}

// Stream is one live recognition session.
type Stream interface {
	// SendAudio queues one chunk of little-endian int16 mono PCM.
	SendAudio(chunk []byte) error

	// Results is the transcript stream, partials and finals interleaved.
	// It is closed after Close has flushed the trailing audio.
	Results() <-chan types.Transcript

	// Close flushes pending audio and tears the session down. Safe to call
	// more than once.
	Close() error
}

// Recognizer is the speech-recognition backend.
type Recognizer interface {
	// Transcribe recognizes one finished utterance in a single call.
	Transcribe(ctx context.Context, pcm []byte, format audio.Format, language string) (types.Transcript, error)

	// OpenStream starts a live session.
	OpenStream(ctx context.Context, cfg StreamConfig) (Stream, error)
}

// FilterStream wraps a Stream and drops final transcripts whose confidence
// is below floor. Partials pass through untouched so observers can still
// render live captions; only finals trigger replies downstream, and a
// low-confidence final is worse than silence.
func FilterStream(s Stream, floor float64) Stream {
	if floor <= 0 {
		return s
	}
	f := &filteredStream{Stream: s, out: make(chan types.Transcript, 64)}
	go func() {
		defer close(f.out)
		for t := range s.Results() {
			if t.IsFinal && t.Confidence < floor {
				continue
			}
			f.out <- t
		}
	}()
	return f
}

type filteredStream struct {
	Stream
	out chan types.Transcript
}

func (f *filteredStream) Results() <-chan types.Transcript {
	return f.out
}
