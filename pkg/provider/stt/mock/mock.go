// Package mock provides a test double for the stt.Recognizer interface.
//
// Use Recognizer in unit tests to feed controlled transcripts without a live
// backend. Streams opened from it are scripted: every transcript in
// StreamResults is emitted after the first SendAudio call.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/voxroom/voxroom/pkg/audio"
	"github.com/voxroom/voxroom/pkg/provider/stt"
	"github.com/voxroom/voxroom/pkg/types"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	PCM      []byte
	Format   audio.Format
	Language string
}

// Recognizer is a mock implementation of stt.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// Transcript is returned by Transcribe.
	Transcript types.Transcript

	// Err, if non-nil, is returned as the error from Transcribe and
	// OpenStream.
	Err error

	// StreamResults is the scripted transcript sequence each opened stream
	// emits once audio starts flowing.
	StreamResults []types.Transcript

	// TranscribeCalls records every invocation of Transcribe in order.
	TranscribeCalls []TranscribeCall

	// Streams records every stream opened, in order.
	Streams []*Stream
}

// Transcribe records the call and returns Transcript, Err.
func (r *Recognizer) Transcribe(_ context.Context, pcm []byte, format audio.Format, language string) (types.Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	r.TranscribeCalls = append(r.TranscribeCalls, TranscribeCall{PCM: buf, Format: format, Language: language})
	return r.Transcript, r.Err
}

// OpenStream returns a scripted Stream, or Err when set.
func (r *Recognizer) OpenStream(_ context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	script := make([]types.Transcript, len(r.StreamResults))
	copy(script, r.StreamResults)
	for i := range script {
		if script[i].SessionID == "" {
			script[i].SessionID = cfg.SessionID
		}
	}

	s := &Stream{
		Config:  cfg,
		script:  script,
		results: make(chan types.Transcript, len(script)+1),
	}
	r.Streams = append(r.Streams, s)
	return s, nil
}

// Stream is a scripted stt.Stream.
type Stream struct {
	// Config is the StreamConfig this stream was opened with.
	Config stt.StreamConfig

	mu      sync.Mutex
	script  []types.Transcript
	played  bool
	closed  bool
	Sent    [][]byte
	results chan types.Transcript
}

// SendAudio records the chunk; the first call plays the script into Results.
func (s *Stream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock: stream is closed")
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	s.Sent = append(s.Sent, buf)

	if !s.played {
		s.played = true
		for _, t := range s.script {
			s.results <- t
		}
	}
	return nil
}

// Results returns the transcript channel.
func (s *Stream) Results() <-chan types.Transcript {
	return s.results
}

// Close closes the transcript channel. Safe to call more than once.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.results)
	return nil
}

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Ensure the mocks implement the interfaces at compile time.
var (
	_ stt.Recognizer = (*Recognizer)(nil)
	_ stt.Stream     = (*Stream)(nil)
)
