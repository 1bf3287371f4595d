// Package mock provides a test double for the tts.Synthesizer interface.
//
// Use Synthesizer in unit tests to feed controlled clips without a live
// backend. All fields are safe to set before calling any method.
package mock

import (
	"context"
	"sync"

	"github.com/voxroom/voxroom/pkg/provider/tts"
	"github.com/voxroom/voxroom/pkg/types"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice types.VoiceProfile
}

// Synthesizer is a mock implementation of tts.Synthesizer. Zero values for
// response fields cause methods to return zero values and nil errors. Set Err
// fields to inject errors.
type Synthesizer struct {
	mu sync.Mutex

	// Clip is returned by Synthesize. May be nil (returns nil, nil).
	Clip *tts.Clip

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	// Voices is returned by ListVoices.
	Voices []types.VoiceProfile

	// ListErr, if non-nil, is returned as the error from ListVoices.
	ListErr error

	// SynthesizeFunc, if non-nil, overrides Clip/Err entirely.
	SynthesizeFunc func(ctx context.Context, text string, voice types.VoiceProfile) (*tts.Clip, error)

	// SynthesizeCalls records every invocation of Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns Clip, Err (or delegates to
// SynthesizeFunc when set).
func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*tts.Clip, error) {
	s.mu.Lock()
	s.SynthesizeCalls = append(s.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice})
	fn := s.SynthesizeFunc
	clip, err := s.Clip, s.Err
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, voice)
	}
	return clip, err
}

// ListVoices returns Voices, ListErr.
func (s *Synthesizer) ListVoices(context.Context) ([]types.VoiceProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Voices, s.ListErr
}

// CallCount returns the number of recorded Synthesize invocations.
func (s *Synthesizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SynthesizeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (s *Synthesizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SynthesizeCalls = nil
}

// Ensure Synthesizer implements tts.Synthesizer at compile time.
var _ tts.Synthesizer = (*Synthesizer)(nil)
