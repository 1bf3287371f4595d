package resilience

import (
	"context"

	"github.com/voxroom/voxroom/pkg/audio"
	"github.com/voxroom/voxroom/pkg/provider/llm"
	"github.com/voxroom/voxroom/pkg/provider/stt"
	"github.com/voxroom/voxroom/pkg/provider/tts"
	"github.com/voxroom/voxroom/pkg/types"
)

// LLM wraps an [llm.Adapter] with a circuit breaker.
type LLM struct {
	backend llm.Adapter
	breaker *Breaker
}

// NewLLM creates a breaker-guarded adapter. cfg.Name defaults to "llm".
func NewLLM(backend llm.Adapter, cfg BreakerConfig) *LLM {
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	return &LLM{backend: backend, breaker: NewBreaker(cfg)}
}

// Generate implements llm.Adapter.
func (g *LLM) Generate(ctx context.Context, req llm.Request) (*llm.Reply, error) {
	var reply *llm.Reply
	err := g.breaker.Execute(func() error {
		var err error
		reply, err = g.backend.Generate(ctx, req)
		return err
	})
	return reply, err
}

// Model implements llm.Adapter.
func (g *LLM) Model() string { return g.backend.Model() }

// Breaker exposes the underlying breaker for health checks.
func (g *LLM) Breaker() *Breaker { return g.breaker }

// TTS wraps a [tts.Synthesizer] with a circuit breaker.
type TTS struct {
	backend tts.Synthesizer
	breaker *Breaker
}

// NewTTS creates a breaker-guarded synthesizer. cfg.Name defaults to "tts".
func NewTTS(backend tts.Synthesizer, cfg BreakerConfig) *TTS {
	if cfg.Name == "" {
		cfg.Name = "tts"
	}
	return &TTS{backend: backend, breaker: NewBreaker(cfg)}
}

// Synthesize implements tts.Synthesizer.
func (s *TTS) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*tts.Clip, error) {
	var clip *tts.Clip
	err := s.breaker.Execute(func() error {
		var err error
		clip, err = s.backend.Synthesize(ctx, text, voice)
		return err
	})
	return clip, err
}

// ListVoices implements tts.Synthesizer. The voice catalog is cheap and
// read-only; it shares the synthesis breaker so a dead vendor fails fast
// everywhere.
func (s *TTS) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	var voices []types.VoiceProfile
	err := s.breaker.Execute(func() error {
		var err error
		voices, err = s.backend.ListVoices(ctx)
		return err
	})
	return voices, err
}

// Breaker exposes the underlying breaker for health checks.
func (s *TTS) Breaker() *Breaker { return s.breaker }

// STT wraps an [stt.Recognizer] with a circuit breaker. Only session
// establishment is guarded; an already-open stream keeps flowing even when
// the breaker trips for new sessions.
type STT struct {
	backend stt.Recognizer
	breaker *Breaker
}

// NewSTT creates a breaker-guarded recognizer. cfg.Name defaults to "stt".
func NewSTT(backend stt.Recognizer, cfg BreakerConfig) *STT {
	if cfg.Name == "" {
		cfg.Name = "stt"
	}
	return &STT{backend: backend, breaker: NewBreaker(cfg)}
}

// Transcribe implements stt.Recognizer.
func (r *STT) Transcribe(ctx context.Context, pcm []byte, format audio.Format, language string) (types.Transcript, error) {
	var t types.Transcript
	err := r.breaker.Execute(func() error {
		var err error
		t, err = r.backend.Transcribe(ctx, pcm, format, language)
		return err
	})
	return t, err
}

// OpenStream implements stt.Recognizer.
func (r *STT) OpenStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	var s stt.Stream
	err := r.breaker.Execute(func() error {
		var err error
		s, err = r.backend.OpenStream(ctx, cfg)
		return err
	})
	return s, err
}

// Breaker exposes the underlying breaker for health checks.
func (r *STT) Breaker() *Breaker { return r.breaker }

// Compile-time interface checks.
var (
	_ llm.Adapter     = (*LLM)(nil)
	_ tts.Synthesizer = (*TTS)(nil)
	_ stt.Recognizer  = (*STT)(nil)
)
