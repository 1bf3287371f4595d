// Package elevenlabs provides an ElevenLabs-backed tts.Synthesizer using the
// ElevenLabs REST API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/voxroom/voxroom/internal/fault"
	"github.com/voxroom/voxroom/pkg/audio"
	"github.com/voxroom/voxroom/pkg/provider/tts"
	"github.com/voxroom/voxroom/pkg/types"
)

const (
	synthesizeEndpointFmt = "https://api.elevenlabs.io/v1/text-to-speech/%s?output_format=%s"
	voicesEndpoint        = "https://api.elevenlabs.io/v1/voices"
	defaultModel          = "eleven_flash_v2_5"
	defaultOutputFmt      = "pcm_24000"
	defaultOutputRate     = 24000
)

// Option is a functional option for configuring the ElevenLabs Synthesizer.
type Option func(*Synthesizer)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(s *Synthesizer) {
		s.model = model
	}
}

// WithHTTPClient replaces the HTTP client, e.g. to set timeouts.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Synthesizer) {
		s.httpClient = c
	}
}

// WithBaseTransport rewrites the API endpoints; used by tests to point at a
// local server.
func WithBaseTransport(synthesizeFmt, voices string) Option {
	return func(s *Synthesizer) {
		s.synthesizeFmt = synthesizeFmt
		s.voicesURL = voices
	}
}

// Synthesizer implements tts.Synthesizer backed by the ElevenLabs REST API.
type Synthesizer struct {
	apiKey        string
	model         string
	httpClient    *http.Client
	synthesizeFmt string
	voicesURL     string
}

// New creates a new ElevenLabs Synthesizer. An empty apiKey still yields a
// working handle: calls fail with a provider-unavailable fault until a key is
// configured, so startup never blocks on missing credentials.
func New(apiKey string, opts ...Option) (*Synthesizer, error) {
	s := &Synthesizer{
		apiKey:        apiKey,
		model:         defaultModel,
		httpClient:    &http.Client{},
		synthesizeFmt: synthesizeEndpointFmt,
		voicesURL:     voicesEndpoint,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// synthesizeRequest is the JSON body of POST /v1/text-to-speech/{voice_id}.
type synthesizeRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// Synthesize implements tts.Synthesizer. The returned clip is mono PCM at
// 24 kHz.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*tts.Clip, error) {
	if s.apiKey == "" {
		return nil, fault.New(fault.KindProviderUnavailable, "elevenlabs: api key not configured")
	}
	if voice.VoiceID == "" {
		return nil, fault.New(fault.KindInvalidArgument, "elevenlabs: voice id must not be empty")
	}
	if text == "" {
		return nil, fault.New(fault.KindInvalidArgument, "elevenlabs: text must not be empty")
	}

	body := synthesizeRequest{
		Text:    text,
		ModelID: s.model,
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Speed:           voice.Rate,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	url := fmt.Sprintf(s.synthesizeFmt, voice.VoiceID, defaultOutputFmt)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.KindProviderUnavailable, "elevenlabs: synthesize", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fault.New(fault.KindRateLimited, "elevenlabs: rate limited")
	case resp.StatusCode != http.StatusOK:
		return nil, fault.Errorf(fault.KindProviderError, "elevenlabs: synthesize: unexpected status %d", resp.StatusCode)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.KindProviderError, "elevenlabs: read audio", err)
	}

	return &tts.Clip{
		Data:     pcm,
		Format:   audio.Format{SampleRate: defaultOutputRate, Channels: 1},
		Encoding: tts.EncodingPCM,
	}, nil
}

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// ListVoices returns all voices available for the configured API key.
func (s *Synthesizer) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	if s.apiKey == "" {
		return nil, fault.New(fault.KindProviderUnavailable, "elevenlabs: api key not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.voicesURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.KindProviderUnavailable, "elevenlabs: list voices", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fault.Errorf(fault.KindProviderError, "elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fault.Wrap(fault.KindProviderError, "elevenlabs: list voices decode", err)
	}

	profiles := make([]types.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		profiles = append(profiles, types.VoiceProfile{
			Provider: "elevenlabs",
			VoiceID:  v.VoiceID,
			Name:     v.Name,
		})
	}
	return profiles, nil
}

// Ensure Synthesizer implements tts.Synthesizer at compile time.
var _ tts.Synthesizer = (*Synthesizer)(nil)
