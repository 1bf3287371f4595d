// Package tts defines the speech-synthesis boundary of the voice pipeline.
//
// A Synthesizer turns one piece of text into a complete audio clip. Repeated
// phrases ("Sorry, I missed that") are common in room conversations, so
// [Cache] wraps any Synthesizer with a bounded LRU keyed on text and voice.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/voxroom/voxroom/pkg/audio"
	"github.com/voxroom/voxroom/pkg/types"
)

// Encoding values for synthesized clips.
const (
	EncodingPCM = "pcm"
	EncodingMP3 = "mp3"
)

// Clip is one synthesized utterance.
type Clip struct {
	// Data is the audio payload. For EncodingPCM it is little-endian int16
	// samples in Format; for EncodingMP3 it is a complete MP3 stream and
	// Format describes the decoded output.
	Data []byte

	Format   audio.Format
	Encoding string
}

// Synthesizer is the speech-synthesis backend.
type Synthesizer interface {
	// Synthesize produces one clip for text spoken in the given voice.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*Clip, error)

	// ListVoices returns the voices available to the configured account.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}

// Cache wraps a Synthesizer with a bounded LRU of finished clips. Only
// successful syntheses are cached; failures always retry the backend.
type Cache struct {
	backend Synthesizer
	clips   *lru.Cache[string, *Clip]
}

// NewCache wraps backend with a cache of at most size clips. size <= 0
// selects 128.
func NewCache(backend Synthesizer, size int) (*Cache, error) {
	if size <= 0 {
		size = 128
	}
	clips, err := lru.New[string, *Clip](size)
	if err != nil {
		return nil, fmt.Errorf("tts: create cache: %w", err)
	}
	return &Cache{backend: backend, clips: clips}, nil
}

// Synthesize returns the cached clip for (text, voice) or synthesizes and
// caches a new one.
func (c *Cache) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*Clip, error) {
	key := cacheKey(text, voice)
	if clip, ok := c.clips.Get(key); ok {
		return clip, nil
	}

	clip, err := c.backend.Synthesize(ctx, text, voice)
	if err != nil {
		return nil, err
	}
	c.clips.Add(key, clip)
	return clip, nil
}

// ListVoices forwards to the backend; the voice catalog is not cached.
func (c *Cache) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return c.backend.ListVoices(ctx)
}

// Len returns the number of cached clips.
func (c *Cache) Len() int {
	return c.clips.Len()
}

// cacheKey hashes the text together with every voice parameter that changes
// the rendered audio.
func cacheKey(text string, voice types.VoiceProfile) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%g\x00%g", voice.Provider, voice.VoiceID, text, voice.Rate, voice.Pitch)
	return hex.EncodeToString(h.Sum(nil))
}

// Ensure Cache satisfies the interface it wraps.
var _ Synthesizer = (*Cache)(nil)
