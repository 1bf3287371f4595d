package tts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/voxroom/voxroom/pkg/audio"
	"github.com/voxroom/voxroom/pkg/provider/tts"
	"github.com/voxroom/voxroom/pkg/provider/tts/mock"
	"github.com/voxroom/voxroom/pkg/types"
)

var testVoice = types.VoiceProfile{Provider: "mock", VoiceID: "v1", Rate: 1.0}

func TestCacheHit(t *testing.T) {
	t.Parallel()

	backend := &mock.Synthesizer{Clip: &tts.Clip{
		Data:     []byte{1, 2, 3, 4},
		Format:   audio.Format{SampleRate: 24000, Channels: 1},
		Encoding: tts.EncodingPCM,
	}}
	cache, err := tts.NewCache(backend, 8)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	for i := 0; i < 3; i++ {
		clip, err := cache.Synthesize(context.Background(), "hello", testVoice)
		if err != nil {
			t.Fatalf("synthesize %d: %v", i, err)
		}
		if len(clip.Data) != 4 {
			t.Fatalf("clip data = %d bytes", len(clip.Data))
		}
	}

	if got := backend.CallCount(); got != 1 {
		t.Errorf("backend called %d times, want 1", got)
	}
}

func TestCacheKeyedOnVoice(t *testing.T) {
	t.Parallel()

	backend := &mock.Synthesizer{Clip: &tts.Clip{Data: []byte{1}}}
	cache, err := tts.NewCache(backend, 8)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	other := testVoice
	other.VoiceID = "v2"

	cache.Synthesize(context.Background(), "hello", testVoice)
	cache.Synthesize(context.Background(), "hello", other)

	if got := backend.CallCount(); got != 2 {
		t.Errorf("backend called %d times, want 2 (different voices)", got)
	}

	// Same text at a different speaking rate renders differently too.
	faster := testVoice
	faster.Rate = 1.3
	cache.Synthesize(context.Background(), "hello", faster)
	if got := backend.CallCount(); got != 3 {
		t.Errorf("backend called %d times, want 3 (different rate)", got)
	}
}

func TestCacheSkipsFailures(t *testing.T) {
	t.Parallel()

	backend := &mock.Synthesizer{Err: errors.New("tts: down")}
	cache, err := tts.NewCache(backend, 8)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := cache.Synthesize(context.Background(), "hello", testVoice); err == nil {
			t.Fatal("expected error")
		}
	}
	if got := backend.CallCount(); got != 2 {
		t.Errorf("backend called %d times, want 2 (failures not cached)", got)
	}
	if cache.Len() != 0 {
		t.Errorf("cache holds %d clips, want 0", cache.Len())
	}
}

func TestCacheEviction(t *testing.T) {
	t.Parallel()

	backend := &mock.Synthesizer{Clip: &tts.Clip{Data: []byte{1}}}
	cache, err := tts.NewCache(backend, 2)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	cache.Synthesize(context.Background(), "one", testVoice)
	cache.Synthesize(context.Background(), "two", testVoice)
	cache.Synthesize(context.Background(), "three", testVoice)

	if cache.Len() != 2 {
		t.Errorf("cache holds %d clips, want 2", cache.Len())
	}

	// "one" was evicted: a fourth call hits the backend again.
	cache.Synthesize(context.Background(), "one", testVoice)
	if got := backend.CallCount(); got != 4 {
		t.Errorf("backend called %d times, want 4", got)
	}
}
