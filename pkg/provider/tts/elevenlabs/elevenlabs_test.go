package elevenlabs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxroom/voxroom/internal/fault"
	"github.com/voxroom/voxroom/pkg/provider/tts"
	"github.com/voxroom/voxroom/pkg/types"
)

func newTestSynthesizer(t *testing.T, handler http.HandlerFunc) *Synthesizer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := New("test-key", WithBaseTransport(srv.URL+"/tts/%s?output_format=%s", srv.URL+"/voices"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return s
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	s := newTestSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("xi-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		var body synthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Text != "hello room" {
			t.Errorf("text = %q", body.Text)
		}
		if body.ModelID != defaultModel {
			t.Errorf("model = %q", body.ModelID)
		}
		w.Write([]byte{0, 1, 2, 3})
	})

	clip, err := s.Synthesize(context.Background(), "hello room", types.VoiceProfile{VoiceID: "v1"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(clip.Data) != 4 {
		t.Errorf("clip data = %d bytes", len(clip.Data))
	}
	if clip.Encoding != tts.EncodingPCM || clip.Format.SampleRate != defaultOutputRate {
		t.Errorf("clip format = %+v encoding %q", clip.Format, clip.Encoding)
	}
}

func TestSynthesizeErrors(t *testing.T) {
	t.Parallel()

	t.Run("rate limited", func(t *testing.T) {
		t.Parallel()
		s := newTestSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		_, err := s.Synthesize(context.Background(), "hi", types.VoiceProfile{VoiceID: "v1"})
		if !fault.IsKind(err, fault.KindRateLimited) {
			t.Fatalf("want rate_limited, got %v", err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		t.Parallel()
		s := newTestSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		_, err := s.Synthesize(context.Background(), "hi", types.VoiceProfile{VoiceID: "v1"})
		if !fault.IsKind(err, fault.KindProviderError) {
			t.Fatalf("want provider_error, got %v", err)
		}
	})

	t.Run("missing voice", func(t *testing.T) {
		t.Parallel()
		s, err := New("k")
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		if _, err := s.Synthesize(context.Background(), "hi", types.VoiceProfile{}); !fault.IsKind(err, fault.KindInvalidArgument) {
			t.Fatalf("want invalid_argument, got %v", err)
		}
	})
}

func TestMissingCredentialsUnavailable(t *testing.T) {
	t.Parallel()

	// Construction must succeed without credentials; calls report the
	// provider as unavailable instead.
	s, err := New("")
	if err != nil {
		t.Fatalf("new without api key: %v", err)
	}
	if _, err := s.Synthesize(context.Background(), "hi", types.VoiceProfile{VoiceID: "v1"}); !fault.IsKind(err, fault.KindProviderUnavailable) {
		t.Fatalf("synthesize: want provider_unavailable, got %v", err)
	}
	if _, err := s.ListVoices(context.Background()); !fault.IsKind(err, fault.KindProviderUnavailable) {
		t.Fatalf("list voices: want provider_unavailable, got %v", err)
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	s := newTestSynthesizer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(voicesResponse{Voices: []elevenLabsVoice{
			{VoiceID: "v1", Name: "Aria", Category: "premade"},
			{VoiceID: "v2", Name: "Brook", Category: "premade"},
		}})
	})

	voices, err := s.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("list voices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	if voices[0].VoiceID != "v1" || voices[0].Name != "Aria" || voices[0].Provider != "elevenlabs" {
		t.Errorf("voice[0] = %+v", voices[0])
	}
}
