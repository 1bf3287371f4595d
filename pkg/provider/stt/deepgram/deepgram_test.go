package deepgram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxroom/voxroom/internal/fault"
	"github.com/voxroom/voxroom/pkg/audio"
	"github.com/voxroom/voxroom/pkg/provider/stt"
)

func TestParseStreamResponse(t *testing.T) {
	t.Parallel()

	t.Run("final result", func(t *testing.T) {
		t.Parallel()
		msg := []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello room","confidence":0.93}]}}`)
		tr, ok := parseStreamResponse(msg)
		if !ok {
			t.Fatal("expected a transcript")
		}
		if tr.Text != "hello room" || !tr.IsFinal || tr.Confidence != 0.93 {
			t.Errorf("transcript = %+v", tr)
		}
	})

	t.Run("interim result", func(t *testing.T) {
		t.Parallel()
		msg := []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel","confidence":0.4}]}}`)
		tr, ok := parseStreamResponse(msg)
		if !ok {
			t.Fatal("expected a transcript")
		}
		if tr.IsFinal {
			t.Error("interim result flagged final")
		}
	})

	t.Run("non-result messages ignored", func(t *testing.T) {
		t.Parallel()
		for _, msg := range []string{
			`{"type":"Metadata"}`,
			`{"type":"Results","channel":{"alternatives":[]}}`,
			`{"type":"Results","channel":{"alternatives":[{"transcript":""}]}}`,
			`not json`,
		} {
			if _, ok := parseStreamResponse([]byte(msg)); ok {
				t.Errorf("message %q should be ignored", msg)
			}
		}
	})
}

func TestBuildURL(t *testing.T) {
	t.Parallel()

	r, err := New("key", WithModel("nova-3"), WithLanguage("de"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	raw, err := r.buildURL(streamEndpoint, "", 16000, true)
	if err != nil {
		t.Fatalf("build url: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	q := u.Query()
	if q.Get("model") != "nova-3" || q.Get("language") != "de" {
		t.Errorf("query = %v", q)
	}
	if q.Get("sample_rate") != "16000" || q.Get("encoding") != "linear16" {
		t.Errorf("query = %v", q)
	}
	if q.Get("interim_results") != "true" {
		t.Error("interim_results missing for stream URL")
	}

	// Explicit language overrides the provider default.
	raw, _ = r.buildURL(batchEndpoint, "en-US", 24000, false)
	u, _ = url.Parse(raw)
	if got := u.Query().Get("language"); got != "en-US" {
		t.Errorf("language = %q, want en-US", got)
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token test-key" {
			t.Errorf("auth header = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": map[string]any{
				"channels": []any{map[string]any{
					"alternatives": []any{map[string]any{
						"transcript": "what time is it",
						"confidence": 0.88,
					}},
				}},
			},
		})
	}))
	defer srv.Close()

	r, err := New("test-key", WithEndpoints(streamEndpoint, srv.URL))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	tr, err := r.Transcribe(context.Background(), make([]byte, 640), audio.Format{SampleRate: 16000, Channels: 1}, "en")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if tr.Text != "what time is it" || tr.Confidence != 0.88 || !tr.IsFinal {
		t.Errorf("transcript = %+v", tr)
	}
}

func TestMissingCredentialsUnavailable(t *testing.T) {
	t.Parallel()

	// Construction must succeed without credentials; calls report the
	// provider as unavailable instead.
	r, err := New("")
	if err != nil {
		t.Fatalf("new without api key: %v", err)
	}
	_, err = r.Transcribe(context.Background(), make([]byte, 2), audio.Format{SampleRate: 16000, Channels: 1}, "")
	if !fault.IsKind(err, fault.KindProviderUnavailable) {
		t.Fatalf("transcribe: want provider_unavailable, got %v", err)
	}
	if _, err := r.OpenStream(context.Background(), stt.StreamConfig{SessionID: "s1"}); !fault.IsKind(err, fault.KindProviderUnavailable) {
		t.Fatalf("open stream: want provider_unavailable, got %v", err)
	}
}

func TestSessionCloseReturnsAgainstHungServer(t *testing.T) {
	// Not parallel: shortens the package-level close timeout.
	old := closeTimeout
	closeTimeout = 100 * time.Millisecond
	defer func() { closeTimeout = old }()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		// Swallow everything, never answer, never close.
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	rec, err := New("test-key", WithEndpoints(wsURL, srv.URL))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	stream, err := rec.OpenStream(context.Background(), stt.StreamConfig{SessionID: "s1"})
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}

	done := make(chan struct{})
	go func() {
		stream.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return against an unresponsive server")
	}
}

func TestTranscribeRateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	r, err := New("test-key", WithEndpoints(streamEndpoint, srv.URL))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_, err = r.Transcribe(context.Background(), make([]byte, 2), audio.Format{SampleRate: 16000, Channels: 1}, "")
	if !fault.IsKind(err, fault.KindRateLimited) {
		t.Fatalf("want rate_limited, got %v", err)
	}
}
