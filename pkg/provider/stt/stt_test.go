package stt_test

import (
	"context"
	"testing"
	"time"

	"github.com/voxroom/voxroom/pkg/provider/stt"
	"github.com/voxroom/voxroom/pkg/provider/stt/mock"
	"github.com/voxroom/voxroom/pkg/types"
)

func collect(t *testing.T, s stt.Stream, n int) []types.Transcript {
	t.Helper()
	out := make([]types.Transcript, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case tr, ok := <-s.Results():
			if !ok {
				return out
			}
			out = append(out, tr)
		case <-timeout:
			t.Fatalf("timed out with %d of %d transcripts", len(out), n)
		}
	}
	return out
}

func TestFilterStreamDropsLowConfidenceFinals(t *testing.T) {
	t.Parallel()

	rec := &mock.Recognizer{StreamResults: []types.Transcript{
		{Text: "wha", Confidence: 0.3, IsFinal: false},
		{Text: "what is", Confidence: 0.5, IsFinal: false},
		{Text: "mumble", Confidence: 0.4, IsFinal: true},
		{Text: "what is the time", Confidence: 0.9, IsFinal: true},
	}}

	raw, err := rec.OpenStream(context.Background(), stt.StreamConfig{SessionID: "lobby-1"})
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	filtered := stt.FilterStream(raw, 0.7)

	if err := raw.SendAudio([]byte{0, 0}); err != nil {
		t.Fatalf("send audio: %v", err)
	}
	raw.Close()

	got := collect(t, filtered, 3)
	if len(got) != 3 {
		t.Fatalf("got %d transcripts, want 3", len(got))
	}

	// Both partials pass regardless of confidence; only the confident final
	// survives.
	if got[0].IsFinal || got[1].IsFinal {
		t.Error("partials should pass through")
	}
	if !got[2].IsFinal || got[2].Text != "what is the time" {
		t.Errorf("final = %+v", got[2])
	}
	if got[2].SessionID != "lobby-1" {
		t.Errorf("session id = %q", got[2].SessionID)
	}
}

func TestFilterStreamZeroFloorIsPassthrough(t *testing.T) {
	t.Parallel()

	rec := &mock.Recognizer{StreamResults: []types.Transcript{
		{Text: "anything", Confidence: 0.1, IsFinal: true},
	}}
	raw, err := rec.OpenStream(context.Background(), stt.StreamConfig{})
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}

	s := stt.FilterStream(raw, 0)
	if s != raw {
		t.Error("zero floor should return the stream unchanged")
	}
}
