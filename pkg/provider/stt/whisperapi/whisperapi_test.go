package whisperapi

import (
	"encoding/binary"
	"testing"

	"github.com/voxroom/voxroom/pkg/audio"
)

func TestEncodeWAVHeader(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 320) // 10ms at 16kHz mono
	wav := EncodeWAV(pcm, audio.Format{SampleRate: 16000, Channels: 1})

	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("bad container magic: %q %q", wav[0:4], wav[8:12])
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(36+len(pcm)) {
		t.Errorf("riff size = %d", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 32000 {
		t.Errorf("byte rate = %d, want 32000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
}

func TestEncodeWAVDefaults(t *testing.T) {
	t.Parallel()

	wav := EncodeWAV([]byte{0, 0}, audio.Format{})
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("default sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("default channels = %d, want 1", got)
	}
}

func TestNewWithoutAPIKey(t *testing.T) {
	t.Parallel()

	// Missing credentials must not block construction; the client falls back
	// to its environment lookup and fails per request instead.
	r, err := New("")
	if err != nil {
		t.Fatalf("new without api key: %v", err)
	}
	if r == nil {
		t.Fatal("nil recognizer")
	}
}
