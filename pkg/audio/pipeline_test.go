package audio_test

import (
	"math"
	"testing"
	"time"

	"github.com/voxroom/voxroom/pkg/audio"
)

// tone generates n mono samples of a loud sine at 48kHz.
func tone(n int) []byte {
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = int16(30000 * math.Sin(2*math.Pi*float64(i)/96))
	}
	return audio.Int16sToBytes(pcm)
}

func collectPackets(t *testing.T, out <-chan []byte, n int) [][]byte {
	t.Helper()
	packets := make([][]byte, 0, n)
	timeout := time.After(2 * time.Second)
	for len(packets) < n {
		select {
		case p, ok := <-out:
			if !ok {
				return packets
			}
			packets = append(packets, p)
		case <-timeout:
			t.Fatalf("timed out after %d packets, want %d", len(packets), n)
		}
	}
	return packets
}

func TestEgressChunksIntoFrames(t *testing.T) {
	t.Parallel()

	var stats audio.Stats
	eg, err := audio.NewEgress(&stats)
	if err != nil {
		t.Fatalf("new egress: %v", err)
	}

	// Exactly three 20ms frames of room-rate PCM.
	done := make(chan error, 1)
	go func() {
		done <- eg.WritePCM(tone(3*audio.OpusFrameSize), audio.RoomFormat)
	}()

	packets := collectPackets(t, eg.Out(), 3)
	if err := <-done; err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(packets) != 3 {
		t.Fatalf("got %d packets, want 3", len(packets))
	}
	for i, p := range packets {
		if len(p) == 0 {
			t.Errorf("packet %d is empty", i)
		}
	}

	eg.Close()
	if _, ok := <-eg.Out(); ok {
		t.Error("packet channel should be closed after Close")
	}
}

func TestEgressCloseWithBlockedWriter(t *testing.T) {
	t.Parallel()

	eg, err := audio.NewEgress(nil)
	if err != nil {
		t.Fatalf("new egress: %v", err)
	}

	// Far more frames than the packet channel holds; with nobody reading,
	// the writer parks in a send.
	done := make(chan error, 1)
	go func() {
		done <- eg.WritePCM(tone(64*audio.OpusFrameSize), audio.RoomFormat)
	}()

	deadline := time.After(2 * time.Second)
	for len(eg.Out()) < cap(eg.Out()) {
		select {
		case <-deadline:
			t.Fatal("writer never filled the packet channel")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	eg.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("write: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked writer did not return after Close")
	}
	for range eg.Out() {
	}
}

func TestEgressFlushPadsPartialFrame(t *testing.T) {
	t.Parallel()

	eg, err := audio.NewEgress(nil)
	if err != nil {
		t.Fatalf("new egress: %v", err)
	}

	// Half a frame: nothing emitted until Close pads and flushes.
	if err := eg.WritePCM(tone(audio.OpusFrameSize/2), audio.RoomFormat); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-eg.Out():
		t.Fatal("partial frame emitted before flush")
	default:
	}

	eg.Close()
	packets := collectPackets(t, eg.Out(), 1)
	if len(packets) != 1 {
		t.Fatalf("got %d packets after flush, want 1", len(packets))
	}
}

func TestIngressBucketsSpeech(t *testing.T) {
	t.Parallel()

	eg, err := audio.NewEgress(nil)
	if err != nil {
		t.Fatalf("new egress: %v", err)
	}

	var stats audio.Stats
	in, err := audio.NewIngress(60*time.Millisecond, 0.5, &stats)
	if err != nil {
		t.Fatalf("new ingress: %v", err)
	}

	// Three loud 20ms frames fill exactly one 60ms bucket.
	go func() {
		eg.WritePCM(tone(3*audio.OpusFrameSize), audio.RoomFormat)
		eg.Close()
	}()
	for p := range eg.Out() {
		if err := in.Push(p); err != nil {
			t.Errorf("push: %v", err)
		}
	}
	in.Close()

	var buckets []audio.Bucket
	for b := range in.Out() {
		buckets = append(buckets, b)
	}
	if len(buckets) == 0 {
		t.Fatal("no buckets produced")
	}
	if !buckets[0].IsVoice {
		t.Error("loud tone should be classified as voice")
	}
	// One 60ms bucket at 16kHz mono is 960 samples.
	if got := len(buckets[0].PCM); got != 960*2 {
		t.Errorf("bucket size = %d bytes, want %d", got, 960*2)
	}
}
