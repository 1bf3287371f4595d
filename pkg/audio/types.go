package audio

import "time"

// Frame is a single chunk of audio flowing through the pipeline. Frames are
// the atomic transport unit: decoded from the room's media stream, gated by
// VAD, bucketed for STT, and encoded back out for playback.
type Frame struct {
	// PCM audio data, little-endian int16 samples.
	Data []byte

	// SampleRate in Hz (48000 on the room side, 16000 on the STT side).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp marks when the frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback duration the frame's samples cover.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Room-side and STT-side pipeline formats.
var (
	// RoomFormat is what the media transport carries: 48 kHz mono.
	RoomFormat = Format{SampleRate: 48000, Channels: 1}

	// STTFormat is what speech recognizers consume: 16 kHz mono.
	STTFormat = Format{SampleRate: 16000, Channels: 1}
)

// Int16sToBytes converts int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to int16 PCM samples.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
