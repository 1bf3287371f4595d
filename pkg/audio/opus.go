package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// Room audio is 48 kHz mono Opus at 20 ms frame size.
const (
	OpusSampleRate  = 48000
	OpusChannels    = 1
	OpusFrameSizeMs = 20
	// OpusFrameSize is the number of samples per channel per 20 ms frame.
	OpusFrameSize = OpusSampleRate * OpusFrameSizeMs / 1000 // 960

	// OpusFrameBytes is the PCM byte size of one mono frame.
	OpusFrameBytes = OpusFrameSize * 2
)

// OpusDecoder wraps a gopus decoder for a single participant stream. Each
// participant gets its own decoder to keep decoder state coherent across
// consecutive packets.
type OpusDecoder struct {
	dec *gopus.Decoder
}

// NewOpusDecoder creates a decoder configured for room audio.
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(OpusSampleRate, OpusChannels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode decodes one Opus packet into little-endian int16 PCM bytes.
func (d *OpusDecoder) Decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, OpusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	return Int16sToBytes(pcm), nil
}

// OpusEncoder wraps a gopus encoder for an outbound stream.
type OpusEncoder struct {
	enc *gopus.Encoder
}

// NewOpusEncoder creates an encoder configured for room audio.
func NewOpusEncoder() (*OpusEncoder, error) {
	enc, err := gopus.NewEncoder(OpusSampleRate, OpusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus encoder: %w", err)
	}
	return &OpusEncoder{enc: enc}, nil
}

// Encode encodes one frame of little-endian int16 PCM bytes into an Opus
// packet. The input must be exactly OpusFrameBytes long.
func (e *OpusEncoder) Encode(pcmBytes []byte) ([]byte, error) {
	if len(pcmBytes) != OpusFrameBytes {
		return nil, fmt.Errorf("audio: opus encode: frame is %d bytes, want %d", len(pcmBytes), OpusFrameBytes)
	}
	packet, err := e.enc.Encode(BytesToInt16s(pcmBytes), OpusFrameSize, len(pcmBytes))
	if err != nil {
		return nil, fmt.Errorf("audio: opus encode: %w", err)
	}
	return packet, nil
}
