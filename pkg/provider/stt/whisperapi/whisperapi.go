// Package whisperapi provides an stt.Recognizer backed by OpenAI's hosted
// Whisper transcription API. It is batch-only on the wire: the streaming
// interface is emulated by accumulating audio per utterance and transcribing
// on flush, which trades partial results for zero local model footprint.
package whisperapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/voxroom/voxroom/internal/fault"
	"github.com/voxroom/voxroom/pkg/audio"
	"github.com/voxroom/voxroom/pkg/provider/stt"
	"github.com/voxroom/voxroom/pkg/types"
)

// whisperConfidence is reported on every transcript: the API does not return
// a confidence score, and hosted Whisper finals are reliable enough to pass
// any sane floor.
const whisperConfidence = 0.95

// Option is a functional option for configuring the Recognizer.
type Option func(*Recognizer)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(r *Recognizer) {
		r.baseURL = url
	}
}

// WithModel sets the transcription model. Default is whisper-1.
func WithModel(model oai.AudioModel) Option {
	return func(r *Recognizer) {
		r.model = model
	}
}

// Recognizer implements stt.Recognizer using the OpenAI transcription API.
type Recognizer struct {
	client  oai.Client
	model   oai.AudioModel
	baseURL string
}

// New creates a new Recognizer. An empty apiKey defers to the client's
// OPENAI_API_KEY environment fallback; without either, calls fail at request
// time rather than blocking startup.
func New(apiKey string, opts ...Option) (*Recognizer, error) {
	r := &Recognizer{model: oai.AudioModelWhisper1}
	for _, o := range opts {
		o(r)
	}

	var reqOpts []option.RequestOption
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if r.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(r.baseURL))
	}
	r.client = oai.NewClient(reqOpts...)
	return r, nil
}

// Transcribe implements stt.Recognizer. The PCM buffer is wrapped in a WAV
// container before upload.
func (r *Recognizer) Transcribe(ctx context.Context, pcm []byte, format audio.Format, language string) (types.Transcript, error) {
	if len(pcm) == 0 {
		return types.Transcript{}, fault.New(fault.KindInvalidArgument, "whisperapi: empty audio")
	}

	wav := EncodeWAV(pcm, format)
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "utterance.wav", "audio/wav"),
		Model: r.model,
	}
	if language != "" {
		params.Language = oai.String(language)
	}

	resp, err := r.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return types.Transcript{}, fault.Wrap(fault.KindCancelled, "whisperapi: transcribe", err)
		}
		return types.Transcript{}, fault.Wrap(fault.KindProviderError, "whisperapi: transcribe", err)
	}

	return types.Transcript{
		Text:       resp.Text,
		Confidence: whisperConfidence,
		IsFinal:    true,
		Timestamp:  time.Now(),
	}, nil
}

// OpenStream implements stt.Recognizer by accumulating audio and issuing one
// batch call when the stream is closed. No partial transcripts are emitted.
func (r *Recognizer) OpenStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	sr := cfg.SampleRate
	if sr == 0 {
		sr = 16000
	}
	return &batchStream{
		rec:     r,
		ctx:     ctx,
		cfg:     cfg,
		rate:    sr,
		results: make(chan types.Transcript, 1),
	}, nil
}

// batchStream emulates a live session over the batch API.
type batchStream struct {
	rec  *Recognizer
	ctx  context.Context
	cfg  stt.StreamConfig
	rate int

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool

	results chan types.Transcript
}

func (b *batchStream) SendAudio(chunk []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("whisperapi: stream is closed")
	}
	b.buf.Write(chunk)
	return nil
}

func (b *batchStream) Results() <-chan types.Transcript {
	return b.results
}

func (b *batchStream) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pcm := b.buf.Bytes()
	b.mu.Unlock()

	defer close(b.results)
	if len(pcm) == 0 {
		return nil
	}

	t, err := b.rec.Transcribe(b.ctx, pcm, audio.Format{SampleRate: b.rate, Channels: 1}, b.cfg.Language)
	if err != nil {
		return fmt.Errorf("whisperapi: flush stream: %w", err)
	}
	t.SessionID = b.cfg.SessionID
	b.results <- t
	return nil
}

// EncodeWAV wraps little-endian int16 PCM in a minimal RIFF/WAVE container.
func EncodeWAV(pcm []byte, format audio.Format) []byte {
	channels := format.Channels
	if channels <= 0 {
		channels = 1
	}
	rate := format.SampleRate
	if rate <= 0 {
		rate = 16000
	}

	byteRate := rate * channels * 2
	blockAlign := channels * 2
	dataLen := len(pcm)

	buf := make([]byte, 0, 44+dataLen)
	w := bytes.NewBuffer(buf)

	w.WriteString("RIFF")
	writeLE32(w, uint32(36+dataLen))
	w.WriteString("WAVE")
	w.WriteString("fmt ")
	writeLE32(w, 16)
	writeLE16(w, 1) // PCM
	writeLE16(w, uint16(channels))
	writeLE32(w, uint32(rate))
	writeLE32(w, uint32(byteRate))
	writeLE16(w, uint16(blockAlign))
	writeLE16(w, 16) // bits per sample
	w.WriteString("data")
	writeLE32(w, uint32(dataLen))
	w.Write(pcm)

	return w.Bytes()
}

func writeLE16(w *bytes.Buffer, v uint16) {
	w.WriteByte(byte(v))
	w.WriteByte(byte(v >> 8))
}

func writeLE32(w *bytes.Buffer, v uint32) {
	w.WriteByte(byte(v))
	w.WriteByte(byte(v >> 8))
	w.WriteByte(byte(v >> 16))
	w.WriteByte(byte(v >> 24))
}

// Ensure Recognizer implements stt.Recognizer at compile time.
var _ stt.Recognizer = (*Recognizer)(nil)
