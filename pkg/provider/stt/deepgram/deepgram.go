// Package deepgram provides a Deepgram-backed stt.Recognizer using the
// Deepgram streaming WebSocket API and the prerecorded REST API.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/voxroom/voxroom/internal/fault"
	"github.com/voxroom/voxroom/pkg/audio"
	"github.com/voxroom/voxroom/pkg/provider/stt"
	"github.com/voxroom/voxroom/pkg/types"
)

const (
	streamEndpoint    = "wss://api.deepgram.com/v1/listen"
	batchEndpoint     = "https://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the Deepgram Recognizer.
type Option func(*Recognizer)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(r *Recognizer) {
		r.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(r *Recognizer) {
		r.language = language
	}
}

// WithEndpoints rewrites the API endpoints; used by tests to point at a
// local server.
func WithEndpoints(stream, batch string) Option {
	return func(r *Recognizer) {
		r.streamURL = stream
		r.batchURL = batch
	}
}

// Recognizer implements stt.Recognizer backed by Deepgram.
type Recognizer struct {
	apiKey     string
	model      string
	language   string
	streamURL  string
	batchURL   string
	httpClient *http.Client
}

// New creates a new Deepgram Recognizer. An empty apiKey still yields a
// working handle: calls fail with a provider-unavailable fault until a key is
// configured, so startup never blocks on missing credentials.
func New(apiKey string, opts ...Option) (*Recognizer, error) {
	r := &Recognizer{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		streamURL:  streamEndpoint,
		batchURL:   batchEndpoint,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Transcribe implements stt.Recognizer using the prerecorded REST API.
func (r *Recognizer) Transcribe(ctx context.Context, pcm []byte, format audio.Format, language string) (types.Transcript, error) {
	if r.apiKey == "" {
		return types.Transcript{}, fault.New(fault.KindProviderUnavailable, "deepgram: api key not configured")
	}
	u, err := r.buildURL(r.batchURL, language, format.SampleRate, false)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(pcm))
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+r.apiKey)
	req.Header.Set("Content-Type", "audio/raw")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return types.Transcript{}, fault.Wrap(fault.KindProviderUnavailable, "deepgram: transcribe", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.Transcript{}, fault.New(fault.KindRateLimited, "deepgram: rate limited")
	case resp.StatusCode != http.StatusOK:
		return types.Transcript{}, fault.Errorf(fault.KindProviderError, "deepgram: transcribe: unexpected status %d", resp.StatusCode)
	}

	var br batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return types.Transcript{}, fault.Wrap(fault.KindProviderError, "deepgram: decode response", err)
	}
	if len(br.Results.Channels) == 0 || len(br.Results.Channels[0].Alternatives) == 0 {
		return types.Transcript{}, fault.New(fault.KindProviderError, "deepgram: empty result")
	}

	alt := br.Results.Channels[0].Alternatives[0]
	return types.Transcript{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
		IsFinal:    true,
		Timestamp:  time.Now(),
	}, nil
}

// OpenStream implements stt.Recognizer using the streaming WebSocket API.
func (r *Recognizer) OpenStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	if r.apiKey == "" {
		return nil, fault.New(fault.KindProviderUnavailable, "deepgram: api key not configured")
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}
	wsURL, err := r.buildURL(r.streamURL, cfg.Language, sr, true)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fault.Wrap(fault.KindProviderUnavailable, "deepgram: dial", err)
	}

	sess := &session{
		conn:      conn,
		sessionID: cfg.SessionID,
		results:   make(chan types.Transcript, 64),
		audio:     make(chan []byte, 256),
		done:      make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

// buildURL constructs a Deepgram endpoint URL with query parameters.
func (r *Recognizer) buildURL(endpoint, language string, sampleRate int, interim bool) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}

	lang := language
	if lang == "" {
		lang = r.language
	}

	q := u.Query()
	q.Set("model", r.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	if interim {
		q.Set("interim_results", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// batchResponse is the JSON structure of the prerecorded API response.
type batchResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// streamResponse is the JSON structure of a streaming Results event.
type streamResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is a live Deepgram streaming session. It implements stt.Stream.
type session struct {
	conn      *websocket.Conn
	sessionID string
	results   chan types.Transcript
	audio     chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues a PCM audio chunk for delivery to Deepgram.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("deepgram: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("deepgram: session is closed")
	}
}

// Results returns the transcript channel.
func (s *session) Results() <-chan types.Transcript { return s.results }

// closeTimeout bounds how long Close waits for Deepgram to finish the
// stream after CloseStream. A variable so tests can shorten it.
var closeTimeout = 5 * time.Second

// Close terminates the session cleanly. If the server does not wind down the
// stream within closeTimeout, the socket is force-closed so Close never hangs
// on an unresponsive peer.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		// Ask Deepgram to flush pending audio before the socket drops.
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))

		quiesced := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(quiesced)
		}()
		select {
		case <-quiesced:
			s.conn.Close(websocket.StatusNormalClosure, "session closed")
		case <-time.After(closeTimeout):
			// Force-close unblocks the read loop, so the wait terminates.
			s.conn.Close(websocket.StatusGoingAway, "close timeout")
			<-quiesced
		}
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary messages to Deepgram.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Drain what is already queued before exiting.
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						return
					}
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives JSON messages from Deepgram and dispatches transcripts.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.results)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancellation.
			return
		}

		t, ok := parseStreamResponse(msg)
		if !ok {
			continue
		}
		t.SessionID = s.sessionID

		select {
		case s.results <- t:
		case <-s.done:
		}
	}
}

// parseStreamResponse parses a raw Deepgram WebSocket message into a
// Transcript. Returns (zero, false) if the message should be ignored.
func parseStreamResponse(data []byte) (types.Transcript, bool) {
	var resp streamResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return types.Transcript{}, false
	}
	if resp.Type != "Results" {
		return types.Transcript{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return types.Transcript{}, false
	}

	alt := resp.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return types.Transcript{}, false
	}
	return types.Transcript{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
		IsFinal:    resp.IsFinal,
		Timestamp:  time.Now(),
	}, true
}

// Ensure Recognizer implements stt.Recognizer at compile time.
var _ stt.Recognizer = (*Recognizer)(nil)
