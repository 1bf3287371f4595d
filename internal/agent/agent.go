// Package agent implements the conversational core of one voxroom persona:
// its rolling message history, status machine, reply generation, and speech
// synthesis. Room placement and turn-taking live elsewhere; an Agent only
// knows how to listen, think, and produce audio.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/voxroom/voxroom/internal/fault"
	"github.com/voxroom/voxroom/pkg/provider/llm"
	"github.com/voxroom/voxroom/pkg/provider/tts"
	"github.com/voxroom/voxroom/pkg/types"
)

// Status is an agent's lifecycle state.
type Status string

const (
	// StatusIdle is an agent not attached to any room.
	StatusIdle Status = "idle"
	// StatusListening is an attached agent waiting for input.
	StatusListening Status = "listening"
	// StatusThinking is an agent generating a reply.
	StatusThinking Status = "thinking"
	// StatusSpeaking is an agent with the floor, emitting audio.
	StatusSpeaking Status = "speaking"
	// StatusProcessing is an agent transcribing or otherwise digesting input.
	StatusProcessing Status = "processing"
)

// MessageKind classifies a history entry.
type MessageKind string

const (
	// KindHeard is a transcript or text message received from the room.
	KindHeard MessageKind = "heard"
	// KindSpoken is a reply this agent produced.
	KindSpoken MessageKind = "spoken"
)

// Message is one entry of an agent's rolling history.
type Message struct {
	Kind   MessageKind
	Origin string
	Text   string
	TS     time.Time
}

// Config is the per-agent tuning applied at creation or update.
type Config struct {
	// Persona is the system prompt defining who the agent is. Required.
	Persona string

	// Model overrides the shared backend model tag in prompts only; the
	// actual backend model is fixed at process level.
	Model string

	// Temperature for generation. Zero selects the backend default.
	Temperature float64

	// MaxReplyTokens bounds reply length. Zero selects 256.
	MaxReplyTokens int

	// Voice selects and shapes the TTS voice.
	Voice types.VoiceProfile

	// PromptTurns is how many recent history entries feed each prompt.
	// Zero selects 10.
	PromptTurns int
}

const (
	defaultMaxReplyTokens = 256
	defaultPromptTurns    = 10

	// fallbackReply is spoken when the backend fails, so the room never gets
	// dead air after addressing an agent.
	fallbackReply = "Sorry, I didn't catch that. Could you say it again?"
)

// Metrics counts an agent's activity since creation.
type Metrics struct {
	MessagesHeard    uint64
	RepliesSpoken    uint64
	GenerateFailures uint64
	TokensUsed       uint64
}

// Agent is one persona. All methods are safe for concurrent use.
type Agent struct {
	id   string
	name string

	gate  *llm.Gate
	voice tts.Synthesizer
	log   *slog.Logger

	historyCap int
	speechCap  int
	llmTimeout time.Duration
	ttsTimeout time.Duration
	onStatus   func(id string, s Status)
	created    time.Time

	mu      sync.Mutex
	cfg     Config
	status  Status
	history []Message
	speechQ []string
	metrics Metrics
}

// Option is a functional option for configuring an Agent.
type Option func(*Agent)

// WithHistoryCap bounds the rolling history. Zero selects 100.
func WithHistoryCap(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.historyCap = n
		}
	}
}

// WithSpeechQueueCap bounds the pending-speech queue. Zero selects 8.
func WithSpeechQueueCap(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.speechCap = n
		}
	}
}

// WithTimeouts bounds the provider calls.
func WithTimeouts(llmTimeout, ttsTimeout time.Duration) Option {
	return func(a *Agent) {
		if llmTimeout > 0 {
			a.llmTimeout = llmTimeout
		}
		if ttsTimeout > 0 {
			a.ttsTimeout = ttsTimeout
		}
	}
}

// WithStatusCallback registers a hook invoked after every status change.
func WithStatusCallback(fn func(id string, s Status)) Option {
	return func(a *Agent) {
		a.onStatus = fn
	}
}

// WithLogger replaces the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Agent) {
		a.log = log
	}
}

// NewID generates a fresh agent id.
func NewID() string {
	id, err := gonanoid.Generate("abcdefghijklmnopqrstuvwxyz0123456789", 12)
	if err != nil {
		// The default source is crypto/rand; failure here means the process
		// cannot continue anyway.
		panic(fmt.Sprintf("agent: generate id: %v", err))
	}
	return "ag-" + id
}

// New creates an agent. id may be empty to auto-generate one; cfg.Persona is
// required.
func New(id string, cfg Config, gate *llm.Gate, voice tts.Synthesizer, opts ...Option) (*Agent, error) {
	if cfg.Persona == "" {
		return nil, fault.New(fault.KindInvalidArgument, "agent: persona must not be empty")
	}
	if id == "" {
		id = NewID()
	}

	a := &Agent{
		id:         id,
		name:       personaName(cfg.Persona),
		gate:       gate,
		voice:      voice,
		log:        slog.Default(),
		historyCap: 100,
		speechCap:  8,
		llmTimeout: 30 * time.Second,
		ttsTimeout: 15 * time.Second,
		cfg:        cfg,
		status:     StatusIdle,
		created:    time.Now(),
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// ID returns the agent's id.
func (a *Agent) ID() string { return a.id }

// Name returns the short display name derived from the persona.
func (a *Agent) Name() string { return a.name }

// Status returns the current lifecycle state.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// SetStatus moves the agent to s and fires the status callback when the
// state actually changed.
func (a *Agent) SetStatus(s Status) {
	a.mu.Lock()
	if a.status == s {
		a.mu.Unlock()
		return
	}
	a.status = s
	a.mu.Unlock()

	if a.onStatus != nil {
		a.onStatus(a.id, s)
	}
}

// Config returns a copy of the current configuration.
func (a *Agent) Config() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// UpdateConfig replaces the tuning while keeping history and status intact.
// An empty persona keeps the previous one.
func (a *Agent) UpdateConfig(cfg Config) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cfg.Persona == "" {
		cfg.Persona = a.cfg.Persona
	}
	a.cfg = cfg
	a.name = personaName(cfg.Persona)
}

// Hear records input from the room without generating a reply.
func (a *Agent) Hear(origin, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.appendLocked(Message{Kind: KindHeard, Origin: origin, Text: text, TS: time.Now()})
	a.metrics.MessagesHeard++
}

// TryRespond records the input, generates a reply, and records it. Backend
// failures are returned to the caller; nothing is recorded as spoken then.
// An empty reply is not an error.
func (a *Agent) TryRespond(ctx context.Context, origin, text string) (string, error) {
	a.Hear(origin, text)

	a.mu.Lock()
	req := a.buildRequestLocked()
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, a.llmTimeout)
	defer cancel()

	reply, err := a.gate.Generate(ctx, a.id, req)
	if err != nil {
		a.mu.Lock()
		a.metrics.GenerateFailures++
		a.mu.Unlock()
		return "", err
	}

	out := strings.TrimSpace(reply.Text)
	if out == "" {
		return "", nil
	}

	a.mu.Lock()
	a.appendLocked(Message{Kind: KindSpoken, Origin: a.id, Text: out, TS: time.Now()})
	a.metrics.RepliesSpoken++
	a.metrics.TokensUsed += uint64(reply.Usage.TotalTokens)
	a.mu.Unlock()

	return out, nil
}

// Respond is TryRespond with a canned apology in place of failures and empty
// replies, so the room never gets dead air after addressing an agent. The
// agent reads as processing for the duration and settles back to idle, even
// when the backend fails.
func (a *Agent) Respond(ctx context.Context, origin, text string) string {
	a.SetStatus(StatusProcessing)
	defer a.SetStatus(StatusIdle)

	reply, err := a.TryRespond(ctx, origin, text)
	if err == nil && reply != "" {
		return reply
	}
	if err != nil {
		a.log.Warn("agent reply generation failed",
			"agent", a.id, "error", err)
	}

	a.mu.Lock()
	a.appendLocked(Message{Kind: KindSpoken, Origin: a.id, Text: fallbackReply, TS: time.Now()})
	a.metrics.RepliesSpoken++
	a.mu.Unlock()
	return fallbackReply
}

// Synthesize renders text in the agent's voice.
func (a *Agent) Synthesize(ctx context.Context, text string) (*tts.Clip, error) {
	a.mu.Lock()
	voice := a.cfg.Voice
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, a.ttsTimeout)
	defer cancel()

	clip, err := a.voice.Synthesize(ctx, text, voice)
	if err != nil {
		return nil, fmt.Errorf("agent %s: synthesize: %w", a.id, err)
	}
	return clip, nil
}

// QueueSpeech enqueues text for speaking. A full queue fails with a busy
// fault; the caller decides whether to drop or report.
func (a *Agent) QueueSpeech(text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.speechQ) >= a.speechCap {
		return fault.Errorf(fault.KindBusy, "agent %s: speech queue full (%d)", a.id, a.speechCap)
	}
	a.speechQ = append(a.speechQ, text)
	return nil
}

// NextSpeech dequeues the oldest pending text. ok is false when the queue is
// empty.
func (a *Agent) NextSpeech() (text string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.speechQ) == 0 {
		return "", false
	}
	text = a.speechQ[0]
	a.speechQ = a.speechQ[1:]
	return text, true
}

// PendingSpeech returns the queue depth.
func (a *Agent) PendingSpeech() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.speechQ)
}

// ClearSpeech empties the queue, returning how many entries were dropped.
func (a *Agent) ClearSpeech() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.speechQ)
	a.speechQ = nil
	return n
}

// History returns a copy of the rolling history, oldest first.
func (a *Agent) History() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Message, len(a.history))
	copy(out, a.history)
	return out
}

// Metrics returns a copy of the activity counters.
func (a *Agent) Metrics() Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metrics
}

// Created returns the creation time.
func (a *Agent) Created() time.Time { return a.created }

// appendLocked adds a history entry, evicting the oldest past the cap.
// Caller holds a.mu.
func (a *Agent) appendLocked(m Message) {
	a.history = append(a.history, m)
	if len(a.history) > a.historyCap {
		a.history = a.history[len(a.history)-a.historyCap:]
	}
}

// buildRequestLocked assembles the prompt from the persona and the most
// recent history turns. Caller holds a.mu.
func (a *Agent) buildRequestLocked() llm.Request {
	turns := a.cfg.PromptTurns
	if turns <= 0 {
		turns = defaultPromptTurns
	}
	maxTokens := a.cfg.MaxReplyTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxReplyTokens
	}

	start := len(a.history) - turns
	if start < 0 {
		start = 0
	}

	msgs := make([]llm.Message, 0, turns)
	for _, m := range a.history[start:] {
		switch m.Kind {
		case KindSpoken:
			msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: m.Text})
		default:
			msgs = append(msgs, llm.Message{
				Role:    llm.RoleUser,
				Content: m.Text,
				Name:    m.Origin,
			})
		}
	}

	return llm.Request{
		System:      a.systemPromptLocked(),
		Messages:    msgs,
		Temperature: a.cfg.Temperature,
		MaxTokens:   maxTokens,
	}
}

// systemPromptLocked renders the persona into a voice-appropriate system
// prompt. Caller holds a.mu.
func (a *Agent) systemPromptLocked() string {
	var b strings.Builder
	b.WriteString(a.cfg.Persona)
	b.WriteString("\n\nYou are a voice participant in a live conversation. ")
	b.WriteString("Keep replies short and speakable: one to three sentences, no markdown, no lists.")
	return b.String()
}

// personaName derives a short display name from the first few words of the
// persona prompt.
func personaName(persona string) string {
	fields := strings.Fields(persona)
	if len(fields) == 0 {
		return "agent"
	}
	n := len(fields)
	if n > 3 {
		n = 3
	}
	name := strings.Join(fields[:n], " ")
	if len(name) > 32 {
		name = name[:32]
	}
	return name
}
