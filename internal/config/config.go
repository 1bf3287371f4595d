// Package config provides the configuration schema, loader, and defaults for
// the voxroom orchestrator.
package config

import "time"

// LogLevel controls log verbosity for the voxroom server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for voxroom.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Bus       BusConfig       `yaml:"bus"`
	Media     MediaConfig     `yaml:"media"`
	Providers ProvidersConfig `yaml:"providers"`
	Limits    LimitsConfig    `yaml:"limits"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// ServerConfig holds network and logging settings for the voxroom server.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server (health, metrics) listens
	// on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// BusConfig configures the external pub/sub bus connection.
type BusConfig struct {
	// URL is the NATS server address (e.g., "nats://localhost:4222").
	// Empty disables the bus; control then happens via direct calls only.
	URL string `yaml:"url"`

	// PublishBuffer is the number of outgoing messages buffered before
	// Publish starts rejecting with a backpressure error.
	PublishBuffer int `yaml:"publish_buffer"`
}

// MediaConfig configures the media-server boundary.
type MediaConfig struct {
	// URL is the media server's signalling endpoint (e.g., "ws://sfu:4443/rpc").
	URL string `yaml:"url"`

	// Timeout bounds every media RPC.
	Timeout time.Duration `yaml:"timeout"`

	// ReconnectAttempts is the bounded reconnect budget after a transport
	// drop. Exhausting it tears the owning binding down.
	ReconnectAttempts int `yaml:"reconnect_attempts"`

	// ConsumeDuration is the default capture window for consumers.
	ConsumeDuration time.Duration `yaml:"consume_duration"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
	STT ProviderEntry `yaml:"stt"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "openai", "elevenlabs",
	// "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API, if any.
	// An entry without a required key leaves the adapter unavailable; it does
	// not block startup.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini",
	// "nova-3", "eleven_flash_v2_5").
	Model string `yaml:"model"`
}

// LimitsConfig holds the orchestrator's capacity and timing knobs.
type LimitsConfig struct {
	// GlobalAgentCap bounds the number of agents in the process.
	GlobalAgentCap int `yaml:"global_agent_cap"`

	// RoomAgentCap bounds the number of agents attached to one room.
	RoomAgentCap int `yaml:"room_agent_cap"`

	// HistoryCap bounds each agent's rolling message history.
	HistoryCap int `yaml:"history_cap"`

	// TurnQueueCap bounds each room's pending speak-request queue.
	TurnQueueCap int `yaml:"turn_queue_cap"`

	// SpeechQueueCap bounds each agent's queued speech texts.
	SpeechQueueCap int `yaml:"speech_queue_cap"`

	// SpeakingTimeLimit force-stops a speaker that exceeds it.
	SpeakingTimeLimit time.Duration `yaml:"speaking_time_limit"`

	// ConfidenceFloor drops transcripts below this confidence from response
	// triggering (they are still logged).
	ConfidenceFloor float64 `yaml:"confidence_floor"`

	// ConversationLogCap bounds each room's transcript-and-utterance log.
	ConversationLogCap int `yaml:"conversation_log_cap"`

	// LLMMinInterval is the per-agent minimum spacing between LLM calls.
	LLMMinInterval time.Duration `yaml:"llm_min_interval"`

	// Provider call timeouts.
	LLMTimeout time.Duration `yaml:"llm_timeout"`
	TTSTimeout time.Duration `yaml:"tts_timeout"`
	STTTimeout time.Duration `yaml:"stt_timeout"`
}

// PipelineConfig holds the audio pipeline knobs.
type PipelineConfig struct {
	// EgressBufferBytes is the chunking threshold for synthesized audio on the
	// way to the media producer.
	EgressBufferBytes int `yaml:"egress_buffer_bytes"`

	// IngressBucket is the duration of each VAD-labelled ingress chunk.
	IngressBucket time.Duration `yaml:"ingress_bucket"`

	// VADThreshold is the RMS threshold as a fraction of int16 full scale
	// above which a bucket is labelled voice.
	VADThreshold float64 `yaml:"vad_threshold"`
}

// Default values for every knob. Applied by [ApplyDefaults] wherever the
// loaded file leaves a field zero.
const (
	DefaultGlobalAgentCap     = 10
	DefaultRoomAgentCap       = 5
	DefaultHistoryCap         = 100
	DefaultTurnQueueCap       = 16
	DefaultSpeechQueueCap     = 8
	DefaultSpeakingTimeLimit  = 30 * time.Second
	DefaultConfidenceFloor    = 0.7
	DefaultConversationLogCap = 1000
	DefaultLLMMinInterval     = 2 * time.Second
	DefaultLLMTimeout         = 30 * time.Second
	DefaultTTSTimeout         = 15 * time.Second
	DefaultSTTTimeout         = 30 * time.Second
	DefaultMediaTimeout       = 10 * time.Second
	DefaultReconnectAttempts  = 5
	DefaultConsumeDuration    = 5 * time.Second
	DefaultEgressBufferBytes  = 4096
	DefaultIngressBucket      = 1 * time.Second
	DefaultVADThreshold       = 0.5
	DefaultPublishBuffer      = 64
)

// ApplyDefaults fills every zero-valued knob with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Bus.PublishBuffer == 0 {
		cfg.Bus.PublishBuffer = DefaultPublishBuffer
	}
	if cfg.Media.Timeout == 0 {
		cfg.Media.Timeout = DefaultMediaTimeout
	}
	if cfg.Media.ReconnectAttempts == 0 {
		cfg.Media.ReconnectAttempts = DefaultReconnectAttempts
	}
	if cfg.Media.ConsumeDuration == 0 {
		cfg.Media.ConsumeDuration = DefaultConsumeDuration
	}

	l := &cfg.Limits
	if l.GlobalAgentCap == 0 {
		l.GlobalAgentCap = DefaultGlobalAgentCap
	}
	if l.RoomAgentCap == 0 {
		l.RoomAgentCap = DefaultRoomAgentCap
	}
	if l.HistoryCap == 0 {
		l.HistoryCap = DefaultHistoryCap
	}
	if l.TurnQueueCap == 0 {
		l.TurnQueueCap = DefaultTurnQueueCap
	}
	if l.SpeechQueueCap == 0 {
		l.SpeechQueueCap = DefaultSpeechQueueCap
	}
	if l.SpeakingTimeLimit == 0 {
		l.SpeakingTimeLimit = DefaultSpeakingTimeLimit
	}
	if l.ConfidenceFloor == 0 {
		l.ConfidenceFloor = DefaultConfidenceFloor
	}
	if l.ConversationLogCap == 0 {
		l.ConversationLogCap = DefaultConversationLogCap
	}
	if l.LLMMinInterval == 0 {
		l.LLMMinInterval = DefaultLLMMinInterval
	}
	if l.LLMTimeout == 0 {
		l.LLMTimeout = DefaultLLMTimeout
	}
	if l.TTSTimeout == 0 {
		l.TTSTimeout = DefaultTTSTimeout
	}
	if l.STTTimeout == 0 {
		l.STTTimeout = DefaultSTTTimeout
	}

	p := &cfg.Pipeline
	if p.EgressBufferBytes == 0 {
		p.EgressBufferBytes = DefaultEgressBufferBytes
	}
	if p.IngressBucket == 0 {
		p.IngressBucket = DefaultIngressBucket
	}
	if p.VADThreshold == 0 {
		p.VADThreshold = DefaultVADThreshold
	}
}
