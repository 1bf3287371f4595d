package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	t.Run("full config", func(t *testing.T) {
		t.Parallel()
		yml := `
server:
  listen_addr: ":9090"
  log_level: debug
bus:
  url: nats://localhost:4222
media:
  url: ws://sfu:4443/rpc
  reconnect_attempts: 3
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  tts:
    name: elevenlabs
    api_key: el-test
  stt:
    name: deepgram
    api_key: dg-test
limits:
  global_agent_cap: 4
  speaking_time_limit: 10s
`
		cfg, err := LoadFromReader(strings.NewReader(yml))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Server.ListenAddr != ":9090" {
			t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
		}
		if cfg.Limits.GlobalAgentCap != 4 {
			t.Errorf("global_agent_cap = %d, want 4", cfg.Limits.GlobalAgentCap)
		}
		if cfg.Limits.SpeakingTimeLimit != 10*time.Second {
			t.Errorf("speaking_time_limit = %v, want 10s", cfg.Limits.SpeakingTimeLimit)
		}
		if cfg.Media.ReconnectAttempts != 3 {
			t.Errorf("reconnect_attempts = %d, want 3", cfg.Media.ReconnectAttempts)
		}
	})

	t.Run("defaults fill unset knobs", func(t *testing.T) {
		t.Parallel()
		cfg, err := LoadFromReader(strings.NewReader("server:\n  listen_addr: \":8080\"\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Limits.GlobalAgentCap != DefaultGlobalAgentCap {
			t.Errorf("global_agent_cap = %d, want %d", cfg.Limits.GlobalAgentCap, DefaultGlobalAgentCap)
		}
		if cfg.Limits.RoomAgentCap != DefaultRoomAgentCap {
			t.Errorf("room_agent_cap = %d, want %d", cfg.Limits.RoomAgentCap, DefaultRoomAgentCap)
		}
		if cfg.Limits.ConfidenceFloor != DefaultConfidenceFloor {
			t.Errorf("confidence_floor = %v, want %v", cfg.Limits.ConfidenceFloor, DefaultConfidenceFloor)
		}
		if cfg.Limits.SpeakingTimeLimit != DefaultSpeakingTimeLimit {
			t.Errorf("speaking_time_limit = %v", cfg.Limits.SpeakingTimeLimit)
		}
		if cfg.Pipeline.EgressBufferBytes != DefaultEgressBufferBytes {
			t.Errorf("egress_buffer_bytes = %d", cfg.Pipeline.EgressBufferBytes)
		}
		if cfg.Pipeline.IngressBucket != DefaultIngressBucket {
			t.Errorf("ingress_bucket = %v", cfg.Pipeline.IngressBucket)
		}
		if cfg.Media.Timeout != DefaultMediaTimeout {
			t.Errorf("media timeout = %v", cfg.Media.Timeout)
		}
		if cfg.Bus.PublishBuffer != DefaultPublishBuffer {
			t.Errorf("publish_buffer = %d", cfg.Bus.PublishBuffer)
		}
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		t.Parallel()
		_, err := LoadFromReader(strings.NewReader("server:\n  listne_addr: \":8080\"\n"))
		if err == nil {
			t.Fatal("expected error for unknown field")
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		t.Parallel()
		_, err := LoadFromReader(strings.NewReader("server:\n  log_level: verbose\n"))
		if err == nil {
			t.Fatal("expected error for invalid log level")
		}
	})

	t.Run("confidence floor out of range", func(t *testing.T) {
		t.Parallel()
		_, err := LoadFromReader(strings.NewReader("limits:\n  confidence_floor: 1.5\n"))
		if err == nil {
			t.Fatal("expected error for confidence_floor > 1")
		}
	})

	t.Run("room cap above global cap", func(t *testing.T) {
		t.Parallel()
		_, err := LoadFromReader(strings.NewReader("limits:\n  global_agent_cap: 2\n  room_agent_cap: 5\n"))
		if err == nil {
			t.Fatal("expected error for room cap > global cap")
		}
	})
}

func TestLogLevelIsValid(t *testing.T) {
	t.Parallel()

	for _, l := range []LogLevel{LogDebug, LogInfo, LogWarn, LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if LogLevel("trace").IsValid() {
		t.Error("'trace' should be invalid")
	}
}
