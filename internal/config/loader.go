package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq"},
	"tts": {"elevenlabs"},
	"stt": {"deepgram", "whisper"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, validates the result, and
// applies defaults. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; agents will answer with the fallback reply only")
	}
	if cfg.Media.URL == "" {
		slog.Warn("media.url is empty; agents cannot be attached to rooms")
	}

	l := cfg.Limits
	if l.GlobalAgentCap < 0 {
		errs = append(errs, fmt.Errorf("limits.global_agent_cap %d must not be negative", l.GlobalAgentCap))
	}
	if l.RoomAgentCap < 0 {
		errs = append(errs, fmt.Errorf("limits.room_agent_cap %d must not be negative", l.RoomAgentCap))
	}
	if l.RoomAgentCap > 0 && l.GlobalAgentCap > 0 && l.RoomAgentCap > l.GlobalAgentCap {
		errs = append(errs, fmt.Errorf("limits.room_agent_cap %d exceeds limits.global_agent_cap %d", l.RoomAgentCap, l.GlobalAgentCap))
	}
	if l.ConfidenceFloor < 0 || l.ConfidenceFloor > 1 {
		errs = append(errs, fmt.Errorf("limits.confidence_floor %.2f is out of range [0, 1]", l.ConfidenceFloor))
	}
	if cfg.Pipeline.VADThreshold < 0 || cfg.Pipeline.VADThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.vad_threshold %.2f is out of range [0, 1]", cfg.Pipeline.VADThreshold))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
