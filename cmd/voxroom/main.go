// Command voxroom runs the voice-agent orchestrator: it connects the control
// bus, the media transport, and the speech providers, then serves health and
// metrics endpoints until it is signalled to stop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	oai "github.com/openai/openai-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxroom/voxroom/internal/bus"
	"github.com/voxroom/voxroom/internal/config"
	"github.com/voxroom/voxroom/internal/health"
	"github.com/voxroom/voxroom/internal/manager"
	"github.com/voxroom/voxroom/internal/observe"
	"github.com/voxroom/voxroom/internal/resilience"
	"github.com/voxroom/voxroom/internal/room"
	"github.com/voxroom/voxroom/pkg/media"
	"github.com/voxroom/voxroom/pkg/media/wsrpc"
	"github.com/voxroom/voxroom/pkg/provider/llm"
	"github.com/voxroom/voxroom/pkg/provider/llm/anyllm"
	"github.com/voxroom/voxroom/pkg/provider/stt"
	"github.com/voxroom/voxroom/pkg/provider/stt/deepgram"
	"github.com/voxroom/voxroom/pkg/provider/stt/whisperapi"
	"github.com/voxroom/voxroom/pkg/provider/tts"
	"github.com/voxroom/voxroom/pkg/provider/tts/elevenlabs"
)

// version is stamped by the build; "dev" otherwise.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxroom: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxroom: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxroom starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		Registerer:     prometheus.DefaultRegisterer,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	gate, llmBreaker, err := buildLLM(cfg)
	if err != nil {
		slog.Error("failed to build llm provider", "err", err)
		return 1
	}
	voice, ttsBreaker, err := buildTTS(cfg)
	if err != nil {
		slog.Error("failed to build tts provider", "err", err)
		return 1
	}
	recognizer, sttBreaker, err := buildSTT(cfg)
	if err != nil {
		slog.Error("failed to build stt provider", "err", err)
		return 1
	}

	// ── Bus ───────────────────────────────────────────────────────────────────
	var busConn bus.Bus
	if cfg.Bus.URL != "" {
		busConn = bus.NewNATS(cfg.Bus.URL, cfg.Bus.PublishBuffer, logger)
	} else {
		slog.Info("no bus url configured, using in-process bus")
		busConn = bus.NewInproc(cfg.Bus.PublishBuffer)
	}
	if err := busConn.Connect(ctx); err != nil {
		slog.Error("failed to connect bus", "url", cfg.Bus.URL, "err", err)
		return 1
	}

	// ── Media dialer ──────────────────────────────────────────────────────────
	dial := func(context.Context) (media.RoomClient, error) {
		if cfg.Media.URL == "" {
			return nil, fmt.Errorf("media url is not configured")
		}
		return wsrpc.New(cfg.Media.URL,
			wsrpc.WithCallTimeout(cfg.Media.Timeout),
			wsrpc.WithReconnectAttempts(cfg.Media.ReconnectAttempts),
			wsrpc.WithLogger(logger),
		), nil
	}

	// ── Manager ───────────────────────────────────────────────────────────────
	mgr := manager.New(cfg.Limits, cfg.Pipeline, manager.Deps{
		Gate:       gate,
		Voice:      voice,
		Recognizer: recognizer,
		DialMedia:  dial,
	},
		manager.WithLogger(logger),
		manager.WithMetrics(metrics),
		manager.WithStrategy(&room.AddressedStrategy{
			Fallback: room.NewRandomStrategy(time.Now().UnixNano()),
		}),
	)
	if err := mgr.AttachBus(busConn); err != nil {
		slog.Error("failed to attach bus", "err", err)
		return 1
	}

	// ── HTTP: health + metrics ────────────────────────────────────────────────
	mux := http.NewServeMux()
	health.New(
		health.BusChecker(busConn),
		breakerChecker("llm", llmBreaker),
		breakerChecker("tts", ttsBreaker),
		breakerChecker("stt", sttBreaker),
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observe.Middleware(metrics)(mux),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
		}
	}()

	printStartupSummary(cfg)
	slog.Info("server ready — press Ctrl+C to shut down")

	<-ctx.Done()
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Stop command intake first, then tear bindings down, then the edges.
	if err := mgr.Close(shutdownCtx); err != nil {
		slog.Warn("manager close error", "err", err)
	}
	if err := busConn.Close(); err != nil {
		slog.Warn("bus close error", "err", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildLLM constructs the text-generation stack: any-llm adapter, circuit
// breaker, and the rate-limiting gate the agents share.
func buildLLM(cfg *config.Config) (*llm.Gate, *resilience.Breaker, error) {
	entry := cfg.Providers.LLM
	if entry.Name == "" {
		return nil, nil, fmt.Errorf("providers.llm.name is required")
	}

	var opts []anyllmlib.Option
	switch entry.Name {
	case "ollama":
		// Local server; BaseURL is the address, no API key involved.
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
	default:
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
	}

	adapter, err := anyllm.New(entry.Name, entry.Model, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model)
	resilient := resilience.NewLLM(adapter, resilience.BreakerConfig{Name: "llm"})
	return llm.NewGate(resilient, cfg.Limits.LLMMinInterval), resilient.Breaker(), nil
}

// buildTTS constructs the synthesis stack: provider, circuit breaker, and the
// clip cache on the outside so cache hits skip the breaker entirely. Missing
// credentials never abort startup; the provider reports unavailable per call
// and readiness reflects its breaker.
func buildTTS(cfg *config.Config) (tts.Synthesizer, *resilience.Breaker, error) {
	entry := cfg.Providers.TTS
	switch entry.Name {
	case "elevenlabs":
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		el, err := elevenlabs.New(entry.APIKey, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
		}
		slog.Info("provider created", "kind", "tts", "name", entry.Name, "model", entry.Model)
		resilient := resilience.NewTTS(el, resilience.BreakerConfig{Name: "tts"})
		cached, err := tts.NewCache(resilient, 0)
		if err != nil {
			return nil, nil, err
		}
		return cached, resilient.Breaker(), nil
	case "":
		return nil, nil, fmt.Errorf("providers.tts.name is required")
	default:
		return nil, nil, fmt.Errorf("unknown tts provider %q", entry.Name)
	}
}

// buildSTT constructs the recognition stack behind a circuit breaker. As with
// TTS, missing credentials surface per call rather than failing the build.
func buildSTT(cfg *config.Config) (stt.Recognizer, *resilience.Breaker, error) {
	entry := cfg.Providers.STT
	var (
		backend stt.Recognizer
		err     error
	)
	switch entry.Name {
	case "deepgram":
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		backend, err = deepgram.New(entry.APIKey, opts...)
	case "whisper":
		var opts []whisperapi.Option
		if entry.BaseURL != "" {
			opts = append(opts, whisperapi.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, whisperapi.WithModel(oai.AudioModel(entry.Model)))
		}
		backend, err = whisperapi.New(entry.APIKey, opts...)
	case "":
		return nil, nil, fmt.Errorf("providers.stt.name is required")
	default:
		return nil, nil, fmt.Errorf("unknown stt provider %q", entry.Name)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", entry.Name, "model", entry.Model)
	resilient := resilience.NewSTT(backend, resilience.BreakerConfig{Name: "stt"})
	return resilient, resilient.Breaker(), nil
}

// breakerChecker reports a provider as unready while its circuit is open.
func breakerChecker(name string, b *resilience.Breaker) health.Checker {
	return health.Named(name, func(context.Context) error {
		if b.State() == resilience.StateOpen {
			return fmt.Errorf("%s circuit open", name)
		}
		return nil
	})
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         voxroom — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printValue("Bus", orDefault(cfg.Bus.URL, "(in-process)"))
	printValue("Media", orDefault(cfg.Media.URL, "(not configured)"))
	fmt.Printf("║  Agent cap       : %-19d ║\n", cfg.Limits.GlobalAgentCap)
	if cfg.Server.ListenAddr != "" {
		printValue("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printValue(kind, value)
}

func printValue(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
