// Command harken is a wake-phrase voice assistant: it listens on the
// microphone, answers questions that start with the wake phrase and speaks
// the reply.
package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/harken/internal/app"
	"github.com/MrWong99/harken/internal/config"
	"github.com/MrWong99/harken/internal/observe"
	"github.com/MrWong99/harken/pkg/audio"
	"github.com/MrWong99/harken/pkg/audio/command"
	"github.com/MrWong99/harken/pkg/audio/portaudio"
	"github.com/MrWong99/harken/pkg/provider/llm"
	"github.com/MrWong99/harken/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/harken/pkg/provider/llm/openai"
	"github.com/MrWong99/harken/pkg/provider/stt"
	"github.com/MrWong99/harken/pkg/provider/stt/deepgram"
	oastt "github.com/MrWong99/harken/pkg/provider/stt/openai"
	"github.com/MrWong99/harken/pkg/provider/stt/whisper"
	"github.com/MrWong99/harken/pkg/provider/tts"
	"github.com/MrWong99/harken/pkg/provider/tts/coqui"
	"github.com/MrWong99/harken/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/harken/pkg/provider/tts/google"
	oatts "github.com/MrWong99/harken/pkg/provider/tts/openai"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "harken.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "path to an optional .env file with provider credentials")
	listVoices := flag.Bool("list-voices", false, "print the voices offered by the configured TTS provider and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "harken: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "harken: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "harken: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	slog.Info("harken starting",
		"version", version,
		"config", *configPath,
		"wake_phrase", cfg.Wake.Phrase,
		"verbose", cfg.IsVerbose(),
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName:      "harken",
		ServiceVersion:   version,
		TraceSampleRatio: *cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg, logger)

	if *listVoices {
		return printVoices(cfg, reg)
	}

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers,
		app.WithLogger(logger),
		app.WithMetricsHandler(telemetry.Handler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("listening, press Ctrl+C to stop", "say", cfg.Wake.Phrase+" ...")

	runErr := application.Run(ctx)
	if runErr != nil {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmVendors are the chat backends served through any-llm-go. "openai"
// uses the dedicated client instead.
var anyllmVendors = []string{"anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Transcription and speech settings from cfg are passed to the factories that
// take them at construction time.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config, logger *slog.Logger) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		name := cmp.Or(optString(entry.Options, "model_path"), entry.Model, cfg.Transcription.Model)
		if !whisper.IsKnownModel(name) {
			logger.Debug("whisper model is not a published size, treating as custom", "model", name)
		}
		modelPath := whisper.ResolveModelPath(name, cfg.Transcription.ModelDir)
		opts := []whisper.NativeOption{
			whisper.WithNativeLanguage(cfg.Transcription.Language),
			whisper.WithNativeLogger(logger),
		}
		if n := optInt(entry.Options, "threads"); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		return whisper.New(entry.BaseURL,
			whisper.WithModel(cmp.Or(entry.Model, cfg.Transcription.Model)),
			whisper.WithLanguage(cfg.Transcription.Language),
		)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []oastt.Option{oastt.WithLanguage(cfg.Transcription.Language)}
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oastt.WithModel(entry.Model))
		}
		opts = append(opts, oastt.WithTimeout(cfg.Timeouts.Transcribe))
		return oastt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []deepgram.Option{deepgram.WithLanguage(cfg.Transcription.Language)}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if kw := optStrings(entry.Options, "keywords"); len(kw) > 0 {
			opts = append(opts, deepgram.WithKeywords(kw...))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		return oallm.New(entry.APIKey, cmp.Or(entry.Model, cfg.Chat.Model), opts...)
	})

	for _, vendor := range anyllmVendors {
		reg.RegisterLLM(vendor, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(vendor, cmp.Or(entry.Model, cfg.Chat.Model), opts...)
		})
	}

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("google", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []google.Option
		if entry.APIKey != "" {
			opts = append(opts, google.WithAPIKey(entry.APIKey))
		}
		if path := optString(entry.Options, "credentials_file"); path != "" {
			opts = append(opts, google.WithCredentialsFile(path))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, google.WithSampleRate(rate))
		}
		return google.New(context.Background(), opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []oatts.Option{oatts.WithTimeout(cfg.Timeouts.Synthesize)}
		if entry.BaseURL != "" {
			opts = append(opts, oatts.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oatts.WithModel(entry.Model))
		}
		return oatts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if f := optString(entry.Options, "output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []coqui.Option{coqui.WithTimeout(cfg.Timeouts.Synthesize)}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── Playback ──────────────────────────────────────────────────────────────

	reg.RegisterPlayback("portaudio", func(entry config.ProviderEntry) (audio.Player, error) {
		opts := []portaudio.Option{portaudio.WithLogger(logger)}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, portaudio.WithSampleRate(rate))
		}
		return portaudio.NewPlayer(opts...)
	})

	reg.RegisterPlayback("command", func(entry config.ProviderEntry) (audio.Player, error) {
		args := optStrings(entry.Options, "command")
		opts := []command.Option{command.WithLogger(logger)}
		if optBool(entry.Options, "file_argument") {
			opts = append(opts, command.WithFileArgument())
		}
		return command.New(args, opts...)
	})

	for kind, names := range reg.Names() {
		slog.Debug("registered providers", "kind", kind, "names", names)
	}
}

// buildProviders instantiates every provider named in cfg, fallbacks
// included, and returns them for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	var err error

	if ps.STT, err = create(reg.CreateSTT, "stt", cfg.Providers.STT); err != nil {
		return nil, err
	}
	if ps.LLM, err = create(reg.CreateLLM, "llm", cfg.Providers.LLM); err != nil {
		return nil, err
	}
	if ps.TTS, err = create(reg.CreateTTS, "tts", cfg.Providers.TTS); err != nil {
		return nil, err
	}
	player, err := create(reg.CreatePlayback, "playback", cfg.Providers.Playback)
	if err != nil {
		return nil, err
	}
	ps.Player = player.Provider

	for _, e := range cfg.Providers.Fallbacks.STT {
		n, err := create(reg.CreateSTT, "stt", e)
		if err != nil {
			return nil, err
		}
		ps.STTFallbacks = append(ps.STTFallbacks, n)
	}
	for _, e := range cfg.Providers.Fallbacks.LLM {
		n, err := create(reg.CreateLLM, "llm", e)
		if err != nil {
			return nil, err
		}
		ps.LLMFallbacks = append(ps.LLMFallbacks, n)
	}
	for _, e := range cfg.Providers.Fallbacks.TTS {
		n, err := create(reg.CreateTTS, "tts", e)
		if err != nil {
			return nil, err
		}
		ps.TTSFallbacks = append(ps.TTSFallbacks, n)
	}
	return ps, nil
}

func create[T any](fn func(config.ProviderEntry) (T, error), kind string, entry config.ProviderEntry) (app.Named[T], error) {
	p, err := fn(entry)
	if err != nil {
		return app.Named[T]{}, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name, "model", entry.Model)
	return app.Named[T]{Name: entry.Name, Provider: p}, nil
}

// printVoices lists the configured TTS provider's voices on stdout.
func printVoices(cfg *config.Config, reg *config.Registry) int {
	p, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		slog.Error("failed to create tts provider", "err", err)
		return 1
	}
	vl, ok := p.(tts.VoiceLister)
	if !ok {
		fmt.Fprintf(os.Stderr, "harken: tts provider %q cannot list voices\n", cfg.Providers.TTS.Name)
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	voices, err := vl.ListVoices(ctx)
	if err != nil {
		slog.Error("failed to list voices", "err", err)
		return 1
	}
	for _, v := range voices {
		fmt.Printf("%-32s %-8s %-8s %s\n", v.ID, v.Language, v.Gender, v.Name)
	}
	return 0
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process logger. Verbose mode forces debug level so
// every stage decision is visible.
func newLogger(cfg *config.Config) *slog.Logger {
	var lvl slog.Level
	switch cfg.Server.LogLevel {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if cfg.IsVerbose() {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option. YAML decodes integers as int.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func optBool(opts map[string]any, key string) bool {
	b, _ := opts[key].(bool)
	return b
}

// optStrings accepts either a YAML list of strings or a single string.
func optStrings(opts map[string]any, key string) []string {
	switch v := opts[key].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
