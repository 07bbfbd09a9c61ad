// Package app wires Harken's subsystems into a running assistant.
//
// The App owns the full lifecycle: New opens nothing yet but builds the
// capture source, wake gate, provider chains and pipeline from the config;
// Run starts the ops server and the pipeline and blocks until the pipeline
// has drained; Shutdown releases devices and providers.
//
// Tests inject doubles through functional options (WithSource, WithMetrics,
// ...). When an option is not provided, New builds the real implementation
// from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/harken/internal/capture"
	"github.com/MrWong99/harken/internal/config"
	"github.com/MrWong99/harken/internal/health"
	"github.com/MrWong99/harken/internal/observe"
	"github.com/MrWong99/harken/internal/pipeline"
	"github.com/MrWong99/harken/internal/resilience"
	"github.com/MrWong99/harken/internal/wake"
	"github.com/MrWong99/harken/pkg/audio"
	"github.com/MrWong99/harken/pkg/audio/portaudio"
	"github.com/MrWong99/harken/pkg/audio/wavfile"
	"github.com/MrWong99/harken/pkg/provider/llm"
	"github.com/MrWong99/harken/pkg/provider/stt"
	"github.com/MrWong99/harken/pkg/provider/tts"
	"github.com/MrWong99/harken/pkg/provider/vad"
	"github.com/MrWong99/harken/pkg/provider/vad/energy"
	"github.com/MrWong99/harken/pkg/types"
)

// Named pairs a provider with the config name it was created under.
type Named[T any] struct {
	Name     string
	Provider T
}

// Providers holds one value per provider slot, populated by main.go via the
// config registry. Fallbacks are tried in order after the primary fails.
type Providers struct {
	STT    Named[stt.Provider]
	LLM    Named[llm.Provider]
	TTS    Named[tts.Provider]
	Player audio.Player

	STTFallbacks []Named[stt.Provider]
	LLMFallbacks []Named[llm.Provider]
	TTSFallbacks []Named[tts.Provider]
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	logger    *slog.Logger
	metrics   *observe.Metrics

	source   audio.Source
	vad      vad.Engine
	gate     *wake.Gate
	pipeline *pipeline.Pipeline

	server         *http.Server
	metricsHandler http.Handler

	mu       sync.Mutex
	listener net.Listener

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects the capture source instead of opening the configured
// microphone or WAV file.
func WithSource(s audio.Source) Option {
	return func(a *App) { a.source = s }
}

// WithVAD injects the voice activity engine. Default: the energy detector.
func WithVAD(e vad.Engine) Option {
	return func(a *App) { a.vad = e }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler sets the handler served on /metrics.
// Default: promhttp.Handler() on the global Prometheus registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New wires the application. Devices are opened lazily by Run, so New
// succeeds without audio hardware.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if providers == nil {
		return nil, errors.New("app: providers must not be nil")
	}

	// ── 1. Capture source ────────────────────────────────────────────────
	if err := a.initSource(); err != nil {
		return nil, fmt.Errorf("app: init source: %w", err)
	}

	// ── 2. Wake gate ─────────────────────────────────────────────────────
	var gateOpts []wake.Option
	if cfg.Wake.Phonetic {
		gateOpts = append(gateOpts, wake.WithPhonetic(cfg.Wake.PhoneticThreshold))
	}
	gate, err := wake.New(cfg.Wake.Phrase, gateOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: init wake gate: %w", err)
	}
	a.gate = gate

	// ── 3. Capture stage ─────────────────────────────────────────────────
	if a.vad == nil {
		a.vad = energy.New()
	}
	capturer, err := capture.New(a.source, a.vad, captureConfig(cfg.Capture), capture.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("app: init capture: %w", err)
	}

	// ── 4. Provider chains ───────────────────────────────────────────────
	deps, err := a.initProviders(ctx, capturer)
	if err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}

	// ── 5. Pipeline ──────────────────────────────────────────────────────
	p, err := pipeline.New(pipelineConfig(cfg), deps,
		pipeline.WithLogger(a.logger),
		pipeline.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}
	a.pipeline = p

	// ── 6. Ops server ────────────────────────────────────────────────────
	a.initServer()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initSource() error {
	if a.source != nil {
		return nil
	}
	c := a.cfg.Capture
	switch c.Source {
	case config.SourceWAVFile:
		// Trailing silence longer than the pause threshold ends the last phrase.
		gap := seconds(c.PauseThreshold) + 500*time.Millisecond
		src, err := wavfile.New(c.File,
			wavfile.WithFramesPerBuffer(c.FramesPerBuffer),
			wavfile.WithTrailingSilence(gap),
		)
		if err != nil {
			return err
		}
		a.source = src
	default:
		a.source = portaudio.NewMicrophone(
			portaudio.WithSampleRate(c.SampleRate),
			portaudio.WithFramesPerBuffer(c.FramesPerBuffer),
			portaudio.WithLogger(a.logger),
		)
	}
	return nil
}

func (a *App) initProviders(_ context.Context, capturer pipeline.Capturer) (pipeline.Deps, error) {
	ps := a.providers
	var errs []error
	if ps.STT.Provider == nil {
		errs = append(errs, errors.New("stt provider is required"))
	}
	if ps.LLM.Provider == nil {
		errs = append(errs, errors.New("llm provider is required"))
	}
	if ps.TTS.Provider == nil {
		errs = append(errs, errors.New("tts provider is required"))
	}
	if ps.Player == nil {
		errs = append(errs, errors.New("player is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return pipeline.Deps{}, err
	}

	deps := pipeline.Deps{
		Capturer: capturer,
		Gate:     a.gate,
		STT:      ps.STT.Provider,
		LLM:      ps.LLM.Provider,
		TTS:      ps.TTS.Provider,
		Player:   ps.Player,
		STTName:  ps.STT.Name,
		LLMName:  ps.LLM.Name,
		TTSName:  ps.TTS.Name,
	}
	fbCfg := a.fallbackConfig()

	if len(ps.STTFallbacks) > 0 {
		fb := resilience.NewSTTFallback(ps.STT.Provider, ps.STT.Name, fbCfg)
		for _, n := range ps.STTFallbacks {
			fb.AddFallback(n.Name, n.Provider)
		}
		a.logger.Info("stt fallback chain", "providers", fb.Names())
		deps.STT = fb
	}
	if len(ps.LLMFallbacks) > 0 {
		fb := resilience.NewLLMFallback(ps.LLM.Provider, ps.LLM.Name, fbCfg)
		for _, n := range ps.LLMFallbacks {
			fb.AddFallback(n.Name, n.Provider)
		}
		a.logger.Info("llm fallback chain", "providers", fb.Names())
		deps.LLM = fb
	}
	if len(ps.TTSFallbacks) > 0 {
		fb := resilience.NewTTSFallback(ps.TTS.Provider, ps.TTS.Name, fbCfg)
		for _, n := range ps.TTSFallbacks {
			fb.AddFallback(n.Name, n.Provider)
		}
		a.logger.Info("tts fallback chain", "providers", fb.Names())
		deps.TTS = fb
	}

	a.closers = append(a.closers, ps.Player.Close)
	a.addClosers(ps.STT.Provider, ps.LLM.Provider, ps.TTS.Provider)
	for _, n := range ps.STTFallbacks {
		a.addClosers(n.Provider)
	}
	for _, n := range ps.LLMFallbacks {
		a.addClosers(n.Provider)
	}
	for _, n := range ps.TTSFallbacks {
		a.addClosers(n.Provider)
	}
	return deps, nil
}

// addClosers registers every provider that holds resources.
func (a *App) addClosers(providers ...any) {
	for _, p := range providers {
		if c, ok := p.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
	}
}

// fallbackConfig reports every breaker transition as a gauge and a log line.
func (a *App) fallbackConfig() resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				a.metrics.RecordCircuitState(context.Background(), name, int(to))
				a.logger.Warn("provider circuit changed", "provider", name, "from", from.String(), "to", to.String())
			},
		},
	}
}

func (a *App) initServer() {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		return
	}
	hh := health.New(health.Ready("pipeline", a.pipeline.Ready)).
		WithQueueDepths(func() map[string]int {
			u, q := a.pipeline.Pending()
			return map[string]int{pipeline.QueueUtterances: u, pipeline.QueueQuestions: q}
		})

	mux := http.NewServeMux()
	hh.Register(mux)
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}
	mux.Handle("GET /metrics", a.metricsHandler)

	a.server = &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(a.metrics, a.logger)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the ops server (when configured) and the pipeline, then blocks
// until the pipeline has stopped. Cancelling ctx starts the drain; Run
// returns nil once it is complete. A capture device that cannot be opened, or
// an ops address that cannot be bound, is returned as an error.
func (a *App) Run(ctx context.Context) error {
	if a.server != nil {
		ln, err := net.Listen("tcp", a.server.Addr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", a.server.Addr, err)
		}
		a.mu.Lock()
		a.listener = ln
		a.mu.Unlock()
		go func() {
			if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("ops server failed", "err", err)
			}
		}()
		a.logger.Info("ops server listening", "addr", ln.Addr().String())
	}

	a.logger.Info("harken running", "wake_phrase", a.gate.Phrase(), "source", a.cfg.Capture.Source)
	if err := a.pipeline.Run(ctx); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}

// Addr returns the ops server's bound address, or "" before Run or when the
// server is disabled.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Ready reports whether all pipeline stages are running.
func (a *App) Ready() bool {
	return a.pipeline.Ready()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the ops server and releases devices and providers. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))

		if a.server != nil && a.Addr() != "" {
			if err := a.server.Shutdown(ctx); err != nil {
				a.logger.Warn("ops server shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.logger.Warn("closer error", "index", i, "err", err)
			}
		}

		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// captureConfig converts the seconds-based YAML values.
func captureConfig(c config.CaptureConfig) capture.Config {
	out := capture.Config{
		EnergyThreshold: c.EnergyThreshold,
		PauseThreshold:  seconds(c.PauseThreshold),
		MaxUtterance:    seconds(c.MaxUtterance),
	}
	if c.DynamicEnergyAdjustment != nil {
		out.DynamicEnergyAdjustment = *c.DynamicEnergyAdjustment
	}
	if c.PhraseThreshold != nil {
		out.PhraseThreshold = seconds(*c.PhraseThreshold)
	}
	if c.NonSpeakingDuration != nil {
		out.NonSpeakingDuration = seconds(*c.NonSpeakingDuration)
	}
	return out
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	pc := pipeline.Config{
		Chat: pipeline.ChatConfig{
			MaxTokens:      cfg.Chat.MaxTokens,
			PromptTemplate: cfg.Chat.PromptTemplate,
			ErrorReply:     cfg.Chat.ErrorReply,
		},
		Voice: types.VoiceProfile{
			ID:          cfg.Speech.Voice,
			Language:    cfg.Speech.Language,
			Gender:      cfg.Speech.Gender,
			SpeedFactor: cfg.Speech.SpeedFactor,
		},
		Language: cfg.Transcription.Language,
		Timeouts: pipeline.Timeouts{
			Transcribe: cfg.Timeouts.Transcribe,
			Chat:       cfg.Timeouts.Chat,
			Synthesize: cfg.Timeouts.Synthesize,
		},
		Retry:          resilience.DefaultRetryConfig(),
		QueueSoftLimit: cfg.Queues.SoftLimit,
		DrainTimeout:   cfg.Server.ShutdownTimeout,
	}
	if cfg.Chat.Temperature != nil {
		pc.Chat.Temperature = *cfg.Chat.Temperature
	}
	pc.Retry.Attempts = max(cfg.Retry.Attempts, 1)
	if cfg.Retry.Backoff > 0 {
		pc.Retry.InitialDelay = cfg.Retry.Backoff
	}
	return pc
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
