// Package pipeline runs Harken's three long-lived stages and the two queues
// between them:
//
//	capture ──[utterances]──▶ transcribe + wake gate ──[questions]──▶ respond
//
// Each stage is a single goroutine so work inside a stage is strictly serial.
// Queues are unbounded: a slow transcriber or a long reply never stalls the
// microphone. A failure while handling one item is logged and counted; it
// never ends the stage. Only a capture source that cannot be opened (or keeps
// failing) is fatal and returned from [Pipeline.Run].
//
// Shutdown is a drain: when the context passed to Run is cancelled, capture
// flushes its last phrase and closes the utterance queue, transcription works
// through what is buffered and closes the question queue, and the responder
// answers what is left. [Config.DrainTimeout] bounds the drain; once it
// expires in-flight provider calls are cancelled.
package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/harken/internal/observe"
	"github.com/MrWong99/harken/internal/queue"
	"github.com/MrWong99/harken/internal/resilience"
	"github.com/MrWong99/harken/internal/wake"
	"github.com/MrWong99/harken/pkg/audio"
	"github.com/MrWong99/harken/pkg/provider/llm"
	"github.com/MrWong99/harken/pkg/provider/stt"
	"github.com/MrWong99/harken/pkg/provider/tts"
	"github.com/MrWong99/harken/pkg/types"
)

// Stage names used in logs, spans and metrics.
const (
	StageCapture    = "capture"
	StageTranscribe = "transcribe"
	StageRespond    = "respond"
)

// Queue names used in the queue depth gauge.
const (
	QueueUtterances = "utterances"
	QueueQuestions  = "questions"
)

// DefaultPromptTemplate wraps a question for a completion-style model.
const DefaultPromptTemplate = "Q: %s?\nA:"

// Capturer produces utterances until ctx is cancelled or its source ends.
// It is satisfied by *capture.Capturer.
type Capturer interface {
	Run(ctx context.Context, emit func(types.Utterance)) error
}

// ChatConfig controls how a question becomes a chat request.
type ChatConfig struct {
	// MaxTokens caps the reply length.
	MaxTokens int

	// Temperature is the sampling temperature sent with every request.
	Temperature float64

	// PromptTemplate is a fmt template with exactly one %s for the question.
	// Empty selects [DefaultPromptTemplate].
	PromptTemplate string

	// ErrorReply is spoken in place of a reply when the chat call fails.
	// Empty means stay silent.
	ErrorReply string
}

// Prompt formats question with the configured template.
func (c ChatConfig) Prompt(question string) string {
	tmpl := c.PromptTemplate
	if tmpl == "" {
		tmpl = DefaultPromptTemplate
	}
	return fmt.Sprintf(tmpl, question)
}

// Timeouts bound a single provider call. Zero disables the limit.
type Timeouts struct {
	Transcribe time.Duration
	Chat       time.Duration
	Synthesize time.Duration
}

// Config is the immutable runtime configuration of a [Pipeline].
type Config struct {
	Chat     ChatConfig
	Voice    types.VoiceProfile
	Language string
	Timeouts Timeouts

	// Retry applies to transcription, chat and synthesis calls. Its
	// AttemptTimeout is replaced by the matching entry in Timeouts.
	Retry resilience.RetryConfig

	// QueueSoftLimit logs a warning when a queue grows past this many items.
	// Zero disables the warning. Queues never block regardless.
	QueueSoftLimit int

	// DrainTimeout bounds the drain after Run's context is cancelled.
	// Zero waits for the drain to finish.
	DrainTimeout time.Duration
}

// Deps are the collaborators a [Pipeline] drives.
type Deps struct {
	Capturer Capturer
	Gate     *wake.Gate
	STT      stt.Provider
	LLM      llm.Provider
	TTS      tts.Provider
	Player   audio.Player

	// Provider names for metric attributes. Empty names fall back to the
	// capability kind.
	STTName, LLMName, TTSName string
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline owns the stages and queues. Run it once.
type Pipeline struct {
	cfg     Config
	deps    Deps
	logger  *slog.Logger
	metrics *observe.Metrics

	utterances *queue.Queue[types.Utterance]
	questions  *queue.Queue[types.Question]

	running atomic.Int32
	started atomic.Bool
}

// New validates deps and returns a Pipeline ready to Run.
func New(cfg Config, deps Deps, opts ...Option) (*Pipeline, error) {
	var errs []error
	if deps.Capturer == nil {
		errs = append(errs, errors.New("capturer is required"))
	}
	if deps.Gate == nil {
		errs = append(errs, errors.New("wake gate is required"))
	}
	if deps.STT == nil {
		errs = append(errs, errors.New("stt provider is required"))
	}
	if deps.LLM == nil {
		errs = append(errs, errors.New("llm provider is required"))
	}
	if deps.TTS == nil {
		errs = append(errs, errors.New("tts provider is required"))
	}
	if deps.Player == nil {
		errs = append(errs, errors.New("player is required"))
	}
	if tmpl := cfg.Chat.PromptTemplate; tmpl != "" && strings.Count(tmpl, "%s") != 1 {
		errs = append(errs, fmt.Errorf("prompt template %q must contain exactly one %%s", tmpl))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	deps.STTName = cmp.Or(deps.STTName, "stt")
	deps.LLMName = cmp.Or(deps.LLMName, "llm")
	deps.TTSName = cmp.Or(deps.TTSName, "tts")

	p := &Pipeline{
		cfg:    cfg,
		deps:   deps,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}

	p.utterances = queue.New[types.Utterance](queue.WithLenObserver(p.depthObserver(QueueUtterances)))
	p.questions = queue.New[types.Question](queue.WithLenObserver(p.depthObserver(QueueQuestions)))
	return p, nil
}

// Run starts the three stages and blocks until all of them have returned.
// Cancelling ctx starts the drain described in the package documentation;
// Run then returns nil. A fatal capture error is returned after the other
// stages have drained.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return errors.New("pipeline: already started")
	}

	// Work outlives ctx so queued items can still be answered.
	work, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	if p.cfg.DrainTimeout > 0 {
		stop := context.AfterFunc(ctx, func() {
			time.AfterFunc(p.cfg.DrainTimeout, cancelWork)
		})
		defer stop()
	}

	var g errgroup.Group
	g.Go(p.stage(StageCapture, func() error { return p.runCapture(ctx) }))
	g.Go(p.stage(StageTranscribe, func() error { return p.runTranscribe(work) }))
	g.Go(p.stage(StageRespond, func() error { return p.runRespond(work) }))

	err := g.Wait()
	if err != nil {
		p.logger.Error("pipeline stopped", "err", err)
		return err
	}
	p.logger.Info("pipeline stopped")
	return nil
}

// Ready reports whether all three stages are running.
func (p *Pipeline) Ready() bool {
	return p.running.Load() == 3
}

// Pending returns the number of buffered utterances and questions.
func (p *Pipeline) Pending() (utterances, questions int) {
	return p.utterances.Len(), p.questions.Len()
}

func (p *Pipeline) stage(name string, fn func() error) func() error {
	return func() error {
		ctx := context.Background()
		attrs := metric.WithAttributes(observe.Attr("stage", name))
		p.running.Add(1)
		p.metrics.StagesRunning.Add(ctx, 1, attrs)
		p.logger.Debug("stage started", "stage", name)
		defer func() {
			p.running.Add(-1)
			p.metrics.StagesRunning.Add(ctx, -1, attrs)
			p.logger.Debug("stage stopped", "stage", name)
		}()
		return fn()
	}
}

// runCapture feeds the utterance queue and closes it when capture ends.
func (p *Pipeline) runCapture(ctx context.Context) error {
	defer p.utterances.Close()

	err := p.deps.Capturer.Run(ctx, func(u types.Utterance) {
		p.metrics.Utterances.Add(ctx, 1)
		p.metrics.UtteranceAudio.Record(ctx, u.Duration().Seconds())
		if err := p.utterances.Push(u); err != nil {
			p.logger.Warn("utterance dropped", "utterance_id", u.ID, "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("pipeline: capture: %w", err)
	}
	return nil
}

// runTranscribe turns utterances into questions, one at a time, and closes
// the question queue once the utterance queue is drained.
func (p *Pipeline) runTranscribe(ctx context.Context) error {
	defer p.questions.Close()
	for {
		u, err := p.utterances.Pop(ctx)
		if err != nil {
			return nil
		}
		p.transcribe(ctx, u)
	}
}

func (p *Pipeline) transcribe(ctx context.Context, u types.Utterance) {
	ctx, span := observe.StartItemSpan(ctx, StageTranscribe, u.ID)
	defer span.End()
	log := observe.Logger(ctx, p.logger).With("utterance_id", u.ID)

	start := time.Now()
	var result types.Transcript
	err := resilience.Retry(ctx, p.retry(p.cfg.Timeouts.Transcribe), func(ctx context.Context) error {
		var err error
		result, err = p.deps.STT.Transcribe(ctx, u.Samples, stt.Options{
			SampleRate: u.SampleRate,
			Language:   p.cfg.Language,
		})
		return err
	})
	observe.ObserveDuration(ctx, p.metrics.TranscribeDuration, start, observe.Attr("provider", p.deps.STTName))
	p.metrics.RecordProviderRequest(ctx, p.deps.STTName, "stt", err)
	if err != nil {
		span.RecordError(err)
		p.metrics.RecordTranscript(ctx, observe.OutcomeError)
		log.Error("transcription failed", "err", err)
		return
	}
	log.Debug("predicted text", "text", result.Text, "language", result.Language)

	question, heard := p.deps.Gate.Detect(result.Text)
	switch {
	case !heard:
		p.metrics.RecordTranscript(ctx, observe.OutcomeNoWake)
		log.Debug("wake phrase not detected, ignoring")
		return
	case question == "":
		p.metrics.RecordTranscript(ctx, observe.OutcomeWakeOnly)
		log.Debug("wake phrase without a question, ignoring")
		return
	}

	q := types.Question{
		ID:         u.ID,
		Text:       question,
		Transcript: result.Text,
		HeardAt:    u.CapturedAt,
	}
	if err := p.questions.Push(q); err != nil {
		log.Warn("question dropped", "err", err)
		return
	}
	p.metrics.RecordTranscript(ctx, observe.OutcomeForwarded)
	log.Debug("question queued", "question", q.Text)
}

// runRespond answers questions one at a time until the question queue is
// drained.
func (p *Pipeline) runRespond(ctx context.Context) error {
	for {
		q, err := p.questions.Pop(ctx)
		if err != nil {
			return nil
		}
		p.respond(ctx, q)
	}
}

func (p *Pipeline) respond(ctx context.Context, q types.Question) {
	ctx, span := observe.StartItemSpan(ctx, StageRespond, q.ID)
	defer span.End()
	log := observe.Logger(ctx, p.logger).With("utterance_id", q.ID)

	outcome := observe.ReplySpoken
	reply, err := p.chat(ctx, log, q)
	if err != nil {
		span.RecordError(err)
		log.Error("chat failed", "err", err)
		if p.cfg.Chat.ErrorReply == "" {
			p.metrics.RecordReply(ctx, observe.ReplySkipped)
			return
		}
		reply, outcome = p.cfg.Chat.ErrorReply, observe.ReplyErrorReply
	}

	clip, err := p.synthesize(ctx, reply)
	if err != nil {
		span.RecordError(err)
		p.metrics.RecordReply(ctx, observe.ReplySkipped)
		log.Error("speech synthesis failed, skipping playback", "err", err)
		return
	}

	if !q.HeardAt.IsZero() {
		p.metrics.ResponseLatency.Record(ctx, time.Since(q.HeardAt).Seconds())
	}
	start := time.Now()
	err = p.deps.Player.Play(ctx, clip)
	observe.ObserveDuration(ctx, p.metrics.PlaybackDuration, start)
	if err != nil {
		span.RecordError(err)
		p.metrics.RecordReply(ctx, observe.ReplySkipped)
		log.Error("playback failed", "err", err)
		return
	}
	p.metrics.RecordReply(ctx, outcome)
	log.Debug("reply spoken", "duration", clip.Duration())
}

func (p *Pipeline) chat(ctx context.Context, log *slog.Logger, q types.Question) (string, error) {
	req := llm.UserPrompt(p.cfg.Chat.Prompt(q.Text), p.cfg.Chat.Temperature, p.cfg.Chat.MaxTokens)
	log.Debug("sending question", "question", q.Text)

	start := time.Now()
	var resp *llm.CompletionResponse
	err := resilience.Retry(ctx, p.retry(p.cfg.Timeouts.Chat), func(ctx context.Context) error {
		var err error
		resp, err = p.deps.LLM.Complete(ctx, req)
		if errors.Is(err, llm.ErrEmptyReply) {
			return resilience.Permanent(err)
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(resp.Content) == "" {
			return resilience.Permanent(llm.ErrEmptyReply)
		}
		return nil
	})
	observe.ObserveDuration(ctx, p.metrics.ChatDuration, start, observe.Attr("provider", p.deps.LLMName))
	p.metrics.RecordProviderRequest(ctx, p.deps.LLMName, "llm", err)
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(resp.Content)
	log.Debug("received answer", "answer", reply, "model", resp.Model, "finish_reason", resp.FinishReason)
	return reply, nil
}

func (p *Pipeline) synthesize(ctx context.Context, text string) (*types.AudioClip, error) {
	start := time.Now()
	var clip *types.AudioClip
	err := resilience.Retry(ctx, p.retry(p.cfg.Timeouts.Synthesize), func(ctx context.Context) error {
		var err error
		clip, err = p.deps.TTS.Synthesize(ctx, text, p.cfg.Voice)
		if errors.Is(err, tts.ErrEmptyText) {
			return resilience.Permanent(err)
		}
		return err
	})
	observe.ObserveDuration(ctx, p.metrics.SynthesizeDuration, start, observe.Attr("provider", p.deps.TTSName))
	p.metrics.RecordProviderRequest(ctx, p.deps.TTSName, "tts", err)
	if err != nil {
		return nil, err
	}
	if clip == nil || len(clip.PCM) == 0 {
		return nil, errors.New("pipeline: synthesizer returned no audio")
	}
	return clip, nil
}

func (p *Pipeline) retry(timeout time.Duration) resilience.RetryConfig {
	rc := p.cfg.Retry
	rc.AttemptTimeout = timeout
	return rc
}

// depthObserver records the queue depth gauge and warns once each time the
// queue crosses the soft limit. It runs under the queue lock.
func (p *Pipeline) depthObserver(name string) func(int) {
	var warned atomic.Bool
	return func(n int) {
		p.metrics.RecordQueueDepth(context.Background(), name, n)
		limit := p.cfg.QueueSoftLimit
		if limit <= 0 {
			return
		}
		if n > limit {
			if !warned.Swap(true) {
				p.logger.Warn("queue above soft limit", "queue", name, "depth", n, "soft_limit", limit)
			}
		} else if n <= limit/2 {
			warned.Store(false)
		}
	}
}
