// Package capture implements the audio capture stage: it reads frames from an
// exclusive [audio.Source], classifies them with a VAD session, endpoints
// phrases on trailing silence and emits each finished phrase as a
// [types.Utterance] of normalised float samples.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/harken/pkg/audio"
	"github.com/MrWong99/harken/pkg/provider/vad"
	"github.com/MrWong99/harken/pkg/types"
)

// SampleRate is the rate utterances are emitted at. Frames from sources with
// a different format are converted.
const SampleRate = 16000

// maxConsecutiveReadErrors bounds how long a failing device is retried before
// the stage gives up.
const maxConsecutiveReadErrors = 10

// Config holds the endpointing parameters. EnergyThreshold and PauseThreshold
// have no defaults and must be set explicitly.
type Config struct {
	// EnergyThreshold is the minimum RMS energy (int16 units) for a frame to
	// count as speech.
	EnergyThreshold float64

	// PauseThreshold is the trailing silence that ends a phrase.
	PauseThreshold time.Duration

	// DynamicEnergyAdjustment lets the threshold track ambient noise.
	DynamicEnergyAdjustment bool

	// PhraseThreshold is the minimum voiced audio for a phrase to be kept.
	PhraseThreshold time.Duration

	// NonSpeakingDuration is the silence kept on both ends of a phrase.
	// Must not exceed PauseThreshold.
	NonSpeakingDuration time.Duration

	// MaxUtterance force-ends a phrase after this long. Zero disables.
	MaxUtterance time.Duration
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.EnergyThreshold <= 0 {
		errs = append(errs, fmt.Errorf("capture: energy threshold must be positive, got %v", c.EnergyThreshold))
	}
	if c.PauseThreshold <= 0 {
		errs = append(errs, fmt.Errorf("capture: pause threshold must be positive, got %v", c.PauseThreshold))
	}
	if c.PhraseThreshold < 0 {
		errs = append(errs, fmt.Errorf("capture: phrase threshold must not be negative, got %v", c.PhraseThreshold))
	}
	if c.NonSpeakingDuration < 0 || c.NonSpeakingDuration > c.PauseThreshold {
		errs = append(errs, fmt.Errorf("capture: non-speaking duration must be within [0, pause threshold], got %v", c.NonSpeakingDuration))
	}
	if c.MaxUtterance < 0 {
		errs = append(errs, fmt.Errorf("capture: max utterance must not be negative, got %v", c.MaxUtterance))
	}
	return errors.Join(errs...)
}

// Option configures a [Capturer].
type Option func(*Capturer)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Capturer) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithReadRetryDelay sets the pause between retries after a failed device
// read. Default: 100ms.
func WithReadRetryDelay(d time.Duration) Option {
	return func(c *Capturer) { c.retryDelay = d }
}

// Capturer owns the capture device for its lifetime.
type Capturer struct {
	src        audio.Source
	engine     vad.Engine
	cfg        Config
	logger     *slog.Logger
	retryDelay time.Duration
}

// New validates cfg and returns a Capturer reading from src.
func New(src audio.Source, engine vad.Engine, cfg Config, opts ...Option) (*Capturer, error) {
	if src == nil {
		return nil, errors.New("capture: source must not be nil")
	}
	if engine == nil {
		return nil, errors.New("capture: vad engine must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Capturer{
		src:        src,
		engine:     engine,
		cfg:        cfg,
		logger:     slog.Default(),
		retryDelay: 100 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Run opens the source and emits one Utterance per endpointed phrase until
// ctx is cancelled or the source is exhausted, in which case it returns nil.
// emit must not block. A source that cannot be opened, or that keeps failing,
// is fatal.
func (c *Capturer) Run(ctx context.Context, emit func(types.Utterance)) error {
	if err := c.src.Start(ctx); err != nil {
		return fmt.Errorf("capture: open source: %w", err)
	}
	defer c.src.Close()

	sess, err := c.engine.NewSession(vad.Config{
		SampleRate:       SampleRate,
		EnergyThreshold:  c.cfg.EnergyThreshold,
		DynamicThreshold: c.cfg.DynamicEnergyAdjustment,
	})
	if err != nil {
		return fmt.Errorf("capture: create vad session: %w", err)
	}
	defer sess.Close()

	ep, err := NewEndpointer(c.cfg, sess)
	if err != nil {
		return err
	}
	conv := &audio.FormatConverter{Target: audio.Format{SampleRate: SampleRate, Channels: 1}}

	c.logger.Info("listening", "format", c.src.Format().String())

	failures := 0
	for {
		frame, err := c.src.Read(ctx)
		switch {
		case err == nil:
			failures = 0
		case errors.Is(err, audio.ErrSourceClosed), ctx.Err() != nil:
			if pcm, ok := ep.Flush(); ok {
				c.emit(emit, pcm)
			}
			return nil
		default:
			failures++
			if failures >= maxConsecutiveReadErrors {
				return fmt.Errorf("capture: read source: %w", err)
			}
			c.logger.Warn("audio read failed", "err", err, "consecutive", failures)
			select {
			case <-ctx.Done():
			case <-time.After(c.retryDelay):
			}
			continue
		}

		pcm, done, err := ep.Push(conv.Convert(frame))
		if err != nil {
			c.logger.Warn("dropping frame", "err", err)
			continue
		}
		if done {
			c.emit(emit, pcm)
		}
	}
}

func (c *Capturer) emit(emit func(types.Utterance), pcm []byte) {
	u := types.Utterance{
		ID:         uuid.NewString(),
		Samples:    audio.PCM16ToFloat32(pcm),
		SampleRate: SampleRate,
		CapturedAt: time.Now(),
	}
	c.logger.Debug("audio recorded", "utterance_id", u.ID, "duration", u.Duration())
	emit(u)
}
