// Package energy implements [vad.Engine] with an RMS energy detector.
//
// A frame counts as speech when its RMS energy exceeds the session threshold.
// With [vad.Config.DynamicThreshold] enabled the threshold follows ambient
// noise while no one is speaking:
//
//	damping   = DynamicDamping ^ frameSeconds
//	target    = energy * DynamicRatio
//	threshold = threshold*damping + target*(1-damping)
//
// Adaptation runs only on silent frames while the session is not held (see
// [Session.HoldAdaptation]), so a speaker's voice and the pauses between
// their words never move the bar mid-phrase.
package energy

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/MrWong99/harken/pkg/audio"
	"github.com/MrWong99/harken/pkg/provider/vad"
)

// Defaults for dynamic threshold adjustment.
const (
	DefaultDamping = 0.15
	DefaultRatio   = 1.5
)

// ErrSessionClosed is returned by ProcessFrame after Close.
var ErrSessionClosed = errors.New("energy: session closed")

// Engine creates energy-based VAD sessions. The zero value is ready to use.
type Engine struct{}

var _ vad.Engine = Engine{}

// New returns an Engine.
func New() Engine { return Engine{} }

// NewSession implements [vad.Engine].
func (Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.EnergyThreshold <= 0 {
		return nil, fmt.Errorf("energy: energy threshold must be positive, got %v", cfg.EnergyThreshold)
	}
	if cfg.DynamicThreshold {
		if cfg.DynamicDamping == 0 {
			cfg.DynamicDamping = DefaultDamping
		}
		if cfg.DynamicRatio == 0 {
			cfg.DynamicRatio = DefaultRatio
		}
		if cfg.DynamicDamping <= 0 || cfg.DynamicDamping >= 1 {
			return nil, fmt.Errorf("energy: dynamic damping must be in (0, 1), got %v", cfg.DynamicDamping)
		}
		if cfg.DynamicRatio <= 1 {
			return nil, fmt.Errorf("energy: dynamic ratio must be > 1, got %v", cfg.DynamicRatio)
		}
	}
	return &Session{cfg: cfg, threshold: cfg.EnergyThreshold}, nil
}

// Session is a single-stream energy detector.
type Session struct {
	cfg vad.Config

	mu        sync.Mutex
	threshold float64
	speaking  bool
	held      bool
	closed    bool
}

var (
	_ vad.SessionHandle    = (*Session)(nil)
	_ vad.AdaptationHolder = (*Session)(nil)
)

// ProcessFrame implements [vad.SessionHandle].
func (s *Session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	if len(frame)%2 != 0 {
		return vad.VADEvent{}, fmt.Errorf("energy: frame has odd byte count %d", len(frame))
	}
	if s.cfg.FrameSizeMs > 0 {
		want := s.cfg.SampleRate * s.cfg.FrameSizeMs / 1000 * 2
		if len(frame) != want {
			return vad.VADEvent{}, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), want)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, ErrSessionClosed
	}

	energy := audio.RMS16(frame)
	ev := vad.VADEvent{Energy: energy, Threshold: s.threshold}

	switch loud := energy > s.threshold; {
	case loud && !s.speaking:
		s.speaking = true
		ev.Type = vad.VADSpeechStart
	case loud:
		ev.Type = vad.VADSpeechContinue
	case s.speaking:
		s.speaking = false
		ev.Type = vad.VADSpeechEnd
	default:
		ev.Type = vad.VADSilence
		if !s.held {
			s.adapt(energy, len(frame)/2)
		}
	}
	return ev, nil
}

// adapt moves the threshold toward the ambient level. Caller holds s.mu.
func (s *Session) adapt(energy float64, samples int) {
	if !s.cfg.DynamicThreshold || samples == 0 {
		return
	}
	seconds := float64(samples) / float64(s.cfg.SampleRate)
	damping := math.Pow(s.cfg.DynamicDamping, seconds)
	target := energy * s.cfg.DynamicRatio
	s.threshold = s.threshold*damping + target*(1-damping)
}

// HoldAdaptation implements [vad.AdaptationHolder].
func (s *Session) HoldAdaptation(hold bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held = hold
}

// Threshold returns the current speech threshold.
func (s *Session) Threshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threshold
}

// Reset implements [vad.SessionHandle].
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = false
	s.held = false
	s.threshold = s.cfg.EnergyThreshold
}

// Close implements [vad.SessionHandle].
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
