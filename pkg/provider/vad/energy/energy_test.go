package energy_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/harken/pkg/provider/vad"
	"github.com/MrWong99/harken/pkg/provider/vad/energy"
)

// constFrame returns n samples of a square wave with the given amplitude, whose
// RMS equals amp.
func constFrame(n int, amp int16) []byte {
	buf := make([]byte, n*2)
	for i := range n {
		s := amp
		if i%2 == 1 {
			s = -amp
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func newSession(t *testing.T, cfg vad.Config) *energy.Session {
	t.Helper()
	h, err := energy.New().NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return h.(*energy.Session)
}

func TestProcessFrame_Transitions(t *testing.T) {
	t.Parallel()
	s := newSession(t, vad.Config{SampleRate: 16000, EnergyThreshold: 300})

	seq := []struct {
		amp  int16
		want vad.VADEventType
	}{
		{0, vad.VADSilence},
		{100, vad.VADSilence},
		{1000, vad.VADSpeechStart},
		{800, vad.VADSpeechContinue},
		{300, vad.VADSpeechEnd}, // equal to threshold is not speech
		{50, vad.VADSilence},
		{301, vad.VADSpeechStart},
	}
	for i, step := range seq {
		ev, err := s.ProcessFrame(constFrame(160, step.amp))
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if ev.Type != step.want {
			t.Errorf("step %d (amp %d): type = %v, want %v", i, step.amp, ev.Type, step.want)
		}
		if ev.Energy != float64(step.amp) {
			t.Errorf("step %d: energy = %v, want %d", i, ev.Energy, step.amp)
		}
	}
}

func TestDynamicThreshold_TracksAmbientNoise(t *testing.T) {
	t.Parallel()
	s := newSession(t, vad.Config{SampleRate: 16000, EnergyThreshold: 300, DynamicThreshold: true})

	// Steady ambient noise at 100 pulls the threshold toward 100*1.5.
	if _, err := s.ProcessFrame(constFrame(1600, 100)); err != nil {
		t.Fatal(err)
	}
	start := s.Threshold()
	if start >= 300 {
		t.Fatalf("threshold after quiet frame = %v, want < 300", start)
	}
	for range 200 {
		if _, err := s.ProcessFrame(constFrame(1600, 100)); err != nil {
			t.Fatal(err)
		}
	}
	if got := s.Threshold(); got < 149 || got > 151 {
		t.Errorf("threshold after long quiet = %v, want ≈150", got)
	}
}

func TestDynamicThreshold_FrozenDuringSpeech(t *testing.T) {
	t.Parallel()
	s := newSession(t, vad.Config{SampleRate: 16000, EnergyThreshold: 300, DynamicThreshold: true})

	if _, err := s.ProcessFrame(constFrame(1600, 2000)); err != nil {
		t.Fatal(err)
	}
	if got := s.Threshold(); got != 300 {
		t.Errorf("threshold changed during speech: %v", got)
	}
}

func TestHoldAdaptation(t *testing.T) {
	t.Parallel()
	s := newSession(t, vad.Config{SampleRate: 16000, EnergyThreshold: 300, DynamicThreshold: true})

	s.HoldAdaptation(true)
	for range 10 {
		if _, err := s.ProcessFrame(constFrame(1600, 10)); err != nil {
			t.Fatal(err)
		}
	}
	if got := s.Threshold(); got != 300 {
		t.Fatalf("threshold moved while held: %v", got)
	}

	s.HoldAdaptation(false)
	if _, err := s.ProcessFrame(constFrame(1600, 10)); err != nil {
		t.Fatal(err)
	}
	if got := s.Threshold(); got >= 300 {
		t.Errorf("threshold after release = %v, want < 300", got)
	}

	s.HoldAdaptation(true)
	s.Reset()
	if _, err := s.ProcessFrame(constFrame(1600, 10)); err != nil {
		t.Fatal(err)
	}
	if got := s.Threshold(); got >= 300 {
		t.Errorf("Reset should release the hold, threshold = %v", got)
	}
}

func TestStaticThreshold_NeverMoves(t *testing.T) {
	t.Parallel()
	s := newSession(t, vad.Config{SampleRate: 16000, EnergyThreshold: 300})
	for range 50 {
		if _, err := s.ProcessFrame(constFrame(1600, 10)); err != nil {
			t.Fatal(err)
		}
	}
	if got := s.Threshold(); got != 300 {
		t.Errorf("threshold = %v, want 300", got)
	}
}

func TestReset_RestoresThreshold(t *testing.T) {
	t.Parallel()
	s := newSession(t, vad.Config{SampleRate: 16000, EnergyThreshold: 300, DynamicThreshold: true})
	for range 20 {
		_, _ = s.ProcessFrame(constFrame(1600, 10))
	}
	s.Reset()
	if got := s.Threshold(); got != 300 {
		t.Errorf("threshold after Reset = %v, want 300", got)
	}
}

func TestProcessFrame_Errors(t *testing.T) {
	t.Parallel()
	s := newSession(t, vad.Config{SampleRate: 16000, FrameSizeMs: 10, EnergyThreshold: 300})

	if _, err := s.ProcessFrame([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for odd byte count")
	}
	if _, err := s.ProcessFrame(constFrame(100, 0)); err == nil {
		t.Error("expected error for wrong frame size")
	}
	if _, err := s.ProcessFrame(constFrame(160, 0)); err != nil {
		t.Errorf("unexpected error for correct frame size: %v", err)
	}

	_ = s.Close()
	if _, err := s.ProcessFrame(constFrame(160, 0)); !errors.Is(err, energy.ErrSessionClosed) {
		t.Errorf("err after Close = %v, want ErrSessionClosed", err)
	}
}

func TestNewSession_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  vad.Config
	}{
		{"zero sample rate", vad.Config{EnergyThreshold: 300}},
		{"zero threshold", vad.Config{SampleRate: 16000}},
		{"bad damping", vad.Config{SampleRate: 16000, EnergyThreshold: 300, DynamicThreshold: true, DynamicDamping: 1.5}},
		{"bad ratio", vad.Config{SampleRate: 16000, EnergyThreshold: 300, DynamicThreshold: true, DynamicRatio: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := energy.New().NewSession(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}
