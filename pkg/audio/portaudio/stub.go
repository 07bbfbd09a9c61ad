//go:build !portaudio

package portaudio

import (
	"context"
	"fmt"

	"github.com/MrWong99/harken/pkg/audio"
	"github.com/MrWong99/harken/pkg/types"
)

var errNotCompiled = fmt.Errorf("%w: portaudio support not compiled in; rebuild with -tags portaudio", audio.ErrDeviceUnavailable)

// Microphone is a stand-in used when the binary is built without PortAudio.
type Microphone struct {
	cfg Config
}

var _ audio.Source = (*Microphone)(nil)

// NewMicrophone returns a microphone whose Start always fails.
func NewMicrophone(opts ...Option) *Microphone {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Microphone{cfg: cfg}
}

// Start implements [audio.Source].
func (m *Microphone) Start(context.Context) error { return errNotCompiled }

// Read implements [audio.Source].
func (m *Microphone) Read(context.Context) (audio.AudioFrame, error) {
	return audio.AudioFrame{}, audio.ErrSourceClosed
}

// Format implements [audio.Source].
func (m *Microphone) Format() audio.Format {
	return audio.Format{SampleRate: m.cfg.sampleRate, Channels: 1}
}

// Close implements [audio.Source].
func (m *Microphone) Close() error { return nil }

// Player is a stand-in used when the binary is built without PortAudio.
type Player struct{}

var _ audio.Player = (*Player)(nil)

// NewPlayer always fails without the portaudio build tag.
func NewPlayer(...Option) (*Player, error) { return nil, errNotCompiled }

// Play implements [audio.Player].
func (*Player) Play(context.Context, *types.AudioClip) error { return errNotCompiled }

// Close implements [audio.Player].
func (*Player) Close() error { return nil }
