//go:build portaudio

package portaudio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/harken/pkg/audio"
	"github.com/MrWong99/harken/pkg/types"
)

// Player is an [audio.Player] writing to the default output device. A new
// stream is opened per clip so the device runs at the clip's native rate.
type Player struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

var _ audio.Player = (*Player)(nil)

// NewPlayer initialises PortAudio and verifies that a default output device
// exists. Returns an error wrapping [audio.ErrDeviceUnavailable] otherwise.
func NewPlayer(opts ...Option) (*Player, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: initialise portaudio: %w", audio.ErrDeviceUnavailable, err)
	}
	dev, err := pa.DefaultOutputDevice()
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("%w: default output device: %w", audio.ErrDeviceUnavailable, err)
	}
	cfg.logger.Info("speaker ready", "device", dev.Name)
	return &Player{cfg: cfg, logger: cfg.logger}, nil
}

// Play implements [audio.Player]. It blocks until the last buffer has been
// handed to the device and the stream has drained.
func (p *Player) Play(ctx context.Context, clip *types.AudioClip) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("portaudio: player closed")
	}
	if clip == nil || len(clip.PCM) == 0 {
		return nil
	}

	frames := p.cfg.framesPerBuffer
	buf := make([]int16, frames*clip.Channels)
	stream, err := pa.OpenDefaultStream(0, clip.Channels, float64(clip.SampleRate), frames, buf)
	if err != nil {
		return fmt.Errorf("portaudio: open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start output stream: %w", err)
	}

	pcm := clip.PCM
	for off := 0; off < len(pcm); {
		if err := ctx.Err(); err != nil {
			_ = stream.Abort()
			return err
		}
		clear(buf)
		for i := range buf {
			if off+1 >= len(pcm) {
				break
			}
			buf[i] = int16(binary.LittleEndian.Uint16(pcm[off:]))
			off += 2
		}
		if err := stream.Write(); err != nil && !errors.Is(err, pa.OutputUnderflowed) {
			_ = stream.Abort()
			return fmt.Errorf("portaudio: write: %w", err)
		}
		if off+1 >= len(pcm) {
			break
		}
	}

	if err := stream.Stop(); err != nil {
		return fmt.Errorf("portaudio: stop output stream: %w", err)
	}
	return nil
}

// Close implements [audio.Player].
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := pa.Terminate(); err != nil {
		return fmt.Errorf("portaudio: terminate: %w", err)
	}
	return nil
}
