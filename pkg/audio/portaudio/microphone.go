//go:build portaudio

package portaudio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/harken/pkg/audio"
)

// Microphone is an [audio.Source] reading mono int16 frames from the default
// input device.
type Microphone struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	stream  *pa.Stream
	buf     []int16
	started time.Time
	read    time.Duration
	closed  bool
}

var _ audio.Source = (*Microphone)(nil)

// NewMicrophone returns an unopened microphone. The device is opened by Start.
func NewMicrophone(opts ...Option) *Microphone {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Microphone{cfg: cfg, logger: cfg.logger}
}

// Start implements [audio.Source]. It opens an exclusive stream on the
// default input device.
func (m *Microphone) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return errors.New("portaudio: microphone already started")
	}

	if err := pa.Initialize(); err != nil {
		return fmt.Errorf("%w: initialise portaudio: %w", audio.ErrDeviceUnavailable, err)
	}

	m.buf = make([]int16, m.cfg.framesPerBuffer)
	stream, err := pa.OpenDefaultStream(1, 0, float64(m.cfg.sampleRate), m.cfg.framesPerBuffer, m.buf)
	if err != nil {
		_ = pa.Terminate()
		return fmt.Errorf("%w: open input stream: %w", audio.ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return fmt.Errorf("%w: start input stream: %w", audio.ErrDeviceUnavailable, err)
	}

	m.stream = stream
	m.started = time.Now()
	m.logger.Info("microphone started",
		"sample_rate", m.cfg.sampleRate,
		"frames_per_buffer", m.cfg.framesPerBuffer,
	)
	return nil
}

// Read implements [audio.Source]. It blocks until one buffer of samples has
// been captured. Input overflows are logged and the (partially stale) buffer
// is still returned; losing a few milliseconds beats stalling capture.
func (m *Microphone) Read(ctx context.Context) (audio.AudioFrame, error) {
	if err := ctx.Err(); err != nil {
		return audio.AudioFrame{}, err
	}

	m.mu.Lock()
	stream, closed := m.stream, m.closed
	m.mu.Unlock()
	if closed || stream == nil {
		return audio.AudioFrame{}, audio.ErrSourceClosed
	}

	if err := stream.Read(); err != nil {
		if errors.Is(err, pa.InputOverflowed) {
			m.logger.Debug("microphone input overflowed")
		} else {
			m.mu.Lock()
			closed = m.closed
			m.mu.Unlock()
			if closed {
				return audio.AudioFrame{}, audio.ErrSourceClosed
			}
			return audio.AudioFrame{}, fmt.Errorf("portaudio: read: %w", err)
		}
	}

	data := make([]byte, len(m.buf)*2)
	for i, s := range m.buf {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	frame := audio.AudioFrame{
		Data:       data,
		SampleRate: m.cfg.sampleRate,
		Channels:   1,
		Timestamp:  m.read,
	}
	m.read += frame.Duration()
	return frame, nil
}

// Format implements [audio.Source].
func (m *Microphone) Format() audio.Format {
	return audio.Format{SampleRate: m.cfg.sampleRate, Channels: 1}
}

// Close implements [audio.Source]. It aborts the stream, which unblocks a
// pending Read.
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.stream == nil {
		return nil
	}
	var errs []error
	if err := m.stream.Abort(); err != nil {
		errs = append(errs, fmt.Errorf("abort stream: %w", err))
	}
	if err := m.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stream: %w", err))
	}
	if err := pa.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("terminate: %w", err))
	}
	m.logger.Info("microphone stopped", "captured", time.Since(m.started).Round(time.Second))
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("portaudio: close microphone: %w", err)
	}
	return nil
}
