// Package wavfile provides an [audio.Source] that replays WAV recordings as if
// they were coming from a microphone. It is used for offline runs and
// reproducible end-to-end tests of the capture path.
package wavfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/harken/pkg/audio"
)

// Source replays one or more WAV files in order, converted to the target
// format and cut into fixed-size frames. A configurable gap of digital silence
// follows each file so the endpointer sees the end of every recording.
type Source struct {
	paths           []string
	target          audio.Format
	framesPerBuffer int
	gap             time.Duration
	realtime        bool

	mu      sync.Mutex
	pending []byte
	next    int
	elapsed time.Duration
	started bool
	closed  bool
}

var _ audio.Source = (*Source)(nil)

// Option configures a [Source].
type Option func(*Source)

// WithFormat sets the output format. Default: 16000 Hz mono.
func WithFormat(f audio.Format) Option {
	return func(s *Source) { s.target = f }
}

// WithFramesPerBuffer sets the frame size in samples. Default: 1024.
func WithFramesPerBuffer(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.framesPerBuffer = n
		}
	}
}

// WithTrailingSilence sets the silence appended after each file. Default: 1s.
func WithTrailingSilence(d time.Duration) Option {
	return func(s *Source) {
		if d >= 0 {
			s.gap = d
		}
	}
}

// WithRealtime paces Read to the frame duration, mimicking a live device.
func WithRealtime(on bool) Option {
	return func(s *Source) { s.realtime = on }
}

// New returns a Source for path. If path is a directory, every *.wav file in
// it is replayed in lexical order.
func New(path string, opts ...Option) (*Source, error) {
	if path == "" {
		return nil, errors.New("wavfile: path must not be empty")
	}
	s := &Source{
		target:          audio.Format{SampleRate: 16000, Channels: 1},
		framesPerBuffer: 1024,
		gap:             time.Second,
	}
	for _, o := range opts {
		o(s)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: stat %q: %w", path, err)
	}
	if !info.IsDir() {
		s.paths = []string{path}
		return s, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: read dir %q: %w", path, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
			continue
		}
		s.paths = append(s.paths, filepath.Join(path, e.Name()))
	}
	slices.Sort(s.paths)
	if len(s.paths) == 0 {
		return nil, fmt.Errorf("wavfile: no .wav files in %q", path)
	}
	return s, nil
}

// Start implements [audio.Source]. Every file is decoded up front so that a
// corrupt recording fails at startup like an unavailable device would.
func (s *Source) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("wavfile: already started")
	}

	conv := audio.FormatConverter{Target: s.target}
	silence := make([]byte, int(s.gap.Seconds()*float64(s.target.SampleRate))*2*s.target.Channels)
	for _, p := range s.paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("%w: wavfile: read %q: %w", audio.ErrDeviceUnavailable, p, err)
		}
		clip, err := audio.DecodeWAV(raw)
		if err != nil {
			return fmt.Errorf("%w: wavfile: decode %q: %w", audio.ErrDeviceUnavailable, p, err)
		}
		frame := conv.Convert(audio.AudioFrame{
			Data:       clip.PCM,
			SampleRate: clip.SampleRate,
			Channels:   clip.Channels,
		})
		s.pending = append(s.pending, frame.Data...)
		s.pending = append(s.pending, silence...)
	}
	s.started = true
	return nil
}

// Read implements [audio.Source]. The final frame is zero-padded to full size.
func (s *Source) Read(ctx context.Context) (audio.AudioFrame, error) {
	if err := ctx.Err(); err != nil {
		return audio.AudioFrame{}, err
	}

	s.mu.Lock()
	if s.closed || !s.started || s.next >= len(s.pending) {
		s.mu.Unlock()
		return audio.AudioFrame{}, audio.ErrSourceClosed
	}
	size := s.framesPerBuffer * 2 * s.target.Channels
	data := make([]byte, size)
	n := copy(data, s.pending[s.next:])
	s.next += n
	frame := audio.AudioFrame{
		Data:       data,
		SampleRate: s.target.SampleRate,
		Channels:   s.target.Channels,
		Timestamp:  s.elapsed,
	}
	s.elapsed += frame.Duration()
	realtime := s.realtime
	s.mu.Unlock()

	if realtime {
		t := time.NewTimer(frame.Duration())
		defer t.Stop()
		select {
		case <-ctx.Done():
			return audio.AudioFrame{}, ctx.Err()
		case <-t.C:
		}
	}
	return frame, nil
}

// Format implements [audio.Source].
func (s *Source) Format() audio.Format {
	return s.target
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pending = nil
	return nil
}
