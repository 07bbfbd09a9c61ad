// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Player] for use in unit tests.
//
// Both mocks are safe for concurrent use. They record every call so that
// tests can assert on call counts and arguments, and they expose exported
// fields that the test sets to control behaviour.
//
// Typical usage:
//
//	src := &mock.Source{Frames: frames}
//	player := &mock.Player{}
//	// run the pipeline ...
//	if got := player.PlayCount(); got != 1 { ... }
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/harken/pkg/audio"
	"github.com/MrWong99/harken/pkg/types"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source] that replays Frames.
type Source struct {
	mu sync.Mutex

	// Frames are returned by Read in order.
	Frames []audio.AudioFrame

	// SourceFormat is returned by Format. Defaults to 16000 Hz mono.
	SourceFormat audio.Format

	// StartErr is returned by Start.
	StartErr error

	// ReadErr, if set, is returned by Read instead of the next frame.
	ReadErr error

	// HoldOpen makes Read block until ctx is cancelled or Close is called once
	// Frames is exhausted, instead of returning [audio.ErrSourceClosed]
	// immediately. This mimics a live microphone.
	HoldOpen bool

	// StartCalls, ReadCalls and CloseCalls count invocations.
	StartCalls int
	ReadCalls  int
	CloseCalls int

	next   int
	done   chan struct{}
	closed bool
}

var _ audio.Source = (*Source)(nil)

func (s *Source) doneCh() chan struct{} {
	if s.done == nil {
		s.done = make(chan struct{})
	}
	return s.done
}

// Start implements [audio.Source].
func (s *Source) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCalls++
	s.doneCh()
	return s.StartErr
}

// Read implements [audio.Source].
func (s *Source) Read(ctx context.Context) (audio.AudioFrame, error) {
	s.mu.Lock()
	s.ReadCalls++
	if s.ReadErr != nil {
		err := s.ReadErr
		s.mu.Unlock()
		return audio.AudioFrame{}, err
	}
	if s.closed {
		s.mu.Unlock()
		return audio.AudioFrame{}, audio.ErrSourceClosed
	}
	if s.next < len(s.Frames) {
		f := s.Frames[s.next]
		s.next++
		s.mu.Unlock()
		return f, nil
	}
	hold, done := s.HoldOpen, s.doneCh()
	s.mu.Unlock()

	if !hold {
		return audio.AudioFrame{}, audio.ErrSourceClosed
	}
	select {
	case <-ctx.Done():
		return audio.AudioFrame{}, ctx.Err()
	case <-done:
		return audio.AudioFrame{}, audio.ErrSourceClosed
	}
}

// Format implements [audio.Source].
func (s *Source) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SourceFormat.SampleRate == 0 {
		return audio.Format{SampleRate: 16000, Channels: 1}
	}
	return s.SourceFormat
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	if !s.closed {
		s.closed = true
		close(s.doneCh())
	}
	return nil
}

// ─── Player ───────────────────────────────────────────────────────────────────

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayErr is returned by every Play call.
	PlayErr error

	// PlayFunc, if set, is invoked inside Play (after recording the call) and
	// its result returned. Use it to simulate slow playback.
	PlayFunc func(ctx context.Context, clip *types.AudioClip) error

	// Played records every clip passed to Play, in order.
	Played []*types.AudioClip

	// CloseCalls counts Close invocations.
	CloseCalls int
}

var _ audio.Player = (*Player)(nil)

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, clip *types.AudioClip) error {
	p.mu.Lock()
	p.Played = append(p.Played, clip)
	fn, err := p.PlayFunc, p.PlayErr
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, clip)
	}
	return err
}

// Close implements [audio.Player].
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCalls++
	return nil
}

// PlayCount returns the number of Play calls so far.
func (p *Player) PlayCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Played)
}

// Clips returns a copy of the clips played so far.
func (p *Player) Clips() []*types.AudioClip {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*types.AudioClip(nil), p.Played...)
}
