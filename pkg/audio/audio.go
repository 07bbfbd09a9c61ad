// Package audio defines Harken's device-facing audio abstractions and the PCM
// helpers shared by the capture and playback paths.
//
// The two primary abstractions are:
//
//   - [Source]: an exclusive handle on a capture device that yields fixed-size
//     [AudioFrame] values until closed.
//   - [Player]: an exclusive handle on an output device that plays one
//     [types.AudioClip] at a time, blocking until playback completes.
//
// Implementations live in sub-packages (audio/portaudio, audio/wavfile,
// audio/command). This package lives under pkg/ so that other device back-ends
// can be supplied from outside the module.
package audio

import (
	"context"
	"errors"

	"github.com/MrWong99/harken/pkg/types"
)

// ErrDeviceUnavailable is returned when a capture or playback device cannot be
// opened. Callers treat it as fatal.
var ErrDeviceUnavailable = errors.New("audio: device unavailable")

// ErrSourceClosed is returned by [Source.Read] after the source has been closed
// or has reached the end of its input.
var ErrSourceClosed = errors.New("audio: source closed")

// Source is a capture device producing mono 16-bit PCM frames.
//
// Start opens the device and must be called exactly once before Read. Read
// blocks until the next frame is available; it returns [ErrSourceClosed] once
// the source is exhausted or closed. Close releases the device and unblocks a
// pending Read. Implementations need not be safe for concurrent Read calls;
// the capture stage is the only reader.
type Source interface {
	// Start opens the underlying device. Returns an error wrapping
	// [ErrDeviceUnavailable] when the device cannot be opened.
	Start(ctx context.Context) error

	// Read returns the next captured frame.
	Read(ctx context.Context) (AudioFrame, error)

	// Format reports the sample rate and channel count of frames returned by Read.
	Format() Format

	// Close releases the device. Safe to call more than once.
	Close() error
}

// Player plays synthesised speech on an output device.
//
// Play blocks until the clip has been played to completion or ctx is
// cancelled. Implementations need not be safe for concurrent Play calls; the
// responder stage is the only caller.
type Player interface {
	Play(ctx context.Context, clip *types.AudioClip) error

	// Close releases the output device. Safe to call more than once.
	Close() error
}
