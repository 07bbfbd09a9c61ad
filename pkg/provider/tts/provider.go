// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service (Google Cloud TTS, OpenAI,
// ElevenLabs or a local Coqui server) and turns one complete reply into one
// playable [types.AudioClip]. The responder plays each clip to completion
// before taking the next question, so a batch call is all that is required.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"

	"github.com/MrWong99/harken/pkg/types"
)

// ErrEmptyText is returned when Synthesize is called with blank text.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the given voice and returns 16-bit PCM
	// audio ready for playback. Returns an error if the backend fails, the
	// voice is unknown or ctx is cancelled.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*types.AudioClip, error)
}

// VoiceLister is implemented by providers that can enumerate their voice
// catalogue.
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}
