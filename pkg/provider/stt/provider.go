// Package stt defines the Provider interface for speech-to-text backends.
//
// A provider turns one finished utterance (normalised mono float samples) into
// text. Transcription is batch-oriented: the capture stage has already found
// the utterance boundaries, so providers never see partial speech. Back-ends
// include a local whisper.cpp model, a whisper.cpp server, the OpenAI
// transcription API and Deepgram.
//
// The transcription stage calls Transcribe serially, but implementations must
// still be safe for concurrent use so that fallback groups and health probes
// can share them.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/harken/pkg/types"
)

// ErrModelLoad is returned by constructors when a model cannot be loaded.
// Callers treat it as fatal.
var ErrModelLoad = errors.New("stt: model load failed")

// DefaultSampleRate is the sample rate every provider accepts.
const DefaultSampleRate = 16000

// Options carries per-call recognition hints.
type Options struct {
	// SampleRate of the samples in Hz. Zero means [DefaultSampleRate].
	SampleRate int

	// Language is an ISO-639-1 code ("en") or "auto". Empty uses the provider
	// default.
	Language string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts samples (mono, normalised to [-1.0, 1.0]) to text.
	// The returned Transcript.Text is whitespace-trimmed and may be empty when
	// nothing intelligible was said. Returns an error if the backend fails or
	// ctx is cancelled.
	Transcribe(ctx context.Context, samples []float32, opts Options) (types.Transcript, error)
}

// SampleRateOrDefault returns o.SampleRate, or [DefaultSampleRate] if unset.
func (o Options) SampleRateOrDefault() int {
	if o.SampleRate > 0 {
		return o.SampleRate
	}
	return DefaultSampleRate
}
