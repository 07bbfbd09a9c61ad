// Package types defines the value objects handed between Harken's pipeline
// stages and providers.
//
// Every value here is immutable once it has been pushed onto a hand-off queue:
// the producing stage gives up ownership on enqueue and the consuming stage is
// the only reader afterwards. Keeping the types in one leaf package avoids
// import cycles between pkg/audio, the provider packages and internal/pipeline.
package types

import "time"

// Utterance is one contiguous span of speech bounded by silence, converted to
// normalised float samples in [-1.0, 1.0].
type Utterance struct {
	// ID correlates log records and spans for this utterance across stages.
	ID string

	// Samples is mono float PCM at SampleRate.
	Samples []float32

	// SampleRate in Hz.
	SampleRate int

	// CapturedAt is the wall-clock time the endpointer finalised the utterance.
	CapturedAt time.Time
}

// Duration returns the playback length of the utterance.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

// Transcript is the result of transcribing one [Utterance].
type Transcript struct {
	// Text is the transcribed speech, whitespace-trimmed.
	Text string

	// Language is the language the transcriber used or detected (e.g. "en").
	Language string
}

// Question is the text following the wake phrase, forwarded to the responder.
type Question struct {
	// ID is inherited from the originating [Utterance].
	ID string

	// Text is the remainder after the wake phrase was stripped and trimmed.
	// It is never empty.
	Text string

	// Transcript is the full transcript the question was cut from.
	Transcript string

	// HeardAt is when the originating utterance was captured.
	HeardAt time.Time
}

// Message is a single turn sent to a chat model.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text of the turn.
	Content string
}

// VoiceProfile selects the synthetic voice used for replies.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (e.g. "alloy", an ElevenLabs
	// voice ID, or a Google voice name). Empty selects the provider default.
	ID string

	// Name is a human-readable label reported by voice listings.
	Name string

	// Language is a BCP-47 tag such as "en-US".
	Language string

	// Gender is an optional hint for providers that select voices by gender
	// ("NEUTRAL", "FEMALE", "MALE").
	Gender string

	// SpeedFactor adjusts speaking rate (0.5–2.0, 0 or 1.0 = default).
	SpeedFactor float64
}

// AudioClip is a complete, playable block of synthesised speech.
type AudioClip struct {
	// PCM holds little-endian signed 16-bit samples, interleaved when
	// Channels > 1.
	PCM []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels is the number of interleaved channels.
	Channels int
}

// Duration returns the playback length of the clip.
func (c *AudioClip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.PCM) / (2 * c.Channels)
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}
