package audio

import "time"

// AudioFrame is one fixed-size block of PCM read from a [Source].
// Frames are immutable once returned by Read.
type AudioFrame struct {
	// Data holds little-endian signed 16-bit PCM, interleaved when Channels > 1.
	Data []byte

	// SampleRate in Hz (16000 for the microphone path).
	SampleRate int

	// Channels: 1 for mono.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
