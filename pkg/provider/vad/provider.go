// Package vad defines the Engine interface for voice activity detection.
//
// A VAD engine classifies fixed-size PCM frames as speech or silence and
// surfaces the result as a stateful, per-stream session. Each session keeps its
// own state (speech flag, adaptive threshold) so independent streams never
// influence each other.
//
// VAD is synchronous: ProcessFrame returns immediately with a detection result,
// which makes it suitable for the capture loop that must never stall the
// device.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle must not be shared across goroutines.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the PCM
	// frames passed to ProcessFrame.
	SampleRate int

	// FrameSizeMs is the expected frame duration in milliseconds. Zero accepts
	// frames of any length.
	FrameSizeMs int

	// EnergyThreshold is the minimum RMS energy (raw int16 units) for a frame to
	// count as speech. Must be positive.
	EnergyThreshold float64

	// DynamicThreshold lets the threshold track ambient noise during silence.
	DynamicThreshold bool

	// DynamicDamping controls how slowly the threshold adapts; it is raised to
	// the power of the frame duration in seconds. Range (0, 1). Typical: 0.15.
	DynamicDamping float64

	// DynamicRatio is the multiple of the ambient energy the threshold moves
	// toward. Must be > 1. Typical: 1.5.
	DynamicRatio float64
}

// SessionHandle represents an active VAD session for a single audio stream.
type SessionHandle interface {
	// ProcessFrame analyses one frame of little-endian int16 mono PCM at the
	// configured sample rate and returns the detection result. Returns an error
	// if the frame size is invalid or the session is closed.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset clears the speech state without closing the session. The adaptive
	// threshold returns to its configured starting value.
	Reset()

	// Close releases all resources associated with the session. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// AdaptationHolder is implemented by sessions with an adaptive threshold.
// While held the threshold stays put even on silent frames; the capture stage
// holds it for the whole of an open phrase, pauses included.
type AdaptationHolder interface {
	HoldAdaptation(hold bool)
}

// Engine is the factory for VAD sessions.
//
// Implementations must be safe for concurrent use: multiple goroutines may call
// NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	// Returns an error if the configuration is invalid.
	NewSession(cfg Config) (SessionHandle, error)
}
