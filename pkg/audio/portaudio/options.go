// Package portaudio provides the microphone [audio.Source] and speaker
// [audio.Player] backed by PortAudio.
//
// The real implementations require cgo and the PortAudio headers and are only
// compiled with the "portaudio" build tag:
//
//	go build -tags portaudio ./cmd/harken
//
// Without the tag, the constructors return types whose Start / NewPlayer
// report [audio.ErrDeviceUnavailable], so a misconfigured build fails at
// startup rather than silently capturing nothing.
package portaudio

import "log/slog"

// Config holds the stream parameters shared by [Microphone] and [Player].
type Config struct {
	sampleRate      int
	framesPerBuffer int
	logger          *slog.Logger
}

// Option configures a [Microphone] or [Player].
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		sampleRate:      16000,
		framesPerBuffer: 1024,
		logger:          slog.Default(),
	}
}

// WithSampleRate sets the capture sample rate in Hz. Default: 16000.
func WithSampleRate(rate int) Option {
	return func(c *Config) {
		if rate > 0 {
			c.sampleRate = rate
		}
	}
}

// WithFramesPerBuffer sets the number of frames per device buffer. Default: 1024.
func WithFramesPerBuffer(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.framesPerBuffer = n
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.logger = l
		}
	}
}
