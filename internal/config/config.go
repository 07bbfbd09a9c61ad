// Package config provides the configuration schema, loader, and provider
// registry for Harken.
//
// A [Config] is read once at startup with [Load], completed by
// [ApplyDefaults], checked by [Validate] and then treated as immutable:
// components receive the values they need at construction and never consult
// the file or the environment again.
package config

import (
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Capture sources.
const (
	SourceMicrophone = "microphone"
	SourceWAVFile    = "wavfile"
)

// Config is the root configuration structure for Harken.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`

	// Verbose logs every stage decision (recorded audio, predicted text,
	// ignored transcripts, questions and answers) at debug level and forces
	// the log level to debug. Default: true.
	Verbose *bool `yaml:"verbose"`

	Capture       CaptureConfig       `yaml:"capture"`
	Wake          WakeConfig          `yaml:"wake"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Chat          ChatConfig          `yaml:"chat"`
	Speech        SpeechConfig        `yaml:"speech"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Timeouts      TimeoutsConfig      `yaml:"timeouts"`
	Retry         RetryConfig         `yaml:"retry"`
	Queues        QueuesConfig        `yaml:"queues"`
}

// IsVerbose reports whether verbose logging is on.
func (c *Config) IsVerbose() bool {
	return c.Verbose == nil || *c.Verbose
}

// ServerConfig holds ops HTTP and logging settings.
type ServerConfig struct {
	// ListenAddr is the address of the ops server serving /healthz, /readyz
	// and /metrics (e.g. ":9090"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity when Verbose is off.
	LogLevel LogLevel `yaml:"log_level"`

	// ShutdownTimeout bounds the drain after SIGINT/SIGTERM.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TraceSampleRatio is the fraction of utterances traced, in [0, 1].
	// Default: 1.
	TraceSampleRatio *float64 `yaml:"trace_sample_ratio"`
}

// CaptureConfig configures the microphone and the endpointer. The three
// thresholds have no defaults and must be set explicitly.
type CaptureConfig struct {
	// Source is "microphone" (default) or "wavfile".
	Source string `yaml:"source"`

	// File is the WAV file replayed when Source is "wavfile".
	File string `yaml:"file"`

	// SampleRate is the device sample rate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// FramesPerBuffer is the device read size in samples. Default: 1024.
	FramesPerBuffer int `yaml:"frames_per_buffer"`

	// EnergyThreshold is the RMS energy (raw int16 units) above which a frame
	// counts as speech. Required.
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// PauseThreshold is the seconds of silence that end a phrase. Required.
	PauseThreshold float64 `yaml:"pause_threshold"`

	// DynamicEnergyAdjustment lets the threshold follow ambient noise.
	// Required.
	DynamicEnergyAdjustment *bool `yaml:"dynamic_energy_adjustment"`

	// PhraseThreshold is the minimum seconds of speech for a phrase to be
	// kept. Default: 0.3.
	PhraseThreshold *float64 `yaml:"phrase_threshold"`

	// NonSpeakingDuration is the seconds of silence kept on both sides of a
	// phrase. Default: 0.5.
	NonSpeakingDuration *float64 `yaml:"non_speaking_duration"`

	// MaxUtterance force-ends a phrase after this many seconds. Zero means
	// unlimited.
	MaxUtterance float64 `yaml:"max_utterance"`
}

// WakeConfig configures the wake phrase gate.
type WakeConfig struct {
	// Phrase must prefix a transcript for it to be answered.
	// Default: "hey computer".
	Phrase string `yaml:"phrase"`

	// Phonetic additionally accepts transcripts whose first words sound like
	// the phrase ("hey computor").
	Phonetic bool `yaml:"phonetic"`

	// PhoneticThreshold is the Jaro-Winkler similarity required per word when
	// Phonetic is on. Default: 0.85.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`
}

// ProvidersConfig declares which implementation serves each capability.
// Each entry's Name selects a factory registered in the [Registry].
type ProvidersConfig struct {
	STT      ProviderEntry `yaml:"stt"`
	LLM      ProviderEntry `yaml:"llm"`
	TTS      ProviderEntry `yaml:"tts"`
	Playback ProviderEntry `yaml:"playback"`

	// Fallbacks are tried in order when the primary provider fails.
	Fallbacks FallbacksConfig `yaml:"fallbacks"`
}

// FallbacksConfig lists secondary providers per capability.
type FallbacksConfig struct {
	STT []ProviderEntry `yaml:"stt"`
	LLM []ProviderEntry `yaml:"llm"`
	TTS []ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g. "openai").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider. When empty it is taken from
	// the provider's conventional environment variable (see [CredentialEnv]).
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// ChatConfig controls the chat request built for every question.
type ChatConfig struct {
	// Model is the chat model. Default: the LLM provider entry's model, then
	// "gpt-3.5-turbo".
	Model string `yaml:"model"`

	// MaxTokens caps the reply. Default: 300.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature is the sampling temperature. Default: 0.7.
	Temperature *float64 `yaml:"temperature"`

	// PromptTemplate wraps the question; exactly one %s.
	// Default: "Q: %s?\nA:".
	PromptTemplate string `yaml:"prompt_template"`

	// ErrorReply is spoken when the chat call fails. Default:
	// "Sorry, I could not reach the assistant service." Set to "-" to stay
	// silent.
	ErrorReply string `yaml:"error_reply"`
}

// SpeechConfig selects the reply voice.
type SpeechConfig struct {
	Voice       string  `yaml:"voice"`
	Language    string  `yaml:"language"`
	Gender      string  `yaml:"gender"`
	SpeedFactor float64 `yaml:"speed_factor"`
}

// TranscriptionConfig configures speech recognition.
type TranscriptionConfig struct {
	// Language hint. Default: "en".
	Language string `yaml:"language"`

	// Model is the whisper model size or variant ("tiny", "base",
	// "small.en", ...). Default: "base".
	Model string `yaml:"model"`

	// ModelDir holds ggml model files for the native whisper provider.
	// Default: "models".
	ModelDir string `yaml:"model_dir"`
}

// TimeoutsConfig bounds single provider calls. Zero keeps the default; a
// negative value disables the limit.
type TimeoutsConfig struct {
	Transcribe time.Duration `yaml:"transcribe"`
	Chat       time.Duration `yaml:"chat"`
	Synthesize time.Duration `yaml:"synthesize"`
}

// RetryConfig configures retries of failed provider calls.
type RetryConfig struct {
	// Attempts is the total number of calls per item. Default: 2.
	Attempts int `yaml:"attempts"`

	// Backoff is the wait before the first retry. Default: 250ms.
	Backoff time.Duration `yaml:"backoff"`
}

// QueuesConfig configures the stage hand-off queues.
type QueuesConfig struct {
	// SoftLimit logs a warning when a queue holds more items. Queues never
	// block. Default: 16.
	SoftLimit int `yaml:"soft_limit"`
}
