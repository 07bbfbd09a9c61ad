package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredential is returned by [Validate] when a provider that needs an
// API key has none, neither in the file nor in the environment.
var ErrMissingCredential = errors.New("config: missing credential")

// Defaults applied by [ApplyDefaults].
const (
	DefaultWakePhrase      = "hey computer"
	DefaultChatModel       = "gpt-3.5-turbo"
	DefaultMaxTokens       = 300
	DefaultTemperature     = 0.7
	DefaultPromptTemplate  = "Q: %s?\nA:"
	DefaultErrorReply      = "Sorry, I could not reach the assistant service."
	DefaultLanguage        = "en"
	DefaultWhisperModel    = "base"
	DefaultSampleRate      = 16000
	DefaultFramesPerBuffer = 1024
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":      {"whisper-native", "whisper", "openai", "deepgram"},
	"llm":      {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":      {"google", "openai", "elevenlabs", "coqui"},
	"playback": {"portaudio", "command"},
}

// CredentialEnv maps a provider name to the environment variable holding its
// API key. Providers absent from the map need no key (local servers) or
// authenticate another way.
var CredentialEnv = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
	"mistral":    "MISTRAL_API_KEY",
	"groq":       "GROQ_API_KEY",
	"deepgram":   "DEEPGRAM_API_KEY",
	"elevenlabs": "ELEVENLABS_API_KEY",
	"google":     "GOOGLE_API_KEY",
}

// optionalCredential lists providers that can authenticate without an API
// key (Google falls back to application default credentials).
var optionalCredential = map[string]bool{
	"google": true,
}

// Load reads the YAML configuration file at path, expands ${VAR} references,
// applies defaults and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// against the process environment, applies defaults, fills in credentials
// from the environment and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	ResolveCredentials(cfg, os.Getenv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %q: %w", path, err)
	}
	return nil
}

// ResolveCredentials fills every empty provider api_key from the variable
// named in [CredentialEnv], looked up with getenv.
func ResolveCredentials(cfg *Config, getenv func(string) string) {
	for _, e := range cfg.providerEntries() {
		if e.APIKey != "" {
			continue
		}
		if env, ok := CredentialEnv[e.Name]; ok {
			e.APIKey = getenv(env)
		}
	}
}

// ApplyDefaults fills unset optional fields. Required capture thresholds are
// left alone so that [Validate] reports them.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Server.TraceSampleRatio == nil {
		cfg.Server.TraceSampleRatio = ptr(1.0)
	}

	c := &cfg.Capture
	if c.Source == "" {
		c.Source = SourceMicrophone
	}
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.FramesPerBuffer == 0 {
		c.FramesPerBuffer = DefaultFramesPerBuffer
	}
	if c.PhraseThreshold == nil {
		c.PhraseThreshold = ptr(0.3)
	}
	if c.NonSpeakingDuration == nil {
		c.NonSpeakingDuration = ptr(0.5)
	}

	if cfg.Wake.Phrase == "" {
		cfg.Wake.Phrase = DefaultWakePhrase
	}
	if cfg.Wake.Phonetic && cfg.Wake.PhoneticThreshold == 0 {
		cfg.Wake.PhoneticThreshold = 0.85
	}

	p := &cfg.Providers
	if p.STT.Name == "" {
		p.STT.Name = "whisper-native"
	}
	if p.LLM.Name == "" {
		p.LLM.Name = "openai"
	}
	if p.TTS.Name == "" {
		p.TTS.Name = "google"
	}
	if p.Playback.Name == "" {
		p.Playback.Name = "portaudio"
	}

	ch := &cfg.Chat
	if ch.Model == "" {
		ch.Model = p.LLM.Model
	}
	if ch.Model == "" {
		ch.Model = DefaultChatModel
	}
	if ch.MaxTokens == 0 {
		ch.MaxTokens = DefaultMaxTokens
	}
	if ch.Temperature == nil {
		ch.Temperature = ptr(DefaultTemperature)
	}
	if ch.PromptTemplate == "" {
		ch.PromptTemplate = DefaultPromptTemplate
	}
	switch ch.ErrorReply {
	case "":
		ch.ErrorReply = DefaultErrorReply
	case "-":
		ch.ErrorReply = ""
	}

	t := &cfg.Transcription
	if t.Language == "" {
		t.Language = DefaultLanguage
	}
	if t.Model == "" {
		t.Model = DefaultWhisperModel
	}
	if t.ModelDir == "" {
		t.ModelDir = "models"
	}
	if cfg.Speech.Language == "" {
		cfg.Speech.Language = "en-US"
	}

	to := &cfg.Timeouts
	to.Transcribe = timeoutOr(to.Transcribe, 2*time.Minute)
	to.Chat = timeoutOr(to.Chat, 60*time.Second)
	to.Synthesize = timeoutOr(to.Synthesize, 60*time.Second)

	if cfg.Retry.Attempts == 0 {
		cfg.Retry.Attempts = 2
	}
	if cfg.Retry.Backoff == 0 {
		cfg.Retry.Backoff = 250 * time.Millisecond
	}
	if cfg.Queues.SoftLimit == 0 {
		cfg.Queues.SoftLimit = 16
	}
}

// timeoutOr maps 0 to def and negative values to 0 (no limit).
func timeoutOr(d, def time.Duration) time.Duration {
	switch {
	case d == 0:
		return def
	case d < 0:
		return 0
	}
	return d
}

func ptr[T any](v T) *T { return &v }

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must not be negative"))
	}
	if r := cfg.Server.TraceSampleRatio; r != nil && (*r < 0 || *r > 1) {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %.2f must be in [0, 1]", *r))
	}

	c := cfg.Capture
	switch c.Source {
	case SourceMicrophone:
	case SourceWAVFile:
		if c.File == "" {
			errs = append(errs, errors.New("capture.file is required when capture.source is wavfile"))
		}
	default:
		errs = append(errs, fmt.Errorf("capture.source %q is invalid; valid values: microphone, wavfile", c.Source))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must be positive", c.SampleRate))
	}
	if c.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("capture.frames_per_buffer %d must be positive", c.FramesPerBuffer))
	}
	if c.EnergyThreshold <= 0 {
		errs = append(errs, errors.New("capture.energy_threshold is required and must be positive"))
	}
	if c.PauseThreshold <= 0 {
		errs = append(errs, errors.New("capture.pause_threshold is required and must be positive"))
	}
	if c.DynamicEnergyAdjustment == nil {
		errs = append(errs, errors.New("capture.dynamic_energy_adjustment is required"))
	}
	if c.PhraseThreshold != nil && *c.PhraseThreshold < 0 {
		errs = append(errs, errors.New("capture.phrase_threshold must not be negative"))
	}
	if c.NonSpeakingDuration != nil && (*c.NonSpeakingDuration < 0 || *c.NonSpeakingDuration > c.PauseThreshold) {
		errs = append(errs, fmt.Errorf("capture.non_speaking_duration %.2f must be in [0, pause_threshold]", *c.NonSpeakingDuration))
	}
	if c.MaxUtterance < 0 {
		errs = append(errs, errors.New("capture.max_utterance must not be negative"))
	}

	if strings.TrimSpace(cfg.Wake.Phrase) == "" {
		errs = append(errs, errors.New("wake.phrase must not be blank"))
	}
	if th := cfg.Wake.PhoneticThreshold; th < 0 || th > 1 {
		errs = append(errs, fmt.Errorf("wake.phonetic_threshold %.2f is out of range [0, 1]", th))
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("playback", cfg.Providers.Playback.Name)
	for _, e := range cfg.Providers.Fallbacks.STT {
		validateProviderName("stt", e.Name)
	}
	for _, e := range cfg.Providers.Fallbacks.LLM {
		validateProviderName("llm", e.Name)
	}
	for _, e := range cfg.Providers.Fallbacks.TTS {
		validateProviderName("tts", e.Name)
	}
	for _, e := range cfg.providerEntries() {
		env, needsKey := CredentialEnv[e.Name]
		if needsKey && e.APIKey == "" && !optionalCredential[e.Name] && e.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%w: provider %q needs api_key or %s", ErrMissingCredential, e.Name, env))
		}
	}

	ch := cfg.Chat
	if ch.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("chat.max_tokens %d must not be negative", ch.MaxTokens))
	}
	if ch.Temperature != nil && (*ch.Temperature < 0 || *ch.Temperature > 2) {
		errs = append(errs, fmt.Errorf("chat.temperature %.2f is out of range [0, 2]", *ch.Temperature))
	}
	if ch.PromptTemplate != "" && strings.Count(ch.PromptTemplate, "%s") != 1 {
		errs = append(errs, fmt.Errorf("chat.prompt_template %q must contain exactly one %%s", ch.PromptTemplate))
	}

	if sf := cfg.Speech.SpeedFactor; sf != 0 && (sf < 0.5 || sf > 2.0) {
		errs = append(errs, fmt.Errorf("speech.speed_factor %.2f is out of range [0.5, 2.0]", sf))
	}
	if cfg.Retry.Attempts < 0 {
		errs = append(errs, errors.New("retry.attempts must not be negative"))
	}
	if cfg.Retry.Backoff < 0 {
		errs = append(errs, errors.New("retry.backoff must not be negative"))
	}
	if cfg.Queues.SoftLimit < 0 {
		errs = append(errs, errors.New("queues.soft_limit must not be negative"))
	}

	return errors.Join(errs...)
}

// providerEntries returns pointers to every provider entry in cfg.
func (c *Config) providerEntries() []*ProviderEntry {
	out := []*ProviderEntry{&c.Providers.STT, &c.Providers.LLM, &c.Providers.TTS, &c.Providers.Playback}
	for i := range c.Providers.Fallbacks.STT {
		out = append(out, &c.Providers.Fallbacks.STT[i])
	}
	for i := range c.Providers.Fallbacks.LLM {
		out = append(out, &c.Providers.Fallbacks.LLM[i])
	}
	for i := range c.Providers.Fallbacks.TTS {
		out = append(out, &c.Providers.Fallbacks.TTS[i])
	}
	return out
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
