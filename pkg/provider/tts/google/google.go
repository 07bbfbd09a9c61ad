// Package google provides a TTS provider backed by the Google Cloud
// Text-to-Speech REST API (texttospeech/v1).
//
// Audio is requested as LINEAR16, which the API delivers as a base64 WAV
// file; the WAV header is parsed so the returned clip carries the real sample
// rate.
package google

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"

	"github.com/MrWong99/harken/pkg/audio"
	"github.com/MrWong99/harken/pkg/provider/tts"
	"github.com/MrWong99/harken/pkg/types"
)

const (
	defaultLanguage   = "en-US"
	defaultGender     = "NEUTRAL"
	defaultSampleRate = 24000
)

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

// Provider implements tts.Provider using Google Cloud Text-to-Speech.
type Provider struct {
	svc        *texttospeech.Service
	sampleRate int
}

type config struct {
	apiKey          string
	credentialsFile string
	sampleRate      int
	clientOpts      []option.ClientOption
}

// Option is a functional option for Provider.
type Option func(*config)

// WithAPIKey authenticates with an API key instead of Application Default
// Credentials.
func WithAPIKey(key string) Option {
	return func(c *config) { c.apiKey = key }
}

// WithCredentialsFile authenticates with a service-account JSON file.
func WithCredentialsFile(path string) Option {
	return func(c *config) { c.credentialsFile = path }
}

// WithSampleRate sets the requested output sample rate. Defaults to 24000 Hz.
func WithSampleRate(rate int) Option {
	return func(c *config) { c.sampleRate = rate }
}

// WithClientOptions appends raw google.golang.org/api client options
// (e.g. option.WithEndpoint for tests).
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(c *config) { c.clientOpts = append(c.clientOpts, opts...) }
}

// New creates a Provider. Without WithAPIKey or WithCredentialsFile the
// client falls back to Application Default Credentials.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	cfg := &config{sampleRate: defaultSampleRate}
	for _, o := range opts {
		o(cfg)
	}

	var clientOpts []option.ClientOption
	switch {
	case cfg.apiKey != "":
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.apiKey))
	case cfg.credentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.credentialsFile))
	}
	clientOpts = append(clientOpts, cfg.clientOpts...)

	svc, err := texttospeech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google tts: create service: %w", err)
	}
	return &Provider{svc: svc, sampleRate: cfg.sampleRate}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*types.AudioClip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("google tts: %w", tts.ErrEmptyText)
	}

	req := &texttospeech.SynthesizeSpeechRequest{
		Input:       &texttospeech.SynthesisInput{Text: text},
		Voice:       voiceParams(voice),
		AudioConfig: &texttospeech.AudioConfig{AudioEncoding: "LINEAR16", SampleRateHertz: int64(p.sampleRate)},
	}
	if voice.SpeedFactor > 0 {
		req.AudioConfig.SpeakingRate = voice.SpeedFactor
	}

	resp, err := p.svc.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("google tts: synthesize: %w", err)
	}
	if resp.AudioContent == "" {
		return nil, errors.New("google tts: empty audio content")
	}
	wav, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("google tts: decode audio content: %w", err)
	}
	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("google tts: %w", err)
	}
	return clip, nil
}

// ListVoices implements tts.VoiceLister.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	resp, err := p.svc.Voices.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("google tts: list voices: %w", err)
	}
	out := make([]types.VoiceProfile, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		vp := types.VoiceProfile{ID: v.Name, Name: v.Name, Gender: v.SsmlGender}
		if len(v.LanguageCodes) > 0 {
			vp.Language = v.LanguageCodes[0]
		}
		out = append(out, vp)
	}
	return out, nil
}

// voiceParams maps a profile onto the API's voice selection. A voice name
// alone is enough for the API, but it still requires a language code.
func voiceParams(v types.VoiceProfile) *texttospeech.VoiceSelectionParams {
	lang := v.Language
	if lang == "" {
		lang = languageFromVoiceName(v.ID)
	}
	if lang == "" {
		lang = defaultLanguage
	}
	sel := &texttospeech.VoiceSelectionParams{LanguageCode: lang, Name: v.ID}
	if v.ID == "" {
		gender := strings.ToUpper(v.Gender)
		if gender == "" {
			gender = defaultGender
		}
		sel.SsmlGender = gender
	}
	return sel
}

// languageFromVoiceName extracts "en-US" from names like "en-US-Neural2-C".
func languageFromVoiceName(name string) string {
	parts := strings.SplitN(name, "-", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[0] + "-" + parts[1]
}
