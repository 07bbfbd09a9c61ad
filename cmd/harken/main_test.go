package main

import (
	"errors"
	"log/slog"
	"slices"
	"testing"

	"github.com/MrWong99/harken/internal/config"
	"github.com/MrWong99/harken/pkg/audio"
	audiomock "github.com/MrWong99/harken/pkg/audio/mock"
	"github.com/MrWong99/harken/pkg/provider/llm"
	llmmock "github.com/MrWong99/harken/pkg/provider/llm/mock"
	"github.com/MrWong99/harken/pkg/provider/stt"
	sttmock "github.com/MrWong99/harken/pkg/provider/stt/mock"
	"github.com/MrWong99/harken/pkg/provider/tts"
	ttsmock "github.com/MrWong99/harken/pkg/provider/tts/mock"
)

func mockRegistry() *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) { return &sttmock.Provider{}, nil })
	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })
	reg.RegisterLLM("backup", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })
	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil })
	reg.RegisterPlayback("mock", func(config.ProviderEntry) (audio.Player, error) { return &audiomock.Player{}, nil })
	return reg
}

func mockConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Providers.STT.Name = "mock"
	cfg.Providers.LLM.Name = "mock"
	cfg.Providers.TTS.Name = "mock"
	cfg.Providers.Playback.Name = "mock"
	return cfg
}

func TestBuildProviders(t *testing.T) {
	cfg := mockConfig()
	cfg.Providers.Fallbacks.LLM = []config.ProviderEntry{{Name: "backup"}}

	ps, err := buildProviders(cfg, mockRegistry())
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if ps.STT.Name != "mock" || ps.LLM.Provider == nil || ps.TTS.Provider == nil || ps.Player == nil {
		t.Errorf("providers incomplete: %+v", ps)
	}
	if len(ps.LLMFallbacks) != 1 || ps.LLMFallbacks[0].Name != "backup" {
		t.Errorf("llm fallbacks = %+v", ps.LLMFallbacks)
	}
}

func TestBuildProviders_Unregistered(t *testing.T) {
	cfg := mockConfig()
	cfg.Providers.TTS.Name = "nope"

	_, err := buildProviders(cfg, mockRegistry())
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegisterBuiltinProviders(t *testing.T) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, mockConfig(), slog.Default())
	names := reg.Names()

	want := map[string][]string{
		"stt":      {"deepgram", "openai", "whisper", "whisper-native"},
		"tts":      {"coqui", "elevenlabs", "google", "openai"},
		"playback": {"command", "portaudio"},
	}
	for kind, w := range want {
		if !slices.Equal(names[kind], w) {
			t.Errorf("%s providers = %v, want %v", kind, names[kind], w)
		}
	}
	for _, name := range config.ValidProviderNames["llm"] {
		if !slices.Contains(names["llm"], name) {
			t.Errorf("llm provider %q not registered", name)
		}
	}
}

func TestNewLogger_VerboseForcesDebug(t *testing.T) {
	quiet := false
	tests := []struct {
		name    string
		level   config.LogLevel
		verbose *bool
		want    slog.Level
	}{
		{"verbose default", config.LogWarn, nil, slog.LevelDebug},
		{"quiet warn", config.LogWarn, &quiet, slog.LevelWarn},
		{"quiet info", config.LogInfo, &quiet, slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Verbose: tt.verbose}
			cfg.Server.LogLevel = tt.level
			l := newLogger(cfg)
			if !l.Enabled(t.Context(), tt.want) {
				t.Errorf("level %v not enabled", tt.want)
			}
			if tt.want > slog.LevelDebug && l.Enabled(t.Context(), tt.want-4) {
				t.Errorf("level below %v enabled", tt.want)
			}
		})
	}
}

func TestOptHelpers(t *testing.T) {
	opts := map[string]any{
		"command": []any{"aplay", "-q"},
		"single":  "ffplay",
		"threads": 4,
		"rate":    22050.0,
		"flag":    true,
	}
	if got := optStrings(opts, "command"); !slices.Equal(got, []string{"aplay", "-q"}) {
		t.Errorf("optStrings list = %v", got)
	}
	if got := optStrings(opts, "single"); !slices.Equal(got, []string{"ffplay"}) {
		t.Errorf("optStrings single = %v", got)
	}
	if optInt(opts, "threads") != 4 || optInt(opts, "rate") != 22050 || optInt(opts, "missing") != 0 {
		t.Error("optInt")
	}
	if !optBool(opts, "flag") || optBool(nil, "flag") {
		t.Error("optBool")
	}
	if optString(nil, "x") != "" || optString(opts, "single") != "ffplay" {
		t.Error("optString")
	}
}
