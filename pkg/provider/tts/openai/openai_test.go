package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"

	"github.com/MrWong99/harken/pkg/provider/tts"
	"github.com/MrWong99/harken/pkg/provider/tts/openai"
	"github.com/MrWong99/harken/pkg/types"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := openai.New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{1, 0, 2, 0, 3})
	}))
	defer srv.Close()

	p, err := openai.New("sk-test", openai.WithBaseURL(srv.URL+"/"), openai.WithRequestOptions(option.WithMaxRetries(0)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	clip, err := p.Synthesize(context.Background(), "Paris", types.VoiceProfile{SpeedFactor: 1.25})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.SampleRate != 24000 || clip.Channels != 1 {
		t.Errorf("format = %dHz %dch, want 24000Hz 1ch", clip.SampleRate, clip.Channels)
	}
	if len(clip.PCM) != 4 {
		t.Errorf("PCM length = %d, want 4 (odd trailing byte dropped)", len(clip.PCM))
	}

	want := map[string]any{"input": "Paris", "model": "tts-1", "voice": "alloy", "response_format": "pcm", "speed": 1.25}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("%s = %v, want %v", k, body[k], v)
		}
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p, _ := openai.New("sk-test")
	if _, err := p.Synthesize(context.Background(), " \n", types.VoiceProfile{}); !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
}

func TestSynthesize_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad voice"}}`))
	}))
	defer srv.Close()

	p, _ := openai.New("sk-test", openai.WithBaseURL(srv.URL+"/"), openai.WithRequestOptions(option.WithMaxRetries(0)))
	if _, err := p.Synthesize(context.Background(), "hi", types.VoiceProfile{ID: "nobody"}); err == nil {
		t.Fatal("expected error for HTTP 400")
	}
}

func TestListVoices(t *testing.T) {
	p, _ := openai.New("sk-test")
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) == 0 || voices[0].ID != "alloy" {
		t.Errorf("voices = %v", voices)
	}
}
