package whisper_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/harken/pkg/audio"
	"github.com/MrWong99/harken/pkg/provider/stt"
	"github.com/MrWong99/harken/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// inferenceRequest captures what the mock server received.
type inferenceRequest struct {
	language string
	model    string
	wav      []byte
}

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText. Every matched request is stored in *last
// and counted in *callCount.
func newMockServer(t *testing.T, responseText string, callCount *atomic.Int32, last *inferenceRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		if last != nil {
			f, _, err := r.FormFile("file")
			if err == nil {
				last.wav, _ = io.ReadAll(f)
				f.Close()
			}
			last.language = r.FormValue("language")
			last.model = r.FormValue("model")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func speechSamples(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		if i%2 == 0 {
			s[i] = 0.25
		} else {
			s[i] = -0.25
		}
	}
	return s
}

// ---- construction -----------------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

// ---- Transcribe -------------------------------------------------------------

func TestTranscribe_ReturnsTrimmedText(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	var req inferenceRequest
	srv := newMockServer(t, "  hey computer   what time is it \n", &calls, &req)

	p, err := whisper.New(srv.URL+"/", whisper.WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := p.Transcribe(context.Background(), speechSamples(1600), stt.Options{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "hey computer what time is it" {
		t.Errorf("Text = %q, want %q", got.Text, "hey computer what time is it")
	}
	if got.Language != "en" {
		t.Errorf("Language = %q, want en", got.Language)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
	if req.model != "base.en" {
		t.Errorf("model field = %q, want base.en", req.model)
	}

	clip, err := audio.DecodeWAV(req.wav)
	if err != nil {
		t.Fatalf("uploaded file is not a WAV: %v", err)
	}
	if clip.SampleRate != 16000 || clip.Channels != 1 {
		t.Errorf("uploaded format = %dHz %dch, want 16000Hz 1ch", clip.SampleRate, clip.Channels)
	}
	if len(clip.PCM) != 1600*2 {
		t.Errorf("uploaded PCM = %d bytes, want %d", len(clip.PCM), 1600*2)
	}
}

func TestTranscribe_LanguageOverride(t *testing.T) {
	t.Parallel()

	var req inferenceRequest
	srv := newMockServer(t, "bonjour", nil, &req)
	p, _ := whisper.New(srv.URL, whisper.WithLanguage("en"))

	got, err := p.Transcribe(context.Background(), speechSamples(160), stt.Options{Language: "fr"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if req.language != "fr" {
		t.Errorf("language field = %q, want fr", req.language)
	}
	if got.Language != "fr" {
		t.Errorf("Language = %q, want fr", got.Language)
	}
}

func TestTranscribe_BlankAudioMarkerYieldsEmptyText(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, " [BLANK_AUDIO] ", nil, nil)
	p, _ := whisper.New(srv.URL)

	got, err := p.Transcribe(context.Background(), make([]float32, 160), stt.Options{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "" {
		t.Errorf("Text = %q, want empty", got.Text)
	}
}

func TestTranscribe_ServerErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http 500",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("{not json"))
			},
		},
		{
			name: "error field",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "model not loaded"})
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			p, _ := whisper.New(srv.URL)
			if _, err := p.Transcribe(context.Background(), speechSamples(160), stt.Options{}); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestTranscribe_ContextCancelled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Transcribe(ctx, speechSamples(160), stt.Options{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}
