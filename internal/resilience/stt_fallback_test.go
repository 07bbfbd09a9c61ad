package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/harken/pkg/provider/stt"
	sttmock "github.com/MrWong99/harken/pkg/provider/stt/mock"
	"github.com/MrWong99/harken/pkg/types"
)

func TestSTTFallback_Transcribe(t *testing.T) {
	primary := &sttmock.Provider{TranscribeErr: errors.New("model crashed")}
	secondary := &sttmock.Provider{TranscriptResult: types.Transcript{Text: "hey computer hi", Language: "en"}}

	fb := NewSTTFallback(primary, "local", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("cloud", secondary)

	samples := []float32{0.1, -0.1}
	got, err := fb.Transcribe(context.Background(), samples, stt.Options{Language: "en"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "hey computer hi" {
		t.Errorf("Text = %q", got.Text)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.CallCount(), secondary.CallCount())
	}
	if lang := secondary.Calls[0].Opts.Language; lang != "en" {
		t.Errorf("forwarded language = %q, want en", lang)
	}
}

func TestSTTFallback_AllFail(t *testing.T) {
	primary := &sttmock.Provider{TranscribeErr: errors.New("a")}
	fb := NewSTTFallback(primary, "only", FallbackConfig{})
	if _, err := fb.Transcribe(context.Background(), nil, stt.Options{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestSTTFallback_Names(t *testing.T) {
	fb := NewSTTFallback(&sttmock.Provider{}, "whisper-native", FallbackConfig{})
	fb.AddFallback("openai", &sttmock.Provider{})
	if got := fb.Names(); len(got) != 2 || got[0] != "whisper-native" || got[1] != "openai" {
		t.Errorf("Names() = %v", got)
	}
}
