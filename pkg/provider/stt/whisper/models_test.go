package whisper_test

import (
	"path/filepath"
	"testing"

	"github.com/MrWong99/harken/pkg/provider/stt/whisper"
)

func TestResolveModelPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		model string
		dir   string
		want  string
	}{
		{"empty", "", "models", ""},
		{"size name", "base", "/opt/whisper", filepath.Join("/opt/whisper", "ggml-base.bin")},
		{"english variant", "small.en", "/opt/whisper", filepath.Join("/opt/whisper", "ggml-small.en.bin")},
		{"default dir", "tiny", "", filepath.Join("models", "ggml-tiny.bin")},
		{"absolute path", "/data/custom.bin", "/opt/whisper", "/data/custom.bin"},
		{"relative bin file", "custom.bin", "/opt/whisper", "custom.bin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := whisper.ResolveModelPath(tt.model, tt.dir); got != tt.want {
				t.Errorf("ResolveModelPath(%q, %q) = %q, want %q", tt.model, tt.dir, got, tt.want)
			}
		})
	}
}

func TestIsKnownModel(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"tiny", "base.en", "large-v3"} {
		if !whisper.IsKnownModel(name) {
			t.Errorf("IsKnownModel(%q) = false, want true", name)
		}
	}
	if whisper.IsKnownModel("gigantic") {
		t.Error("IsKnownModel(gigantic) = true, want false")
	}
}
