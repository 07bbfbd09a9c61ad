package whisper

import (
	"path/filepath"
	"strings"
)

// modelSizes are the ggml model names published by whisper.cpp.
var modelSizes = map[string]bool{
	"tiny": true, "tiny.en": true,
	"base": true, "base.en": true,
	"small": true, "small.en": true,
	"medium": true, "medium.en": true,
	"large-v1": true, "large-v2": true, "large-v3": true, "large-v3-turbo": true,
	"large": true,
}

// ResolveModelPath maps a model size name such as "base" or "small.en" to
// dir/ggml-<name>.bin. Anything that already looks like a path (contains a
// separator or ends in ".bin") is returned unchanged. An unknown bare name is
// also resolved inside dir so custom fine-tunes can follow the same layout.
func ResolveModelPath(name, dir string) string {
	if name == "" {
		return ""
	}
	if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') ||
		strings.HasSuffix(name, ".bin") {
		return name
	}
	if dir == "" {
		dir = "models"
	}
	return filepath.Join(dir, "ggml-"+name+".bin")
}

// IsKnownModel reports whether name is one of the published whisper.cpp sizes.
func IsKnownModel(name string) bool {
	return modelSizes[name]
}
