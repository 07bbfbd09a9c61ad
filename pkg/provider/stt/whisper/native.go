// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/harken/pkg/provider/stt"
	"github.com/MrWong99/harken/pkg/types"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO). The model is loaded once at construction and each Transcribe call
// gets a fresh inference context from it.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	threads  uint
	logger   *slog.Logger

	// whisper.cpp contexts are heavy; one inference at a time keeps memory
	// bounded on small machines.
	mu sync.Mutex
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the default language code for transcription
// (e.g., "en", "de", or "auto" for detection). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeThreads sets the number of CPU threads whisper.cpp may use.
// Zero keeps the library default.
func WithNativeThreads(n uint) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// WithNativeLogger sets the logger. Defaults to slog.Default().
func WithNativeLogger(l *slog.Logger) NativeOption {
	return func(p *NativeProvider) { p.logger = l }
}

// NewNative loads the whisper.cpp model at modelPath. A failure wraps
// [stt.ErrModelLoad]. The caller must call Close when done.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("whisper: %w: model path must not be empty", stt.ErrModelLoad)
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: %w: load %q: %w", stt.ErrModelLoad, modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe runs whisper.cpp inference over samples and returns the joined
// segment text. Cancelling ctx aborts inference before the encoder starts.
func (p *NativeProvider) Transcribe(ctx context.Context, samples []float32, opts stt.Options) (types.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	if sr := opts.SampleRateOrDefault(); sr != whisperlib.SampleRate {
		return types.Transcript{}, fmt.Errorf("whisper: sample rate %d Hz not supported, need %d", sr, whisperlib.SampleRate)
	}
	lang := opts.Language
	if lang == "" {
		lang = p.language
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	wctx, err := p.model.NewContext()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		p.logger.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}

	encoderBegin := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(samples, encoderBegin, nil, nil); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return types.Transcript{}, fmt.Errorf("whisper: %w", ctxErr)
		}
		return types.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return types.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	if lang == "auto" {
		lang = wctx.DetectedLanguage()
	}
	return types.Transcript{Text: cleanText(strings.Join(parts, " ")), Language: lang}, nil
}
