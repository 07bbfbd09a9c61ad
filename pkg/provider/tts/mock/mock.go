// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio clips to the responder and to verify
// that the correct text and VoiceProfile reach the TTS backend.
//
// Example:
//
//	p := &mock.Provider{}
//	clip, _ := p.Synthesize(ctx, "Paris", voice)
//	if p.Texts()[0] != "Paris" { ... }
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/harken/pkg/provider/tts"
	"github.com/MrWong99/harken/pkg/types"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the VoiceProfile passed to Synthesize.
	Voice types.VoiceProfile
}

// Provider is a mock implementation of tts.Provider and tts.VoiceLister.
type Provider struct {
	mu sync.Mutex

	// Clip is returned by Synthesize. When nil, a 100 ms silent 16 kHz mono
	// clip is returned.
	Clip *types.AudioClip

	// SynthesizeErr, if non-nil, is returned by every Synthesize call.
	SynthesizeErr error

	// SynthesizeFunc, if set, replaces the scripted behaviour.
	SynthesizeFunc func(ctx context.Context, text string, voice types.VoiceProfile) (*types.AudioClip, error)

	// Voices is returned by ListVoices.
	Voices []types.VoiceProfile

	// ListVoicesErr is returned by ListVoices.
	ListVoicesErr error

	// SynthesizeCalls records every invocation of Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns the scripted clip.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*types.AudioClip, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice})
	fn, clip, err := p.SynthesizeFunc, p.Clip, p.SynthesizeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, voice)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}
	if clip == nil {
		clip = &types.AudioClip{PCM: make([]byte, 3200), SampleRate: 16000, Channels: 1}
	}
	return clip, nil
}

// ListVoices returns Voices or ListVoicesErr.
func (p *Provider) ListVoices(context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListVoicesErr != nil {
		return nil, p.ListVoicesErr
	}
	return append([]types.VoiceProfile(nil), p.Voices...), nil
}

// Texts returns the text of every Synthesize call so far.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.SynthesizeCalls))
	for i, c := range p.SynthesizeCalls {
		out[i] = c.Text
	}
	return out
}

// CallCount returns the number of Synthesize calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)
