// Package mock provides a test double for the stt.Provider interface.
//
// Results are scripted per call: Results[i] / Errors[i] are returned for the
// i-th call; once exhausted, TranscriptResult / TranscribeErr are returned.
//
// Example:
//
//	p := &mock.Provider{Results: []types.Transcript{{Text: "hey computer hi"}}}
//	got, _ := p.Transcribe(ctx, samples, stt.Options{})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/harken/pkg/provider/stt"
	"github.com/MrWong99/harken/pkg/types"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the samples passed to Transcribe.
	Samples []float32

	// Opts is the Options value passed to Transcribe.
	Opts stt.Options
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results are returned by successive calls.
	Results []types.Transcript

	// Errors are returned by successive calls, aligned with Results. A nil
	// entry (or a short slice) means no error for that call.
	Errors []error

	// TranscriptResult is returned once Results is exhausted.
	TranscriptResult types.Transcript

	// TranscribeErr is returned once Errors is exhausted.
	TranscribeErr error

	// TranscribeFunc, if set, replaces all scripted behaviour.
	TranscribeFunc func(ctx context.Context, samples []float32, opts stt.Options) (types.Transcript, error)

	// Calls records every call to Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the next scripted result.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, opts stt.Options) (types.Transcript, error) {
	p.mu.Lock()
	n := len(p.Calls)
	p.Calls = append(p.Calls, TranscribeCall{Samples: append([]float32(nil), samples...), Opts: opts})
	fn := p.TranscribeFunc
	res, err := p.TranscriptResult, p.TranscribeErr
	if n < len(p.Results) {
		res = p.Results[n]
		err = nil
	}
	if n < len(p.Errors) {
		err = p.Errors[n]
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, samples, opts)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return types.Transcript{}, ctxErr
	}
	return res, err
}

// CallCount returns the number of Transcribe calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

var _ stt.Provider = (*Provider)(nil)
