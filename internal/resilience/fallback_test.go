package resilience

import (
	"errors"
	"slices"
	"testing"
	"time"
)

// newChain returns a group trying "whisper", then "openai", then "deepgram".
func newChain(cfg FallbackConfig) *FallbackGroup[string] {
	fg := NewFallbackGroup("whisper", "whisper", cfg)
	fg.AddFallback("openai", "openai")
	fg.AddFallback("deepgram", "deepgram")
	return fg
}

func TestFallbackGroup_Names(t *testing.T) {
	fg := newChain(FallbackConfig{})
	want := []string{"whisper", "openai", "deepgram"}
	if got := fg.Names(); !slices.Equal(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
}

func TestFallbackGroup_Execute(t *testing.T) {
	tests := []struct {
		name      string
		failing   []string
		wantTried []string
		wantErr   bool
	}{
		{
			name:      "primary answers",
			wantTried: []string{"whisper"},
		},
		{
			name:      "second answers",
			failing:   []string{"whisper"},
			wantTried: []string{"whisper", "openai"},
		},
		{
			name:      "last answers",
			failing:   []string{"whisper", "openai"},
			wantTried: []string{"whisper", "openai", "deepgram"},
		},
		{
			name:      "nobody answers",
			failing:   []string{"whisper", "openai", "deepgram"},
			wantTried: []string{"whisper", "openai", "deepgram"},
			wantErr:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fg := newChain(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3}})
			var tried []string
			err := fg.Execute(func(name string) error {
				tried = append(tried, name)
				if slices.Contains(tt.failing, name) {
					return errTest
				}
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !slices.Equal(tried, tt.wantTried) {
				t.Errorf("tried %v, want %v", tried, tt.wantTried)
			}
		})
	}
}

func TestFallbackGroup_AllFailedWrapsLastError(t *testing.T) {
	fg := newChain(FallbackConfig{})
	errQuota := errors.New("deepgram: quota exceeded")

	err := fg.Execute(func(name string) error {
		if name == "deepgram" {
			return errQuota
		}
		return errTest
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errQuota) {
		t.Errorf("err = %v, want it to wrap the last provider's error", err)
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	var opened []string
	fg := newChain(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Hour,
		OnStateChange: func(name string, _, to State) {
			if to == StateOpen {
				opened = append(opened, name)
			}
		},
	}})

	for range 2 {
		_ = fg.Execute(func(name string) error {
			if name == "whisper" {
				return errTest
			}
			return nil
		})
	}
	if !slices.Equal(opened, []string{"whisper"}) {
		t.Fatalf("opened breakers = %v, want [whisper]", opened)
	}

	var tried []string
	if err := fg.Execute(func(name string) error {
		tried = append(tried, name)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(tried, []string{"openai"}) {
		t.Errorf("tried %v, want [openai] while whisper's breaker is open", tried)
	}
}

func TestFallbackGroup_OnlyOpenBreakersLeft(t *testing.T) {
	fg := NewFallbackGroup("coqui", "coqui", FallbackConfig{CircuitBreaker: CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Hour,
	}})
	_ = fg.Execute(func(string) error { return errTest })

	err := fg.Execute(func(string) error {
		t.Fatal("provider with an open breaker must not be called")
		return nil
	})
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrAllFailed wrapping ErrCircuitOpen", err)
	}
}

func TestExecuteWithResult(t *testing.T) {
	fg := NewFallbackGroup(24000, "openai", FallbackConfig{})
	fg.AddFallback("google", 16000)

	rate, err := ExecuteWithResult(fg, func(sampleRate int) (int, error) {
		if sampleRate == 24000 {
			return 0, errTest
		}
		return sampleRate, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate != 16000 {
		t.Errorf("rate = %d, want 16000 from the fallback", rate)
	}

	rate, err = ExecuteWithResult(fg, func(int) (int, error) { return 8000, errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if rate != 0 {
		t.Errorf("rate = %d, want zero value on failure", rate)
	}
}
