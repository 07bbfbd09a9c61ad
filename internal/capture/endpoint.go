package capture

import (
	"fmt"
	"time"

	"github.com/MrWong99/harken/pkg/audio"
	"github.com/MrWong99/harken/pkg/provider/vad"
)

// Endpointer groups classified frames into phrases.
//
// While waiting for speech it keeps up to NonSpeakingDuration of audio as
// pre-roll. The first speech frame opens a phrase that continues until more
// than PauseThreshold of consecutive silence has been seen (or MaxUtterance
// is reached). Phrases with less than PhraseThreshold of voiced audio are
// dropped as noise; kept phrases have trailing silence beyond
// NonSpeakingDuration trimmed.
//
// An Endpointer is not safe for concurrent use.
type Endpointer struct {
	cfg  Config
	sess vad.SessionHandle

	inPhrase bool
	frames   []audio.AudioFrame
	buffered time.Duration
	// spoken is the audio since the phrase opened, excluding pre-roll.
	spoken time.Duration
	pause  time.Duration
	// trailing counts the frames that make up pause.
	trailing int
}

// NewEndpointer returns an Endpointer classifying frames with sess.
func NewEndpointer(cfg Config, sess vad.SessionHandle) (*Endpointer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("capture: vad session must not be nil")
	}
	return &Endpointer{cfg: cfg, sess: sess}, nil
}

// Push feeds one mono 16-bit frame. When the frame completes a phrase, the
// phrase's PCM is returned with done set.
func (e *Endpointer) Push(frame audio.AudioFrame) (pcm []byte, done bool, err error) {
	ev, err := e.sess.ProcessFrame(frame.Data)
	if err != nil {
		return nil, false, fmt.Errorf("capture: classify frame: %w", err)
	}
	d := frame.Duration()

	if !e.inPhrase {
		e.frames = append(e.frames, frame)
		e.buffered += d
		for len(e.frames) > 1 && e.buffered-e.frames[0].Duration() >= e.cfg.NonSpeakingDuration {
			e.buffered -= e.frames[0].Duration()
			e.frames[0] = audio.AudioFrame{}
			e.frames = e.frames[1:]
		}
		if ev.IsSpeech() {
			e.inPhrase = true
			e.spoken = d
			e.pause, e.trailing = 0, 0
			e.holdAdaptation(true)
		}
		return nil, false, nil
	}

	e.frames = append(e.frames, frame)
	e.buffered += d
	e.spoken += d
	if ev.IsSpeech() {
		e.pause, e.trailing = 0, 0
	} else {
		e.pause += d
		e.trailing++
	}

	if e.pause > e.cfg.PauseThreshold || (e.cfg.MaxUtterance > 0 && e.spoken >= e.cfg.MaxUtterance) {
		pcm, ok := e.finish()
		return pcm, ok, nil
	}
	return nil, false, nil
}

// Flush ends an in-progress phrase, for example when the source reaches end
// of input. It returns the phrase if it is long enough to keep.
func (e *Endpointer) Flush() ([]byte, bool) {
	if !e.inPhrase {
		e.reset()
		return nil, false
	}
	return e.finish()
}

// InPhrase reports whether a phrase is currently open.
func (e *Endpointer) InPhrase() bool { return e.inPhrase }

func (e *Endpointer) finish() ([]byte, bool) {
	defer e.reset()

	voiced := e.spoken - e.pause
	if voiced < e.cfg.PhraseThreshold {
		return nil, false
	}

	frames := e.frames
	excess := e.pause - e.cfg.NonSpeakingDuration
	for i := 0; i < e.trailing && len(frames) > 0 && excess > 0; i++ {
		last := frames[len(frames)-1].Duration()
		if last > excess {
			break
		}
		excess -= last
		frames = frames[:len(frames)-1]
	}

	size := 0
	for _, f := range frames {
		size += len(f.Data)
	}
	pcm := make([]byte, 0, size)
	for _, f := range frames {
		pcm = append(pcm, f.Data...)
	}
	return pcm, len(pcm) > 0
}

func (e *Endpointer) reset() {
	clear(e.frames)
	e.frames = e.frames[:0]
	if e.inPhrase {
		e.holdAdaptation(false)
	}
	e.inPhrase = false
	e.buffered, e.spoken, e.pause, e.trailing = 0, 0, 0, 0
}

// holdAdaptation freezes an adaptive VAD threshold while a phrase is open.
func (e *Endpointer) holdAdaptation(hold bool) {
	if h, ok := e.sess.(vad.AdaptationHolder); ok {
		h.HoldAdaptation(hold)
	}
}
