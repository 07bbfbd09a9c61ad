// Package wake implements the wake-phrase gate that sits between the
// transcription and responder stages.
//
// A transcript is acted upon only when it starts with the configured wake
// phrase. Matching is case-insensitive and anchored at the start of the
// trimmed transcript, so "oh hey computer" never triggers "hey computer". A
// run of whitespace in the transcript matches a single space in the phrase.
// The phrase is removed and the remainder trimmed; a remainder that is empty
// or only punctuation ("Hey computer.") means the user said only the wake
// phrase and is not forwarded.
//
// With [WithPhonetic] the gate also accepts leading words that sound like the
// phrase (Double Metaphone code overlap plus Jaro-Winkler similarity), which
// absorbs common transcription slips such as "hey computor".
package wake

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// ErrEmptyPhrase is returned by [New] when the wake phrase is blank.
var ErrEmptyPhrase = errors.New("wake: phrase must not be empty")

const defaultPhoneticThreshold = 0.85

// Option configures a [Gate].
type Option func(*Gate)

// WithPhonetic enables phonetic matching of the leading words. threshold is
// the minimum Jaro-Winkler score for each word pair; values outside (0, 1]
// select the default of 0.85.
func WithPhonetic(threshold float64) Option {
	return func(g *Gate) {
		if threshold <= 0 || threshold > 1 {
			threshold = defaultPhoneticThreshold
		}
		g.phonetic = true
		g.threshold = threshold
	}
}

// Gate decides whether a transcript is addressed to the assistant. It is
// read-only after construction and safe for concurrent use.
type Gate struct {
	phrase    string
	words     []string
	phonetic  bool
	threshold float64
}

// New returns a Gate for phrase. The phrase is lowercased and its whitespace
// normalised.
func New(phrase string, opts ...Option) (*Gate, error) {
	words := strings.Fields(strings.ToLower(phrase))
	if len(words) == 0 {
		return nil, ErrEmptyPhrase
	}
	g := &Gate{
		phrase: strings.Join(words, " "),
		words:  words,
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Phrase returns the normalised wake phrase.
func (g *Gate) Phrase() string { return g.phrase }

// Match reports whether transcript starts with the wake phrase and returns
// the trimmed remainder. ok is false when the phrase is absent or nothing
// follows it.
func (g *Gate) Match(transcript string) (question string, ok bool) {
	question, _ = g.Detect(transcript)
	return question, question != ""
}

// Detect is like [Gate.Match] but reports whether the wake phrase was heard
// at all, so a bare "hey computer" (heard, empty remainder) can be told apart
// from a transcript without the phrase.
func (g *Gate) Detect(transcript string) (remainder string, heard bool) {
	text := strings.TrimSpace(transcript)
	n := prefixLen(text, g.phrase)
	if n < 0 && g.phonetic {
		n = g.phoneticPrefixLen(text)
	}
	if n < 0 {
		return "", false
	}
	remainder = strings.TrimSpace(text[n:])
	if g.phonetic {
		remainder = strings.TrimLeftFunc(remainder, isSeparator)
	}
	if strings.TrimFunc(remainder, isSeparator) == "" {
		return "", true
	}
	return remainder, true
}

// prefixLen returns the number of bytes of s consumed by matching phrase
// case-insensitively at the start of s, or -1. A space in phrase consumes one
// or more whitespace runes in s.
func prefixLen(s, phrase string) int {
	i := 0
	for _, pr := range phrase {
		if i >= len(s) {
			return -1
		}
		if pr == ' ' {
			j := i
			for j < len(s) {
				r, size := utf8.DecodeRuneInString(s[j:])
				if !unicode.IsSpace(r) {
					break
				}
				j += size
			}
			if j == i {
				return -1
			}
			i = j
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if !foldEqual(r, pr) {
			return -1
		}
		i += size
	}
	return i
}

// foldEqual reports whether a and b are equal under Unicode simple case
// folding.
func foldEqual(a, b rune) bool {
	if a == b {
		return true
	}
	for f := unicode.SimpleFold(a); f != a; f = unicode.SimpleFold(f) {
		if f == b {
			return true
		}
	}
	return false
}

// phoneticPrefixLen matches the first len(g.words) words of s against the
// phrase words and returns the byte offset just past the last matched word,
// or -1.
func (g *Gate) phoneticPrefixLen(s string) int {
	end := 0
	for _, want := range g.words {
		start, stop := nextWord(s, end)
		if start < 0 {
			return -1
		}
		got := strings.ToLower(strings.TrimFunc(s[start:stop], isSeparator))
		if !g.soundsLike(got, want) {
			return -1
		}
		end = stop
	}
	return end
}

func (g *Gate) soundsLike(got, want string) bool {
	if got == want {
		return true
	}
	if got == "" {
		return false
	}
	if matchr.JaroWinkler(got, want, false) < g.threshold {
		return false
	}
	gp, gs := matchr.DoubleMetaphone(got)
	wp, ws := matchr.DoubleMetaphone(want)
	for _, a := range []string{gp, gs} {
		if a == "" {
			continue
		}
		if a == wp || a == ws {
			return true
		}
	}
	return false
}

// nextWord returns the byte bounds of the first whitespace-delimited word in
// s at or after offset, or -1, -1.
func nextWord(s string, offset int) (int, int) {
	start := -1
	for i, r := range s[offset:] {
		space := unicode.IsSpace(r)
		switch {
		case start < 0 && !space:
			start = offset + i
		case start >= 0 && space:
			return start, offset + i
		}
	}
	if start < 0 {
		return -1, -1
	}
	return start, len(s)
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}
