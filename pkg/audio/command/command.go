// Package command provides an [audio.Player] that pipes each clip as a WAV
// file into an external program such as aplay, paplay or afplay. It needs no
// cgo and is the default playback back-end.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/MrWong99/harken/pkg/audio"
	"github.com/MrWong99/harken/pkg/types"
)

// DefaultArgs is the command used when none is configured. "-" makes aplay
// read the WAV stream from stdin.
var DefaultArgs = []string{"aplay", "-q", "-"}

// waitDelay bounds how long Play waits for stdio after the process is killed.
const waitDelay = 2 * time.Second

// Player runs one process per clip and waits for it to exit.
type Player struct {
	args     []string
	fileMode bool
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

var _ audio.Player = (*Player)(nil)

// Option configures a [Player].
type Option func(*Player)

// WithFileArgument writes the clip to a temporary file and appends its path
// to the command line instead of using stdin. Required for players such as
// afplay that cannot read from a pipe.
func WithFileArgument() Option {
	return func(p *Player) { p.fileMode = true }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Player) {
		if l != nil {
			p.logger = l
		}
	}
}

// New returns a Player for the given command line. An empty args uses
// [DefaultArgs]. The executable must be on PATH; a missing binary is reported
// as [audio.ErrDeviceUnavailable].
func New(args []string, opts ...Option) (*Player, error) {
	if len(args) == 0 {
		args = DefaultArgs
	}
	p := &Player{args: args, logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return nil, fmt.Errorf("%w: command: %w", audio.ErrDeviceUnavailable, err)
	}
	return p, nil
}

// Play implements [audio.Player]. Cancelling ctx kills the process.
func (p *Player) Play(ctx context.Context, clip *types.AudioClip) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("command: player closed")
	}
	if clip == nil || len(clip.PCM) == 0 {
		return nil
	}

	wav := audio.EncodeClipWAV(clip)
	args := append([]string(nil), p.args[1:]...)

	var stdin *bytes.Reader
	if p.fileMode {
		path, cleanup, err := writeTemp(wav)
		if err != nil {
			return err
		}
		defer cleanup()
		args = append(args, path)
	} else {
		stdin = bytes.NewReader(wav)
	}

	cmd := exec.CommandContext(ctx, p.args[0], args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	p.logger.Debug("playing clip", "command", p.args[0], "duration", clip.Duration())
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("command: %s: %w: %s", p.args[0], err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// Close implements [audio.Player].
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func writeTemp(wav []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "harken-reply-*.wav")
	if err != nil {
		return "", nil, fmt.Errorf("command: create temp file: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }
	if _, err := f.Write(wav); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("command: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("command: close temp file: %w", err)
	}
	return filepath.Clean(path), cleanup, nil
}
