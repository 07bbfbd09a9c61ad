package command_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/harken/pkg/audio"
	"github.com/MrWong99/harken/pkg/audio/command"
	"github.com/MrWong99/harken/pkg/types"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func testClip() *types.AudioClip {
	return &types.AudioClip{PCM: []byte{1, 0, 2, 0, 3, 0, 4, 0}, SampleRate: 24000, Channels: 1}
}

func TestPlay_PipesWAVToStdin(t *testing.T) {
	t.Parallel()
	requireShell(t)

	out := filepath.Join(t.TempDir(), "out.wav")
	p, err := command.New([]string{"sh", "-c", "cat > " + out})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Play(context.Background(), testClip()); err != nil {
		t.Fatalf("Play: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	clip, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if clip.SampleRate != 24000 || len(clip.PCM) != 8 {
		t.Errorf("clip = %dHz %d bytes, want 24000Hz 8 bytes", clip.SampleRate, len(clip.PCM))
	}
}

func TestPlay_FileArgument(t *testing.T) {
	t.Parallel()
	requireShell(t)

	out := filepath.Join(t.TempDir(), "copy.wav")
	p, err := command.New([]string{"sh", "-c", `cp "$0" ` + out}, command.WithFileArgument())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Play(context.Background(), testClip()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("expected copied file: %v", err)
	}
}

func TestPlay_CommandFailure(t *testing.T) {
	t.Parallel()
	requireShell(t)

	p, err := command.New([]string{"sh", "-c", "echo boom >&2; exit 3"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = p.Play(context.Background(), testClip())
	if err == nil {
		t.Fatal("expected error from failing command")
	}
}

func TestPlay_ContextCancelKillsProcess(t *testing.T) {
	t.Parallel()
	requireShell(t)

	p, err := command.New([]string{"sh", "-c", "exec sleep 10"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = p.Play(ctx, testClip())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Play did not return promptly after cancellation")
	}
}

func TestPlay_EmptyClipIsNoop(t *testing.T) {
	t.Parallel()
	requireShell(t)

	p, err := command.New([]string{"sh", "-c", "exit 1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Play(context.Background(), &types.AudioClip{}); err != nil {
		t.Errorf("Play(empty) = %v, want nil", err)
	}
}

func TestNew_MissingBinary(t *testing.T) {
	t.Parallel()
	_, err := command.New([]string{"definitely-not-a-real-player-binary"})
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Errorf("err = %v, want ErrDeviceUnavailable", err)
	}
}
