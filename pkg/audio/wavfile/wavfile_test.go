package wavfile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/harken/pkg/audio"
	"github.com/MrWong99/harken/pkg/audio/wavfile"
)

func writeWAV(t *testing.T, dir, name string, samples, rate, channels int) string {
	t.Helper()
	pcm := make([]byte, samples*2*channels)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, audio.EncodeWAV(pcm, rate, channels), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestSource_ReadsFramesThenCloses(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeWAV(t, dir, "one.wav", 1000, 16000, 1)

	src, err := wavfile.New(path,
		wavfile.WithFramesPerBuffer(512),
		wavfile.WithTrailingSilence(0),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer src.Close()

	var frames int
	for {
		f, err := src.Read(ctx)
		if errors.Is(err, audio.ErrSourceClosed) {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if len(f.Data) != 1024 {
			t.Errorf("frame size = %d bytes, want 1024", len(f.Data))
		}
		frames++
	}
	if frames != 2 {
		t.Errorf("frames = %d, want 2 (1000 samples in 512-sample frames)", frames)
	}
}

func TestSource_DirectoryConvertsFormat(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeWAV(t, dir, "b.wav", 4800, 48000, 2)
	writeWAV(t, dir, "a.wav", 1600, 16000, 1)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	src, err := wavfile.New(dir, wavfile.WithFramesPerBuffer(160), wavfile.WithTrailingSilence(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var total int
	for {
		f, err := src.Read(context.Background())
		if err != nil {
			break
		}
		if f.SampleRate != 16000 || f.Channels != 1 {
			t.Fatalf("frame format = %dHz %dch, want 16000Hz mono", f.SampleRate, f.Channels)
		}
		total += len(f.Data) / 2
	}
	// 1600 samples + 4800 frames at 48k → 1600 samples at 16k.
	if total != 3200 {
		t.Errorf("total samples = %d, want 3200", total)
	}
}

func TestSource_CorruptFileIsDeviceError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("not a wav"), 0o600); err != nil {
		t.Fatal(err)
	}
	src, err := wavfile.New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := src.Start(context.Background()); !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Errorf("Start err = %v, want ErrDeviceUnavailable", err)
	}
}

func TestNew_EmptyDirectory(t *testing.T) {
	t.Parallel()
	if _, err := wavfile.New(t.TempDir()); err == nil {
		t.Error("expected error for directory without WAV files")
	}
}
