package audio_test

import (
	"context"
	"errors"
	"os"
	"testing"

	audio "github.com/zhouzirui/einstein-live/backend/internal/service/audio"
)

// fakeRunner mimics ffmpeg by writing canned bytes to the output path,
// which is always the final argument.
type fakeRunner struct {
	output []byte
	err    error
	calls  int
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	outPath := args[len(args)-1]
	return os.WriteFile(outPath, f.output, 0o600)
}

func mustBeEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir err: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp dir not cleaned up, %d files left", len(entries))
	}
}

func TestNormalizeSuccess(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{output: []byte("RIFFwav-bytes")}
	n := audio.NewNormalizer(audio.WithRunner(runner), audio.WithTempDir(dir))

	wav, err := n.Normalize(context.Background(), []byte("webm-bytes"))
	if err != nil {
		t.Fatalf("Normalize err: %v", err)
	}
	if string(wav) != "RIFFwav-bytes" {
		t.Fatalf("unexpected output: %q", wav)
	}
	mustBeEmpty(t, dir)
}

func TestNormalizeEmptyInput(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{output: []byte("unused")}
	n := audio.NewNormalizer(audio.WithRunner(runner), audio.WithTempDir(dir))

	if _, err := n.Normalize(context.Background(), nil); !errors.Is(err, audio.ErrConversionFailed) {
		t.Fatalf("expected ErrConversionFailed, got %v", err)
	}
	if runner.calls != 0 {
		t.Fatal("transcoder should not run on empty input")
	}
	mustBeEmpty(t, dir)
}

func TestNormalizeTranscoderFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{err: errors.New("exit status 1")}
	n := audio.NewNormalizer(audio.WithRunner(runner), audio.WithTempDir(dir))

	if _, err := n.Normalize(context.Background(), []byte("corrupt")); !errors.Is(err, audio.ErrConversionFailed) {
		t.Fatalf("expected ErrConversionFailed, got %v", err)
	}
	mustBeEmpty(t, dir)
}

func TestNormalizeEmptyOutputIsFailure(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{output: nil}
	n := audio.NewNormalizer(audio.WithRunner(runner), audio.WithTempDir(dir))

	if _, err := n.Normalize(context.Background(), []byte("audio")); !errors.Is(err, audio.ErrConversionFailed) {
		t.Fatalf("expected ErrConversionFailed, got %v", err)
	}
	mustBeEmpty(t, dir)
}
