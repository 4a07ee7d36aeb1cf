package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// ErrConversionFailed covers every way the transcode can go wrong: timeout,
// non-zero exit, unreadable output. Callers only branch on this sentinel.
var ErrConversionFailed = errors.New("audio conversion failed")

// Runner invokes the external transcoder process. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run()
}

// Normalizer converts browser-captured audio (typically webm/opus) into
// mono 16 kHz PCM WAV via ffmpeg, under a hard time budget.
type Normalizer struct {
	runner     Runner
	ffmpegPath string
	timeout    time.Duration
	tempDir    string // "" means the system default
}

// Option tweaks a Normalizer; used by tests to inject a fake runner.
type Option func(*Normalizer)

// WithRunner substitutes the transcoder invocation.
func WithRunner(r Runner) Option {
	return func(n *Normalizer) { n.runner = r }
}

// WithTempDir redirects temporary staging files.
func WithTempDir(dir string) Option {
	return func(n *Normalizer) { n.tempDir = dir }
}

// WithTimeout overrides the conversion time budget.
func WithTimeout(d time.Duration) Option {
	return func(n *Normalizer) { n.timeout = d }
}

// NewNormalizer builds a Normalizer with the fixed production argument set.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		runner:     execRunner{},
		ffmpegPath: "ffmpeg",
		timeout:    2 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize writes the input to a staging file, runs the transcoder with a
// fixed argument set (mono downmix, 16 kHz resample, uncompressed WAV) and
// returns the converted bytes. Both temporary files are removed on every
// exit path; leaked staging files under load are the failure mode this
// method exists to prevent.
func (n *Normalizer) Normalize(ctx context.Context, input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrConversionFailed)
	}

	in, err := os.CreateTemp(n.tempDir, "utterance-*.webm")
	if err != nil {
		return nil, fmt.Errorf("%w: staging input: %v", ErrConversionFailed, err)
	}
	defer os.Remove(in.Name())

	if _, err := in.Write(input); err != nil {
		in.Close()
		return nil, fmt.Errorf("%w: writing input: %v", ErrConversionFailed, err)
	}
	if err := in.Close(); err != nil {
		return nil, fmt.Errorf("%w: closing input: %v", ErrConversionFailed, err)
	}

	out, err := os.CreateTemp(n.tempDir, "utterance-*.wav")
	if err != nil {
		return nil, fmt.Errorf("%w: staging output: %v", ErrConversionFailed, err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	runCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	args := []string{
		"-y", "-i", in.Name(),
		"-ac", "1", "-ar", "16000", "-f", "wav",
		"-loglevel", "error",
		outPath,
	}
	if err := n.runner.Run(runCtx, n.ffmpegPath, args...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	wav, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading output: %v", ErrConversionFailed, err)
	}
	if len(wav) == 0 {
		return nil, fmt.Errorf("%w: transcoder produced no output", ErrConversionFailed)
	}

	return wav, nil
}
