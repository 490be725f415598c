// Package extractor wraps the external metadata extractor / downloader
// binary (yt-dlp). It owns subprocess invocation, output capture, and the
// mapping of the tool's stderr chatter onto typed errors the sync and
// download layers act on.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cmlburnett/ydl/internal/log"
)

// EmptyListRetries bounds the re-run loop for flat listings. The extractor
// occasionally reports success with zero entries; a couple of retries
// usually shakes a real listing loose.
const EmptyListRetries = 3

// DefaultBinary is looked up on PATH when no explicit path is configured.
const DefaultBinary = "yt-dlp"

var (
	// ErrEmptyList means the listing stayed empty through all retries.
	ErrEmptyList = errors.New("extractor returned no entries")
	// ErrInterrupted means the operator canceled mid-invocation; callers
	// abort the whole batch.
	ErrInterrupted = errors.New("extractor interrupted")
)

// Runner invokes the extractor binary.
type Runner struct {
	bin    string
	logger zerolog.Logger
}

func NewRunner(bin string) *Runner {
	if bin == "" {
		bin = DefaultBinary
	}
	return &Runner{bin: bin, logger: log.WithComponent("extractor")}
}

// run executes the binary and returns captured stdout. stderr is carried in
// the error so classification can inspect the tool's message text.
func (r *Runner) run(ctx context.Context, args ...string) ([]byte, error) {
	r.logger.Debug().Strs("args", args).Msg("exec")
	cmd := exec.CommandContext(ctx, r.bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return stdout.Bytes(), &RunError{Binary: r.bin, Message: msg}
	}
	return stdout.Bytes(), nil
}

// RunError is a non-zero exit from the extractor with its stderr text.
type RunError struct {
	Binary  string
	Message string
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %s", e.Binary, e.Message)
}

func watchURL(iid string) string {
	return "https://www.youtube.com/watch?v=" + iid
}
