package extractor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// downloadAttempts bounds the transient-network retry loop around one
// downloader invocation. Waits double per attempt.
const downloadAttempts = 10

// DownloadOpts configures one media download.
type DownloadOpts struct {
	Dir      string // target shard directory, created by the caller
	Basename string // output stem without extension; literal %% survives templating
	Rate     int64  // bytes/sec ceiling, 0 means unlimited
	Format   string // per-item format override, empty for default
	External string // external downloader name, empty for built-in
	Cookies  string // cookies file path, empty for none
}

// Download fetches the media plus its sidecar files (info.json, description,
// thumbnails) into opts.Dir. Transient network faults retry with exponential
// backoff; classified upstream refusals surface as the typed errors of
// classify.go.
func (r *Runner) Download(ctx context.Context, iid string, opts DownloadOpts) error {
	args := []string{
		"--merge-output-format", "mkv",
		"--write-all-thumbnails",
		"--add-metadata",
		"--write-info-json",
		"--write-description",
		"--retries", "10",
		"-o", filepath.Join(opts.Dir, escapeTemplate(opts.Basename)+".%(ext)s"),
	}
	if opts.Rate > 0 {
		args = append(args, "--limit-rate", fmt.Sprintf("%d", opts.Rate))
	}
	if opts.Format != "" {
		args = append(args, "--format", opts.Format)
	}
	if opts.External != "" {
		args = append(args, "--downloader", opts.External)
	}
	if opts.Cookies != "" {
		args = append(args, "--cookies", opts.Cookies)
	}
	args = append(args, watchURL(iid))

	var lastErr error
	for attempt := 0; attempt < downloadAttempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<(attempt-1)) * time.Second
			r.logger.Warn().Str("iid", iid).Dur("wait", wait).Msg("transient download failure, retrying")
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
			case <-time.After(wait):
			}
		}
		_, err := r.run(ctx, args...)
		if err == nil {
			return nil
		}
		if cls := Classify(err); cls != nil {
			return cls
		}
		if !transient(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("after %d attempts: %w", downloadAttempts, lastErr)
}

// escapeTemplate protects literal percent signs in a filename from the
// extractor's output templating.
func escapeTemplate(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}

func transient(err error) bool {
	var re *RunError
	if !errors.As(err, &re) {
		return false
	}
	return strings.Contains(re.Message, "Connection reset") ||
		strings.Contains(re.Message, "Temporary failure in name resolution")
}
