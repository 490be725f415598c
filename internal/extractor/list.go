package extractor

import (
	"bytes"
	"context"
	"fmt"

	json "github.com/goccy/go-json"
)

// ListEntry is one item of a flat listing, in listing order.
type ListEntry struct {
	IID   string
	Title string
}

// Listing is the result of a flat enumeration of one source URL.
type Listing struct {
	Title    string
	Uploader string
	Entries  []ListEntry
}

// flatLine is the newline-delimited JSON the extractor emits per entry in
// flat mode. Playlist-typed lines carry source-level metadata.
type flatLine struct {
	Type     string `json:"_type"`
	ID       string `json:"id"`
	Title    string `json:"title"`
	Uploader string `json:"uploader"`
}

// FlatList enumerates url without downloading anything. Empty results are
// retried up to EmptyListRetries times before failing with ErrEmptyList.
func (r *Runner) FlatList(ctx context.Context, url string) (*Listing, error) {
	var lastErr error
	for attempt := 0; attempt < EmptyListRetries; attempt++ {
		out, err := r.run(ctx, "--flat-playlist", "--dump-json", "--quiet", "--no-warnings", url)
		if err != nil {
			return nil, err
		}
		listing, err := parseFlatOutput(out)
		if err != nil {
			return nil, err
		}
		if len(listing.Entries) > 0 {
			return listing, nil
		}
		lastErr = fmt.Errorf("%w: %s", ErrEmptyList, url)
		r.logger.Warn().Str("url", url).Int("attempt", attempt+1).Msg("empty listing, retrying")
	}
	return nil, lastErr
}

func parseFlatOutput(out []byte) (*Listing, error) {
	listing := &Listing{}
	for _, line := range bytes.Split(out, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var fl flatLine
		if err := json.Unmarshal(line, &fl); err != nil {
			return nil, fmt.Errorf("parse listing line: %w", err)
		}
		if fl.Type == "playlist" {
			if fl.Title != "" {
				listing.Title = fl.Title
			}
			if fl.Uploader != "" {
				listing.Uploader = fl.Uploader
			}
			continue
		}
		if fl.ID == "" {
			continue
		}
		listing.Entries = append(listing.Entries, ListEntry{IID: fl.ID, Title: fl.Title})
	}
	return listing, nil
}
