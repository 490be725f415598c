package extractor

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// Info is the extractor's per-item metadata document, either captured from
// a --dump-json run or parsed back out of an info.json file on disk.
type Info struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Uploader   string        `json:"uploader"`
	ChannelID  string        `json:"channel_id"`
	Duration   float64       `json:"duration"`
	UploadDate string        `json:"upload_date"` // YYYYMMDD
	Thumbnails []Thumbnail   `json:"thumbnails"`
	Formats    []Format      `json:"formats"`
	Chapters   []InfoChapter `json:"chapters"`

	Subtitles         map[string][]Caption `json:"subtitles"`
	AutomaticCaptions map[string][]Caption `json:"automatic_captions"`
}

type Thumbnail struct {
	URL string `json:"url"`
}

type Format struct {
	Filesize       int64 `json:"filesize"`
	FilesizeApprox int64 `json:"filesize_approx"`
}

// Size returns the advertised byte size of a format, preferring the exact
// figure over the approximation.
func (f Format) Size() int64 {
	if f.Filesize > 0 {
		return f.Filesize
	}
	return f.FilesizeApprox
}

type InfoChapter struct {
	StartTime float64 `json:"start_time"`
	Title     string  `json:"title"`
}

type Caption struct {
	URL string `json:"url"`
	Ext string `json:"ext"`
}

// PublishTime converts the extractor's date-only upload stamp, when present.
func (i *Info) PublishTime() *time.Time {
	if len(i.UploadDate) != 8 {
		return nil
	}
	t, err := time.Parse("20060102", i.UploadDate)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// ThumbnailURLs flattens the thumbnail list for catalog storage.
func (i *Info) ThumbnailURLs() []string {
	var urls []string
	for _, t := range i.Thumbnails {
		if t.URL != "" {
			urls = append(urls, t.URL)
		}
	}
	return urls
}

// ParseInfo decodes one metadata document.
func ParseInfo(data []byte) (*Info, error) {
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse info json: %w", err)
	}
	return &info, nil
}

// VideoInfo fetches metadata for one item without downloading media.
// Classified failures surface as the typed errors of classify.go.
func (r *Runner) VideoInfo(ctx context.Context, iid string) (*Info, error) {
	out, err := r.run(ctx, "--skip-download", "--dump-json", "--quiet", "--no-warnings", watchURL(iid))
	if err != nil {
		if cls := Classify(err); cls != nil {
			return nil, cls
		}
		return nil, err
	}
	return ParseInfo(out)
}
