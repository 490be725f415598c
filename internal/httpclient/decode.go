package httpclient

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// acceptEncoding is sent on every Fetch request. The transport's automatic
// gzip handling is disabled so both encodings flow through decodeBody.
const acceptEncoding = "gzip, br"

// decodeBody wraps resp.Body according to Content-Encoding. The returned
// reader owns the body; closing it closes the underlying connection stream.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
		return resp.Body, nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		return &decodedReader{r: zr, body: resp.Body}, nil
	case "br":
		return &decodedReader{r: brotli.NewReader(resp.Body), body: resp.Body}, nil
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("unsupported content-encoding %q", enc)
	}
}

type decodedReader struct {
	r    io.Reader
	body io.ReadCloser
}

func (d *decodedReader) Read(p []byte) (int, error) { return d.r.Read(p) }

func (d *decodedReader) Close() error {
	if c, ok := d.r.(io.Closer); ok {
		c.Close()
	}
	return d.body.Close()
}
