package chanhttp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/k1rakishou/chanfetch/internal/engine"
)

// Fetch issues a GET, ranged when rng is set. The caller owns the body.
func (d *HTTPDownloader) Fetch(ctx context.Context, link string, rng *engine.ByteRange) (*engine.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %v", err)
	}
	if rng != nil {
		req.Header.Set("Range", rng.Header())
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %v", err)
	}
	return &engine.Response{
		Status:        resp.StatusCode,
		ContentLength: resp.ContentLength,
		TotalSize:     engine.ParseContentRange(resp.Header.Get("Content-Range")),
		AcceptsRanges: resp.Header.Get("Accept-Ranges") == "bytes",
		Body:          resp.Body,
	}, nil
}
