package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// testFetcher is a minimal net/http Fetcher; the production one lives in
// downloaders/http, which imports this package.
type testFetcher struct {
	client *http.Client
}

func (f testFetcher) Fetch(ctx context.Context, url string, rng *ByteRange) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if rng != nil {
		req.Header.Set("Range", rng.Header())
	}
	client := f.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	return &Response{
		Status:        resp.StatusCode,
		ContentLength: resp.ContentLength,
		TotalSize:     ParseContentRange(resp.Header.Get("Content-Range")),
		AcceptsRanges: resp.Header.Get("Accept-Ranges") == "bytes",
		Body:          resp.Body,
	}, nil
}

func testData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte((i * 7) % 251)
	}
	return data
}

// rangeHandler serves data honouring "bytes=a-b" ranges. hook runs before
// each ranged response and may take over the request by returning true.
func rangeHandler(data []byte, hook func(w http.ResponseWriter, r *http.Request, start, end int64) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.Write(data)
			return
		}
		rangeHeader = strings.TrimPrefix(rangeHeader, "bytes=")
		parts := strings.Split(rangeHeader, "-")
		start, _ := strconv.ParseInt(parts[0], 10, 64)
		end, _ := strconv.ParseInt(parts[1], 10, 64)
		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}
		if hook != nil && hook(w, r, start, end) {
			return
		}
		w.Header().Set("Content-Range", "bytes "+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10)+"/"+strconv.Itoa(len(data)))
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data[start : end+1])
	}
}

func newTestEngine(t *testing.T, site SiteProvider, opts ...Option) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	base := []Option{
		WithResolver(DirResolver{Root: root}),
		WithSiteProvider(site),
		WithMinChunkSize(16),
		WithBufferSize(64),
		WithStallTimeout(0),
		WithLogger(zerolog.Nop()),
	}
	e := New(testFetcher{}, append(base, opts...)...)
	t.Cleanup(e.Close)
	return e, root
}

type sizedSite struct {
	caps SiteCapabilities
	size int64
}

func (s sizedSite) Resolve(ctx context.Context, url string) (SiteInfo, error) {
	return SiteInfo{Capabilities: s.caps, Size: s.size}, nil
}

func rangedSite(size int) sizedSite {
	return sizedSite{caps: SiteCapabilities{SupportsByteRanges: true, ReportsAccurateContentLength: true}, size: int64(size)}
}

func awaitResult(t *testing.T, e *Engine, h Handle) (OutputFile, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := e.Await(ctx, h)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return out, err
}

// filesUnder lists every regular file below root, relative to it.
func filesUnder(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			rel, _ := filepath.Rel(root, path)
			files = append(files, rel)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func newServer(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return server
}
