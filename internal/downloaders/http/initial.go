package chanhttp

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/k1rakishou/chanfetch/internal/engine"
	"github.com/k1rakishou/chanfetch/internal/utils"
	"github.com/rs/zerolog"
)

// HTTPDownloader fetches http(s) media and probes it with HEAD requests.
type HTTPDownloader struct {
	client utils.HTTPDoer
	log    zerolog.Logger
}

func New(client utils.HTTPDoer) *HTTPDownloader {
	return &HTTPDownloader{client: client, log: utils.GetLogger("http")}
}

func ValidateURL(link string) error {
	parsedURL, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}

// Resolve sends a HEAD request and reports what the server claims about range
// support and size. Size is only trusted when Content-Length is present and
// positive.
func (d *HTTPDownloader) Resolve(ctx context.Context, link string) (engine.SiteInfo, error) {
	info := engine.SiteInfo{Size: engine.UnknownSize}
	if err := ValidateURL(link); err != nil {
		return info, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return info, fmt.Errorf("error creating request: %v", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return info, fmt.Errorf("error checking URL: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return info, fmt.Errorf("URL not found (404)")
	} else if resp.StatusCode >= 400 {
		return info, fmt.Errorf("server returned error: %d", resp.StatusCode)
	}

	info.FileName = fileNameFromHeader(resp.Header.Get("Content-Disposition"))
	if info.FileName == "" {
		info.FileName = FileNameFromURL(link)
	}
	info.Capabilities.SupportsByteRanges = resp.Header.Get("Accept-Ranges") == "bytes"
	if contentLength := resp.Header.Get("Content-Length"); contentLength != "" {
		if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil && size > 0 {
			info.Size = size
			info.Capabilities.ReportsAccurateContentLength = true
		}
	}
	d.log.Debug().Str("url", link).Int64("size", info.Size).Bool("ranges", info.Capabilities.SupportsByteRanges).Msg("Probed remote file")
	return info, nil
}

func fileNameFromHeader(contentDisposition string) string {
	if contentDisposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentDisposition)
	if err != nil {
		return ""
	}
	// mime decodes RFC 2231 "filename*" into "filename"
	if fn, ok := params["filename"]; ok && fn != "" {
		return fn
	}
	if fn, ok := params["filename*"]; ok && strings.HasPrefix(fn, "UTF-8''") {
		unescaped, _ := url.PathUnescape(strings.TrimPrefix(fn, "UTF-8''"))
		return unescaped
	}
	return ""
}

// FileNameFromURL returns the last path segment of link, or "download".
func FileNameFromURL(link string) string {
	parsedURL, err := url.Parse(link)
	if err != nil {
		return "download"
	}
	name := path.Base(parsedURL.Path)
	if name == "/" || name == "." || name == "" {
		return "download"
	}
	return name
}
