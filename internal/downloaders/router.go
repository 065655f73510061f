// Package downloaders routes engine fetches to the backend that owns a URL
// scheme.
package downloaders

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/k1rakishou/chanfetch/internal/engine"
)

type Backend interface {
	engine.Fetcher
	engine.SiteProvider
}

// Router implements engine.Fetcher and engine.SiteProvider by scheme.
type Router struct {
	backends map[string]Backend
}

func NewRouter() *Router {
	return &Router{backends: make(map[string]Backend)}
}

func (r *Router) Register(backend Backend, schemes ...string) {
	for _, scheme := range schemes {
		r.backends[strings.ToLower(scheme)] = backend
	}
}

func (r *Router) Supports(link string) bool {
	_, err := r.backend(link)
	return err == nil
}

func (r *Router) backend(link string) (Backend, error) {
	parsed, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	backend, ok := r.backends[strings.ToLower(parsed.Scheme)]
	if !ok {
		return nil, fmt.Errorf("unsupported scheme: %q", parsed.Scheme)
	}
	return backend, nil
}

func (r *Router) Fetch(ctx context.Context, link string, rng *engine.ByteRange) (*engine.Response, error) {
	backend, err := r.backend(link)
	if err != nil {
		return nil, err
	}
	return backend.Fetch(ctx, link, rng)
}

func (r *Router) Resolve(ctx context.Context, link string) (engine.SiteInfo, error) {
	backend, err := r.backend(link)
	if err != nil {
		return engine.SiteInfo{Size: engine.UnknownSize}, err
	}
	return backend.Resolve(ctx, link)
}

// SchemeOf returns the lower-cased scheme of link, or "" when it does not parse.
func SchemeOf(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Scheme)
}
