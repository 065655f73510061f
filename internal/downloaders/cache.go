package downloaders

import (
	"context"
	"sync"

	"github.com/k1rakishou/chanfetch/internal/engine"
)

// ResolveCache holds site metadata that was looked up ahead of a download so
// the engine does not probe the same link again. Each prefetched entry is
// handed out once; later lookups go to the wrapped provider.
type ResolveCache struct {
	sites engine.SiteProvider
	mu    sync.Mutex
	infos map[string]engine.SiteInfo
}

func NewResolveCache(sites engine.SiteProvider) *ResolveCache {
	return &ResolveCache{sites: sites, infos: make(map[string]engine.SiteInfo)}
}

// Prefetch resolves link and keeps the result for the next Resolve. Failed
// lookups are not kept.
func (c *ResolveCache) Prefetch(ctx context.Context, link string) (engine.SiteInfo, error) {
	info, err := c.sites.Resolve(ctx, link)
	if err != nil {
		return info, err
	}
	c.mu.Lock()
	c.infos[link] = info
	c.mu.Unlock()
	return info, nil
}

func (c *ResolveCache) Resolve(ctx context.Context, link string) (engine.SiteInfo, error) {
	c.mu.Lock()
	info, ok := c.infos[link]
	delete(c.infos, link)
	c.mu.Unlock()
	if ok {
		return info, nil
	}
	return c.sites.Resolve(ctx, link)
}
