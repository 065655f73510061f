package downloaders

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/k1rakishou/chanfetch/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSite struct {
	calls atomic.Int32
}

func (s *countingSite) Resolve(ctx context.Context, url string) (engine.SiteInfo, error) {
	n := s.calls.Add(1)
	return engine.SiteInfo{FileName: "1700000000000.webm", Size: int64(n)}, nil
}

func TestResolveCacheServesPrefetchOnce(t *testing.T) {
	site := &countingSite{}
	cache := NewResolveCache(site)
	link := "https://i.example/g/1700000000000.webm"

	prefetched, err := cache.Prefetch(t.Context(), link)
	require.NoError(t, err)
	info, err := cache.Resolve(t.Context(), link)
	require.NoError(t, err)
	assert.Equal(t, prefetched, info)
	assert.Equal(t, int32(1), site.calls.Load())

	info, err = cache.Resolve(t.Context(), link)
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Size)
	assert.Equal(t, int32(2), site.calls.Load())
}

func TestResolveCacheSkipsFailedPrefetch(t *testing.T) {
	r := NewRouter()
	cache := NewResolveCache(r)
	_, err := cache.Prefetch(t.Context(), "ftp://example.invalid/a")
	require.Error(t, err)
	_, err = cache.Resolve(t.Context(), "ftp://example.invalid/a")
	assert.ErrorContains(t, err, "unsupported scheme")
}
