package engine

import (
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxConcurrency = 16
	DefaultBufferSize     = 256 * 1024
	DefaultStallTimeout   = 60 * time.Second
	DefaultDrainTimeout   = 10 * time.Second
	DefaultTempDirName    = ".chanfetch-temp"
)

type Option func(*Engine)

func WithFileSystem(fs FileSystem) Option {
	return func(e *Engine) { e.fs = fs }
}

func WithResolver(r DestinationResolver) Option {
	return func(e *Engine) { e.resolver = r }
}

func WithSiteProvider(p SiteProvider) Option {
	return func(e *Engine) { e.sites = p }
}

// WithMaxConcurrency bounds chunk workers across all requests of the engine.
func WithMaxConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxConcurrency = n
		}
	}
}

func WithMinChunkSize(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.minChunkSize = n
		}
	}
}

func WithBufferSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.bufferSize = n
		}
	}
}

// WithStallTimeout sets how long a request may go without progress; zero
// disables the watchdog.
func WithStallTimeout(d time.Duration) Option {
	return func(e *Engine) { e.stallTimeout = d }
}

func WithDrainTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.drainTimeout = d
		}
	}
}

// WithBandwidthLimit caps the combined read rate of every worker, in bytes
// per second. Zero means unlimited.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(e *Engine) {
		if bytesPerSecond > 0 {
			e.bandwidth = bytesPerSecond
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithTempDirName(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.tempDirName = name
		}
	}
}

func newLimiter(bytesPerSecond int64, bufferSize int) *rate.Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	// a single read may be a full buffer, so the burst must cover it
	burst := max(int(bytesPerSecond), bufferSize)
	return rate.NewLimiter(rate.Limit(bytesPerSecond), burst)
}
