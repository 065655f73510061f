// Package engine downloads remote files as independently fetched byte-range
// chunks, then merges and verifies them into a single output file.
//
// A request moves through planning, downloading and merging. Any chunk
// failure fails the whole request, caller cancellation stops every worker,
// and in both cases every temp file of the request is removed. The caller
// only ever sees a verified file, an error, or ErrCanceled.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

type Engine struct {
	fetcher  Fetcher
	sites    SiteProvider
	fs       FileSystem
	resolver DestinationResolver
	log      zerolog.Logger

	maxConcurrency int
	minChunkSize   int64
	bufferSize     int
	stallTimeout   time.Duration
	drainTimeout   time.Duration
	bandwidth      int64
	tempDirName    string

	slots   *semaphore.Weighted
	limiter *rate.Limiter

	mu       sync.RWMutex
	requests map[Handle]*DownloadRequest
	reserved map[string]Handle
	closed   bool
	wg       sync.WaitGroup
}

func New(fetcher Fetcher, opts ...Option) *Engine {
	e := &Engine{
		fetcher:        fetcher,
		sites:          StaticSite{},
		fs:             OSFileSystem{},
		resolver:       DirResolver{Root: "."},
		log:            log.With().Str("component", "engine").Logger(),
		maxConcurrency: DefaultMaxConcurrency,
		minChunkSize:   DefaultMinChunkSize,
		bufferSize:     DefaultBufferSize,
		stallTimeout:   DefaultStallTimeout,
		drainTimeout:   DefaultDrainTimeout,
		tempDirName:    DefaultTempDirName,
		requests:       make(map[Handle]*DownloadRequest),
		reserved:       make(map[string]Handle),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.slots = semaphore.NewWeighted(int64(e.maxConcurrency))
	e.limiter = newLimiter(e.bandwidth, e.bufferSize)
	return e
}

// Submit registers a download and starts it in the background.
func (e *Engine) Submit(url string, extra ExtraInfo, dest DestinationInfo, maxChunks int) (Handle, error) {
	if url == "" {
		return Handle{}, errors.New("url is required")
	}
	if _, err := NewHash(extra.HashAlgorithm); err != nil {
		return Handle{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return Handle{}, errors.New("engine is closed")
	}
	req := newDownloadRequest(url, extra, dest, maxChunks, NewCancellationToken(context.Background()))
	e.requests[req.ID] = req
	e.wg.Add(1)
	go e.run(req)
	return req.ID, nil
}

func (e *Engine) Request(h Handle) (*DownloadRequest, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	req, ok := e.requests[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	return req, nil
}

func (e *Engine) Progress(h Handle) (Progress, error) {
	req, err := e.Request(h)
	if err != nil {
		return Progress{}, err
	}
	return req.Progress(), nil
}

func (e *Engine) State(h Handle) (State, error) {
	req, err := e.Request(h)
	if err != nil {
		return StatePlanning, err
	}
	return req.State(), nil
}

// Cancel asks the request to stop and returns at once. Teardown continues in
// the background; Await reports ErrCanceled when it is done.
func (e *Engine) Cancel(h Handle) error {
	req, err := e.Request(h)
	if err != nil {
		return err
	}
	e.cancelRequest(req)
	return nil
}

func (e *Engine) Await(ctx context.Context, h Handle) (OutputFile, error) {
	req, err := e.Request(h)
	if err != nil {
		return OutputFile{}, err
	}
	select {
	case <-req.Done():
		return req.Result()
	case <-ctx.Done():
		return OutputFile{}, ctx.Err()
	}
}

// Release forgets a finished request.
func (e *Engine) Release(h Handle) error {
	req, err := e.Request(h)
	if err != nil {
		return err
	}
	if !req.State().Terminal() {
		return fmt.Errorf("request %s is still %s", h, req.State())
	}
	e.mu.Lock()
	delete(e.requests, h)
	e.mu.Unlock()
	return nil
}

// Close cancels every running request and waits for their cleanup.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	reqs := make([]*DownloadRequest, 0, len(e.requests))
	for _, req := range e.requests {
		reqs = append(reqs, req)
	}
	e.mu.Unlock()
	for _, req := range reqs {
		e.cancelRequest(req)
	}
	e.wg.Wait()
}

func (e *Engine) run(req *DownloadRequest) {
	defer e.wg.Done()
	log := e.log.With().Str("request", req.ID.String()).Str("url", req.URL).Logger()
	start := time.Now()

	state, err := e.execute(req, log)
	e.cleanup(req)
	req.finish(state, err)

	switch state {
	case StateCompleted:
		out, _ := req.Result()
		log.Info().Str("output", out.Path).Int64("size", out.Size).Dur("elapsed", time.Since(start)).Msg("Download completed")
	case StateCanceled:
		log.Info().Msg("Download canceled")
	default:
		log.Error().Err(err).Msg("Download failed")
	}
}

func (e *Engine) execute(req *DownloadRequest, log zerolog.Logger) (State, error) {
	ctx := req.token.Context()

	dest, err := e.resolver.Resolve(req.Destination)
	if err != nil {
		return StateFailed, fmt.Errorf("error resolving destination: %w", err)
	}
	dest = e.reserveDestination(req.ID, dest)
	defer e.releaseDestinations(req.ID)
	info, err := e.sites.Resolve(ctx, req.URL)
	if err != nil {
		if req.token.Canceled() {
			return e.stoppedOutcome(req, ErrCanceled)
		}
		log.Debug().Err(err).Msg("Site metadata unavailable, using a single chunk")
		info = SiteInfo{Size: UnknownSize}
	}

	maxChunks := req.MaxChunks
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}
	plan := PlanChunks(info.Capabilities, info.Size, PlanOptions{
		MaxChunks:    min(maxChunks, e.maxConcurrency),
		MinChunkSize: e.minChunkSize,
	})
	if plan.Fallback != nil {
		log.Debug().Err(plan.Fallback).Msg("Planning fell back")
	}
	tempDir := filepath.Join(filepath.Dir(dest), e.tempDirName)
	req.setPlan(plan, tempDir, tempBaseName(dest, req))
	log.Debug().Int("chunks", plan.ChunkCount()).Bool("ranged", plan.Ranged).Int64("size", plan.Size).Msg("Download planned")

	if !req.advance(StatePlanning, StateDownloading) {
		return e.stoppedOutcome(req, ErrCanceled)
	}
	if err := e.fs.MkdirAll(tempDir); err != nil {
		return StateFailed, fmt.Errorf("error creating temp directory: %w", err)
	}

	chunks := req.Chunks()
	g, gctx := errgroup.WithContext(ctx)
	for _, chunk := range chunks {
		g.Go(func() error {
			return e.runChunk(gctx, req, chunk, plan)
		})
	}
	joined := make(chan error, 1)
	go func() { joined <- g.Wait() }()

	stopWatch := make(chan struct{})
	go e.watchStall(req, chunks, stopWatch)
	err = e.awaitDrain(req, joined, gctx.Done())
	close(stopWatch)
	if err != nil {
		return e.stoppedOutcome(req, err)
	}

	// only barrier: every chunk is completed past this point
	if !req.advance(StateDownloading, StateMerging) {
		return e.stoppedOutcome(req, ErrCanceled)
	}
	out, err := e.mergeChunks(req, dest)
	if err != nil {
		return StateFailed, err
	}
	req.progress.setTotal(out.Size)
	return StateCompleted, nil
}

// reserveDestination claims path for h, or the first renewed name that no
// other running request holds and that is not on disk. Claims last until
// the request finishes, by which point a completed output exists on disk.
func (e *Engine) reserveDestination(h Handle, path string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	candidate := path
	for index := 1; ; index++ {
		owner, held := e.reserved[candidate]
		if (!held || owner == h) && !e.exists(candidate) {
			e.reserved[candidate] = h
			return candidate
		}
		candidate = renewedPath(path, index)
	}
}

func (e *Engine) releaseDestinations(h Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for path, owner := range e.reserved {
		if owner == h {
			delete(e.reserved, path)
		}
	}
}

func (e *Engine) exists(path string) bool {
	_, err := e.fs.Size(path)
	return err == nil
}

// stoppedOutcome maps the join error onto a terminal state. A real chunk
// failure wins; otherwise the token cause decides between Canceled and a
// stall timeout.
func (e *Engine) stoppedOutcome(req *DownloadRequest, err error) (State, error) {
	var chunkErr *ChunkError
	if errors.As(err, &chunkErr) {
		return StateFailed, err
	}
	cause := req.token.Cause()
	if cause == nil {
		return StateFailed, err
	}
	if errors.Is(cause, ErrCanceled) {
		return StateCanceled, ErrCanceled
	}
	return StateFailed, cause
}
