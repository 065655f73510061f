package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	chanhttp "github.com/k1rakishou/chanfetch/internal/downloaders/http"
	"github.com/k1rakishou/chanfetch/internal/engine"
	"github.com/k1rakishou/chanfetch/internal/output"
	"github.com/k1rakishou/chanfetch/internal/utils"
	"github.com/rs/zerolog"
)

// Engine is the part of engine.Engine the scheduler drives.
type Engine interface {
	Submit(url string, extra engine.ExtraInfo, dest engine.DestinationInfo, maxChunks int) (engine.Handle, error)
	Progress(h engine.Handle) (engine.Progress, error)
	Cancel(h engine.Handle) error
	Await(ctx context.Context, h engine.Handle) (engine.OutputFile, error)
	Release(h engine.Handle) error
}

// Namer picks a file name for entries that do not set one.
type Namer func(ctx context.Context, link string) string

type Scheduler struct {
	engine      Engine
	output      *output.Manager
	namer       Namer
	connections int
	tick        time.Duration
	log         zerolog.Logger
}

func New(e Engine, out *output.Manager, connections int, namer Namer) *Scheduler {
	if namer == nil {
		namer = func(_ context.Context, link string) string { return chanhttp.FileNameFromURL(link) }
	}
	return &Scheduler{
		engine:      e,
		output:      out,
		namer:       namer,
		connections: connections,
		tick:        200 * time.Millisecond,
		log:         utils.GetLogger("scheduler"),
	}
}

// Run submits every entry at once and waits for all of them. The engine's
// concurrency cap decides how many chunks actually run. Canceling ctx cancels
// every pending download. The returned error joins all per-entry failures.
func (s *Scheduler) Run(ctx context.Context, entries []Entry) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	addErr := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for _, entry := range entries {
		name := entry.OutputPath
		if name == "" {
			name = s.namer(ctx, entry.Link)
		}
		id := s.output.Register(name)
		connections := entry.Connections
		if connections <= 0 {
			connections = s.connections
		}
		h, err := s.engine.Submit(entry.Link, entry.Extra(), engine.DestinationInfo{Dirs: entry.Dirs, FileName: name}, connections)
		if err != nil {
			s.output.ReportError(id, err)
			addErr(fmt.Errorf("%s: %w", entry.Link, err))
			continue
		}
		s.output.SetMessage(id, fmt.Sprintf("Downloading %s", name))
		s.log.Debug().Str("url", entry.Link).Str("request", h.String()).Int("connections", connections).Msg("Download submitted")

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.track(ctx, h, id, name); err != nil {
				addErr(fmt.Errorf("%s: %w", entry.Link, err))
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

type result struct {
	out engine.OutputFile
	err error
}

func (s *Scheduler) track(ctx context.Context, h engine.Handle, id int, name string) error {
	defer s.engine.Release(h)
	done := make(chan result, 1)
	go func() {
		out, err := s.engine.Await(context.Background(), h)
		done <- result{out: out, err: err}
	}()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	canceled := ctx.Done()
	for {
		select {
		case <-ticker.C:
			if p, err := s.engine.Progress(h); err == nil {
				s.output.SetProgress(id, p.Downloaded, p.Total)
			}
		case <-canceled:
			s.engine.Cancel(h)
			canceled = nil
		case res := <-done:
			switch {
			case res.err == nil:
				s.output.Complete(id, fmt.Sprintf("Completed %s (%s)", res.out.Path, utils.FormatBytes(uint64(res.out.Size))))
				s.log.Info().Str("output", res.out.Path).Int64("size", res.out.Size).Msg("Saved file")
				return nil
			case errors.Is(res.err, engine.ErrCanceled):
				s.output.Warn(id, fmt.Sprintf("Canceled %s", name))
				return res.err
			default:
				s.output.ReportError(id, res.err)
				return res.err
			}
		}
	}
}
