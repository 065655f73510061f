package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/k1rakishou/chanfetch/internal/downloaders"
	chanhttp "github.com/k1rakishou/chanfetch/internal/downloaders/http"
	"github.com/k1rakishou/chanfetch/internal/downloaders/s3"
	"github.com/k1rakishou/chanfetch/internal/engine"
	"github.com/k1rakishou/chanfetch/internal/output"
	"github.com/k1rakishou/chanfetch/internal/scheduler"
	"github.com/k1rakishou/chanfetch/internal/utils"
)

func httpClientConfig() utils.HTTPClientConfig {
	return utils.HTTPClientConfig{
		Timeout:        cfg.HTTP.Timeout,
		KATimeout:      cfg.HTTP.KeepAliveTimeout,
		ProxyURL:       cfg.HTTP.Proxy,
		ProxyUsername:  cfg.HTTP.ProxyUsername,
		ProxyPassword:  cfg.HTTP.ProxyPassword,
		UserAgent:      cfg.HTTP.UserAgent,
		Headers:        cfg.HTTP.Headers,
		BearerToken:    cfg.HTTP.BearerToken,
		HighThreadMode: cfg.Connections > 5,
	}
}

// buildRouter wires the http backend, plus S3 when any link needs it so AWS
// config is only loaded on demand.
func buildRouter(ctx context.Context, links []string) (*downloaders.Router, error) {
	router := downloaders.NewRouter()
	router.Register(chanhttp.New(utils.NewChanfetchHTTPClient(httpClientConfig())), "http", "https")
	for _, link := range links {
		if downloaders.SchemeOf(link) != "s3" {
			continue
		}
		client, err := s3.NewClient(ctx, s3.ClientOptions{
			Profile:  cfg.S3.Profile,
			Region:   cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		router.Register(s3.New(client), "s3")
		break
	}
	return router, nil
}

func buildEngine(fetcher engine.Fetcher, sites engine.SiteProvider) *engine.Engine {
	return engine.New(fetcher,
		engine.WithSiteProvider(sites),
		engine.WithResolver(engine.DirResolver{Root: cfg.OutputDir}),
		engine.WithMaxConcurrency(cfg.MaxConcurrency),
		engine.WithMinChunkSize(int64(cfg.MinChunkSize)),
		engine.WithBufferSize(int(cfg.BufferSize)),
		engine.WithStallTimeout(cfg.StallTimeout),
		engine.WithDrainTimeout(cfg.DrainTimeout),
		engine.WithBandwidthLimit(int64(cfg.BandwidthLimit)),
		engine.WithTempDirName(cfg.TempDirName),
		engine.WithLogger(utils.GetLogger("engine")),
	)
}

// runEntries downloads entries with a live display; Ctrl-C cancels them.
func runEntries(entries []scheduler.Entry) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	links := make([]string, 0, len(entries))
	for _, entry := range entries {
		links = append(links, entry.Link)
	}
	router, err := buildRouter(ctx, links)
	if err != nil {
		return err
	}
	sites := downloaders.NewResolveCache(router)
	e := buildEngine(router, sites)
	defer e.Close()

	// prefer the server's Content-Disposition name over the URL; the lookup
	// is reused by the engine for planning
	namer := func(ctx context.Context, link string) string {
		if info, err := sites.Prefetch(ctx, link); err == nil && info.FileName != "" {
			return info.FileName
		}
		return chanhttp.FileNameFromURL(link)
	}

	outputMgr := output.NewManager(os.Stdout)
	outputMgr.StartDisplay()
	err = scheduler.New(e, outputMgr, cfg.Connections, namer).Run(ctx, entries)
	outputMgr.StopDisplay()
	return err
}
