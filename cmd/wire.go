package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/auction-docs/internal/archive"
	"github.com/sells-group/auction-docs/internal/fetcher"
	"github.com/sells-group/auction-docs/internal/pipeline"
	"github.com/sells-group/auction-docs/internal/store"
)

// scrapeEnv holds everything the scrape, discover and serve commands need.
type scrapeEnv struct {
	Store    store.Store
	Archive  *archive.Archive
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (e *scrapeEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initScrapeEnv opens the store and builds the fetcher, archive and
// pipeline. The governor is shared by the fetcher and the pipeline so the
// request ceiling and the tiered pauses draw from one budget. Callers should
// defer env.Close().
func initScrapeEnv(ctx context.Context, withStore bool) (*scrapeEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	env := &scrapeEnv{}
	if withStore {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}

	gov := pipeline.NewGovernor(cfg)
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      cfg.Fetch.Timeout(),
		MaxRetries:   cfg.Fetch.MaxRetries,
		MaxRedirects: cfg.Fetch.MaxRedirects,
		MaxBodyBytes: int64(cfg.Fetch.MaxBodyMB) << 20,
		Retry:        retryConfig(),
		Breaker: fetcher.BreakerConfig{
			FailureThreshold: cfg.Fetch.BreakerThreshold,
			ResetTimeout:     time.Duration(cfg.Fetch.BreakerResetSecs) * time.Second,
		},
		Governor: gov,
	})

	env.Archive = archive.New(cfg.Pipeline.OutputDir, cfg.Pipeline.Source, cfg.Pipeline.Ext)
	env.Pipeline = pipeline.New(cfg, f, gov, env.Archive, env.Store)
	return env, nil
}

func retryConfig() fetcher.RetryConfig {
	rc := fetcher.DefaultRetryConfig()
	rc.OnRetry = func(attempt int, err error) {
		zap.L().Debug("fetch: retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
	return rc
}
