package fetcher

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Tier names a pause taken between units of work.
type Tier string

const (
	TierLot         Tier = "lot"
	TierEvent       Tier = "event"
	TierInstitution Tier = "institution"
)

// GovernorConfig sets the request ceiling and the tiered pauses.
type GovernorConfig struct {
	// MinInterval is the minimum spacing between any two outbound requests.
	MinInterval      time.Duration
	LotPause         time.Duration
	EventPause       time.Duration
	InstitutionPause time.Duration
}

// Governor spaces outbound requests and inserts pauses between lots, events
// and institutions. One Governor is shared by every worker of a run, so the
// ceiling holds across goroutines.
type Governor struct {
	limiter *rate.Limiter
	pauses  map[Tier]time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewGovernor builds a Governor. A zero MinInterval disables the ceiling.
func NewGovernor(cfg GovernorConfig) *Governor {
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	return &Governor{
		limiter: rate.NewLimiter(limit, 1),
		pauses: map[Tier]time.Duration{
			TierLot:         cfg.LotPause,
			TierEvent:       cfg.EventPause,
			TierInstitution: cfg.InstitutionPause,
		},
		sleep: sleepCtx,
	}
}

// Wait blocks until the next request may be issued.
func (g *Governor) Wait(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "fetcher: rate governor wait")
	}
	return nil
}

// Pause sleeps for the duration configured for tier. It returns early with
// the context error when ctx ends.
func (g *Governor) Pause(ctx context.Context, tier Tier) error {
	d := g.pauses[tier]
	if d <= 0 {
		return ctx.Err()
	}
	return g.sleep(ctx, d)
}

// PauseFor returns the configured duration for tier.
func (g *Governor) PauseFor(tier Tier) time.Duration {
	return g.pauses[tier]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
