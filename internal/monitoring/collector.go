// Package monitoring summarizes recent scrape runs for the status endpoint.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/auction-docs/internal/model"
	"github.com/sells-group/auction-docs/internal/store"
)

// MetricsSnapshot holds a point-in-time view of harvesting health.
type MetricsSnapshot struct {
	// Runs within the lookback window.
	RunsTotal       int     `json:"runs_total"`
	RunsComplete    int     `json:"runs_complete"`
	RunsFailed      int     `json:"runs_failed"`
	RunsRunning     int     `json:"runs_running"`
	RunsInterrupted int     `json:"runs_interrupted"`
	FailRate        float64 `json:"fail_rate"`

	// Work done by those runs.
	DocumentsSaved int `json:"documents_saved"`
	LotsVisited    int `json:"lots_visited"`
	LotFailures    int `json:"lot_failures"`

	// Documents currently on disk, across all runs.
	StoredDocuments int `json:"stored_documents"`

	LastRun *model.Run `json:"last_run,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// DocumentLister reports what is stored on disk.
type DocumentLister interface {
	List() ([]model.StoredFile, error)
}

// Collector gathers metrics from the run store and the archive.
type Collector struct {
	store store.Store
	docs  DocumentLister
}

// NewCollector creates a new metrics collector. docs may be nil.
func NewCollector(st store.Store, docs DocumentLister) *Collector {
	return &Collector{store: st, docs: docs}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		Since: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit: 10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	for i, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		if r.Result != nil {
			snap.DocumentsSaved += r.Result.Stats.Downloaded
			snap.LotsVisited += r.Result.Stats.Lots
			snap.LotFailures += r.Result.Stats.Failed
			if r.Result.Interrupted {
				snap.RunsInterrupted++
			}
		}
		if snap.LastRun == nil || r.CreatedAt.After(snap.LastRun.CreatedAt) {
			snap.LastRun = &runs[i]
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}

	if c.docs != nil {
		files, err := c.docs.List()
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list documents")
		}
		snap.StoredDocuments = len(files)
	}

	return snap, nil
}
