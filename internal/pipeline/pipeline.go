package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/auction-docs/internal/archive"
	"github.com/sells-group/auction-docs/internal/config"
	"github.com/sells-group/auction-docs/internal/fetcher"
	"github.com/sells-group/auction-docs/internal/ledger"
	"github.com/sells-group/auction-docs/internal/model"
	"github.com/sells-group/auction-docs/internal/scrape"
	"github.com/sells-group/auction-docs/internal/store"
)

// Pipeline runs event discovery, lot resolution and document extraction for
// every configured institution.
type Pipeline struct {
	cfg      *config.Config
	fetch    fetcher.Fetcher
	governor *fetcher.Governor
	archive  *archive.Archive
	store    store.Store
	rules    scrape.Rules
	skip     *scrape.PathMatcher
}

// New creates a Pipeline. A nil governor is built from cfg; a nil store
// disables run history.
func New(cfg *config.Config, f fetcher.Fetcher, gov *fetcher.Governor, arc *archive.Archive, st store.Store) *Pipeline {
	if gov == nil {
		gov = NewGovernor(cfg)
	}
	rules := scrape.DefaultRules()
	if label := cfg.Pipeline.DocumentLabel; label != "" {
		rules = rules.Replace(scrape.StageDocument, scrape.KindDocumentLabel, label)
	}
	return &Pipeline{
		cfg:      cfg,
		fetch:    f,
		governor: gov,
		archive:  arc,
		store:    st,
		rules:    rules,
		skip:     scrape.NewPathMatcher(cfg.Pipeline.SkipPaths),
	}
}

// NewGovernor builds the run governor from configuration.
func NewGovernor(cfg *config.Config) *fetcher.Governor {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return fetcher.NewGovernor(fetcher.GovernorConfig{
		MinInterval:      cfg.Fetch.MinInterval(),
		LotPause:         ms(cfg.Pipeline.LotPauseMs),
		EventPause:       ms(cfg.Pipeline.EventPauseMs),
		InstitutionPause: ms(cfg.Pipeline.InstitutionPauseMs),
	})
}

// stages bundles the per-run stage workers, which share one ledger.
type stages struct {
	events *EventDiscoverer
	lots   *LotResolver
	docs   *DocumentExtractor
}

func (p *Pipeline) newStages(l *ledger.Ledger) stages {
	return stages{
		events: NewEventDiscoverer(p.fetch, l, p.rules, p.skip, p.cfg.Pipeline.ProbePaths),
		lots:   NewLotResolver(p.fetch, p.governor, l, p.rules, p.skip, p.cfg.Pipeline.LotURLTemplate),
		docs:   NewDocumentExtractor(p.fetch, p.archive, p.rules, p.cfg.Pipeline.Keyword),
	}
}

// Run performs a full scrape. Failures of individual institutions, events
// and lots are collected in the result; the only error is a configuration
// that cannot run. When the run deadline or ctx ends early the partial
// result is returned with Interrupted set.
func (p *Pipeline) Run(ctx context.Context, trigger string) (*model.RunResult, error) {
	result := &model.RunResult{
		Documents: []model.DocumentRecord{},
		StartedAt: time.Now().UTC(),
	}
	result.RunID = p.startRun(ctx, trigger)

	if err := p.cfg.Validate(); err != nil {
		result.FinishedAt = time.Now().UTC()
		p.finishRun(ctx, result, err)
		return nil, eris.Wrap(err, "pipeline: run")
	}

	if d := p.cfg.Pipeline.RunTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	st := p.newStages(ledger.New())
	rec := &recorder{result: result}

	zap.L().Info("pipeline: run started",
		zap.String("run_id", result.RunID),
		zap.Int("institutions", len(p.cfg.Institutions)),
	)

	for i, inst := range p.cfg.Institutions {
		if i > 0 {
			if err := p.governor.Pause(ctx, fetcher.TierInstitution); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
		rec.institution()
		p.runInstitution(ctx, st, inst, rec)
	}

	result.Interrupted = ctx.Err() != nil
	result.FinishedAt = time.Now().UTC()

	zap.L().Info("pipeline: run finished",
		zap.String("run_id", result.RunID),
		zap.Int("documents", len(result.Documents)),
		zap.Int("failures", len(result.Failures)),
		zap.Bool("interrupted", result.Interrupted),
		zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
	)
	p.finishRun(ctx, result, nil)
	return result, nil
}

func (p *Pipeline) runInstitution(ctx context.Context, st stages, inst model.Institution, rec *recorder) {
	log := zap.L().With(zap.String("institution", inst.Name))
	log.Info("pipeline: processing institution")

	events, err := st.events.Discover(ctx, inst)
	if err != nil {
		rec.fail(ctx, model.StageEvents, inst.Name, inst.IndexURL, err)
		return
	}
	rec.events(len(events))
	if len(events) == 0 {
		log.Warn("pipeline: no events found")
		return
	}

	saved := 0
	for _, ev := range events {
		if err := p.governor.Pause(ctx, fetcher.TierEvent); err != nil {
			return
		}
		lots, err := st.lots.Resolve(ctx, ev)
		if err != nil {
			rec.fail(ctx, model.StageLots, inst.Name, ev.URL, err)
			continue
		}
		rec.lots(len(lots))
		saved += p.extractLots(ctx, st.docs, lots, inst.Name, rec)
	}
	log.Info("pipeline: institution done", zap.Int("events", len(events)), zap.Int("documents", saved))
}

type lotResult struct {
	extraction *Extraction
	err        error
}

// extractLots runs document extraction over an event's lots with at most
// pipeline.lot_workers in flight. Results are folded in lot order so the
// record list stays deterministic. It returns the number of documents saved.
func (p *Pipeline) extractLots(ctx context.Context, docs *DocumentExtractor, lots []model.LotRef, institution string, rec *recorder) int {
	results := make([]lotResult, len(lots))

	var g errgroup.Group
	g.SetLimit(max(p.cfg.Pipeline.LotWorkers, 1))
	for i, lot := range lots {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := p.governor.Pause(ctx, fetcher.TierLot); err != nil {
				results[i].err = err
				return nil
			}
			results[i].extraction, results[i].err = docs.Extract(ctx, lot, institution)
			return nil
		})
	}
	_ = g.Wait()

	saved := 0
	for i, r := range results {
		switch {
		case r.err != nil:
			rec.fail(ctx, model.StageDocuments, institution, lots[i].URL, r.err)
		case r.extraction != nil:
			if rec.extraction(r.extraction) {
				saved++
			}
		}
	}
	return saved
}

// DiscoverEvents runs event discovery alone for the named institution, with
// a fresh ledger, and returns the event URLs.
func (p *Pipeline) DiscoverEvents(ctx context.Context, name string) ([]string, error) {
	inst, ok := p.cfg.Institution(name)
	if !ok {
		return nil, eris.Errorf("pipeline: unknown institution %q", name)
	}
	events, err := p.newStages(ledger.New()).events.Discover(ctx, inst)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: discover events for %s", inst.Name)
	}
	urls := make([]string, 0, len(events))
	for _, ev := range events {
		urls = append(urls, ev.URL)
	}
	return urls, nil
}

func (p *Pipeline) startRun(ctx context.Context, trigger string) string {
	if p.store == nil {
		return ""
	}
	run, err := p.store.CreateRun(ctx, trigger)
	if err != nil {
		zap.L().Warn("pipeline: record run start", zap.Error(err))
		return ""
	}
	return run.ID
}

// finishRun records the run outcome. The write survives cancellation of the
// run context.
func (p *Pipeline) finishRun(ctx context.Context, result *model.RunResult, runErr error) {
	if p.store == nil || result.RunID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	var err error
	if runErr != nil {
		err = p.store.FailRun(ctx, result.RunID, runErr.Error(), result)
	} else {
		err = p.store.CompleteRun(ctx, result.RunID, result)
	}
	if err != nil {
		zap.L().Warn("pipeline: record run outcome", zap.String("run_id", result.RunID), zap.Error(err))
	}
}

// recorder folds stage outcomes into a RunResult.
type recorder struct {
	mu     sync.Mutex
	result *model.RunResult
}

func (r *recorder) institution() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Stats.Institutions++
}

func (r *recorder) events(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Stats.Events += n
}

func (r *recorder) lots(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Stats.Lots += n
}

// fail records a failed unit of work. Work cut short by the end of the run
// is not a failure; the result is marked interrupted instead.
func (r *recorder) fail(ctx context.Context, stage model.Stage, institution, url string, err error) {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return
	}
	zap.L().Warn("pipeline: unit failed",
		zap.String("stage", string(stage)),
		zap.String("institution", institution),
		zap.String("url", url),
		zap.Error(err),
	)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Failures = append(r.result.Failures, model.Failure{
		Stage:       stage,
		Institution: institution,
		URL:         url,
		Error:       err.Error(),
	})
	r.result.Stats.Failed++
}

// extraction records a lot outcome and reports whether a document was saved.
func (r *recorder) extraction(x *Extraction) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch x.Outcome {
	case OutcomeDownloaded:
		r.result.Documents = append(r.result.Documents, *x.Record)
		r.result.Stats.Downloaded++
		return true
	case OutcomeNoKeyword:
		r.result.Stats.NoKeyword++
	case OutcomeNoLink:
		r.result.Stats.NoDocument++
	case OutcomeExists:
		r.result.Stats.Existing++
	}
	return false
}
