package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/auction-docs/internal/archive"
	"github.com/sells-group/auction-docs/internal/config"
	"github.com/sells-group/auction-docs/internal/fetcher"
	"github.com/sells-group/auction-docs/internal/model"
	"github.com/sells-group/auction-docs/internal/store"
)

func newTestPipeline(t *testing.T, cfg *config.Config, dir string, st store.Store) *Pipeline {
	t.Helper()
	return New(cfg, testFetcher(), fetcher.NewGovernor(fetcher.GovernorConfig{}), archive.New(dir, "", ""), st)
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestRun_EndToEnd(t *testing.T) {
	s := newAuctionSite(t, "lote-a", "lote-b")
	dir := t.TempDir()
	st := newTestStore(t)
	p := newTestPipeline(t, testConfig(s.institution("bradesco")), dir, st)

	result, err := p.Run(context.Background(), "test")
	require.NoError(t, err)
	require.Len(t, result.Documents, 2)

	assert.Equal(t, []string{
		filepath.Join(dir, "leilao_vip", "bradesco_lote-a.pdf"),
		filepath.Join(dir, "leilao_vip", "bradesco_lote-b.pdf"),
	}, result.Paths())
	for _, path := range result.Paths() {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
	assert.Equal(t, model.RunStats{Institutions: 1, Events: 1, Lots: 2, Downloaded: 2}, result.Stats)
	assert.Empty(t, result.Failures)
	assert.False(t, result.Interrupted)

	require.NotEmpty(t, result.RunID)
	run, err := st.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Result)
	assert.Len(t, run.Result.Documents, 2)
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	s := newAuctionSite(t, "lote-a", "lote-b")
	dir := t.TempDir()
	cfg := testConfig(s.institution("bradesco"))

	first, err := newTestPipeline(t, cfg, dir, nil).Run(context.Background(), "test")
	require.NoError(t, err)
	require.Len(t, first.Documents, 2)

	second, err := newTestPipeline(t, cfg, dir, nil).Run(context.Background(), "test")
	require.NoError(t, err)
	assert.Empty(t, second.Documents)
	assert.Equal(t, 2, second.Stats.Existing)
	assert.Equal(t, 1, s.count("/docs/lote-a.pdf"))
	assert.Equal(t, 1, s.count("/docs/lote-b.pdf"))

	files, err := archive.New(dir, "", "").List()
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestRun_PartialFailureIsIsolated(t *testing.T) {
	s := newAuctionSite(t, "lote-1", "lote-2", "lote-3")
	s.failing["lote-2"] = true
	cfg := testConfig(s.institution("bradesco"))
	cfg.Pipeline.LotWorkers = 3

	result, err := newTestPipeline(t, cfg, t.TempDir(), nil).Run(context.Background(), "test")
	require.NoError(t, err)

	require.Len(t, result.Documents, 2)
	assert.Equal(t, "lote-1", result.Documents[0].LotID)
	assert.Equal(t, "lote-3", result.Documents[1].LotID)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, model.StageDocuments, result.Failures[0].Stage)
	assert.Equal(t, s.url("/evento/anuncio/lote-2"), result.Failures[0].URL)
	assert.Equal(t, 1, result.Stats.Failed)
}

func TestRun_KeywordGateBlocksDownload(t *testing.T) {
	s := newAuctionSite(t, "lote-a", "lote-b")
	s.noKeyword["lote-b"] = true

	result, err := newTestPipeline(t, testConfig(s.institution("bradesco")), t.TempDir(), nil).Run(context.Background(), "test")
	require.NoError(t, err)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "lote-a", result.Documents[0].LotID)
	assert.Equal(t, 1, result.Stats.NoKeyword)
	assert.Zero(t, s.count("/docs/lote-b.pdf"))
}

func TestRun_InstitutionFailureDoesNotStopRun(t *testing.T) {
	s := newAuctionSite(t, "lote-a")
	broken := model.Institution{Name: "banco_pan", IndexURL: s.url("/fora-do-ar")}
	cfg := testConfig(broken, s.institution("bradesco"))

	result, err := newTestPipeline(t, cfg, t.TempDir(), nil).Run(context.Background(), "test")
	require.NoError(t, err)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "bradesco", result.Documents[0].Institution)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, model.StageEvents, result.Failures[0].Stage)
	assert.Equal(t, "banco_pan", result.Failures[0].Institution)
	assert.Equal(t, 2, result.Stats.Institutions)
}

func TestRun_NoInstitutions(t *testing.T) {
	st := newTestStore(t)
	p := newTestPipeline(t, testConfig(), t.TempDir(), st)

	_, err := p.Run(context.Background(), "test")
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrNoInstitutions))

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
}

func TestRun_CancelledMidRunReturnsPartialResult(t *testing.T) {
	s := newAuctionSite(t, "lote-a", "lote-b")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.onLot = func(string) { cancel() }

	result, err := newTestPipeline(t, testConfig(s.institution("bradesco")), t.TempDir(), nil).Run(ctx, "test")
	require.NoError(t, err)
	assert.True(t, result.Interrupted)
	assert.Empty(t, result.Documents)
	assert.Zero(t, s.count("/docs/lote-a.pdf"))
	assert.Zero(t, s.count("/evento/anuncio/lote-b"))
}

func TestRun_DeadlineInterrupts(t *testing.T) {
	s := newAuctionSite(t, "lote-a")
	cfg := testConfig(s.institution("bradesco"), s.institution("bv"))
	cfg.Pipeline.InstitutionPauseMs = 60_000
	cfg.Pipeline.RunTimeoutMins = 1

	p := New(cfg, testFetcher(), nil, archive.New(t.TempDir(), "", ""), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	result, err := p.Run(ctx, "test")
	require.NoError(t, err)
	assert.True(t, result.Interrupted)
	assert.Len(t, result.Documents, 1)
	assert.Equal(t, 1, result.Stats.Institutions)
}

func TestDiscoverEvents(t *testing.T) {
	s := newAuctionSite(t)
	p := newTestPipeline(t, testConfig(s.institution("bradesco")), t.TempDir(), nil)

	urls, err := p.DiscoverEvents(context.Background(), "BRADESCO")
	require.NoError(t, err)
	assert.Equal(t, []string{s.url("/evento/detalhes/101")}, urls)

	// Each call starts from an empty ledger.
	again, err := p.DiscoverEvents(context.Background(), "bradesco")
	require.NoError(t, err)
	assert.Equal(t, urls, again)

	_, err = p.DiscoverEvents(context.Background(), "itau")
	require.Error(t, err)
}

func TestNew_DocumentLabelOverride(t *testing.T) {
	s := newSite(t)
	s.html("/lote/1", `<p>Extrajudicial</p><a href="/docs/a.pdf">Matrícula</a><a href="/arquivo/9">Certidão de ônus</a>`)
	s.pdf("/arquivo/9", "%PDF")
	s.pdf("/docs/a.pdf", "%PDF")

	cfg := testConfig()
	cfg.Pipeline.DocumentLabel = "certidão"
	p := newTestPipeline(t, cfg, t.TempDir(), nil)

	got, err := p.newStages(nil).docs.Extract(context.Background(), lotRef(s, "/lote/1"), "bv")
	require.NoError(t, err)
	assert.Equal(t, s.url("/arquivo/9"), got.DocumentURL)
}
