package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/auction-docs/internal/archive"
	"github.com/sells-group/auction-docs/internal/fetcher"
	"github.com/sells-group/auction-docs/internal/ledger"
	"github.com/sells-group/auction-docs/internal/model"
	"github.com/sells-group/auction-docs/internal/scrape"
)

// DefaultKeyword gates document extraction: only lots whose page mentions it
// are harvested.
const DefaultKeyword = "Extrajudicial"

// minDocumentBytes is the size below which a non-PDF response is suspicious.
const minDocumentBytes = 1000

// Outcome is the result of one extraction attempt that did not fail.
type Outcome string

const (
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeNoKeyword  Outcome = "no_keyword"
	OutcomeNoLink     Outcome = "no_link"
	OutcomeExists     Outcome = "exists"
)

// Extraction reports what happened to a lot. Record is set only for
// OutcomeDownloaded.
type Extraction struct {
	Outcome     Outcome
	Record      *model.DocumentRecord
	DocumentURL string
}

// DocumentExtractor downloads the registry document of a lot page.
type DocumentExtractor struct {
	fetch   fetcher.Fetcher
	archive *archive.Archive
	rules   scrape.Rules
	keyword string
	now     func() time.Time
}

// NewDocumentExtractor creates a DocumentExtractor. An empty keyword selects
// DefaultKeyword.
func NewDocumentExtractor(f fetcher.Fetcher, arc *archive.Archive, rules scrape.Rules, keyword string) *DocumentExtractor {
	if keyword == "" {
		keyword = DefaultKeyword
	}
	return &DocumentExtractor{fetch: f, archive: arc, rules: rules, keyword: keyword, now: time.Now}
}

// Extract fetches the lot page, applies the keyword gate, locates the
// document link and stores the document. Network and disk failures are
// returned as errors; every other miss is an Outcome.
func (x *DocumentExtractor) Extract(ctx context.Context, lot model.LotRef, institution string) (*Extraction, error) {
	log := zap.L().With(zap.String("institution", institution), zap.String("lot", lot.URL))

	resp, err := x.fetch.Get(ctx, lot.URL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "documents: fetch lot %s", lot.URL)
	}
	page, err := scrape.ParseHTML(resp.Body, resp.Header.Get("Content-Type"), resp.URL)
	if err != nil {
		return nil, eris.Wrap(err, "documents: parse lot")
	}

	if !scrape.ContainsFold(page.VisibleText(), x.keyword) {
		log.Debug("documents: keyword absent, skipping", zap.String("keyword", x.keyword))
		return &Extraction{Outcome: OutcomeNoKeyword}, nil
	}

	anchors := page.Anchors()
	out := scrape.NewChain("documents:"+lot.URL,
		x.labelText(anchors),
		x.labelAny(anchors),
		x.genericAsset(anchors),
	).Run(ctx)
	if !out.Found() {
		log.Warn("documents: no document link on lot page")
		return &Extraction{Outcome: OutcomeNoLink}, nil
	}

	docURL, err := ledger.Canonicalize(page.URL, out.Links[0])
	if err != nil {
		log.Warn("documents: unusable document link", zap.String("href", out.Links[0]), zap.Error(err))
		return &Extraction{Outcome: OutcomeNoLink}, nil
	}

	lotID := lot.ID()
	path := x.archive.Path(institution, lotID)
	if x.archive.Exists(path) {
		log.Info("documents: already stored", zap.String("path", path))
		return &Extraction{Outcome: OutcomeExists, DocumentURL: docURL}, nil
	}

	log.Info("documents: link found", zap.String("strategy", out.Winner), zap.String("url", docURL))
	doc, err := x.fetch.Get(ctx, docURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "documents: fetch document %s", docURL)
	}
	if ct := doc.ContentType(); !strings.Contains(strings.ToLower(ct), "pdf") && len(doc.Body) < minDocumentBytes {
		log.Warn("documents: response may not be a document",
			zap.String("content_type", ct),
			zap.Int("bytes", len(doc.Body)),
		)
	}

	size, err := x.archive.Write(path, doc.Body)
	if errors.Is(err, archive.ErrExists) {
		log.Info("documents: stored concurrently", zap.String("path", path))
		return &Extraction{Outcome: OutcomeExists, DocumentURL: docURL}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "documents: store")
	}

	log.Info("documents: saved", zap.String("path", path), zap.Int64("bytes", size))
	return &Extraction{
		Outcome:     OutcomeDownloaded,
		DocumentURL: docURL,
		Record: &model.DocumentRecord{
			Institution: institution,
			LotID:       lotID,
			Path:        path,
			Size:        size,
			LotURL:      lot.URL,
			SourceURL:   docURL,
			SavedAt:     x.now().UTC(),
		},
	}, nil
}

func (x *DocumentExtractor) labelText(anchors []scrape.Anchor) scrape.Strategy {
	return firstAnchor("label_text", anchors, func(a scrape.Anchor) bool {
		return x.rules.Match(scrape.StageDocument, scrape.KindDocumentLabel, a.Text)
	})
}

func (x *DocumentExtractor) labelAny(anchors []scrape.Anchor) scrape.Strategy {
	return firstAnchor("label_any", anchors, func(a scrape.Anchor) bool {
		return x.rules.Match(scrape.StageDocument, scrape.KindDocumentLabel, unescape(a.Href)+" "+a.Text)
	})
}

func (x *DocumentExtractor) genericAsset(anchors []scrape.Anchor) scrape.Strategy {
	return firstAnchor("generic_asset", anchors, func(a scrape.Anchor) bool {
		return x.rules.Match(scrape.StageDocument, scrape.KindGenericAsset, a.Href)
	})
}

// firstAnchor builds a strategy returning the href of the first anchor that
// satisfies match.
func firstAnchor(name string, anchors []scrape.Anchor, match func(scrape.Anchor) bool) scrape.Strategy {
	return scrape.NewStrategy(name, func(context.Context) ([]string, error) {
		for _, a := range anchors {
			if match(a) {
				return []string{a.Href}, nil
			}
		}
		return nil, nil
	})
}
