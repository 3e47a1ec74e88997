package pipeline

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/auction-docs/internal/fetcher"
	"github.com/sells-group/auction-docs/internal/ledger"
	"github.com/sells-group/auction-docs/internal/model"
	"github.com/sells-group/auction-docs/internal/scrape"
)

// DefaultLotURLTemplate builds a lot page URL from a lot selector value.
const DefaultLotURLTemplate = "/evento/anuncio/{slug}"

// LotResolver expands an event page into its lot pages.
type LotResolver struct {
	fetch       fetcher.Fetcher
	governor    *fetcher.Governor
	ledger      *ledger.Ledger
	rules       scrape.Rules
	skip        *scrape.PathMatcher
	lotTemplate string
}

// NewLotResolver creates a LotResolver. An empty template selects
// DefaultLotURLTemplate.
func NewLotResolver(f fetcher.Fetcher, g *fetcher.Governor, l *ledger.Ledger, rules scrape.Rules, skip *scrape.PathMatcher, lotTemplate string) *LotResolver {
	if lotTemplate == "" {
		lotTemplate = DefaultLotURLTemplate
	}
	return &LotResolver{fetch: f, governor: g, ledger: l, rules: rules, skip: skip, lotTemplate: lotTemplate}
}

// Resolve returns the event's lot pages in page order. It fails only when the
// event page cannot be fetched or parsed.
func (r *LotResolver) Resolve(ctx context.Context, ev model.EventRef) ([]model.LotRef, error) {
	log := zap.L().With(zap.String("institution", ev.Institution), zap.String("event", ev.URL))

	resp, err := r.fetch.Get(ctx, ev.URL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "lots: fetch event %s", ev.URL)
	}
	page, err := scrape.ParseHTML(resp.Body, resp.Header.Get("Content-Type"), resp.URL)
	if err != nil {
		return nil, eris.Wrap(err, "lots: parse event")
	}

	page = r.followOffers(ctx, page, ev.URL)

	root, err := ledger.SiteRoot(page.URL)
	if err != nil {
		return nil, eris.Wrap(err, "lots: site root")
	}

	exclude := []string{ev.URL, strings.Replace(ev.URL, "/detalhes/", "/detalhe/", 1)}
	if canon, err := ledger.Canonicalize(page.URL, ""); err == nil {
		exclude = append(exclude, canon)
	}
	newSet := func(base string) *linkSet {
		return newLinkSet(base, r.ledger, r.skip, exclude...)
	}

	chain := scrape.NewChain("lots:"+ev.URL,
		r.selectOptions(page, root, newSet),
		r.directPattern(page, newSet),
		r.ajaxProbe(page, root, newSet),
		r.cardScan(page, newSet),
	)
	out := chain.Run(ctx)

	lots := make([]model.LotRef, 0, len(out.Links))
	for _, link := range out.Links {
		lots = append(lots, model.LotRef{URL: link, Event: ev})
	}
	log.Info("lots: resolved", zap.Int("count", len(lots)), zap.String("strategy", out.Winner))
	return lots, nil
}

// followOffers follows the event's "open for offers" link, which redirects
// to the page actually listing the lots. Any failure keeps the event page.
func (r *LotResolver) followOffers(ctx context.Context, page *scrape.Page, eventURL string) *scrape.Page {
	for _, a := range page.Anchors() {
		if !r.rules.Match(scrape.StageLot, scrape.KindOffers, a.Href) &&
			!r.rules.Match(scrape.StageLot, scrape.KindOffers, a.Text) {
			continue
		}
		target, err := ledger.Canonicalize(page.URL, a.Href)
		if err != nil || target == eventURL {
			return page
		}

		if r.governor != nil {
			if err := r.governor.Pause(ctx, fetcher.TierLot); err != nil {
				return page
			}
		}
		resp, err := r.fetch.Get(ctx, target, nil)
		if err != nil {
			zap.L().Warn("lots: offers link failed, using event page", zap.String("url", target), zap.Error(err))
			return page
		}
		offers, err := scrape.ParseHTML(resp.Body, resp.Header.Get("Content-Type"), resp.URL)
		if err != nil {
			zap.L().Warn("lots: offers page unparseable, using event page", zap.String("url", resp.URL), zap.Error(err))
			return page
		}
		zap.L().Debug("lots: following offers page", zap.String("from", target), zap.String("to", resp.URL))
		return offers
	}
	return page
}

// selectOptions reads the lot selector: the first <select> with usable
// options, each value being a lot slug.
func (r *LotResolver) selectOptions(page *scrape.Page, root string, newSet func(string) *linkSet) scrape.Strategy {
	return scrape.NewStrategy("select_options", func(context.Context) ([]string, error) {
		set := newSet(root)
		page.Find("select").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			values := usableOptions(sel)
			if len(values) == 0 {
				return true
			}
			for _, v := range values {
				set.add(r.lotURL(v))
			}
			return false
		})
		return set.links, nil
	})
}

func usableOptions(sel *goquery.Selection) []string {
	var values []string
	sel.Find("option").Each(func(_ int, opt *goquery.Selection) {
		v, _ := opt.Attr("value")
		v = strings.TrimSpace(v)
		if v != "" && v != "#" {
			values = append(values, v)
		}
	})
	return values
}

// lotURL expands a selector value. Values that already look like a path or
// URL are used as they are.
func (r *LotResolver) lotURL(value string) string {
	if strings.HasPrefix(value, "/") || strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return value
	}
	return strings.ReplaceAll(r.lotTemplate, "{slug}", url.PathEscape(value))
}

func (r *LotResolver) directPattern(page *scrape.Page, newSet func(string) *linkSet) scrape.Strategy {
	return scrape.NewStrategy("direct_pattern", func(context.Context) ([]string, error) {
		set := newSet(page.URL)
		for _, a := range page.Anchors() {
			if r.isLotHref(a.Href) {
				set.add(a.Href)
			}
		}
		return set.links, nil
	})
}

// isLotHref reports whether href points at a lot. Links under an event path
// only count when the part after it names a lot.
func (r *LotResolver) isLotHref(href string) bool {
	h := strings.ToLower(unescape(href))
	if !r.rules.Match(scrape.StageLot, scrape.KindHrefPattern, h) {
		return false
	}
	for _, parent := range r.rules.Terms(scrape.StageLot, scrape.KindParentPath) {
		parent = strings.ToLower(parent)
		if i := strings.Index(h, parent); i >= 0 {
			rest := "/" + h[i+len(parent):]
			return r.rules.Match(scrape.StageLot, scrape.KindHrefPattern, rest)
		}
	}
	return true
}

// ajaxProbe fetches the page's lot-related asynchronous endpoints and runs
// the direct pattern over each response.
func (r *LotResolver) ajaxProbe(page *scrape.Page, root string, newSet func(string) *linkSet) scrape.Strategy {
	return scrape.NewStrategy("ajax_probe", func(ctx context.Context) ([]string, error) {
		set := newSet(root)
		for _, endpoint := range page.AttrValues("data-ajax-url") {
			if !r.rules.Match(scrape.StageLot, scrape.KindAjaxEndpoint, endpoint) {
				continue
			}
			if ctx.Err() != nil {
				return set.links, ctx.Err()
			}
			target, err := ledger.Canonicalize(root, endpoint)
			if err != nil {
				continue
			}
			resp, err := r.fetch.Get(ctx, target, fetcher.AjaxHeader(page.URL))
			if err != nil {
				zap.L().Warn("lots: ajax endpoint failed", zap.String("url", target), zap.Error(err))
				continue
			}
			frag, err := scrape.ParseHTML(resp.Body, resp.Header.Get("Content-Type"), resp.URL)
			if err != nil {
				zap.L().Warn("lots: ajax response unparseable", zap.String("url", target), zap.Error(err))
				continue
			}
			for _, a := range frag.Anchors() {
				if r.isLotHref(a.Href) {
					set.add(a.Href)
				}
			}
		}
		return set.links, nil
	})
}

// cardScan looks inside card-like containers for anchors whose text or card
// mentions a lot indicator (price, area, property type).
func (r *LotResolver) cardScan(page *scrape.Page, newSet func(string) *linkSet) scrape.Strategy {
	return scrape.NewStrategy("card_scan", func(context.Context) ([]string, error) {
		set := newSet(page.URL)
		page.Find("div, article, section").Each(func(_ int, card *goquery.Selection) {
			class, _ := card.Attr("class")
			if class == "" || !r.rules.Match(scrape.StageLot, scrape.KindCardClass, class) {
				return
			}
			cardText := scrape.Collapse(card.Text())
			for _, a := range scrape.AnchorsIn(card) {
				if !r.rules.Match(scrape.StageLot, scrape.KindContext, a.Text+" "+cardText) {
					continue
				}
				if r.rules.Match(scrape.StageLot, scrape.KindNavigation, strings.ToLower(a.Href)) {
					continue
				}
				set.add(a.Href)
			}
		})
		return set.links, nil
	})
}
