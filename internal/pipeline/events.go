package pipeline

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/auction-docs/internal/fetcher"
	"github.com/sells-group/auction-docs/internal/ledger"
	"github.com/sells-group/auction-docs/internal/model"
	"github.com/sells-group/auction-docs/internal/scrape"
)

// filterParam is the index query parameter naming the institution.
const filterParam = "Filtro.ComitenteId"

// emptyFilterFields are posted blank alongside the institution filter when
// the listing is requested as a form submission.
var emptyFilterFields = []string{
	"Filtro.LocalEstadoId",
	"Filtro.LocalCidade",
	"Filtro.SegmentoId",
	"Filtro.DataInicial",
	"Filtro.DataFinal",
	"Filtro.EventoCodigo",
}

// DefaultProbePaths are the listing pages probed when the asynchronous
// endpoint yields nothing.
var DefaultProbePaths = []string{"/agenda", "/leiloes", "/eventos"}

// EventDiscoverer finds the auction event pages an institution publishes.
type EventDiscoverer struct {
	fetch      fetcher.Fetcher
	ledger     *ledger.Ledger
	rules      scrape.Rules
	skip       *scrape.PathMatcher
	probePaths []string
}

// NewEventDiscoverer creates an EventDiscoverer. Nil probePaths select
// DefaultProbePaths.
func NewEventDiscoverer(f fetcher.Fetcher, l *ledger.Ledger, rules scrape.Rules, skip *scrape.PathMatcher, probePaths []string) *EventDiscoverer {
	if len(probePaths) == 0 {
		probePaths = DefaultProbePaths
	}
	return &EventDiscoverer{fetch: f, ledger: l, rules: rules, skip: skip, probePaths: probePaths}
}

// Discover returns the institution's event pages in discovery order. It
// fails only when the index page itself cannot be fetched or parsed; every
// later miss degrades to fewer events.
func (d *EventDiscoverer) Discover(ctx context.Context, inst model.Institution) ([]model.EventRef, error) {
	log := zap.L().With(zap.String("institution", inst.Name))

	resp, err := d.fetch.Get(ctx, inst.IndexURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "events: fetch index %s", inst.IndexURL)
	}
	page, err := scrape.ParseHTML(resp.Body, resp.Header.Get("Content-Type"), resp.URL)
	if err != nil {
		return nil, eris.Wrap(err, "events: parse index")
	}
	root, err := ledger.SiteRoot(resp.URL)
	if err != nil {
		return nil, eris.Wrap(err, "events: site root")
	}

	rules := d.rules.With(scrape.StageEvent, scrape.KindContext, strings.ReplaceAll(inst.Name, "_", " "))
	indexQuery := queryOf(inst.IndexURL)

	var links []string
	if endpoint, ok := d.asyncEndpoint(page, rules); ok {
		log.Info("events: index loads asynchronously", zap.String("endpoint", endpoint))
		chain := scrape.NewChain("events:"+inst.Name,
			d.ajaxGet(inst.IndexURL, root, endpoint, indexQuery, rules),
			d.ajaxPostForm(inst.IndexURL, root, endpoint, indexQuery, rules),
			d.directPaths(root, indexQuery, rules),
		)
		links = chain.Run(ctx).Links
	}

	if len(links) == 0 && ctx.Err() == nil {
		log.Debug("events: classifying index anchors")
		links = d.classify(page.Anchors(), page.URL, root, rules)
	}

	events := make([]model.EventRef, 0, len(links))
	for _, link := range links {
		events = append(events, model.EventRef{URL: link, Institution: inst.Name})
	}
	log.Info("events: discovered", zap.Int("count", len(events)))
	return events, nil
}

// asyncEndpoint reports the event-query endpoint of an index page whose
// listing is filled in by script: a #placeholder container plus an element
// carrying a data-ajax-url with the event-query keyword.
func (d *EventDiscoverer) asyncEndpoint(page *scrape.Page, rules scrape.Rules) (string, bool) {
	if page.Find("#placeholder").Length() == 0 {
		return "", false
	}
	for _, v := range page.AttrValues("data-ajax-url") {
		if rules.Match(scrape.StageEvent, scrape.KindAjaxEndpoint, v) {
			return v, true
		}
	}
	return "", false
}

func (d *EventDiscoverer) ajaxGet(indexURL, root, endpoint string, indexQuery url.Values, rules scrape.Rules) scrape.Strategy {
	return scrape.NewStrategy("ajax_get", func(ctx context.Context) ([]string, error) {
		target, err := resolveWithQuery(root, endpoint, indexQuery)
		if err != nil {
			return nil, err
		}
		resp, err := d.fetch.Get(ctx, target, fetcher.AjaxHeader(indexURL))
		if err != nil {
			return nil, err
		}
		return d.classifyBody(resp, root, rules)
	})
}

func (d *EventDiscoverer) ajaxPostForm(indexURL, root, endpoint string, indexQuery url.Values, rules scrape.Rules) scrape.Strategy {
	return scrape.NewStrategy("ajax_post_form", func(ctx context.Context) ([]string, error) {
		target, err := ledger.Canonicalize(root, endpoint)
		if err != nil {
			return nil, err
		}
		resp, err := d.fetch.PostForm(ctx, target, filterForm(indexQuery), fetcher.AjaxHeader(indexURL))
		if err != nil {
			return nil, err
		}
		return d.classifyBody(resp, root, rules)
	})
}

// directPaths probes the well-known listing pages. When the index carries an
// institution filter the filtered variants go first, so an unfiltered agenda
// (every institution's events) is only a last resort.
func (d *EventDiscoverer) directPaths(root string, indexQuery url.Values, rules scrape.Rules) scrape.Strategy {
	return scrape.NewStrategy("direct_paths", func(ctx context.Context) ([]string, error) {
		var targets []string
		if filter := indexQuery.Get(filterParam); filter != "" {
			for _, p := range d.probePaths {
				targets = append(targets, root+p+"?ComitenteId="+url.QueryEscape(filter))
			}
		}
		for _, p := range d.probePaths {
			targets = append(targets, root+p)
		}

		for _, target := range targets {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			resp, err := d.fetch.Get(ctx, target, nil)
			if err != nil {
				zap.L().Warn("events: direct path failed", zap.String("url", target), zap.Error(err))
				continue
			}
			links, err := d.classifyBody(resp, root, rules)
			if err != nil {
				zap.L().Warn("events: direct path unparseable", zap.String("url", target), zap.Error(err))
				continue
			}
			if len(links) > 0 {
				zap.L().Info("events: direct path matched", zap.String("url", target), zap.Int("links", len(links)))
				return links, nil
			}
		}
		return nil, nil
	})
}

func (d *EventDiscoverer) classifyBody(resp *fetcher.Response, root string, rules scrape.Rules) ([]string, error) {
	page, err := scrape.ParseHTML(resp.Body, resp.Header.Get("Content-Type"), resp.URL)
	if err != nil {
		return nil, err
	}
	return d.classify(page.Anchors(), root, root, rules), nil
}

// classify applies the event anchor gate and claims the survivors.
func (d *EventDiscoverer) classify(anchors []scrape.Anchor, base, root string, rules scrape.Rules) []string {
	exclude := []string{root + "/"}
	for _, p := range d.probePaths {
		exclude = append(exclude, root+p)
	}
	set := newLinkSet(base, d.ledger, d.skip, exclude...)
	for _, a := range anchors {
		if isEventAnchor(a, rules) {
			set.add(a.Href)
		}
	}
	return set.links
}

// isEventAnchor is the event gate. All of the following must hold:
//   - the href carries no excluded term (social networks, blog);
//   - the href contains an event path pattern, or one of its path segments
//     carries an event word and the link is specific (has a query value or
//     more than two slash-separated parts);
//   - the anchor text or its container mentions an auction indicator.
func isEventAnchor(a scrape.Anchor, rules scrape.Rules) bool {
	href := strings.ToLower(unescape(a.Href))
	if rules.Match(scrape.StageEvent, scrape.KindExcludedHref, href) {
		return false
	}

	shaped := rules.Match(scrape.StageEvent, scrape.KindHrefPattern, href)
	if !shaped && isSpecific(href) {
		for _, seg := range strings.Split(hrefPath(href), "/") {
			if seg != "" && rules.Match(scrape.StageEvent, scrape.KindSegmentWord, seg) {
				shaped = true
				break
			}
		}
	}
	if !shaped {
		return false
	}

	return rules.Match(scrape.StageEvent, scrape.KindContext, a.Text+" "+a.Context)
}

func isSpecific(href string) bool {
	return strings.Contains(href, "=") || len(strings.Split(href, "/")) > 2
}

// resolveWithQuery resolves endpoint against root and forwards every index
// query parameter the endpoint does not already carry.
func resolveWithQuery(root, endpoint string, extra url.Values) (string, error) {
	target, err := ledger.Canonicalize(root, endpoint)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", eris.Wrapf(err, "events: parse endpoint %s", target)
	}
	q := u.Query()
	for k, vs := range extra {
		if !q.Has(k) {
			q[k] = vs
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// filterForm builds the listing search form: the known filter fields left
// blank, the first page, and the institution filter when the index has one.
func filterForm(indexQuery url.Values) url.Values {
	form := url.Values{}
	for _, f := range emptyFilterFields {
		form.Set(f, "")
	}
	form.Set("Filtro.CurrentPage", "1")
	if filter := indexQuery.Get(filterParam); filter != "" {
		form.Set(filterParam, filter)
	}
	return form
}

func queryOf(rawURL string) url.Values {
	u, err := url.Parse(rawURL)
	if err != nil {
		return url.Values{}
	}
	return u.Query()
}
