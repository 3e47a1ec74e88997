package scrape

// Stage identifies the pipeline stage a rule applies to.
type Stage string

const (
	StageEvent    Stage = "event"
	StageLot      Stage = "lot"
	StageDocument Stage = "document"
)

// Kind identifies what a rule's terms are matched against.
type Kind string

const (
	// KindExcludedHref terms disqualify an href outright (social, blog).
	KindExcludedHref Kind = "excluded_href"
	// KindHrefPattern terms mark an href as stage-shaped (event paths, lot paths).
	KindHrefPattern Kind = "href_pattern"
	// KindSegmentWord terms mark a path segment as stage-shaped.
	KindSegmentWord Kind = "segment_word"
	// KindContext terms must appear in the anchor's text or container.
	KindContext Kind = "context"
	// KindAjaxEndpoint terms identify a relevant data-ajax-url.
	KindAjaxEndpoint Kind = "ajax_endpoint"
	// KindCardClass terms identify card-like containers by class.
	KindCardClass Kind = "card_class"
	// KindNavigation terms mark an href as site navigation.
	KindNavigation Kind = "navigation"
	// KindParentPath terms mark an href as an event page, not a lot.
	KindParentPath Kind = "parent_path"
	// KindOffers terms identify the "open for offers" link on an event.
	KindOffers Kind = "offers"
	// KindDocumentLabel terms name the target document.
	KindDocumentLabel Kind = "document_label"
	// KindGenericAsset terms mark an href as some downloadable document.
	KindGenericAsset Kind = "generic_asset"
)

// Rule binds indicator terms to a stage and match kind.
type Rule struct {
	Stage Stage
	Kind  Kind
	Terms []string
}

// Rules is the matching policy of the pipeline, kept as data.
type Rules []Rule

// DefaultRules returns the indicator table for the leilaovip templates.
func DefaultRules() Rules {
	return Rules{
		{StageEvent, KindExcludedHref, []string{"facebook", "twitter", "instagram", "youtube", "tiktok", "linkedin", "whatsapp", "blog"}},
		{StageEvent, KindHrefPattern, []string{"/leilao", "/evento", "/detalhes"}},
		{StageEvent, KindSegmentWord, []string{"leilao", "evento", "detalhe"}},
		{StageEvent, KindContext, []string{"leilão", "lotes", "extrajudicial", "r$", "lance", "imóvel"}},
		{StageEvent, KindAjaxEndpoint, []string{"pesquisarEventos"}},

		{StageLot, KindOffers, []string{"ofertas", "lances"}},
		{StageLot, KindHrefPattern, []string{"/lote", "/item", "/imovel", "/anuncio"}},
		{StageLot, KindParentPath, []string{"/evento/"}},
		{StageLot, KindAjaxEndpoint, []string{"lote", "item", "imovel", "pesquisar"}},
		{StageLot, KindCardClass, []string{"card", "item", "lote", "imovel", "property"}},
		{StageLot, KindContext, []string{"r$", "lote", "lance", "m²", "m2", "casa", "apartamento", "terreno", "sala", "loja", "galpão", "local:", "avaliação"}},
		{StageLot, KindNavigation, []string{"agenda", "login", "cadastro", "blog", "#"}},

		{StageDocument, KindDocumentLabel, []string{"matrícula"}},
		{StageDocument, KindGenericAsset, []string{"pdf"}},
	}
}

// Terms returns every term registered for stage and kind, in table order.
func (r Rules) Terms(stage Stage, kind Kind) []string {
	var terms []string
	for _, rule := range r {
		if rule.Stage == stage && rule.Kind == kind {
			terms = append(terms, rule.Terms...)
		}
	}
	return terms
}

// Match reports whether text contains any term for stage and kind.
func (r Rules) Match(stage Stage, kind Kind, text string) bool {
	_, ok := MatchAny(text, r.Terms(stage, kind))
	return ok
}

// Replace returns a copy of r whose terms for stage and kind are terms. An
// empty terms slice leaves r unchanged.
func (r Rules) Replace(stage Stage, kind Kind, terms ...string) Rules {
	if len(terms) == 0 {
		return r
	}
	out := make(Rules, 0, len(r)+1)
	for _, rule := range r {
		if rule.Stage == stage && rule.Kind == kind {
			continue
		}
		out = append(out, rule)
	}
	return append(out, Rule{Stage: stage, Kind: kind, Terms: terms})
}

// With returns a copy of r with extra terms added for stage and kind.
func (r Rules) With(stage Stage, kind Kind, terms ...string) Rules {
	out := make(Rules, len(r), len(r)+1)
	copy(out, r)
	return append(out, Rule{Stage: stage, Kind: kind, Terms: terms})
}
