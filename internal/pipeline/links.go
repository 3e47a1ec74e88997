// Package pipeline implements the three harvesting stages (event discovery,
// lot resolution, document extraction) and the orchestrator that runs them
// across every configured institution.
package pipeline

import (
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/auction-docs/internal/ledger"
	"github.com/sells-group/auction-docs/internal/scrape"
)

// linkSet accumulates canonical links in discovery order. Every link is
// claimed in the run ledger before it is kept, so a link already emitted by
// any earlier strategy or stage is silently dropped.
type linkSet struct {
	base    string
	ledger  *ledger.Ledger
	skip    *scrape.PathMatcher
	exclude map[string]struct{}
	links   []string
}

func newLinkSet(base string, l *ledger.Ledger, skip *scrape.PathMatcher, exclude ...string) *linkSet {
	s := &linkSet{base: base, ledger: l, skip: skip, exclude: make(map[string]struct{}, len(exclude))}
	for _, e := range exclude {
		if e != "" {
			s.exclude[e] = struct{}{}
		}
	}
	return s
}

// add canonicalizes href and keeps it if it is new to the run.
func (s *linkSet) add(href string) bool {
	link, err := ledger.Canonicalize(s.base, href)
	if err != nil {
		zap.L().Debug("pipeline: dropping unusable link", zap.String("href", href), zap.Error(err))
		return false
	}
	if _, ok := s.exclude[link]; ok {
		return false
	}
	if s.skip != nil && s.skip.Skip(link) {
		return false
	}
	if !s.ledger.Claim(link) {
		return false
	}
	s.links = append(s.links, link)
	return true
}

// hrefPath returns the unescaped, lower-cased path of href, or href itself
// lower-cased when it cannot be parsed.
func hrefPath(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return strings.ToLower(href)
	}
	return strings.ToLower(u.Path)
}

// unescape returns href with percent-escapes decoded when they are valid.
func unescape(href string) string {
	if s, err := url.PathUnescape(href); err == nil {
		return s
	}
	return href
}
