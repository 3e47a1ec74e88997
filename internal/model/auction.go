package model

import (
	"net/url"
	"strings"
)

// Institution is a financial institution whose auctions are listed on the
// source site. Configured statically and immutable for a run.
type Institution struct {
	Name     string `json:"name" yaml:"name" mapstructure:"name"`
	IndexURL string `json:"index_url" yaml:"index_url" mapstructure:"index_url"`
}

// EventRef points at an auction event page discovered for an institution.
type EventRef struct {
	URL         string `json:"url"`
	Institution string `json:"institution"`
}

// LotRef points at a single lot page inside an event.
type LotRef struct {
	URL   string   `json:"url"`
	Event EventRef `json:"event"`
}

// ID returns the lot identifier: the last non-empty path segment of the lot
// URL, or "lot" when the path has none.
func (l LotRef) ID() string {
	return LotID(l.URL)
}

// LotID derives the lot identifier from a lot URL.
func LotID(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	segments := strings.Split(p, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(segments[i]); s != "" {
			return s
		}
	}
	return "lot"
}
