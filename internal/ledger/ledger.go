// Package ledger tracks canonical links already handed out during a run so no
// stage emits the same link twice.
package ledger

import (
	"net/url"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// Ledger is a run-scoped set of canonical links. Safe for concurrent use.
type Ledger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{seen: make(map[string]struct{})}
}

// Claim inserts link and reports whether it was absent. Check and insert
// happen under one lock, so two callers can never both claim the same link.
func (l *Ledger) Claim(link string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[link]; ok {
		return false
	}
	l.seen[link] = struct{}{}
	return true
}

// Seen reports whether link was already claimed.
func (l *Ledger) Seen(link string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[link]
	return ok
}

// Len returns the number of claimed links.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

// Canonicalize resolves href against base and returns the absolute form used
// as ledger identity. The fragment is dropped and scheme/host are lower-cased;
// the query string is kept verbatim.
func Canonicalize(base, href string) (string, error) {
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", eris.Wrapf(err, "ledger: parse base %q", base)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", eris.Wrapf(err, "ledger: parse href %q", href)
	}

	abs := b.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", eris.Errorf("ledger: unsupported scheme in %q", abs.String())
	}
	if abs.Host == "" {
		return "", eris.Errorf("ledger: no host in %q", abs.String())
	}

	abs.Fragment = ""
	abs.RawFragment = ""
	abs.Scheme = strings.ToLower(abs.Scheme)
	abs.Host = strings.ToLower(abs.Host)
	if abs.Path == "" {
		abs.Path = "/"
	}
	return abs.String(), nil
}

// SiteRoot returns scheme://host of rawURL.
func SiteRoot(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "ledger: parse %q", rawURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", eris.Errorf("ledger: %q is not absolute", rawURL)
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), nil
}
