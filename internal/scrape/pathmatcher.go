package scrape

import (
	"net/url"
	"path"
	"strings"
)

// defaultSkipPatterns cover the portal pages that never list events or lots.
var defaultSkipPatterns = []string{
	"/login*",
	"/cadastro*",
	"/conta/*",
	"/blog/*",
	"/noticias/*",
	"/institucional/*",
	"/*.css",
	"/*.js",
}

// PathMatcher skips portal URLs whose path matches a glob pattern. A pattern
// ending in "/*" also matches every deeper path below its directory.
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher builds a matcher; nil or empty patterns select the defaults.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultSkipPatterns
	}
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			lowered = append(lowered, strings.ToLower(p))
		}
	}
	return &PathMatcher{patterns: lowered}
}

// Patterns returns the configured patterns.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// Skip reports whether rawURL points at a path the crawler never follows.
// Unparseable URLs are skipped.
func (m *PathMatcher) Skip(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	p := strings.ToLower(u.Path)
	for _, pattern := range m.patterns {
		if matchSegmented(pattern, p) {
			return true
		}
	}
	return false
}

func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}
	return false
}
