package scrape

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html/charset"
)

// Page is a parsed HTML document together with the URL it was served from.
type Page struct {
	URL string
	doc *goquery.Document
}

// Anchor is a link on a page with its text and the text of its container.
type Anchor struct {
	Href    string
	Text    string
	Context string
}

var innerWhitespace = regexp.MustCompile(`\s+`)

// Collapse trims s and folds runs of whitespace into single spaces.
func Collapse(s string) string {
	return strings.TrimSpace(innerWhitespace.ReplaceAllString(s, " "))
}

// ParseHTML decodes body using the charset declared in contentType (or
// sniffed from the document) and parses it.
func ParseHTML(body []byte, contentType, pageURL string) (*Page, error) {
	var r io.Reader = bytes.NewReader(body)
	if utf8Reader, err := charset.NewReader(r, contentType); err == nil {
		r = utf8Reader
	} else {
		r = bytes.NewReader(body)
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: parse html %s", pageURL)
	}
	return &Page{URL: pageURL, doc: doc}, nil
}

// Find runs a CSS selector over the whole document.
func (p *Page) Find(selector string) *goquery.Selection {
	return p.doc.Find(selector)
}

// Anchors returns every followable anchor on the page in document order.
func (p *Page) Anchors() []Anchor {
	return AnchorsIn(p.doc.Selection)
}

// AnchorsIn returns the followable anchors below sel. Fragment-only,
// javascript:, mailto: and tel: hrefs are skipped.
func AnchorsIn(sel *goquery.Selection) []Anchor {
	var anchors []Anchor
	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if !followable(href) {
			return
		}
		anchors = append(anchors, Anchor{
			Href:    href,
			Text:    Collapse(a.Text()),
			Context: Collapse(a.Parent().Text()),
		})
	})
	return anchors
}

func followable(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") {
		return false
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:"} {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return true
}

// VisibleText returns the page text without script, style, noscript and
// template contents.
func (p *Page) VisibleText() string {
	clone := p.doc.Selection.Clone()
	clone.Find("script, style, noscript, template").Remove()
	return Collapse(clone.Text())
}

// AttrValues returns the values of attr on every element carrying it.
func (p *Page) AttrValues(attr string) []string {
	var values []string
	p.doc.Find("[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			values = append(values, strings.TrimSpace(v))
		}
	})
	return values
}
