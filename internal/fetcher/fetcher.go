// Package fetcher issues the outbound HTTP requests of a run: rate-governed,
// retried on transient failures and guarded by a per-host circuit breaker.
package fetcher

import (
	"context"
	"mime"
	"net/http"
	"net/url"
)

// Fetcher retrieves pages and documents.
type Fetcher interface {
	// Get fetches rawURL following redirects. Extra headers are added to the
	// defaults.
	Get(ctx context.Context, rawURL string, header http.Header) (*Response, error)

	// PostForm submits form URL-encoded to rawURL.
	PostForm(ctx context.Context, rawURL string, form url.Values, header http.Header) (*Response, error)
}

// Response is a fully read 2xx response.
type Response struct {
	// URL is the final URL after redirects.
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ContentType returns the media type of the response without parameters.
func (r *Response) ContentType() string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ct
	}
	return mt
}

// AjaxHeader returns the headers sent with asynchronous listing requests.
func AjaxHeader(referer string) http.Header {
	h := http.Header{}
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("Accept", "text/html, */*; q=0.01")
	if referer != "" {
		h.Set("Referer", referer)
	}
	return h
}
