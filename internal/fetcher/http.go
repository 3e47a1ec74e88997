package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultUserAgent is sent when HTTPOptions.UserAgent is empty.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	MaxRedirects int
	MaxBodyBytes int64
	Retry        RetryConfig
	Breaker      BreakerConfig
	// Governor spaces every attempt, retries included. Nil means no ceiling.
	Governor *Governor
}

// HTTPFetcher implements Fetcher over net/http with a cookie jar.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	governor *Governor
	breakers *hostBreakers
}

// NewHTTPFetcher creates an HTTPFetcher, filling zero options with defaults.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 10
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 50 << 20
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	opts.Retry.MaxAttempts = opts.MaxRetries

	governor := opts.Governor
	if governor == nil {
		governor = NewGovernor(GovernorConfig{})
	}

	jar, _ := cookiejar.New(nil)
	maxRedirects := opts.MaxRedirects
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			Jar:       jar,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return eris.Errorf("fetcher: stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		opts:     opts,
		governor: governor,
		breakers: newHostBreakers(opts.Breaker),
	}
}

// Get fetches rawURL.
func (f *HTTPFetcher) Get(ctx context.Context, rawURL string, header http.Header) (*Response, error) {
	return f.do(ctx, http.MethodGet, rawURL, "", header)
}

// PostForm submits form to rawURL.
func (f *HTTPFetcher) PostForm(ctx context.Context, rawURL string, form url.Values, header http.Header) (*Response, error) {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	return f.do(ctx, http.MethodPost, rawURL, form.Encode(), h)
}

func (f *HTTPFetcher) do(ctx context.Context, method, rawURL, body string, header http.Header) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, eris.Errorf("fetcher: invalid url %q", rawURL)
	}
	host := strings.ToLower(u.Host)

	if err := f.breakers.allow(host); err != nil {
		return nil, err
	}

	retryCfg := f.opts.Retry
	retryCfg.OnRetry = func(attempt int, err error) {
		zap.L().Warn("fetcher: retrying request",
			zap.String("method", method),
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	resp, err := retry(ctx, retryCfg, func(ctx context.Context) (*Response, error) {
		return f.attempt(ctx, method, rawURL, body, header)
	})
	f.breakers.record(host, err)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: %s %s", method, rawURL)
	}
	return resp, nil
}

func (f *HTTPFetcher) attempt(ctx context.Context, method, rawURL, body string, header http.Header) (*Response, error) {
	if err := f.governor.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: read body")
	}
	if int64(len(data)) > f.opts.MaxBodyBytes {
		return nil, eris.Errorf("fetcher: body from %s exceeds %d bytes", rawURL, f.opts.MaxBodyBytes)
	}

	final := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}

	if blocked, kind := DetectBlock(resp.StatusCode, resp.Header, data); blocked {
		return nil, &BlockedError{URL: final, Kind: kind}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{URL: final, StatusCode: resp.StatusCode}
		if IsTransientHTTPStatus(resp.StatusCode) {
			return nil, &TransientError{Err: statusErr, StatusCode: resp.StatusCode}
		}
		return nil, statusErr
	}

	return &Response{
		URL:        final,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}
