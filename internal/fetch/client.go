// Package fetch provides the HTTP client used by all directory sources. It
// presents browser-like headers, keeps cookies across requests within a run,
// and returns non-2xx responses as values so callers can drive their retry
// state machines off the status code.
package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// maxBodyBytes caps how much of a response body is read. Listing and detail
// pages are far below this; anything larger is truncated.
const maxBodyBytes = 2 << 20

// Page is one fetched page. StatusCode is set for every response the server
// produced, including 403 and 429.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Document parses the page body as HTML.
func (p *Page) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse document %s", p.URL)
	}
	return doc, nil
}

// Client fetches pages. Get returns an error only for transport failures;
// HTTP error statuses come back as a Page. GetWithHeaders is Get plus
// per-request headers, used by API sources that authenticate.
type Client interface {
	Get(ctx context.Context, rawURL string) (*Page, error)
	GetWithHeaders(ctx context.Context, rawURL string, headers map[string]string) (*Page, error)
	SetUserAgent(ua string)
}

// Options configures the HTTP client.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	ProxyURL  string
}

// HTTPClient implements Client over net/http with a cookie jar.
type HTTPClient struct {
	client *http.Client

	mu        sync.Mutex
	userAgent string
}

// NewHTTP creates an HTTPClient.
func NewHTTP(opts Options) (*HTTPClient, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = RandomUserAgent()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create cookie jar")
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	if opts.ProxyURL != "" {
		proxy, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, eris.Wrapf(err, "fetch: parse proxy url %s", opts.ProxyURL)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Jar:       jar,
			Transport: transport,
		},
		userAgent: opts.UserAgent,
	}, nil
}

// SetUserAgent changes the user agent for subsequent requests.
func (c *HTTPClient) SetUserAgent(ua string) {
	c.mu.Lock()
	c.userAgent = ua
	c.mu.Unlock()
}

func (c *HTTPClient) currentUserAgent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userAgent
}

// Get fetches a page. The response body is read fully, up to maxBodyBytes.
func (c *HTTPClient) Get(ctx context.Context, rawURL string) (*Page, error) {
	return c.GetWithHeaders(ctx, rawURL, nil)
}

// GetWithHeaders fetches a page with extra request headers layered over the
// browser defaults.
func (c *HTTPClient) GetWithHeaders(ctx context.Context, rawURL string, headers map[string]string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: create request %s", rawURL)
	}

	req.Header.Set("User-Agent", c.currentUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9,en;q=0.5")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Referer", "https://www.google.com/")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: get %s", rawURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: read body %s", rawURL)
	}

	return &Page{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}
