// Package sitemap fetches and discovers the portal's daily sitemap
// indexes and leaf sitemaps, and resolves which dates in a range
// actually carry content.
package sitemap

import (
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	headerUserAgent     = "User-Agent"
	headerAcceptEncoding = "Accept-Encoding"
	headerAccept        = "Accept"
	headerContentEnc    = "Content-Encoding"
	acceptEncodingValue = "gzip, deflate"
	acceptValue         = "application/xml, text/xml, */*"
	maxBodySize         = 20 * 1024 * 1024
)

// Entry is one document reference inside a leaf sitemap.
type Entry struct {
	URL          string
	LastModified string
	DocumentID   string
}

// index mirrors the sitemap index XML shape (a list of leaf locs).
type index struct {
	XMLName xml.Name      `xml:"sitemapindex"`
	Entries []indexSitemap `xml:"sitemap"`
}

type indexSitemap struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

// leaf mirrors one daily sitemap's url entries.
type leaf struct {
	XMLName xml.Name   `xml:"urlset"`
	URLs    []leafURL  `xml:"url"`
}

type leafURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

// Client fetches sitemap index and leaf documents over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
}

// NewClient builds a sitemap Client. rateLimitMs bounds the global request
// rate to one request per that many milliseconds, enforced via Throttle
// before every leaf fetch (not before index fetches); zero or negative
// disables limiting entirely.
func NewClient(httpClient *http.Client, baseURL, userAgent string, rateLimitMs int) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		limiter:    newLimiter(rateLimitMs),
	}
}

func newLimiter(rateLimitMs int) *rate.Limiter {
	if rateLimitMs <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}

	return rate.NewLimiter(rate.Every(time.Duration(rateLimitMs)*time.Millisecond), 1)
}

// Throttle blocks until the client's global rate limit allows another
// request, or ctx is canceled.
func (c *Client) Throttle(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

// IndexURL builds the daily sitemap index URL for date.
func (c *Client) IndexURL(date time.Time) string {
	return fmt.Sprintf("%s/jportal/docs/eclicrawler/%04d/%02d/%02d/sitemap_index_1.xml",
		c.baseURL, date.Year(), date.Month(), date.Day())
}

// FetchIndex retrieves the daily sitemap index for date and returns the
// leaf sitemap URLs it references.
func (c *Client) FetchIndex(ctx context.Context, date time.Time) ([]string, error) {
	body, err := c.get(ctx, c.IndexURL(date))
	if err != nil {
		return nil, err
	}

	var idx index
	if err := xml.Unmarshal(body, &idx); err != nil {
		return nil, fmt.Errorf("parse sitemap index: %w", err)
	}

	urls := make([]string, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		if e.Loc != "" {
			urls = append(urls, e.Loc)
		}
	}

	return urls, nil
}

// FetchLeaf retrieves one leaf sitemap and returns its entries, each
// carrying the documentId parsed from its loc's docid query parameter.
// It waits on the client's rate limiter before issuing the request.
func (c *Client) FetchLeaf(ctx context.Context, leafURL string) ([]Entry, error) {
	if err := c.Throttle(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := c.get(ctx, leafURL)
	if err != nil {
		return nil, err
	}

	var sm leaf
	if err := xml.Unmarshal(body, &sm); err != nil {
		return nil, fmt.Errorf("parse leaf sitemap: %w", err)
	}

	entries := make([]Entry, 0, len(sm.URLs))

	for _, u := range sm.URLs {
		if u.Loc == "" {
			continue
		}

		entries = append(entries, Entry{
			URL:          u.Loc,
			LastModified: u.LastMod,
			DocumentID:   DocIDFromURL(u.Loc),
		})
	}

	return entries, nil
}

// DocIDFromURL extracts the docid query parameter from a sitemap entry
// URL. It returns the empty string if absent or unparseable.
func DocIDFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	return parsed.Query().Get("docid")
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set(headerUserAgent, c.userAgent)
	req.Header.Set(headerAcceptEncoding, acceptEncodingValue)
	req.Header.Set(headerAccept, acceptValue)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d for %s", errHTTPStatus, resp.StatusCode, target)
	}

	reader := resp.Body

	if strings.EqualFold(resp.Header.Get(headerContentEnc), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gunzip %s: %w", target, err)
		}
		defer gz.Close()

		reader = gz
	}

	body, err := io.ReadAll(io.LimitReader(reader, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", target, err)
	}

	return body, nil
}
