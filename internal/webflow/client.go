// Package webflow is a small client for the Webflow CMS v2 API: site
// collection listings and paginated collection items.
package webflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/gregjones/httpcache"
	"golang.org/x/oauth2"

	"github.com/dittox/eventgw/internal/version"
)

// DefaultBaseURL is the v2 API root.
const DefaultBaseURL = "https://api.webflow.com/v2"

// Client talks to the CMS API with a bearer token. Responses are cached in
// memory and revalidated with ETags.
type Client struct {
	http     *http.Client
	baseURL  *url.URL
	pageSize int
}

type options struct {
	base     http.RoundTripper
	baseURL  string
	pageSize int
	timeout  time.Duration
}

// Option configures a Client.
type Option func(*options)

// WithBaseURL overrides the API root.
func WithBaseURL(raw string) Option {
	return func(o *options) { o.baseURL = raw }
}

// WithTransport replaces the caching base transport under the token
// transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

// WithPageSize sets the item page size (the API caps it at 100).
func WithPageSize(n int) Option {
	return func(o *options) { o.pageSize = n }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// New creates a client authenticating with token.
func New(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, errors.New("webflow: api token required")
	}
	o := options{baseURL: DefaultBaseURL, pageSize: 100, timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	u, err := url.Parse(o.baseURL)
	if err != nil {
		return nil, fmt.Errorf("webflow: base url: %w", err)
	}
	if o.base == nil {
		o.base = httpcache.NewMemoryCacheTransport()
	}
	if o.pageSize <= 0 || o.pageSize > 100 {
		o.pageSize = 100
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	return &Client{
		http: &http.Client{
			Transport: &oauth2.Transport{Source: src, Base: o.base},
			Timeout:   o.timeout,
		},
		baseURL:  u,
		pageSize: o.pageSize,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, p string, q url.Values, out any) error {
	u := *c.baseURL
	u.Path = path.Join(u.Path, p)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", p, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("GET %s: read body: %w", p, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", p, err)
	}
	return nil
}

// ListCollections returns the collections of a site in API order.
func (c *Client) ListCollections(ctx context.Context, siteID string) ([]Collection, error) {
	var r collectionsResponse
	if err := c.getJSON(ctx, "/sites/"+siteID+"/collections", nil, &r); err != nil {
		return nil, err
	}
	return r.Collections, nil
}

// ListItems returns every item of a collection, following pagination.
func (c *Client) ListItems(ctx context.Context, collectionID string) ([]Item, error) {
	items := make([]Item, 0)
	offset := 0
	for {
		q := url.Values{}
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(c.pageSize))

		var r itemsResponse
		if err := c.getJSON(ctx, "/collections/"+collectionID+"/items", q, &r); err != nil {
			return nil, err
		}
		items = append(items, r.Items...)
		offset += len(r.Items)
		if len(r.Items) == 0 || offset >= r.Pagination.Total {
			return items, nil
		}
	}
}
