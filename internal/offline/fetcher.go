package offline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dittox/eventgw/internal/cache"
)

// Hop-by-hop headers are not forwarded (RFC 9110 section 7.6.1).
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// HTTPFetcher performs network requests on behalf of the strategies and
// captures complete responses.
type HTTPFetcher struct {
	Client *http.Client
	// MaxBodyBytes caps captured bodies; zero means 32 MiB.
	MaxBodyBytes int64
}

// NewHTTPFetcher creates a fetcher with the given client timeout; zero means
// fetches are bounded only by the request context.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

// Fetch implements strategies.FetchFunc. Any answer from the network,
// including 4xx and 5xx, is a response; only transport failures are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *http.Request) (*cache.Entry, error) {
	out, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), req.Body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	copyHeaders(out.Header, req.Header)
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}
	out.Header.Set("Accept-Encoding", "identity")
	out.ContentLength = req.ContentLength

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(out)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	limit := f.MaxBodyBytes
	if limit <= 0 {
		limit = 32 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("upstream body exceeds %d bytes", limit)
	}

	hdr := resp.Header.Clone()
	if hdr == nil {
		hdr = make(http.Header)
	}
	hdr.Del("Content-Length")
	for _, h := range hopHeaders {
		hdr.Del(h)
	}
	return &cache.Entry{
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Header:     hdr,
		Body:       body,
		StoredAt:   time.Now().UTC(),
	}, nil
}

// statusText extracts the reason phrase from resp.Status ("200 OK" -> "OK").
func statusText(resp *http.Response) string {
	if _, text, ok := strings.Cut(resp.Status, " "); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		if strings.EqualFold(k, "Host") {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
