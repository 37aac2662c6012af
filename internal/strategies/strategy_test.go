package strategies

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dittox/eventgw/internal/cache"
)

const (
	staticCache = "dittox25-v1.0.0"
	apiCache    = "dittox25-api-v1.0.0"
	imageCache  = "dittox25-images-v1.0.0"
)

type mockNetwork struct {
	resp  *cache.Entry
	err   error
	calls int
}

func (m *mockNetwork) fetch(_ context.Context, _ *http.Request) (*cache.Entry, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.resp.Clone(), nil
}

func ok(body string) *cache.Entry {
	return &cache.Entry{Status: 200, StatusText: "OK", Header: http.Header{}, Body: []byte(body)}
}

func get(url string) *http.Request {
	return httptest.NewRequest(http.MethodGet, url, nil)
}

func seed(t *testing.T, s cache.Storage, name, url, body string) {
	t.Helper()
	c, err := s.Open(context.Background(), name)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put(context.Background(), cache.Key(get(url)), ok(body)); err != nil {
		t.Fatal(err)
	}
}

func TestCacheFirst_HitSkipsNetwork(t *testing.T) {
	s := cache.NewMemory(0)
	seed(t, s, staticCache, "http://localhost/index.html", "cached")
	net := &mockNetwork{resp: ok("fresh")}

	res := NewCacheFirst(s, staticCache, net.fetch, OfflinePage).Handle(context.Background(), get("http://localhost/index.html"))
	if res.Outcome != OutcomeHit {
		t.Errorf("outcome = %q, want hit", res.Outcome)
	}
	if string(res.Entry.Body) != "cached" {
		t.Errorf("body = %q, want cached", res.Entry.Body)
	}
	if net.calls != 0 {
		t.Error("network should not have been called")
	}
}

func TestCacheFirst_MissStoresCopy(t *testing.T) {
	s := cache.NewMemory(0)
	net := &mockNetwork{resp: ok("X")}
	strat := NewCacheFirst(s, staticCache, net.fetch, OfflinePage)

	res := strat.Handle(context.Background(), get("http://localhost/app.js"))
	if res.Outcome != OutcomeMiss || string(res.Entry.Body) != "X" {
		t.Fatalf("got %q %q, want miss X", res.Outcome, res.Entry.Body)
	}

	// Mutating the returned body must not leak into the cache.
	res.Entry.Body[0] = 'Y'

	c, _ := s.Open(context.Background(), staticCache)
	stored, err := c.Match(context.Background(), cache.Key(get("http://localhost/app.js")))
	if err != nil {
		t.Fatalf("expected stored entry: %v", err)
	}
	if string(stored.Body) != "X" {
		t.Errorf("stored body = %q, want X", stored.Body)
	}

	res = strat.Handle(context.Background(), get("http://localhost/app.js"))
	if res.Outcome != OutcomeHit || net.calls != 1 {
		t.Errorf("second request: outcome=%q calls=%d, want hit with 1 call", res.Outcome, net.calls)
	}
}

func TestCacheFirst_Non200NotStored(t *testing.T) {
	s := cache.NewMemory(0)
	net := &mockNetwork{resp: &cache.Entry{Status: 404, Body: []byte("nope")}}

	res := NewCacheFirst(s, staticCache, net.fetch, OfflinePage).Handle(context.Background(), get("http://localhost/missing.css"))
	if res.Entry.Status != 404 {
		t.Errorf("status = %d, want 404 passed through", res.Entry.Status)
	}
	if _, err := s.Match(context.Background(), cache.Key(get("http://localhost/missing.css"))); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("non-200 response must not be cached, got %v", err)
	}
}

func TestCacheFirst_StaticOffline(t *testing.T) {
	net := &mockNetwork{err: errors.New("connection refused")}
	res := NewCacheFirst(cache.NewMemory(0), staticCache, net.fetch, OfflinePage).Handle(context.Background(), get("http://localhost/"))

	if res.Outcome != OutcomeOffline {
		t.Errorf("outcome = %q, want offline", res.Outcome)
	}
	if res.Entry.Status != 503 || res.Entry.StatusText != "Service Unavailable" {
		t.Errorf("got %d %q, want 503 Service Unavailable", res.Entry.Status, res.Entry.StatusText)
	}
	if string(res.Entry.Body) != "Offline - Please check your connection" {
		t.Errorf("body = %q", res.Entry.Body)
	}
}

func TestCacheFirst_ImageOfflineIsEmpty404(t *testing.T) {
	net := &mockNetwork{err: errors.New("offline")}
	res := NewCacheFirst(cache.NewMemory(0), imageCache, net.fetch, OfflineImage).Handle(context.Background(), get("https://cdn.prod.website-files.com/a.svg"))

	if res.Entry.Status != 404 {
		t.Errorf("status = %d, want 404", res.Entry.Status)
	}
	if len(res.Entry.Body) != 0 {
		t.Errorf("body = %q, want empty", res.Entry.Body)
	}
}

func TestCacheFirst_FindsEntryInAnyCache(t *testing.T) {
	s := cache.NewMemory(0)
	// Precached CDN image lives in the static cache; the image strategy must
	// still find it.
	seed(t, s, staticCache, "https://cdn.prod.website-files.com/map.webp", "map")
	net := &mockNetwork{err: errors.New("offline")}

	res := NewCacheFirst(s, imageCache, net.fetch, OfflineImage).Handle(context.Background(), get("https://cdn.prod.website-files.com/map.webp"))
	if res.Outcome != OutcomeHit || string(res.Entry.Body) != "map" {
		t.Errorf("got %q %q, want hit map", res.Outcome, res.Entry.Body)
	}
}

func TestNetworkFirst_SuccessCaches(t *testing.T) {
	s := cache.NewMemory(0)
	net := &mockNetwork{resp: ok(`{"speakers":[]}`)}
	req := get("http://localhost/api/all-data")

	res := NewNetworkFirst(s, apiCache, net.fetch, OfflineJSON).Handle(context.Background(), req)
	if res.Outcome != OutcomeNetwork || string(res.Entry.Body) != `{"speakers":[]}` {
		t.Fatalf("got %q %q", res.Outcome, res.Entry.Body)
	}
	c, _ := s.Open(context.Background(), apiCache)
	stored, err := c.Match(context.Background(), cache.Key(req))
	if err != nil {
		t.Fatalf("expected cached api response: %v", err)
	}
	if string(stored.Body) != string(res.Entry.Body) {
		t.Errorf("stored %q, returned %q", stored.Body, res.Entry.Body)
	}
}

func TestNetworkFirst_ServerErrorFallsBackToCache(t *testing.T) {
	s := cache.NewMemory(0)
	seed(t, s, apiCache, "http://localhost/api/all-data", "old")
	net := &mockNetwork{resp: &cache.Entry{Status: 500, Body: []byte("boom")}}

	res := NewNetworkFirst(s, apiCache, net.fetch, OfflineJSON).Handle(context.Background(), get("http://localhost/api/all-data"))
	if res.Outcome != OutcomeStale {
		t.Errorf("outcome = %q, want stale", res.Outcome)
	}
	if res.Entry.Status != 200 || string(res.Entry.Body) != "old" {
		t.Errorf("got %d %q, want cached 200 old", res.Entry.Status, res.Entry.Body)
	}
}

func TestNetworkFirst_OfflineNoCache(t *testing.T) {
	net := &mockNetwork{err: errors.New("offline")}
	res := NewNetworkFirst(cache.NewMemory(0), apiCache, net.fetch, OfflineJSON).Handle(context.Background(), get("http://localhost/api/all-data"))

	if res.Entry.Status != 503 {
		t.Fatalf("status = %d, want 503", res.Entry.Status)
	}
	if ct := res.Entry.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q", ct)
	}
	var body struct {
		Error   string `json:"error"`
		Offline bool   `json:"offline"`
	}
	if err := json.Unmarshal(res.Entry.Body, &body); err != nil {
		t.Fatal(err)
	}
	if !body.Offline || body.Error != "Offline and no cached data available" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestPassthrough(t *testing.T) {
	net := &mockNetwork{resp: ok("created")}
	res := NewPassthrough(net.fetch).Handle(context.Background(), httptest.NewRequest(http.MethodPost, "http://localhost/api/all-data", nil))
	if res.Outcome != OutcomeBypass || string(res.Entry.Body) != "created" {
		t.Errorf("got %q %q", res.Outcome, res.Entry.Body)
	}

	net = &mockNetwork{err: errors.New("down")}
	res = NewPassthrough(net.fetch).Handle(context.Background(), get("http://localhost/x"))
	if res.Entry.Status != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", res.Entry.Status)
	}
}

func TestClassifier(t *testing.T) {
	c := NewClassifier(DefaultRules("/api/", []string{"cdn.prod.website-files.com"}), ClassStatic)

	tests := []struct {
		name string
		url  string
		dest string
		want Class
	}{
		{"api prefix", "http://localhost/api/all-data", "", ClassAPI},
		{"api wins over image destination", "http://localhost/api/logo.png", "image", ClassAPI},
		{"image destination", "http://localhost/img/logo.png", "image", ClassImage},
		{"cdn host", "https://cdn.prod.website-files.com/655e/x.webp", "", ClassImage},
		{"cdn host upper case", "https://CDN.PROD.WEBSITE-FILES.COM/x.svg", "", ClassImage},
		{"document", "http://localhost/index.html", "document", ClassStatic},
		{"font", "http://localhost/fonts/Neusa-Bold.otf", "font", ClassStatic},
		{"apis is not api", "http://localhost/apis", "", ClassStatic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := get(tt.url)
			if tt.dest != "" {
				req.Header.Set("Sec-Fetch-Dest", tt.dest)
			}
			if got := c.Classify(req); got != tt.want {
				t.Errorf("Classify(%s) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestClassifier_HostFromRequestHost(t *testing.T) {
	c := NewClassifier(DefaultRules("/api/", []string{"cdn.prod.website-files.com"}), ClassStatic)
	req := &http.Request{Method: http.MethodGet, Host: "cdn.prod.website-files.com:443", Header: http.Header{}}
	req.URL = get("/x.svg").URL
	if got := c.Classify(req); got != ClassImage {
		t.Errorf("Classify = %q, want image", got)
	}
}
