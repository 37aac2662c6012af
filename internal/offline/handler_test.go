package offline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dittox/eventgw/internal/cache"
)

type edge struct {
	origin *httptest.Server
	fo     *fakeOrigin
	reg    *Registration
	srv    *httptest.Server
}

func newEdge(t *testing.T, precache ...string) *edge {
	t.Helper()
	fo := newFakeOrigin(map[string]string{
		"/":             "shell",
		"/index.html":   "shell",
		"/app.js":       "js",
		"/api/all-data": `{"speakers":[1]}`,
	})
	origin := httptest.NewServer(fo)
	t.Cleanup(origin.Close)

	reg := newTestRegistration(cache.NewMemory(0))
	cfg := testConfig(t, origin.URL, precache...)
	_, err := reg.Register(context.Background(), cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(NewHandler(reg, cfg.Origin))
	t.Cleanup(srv.Close)
	return &edge{origin: origin, fo: fo, reg: reg, srv: srv}
}

func (e *edge) get(t *testing.T, path string, hdr map[string]string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+path, nil)
	require.NoError(t, err)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func TestEdge_PrecachedShellIsHit(t *testing.T) {
	e := newEdge(t, "/", "/index.html")
	before := e.fo.hitCount("/index.html")

	resp, body := e.get(t, "/index.html", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "shell", body)
	require.Equal(t, "hit", resp.Header.Get(CacheHeader))
	require.Contains(t, resp.Header.Get("Access-Control-Expose-Headers"), CacheHeader)
	require.Equal(t, before, e.fo.hitCount("/index.html"), "cache hit must not reach the origin")
}

func TestEdge_StaticMissThenHit(t *testing.T) {
	e := newEdge(t, "/index.html")

	resp, body := e.get(t, "/app.js", nil)
	require.Equal(t, "miss", resp.Header.Get(CacheHeader))
	require.Equal(t, "js", body)

	resp, body = e.get(t, "/app.js", nil)
	require.Equal(t, "hit", resp.Header.Get(CacheHeader))
	require.Equal(t, "js", body)
	require.Equal(t, 1, e.fo.hitCount("/app.js"))
}

func TestEdge_APINetworkFirstThenStale(t *testing.T) {
	e := newEdge(t, "/index.html")

	resp, body := e.get(t, "/api/all-data", nil)
	require.Equal(t, "network", resp.Header.Get(CacheHeader))
	require.JSONEq(t, `{"speakers":[1]}`, body)

	e.fo.setBody("/api/all-data", `{"speakers":[1,2]}`)
	_, body = e.get(t, "/api/all-data", nil)
	require.JSONEq(t, `{"speakers":[1,2]}`, body, "network-first must prefer fresh data")

	e.fo.setStatus("/api/all-data", http.StatusInternalServerError)
	resp, body = e.get(t, "/api/all-data", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "stale", resp.Header.Get(CacheHeader))
	require.JSONEq(t, `{"speakers":[1,2]}`, body)
}

func TestEdge_OriginDown(t *testing.T) {
	e := newEdge(t, "/index.html")
	e.origin.Close()

	resp, body := e.get(t, "/index.html", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "precached shell survives the origin going away")
	require.Equal(t, "shell", body)

	resp, body = e.get(t, "/api/all-data", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "offline", resp.Header.Get(CacheHeader))
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	require.Equal(t, true, payload["offline"])

	resp, body = e.get(t, "/img/speaker.png", map[string]string{"Sec-Fetch-Dest": "image"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Empty(t, body)

	resp, body = e.get(t, "/schedule", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "Offline - Please check your connection", body)
}

func TestEdge_ControlMessages(t *testing.T) {
	e := newEdge(t, "/index.html")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.reg.Run(ctx)

	post := func(body string) int {
		resp, err := http.Post(e.srv.URL+MessagePath, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp.StatusCode
	}

	require.Equal(t, http.StatusBadRequest, post(`{"type":"NOPE"}`))
	require.Equal(t, http.StatusAccepted, post(`{"type":"CLEAR_CACHE"}`))
	require.Eventually(t, func() bool {
		names, _ := e.reg.Storage().Keys(ctx)
		return len(names) == 0
	}, 2*time.Second, 10*time.Millisecond)

	resp, _ := e.get(t, MessagePath, nil)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestEdge_Status(t *testing.T) {
	e := newEdge(t, "/index.html")
	resp, body := e.get(t, StatusPath, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st struct {
		Active struct {
			State   string `json:"state"`
			Claimed bool   `json:"claimed"`
		} `json:"active"`
		Caches []string `json:"caches"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	require.Equal(t, "activated", st.Active.State)
	require.True(t, st.Active.Claimed)
	require.Equal(t, []string{staticName}, st.Caches)
}

func TestEdge_ProxyFormKeepsHost(t *testing.T) {
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = w.Write([]byte("<svg/>"))
	}))
	defer cdn.Close()

	e := newEdge(t, "/index.html")
	proxyURL, err := url.Parse(e.srv.URL)
	require.NoError(t, err)
	client := &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}}

	req, err := http.NewRequest(http.MethodGet, cdn.URL+"/logo.svg", nil)
	require.NoError(t, err)
	req.Header.Set("Sec-Fetch-Dest", "image")
	resp, err := client.Do(req)
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	require.Equal(t, "<svg/>", string(b))
	require.Equal(t, "miss", resp.Header.Get(CacheHeader))

	ok, err := e.reg.Storage().Has(context.Background(), imageName)
	require.NoError(t, err)
	require.True(t, ok, "image response must land in the image cache")
}
