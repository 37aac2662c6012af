package offline

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dittox/eventgw/internal/cache"
	"github.com/dittox/eventgw/internal/logging"
	"github.com/dittox/eventgw/internal/strategies"
)

// Control endpoints served by the edge itself.
const (
	MessagePath = "/__offline/message"
	StatusPath  = "/__offline/status"
)

// CacheHeader carries the strategy outcome on every edge response.
const CacheHeader = "X-Offline-Cache"

// Handler is the edge proxy: an http.Handler that runs every request through
// the registration. Relative requests are resolved against origin;
// absolute-form requests (HTTP proxy mode) keep their own host.
type Handler struct {
	reg    *Registration
	origin *url.URL
}

// NewHandler creates an edge handler.
func NewHandler(reg *Registration, origin *url.URL) *Handler {
	return &Handler{reg: reg, origin: origin}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !r.URL.IsAbs() {
		switch r.URL.Path {
		case MessagePath:
			h.serveMessage(w, r)
			return
		case StatusPath:
			h.serveStatus(w, r)
			return
		}
	}

	target := r.URL
	if !target.IsAbs() {
		target = h.origin.ResolveReference(&url.URL{Path: r.URL.Path, RawPath: r.URL.RawPath, RawQuery: r.URL.RawQuery})
	}
	out := r.Clone(r.Context())
	out.URL = target
	out.Host = target.Host
	out.RequestURI = ""

	_, res := h.reg.Handle(r.Context(), out)
	writeEntry(w, res.Entry, res.Outcome)
}

func (h *Handler) serveMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<10))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	cmd, err := ParseMessage(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.reg.Post(r.Context(), cmd); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	logging.FromContext(r.Context()).Info().Str("command", string(cmd)).Msg("control message queued")
	w.WriteHeader(http.StatusAccepted)
}

type workerStatus struct {
	ID      string `json:"id"`
	State   State  `json:"state"`
	Claimed bool   `json:"claimed"`
}

type status struct {
	Active  *workerStatus `json:"active"`
	Waiting *workerStatus `json:"waiting"`
	Caches  []string      `json:"caches"`
}

func toStatus(w *Worker) *workerStatus {
	if w == nil {
		return nil
	}
	return &workerStatus{ID: w.ID, State: w.State(), Claimed: w.Claimed()}
}

func (h *Handler) serveStatus(w http.ResponseWriter, r *http.Request) {
	names, err := h.reg.Storage().Keys(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, status{
		Active:  toStatus(h.reg.Active()),
		Waiting: toStatus(h.reg.Waiting()),
		Caches:  names,
	})
}

func writeEntry(w http.ResponseWriter, ent *cache.Entry, outcome strategies.Outcome) {
	for k, vs := range ent.Header {
		if strings.EqualFold(k, CacheHeader) {
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set(CacheHeader, string(outcome))
	ensureExposedHeader(w.Header(), CacheHeader)
	w.WriteHeader(ent.Status)
	_, _ = w.Write(ent.Body)
}

// ensureExposedHeader lets browser scripts read name in a CORS context.
func ensureExposedHeader(h http.Header, name string) {
	const expose = "Access-Control-Expose-Headers"
	cur := h.Values(expose)
	if len(cur) == 0 {
		h.Set(expose, name)
		return
	}
	merged := strings.Join(cur, ",")
	for _, part := range strings.Split(merged, ",") {
		if strings.EqualFold(strings.TrimSpace(part), name) {
			return
		}
	}
	h.Set(expose, strings.TrimSpace(merged)+", "+name)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
