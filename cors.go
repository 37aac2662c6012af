package eventgw

import (
	"net/http"
	"strings"
)

var corsAllowHeaders = strings.Join([]string{
	"X-CSRF-Token", "X-Requested-With", "Accept", "Accept-Version",
	"Content-Length", "Content-MD5", "Content-Type", "Date", "X-Api-Version",
}, ", ")

// corsMiddleware sets the CORS headers for the data API. Preflight requests
// are answered with 200 and an empty body.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
