// Package static serves the single-page app shell and its assets.
package static

import (
	"errors"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/dittox/eventgw/internal/logging"
)

const (
	indexFile = "index.html"
	notFound  = "<h1>404 Not Found</h1>"
)

var mimeTypes = map[string]string{
	".html":  "text/html",
	".js":    "text/javascript",
	".css":   "text/css",
	".json":  "application/json",
	".png":   "image/png",
	".jpg":   "image/jpg",
	".gif":   "image/gif",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".otf":   "font/otf",
	".ttf":   "font/ttf",
	".webp":  "image/webp",
}

// ContentType returns the content type served for name.
func ContentType(name string) string {
	if ct, ok := mimeTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Server serves files from an fs.FS. Unknown paths get the app shell.
type Server struct {
	files fs.FS
}

// New returns a Server over files, e.g. os.DirFS(dir) or an embedded tree.
func New(files fs.FS) *Server {
	return &Server{files: files}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		name = indexFile
	}

	body, err := fs.ReadFile(s.files, name)
	switch {
	case err == nil:
		write(w, http.StatusOK, ContentType(name), body)
	case errors.Is(err, fs.ErrNotExist) || isDir(s.files, name):
		s.serveShell(w)
	default:
		logging.FromContext(r.Context()).Error().Err(err).Str("path", name).Msg("static read failed")
		write(w, http.StatusInternalServerError, "", []byte("Server Error: "+reason(err)))
	}
}

func (s *Server) serveShell(w http.ResponseWriter) {
	body, err := fs.ReadFile(s.files, indexFile)
	if err != nil {
		write(w, http.StatusNotFound, "text/html", []byte(notFound))
		return
	}
	write(w, http.StatusOK, "text/html", body)
}

func isDir(files fs.FS, name string) bool {
	fi, err := fs.Stat(files, name)
	return err == nil && fi.IsDir()
}

func reason(err error) string {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err.Error()
	}
	return err.Error()
}

func write(w http.ResponseWriter, status int, contentType string, body []byte) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
