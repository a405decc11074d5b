package server

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
)

//go:embed chat.html
var chatHTML []byte

//go:embed public
var publicFiles embed.FS

func publicFS() fs.FS {
	sub, err := fs.Sub(publicFiles, "public")
	if err != nil {
		panic(err) // the embed directive guarantees the directory exists
	}
	return sub
}

// ChatApp serves the chat UI document at GET /.
func (h *Handlers) ChatApp(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(chatHTML); err != nil {
		slog.Debug("http: write failed", "err", err)
	}
}

// Static serves embedded public assets and answers everything else with
// NotFoundHandler. It is installed as the router's not-found handler.
func (h *Handlers) Static(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		NotFoundHandler(w, r)
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		NotFoundHandler(w, r)
		return
	}

	info, err := fs.Stat(h.public, name)
	if err != nil || info.IsDir() {
		NotFoundHandler(w, r)
		return
	}

	setRoute(r, "static")
	http.ServeFileFS(w, r, h.public, name)
}
