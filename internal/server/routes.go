package server

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Tyrowin/ssechat/internal/hub"
	"github.com/Tyrowin/ssechat/internal/metrics"
)

type route struct {
	path    string
	handler http.Handler
	methods []string
}

// SetupRoutes builds the application router around h. Every response passes
// through panic recovery, request IDs and the access log; completed requests
// are counted on collector, which also serves /metrics.
func SetupRoutes(h *hub.Hub, collector *metrics.Collector) http.Handler {
	handlers := NewHandlers(h)
	readOnly := []string{http.MethodGet, http.MethodHead}

	routes := []route{
		{"/", http.HandlerFunc(handlers.ChatApp), readOnly},
		{"/json", http.HandlerFunc(handlers.JSON), readOnly},
		{"/echo", http.HandlerFunc(handlers.Echo), readOnly},
		{"/chat", http.HandlerFunc(handlers.Chat), readOnly},
		{"/sse", http.HandlerFunc(handlers.Stream), readOnly},
		{"/text", http.HandlerFunc(handlers.Text), readOnly},
		{"/ws", http.HandlerFunc(handlers.WebSocket), []string{http.MethodGet}},
		{"/healthz", http.HandlerFunc(handlers.Health), readOnly},
	}
	if collector != nil {
		routes = append(routes, route{"/metrics", collector, []string{http.MethodGet}})
	}

	r := mux.NewRouter()
	// Unmatched paths must reach the 404 handler verbatim, not a redirect.
	r.SkipClean(true)
	r.Use(tagRoute)

	paths := make([]string, 0, len(routes))
	for _, rt := range routes {
		r.Handle(rt.path, rt.handler).Methods(rt.methods...)
		paths = append(paths, rt.path)
	}

	r.NotFoundHandler = http.HandlerFunc(handlers.Static)
	r.MethodNotAllowedHandler = http.HandlerFunc(NotFoundHandler)

	var obs RequestObserver
	if collector != nil {
		obs = collector
	}
	return chain(r, requestID, accessLog(obs), recoverPanics, canonicalPath(paths))
}

// canonicalPath rewrites a request path that equals one of paths up to
// letter case and a single trailing slash, so "/JSON" and "/json/" are served
// by "/json". The client sees no redirect.
func canonicalPath(paths []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, ok := matchPath(paths, r.URL.Path); ok && p != r.URL.Path {
				u := *r.URL
				u.Path = p
				u.RawPath = ""
				r = r.WithContext(r.Context())
				r.URL = &u
			}
			next.ServeHTTP(w, r)
		})
	}
}

func matchPath(paths []string, p string) (string, bool) {
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	for _, candidate := range paths {
		if strings.EqualFold(candidate, p) {
			return candidate, true
		}
	}
	return "", false
}
