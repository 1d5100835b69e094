package middlewares

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/dropDatabas3/janus/internal/clients"
)

// WithCORS permite origins cuyo host aparece entre las redirect URIs de los
// clients activos (set cacheado), más los configurados estáticamente.
func WithCORS(registry *clients.Registry, static []string) Middleware {
	trim := func(s string) string { return strings.TrimRight(strings.TrimSpace(s), "/") }

	alist := make([]string, len(static))
	for i, v := range static {
		alist[i] = trim(v)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := trim(r.Header.Get("Origin"))

			w.Header().Add("Vary", "Origin")
			w.Header().Add("Vary", "Access-Control-Request-Method")
			w.Header().Add("Vary", "Access-Control-Request-Headers")

			if origin != "" && (inList(origin, alist) || hostAllowed(r, registry, origin)) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET,POST,HEAD,OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
				h.Set("Access-Control-Expose-Headers", "X-Request-ID, WWW-Authenticate, Location")
				h.Set("Access-Control-Max-Age", "600")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func inList(origin string, list []string) bool {
	for _, a := range list {
		if a == "*" || strings.EqualFold(origin, a) {
			return true
		}
	}
	return false
}

func hostAllowed(r *http.Request, registry *clients.Registry, origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	hosts, err := registry.AllowedHosts(r.Context())
	if err != nil {
		return false
	}
	return hosts[u.Host]
}
