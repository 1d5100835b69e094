// Package http arma el router del servidor y su instrumentación.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/janus/internal/clients"
	"github.com/dropDatabas3/janus/internal/config"
	oauthctrl "github.com/dropDatabas3/janus/internal/http/controllers/oauth"
	oidcctrl "github.com/dropDatabas3/janus/internal/http/controllers/oidc"
	mw "github.com/dropDatabas3/janus/internal/http/middlewares"
	"github.com/dropDatabas3/janus/internal/keys"
	"github.com/dropDatabas3/janus/internal/oauth2"
	"github.com/dropDatabas3/janus/internal/sessions"
	"github.com/dropDatabas3/janus/internal/store/core"
)

// Deps agrupa todo lo que el router necesita cableado.
type Deps struct {
	Config   *config.Config
	Service  *oauth2.Service
	Keys     *keys.Service
	Registry *clients.Registry
	Sessions *sessions.Store
	Store    core.Store
	Metrics  http.Handler
}

// promMetrics adapta los contadores del paquete a la interfaz que consumen
// los controllers.
type promMetrics struct{}

func (promMetrics) CountTokenIssued(grantType string) { CountTokenIssued(grantType) }
func (promMetrics) CountGrantFailure(code string)     { CountGrantFailure(code) }

// NewRouter construye el chi.Router con todos los endpoints del servidor.
func NewRouter(d Deps) chi.Router {
	bridge := &mw.Bridge{
		Service:         d.Service,
		Sessions:        d.Sessions,
		BrowserClientID: d.Config.OAuth2.BrowserClientID,
		APIPrefix:       "/api/",
	}

	authorize := oauthctrl.NewAuthorizeController(d.Service, d.Config.OAuth2.LoginURL, "/error")
	token := oauthctrl.NewTokenController(d.Service, promMetrics{})
	revoke := oauthctrl.NewRevokeController(d.Service)
	introspect := oauthctrl.NewIntrospectController(d.Service)
	oidc := &oidcctrl.Controllers{
		Keys:       d.Keys,
		Service:    d.Service,
		Issuer:     d.Config.OAuth2.Issuer,
		CookieName: d.Config.Session.CookieName,
	}

	r := chi.NewRouter()
	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithCORS(d.Registry, d.Config.Server.CORSAllowedOrigins),
		mw.WithLogging(),
		withInstrumentation,
		mw.WithSessionBridge(bridge),
	)

	// protocolo
	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore())
		r.Get("/authorize", authorize.Authorize)
		r.Post("/token", token.Token)
		r.Post("/revoke", revoke.Revoke)
		r.Post("/introspect", introspect.Introspect)
		r.Get("/tokeninfo", oidc.TokenInfo)
	})

	// material público y discovery
	r.Get("/jwks", oidc.JWKS)
	r.Get("/.well-known/jwks.json", oidc.JWKS)
	r.Get("/certs", oidc.Certs)
	r.Get("/.well-known/openid-configuration", oidc.Discovery)
	r.Get("/session", oidc.Session)

	// página de error para fallos fatales de /authorize
	r.Get("/error", errorPage)

	// operabilidad
	r.Get("/healthz", healthz(d.Store))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	return r
}

func healthz(store core.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// withInstrumentation alimenta las métricas HTTP con el patrón de ruta de
// chi, no con el path crudo, para mantener la cardinalidad acotada.
func withInstrumentation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		ObserveRequest(r.Method, path, rec.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (s *statusWriter) WriteHeader(code int) {
	if s.wrote {
		return
	}
	s.status = code
	s.wrote = true
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if !s.wrote {
		s.wrote = true
	}
	return s.ResponseWriter.Write(b)
}
