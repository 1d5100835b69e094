package middlewares

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/dropDatabas3/janus/internal/directory"
	"github.com/dropDatabas3/janus/internal/oauth2"
	"github.com/dropDatabas3/janus/internal/sessions"
	"github.com/dropDatabas3/janus/internal/store/core"
)

// Caller es la identidad resuelta del request. Anonymous=true significa que
// ninguna credencial resolvió: el endpoint decide si eso alcanza.
type Caller struct {
	Anonymous bool
	User      *directory.User
	Client    *core.Client
	Scopes    []string
	// SessionKey solo viene poblado cuando la identidad salió de la cookie.
	SessionKey string
	Verified   bool
	AuthTime   int64
}

// Bridge resuelve la identidad del caller: bearer token para el namespace
// API, cookie de sesión para el resto.
type Bridge struct {
	Service  *oauth2.Service
	Sessions *sessions.Store
	// BrowserClientID es el client fijo que representa al UI web propio.
	BrowserClientID string
	// APIPrefix delimita el namespace que autentica por bearer token.
	APIPrefix string
}

type callerBox struct {
	once    sync.Once
	resolve func() *Caller
	caller  *Caller
}

type callerKey struct{}

// WithSessionBridge deja en el contexto un resolvedor perezoso de identidad.
// La resolución corre como mucho una vez por request, la primera vez que un
// handler llama a CallerFrom.
func WithSessionBridge(b *Bridge) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			box := &callerBox{resolve: func() *Caller { return b.resolveCaller(r) }}
			ctx := context.WithValue(r.Context(), callerKey{}, box)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerFrom devuelve la identidad memoizada del request. Fuera de un request
// con WithSessionBridge devuelve un caller anónimo.
func CallerFrom(ctx context.Context) *Caller {
	box, ok := ctx.Value(callerKey{}).(*callerBox)
	if !ok {
		return &Caller{Anonymous: true}
	}
	box.once.Do(func() { box.caller = box.resolve() })
	return box.caller
}

// resolveCaller nunca propaga errores: cualquier fallo degrada a anónimo con
// scopes vacíos. Bajo el namespace API sin bearer token, la sesión de
// navegador sirve igual: es el UI web propio llamando a su misma origin.
func (b *Bridge) resolveCaller(r *http.Request) *Caller {
	if strings.HasPrefix(r.URL.Path, b.APIPrefix) {
		if token := bearerToken(r); token != "" {
			return b.fromBearer(r, token)
		}
		return b.fromCookie(r, true)
	}
	return b.fromCookie(r, false)
}

func (b *Bridge) fromBearer(r *http.Request, token string) *Caller {
	id, err := b.Service.ValidateBearerToken(r.Context(), token, nil)
	if err != nil {
		return &Caller{Anonymous: true}
	}
	return &Caller{User: id.User, Client: id.Client, Scopes: id.Scopes}
}

// fromCookie resuelve la sesión de navegador. Con withClient adjunta la
// identidad fija del browser client y sus scopes estáticos.
func (b *Bridge) fromCookie(r *http.Request, withClient bool) *Caller {
	key, data, err := b.Sessions.FromRequest(r)
	if err != nil {
		return &Caller{Anonymous: true}
	}
	user, err := b.Service.Directory().GetByUUID(r.Context(), data.UserUUID)
	if err != nil {
		return &Caller{Anonymous: true}
	}
	caller := &Caller{
		User:       user,
		SessionKey: key,
		Verified:   data.Verified,
		AuthTime:   data.AuthTime,
	}
	if withClient && b.BrowserClientID != "" {
		if c, err := b.Service.Registry().ByClientID(r.Context(), b.BrowserClientID); err == nil {
			caller.Client = c
			caller.Scopes = c.Scopes
		}
	}
	return caller
}

// bearerToken extrae el token del header Authorization o del parámetro
// access_token (query o body).
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[len("bearer "):])
	}
	if t := r.URL.Query().Get("access_token"); t != "" {
		return t
	}
	if err := r.ParseForm(); err == nil {
		return r.PostForm.Get("access_token")
	}
	return ""
}
