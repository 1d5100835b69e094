package oauth2

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/janus/internal/directory"
	"github.com/dropDatabas3/janus/internal/store/core"
)

// AuthorizeRequest es la lectura inmutable de GET /authorize. Se construye
// una vez desde el http.Request y no se muta: todo lo resuelto va a la
// Resolution.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	Prompt              string
	MaxAge              string
	Claims              string
	IDTokenHint         string
}

func ParseAuthorizeRequest(r *http.Request) *AuthorizeRequest {
	q := r.URL.Query()
	return &AuthorizeRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		Nonce:               q.Get("nonce"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		Prompt:              q.Get("prompt"),
		MaxAge:              q.Get("max_age"),
		Claims:              q.Get("claims"),
		IDTokenHint:         q.Get("id_token_hint"),
	}
}

// Scopes devuelve el scope separado por espacios como slice.
func (r *AuthorizeRequest) Scopes() []string { return splitScope(r.Scope) }

// HasPrompt reporta si value aparece en el parámetro prompt.
func (r *AuthorizeRequest) HasPrompt(value string) bool {
	for _, p := range strings.Fields(r.Prompt) {
		if p == value {
			return true
		}
	}
	return false
}

// TokenRequest es la lectura inmutable de POST /token (y de /revoke e
// /introspect, que comparten la autenticación de client).
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	RefreshToken string
	Scope        string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	CodeVerifier string
	Token        string
}

func ParseTokenRequest(r *http.Request) *TokenRequest {
	_ = r.ParseForm()
	req := &TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		RefreshToken: r.PostFormValue("refresh_token"),
		Scope:        r.PostFormValue("scope"),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
		Username:     r.PostFormValue("username"),
		Password:     r.PostFormValue("password"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		Token:        r.PostFormValue("token"),
	}
	// Authorization: Basic pisa las credenciales del body
	if id, secret, ok := r.BasicAuth(); ok {
		req.ClientID = id
		req.ClientSecret = secret
	}
	return req
}

func (r *TokenRequest) Scopes() []string { return splitScope(r.Scope) }

// Session es lo que el servidor sabe del navegador que está detrás de un
// request a /authorize.
type Session struct {
	User *directory.User
	// Key es el session key de la cookie; entra en session_state.
	Key string
	// Verified indica sesión con segundo factor completado.
	Verified bool
	// AuthTime es el unix time del último login (claim auth_time).
	AuthTime int64
}

// Resolution es el estado resuelto de un request de autorización: el client
// validado, la redirect_uri efectiva y los scopes concedidos. Las etapas del
// pipeline la devuelven explícitamente en lugar de mutar el request.
type Resolution struct {
	Client       *core.Client
	RedirectURI  string
	Scopes       []string
	SessionState string
}

// AuthorizeResponse es lo que /authorize pone en el redirect de vuelta.
type AuthorizeResponse struct {
	RedirectURI string
	// InFragment: los response types implícitos/híbridos con token van en el
	// fragment, el code flow puro va en la query.
	InFragment   bool
	Code         string
	AccessToken  string
	TokenType    string
	ExpiresIn    int64
	IDToken      string
	Scope        string
	State        string
	SessionState string
}

// TokenResponse es el body JSON de POST /token.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// parseMaxAge interpreta el parámetro max_age en segundos; 0 si está ausente
// o malformado.
func parseMaxAge(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// recentAuth reporta si el login de la sesión es más reciente que maxAge.
func recentAuth(authTime, maxAge int64) bool {
	if authTime == 0 {
		return false
	}
	return time.Now().Unix()-authTime <= maxAge
}

func splitScope(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

func joinScope(scopes []string) string { return strings.Join(scopes, " ") }
