package oauth

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	mw "github.com/dropDatabas3/janus/internal/http/middlewares"
	"github.com/dropDatabas3/janus/internal/oauth2"
	"github.com/dropDatabas3/janus/internal/observability/logger"
)

// AuthorizeController maneja GET /authorize.
type AuthorizeController struct {
	service *oauth2.Service
	// loginURL es la página de login propia a la que mandamos al navegador
	// cuando falta sesión.
	loginURL string
	// errorURL es la página de error para fallos fatales, donde no se puede
	// confiar en la redirect_uri del request.
	errorURL string
}

func NewAuthorizeController(service *oauth2.Service, loginURL, errorURL string) *AuthorizeController {
	return &AuthorizeController{service: service, loginURL: loginURL, errorURL: errorURL}
}

func (c *AuthorizeController) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("Authorize"))

	req := oauth2.ParseAuthorizeRequest(r)
	sess := c.sessionFromRequest(r)

	resp, err := c.service.Authorize(ctx, req, sess)
	if err == nil {
		http.Redirect(w, r, buildAuthorizeRedirect(resp), http.StatusFound)
		return
	}

	var loginRedirect *oauth2.LoginRedirect
	if errors.As(err, &loginRedirect) {
		c.redirectToLogin(w, r, loginRedirect.TwoFactor)
		return
	}
	var fatal *oauth2.FatalError
	if errors.As(err, &fatal) {
		log.Warn("fatal client error, redirigiendo a la página de error",
			logger.ClientID(req.ClientID), logger.Err(err))
		http.Redirect(w, r, errorPageURL(c.errorURL, string(fatal.Code), fatal.Description), http.StatusFound)
		return
	}
	var oerr *oauth2.Error
	if errors.As(err, &oerr) {
		log.Warn("client error, redirigiendo de vuelta al client",
			logger.ClientID(req.ClientID), logger.Err(err))
		// el redirect_uri ya fue validado antes de llegar acá; si no, el
		// error hubiera sido fatal
		target := req.RedirectURI
		if target == "" {
			target = errorPageURL(c.errorURL, string(oerr.Code), oerr.Description)
		} else {
			target = errorRedirect(target, oerr)
		}
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	log.Error("error interno en authorize", logger.Err(err))
	http.Redirect(w, r, errorPageURL(c.errorURL, "server_error", ""), http.StatusFound)
}

// sessionFromRequest arma la sesión del protocolo desde la identidad cookie
// resuelta por el SessionBridge. Un caller anónimo produce sesión nil.
func (c *AuthorizeController) sessionFromRequest(r *http.Request) *oauth2.Session {
	caller := mw.CallerFrom(r.Context())
	if caller.Anonymous || caller.User == nil {
		return nil
	}
	return &oauth2.Session{
		User:     caller.User,
		Key:      caller.SessionKey,
		Verified: caller.Verified,
		AuthTime: caller.AuthTime,
	}
}

func (c *AuthorizeController) redirectToLogin(w http.ResponseWriter, r *http.Request, twoFactor bool) {
	u, err := url.Parse(c.loginURL)
	if err != nil {
		http.Error(w, "login url misconfigured", http.StatusInternalServerError)
		return
	}
	q := u.Query()
	q.Set("next", r.URL.String())
	if twoFactor {
		q.Set("two_factor", "1")
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// buildAuthorizeRedirect arma la URL final: query para el code flow puro,
// fragment para todo lo que lleve tokens.
func buildAuthorizeRedirect(resp *oauth2.AuthorizeResponse) string {
	params := url.Values{}
	if resp.Code != "" {
		params.Set("code", resp.Code)
	}
	if resp.AccessToken != "" {
		params.Set("access_token", resp.AccessToken)
		params.Set("token_type", resp.TokenType)
		params.Set("expires_in", strconv.FormatInt(resp.ExpiresIn, 10))
	}
	if resp.IDToken != "" {
		params.Set("id_token", resp.IDToken)
	}
	if resp.InFragment && resp.Scope != "" {
		params.Set("scope", resp.Scope)
	}
	if resp.State != "" {
		params.Set("state", resp.State)
	}
	if resp.SessionState != "" {
		params.Set("session_state", resp.SessionState)
	}
	return appendParams(resp.RedirectURI, params, resp.InFragment)
}

func errorRedirect(redirectURI string, oerr *oauth2.Error) string {
	params := url.Values{}
	params.Set("error", string(oerr.Code))
	if oerr.Description != "" {
		params.Set("error_description", oerr.Description)
	}
	if oerr.State != "" {
		params.Set("state", oerr.State)
	}
	return appendParams(redirectURI, params, false)
}

func errorPageURL(base, code, description string) string {
	params := url.Values{}
	params.Set("error", code)
	if description != "" {
		params.Set("error_description", description)
	}
	return base + "?" + params.Encode()
}

// appendParams respeta la query existente de la redirect_uri registrada.
func appendParams(base string, params url.Values, inFragment bool) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	if inFragment {
		u.Fragment = params.Encode()
		return u.String()
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

