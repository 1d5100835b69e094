// Package oidc agrupa los endpoints de discovery y material público: JWKS,
// certs, openid-configuration, tokeninfo y session management.
package oidc

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dropDatabas3/janus/internal/keys"
	"github.com/dropDatabas3/janus/internal/oauth2"
	"github.com/dropDatabas3/janus/internal/observability/logger"
)

type Controllers struct {
	Keys    *keys.Service
	Service *oauth2.Service
	Issuer  string
	// CookieName se publica en /session para el check_session_iframe.
	CookieName string
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JWKS publica todas las claves RSA ACTIVE, incluidas las de la ventana de
// gracia de rotación.
func (c *Controllers) JWKS(w http.ResponseWriter, r *http.Request) {
	doc, err := c.Keys.JWKS(r.Context())
	if err != nil {
		logger.From(r.Context()).Error("jwks irrecuperable", logger.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, doc)
}

// Certs publica kid → certificado PEM, para integraciones que verifican por
// certificado en vez de JWK.
func (c *Controllers) Certs(w http.ResponseWriter, r *http.Request) {
	certs, err := c.Keys.Certs(r.Context())
	if err != nil {
		logger.From(r.Context()).Error("certs irrecuperable", logger.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, certs)
}

// discoveryDocument es el openid-configuration. Solo se anuncia lo que el
// servidor realmente implementa.
type discoveryDocument struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	RevocationEndpoint               string   `json:"revocation_endpoint"`
	IntrospectionEndpoint            string   `json:"introspection_endpoint"`
	JWKSURI                          string   `json:"jwks_uri"`
	CertsURI                         string   `json:"certs_uri"`
	CheckSessionIframe               string   `json:"check_session_iframe"`
	ScopesSupported                  []string `json:"scopes_supported"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	GrantTypesSupported              []string `json:"grant_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
	CodeChallengeMethodsSupported    []string `json:"code_challenge_methods_supported"`
}

func (c *Controllers) Discovery(w http.ResponseWriter, r *http.Request) {
	doc := discoveryDocument{
		Issuer:                 c.Issuer,
		AuthorizationEndpoint:  c.Issuer + "/authorize",
		TokenEndpoint:          c.Issuer + "/token",
		RevocationEndpoint:     c.Issuer + "/revoke",
		IntrospectionEndpoint:  c.Issuer + "/introspect",
		JWKSURI:                c.Issuer + "/jwks",
		CertsURI:               c.Issuer + "/certs",
		CheckSessionIframe:     c.Issuer + "/session",
		ScopesSupported:        []string{"openid", "profile", "email", "offline_access"},
		ResponseTypesSupported: []string{"code", "id_token", "token", "id_token token"},
		GrantTypesSupported: []string{
			"authorization_code", "refresh_token", "client_credentials", "password",
		},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{"RS256"},
		CodeChallengeMethodsSupported:    []string{"plain", "S256"},
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, doc)
}

// TokenInfo decodifica un access_token o id_token y devuelve sus claims. Es
// una herramienta de debugging para integradores, no parte del protocolo.
func (c *Controllers) TokenInfo(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("access_token")
	if token == "" {
		token = r.URL.Query().Get("id_token")
	}
	claims, err := c.Service.TokenInfo(r.Context(), token)
	if err != nil {
		var oerr *oauth2.Error
		if errors.As(err, &oerr) {
			writeJSON(w, oerr.Status(), map[string]string{
				"error": string(oerr.Code), "error_description": oerr.Description,
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

// Session informa el nombre de la cookie de sesión, que el RP necesita para
// implementar el check_session_iframe.
func (c *Controllers) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"cookie_name": c.CookieName})
}
