// Package clients resuelve y valida clients OAuth2 registrados.
package clients

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/dropDatabas3/janus/internal/cache"
	"github.com/dropDatabas3/janus/internal/store/core"
)

var ErrClientNotFound = errors.New("clients: client not found")

const (
	cacheKeyHosts = "clients:allowed_hosts"
	hostsTTL      = 5 * time.Minute
)

// confidential indica qué tipos de client pueden custodiar un secreto.
var confidential = map[string]bool{
	core.ClientTypeWeb:     true,
	core.ClientTypeService: true,
	core.ClientTypeTrusted: true,
}

// responseTypes es la matriz tipo de client → response_type permitidos.
var responseTypes = map[string]map[string]bool{
	core.ClientTypeWeb:    {"code": true},
	core.ClientTypeNative: {"code": true},
	core.ClientTypeJavascript: {
		"id_token token": true,
		"token":          true,
		"id_token":       true,
	},
}

// grantTypes es la matriz tipo de client → grant_type permitidos.
var grantTypes = map[string]map[string]bool{
	core.ClientTypeWeb:     {"authorization_code": true, "refresh_token": true},
	core.ClientTypeNative:  {"authorization_code": true, "refresh_token": true},
	core.ClientTypeService: {"client_credentials": true},
	core.ClientTypeTrusted: {"password": true},
}

// Registry expone lecturas de clients con validaciones del protocolo.
type Registry struct {
	store core.ClientStore
	cache cache.Cache
}

func NewRegistry(store core.ClientStore, c cache.Cache) *Registry {
	return &Registry{store: store, cache: c}
}

// ByClientID resuelve un client activo. Un client desactivado cuenta como
// inexistente.
func (r *Registry) ByClientID(ctx context.Context, id string) (*core.Client, error) {
	c, err := r.store.GetClient(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	if !c.Active {
		return nil, ErrClientNotFound
	}
	return c, nil
}

// IsConfidential reporta si el tipo del client exige autenticación con
// secreto.
func (r *Registry) IsConfidential(c *core.Client) bool {
	return confidential[c.Type]
}

// VerifySecret compara el secreto presentado en tiempo constante. Un client
// público (sin secreto) nunca autentica presentando uno.
func (r *Registry) VerifySecret(c *core.Client, secret string) bool {
	if !r.IsConfidential(c) || c.Secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.Secret), []byte(secret)) == 1
}

// ValidateResponseType reporta si el client puede usar ese response_type.
func (r *Registry) ValidateResponseType(c *core.Client, responseType string) bool {
	return responseTypes[c.Type][responseType]
}

// ValidateGrantType reporta si el client puede usar ese grant_type.
func (r *Registry) ValidateGrantType(c *core.Client, grantType string) bool {
	return grantTypes[c.Type][grantType]
}

// ValidateRedirectURI exige coincidencia exacta, byte a byte, contra las URIs
// registradas. Sin prefijos ni wildcards.
func (r *Registry) ValidateRedirectURI(c *core.Client, uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// ValidateScopes reporta si cada scope pedido está entre los configurados del
// client.
func (r *Registry) ValidateScopes(c *core.Client, requested []string) bool {
	allowed := make(map[string]bool, len(c.Scopes))
	for _, s := range c.Scopes {
		allowed[s] = true
	}
	for _, s := range requested {
		if !allowed[s] {
			return false
		}
	}
	return true
}

// IsPKCERequired reporta si el client fue marcado force_pkce. Un client que
// manda code_challenge sin estar forzado pasa igual por la verificación del
// verifier en el canje.
func (r *Registry) IsPKCERequired(c *core.Client) bool {
	return c.ForcePKCE
}

// AllowedHosts devuelve el set de hosts de todas las redirect URIs de clients
// activos, cacheado. Lo usa la capa HTTP para validar Origin en CORS.
func (r *Registry) AllowedHosts(ctx context.Context) (map[string]bool, error) {
	b, err := cache.GetOrSet(r.cache, cacheKeyHosts, hostsTTL, func() ([]byte, error) {
		list, err := r.store.ListActiveClients(ctx)
		if err != nil {
			return nil, err
		}
		hosts := make(map[string]bool)
		for _, c := range list {
			for _, raw := range c.RedirectURIs {
				if u, err := url.Parse(raw); err == nil && u.Host != "" {
					hosts[u.Host] = true
				}
			}
		}
		return json.Marshal(hosts)
	})
	if err != nil {
		return nil, err
	}
	var hosts map[string]bool
	if err := json.Unmarshal(b, &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}
