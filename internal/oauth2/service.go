// Package oauth2 implementa la máquina de grants del servidor: authorize,
// token, revoke e introspect, con el reglamento de validación del protocolo.
package oauth2

import (
	"time"

	"github.com/dropDatabas3/janus/internal/clients"
	"github.com/dropDatabas3/janus/internal/config"
	"github.com/dropDatabas3/janus/internal/directory"
	"github.com/dropDatabas3/janus/internal/jwt"
	"github.com/dropDatabas3/janus/internal/store/core"
)

// SigningAlg es el algoritmo con el que se emiten todos los tokens. HS256
// existe en el KeyStore para integraciones legacy, no para emisión.
const SigningAlg = "RS256"

// Service orquesta los flujos OAuth2/OIDC. Sin estado mutable propio: todo
// vive en los stores y caches inyectados.
type Service struct {
	issuer    string
	secretKey string
	accessTTL time.Duration

	registry *clients.Registry
	tokens   core.TokenStore
	codec    *jwt.Codec
	dir      directory.Directory
	roles    directory.RoleResolver
}

func NewService(cfg *config.Config, reg *clients.Registry, tokens core.TokenStore,
	codec *jwt.Codec, dir directory.Directory, roles directory.RoleResolver) *Service {
	return &Service{
		issuer:    cfg.OAuth2.Issuer,
		secretKey: cfg.App.SecretKey,
		accessTTL: cfg.AccessTTL(),
		registry:  reg,
		tokens:    tokens,
		codec:     codec,
		dir:       dir,
		roles:     roles,
	}
}

// Registry expone el registro de clients a la capa HTTP (SessionBridge).
func (s *Service) Registry() *clients.Registry { return s.registry }

// Codec expone el codec a la capa HTTP (SessionBridge, tokeninfo).
func (s *Service) Codec() *jwt.Codec { return s.codec }

// Directory expone el directorio de usuarios a la capa HTTP.
func (s *Service) Directory() directory.Directory { return s.dir }
