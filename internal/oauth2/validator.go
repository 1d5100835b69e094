package oauth2

import (
	"context"
	"errors"

	"github.com/dropDatabas3/janus/internal/clients"
	"github.com/dropDatabas3/janus/internal/directory"
	"github.com/dropDatabas3/janus/internal/observability/logger"
	"github.com/dropDatabas3/janus/internal/store/core"
)

// resolveClient resuelve y valida el client_id. Un client_id inválido es
// fatal: no hay a dónde redirigir.
func (s *Service) resolveClient(ctx context.Context, clientID string) (*core.Client, error) {
	if clientID == "" {
		return nil, Fatalf(ErrInvalidRequest, "falta client_id")
	}
	c, err := s.registry.ByClientID(ctx, clientID)
	if errors.Is(err, clients.ErrClientNotFound) {
		return nil, Fatalf(ErrInvalidRequest, "client desconocido")
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// resolveRedirectURI valida la redirect_uri contra la whitelist, o cae a la
// default cuando se omite. Una redirect_uri inválida también es fatal.
func (s *Service) resolveRedirectURI(c *core.Client, uri string) (string, error) {
	if uri == "" {
		if c.DefaultRedirectURI != "" {
			return c.DefaultRedirectURI, nil
		}
		if len(c.RedirectURIs) == 1 {
			return c.RedirectURIs[0], nil
		}
		return "", Fatalf(ErrInvalidRequest, "falta redirect_uri")
	}
	if !s.registry.ValidateRedirectURI(c, uri) {
		return "", Fatalf(ErrInvalidRequest, "redirect_uri no registrada")
	}
	return uri, nil
}

// authenticateClient autentica un client confidencial por client_id+secret.
// Para client_credentials exige además el service user vinculado; su ausencia
// es un error de configuración que se loguea pero no se expone.
func (s *Service) authenticateClient(ctx context.Context, clientID, secret string) (*core.Client, error) {
	c, err := s.registry.ByClientID(ctx, clientID)
	if errors.Is(err, clients.ErrClientNotFound) {
		return nil, NewError(ErrInvalidClient, "client authentication failed")
	}
	if err != nil {
		return nil, err
	}
	if !s.registry.VerifySecret(c, secret) {
		return nil, NewError(ErrInvalidClient, "client authentication failed")
	}
	return c, nil
}

// authenticateClientID identifica un client público sin secreto. Un client
// confidencial jamás pasa por aquí: debe autenticarse con secreto.
func (s *Service) authenticateClientID(ctx context.Context, clientID string) (*core.Client, error) {
	c, err := s.registry.ByClientID(ctx, clientID)
	if errors.Is(err, clients.ErrClientNotFound) {
		return nil, NewError(ErrInvalidClient, "client authentication failed")
	}
	if err != nil {
		return nil, err
	}
	if s.registry.IsConfidential(c) {
		return nil, NewError(ErrInvalidClient, "client authentication failed")
	}
	return c, nil
}

// clientFromTokenRequest autentica según lo que el request trae: con secreto
// va por la rama confidencial, sin secreto por la pública.
func (s *Service) clientFromTokenRequest(ctx context.Context, req *TokenRequest) (*core.Client, error) {
	if req.ClientID == "" {
		return nil, NewError(ErrInvalidClient, "falta client_id")
	}
	if req.ClientSecret != "" {
		return s.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	}
	return s.authenticateClientID(ctx, req.ClientID)
}

// serviceUser resuelve el usuario de servicio de un client client_credentials.
func (s *Service) serviceUser(ctx context.Context, c *core.Client) (*directory.User, error) {
	if c.ServiceUserID == "" {
		// error de configuración: se loguea, al caller solo le llega un
		// fallo de autenticación genérico
		logger.From(ctx).Error("client client_credentials sin service user",
			logger.ClientID(c.ID))
		return nil, NewError(ErrInvalidClient, "client authentication failed")
	}
	u, err := s.dir.GetByUUID(ctx, c.ServiceUserID)
	if err != nil {
		logger.From(ctx).Error("service user irresoluble",
			logger.ClientID(c.ID), logger.UserID(c.ServiceUserID), logger.Err(err))
		return nil, NewError(ErrInvalidClient, "client authentication failed")
	}
	return u, nil
}

// consumeCode canjea el authorization code de forma atómica y valida los
// bindings: client dueño, redirect_uri byte a byte y PKCE.
func (s *Service) consumeCode(ctx context.Context, c *core.Client, req *TokenRequest) (*core.AuthorizationCode, error) {
	if req.Code == "" {
		return nil, NewError(ErrInvalidRequest, "falta code")
	}
	ac, err := s.tokens.ConsumeAuthorizationCode(ctx, req.Code)
	if errors.Is(err, core.ErrCodeConsumed) || errors.Is(err, core.ErrNotFound) {
		return nil, NewError(ErrInvalidGrant, "authorization code inválido")
	}
	if err != nil {
		return nil, err
	}
	if ac.ClientID != c.ID {
		return nil, NewError(ErrInvalidGrant, "authorization code inválido")
	}
	if ac.RedirectURI != req.RedirectURI {
		return nil, NewError(ErrInvalidGrant, "redirect_uri no coincide")
	}
	if ac.CodeChallenge != "" {
		if req.CodeVerifier == "" || !verifyPKCE(ac.CodeChallenge, ac.CodeChallengeMethod, req.CodeVerifier) {
			return nil, NewError(ErrInvalidGrant, "code_verifier inválido")
		}
	}
	return ac, nil
}

// persistTokens guarda el BearerToken y, solo si offline_access está entre
// los scopes concedidos, un RefreshToken asociado. Devuelve el refresh (o "").
func (s *Service) persistTokens(ctx context.Context, accessToken string, sub tokenSubject) (string, error) {
	if err := s.tokens.SaveBearerToken(ctx, &core.BearerToken{
		AccessToken: accessToken,
		ClientID:    sub.client.ID,
		UserID:      sub.user.UUID,
	}); err != nil {
		return "", err
	}
	if !hasScope(sub.scopes, "offline_access") {
		return "", nil
	}
	refresh := newOpaqueToken()
	if err := s.tokens.SaveRefreshToken(ctx, &core.RefreshToken{
		Token:       refresh,
		AccessToken: accessToken,
		ClientID:    sub.client.ID,
		UserID:      sub.user.UUID,
	}); err != nil {
		return "", err
	}
	return refresh, nil
}

// originalScopes recupera los scopes del access token emitido junto al
// refresh, decodificando sin re-verificar firma ni expiración.
func (s *Service) originalScopes(rt *core.RefreshToken) []string {
	claims, err := s.codec.DecodeUnverified(rt.AccessToken)
	if err != nil {
		return nil
	}
	scope, _ := claims["scope"].(string)
	return splitScope(scope)
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}

// subsetOf reporta si todos los scopes de sub están en super.
func subsetOf(sub, super []string) bool {
	allowed := make(map[string]bool, len(super))
	for _, s := range super {
		allowed[s] = true
	}
	for _, s := range sub {
		if !allowed[s] {
			return false
		}
	}
	return true
}
