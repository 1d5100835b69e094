package oauth2

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"

	"github.com/dropDatabas3/janus/internal/directory"
	"github.com/dropDatabas3/janus/internal/jwt"
	"github.com/dropDatabas3/janus/internal/observability/logger"
	"github.com/dropDatabas3/janus/internal/store/core"
)

// Revoke borra el refresh token presentado. Los access tokens en circulación
// no se invalidan: expiran solos por su claim exp. Un token desconocido no es
// error, la respuesta es 200 igualmente.
func (s *Service) Revoke(ctx context.Context, req *TokenRequest) error {
	client, err := s.clientFromTokenRequest(ctx, req)
	if err != nil {
		return err
	}
	if req.Token == "" {
		return NewError(ErrInvalidRequest, "falta token")
	}
	rt, err := s.tokens.GetRefreshToken(ctx, req.Token)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rt.ClientID != client.ID {
		return nil
	}
	if err := s.tokens.DeleteRefreshToken(ctx, rt.Token); err != nil {
		return err
	}
	logger.From(ctx).Info("refresh token revocado", logger.ClientID(client.ID))
	return nil
}

// Introspection es el body de POST /introspect.
type Introspection struct {
	Active    bool
	TokenType string
	ClientID  string
	Sub       string
	Claims    jwt.Claims
}

// MarshalJSON aplana los claims del token junto a los campos propios de la
// introspección. Un token inactivo serializa solo {"active":false}.
func (i *Introspection) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(i.Claims)+4)
	for k, v := range i.Claims {
		out[k] = v
	}
	out["active"] = i.Active
	if i.TokenType != "" {
		out["token_type"] = i.TokenType
	}
	if i.ClientID != "" {
		out["client_id"] = i.ClientID
	}
	if i.Sub != "" {
		out["sub"] = i.Sub
	}
	return json.Marshal(out)
}

// Introspect mira primero la tabla de refresh tokens; si no, intenta
// decodificar como access token. Cualquier fallo de resolución devuelve
// active:false sin más detalle.
func (s *Service) Introspect(ctx context.Context, token string) *Introspection {
	if token == "" {
		return &Introspection{Active: false}
	}
	if rt, err := s.tokens.GetRefreshToken(ctx, token); err == nil {
		return &Introspection{
			Active:    true,
			TokenType: "refresh_token",
			ClientID:  rt.ClientID,
			Sub:       rt.UserID,
		}
	}
	claims, err := s.codec.Decode(ctx, token, SigningAlg)
	if err != nil {
		return &Introspection{Active: false}
	}
	sub, _ := claims["sub"].(string)
	aud, _ := claims["aud"].(string)
	return &Introspection{
		Active:    true,
		TokenType: "access_token",
		ClientID:  aud,
		Sub:       sub,
		Claims:    claims,
	}
}

// Identity es el resultado de validar un bearer token: quién llama, desde qué
// client y con qué scopes.
type Identity struct {
	User   *directory.User
	Client *core.Client
	Scopes []string
}

// ValidateBearerToken decodifica el JWT, comprueba que los scopes requeridos
// estén en el claim scope, re-resuelve User y Client desde sub/aud y verifica
// el claim au_hash contra el hash recomputado. Un cambio de contraseña del
// usuario invalida así todos sus bearer tokens en circulación.
func (s *Service) ValidateBearerToken(ctx context.Context, token string, required []string) (*Identity, error) {
	claims, err := s.codec.Decode(ctx, token, SigningAlg)
	if err != nil {
		return nil, NewError(ErrInvalidGrant, "token inválido")
	}
	scope, _ := claims["scope"].(string)
	granted := splitScope(scope)
	if !subsetOf(required, granted) {
		return nil, NewError(ErrInvalidScope, "")
	}
	sub, _ := claims["sub"].(string)
	aud, _ := claims["aud"].(string)
	user, err := s.dir.GetByUUID(ctx, sub)
	if err != nil {
		return nil, NewError(ErrInvalidGrant, "token inválido")
	}
	client, err := s.registry.ByClientID(ctx, aud)
	if err != nil {
		return nil, NewError(ErrInvalidGrant, "token inválido")
	}
	auHash, _ := claims["au_hash"].(string)
	want := SessionAuthHash(s.secretKey, user.PasswordHash, client)
	if auHash == "" || subtle.ConstantTimeCompare([]byte(auHash), []byte(want)) != 1 {
		logger.From(ctx).Warn("au_hash no verifica",
			logger.ClientID(client.ID), logger.UserID(user.UUID))
		return nil, NewError(ErrInvalidGrant, "token inválido")
	}
	return &Identity{User: user, Client: client, Scopes: granted}, nil
}

// TokenInfo decodifica y verifica un access_token o id_token y devuelve sus
// claims tal cual, para debugging de integraciones.
func (s *Service) TokenInfo(ctx context.Context, token string) (jwt.Claims, error) {
	const maxLength = 2048
	if token == "" {
		return nil, NewError(ErrInvalidRequest, "either access_token or id_token required")
	}
	if len(token) > maxLength {
		return nil, Errorf(ErrInvalidRequest, "token length exceeded %d", maxLength)
	}
	claims, err := s.codec.Decode(ctx, token, SigningAlg)
	if err != nil {
		return nil, NewError(ErrInvalidRequest, "invalid token")
	}
	return claims, nil
}
