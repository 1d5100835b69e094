package oauth2

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/dropDatabas3/janus/internal/observability/logger"
	"github.com/dropDatabas3/janus/internal/store/core"
)

// GrantType es el enum cerrado de grants del endpoint /token.
type GrantType int

const (
	GrantAuthorizationCode GrantType = iota
	GrantRefreshToken
	GrantClientCredentials
	GrantPassword
)

var grantNames = map[string]GrantType{
	"authorization_code": GrantAuthorizationCode,
	"refresh_token":      GrantRefreshToken,
	"client_credentials": GrantClientCredentials,
	"password":           GrantPassword,
}

// ParseGrantType resuelve el string del request al enum; ok=false para
// cualquier grant desconocido.
func ParseGrantType(s string) (GrantType, bool) {
	g, ok := grantNames[s]
	return g, ok
}

func (g GrantType) String() string {
	for name, v := range grantNames {
		if v == g {
			return name
		}
	}
	return "unknown"
}

// Flow clasifica el response_type de /authorize. Hybrid añade tokens inline
// al code; Implicit emite solo tokens, sin code ni persistencia de code.
type Flow int

const (
	FlowCode Flow = iota
	FlowImplicit
	FlowHybrid
	flowUnknown
)

// responseTypeParts normaliza el response_type a su forma canónica orden-
// independiente ("token id_token" == "id_token token").
func responseTypeParts(s string) (string, Flow) {
	parts := strings.Fields(s)
	sort.Strings(parts)
	canon := strings.Join(parts, " ")
	switch canon {
	case "code":
		return canon, FlowCode
	case "id_token", "token", "id_token token":
		return canon, FlowImplicit
	case "code id_token", "code token", "code id_token token":
		return canon, FlowHybrid
	default:
		return canon, flowUnknown
	}
}

// LoginRedirect indica que el navegador debe pasar por la página de login
// antes de continuar; no es un error del protocolo hacia el client.
type LoginRedirect struct {
	// TwoFactor pide una sesión con segundo factor.
	TwoFactor bool
}

func (e *LoginRedirect) Error() string { return "login redirect required" }

// twoFactorRequested inspecciona el parámetro claims buscando
// id_token.acr.values, que es como los RPs piden step-up.
func twoFactorRequested(claimsParam string) bool {
	return strings.Contains(claimsParam, `"acr"`)
}

// loginRequired decide si el navegador debe (re)autenticarse. Devuelve además
// si el login debe ser con segundo factor.
func (s *Service) loginRequired(req *AuthorizeRequest, sess *Session) (bool, bool, error) {
	twoFactor := twoFactorRequested(req.Claims)

	if sess == nil || sess.User == nil {
		return true, twoFactor, nil
	}
	if req.HasPrompt("login") {
		return true, twoFactor, nil
	}
	if maxAge := parseMaxAge(req.MaxAge); maxAge > 0 && !recentAuth(sess.AuthTime, maxAge) {
		return true, twoFactor, nil
	}
	if twoFactor && !sess.User.RequiresOTP {
		// el usuario no tiene segundo factor configurado: no hay forma de
		// satisfacer el acr pedido
		return false, twoFactor, &Error{Code: ErrTwoFactorRequired,
			Description: `the end user has no "two factor" device`, State: req.State}
	}
	if twoFactor && !sess.Verified {
		return true, twoFactor, nil
	}
	return false, twoFactor, nil
}

// Authorize ejecuta GET /authorize: valida el request, decide si hay que
// mandar al navegador a login y despacha el flow que corresponda.
func (s *Service) Authorize(ctx context.Context, req *AuthorizeRequest, sess *Session) (*AuthorizeResponse, error) {
	client, err := s.resolveClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	redirectURI, err := s.resolveRedirectURI(client, req.RedirectURI)
	if err != nil {
		return nil, err
	}

	// a partir de aquí los errores son redirigibles al client
	canon, flow := responseTypeParts(req.ResponseType)
	if flow == flowUnknown || !s.registry.ValidateResponseType(client, canon) {
		return nil, &Error{Code: ErrUnsupportedResponseType, State: req.State}
	}

	scopes := req.Scopes()
	if len(scopes) == 0 {
		scopes = client.Scopes
	}
	if !s.registry.ValidateScopes(client, scopes) {
		return nil, &Error{Code: ErrInvalidScope, State: req.State}
	}

	if req.CodeChallenge == "" && s.registry.IsPKCERequired(client) && flow != FlowImplicit {
		return nil, &Error{Code: ErrInvalidRequest,
			Description: "code_challenge requerido", State: req.State}
	}
	if m := req.CodeChallengeMethod; m != "" && m != "plain" && m != "S256" {
		return nil, &Error{Code: ErrInvalidRequest,
			Description: "code_challenge_method no soportado", State: req.State}
	}

	loginReq, twoFactor, err := s.loginRequired(req, sess)
	if err != nil {
		return nil, err
	}
	if req.HasPrompt("none") && loginReq {
		return nil, &Error{Code: ErrLoginRequired, State: req.State}
	}
	if loginReq {
		return nil, &LoginRedirect{TwoFactor: twoFactor}
	}
	if req.IDTokenHint != "" {
		// el id_token_hint debe pertenecer al usuario de la sesión actual.
		// El hint puede venir expirado; solo importa la firma y el sub.
		claims, err := s.codec.DecodeAllowExpired(ctx, req.IDTokenHint, SigningAlg)
		if err != nil {
			return nil, &Error{Code: ErrLoginRequired, State: req.State}
		}
		if sub, _ := claims["sub"].(string); sub != sess.User.UUID {
			return nil, &Error{Code: ErrLoginRequired, State: req.State}
		}
	}

	res := &Resolution{
		Client:       client,
		RedirectURI:  redirectURI,
		Scopes:       scopes,
		SessionState: sessionState(client.ID, sess.Key),
	}
	switch flow {
	case FlowCode:
		return s.authorizeCode(ctx, req, res, sess)
	case FlowImplicit:
		return s.authorizeImplicit(ctx, req, res, sess, canon)
	default:
		return s.authorizeHybrid(ctx, req, res, sess, canon)
	}
}

// authorizeCode emite un authorization code de un solo uso ligado al usuario,
// la redirect_uri y los scopes resueltos.
func (s *Service) authorizeCode(ctx context.Context, req *AuthorizeRequest, res *Resolution, sess *Session) (*AuthorizeResponse, error) {
	code := newOpaqueToken()
	if err := s.tokens.SaveAuthorizationCode(ctx, &core.AuthorizationCode{
		Code:                code,
		ClientID:            res.Client.ID,
		UserID:              sess.User.UUID,
		RedirectURI:         res.RedirectURI,
		Scopes:              res.Scopes,
		Nonce:               req.Nonce,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		SessionState:        res.SessionState,
		IsValid:             true,
	}); err != nil {
		return nil, err
	}
	logger.From(ctx).Info("authorization code emitido",
		logger.ClientID(res.Client.ID), logger.UserID(sess.User.UUID),
		logger.Scope(joinScope(res.Scopes)))
	return &AuthorizeResponse{
		RedirectURI:  res.RedirectURI,
		Code:         code,
		State:        req.State,
		SessionState: res.SessionState,
	}, nil
}

// authorizeImplicit emite tokens directamente en el fragment, sin code. Solo
// se persiste el BearerToken.
func (s *Service) authorizeImplicit(ctx context.Context, req *AuthorizeRequest, res *Resolution, sess *Session, canon string) (*AuthorizeResponse, error) {
	out := &AuthorizeResponse{
		RedirectURI:  res.RedirectURI,
		InFragment:   true,
		State:        req.State,
		SessionState: res.SessionState,
		Scope:        joinScope(res.Scopes),
	}
	sub := tokenSubject{
		user:     sess.User,
		client:   res.Client,
		scopes:   res.Scopes,
		verified: sess.Verified,
		authTime: sess.AuthTime,
		nonce:    req.Nonce,
	}
	if err := s.mintInline(ctx, out, sub, canon); err != nil {
		return nil, err
	}
	return out, nil
}

// authorizeHybrid emite el code y además los tokens pedidos inline. Todo el
// response viaja en el fragment.
func (s *Service) authorizeHybrid(ctx context.Context, req *AuthorizeRequest, res *Resolution, sess *Session, canon string) (*AuthorizeResponse, error) {
	out, err := s.authorizeCode(ctx, req, res, sess)
	if err != nil {
		return nil, err
	}
	out.InFragment = true
	out.Scope = joinScope(res.Scopes)
	sub := tokenSubject{
		user:     sess.User,
		client:   res.Client,
		scopes:   res.Scopes,
		verified: sess.Verified,
		authTime: sess.AuthTime,
		nonce:    req.Nonce,
	}
	if err := s.mintInline(ctx, out, sub, canon); err != nil {
		return nil, err
	}
	return out, nil
}

// mintInline añade access_token y/o id_token al response según qué partes
// trae el response_type.
func (s *Service) mintInline(ctx context.Context, out *AuthorizeResponse, sub tokenSubject, canon string) error {
	// "id_token" a secas no lleva access token
	wantsToken := false
	for _, p := range strings.Fields(canon) {
		if p == "token" {
			wantsToken = true
		}
	}
	wantsIDToken := strings.Contains(canon, "id_token")

	if wantsToken {
		access, err := s.codec.Encode(ctx, s.accessTokenClaims(ctx, sub), SigningAlg, 0)
		if err != nil {
			return err
		}
		if err := s.tokens.SaveBearerToken(ctx, &core.BearerToken{
			AccessToken: access,
			ClientID:    sub.client.ID,
			UserID:      sub.user.UUID,
		}); err != nil {
			return err
		}
		out.AccessToken = access
		out.TokenType = "Bearer"
		out.ExpiresIn = int64(s.accessTTL.Seconds())
	}
	if wantsIDToken {
		idToken, err := s.codec.Encode(ctx, s.idTokenClaims(ctx, sub), SigningAlg, 0)
		if err != nil {
			return err
		}
		out.IDToken = idToken
	}
	return nil
}

// Token ejecuta POST /token: autentica al client, valida la compatibilidad
// grant↔tipo de client y despacha el grant.
func (s *Service) Token(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	grant, ok := ParseGrantType(req.GrantType)
	if !ok {
		return nil, NewError(ErrUnsupportedGrantType, "")
	}
	client, err := s.clientFromTokenRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if !s.registry.ValidateGrantType(client, req.GrantType) {
		return nil, NewError(ErrUnsupportedGrantType, "")
	}

	switch grant {
	case GrantAuthorizationCode:
		return s.tokenAuthorizationCode(ctx, client, req)
	case GrantRefreshToken:
		return s.tokenRefresh(ctx, client, req)
	case GrantClientCredentials:
		return s.tokenClientCredentials(ctx, client, req)
	default:
		return s.tokenPassword(ctx, client, req)
	}
}

func (s *Service) tokenAuthorizationCode(ctx context.Context, client *core.Client, req *TokenRequest) (*TokenResponse, error) {
	ac, err := s.consumeCode(ctx, client, req)
	if err != nil {
		return nil, err
	}
	user, err := s.dir.GetByUUID(ctx, ac.UserID)
	if err != nil {
		return nil, NewError(ErrInvalidGrant, "authorization code inválido")
	}
	sub := tokenSubject{user: user, client: client, scopes: ac.Scopes, nonce: ac.Nonce}
	return s.issue(ctx, sub, hasScope(ac.Scopes, "openid"))
}

func (s *Service) tokenRefresh(ctx context.Context, client *core.Client, req *TokenRequest) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, NewError(ErrInvalidRequest, "falta refresh_token")
	}
	rt, err := s.tokens.GetRefreshToken(ctx, req.RefreshToken)
	if errors.Is(err, core.ErrNotFound) {
		return nil, NewError(ErrInvalidGrant, "refresh token inválido")
	}
	if err != nil {
		return nil, err
	}
	if rt.ClientID != client.ID {
		return nil, NewError(ErrInvalidGrant, "refresh token inválido")
	}
	user, err := s.dir.GetByUUID(ctx, rt.UserID)
	if err != nil {
		return nil, NewError(ErrInvalidGrant, "refresh token inválido")
	}

	original := s.originalScopes(rt)
	scopes := req.Scopes()
	if len(scopes) == 0 {
		// sin scope explícito se arrastran los originales sin cambios
		scopes = original
	} else if !subsetOf(scopes, original) {
		return nil, NewError(ErrInvalidScope, "")
	}

	// rotación: el refresh usado se descarta antes de emitir el nuevo
	if err := s.tokens.DeleteRefreshToken(ctx, rt.Token); err != nil {
		return nil, err
	}
	sub := tokenSubject{user: user, client: client, scopes: scopes}
	return s.issue(ctx, sub, hasScope(scopes, "openid"))
}

func (s *Service) tokenClientCredentials(ctx context.Context, client *core.Client, req *TokenRequest) (*TokenResponse, error) {
	user, err := s.serviceUser(ctx, client)
	if err != nil {
		return nil, err
	}
	if err := s.dir.TouchLastLogin(ctx, user.UUID); err != nil {
		logger.From(ctx).Warn("no se pudo tocar last_login",
			logger.UserID(user.UUID), logger.Err(err))
	}
	scopes := req.Scopes()
	if len(scopes) == 0 {
		scopes = client.Scopes
	} else if !s.registry.ValidateScopes(client, scopes) {
		return nil, NewError(ErrInvalidScope, "")
	}
	sub := tokenSubject{user: user, client: client, scopes: scopes}
	return s.issue(ctx, sub, false)
}

func (s *Service) tokenPassword(ctx context.Context, client *core.Client, req *TokenRequest) (*TokenResponse, error) {
	user, err := s.dir.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, NewError(ErrInvalidGrant, "credenciales inválidas")
	}
	scopes := req.Scopes()
	if len(scopes) == 0 {
		scopes = client.Scopes
	} else if !s.registry.ValidateScopes(client, scopes) {
		return nil, NewError(ErrInvalidScope, "")
	}
	sub := tokenSubject{user: user, client: client, scopes: scopes}
	return s.issue(ctx, sub, hasScope(scopes, "openid"))
}

// issue firma el access token (e id_token si aplica), persiste y arma el
// response JSON. El refresh sale solo con offline_access.
func (s *Service) issue(ctx context.Context, sub tokenSubject, withIDToken bool) (*TokenResponse, error) {
	access, err := s.codec.Encode(ctx, s.accessTokenClaims(ctx, sub), SigningAlg, 0)
	if err != nil {
		return nil, err
	}
	refresh, err := s.persistTokens(ctx, access, sub)
	if err != nil {
		return nil, err
	}
	resp := &TokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
		Scope:        joinScope(sub.scopes),
		RefreshToken: refresh,
	}
	if withIDToken {
		idToken, err := s.codec.Encode(ctx, s.idTokenClaims(ctx, sub), SigningAlg, 0)
		if err != nil {
			return nil, err
		}
		resp.IDToken = idToken
	}
	logger.From(ctx).Info("tokens emitidos",
		logger.ClientID(sub.client.ID), logger.UserID(sub.user.UUID),
		logger.Scope(resp.Scope))
	return resp, nil
}
