package oauth2

import (
	"context"
	"strings"
	"time"

	"github.com/dropDatabas3/janus/internal/directory"
	"github.com/dropDatabas3/janus/internal/jwt"
	"github.com/dropDatabas3/janus/internal/observability/logger"
	"github.com/dropDatabas3/janus/internal/store/core"
)

// tokenSubject agrupa lo que entra en los claims de identidad.
type tokenSubject struct {
	user     *directory.User
	client   *core.Client
	scopes   []string
	verified bool
	authTime int64
	nonce    string
}

func acrValue(verified bool) string {
	if verified {
		return "2"
	}
	return "1"
}

// accessTokenClaims arma el claim set del access token. Las keys son parte
// del contrato con los resource servers, no se renombran.
func (s *Service) accessTokenClaims(ctx context.Context, sub tokenSubject) jwt.Claims {
	now := time.Now()
	claims := jwt.Claims{
		"jti":     newJTI(),
		"iss":     s.issuer,
		"sub":     sub.user.UUID,
		"aud":     sub.client.ID,
		"exp":     now.Add(s.accessTTL).Unix(),
		"iat":     now.Unix(),
		"acr":     acrValue(sub.verified),
		"scope":   joinScope(sub.scopes),
		"email":   sub.user.Email,
		"name":    sub.user.Username,
		"au_hash": SessionAuthHash(s.secretKey, sub.user.PasswordHash, sub.client),
	}
	s.addRoles(ctx, claims, sub)
	return claims
}

// idTokenClaims arma el claim set del id_token. Además de los estándar lleva
// email, name, given_name y family_name.
func (s *Service) idTokenClaims(ctx context.Context, sub tokenSubject) jwt.Claims {
	now := time.Now()
	claims := jwt.Claims{
		"iss":         s.issuer,
		"sub":         sub.user.UUID,
		"aud":         sub.client.ID,
		"exp":         now.Add(s.accessTTL).Unix(),
		"iat":         now.Unix(),
		"auth_time":   sub.authTime,
		"acr":         acrValue(sub.verified),
		"email":       sub.user.Email,
		"name":        sub.user.Username,
		"given_name":  sub.user.FirstName,
		"family_name": sub.user.LastName,
	}
	if sub.nonce != "" {
		claims["nonce"] = sub.nonce
	}
	s.addRoles(ctx, claims, sub)
	return claims
}

// addRoles añade el claim roles (separado por espacios) cuando el client está
// vinculado a una application. Un fallo resolviendo roles no tumba la emisión.
func (s *Service) addRoles(ctx context.Context, claims jwt.Claims, sub tokenSubject) {
	if sub.client.ApplicationID == "" || s.roles == nil {
		return
	}
	roles, err := s.roles.GetRolesByApp(ctx, sub.user.UUID, sub.client.ApplicationID)
	if err != nil {
		logger.From(ctx).Warn("no se pudieron resolver roles",
			logger.ClientID(sub.client.ID), logger.UserID(sub.user.UUID), logger.Err(err))
		return
	}
	if len(roles) > 0 {
		claims["roles"] = strings.Join(roles, " ")
	}
}
