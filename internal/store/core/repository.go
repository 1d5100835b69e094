package core

import (
	"context"
	"time"
)

// ClientStore expone el registro de clients (solo lectura para el core).
type ClientStore interface {
	GetClient(ctx context.Context, id string) (*Client, error)
	ListActiveClients(ctx context.Context) ([]Client, error)
}

// TokenStore maneja el ciclo de vida de codes, bearer tokens y refresh tokens.
type TokenStore interface {
	SaveAuthorizationCode(ctx context.Context, ac *AuthorizationCode) error
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)
	// ConsumeAuthorizationCode flipea is_valid true→false de forma atómica
	// ("consume if still valid"). Dos canjes concurrentes del mismo code no
	// pueden tener éxito ambos: el segundo recibe ErrCodeConsumed.
	ConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)
	InvalidateAuthorizationCode(ctx context.Context, code string) error

	SaveBearerToken(ctx context.Context, bt *BearerToken) error
	GetBearerToken(ctx context.Context, accessToken string) (*BearerToken, error)

	SaveRefreshToken(ctx context.Context, rt *RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) error

	// DeleteExpiredTokens purga codes anteriores a codeBefore y bearer tokens
	// (con sus refresh tokens asociados) anteriores a bearerBefore.
	DeleteExpiredTokens(ctx context.Context, codeBefore, bearerBefore time.Time) (int64, error)
}

// SigningKeyStore persiste el material de firma.
type SigningKeyStore interface {
	// CreateSigningKey inserta la clave ACTIVE y hace el bookkeeping de
	// rotación en UNA transacción: si hay más de una ACTIVE del algoritmo, la
	// segunda más nueva pasa a DEFAULT; las ACTIVE más allá de las 3 más
	// recientes se retiran; las retiradas más allá de las 3 más recientes se
	// borran. Es la única mutación multi-fila del core.
	CreateSigningKey(ctx context.Context, k *SigningKey) error
	GetDefaultSigningKey(ctx context.Context, algorithm string) (*SigningKey, error)
	GetSigningKeyByKID(ctx context.Context, kid, algorithm string) (*SigningKey, error)
	ListActiveSigningKeys(ctx context.Context, algorithm string) ([]SigningKey, error)
}

// Store agrupa todos los repositorios del core.
type Store interface {
	ClientStore
	TokenStore
	SigningKeyStore
	Ping(ctx context.Context) error
	Close()
}
