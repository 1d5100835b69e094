// Package jwt firma y verifica los tokens JWT del servidor usando las claves
// gestionadas por el paquete keys.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/janus/internal/keys"
)

// ErrInvalidToken cubre cualquier fallo de verificación: firma inválida,
// token expirado, kid desconocido, algoritmo inesperado. El detalle interno
// no se filtra al caller.
var ErrInvalidToken = errors.New("jwt: invalid token")

// Claims es el payload decodificado de un token.
type Claims = jwtlib.MapClaims

// Codec encapsula Encode/Decode sobre el KeyStore.
type Codec struct {
	keys *keys.Service
}

func NewCodec(ks *keys.Service) *Codec {
	return &Codec{keys: ks}
}

// Encode firma claims con la clave DEFAULT del algoritmo. Rellena iat y, si
// ttl > 0 y el caller no puso exp, también exp. El kid de la clave va en el
// header para que los verificadores resuelvan la clave correcta.
func (c *Codec) Encode(ctx context.Context, claims Claims, alg string, ttl time.Duration) (string, error) {
	ek, err := c.keys.DefaultEncodingKey(ctx, alg)
	if err != nil {
		return "", fmt.Errorf("jwt: encoding key: %w", err)
	}

	now := time.Now()
	if _, ok := claims["iat"]; !ok {
		claims["iat"] = now.Unix()
	}
	if _, ok := claims["exp"]; !ok && ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}

	method := jwtlib.GetSigningMethod(alg)
	if method == nil {
		return "", fmt.Errorf("jwt: algoritmo no soportado: %q", alg)
	}
	tok := jwtlib.NewWithClaims(method, claims)
	tok.Header["kid"] = ek.KID

	signed, err := tok.SignedString(ek.Key)
	if err != nil {
		return "", fmt.Errorf("jwt: sign: %w", err)
	}
	return signed, nil
}

// Decode verifica firma, exp e iat y devuelve los claims. Todo fallo de
// verificación se normaliza a ErrInvalidToken.
func (c *Codec) Decode(ctx context.Context, token, alg string) (Claims, error) {
	claims := Claims{}
	parser := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{alg}),
		jwtlib.WithIssuedAt(),
		jwtlib.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(token, claims, func(t *jwtlib.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, keys.ErrKeyNotFound
		}
		dk, err := c.keys.DecodingKeyByKID(ctx, kid, alg)
		if err != nil {
			return nil, err
		}
		return dk.Key, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// DecodeAllowExpired verifica la firma pero no los claims temporales. Un
// id_token_hint puede venir expirado y aun así identificar al usuario.
func (c *Codec) DecodeAllowExpired(ctx context.Context, token, alg string) (Claims, error) {
	claims := Claims{}
	parser := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{alg}),
		jwtlib.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(token, claims, func(t *jwtlib.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, keys.ErrKeyNotFound
		}
		dk, err := c.keys.DecodingKeyByKID(ctx, kid, alg)
		if err != nil {
			return nil, err
		}
		return dk.Key, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// DecodeUnverified extrae los claims sin validar firma ni tiempos. Solo para
// leer metadata de un token que ya fue emitido por nosotros (p.ej. recuperar
// los scopes originales durante un refresh).
func (c *Codec) DecodeUnverified(token string) (Claims, error) {
	claims := Claims{}
	parser := jwtlib.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
