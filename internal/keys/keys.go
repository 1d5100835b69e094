// Package keys gestiona las claves de firma de tokens: generación, rotación,
// resolución por kid y las vistas públicas JWKS / certs.
package keys

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/janus/internal/cache"
	"github.com/dropDatabas3/janus/internal/observability/logger"
	"github.com/dropDatabas3/janus/internal/store/core"
)

const (
	AlgRS256 = "RS256"
	AlgHS256 = "HS256"

	rsaBits      = 2048
	hmacSecretLn = 64

	cacheKeyJWKS  = "keys:jwks"
	cacheKeyCerts = "keys:certs"
)

// ErrKeyNotFound indica que ningún key ACTIVE coincide con el kid pedido.
var ErrKeyNotFound = errors.New("keys: signing key not found")

// EncodingKey es el material listo para firmar un token.
type EncodingKey struct {
	KID string
	Alg string
	// *rsa.PrivateKey para RS256, []byte para HS256.
	Key any
}

// DecodingKey es el material para verificar una firma.
type DecodingKey struct {
	KID string
	Alg string
	// *rsa.PublicKey para RS256, []byte para HS256.
	Key any
}

// JWK es una clave pública en formato JSON Web Key (solo RSA; los secretos
// HS256 nunca se publican).
type JWK struct {
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type JWKS struct {
	Keys []JWK `json:"keys"`
}

// Service implementa el ciclo de vida de claves sobre un SigningKeyStore,
// con un cache inyectado para JWKS y resolución por kid.
type Service struct {
	store core.SigningKeyStore
	cache cache.Cache
	ttl   time.Duration
	log   *zap.Logger

	// serializa el bootstrap perezoso de la primera clave
	bootstrapMu sync.Mutex
}

func NewService(store core.SigningKeyStore, c cache.Cache, ttl time.Duration) *Service {
	return &Service{
		store: store,
		cache: c,
		ttl:   ttl,
		log:   logger.Named("keys"),
	}
}

// CreateKey genera y persiste una clave nueva del algoritmo dado. La clave
// entra ACTIVE; el bookkeeping de DEFAULT/retiros lo hace el store en la
// misma transacción.
func (s *Service) CreateKey(ctx context.Context, alg string) (*core.SigningKey, error) {
	var k *core.SigningKey
	var err error
	switch alg {
	case AlgRS256:
		k, err = newRSAKey()
	case AlgHS256:
		k, err = newHMACKey()
	default:
		return nil, fmt.Errorf("keys: algoritmo no soportado: %q", alg)
	}
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateSigningKey(ctx, k); err != nil {
		return nil, fmt.Errorf("keys: persist: %w", err)
	}
	s.invalidate(alg)
	s.log.Info("signing key creada", logger.KID(k.KID), logger.Alg(alg))
	return k, nil
}

// DefaultEncodingKey devuelve la clave DEFAULT del algoritmo. Si no existe
// ninguna (arranque en frío) crea una.
func (s *Service) DefaultEncodingKey(ctx context.Context, alg string) (*EncodingKey, error) {
	if ek, ok := s.cachedDefault(alg); ok {
		return ek, nil
	}
	k, err := s.store.GetDefaultSigningKey(ctx, alg)
	if errors.Is(err, core.ErrNotFound) {
		k, err = s.bootstrap(ctx, alg)
	}
	if err != nil {
		return nil, err
	}
	ek, err := toEncodingKey(k)
	if err != nil {
		return nil, err
	}
	s.cacheDefault(alg, k)
	return ek, nil
}

// DecodingKeyByKID resuelve la clave de verificación para el kid del header.
// Claves retiradas (no ACTIVE) no verifican: ErrKeyNotFound.
func (s *Service) DecodingKeyByKID(ctx context.Context, kid, alg string) (*DecodingKey, error) {
	k, err := s.store.GetSigningKeyByKID(ctx, kid, alg)
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	if !k.Active {
		return nil, ErrKeyNotFound
	}
	return toDecodingKey(k)
}

// JWKS construye el documento JWKS con todas las claves RSA ACTIVE, de modo
// que tokens firmados con la clave previa sigan verificando durante la
// ventana de gracia.
func (s *Service) JWKS(ctx context.Context) (*JWKS, error) {
	b, err := cache.GetOrSet(s.cache, cacheKeyJWKS, s.ttl, func() ([]byte, error) {
		keys, err := s.activeRSA(ctx)
		if err != nil {
			return nil, err
		}
		doc := JWKS{Keys: make([]JWK, 0, len(keys))}
		for _, k := range keys {
			pub, err := parseRSAPublic(k.PublicKey)
			if err != nil {
				return nil, err
			}
			doc.Keys = append(doc.Keys, JWK{
				Kty: "RSA",
				Alg: AlgRS256,
				Use: "sig",
				Kid: k.KID,
				N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			})
		}
		return json.Marshal(doc)
	})
	if err != nil {
		return nil, err
	}
	var doc JWKS
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Certs devuelve kid → certificado x509 en PEM para las claves RSA ACTIVE.
func (s *Service) Certs(ctx context.Context) (map[string]string, error) {
	b, err := cache.GetOrSet(s.cache, cacheKeyCerts, s.ttl, func() ([]byte, error) {
		keys, err := s.activeRSA(ctx)
		if err != nil {
			return nil, err
		}
		out := make(map[string]string, len(keys))
		for _, k := range keys {
			out[k.KID] = k.Certificate
		}
		return json.Marshal(out)
	})
	if err != nil {
		return nil, err
	}
	var out map[string]string
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) activeRSA(ctx context.Context) ([]core.SigningKey, error) {
	keys, err := s.store.ListActiveSigningKeys(ctx, AlgRS256)
	if err != nil {
		return nil, fmt.Errorf("keys: list active: %w", err)
	}
	return keys, nil
}

func (s *Service) bootstrap(ctx context.Context, alg string) (*core.SigningKey, error) {
	s.bootstrapMu.Lock()
	defer s.bootstrapMu.Unlock()
	// otro goroutine pudo habernos ganado la carrera
	if k, err := s.store.GetDefaultSigningKey(ctx, alg); err == nil {
		return k, nil
	}
	s.log.Warn("sin signing key DEFAULT, generando una", logger.Alg(alg))
	return s.CreateKey(ctx, alg)
}

func (s *Service) cachedDefault(alg string) (*EncodingKey, bool) {
	b, ok := s.cache.Get("keys:default:" + alg)
	if !ok {
		return nil, false
	}
	var k core.SigningKey
	if err := json.Unmarshal(b, &k); err != nil {
		return nil, false
	}
	ek, err := toEncodingKey(&k)
	if err != nil {
		return nil, false
	}
	return ek, true
}

func (s *Service) cacheDefault(alg string, k *core.SigningKey) {
	if b, err := json.Marshal(k); err == nil {
		s.cache.Set("keys:default:"+alg, b, s.ttl)
	}
}

func (s *Service) invalidate(alg string) {
	s.cache.Delete(cacheKeyJWKS)
	s.cache.Delete(cacheKeyCerts)
	s.cache.Delete("keys:default:" + alg)
}

// ── generación ──────────────────────────────────────────────────────

func newKID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func newRSAKey() (*core.SigningKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, fmt.Errorf("keys: generar RSA: %w", err)
	}
	kid := newKID()

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}
	tmpl := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: kid},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().AddDate(10, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return nil, fmt.Errorf("keys: self-signed cert: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	return &core.SigningKey{
		KID:         kid,
		Algorithm:   AlgRS256,
		PrivateKey:  string(privPEM),
		PublicKey:   string(pubPEM),
		Certificate: string(certPEM),
		Active:      true,
	}, nil
}

func newHMACKey() (*core.SigningKey, error) {
	secret := make([]byte, hmacSecretLn)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("keys: generar secreto HS256: %w", err)
	}
	return &core.SigningKey{
		KID:        newKID(),
		Algorithm:  AlgHS256,
		PrivateKey: base64.RawURLEncoding.EncodeToString(secret),
		Active:     true,
	}, nil
}

// ── parsing ─────────────────────────────────────────────────────────

func toEncodingKey(k *core.SigningKey) (*EncodingKey, error) {
	switch k.Algorithm {
	case AlgRS256:
		priv, err := parseRSAPrivate(k.PrivateKey)
		if err != nil {
			return nil, err
		}
		return &EncodingKey{KID: k.KID, Alg: AlgRS256, Key: priv}, nil
	case AlgHS256:
		secret, err := base64.RawURLEncoding.DecodeString(k.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("keys: secreto HS256 corrupto: %w", err)
		}
		return &EncodingKey{KID: k.KID, Alg: AlgHS256, Key: secret}, nil
	}
	return nil, fmt.Errorf("keys: algoritmo no soportado: %q", k.Algorithm)
}

func toDecodingKey(k *core.SigningKey) (*DecodingKey, error) {
	switch k.Algorithm {
	case AlgRS256:
		pub, err := parseRSAPublic(k.PublicKey)
		if err != nil {
			return nil, err
		}
		return &DecodingKey{KID: k.KID, Alg: AlgRS256, Key: pub}, nil
	case AlgHS256:
		secret, err := base64.RawURLEncoding.DecodeString(k.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("keys: secreto HS256 corrupto: %w", err)
		}
		return &DecodingKey{KID: k.KID, Alg: AlgHS256, Key: secret}, nil
	}
	return nil, fmt.Errorf("keys: algoritmo no soportado: %q", k.Algorithm)
}

func parseRSAPrivate(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("keys: PEM privado inválido")
	}
	if priv, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return priv, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keys: parsear clave privada: %w", err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("keys: la clave privada no es RSA")
	}
	return priv, nil
}

func parseRSAPublic(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("keys: PEM público inválido")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keys: parsear clave pública: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("keys: la clave pública no es RSA")
	}
	return pub, nil
}
