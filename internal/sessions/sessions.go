// Package sessions guarda las sesiones de navegador en el cache compartido,
// de modo que cualquier réplica pueda resolver la cookie.
package sessions

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/janus/internal/cache"
)

var ErrNoSession = errors.New("sessions: no session")

// Data es el contenido de una sesión autenticada.
type Data struct {
	UserUUID string `json:"user_uuid"`
	// Verified marca que la sesión completó el segundo factor.
	Verified bool `json:"verified"`
	// AuthTime es el unix time del login (claim auth_time).
	AuthTime int64 `json:"auth_time"`
}

type Store struct {
	cache      cache.Cache
	ttl        time.Duration
	CookieName string
}

func NewStore(c cache.Cache, cookieName string, ttl time.Duration) *Store {
	return &Store{cache: c, ttl: ttl, CookieName: cookieName}
}

func (s *Store) Get(key string) (*Data, error) {
	b, ok := s.cache.Get("session:" + key)
	if !ok {
		return nil, ErrNoSession
	}
	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, ErrNoSession
	}
	return &d, nil
}

// Put persiste la sesión y devuelve el session key generado.
func (s *Store) Put(d *Data) (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	key := base64.RawURLEncoding.EncodeToString(raw)
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	s.cache.Set("session:"+key, b, s.ttl)
	return key, nil
}

func (s *Store) Delete(key string) {
	s.cache.Delete("session:" + key)
}

// FromRequest resuelve la sesión desde la cookie. Cookie ausente o sesión
// vencida devuelven ErrNoSession.
func (s *Store) FromRequest(r *http.Request) (string, *Data, error) {
	c, err := r.Cookie(s.CookieName)
	if err != nil || c.Value == "" {
		return "", nil, ErrNoSession
	}
	d, err := s.Get(c.Value)
	if err != nil {
		return "", nil, err
	}
	return c.Value, d, nil
}
