// Package memory implementa core.Store en memoria. Pensado para desarrollo y
// tests; replica la semántica de los adapters persistentes, incluida la
// atomicidad del consumo de codes y el bookkeeping de rotación de claves.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dropDatabas3/janus/internal/store/core"
)

type Store struct {
	mu       sync.Mutex
	clients  map[string]core.Client
	codes    map[string]core.AuthorizationCode
	bearers  map[string]core.BearerToken
	refresh  map[string]core.RefreshToken
	keys     []core.SigningKey // orden de inserción
}

func New() *Store {
	return &Store{
		clients: make(map[string]core.Client),
		codes:   make(map[string]core.AuthorizationCode),
		bearers: make(map[string]core.BearerToken),
		refresh: make(map[string]core.RefreshToken),
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close()                         {}

// PutClient registra/actualiza un client. En producción el CRUD vive en la app
// admin; esto existe para seeds y tests.
func (s *Store) PutClient(c core.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID] = c
}

func (s *Store) GetClient(ctx context.Context, id string) (*core.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := c
	return &out, nil
}

func (s *Store) ListActiveClients(ctx context.Context) ([]core.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Client, 0, len(s.clients))
	for _, c := range s.clients {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

// ── Authorization codes ─────────────────────────────────────────────

func (s *Store) SaveAuthorizationCode(ctx context.Context, ac *core.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[ac.Code]; ok {
		return core.ErrConflict
	}
	cp := *ac
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.codes[ac.Code] = cp
	return nil
}

func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*core.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ac, ok := s.codes[code]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := ac
	return &out, nil
}

func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code string) (*core.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ac, ok := s.codes[code]
	if !ok {
		return nil, core.ErrNotFound
	}
	if !ac.IsValid {
		return nil, core.ErrCodeConsumed
	}
	ac.IsValid = false
	s.codes[code] = ac
	out := ac
	return &out, nil
}

func (s *Store) InvalidateAuthorizationCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ac, ok := s.codes[code]
	if !ok {
		return core.ErrNotFound
	}
	ac.IsValid = false
	s.codes[code] = ac
	return nil
}

// ── Bearer / refresh tokens ─────────────────────────────────────────

func (s *Store) SaveBearerToken(ctx context.Context, bt *core.BearerToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *bt
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.bearers[bt.AccessToken] = cp
	return nil
}

func (s *Store) GetBearerToken(ctx context.Context, accessToken string) (*core.BearerToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bt, ok := s.bearers[accessToken]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := bt
	return &out, nil
}

func (s *Store) SaveRefreshToken(ctx context.Context, rt *core.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rt
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.refresh[rt.Token] = cp
	return nil
}

func (s *Store) GetRefreshToken(ctx context.Context, token string) (*core.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.refresh[token]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := rt
	return &out, nil
}

func (s *Store) DeleteRefreshToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refresh, token)
	return nil
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, codeBefore, bearerBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for code, ac := range s.codes {
		if ac.CreatedAt.Before(codeBefore) {
			delete(s.codes, code)
			n++
		}
	}
	for at, bt := range s.bearers {
		if bt.CreatedAt.Before(bearerBefore) {
			delete(s.bearers, at)
			for tok, rt := range s.refresh {
				if rt.AccessToken == at {
					delete(s.refresh, tok)
				}
			}
			n++
		}
	}
	return n, nil
}

// ── Signing keys ────────────────────────────────────────────────────

func (s *Store) CreateSigningKey(ctx context.Context, k *core.SigningKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *k
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.Active = true
	cp.Default = false
	s.keys = append(s.keys, cp)

	s.rotateLocked(cp.Algorithm)
	return nil
}

// rotateLocked aplica el bookkeeping de rotación para un algoritmo:
// la segunda más nueva ACTIVE pasa a DEFAULT (ventana de gracia), se
// conservan 3 ACTIVE y 3 retiradas como máximo.
func (s *Store) rotateLocked(alg string) {
	idx := make([]int, 0, len(s.keys))
	for i := range s.keys {
		if s.keys[i].Algorithm == alg && s.keys[i].Active {
			idx = append(idx, i)
		}
	}
	// más nueva primero
	sort.Slice(idx, func(a, b int) bool {
		return s.keys[idx[a]].CreatedAt.After(s.keys[idx[b]].CreatedAt)
	})

	defaultIdx := -1
	switch {
	case len(idx) == 1:
		defaultIdx = idx[0]
	case len(idx) > 1:
		defaultIdx = idx[1]
	}
	for i := range s.keys {
		if s.keys[i].Algorithm == alg {
			s.keys[i].Default = i == defaultIdx
		}
	}

	// retirar ACTIVE más allá de las 3 más recientes
	for n, i := range idx {
		if n >= 3 {
			s.keys[i].Active = false
			s.keys[i].Default = false
		}
	}

	// borrar retiradas más allá de las 3 más recientes
	retired := make([]int, 0)
	for i := range s.keys {
		if s.keys[i].Algorithm == alg && !s.keys[i].Active {
			retired = append(retired, i)
		}
	}
	sort.Slice(retired, func(a, b int) bool {
		return s.keys[retired[a]].CreatedAt.After(s.keys[retired[b]].CreatedAt)
	})
	if len(retired) > 3 {
		drop := make(map[int]bool)
		for _, i := range retired[3:] {
			drop[i] = true
		}
		kept := s.keys[:0]
		for i := range s.keys {
			if !drop[i] {
				kept = append(kept, s.keys[i])
			}
		}
		s.keys = kept
	}
}

func (s *Store) GetDefaultSigningKey(ctx context.Context, algorithm string) (*core.SigningKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.keys {
		if s.keys[i].Algorithm == algorithm && s.keys[i].Default {
			out := s.keys[i]
			return &out, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) GetSigningKeyByKID(ctx context.Context, kid, algorithm string) (*core.SigningKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.keys {
		if s.keys[i].KID == kid && s.keys[i].Algorithm == algorithm {
			out := s.keys[i]
			return &out, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) ListActiveSigningKeys(ctx context.Context, algorithm string) ([]core.SigningKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.SigningKey, 0)
	for i := range s.keys {
		if s.keys[i].Algorithm == algorithm && s.keys[i].Active {
			out = append(out, s.keys[i])
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}
