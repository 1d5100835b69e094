// Package cache define la abstracción de cache de lecturas con TTL corto.
//
// Soporta:
//   - Memory (in-process, para desarrollo/testing)
//   - Redis (distribuido, compartido entre workers)
//
// KeyStore y ClientRegistry reciben un Cache inyectado; en tests se reemplaza
// por un fake.
package cache

import "time"

// Cache define las operaciones de cache.
type Cache interface {
	Get(key string) (value []byte, ok bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}

// GetOrSet devuelve el valor cacheado o lo computa y guarda con el TTL dado.
// El error de fill se propaga sin cachear.
func GetOrSet(c Cache, key string, ttl time.Duration, fill func() ([]byte, error)) ([]byte, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := fill()
	if err != nil {
		return nil, err
	}
	c.Set(key, v, ttl)
	return v, nil
}
