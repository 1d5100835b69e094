package sessions

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cachemem "github.com/dropDatabas3/janus/internal/cache/memory"
)

func newTestStore() *Store {
	return NewStore(cachemem.New(time.Minute), "sessionid", time.Minute)
}

func TestPutGetDelete(t *testing.T) {
	s := newTestStore()

	key, err := s.Put(&Data{UserUUID: "u1", Verified: true, AuthTime: 1234})
	require.NoError(t, err)
	require.NotEmpty(t, key)

	d, err := s.Get(key)
	require.NoError(t, err)
	require.Equal(t, "u1", d.UserUUID)
	require.True(t, d.Verified)
	require.EqualValues(t, 1234, d.AuthTime)

	s.Delete(key)
	_, err = s.Get(key)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestPut_KeysAreUnique(t *testing.T) {
	s := newTestStore()
	a, err := s.Put(&Data{UserUUID: "u1"})
	require.NoError(t, err)
	b, err := s.Put(&Data{UserUUID: "u1"})
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestFromRequest(t *testing.T) {
	s := newTestStore()
	key, err := s.Put(&Data{UserUUID: "u1"})
	require.NoError(t, err)

	t.Run("cookie válida", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "sessionid", Value: key})
		gotKey, d, err := s.FromRequest(r)
		require.NoError(t, err)
		require.Equal(t, key, gotKey)
		require.Equal(t, "u1", d.UserUUID)
	})

	t.Run("sin cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		_, _, err := s.FromRequest(r)
		require.ErrorIs(t, err, ErrNoSession)
	})

	t.Run("cookie con sesión inexistente", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "sessionid", Value: "vencida"})
		_, _, err := s.FromRequest(r)
		require.ErrorIs(t, err, ErrNoSession)
	})
}
