package clients

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cachemem "github.com/dropDatabas3/janus/internal/cache/memory"
	"github.com/dropDatabas3/janus/internal/store/core"
	"github.com/dropDatabas3/janus/internal/store/memory"
)

func newTestRegistry() (*Registry, *memory.Store) {
	st := memory.New()
	return NewRegistry(st, cachemem.New(time.Minute)), st
}

func testClient(typ string) *core.Client {
	return &core.Client{
		ID:           "c-" + typ,
		Type:         typ,
		Secret:       "s3cr3t",
		RedirectURIs: []string{"https://app.test/callback", "https://app.test/alt"},
		Scopes:       []string{"openid", "profile"},
		Active:       true,
	}
}

func TestByClientID(t *testing.T) {
	r, st := newTestRegistry()
	ctx := context.Background()

	c := testClient(core.ClientTypeWeb)
	st.PutClient(*c)

	got, err := r.ByClientID(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, c.ID, got.ID)

	_, err = r.ByClientID(ctx, "fantasma")
	require.ErrorIs(t, err, ErrClientNotFound)

	// desactivado cuenta como inexistente
	c.Active = false
	st.PutClient(*c)
	_, err = r.ByClientID(ctx, c.ID)
	require.ErrorIs(t, err, ErrClientNotFound)
}

func TestIsConfidential(t *testing.T) {
	r, _ := newTestRegistry()
	require.True(t, r.IsConfidential(testClient(core.ClientTypeWeb)))
	require.True(t, r.IsConfidential(testClient(core.ClientTypeService)))
	require.True(t, r.IsConfidential(testClient(core.ClientTypeTrusted)))
	require.False(t, r.IsConfidential(testClient(core.ClientTypeNative)))
	require.False(t, r.IsConfidential(testClient(core.ClientTypeJavascript)))
}

func TestVerifySecret(t *testing.T) {
	r, _ := newTestRegistry()

	web := testClient(core.ClientTypeWeb)
	require.True(t, r.VerifySecret(web, "s3cr3t"))
	require.False(t, r.VerifySecret(web, "otro"))
	require.False(t, r.VerifySecret(web, ""))

	// un client público nunca autentica con secreto, tenga lo que tenga
	native := testClient(core.ClientTypeNative)
	require.False(t, r.VerifySecret(native, "s3cr3t"))

	sinSecreto := testClient(core.ClientTypeWeb)
	sinSecreto.Secret = ""
	require.False(t, r.VerifySecret(sinSecreto, ""))
}

func TestValidateResponseType(t *testing.T) {
	r, _ := newTestRegistry()

	cases := []struct {
		typ          string
		responseType string
		ok           bool
	}{
		{core.ClientTypeWeb, "code", true},
		{core.ClientTypeWeb, "token", false},
		{core.ClientTypeWeb, "id_token token", false},
		{core.ClientTypeNative, "code", true},
		{core.ClientTypeNative, "id_token", false},
		{core.ClientTypeJavascript, "id_token token", true},
		{core.ClientTypeJavascript, "token", true},
		{core.ClientTypeJavascript, "id_token", true},
		{core.ClientTypeJavascript, "code", false},
		{core.ClientTypeService, "code", false},
		{core.ClientTypeTrusted, "code", false},
	}
	for _, tc := range cases {
		got := r.ValidateResponseType(testClient(tc.typ), tc.responseType)
		require.Equal(t, tc.ok, got, "%s / %q", tc.typ, tc.responseType)
	}
}

func TestValidateGrantType(t *testing.T) {
	r, _ := newTestRegistry()

	cases := []struct {
		typ       string
		grantType string
		ok        bool
	}{
		{core.ClientTypeWeb, "authorization_code", true},
		{core.ClientTypeWeb, "refresh_token", true},
		{core.ClientTypeWeb, "client_credentials", false},
		{core.ClientTypeWeb, "password", false},
		{core.ClientTypeNative, "authorization_code", true},
		{core.ClientTypeNative, "refresh_token", true},
		{core.ClientTypeJavascript, "authorization_code", false},
		{core.ClientTypeService, "client_credentials", true},
		{core.ClientTypeService, "authorization_code", false},
		{core.ClientTypeTrusted, "password", true},
		{core.ClientTypeTrusted, "client_credentials", false},
	}
	for _, tc := range cases {
		got := r.ValidateGrantType(testClient(tc.typ), tc.grantType)
		require.Equal(t, tc.ok, got, "%s / %q", tc.typ, tc.grantType)
	}
}

func TestValidateRedirectURI_ExactMatch(t *testing.T) {
	r, _ := newTestRegistry()
	c := testClient(core.ClientTypeWeb)

	require.True(t, r.ValidateRedirectURI(c, "https://app.test/callback"))
	require.True(t, r.ValidateRedirectURI(c, "https://app.test/alt"))
	// ni prefijos, ni trailing slash, ni query extra
	require.False(t, r.ValidateRedirectURI(c, "https://app.test/callback/"))
	require.False(t, r.ValidateRedirectURI(c, "https://app.test/callback?x=1"))
	require.False(t, r.ValidateRedirectURI(c, "https://app.test"))
}

func TestValidateScopes(t *testing.T) {
	r, _ := newTestRegistry()
	c := testClient(core.ClientTypeWeb)

	require.True(t, r.ValidateScopes(c, nil))
	require.True(t, r.ValidateScopes(c, []string{"openid"}))
	require.True(t, r.ValidateScopes(c, []string{"openid", "profile"}))
	require.False(t, r.ValidateScopes(c, []string{"openid", "admin"}))
}

func TestIsPKCERequired(t *testing.T) {
	r, _ := newTestRegistry()

	// solo manda force_pkce, nunca el tipo del client
	require.False(t, r.IsPKCERequired(testClient(core.ClientTypeNative)))
	require.False(t, r.IsPKCERequired(testClient(core.ClientTypeWeb)))

	forced := testClient(core.ClientTypeNative)
	forced.ForcePKCE = true
	require.True(t, r.IsPKCERequired(forced))
}

func TestAllowedHosts(t *testing.T) {
	r, st := newTestRegistry()
	ctx := context.Background()

	a := testClient(core.ClientTypeWeb)
	st.PutClient(*a)
	b := testClient(core.ClientTypeJavascript)
	b.ID = "c-js"
	b.RedirectURIs = []string{"https://spa.test:3000/cb"}
	st.PutClient(*b)
	off := testClient(core.ClientTypeWeb)
	off.ID = "c-off"
	off.Active = false
	off.RedirectURIs = []string{"https://apagado.test/cb"}
	st.PutClient(*off)

	hosts, err := r.AllowedHosts(ctx)
	require.NoError(t, err)
	require.True(t, hosts["app.test"])
	require.True(t, hosts["spa.test:3000"])
	require.False(t, hosts["apagado.test"])

	// el resultado queda cacheado: un alta posterior no aparece hasta el TTL
	c := testClient(core.ClientTypeWeb)
	c.ID = "c-nuevo"
	c.RedirectURIs = []string{"https://nuevo.test/cb"}
	st.PutClient(*c)
	hosts, err = r.AllowedHosts(ctx)
	require.NoError(t, err)
	require.False(t, hosts["nuevo.test"])
}
