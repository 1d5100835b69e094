package oauth2

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/janus/internal/store/core"
)

// issueCode pasa por /authorize con el code flow y devuelve el code emitido.
func issueCode(t *testing.T, env *testEnv, client *core.Client, req *AuthorizeRequest, sess *Session) string {
	t.Helper()
	resp, err := env.svc.Authorize(context.Background(), req, sess)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Code)
	return resp.Code
}

func codeExchange(client *core.Client, code string) *TokenRequest {
	return &TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  client.RedirectURIs[0],
		ClientID:     client.ID,
		ClientSecret: client.Secret,
	}
}

func TestToken_CodeExchange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := clientFixture(core.ClientTypeWeb)
	env.addClient(client)
	user := env.addUser(t, "ana")

	code := issueCode(t, env, client, authorizeReq(client), sessionFor(user))
	resp, err := env.svc.Token(ctx, codeExchange(client, code))
	require.NoError(t, err)
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, int64(3600), resp.ExpiresIn)
	require.Equal(t, "openid profile email", resp.Scope)
	require.NotEmpty(t, resp.IDToken) // openid estaba en los scopes
	require.Empty(t, resp.RefreshToken)

	claims, err := env.codec.Decode(ctx, resp.AccessToken, SigningAlg)
	require.NoError(t, err)
	require.Equal(t, "https://sso.test", claims["iss"])
	require.Equal(t, user.UUID, claims["sub"])
	require.Equal(t, client.ID, claims["aud"])
	require.Equal(t, "openid profile email", claims["scope"])
	require.Equal(t, "1", claims["acr"])
	require.Equal(t, user.Email, claims["email"])
	require.Equal(t, user.Username, claims["name"])
	require.NotEmpty(t, claims["jti"])
	require.NotEmpty(t, claims["au_hash"])

	idClaims, err := env.codec.Decode(ctx, resp.IDToken, SigningAlg)
	require.NoError(t, err)
	require.Equal(t, "n-0S6_WzA2Mj", idClaims["nonce"])
	require.Equal(t, user.FirstName, idClaims["given_name"])
	require.Equal(t, user.LastName, idClaims["family_name"])
}

func TestToken_CodeIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := clientFixture(core.ClientTypeWeb)
	env.addClient(client)
	user := env.addUser(t, "ana")

	code := issueCode(t, env, client, authorizeReq(client), sessionFor(user))
	_, err := env.svc.Token(ctx, codeExchange(client, code))
	require.NoError(t, err)

	_, err = env.svc.Token(ctx, codeExchange(client, code))
	requireOAuth2Error(t, err, ErrInvalidGrant)
}

func TestToken_ConcurrentExchangeOnlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := clientFixture(core.ClientTypeWeb)
	env.addClient(client)
	user := env.addUser(t, "ana")

	code := issueCode(t, env, client, authorizeReq(client), sessionFor(user))

	const n = 8
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Token(ctx, codeExchange(client, code))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			requireOAuth2Error(t, err, ErrInvalidGrant)
		}
	}
	require.Equal(t, 1, wins)
}

func TestToken_CodeBoundToClient(t *testing.T) {
	env := newTestEnv(t)
	client := clientFixture(core.ClientTypeWeb)
	env.addClient(client)
	other := clientFixture(core.ClientTypeWeb)
	other.ID = "client-otro"
	other.Secret = "secret-otro"
	env.addClient(other)
	user := env.addUser(t, "ana")

	code := issueCode(t, env, client, authorizeReq(client), sessionFor(user))
	req := codeExchange(other, code)
	_, err := env.svc.Token(context.Background(), req)
	requireOAuth2Error(t, err, ErrInvalidGrant)
}

func TestToken_RedirectMustMatchByteForByte(t *testing.T) {
	env := newTestEnv(t)
	client := clientFixture(core.ClientTypeWeb)
	env.addClient(client)
	user := env.addUser(t, "ana")

	code := issueCode(t, env, client, authorizeReq(client), sessionFor(user))
	req := codeExchange(client, code)
	req.RedirectURI = client.RedirectURIs[0] + "/"
	_, err := env.svc.Token(context.Background(), req)
	requireOAuth2Error(t, err, ErrInvalidGrant)
}

func TestToken_PKCE(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := clientFixture(core.ClientTypeWeb)
	client.ForcePKCE = true
	env.addClient(client)
	user := env.addUser(t, "ana")

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	newCode := func() string {
		req := authorizeReq(client)
		req.CodeChallenge = challenge
		req.CodeChallengeMethod = "S256"
		return issueCode(t, env, client, req, sessionFor(user))
	}

	t.Run("verifier correcto canjea", func(t *testing.T) {
		req := codeExchange(client, newCode())
		req.CodeVerifier = verifier
		_, err := env.svc.Token(ctx, req)
		require.NoError(t, err)
	})

	t.Run("verifier incorrecto es invalid_grant", func(t *testing.T) {
		req := codeExchange(client, newCode())
		req.CodeVerifier = verifier + "x"
		_, err := env.svc.Token(ctx, req)
		requireOAuth2Error(t, err, ErrInvalidGrant)
	})

	t.Run("verifier ausente es invalid_grant", func(t *testing.T) {
		req := codeExchange(client, newCode())
		_, err := env.svc.Token(ctx, req)
		requireOAuth2Error(t, err, ErrInvalidGrant)
	})

	t.Run("método omitido cuenta como plain", func(t *testing.T) {
		areq := authorizeReq(client)
		areq.CodeChallenge = "plain-challenge"
		code := issueCode(t, env, client, areq, sessionFor(user))
		req := codeExchange(client, code)
		req.CodeVerifier = "plain-challenge"
		_, err := env.svc.Token(ctx, req)
		require.NoError(t, err)
	})
}

func TestToken_RefreshOnlyWithOfflineAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := clientFixture(core.ClientTypeWeb)
	env.addClient(client)
	user := env.addUser(t, "ana")

	areq := authorizeReq(client)
	areq.Scope = "openid offline_access"
	code := issueCode(t, env, client, areq, sessionFor(user))
	resp, err := env.svc.Token(ctx, codeExchange(client, code))
	require.NoError(t, err)
	require.NotEmpty(t, resp.RefreshToken)

	rt, err := env.store.GetRefreshToken(ctx, resp.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, resp.AccessToken, rt.AccessToken)
	require.Equal(t, client.ID, rt.ClientID)
	require.Equal(t, user.UUID, rt.UserID)
}

func TestToken_RefreshRotation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := clientFixture(core.ClientTypeWeb)
	env.addClient(client)
	user := env.addUser(t, "ana")

	areq := authorizeReq(client)
	areq.Scope = "openid profile offline_access"
	code := issueCode(t, env, client, areq, sessionFor(user))
	first, err := env.svc.Token(ctx, codeExchange(client, code))
	require.NoError(t, err)

	refresh := func(token, scope string) (*TokenResponse, error) {
		return env.svc.Token(ctx, &TokenRequest{
			GrantType:    "refresh_token",
			RefreshToken: token,
			Scope:        scope,
			ClientID:     client.ID,
			ClientSecret: client.Secret,
		})
	}

	second, err := refresh(first.RefreshToken, "")
	require.NoError(t, err)
	// sin scope explícito se arrastran los originales
	require.Equal(t, first.Scope, second.Scope)
	require.NotEmpty(t, second.RefreshToken)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// el refresh usado quedó rotado
	_, err = refresh(first.RefreshToken, "")
	requireOAuth2Error(t, err, ErrInvalidGrant)

	// narrowing permitido, ampliación no
	third, err := refresh(second.RefreshToken, "openid")
	require.NoError(t, err)
	require.Equal(t, "openid", third.Scope)
	require.Empty(t, third.RefreshToken) // el subset ya no trae offline_access

	_, err = refresh("", "")
	requireOAuth2Error(t, err, ErrInvalidRequest)
}

func TestToken_RefreshCannotWidenScopes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := clientFixture(core.ClientTypeWeb)
	env.addClient(client)
	user := env.addUser(t, "ana")

	areq := authorizeReq(client)
	areq.Scope = "openid offline_access"
	code := issueCode(t, env, client, areq, sessionFor(user))
	resp, err := env.svc.Token(ctx, codeExchange(client, code))
	require.NoError(t, err)

	_, err = env.svc.Token(ctx, &TokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: resp.RefreshToken,
		Scope:        "openid profile email offline_access",
		ClientID:     client.ID,
		ClientSecret: client.Secret,
	})
	requireOAuth2Error(t, err, ErrInvalidScope)
}

func TestToken_RefreshBoundToClient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := clientFixture(core.ClientTypeWeb)
	env.addClient(client)
	other := clientFixture(core.ClientTypeWeb)
	other.ID = "client-otro"
	env.addClient(other)
	user := env.addUser(t, "ana")

	areq := authorizeReq(client)
	areq.Scope = "openid offline_access"
	code := issueCode(t, env, client, areq, sessionFor(user))
	resp, err := env.svc.Token(ctx, codeExchange(client, code))
	require.NoError(t, err)

	_, err = env.svc.Token(ctx, &TokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: resp.RefreshToken,
		ClientID:     other.ID,
		ClientSecret: other.Secret,
	})
	requireOAuth2Error(t, err, ErrInvalidGrant)
}

func TestToken_ClientAuthentication(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := clientFixture(core.ClientTypeWeb)
	env.addClient(client)

	t.Run("secreto incorrecto", func(t *testing.T) {
		_, err := env.svc.Token(ctx, &TokenRequest{
			GrantType: "authorization_code", Code: "x",
			ClientID: client.ID, ClientSecret: "nope",
		})
		requireOAuth2Error(t, err, ErrInvalidClient)
	})

	t.Run("confidencial sin secreto", func(t *testing.T) {
		_, err := env.svc.Token(ctx, &TokenRequest{
			GrantType: "authorization_code", Code: "x", ClientID: client.ID,
		})
		requireOAuth2Error(t, err, ErrInvalidClient)
	})

	t.Run("client público presentando secreto", func(t *testing.T) {
		native := clientFixture(core.ClientTypeNative)
		env.addClient(native)
		_, err := env.svc.Token(ctx, &TokenRequest{
			GrantType: "authorization_code", Code: "x",
			ClientID: native.ID, ClientSecret: "cualquiera",
		})
		requireOAuth2Error(t, err, ErrInvalidClient)
	})

	t.Run("client desconocido", func(t *testing.T) {
		_, err := env.svc.Token(ctx, &TokenRequest{
			GrantType: "authorization_code", Code: "x",
			ClientID: "fantasma", ClientSecret: "x",
		})
		requireOAuth2Error(t, err, ErrInvalidClient)
	})

	t.Run("client desactivado", func(t *testing.T) {
		off := clientFixture(core.ClientTypeWeb)
		off.ID = "client-off"
		off.Active = false
		env.addClient(off)
		_, err := env.svc.Token(ctx, &TokenRequest{
			GrantType: "authorization_code", Code: "x",
			ClientID: off.ID, ClientSecret: off.Secret,
		})
		requireOAuth2Error(t, err, ErrInvalidClient)
	})
}

func TestToken_GrantOutsideClientType(t *testing.T) {
	env := newTestEnv(t)
	client := clientFixture(core.ClientTypeWeb)
	env.addClient(client)

	_, err := env.svc.Token(context.Background(), &TokenRequest{
		GrantType: "client_credentials",
		ClientID:  client.ID, ClientSecret: client.Secret,
	})
	requireOAuth2Error(t, err, ErrUnsupportedGrantType)
}

func TestToken_UnknownGrantType(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Token(context.Background(), &TokenRequest{GrantType: "magia"})
	requireOAuth2Error(t, err, ErrUnsupportedGrantType)
}

func TestToken_ClientCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	svcUser := env.addUser(t, "svc-batch")
	client := clientFixture(core.ClientTypeService)
	client.ServiceUserID = svcUser.UUID
	client.Scopes = []string{"api:read", "api:write"}
	env.addClient(client)

	resp, err := env.svc.Token(ctx, &TokenRequest{
		GrantType: "client_credentials",
		ClientID:  client.ID, ClientSecret: client.Secret,
	})
	require.NoError(t, err)
	require.Empty(t, resp.IDToken) // nunca hay id_token en client_credentials
	require.Empty(t, resp.RefreshToken)
	require.Equal(t, "api:read api:write", resp.Scope)

	claims, err := env.codec.Decode(ctx, resp.AccessToken, SigningAlg)
	require.NoError(t, err)
	require.Equal(t, svcUser.UUID, claims["sub"])

	// el service user registró actividad
	require.Contains(t, env.dir.Touched, svcUser.UUID)
}

func TestToken_ClientCredentialsWithoutServiceUser(t *testing.T) {
	env := newTestEnv(t)
	client := clientFixture(core.ClientTypeService)
	env.addClient(client)

	// error de configuración: al caller solo le llega invalid_client
	_, err := env.svc.Token(context.Background(), &TokenRequest{
		GrantType: "client_credentials",
		ClientID:  client.ID, ClientSecret: client.Secret,
	})
	requireOAuth2Error(t, err, ErrInvalidClient)
}

func TestToken_PasswordGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := clientFixture(core.ClientTypeTrusted)
	env.addClient(client)
	user := env.addUser(t, "ana")

	t.Run("credenciales correctas", func(t *testing.T) {
		resp, err := env.svc.Token(ctx, &TokenRequest{
			GrantType: "password",
			Username:  "ana", Password: "hunter2!",
			Scope:    "openid profile",
			ClientID: client.ID, ClientSecret: client.Secret,
		})
		require.NoError(t, err)
		require.NotEmpty(t, resp.IDToken)
		claims, err := env.codec.Decode(ctx, resp.AccessToken, SigningAlg)
		require.NoError(t, err)
		require.Equal(t, user.UUID, claims["sub"])
	})

	t.Run("contraseña incorrecta", func(t *testing.T) {
		_, err := env.svc.Token(ctx, &TokenRequest{
			GrantType: "password",
			Username:  "ana", Password: "nope",
			ClientID: client.ID, ClientSecret: client.Secret,
		})
		requireOAuth2Error(t, err, ErrInvalidGrant)
	})

	t.Run("usuario inexistente", func(t *testing.T) {
		_, err := env.svc.Token(ctx, &TokenRequest{
			GrantType: "password",
			Username:  "nadie", Password: "hunter2!",
			ClientID: client.ID, ClientSecret: client.Secret,
		})
		requireOAuth2Error(t, err, ErrInvalidGrant)
	})
}

func TestToken_RolesClaim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := clientFixture(core.ClientTypeWeb)
	client.ApplicationID = "app-42"
	env.addClient(client)
	user := env.addUser(t, "ana")
	env.dir.Roles[user.UUID+"|app-42"] = []string{"admin", "editor"}

	code := issueCode(t, env, client, authorizeReq(client), sessionFor(user))
	resp, err := env.svc.Token(ctx, codeExchange(client, code))
	require.NoError(t, err)

	claims, err := env.codec.Decode(ctx, resp.AccessToken, SigningAlg)
	require.NoError(t, err)
	require.Equal(t, "admin editor", claims["roles"])
}

func TestToken_ExpiredAccessTokenStopsVerifying(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	expired, err := env.codec.Encode(ctx, map[string]any{
		"sub": "uuid-ana",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}, SigningAlg, 0)
	require.NoError(t, err)

	_, err = env.codec.Decode(ctx, expired, SigningAlg)
	require.Error(t, err)
}
