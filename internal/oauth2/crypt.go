package oauth2

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	"github.com/dropDatabas3/janus/internal/store/core"
)

// newOpaqueToken genera un token opaco de 30 bytes de entropía, base64url
// sin padding. Se usa para authorization codes y refresh tokens.
func newOpaqueToken() string {
	b := make([]byte, 30)
	if _, err := rand.Read(b); err != nil {
		panic("oauth2: crypto/rand agotado: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// newJTI genera el identificador corto del claim jti.
func newJTI() string {
	b := make([]byte, 9)
	if _, err := rand.Read(b); err != nil {
		panic("oauth2: crypto/rand agotado: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// sessionState computa el valor OIDC session management:
// sha256(client_id + " " + browser_state + " " + salt) en hex, más "." y la
// salt para que el RP pueda recomputarlo.
func sessionState(clientID, browserState string) string {
	saltRaw := make([]byte, 8)
	if _, err := rand.Read(saltRaw); err != nil {
		panic("oauth2: crypto/rand agotado: " + err.Error())
	}
	salt := hex.EncodeToString(saltRaw)
	sum := sha256.Sum256([]byte(clientID + " " + browserState + " " + salt))
	return hex.EncodeToString(sum[:]) + "." + salt
}

// SessionAuthHash es el claim au_hash: HMAC de la contraseña del usuario y el
// secreto del client, de modo que un cambio de contraseña invalide la sesión
// en los RPs. Los resource servers lo recomputan al validar bearer tokens.
func SessionAuthHash(secretKey, passwordHash string, client *core.Client) string {
	mac := hmac.New(sha256.New, []byte("au_hash"+secretKey))
	mac.Write([]byte(passwordHash))
	if client != nil {
		mac.Write([]byte(client.Secret))
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyPKCE valida el code_verifier contra el challenge almacenado según el
// método guardado con el code. Método vacío equivale a "plain".
func verifyPKCE(challenge, method, verifier string) bool {
	switch method {
	case "S256":
		sum := sha256.Sum256([]byte(verifier))
		derived := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) == 1
	case "", "plain":
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	default:
		return false
	}
}
