package oauth2

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
)

func TestVerifyPKCE_S256(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	if !verifyPKCE(challenge, "S256", verifier) {
		t.Fatal("verifier correcto rechazado")
	}
	if verifyPKCE(challenge, "S256", verifier+"x") {
		t.Fatal("verifier incorrecto aceptado")
	}
}

func TestVerifyPKCE_Plain(t *testing.T) {
	if !verifyPKCE("abc123", "plain", "abc123") {
		t.Fatal("plain igual rechazado")
	}
	// método vacío equivale a plain
	if !verifyPKCE("abc123", "", "abc123") {
		t.Fatal("método vacío no trató como plain")
	}
	if verifyPKCE("abc123", "plain", "otro") {
		t.Fatal("plain distinto aceptado")
	}
	if verifyPKCE("abc123", "S512", "abc123") {
		t.Fatal("método desconocido aceptado")
	}
}

func TestSessionState_Format(t *testing.T) {
	got := sessionState("client-1", "browser-key")
	parts := strings.SplitN(got, ".", 2)
	if len(parts) != 2 {
		t.Fatalf("formato inesperado: %q", got)
	}
	// recomputable por el RP: sha256(client_id + " " + browser_state + " " + salt)
	sum := sha256.Sum256([]byte("client-1 browser-key " + parts[1]))
	if parts[0] != hex.EncodeToString(sum[:]) {
		t.Fatal("el hash no es recomputable con la salt publicada")
	}

	if got == sessionState("client-1", "browser-key") {
		t.Fatal("dos llamadas devolvieron la misma salt")
	}
}

func TestSessionAuthHash_ChangesWithPassword(t *testing.T) {
	c := clientFixture("web")
	a := SessionAuthHash("secret", "hash1", c)
	b := SessionAuthHash("secret", "hash2", c)
	if a == b {
		t.Fatal("cambiar la contraseña no cambió el au_hash")
	}
	if a != SessionAuthHash("secret", "hash1", c) {
		t.Fatal("au_hash no es determinista")
	}
}

func TestOpaqueTokens_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tok := newOpaqueToken()
		if seen[tok] {
			t.Fatal("token opaco repetido")
		}
		seen[tok] = true
	}
}
