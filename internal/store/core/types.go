package core

import "time"

// Tipos de client soportados. El tipo determina qué response_types y
// grant_types puede usar el client y si puede autenticarse con secret.
const (
	ClientTypeWeb        = "web"
	ClientTypeNative     = "native"
	ClientTypeJavascript = "javascript"
	ClientTypeService    = "service"
	ClientTypeTrusted    = "trusted"
)

// Client es el registro de un client OAuth2. El CRUD vive en la app de
// administración externa; para el core es de solo lectura.
type Client struct {
	ID                     string    `json:"id"` // uuid opaco, es el client_id
	Name                   string    `json:"name"`
	Type                   string    `json:"type"`
	Secret                 string    `json:"secret,omitempty"` // solo clients confidenciales
	RedirectURIs           []string  `json:"redirect_uris"`
	PostLogoutRedirectURIs []string  `json:"post_logout_redirect_uris,omitempty"`
	DefaultRedirectURI     string    `json:"default_redirect_uri,omitempty"`
	Scopes                 []string  `json:"scopes"`
	ForcePKCE              bool      `json:"force_pkce"`
	ServiceUserID          string    `json:"service_user_id,omitempty"` // requerido para client_credentials
	ApplicationID          string    `json:"application_id,omitempty"`  // app vinculada (claim roles)
	Active                 bool      `json:"active"`
	CreatedAt              time.Time `json:"created_at"`
}

// AuthorizationCode se crea en /authorize y se consume (una sola vez) en /token.
type AuthorizationCode struct {
	Code                string
	ClientID            string
	UserID              string
	RedirectURI         string
	Scopes              []string
	Nonce               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	SessionState        string
	IsValid             bool
	CreatedAt           time.Time
}

// BearerToken persiste el JWT emitido. El exp vive dentro del propio token,
// no hay columna de expiración.
type BearerToken struct {
	AccessToken string
	ClientID    string
	UserID      string
	CreatedAt   time.Time
}

// RefreshToken es opaco, 1:1 con el BearerToken junto al que se emitió.
// No expira solo; se borra para revocarlo.
type RefreshToken struct {
	Token       string
	AccessToken string
	ClientID    string
	UserID      string
	CreatedAt   time.Time
}

// SigningKey es el material de firma persistido. Inmutable salvo los flags
// de estado; pasada la retención se elimina.
type SigningKey struct {
	KID         string
	Algorithm   string // RS256 | HS256
	PrivateKey  string // PEM (RS256) o secret (HS256)
	PublicKey   string // PEM, solo RS256
	Certificate string // PEM, solo RS256
	Active      bool
	Default     bool
	CreatedAt   time.Time
}
