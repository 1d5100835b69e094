// Package directory abstrae el directorio de usuarios contra el que el
// servidor autentica y resuelve identidad.
package directory

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrUserNotFound       = errors.New("directory: user not found")
	ErrInvalidCredentials = errors.New("directory: invalid credentials")
)

// User es la vista mínima de un usuario que necesita el protocolo.
type User struct {
	UUID         string
	Username     string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	// RequiresOTP marca cuentas que exigen segundo factor antes de emitir
	// tokens vía password grant o sesión.
	RequiresOTP bool
	Active      bool
}

// FullName concatena nombre y apellido, omitiendo vacíos.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasUsablePassword reporta si la cuenta puede autenticar por contraseña.
// Cuentas provisionadas externamente pueden no tener hash.
func (u *User) HasUsablePassword() bool {
	return u.PasswordHash != ""
}

// Directory resuelve y autentica usuarios.
type Directory interface {
	// Authenticate valida username+password. ErrInvalidCredentials cubre
	// tanto usuario inexistente como contraseña incorrecta.
	Authenticate(ctx context.Context, username, password string) (*User, error)
	// GetByUUID resuelve un usuario por su identificador estable (claim sub).
	GetByUUID(ctx context.Context, uuid string) (*User, error)
	// TouchLastLogin actualiza last_login del usuario; se usa al autenticar
	// un service user vía client_credentials.
	TouchLastLogin(ctx context.Context, uuid string) error
}

// RoleResolver resuelve los roles de un usuario dentro de una aplicación.
// Solo se consulta cuando el client está vinculado a una application.
type RoleResolver interface {
	GetRolesByApp(ctx context.Context, userUUID, applicationID string) ([]string, error)
}
