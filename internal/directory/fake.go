package directory

import (
	"context"

	"golang.org/x/crypto/bcrypt"
)

// Fake es un directorio en memoria para tests y para el driver memory.
type Fake struct {
	Users map[string]*User    // por username
	Roles map[string][]string // "uuid|appID" → roles
	// Touched acumula los uuid que pasaron por TouchLastLogin.
	Touched []string
}

func NewFake() *Fake {
	return &Fake{
		Users: make(map[string]*User),
		Roles: make(map[string][]string),
	}
}

// AddUser registra un usuario con la contraseña dada ya hasheada.
func (f *Fake) AddUser(u *User, password string) {
	if password != "" {
		hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		u.PasswordHash = string(hash)
	}
	f.Users[u.Username] = u
}

func (f *Fake) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, ok := f.Users[username]
	if !ok || !u.Active || !u.HasUsablePassword() {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (f *Fake) GetByUUID(ctx context.Context, uuid string) (*User, error) {
	for _, u := range f.Users {
		if u.UUID == uuid && u.Active {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (f *Fake) TouchLastLogin(ctx context.Context, uuid string) error {
	f.Touched = append(f.Touched, uuid)
	return nil
}

func (f *Fake) GetRolesByApp(ctx context.Context, userUUID, applicationID string) ([]string, error) {
	return f.Roles[userUUID+"|"+applicationID], nil
}
