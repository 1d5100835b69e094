// Package pg implementa el directorio de usuarios sobre PostgreSQL.
package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/dropDatabas3/janus/internal/directory"
)

type Directory struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

const userCols = `uuid, username, first_name, last_name, email, password_hash, requires_otp, active`

func (d *Directory) scanUser(row pgx.Row) (*directory.User, error) {
	var u directory.User
	var hash *string
	err := row.Scan(&u.UUID, &u.Username, &u.FirstName, &u.LastName, &u.Email,
		&hash, &u.RequiresOTP, &u.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, directory.ErrUserNotFound
		}
		return nil, err
	}
	if hash != nil {
		u.PasswordHash = *hash
	}
	return &u, nil
}

func (d *Directory) Authenticate(ctx context.Context, username, password string) (*directory.User, error) {
	row := d.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM app_user WHERE username = $1 AND active`, username)
	u, err := d.scanUser(row)
	if errors.Is(err, directory.ErrUserNotFound) {
		// igualar el coste con un compare inútil para no delatar al usuario
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$000000000000000000000u"), []byte(password))
		return nil, directory.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.HasUsablePassword() {
		return nil, directory.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, directory.ErrInvalidCredentials
	}
	return u, nil
}

func (d *Directory) GetByUUID(ctx context.Context, uuid string) (*directory.User, error) {
	row := d.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM app_user WHERE uuid = $1 AND active`, uuid)
	return d.scanUser(row)
}

func (d *Directory) TouchLastLogin(ctx context.Context, uuid string) error {
	_, err := d.pool.Exec(ctx,
		`UPDATE app_user SET last_login = now() WHERE uuid = $1`, uuid)
	return err
}

// GetRolesByApp devuelve los roles del usuario en la aplicación dada.
func (d *Directory) GetRolesByApp(ctx context.Context, userUUID, applicationID string) ([]string, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT r.name FROM app_role r
		JOIN app_user_role ur ON ur.role_id = r.id
		WHERE ur.user_uuid = $1 AND r.application_id = $2
		ORDER BY r.name`, userUUID, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}
