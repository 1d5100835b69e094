// Package pg implementa core.Store sobre PostgreSQL usando pgxpool.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/janus/internal/store/core"
)

type Store struct {
	pool *pgxpool.Pool
}

type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse DSN: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	} else {
		poolCfg.MaxConns = 10
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	} else {
		poolCfg.MinConns = 2
	}
	if cfg.ConnMaxLifetime != "" {
		if d, err := time.ParseDuration(cfg.ConnMaxLifetime); err == nil {
			poolCfg.MaxConnLifetime = d
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }
func (s *Store) Close()                         { s.pool.Close() }

// Pool expone el pool para collectors de métricas.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// ── Clients ─────────────────────────────────────────────────────────

const clientCols = `id, name, type, secret, redirect_uris, post_logout_redirect_uris,
	default_redirect_uri, scopes, force_pkce, service_user_id, application_id, active, created_at`

func scanClient(row pgx.Row) (*core.Client, error) {
	var c core.Client
	var secret, defaultURI, serviceUser, appID *string
	err := row.Scan(&c.ID, &c.Name, &c.Type, &secret, &c.RedirectURIs, &c.PostLogoutRedirectURIs,
		&defaultURI, &c.Scopes, &c.ForcePKCE, &serviceUser, &appID, &c.Active, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	c.Secret = deref(secret)
	c.DefaultRedirectURI = deref(defaultURI)
	c.ServiceUserID = deref(serviceUser)
	c.ApplicationID = deref(appID)
	return &c, nil
}

func (s *Store) GetClient(ctx context.Context, id string) (*core.Client, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+clientCols+` FROM oauth2_client WHERE id = $1`, id)
	return scanClient(row)
}

func (s *Store) ListActiveClients(ctx context.Context) ([]core.Client, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+clientCols+` FROM oauth2_client WHERE active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ── Authorization codes ─────────────────────────────────────────────

const codeCols = `code, client_id, user_id, redirect_uri, scopes, nonce, state,
	code_challenge, code_challenge_method, session_state, is_valid, created_at`

func scanCode(row pgx.Row) (*core.AuthorizationCode, error) {
	var ac core.AuthorizationCode
	err := row.Scan(&ac.Code, &ac.ClientID, &ac.UserID, &ac.RedirectURI, &ac.Scopes,
		&ac.Nonce, &ac.State, &ac.CodeChallenge, &ac.CodeChallengeMethod,
		&ac.SessionState, &ac.IsValid, &ac.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &ac, nil
}

func (s *Store) SaveAuthorizationCode(ctx context.Context, ac *core.AuthorizationCode) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oauth2_authorization_code
			(code, client_id, user_id, redirect_uri, scopes, nonce, state,
			 code_challenge, code_challenge_method, session_state, is_valid, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,true,now())`,
		ac.Code, ac.ClientID, ac.UserID, ac.RedirectURI, ac.Scopes, ac.Nonce, ac.State,
		ac.CodeChallenge, ac.CodeChallengeMethod, ac.SessionState)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return core.ErrConflict
	}
	return err
}

func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*core.AuthorizationCode, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+codeCols+` FROM oauth2_authorization_code WHERE code = $1`, code)
	return scanCode(row)
}

// ConsumeAuthorizationCode: UPDATE condicional. Si el code no existe devuelve
// ErrNotFound; si existe pero ya fue consumido, ErrCodeConsumed. Un único
// statement garantiza que dos canjes concurrentes no puedan tener éxito ambos.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code string) (*core.AuthorizationCode, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE oauth2_authorization_code SET is_valid = false
		WHERE code = $1 AND is_valid
		RETURNING `+codeCols, code)
	ac, err := scanCode(row)
	if errors.Is(err, core.ErrNotFound) {
		// distinguir inexistente de consumido
		if _, err2 := s.GetAuthorizationCode(ctx, code); err2 == nil {
			return nil, core.ErrCodeConsumed
		}
		return nil, core.ErrNotFound
	}
	return ac, err
}

func (s *Store) InvalidateAuthorizationCode(ctx context.Context, code string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE oauth2_authorization_code SET is_valid = false WHERE code = $1 AND is_valid`, code)
	return err
}

// ── Bearer / refresh tokens ─────────────────────────────────────────

func (s *Store) SaveBearerToken(ctx context.Context, bt *core.BearerToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oauth2_bearer_token (access_token, client_id, user_id, created_at)
		VALUES ($1,$2,$3,now())`,
		bt.AccessToken, bt.ClientID, bt.UserID)
	return err
}

func (s *Store) GetBearerToken(ctx context.Context, accessToken string) (*core.BearerToken, error) {
	var bt core.BearerToken
	err := s.pool.QueryRow(ctx, `
		SELECT access_token, client_id, user_id, created_at
		FROM oauth2_bearer_token WHERE access_token = $1`, accessToken).
		Scan(&bt.AccessToken, &bt.ClientID, &bt.UserID, &bt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bt, nil
}

func (s *Store) SaveRefreshToken(ctx context.Context, rt *core.RefreshToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oauth2_refresh_token (token, access_token, client_id, user_id, created_at)
		VALUES ($1,$2,$3,$4,now())`,
		rt.Token, rt.AccessToken, rt.ClientID, rt.UserID)
	return err
}

func (s *Store) GetRefreshToken(ctx context.Context, token string) (*core.RefreshToken, error) {
	var rt core.RefreshToken
	err := s.pool.QueryRow(ctx, `
		SELECT token, access_token, client_id, user_id, created_at
		FROM oauth2_refresh_token WHERE token = $1`, token).
		Scan(&rt.Token, &rt.AccessToken, &rt.ClientID, &rt.UserID, &rt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

func (s *Store) DeleteRefreshToken(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM oauth2_refresh_token WHERE token = $1`, token)
	return err
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, codeBefore, bearerBefore time.Time) (int64, error) {
	var total int64
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM oauth2_authorization_code WHERE created_at < $1`, codeBefore)
	if err != nil {
		return total, err
	}
	total += tag.RowsAffected()
	// los refresh tokens caen en cascada por FK
	tag, err = s.pool.Exec(ctx,
		`DELETE FROM oauth2_bearer_token WHERE created_at < $1`, bearerBefore)
	if err != nil {
		return total, err
	}
	total += tag.RowsAffected()
	return total, nil
}

// ── Signing keys ────────────────────────────────────────────────────

const keyCols = `kid, algorithm, private_key, public_key, certificate, active, is_default, created_at`

func scanKey(row pgx.Row) (*core.SigningKey, error) {
	var k core.SigningKey
	err := row.Scan(&k.KID, &k.Algorithm, &k.PrivateKey, &k.PublicKey, &k.Certificate,
		&k.Active, &k.Default, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &k, nil
}

// CreateSigningKey hace el alta + bookkeeping de rotación dentro de una única
// transacción, de modo que dos rotaciones concurrentes no puedan reclamar
// DEFAULT las dos.
func (s *Store) CreateSigningKey(ctx context.Context, k *core.SigningKey) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO oauth2_signing_key
			(kid, algorithm, private_key, public_key, certificate, active, is_default, created_at)
		VALUES ($1,$2,$3,$4,$5,true,false,now())`,
		k.KID, k.Algorithm, k.PrivateKey, k.PublicKey, k.Certificate); err != nil {
		return err
	}

	// DEFAULT: la segunda más nueva ACTIVE si hay más de una, sino la única.
	if _, err := tx.Exec(ctx, `
		WITH ranked AS (
			SELECT kid, row_number() OVER (ORDER BY created_at DESC) AS rn,
			       count(*) OVER () AS total
			FROM oauth2_signing_key WHERE algorithm = $1 AND active
		)
		UPDATE oauth2_signing_key sk SET is_default = (
			sk.kid IN (SELECT kid FROM ranked WHERE (total = 1 AND rn = 1) OR (total > 1 AND rn = 2))
		)
		WHERE sk.algorithm = $1`, k.Algorithm); err != nil {
		return err
	}

	// retirar ACTIVE más allá de las 3 más recientes
	if _, err := tx.Exec(ctx, `
		UPDATE oauth2_signing_key SET active = false, is_default = false
		WHERE algorithm = $1 AND kid IN (
			SELECT kid FROM oauth2_signing_key
			WHERE algorithm = $1 AND active
			ORDER BY created_at DESC OFFSET 3
		)`, k.Algorithm); err != nil {
		return err
	}

	// borrar retiradas más allá de las 3 más recientes
	if _, err := tx.Exec(ctx, `
		DELETE FROM oauth2_signing_key
		WHERE algorithm = $1 AND NOT active AND kid IN (
			SELECT kid FROM oauth2_signing_key
			WHERE algorithm = $1 AND NOT active
			ORDER BY created_at DESC OFFSET 3
		)`, k.Algorithm); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) GetDefaultSigningKey(ctx context.Context, algorithm string) (*core.SigningKey, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+keyCols+` FROM oauth2_signing_key
		WHERE algorithm = $1 AND is_default
		ORDER BY created_at DESC LIMIT 1`, algorithm)
	return scanKey(row)
}

func (s *Store) GetSigningKeyByKID(ctx context.Context, kid, algorithm string) (*core.SigningKey, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+keyCols+` FROM oauth2_signing_key
		WHERE kid = $1 AND algorithm = $2`, kid, algorithm)
	return scanKey(row)
}

func (s *Store) ListActiveSigningKeys(ctx context.Context, algorithm string) ([]core.SigningKey, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+keyCols+` FROM oauth2_signing_key
		WHERE algorithm = $1 AND active
		ORDER BY created_at DESC`, algorithm)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.SigningKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
