package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
		// SecretKey alimenta los HMAC internos (au_hash). Obligatorio en prod.
		SecretKey string `yaml:"secret_key"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		Driver   string `yaml:"driver"` // postgres | memory
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	OAuth2 struct {
		Issuer string `yaml:"issuer"`
		// TTL de los access/id tokens (claim exp). Default 1h.
		AccessTTL string `yaml:"access_ttl"`
		// Edad máxima de un refresh token antes de que cleartokens lo purgue.
		RefreshTokenAge string `yaml:"refresh_token_age"`
		// TTL lógico de los authorization codes (el reaper los limpia).
		AuthCodeTTL string `yaml:"auth_code_ttl"`
		// client_id del "browser client" usado por el propio UI web via cookie.
		BrowserClientID string `yaml:"browser_client_id"`
		// URL de login a la que redirigimos cuando falta sesión/2FA.
		LoginURL string `yaml:"login_url"`
	} `yaml:"oauth2"`

	Keys struct {
		// Periodo de validez de las claves de firma; también es el TTL de los
		// caches de JWKS/default-key.
		ValidityPeriod string `yaml:"validity_period"`
	} `yaml:"keys"`

	Session struct {
		CookieName string `yaml:"cookie_name"`
	} `yaml:"session"`

	Log struct {
		Env   string `yaml:"env"`
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load lee el YAML (si existe) y aplica overrides de entorno.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setStr(&c.App.Env, "APP_ENV")
	setStr(&c.App.SecretKey, "APP_SECRET_KEY")
	setStr(&c.Server.Addr, "SERVER_ADDR")
	setStr(&c.Storage.Driver, "STORAGE_DRIVER")
	setStr(&c.Storage.DSN, "STORAGE_DSN")
	setStr(&c.Cache.Kind, "CACHE_KIND")
	setStr(&c.Cache.Redis.Addr, "CACHE_REDIS_ADDR")
	setInt(&c.Cache.Redis.DB, "CACHE_REDIS_DB")
	setStr(&c.Cache.Redis.Prefix, "CACHE_REDIS_PREFIX")
	setStr(&c.OAuth2.Issuer, "OAUTH2_ISSUER")
	setStr(&c.OAuth2.AccessTTL, "OAUTH2_ACCESS_TTL")
	setStr(&c.OAuth2.RefreshTokenAge, "OAUTH2_REFRESH_TOKEN_AGE")
	setStr(&c.OAuth2.AuthCodeTTL, "OAUTH2_AUTH_CODE_TTL")
	setStr(&c.OAuth2.BrowserClientID, "OAUTH2_BROWSER_CLIENT_ID")
	setStr(&c.OAuth2.LoginURL, "OAUTH2_LOGIN_URL")
	setStr(&c.Keys.ValidityPeriod, "KEYS_VALIDITY_PERIOD")
	setStr(&c.Session.CookieName, "SESSION_COOKIE_NAME")
	setStr(&c.Log.Env, "LOG_ENV")
	setStr(&c.Log.Level, "LOG_LEVEL")
}

func (c *Config) applyDefaults() {
	if c.App.SecretKey == "" {
		c.App.SecretKey = "dev-only-insecure-secret"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.OAuth2.Issuer == "" {
		c.OAuth2.Issuer = "http://localhost:8080"
	}
	if c.OAuth2.AccessTTL == "" {
		c.OAuth2.AccessTTL = "1h"
	}
	if c.OAuth2.RefreshTokenAge == "" {
		c.OAuth2.RefreshTokenAge = "720h" // 30 días
	}
	if c.OAuth2.AuthCodeTTL == "" {
		c.OAuth2.AuthCodeTTL = "5m"
	}
	if c.OAuth2.LoginURL == "" {
		c.OAuth2.LoginURL = "/login"
	}
	if c.Keys.ValidityPeriod == "" {
		c.Keys.ValidityPeriod = "720h"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "sessionid"
	}
}

// AccessTTL devuelve la duración parseada (fallback 1h).
func (c *Config) AccessTTL() time.Duration { return parseDur(c.OAuth2.AccessTTL, time.Hour) }

// RefreshTokenAge devuelve la edad máxima de refresh tokens (fallback 30d).
func (c *Config) RefreshTokenAge() time.Duration {
	return parseDur(c.OAuth2.RefreshTokenAge, 720*time.Hour)
}

// AuthCodeTTL devuelve el TTL lógico de authorization codes (fallback 5m).
func (c *Config) AuthCodeTTL() time.Duration { return parseDur(c.OAuth2.AuthCodeTTL, 5*time.Minute) }

// KeyValidityPeriod devuelve el periodo de validez de claves (fallback 30d).
func (c *Config) KeyValidityPeriod() time.Duration {
	return parseDur(c.Keys.ValidityPeriod, 720*time.Hour)
}

func parseDur(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func setStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
