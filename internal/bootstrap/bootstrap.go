// Package bootstrap cablea las dependencias del servidor: store, cache,
// claves, servicio OAuth2 y router HTTP.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/janus/internal/cache"
	cachemem "github.com/dropDatabas3/janus/internal/cache/memory"
	cacheredis "github.com/dropDatabas3/janus/internal/cache/redis"
	"github.com/dropDatabas3/janus/internal/clients"
	"github.com/dropDatabas3/janus/internal/config"
	"github.com/dropDatabas3/janus/internal/directory"
	dirpg "github.com/dropDatabas3/janus/internal/directory/pg"
	janushttp "github.com/dropDatabas3/janus/internal/http"
	"github.com/dropDatabas3/janus/internal/jwt"
	"github.com/dropDatabas3/janus/internal/keys"
	"github.com/dropDatabas3/janus/internal/oauth2"
	"github.com/dropDatabas3/janus/internal/observability/logger"
	"github.com/dropDatabas3/janus/internal/sessions"
	"github.com/dropDatabas3/janus/internal/store"
	"github.com/dropDatabas3/janus/internal/store/core"
	storepg "github.com/dropDatabas3/janus/internal/store/pg"
)

// App es el grafo de dependencias ya cableado.
type App struct {
	Config   *config.Config
	Store    core.Store
	Cache    cache.Cache
	Keys     *keys.Service
	Registry *clients.Registry
	Service  *oauth2.Service
	Sessions *sessions.Store
	Router   http.Handler
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: store: %w", err)
	}

	c, err := buildCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: cache: %w", err)
	}

	var dir interface {
		directory.Directory
		directory.RoleResolver
	}
	var poolFn func() *pgxpool.Pool
	if pgStore, ok := st.(*storepg.Store); ok {
		d := dirpg.New(pgStore.Pool())
		dir = d
		poolFn = pgStore.Pool
	} else {
		// driver memory: directorio en memoria, pensado para dev y tests
		dir = directory.NewFake()
	}

	ks := keys.NewService(st, c, cfg.KeyValidityPeriod())
	codec := jwt.NewCodec(ks)
	registry := clients.NewRegistry(st, c)
	svc := oauth2.NewService(cfg, registry, st, codec, dir, dir)
	sess := sessions.NewStore(c, cfg.Session.CookieName, 24*time.Hour)

	metrics := janushttp.RegisterMetrics(janushttp.MetricsConfig{Pool: poolFn})
	router := janushttp.NewRouter(janushttp.Deps{
		Config:   cfg,
		Service:  svc,
		Keys:     ks,
		Registry: registry,
		Sessions: sess,
		Store:    st,
		Metrics:  metrics,
	})

	return &App{
		Config:   cfg,
		Store:    st,
		Cache:    c,
		Keys:     ks,
		Registry: registry,
		Service:  svc,
		Sessions: sess,
		Router:   router,
	}, nil
}

func buildCache(cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Kind {
	case "redis":
		return cacheredis.New(cfg.Cache.Redis.Addr, cfg.Cache.Redis.DB, cfg.Cache.Redis.Prefix), nil
	case "memory", "":
		ttl := 5 * time.Minute
		if d, err := time.ParseDuration(cfg.Cache.Memory.DefaultTTL); err == nil && d > 0 {
			ttl = d
		}
		return cachemem.New(ttl), nil
	default:
		return nil, fmt.Errorf("cache kind no soportado: %q", cfg.Cache.Kind)
	}
}

func (a *App) Close() {
	a.Store.Close()
	_ = logger.Sync()
}

// ClearExpiredTokens purga codes más viejos que el TTL lógico y bearer
// tokens (con sus refresh asociados) más viejos que la edad máxima de
// refresh.
func (a *App) ClearExpiredTokens(ctx context.Context) (int64, error) {
	now := time.Now()
	return a.Store.DeleteExpiredTokens(ctx,
		now.Add(-a.Config.AuthCodeTTL()),
		now.Add(-a.Config.RefreshTokenAge()),
	)
}

// RunTokenReaper corre la purga periódica hasta que el contexto muera. La
// expiración de codes es lógica: el reaper es quien los saca de la tabla.
func (a *App) RunTokenReaper(ctx context.Context) error {
	log := logger.Named("reaper")
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := a.ClearExpiredTokens(ctx)
			if err != nil {
				log.Warn("purga de tokens falló", logger.Err(err))
				continue
			}
			if n > 0 {
				log.Info("tokens purgados", logger.Int("rows", int(n)))
			}
		}
	}
}
