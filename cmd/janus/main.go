package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/janus/internal/bootstrap"
	"github.com/dropDatabas3/janus/internal/config"
	janushttp "github.com/dropDatabas3/janus/internal/http"
	"github.com/dropDatabas3/janus/internal/keys"
	"github.com/dropDatabas3/janus/internal/observability/logger"
	storepg "github.com/dropDatabas3/janus/internal/store/pg"
	migrations "github.com/dropDatabas3/janus/migrations/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// sin .env se sigue con el entorno del sistema
		fmt.Fprintln(os.Stderr, "no .env file, using system environment")
	}

	var configPath string

	root := &cobra.Command{
		Use:   "janus",
		Short: "Servidor de autorización OAuth2 / OpenID Connect",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "ruta del YAML de configuración")

	root.AddCommand(
		serveCmd(&configPath),
		rotateKeysCmd(&configPath),
		listKeysCmd(&configPath),
		clearTokensCmd(&configPath),
		migrateCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(configPath string) (*bootstrap.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("cargar config: %w", err)
	}
	logger.Init(logger.Config{
		Env:         cfg.Log.Env,
		Level:       cfg.Log.Level,
		ServiceName: "janus",
	})
	return bootstrap.New(context.Background(), cfg)
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()
			log := logger.Named("serve")

			srv := janushttp.NewServer(app.Config.Server.Addr, app.Router)

			ctx, stop := signal.NotifyContext(context.Background(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("servidor escuchando", logger.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				return app.RunTokenReaper(ctx)
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				log.Info("apagando servidor")
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
}

func rotateKeysCmd(configPath *string) *cobra.Command {
	var alg string
	cmd := &cobra.Command{
		Use:   "rotate-keys",
		Short: "Genera una signing key nueva y aplica la rotación",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			algs := []string{keys.AlgRS256, keys.AlgHS256}
			if alg != "" {
				algs = []string{alg}
			}
			for _, a := range algs {
				k, err := app.Keys.CreateKey(cmd.Context(), a)
				if err != nil {
					return fmt.Errorf("rotar %s: %w", a, err)
				}
				fmt.Printf("%s: nueva key %s\n", a, k.KID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&alg, "alg", "", "rotar solo este algoritmo (RS256|HS256)")
	return cmd
}

func listKeysCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list-keys",
		Short: "Lista las signing keys ACTIVE",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KID\tALG\tDEFAULT\tCREATED")
			for _, alg := range []string{keys.AlgRS256, keys.AlgHS256} {
				list, err := app.Store.ListActiveSigningKeys(cmd.Context(), alg)
				if err != nil {
					return err
				}
				for _, k := range list {
					fmt.Fprintf(tw, "%s\t%s\t%v\t%s\n",
						k.KID, k.Algorithm, k.Default, k.CreatedAt.Format(time.RFC3339))
				}
			}
			return tw.Flush()
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones SQL pendientes",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			pgStore, ok := app.Store.(*storepg.Store)
			if !ok {
				return fmt.Errorf("migrate requiere el driver postgres")
			}
			return pgStore.Migrate(cmd.Context(), migrations.FS)
		},
	}
}

func clearTokensCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleartokens",
		Short: "Purga authorization codes y bearer tokens vencidos",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := app.ClearExpiredTokens(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%d filas purgadas\n", n)
			return nil
		},
	}
}
