package main

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/fedgate/internal/cache"
	memcache "github.com/dropDatabas3/fedgate/internal/cache/memory"
	redcache "github.com/dropDatabas3/fedgate/internal/cache/redis"
	"github.com/dropDatabas3/fedgate/internal/config"
	httpserver "github.com/dropDatabas3/fedgate/internal/http"
	authctrl "github.com/dropDatabas3/fedgate/internal/http/controllers/auth"
	authsvc "github.com/dropDatabas3/fedgate/internal/http/services/auth"
	"github.com/dropDatabas3/fedgate/internal/identity"
	"github.com/dropDatabas3/fedgate/internal/oauth/microsoft"
	"github.com/dropDatabas3/fedgate/internal/observability/logger"
	"github.com/dropDatabas3/fedgate/internal/session"
	migrations "github.com/dropDatabas3/fedgate/migrations/postgres"
)

func main() {
	// .env is optional; the environment always wins over config.yaml.
	_ = godotenv.Load()

	var cfgPath string

	root := &cobra.Command{
		Use:          "fedgate",
		Short:        "Federated login gateway",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", envOr("FEDGATE_CONFIG", "config.yaml"), "path to config.yaml")

	root.AddCommand(serveCmd(&cfgPath), migrateCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}

			logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
			defer func() { _ = logger.Sync() }()
			log := logger.Named("main")

			kv, cleanupCache, err := buildCache(cfg)
			if err != nil {
				return err
			}
			defer cleanupCache()

			store, cleanupStore, err := buildStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanupStore()

			client, err := buildClient(cfg)
			if err != nil {
				return err
			}

			var provisioner identity.Provisioner
			if cfg.Provisioning.AutoProvision {
				name := identity.ProvisionerDefault
				if cfg.Provisioning.RegisterInactiveAsAdmin {
					name = identity.ProvisionerInactiveAdmin
				}
				if provisioner, err = identity.NewProvisioner(name); err != nil {
					return err
				}
				log.Info("auto provisioning enabled", logger.String("provisioner", name))
			}

			sessions := session.NewStore(kv, cfg.Session.TTL, cfg.Session.LoginTTL)
			backend := authsvc.NewBackend(client, identity.NewLinker(store, provisioner), sessions)
			controller := authctrl.NewController(backend, sessions, client, authctrl.CookieConfig{
				Name:     cfg.Session.CookieName,
				Domain:   cfg.Session.Domain,
				Secure:   cfg.Session.Secure,
				SameSite: parseSameSite(cfg.Session.SameSite),
			})

			srv := httpserver.NewServer(cfg.Server.Addr, httpserver.NewRouter(controller))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(srv.Start)
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				log.Info("shutting down")
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
}

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != "postgres" {
				return fmt.Errorf("migrate requires storage.driver=postgres, have %q", cfg.Storage.Driver)
			}

			logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
			defer func() { _ = logger.Sync() }()

			pool, err := newPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := migrations.Apply(cmd.Context(), pool); err != nil {
				return err
			}
			logger.Named("migrate").Info("schema applied")
			return nil
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Run on env alone when no config file is present.
		path = ""
	}
	return config.Load(path)
}

func buildCache(cfg *config.Config) (cache.Cache, func(), error) {
	switch cfg.Cache.Kind {
	case "redis":
		r := redcache.New(cfg.Cache.Redis.Addr, cfg.Cache.Redis.DB, cfg.Cache.Redis.Prefix)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Ping(pingCtx); err != nil {
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return r, func() { _ = r.Close() }, nil
	case "memory":
		return memcache.New(cfg.Cache.Memory.DefaultTTL), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("cache.kind: unknown kind %q", cfg.Cache.Kind)
	}
}

func buildStore(ctx context.Context, cfg *config.Config) (identity.Store, func(), error) {
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := newPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return identity.NewPGStore(pool), pool.Close, nil
	case "memory":
		return identity.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
}

func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}
	pc.MaxConns = int32(cfg.Storage.Postgres.MaxConns)
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func buildClient(cfg *config.Config) (*microsoft.Client, error) {
	scopeSet := microsoft.ScopesExtended
	if cfg.Provider.RequiredScopeSet == config.ScopeSetMinimal {
		scopeSet = microsoft.ScopesMinimal
	}
	meta := microsoft.NewMetadataCache(cfg.Provider.Issuer, cfg.Provider.DiscoveryTTL, nil)
	return microsoft.NewClient(microsoft.Config{
		ClientID:             cfg.Provider.ClientID,
		ClientSecret:         cfg.Provider.ClientSecret,
		ScopeSet:             scopeSet,
		AllowedRedirectHosts: cfg.Provider.AllowedRedirectHosts,
	}, meta)
}

func parseSameSite(v string) stdhttp.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return stdhttp.SameSiteStrictMode
	case "none":
		return stdhttp.SameSiteNoneMode
	default:
		return stdhttp.SameSiteLaxMode
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
