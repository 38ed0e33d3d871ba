package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/erazemk/makerledger/internal/api"
	"github.com/erazemk/makerledger/internal/bom"
	"github.com/erazemk/makerledger/internal/clients/catalog"
	"github.com/erazemk/makerledger/internal/clients/commerce"
	"github.com/erazemk/makerledger/internal/clients/projects"
	"github.com/erazemk/makerledger/internal/config"
	"github.com/erazemk/makerledger/internal/db"
	"github.com/erazemk/makerledger/internal/ledger"
	"github.com/erazemk/makerledger/internal/memstore"
	"github.com/erazemk/makerledger/internal/store"
	"github.com/erazemk/makerledger/internal/telemetry"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fs := flag.NewFlagSet("makerspace", flag.ContinueOnError)

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "")
	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "")

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "")
	fs.StringVar(&cfg.Addr, "a", cfg.Addr, "")

	fs.StringVar(&cfg.AdminUser, "user", cfg.AdminUser, "")
	fs.StringVar(&cfg.AdminUser, "u", cfg.AdminUser, "")

	fs.StringVar(&cfg.LogPath, "log", cfg.LogPath, "")
	fs.StringVar(&cfg.LogPath, "l", cfg.LogPath, "")

	fs.StringVar(&cfg.Store, "store", cfg.Store, "")
	fs.StringVar(&cfg.Store, "s", cfg.Store, "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: makerspace [flags]

Flags:
  -d, -db <path>          SQLite database path (default: makerledger.sqlite3)
  -a, -addr <host:port>   listen address (default: :8080)
  -u, -user <name>        super admin username on first run (default: Admin)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -s, -store <backend>    inventory backend: sqlite or memory (default: sqlite)
  -h, -help               show this help and exit

Every flag can also be set through MAKERSPACE_* environment variables or a
.env file in the working directory.
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	closeLog, err := setupLogger(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg); err != nil {
		slog.Error("fatal", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx := context.Background()

	// Quantities leave the service as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			slog.Error("flushing traces", "error", err)
		}
	}()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	slog.Info("database ready", "path", cfg.DBPath)

	password, err := bootstrapAdmin(ctx, database, cfg.AdminUser)
	if err != nil {
		return err
	}
	if password != "" {
		printBootstrapResult(cfg.DBPath, cfg.AdminUser, password)
	}

	if n, err := store.PruneRevokedTokens(ctx, database, time.Now().UTC()); err != nil {
		return err
	} else if n > 0 {
		slog.Info("pruned expired token revocations", "count", n)
	}

	// Load JWT secret from database (auto-generated on first run).
	jwtSecret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		return fmt.Errorf("getting jwt secret: %w", err)
	}

	l, images := inventoryBackend(cfg.Store, database)
	slog.Info("inventory backend ready", "store", cfg.Store)

	mapper, closeCache := skuMapper(ctx, cfg)
	defer closeCache()

	checkCollaborators(cfg)
	exports := &bom.Service{
		Projects: projects.New(cfg.Projects.BaseURL, cfg.Projects.Token, cfg.Projects.Timeout),
		Mapper:   mapper,
		Executor: &bom.Executor{
			Cart:        commerce.New(cfg.Commerce.BaseURL, cfg.Commerce.Token, cfg.Commerce.Timeout),
			Concurrency: cfg.ExportConcurrency,
			ItemTimeout: cfg.ExportItemTimeout,
		},
	}

	router := api.NewRouter(api.Deps{
		DB:                 database,
		JWTSecret:          jwtSecret,
		Revocations:        store.NewRevocations(database),
		Accounts:           store.NewAccounts(database),
		Ledger:             l,
		Images:             images,
		BOM:                exports,
		DuplicateThreshold: cfg.DuplicateThreshold,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           telemetry.Middleware(api.LoggingMiddleware(router)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}

// inventoryBackend returns the ledger and photo store for the configured
// backend. Accounts and tokens always live in SQLite.
func inventoryBackend(backend string, database *sqlx.DB) (*ledger.Ledger, api.ImageStore) {
	if backend == config.StoreMemory {
		ms := memstore.New()
		return ledger.New(ms), memstore.NewImages(ms)
	}
	return ledger.New(store.NewItems(database)), store.NewSQLImages(database)
}

// skuMapper returns the catalog client, wrapped in a Redis cache when one is
// configured and reachable.
func skuMapper(ctx context.Context, cfg config.Config) (bom.SKUMapper, func()) {
	client := catalog.New(cfg.Catalog.BaseURL, cfg.Catalog.Token, cfg.Catalog.Timeout)
	if cfg.RedisAddr == "" {
		return client, func() {}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rdb, err := catalog.NewRedis(pingCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		slog.Warn("sku cache disabled, redis unreachable", "addr", cfg.RedisAddr, "error", err)
		return client, func() {}
	}

	slog.Info("sku cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.SKUCacheTTL)
	return catalog.NewCachedMapper(client, rdb, cfg.SKUCacheTTL), func() { rdb.Close() }
}

func checkCollaborators(cfg config.Config) {
	for name, svc := range map[string]config.ServiceConfig{
		"projects": cfg.Projects,
		"catalog":  cfg.Catalog,
		"commerce": cfg.Commerce,
	} {
		if svc.BaseURL == "" {
			slog.Warn("collaborator not configured, bom export calls will fail", "service", name)
		}
	}
}
