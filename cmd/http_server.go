package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/juju/clock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/frahmantamala/sss-portal/internal"
	"github.com/frahmantamala/sss-portal/internal/activity"
	activitypg "github.com/frahmantamala/sss-portal/internal/activity/postgres"
	"github.com/frahmantamala/sss-portal/internal/auth"
	authpg "github.com/frahmantamala/sss-portal/internal/auth/postgres"
	"github.com/frahmantamala/sss-portal/internal/guard"
	"github.com/frahmantamala/sss-portal/internal/obs"
	"github.com/frahmantamala/sss-portal/internal/profile"
	profilepg "github.com/frahmantamala/sss-portal/internal/profile/postgres"
	"github.com/frahmantamala/sss-portal/internal/session"
	"github.com/frahmantamala/sss-portal/internal/transport"
	"github.com/frahmantamala/sss-portal/internal/transport/rest"
	"github.com/frahmantamala/sss-portal/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startHTTPServer(cmd.Context())
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Router   *chi.Mux
	Sessions *session.Registry
	Metrics  *obs.Metrics
	Logger   *slog.Logger
}

func startHTTPServer(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	deps, err := initializeDependencies()
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.close()

	setupRoutes(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps.Logger.Info("Starting HTTP server", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		deps.Logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), deps.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	deps.Logger.Info("Server stopped")
	return nil
}

func setupRoutes(deps *Dependencies) {
	cfg := deps.Config
	clk := clock.WallClock
	base := transport.NewBaseHandler(deps.Logger)

	audit := activity.NewLogger(activitypg.NewRepository(deps.DB), deps.Logger)
	store := profilepg.NewStore(deps.Gorm)
	directory := authpg.NewDirectory(deps.Gorm, cfg.Security.BCryptCost)

	deps.Sessions = session.NewRegistry(session.ClientConfig{
		Directory:      directory,
		Tokens:         auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.TokenTTL, clk),
		Store:          store,
		Audit:          audit,
		Clock:          clk,
		Logger:         deps.Logger,
		Metrics:        deps.Metrics,
		IdleTimeout:    cfg.Session.IdleTimeout,
		ErrorTTL:       cfg.Session.ErrorTTL,
		RequireProfile: !cfg.Session.AutoProvision,
		LoginRate:      rate.Limit(cfg.Session.LoginRatePerMinute / 60),
		LoginBurst:     cfg.Session.LoginBurst,
	})

	sessionHandler := session.NewHandler(base, deps.Sessions, guard.NewRoutes(), deps.Metrics)
	sessionHandler.SecureCookie = cfg.Security.SecureCookies

	profileService := profile.NewService(store, directory, audit, clk, deps.Logger)

	rest.RegisterAllRoutes(deps.Router, rest.Routes{
		DB:             deps.DB.DB,
		Sessions:       deps.Sessions,
		SessionHandler: sessionHandler,
		ProfileHandler: profile.NewHandler(base, profileService),
		Metrics:        deps.Metrics,
		MetricsPath:    cfg.Observability.Metrics.Path,
		AllowedOrigins: cfg.Server.Origins(),
		Logger:         deps.Logger,
	})
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.Configure(os.Stdout, config.Observability.Logging.Format, config.Observability.Logging.Level)

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gdb, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	return &Dependencies{
		Config:  config,
		Logger:  log,
		DB:      db,
		Gorm:    gdb,
		Router:  chi.NewRouter(),
		Metrics: obs.New(config.Observability.Metrics.Enabled),
	}, nil
}

func (d *Dependencies) close() {
	if d.Sessions != nil {
		d.Sessions.Close()
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("Database close error", "error", err)
	}
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm shares the sqlx pool with gorm so both see the same connections.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
}
