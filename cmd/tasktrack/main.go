package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/gosuda/tasktrack/internal/auth"
	"github.com/gosuda/tasktrack/internal/clock"
	"github.com/gosuda/tasktrack/internal/config"
	"github.com/gosuda/tasktrack/internal/domain"
	"github.com/gosuda/tasktrack/internal/idgen"
	"github.com/gosuda/tasktrack/internal/metrics"
	"github.com/gosuda/tasktrack/internal/server"
	"github.com/gosuda/tasktrack/internal/server/middleware"
	"github.com/gosuda/tasktrack/internal/service"
	"github.com/gosuda/tasktrack/internal/store/memory"
	"github.com/gosuda/tasktrack/internal/store/postgres"
	redisstore "github.com/gosuda/tasktrack/internal/store/redis"
	"github.com/gosuda/tasktrack/internal/store/sqlite"
)

// store is what every repository backend provides.
type store interface {
	Tasks() domain.TaskRepository
	Users() domain.UserRepository
	Close()
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	flags := pflag.NewFlagSet("tasktrack", pflag.ContinueOnError)
	addr := flags.String("addr", "", "listen address (overrides TASKTRACK_SERVER_ADDR)")
	backend := flags.String("storage", "", "storage backend: memory, sqlite or postgres (overrides TASKTRACK_STORAGE)")
	logLevel := flags.String("log-level", "", "log level (overrides TASKTRACK_LOG_LEVEL)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	setupLogging(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc := service.New(st.Tasks(), st.Users(), clock.Real(), idgen.UUID(),
		service.WithStorageTimeout(cfg.Storage.Timeout),
		service.WithRecorder(m),
	)

	if cfg.BootstrapEmail != "" {
		u, err := svc.Bootstrap(ctx, cfg.BootstrapEmail)
		if err != nil {
			return fmt.Errorf("bootstrap manager: %w", err)
		}
		log.Info().Str("user_id", u.ID.String()).Str("email", u.Email).Str("role", string(u.Role)).Msg("bootstrap manager ready")
	}

	deps := server.Deps{Tasks: svc, Metrics: m}
	if cfg.JWT.Secret != "" {
		deps.Auth = auth.NewService(st.Users(), cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	}

	if cfg.RateLimit.Requests > 0 {
		if cfg.Redis.Addr != "" {
			lim, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.RateLimit.Requests, cfg.RateLimit.Window)
			if err != nil {
				return err
			}
			defer func() { _ = lim.Close() }()
			deps.Limiter, deps.LimiterBackend = lim, "redis"
		} else {
			deps.Limiter = middleware.NewLocalLimiter(ctx, cfg.RateLimit.Requests, cfg.RateLimit.Window)
			deps.LimiterBackend = "local"
		}
	}

	srv := server.New(cfg, deps)

	go func() {
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info().Msg("stopped")
	return nil
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		st, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.SQLite.Path).Msg("using sqlite storage")
		return st, nil

	case config.BackendPostgres:
		if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
			return nil, fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
		}
		st, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		log.Info().Str("host", cfg.Database.Host).Msg("using postgres storage")
		return st, nil

	default:
		log.Warn().Msg("using in-memory storage; data is lost on restart")
		return memory.New(), nil
	}
}
