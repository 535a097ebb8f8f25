package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"vcgate/internal/audit"
	"vcgate/internal/cache"
	"vcgate/internal/catalog"
	"vcgate/internal/executor"
	"vcgate/internal/governor"
	"vcgate/internal/health"
	"vcgate/internal/identity"
	"vcgate/internal/integrations/n8n"
	"vcgate/internal/integrations/ollama"
	"vcgate/internal/pipeline"
	"vcgate/internal/platform/config"
	"vcgate/internal/platform/httpserver"
	"vcgate/internal/platform/logger"
	"vcgate/internal/platform/metrics"
	platformredis "vcgate/internal/platform/redis"
	"vcgate/internal/policy"
	httptransport "vcgate/internal/transport/http"
	"vcgate/internal/transport/mcpserver"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Log)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	probe := health.New(cfg.Pipeline.MaxConcurrent)

	cat, err := catalog.Default(cfg.Ollama.Enabled)
	if err != nil {
		probe.MarkStartupFailed()
		return err
	}

	verifier := identity.New(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.ClockSkew)

	users, err := loadUsers(cfg.Auth, log)
	if err != nil {
		probe.MarkStartupFailed()
		return err
	}

	pol, err := loadPolicy(cfg.Auth)
	if err != nil {
		probe.MarkStartupFailed()
		return err
	}
	if !cfg.Auth.RBACEnabled {
		log.Warn("RBAC is disabled; every authenticated caller may invoke any operation")
	}

	g, ctx := errgroup.WithContext(ctx)

	cacheStore, err := buildCacheStore(ctx, cfg, log)
	if err != nil {
		probe.MarkStartupFailed()
		return err
	}

	auditStore, err := buildAuditStore(ctx, g, cfg, log)
	if err != nil {
		probe.MarkStartupFailed()
		return err
	}
	recorderOpts := []audit.Option{audit.WithFailureSink(probe)}
	if !cfg.Audit.Enabled {
		recorderOpts = append(recorderOpts, audit.WithDisabled())
	}
	recorder := audit.NewRecorder(auditStore, log, recorderOpts...)

	gov := governor.New(cfg.Pipeline.MaxConcurrent, cfg.Pipeline.QueueWait, cfg.Pipeline.OperationTimeout)

	var exec executor.Executor = executor.NewSeededInventory()
	if cfg.Ollama.Enabled {
		exec = executor.WithAnalysis(exec, ollama.New(cfg.Ollama, log), log)
	}

	pipeOpts := []pipeline.Option{pipeline.WithMetrics(m)}
	if cfg.N8N.Enabled {
		pipeOpts = append(pipeOpts, pipeline.WithNotifier(n8n.New(cfg.N8N, log)))
	}
	pipe := pipeline.New(
		cat, verifier, pol,
		cacheStore, cfg.Cache.TTL,
		gov, recorder, exec,
		probe, log,
		pipeOpts...,
	)

	mcpSrv := mcpserver.New(cfg.Server.Name, cfg.Server.Version, cat, pipe, log)
	mcpHTTP := httpserver.New(cfg.Server.MCPAddr, mcpSrv.StreamableHTTP())

	opsHandler := httptransport.NewHandler(users, verifier, probe, cfg.Auth.TokenTTL, log)
	opsHTTP := httpserver.New(cfg.Server.HTTPAddr, httptransport.NewRouter(opsHandler))

	log.Info("starting vcgate",
		"mcp_addr", cfg.Server.MCPAddr,
		"http_addr", cfg.Server.HTTPAddr,
		"operations", cat.Len(),
		"max_concurrent", cfg.Pipeline.MaxConcurrent,
	)

	g.Go(func() error {
		if err := mcpHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := opsHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mcpErr := mcpHTTP.Shutdown(shutdownCtx)
		opsErr := opsHTTP.Shutdown(shutdownCtx)
		return errors.Join(mcpErr, opsErr)
	})

	err = g.Wait()
	log.Info("vcgate stopped")
	return err
}

func loadUsers(cfg config.Auth, log *slog.Logger) (*identity.InMemoryUserStore, error) {
	if cfg.CredentialsPath != "" {
		return identity.LoadUserFile(cfg.CredentialsPath)
	}
	// Built-in development accounts; set VCGATE_CREDENTIALS_FILE in anything
	// resembling production.
	log.Warn("no credentials file configured, using built-in development accounts")
	store := identity.NewInMemoryUserStore()
	seed := []struct {
		username string
		password string
		roles    []string
	}{
		{"admin", "admin123", []string{"admin"}},
		{"operator", "operator123", []string{"operator"}},
		{"viewer", "viewer123", []string{"viewer"}},
	}
	for _, s := range seed {
		if err := store.PutWithPassword(s.username, s.password, s.roles); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func loadPolicy(cfg config.Auth) (*policy.Snapshot, error) {
	if cfg.PolicyPath != "" {
		return policy.LoadFile(cfg.PolicyPath, cfg.RBACEnabled)
	}
	return policy.NewSnapshot(policy.DefaultRules(), cfg.RBACEnabled)
}

func buildCacheStore(ctx context.Context, cfg config.Config, log *slog.Logger) (cache.Store, error) {
	if cfg.Cache.Backend == "redis" {
		client, err := platformredis.New(cfg.Redis)
		if err != nil {
			return nil, err
		}
		if client == nil {
			return nil, errors.New("cache backend is redis but VCGATE_REDIS_URL is empty")
		}
		log.Info("result cache backend", "backend", "redis")
		return cache.NewRedisStore(client), nil
	}
	store := cache.NewInMemoryStore()
	store.StartSweeper(ctx, time.Minute)
	log.Info("result cache backend", "backend", "memory")
	return store, nil
}

func buildAuditStore(ctx context.Context, g *errgroup.Group, cfg config.Config, log *slog.Logger) (audit.Store, error) {
	if cfg.Audit.Backend == "postgres" {
		pg, err := audit.OpenPostgres(cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		async := audit.NewAsyncStore(pg, 1024, log)
		g.Go(func() error {
			if err := async.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		log.Info("audit backend", "backend", "postgres")
		return async, nil
	}
	log.Info("audit backend", "backend", "memory")
	return audit.NewInMemoryStore(), nil
}
