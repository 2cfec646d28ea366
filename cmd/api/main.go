package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"salesdeck.io/internal/account"
	"salesdeck.io/internal/archive"
	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/call"
	"salesdeck.io/internal/config"
	"salesdeck.io/internal/event"
	"salesdeck.io/internal/httpapi"
	"salesdeck.io/internal/idempotency"
	"salesdeck.io/internal/lead"
	"salesdeck.io/internal/llm"
	"salesdeck.io/internal/migrate"
	"salesdeck.io/internal/obs"
	"salesdeck.io/internal/org"
	"salesdeck.io/internal/outbound"
	"salesdeck.io/internal/prompt"
	"salesdeck.io/internal/reporting"
	"salesdeck.io/internal/store/pg"
	"salesdeck.io/internal/voice"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults to $SALESDECK_CONFIG)")
	migrateOnStart := flag.Bool("migrate", false, "apply pending migrations before serving")
	flag.Parse()

	if err := run(*configPath, *migrateOnStart); err != nil {
		fmt.Fprintf(os.Stderr, "salesdeck-api: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, migrateOnStart bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := obs.NewLogger(cfg.Log.Level, os.Stdout)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	obs.SetLogger(logger.With(zap.String("service", "salesdeck-api"), zap.String("env", cfg.Env)))
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := pg.Open(cfg.Database.DSN, pg.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if migrateOnStart {
		if err := migrate.NewManager(store.DB()).Up(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	ready := httpapi.ReadyProbe{DB: store.DB()}
	var dedupe idempotency.Claimer = idempotency.NewMemory()
	if cfg.Redis.URL != "" {
		claimer, client, err := idempotency.NewRedisFromURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer client.Close()
		dedupe = claimer
		ready.Redis = claimer
	} else {
		obs.Logger().Warn("redis not configured, webhook dedupe is process-local")
	}

	codec, err := auth.NewCodec(cfg.Auth.Secret,
		auth.WithAlgorithm(cfg.Auth.Algorithm),
		auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return err
	}
	guard, err := auth.NewGuard(codec, store, auth.DefaultMatrix(),
		auth.WithDecisionObserver(func(resource auth.Resource, outcome string) {
			obs.ObserveGateDecision(string(resource), outcome)
		}))
	if err != nil {
		return err
	}

	platform, err := voice.New(
		outbound.New("retell", cfg.Voice.BaseURL,
			outbound.WithBearer(cfg.Voice.APIKey),
			outbound.WithTimeout(cfg.Voice.Timeout)),
		voice.Options{VoiceID: cfg.Voice.VoiceID, Language: cfg.Voice.Language, WebhookURL: cfg.Voice.WebhookURL})
	if err != nil {
		return err
	}
	reporter, err := llm.New(
		outbound.New("openai", cfg.LLM.BaseURL,
			outbound.WithBearer(cfg.LLM.APIKey),
			outbound.WithTimeout(cfg.LLM.Timeout)),
		cfg.LLM.Model)
	if err != nil {
		return err
	}
	var archiver call.Archiver
	if cfg.Archive.Bucket != "" {
		s3, err := archive.Open(ctx, archive.Options{
			Bucket:          cfg.Archive.Bucket,
			Prefix:          cfg.Archive.Prefix,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			UsePathStyle:    cfg.Archive.UsePathStyle,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		})
		if err != nil {
			return err
		}
		archiver = s3
	}

	events := event.NewService(store)
	orgs := org.NewService(store, cfg.Invites.TTL)
	leads := lead.NewService(store, orgs, platform, events)
	prompts := prompt.NewService(store, orgs)
	calls := call.NewService(call.Deps{
		Store:     store,
		Leads:     leads,
		Prompts:   prompts,
		Branches:  orgs,
		Platform:  platform,
		Events:    events,
		Reporter:  reporter,
		Dedupe:    dedupe,
		DedupeTTL: cfg.Redis.DedupeTTL,
		Archive:   archiver,
	})

	sweeper, err := org.NewSweeper(orgs, cfg.Invites.SweepSchedule)
	if err != nil {
		return fmt.Errorf("invite sweeper: %w", err)
	}
	sweeper.Start()
	defer func() { <-sweeper.Stop().Done() }()

	trusted, err := cfg.HTTP.TrustedProxyPrefixes()
	if err != nil {
		return err
	}
	api := httpapi.New(httpapi.Deps{
		Guard:    guard,
		Accounts: account.NewService(store, guard, cfg.Auth.AccessTTL, cfg.Auth.BcryptCost),
		Orgs:     orgs,
		Leads:    leads,
		Prompts:  prompts,
		Calls:    calls,
		Metrics:  reporting.NewService(store, orgs),
		Ready:    ready,
	}, httpapi.Options{
		Version:        version,
		WebhookSecret:  cfg.Voice.WebhookSecret,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
		TrustedProxies: trusted,
	})
	go api.Limiter().Run(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, httpapi.NewHealthServer(ready))
	grpcLis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	errc := make(chan error, 2)
	go func() {
		obs.Logger().Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		obs.Logger().Info("grpc health listening", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errc <- fmt.Errorf("grpc: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		obs.Logger().Info("shutting down")
	case err = <-errc:
		obs.Logger().Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		obs.Logger().Warn("http shutdown", zap.Error(serr))
	}
	grpcServer.GracefulStop()
	obs.Logger().Info("stopped")
	return err
}
