package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"songforge/internal/app"
	"songforge/internal/config"
	"songforge/internal/ratelimit"
	"songforge/internal/server"
	"songforge/internal/sim"
	"songforge/internal/util"
)

func main() {
	cfg, err := config.Load(os.Getenv("SONGFORGE_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	appCore, err := app.New(app.Config{
		DatabaseURL:     cfg.DatabaseURL,
		RedisAddr:       cfg.RedisAddr,
		RedisPassword:   cfg.RedisPassword,
		StartingCredits: cfg.StartingCredits,
		GenerationCost:  cfg.GenerationCost,
		Stagger:         time.Duration(cfg.StaggerMs) * time.Millisecond,
		Sim: sim.Config{
			FailureRate:  cfg.FailureRate,
			BaseInterval: time.Duration(cfg.BaseIntervalMs) * time.Millisecond,
			Jitter:       time.Duration(cfg.JitterMs) * time.Millisecond,
		},
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	limiter, err := newLimiter(cfg)
	if err != nil {
		log.Fatalf("failed to init rate limiter: %v", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		Limiter:        limiter,
		TrustedProxies: trusted,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     httpServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("songforge listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("songforge stopped")
}

func newLimiter(cfg config.FileConfig) (ratelimit.Limiter, error) {
	window := time.Duration(cfg.SubmitWindowSeconds) * time.Second
	if cfg.RedisAddr != "" {
		return ratelimit.NewRedisFixedWindow(cfg.RedisAddr, cfg.RedisPassword, "songforge:ratelimit", cfg.SubmitLimit, window)
	}
	return ratelimit.NewMemoryFixedWindow(cfg.SubmitLimit, window)
}
