// Command lockr-devserver runs the reference lockr auth and vault service for
// local development.
//
// It connects to REDIS_ADDR when set and otherwise starts an embedded
// miniredis, so all state is lost on exit.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/lockr/internal/devserver"
	"github.com/MrEthical07/lockr/internal/env"
	"github.com/MrEthical07/lockr/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		addr      = flag.String("addr", env.String("LOCKR_DEV_ADDR", "127.0.0.1:3000"), "listen address")
		redisAddr = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix    = flag.String("prefix", env.String("LOCKR_API_PREFIX", "/api"), "route prefix")
		logFormat = flag.String("log-format", env.String("LOCKR_LOG_FORMAT", "json"), "json or text")
	)
	flag.Parse()

	log := logging.New(os.Stderr, logging.Format(*logFormat), env.String("LOCKR_LOG_LEVEL", "info"))
	slog.SetDefault(log)

	client, cleanup, err := openRedis(*redisAddr, log)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := devserver.DefaultConfig()
	cfg.Prefix = *prefix
	cfg.SecureCookie = env.Bool("LOCKR_DEV_SECURE_COOKIE", false)
	cfg.AccessTTL = env.Duration("LOCKR_DEV_ACCESS_TTL", cfg.AccessTTL)
	cfg.RefreshTTL = env.Duration("LOCKR_DEV_REFRESH_TTL", cfg.RefreshTTL)
	cfg.Logger = log
	cfg.SigningKey, err = signingKey(log)
	if err != nil {
		return err
	}

	srv, err := devserver.New(client, cfg)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("devserver listening", "addr", *addr, "prefix", cfg.Prefix)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("devserver stopped")
	return nil
}

func openRedis(addr string, log *slog.Logger) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		if err := client.Ping(context.Background()).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", addr, err)
		}
		log.Info("using redis", "addr", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	log.Warn("using embedded miniredis; state is not persisted", "addr", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// signingKey reads LOCKR_DEV_SIGNING_KEY or generates a per-process key, which
// invalidates every session on restart.
func signingKey(log *slog.Logger) ([]byte, error) {
	if k := env.String("LOCKR_DEV_SIGNING_KEY", ""); k != "" {
		if len(k) < 32 {
			return nil, errors.New("LOCKR_DEV_SIGNING_KEY must be at least 32 bytes")
		}
		return []byte(k), nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	log.Warn("LOCKR_DEV_SIGNING_KEY not set; using an ephemeral key")
	return key, nil
}
