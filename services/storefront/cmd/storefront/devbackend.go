package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"heritagecoffee/internal/ratelimit"
	"heritagecoffee/services/storefront/internal/catalog"
	"heritagecoffee/services/storefront/internal/devbackend"
)

func runDevBackend(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("dev-backend", e.out)
	port := fs.String("port", e.cfg.DevBackend.Port, "listen port")
	if err := fs.Parse(args); err != nil {
		return err
	}

	limiter, closeLimiter, err := authLimiter(e)
	if err != nil {
		return err
	}
	defer closeLimiter()

	var users []devbackend.SeedUser
	if e.cfg.DevBackend.DemoEmail != "" && e.cfg.DevBackend.DemoPassword != "" {
		users = append(users, devbackend.SeedUser{
			FirstName:    "Demo",
			LastName:     "Heritage",
			EmailAddress: e.cfg.DevBackend.DemoEmail,
			Password:     e.cfg.DevBackend.DemoPassword,
		})
	}

	server, err := devbackend.New(devbackend.Config{
		Products:    catalog.Dataset(),
		Users:       users,
		Secret:      []byte(e.cfg.DevBackend.TokenSecret),
		TokenTTL:    e.dur.TokenTTL,
		AuthLimiter: limiter,
		Logger:      e.logger,
	})
	if err != nil {
		return fmt.Errorf("dev backend: %w", err)
	}

	srv := &http.Server{
		Addr:         ":" + *port,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		e.logger.Info("dev backend listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.logger.Info("dev backend shutting down")
	return srv.Shutdown(shutdownCtx)
}

// authLimiter prefers Redis so several backend instances share one quota.
func authLimiter(e *env) (ratelimit.Limiter, func(), error) {
	limit := e.cfg.DevBackend.AuthRateLimitPerMinute
	if limit <= 0 {
		return nil, func() {}, nil
	}
	if e.cfg.RedisAddr != "" {
		l, err := ratelimit.NewRedisFixedWindow(e.cfg.RedisAddr, e.cfg.RedisPassword, e.cfg.RedisPrefix+":ratelimit:auth", limit, time.Minute)
		if err != nil {
			return nil, nil, fmt.Errorf("auth rate limiter: %w", err)
		}
		return l, func() { _ = l.Close() }, nil
	}
	l, err := ratelimit.NewMemoryFixedWindow(limit, time.Minute)
	if err != nil {
		return nil, nil, fmt.Errorf("auth rate limiter: %w", err)
	}
	return l, func() {}, nil
}
