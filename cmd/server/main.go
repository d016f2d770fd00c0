package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guild-ranker/internal/app"
	"guild-ranker/internal/config"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	bootstrap, cleanup, err := app.Bootstrap(cfg)
	if err != nil {
		logrus.Fatalf("failed to bootstrap app: %v", err)
	}
	log := bootstrap.Container.Log
	defer func() {
		if err := cleanup(); err != nil {
			log.WithError(err).Warn("[Server] cleanup error")
		}
	}()

	migCtx, migCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	err = bootstrap.Container.Migrate(migCtx)
	migCancel()
	if err != nil {
		log.WithError(err).Error("[Server] migration failed")
		return
	}

	addr, err := app.ListenAddr(cfg.App.HTTPPort)
	if err != nil {
		log.WithError(err).Error("[Server] invalid HTTP port")
		return
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("[Server] listening")
		errCh <- bootstrap.Fiber.Listen(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("[Server] server error")
		}
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("[Server] shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := bootstrap.Fiber.ShutdownWithContext(ctx); err != nil {
			log.WithError(err).Warn("[Server] shutdown error")
		}
	}
}
