package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/iTrooz/shadow-gate/internal/animes"
	"github.com/iTrooz/shadow-gate/internal/cache"
	"github.com/iTrooz/shadow-gate/internal/config"
	"github.com/iTrooz/shadow-gate/internal/interceptor"
	"github.com/iTrooz/shadow-gate/internal/logging"
	"github.com/iTrooz/shadow-gate/internal/notify"
	"github.com/iTrooz/shadow-gate/internal/proxy"
)

func main() {
	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	if err := logging.Init(cfg.Log); err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logrus.Fatalf("Server failed: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	storage, err := cache.NewStorage(cfg.Cache.Backend, cfg.Cache.Folder)
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.Close(); err != nil {
			logrus.Errorf("Failed to close cache storage: %v", err)
		}
	}()

	origin, err := cfg.GetOrigin()
	if err != nil {
		return err
	}
	timeout, err := cfg.GetNetworkTimeout()
	if err != nil {
		return err
	}

	alerts := notify.NewRegistry()
	icpt, err := interceptor.New(interceptor.Options{
		CacheName: cfg.Cache.Name,
		Origin:    origin,
		Manifest:  cfg.Manifest,
		Storage:   storage,
		Network:   interceptor.NewNetwork(timeout),
		Mock:      animes.New(cfg.Mock.Prefix, cfg.Mock.Match, alerts),
		Notifier:  alerts,
	})
	if err != nil {
		return err
	}
	// Flush background cache writes before the storage closes
	defer icpt.Wait()

	if err := icpt.Install(ctx); err != nil {
		return err
	}
	if err := icpt.Activate(ctx); err != nil {
		if !errors.Is(err, interceptor.ErrActivationFailed) {
			return err
		}
		logrus.Warnf("Continuing after activation errors: %v", err)
	}

	server, err := proxy.New(cfg, icpt, alerts)
	if err != nil {
		return err
	}
	return server.Start(ctx)
}
