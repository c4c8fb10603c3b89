package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"codenetic/internal/shared/config"
	"codenetic/internal/shared/logger"
	"codenetic/internal/shared/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Environment)
	if err != nil {
		return err
	}
	defer log.Sync()

	onLambda := runningOnLambda()

	if cfg.Telemetry.Enabled {
		tcfg := telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Log.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		}
		if onLambda {
			tcfg.MetricsPort = ""
		}
		shutdown, err := telemetry.Init(context.Background(), tcfg, log)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				log.Error("Telemetry shutdown failed", zap.Error(err))
			}
		}()
	}

	deps, err := NewDependencies(cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	handler := SetupRoutes(deps, cfg, log)

	if onLambda {
		log.Info("Starting Lambda handler")
		startLambda(handler)
		return nil
	}

	servers := StartServers(NewServerConfigFromConfig(handler, cfg), log)

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("Received signal", zap.String("signal", sig.String()))
	case err := <-servers.Errs:
		GracefulShutdown(servers, 30*time.Second, log)
		return err
	}

	GracefulShutdown(servers, 30*time.Second, log)
	return nil
}
