package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"pitwall/config"
	"pitwall/db"
	phttp "pitwall/http"
	"pitwall/logging"
	"pitwall/monitoring"
	"pitwall/predict"
)

func main() {
	cmd := &cli.Command{
		Name:  "pitwall",
		Usage: "Serve pit stop and lap time predictions over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to the YAML config file",
				Value:   "config.yaml",
				Sources: cli.EnvVars("PITWALL_CONFIG"),
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "override http.port from the config",
			},
			&cli.StringFlag{
				Name:  "model-dir",
				Usage: "override models.dir from the config",
			},
		},
		Action: serve,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	// 1. Load config
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	if port := int(cmd.Int("port")); port > 0 {
		cfg.HTTP.Port = port
	}
	if dir := cmd.String("model-dir"); dir != "" {
		cfg.Models.Dir = dir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logger.Sync()

	// 2. Load models
	metrics := monitoring.NewMetricsCollector()
	opts := []predict.Option{predict.WithLogger(logger), predict.WithMetrics(metrics)}

	if cfg.Database.RecordPredictions {
		store, err := db.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, predict.WithRecorder(store))
		logger.Info("recording predictions", zap.String("driver", cfg.Database.Driver))
	}

	svc, err := predict.Load(cfg.Models.Dir, opts...)
	if err != nil {
		logger.Warn("starting with missing models; affected endpoints return 503", zap.Error(err))
	}

	// 3. Start HTTP server
	server := phttp.NewServer(phttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTP.Timeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
	}, svc, metrics, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 4. Handle graceful shutdown
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
	return nil
}
