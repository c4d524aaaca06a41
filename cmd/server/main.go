package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	_ "go.uber.org/automaxprocs"

	"github.com/Brownie44l1/pancreas-api/internal/app"
	"github.com/Brownie44l1/pancreas-api/internal/cache"
	"github.com/Brownie44l1/pancreas-api/internal/config"
	"github.com/Brownie44l1/pancreas-api/internal/handlers"
	"github.com/Brownie44l1/pancreas-api/internal/logger"
	"github.com/Brownie44l1/pancreas-api/internal/metrics"
	"github.com/Brownie44l1/pancreas-api/internal/server"
	"github.com/Brownie44l1/pancreas-api/internal/storage"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.App.Name, cfg.Log.Level, cfg.Server.Mode); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log.Info().Str("version", Version).Str("git_commit", GitCommit).Msg("starting pancreas-api")

	metrics.Init(cfg.Metrics.Enabled, cfg.Metrics.Address, cfg.App.Name, cfg.App.Env, cfg.Metrics.SamplingRate)
	defer metrics.Close()

	log.Info().Str("model", cfg.Model.Path).Msg("loading model")
	pipeline, err := app.NewPipeline(cfg.Model)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize model")
	}
	defer pipeline.Close()

	store, err := storage.New(cfg.Upload.UploadDir, cfg.Dataset.Dir, cfg.Dataset.SamplesDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}

	handler := handlers.NewHandler(pipeline, store, cache.New(cfg.Cache.SizeMB, cfg.Cache.TTL), handlers.Options{
		MaxUploadSize:  cfg.Upload.MaxSize,
		AllowedTypes:   cfg.Upload.AllowedTypes,
		RequestTimeout: cfg.Server.RequestTimeout,
	})
	router := server.NewRouter(cfg, handler, server.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	})

	log.Info().Strs("classes", pipeline.Labels()).Msg("endpoints: GET /health, POST /predict, POST /predict/image, POST /api/upload")
	log.Info().Msgf("upload test: curl -X POST -F \"image=@scan.jpg\" http://localhost%s/predict/image", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg.Server, router); err != nil {
		log.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}
