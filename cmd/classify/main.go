package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/Brownie44l1/pancreas-api/internal/app"
	"github.com/Brownie44l1/pancreas-api/internal/config"
	"github.com/Brownie44l1/pancreas-api/internal/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	modelPath := flag.String("model", "", "Model artifact (.onnx or .json), overrides model.path")
	imagePath := flag.String("image", "", "Path to input image")
	flag.Parse()

	if *imagePath == "" {
		fmt.Fprintln(os.Stderr, "Please provide an image path using -image flag")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *modelPath != "" {
		cfg.Model.Path = *modelPath
	}
	if err := logger.Init(cfg.App.Name, "warn", cfg.Server.Mode); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	pipeline, err := app.NewPipeline(cfg.Model)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize model")
	}
	defer pipeline.Close()

	raw, err := os.ReadFile(*imagePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read image")
	}

	result, err := pipeline.ClassifyImage(raw)
	if err != nil {
		log.Fatal().Err(err).Str("image", *imagePath).Msg("classification failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatal().Err(err).Msg("failed to write result")
	}
}
