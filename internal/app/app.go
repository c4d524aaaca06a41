package app

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Brownie44l1/pancreas-api/internal/config"
	"github.com/Brownie44l1/pancreas-api/internal/model"
)

// ResolveLabels prefers the classes recorded in the model metadata sidecar and
// falls back to model.classes from the config.
func ResolveLabels(cfg config.ModelConfig) (model.ClassLabels, error) {
	if cfg.MetadataPath != "" {
		metadata, err := model.LoadMetadata(cfg.MetadataPath)
		if err != nil {
			return nil, &model.ModelLoadError{Path: cfg.MetadataPath, Err: err}
		}
		if len(metadata.Classes) > 0 {
			return model.ClassLabels(metadata.Classes), nil
		}
		log.Warn().Str("metadata", cfg.MetadataPath).Msg("metadata has no classes, using configured labels")
	}
	if len(cfg.Classes) == 0 {
		return nil, &model.ModelLoadError{Path: cfg.Path, Err: fmt.Errorf("no class labels configured")}
	}
	return model.ClassLabels(cfg.Classes), nil
}

// NewPipeline loads the model named by cfg. Any error is a *model.ModelLoadError
// and should stop the process.
func NewPipeline(cfg config.ModelConfig) (*model.Pipeline, error) {
	labels, err := ResolveLabels(cfg)
	if err != nil {
		return nil, err
	}

	opts := []model.Option{
		model.WithSharedLibraryPath(cfg.SharedLibraryPath),
		model.WithTensorNames(cfg.InputName, cfg.OutputName),
		model.WithIntraOpThreads(cfg.IntraOpThreads),
	}
	if cfg.MetadataPath != "" && cfg.InputName == "" && cfg.OutputName == "" {
		if metadata, err := model.LoadMetadata(cfg.MetadataPath); err == nil {
			opts = append(opts, model.WithTensorNames(metadata.InputName, metadata.OutputName))
		}
	}

	classifier, err := model.LoadModel(cfg.Path, labels, opts...)
	if err != nil {
		return nil, err
	}
	pipeline, err := model.NewPipeline(classifier, labels, model.WithMaxPixels(cfg.MaxPixels))
	if err != nil {
		classifier.Close()
		return nil, &model.ModelLoadError{Path: cfg.Path, Err: err}
	}

	log.Info().Str("model", cfg.Path).Strs("classes", labels).Msg("model loaded")
	return pipeline, nil
}
