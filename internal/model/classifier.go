package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Classifier scores a preprocessed tensor. Implementations are read-only after
// loading and safe for concurrent use.
type Classifier interface {
	// Classify returns one raw score per label, in label order.
	Classify(t *Tensor) ([]float32, error)
	NumClasses() int
	Close() error
}

type loadOptions struct {
	sharedLibraryPath string
	inputName         string
	outputName        string
	intraOpThreads    int
}

// Option tunes how LoadModel opens an artifact.
type Option func(*loadOptions)

// WithSharedLibraryPath points ONNX Runtime at a specific libonnxruntime.
func WithSharedLibraryPath(path string) Option {
	return func(o *loadOptions) { o.sharedLibraryPath = path }
}

// WithTensorNames overrides the ONNX graph input and output names. Empty names
// are discovered from the model.
func WithTensorNames(input, output string) Option {
	return func(o *loadOptions) {
		o.inputName = input
		o.outputName = output
	}
}

// WithIntraOpThreads caps ONNX Runtime intra-op parallelism.
func WithIntraOpThreads(n int) Option {
	return func(o *loadOptions) { o.intraOpThreads = n }
}

// LoadModel opens the artifact at weightsPath and checks it produces exactly
// len(labels) scores. The backend is picked by file extension: ".onnx" runs
// the exported network through ONNX Runtime, ".json" loads a pooled linear head.
// Every failure is a *ModelLoadError.
func LoadModel(weightsPath string, labels ClassLabels, opts ...Option) (Classifier, error) {
	if len(labels) == 0 {
		return nil, &ModelLoadError{Path: weightsPath, Err: errors.New("empty label set")}
	}
	info, err := os.Stat(weightsPath)
	if err != nil {
		return nil, &ModelLoadError{Path: weightsPath, Err: err}
	}
	if info.IsDir() {
		return nil, &ModelLoadError{Path: weightsPath, Err: errors.New("is a directory")}
	}

	o := loadOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	var c Classifier
	switch ext := strings.ToLower(filepath.Ext(weightsPath)); ext {
	case ".onnx":
		c, err = loadONNX(weightsPath, len(labels), o)
	case ".json":
		c, err = loadLinear(weightsPath, len(labels))
	default:
		err = fmt.Errorf("unsupported model format %q", ext)
	}
	if err != nil {
		return nil, &ModelLoadError{Path: weightsPath, Err: err}
	}
	return c, nil
}

// LoadMetadata reads the JSON sidecar written next to an exported model.
func LoadMetadata(path string) (*Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var metadata Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &metadata, nil
}
