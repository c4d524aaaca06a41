package model

import "fmt"

// Pipeline chains Preprocess, a Classifier and Format. It holds no per-request
// state.
type Pipeline struct {
	classifier Classifier
	labels     ClassLabels
	maxPixels  int64
}

type PipelineOption func(*Pipeline)

// WithMaxPixels rejects images larger than n pixels. Non-positive n keeps
// DefaultMaxPixels.
func WithMaxPixels(n int64) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxPixels = n
		}
	}
}

func NewPipeline(classifier Classifier, labels ClassLabels, opts ...PipelineOption) (*Pipeline, error) {
	if classifier.NumClasses() != len(labels) {
		return nil, &ShapeMismatchError{
			What:     "classifier output",
			Expected: fmt.Sprintf("%d classes", len(labels)),
			Got:      fmt.Sprintf("%d classes", classifier.NumClasses()),
		}
	}
	labelsCopy := make(ClassLabels, len(labels))
	copy(labelsCopy, labels)
	p := &Pipeline{classifier: classifier, labels: labelsCopy, maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Labels returns a copy of the label set.
func (p *Pipeline) Labels() ClassLabels {
	out := make(ClassLabels, len(p.labels))
	copy(out, p.labels)
	return out
}

// ClassifyImage runs raw image bytes through the whole pipeline.
func (p *Pipeline) ClassifyImage(raw []byte) (*PredictionResult, error) {
	tensor, err := PreprocessLimit(raw, p.maxPixels)
	if err != nil {
		return nil, err
	}
	return p.ClassifyTensor(tensor)
}

// ClassifyTensor scores an already preprocessed tensor.
func (p *Pipeline) ClassifyTensor(t *Tensor) (*PredictionResult, error) {
	scores, err := p.classifier.Classify(t)
	if err != nil {
		return nil, err
	}
	return Format(scores, p.labels)
}

func (p *Pipeline) Close() error {
	return p.classifier.Close()
}
