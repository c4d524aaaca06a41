package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// linearWeights is the on-disk form of a pooled linear head:
// scores = weight · pool(tensor) + bias.
type linearWeights struct {
	InFeatures int         `json:"in_features"`
	Weight     [][]float32 `json:"weight"`
	Bias       []float32   `json:"bias"`
}

// linearClassifier averages each channel over a grid×grid partition of the
// image and applies one fully connected layer. Features are ordered channel
// first, then cell row, then cell column.
type linearClassifier struct {
	grid   int
	weight [][]float32
	bias   []float32
}

func loadLinear(path string, numClasses int) (*linearClassifier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read weights: %w", err)
	}
	var w linearWeights
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("failed to parse weights: %w", err)
	}
	return newLinearClassifier(w, numClasses)
}

func newLinearClassifier(w linearWeights, numClasses int) (*linearClassifier, error) {
	grid, err := poolGrid(w.InFeatures)
	if err != nil {
		return nil, err
	}
	if len(w.Weight) != numClasses {
		return nil, &ShapeMismatchError{
			What:     "weight",
			Expected: fmt.Sprintf("%d rows", numClasses),
			Got:      fmt.Sprintf("%d rows", len(w.Weight)),
		}
	}
	for i, row := range w.Weight {
		if len(row) != w.InFeatures {
			return nil, &ShapeMismatchError{
				What:     fmt.Sprintf("weight row %d", i),
				Expected: fmt.Sprintf("%d columns", w.InFeatures),
				Got:      fmt.Sprintf("%d columns", len(row)),
			}
		}
	}
	bias := w.Bias
	switch len(bias) {
	case 0:
		bias = make([]float32, numClasses)
	case numClasses:
	default:
		return nil, &ShapeMismatchError{
			What:     "bias",
			Expected: fmt.Sprintf("%d values", numClasses),
			Got:      fmt.Sprintf("%d values", len(bias)),
		}
	}
	return &linearClassifier{grid: grid, weight: w.Weight, bias: bias}, nil
}

// poolGrid derives the pooling grid from the feature count, which must be
// InputChannels*g*g with g dividing InputSize.
func poolGrid(inFeatures int) (int, error) {
	if inFeatures <= 0 || inFeatures%InputChannels != 0 {
		return 0, fmt.Errorf("in_features %d is not a positive multiple of %d", inFeatures, InputChannels)
	}
	cells := inFeatures / InputChannels
	g := int(math.Round(math.Sqrt(float64(cells))))
	if g*g != cells || InputSize%g != 0 {
		return 0, fmt.Errorf("in_features %d does not describe a square pooling grid dividing %d", inFeatures, InputSize)
	}
	return g, nil
}

func (c *linearClassifier) NumClasses() int { return len(c.weight) }

func (c *linearClassifier) Classify(t *Tensor) ([]float32, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	features := c.pool(t.Data)

	scores := make([]float32, len(c.weight))
	for i, row := range c.weight {
		var s float64
		for j, w := range row {
			s += float64(w) * features[j]
		}
		scores[i] = float32(s) + c.bias[i]
	}
	return scores, nil
}

func (c *linearClassifier) pool(data []float32) []float64 {
	cell := InputSize / c.grid
	plane := InputSize * InputSize
	features := make([]float64, InputChannels*c.grid*c.grid)
	norm := float64(cell * cell)

	for ch := 0; ch < InputChannels; ch++ {
		base := ch * plane
		for gy := 0; gy < c.grid; gy++ {
			for gx := 0; gx < c.grid; gx++ {
				var sum float64
				for y := gy * cell; y < (gy+1)*cell; y++ {
					row := base + y*InputSize
					for x := gx * cell; x < (gx+1)*cell; x++ {
						sum += float64(data[row+x])
					}
				}
				features[(ch*c.grid+gy)*c.grid+gx] = sum / norm
			}
		}
	}
	return features
}

func (c *linearClassifier) Close() error { return nil }
