package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// DefaultClasses is the label set the ResNet50 head was trained on.
var DefaultClasses = ClassLabels{
	"Normal",
	"Acute Pancreatitis",
	"Chronic Pancreatitis",
	"Pancreatic Cancer",
	"Pancreatic Cysts",
}

// ClassLabels is the ordered label set. Index i names score i.
type ClassLabels []string

// Index returns the position of label, or -1.
func (l ClassLabels) Index(label string) int {
	for i, name := range l {
		if name == label {
			return i
		}
	}
	return -1
}

// Metadata describes an exported model artifact.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name,omitempty"`
	OutputName  string   `json:"output_name,omitempty"`
}

// PredictionRequest carries an already preprocessed CHW tensor.
type PredictionRequest struct {
	Image []float32 `json:"image"`
}

// PredictionResult is the structured response of one classification.
type PredictionResult struct {
	Label         string        `json:"label"`
	LabelIndex    int           `json:"label_index"`
	Probabilities Probabilities `json:"probabilities"`
}

// LabelProbability is a single entry of Probabilities.
type LabelProbability struct {
	Label       string
	Probability float64
}

// Probabilities keeps the softmax output in label order. It marshals to a JSON
// object whose keys follow that order.
type Probabilities []LabelProbability

// Get returns the probability of label.
func (p Probabilities) Get(label string) (float64, bool) {
	for _, lp := range p {
		if lp.Label == label {
			return lp.Probability, true
		}
	}
	return 0, false
}

// Map returns the probabilities keyed by label.
func (p Probabilities) Map() map[string]float64 {
	m := make(map[string]float64, len(p))
	for _, lp := range p {
		m[lp.Label] = lp.Probability
	}
	return m
}

func (p Probabilities) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, lp := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(lp.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(strconv.AppendFloat(nil, lp.Probability, 'g', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores label order from the encoded object.
func (p *Probabilities) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("probabilities: expected object, got %v", tok)
	}
	out := Probabilities{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		label, _ := tok.(string)
		var v float64
		if err := dec.Decode(&v); err != nil {
			return err
		}
		out = append(out, LabelProbability{Label: label, Probability: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}
