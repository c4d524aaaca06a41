package model

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	envMu   sync.Mutex
	envRefs int
)

func acquireEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		return
	}
	envRefs--
	if envRefs == 0 {
		ort.DestroyEnvironment()
	}
}

// onnxClassifier runs an exported network with a dynamic session. Tensors are
// allocated per call, so one session serves concurrent requests.
type onnxClassifier struct {
	session     *ort.DynamicAdvancedSession
	outputShape ort.Shape
	numClasses  int
}

func loadONNX(modelPath string, numClasses int, o loadOptions) (*onnxClassifier, error) {
	if err := acquireEnvironment(o.sharedLibraryPath); err != nil {
		return nil, err
	}

	c, err := newONNXClassifier(modelPath, numClasses, o)
	if err != nil {
		releaseEnvironment()
		return nil, err
	}
	return c, nil
}

func newONNXClassifier(modelPath string, numClasses int, o loadOptions) (*onnxClassifier, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect model: %w", err)
	}
	in, err := pickTensorInfo(inputs, o.inputName, "input")
	if err != nil {
		return nil, err
	}
	out, err := pickTensorInfo(outputs, o.outputName, "output")
	if err != nil {
		return nil, err
	}
	if err := checkInputDims(in.Dimensions); err != nil {
		return nil, err
	}
	if err := checkOutputDims(out.Dimensions, numClasses); err != nil {
		return nil, err
	}

	var sessionOptions *ort.SessionOptions
	if o.intraOpThreads > 0 {
		sessionOptions, err = ort.NewSessionOptions()
		if err != nil {
			return nil, fmt.Errorf("failed to create session options: %w", err)
		}
		defer sessionOptions.Destroy()
		if err := sessionOptions.SetIntraOpNumThreads(o.intraOpThreads); err != nil {
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{in.Name}, []string{out.Name}, sessionOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &onnxClassifier{
		session:     session,
		outputShape: ort.NewShape(1, int64(numClasses)),
		numClasses:  numClasses,
	}, nil
}

func pickTensorInfo(infos []ort.InputOutputInfo, name, kind string) (ort.InputOutputInfo, error) {
	if len(infos) == 0 {
		return ort.InputOutputInfo{}, fmt.Errorf("model has no %ss", kind)
	}
	if name == "" {
		return infos[0], nil
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return ort.InputOutputInfo{}, fmt.Errorf("model has no %s named %q", kind, name)
}

// checkInputDims accepts symbolic (negative) dimensions and requires the rest
// to agree with InputShape.
func checkInputDims(dims ort.Shape) error {
	want := InputShape()
	if len(dims) != len(want) {
		return &ShapeMismatchError{What: "model input", Expected: want.String(), Got: dims.String()}
	}
	for i, d := range dims {
		if d > 0 && d != want[i] {
			return &ShapeMismatchError{What: "model input", Expected: want.String(), Got: dims.String()}
		}
	}
	return nil
}

// checkOutputDims requires a [batch, N] output, the shape Classify allocates.
func checkOutputDims(dims ort.Shape, numClasses int) error {
	want := fmt.Sprintf("[1 %d]", numClasses)
	if len(dims) != 2 {
		return &ShapeMismatchError{What: "model output", Expected: want, Got: dims.String()}
	}
	if dims[0] > 1 {
		return &ShapeMismatchError{What: "model output", Expected: want, Got: dims.String()}
	}
	last := dims[1]
	if last <= 0 {
		return fmt.Errorf("model output width is symbolic (%s), cannot check it against %d classes", dims, numClasses)
	}
	if last != int64(numClasses) {
		return &ShapeMismatchError{
			What:     "model output",
			Expected: fmt.Sprintf("%d classes", numClasses),
			Got:      fmt.Sprintf("%d classes", last),
		}
	}
	return nil
}

func (c *onnxClassifier) NumClasses() int { return c.numClasses }

func (c *onnxClassifier) Classify(t *Tensor) ([]float32, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	input, err := ort.NewTensor(t.Shape, t.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](c.outputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := c.session.Run([]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	scores := make([]float32, c.numClasses)
	copy(scores, output.GetData())
	return scores, nil
}

func (c *onnxClassifier) Close() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Destroy()
	c.session = nil
	releaseEnvironment()
	return err
}
