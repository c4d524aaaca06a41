package model

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	InputChannels = 3
	InputSize     = 224

	// DefaultMaxPixels bounds the decoded size of an input image.
	DefaultMaxPixels int64 = 40_000_000
)

// ImageNet statistics used when the backbone was pretrained.
var (
	imagenetMean = [InputChannels]float32{0.485, 0.456, 0.406}
	imagenetStd  = [InputChannels]float32{0.229, 0.224, 0.225}
)

// InputShape is the NCHW shape every classifier consumes.
func InputShape() ort.Shape {
	return ort.NewShape(1, InputChannels, InputSize, InputSize)
}

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	Shape ort.Shape
	Data  []float32
}

// NewInputTensor wraps a preprocessed CHW buffer with the model input shape.
func NewInputTensor(data []float32) *Tensor {
	return &Tensor{Shape: InputShape(), Data: data}
}

// Validate checks that t is a model input tensor.
func (t *Tensor) Validate() error {
	want := InputShape()
	if t == nil {
		return &ShapeMismatchError{What: "input tensor", Expected: want.String(), Got: "nil"}
	}
	if !sameShape(t.Shape, want) {
		return &ShapeMismatchError{What: "input tensor", Expected: want.String(), Got: t.Shape.String()}
	}
	if int64(len(t.Data)) != want.FlattenedSize() {
		return &ShapeMismatchError{
			What:     "input tensor data",
			Expected: fmt.Sprintf("%d values", want.FlattenedSize()),
			Got:      fmt.Sprintf("%d values", len(t.Data)),
		}
	}
	return nil
}

func sameShape(a, b ort.Shape) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Preprocess decodes raw image bytes into a normalized [1,3,224,224] tensor.
//
// The image is stretched to a square without preserving aspect ratio, which
// distorts non-square inputs. This matches how the network was trained.
func Preprocess(raw []byte) (*Tensor, error) {
	return PreprocessLimit(raw, DefaultMaxPixels)
}

// PreprocessLimit is Preprocess with an explicit bound on width×height. The
// header is checked before the pixels are decoded.
func PreprocessLimit(raw []byte, maxPixels int64) (*Tensor, error) {
	if len(raw) == 0 {
		return nil, &DecodeError{Err: errors.New("empty input")}
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); maxPixels > 0 && pixels > maxPixels {
		return nil, &DecodeError{Err: fmt.Errorf("image is %dx%d, exceeds %d pixels", cfg.Width, cfg.Height, maxPixels)}
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return preprocessImage(img), nil
}

func preprocessImage(img image.Image) *Tensor {
	resized := resize.Resize(InputSize, InputSize, dropAlpha(img), resize.Bilinear)
	return normalize(resized)
}

// dropAlpha converts img to opaque RGB. Alpha is discarded, not composited.
func dropAlpha(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

func normalize(img image.Image) *Tensor {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	plane := width * height

	data := make([]float32, InputChannels*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, bl := rgb8(img, b.Min.X+x, b.Min.Y+y)
			idx := y*width + x
			data[idx] = (float32(r)/255.0 - imagenetMean[0]) / imagenetStd[0]
			data[plane+idx] = (float32(g)/255.0 - imagenetMean[1]) / imagenetStd[1]
			data[2*plane+idx] = (float32(bl)/255.0 - imagenetMean[2]) / imagenetStd[2]
		}
	}

	return &Tensor{
		Shape: ort.NewShape(1, InputChannels, int64(height), int64(width)),
		Data:  data,
	}
}

func rgb8(img image.Image, x, y int) (uint8, uint8, uint8) {
	switch im := img.(type) {
	case *image.RGBA:
		c := im.RGBAAt(x, y)
		return c.R, c.G, c.B
	case *image.NRGBA:
		c := im.NRGBAAt(x, y)
		return c.R, c.G, c.B
	}
	r, g, b, _ := img.At(x, y).RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}
