package model

import (
	"bytes"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func gradientImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func encodeGIF(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, &gif.Options{NumColors: 256}))
	return buf.Bytes()
}

func normalized(v uint8, ch int) float32 {
	return (float32(v)/255.0 - imagenetMean[ch]) / imagenetStd[ch]
}

func TestPreprocessShape(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 37, 91))
	for i := range gray.Pix {
		gray.Pix[i] = uint8(i)
	}
	paletted := image.NewPaletted(image.Rect(0, 0, 64, 32), palette.Plan9)

	cases := []struct {
		name string
		raw  []byte
	}{
		{"png 1x1", encodePNG(t, gradientImage(1, 1))},
		{"png 100x50", encodePNG(t, gradientImage(100, 50))},
		{"jpeg 50x100", encodeJPEG(t, gradientImage(50, 100))},
		{"jpeg 640x480", encodeJPEG(t, gradientImage(640, 480))},
		{"png 224x224", encodePNG(t, gradientImage(224, 224))},
		{"gif", encodeGIF(t, gradientImage(120, 80))},
		{"grayscale png", encodePNG(t, gray)},
		{"paletted png", encodePNG(t, paletted)},
		{"rgba with alpha", encodePNG(t, solidImage(30, 20, color.NRGBA{R: 10, G: 20, B: 30, A: 40}))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tensor, err := Preprocess(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, InputShape(), tensor.Shape)
			assert.Len(t, tensor.Data, 1*3*224*224)
			assert.NoError(t, tensor.Validate())
		})
	}
}

func TestPreprocessNormalizesSolidColor(t *testing.T) {
	raw := encodePNG(t, solidImage(80, 60, color.NRGBA{R: 255, G: 128, B: 0, A: 255}))

	tensor, err := Preprocess(raw)
	require.NoError(t, err)

	plane := 224 * 224
	const tol = 0.05
	want := [3]float32{normalized(255, 0), normalized(128, 1), normalized(0, 2)}
	for ch := 0; ch < 3; ch++ {
		for _, idx := range []int{0, plane / 2, plane - 1} {
			assert.InDelta(t, want[ch], tensor.Data[ch*plane+idx], tol, "channel %d index %d", ch, idx)
		}
	}
}

func TestPreprocessDropsAlpha(t *testing.T) {
	raw := encodePNG(t, solidImage(10, 10, color.NRGBA{R: 200, G: 100, B: 50, A: 0}))

	tensor, err := Preprocess(raw)
	require.NoError(t, err)

	plane := 224 * 224
	assert.InDelta(t, normalized(200, 0), tensor.Data[0], 0.05)
	assert.InDelta(t, normalized(100, 1), tensor.Data[plane], 0.05)
	assert.InDelta(t, normalized(50, 2), tensor.Data[2*plane], 0.05)
}

func TestPreprocessKeepsChannelFirstLayout(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 224, 224))
	for y := 0; y < 224; y++ {
		for x := 0; x < 224; x++ {
			v := uint8(0)
			if x >= 112 {
				v = 255
			}
			img.SetRGBA(x, y, color.RGBA{R: v, G: 0, B: 255 - v, A: 255})
		}
	}

	tensor := preprocessImage(img)
	require.NoError(t, tensor.Validate())

	plane := 224 * 224
	left, right := 10, 200
	assert.InDelta(t, normalized(0, 0), tensor.Data[left], 0.05)
	assert.InDelta(t, normalized(255, 0), tensor.Data[right], 0.05)
	assert.InDelta(t, normalized(255, 2), tensor.Data[2*plane+left], 0.05)
	assert.InDelta(t, normalized(0, 2), tensor.Data[2*plane+right], 0.05)
}

func TestPreprocessDecodeError(t *testing.T) {
	valid := encodePNG(t, gradientImage(20, 20))

	for name, raw := range map[string][]byte{
		"text":      []byte("not an image"),
		"empty":     nil,
		"truncated": valid[:len(valid)/3],
	} {
		t.Run(name, func(t *testing.T) {
			tensor, err := Preprocess(raw)
			assert.Nil(t, tensor)
			var decodeErr *DecodeError
			assert.ErrorAs(t, err, &decodeErr)
		})
	}
}

func TestTensorValidate(t *testing.T) {
	size := int(InputShape().FlattenedSize())

	assert.NoError(t, NewInputTensor(make([]float32, size)).Validate())

	var shapeErr *ShapeMismatchError
	assert.ErrorAs(t, NewInputTensor(make([]float32, size-1)).Validate(), &shapeErr)

	wrong := &Tensor{Shape: []int64{1, 3, 100, 100}, Data: make([]float32, 3*100*100)}
	assert.ErrorAs(t, wrong.Validate(), &shapeErr)

	var nilTensor *Tensor
	assert.ErrorAs(t, nilTensor.Validate(), &shapeErr)
}

func TestNormalizedRange(t *testing.T) {
	tensor := preprocessImage(gradientImage(300, 200))
	lo := (0 - imagenetMean[0]) / imagenetStd[0]
	hi := (1 - imagenetMean[2]) / imagenetStd[2]
	for _, v := range tensor.Data {
		require.False(t, math.IsNaN(float64(v)))
		require.GreaterOrEqual(t, v, lo-0.01)
		require.LessOrEqual(t, v, hi+0.01)
	}
}

func TestPreprocessRejectsOversizedImage(t *testing.T) {
	raw := encodePNG(t, image.NewGray(image.Rect(0, 0, 8000, 8000)))
	require.Less(t, len(raw), 1<<20)

	_, err := Preprocess(raw)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Contains(t, err.Error(), "8000x8000")
}

func TestPreprocessLimit(t *testing.T) {
	raw := encodePNG(t, solidImage(40, 30, color.White))

	_, err := PreprocessLimit(raw, 1199)
	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)

	tensor, err := PreprocessLimit(raw, 1200)
	require.NoError(t, err)
	assert.NoError(t, tensor.Validate())
}
