package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestDecode(t *testing.T) {
	t.Parallel()

	src := solid(8, 6, color.NRGBA{R: 200, G: 10, B: 10, A: 255})

	tests := []struct {
		name   string
		encode func(*bytes.Buffer) error
		format string
	}{
		{name: "png", encode: func(b *bytes.Buffer) error { return png.Encode(b, src) }, format: "png"},
		{name: "jpeg", encode: func(b *bytes.Buffer) error { return jpeg.Encode(b, src, nil) }, format: "jpeg"},
		{name: "bmp", encode: func(b *bytes.Buffer) error { return bmp.Encode(b, src) }, format: "bmp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf := &bytes.Buffer{}
			require.NoError(t, tt.encode(buf))

			img, format, err := Decode(buf)
			require.NoError(t, err)
			assert.Equal(t, tt.format, format)
			assert.Equal(t, image.Rect(0, 0, 8, 6), img.Bounds())
		})
	}
}

func TestDecode_Corrupt(t *testing.T) {
	t.Parallel()

	_, _, err := Decode(bytes.NewReader([]byte("definitely not an image")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode image")

	// 合法的 PNG 头加上截断的数据
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, solid(4, 4, color.White)))
	_, _, err = Decode(bytes.NewReader(buf.Bytes()[:20]))
	assert.Error(t, err)
}

func TestEncodePNG(t *testing.T) {
	t.Parallel()

	src := solid(3, 3, color.NRGBA{R: 1, G: 2, B: 3, A: 128})
	buf, err := EncodePNG(src)
	require.NoError(t, err)

	got, err := png.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), got.Bounds())
	assert.Equal(t, color.NRGBA{R: 1, G: 2, B: 3, A: 128}, color.NRGBAModel.Convert(got.At(1, 1)))
}

func TestEncodePNG_OpaqueKeepsAlpha(t *testing.T) {
	t.Parallel()

	full := solid(6, 5, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	full.SetNRGBA(4, 3, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	tests := []struct {
		name string
		img  image.Image
	}{
		{name: "nrgba", img: full},
		{name: "sub image", img: full.SubImage(image.Rect(2, 1, 6, 5))},
		{name: "gray", img: image.NewGray(image.Rect(0, 0, 3, 2))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf, err := EncodePNG(tt.img)
			require.NoError(t, err)
			data := buf.Bytes()
			require.Greater(t, len(data), 26)
			assert.Equal(t, "IHDR", string(data[12:16]))
			assert.Equal(t, byte(8), data[24])
			assert.Equal(t, byte(6), data[25])

			got, err := png.Decode(bytes.NewReader(data))
			require.NoError(t, err)
			b := tt.img.Bounds()
			require.Equal(t, b.Dx(), got.Bounds().Dx())
			require.Equal(t, b.Dy(), got.Bounds().Dy())
			for y := 0; y < b.Dy(); y++ {
				for x := 0; x < b.Dx(); x++ {
					want := color.NRGBAModel.Convert(tt.img.At(b.Min.X+x, b.Min.Y+y))
					assert.Equal(t, want, color.NRGBAModel.Convert(got.At(x, y)))
				}
			}
		})
	}
}

func TestEncodePNG_Empty(t *testing.T) {
	t.Parallel()

	_, err := EncodePNG(image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode png")
}

func TestHasUsefulAlpha(t *testing.T) {
	t.Parallel()

	img := solid(4, 4, color.White)
	assert.False(t, HasUsefulAlpha(img))

	img.SetNRGBA(3, 3, color.NRGBA{A: 254})
	assert.True(t, HasUsefulAlpha(img))

	// 子图只看自己的区域
	sub := img.SubImage(image.Rect(0, 0, 2, 2)).(*image.NRGBA)
	assert.False(t, HasUsefulAlpha(sub))
}

func TestToNRGBA(t *testing.T) {
	t.Parallel()

	n := solid(2, 2, color.White)
	assert.Same(t, n, ToNRGBA(n))

	g := image.NewGray(image.Rect(5, 5, 7, 8))
	got := ToNRGBA(g)
	assert.Equal(t, image.Rect(0, 0, 2, 3), got.Bounds())
	assert.Equal(t, uint8(255), got.NRGBAAt(0, 0).A)
}

func TestResizeWithinMax(t *testing.T) {
	t.Parallel()

	small := solid(100, 50, color.White)
	assert.Same(t, small, ResizeWithinMax(small, 128))
	assert.Same(t, small, ResizeWithinMax(small, 0))

	big := solid(400, 200, color.White)
	got := ResizeWithinMax(big, 100)
	assert.Equal(t, 100, got.Bounds().Dx())
	assert.Equal(t, 50, got.Bounds().Dy())
}

func TestResizeGray(t *testing.T) {
	t.Parallel()

	mask := image.NewGray(image.Rect(0, 0, 10, 10))
	assert.Same(t, mask, ResizeGray(mask, 10, 10))

	got := ResizeGray(mask, 40, 20)
	assert.Equal(t, image.Rect(0, 0, 40, 20), got.Bounds())
}
