package imaging

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Decode 解码上传的字节流，返回图片与格式名（png、jpeg、gif、webp、bmp）
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// EncodePNG 把图片编码为 8 位 RGBA PNG（color type 6），返回的 buffer 读位置在开头。
// image/png 遇到全不透明的图会省掉 alpha 通道，这种情况由 encodeRGBA 输出。
func EncodePNG(img image.Image) (*bytes.Buffer, error) {
	nrgba := ToNRGBA(img)
	b := nrgba.Bounds()

	buf := &bytes.Buffer{}
	var err error
	if nrgba.Opaque() && !b.Empty() {
		err = encodeRGBA(buf, nrgba)
	} else {
		err = png.Encode(buf, nrgba)
	}
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf, nil
}

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// encodeRGBA 写出不做行过滤的 RGBA PNG：IHDR、单个 IDAT、IEND
func encodeRGBA(w io.Writer, img *image.NRGBA) error {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	if _, err := w.Write(pngSignature); err != nil {
		return err
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], uint32(width))
	binary.BigEndian.PutUint32(ihdr[4:8], uint32(height))
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // truecolor with alpha
	if err := writeChunk(w, "IHDR", ihdr); err != nil {
		return err
	}

	idat := &bytes.Buffer{}
	zw := zlib.NewWriter(idat)
	row := make([]byte, 1+4*width)
	for y := 0; y < height; y++ {
		// row[0] 为过滤类型 0（None）
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(row[1:], img.Pix[off:off+4*width])
		if _, err := zw.Write(row); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := writeChunk(w, "IDAT", idat.Bytes()); err != nil {
		return err
	}
	return writeChunk(w, "IEND", nil)
}

func writeChunk(w io.Writer, name string, data []byte) error {
	header := make([]byte, 8)
	binary.BigEndian.PutUint32(header[:4], uint32(len(data)))
	copy(header[4:], name)

	crc := crc32.NewIEEE()
	_, _ = crc.Write(header[4:])
	_, _ = crc.Write(data)
	footer := make([]byte, 4)
	binary.BigEndian.PutUint32(footer, crc.Sum32())

	for _, p := range [][]byte{header, data, footer} {
		if _, err := w.Write(p); err != nil {
			return err
		}
	}
	return nil
}
