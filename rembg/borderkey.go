package rembg

import (
	"context"
	"errors"
	"image"

	"github.com/chaos-io/bgremover/imaging"
)

// BorderKeyRemBG 本地去背景：以图片边框的主色为背景色，从边框向内做洪泛填充，
// 与背景色距离在 Tolerance 以内且与边框连通的像素变为透明。
// 结果是确定的，输出尺寸与输入一致。
type BorderKeyRemBG struct {
	// RGB 欧氏距离阈值（0~441）
	Tolerance float64
	// 计算蒙版时工作图的最长边，<=0 表示使用原图
	MaskSide int
}

func NewBorderKeyRemBG(tolerance float64, maskSide int) *BorderKeyRemBG {
	return &BorderKeyRemBG{Tolerance: tolerance, MaskSide: maskSide}
}

func (b *BorderKeyRemBG) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := imaging.CloneNRGBA(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w == 0 || h == 0 {
		return nil, errors.New("empty image")
	}

	// 已经抠过图，不再处理
	if imaging.HasUsefulAlpha(src) {
		return src, nil
	}

	// 1. 在缩小的工作图上计算蒙版
	work := imaging.ResizeWithinMax(src, b.MaskSide)
	bg := borderColor(work)
	mask := floodMask(work, bg, b.Tolerance)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 2. 蒙版放大回原尺寸后作用到 alpha
	mask = imaging.ResizeGray(mask, w, h)
	applyMask(src, mask)
	return src, nil
}

// borderColor 取边框像素各通道的中位数作为背景色
func borderColor(img *image.NRGBA) [3]uint8 {
	var hist [3][256]int
	n := 0
	forEachBorder(img, func(x, y int) {
		i := y*img.Stride + x*4
		hist[0][img.Pix[i]]++
		hist[1][img.Pix[i+1]]++
		hist[2][img.Pix[i+2]]++
		n++
	})

	var out [3]uint8
	for c := 0; c < 3; c++ {
		acc := 0
		for v := 0; v < 256; v++ {
			acc += hist[c][v]
			if acc*2 >= n {
				out[c] = uint8(v)
				break
			}
		}
	}
	return out
}

// floodMask 返回前景为 255、背景为 0 的蒙版
func floodMask(img *image.NRGBA, bg [3]uint8, tolerance float64) *image.Gray {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	mask := image.NewGray(image.Rect(0, 0, w, h))
	for i := range mask.Pix {
		mask.Pix[i] = 255
	}

	limit := tolerance * tolerance
	isBackground := func(x, y int) bool {
		i := y*img.Stride + x*4
		dr := float64(img.Pix[i]) - float64(bg[0])
		dg := float64(img.Pix[i+1]) - float64(bg[1])
		db := float64(img.Pix[i+2]) - float64(bg[2])
		return dr*dr+dg*dg+db*db <= limit
	}

	visited := make([]bool, w*h)
	queue := make([]int, 0, 2*(w+h))
	push := func(x, y int) {
		p := y*w + x
		if visited[p] || !isBackground(x, y) {
			return
		}
		visited[p] = true
		queue = append(queue, p)
	}

	forEachBorder(img, push)
	for len(queue) > 0 {
		p := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		x, y := p%w, p/w
		mask.Pix[y*mask.Stride+x] = 0
		if x > 0 {
			push(x-1, y)
		}
		if x < w-1 {
			push(x+1, y)
		}
		if y > 0 {
			push(x, y-1)
		}
		if y < h-1 {
			push(x, y+1)
		}
	}
	return mask
}

func applyMask(img *image.NRGBA, mask *image.Gray) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*img.Stride + x*4 + 3
			m := uint32(mask.Pix[y*mask.Stride+x])
			img.Pix[i] = uint8(uint32(img.Pix[i]) * m / 255)
		}
	}
}

// forEachBorder 遍历边框像素，每个像素只访问一次
func forEachBorder(img *image.NRGBA, fn func(x, y int)) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for x := 0; x < w; x++ {
		fn(x, 0)
		if h > 1 {
			fn(x, h-1)
		}
	}
	for y := 1; y < h-1; y++ {
		fn(0, y)
		if w > 1 {
			fn(w-1, y)
		}
	}
}
