package rembg

import (
	"context"
	"fmt"
	"image"

	"github.com/chaos-io/bgremover/config"
)

// Remover 去除图片背景，返回带透明通道的新图片。实现需要支持并发调用。
type Remover interface {
	Remove(ctx context.Context, img image.Image) (image.Image, error)
}

// DefaultRemBG 原样返回输入，用于联调
type DefaultRemBG struct{}

func NewDefaultRemBG() *DefaultRemBG {
	return &DefaultRemBG{}
}

func (d *DefaultRemBG) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	return img, nil
}

// New 根据配置选择去背景引擎
func New(cfg config.RemBGConfig) (Remover, error) {
	switch cfg.Engine {
	case config.EngineBorderKey, "":
		return NewBorderKeyRemBG(cfg.Tolerance, cfg.MaskSide), nil
	case config.EngineBiRefNet:
		return NewBiRefNetRemBG(cfg.BiRefNet), nil
	case config.EngineNone:
		return NewDefaultRemBG(), nil
	default:
		return nil, fmt.Errorf("unknown rembg engine %q", cfg.Engine)
	}
}
