package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/bgremover/config"
	"github.com/chaos-io/bgremover/imaging"
	"github.com/chaos-io/bgremover/metrics"
	"github.com/chaos-io/bgremover/rembg"
	"github.com/chaos-io/bgremover/upload"
)

const (
	resultFilename = "removed_bg.png"
	errTooLargeMsg = "File too large"
)

// Handler 持有只读配置和去背景引擎，不保存任何请求间状态
type Handler struct {
	cfg     config.Config
	remover rembg.Remover
}

func NewHandler(cfg config.Config, remover rembg.Remover) *Handler {
	return &Handler{cfg: cfg, remover: remover}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.index)
	r.GET("/healthz", h.healthz)
	r.GET("/metrics", metrics.Exposer())
	r.POST("/remove-background", BodyLimit(h.cfg.MaxBodyBytes), h.removeBackground)
}

func (h *Handler) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Extensions": h.cfg.AllowedExtensions.List(),
		"MaxBytes":   h.cfg.MaxBodyBytes,
		"MaxMB":      h.cfg.MaxBodyBytes >> 20,
	})
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// removeBackground 校验上传文件，去背景后以 PNG 返回（inline，不强制下载）
func (h *Handler) removeBackground(c *gin.Context) {
	file, err := upload.Validate(c.Request, h.cfg.AllowedExtensions)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	start := time.Now()
	buf, err := h.process(c.Request.Context(), file)
	metrics.ObserveRemoval(start, err)
	if err != nil {
		h.abortWithError(c, upload.Processing(err))
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": resultFilename}))
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// process 解码 -> 去背景 -> 编码 PNG，任一步失败都直接返回
func (h *Handler) process(ctx context.Context, file *upload.File) (*bytes.Buffer, error) {
	img, _, err := imaging.Decode(bytes.NewReader(file.Data))
	if err != nil {
		return nil, err
	}

	out, err := h.remover.Remove(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("remove background: %w", err)
	}
	if out == nil {
		return nil, errors.New("remove background: no image returned")
	}

	return imaging.EncodePNG(out)
}

// abortWithError 统一把错误分类翻译成状态码和 {"error": ...} 响应体
func (h *Handler) abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)

	if errors.Is(err, upload.ErrTooLarge) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": errTooLargeMsg})
		return
	}

	ue := upload.From(err)
	if ue.Kind == upload.KindProcessingFailure {
		slog.Warn("failed to process image", "request_id", c.GetString(requestIDKey), "error", ue.Err)
	}
	c.AbortWithStatusJSON(ue.Status(), gin.H{"error": ue.Message()})
}
