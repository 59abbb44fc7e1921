package server

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/bgremover/config"
	"github.com/chaos-io/bgremover/metrics"
	"github.com/chaos-io/bgremover/rembg"
)

//go:embed web
var webFS embed.FS

// NewRouter 组装中间件、页面、静态资源和 API 路由
func NewRouter(cfg config.Config, remover rembg.Remover) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger())
	r.Use(metrics.Handler())
	r.HandleMethodNotAllowed = true

	r.SetHTMLTemplate(template.Must(template.ParseFS(webFS, "web/templates/*.html")))
	static, err := fs.Sub(webFS, "web/static")
	if err != nil {
		panic(err)
	}
	r.StaticFS("/static", http.FS(static))

	NewHandler(cfg, remover).RegisterRoutes(r)
	return r
}
