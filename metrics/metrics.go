package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 指标：
// - http_requests_total：按路径、方法、状态码统计请求数
// - http_request_duration_seconds：按路径、方法统计耗时
// - background_removals_total：去背景结果（ok / error）
// - background_removal_duration_seconds：解码 + 去背景 + 编码的耗时
var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "HTTP requests by path, method and status."},
		[]string{"path", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request latency in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"path", "method"},
	)
	Removals = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "background_removals_total", Help: "Background removal attempts by outcome."},
		[]string{"outcome"},
	)
	RemovalLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "background_removal_duration_seconds", Help: "Time spent decoding, removing and encoding.", Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPLatency, Removals, RemovalLatency)
}

// Handler 记录基础 HTTP 指标的中间件
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPLatency.WithLabelValues(path, c.Request.Method).Observe(time.Since(start).Seconds())
		HTTPRequests.WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// ObserveRemoval 记录一次处理结果
func ObserveRemoval(start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	Removals.WithLabelValues(outcome).Inc()
	RemovalLatency.Observe(time.Since(start).Seconds())
}

// Exposer 标准 Prometheus 暴露处理器
func Exposer() gin.HandlerFunc { return gin.WrapH(promhttp.Handler()) }
