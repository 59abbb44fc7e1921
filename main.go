package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/bgremover/config"
	"github.com/chaos-io/bgremover/rembg"
	"github.com/chaos-io/bgremover/server"
	"github.com/chaos-io/bgremover/storage"
)

func main() {
	path := os.Getenv("BGREMOVER_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	setupLogger(cfg)
	slog.Info("configuration loaded",
		"env", cfg.Env,
		"http_addr", cfg.HTTPAddr,
		"engine", cfg.RemBG.Engine,
		"max_body_bytes", cfg.MaxBodyBytes,
		"allowed_extensions", cfg.AllowedExtensions.List(),
	)

	if err := storage.Provision(cfg.Storage); err != nil {
		log.Fatal("Failed to create folders: ", err)
	}
	janitor := storage.NewJanitor(cfg.Storage)
	if err := janitor.Start(); err != nil {
		log.Fatal("Failed to start janitor: ", err)
	}
	defer janitor.Stop()

	remover, err := rembg.New(cfg.RemBG)
	if err != nil {
		log.Fatal("Failed to create remover: ", err)
	}

	if cfg.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.NewRouter(cfg, remover)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("starting http server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen: ", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown", "error", err)
		return
	}
	slog.Info("server stopped")
}

// setupLogger dev 环境输出文本日志，其余环境输出 JSON
func setupLogger(cfg config.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Env == "dev" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
