package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5000", cfg.HTTPAddr)
	assert.Equal(t, int64(16*1024*1024), cfg.MaxBodyBytes)
	assert.Equal(t, "uploads", cfg.Storage.UploadFolder)
	assert.Equal(t, "results", cfg.Storage.ResultFolder)
	assert.Equal(t, []string{"bmp", "jpeg", "jpg", "png", "webp"}, cfg.AllowedExtensions.List())
	assert.Equal(t, EngineBorderKey, cfg.RemBG.Engine)
}

func TestLoad_Overlay(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
env: prod
http_addr: ":9090"
allowed_extensions: [".PNG", "gif"]
storage:
  max_age: 2h
rembg:
  engine: birefnet
  birefnet:
    base_url: http://comfy:8188/
    poll_interval: 250ms
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, []string{"gif", "png"}, cfg.AllowedExtensions.List())
	assert.Equal(t, 2*time.Hour, cfg.Storage.MaxAge)
	// 未覆盖的字段保留默认值
	assert.Equal(t, "uploads", cfg.Storage.UploadFolder)
	assert.Equal(t, int64(16<<20), cfg.MaxBodyBytes)
	assert.Equal(t, EngineBiRefNet, cfg.RemBG.Engine)
	assert.Equal(t, "http://comfy:8188/", cfg.RemBG.BiRefNet.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.RemBG.BiRefNet.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.RemBG.BiRefNet.Timeout)
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "unknown engine", content: "rembg:\n  engine: magic\n", wantErr: "unknown rembg engine"},
		{name: "empty extensions", content: "allowed_extensions: []\n", wantErr: "allowed_extensions must not be empty"},
		{name: "zero body cap", content: "max_body_bytes: 0\n", wantErr: "max_body_bytes must be positive"},
		{name: "empty addr", content: "http_addr: \"\"\n", wantErr: "http_addr must be set"},
		{name: "bad yaml", content: "storage: [\n", wantErr: "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExtensionSet(t *testing.T) {
	t.Parallel()

	s := NewExtensionSet("PNG", ".jpg", " ", "")
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains("png"))
	assert.True(t, s.Contains("jpg"))
	assert.False(t, s.Contains("PNG"))
	assert.False(t, s.Contains(""))

	// List 返回副本，修改不影响集合
	list := s.List()
	list[0] = "exe"
	assert.False(t, s.Contains("exe"))
}
