package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chaos-io/bgremover/config"
)

// Provision 创建上传目录和结果目录（已存在则忽略）。
// 请求处理流程不会往这两个目录写文件。
func Provision(cfg config.StorageConfig) error {
	for _, dir := range folders(cfg) {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("create folder %s: %w", dir, err)
		}
	}
	return nil
}

func folders(cfg config.StorageConfig) []string {
	var out []string
	for _, dir := range []string{cfg.UploadFolder, cfg.ResultFolder} {
		if dir != "" {
			out = append(out, dir)
		}
	}
	return out
}

// Janitor 定时清理目录中过期的文件
type Janitor struct {
	dirs     []string
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
}

func NewJanitor(cfg config.StorageConfig) *Janitor {
	return &Janitor{
		dirs:     folders(cfg),
		maxAge:   cfg.MaxAge,
		schedule: cfg.SweepSchedule,
		cron:     cron.New(),
	}
}

// Start 按 SweepSchedule 注册清理任务。SweepSchedule 为空或 MaxAge<=0 时不启动。
func (j *Janitor) Start() error {
	if j.schedule == "" || j.maxAge <= 0 {
		slog.Info("folder janitor disabled")
		return nil
	}

	_, err := j.cron.AddFunc(j.schedule, func() {
		removed, err := j.Sweep(time.Now())
		if err != nil {
			slog.Warn("sweep folders", "error", err, "removed", removed)
			return
		}
		if removed > 0 {
			slog.Info("swept stale files", "removed", removed)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep %q: %w", j.schedule, err)
	}

	j.cron.Start()
	slog.Info("folder janitor started", "schedule", j.schedule, "max_age", j.maxAge.String(), "dirs", j.dirs)
	return nil
}

// Stop 停止调度并等待正在运行的清理结束
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep 删除 mtime 早于 now-MaxAge 的普通文件，不进入子目录。返回删除的文件数。
func (j *Janitor) Sweep(now time.Time) (int, error) {
	cutoff := now.Add(-j.maxAge)
	removed := 0
	var errs []error

	for _, dir := range j.dirs {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("read dir %s: %w", dir, err))
			continue
		}

		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
				continue
			}
			removed++
		}
	}
	return removed, errors.Join(errs...)
}
