package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	EngineBorderKey = "borderkey"
	EngineBiRefNet  = "birefnet"
	EngineNone      = "none"
)

// Config 进程级配置，启动时构造一次，之后只读。
type Config struct {
	Env               string        `yaml:"env"`
	HTTPAddr          string        `yaml:"http_addr"`
	LogLevel          string        `yaml:"log_level"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	AllowedExtensions ExtensionSet  `yaml:"allowed_extensions"`
	Storage           StorageConfig `yaml:"storage"`
	RemBG             RemBGConfig   `yaml:"rembg"`
}

type StorageConfig struct {
	UploadFolder  string        `yaml:"upload_folder"`
	ResultFolder  string        `yaml:"result_folder"`
	SweepSchedule string        `yaml:"sweep_schedule"`
	MaxAge        time.Duration `yaml:"max_age"`
}

type RemBGConfig struct {
	// borderkey | birefnet | none
	Engine string `yaml:"engine"`

	// 与背景色的 RGB 欧氏距离阈值（0~441）
	Tolerance float64 `yaml:"tolerance"`

	// 计算蒙版时工作图的最长边
	MaskSide int            `yaml:"mask_side"`
	BiRefNet BiRefNetConfig `yaml:"birefnet"`
}

type BiRefNetConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Default 返回内置默认值，与原始服务保持一致：0.0.0.0:5000、16MiB、uploads/results。
func Default() Config {
	return Config{
		Env:               "dev",
		HTTPAddr:          "0.0.0.0:5000",
		LogLevel:          "info",
		MaxBodyBytes:      16 << 20,
		AllowedExtensions: NewExtensionSet("png", "jpg", "jpeg", "webp", "bmp"),
		Storage: StorageConfig{
			UploadFolder:  "uploads",
			ResultFolder:  "results",
			SweepSchedule: "@every 1h",
			MaxAge:        24 * time.Hour,
		},
		RemBG: RemBGConfig{
			Engine:    EngineBorderKey,
			Tolerance: 40,
			MaskSide:  512,
			BiRefNet: BiRefNetConfig{
				BaseURL:      "http://127.0.0.1:8188/",
				Timeout:      2 * time.Minute,
				PollInterval: 500 * time.Millisecond,
			},
		},
	}
}

// Load 先取默认值，再用 path 指向的 YAML 文件覆盖。文件不存在时直接使用默认值。
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return cfg, cfg.Validate()
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("config: http_addr must be set")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("config: max_body_bytes must be positive, got %d", c.MaxBodyBytes)
	}
	if c.AllowedExtensions.Len() == 0 {
		return errors.New("config: allowed_extensions must not be empty")
	}
	switch c.RemBG.Engine {
	case EngineBorderKey, EngineNone:
	case EngineBiRefNet:
		if c.RemBG.BiRefNet.BaseURL == "" {
			return errors.New("config: rembg.birefnet.base_url must be set")
		}
	default:
		return fmt.Errorf("config: unknown rembg engine %q", c.RemBG.Engine)
	}
	if c.RemBG.Tolerance < 0 {
		return fmt.Errorf("config: rembg.tolerance must not be negative, got %v", c.RemBG.Tolerance)
	}
	return nil
}

// ExtensionSet 允许的文件后缀（小写、无前导点），构造后不可修改。
type ExtensionSet struct {
	exts map[string]struct{}
}

func NewExtensionSet(exts ...string) ExtensionSet {
	m := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			m[e] = struct{}{}
		}
	}
	return ExtensionSet{exts: m}
}

func (s ExtensionSet) Contains(ext string) bool {
	_, ok := s.exts[ext]
	return ok
}

func (s ExtensionSet) Len() int { return len(s.exts) }

// List 返回排序后的后缀列表
func (s ExtensionSet) List() []string {
	out := make([]string, 0, len(s.exts))
	for e := range s.exts {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func (s *ExtensionSet) UnmarshalYAML(value *yaml.Node) error {
	var list []string
	if err := value.Decode(&list); err != nil {
		return fmt.Errorf("allowed_extensions: %w", err)
	}
	*s = NewExtensionSet(list...)
	return nil
}

func (s ExtensionSet) MarshalYAML() (interface{}, error) {
	return s.List(), nil
}
