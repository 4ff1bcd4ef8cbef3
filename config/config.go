// Package config 读取命令行工具的 TOML 配置。命令行参数优先于配置文件。
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/ByLCY/flexpaint/layout"
)

// ErrInvalidConfig 表示配置值非法。
var ErrInvalidConfig = errors.New("配置无效")

// Config 是完整配置。
type Config struct {
	Canvas   CanvasConfig   `toml:"canvas"`
	Fonts    []FontConfig   `toml:"fonts"`
	Assets   AssetsConfig   `toml:"assets"`
	Log      LogConfig      `toml:"log"`
	Output   OutputConfig   `toml:"output"`
	Parallel ParallelConfig `toml:"parallel"`
}

// CanvasConfig 是文档未声明画布时使用的默认值。
type CanvasConfig struct {
	Width      float64 `toml:"width"`
	Height     float64 `toml:"height"`
	Background string  `toml:"background"`
}

// FontConfig 登记一个额外字体，src 支持文件路径与 "embed:" 前缀。
type FontConfig struct {
	Family string `toml:"family"`
	Src    string `toml:"src"`
	Weight int    `toml:"weight"`
	Italic bool   `toml:"italic"`
}

type AssetsConfig struct {
	// Dir 是图片与字体相对路径的根目录，为空时使用输入文件所在目录。
	Dir string `toml:"dir"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type OutputConfig struct {
	// Format 为 png、bmp 或 tiff；为空时按输出文件扩展名推断。
	Format string `toml:"format"`
	Debug  string `toml:"debug"`
}

type ParallelConfig struct {
	Layout bool `toml:"layout"`
	Paint  bool `toml:"paint"`
}

// Default 返回默认配置。
func Default() Config {
	return Config{
		Canvas: CanvasConfig{Width: 800, Height: 600},
		Log:    LogConfig{Level: "info"},
	}
}

// Load 读取配置文件并与默认值合并。
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("打开配置文件 %s: %w", path, err)
	}
	defer f.Close()
	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode 从 r 解码 TOML，未知字段视为错误。
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("解析配置: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 检查各字段取值。
func (c Config) Validate() error {
	var errs []error
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		errs = append(errs, fmt.Errorf("画布尺寸 %gx%g 必须为正: %w", c.Canvas.Width, c.Canvas.Height, ErrInvalidConfig))
	}
	if c.Canvas.Background != "" {
		if _, err := layout.ParseColor(c.Canvas.Background); err != nil {
			errs = append(errs, fmt.Errorf("canvas.background: %w: %w", ErrInvalidConfig, err))
		}
	}
	for i, f := range c.Fonts {
		if f.Family == "" || f.Src == "" {
			errs = append(errs, fmt.Errorf("fonts[%d] 需要 family 与 src: %w", i, ErrInvalidConfig))
		}
		if f.Weight < 0 || f.Weight > 1000 {
			errs = append(errs, fmt.Errorf("fonts[%d].weight %d 超出范围: %w", i, f.Weight, ErrInvalidConfig))
		}
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Output.Format) {
	case "", "png", "bmp", "tiff", "tif":
	default:
		errs = append(errs, fmt.Errorf("未知输出格式 %q: %w", c.Output.Format, ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// SlogLevel 返回日志级别，非法值按 info 处理。
func (c Config) SlogLevel() slog.Level {
	l, err := parseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(v string) (slog.Level, error) {
	if v == "" {
		return slog.LevelInfo, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		return 0, fmt.Errorf("日志级别 %q: %w", v, ErrInvalidConfig)
	}
	return l, nil
}

// Background 返回解析后的画布底色，未设置时为透明。
func (c Config) Background() layout.Color {
	if c.Canvas.Background == "" {
		return layout.Transparent
	}
	col, err := layout.ParseColor(c.Canvas.Background)
	if err != nil {
		return layout.Transparent
	}
	return col
}
