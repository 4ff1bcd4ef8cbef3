package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/ByLCY/flexpaint/config"
	"github.com/ByLCY/flexpaint/dsl"
	"github.com/ByLCY/flexpaint/layout"
	"github.com/ByLCY/flexpaint/renderer"
	canvasrenderer "github.com/ByLCY/flexpaint/renderer/canvas"
	"github.com/ByLCY/flexpaint/renderer/raster"
	"github.com/ByLCY/flexpaint/resource"
)

func main() {
	input := flag.String("in", "examples/demo.flex", "场景文件路径（DSL，或 .yaml/.yml）")
	output := flag.String("out", "output/demo.png", "位图输出路径")
	debug := flag.String("debug", "", "布局调试 JSON 输出路径")
	dataJSON := flag.String("data", "", "绑定到模板的 JSON 数据")
	configPath := flag.String("config", "", "TOML 配置文件路径")
	parallel := flag.Bool("parallel", false, "并行执行布局与绘制")
	format := flag.String("format", "", "输出格式：png、bmp、tiff（默认按扩展名推断）")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "读取配置失败: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	// 显式给出的命令行参数覆盖配置文件
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "parallel":
			cfg.Parallel.Layout, cfg.Parallel.Paint = *parallel, *parallel
		case "format":
			cfg.Output.Format = *format
		case "debug":
			cfg.Output.Debug = *debug
		}
	})

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	layout.SetLogger(logger)
	raster.SetLogger(logger)

	var inputData any
	if *dataJSON != "" {
		if err := json.Unmarshal([]byte(*dataJSON), &inputData); err != nil {
			logger.Error("解析 data JSON 失败", "err", err)
			os.Exit(1)
		}
	}

	if err := run(*input, *output, inputData, cfg, logger); err != nil {
		logger.Error("生成位图失败", "err", err)
		os.Exit(1)
	}
	fmt.Printf("已生成位图：%s\n", *output)
}

// run 串联加载、样式解析、布局与合成。
func run(inputPath, outputPath string, data any, cfg config.Config, logger *slog.Logger) error {
	scene, err := loadScene(inputPath, data)
	if err != nil {
		return err
	}
	for _, w := range scene.Warnings {
		logger.Warn("场景警告", "msg", w)
	}

	baseDir := cfg.Assets.Dir
	if baseDir == "" {
		baseDir = filepath.Dir(inputPath)
	}
	fonts, err := resource.DefaultFonts()
	if err != nil {
		return fmt.Errorf("加载内置字体失败: %w", err)
	}
	registerFonts(fonts, baseDir, cfg, scene, logger)
	images := resource.NewImages(baseDir)

	width, height := scene.Width, scene.Height
	if width <= 0 || height <= 0 {
		width, height = cfg.Canvas.Width, cfg.Canvas.Height
	}
	background := scene.Background
	if background.IsTransparent() {
		background = cfg.Background()
	}

	tree, diags := layout.ResolveStyles(scene.Root, layout.DefaultContext())
	geo, layoutDiags, err := layout.ComputeLayout(tree, layout.Constraints{Width: width, Height: height}, layout.Options{
		Measurer:   canvasrenderer.NewMeasurer(fonts),
		Images:     images,
		Parallel:   cfg.Parallel.Layout,
		Background: background,
	})
	if err != nil {
		return fmt.Errorf("布局计算失败: %w", err)
	}
	diags = append(diags, layoutDiags...)

	var r renderer.Renderer = &raster.Renderer{
		Resources: raster.Resources{Fonts: fonts, Images: images},
		Options:   []raster.Option{raster.WithParallel(cfg.Parallel.Paint)},
	}
	img, paintDiags, err := r.Render(geo)
	if err != nil {
		return fmt.Errorf("合成失败: %w", err)
	}
	diags = append(diags, paintDiags...)
	for _, d := range diags {
		logger.Warn("诊断", "kind", d.Kind.String(), "node", d.Path, "attr", d.Attr, "msg", d.Message)
	}

	if cfg.Output.Debug != "" {
		if err := writeDebug(cfg.Output.Debug, geo, diags); err != nil {
			return err
		}
	}
	return writeImage(outputPath, cfg.Output.Format, img)
}

func loadScene(path string, data any) (*dsl.Scene, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("无法打开场景文件 %s: %w", path, err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return dsl.LoadYAML(file, data)
	}
	doc, err := dsl.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("解析 DSL 失败: %w", err)
	}
	return dsl.Load(doc, data)
}

// registerFonts 登记配置与场景中声明的字体；单个字体失败只记录警告，文本退回默认字体。
func registerFonts(fonts *resource.Fonts, baseDir string, cfg config.Config, scene *dsl.Scene, logger *slog.Logger) {
	add := func(family, src string, weight int, italic bool) {
		if !strings.HasPrefix(src, "embed:") && !filepath.IsAbs(src) {
			src = filepath.Join(baseDir, src)
		}
		if err := fonts.AddFile(family, src, weight, italic); err != nil {
			logger.Warn("字体加载失败", "family", family, "src", src, "err", err)
		}
	}
	for _, f := range cfg.Fonts {
		add(f.Family, f.Src, f.Weight, f.Italic)
	}
	for _, f := range scene.Fonts {
		weight := layout.DefaultFontWeight
		if f.Weight != "" {
			w, err := layout.ParseWeight(f.Weight)
			if err != nil {
				logger.Warn("字体字重无效，按常规字重登记", "family", f.Family, "err", err)
			} else {
				weight = w
			}
		}
		add(f.Family, f.Src, weight, f.Italic)
	}
}

func writeDebug(path string, geo *layout.Geometry, diags layout.Diagnostics) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建调试目录失败: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建调试文件失败: %w", err)
	}
	defer f.Close()
	if err := layout.EncodeDebugJSON(f, geo, diags); err != nil {
		return fmt.Errorf("输出调试 JSON 失败: %w", err)
	}
	return nil
}

func writeImage(path, format string, img image.Image) error {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	encode, err := encoderFor(format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建输出文件失败: %w", err)
	}
	if err := encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("编码 %s 失败: %w", format, err)
	}
	return f.Close()
}

func encoderFor(format string) (func(io.Writer, image.Image) error, error) {
	switch strings.ToLower(format) {
	case "", "png":
		return png.Encode, nil
	case "bmp":
		return bmp.Encode, nil
	case "tif", "tiff":
		return func(w io.Writer, img image.Image) error {
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
		}, nil
	default:
		return nil, fmt.Errorf("不支持的输出格式 %q", format)
	}
}
