package layout

import "math"

// Options 配置布局阶段所需的外部协作者。
type Options struct {
	Measurer TextMeasurer
	Images   ImageSizer
	// Parallel 为 true 时，同级子树的测量与求解以 fork-join 方式并发执行。
	Parallel bool
	// Background 是画布底色，原样写入 Geometry。
	Background Color
}

// TextMeasurer 负责在给定最大宽度下将文本折行并返回度量。
// maxWidth 为 +Inf 表示不限宽。实现必须可并发调用。
type TextMeasurer interface {
	Measure(text string, font FontSpec, maxWidth float64) (TextMetrics, error)
}

// ImageSizer 返回图片的自然尺寸（px）。失败时应返回包装了 ErrResourceLoad 的错误。
type ImageSizer interface {
	NaturalSize(uri string) (w, h int, err error)
}

// Unbounded 表示无宽度约束。
var Unbounded = math.Inf(1)

func isUnbounded(w float64) bool { return math.IsInf(w, 1) || w < 0 }
