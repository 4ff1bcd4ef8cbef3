package renderer

import (
	"image"

	"github.com/ByLCY/flexpaint/layout"
)

// Renderer 将布局结果绘制为 RGBA 位图。
// 单个节点的问题只产生诊断；只有几何本身不可用时才返回 error。
type Renderer interface {
	Render(geo *layout.Geometry) (*image.RGBA, layout.Diagnostics, error)
}
