package raster

import (
	"image"
	"math"

	"golang.org/x/image/vector"

	"github.com/ByLCY/flexpaint/layout"
)

// 圆角用三次贝塞尔近似四分之一圆。
const kappa = 0.5522847498

type point struct{ x, y float64 }

// segment 是从上一个端点到 p 的一段；cubic 为 false 时是直线。
type segment struct {
	c1, c2, p point
	cubic     bool
}

// contour 是一个闭合轮廓：起点加若干段。
type contour struct {
	start point
	segs  []segment
}

// roundedRect 生成顺时针（屏幕坐标）的圆角矩形轮廓，半径被钳制到短边的一半。
func roundedRect(r layout.Rect, radius float64) contour {
	radius = math.Max(0, math.Min(radius, math.Min(r.W, r.H)/2))
	x0, y0, x1, y1 := r.X, r.Y, r.Right(), r.Bottom()
	if radius == 0 {
		return contour{start: point{x0, y0}, segs: []segment{
			{p: point{x1, y0}}, {p: point{x1, y1}}, {p: point{x0, y1}}, {p: point{x0, y0}},
		}}
	}
	k := radius * kappa
	arc := func(c1, c2, p point) segment { return segment{c1: c1, c2: c2, p: p, cubic: true} }
	return contour{start: point{x0 + radius, y0}, segs: []segment{
		{p: point{x1 - radius, y0}},
		arc(point{x1 - radius + k, y0}, point{x1, y0 + radius - k}, point{x1, y0 + radius}),
		{p: point{x1, y1 - radius}},
		arc(point{x1, y1 - radius + k}, point{x1 - radius + k, y1}, point{x1 - radius, y1}),
		{p: point{x0 + radius, y1}},
		arc(point{x0 + radius - k, y1}, point{x0, y1 - radius + k}, point{x0, y1 - radius}),
		{p: point{x0, y0 + radius}},
		arc(point{x0, y0 + radius - k}, point{x0 + radius - k, y0}, point{x0 + radius, y0}),
	}}
}

// reversed 返回方向相反的同一轮廓，用于在环形中挖洞。
func (c contour) reversed() contour {
	n := len(c.segs)
	if n == 0 {
		return c
	}
	out := contour{start: c.segs[n-1].p, segs: make([]segment, 0, n)}
	for i := n - 1; i >= 0; i-- {
		prev := c.start
		if i > 0 {
			prev = c.segs[i-1].p
		}
		s := c.segs[i]
		out.segs = append(out.segs, segment{c1: s.c2, c2: s.c1, p: prev, cubic: s.cubic})
	}
	return out
}

// coverage 把若干轮廓光栅化为 bounds 范围内的覆盖率蒙版。
// bounds 必须完整包含轮廓的水平范围，否则累加式光栅化会丢失左侧边。
func coverage(bounds image.Rectangle, contours ...contour) *image.Alpha {
	mask := image.NewAlpha(bounds)
	if bounds.Empty() {
		return mask
	}
	z := vector.NewRasterizer(bounds.Dx(), bounds.Dy())
	ox, oy := float64(bounds.Min.X), float64(bounds.Min.Y)
	pt := func(p point) (float32, float32) { return float32(p.x - ox), float32(p.y - oy) }
	for _, c := range contours {
		if len(c.segs) == 0 {
			continue
		}
		z.MoveTo(pt(c.start))
		for _, s := range c.segs {
			if s.cubic {
				bx, by := pt(s.c1)
				cx, cy := pt(s.c2)
				dx, dy := pt(s.p)
				z.CubeTo(bx, by, cx, cy, dx, dy)
			} else {
				z.LineTo(pt(s.p))
			}
		}
		z.ClosePath()
	}
	z.Draw(mask, mask.Rect, image.Opaque, image.Point{})
	return mask
}

// boxMask 返回盒子背景的覆盖率蒙版。
func boxMask(r layout.Rect, radius float64) *image.Alpha {
	return coverage(pixelBounds(r), roundedRect(r, radius))
}

// borderMask 返回边框环的覆盖率蒙版：外轮廓为 border-box，内轮廓内缩 bw，半径相应减小。
func borderMask(r layout.Rect, radius, bw float64) *image.Alpha {
	inner := r.Inset(layout.Edges{Top: bw, Right: bw, Bottom: bw, Left: bw})
	outer := roundedRect(r, radius)
	if inner.W <= 0 || inner.H <= 0 {
		return coverage(pixelBounds(r), outer)
	}
	return coverage(pixelBounds(r), outer, roundedRect(inner, math.Max(radius-bw, 0)).reversed())
}
