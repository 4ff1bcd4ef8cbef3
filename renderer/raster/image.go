package raster

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/ByLCY/flexpaint/layout"
)

// placeholderColor 是图片加载失败时占位框的填充色。
var placeholderColor = layout.Color{R: 204, G: 204, B: 204, A: 255}

// imageTarget 按缩放模式计算源图在内容框中的目标矩形（画布坐标）。
// fit 的目标尺寸向下取整，与整数缩放的结果一致：1920×1080 放进 100×100 得到 100×56。
func imageTarget(mode layout.ScaleMode, content layout.Rect, srcW, srcH int) layout.Rect {
	sw, sh := float64(srcW), float64(srcH)
	var w, h float64
	switch mode {
	case layout.ScaleStretch:
		w, h = content.W, content.H
	case layout.ScaleCenter:
		w, h = sw, sh
	case layout.ScaleFill:
		s := math.Max(content.W/sw, content.H/sh)
		w, h = math.Ceil(sw*s-1e-9), math.Ceil(sh*s-1e-9)
	default:
		s := math.Min(content.W/sw, content.H/sh)
		w, h = math.Floor(sw*s+1e-9), math.Floor(sh*s+1e-9)
	}
	return layout.Rect{
		X: content.X + math.Floor((content.W-w)/2),
		Y: content.Y + math.Floor((content.H-h)/2),
		W: w,
		H: h,
	}
}

// scaleImage 用一个仿射变换把 src 画到 target，结果裁剪到 clip。
// 返回的缓冲区为预乘 RGBA，坐标与画布一致。
func scaleImage(src image.Image, target layout.Rect, clip image.Rectangle) *image.RGBA {
	sb := src.Bounds()
	out := image.NewRGBA(pixelBounds(target).Intersect(clip))
	if out.Rect.Empty() || sb.Empty() {
		return out
	}
	sx := target.W / float64(sb.Dx())
	sy := target.H / float64(sb.Dy())
	m := f64.Aff3{
		sx, 0, target.X - float64(sb.Min.X)*sx,
		0, sy, target.Y - float64(sb.Min.Y)*sy,
	}
	xdraw.BiLinear.Transform(out, m, src, sb, xdraw.Src, nil)
	return out
}

// applyTint 把预乘像素乘以着色颜色，着色 alpha 决定强度。
func applyTint(img *image.RGBA, tint layout.Color) {
	if tint.A == 0 {
		return
	}
	strength := uint32(tint.A)
	factor := func(c uint8) uint32 {
		// 255*(1-s) + c*s，结果仍在 0..255
		return div255(255*(255-strength) + uint32(c)*strength)
	}
	fr, fg, fb := factor(tint.R), factor(tint.G), factor(tint.B)
	for i := 0; i+3 < len(img.Pix); i += 4 {
		img.Pix[i+0] = uint8(div255(uint32(img.Pix[i+0]) * fr))
		img.Pix[i+1] = uint8(div255(uint32(img.Pix[i+1]) * fg))
		img.Pix[i+2] = uint8(div255(uint32(img.Pix[i+2]) * fb))
	}
}

// paintImage 绘制图片节点；加载失败时绘制占位框并返回错误供调用方记录诊断。
func (p *painter) paintImage(dst *image.RGBA, idx int, clip image.Rectangle, op uint8) error {
	n := &p.geo.Tree.Nodes[idx]
	g := &p.geo.Nodes[idx]
	st := &n.Style
	content := g.Content
	if content.W <= 0 || content.H <= 0 || n.Empty {
		return nil
	}
	box := pixelBounds(content).Intersect(clip)
	var radius float64
	if st.CornerRadius > 0 {
		// 内容框的圆角随内边距与边框缩小
		radius = math.Max(st.CornerRadius-math.Max(st.Padding.Left, st.Padding.Top)-st.BorderWidth, 0)
	}

	var src image.Image
	var err error
	if p.res.Images == nil {
		err = layout.ErrResourceLoad
	} else {
		src, err = p.res.Images.Load(n.Source)
	}
	if err != nil || src == nil || src.Bounds().Empty() {
		if err == nil {
			err = layout.ErrResourceLoad
		}
		fillMask(dst, boxMask(content, radius), box, placeholderColor, op)
		return err
	}

	tmp := scaleImage(src, imageTarget(st.Image.ScaleMode, content, src.Bounds().Dx(), src.Bounds().Dy()), box)
	if st.Image.Tint != nil {
		applyTint(tmp, *st.Image.Tint)
	}
	var mask *image.Alpha
	if radius > 0 {
		mask = boxMask(content, radius)
	}
	composite(dst, tmp, mask, box, op)
	return nil
}
