package raster

import (
	"image"
	"math"

	"github.com/ByLCY/flexpaint/layout"
)

// 所有缓冲区都是预乘 alpha 的 *image.RGBA，合成一律使用 source-over：
// D' = S + D*(1-Sa)。除法使用精确的 div255，保证 alpha=0 时结果与不绘制完全一致。

func div255(x uint32) uint32 {
	t := x + 1
	return (t + (t >> 8)) >> 8
}

func mul255(a, b uint8) uint8 {
	return uint8(div255(uint32(a) * uint32(b)))
}

// opacity8 把 [0,1] 的不透明度量化为 0..255。
func opacity8(o float64) uint8 {
	if o <= 0 {
		return 0
	}
	if o >= 1 {
		return 255
	}
	return uint8(math.Round(o * 255))
}

// premul 是预乘后的源颜色。
type premul struct{ r, g, b, a uint8 }

func premultiply(c layout.Color, op uint8) premul {
	a := mul255(c.A, op)
	return premul{mul255(c.R, a), mul255(c.G, a), mul255(c.B, a), a}
}

// over 把一个预乘像素按覆盖率 cov 合成到 dst 的 i 处。
func over(pix []uint8, i int, s premul, cov uint8) {
	if cov != 255 {
		s = premul{mul255(s.r, cov), mul255(s.g, cov), mul255(s.b, cov), mul255(s.a, cov)}
	}
	if s.a == 0 && s.r == 0 && s.g == 0 && s.b == 0 {
		return
	}
	inv := 255 - s.a
	pix[i+0] = s.r + mul255(pix[i+0], inv)
	pix[i+1] = s.g + mul255(pix[i+1], inv)
	pix[i+2] = s.b + mul255(pix[i+2], inv)
	pix[i+3] = s.a + mul255(pix[i+3], inv)
}

// fillMask 按覆盖率蒙版用纯色填充，只写入 clip 内的像素。
func fillMask(dst *image.RGBA, mask *image.Alpha, clip image.Rectangle, c layout.Color, op uint8) {
	src := premultiply(c, op)
	if src.a == 0 {
		return
	}
	r := mask.Rect.Intersect(dst.Rect).Intersect(clip)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		mi := mask.PixOffset(r.Min.X, y)
		di := dst.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x++ {
			if cov := mask.Pix[mi]; cov != 0 {
				over(dst.Pix, di, src, cov)
			}
			mi++
			di += 4
		}
	}
}

// fillRect 用纯色填充整像素矩形。
func fillRect(dst *image.RGBA, r image.Rectangle, c layout.Color) {
	src := premultiply(c, 255)
	r = r.Intersect(dst.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := dst.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x++ {
			over(dst.Pix, i, src, 255)
			i += 4
		}
	}
}

// composite 把预乘缓冲 src 以不透明度 op 合成到 dst；mask 非空时再乘以覆盖率。
func composite(dst, src *image.RGBA, mask *image.Alpha, clip image.Rectangle, op uint8) {
	r := src.Rect.Intersect(dst.Rect).Intersect(clip)
	if mask != nil {
		r = r.Intersect(mask.Rect)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		si := src.PixOffset(r.Min.X, y)
		di := dst.PixOffset(r.Min.X, y)
		mi := 0
		if mask != nil {
			mi = mask.PixOffset(r.Min.X, y)
		}
		for x := r.Min.X; x < r.Max.X; x++ {
			cov := op
			if mask != nil {
				cov = mul255(cov, mask.Pix[mi])
				mi++
			}
			if cov != 0 {
				s := premul{src.Pix[si], src.Pix[si+1], src.Pix[si+2], src.Pix[si+3]}
				over(dst.Pix, di, s, cov)
			}
			si += 4
			di += 4
		}
	}
}

// pixelBounds 把浮点矩形向外取整为像素矩形。
func pixelBounds(r layout.Rect) image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X+1e-9)), int(math.Floor(r.Y+1e-9)),
		int(math.Ceil(r.Right()-1e-9)), int(math.Ceil(r.Bottom()-1e-9)),
	)
}
