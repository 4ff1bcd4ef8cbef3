package raster

import (
	"image"
	"math"
	"strings"

	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/ByLCY/flexpaint/layout"
)

// Glyph 是塑形后定位好的一个字形。X/Y 相对于字形串在基线上的起点，
// Segments 是已按字号缩放的轮廓（y 轴向下，原点为字形原点）。
type Glyph struct {
	X, Y     float64
	Segments sfnt.Segments
}

// GlyphRun 是一段文本的塑形结果。
type GlyphRun struct {
	Glyphs  []Glyph
	Advance float64
}

// FontProvider 把文本塑形为字形串。实现必须可并发调用。
type FontProvider interface {
	Shape(text string, font layout.FontSpec) (GlyphRun, error)
}

// placedRun 是放到画布坐标上的字形串。
type placedRun struct {
	run  GlyphRun
	x, y float64
}

// layoutLines 塑形每一行并按对齐方式计算基线起点。两端对齐时逐词塑形，把剩余空间均分到词间（最后一行除外）。
func layoutLines(fonts FontProvider, n *layout.StyledNode, g *layout.GeometryNode) ([]placedRun, error) {
	tb := g.Text
	font := n.Style.Text.Font
	align := n.Style.Text.Align
	var runs []placedRun
	for i, line := range tb.Lines {
		if strings.TrimSpace(line.Text) == "" {
			continue
		}
		baseline := g.Content.Y + float64(i)*tb.LineHeight + tb.Baseline()
		words := strings.Fields(line.Text)
		if align == layout.TextJustified && i < len(tb.Lines)-1 && len(words) > 1 {
			shaped := make([]GlyphRun, len(words))
			total := 0.0
			for j, w := range words {
				run, err := fonts.Shape(w, font)
				if err != nil {
					return nil, err
				}
				shaped[j] = run
				total += run.Advance
			}
			gap := math.Max((g.Content.W-total)/float64(len(words)-1), 0)
			x := g.Content.X
			for _, run := range shaped {
				runs = append(runs, placedRun{run: run, x: x, y: baseline})
				x += run.Advance + gap
			}
			continue
		}
		run, err := fonts.Shape(line.Text, font)
		if err != nil {
			return nil, err
		}
		x := g.Content.X
		switch align {
		case layout.TextCenter:
			x += (g.Content.W - run.Advance) / 2
		case layout.TextTrailing:
			x += g.Content.W - run.Advance
		}
		runs = append(runs, placedRun{run: run, x: x, y: baseline})
	}
	return runs, nil
}

// glyphBounds 计算所有字形轮廓控制点的包围盒（像素，向外取整）。
func glyphBounds(runs []placedRun) image.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, pr := range runs {
		for _, gl := range pr.run.Glyphs {
			for _, seg := range gl.Segments {
				for _, a := range seg.Args[:argCount(seg.Op)] {
					x := pr.x + gl.X + fix(a.X)
					y := pr.y + gl.Y + fix(a.Y)
					minX, maxX = math.Min(minX, x), math.Max(maxX, x)
					minY, maxY = math.Min(minY, y), math.Max(maxY, y)
				}
			}
		}
	}
	if minX > maxX {
		return image.Rectangle{}
	}
	return image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX))+1, int(math.Ceil(maxY))+1)
}

func argCount(op sfnt.SegmentOp) int {
	switch op {
	case sfnt.SegmentOpQuadTo:
		return 2
	case sfnt.SegmentOpCubeTo:
		return 3
	default:
		return 1
	}
}

func fix(v fixed.Int26_6) float64 { return float64(v) / 64 }

// glyphMask 把全部字形光栅化到一个蒙版上，每个轮廓在下一次 MoveTo 前闭合。
func glyphMask(runs []placedRun) *image.Alpha {
	bounds := glyphBounds(runs)
	mask := image.NewAlpha(bounds)
	if bounds.Empty() {
		return mask
	}
	z := vector.NewRasterizer(bounds.Dx(), bounds.Dy())
	ox, oy := float64(bounds.Min.X), float64(bounds.Min.Y)
	for _, pr := range runs {
		for _, gl := range pr.run.Glyphs {
			bx, by := pr.x+gl.X-ox, pr.y+gl.Y-oy
			at := func(p fixed.Point26_6) (float32, float32) {
				return float32(bx + fix(p.X)), float32(by + fix(p.Y))
			}
			open := false
			for _, seg := range gl.Segments {
				switch seg.Op {
				case sfnt.SegmentOpMoveTo:
					if open {
						z.ClosePath()
					}
					z.MoveTo(at(seg.Args[0]))
					open = true
				case sfnt.SegmentOpLineTo:
					z.LineTo(at(seg.Args[0]))
				case sfnt.SegmentOpQuadTo:
					x1, y1 := at(seg.Args[0])
					x2, y2 := at(seg.Args[1])
					z.QuadTo(x1, y1, x2, y2)
				case sfnt.SegmentOpCubeTo:
					x1, y1 := at(seg.Args[0])
					x2, y2 := at(seg.Args[1])
					x3, y3 := at(seg.Args[2])
					z.CubeTo(x1, y1, x2, y2, x3, y3)
				}
			}
			if open {
				z.ClosePath()
			}
		}
	}
	z.Draw(mask, mask.Rect, image.Opaque, image.Point{})
	return mask
}

// paintText 绘制文本节点，字形裁剪到节点自身的 border-box。
func (p *painter) paintText(dst *image.RGBA, idx int, clip image.Rectangle, op uint8) error {
	n := &p.geo.Tree.Nodes[idx]
	g := &p.geo.Nodes[idx]
	if n.Empty || g.Text == nil {
		return nil
	}
	if p.res.Fonts == nil {
		return layout.ErrResourceLoad
	}
	runs, err := layoutLines(p.res.Fonts, n, g)
	if err != nil {
		return err
	}
	fillMask(dst, glyphMask(runs), clip.Intersect(pixelBounds(g.Border)), n.Style.Text.Color, op)
	return nil
}
