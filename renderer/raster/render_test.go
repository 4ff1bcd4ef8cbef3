package raster

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/ByLCY/flexpaint/layout"
)

// monoMeasurer 与 monoFont 配套：每个字符宽 size/2。
type monoMeasurer struct{}

func (monoMeasurer) Measure(text string, font layout.FontSpec, maxWidth float64) (layout.TextMetrics, error) {
	cw := font.Size / 2
	var lines []layout.TextLine
	for _, l := range strings.Split(text, "\n") {
		lines = append(lines, layout.TextLine{Text: l, Width: float64(utf8.RuneCountInString(l)) * cw})
	}
	return layout.TextMetrics{
		Lines:       lines,
		TotalHeight: font.LineHeight * float64(len(lines)),
		Ascent:      font.Size * 0.8,
		Descent:     font.Size * 0.2,
	}, nil
}

// monoFont 把每个非空白字符画成宽 0.8*advance、高 0.7*size 的实心矩形。
type monoFont struct{}

func (monoFont) Shape(text string, font layout.FontSpec) (GlyphRun, error) {
	adv := font.Size / 2
	w, h := fixed.Int26_6(adv*0.8*64), fixed.Int26_6(font.Size*0.7*64)
	var run GlyphRun
	for _, r := range text {
		if r != ' ' {
			run.Glyphs = append(run.Glyphs, Glyph{X: run.Advance, Segments: sfnt.Segments{
				{Op: sfnt.SegmentOpMoveTo, Args: [3]fixed.Point26_6{{X: 0, Y: -h}}},
				{Op: sfnt.SegmentOpLineTo, Args: [3]fixed.Point26_6{{X: w, Y: -h}}},
				{Op: sfnt.SegmentOpLineTo, Args: [3]fixed.Point26_6{{X: w, Y: 0}}},
				{Op: sfnt.SegmentOpLineTo, Args: [3]fixed.Point26_6{{X: 0, Y: 0}}},
			}})
		}
		run.Advance += adv
	}
	return run, nil
}

// solidImages 提供纯色测试图片，同时实现 layout.ImageSizer。
type solidImages map[string]*image.RGBA

func (s solidImages) Load(uri string) (image.Image, error) {
	if img, ok := s[uri]; ok {
		return img, nil
	}
	return nil, fmt.Errorf("%s: %w", uri, layout.ErrResourceLoad)
}

func (s solidImages) NaturalSize(uri string) (int, int, error) {
	img, err := s.Load(uri)
	if err != nil {
		return 0, 0, err
	}
	return img.Bounds().Dx(), img.Bounds().Dy(), nil
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

var (
	red    = color.RGBA{255, 0, 0, 255}
	blue   = color.RGBA{0, 0, 255, 255}
	images = solidImages{"photo": solid(1920, 1080, red)}
)

func box(kind layout.NodeKind, attrs map[string]string, children ...*layout.RawNode) *layout.RawNode {
	return &layout.RawNode{Kind: kind, Attrs: attrs, Children: children}
}

func paint(t *testing.T, raw *layout.RawNode, w, h float64, opts ...Option) (*image.RGBA, layout.Diagnostics) {
	t.Helper()
	tree, _ := layout.ResolveStyles(raw, layout.DefaultContext())
	geo, _, err := layout.ComputeLayout(tree, layout.Constraints{Width: w, Height: h},
		layout.Options{Measurer: monoMeasurer{}, Images: images})
	require.NoError(t, err)
	img, diags, err := Render(geo, Resources{Fonts: monoFont{}, Images: images}, opts...)
	require.NoError(t, err)
	return img, diags
}

func TestImageFitLetterboxes(t *testing.T) {
	raw := box(layout.KindContainer, nil,
		&layout.RawNode{Kind: layout.KindImage, Source: "photo", Attrs: map[string]string{"width": "100", "height": "100"}},
	)
	img, diags := paint(t, raw, 100, 100)
	require.Empty(t, diags)

	// 1920x1080 等比缩放到 100x56，上下各留 22px 透明带
	for _, y := range []int{0, 21, 78, 99} {
		require.Zero(t, img.RGBAAt(50, y).A, "y=%d 应透明", y)
	}
	for _, y := range []int{23, 50, 76} {
		require.Equal(t, red, img.RGBAAt(50, y), "y=%d 应为图片像素", y)
	}
}

func TestImageFillCoversContentBox(t *testing.T) {
	raw := box(layout.KindContainer, nil,
		&layout.RawNode{Kind: layout.KindImage, Source: "photo", Attrs: map[string]string{"width": "100", "height": "100", "scale-mode": "fill"}},
	)
	img, _ := paint(t, raw, 100, 100)
	for _, p := range []image.Point{{0, 0}, {99, 0}, {50, 50}, {0, 99}, {99, 99}} {
		require.Equal(t, uint8(255), img.RGBAAt(p.X, p.Y).A, "fill 模式不应留边：%v", p)
	}
}

func TestMissingImagePaintsPlaceholder(t *testing.T) {
	raw := box(layout.KindContainer, nil,
		&layout.RawNode{Kind: layout.KindImage, Source: "missing", Attrs: map[string]string{"width": "50", "height": "50"}},
	)
	img, diags := paint(t, raw, 100, 100)
	require.True(t, diags.Has(layout.ResourceLoadFailure))
	require.Equal(t, color.RGBA{204, 204, 204, 255}, img.RGBAAt(25, 25))
	require.Zero(t, img.RGBAAt(75, 75).A)
}

func TestZeroOpacityMatchesOmission(t *testing.T) {
	sq := func(bg, op string) *layout.RawNode {
		attrs := map[string]string{"width": "50", "height": "50"}
		if bg != "" {
			attrs["background"] = bg
		}
		if op != "" {
			attrs["opacity"] = op
		}
		return box(layout.KindContainer, attrs)
	}
	withHidden := box(layout.KindContainer, map[string]string{"background": "#ffffff"},
		sq("#0000ff", ""), sq("#ff0000", "0"))
	without := box(layout.KindContainer, map[string]string{"background": "#ffffff"},
		sq("#0000ff", ""), sq("", ""))

	a, _ := paint(t, withHidden, 100, 100)
	b, _ := paint(t, without, 100, 100)
	require.Equal(t, b.Pix, a.Pix)
}

func TestRenderIsDeterministic(t *testing.T) {
	raw := box(layout.KindContainer, map[string]string{"background": "#fafafa", "padding": "7"},
		box(layout.KindContainer, map[string]string{"height": "33.3", "background": "rgba(10, 120, 200, 0.6)", "corner-radius": "9"}),
		&layout.RawNode{Kind: layout.KindText, Text: "hello world", Attrs: map[string]string{"size": "13"}},
		&layout.RawNode{Kind: layout.KindImage, Source: "photo", Attrs: map[string]string{"height": "40", "corner-radius": "6"}},
	)
	a, _ := paint(t, raw, 120, 130)
	b, _ := paint(t, raw, 120, 130)
	require.Equal(t, a.Pix, b.Pix)
}

func TestRoundedCornerAntialiasing(t *testing.T) {
	raw := box(layout.KindContainer, nil,
		box(layout.KindContainer, map[string]string{"width": "100", "height": "100", "background": "#000000", "corner-radius": "20"}),
	)
	img, _ := paint(t, raw, 100, 100)
	require.Zero(t, img.RGBAAt(0, 0).A, "圆角外应透明")
	require.Equal(t, uint8(255), img.RGBAAt(50, 50).A)
	a := img.RGBAAt(5, 5).A
	require.True(t, a > 0 && a < 255, "圆弧上的像素应部分覆盖，实际 alpha=%d", a)
}

func TestBorderRing(t *testing.T) {
	raw := box(layout.KindContainer, nil,
		box(layout.KindContainer, map[string]string{"width": "40", "height": "40", "border-width": "4", "border-color": "#0000ff"}),
	)
	img, _ := paint(t, raw, 40, 40)
	require.Equal(t, blue, img.RGBAAt(1, 20))
	require.Equal(t, blue, img.RGBAAt(20, 38))
	require.Zero(t, img.RGBAAt(20, 20).A, "边框内部不应填充")
}

func TestGroupOpacityBlendsOnce(t *testing.T) {
	full := func(bg string) *layout.RawNode {
		return box(layout.KindContainer, map[string]string{"width": "100", "height": "100", "background": bg})
	}
	raw := box(layout.KindContainer, nil,
		box(layout.KindContainer, map[string]string{"layered": "true", "width": "100", "height": "100", "opacity": "0.5"},
			full("#ff0000"), full("#0000ff")),
	)
	img, _ := paint(t, raw, 100, 100)
	// 整组先合成再乘以不透明度，下层红色不会透出
	require.Equal(t, color.RGBA{0, 0, 128, 128}, img.RGBAAt(50, 50))
}

func TestZIndexOrdersLayeredChildren(t *testing.T) {
	full := func(bg, z string) *layout.RawNode {
		return box(layout.KindContainer, map[string]string{"width": "100", "height": "100", "background": bg, "z-index": z})
	}
	raw := box(layout.KindContainer, map[string]string{"layered": "true"},
		full("#ff0000", "2"), full("#0000ff", "1"))
	img, _ := paint(t, raw, 100, 100)
	require.Equal(t, red, img.RGBAAt(50, 50))
}

func TestOverflowHiddenClipsChildren(t *testing.T) {
	raw := box(layout.KindContainer, nil,
		box(layout.KindContainer, map[string]string{"width": "50", "height": "50", "overflow": "visible"},
			box(layout.KindContainer, map[string]string{"width": "100", "height": "100", "background": "#ff0000"})),
	)
	visible, _ := paint(t, raw, 100, 100)
	raw.Children[0].Attrs["overflow"] = "hidden"
	hidden, _ := paint(t, raw, 100, 100)

	require.Equal(t, red, hidden.RGBAAt(25, 25))
	require.Zero(t, hidden.RGBAAt(75, 25).A, "超出父节点的部分应被裁掉")
	require.Equal(t, red, visible.RGBAAt(75, 25))
}

func TestTextGlyphsPainted(t *testing.T) {
	raw := box(layout.KindContainer, nil,
		&layout.RawNode{Kind: layout.KindText, Text: "ab", Attrs: map[string]string{"size": "20", "line-height": "20px", "color": "#000000"}},
	)
	img, diags := paint(t, raw, 200, 50)
	require.Empty(t, diags)
	// 基线 y=16，字形覆盖 y∈[2,16)，第一个字形 x∈[0,8)，第二个 x∈[10,18)
	require.Equal(t, uint8(255), img.RGBAAt(4, 10).A)
	require.Equal(t, uint8(255), img.RGBAAt(14, 10).A)
	require.Zero(t, img.RGBAAt(9, 10).A)
	require.Zero(t, img.RGBAAt(4, 18).A)
	require.Zero(t, img.RGBAAt(30, 10).A)
}

func TestTextCenterAlignment(t *testing.T) {
	raw := box(layout.KindContainer, nil,
		&layout.RawNode{Kind: layout.KindText, Text: "ab", Attrs: map[string]string{"size": "20", "line-height": "20px", "text-align": "center"}},
	)
	img, _ := paint(t, raw, 200, 50)
	// 行宽 20，居中后起点 x=90
	require.Zero(t, img.RGBAAt(4, 10).A)
	require.Equal(t, uint8(255), img.RGBAAt(94, 10).A)
}

func TestMissingFontsReportDiagnostic(t *testing.T) {
	raw := box(layout.KindContainer, nil,
		&layout.RawNode{Kind: layout.KindText, Text: "ab"},
	)
	tree, _ := layout.ResolveStyles(raw, layout.DefaultContext())
	geo, _, err := layout.ComputeLayout(tree, layout.Constraints{Width: 100, Height: 50}, layout.Options{Measurer: monoMeasurer{}})
	require.NoError(t, err)
	_, diags, err := Render(geo, Resources{})
	require.NoError(t, err)
	require.Equal(t, 1, diags.Count(layout.ResourceLoadFailure))
	require.Equal(t, 1, diags[0].Node)
}

func TestParallelMatchesSequential(t *testing.T) {
	cell := func(bg string, kids ...*layout.RawNode) *layout.RawNode {
		return box(layout.KindContainer, map[string]string{"grow": "1", "background": bg, "padding": "3", "opacity": "0.8"}, kids...)
	}
	raw := box(layout.KindContainer, map[string]string{"direction": "row", "background": "#202020"},
		cell("#ff0000", &layout.RawNode{Kind: layout.KindText, Text: "left side", Attrs: map[string]string{"size": "11"}}),
		cell("#00ff00", &layout.RawNode{Kind: layout.KindImage, Source: "photo", Attrs: map[string]string{"height": "30"}}),
		cell("#0000ff", box(layout.KindContainer, map[string]string{"height": "20", "corner-radius": "5", "background": "#ffffff"})),
		cell("#ff00ff", &layout.RawNode{Kind: layout.KindImage, Source: "missing", Attrs: map[string]string{"height": "30"}}),
	)
	// 200 宽时各列像素范围互不相交，走并行路径；197 宽时相邻列共享像素，退回顺序绘制
	for _, w := range []float64{200, 197} {
		seq, seqDiags := paint(t, raw, w, 61)
		par, parDiags := paint(t, raw, w, 61, WithParallel(true))
		require.Equal(t, seq.Pix, par.Pix, "width=%g", w)
		require.Equal(t, seqDiags, parDiags, "width=%g", w)
	}
}

func TestRenderRejectsBadGeometry(t *testing.T) {
	_, _, err := Render(nil, Resources{})
	require.ErrorIs(t, err, ErrNoGeometry)

	tree, _ := layout.ResolveStyles(box(layout.KindContainer, nil), layout.DefaultContext())
	geo := &layout.Geometry{Width: 0, Height: 10, Tree: tree, Nodes: make([]layout.GeometryNode, 1)}
	_, _, err = Render(geo, Resources{})
	require.ErrorIs(t, err, layout.ErrInvalidCanvas)
}
