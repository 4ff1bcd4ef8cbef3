package raster

import (
	"errors"
	"fmt"
	"image"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/ByLCY/flexpaint/layout"
)

// ErrNoGeometry 表示传入的几何为空或与样式树不一致。
var ErrNoGeometry = errors.New("几何为空或不完整")

// ImageProvider 返回已解码的图片。失败时返回包装了 layout.ErrResourceLoad 的错误。实现必须可并发调用。
type ImageProvider interface {
	Load(uri string) (image.Image, error)
}

// Resources 是一次渲染使用的资源句柄，由调用方持有并管理生命周期。
type Resources struct {
	Fonts  FontProvider
	Images ImageProvider
}

type config struct {
	parallel bool
}

// Option 配置渲染行为。
type Option func(*config)

// WithParallel 允许在顶层子树互不重叠时并行绘制它们。
func WithParallel(on bool) Option {
	return func(c *config) { c.parallel = on }
}

// Renderer 把 Resources 与选项绑定在一起，实现 renderer.Renderer。
type Renderer struct {
	Resources Resources
	Options   []Option
}

// Render 实现 renderer.Renderer。
func (r *Renderer) Render(geo *layout.Geometry) (*image.RGBA, layout.Diagnostics, error) {
	return Render(geo, r.Resources, r.Options...)
}

type painter struct {
	geo   *layout.Geometry
	res   Resources
	cfg   config
	diags []layout.Diagnostics
	// items[i] 是以 i 为根的子树中会产生像素的绘制项数量
	items []int
}

// Render 按绘制顺序把几何树合成为预乘 alpha 的 RGBA 位图：父节点先于子节点，
// 同级按文档顺序，叠放容器内按 z-index 稳定排序。
func Render(geo *layout.Geometry, res Resources, opts ...Option) (*image.RGBA, layout.Diagnostics, error) {
	if geo == nil || geo.Tree == nil || len(geo.Nodes) == 0 {
		return nil, nil, ErrNoGeometry
	}
	if geo.Width <= 0 || geo.Height <= 0 {
		return nil, nil, fmt.Errorf("画布 %dx%d: %w", geo.Width, geo.Height, layout.ErrInvalidCanvas)
	}
	if len(geo.Nodes) != len(geo.Tree.Nodes) {
		return nil, nil, fmt.Errorf("几何节点数 %d 与样式树节点数 %d 不一致: %w", len(geo.Nodes), len(geo.Tree.Nodes), ErrNoGeometry)
	}
	p := &painter{
		geo:   geo,
		res:   res,
		diags: make([]layout.Diagnostics, len(geo.Nodes)),
		items: make([]int, len(geo.Nodes)),
	}
	for _, o := range opts {
		o(&p.cfg)
	}
	p.countItems(0)

	dst := image.NewRGBA(image.Rect(0, 0, geo.Width, geo.Height))
	if !geo.Background.IsTransparent() {
		fillRect(dst, dst.Rect, geo.Background)
	}
	p.paintRoot(dst)

	var diags layout.Diagnostics
	for _, d := range p.diags {
		diags = append(diags, d...)
	}
	Logger().Debug("渲染完成", "width", geo.Width, "height", geo.Height, "diagnostics", len(diags))
	return dst, diags, nil
}

func (p *painter) countItems(idx int) int {
	n := &p.geo.Tree.Nodes[idx]
	st := &n.Style
	c := 0
	if !st.Background.IsTransparent() {
		c++
	}
	if st.BorderWidth > 0 && !st.BorderColor.IsTransparent() {
		c++
	}
	if (n.Kind == layout.KindText || n.Kind == layout.KindImage) && !n.Empty {
		c++
	}
	for _, ch := range n.Children {
		if p.tree(ch).Style.Opacity > 0 {
			c += p.countItems(ch)
		}
	}
	p.items[idx] = c
	return c
}

func (p *painter) tree(idx int) *layout.StyledNode { return &p.geo.Tree.Nodes[idx] }

// paintOrder 返回子节点的绘制顺序。
func (p *painter) paintOrder(idx int) []int {
	n := p.tree(idx)
	kids := append([]int(nil), n.Children...)
	if n.Style.Container.Layered {
		sort.SliceStable(kids, func(a, b int) bool {
			return p.tree(kids[a]).Style.ZIndex < p.tree(kids[b]).Style.ZIndex
		})
	}
	return kids
}

// childClip 返回子节点的裁剪矩形：不允许溢出时为父节点的 padding-box。
func (p *painter) childClip(idx int, clip image.Rectangle) image.Rectangle {
	st := &p.tree(idx).Style
	if st.Overflow == layout.OverflowVisible {
		return clip
	}
	bw := st.BorderWidth
	padding := p.geo.Nodes[idx].Border.Inset(layout.Edges{Top: bw, Right: bw, Bottom: bw, Left: bw})
	return clip.Intersect(pixelBounds(padding))
}

// paintRoot 绘制根节点；开启并行且顶层子树像素范围两两不相交时，各子树并发绘制。
func (p *painter) paintRoot(dst *image.RGBA) {
	root := 0
	st := &p.tree(root).Style
	if st.Opacity <= 0 {
		return
	}
	if !p.cfg.parallel || p.needsGroup(root) {
		p.paintNode(dst, root, dst.Rect, 255)
		return
	}
	kids := p.paintOrder(root)
	clip := p.childClip(root, dst.Rect)
	bounds := make([]image.Rectangle, len(kids))
	for i, c := range kids {
		bounds[i] = p.subtreeBounds(c).Intersect(clip)
	}
	if !disjoint(bounds) {
		p.paintNode(dst, root, dst.Rect, 255)
		return
	}
	op := opacity8(st.Opacity)
	p.paintSelf(dst, root, dst.Rect, op)
	var g errgroup.Group
	for i, c := range kids {
		if bounds[i].Empty() {
			continue
		}
		g.Go(func() error {
			p.paintNode(dst, c, bounds[i], op)
			return nil
		})
	}
	_ = g.Wait()
}

// subtreeBounds 返回子树所有 border-box 的像素并集。
func (p *painter) subtreeBounds(idx int) image.Rectangle {
	r := pixelBounds(p.geo.Nodes[idx].Border)
	for _, c := range p.tree(idx).Children {
		r = r.Union(p.subtreeBounds(c))
	}
	return r
}

func disjoint(rs []image.Rectangle) bool {
	for i := range rs {
		for j := i + 1; j < len(rs); j++ {
			if rs[i].Overlaps(rs[j]) {
				return false
			}
		}
	}
	return true
}

// needsGroup：半透明且子树有多个绘制项时，需要先画到离屏缓冲再整体合成，避免重叠部分重复混合。
func (p *painter) needsGroup(idx int) bool {
	op := p.tree(idx).Style.Opacity
	return op < 1 && p.items[idx] > 1
}

// paintNode 绘制节点及其子树。op 是祖先累积下来的不透明度。
func (p *painter) paintNode(dst *image.RGBA, idx int, clip image.Rectangle, op uint8) {
	st := &p.tree(idx).Style
	if st.Opacity <= 0 || op == 0 || clip.Empty() {
		return
	}
	if p.needsGroup(idx) {
		bounds := p.subtreeBounds(idx).Intersect(clip)
		if bounds.Empty() {
			return
		}
		layer := image.NewRGBA(bounds)
		p.paintContent(layer, idx, bounds, 255)
		composite(dst, layer, nil, bounds, mul255(op, opacity8(st.Opacity)))
		return
	}
	p.paintContent(dst, idx, clip, mul255(op, opacity8(st.Opacity)))
}

func (p *painter) paintContent(dst *image.RGBA, idx int, clip image.Rectangle, op uint8) {
	p.paintSelf(dst, idx, clip, op)
	inner := p.childClip(idx, clip)
	for _, c := range p.paintOrder(idx) {
		p.paintNode(dst, c, inner, op)
	}
}

// paintSelf 绘制节点自身：背景、边框、文本或图片。
func (p *painter) paintSelf(dst *image.RGBA, idx int, clip image.Rectangle, op uint8) {
	n := p.tree(idx)
	g := &p.geo.Nodes[idx]
	st := &n.Style
	if g.Border.W <= 0 || g.Border.H <= 0 {
		return
	}
	if !st.Background.IsTransparent() {
		fillMask(dst, boxMask(g.Border, st.CornerRadius), clip, st.Background, op)
	}
	if st.BorderWidth > 0 && !st.BorderColor.IsTransparent() {
		fillMask(dst, borderMask(g.Border, st.CornerRadius, st.BorderWidth), clip, st.BorderColor, op)
	}

	var err error
	attr := ""
	switch n.Kind {
	case layout.KindText:
		err, attr = p.paintText(dst, idx, clip, op), "font"
	case layout.KindImage:
		err, attr = p.paintImage(dst, idx, clip, op), "src"
	}
	if err != nil {
		p.diags[idx] = append(p.diags[idx], layout.Diagnostic{
			Kind: layout.ResourceLoadFailure, Node: idx, Path: n.Path, Attr: attr,
			Message: "绘制时资源不可用：" + err.Error(),
		})
	}
}
