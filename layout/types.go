package layout

import "math"

// 该文件定义节点树、样式记录与几何结果，供样式解析、布局求解、合成渲染与调试 JSON 共用。
// 所有长度单位均为设备像素（px）。

// NodeKind 是封闭的节点类型集合。
type NodeKind int

const (
	KindContainer NodeKind = iota
	KindText
	KindImage
	KindSpacer
)

func (k NodeKind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindSpacer:
		return "spacer"
	default:
		return "unknown"
	}
}

// MarshalText 让调试 JSON 输出可读的节点类型。
func (k NodeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// RawNode 是加载器（DSL/YAML）产出的原始节点：属性保持字符串形式，由 ResolveStyles 统一校验。
type RawNode struct {
	Kind     NodeKind          `json:"kind"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Text     string            `json:"text,omitempty"`
	Source   string            `json:"source,omitempty"`
	Children []*RawNode        `json:"children,omitempty"`
	// Pos 记录来源位置（行:列 或 YAML 路径），仅用于诊断。
	Pos string `json:"pos,omitempty"`
}

// StyledTree 以 arena 形式保存节点，下标即节点 ID，Nodes[0] 为根。
type StyledTree struct {
	Nodes []StyledNode `json:"nodes"`
}

// StyledNode 是校验后的节点。Parent 只是查找字段（根为 -1）。
type StyledNode struct {
	Kind     NodeKind `json:"kind"`
	Parent   int      `json:"parent"`
	Children []int    `json:"children,omitempty"`
	Style    Style    `json:"style"`
	Text     string   `json:"text,omitempty"`
	Source   string   `json:"source,omitempty"`
	// Empty 为 true 表示缺少必需属性，节点退化为零尺寸空盒。
	Empty bool   `json:"empty,omitempty"`
	Path  string `json:"path"`
}

// Root 返回根节点下标；空树返回 -1。
func (t *StyledTree) Root() int {
	if t == nil || len(t.Nodes) == 0 {
		return -1
	}
	return 0
}

// Style 是所有节点共用的样式记录，按节点类型附带子记录。
type Style struct {
	Width     Dimension `json:"width"`
	Height    Dimension `json:"height"`
	MinWidth  Dimension `json:"minWidth"`
	MinHeight Dimension `json:"minHeight"`
	MaxWidth  Dimension `json:"maxWidth"`
	MaxHeight Dimension `json:"maxHeight"`

	Margin       Edges    `json:"margin"`
	Padding      Edges    `json:"padding"`
	BorderWidth  float64  `json:"borderWidth"`
	BorderColor  Color    `json:"borderColor"`
	Background   Color    `json:"background"`
	Opacity      float64  `json:"opacity"`
	CornerRadius float64  `json:"cornerRadius"`
	Overflow     Overflow `json:"overflow"`
	ZIndex       int      `json:"zIndex"`

	// 作为弹性子项的属性
	Grow      float64   `json:"grow"`
	Shrink    float64   `json:"shrink"`
	Basis     Dimension `json:"basis"`
	AlignSelf Align     `json:"alignSelf"`

	Container ContainerStyle `json:"container"`
	Text      TextStyle      `json:"text"`
	Image     ImageStyle     `json:"image"`
	// Spacer 的最小主轴长度
	MinLength float64 `json:"minLength,omitempty"`
}

// ContainerStyle 描述弹性容器。
type ContainerStyle struct {
	Direction    Direction    `json:"direction"`
	Justify      Justify      `json:"justify"`
	AlignItems   Align        `json:"alignItems"`
	AlignContent Justify      `json:"alignContent"`
	Wrap         bool         `json:"wrap"`
	Spacing      float64      `json:"spacing"`
	Distribution Distribution `json:"distribution"`
	// Layered 为 true 时子节点叠放（zstack），z-index 只在此类容器内重排绘制顺序。
	Layered bool `json:"layered"`
}

// TextStyle 描述文本节点。
type TextStyle struct {
	Font       FontSpec       `json:"font"`
	Color      Color          `json:"color"`
	Align      TextAlign      `json:"align"`
	MaxLines   int            `json:"maxLines"`
	LineHeight LineHeightSpec `json:"lineHeight"`
}

// ImageStyle 描述图片节点。
type ImageStyle struct {
	ScaleMode   ScaleMode `json:"scaleMode"`
	AspectRatio float64   `json:"aspectRatio,omitempty"`
	Tint        *Color    `json:"tint,omitempty"`
}

// FontSpec 是传给测量器与字形整形器的字体描述。LineHeight 已解析为 px。
type FontSpec struct {
	Family        string    `json:"family"`
	Size          float64   `json:"size"`
	Weight        int       `json:"weight"`
	Italic        bool      `json:"italic,omitempty"`
	LetterSpacing float64   `json:"letterSpacing,omitempty"`
	LineHeight    float64   `json:"lineHeight"`
	Break         BreakMode `json:"break"`
}

// Edges 保存四边数值（margin/padding）。
type Edges struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// Horizontal 返回左右之和。
func (e Edges) Horizontal() float64 { return e.Left + e.Right }

// Vertical 返回上下之和。
func (e Edges) Vertical() float64 { return e.Top + e.Bottom }

// Color 采用 0-255 的 RGBA 数值（非预乘）。
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// Transparent 是全透明色。
var Transparent = Color{}

// IsTransparent 判断 alpha 是否为 0。
func (c Color) IsTransparent() bool { return c.A == 0 }

type Direction int

const (
	Row Direction = iota
	Column
)

type Justify int

const (
	JustifyStart Justify = iota
	JustifyEnd
	JustifyCenter
	JustifySpaceBetween
	JustifySpaceAround
	JustifySpaceEvenly
	// JustifyStretch 仅对 align-content 有意义
	JustifyStretch
)

type Align int

const (
	// AlignAuto 仅用于 align-self，表示沿用容器的 align-items
	AlignAuto Align = iota
	AlignStart
	AlignEnd
	AlignCenter
	AlignStretch
	AlignBaseline
)

type Distribution int

const (
	DistributionFill Distribution = iota
	DistributionFillEqually
	DistributionFillProportionally
	DistributionEqualSpacing
	DistributionEqualCentering
)

type Overflow int

const (
	OverflowHidden Overflow = iota
	OverflowVisible
)

type TextAlign int

const (
	TextLeading TextAlign = iota
	TextCenter
	TextTrailing
	TextJustified
)

type BreakMode int

const (
	BreakWord BreakMode = iota
	BreakChar
	BreakClip
	BreakTruncateHead
	BreakTruncateTail
	BreakTruncateMiddle
)

type ScaleMode int

const (
	ScaleFit ScaleMode = iota
	ScaleFill
	ScaleStretch
	ScaleCenter
)

// Constraints 是画布尺寸约束，宽高都必须为正。
type Constraints struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (c Constraints) valid() bool {
	return c.Width > 0 && c.Height > 0 && !math.IsInf(c.Width, 0) && !math.IsInf(c.Height, 0)
}

// Rect 是画布绝对坐标下的矩形。
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Right 返回右边界。
func (r Rect) Right() float64 { return r.X + r.W }

// Bottom 返回下边界。
func (r Rect) Bottom() float64 { return r.Y + r.H }

// Inset 向内收缩，结果宽高不小于 0。
func (r Rect) Inset(e Edges) Rect {
	out := Rect{X: r.X + e.Left, Y: r.Y + e.Top, W: r.W - e.Horizontal(), H: r.H - e.Vertical()}
	if out.W < 0 {
		out.W = 0
	}
	if out.H < 0 {
		out.H = 0
	}
	return out
}

// Intersect 返回交集；无交集时宽或高为 0，且位置落在 r 内。
func (r Rect) Intersect(o Rect) Rect {
	x0 := math.Min(math.Max(r.X, o.X), r.Right())
	y0 := math.Min(math.Max(r.Y, o.Y), r.Bottom())
	x1 := math.Max(math.Min(r.Right(), o.Right()), x0)
	y1 := math.Max(math.Min(r.Bottom(), o.Bottom()), y0)
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Contains 判断 o 是否完全落在 r 内（带容差）。
func (r Rect) Contains(o Rect) bool {
	const eps = 1e-6
	return o.X >= r.X-eps && o.Y >= r.Y-eps && o.Right() <= r.Right()+eps && o.Bottom() <= r.Bottom()+eps
}

// Geometry 是布局结果，Nodes 与 StyledTree.Nodes 下标一一对应。
type Geometry struct {
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Background Color          `json:"background"`
	Nodes      []GeometryNode `json:"nodes"`
	Tree       *StyledTree    `json:"-"`
}

// GeometryNode 记录节点的 border-box 与 content-box。
type GeometryNode struct {
	Source  int      `json:"source"`
	Border  Rect     `json:"border"`
	Content Rect     `json:"content"`
	Text    *TextBox `json:"text,omitempty"`
}

// TextBox 保存文本节点最终的折行结果，供合成器逐行绘制。
type TextBox struct {
	Lines      []TextLine `json:"lines"`
	LineHeight float64    `json:"lineHeight"`
	Ascent     float64    `json:"ascent"`
	Descent    float64    `json:"descent"`
}

// Baseline 返回首行基线相对内容框顶部的偏移（半行距 + ascent）。
func (tb *TextBox) Baseline() float64 {
	if tb == nil {
		return 0
	}
	return (tb.LineHeight-(tb.Ascent+tb.Descent))/2 + tb.Ascent
}

// TextLine 是一行文本与其宽度。
type TextLine struct {
	Text  string  `json:"text"`
	Width float64 `json:"width"`
}

// TextMetrics 是测量器返回的结果。
type TextMetrics struct {
	Lines       []TextLine `json:"lines"`
	TotalHeight float64    `json:"totalHeight"`
	Ascent      float64    `json:"ascent"`
	Descent     float64    `json:"descent"`
}

// MaxLineWidth 返回最宽行的宽度。
func (m TextMetrics) MaxLineWidth() float64 {
	w := 0.0
	for _, l := range m.Lines {
		if l.Width > w {
			w = l.Width
		}
	}
	return w
}
