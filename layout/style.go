package layout

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// StyleContext 保存可继承的文本属性（颜色、字体族、字号等），子节点默认沿用父节点的值。
type StyleContext struct {
	Color         Color
	FontFamily    string
	FontSize      float64
	FontWeight    int
	Italic        bool
	LineHeight    LineHeightSpec
	LetterSpacing float64
	TextAlign     TextAlign
	Break         BreakMode
}

// 文本默认值：16px、常规字重、1.2 倍行高、黑色。
const (
	DefaultFontSize   = 16.0
	DefaultFontWeight = 400
)

// DefaultContext 返回根节点使用的继承上下文。
func DefaultContext() StyleContext {
	return StyleContext{
		Color:      Color{A: 255},
		FontSize:   DefaultFontSize,
		FontWeight: DefaultFontWeight,
		LineHeight: LineHeightSpec{Kind: LineHeightFactor, Factor: DefaultLineHeightFactor},
	}
}

// ResolveStyles 将原始属性树校验为 StyledTree。
// 任何非法值都替换为默认值并记录诊断；缺少必需属性的节点退化为空盒。
func ResolveStyles(raw *RawNode, parent StyleContext) (*StyledTree, Diagnostics) {
	r := &styleResolver{tree: &StyledTree{}}
	if parent.FontSize <= 0 {
		parent.FontSize = DefaultFontSize
	}
	if parent.FontWeight <= 0 {
		parent.FontWeight = DefaultFontWeight
	}
	if raw == nil {
		r.diags.Add(MissingRequiredAttribute, 0, "root", "", "文档缺少根节点")
		raw = &RawNode{Kind: KindContainer}
	}
	r.visit(raw, -1, parent, "root")
	Logger().Debug("样式解析完成", "nodes", len(r.tree.Nodes), "diagnostics", len(r.diags))
	return r.tree, r.diags
}

type styleResolver struct {
	tree  *StyledTree
	diags Diagnostics
}

func (r *styleResolver) visit(raw *RawNode, parent int, ctx StyleContext, path string) int {
	idx := len(r.tree.Nodes)
	if raw.Pos != "" {
		path = path + "@" + raw.Pos
	}
	r.tree.Nodes = append(r.tree.Nodes, StyledNode{Kind: raw.Kind, Parent: parent, Path: path})

	attrs := raw.Attrs
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// 先处理字号，em 单位依赖它
	ctx = r.inherit(idx, path, raw.Kind, attrs, ctx)
	style := defaultStyle(raw.Kind, attrs)
	for _, key := range keys {
		r.apply(idx, path, raw.Kind, &style, ctx, strings.ToLower(key), strings.TrimSpace(attrs[key]))
	}
	style.Text.Font = FontSpec{
		Family:        ctx.FontFamily,
		Size:          ctx.FontSize,
		Weight:        ctx.FontWeight,
		Italic:        ctx.Italic,
		LetterSpacing: ctx.LetterSpacing,
		LineHeight:    ctx.LineHeight.Resolve(ctx.FontSize),
		Break:         ctx.Break,
	}
	style.Text.LineHeight = ctx.LineHeight
	style.Text.Color = ctx.Color
	style.Text.Align = ctx.TextAlign

	node := &r.tree.Nodes[idx]
	node.Style = style
	switch raw.Kind {
	case KindText:
		text := raw.Text
		if text == "" {
			text = attrs["text"]
		}
		if text == "" {
			node.Empty = true
			r.diags.Add(MissingRequiredAttribute, idx, path, "text", "文本节点缺少内容，按空盒处理")
		}
		node.Text = norm.NFC.String(text)
	case KindImage:
		src := raw.Source
		if src == "" {
			src = attrs["src"]
		}
		if src == "" {
			node.Empty = true
			r.diags.Add(MissingRequiredAttribute, idx, path, "src", "图片节点缺少 src，按空盒处理")
		}
		node.Source = src
	case KindContainer, KindSpacer:
	default:
		r.diags.Add(StyleValidationError, idx, path, "", "未知节点类型 %d，按容器处理", int(raw.Kind))
		node.Kind = KindContainer
	}

	if len(raw.Children) > 0 && node.Kind != KindContainer {
		r.diags.Add(StyleValidationError, idx, path, "", "%s 节点不能包含子节点，已忽略 %d 个", node.Kind, len(raw.Children))
		return idx
	}
	counts := map[NodeKind]int{}
	for _, child := range raw.Children {
		if child == nil {
			continue
		}
		childPath := fmt.Sprintf("%s/%s[%d]", path, child.Kind, counts[child.Kind])
		counts[child.Kind]++
		c := r.visit(child, idx, ctx, childPath)
		r.tree.Nodes[idx].Children = append(r.tree.Nodes[idx].Children, c)
	}
	return idx
}

func defaultStyle(kind NodeKind, attrs map[string]string) Style {
	s := Style{Opacity: 1, Shrink: 1}
	s.Container.Direction = Column
	s.Container.AlignItems = AlignStretch
	if kind == KindSpacer {
		s.Grow = 1
	}
	if isTrue(attrs["layered"]) {
		s.Container.Layered = true
		s.Container.AlignItems = AlignCenter
		s.Container.Justify = JustifyCenter
	}
	return s
}

func isTrue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "1", "on":
		return true
	}
	return false
}

// inherit 处理可继承的文本属性，返回子树使用的上下文。
func (r *styleResolver) inherit(idx int, path string, kind NodeKind, attrs map[string]string, ctx StyleContext) StyleContext {
	bad := func(attr, format string, args ...any) {
		r.diags.Add(StyleValidationError, idx, path, attr, format, args...)
	}
	if v, ok := lookup(attrs, "size", "font-size"); ok {
		l, err := ParseRawLengthStr(v)
		size := l.ToPX(ctx.FontSize, ctx.FontSize)
		if err != nil || size <= 0 {
			bad("font-size", "字号必须为正数：%q，沿用 %g", v, ctx.FontSize)
		} else {
			ctx.FontSize = size
		}
	}
	if v, ok := lookup(attrs, "font", "font-family"); ok {
		ctx.FontFamily = v
	}
	if v, ok := lookup(attrs, "weight", "font-weight"); ok {
		w, err := ParseWeight(v)
		if err != nil {
			bad("font-weight", "%v", err)
		} else {
			ctx.FontWeight = w
		}
	}
	if v, ok := lookup(attrs, "italic", "font-style"); ok {
		lv := strings.ToLower(v)
		ctx.Italic = lv == "italic" || lv == "oblique" || isTrue(lv)
	}
	if v, ok := lookup(attrs, "color"); ok {
		c, err := ParseColor(v)
		if err != nil {
			bad("color", "%v，沿用父节点颜色", err)
		} else {
			ctx.Color = c
		}
	}
	if v, ok := lookup(attrs, "line-height"); ok {
		lh, err := ParseLineHeight(v)
		if err != nil {
			bad("line-height", "%v", err)
		} else {
			ctx.LineHeight = lh
		}
	}
	if v, ok := lookup(attrs, "letter-spacing"); ok {
		l, err := ParseRawLengthStr(v)
		if err != nil {
			bad("letter-spacing", "%v", err)
		} else {
			ctx.LetterSpacing = l.ToPX(ctx.FontSize, ctx.FontSize)
		}
	}
	textAlignKeys := []string{"text-align"}
	if kind == KindText {
		textAlignKeys = append(textAlignKeys, "align")
	}
	if v, ok := lookup(attrs, textAlignKeys...); ok {
		a, err := parseTextAlign(v)
		if err != nil {
			bad("text-align", "%v", err)
		} else {
			ctx.TextAlign = a
		}
	}
	if v, ok := lookup(attrs, "break", "line-break-mode", "wrap-mode"); ok {
		b, err := parseBreakMode(v)
		if err != nil {
			bad("break", "%v", err)
		} else {
			ctx.Break = b
		}
	}
	return ctx
}

func lookup(attrs map[string]string, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := attrs[k]; ok {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// inheritableKeys 已在 inherit 中处理。
var inheritableKeys = map[string]bool{
	"size": true, "font-size": true, "font": true, "font-family": true, "weight": true, "font-weight": true,
	"italic": true, "font-style": true, "color": true, "line-height": true, "letter-spacing": true,
	"text-align": true, "break": true, "line-break-mode": true, "wrap-mode": true,
	// 由加载器消费的键
	"text": true, "src": true, "style": true, "extends": true,
}

func (r *styleResolver) apply(idx int, path string, kind NodeKind, s *Style, ctx StyleContext, key, v string) {
	bad := func(format string, args ...any) {
		r.diags.Add(StyleValidationError, idx, path, key, format, args...)
	}
	dim := func(dst *Dimension) {
		d, err := ParseDimension(v, ctx.FontSize)
		if err != nil {
			bad("%v，按 auto 处理", err)
			return
		}
		*dst = d
	}
	length := func(dst *float64) {
		l, err := ParseRawLengthStr(v)
		if err != nil || l.Unit == UnitPercent || l.Value < 0 {
			bad("无效长度 %q，按 0 处理", v)
			return
		}
		*dst = l.ToPX(ctx.FontSize, 0)
	}
	number := func(dst *float64, lo, hi float64) {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || f < lo || f > hi {
			bad("数值 %q 超出范围 [%g, %g]，沿用默认值 %g", v, lo, hi, *dst)
			return
		}
		*dst = f
	}
	color := func(dst *Color) {
		c, err := ParseColor(v)
		if err != nil {
			bad("%v", err)
			return
		}
		*dst = c
	}
	edge := func(dst *float64) {
		var tmp float64
		length(&tmp)
		*dst = tmp
	}

	if inheritableKeys[key] {
		return
	}
	switch key {
	case "width":
		dim(&s.Width)
	case "height":
		dim(&s.Height)
	case "min-width":
		dim(&s.MinWidth)
	case "min-height":
		dim(&s.MinHeight)
	case "max-width":
		dim(&s.MaxWidth)
	case "max-height":
		dim(&s.MaxHeight)
	case "margin":
		e, err := ParseEdges(v, ctx.FontSize)
		if err != nil {
			bad("%v", err)
			return
		}
		s.Margin = e
	case "padding":
		e, err := ParseEdges(v, ctx.FontSize)
		if err != nil {
			bad("%v", err)
			return
		}
		s.Padding = e
	case "margin-top":
		edge(&s.Margin.Top)
	case "margin-right":
		edge(&s.Margin.Right)
	case "margin-bottom":
		edge(&s.Margin.Bottom)
	case "margin-left":
		edge(&s.Margin.Left)
	case "padding-top":
		edge(&s.Padding.Top)
	case "padding-right":
		edge(&s.Padding.Right)
	case "padding-bottom":
		edge(&s.Padding.Bottom)
	case "padding-left":
		edge(&s.Padding.Left)
	case "border-width":
		length(&s.BorderWidth)
	case "border-color":
		color(&s.BorderColor)
	case "background", "background-color", "bg":
		color(&s.Background)
	case "opacity":
		number(&s.Opacity, 0, 1)
	case "corner-radius", "radius":
		length(&s.CornerRadius)
	case "overflow":
		switch strings.ToLower(v) {
		case "hidden", "clip":
			s.Overflow = OverflowHidden
		case "visible":
			s.Overflow = OverflowVisible
		default:
			bad("未知 overflow %q", v)
		}
	case "z-index":
		n, err := strconv.Atoi(v)
		if err != nil {
			bad("z-index 必须为整数：%q", v)
			return
		}
		s.ZIndex = n
	case "grow", "flex-grow":
		number(&s.Grow, 0, math.MaxFloat64)
	case "shrink", "flex-shrink":
		number(&s.Shrink, 0, math.MaxFloat64)
	case "basis", "flex-basis":
		dim(&s.Basis)
	case "align-self":
		a, err := parseAlign(v, true)
		if err != nil {
			bad("%v", err)
			return
		}
		s.AlignSelf = a
	case "direction", "axis":
		switch strings.ToLower(v) {
		case "row", "horizontal":
			s.Container.Direction = Row
		case "column", "vertical":
			s.Container.Direction = Column
		default:
			bad("未知 direction %q", v)
		}
	case "justify", "justify-content":
		j, err := parseJustify(v)
		if err != nil || j == JustifyStretch {
			bad("未知 justify-content %q", v)
			return
		}
		s.Container.Justify = j
	case "align-items", "align", "alignment":
		if kind == KindText {
			return
		}
		a, err := parseAlign(v, false)
		if err != nil {
			bad("%v", err)
			return
		}
		s.Container.AlignItems = a
	case "align-content":
		j, err := parseJustify(v)
		if err != nil {
			bad("%v", err)
			return
		}
		s.Container.AlignContent = j
	case "wrap", "flex-wrap":
		switch strings.ToLower(v) {
		case "wrap", "true", "yes":
			s.Container.Wrap = true
		case "nowrap", "false", "no":
			s.Container.Wrap = false
		default:
			bad("未知 wrap %q", v)
		}
	case "spacing", "gap":
		length(&s.Container.Spacing)
	case "distribution":
		d, err := parseDistribution(v)
		if err != nil {
			bad("%v", err)
			return
		}
		s.Container.Distribution = d
	case "layered":
	case "max-lines", "lines":
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			bad("max-lines 必须为非负整数：%q", v)
			return
		}
		s.Text.MaxLines = n
	case "scale-mode", "fit", "content-mode":
		m, err := parseScaleMode(v)
		if err != nil {
			bad("%v", err)
			return
		}
		s.Image.ScaleMode = m
	case "aspect-ratio":
		ar, err := parseAspectRatio(v)
		if err != nil {
			bad("%v", err)
			return
		}
		s.Image.AspectRatio = ar
	case "tint", "tint-color":
		var c Color
		color(&c)
		if c != (Color{}) {
			s.Image.Tint = &c
		}
	case "min-length":
		length(&s.MinLength)
	default:
		bad("未知属性 %q，已忽略", key)
	}
}

// ParseWeight 解析数值或具名字重（bold、light 等）。
func ParseWeight(v string) (int, error) {
	switch strings.ToLower(v) {
	case "thin":
		return 100, nil
	case "light":
		return 300, nil
	case "normal", "regular":
		return 400, nil
	case "medium":
		return 500, nil
	case "semibold":
		return 600, nil
	case "bold":
		return 700, nil
	case "heavy", "black":
		return 900, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 1000 {
		return DefaultFontWeight, fmt.Errorf("无效字重 %q", v)
	}
	return n, nil
}

func parseTextAlign(v string) (TextAlign, error) {
	switch strings.ToLower(v) {
	case "leading", "left", "start":
		return TextLeading, nil
	case "center", "middle":
		return TextCenter, nil
	case "trailing", "right", "end":
		return TextTrailing, nil
	case "justified", "justify":
		return TextJustified, nil
	}
	return TextLeading, fmt.Errorf("未知 text-align %q", v)
}

func parseBreakMode(v string) (BreakMode, error) {
	switch strings.ToLower(strings.ReplaceAll(v, "-", "")) {
	case "word", "wordwrap", "anywhere", "normal":
		return BreakWord, nil
	case "char", "charwrap", "breakword":
		return BreakChar, nil
	case "clip", "clipping":
		return BreakClip, nil
	case "head", "truncatehead":
		return BreakTruncateHead, nil
	case "tail", "truncatetail":
		return BreakTruncateTail, nil
	case "middle", "truncatemiddle":
		return BreakTruncateMiddle, nil
	}
	return BreakWord, fmt.Errorf("未知换行模式 %q", v)
}

func parseJustify(v string) (Justify, error) {
	switch strings.ToLower(v) {
	case "start", "flex-start", "leading", "top", "left":
		return JustifyStart, nil
	case "end", "flex-end", "trailing", "bottom", "right":
		return JustifyEnd, nil
	case "center", "middle":
		return JustifyCenter, nil
	case "space-between", "between":
		return JustifySpaceBetween, nil
	case "space-around", "around":
		return JustifySpaceAround, nil
	case "space-evenly", "evenly":
		return JustifySpaceEvenly, nil
	case "stretch":
		return JustifyStretch, nil
	}
	return JustifyStart, fmt.Errorf("未知对齐方式 %q", v)
}

func parseAlign(v string, allowAuto bool) (Align, error) {
	switch strings.ToLower(v) {
	case "auto":
		if allowAuto {
			return AlignAuto, nil
		}
	case "start", "flex-start", "leading", "top", "left":
		return AlignStart, nil
	case "end", "flex-end", "trailing", "bottom", "right":
		return AlignEnd, nil
	case "center", "middle":
		return AlignCenter, nil
	case "stretch", "fill":
		return AlignStretch, nil
	case "baseline", "firstbaseline":
		return AlignBaseline, nil
	}
	return AlignStretch, fmt.Errorf("未知 align %q", v)
}

func parseDistribution(v string) (Distribution, error) {
	switch strings.ToLower(strings.ReplaceAll(v, "-", "")) {
	case "fill":
		return DistributionFill, nil
	case "fillequally":
		return DistributionFillEqually, nil
	case "fillproportionally":
		return DistributionFillProportionally, nil
	case "equalspacing":
		return DistributionEqualSpacing, nil
	case "equalcentering":
		return DistributionEqualCentering, nil
	}
	return DistributionFill, fmt.Errorf("未知 distribution %q", v)
}

func parseScaleMode(v string) (ScaleMode, error) {
	switch strings.ToLower(strings.ReplaceAll(v, "-", "")) {
	case "fit", "contain", "aspectfit", "scaleaspectfit":
		return ScaleFit, nil
	case "fill", "cover", "aspectfill", "scaleaspectfill":
		return ScaleFill, nil
	case "stretch", "scaletofill":
		return ScaleStretch, nil
	case "center", "none":
		return ScaleCenter, nil
	}
	return ScaleFit, fmt.Errorf("未知 scale-mode %q", v)
}

// parseAspectRatio 接受 "16:9"、"16/9" 或小数。
func parseAspectRatio(v string) (float64, error) {
	for _, sep := range []string{":", "/"} {
		if a, b, ok := strings.Cut(v, sep); ok {
			x, err1 := strconv.ParseFloat(strings.TrimSpace(a), 64)
			y, err2 := strconv.ParseFloat(strings.TrimSpace(b), 64)
			if err1 != nil || err2 != nil || x <= 0 || y <= 0 {
				return 0, fmt.Errorf("无效宽高比 %q", v)
			}
			return x / y, nil
		}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("无效宽高比 %q", v)
	}
	return f, nil
}
