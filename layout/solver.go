package layout

import (
	"fmt"
	"math"
)

// solver 只在一次 ComputeLayout 调用内存活，不保留跨调用状态。
// 每个节点的槽位（meas、geo、诊断）只由处理该节点的 goroutine 写入。
type solver struct {
	tree       *StyledTree
	opts       Options
	meas       []measured
	geo        []GeometryNode
	measDiags  []Diagnostics
	solveDiags []Diagnostics
}

// ComputeLayout 在画布约束下求解整棵树的几何。
// 唯一会返回 error 的情况是画布宽高非正（ErrInvalidCanvas）或样式树为空；其余问题都记录在诊断中。
func ComputeLayout(tree *StyledTree, c Constraints, opts Options) (*Geometry, Diagnostics, error) {
	if !c.valid() {
		return nil, nil, fmt.Errorf("%w: %gx%g", ErrInvalidCanvas, c.Width, c.Height)
	}
	root := tree.Root()
	if root < 0 {
		return nil, nil, fmt.Errorf("样式树为空")
	}
	n := len(tree.Nodes)
	s := &solver{
		tree:       tree,
		opts:       opts,
		meas:       make([]measured, n),
		geo:        make([]GeometryNode, n),
		measDiags:  make([]Diagnostics, n),
		solveDiags: make([]Diagnostics, n),
	}
	for i := range s.geo {
		s.geo[i].Source = i
	}

	st := &tree.Nodes[root].Style
	w, h := c.Width, c.Height
	if v, ok := st.Width.Resolve(c.Width); ok {
		w = v
	}
	if v, ok := st.Height.Resolve(c.Height); ok {
		h = v
	}
	s.measure(root, w)
	s.geo[root].Border = Rect{W: math.Max(w, 0), H: math.Max(h, 0)}
	s.resolve(root)

	geo := &Geometry{
		Width:      int(math.Ceil(c.Width)),
		Height:     int(math.Ceil(c.Height)),
		Background: opts.Background,
		Nodes:      s.geo,
		Tree:       tree,
	}
	diags := s.collectDiagnostics()
	Logger().Debug("布局完成", "nodes", n, "width", geo.Width, "height", geo.Height, "diagnostics", len(diags))
	return geo, diags, nil
}

// collectDiagnostics 按节点下标合并诊断并去重，结果与是否并行无关。
func (s *solver) collectDiagnostics() Diagnostics {
	var out Diagnostics
	seen := map[Diagnostic]bool{}
	for i := range s.tree.Nodes {
		for _, group := range []Diagnostics{s.measDiags[i], s.solveDiags[i]} {
			for _, d := range group {
				if seen[d] {
					continue
				}
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	out.sortStable()
	return out
}

// resolve 是第二阶段的前序遍历：节点自身 border-box 已由父节点确定。
func (s *solver) resolve(idx int) {
	n := &s.tree.Nodes[idx]
	st := &n.Style
	g := &s.geo[idx]
	insets := Edges{
		Top:    st.Padding.Top + st.BorderWidth,
		Right:  st.Padding.Right + st.BorderWidth,
		Bottom: st.Padding.Bottom + st.BorderWidth,
		Left:   st.Padding.Left + st.BorderWidth,
	}
	if insets.Horizontal() > g.Border.W+epsilon || insets.Vertical() > g.Border.H+epsilon {
		s.solveDiags[idx].Add(LayoutUnresolvable, idx, n.Path, "padding",
			"内边距与边框 (%g×%g) 超出盒子 (%g×%g)，内容区钳制为 0", insets.Horizontal(), insets.Vertical(), g.Border.W, g.Border.H)
	}
	g.Content = g.Border.Inset(insets)

	switch n.Kind {
	case KindText:
		if n.Empty {
			return
		}
		m := s.meas[idx]
		if m.text == nil || s.textNeedsRemeasure(m, g.Content.W) {
			m.text = ptr(s.measureText(idx, g.Content.W))
		}
		tm := m.text
		g.Text = &TextBox{
			Lines:      tm.Lines,
			LineHeight: n.Style.Text.Font.LineHeight,
			Ascent:     tm.Ascent,
			Descent:    tm.Descent,
		}
	case KindContainer:
		if len(n.Children) == 0 {
			return
		}
		if n.Style.Container.Layered {
			s.layoutLayered(idx)
		} else {
			s.layoutFlex(idx)
		}
		s.forEach(n.Children, func(_, c int) { s.resolve(c) })
	}
}

func ptr[T any](v T) *T { return &v }

// textNeedsRemeasure：宽度比最宽行还窄，或比测量时使用的折行宽度更宽时，折行结果可能改变。
func (s *solver) textNeedsRemeasure(m measured, contentW float64) bool {
	if m.text == nil {
		return true
	}
	if contentW < m.text.MaxLineWidth()-epsilon {
		return true
	}
	return !isUnbounded(m.avail) && contentW > m.avail+epsilon
}

// needsRemeasure 判断子节点在解析宽度下是否需要重新测量。
func (s *solver) needsRemeasure(idx int, width float64) bool {
	n := &s.tree.Nodes[idx]
	m := s.meas[idx]
	switch n.Kind {
	case KindText:
		if n.Empty {
			return false
		}
		st := &n.Style
		inner := math.Max(width-st.Padding.Horizontal()-2*st.BorderWidth, 0)
		return s.textNeedsRemeasure(m, inner)
	case KindContainer:
		return len(n.Children) > 0 && math.Abs(width-m.w) > epsilon
	default:
		return false
	}
}

// layoutLayered 叠放布局：水平方向按 align-items/align-self，垂直方向按 justify-content。
func (s *solver) layoutLayered(idx int) {
	n := &s.tree.Nodes[idx]
	content := s.geo[idx].Content
	cs := n.Style.Container
	for _, c := range n.Children {
		st := &s.tree.Nodes[c].Style
		mg := st.Margin
		align := st.AlignSelf
		if align == AlignAuto {
			align = cs.AlignItems
		}
		availW := math.Max(content.W-mg.Horizontal(), 0)
		availH := math.Max(content.H-mg.Vertical(), 0)

		w, ok := st.Width.Resolve(content.W)
		if !ok {
			if align == AlignStretch && st.Width.IsAuto() {
				w = availW
			} else {
				w = s.meas[c].w
			}
		}
		w = clampDim(w, st.MinWidth, st.MaxWidth, content.W, s.contentWidthFn(c))
		if s.needsRemeasure(c, w) {
			s.measure(c, w)
		}
		h, ok := st.Height.Resolve(content.H)
		if !ok {
			if align == AlignStretch && st.Height.IsAuto() {
				h = availH
			} else {
				h = s.meas[c].h
			}
		}
		h = clampDim(h, st.MinHeight, st.MaxHeight, content.H, nil)
		w, h = math.Max(w, 0), math.Max(h, 0)

		var x float64
		switch align {
		case AlignEnd:
			x = content.W - w - mg.Right
		case AlignCenter:
			x = mg.Left + (availW-w)/2
		default:
			x = mg.Left
		}
		var y float64
		switch cs.Justify {
		case JustifyEnd:
			y = content.H - h - mg.Bottom
		case JustifyCenter, JustifySpaceAround, JustifySpaceEvenly:
			y = mg.Top + (availH-h)/2
		default:
			y = mg.Top
		}
		s.place(idx, c, Rect{X: content.X + x, Y: content.Y + y, W: w, H: h})
	}
}

// place 写入子节点 border-box；父容器不允许溢出时与内容框取交集。
func (s *solver) place(parent, child int, r Rect) {
	if s.tree.Nodes[parent].Style.Overflow != OverflowVisible {
		r = s.geo[parent].Content.Intersect(r)
	}
	r.W, r.H = math.Max(r.W, 0), math.Max(r.H, 0)
	s.geo[child].Border = r
}
