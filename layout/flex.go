package layout

import "math"

// 第二阶段的弹性布局：分行、伸缩、主轴排布、交叉轴对齐、多行 align-content。

type flexItem struct {
	idx int
	st  *Style

	marginMain  [2]float64 // 主轴前/后 margin
	marginCross [2]float64 // 交叉轴前/后 margin

	hypo     float64 // min/max 钳制后的 basis
	minMain  float64
	maxMain  float64
	main     float64
	weightUp float64
	weightDn float64

	cross     float64
	crossAuto bool
	align     Align
	baseline  float64 // 相对外边距框顶部

	mainPos  float64 // border-box 起点，相对内容框
	crossPos float64
}

func (it *flexItem) outerMain() float64  { return it.main + it.marginMain[0] + it.marginMain[1] }
func (it *flexItem) outerCross() float64 { return it.cross + it.marginCross[0] + it.marginCross[1] }

type flexLine struct {
	items        []*flexItem
	cross        float64
	pos          float64
	maxBaseline  float64
	hasBaselines bool
}

// axes 封装主轴/交叉轴的取值方向。
type axes struct{ row bool }

func (a axes) main(r Rect) (pos, size float64) {
	if a.row {
		return r.X, r.W
	}
	return r.Y, r.H
}

func (a axes) cross(r Rect) (pos, size float64) {
	if a.row {
		return r.Y, r.H
	}
	return r.X, r.W
}

func (a axes) dims(st *Style) (main, cross, minMain, maxMain, minCross, maxCross Dimension) {
	if a.row {
		return st.Width, st.Height, st.MinWidth, st.MaxWidth, st.MinHeight, st.MaxHeight
	}
	return st.Height, st.Width, st.MinHeight, st.MaxHeight, st.MinWidth, st.MaxWidth
}

func (a axes) margins(e Edges) (m, c [2]float64) {
	if a.row {
		return [2]float64{e.Left, e.Right}, [2]float64{e.Top, e.Bottom}
	}
	return [2]float64{e.Top, e.Bottom}, [2]float64{e.Left, e.Right}
}

func (a axes) rect(mainPos, crossPos, main, cross float64) Rect {
	if a.row {
		return Rect{X: mainPos, Y: crossPos, W: main, H: cross}
	}
	return Rect{X: crossPos, Y: mainPos, W: cross, H: main}
}

// layoutFlex 求解容器 idx 的子项位置。文本宽度反馈最多触发一次额外的求解轮次：
// 行方向冻结首轮的主轴尺寸只重算交叉轴，列方向用新的高度重算主轴分配。
func (s *solver) layoutFlex(idx int) {
	n := &s.tree.Nodes[idx]
	cs := n.Style.Container
	ax := axes{row: cs.Direction == Row}
	content := s.geo[idx].Content
	mainStart, availMain := ax.main(content)
	crossStart, availCross := ax.cross(content)

	var items []*flexItem
	var lines []*flexLine
	var frozen []float64
	for pass := 0; pass < 2; pass++ {
		items = s.collectItems(idx, ax, availMain, availCross)
		lines = partitionLines(items, availMain, cs.Spacing, cs.Wrap)
		if frozen != nil {
			for i, it := range items {
				it.main = frozen[i]
			}
		} else {
			for _, line := range lines {
				resolveFlexibleLengths(line.items, availMain, cs.Spacing, cs.Distribution)
			}
		}
		s.resolveCross(lines, ax, cs, availCross)

		if pass == 1 {
			break
		}
		changed := false
		for _, it := range items {
			width := it.cross
			if ax.row {
				width = it.main
			}
			if s.needsRemeasure(it.idx, width) {
				s.measure(it.idx, width)
				changed = true
			}
		}
		if !changed {
			break
		}
		if ax.row {
			frozen = make([]float64, len(items))
			for i, it := range items {
				frozen[i] = it.main
			}
		}
	}

	for _, line := range lines {
		positionMain(line, cs, availMain)
		for _, it := range line.items {
			r := ax.rect(mainStart+it.mainPos, crossStart+line.pos+it.crossPos, it.main, it.cross)
			s.place(idx, it.idx, r)
		}
	}
}

func (s *solver) collectItems(idx int, ax axes, availMain, availCross float64) []*flexItem {
	n := &s.tree.Nodes[idx]
	cs := n.Style.Container
	items := make([]*flexItem, 0, len(n.Children))
	for _, c := range n.Children {
		child := &s.tree.Nodes[c]
		st := &child.Style
		m := s.meas[c]
		it := &flexItem{idx: c, st: st}
		it.marginMain, it.marginCross = ax.margins(st.Margin)
		_, crossDim, minMainDim, maxMainDim, minCrossDim, maxCrossDim := ax.dims(st)

		intrinsicMain, intrinsicCross := m.h, m.w
		var mainContent, crossContent func(bool) float64
		if ax.row {
			intrinsicMain, intrinsicCross = m.w, m.h
			mainContent = s.contentWidthFn(c)
		} else {
			crossContent = s.contentWidthFn(c)
		}
		basis := s.basisOf(c, ax.row, availMain, intrinsicMain)

		it.minMain, _ = resolveLimit(minMainDim, availMain, mainContent)
		if child.Kind == KindSpacer {
			it.minMain = math.Max(it.minMain, st.MinLength)
		}
		it.maxMain = math.Inf(1)
		if v, ok := resolveLimit(maxMainDim, availMain, mainContent); ok {
			it.maxMain = v
		}
		it.hypo = clampMinMax(basis, it.minMain, it.maxMain)

		switch cs.Distribution {
		case DistributionFillProportionally:
			it.weightUp, it.weightDn = it.hypo, it.hypo
		default:
			it.weightUp, it.weightDn = st.Grow, st.Shrink*it.hypo
		}

		it.align = st.AlignSelf
		if it.align == AlignAuto {
			it.align = cs.AlignItems
		}
		if it.align == AlignBaseline && !ax.row {
			it.align = AlignStart
		}
		if v, ok := crossDim.Resolve(availCross); ok {
			it.cross = v
		} else if crossDim.Kind == DimMinContent || crossDim.Kind == DimMaxContent {
			if crossContent != nil {
				it.cross = crossContent(crossDim.Kind == DimMinContent)
			} else {
				it.cross = intrinsicCross
			}
		} else {
			it.cross = intrinsicCross
			it.crossAuto = true
		}
		it.cross = math.Max(clampDim(it.cross, minCrossDim, maxCrossDim, availCross, crossContent), 0)

		it.baseline = it.marginCross[0]
		if child.Kind == KindText && m.text != nil && !child.Empty {
			lh := st.Text.Font.LineHeight
			it.baseline += st.BorderWidth + st.Padding.Top + (lh-(m.text.Ascent+m.text.Descent))/2 + m.text.Ascent
		}
		items = append(items, it)
	}

	if cs.Distribution == DistributionFillEqually && len(items) > 0 {
		margins := 0.0
		for _, it := range items {
			margins += it.marginMain[0] + it.marginMain[1]
		}
		share := math.Max((availMain-cs.Spacing*float64(len(items)-1)-margins)/float64(len(items)), 0)
		for _, it := range items {
			it.hypo = clampMinMax(share, it.minMain, it.maxMain)
		}
	}
	return items
}

// partitionLines 贪心分行：加入下一个子项会超出可用主轴尺寸时换行。
func partitionLines(items []*flexItem, availMain, gap float64, wrap bool) []*flexLine {
	if !wrap || isUnbounded(availMain) {
		return []*flexLine{{items: items}}
	}
	var lines []*flexLine
	cur := &flexLine{}
	used := 0.0
	for _, it := range items {
		size := it.hypo + it.marginMain[0] + it.marginMain[1]
		if len(cur.items) > 0 && used+gap+size > availMain+epsilon {
			lines = append(lines, cur)
			cur = &flexLine{}
			used = 0
		}
		if len(cur.items) > 0 {
			used += gap
		}
		used += size
		cur.items = append(cur.items, it)
	}
	if len(cur.items) > 0 {
		lines = append(lines, cur)
	}
	return lines
}

func clampMinMax(v, lo, hi float64) float64 {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}

// resolveFlexibleLengths 按 grow（或 shrink×basis）分配剩余空间。
// 钳制顺序固定为：先 min 后 max，然后把钳制产生的差额按同样权重一次性分给未被钳制的子项，再钳制一次，不再继续分配。
func resolveFlexibleLengths(items []*flexItem, availMain, gap float64, dist Distribution) {
	used := gap * float64(len(items)-1)
	for _, it := range items {
		used += it.hypo + it.marginMain[0] + it.marginMain[1]
		it.main = it.hypo
	}
	free := availMain - used
	if dist == DistributionFillEqually || isUnbounded(availMain) || math.Abs(free) < epsilon {
		return
	}
	growing := free > 0
	weight := func(it *flexItem) float64 {
		if growing {
			return it.weightUp
		}
		return it.weightDn
	}
	total := 0.0
	for _, it := range items {
		total += weight(it)
	}
	if total <= 0 {
		return
	}

	targets := make([]float64, len(items))
	clamped := make([]bool, len(items))
	slack := 0.0
	for i, it := range items {
		targets[i] = it.hypo + free*weight(it)/total
		it.main = clampMinMax(targets[i], it.minMain, it.maxMain)
		if math.Abs(it.main-targets[i]) > epsilon {
			clamped[i] = true
			slack += targets[i] - it.main
		}
	}
	if math.Abs(slack) < epsilon {
		return
	}
	rest := 0.0
	for i, it := range items {
		if !clamped[i] {
			rest += weight(it)
		}
	}
	if rest <= 0 {
		return
	}
	for i, it := range items {
		if clamped[i] {
			continue
		}
		it.main = clampMinMax(it.main+slack*weight(it)/rest, it.minMain, it.maxMain)
	}
	for _, it := range items {
		it.main = math.Max(it.main, 0)
	}
}

// resolveCross 计算每行交叉轴尺寸、行位置（align-content）以及子项的交叉轴对齐。
func (s *solver) resolveCross(lines []*flexLine, ax axes, cs ContainerStyle, availCross float64) {
	for _, line := range lines {
		line.maxBaseline = 0
		line.hasBaselines = false
		for _, it := range line.items {
			if it.align == AlignBaseline {
				line.hasBaselines = true
				line.maxBaseline = math.Max(line.maxBaseline, it.baseline)
			}
		}
		if !cs.Wrap {
			line.cross = availCross
			continue
		}
		line.cross = 0
		for _, it := range line.items {
			outer := it.outerCross()
			if it.align == AlignBaseline {
				outer += line.maxBaseline - it.baseline
			}
			line.cross = math.Max(line.cross, outer)
		}
	}

	if cs.Wrap {
		total := cs.Spacing * float64(len(lines)-1)
		for _, line := range lines {
			total += line.cross
		}
		free := availCross - total
		if cs.AlignContent == JustifyStretch && free > 0 {
			extra := free / float64(len(lines))
			for _, line := range lines {
				line.cross += extra
			}
			free = 0
		}
		lead, between := justifyOffsets(cs.AlignContent, free, len(lines))
		pos := lead
		for _, line := range lines {
			line.pos = pos
			pos += line.cross + cs.Spacing + between
		}
	}

	for _, line := range lines {
		for _, it := range line.items {
			free := line.cross - it.outerCross()
			switch it.align {
			case AlignStretch:
				if it.crossAuto {
					_, _, _, _, minCross, maxCross := ax.dims(it.st)
					it.cross = math.Max(clampDim(line.cross-it.marginCross[0]-it.marginCross[1], minCross, maxCross, line.cross, nil), 0)
				}
				it.crossPos = it.marginCross[0]
			case AlignEnd:
				it.crossPos = free + it.marginCross[0]
			case AlignCenter:
				it.crossPos = free/2 + it.marginCross[0]
			case AlignBaseline:
				it.crossPos = line.maxBaseline - it.baseline + it.marginCross[0]
			default:
				it.crossPos = it.marginCross[0]
			}
		}
	}
}

// positionMain 按 justify-content（或 distribution）排布主轴位置。
func positionMain(line *flexLine, cs ContainerStyle, availMain float64) {
	items := line.items
	if len(items) == 0 {
		return
	}
	sum := 0.0
	for _, it := range items {
		sum += it.outerMain()
	}

	if cs.Distribution == DistributionEqualCentering && len(items) > 1 {
		first := items[0].outerMain()
		last := items[len(items)-1].outerMain()
		step := (availMain - first/2 - last/2) / float64(len(items)-1)
		for i, it := range items {
			center := first/2 + float64(i)*step
			it.mainPos = center - it.outerMain()/2 + it.marginMain[0]
		}
		return
	}

	justify := cs.Justify
	switch cs.Distribution {
	case DistributionEqualSpacing:
		justify = JustifySpaceBetween
	case DistributionEqualCentering:
		justify = JustifyCenter
	}
	free := availMain - sum - cs.Spacing*float64(len(items)-1)
	lead, between := justifyOffsets(justify, free, len(items))
	pos := lead
	for _, it := range items {
		it.mainPos = pos + it.marginMain[0]
		pos += it.outerMain() + cs.Spacing + between
	}
}

// justifyOffsets 返回首个元素前的偏移与元素之间额外的间距。
func justifyOffsets(j Justify, free float64, n int) (lead, between float64) {
	if n == 0 {
		return 0, 0
	}
	switch j {
	case JustifyEnd:
		return free, 0
	case JustifyCenter:
		return free / 2, 0
	case JustifySpaceBetween:
		if n < 2 || free <= 0 {
			return 0, 0
		}
		return 0, free / float64(n-1)
	case JustifySpaceAround:
		if free <= 0 {
			return free / 2, 0
		}
		per := free / float64(n)
		return per / 2, per
	case JustifySpaceEvenly:
		if free <= 0 {
			return free / 2, 0
		}
		per := free / float64(n+1)
		return per, per
	default:
		return 0, 0
	}
}
