package layout

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// 第一阶段：后序遍历测量固有尺寸。

const (
	epsilon = 1e-6
	// 图片加载失败时的占位尺寸
	placeholderSize = 100
	ellipsis        = "…"
)

// measured 保存一次测量结果。w/h 是 border-box 尺寸（不含 margin）。
type measured struct {
	hint  float64
	avail float64 // 文本实际使用的折行宽度
	w, h  float64
	text  *TextMetrics
}

// measure 在给定宽度提示下测量节点，结果写入 s.meas[idx]，同时返回。
func (s *solver) measure(idx int, hint float64) measured {
	n := &s.tree.Nodes[idx]
	st := &n.Style
	s.measDiags[idx] = s.measDiags[idx][:0]

	insetH := st.Padding.Horizontal() + 2*st.BorderWidth
	insetV := st.Padding.Vertical() + 2*st.BorderWidth

	ownW, hasW := st.Width.Resolve(hint)
	if !hasW && (st.Width.Kind == DimMinContent || st.Width.Kind == DimMaxContent) {
		ownW, hasW = s.contentWidth(idx, st.Width.Kind == DimMinContent), true
	}
	ownH, hasH := st.Height.Resolve(math.Inf(1))

	inner := hint
	if hasW {
		inner = ownW
	}
	if !isUnbounded(inner) {
		inner = math.Max(inner-insetH, 0)
	}

	var m measured
	m.hint = hint
	var cw, ch float64
	switch {
	case n.Empty:
	case n.Kind == KindText:
		tm := s.measureText(idx, inner)
		m.text = &tm
		m.avail = inner
		cw, ch = tm.MaxLineWidth(), tm.TotalHeight
	case n.Kind == KindImage:
		cw, ch = s.imageSize(idx, hasW, ownW-insetH, hasH, ownH-insetV)
	case n.Kind == KindSpacer:
	case n.Kind == KindContainer:
		cw, ch = s.measureContainer(idx, inner, hasH, ownH-insetV)
	}

	m.w = cw + insetH
	m.h = ch + insetV
	if hasW {
		m.w = ownW
	}
	if hasH {
		m.h = ownH
	}
	m.w = clampDim(m.w, st.MinWidth, st.MaxWidth, hint, s.contentWidthFn(idx))
	m.h = clampDim(m.h, st.MinHeight, st.MaxHeight, math.Inf(1), nil)
	m.w, m.h = math.Max(m.w, 0), math.Max(m.h, 0)
	s.meas[idx] = m
	return m
}

// clampDim 依次应用 min、max（max 在后，冲突时以 max 为准）。
func clampDim(v float64, lo, hi Dimension, ref float64, content func(minContent bool) float64) float64 {
	if x, ok := resolveLimit(lo, ref, content); ok && v < x {
		v = x
	}
	if x, ok := resolveLimit(hi, ref, content); ok && v > x {
		v = x
	}
	return v
}

func resolveLimit(d Dimension, ref float64, content func(minContent bool) float64) (float64, bool) {
	switch d.Kind {
	case DimMinContent, DimMaxContent:
		if content == nil {
			return 0, false
		}
		return content(d.Kind == DimMinContent), true
	default:
		return d.Resolve(ref)
	}
}

func (s *solver) contentWidthFn(idx int) func(bool) float64 {
	return func(minContent bool) float64 { return s.contentWidth(idx, minContent) }
}

func (s *solver) measureContainer(idx int, inner float64, hasH bool, innerH float64) (float64, float64) {
	n := &s.tree.Nodes[idx]
	cs := n.Style.Container
	kids := n.Children
	if len(kids) == 0 {
		return 0, 0
	}
	gap := cs.Spacing
	row := cs.Direction == Row && !cs.Layered

	hints := make([]float64, len(kids))
	for i, c := range kids {
		h := inner
		if !isUnbounded(h) {
			h = math.Max(h-s.tree.Nodes[c].Style.Margin.Horizontal(), 0)
			if row && cs.Distribution == DistributionFillEqually {
				h = math.Max((inner-gap*float64(len(kids)-1))/float64(len(kids))-s.tree.Nodes[c].Style.Margin.Horizontal(), 0)
			}
		}
		hints[i] = h
	}
	s.forEach(kids, func(i, c int) { s.measure(c, hints[i]) })

	if cs.Layered {
		var w, h float64
		for _, c := range kids {
			mg := s.tree.Nodes[c].Style.Margin
			w = math.Max(w, s.meas[c].w+mg.Horizontal())
			h = math.Max(h, s.meas[c].h+mg.Vertical())
		}
		return w, h
	}

	if row && !isUnbounded(inner) {
		s.fitRowChildren(idx, inner)
	}

	availMain := inner
	if !row {
		availMain = math.Inf(1)
		if hasH {
			availMain = math.Max(innerH, 0)
		}
	}
	mains := make([]float64, len(kids))
	crosses := make([]float64, len(kids))
	for i, c := range kids {
		st := &s.tree.Nodes[c].Style
		m := s.meas[c]
		if row {
			mains[i] = s.basisOf(c, true, availMain, m.w) + st.Margin.Horizontal()
			crosses[i] = m.h + st.Margin.Vertical()
		} else {
			mains[i] = s.basisOf(c, false, availMain, m.h) + st.Margin.Vertical()
			crosses[i] = m.w + st.Margin.Horizontal()
		}
	}

	var main, cross float64
	if cs.Wrap && !isUnbounded(availMain) {
		lineMain, lineCross := 0.0, 0.0
		count := 0
		lines := 0
		flush := func() {
			main = math.Max(main, lineMain)
			if lines > 0 {
				cross += gap
			}
			cross += lineCross
			lines++
			lineMain, lineCross, count = 0, 0, 0
		}
		for i := range kids {
			add := mains[i]
			if count > 0 {
				add += gap
			}
			if count > 0 && lineMain+add > availMain+epsilon {
				flush()
				add = mains[i]
			}
			lineMain += add
			lineCross = math.Max(lineCross, crosses[i])
			count++
		}
		flush()
	} else {
		for i := range kids {
			main += mains[i]
			cross = math.Max(cross, crosses[i])
		}
		main += gap * float64(len(kids)-1)
	}
	if row {
		return main, cross
	}
	return cross, main
}

// fitRowChildren 先按伸缩规则分配行内子项的宽度，再以分配后的宽度重新测量文本与容器，
// 行的固有高度因此包含收缩后多出来的折行。子项的 w 恢复为首次测量值，flex-basis 不受影响。
func (s *solver) fitRowChildren(idx int, inner float64) {
	cs := s.tree.Nodes[idx].Style.Container
	items := s.collectItems(idx, axes{row: true}, inner, Unbounded)
	for _, line := range partitionLines(items, inner, cs.Spacing, cs.Wrap) {
		resolveFlexibleLengths(line.items, inner, cs.Spacing, cs.Distribution)
	}
	s.forEach(s.tree.Nodes[idx].Children, func(i, c int) {
		width := items[i].main
		if !s.needsRemeasure(c, width) {
			return
		}
		w := s.meas[c].w
		s.measure(c, width)
		s.meas[c].w = w
	})
}

// basisOf 返回子项沿主轴的 flex-basis（border-box）。
func (s *solver) basisOf(idx int, row bool, availMain, intrinsic float64) float64 {
	st := &s.tree.Nodes[idx].Style
	if v, ok := st.Basis.Resolve(availMain); ok {
		return v
	}
	mainDim := st.Height
	if row {
		mainDim = st.Width
	}
	if v, ok := mainDim.Resolve(availMain); ok {
		return v
	}
	if s.tree.Nodes[idx].Kind == KindSpacer {
		return st.MinLength
	}
	if row && (mainDim.Kind == DimMinContent || mainDim.Kind == DimMaxContent) {
		return s.contentWidth(idx, mainDim.Kind == DimMinContent)
	}
	return intrinsic
}

// contentWidth 计算 min-content / max-content 宽度（含内边距与边框）。
func (s *solver) contentWidth(idx int, minContent bool) float64 {
	n := &s.tree.Nodes[idx]
	st := &n.Style
	inset := st.Padding.Horizontal() + 2*st.BorderWidth
	if v, ok := st.Width.Resolve(math.Inf(1)); ok {
		return v
	}
	var w float64
	switch {
	case n.Empty:
	case n.Kind == KindText:
		if minContent {
			for _, word := range strings.FieldsFunc(n.Text, unicode.IsSpace) {
				w = math.Max(w, s.singleLineWidth(idx, word))
			}
		} else {
			w = s.singleLineWidth(idx, n.Text)
		}
	case n.Kind == KindImage:
		w, _ = s.imageSize(idx, false, 0, false, 0)
	case n.Kind == KindSpacer:
		w = st.MinLength
	case n.Kind == KindContainer:
		cs := st.Container
		for i, c := range n.Children {
			cw := s.contentWidth(c, minContent) + s.tree.Nodes[c].Style.Margin.Horizontal()
			if cs.Direction == Row && !cs.Layered && !(cs.Wrap && minContent) {
				w += cw
				if i > 0 {
					w += cs.Spacing
				}
			} else {
				w = math.Max(w, cw)
			}
		}
	}
	return w + inset
}

// singleLineWidth 在不限宽的情况下测量文本宽度。
func (s *solver) singleLineWidth(idx int, text string) float64 {
	font := s.tree.Nodes[idx].Style.Text.Font
	if s.opts.Measurer == nil {
		return estimateTextWidth(text, font.Size)
	}
	m, err := s.opts.Measurer.Measure(text, font, Unbounded)
	if err != nil {
		return estimateTextWidth(text, font.Size)
	}
	return m.MaxLineWidth()
}

// measureText 调用外部测量器并处理 max-lines 截断；测量失败时按字号估算。
func (s *solver) measureText(idx int, avail float64) TextMetrics {
	n := &s.tree.Nodes[idx]
	font := n.Style.Text.Font
	if s.opts.Measurer == nil {
		return s.finishText(idx, estimateMetrics(n.Text, font), avail)
	}
	m, err := s.opts.Measurer.Measure(n.Text, font, avail)
	if err != nil {
		s.measDiags[idx] = append(s.measDiags[idx], Diagnostic{
			Kind: ResourceLoadFailure, Node: idx, Path: n.Path, Attr: "font",
			Message: "文本测量失败，改用估算：" + err.Error(),
		})
		m = estimateMetrics(n.Text, font)
	}
	return s.finishText(idx, m, avail)
}

func (s *solver) finishText(idx int, m TextMetrics, avail float64) TextMetrics {
	font := s.tree.Nodes[idx].Style.Text.Font
	if limit := s.tree.Nodes[idx].Style.Text.MaxLines; limit > 0 && len(m.Lines) > limit {
		m = s.truncate(idx, m, avail)
	}
	if len(m.Lines) == 0 {
		m.Lines = []TextLine{{}}
	}
	m.TotalHeight = font.LineHeight * float64(len(m.Lines))
	return m
}

// truncate 丢弃多余的行，并按换行模式在最后保留的一行放置省略号。
// 最后一行的候选文本是它与被丢弃各行的拼接，head/middle 模式因此能保留原文结尾。
func (s *solver) truncate(idx int, m TextMetrics, avail float64) TextMetrics {
	n := &s.tree.Nodes[idx]
	maxLines := n.Style.Text.MaxLines
	mode := n.Style.Text.Font.Break
	rest := make([]string, 0, len(m.Lines)-maxLines+1)
	for _, l := range m.Lines[maxLines-1:] {
		if t := strings.TrimSpace(l.Text); t != "" {
			rest = append(rest, t)
		}
	}
	kept := append([]TextLine(nil), m.Lines[:maxLines]...)
	m.Lines = kept
	if mode == BreakClip {
		return m
	}
	last := &kept[maxLines-1]
	limit := avail
	if isUnbounded(limit) {
		limit = last.Width
	}
	width := func(t string) float64 { return s.singleLineWidth(idx, t) }
	text := strings.Join(rest, " ")
	switch mode {
	case BreakTruncateHead:
		last.Text = ellipsis + fitSuffix(text, limit-width(ellipsis), width)
	case BreakTruncateMiddle:
		last.Text = fitMiddle(text, limit, width)
	case BreakWord:
		last.Text = fitPrefix(text, limit-width(ellipsis), width, true) + ellipsis
	default:
		last.Text = strings.TrimRightFunc(fitPrefix(text, limit-width(ellipsis), width, false), unicode.IsSpace) + ellipsis
	}
	last.Width = width(last.Text)
	return m
}

// fitPrefix 返回宽度不超过 limit 的最长前缀；wordBoundary 时优先在空白处截断。
func fitPrefix(text string, limit float64, width func(string) float64, wordBoundary bool) string {
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if width(string(runes[:mid])) <= limit+epsilon {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if wordBoundary && lo < len(runes) {
		for i := lo; i > 0; i-- {
			if unicode.IsSpace(runes[i]) {
				return strings.TrimRightFunc(string(runes[:i]), unicode.IsSpace)
			}
		}
	}
	return string(runes[:lo])
}

func fitSuffix(text string, limit float64, width func(string) float64) string {
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if width(string(runes[len(runes)-mid:])) <= limit+epsilon {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[len(runes)-lo:])
}

// fitMiddle 首尾各保留一半字符，中间放省略号。
func fitMiddle(text string, limit float64, width func(string) float64) string {
	runes := []rune(text)
	for keep := len(runes); keep > 0; keep-- {
		head := (keep + 1) / 2
		tail := keep - head
		cand := string(runes[:head]) + ellipsis + string(runes[len(runes)-tail:])
		if width(cand) <= limit+epsilon {
			return cand
		}
	}
	return ellipsis
}

// imageSize 返回图片内容框的固有尺寸，尊重 aspect-ratio 覆盖与单边固定尺寸。
func (s *solver) imageSize(idx int, hasW bool, w float64, hasH bool, h float64) (float64, float64) {
	n := &s.tree.Nodes[idx]
	nw, nh := placeholderSize, placeholderSize
	if s.opts.Images != nil {
		iw, ih, err := s.opts.Images.NaturalSize(n.Source)
		if err != nil || iw <= 0 || ih <= 0 {
			if err == nil {
				err = ErrResourceLoad
			}
			s.measDiags[idx] = append(s.measDiags[idx], Diagnostic{
				Kind: ResourceLoadFailure, Node: idx, Path: n.Path, Attr: "src",
				Message: "图片尺寸不可用，使用占位尺寸：" + err.Error(),
			})
		} else {
			nw, nh = iw, ih
		}
	}
	ar := float64(nw) / float64(nh)
	if n.Style.Image.AspectRatio > 0 {
		ar = n.Style.Image.AspectRatio
	}
	switch {
	case hasW && hasH:
		return math.Max(w, 0), math.Max(h, 0)
	case hasW:
		w = math.Max(w, 0)
		return w, w / ar
	case hasH:
		h = math.Max(h, 0)
		return h * ar, h
	default:
		return float64(nw), float64(nw) / ar
	}
}

// forEach 对子节点执行 fn；开启并行时以 fork-join 方式执行，返回前全部完成。
func (s *solver) forEach(kids []int, fn func(i, c int)) {
	if !s.opts.Parallel || len(kids) < 2 {
		for i, c := range kids {
			fn(i, c)
		}
		return
	}
	var g errgroup.Group
	for i, c := range kids {
		g.Go(func() error {
			fn(i, c)
			return nil
		})
	}
	_ = g.Wait()
}

// estimateMetrics 是缺少测量器时的兜底：按显式换行拆分并按字号估算宽度。
func estimateMetrics(content string, font FontSpec) TextMetrics {
	parts := strings.Split(content, "\n")
	lines := make([]TextLine, 0, len(parts))
	for _, p := range parts {
		lines = append(lines, TextLine{Text: p, Width: estimateTextWidth(p, font.Size)})
	}
	return TextMetrics{Lines: lines, Ascent: font.Size * 0.8, Descent: font.Size * 0.2}
}

func estimateTextWidth(content string, fontSize float64) float64 {
	if fontSize <= 0 {
		fontSize = DefaultFontSize
	}
	maxChars := 0
	for _, line := range strings.Split(content, "\n") {
		if count := utf8.RuneCountInString(line); count > maxChars {
			maxChars = count
		}
	}
	return fontSize * 0.55 * float64(maxChars)
}
