package canvasrenderer

import (
	"fmt"
	"image/color"
	"math"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/tdewolff/canvas"

	"github.com/ByLCY/flexpaint/fonts"
	"github.com/ByLCY/flexpaint/layout"
)

// canvas 以 mm 为长度单位、以 pt 为字号单位。把 px 字号当作 pt 传入后，
// 返回的 mm 宽度除以 mmPerPt 就是 px，两者按比例一致。
const mmPerPt = 25.4 / 72

// FontSource 按字体描述返回字族名与字体文件数据，resource.Fonts 实现了它。
type FontSource interface {
	Bytes(spec layout.FontSpec) (family string, data []byte, err error)
}

// Measurer 用 github.com/tdewolff/canvas 的字体度量实现 layout.TextMeasurer。
type Measurer struct {
	source FontSource

	fontMu         sync.Mutex
	fontFamilies   map[string]*fontFamilyEntry
	fallbackFamily *fontFamilyEntry
}

var _ layout.TextMeasurer = (*Measurer)(nil)

// fontFamilyEntry 的 mu 串行化同一字体上的测量。
type fontFamilyEntry struct {
	mu     sync.Mutex
	family *canvas.FontFamily
	style  canvas.FontStyle
}

// NewMeasurer 创建测量器；source 为 nil 时只使用内置 Go 字体。
func NewMeasurer(source FontSource) *Measurer {
	return &Measurer{
		source:       source,
		fontFamilies: map[string]*fontFamilyEntry{},
	}
}

// Measure 实现 layout.TextMeasurer：按换行模式贪心折行，宽度与字距单位均为 px。
func (m *Measurer) Measure(text string, font layout.FontSpec, maxWidth float64) (layout.TextMetrics, error) {
	entry, err := m.ensureFontFamily(font)
	if err != nil {
		return layout.TextMetrics{}, err
	}
	size := font.Size
	if size <= 0 {
		size = layout.DefaultFontSize
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	face := entry.family.Face(size, color.Black, entry.style, canvas.FontNormal)
	width := func(s string) float64 {
		w := face.TextWidth(s) / mmPerPt
		if n := utf8.RuneCountInString(s); n > 1 {
			w += font.LetterSpacing * float64(n-1)
		}
		return w
	}

	limit := measureLimit(maxWidth)
	var lines []layout.TextLine
	if font.Break == layout.BreakChar {
		lines = wrapChars(text, limit, width)
	} else {
		lines = greedyWrapTokens(text, limit, width)
	}

	metrics := face.Metrics()
	lineHeight := font.LineHeight
	if lineHeight <= 0 {
		lineHeight = metrics.LineHeight / mmPerPt
	}
	return layout.TextMetrics{
		Lines:       lines,
		TotalHeight: lineHeight * float64(len(lines)),
		Ascent:      metrics.Ascent / mmPerPt,
		Descent:     math.Abs(metrics.Descent) / mmPerPt,
	}, nil
}

// measureLimit：只有 +Inf 表示不限宽；0 或负数按 0 处理，每个折行机会都换行。
func measureLimit(maxWidth float64) float64 {
	switch {
	case math.IsInf(maxWidth, 1):
		return math.MaxFloat64
	case maxWidth <= 0 || math.IsNaN(maxWidth):
		return 0
	default:
		return maxWidth
	}
}

func (m *Measurer) ensureFontFamily(font layout.FontSpec) (*fontFamilyEntry, error) {
	style := weightStyle(font.Weight, font.Italic)
	m.fontMu.Lock()
	defer m.fontMu.Unlock()

	if m.source == nil {
		return m.fallbackLocked()
	}
	name, data, err := m.source.Bytes(font)
	if err != nil {
		layout.Logger().Warn("字体不可用，改用内置字体", "family", font.Family, "err", err)
		return m.fallbackLocked()
	}
	key := fmt.Sprintf("%s|%d|%p", name, style, data)
	if entry, ok := m.fontFamilies[key]; ok {
		return entry, nil
	}
	family := canvas.NewFontFamily(name)
	if err := family.LoadFont(data, 0, style); err != nil {
		layout.Logger().Warn("字体加载失败，改用内置字体", "family", name, "err", err)
		fb, fbErr := m.fallbackLocked()
		if fbErr != nil {
			return nil, fmt.Errorf("加载字体 %s: %w: %w", name, layout.ErrResourceLoad, err)
		}
		m.fontFamilies[key] = fb
		return fb, nil
	}
	entry := &fontFamilyEntry{family: family, style: style}
	m.fontFamilies[key] = entry
	return entry, nil
}

// fallbackLocked 要求调用方持有 fontMu。
func (m *Measurer) fallbackLocked() (*fontFamilyEntry, error) {
	if m.fallbackFamily != nil {
		return m.fallbackFamily, nil
	}
	data, err := fonts.Load("regular")
	if err != nil {
		return nil, err
	}
	family := canvas.NewFontFamily("flexpaint-fallback")
	if err := family.LoadFont(data, 0, canvas.FontRegular); err != nil {
		return nil, fmt.Errorf("加载内置字体: %w: %w", layout.ErrResourceLoad, err)
	}
	m.fallbackFamily = &fontFamilyEntry{family: family, style: canvas.FontRegular}
	return m.fallbackFamily, nil
}

// weightStyle 把数值字重映射为 canvas 的字体样式。
func weightStyle(weight int, italic bool) canvas.FontStyle {
	var s canvas.FontStyle
	switch {
	case weight >= 900:
		s = canvas.FontBlack
	case weight >= 800:
		s = canvas.FontExtraBold
	case weight >= 700:
		s = canvas.FontBold
	case weight >= 600:
		s = canvas.FontSemiBold
	case weight >= 500:
		s = canvas.FontMedium
	case weight > 0 && weight <= 300:
		s = canvas.FontLight
	default:
		s = canvas.FontRegular
	}
	if italic {
		s |= canvas.FontItalic
	}
	return s
}

// greedyWrapTokens 优先在空白处折行，单个词超过限制时在词内拆分。行首行尾的空白不计入行。
func greedyWrapTokens(content string, limit float64, width func(string) float64) []layout.TextLine {
	var lines []layout.TextLine
	var builder strings.Builder

	emit := func() {
		line := strings.TrimRightFunc(builder.String(), unicode.IsSpace)
		lines = append(lines, layout.TextLine{Text: line, Width: width(line)})
		builder.Reset()
	}

	for _, token := range tokenizeContent(content) {
		if token == "\n" {
			emit()
			continue
		}
		if isSpaceToken(token) {
			if builder.Len() > 0 {
				builder.WriteString(token)
			}
			continue
		}
		cand := builder.String() + token
		if builder.Len() > 0 && width(cand) > limit {
			emit()
		}
		if width(token) <= limit {
			builder.WriteString(token)
			continue
		}
		for _, chunk := range splitTokenByWidth(token, limit, width) {
			if builder.Len() > 0 && width(builder.String()+chunk) > limit {
				emit()
			}
			builder.WriteString(chunk)
		}
	}
	emit()
	return lines
}

// wrapChars 忽略空白机会，纯按宽度逐字符折行，仍尊重显式换行。
func wrapChars(content string, limit float64, width func(string) float64) []layout.TextLine {
	var lines []layout.TextLine
	var builder strings.Builder
	emit := func() {
		line := builder.String()
		lines = append(lines, layout.TextLine{Text: line, Width: width(line)})
		builder.Reset()
	}
	for _, r := range content {
		if r == '\r' {
			continue
		}
		if r == '\n' {
			emit()
			continue
		}
		if builder.Len() > 0 && width(builder.String()+string(r)) > limit {
			emit()
			if unicode.IsSpace(r) {
				continue
			}
		}
		builder.WriteRune(r)
	}
	emit()
	return lines
}

func isSpaceToken(t string) bool {
	r, _ := utf8.DecodeRuneInString(t)
	return unicode.IsSpace(r)
}

func tokenizeContent(s string) []string {
	var tokens []string
	var builder strings.Builder
	lastWasSpace := false
	flush := func() {
		if builder.Len() == 0 {
			return
		}
		tokens = append(tokens, builder.String())
		builder.Reset()
	}

	for _, r := range s {
		if r == '\r' {
			continue
		}
		if r == '\n' {
			flush()
			tokens = append(tokens, "\n")
			lastWasSpace = false
			continue
		}
		isSpace := unicode.IsSpace(r)
		if builder.Len() == 0 {
			lastWasSpace = isSpace
		} else if lastWasSpace != isSpace {
			flush()
			lastWasSpace = isSpace
		}
		builder.WriteRune(r)
	}
	flush()
	return tokens
}

func splitTokenByWidth(token string, limit float64, width func(string) float64) []string {
	if limit <= 0 || limit == math.MaxFloat64 {
		return []string{token}
	}
	var parts []string
	var builder strings.Builder
	for _, r := range token {
		builder.WriteRune(r)
		if width(builder.String()) > limit && utf8.RuneCountInString(builder.String()) > 1 {
			runes := []rune(builder.String())
			parts = append(parts, string(runes[:len(runes)-1]))
			builder.Reset()
			builder.WriteRune(r)
		}
	}
	if builder.Len() > 0 {
		parts = append(parts, builder.String())
	}
	return parts
}
