package resource

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/ByLCY/flexpaint/fonts"
	"github.com/ByLCY/flexpaint/layout"
	"github.com/ByLCY/flexpaint/renderer/raster"
)

// Fonts 是按字族、字重、斜体登记的字体集合，实现 raster.FontProvider。
// go-text 负责塑形，x/image/font/sfnt 负责取字形轮廓；两者读取同一份字节，字形编号一致。
type Fonts struct {
	mu    sync.RWMutex
	faces map[string][]*face

	// HarfbuzzShaper 内部有可变缓冲，不能并发使用
	shapers sync.Pool
}

type face struct {
	family string
	weight int
	italic bool
	data   []byte

	gt *font.Font
	sf *sfnt.Font

	mu       sync.Mutex
	outlines map[outlineKey]sfnt.Segments
}

type outlineKey struct {
	gid  font.GID
	ppem fixed.Int26_6
}

// NewFonts 返回空的字体集合。
func NewFonts() *Fonts {
	return &Fonts{
		faces:   map[string][]*face{},
		shapers: sync.Pool{New: func() any { return &shaping.HarfbuzzShaper{} }},
	}
}

// DefaultFonts 返回预先登记了内置 Go 字体的集合。
func DefaultFonts() (*Fonts, error) {
	fs := NewFonts()
	for _, f := range fonts.All() {
		if err := fs.Add(f.Family, f.Weight, f.Italic, f.Data); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

// Add 解析并登记一个 TrueType/OpenType 字体。
func (fs *Fonts) Add(family string, weight int, italic bool, data []byte) error {
	if weight <= 0 {
		weight = layout.DefaultFontWeight
	}
	parsed, err := font.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("解析字体 %s 失败: %w: %w", family, layout.ErrResourceLoad, err)
	}
	sf, err := sfnt.Parse(data)
	if err != nil {
		return fmt.Errorf("读取字体 %s 轮廓失败: %w: %w", family, layout.ErrResourceLoad, err)
	}
	fc := &face{
		family:   family,
		weight:   weight,
		italic:   italic,
		data:     data,
		gt:       parsed.Font,
		sf:       sf,
		outlines: map[outlineKey]sfnt.Segments{},
	}
	key := familyKey(family)
	fs.mu.Lock()
	fs.faces[key] = append(fs.faces[key], fc)
	fs.mu.Unlock()
	return nil
}

// AddFile 从文件登记字体，"embed:" 前缀指向内置字体。
func (fs *Fonts) AddFile(family, path string, weight int, italic bool) error {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(path, "embed:") {
		data, err = fonts.Load(path)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("加载字体 %s: %w: %w", path, layout.ErrResourceLoad, err)
	}
	return fs.Add(family, weight, italic, data)
}

// Families 返回已登记的字族名（排序后）。
func (fs *Fonts) Families() []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make([]string, 0, len(fs.faces))
	for _, list := range fs.faces {
		out = append(out, list[0].family)
	}
	sort.Strings(out)
	return out
}

// Bytes 返回与 spec 最匹配的字体文件数据及其字族名，供测量器加载同一份字体。
func (fs *Fonts) Bytes(spec layout.FontSpec) (string, []byte, error) {
	fc, err := fs.match(spec)
	if err != nil {
		return "", nil, err
	}
	return fc.family, fc.data, nil
}

func familyKey(family string) string { return strings.ToLower(strings.TrimSpace(family)) }

// match 按字族查找，找不到时退回默认字族；同一字族内先匹配斜体，再取字重最接近者。
func (fs *Fonts) match(spec layout.FontSpec) (*face, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	list := fs.faces[familyKey(spec.Family)]
	if len(list) == 0 {
		list = fs.faces[familyKey(fonts.DefaultFamily)]
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("字体 %q 未登记: %w", spec.Family, layout.ErrResourceLoad)
	}
	weight := spec.Weight
	if weight <= 0 {
		weight = layout.DefaultFontWeight
	}
	var best *face
	bestScore := 0
	for _, fc := range list {
		score := abs(fc.weight - weight)
		if fc.italic != spec.Italic {
			score += 10000
		}
		// 距离相同时，粗体请求偏向更粗，常规请求偏向更细；完全相同的字形以后登记者为准
		if best != nil && score == bestScore {
			if fc.weight == best.weight || (weight >= 500) == (fc.weight > best.weight) {
				best = fc
			}
			continue
		}
		if best == nil || score < bestScore {
			best, bestScore = fc, score
		}
	}
	return best, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Shape 用 HarfBuzz 塑形一行文本，返回带轮廓的字形串；字距加在相邻字形之间。
func (fs *Fonts) Shape(text string, spec layout.FontSpec) (raster.GlyphRun, error) {
	fc, err := fs.match(spec)
	if err != nil {
		return raster.GlyphRun{}, err
	}
	runes := []rune(text)
	if len(runes) == 0 || spec.Size <= 0 {
		return raster.GlyphRun{}, nil
	}
	size := fixed.Int26_6(spec.Size * 64)
	input := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		Face:      font.NewFace(fc.gt),
		Size:      size,
		Script:    detectScript(runes),
		Language:  language.NewLanguage("en"),
	}
	hb := fs.shapers.Get().(*shaping.HarfbuzzShaper)
	out := hb.Shape(input)
	fs.shapers.Put(hb)

	run := raster.GlyphRun{Glyphs: make([]raster.Glyph, 0, len(out.Glyphs))}
	x := 0.0
	for i, g := range out.Glyphs {
		segs, err := fc.outline(g.GlyphID, size)
		if err != nil {
			return raster.GlyphRun{}, err
		}
		if len(segs) > 0 {
			// go-text 的 y 轴向上，画布向下
			run.Glyphs = append(run.Glyphs, raster.Glyph{
				X:        x + fromFixed(g.XOffset),
				Y:        -fromFixed(g.YOffset),
				Segments: segs,
			})
		}
		x += fromFixed(g.XAdvance)
		if i < len(out.Glyphs)-1 {
			x += spec.LetterSpacing
		}
	}
	run.Advance = x
	return run, nil
}

// Metrics 返回字号 size 下的 ascent/descent（px）。
func (fs *Fonts) Metrics(spec layout.FontSpec) (ascent, descent float64, err error) {
	fc, err := fs.match(spec)
	if err != nil {
		return 0, 0, err
	}
	var buf sfnt.Buffer
	m, err := fc.sf.Metrics(&buf, fixed.Int26_6(spec.Size*64), xfont.HintingNone)
	if err != nil {
		return 0, 0, fmt.Errorf("读取字体度量失败: %w: %w", layout.ErrResourceLoad, err)
	}
	return fromFixed(m.Ascent), fromFixed(m.Descent), nil
}

// outline 返回缓存的字形轮廓。LoadGlyph 返回的切片复用缓冲区，这里复制一份再缓存。
func (fc *face) outline(gid font.GID, ppem fixed.Int26_6) (sfnt.Segments, error) {
	key := outlineKey{gid: gid, ppem: ppem}
	fc.mu.Lock()
	segs, ok := fc.outlines[key]
	fc.mu.Unlock()
	if ok {
		return segs, nil
	}
	var buf sfnt.Buffer
	loaded, err := fc.sf.LoadGlyph(&buf, sfnt.GlyphIndex(gid), ppem, nil)
	if err != nil {
		return nil, fmt.Errorf("读取字形 %d 失败: %w: %w", gid, layout.ErrResourceLoad, err)
	}
	segs = append(sfnt.Segments(nil), loaded...)
	fc.mu.Lock()
	fc.outlines[key] = segs
	fc.mu.Unlock()
	return segs, nil
}

func detectScript(runes []rune) language.Script {
	for _, r := range runes {
		if r == ' ' || r == '\t' {
			continue
		}
		return language.LookupScript(r)
	}
	return language.Latin
}

func fromFixed(v fixed.Int26_6) float64 { return float64(v) / 64 }
