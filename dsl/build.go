package dsl

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/ByLCY/flexpaint/binding"
	"github.com/ByLCY/flexpaint/layout"
)

// Scene 是加载后的场景：画布参数、根节点以及渲染前需要注册的资源。
type Scene struct {
	Width      float64
	Height     float64
	Background layout.Color
	Root       *layout.RawNode
	Fonts      []FontDecl
	// Images 是具名图片资源（名称 → 路径）。
	Images map[string]string
	// Warnings 记录未解析的模板变量与被忽略的命令，不影响加载。
	Warnings []string
}

// FontDecl 声明一个需要加载的字体文件。
type FontDecl struct {
	Family string
	Src    string
	Weight string
	Italic bool
}

type resourceSet struct {
	styles map[string]map[string]string
	images map[string]string
	colors map[string]string
	fonts  []FontDecl
}

func newResourceSet() resourceSet {
	return resourceSet{
		styles: map[string]map[string]string{},
		images: map[string]string{},
		colors: map[string]string{},
	}
}

// Load 将 DSL AST 转换为场景：解析资源段、合并具名样式、替换模板占位符，并生成原始节点树。
func Load(doc *Document, data any) (*Scene, error) {
	if doc == nil {
		return nil, fmt.Errorf("文档为空")
	}
	res, err := collectResources(doc)
	if err != nil {
		return nil, err
	}
	canvas := firstCanvas(doc)
	if canvas == nil {
		return nil, fmt.Errorf("文档中缺少 canvas 段落")
	}
	b := &builder{data: data, res: res}

	width, err := parseCanvasLength(b.text(canvas.Spec.Width))
	if err != nil {
		return nil, fmt.Errorf("canvas 宽度: %w", err)
	}
	height, err := parseCanvasLength(b.text(canvas.Spec.Height))
	if err != nil {
		return nil, fmt.Errorf("canvas 高度: %w", err)
	}

	_, params := parseArgs(canvas.Spec.Params, nil)
	root := &layout.RawNode{
		Kind:  layout.KindContainer,
		Attrs: params,
		Pos:   position(canvas.Pos),
	}
	if err := b.fillBlock(root, canvas.Block); err != nil {
		return nil, err
	}
	scene := &Scene{Width: width, Height: height, Root: root, Fonts: res.fonts, Images: res.images}
	if err := b.canvasAttrs(scene); err != nil {
		return nil, err
	}
	scene.Warnings = b.warnings
	return scene, nil
}

// LoadString 解析并加载 DSL 文本。
func LoadString(input string, data any) (*Scene, error) {
	doc, err := ParseString(input)
	if err != nil {
		return nil, fmt.Errorf("解析 DSL 失败: %w", err)
	}
	return Load(doc, data)
}

func firstCanvas(doc *Document) *CanvasSection {
	for _, section := range doc.Sections {
		if section.Canvas != nil {
			return section.Canvas
		}
	}
	return nil
}

func parseCanvasLength(v string) (float64, error) {
	l, err := layout.ParseRawLengthStr(v)
	if err != nil {
		return 0, err
	}
	if l.Unit == layout.UnitPercent || l.Unit == layout.UnitEM {
		return 0, fmt.Errorf("画布尺寸不支持单位 %s", layout.UnitToString(l.Unit))
	}
	return l.ToPX(layout.DefaultFontSize, 0), nil
}

func position(pos lexer.Position) string {
	return fmt.Sprintf("%d:%d", pos.Line, pos.Column)
}

func collectResources(doc *Document) (resourceSet, error) {
	res := newResourceSet()
	rawStyles := map[string]styleDecl{}
	for _, section := range doc.Sections {
		if section.Resources == nil || section.Resources.Block == nil {
			continue
		}
		for _, stmt := range section.Resources.Block.Statements {
			if stmt.Command == nil {
				continue
			}
			cmd := stmt.Command
			switch cmd.Name {
			case "style":
				if st := parseStyleResource(cmd); st.name != "" {
					rawStyles[st.name] = st
				}
			case "image":
				if name, src := parseImageResource(cmd); name != "" && src != "" {
					res.images[name] = src
				}
			case "color":
				if name, value := parseColorResource(cmd); name != "" && value != "" {
					if _, err := layout.ParseColor(value); err != nil {
						return res, fmt.Errorf("颜色 %s: %w", name, err)
					}
					res.colors[name] = value
				}
			case "font":
				if font := parseFontResource(cmd); font.Src != "" {
					res.fonts = append(res.fonts, font)
				}
			}
		}
	}
	styles, err := resolveStyles(rawStyles)
	if err != nil {
		return res, err
	}
	res.styles = styles
	return res, nil
}

type styleDecl struct {
	name    string
	extends string
	props   map[string]string
}

func parseStyleResource(cmd *Command) styleDecl {
	if len(cmd.Args) == 0 {
		return styleDecl{}
	}
	st := styleDecl{name: cmd.Args[0].Value, props: map[string]string{}}
	if len(cmd.Args) >= 3 && strings.EqualFold(cmd.Args[1].Value, "extends") {
		st.extends = cmd.Args[2].Value
	}
	if cmd.Block == nil {
		return st
	}
	for _, stmt := range cmd.Block.Statements {
		if stmt.Assignment == nil {
			continue
		}
		if val := valueToString(stmt.Assignment.Value); val != "" {
			st.props[normalizeKey(stmt.Assignment.Key)] = val
		}
	}
	return st
}

// resolveStyles 展开 extends 链，检测未定义与循环继承。
func resolveStyles(styles map[string]styleDecl) (map[string]map[string]string, error) {
	resolved := map[string]map[string]string{}
	visiting := map[string]bool{}

	var dfs func(name string) (map[string]string, error)
	dfs = func(name string) (map[string]string, error) {
		if props, ok := resolved[name]; ok {
			return props, nil
		}
		st, ok := styles[name]
		if !ok {
			return nil, fmt.Errorf("style %s 未定义", name)
		}
		if visiting[name] {
			return nil, fmt.Errorf("style 继承存在循环：%s", name)
		}
		visiting[name] = true

		props := map[string]string{}
		if st.extends != "" {
			parent, err := dfs(st.extends)
			if err != nil {
				return nil, err
			}
			for k, v := range parent {
				props[k] = v
			}
		}
		for k, v := range st.props {
			props[k] = v
		}
		resolved[name] = props
		delete(visiting, name)
		return props, nil
	}

	for name := range styles {
		if _, err := dfs(name); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

func parseImageResource(cmd *Command) (string, string) {
	if len(cmd.Args) == 0 {
		return "", ""
	}
	name := cmd.Args[0].Value
	if len(cmd.Args) > 1 {
		return name, cmd.Args[len(cmd.Args)-1].Value
	}
	if cmd.Block == nil {
		return name, ""
	}
	for _, stmt := range cmd.Block.Statements {
		if stmt.Assignment != nil && stmt.Assignment.Key == "src" {
			return name, valueToString(stmt.Assignment.Value)
		}
	}
	return name, ""
}

func parseColorResource(cmd *Command) (string, string) {
	if len(cmd.Args) == 0 {
		return "", ""
	}
	name := cmd.Args[0].Value
	value := ""
	if len(cmd.Args) > 1 {
		value = cmd.Args[len(cmd.Args)-1].Value
	}
	return name, value
}

func parseFontResource(cmd *Command) FontDecl {
	if len(cmd.Args) == 0 {
		return FontDecl{}
	}
	font := FontDecl{Family: cmd.Args[0].Value}
	if cmd.Block == nil {
		return font
	}
	for _, stmt := range cmd.Block.Statements {
		if stmt.Assignment == nil {
			continue
		}
		val := valueToString(stmt.Assignment.Value)
		switch stmt.Assignment.Key {
		case "src":
			font.Src = val
		case "weight":
			font.Weight = val
		case "italic":
			font.Italic = val == "true" || val == "yes"
		case "style":
			font.Italic = strings.EqualFold(val, "italic")
		}
	}
	return font
}

// builder 在转换过程中替换模板占位符并收集警告。
type builder struct {
	data     any
	res      resourceSet
	warnings []string
	seen     map[string]bool
}

func (b *builder) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if b.seen == nil {
		b.seen = map[string]bool{}
	}
	if b.seen[msg] {
		return
	}
	b.seen[msg] = true
	b.warnings = append(b.warnings, msg)
}

func (b *builder) text(s string) string {
	out, missing := binding.InterpolateStrict(s, b.data)
	for _, path := range missing {
		b.warn("模板变量 %s 未定义", path)
	}
	return out
}

var colorKeys = map[string]bool{
	"color": true, "background": true, "background-color": true, "bg": true,
	"border-color": true, "tint": true, "tint-color": true,
}

// finishAttrs 合并具名样式（行内属性优先），替换占位符并展开具名颜色。
func (b *builder) finishAttrs(attrs map[string]string, styleName string) map[string]string {
	if v, ok := attrs["style"]; ok {
		styleName = v
		delete(attrs, "style")
	}
	out := map[string]string{}
	if styleName != "" {
		props, ok := b.res.styles[b.text(styleName)]
		if !ok {
			b.warn("style %s 未定义", styleName)
		}
		for k, v := range props {
			out[k] = v
		}
	}
	for k, v := range attrs {
		out[k] = v
	}
	for k, v := range out {
		v = b.text(v)
		if colorKeys[k] {
			if named, ok := b.res.colors[v]; ok {
				v = named
			}
		}
		out[k] = v
	}
	return out
}

func (b *builder) canvasAttrs(scene *Scene) error {
	attrs := scene.Root.Attrs
	if v, ok := attrs["background"]; ok {
		c, err := layout.ParseColor(v)
		if err != nil {
			return fmt.Errorf("canvas 背景色: %w", err)
		}
		scene.Background = c
		delete(attrs, "background")
	}
	return nil
}

var nodeKinds = map[string]struct {
	kind  layout.NodeKind
	attrs map[string]string
}{
	"vstack":    {layout.KindContainer, map[string]string{"direction": "column"}},
	"column":    {layout.KindContainer, map[string]string{"direction": "column"}},
	"hstack":    {layout.KindContainer, map[string]string{"direction": "row"}},
	"row":       {layout.KindContainer, map[string]string{"direction": "row"}},
	"zstack":    {layout.KindContainer, map[string]string{"layered": "true"}},
	"overlay":   {layout.KindContainer, map[string]string{"layered": "true"}},
	"container": {layout.KindContainer, nil},
	"box":       {layout.KindContainer, nil},
	"text":      {layout.KindText, nil},
	"image":     {layout.KindImage, nil},
	"spacer":    {layout.KindSpacer, nil},
}

// fillBlock 把 block 中的赋值写入属性，文本字面量拼接为内容，命令转换为子节点。
func (b *builder) fillBlock(node *layout.RawNode, block *Block) error {
	if node.Attrs == nil {
		node.Attrs = map[string]string{}
	}
	if block != nil {
		var content strings.Builder
		for _, stmt := range block.Statements {
			switch {
			case stmt.Assignment != nil:
				node.Attrs[normalizeKey(stmt.Assignment.Key)] = valueToString(stmt.Assignment.Value)
			case stmt.Text != nil:
				content.WriteString(string(stmt.Text.Value))
			case stmt.Command != nil:
				child, err := b.command(stmt.Command)
				if err != nil {
					return err
				}
				if child != nil {
					node.Children = append(node.Children, child)
				}
			}
		}
		if content.Len() > 0 {
			node.Text += content.String()
		}
	}
	node.Attrs = b.finishAttrs(node.Attrs, "")
	b.finishNode(node)
	return nil
}

func (b *builder) command(cmd *Command) (*layout.RawNode, error) {
	spec, ok := nodeKinds[strings.ToLower(cmd.Name)]
	if !ok {
		b.warn("%s: 未知命令 %s，已忽略", position(cmd.Pos), cmd.Name)
		return nil, nil
	}
	node := &layout.RawNode{Kind: spec.kind, Pos: position(cmd.Pos)}
	lead, attrs := parseArgs(cmd.Args, b.isName(spec.kind))
	for k, v := range spec.attrs {
		if _, ok := attrs[k]; !ok {
			attrs[k] = v
		}
	}
	for _, a := range lead {
		switch {
		case a.Type == "String" && spec.kind == layout.KindText && node.Text == "":
			node.Text = a.Value
		case a.Type == "String" && spec.kind == layout.KindImage && node.Source == "":
			node.Source = a.Value
		case a.Type == "Number" && spec.kind == layout.KindSpacer:
			attrs["min-length"] = a.Value
		case a.Type == "Ident" && spec.kind == layout.KindImage && b.res.images[a.Value] != "":
			node.Source = a.Value
		case a.Type == "Ident":
			attrs["style"] = a.Value
		}
	}
	node.Attrs = attrs
	if err := b.fillBlock(node, cmd.Block); err != nil {
		return nil, err
	}
	return node, nil
}

// isName 判断前导标识符是否指向具名样式或图片资源。
func (b *builder) isName(kind layout.NodeKind) func(string) bool {
	return func(v string) bool {
		if _, ok := b.res.styles[v]; ok {
			return true
		}
		return kind == layout.KindImage && b.res.images[v] != ""
	}
}

// finishNode 处理内容与图片来源：属性中的 text/src 兜底，具名图片展开为路径。
func (b *builder) finishNode(node *layout.RawNode) {
	switch node.Kind {
	case layout.KindText:
		if node.Text == "" {
			node.Text = node.Attrs["text"]
			if node.Text == "" {
				node.Text = node.Attrs["content"]
			}
		}
		delete(node.Attrs, "text")
		delete(node.Attrs, "content")
		node.Text = b.text(node.Text)
	case layout.KindImage:
		if node.Source == "" {
			node.Source = node.Attrs["src"]
			if node.Source == "" {
				node.Source = node.Attrs["source"]
			}
		}
		delete(node.Attrs, "src")
		delete(node.Attrs, "source")
		node.Source = b.text(node.Source)
		if src, ok := b.res.images[node.Source]; ok {
			node.Source = src
		}
	}
}

// parseArgs 拆分命令参数：前导的字符串、数字与具名资源作为位置参数，其余按 key value 成对解析；
// 末尾落单的 key 视为布尔开关。
func parseArgs(args []*Lexeme, isName func(string) bool) ([]*Lexeme, map[string]string) {
	result := map[string]string{}
	cursor := 0
	var lead []*Lexeme
	for cursor < len(args) {
		a := args[cursor]
		positional := a.Type == "String" || a.Type == "Number" ||
			(a.Type == "Ident" && isName != nil && isName(a.Value))
		if !positional {
			break
		}
		lead = append(lead, a)
		cursor++
	}
	for cursor < len(args) {
		key := normalizeKey(args[cursor].Value)
		if cursor+1 >= len(args) {
			result[key] = "true"
			break
		}
		result[key] = args[cursor+1].Value
		cursor += 2
	}
	return lead, result
}

// normalizeKey 统一属性名：camelCase 与下划线都转换为小写连字符形式。
func normalizeKey(key string) string {
	var sb strings.Builder
	for i, r := range key {
		switch {
		case r == '_':
			sb.WriteByte('-')
		case unicode.IsUpper(r):
			if i > 0 {
				sb.WriteByte('-')
			}
			sb.WriteRune(unicode.ToLower(r))
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func valueToString(val *Value) string {
	if val == nil {
		return ""
	}
	switch {
	case val.String != nil:
		return string(*val.String)
	case val.Number != nil:
		return *val.Number
	case val.Color != nil:
		return *val.Color
	case val.Array != nil:
		parts := make([]string, 0, len(val.Array.Values))
		for _, item := range val.Array.Values {
			if s := valueToString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case val.Expr != nil:
		var builder strings.Builder
		for i, part := range val.Expr.Parts {
			if i > 0 && isWord(part) && isWord(val.Expr.Parts[i-1]) {
				builder.WriteByte(' ')
			}
			builder.WriteString(part.Raw)
		}
		return builder.String()
	default:
		return ""
	}
}

func isWord(l *Lexeme) bool {
	return l.Type == "Ident" || l.Type == "Number" || l.Type == "Color"
}
