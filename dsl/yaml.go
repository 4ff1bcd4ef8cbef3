package dsl

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ByLCY/flexpaint/layout"
)

// YAML 场景格式：
//
//	canvas: {width: 800, height: 600, background: "#fff", padding: 16}
//	variables: {name: Ada}
//	styles: {Title: {extends: Body, font_size: 24}}
//	images: {Logo: assets/logo.png}
//	elements:
//	  - type: vstack
//	    properties: {spacing: 8}
//	    children:
//	      - {type: text, content: "Hello {{name}}"}
//
// 多个顶层元素会被包在一个列方向的根容器里。
type yamlScene struct {
	Canvas    map[string]any            `yaml:"canvas"`
	Variables map[string]any            `yaml:"variables"`
	Styles    map[string]map[string]any `yaml:"styles"`
	Images    map[string]string         `yaml:"images"`
	Colors    map[string]string         `yaml:"colors"`
	Fonts     []yamlFont                `yaml:"fonts"`
	Elements  []map[string]any          `yaml:"elements"`
}

type yamlFont struct {
	Family string `yaml:"family"`
	Src    string `yaml:"src"`
	Weight string `yaml:"weight"`
	Italic bool   `yaml:"italic"`
}

// LoadYAML 读取 YAML 场景。data 中的值优先于文件内的 variables。
func LoadYAML(r io.Reader, data any) (*Scene, error) {
	var doc yamlScene
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("解析 YAML 失败: %w", err)
	}
	return doc.load(data)
}

// LoadYAMLString 读取 YAML 文本。
func LoadYAMLString(input string, data any) (*Scene, error) {
	return LoadYAML(strings.NewReader(input), data)
}

func (doc *yamlScene) load(data any) (*Scene, error) {
	if doc.Canvas == nil {
		return nil, fmt.Errorf("YAML 场景缺少 canvas")
	}
	res := newResourceSet()
	raw := map[string]styleDecl{}
	for name, props := range doc.Styles {
		st := styleDecl{name: name, props: map[string]string{}}
		for k, v := range props {
			if k == "extends" {
				st.extends = scalarString(v)
				continue
			}
			st.props[normalizeKey(k)] = yamlValue(v)
		}
		raw[name] = st
	}
	styles, err := resolveStyles(raw)
	if err != nil {
		return nil, err
	}
	res.styles = styles
	for name, src := range doc.Images {
		res.images[name] = src
	}
	for name, value := range doc.Colors {
		if _, err := layout.ParseColor(value); err != nil {
			return nil, fmt.Errorf("颜色 %s: %w", name, err)
		}
		res.colors[name] = value
	}
	for _, f := range doc.Fonts {
		res.fonts = append(res.fonts, FontDecl(f))
	}

	b := &builder{data: mergeVariables(doc.Variables, data), res: res}
	canvas := map[string]string{}
	for k, v := range doc.Canvas {
		canvas[normalizeKey(k)] = yamlValue(v)
	}
	width, err := parseCanvasLength(b.text(canvas["width"]))
	if err != nil {
		return nil, fmt.Errorf("canvas 宽度: %w", err)
	}
	height, err := parseCanvasLength(b.text(canvas["height"]))
	if err != nil {
		return nil, fmt.Errorf("canvas 高度: %w", err)
	}
	delete(canvas, "width")
	delete(canvas, "height")

	root := &layout.RawNode{Kind: layout.KindContainer, Pos: "canvas"}
	for i, el := range doc.Elements {
		child, err := b.element(el, fmt.Sprintf("elements[%d]", i))
		if err != nil {
			return nil, err
		}
		if child != nil {
			root.Children = append(root.Children, child)
		}
	}
	root.Attrs = b.finishAttrs(canvas, "")

	scene := &Scene{Width: width, Height: height, Root: root, Fonts: res.fonts, Images: res.images}
	if err := b.canvasAttrs(scene); err != nil {
		return nil, err
	}
	scene.Warnings = b.warnings
	return scene, nil
}

// mergeVariables 合并文件内变量与外部数据，外部数据同名时覆盖。
func mergeVariables(vars map[string]any, data any) any {
	if len(vars) == 0 {
		return data
	}
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	if m, ok := data.(map[string]any); ok {
		for k, v := range m {
			out[k] = v
		}
	} else if data != nil {
		out["data"] = data
	}
	return out
}

// 元素上这些键有专门含义，其余键都按样式属性处理。
var elementKeys = map[string]bool{
	"type": true, "id": true, "properties": true, "constraints": true, "children": true,
}

func (b *builder) element(el map[string]any, where string) (*layout.RawNode, error) {
	typ := strings.ToLower(scalarString(el["type"]))
	spec, ok := nodeKinds[typ]
	if !ok {
		return nil, fmt.Errorf("%s: 未知元素类型 %q", where, typ)
	}
	pos := where
	if id := scalarString(el["id"]); id != "" {
		pos = where + "#" + id
	}
	node := &layout.RawNode{Kind: spec.kind, Pos: pos}
	attrs := map[string]string{}
	for k, v := range spec.attrs {
		attrs[k] = v
	}

	setAttr := func(k string, v any) {
		key := normalizeKey(k)
		if key == "alignment" && spec.kind == layout.KindText {
			key = "text-align"
		}
		attrs[key] = yamlValue(v)
	}
	for _, k := range sortedKeys(el) {
		if !elementKeys[k] {
			setAttr(k, el[k])
		}
	}
	if props, ok := el["properties"].(map[string]any); ok {
		for _, k := range sortedKeys(props) {
			setAttr(k, props[k])
		}
	}
	if list, ok := el["constraints"].([]any); ok {
		for _, c := range list {
			if m, ok := c.(map[string]any); ok {
				b.constraint(attrs, m, pos)
			}
		}
	}
	node.Attrs = attrs

	if list, ok := el["children"].([]any); ok {
		for i, c := range list {
			m, ok := c.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s.children[%d]: 元素必须是映射", pos, i)
			}
			child, err := b.element(m, fmt.Sprintf("%s.children[%d]", pos, i))
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		}
	}
	node.Attrs = b.finishAttrs(node.Attrs, "")
	b.finishNode(node)
	return node, nil
}

// constraint 把尺寸类约束转换为属性；相对定位约束没有对应的布局语义，记录警告后忽略。
func (b *builder) constraint(attrs map[string]string, c map[string]any, pos string) {
	typ := scalarString(c["type"])
	key := map[string]string{
		"width": "width", "height": "height",
		"minWidth": "min-width", "maxWidth": "max-width",
		"minHeight": "min-height", "maxHeight": "max-height",
		"aspectRatio": "aspect-ratio",
	}[typ]
	if key == "" {
		b.warn("%s: 约束 %s 不受支持，已忽略", pos, typ)
		return
	}
	val, ok := c["value"]
	if !ok {
		val = c["ratio"]
	}
	if s := yamlValue(val); s != "" {
		attrs[key] = s
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// yamlValue 把 YAML 值转换为属性字符串：
// {r,g,b[,a]} 映射为 rgba()，{top,right,bottom,left} 映射为四值简写，列表以空格连接。
func yamlValue(v any) string {
	switch x := v.(type) {
	case map[string]any:
		if _, ok := x["r"]; ok {
			a := 255.0
			if av, ok := x["a"]; ok {
				a, _ = strconv.ParseFloat(scalarString(av), 64)
			}
			return fmt.Sprintf("rgba(%s,%s,%s,%s)", scalarString(x["r"]), scalarString(x["g"]), scalarString(x["b"]),
				strconv.FormatFloat(a/255, 'f', -1, 64))
		}
		if _, ok := x["top"]; ok {
			return strings.Join([]string{
				scalarString(x["top"]), scalarString(x["right"]), scalarString(x["bottom"]), scalarString(x["left"]),
			}, " ")
		}
		return ""
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, yamlValue(item))
		}
		return strings.Join(parts, " ")
	default:
		return scalarString(x)
	}
}
