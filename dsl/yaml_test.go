package dsl_test

import (
	"strings"
	"testing"

	"github.com/ByLCY/flexpaint/dsl"
	"github.com/ByLCY/flexpaint/layout"
)

const sampleYAML = `
canvas:
  width: 400
  height: 300
  background: {r: 240, g: 240, b: 240}
  padding: 20
variables:
  title: Report
  owner: nobody
styles:
  Body:
    font_size: 14
  Heading:
    extends: Body
    font_weight: bold
images:
  Hero: assets/hero.jpg
elements:
  - type: vstack
    id: main
    properties:
      spacing: 10
      alignment: center
      distribution: fillEqually
    children:
      - type: text
        content: "{{title}} by {{owner}}"
        style: Heading
        properties:
          alignment: trailing
          max_lines: 2
          line_break_mode: truncateTail
      - type: image
        source: Hero
        properties:
          scale_mode: fill
          tint_color: {r: 255, g: 0, b: 0, a: 128}
        constraints:
          - {type: width, value: 120}
          - {type: aspectRatio, ratio: 1.5}
          - {type: top, constant: 8}
      - type: spacer
        min_length: 4
`

func TestLoadYAML(t *testing.T) {
	scene, err := dsl.LoadYAMLString(sampleYAML, map[string]interface{}{"owner": "Ada"})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if scene.Width != 400 || scene.Height != 300 {
		t.Fatalf("unexpected canvas %gx%g", scene.Width, scene.Height)
	}
	if scene.Background != (layout.Color{R: 240, G: 240, B: 240, A: 255}) {
		t.Fatalf("unexpected background %+v", scene.Background)
	}
	if scene.Root.Attrs["padding"] != "20" {
		t.Fatalf("unexpected root attrs %+v", scene.Root.Attrs)
	}

	stack := scene.Root.Children[0]
	if stack.Pos != "elements[0]#main" || stack.Attrs["direction"] != "column" || stack.Attrs["alignment"] != "center" {
		t.Fatalf("unexpected stack %+v", stack)
	}
	text := stack.Children[0]
	if text.Text != "Report by Ada" {
		t.Fatalf("外部数据应覆盖 variables，得到 %q", text.Text)
	}
	for k, want := range map[string]string{
		"font-size": "14", "font-weight": "bold", "text-align": "trailing",
		"max-lines": "2", "line-break-mode": "truncateTail",
	} {
		if text.Attrs[k] != want {
			t.Fatalf("text attr %s = %q，期望 %q", k, text.Attrs[k], want)
		}
	}

	img := stack.Children[1]
	if img.Source != "assets/hero.jpg" || img.Attrs["width"] != "120" || img.Attrs["aspect-ratio"] != "1.5" {
		t.Fatalf("unexpected image %+v", img)
	}
	if !strings.HasPrefix(img.Attrs["tint-color"], "rgba(255,0,0,0.50") {
		t.Fatalf("unexpected tint %q", img.Attrs["tint-color"])
	}
	if len(scene.Warnings) != 1 || !strings.Contains(scene.Warnings[0], "top") {
		t.Fatalf("unexpected warnings %v", scene.Warnings)
	}

	tree, diags := layout.ResolveStyles(scene.Root, layout.DefaultContext())
	if diags.Has(layout.StyleValidationError) {
		t.Fatalf("YAML 属性应全部合法: %v", diags)
	}
	if tree.Nodes[2].Style.Text.MaxLines != 2 {
		t.Fatalf("max-lines 未生效")
	}
}

func TestLoadYAMLRejectsUnknownElement(t *testing.T) {
	src := "canvas: {width: 10, height: 10}\nelements:\n  - type: table\n"
	if _, err := dsl.LoadYAMLString(src, nil); err == nil || !strings.Contains(err.Error(), "table") {
		t.Fatalf("expected unknown element error, got %v", err)
	}
	if _, err := dsl.LoadYAMLString("elements: []\n", nil); err == nil {
		t.Fatalf("缺少 canvas 应报错")
	}
}
