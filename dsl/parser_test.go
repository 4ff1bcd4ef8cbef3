package dsl_test

import (
	"strings"
	"testing"

	"github.com/ByLCY/flexpaint/dsl"
	"github.com/ByLCY/flexpaint/layout"
)

const sampleDSL = `
resources {
  color Accent = #0F62FE
  image Logo "assets/logo.png"
  font Serif {
    src: "fonts/serif.ttf"
    weight: bold
  }
  style Body {
    size: 14px
    color: #333
  }
  style Title extends Body {
    size: 24px
    weight: bold
  }
}

// 画布参数直接作用在根容器上
canvas 800 600 background #ffffff padding 16 {
  vstack spacing 8 align start {
    text Title { "Hello, ${user.name}!" }
    text "plain" color Accent max-lines 2
    hstack justify space-between {
      image Logo width 120 scale-mode fit
      spacer 12
      image "photo.jpg" {
        height: 50%
        aspect-ratio: "16:9"
      }
    }
    zstack {
      text Body { "{{badge}}" }
    }
    unknown-cmd 1 2
  }
}
`

func TestParseDocument(t *testing.T) {
	doc, err := dsl.ParseString(sampleDSL)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(doc.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(doc.Sections))
	}
	if doc.Sections[0].Kind() != "resources" || doc.Sections[1].Kind() != "canvas" {
		t.Fatalf("unexpected section kinds: %s %s", doc.Sections[0].Kind(), doc.Sections[1].Kind())
	}

	canvas := doc.Sections[1].Canvas
	if canvas.Spec.Width != "800" || canvas.Spec.Height != "600" {
		t.Fatalf("unexpected canvas size: %s x %s", canvas.Spec.Width, canvas.Spec.Height)
	}
	if len(canvas.Spec.Params) != 4 || canvas.Spec.Params[1].Value != "#ffffff" {
		t.Fatalf("unexpected canvas params: %+v", canvas.Spec.Params)
	}

	vstack := canvas.Block.Statements[0].Command
	if vstack == nil || vstack.Name != "vstack" {
		t.Fatalf("expected vstack command, got %+v", canvas.Block.Statements[0])
	}
	textCmd := vstack.Block.Statements[0].Command
	if textCmd == nil || textCmd.Name != "text" || textCmd.Args[0].Value != "Title" {
		t.Fatalf("unexpected text command: %+v", textCmd)
	}
	if got := string(textCmd.Block.Statements[0].Text.Value); !strings.Contains(got, "${user.name}") {
		t.Fatalf("expected interpolation in text literal, got %s", got)
	}

	image := vstack.Block.Statements[2].Command.Block.Statements[2].Command
	if image == nil || image.Name != "image" {
		t.Fatalf("expected image command")
	}
	height := image.Block.Statements[0].Assignment
	if height == nil || height.Key != "height" || *height.Value.Number != "50%" {
		t.Fatalf("unexpected height assignment: %+v", image.Block.Statements[0])
	}
}

func TestLoadScene(t *testing.T) {
	data := map[string]interface{}{
		"user":  map[string]interface{}{"name": "Ada"},
		"badge": "NEW",
	}
	scene, err := dsl.LoadString(sampleDSL, data)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if scene.Width != 800 || scene.Height != 600 {
		t.Fatalf("unexpected canvas: %gx%g", scene.Width, scene.Height)
	}
	if scene.Background != (layout.Color{R: 255, G: 255, B: 255, A: 255}) {
		t.Fatalf("unexpected background: %+v", scene.Background)
	}
	if _, ok := scene.Root.Attrs["background"]; ok {
		t.Fatalf("canvas 背景色不应留在根节点属性中")
	}
	if scene.Root.Attrs["padding"] != "16" {
		t.Fatalf("canvas padding 应作用在根节点: %+v", scene.Root.Attrs)
	}
	if len(scene.Fonts) != 1 || scene.Fonts[0].Family != "Serif" || scene.Fonts[0].Weight != "bold" {
		t.Fatalf("unexpected fonts: %+v", scene.Fonts)
	}

	vstack := scene.Root.Children[0]
	if vstack.Attrs["direction"] != "column" || vstack.Attrs["align"] != "start" {
		t.Fatalf("unexpected vstack attrs: %+v", vstack.Attrs)
	}
	if len(vstack.Children) != 4 {
		t.Fatalf("未知命令应被忽略，期望 4 个子节点，实际 %d", len(vstack.Children))
	}

	title := vstack.Children[0]
	if title.Text != "Hello, Ada!" {
		t.Fatalf("unexpected title text %q", title.Text)
	}
	if title.Attrs["size"] != "24px" || title.Attrs["color"] != "#333" || title.Attrs["weight"] != "bold" {
		t.Fatalf("extends 链应合并: %+v", title.Attrs)
	}

	plain := vstack.Children[1]
	if plain.Text != "plain" || plain.Attrs["color"] != "#0F62FE" || plain.Attrs["max-lines"] != "2" {
		t.Fatalf("unexpected plain text node: %q %+v", plain.Text, plain.Attrs)
	}

	row := vstack.Children[2]
	if row.Attrs["direction"] != "row" || len(row.Children) != 3 {
		t.Fatalf("unexpected hstack: %+v", row)
	}
	if row.Children[0].Source != "assets/logo.png" {
		t.Fatalf("具名图片应展开为路径，得到 %q", row.Children[0].Source)
	}
	if row.Children[1].Kind != layout.KindSpacer || row.Children[1].Attrs["min-length"] != "12" {
		t.Fatalf("unexpected spacer: %+v", row.Children[1])
	}
	if row.Children[2].Source != "photo.jpg" || row.Children[2].Attrs["aspect-ratio"] != "16:9" {
		t.Fatalf("unexpected image: %+v", row.Children[2])
	}

	z := vstack.Children[3]
	if z.Attrs["layered"] != "true" || z.Children[0].Text != "NEW" {
		t.Fatalf("unexpected zstack: %+v", z)
	}
	if len(scene.Warnings) != 1 || !strings.Contains(scene.Warnings[0], "unknown-cmd") {
		t.Fatalf("unexpected warnings: %v", scene.Warnings)
	}
}

func TestLoadReportsStyleErrors(t *testing.T) {
	cases := map[string]string{
		"cycle":     "resources {\n style A extends B {\n size: 1\n }\n style B extends A {\n size: 2\n }\n}\ncanvas 10 10 {\n}\n",
		"undefined": "resources {\n style A extends Missing {\n size: 1\n }\n}\ncanvas 10 10 {\n}\n",
		"nocanvas":  "resources {\n}\n",
		"badsize":   "canvas 50% 10 {\n}\n",
	}
	for name, src := range cases {
		if _, err := dsl.LoadString(src, nil); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestMissingVariablesBecomeWarnings(t *testing.T) {
	scene, err := dsl.LoadString("canvas 100 100 {\n  text \"Hi {{who}}\"\n}\n", nil)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if scene.Root.Children[0].Text != "Hi {{who}}" {
		t.Fatalf("占位符应保留原样，得到 %q", scene.Root.Children[0].Text)
	}
	if len(scene.Warnings) != 1 || !strings.Contains(scene.Warnings[0], "who") {
		t.Fatalf("unexpected warnings: %v", scene.Warnings)
	}
}

func TestLoadedSceneLaysOut(t *testing.T) {
	scene, err := dsl.LoadString(sampleDSL, nil)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	tree, diags := layout.ResolveStyles(scene.Root, layout.DefaultContext())
	if diags.Has(layout.StyleValidationError) {
		t.Fatalf("DSL 生成的属性应全部合法: %v", diags)
	}
	geo, _, err := layout.ComputeLayout(tree, layout.Constraints{Width: scene.Width, Height: scene.Height}, layout.Options{})
	if err != nil {
		t.Fatalf("layout failed: %v", err)
	}
	if got := geo.Nodes[0].Content; got.X != 16 || got.W != 800-32 {
		t.Fatalf("unexpected root content box: %+v", got)
	}
}
