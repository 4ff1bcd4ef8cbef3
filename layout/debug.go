package layout

import (
	"encoding/json"
	"io"
)

type debugDump struct {
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	Nodes       []debugNode `json:"nodes"`
	Diagnostics Diagnostics `json:"diagnostics,omitempty"`
}

type debugNode struct {
	Index    int      `json:"index"`
	Kind     NodeKind `json:"kind"`
	Path     string   `json:"path"`
	Parent   int      `json:"parent"`
	Border   Rect     `json:"border"`
	Content  Rect     `json:"content"`
	Text     *TextBox `json:"text,omitempty"`
	Source   string   `json:"source,omitempty"`
	Children []int    `json:"children,omitempty"`
}

// EncodeDebugJSON 将布局结果输出为 JSON，便于调试或可视化。
func EncodeDebugJSON(w io.Writer, geo *Geometry, diags Diagnostics) error {
	if geo == nil {
		return nil
	}
	dump := debugDump{Width: geo.Width, Height: geo.Height, Diagnostics: diags}
	for i, g := range geo.Nodes {
		d := debugNode{Index: i, Border: g.Border, Content: g.Content, Text: g.Text, Parent: -1}
		if geo.Tree != nil && i < len(geo.Tree.Nodes) {
			n := geo.Tree.Nodes[i]
			d.Kind, d.Path, d.Parent, d.Source, d.Children = n.Kind, n.Path, n.Parent, n.Source, n.Children
		}
		dump.Nodes = append(dump.Nodes, d)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(dump)
}
