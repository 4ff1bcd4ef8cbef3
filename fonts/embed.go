package fonts

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

// DefaultFamily 是未声明字体时使用的字族名。
const DefaultFamily = "Go"

// Face 描述一个内置字形文件。
type Face struct {
	Name   string
	Family string
	Weight int
	Italic bool
	Data   []byte
}

var builtin = map[string]Face{
	"regular":     {Name: "regular", Family: DefaultFamily, Weight: 400, Data: goregular.TTF},
	"bold":        {Name: "bold", Family: DefaultFamily, Weight: 700, Data: gobold.TTF},
	"italic":      {Name: "italic", Family: DefaultFamily, Weight: 400, Italic: true, Data: goitalic.TTF},
	"bold-italic": {Name: "bold-italic", Family: DefaultFamily, Weight: 700, Italic: true, Data: gobolditalic.TTF},
	"mono":        {Name: "mono", Family: "Go Mono", Weight: 400, Data: gomono.TTF},
}

// Load 返回内置字体的字节数据，path 可写为 "embed:bold" 或直接 "bold"。
func Load(path string) ([]byte, error) {
	name := strings.ToLower(strings.TrimPrefix(path, "embed:"))
	name = strings.TrimSuffix(name, ".ttf")
	face, ok := builtin[name]
	if !ok {
		return nil, fmt.Errorf("读取内置字体 %s 失败: 未知名称", path)
	}
	return face.Data, nil
}

// All 按名称顺序返回全部内置字形。
func All() []Face {
	out := make([]Face, 0, len(builtin))
	for _, f := range builtin {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
