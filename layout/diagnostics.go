package layout

import (
	"errors"
	"fmt"
	"sort"
)

// 错误分类：除画布尺寸非法外，任何单节点问题都只记录诊断，不中断渲染。

var (
	// ErrInvalidCanvas 是唯一会中止调用的前置条件：画布宽高必须为正。
	ErrInvalidCanvas = errors.New("画布宽高必须为正数")
	// ErrResourceLoad 由资源提供方包装返回，表示图片/字体加载失败。
	ErrResourceLoad = errors.New("资源加载失败")
)

// DiagKind 是诊断类型。
type DiagKind int

const (
	// StyleValidationError 样式值非法，已替换为默认值。
	StyleValidationError DiagKind = iota
	// MissingRequiredAttribute 缺少必需属性，节点按空盒处理。
	MissingRequiredAttribute
	// LayoutUnresolvable 约束无法满足（例如内边距超出盒子），已钳制为 0。
	LayoutUnresolvable
	// ResourceLoadFailure 资源加载失败，绘制占位框。
	ResourceLoadFailure
)

func (k DiagKind) String() string {
	switch k {
	case StyleValidationError:
		return "StyleValidationError"
	case MissingRequiredAttribute:
		return "MissingRequiredAttribute"
	case LayoutUnresolvable:
		return "LayoutUnresolvable"
	case ResourceLoadFailure:
		return "ResourceLoadFailure"
	default:
		return "Unknown"
	}
}

func (k DiagKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Diagnostic 描述一个非致命问题。
type Diagnostic struct {
	Kind    DiagKind `json:"kind"`
	Node    int      `json:"node"`
	Path    string   `json:"path,omitempty"`
	Attr    string   `json:"attr,omitempty"`
	Message string   `json:"message"`
}

func (d Diagnostic) Error() string {
	loc := d.Path
	if loc == "" {
		loc = fmt.Sprintf("#%d", d.Node)
	}
	if d.Attr != "" {
		return fmt.Sprintf("%s %s [%s]: %s", d.Kind, loc, d.Attr, d.Message)
	}
	return fmt.Sprintf("%s %s: %s", d.Kind, loc, d.Message)
}

// Diagnostics 按产生顺序累积。
type Diagnostics []Diagnostic

// Add 追加一条诊断。
func (ds *Diagnostics) Add(kind DiagKind, node int, path, attr, format string, args ...any) {
	*ds = append(*ds, Diagnostic{Kind: kind, Node: node, Path: path, Attr: attr, Message: fmt.Sprintf(format, args...)})
}

// Has 判断是否存在某类诊断。
func (ds Diagnostics) Has(kind DiagKind) bool {
	for _, d := range ds {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

// Count 返回某类诊断数量。
func (ds Diagnostics) Count(kind DiagKind) int {
	n := 0
	for _, d := range ds {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Err 将全部诊断合并为一个 error；无诊断时返回 nil。
func (ds Diagnostics) Err() error {
	if len(ds) == 0 {
		return nil
	}
	errs := make([]error, len(ds))
	for i := range ds {
		errs[i] = ds[i]
	}
	return errors.Join(errs...)
}

// sortStable 按节点下标稳定排序，使并行求解的诊断顺序可复现。
func (ds Diagnostics) sortStable() {
	sort.SliceStable(ds, func(i, j int) bool { return ds[i].Node < ds[j].Node })
}
