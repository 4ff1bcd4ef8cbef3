package binding

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// 两种占位符：${path.to.value} 与模板变量 {{name}}，路径语法相同。
var exprPattern = regexp.MustCompile(`\$\{([^}]+)\}|\{\{([^{}]+)\}\}`)

// Interpolate 将文本中的 ${path.to.value} 与 {{path}} 替换为 data 中的值。
// 若 data 为空或路径不存在，则返回原占位符。
func Interpolate(text string, data any) string {
	out, _ := InterpolateStrict(text, data)
	return out
}

// InterpolateStrict 与 Interpolate 相同，同时返回未能解析的占位路径（按出现顺序，去重）。
func InterpolateStrict(text string, data any) (string, []string) {
	if !strings.Contains(text, "${") && !strings.Contains(text, "{{") {
		return text, nil
	}
	var missing []string
	seen := map[string]bool{}
	out := exprPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := exprPattern.FindStringSubmatch(match)
		if len(groups) < 3 {
			return match
		}
		path := strings.TrimSpace(groups[1] + groups[2])
		if path == "" {
			return match
		}
		if data != nil {
			if val, ok := resolvePath(data, path); ok {
				return format(val)
			}
		}
		if !seen[path] {
			seen[path] = true
			missing = append(missing, path)
		}
		return match
	})
	return out, missing
}

func format(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// JSON 数字统一是 float64，整数不输出小数部分
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// step 是路径中的一级：字段名或数组下标。
type step struct {
	key   string
	index int
}

// resolvePath 沿 a.b[0][1] 形式的路径取值，任何一级缺失都返回 false。
func resolvePath(data any, path string) (any, bool) {
	steps, ok := parsePath(path)
	if !ok {
		return nil, false
	}
	current := data
	for _, st := range steps {
		if st.key != "" {
			current, ok = field(current, st.key)
		} else {
			current, ok = element(current, st.index)
		}
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func parsePath(path string) ([]step, bool) {
	var steps []step
	for _, segment := range strings.Split(path, ".") {
		name, rest, indexed := strings.Cut(segment, "[")
		if name != "" {
			steps = append(steps, step{key: name})
		}
		if !indexed {
			continue
		}
		// rest 形如 "0][1]"
		for _, part := range strings.Split(strings.TrimSuffix(rest, "]"), "][") {
			idx, err := strconv.Atoi(part)
			if err != nil {
				return nil, false
			}
			steps = append(steps, step{index: idx})
		}
	}
	return steps, true
}

func field(current any, key string) (any, bool) {
	var val any
	ok := false
	switch c := current.(type) {
	case map[string]any:
		val, ok = c[key]
	case map[string]string:
		val, ok = c[key]
	case map[any]any:
		val, ok = c[key]
	}
	return val, ok
}

func element(current any, idx int) (any, bool) {
	switch c := current.(type) {
	case []any:
		if idx >= 0 && idx < len(c) {
			return c[idx], true
		}
	case []string:
		if idx >= 0 && idx < len(c) {
			return c[idx], true
		}
	}
	return nil, false
}
