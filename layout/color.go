package layout

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// ParseColor 支持 #rgb / #rgba / #rrggbb / #rrggbbaa、rgb()/rgba() 以及 SVG 颜色名。
func ParseColor(value string) (Color, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return Color{}, fmt.Errorf("颜色值为空")
	}
	if v == "transparent" || v == "none" || v == "clear" {
		return Transparent, nil
	}
	if strings.HasPrefix(v, "#") {
		return parseHexColor(v[1:])
	}
	if strings.HasPrefix(v, "rgb") {
		return parseFuncColor(v)
	}
	if c, ok := colornames.Map[v]; ok {
		return Color{R: c.R, G: c.G, B: c.B, A: c.A}, nil
	}
	return Color{}, fmt.Errorf("颜色值 %s 无法解析", value)
}

func parseHexColor(hex string) (Color, error) {
	for _, r := range hex {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return Color{}, fmt.Errorf("颜色值 #%s 无法解析", hex)
		}
	}
	switch len(hex) {
	case 3, 4:
		c := Color{
			R: hexByte(strings.Repeat(hex[0:1], 2)),
			G: hexByte(strings.Repeat(hex[1:2], 2)),
			B: hexByte(strings.Repeat(hex[2:3], 2)),
			A: 255,
		}
		if len(hex) == 4 {
			c.A = hexByte(strings.Repeat(hex[3:4], 2))
		}
		return c, nil
	case 6, 8:
		c := Color{R: hexByte(hex[0:2]), G: hexByte(hex[2:4]), B: hexByte(hex[4:6]), A: 255}
		if len(hex) == 8 {
			c.A = hexByte(hex[6:8])
		}
		return c, nil
	default:
		return Color{}, fmt.Errorf("颜色值 #%s 无法解析", hex)
	}
}

func hexByte(s string) uint8 {
	v, _ := strconv.ParseUint(s, 16, 8)
	return uint8(v)
}

// parseFuncColor 解析 rgb(r,g,b) / rgba(r,g,b,a)，a 取 0-1。
func parseFuncColor(v string) (Color, error) {
	open := strings.IndexByte(v, '(')
	if open < 0 || !strings.HasSuffix(v, ")") {
		return Color{}, fmt.Errorf("颜色值 %s 无法解析", v)
	}
	parts := strings.Split(v[open+1:len(v)-1], ",")
	if len(parts) != 3 && len(parts) != 4 {
		return Color{}, fmt.Errorf("颜色值 %s 分量个数错误", v)
	}
	var ch [4]uint8
	ch[3] = 255
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Color{}, fmt.Errorf("颜色值 %s 无法解析: %w", v, err)
		}
		if i == 3 {
			f *= 255
		}
		if f < 0 || f > 255 {
			return Color{}, fmt.Errorf("颜色分量越界：%s", v)
		}
		ch[i] = uint8(f + 0.5)
	}
	return Color{R: ch[0], G: ch[1], B: ch[2], A: ch[3]}, nil
}

// RGBA 返回预乘后的 16 位分量，满足 color.Color 接口。
func (c Color) RGBA() (r, g, b, a uint32) {
	a = uint32(c.A)
	r = uint32(c.R) * a / 255
	g = uint32(c.G) * a / 255
	b = uint32(c.B) * a / 255
	return r * 0x101, g * 0x101, b * 0x101, a * 0x101
}
