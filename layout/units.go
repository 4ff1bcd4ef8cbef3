package layout

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// This file defines unit-safe types and helpers for lengths, dimensions and line-height.

// Unit represents the original unit of a length value as written by the author.
type Unit int

const (
	UnitNone    Unit = iota // unit-less numbers (treated as px for lengths, factor for line-height)
	UnitPX                  // device pixels
	UnitPT                  // points, 96 dpi
	UnitEM                  // relative to the node's font size
	UnitPercent             // percent of the parent's available content size
)

// Conversion constants between pt and px.
const (
	PtToPx = 96.0 / 72.0
	PxToPt = 1.0 / PtToPx
)

// UnitToString returns a short string for a Unit value.
func UnitToString(u Unit) string {
	switch u {
	case UnitPX:
		return "px"
	case UnitPT:
		return "pt"
	case UnitEM:
		return "em"
	case UnitPercent:
		return "%"
	default:
		return ""
	}
}

// Length preserves a numeric value with its unit.
type Length struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

func (l Length) IsZero() bool { return l.Value == 0 }

// ToPX converts this length to pixels. em resolves against fontSize; percent
// resolves against reference.
func (l Length) ToPX(fontSize, reference float64) float64 {
	switch l.Unit {
	case UnitPT:
		return l.Value * PtToPx
	case UnitEM:
		return l.Value * fontSize
	case UnitPercent:
		return reference * l.Value / 100
	default:
		return l.Value
	}
}

// ParseRawLengthStr parses a length string preserving its unit.
func ParseRawLengthStr(value string) (Length, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return Length{}, fmt.Errorf("空长度")
	}
	unit := UnitNone
	num := v
	for _, suf := range []struct {
		s string
		u Unit
	}{{"px", UnitPX}, {"pt", UnitPT}, {"em", UnitEM}, {"%", UnitPercent}} {
		if strings.HasSuffix(v, suf.s) {
			unit = suf.u
			num = strings.TrimSpace(strings.TrimSuffix(v, suf.s))
			break
		}
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Length{}, fmt.Errorf("无法解析长度 %q", value)
	}
	return Length{Value: f, Unit: unit}, nil
}

// DimensionKind enumerates the forms a size can take.
type DimensionKind int

const (
	DimAuto DimensionKind = iota
	DimFixed
	DimPercent
	DimMinContent
	DimMaxContent
)

// Dimension is Auto | Fixed(px) | Percent(pct) | MinContent | MaxContent.
// Percent stays unresolved until the solver knows the parent's available space.
type Dimension struct {
	Kind  DimensionKind `json:"kind"`
	Value float64       `json:"value,omitempty"`
}

var Auto = Dimension{}

// Px returns a fixed dimension.
func Px(v float64) Dimension { return Dimension{Kind: DimFixed, Value: v} }

// Pct returns a percent dimension.
func Pct(v float64) Dimension { return Dimension{Kind: DimPercent, Value: v} }

func (d Dimension) IsAuto() bool { return d.Kind == DimAuto }

// Definite reports whether the dimension resolves without intrinsic measurement.
func (d Dimension) Definite() bool { return d.Kind == DimFixed || d.Kind == DimPercent }

// Resolve returns the pixel value against reference; ok is false for Auto and
// content keywords, or for percent without a usable reference.
func (d Dimension) Resolve(reference float64) (float64, bool) {
	switch d.Kind {
	case DimFixed:
		return d.Value, true
	case DimPercent:
		if math.IsInf(reference, 0) || reference < 0 {
			return 0, false
		}
		return reference * d.Value / 100, true
	default:
		return 0, false
	}
}

func (d Dimension) String() string {
	switch d.Kind {
	case DimFixed:
		return strconv.FormatFloat(d.Value, 'f', -1, 64) + "px"
	case DimPercent:
		return strconv.FormatFloat(d.Value, 'f', -1, 64) + "%"
	case DimMinContent:
		return "min-content"
	case DimMaxContent:
		return "max-content"
	default:
		return "auto"
	}
}

// ParseDimension parses "auto", "min-content", "max-content", "50%", "12pt", "2em", "100".
// em is resolved eagerly against fontSize.
func ParseDimension(value string, fontSize float64) (Dimension, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	switch v {
	case "", "auto":
		return Auto, nil
	case "min-content", "mincontent":
		return Dimension{Kind: DimMinContent}, nil
	case "max-content", "maxcontent":
		return Dimension{Kind: DimMaxContent}, nil
	}
	l, err := ParseRawLengthStr(v)
	if err != nil {
		return Auto, err
	}
	if l.Value < 0 {
		return Auto, fmt.Errorf("尺寸不能为负：%s", value)
	}
	if l.Unit == UnitPercent {
		return Pct(l.Value), nil
	}
	return Px(l.ToPX(fontSize, 0)), nil
}

// LineHeightKind 区分倍数行高与绝对行高。
type LineHeightKind int

const (
	LineHeightFactor LineHeightKind = iota
	LineHeightAbsolute
)

// DefaultLineHeightFactor is applied when no line-height is given.
const DefaultLineHeightFactor = 1.2

// LineHeightSpec preserves original author intent: either a factor (e.g., 1.2x) or an absolute length (e.g., 20px).
type LineHeightSpec struct {
	Kind   LineHeightKind `json:"kind"`
	Factor float64        `json:"factor,omitempty"`
	Len    Length         `json:"len,omitempty"`
}

// Resolve computes the absolute line height in px using the given font size (px).
func (s LineHeightSpec) Resolve(fontSize float64) float64 {
	switch s.Kind {
	case LineHeightAbsolute:
		return s.Len.ToPX(fontSize, fontSize)
	default:
		f := s.Factor
		if f <= 0 {
			f = DefaultLineHeightFactor
		}
		return fontSize * f
	}
}

// ParseLineHeight accepts "1.5", "1.5x" (factors) or "20px", "18pt", "1.2em", "120%".
func ParseLineHeight(value string) (LineHeightSpec, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	// "1.5x" 是倍数，"20px" 是长度
	if strings.HasSuffix(v, "x") && !strings.HasSuffix(v, "px") {
		f, err := strconv.ParseFloat(strings.TrimSuffix(v, "x"), 64)
		if err != nil || f <= 0 {
			return LineHeightSpec{Factor: DefaultLineHeightFactor}, fmt.Errorf("无效的行高 %q", value)
		}
		return LineHeightSpec{Kind: LineHeightFactor, Factor: f}, nil
	}
	l, err := ParseRawLengthStr(v)
	if err != nil || l.Value <= 0 {
		return LineHeightSpec{Factor: DefaultLineHeightFactor}, fmt.Errorf("无效的行高 %q", value)
	}
	if l.Unit == UnitNone {
		return LineHeightSpec{Kind: LineHeightFactor, Factor: l.Value}, nil
	}
	return LineHeightSpec{Kind: LineHeightAbsolute, Len: l}, nil
}

// ParseEdges follows CSS shorthand: 1 to 4 values (top right bottom left).
func ParseEdges(value string, fontSize float64) (Edges, error) {
	parts := strings.Fields(strings.NewReplacer(",", " ").Replace(value))
	if len(parts) == 0 || len(parts) > 4 {
		return Edges{}, fmt.Errorf("无效的边距 %q", value)
	}
	vals := make([]float64, len(parts))
	for i, p := range parts {
		l, err := ParseRawLengthStr(p)
		if err != nil {
			return Edges{}, err
		}
		if l.Unit == UnitPercent {
			return Edges{}, fmt.Errorf("边距不支持百分比：%q", value)
		}
		vals[i] = l.ToPX(fontSize, 0)
	}
	switch len(vals) {
	case 1:
		return Edges{Top: vals[0], Right: vals[0], Bottom: vals[0], Left: vals[0]}, nil
	case 2:
		return Edges{Top: vals[0], Right: vals[1], Bottom: vals[0], Left: vals[1]}, nil
	case 3:
		return Edges{Top: vals[0], Right: vals[1], Bottom: vals[2], Left: vals[1]}, nil
	default:
		return Edges{Top: vals[0], Right: vals[1], Bottom: vals[2], Left: vals[3]}, nil
	}
}
