package layout

import (
	"math"
	"testing"
)

// TestPtPxRoundTrip 验证 pt↔px 换算的往返精度。
func TestPtPxRoundTrip(t *testing.T) {
	samples := []float64{0, 0.001, 1, 12, 14.4, 72, 96, 144, 1000}
	for _, pt := range samples {
		px := pt * PtToPx
		back := px * PxToPt
		if diff := math.Abs(back - pt); diff > 1e-9 {
			t.Fatalf("pt→px→pt 往返误差过大: in=%gpt px=%g back=%g", pt, px, back)
		}
	}
	if got := (Length{Value: 72, Unit: UnitPT}).ToPX(16, 0); math.Abs(got-96) > 1e-9 {
		t.Fatalf("72pt 期望 96px，实际 %g", got)
	}
}

func TestParseDimension(t *testing.T) {
	cases := []struct {
		in   string
		want Dimension
	}{
		{"", Auto},
		{"auto", Auto},
		{"120", Px(120)},
		{"120px", Px(120)},
		{"50%", Pct(50)},
		{"2em", Px(32)},
		{"min-content", Dimension{Kind: DimMinContent}},
		{"max-content", Dimension{Kind: DimMaxContent}},
	}
	for _, c := range cases {
		got, err := ParseDimension(c.in, 16)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("%q: 期望 %v，实际 %v", c.in, c.want, got)
		}
	}
	if _, err := ParseDimension("-3", 16); err == nil {
		t.Fatalf("负数尺寸应报错")
	}
	if _, err := ParseDimension("wide", 16); err == nil {
		t.Fatalf("非法尺寸应报错")
	}
}

func TestDimensionResolve(t *testing.T) {
	if v, ok := Pct(25).Resolve(400); !ok || v != 100 {
		t.Fatalf("25%% of 400 期望 100，实际 %g %v", v, ok)
	}
	if _, ok := Pct(25).Resolve(math.Inf(1)); ok {
		t.Fatalf("无限参照下百分比不可解析")
	}
	if _, ok := Auto.Resolve(100); ok {
		t.Fatalf("auto 不可解析")
	}
}

// TestLineHeightResolve 覆盖系数与绝对值两种写法。
func TestLineHeightResolve(t *testing.T) {
	spec, err := ParseLineHeight("1.5x")
	if err != nil {
		t.Fatal(err)
	}
	if got := spec.Resolve(10); math.Abs(got-15) > 1e-9 {
		t.Fatalf("1.5x@10 期望 15，实际 %g", got)
	}
	spec, err = ParseLineHeight("20px")
	if err != nil {
		t.Fatal(err)
	}
	if got := spec.Resolve(10); got != 20 {
		t.Fatalf("20px 期望 20，实际 %g", got)
	}
	if got := (LineHeightSpec{}).Resolve(10); math.Abs(got-12) > 1e-9 {
		t.Fatalf("默认行高期望 12，实际 %g", got)
	}
}

// TestParseLineHeightForms 覆盖带 x 的倍数与以 x 结尾的长度单位。
func TestParseLineHeightForms(t *testing.T) {
	cases := []struct {
		in   string
		want float64 // 字号 16 下的行高
	}{
		{"20px", 20},
		{"20PX", 20},
		{" 24px ", 24},
		{"1.5x", 24},
		{"2", 32},
		{"12pt", 16},
		{"1.25em", 20},
		{"150%", 24},
	}
	for _, c := range cases {
		spec, err := ParseLineHeight(c.in)
		if err != nil {
			t.Fatalf("ParseLineHeight(%q) 报错: %v", c.in, err)
		}
		if got := spec.Resolve(16); math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("ParseLineHeight(%q) 期望 %g，实际 %g", c.in, c.want, got)
		}
	}
	for _, bad := range []string{"px", "0px", "-3px", "abcx", "x"} {
		if _, err := ParseLineHeight(bad); err == nil {
			t.Fatalf("ParseLineHeight(%q) 应报错", bad)
		}
	}
}

func TestParseEdgesShorthand(t *testing.T) {
	e, err := ParseEdges("1 2 3", 16)
	if err != nil {
		t.Fatal(err)
	}
	if e != (Edges{Top: 1, Right: 2, Bottom: 3, Left: 2}) {
		t.Fatalf("三值简写错误: %+v", e)
	}
	e, err = ParseEdges("4, 8", 16)
	if err != nil {
		t.Fatal(err)
	}
	if e != (Edges{Top: 4, Right: 8, Bottom: 4, Left: 8}) {
		t.Fatalf("两值简写错误: %+v", e)
	}
	if _, err := ParseEdges("1 2 3 4 5", 16); err == nil {
		t.Fatalf("五个值应报错")
	}
}
