package canvasrenderer

import (
	"testing"
)

// 当第一行宽度与容器宽度恰好相等且后面紧跟一个显式换行时，不应产生额外的空行。
func TestNoBlankLineWhenEqualWidthThenNewline(t *testing.T) {
	m := NewMeasurer(nil)
	spec := body(16)

	first := "SAMPLE-A"
	// 不限宽先测量第一行宽度
	measured, err := m.Measure(first, spec, 1e6)
	if err != nil {
		t.Fatalf("measure error: %v", err)
	}
	if len(measured.Lines) != 1 {
		t.Fatalf("unexpected measured lines: %d", len(measured.Lines))
	}
	limit := measured.Lines[0].Width
	if limit <= 0 {
		t.Fatalf("invalid measured width: %g", limit)
	}

	// 构造恰好等宽 + 显式换行 + 下一行内容
	metrics, err := m.Measure(first+"\n"+"SAMPLE-B", spec, limit)
	if err != nil {
		t.Fatalf("Measure error: %v", err)
	}
	lines := metrics.Lines
	if got := len(lines); got != 2 {
		t.Fatalf("expected 2 lines without blank, got %d", got)
	}
	if lines[0].Text != first {
		t.Fatalf("first line mismatch: got=%q want=%q", lines[0].Text, first)
	}
	if lines[1].Text != "SAMPLE-B" {
		t.Fatalf("second line mismatch: got=%q want=%q", lines[1].Text, "SAMPLE-B")
	}
}
