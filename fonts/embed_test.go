package fonts

import "testing"

func TestLoadBuiltin(t *testing.T) {
	for _, name := range []string{"regular", "embed:bold", "Italic.ttf", "embed:mono"} {
		data, err := Load(name)
		if err != nil || len(data) == 0 {
			t.Fatalf("Load(%q) 失败: %v", name, err)
		}
	}
	if _, err := Load("embed:Inter-Regular"); err == nil {
		t.Fatalf("未知字体应报错")
	}
	if got := len(All()); got != 5 {
		t.Fatalf("期望 5 个内置字形，实际 %d", got)
	}
}
