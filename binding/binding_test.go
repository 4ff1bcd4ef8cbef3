package binding

import (
	"reflect"
	"testing"
)

func TestInterpolate(t *testing.T) {
	data := map[string]interface{}{
		"user":  map[string]interface{}{"name": "Ada", "tags": []interface{}{"x", "y"}},
		"count": float64(3),
		"ratio": 0.5,
		"vars":  map[string]string{"title": "Hello"},
		"grid":  []interface{}{[]interface{}{"a", "b"}, []string{"c"}},
	}
	cases := []struct {
		in, want string
	}{
		{"Hi ${user.name}", "Hi Ada"},
		{"{{ user.name }}!", "Ada!"},
		{"${user.tags[1]}", "y"},
		{"${count} items", "3 items"},
		{"${ratio}", "0.5"},
		{"{{vars.title}}", "Hello"},
		{"${grid[0][1]}${grid[1][0]}", "bc"},
		{"${grid[2]} ${grid[x]}", "${grid[2]} ${grid[x]}"},
		{"${missing} {{nope}}", "${missing} {{nope}}"},
		{"plain", "plain"},
	}
	for _, c := range cases {
		if got := Interpolate(c.in, data); got != c.want {
			t.Fatalf("Interpolate(%q) = %q，期望 %q", c.in, got, c.want)
		}
	}
}

func TestInterpolateStrictReportsMissing(t *testing.T) {
	out, missing := InterpolateStrict("${a} {{b}} ${a} ${c.d}", map[string]interface{}{"c": map[string]interface{}{"d": "ok"}})
	if out != "${a} {{b}} ${a} ok" {
		t.Fatalf("unexpected output %q", out)
	}
	if !reflect.DeepEqual(missing, []string{"a", "b"}) {
		t.Fatalf("missing = %v", missing)
	}
}

func TestInterpolateNilData(t *testing.T) {
	if got := Interpolate("${x}", nil); got != "${x}" {
		t.Fatalf("nil data 应保留占位符，得到 %q", got)
	}
}
