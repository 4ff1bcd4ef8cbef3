package resource

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ByLCY/flexpaint/fonts"
	"github.com/ByLCY/flexpaint/layout"
	"github.com/ByLCY/flexpaint/renderer/raster"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImagesDecodeOnce(t *testing.T) {
	s := NewImages("")
	s.Add("logo", encodePNG(t, 32, 18))

	a, err := s.Load("logo")
	require.NoError(t, err)
	b, err := s.Load("logo")
	require.NoError(t, err)
	require.Same(t, a, b)

	w, h, err := s.NaturalSize("logo")
	require.NoError(t, err)
	require.Equal(t, 32, w)
	require.Equal(t, 18, h)
}

func TestImagesConcurrentLoad(t *testing.T) {
	s := NewImages("")
	s.Add("photo", encodePNG(t, 64, 64))
	var wg sync.WaitGroup
	results := make([]image.Image, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			img, err := s.Load("photo")
			if err == nil {
				results[i] = img
			}
		}()
	}
	wg.Wait()
	for _, img := range results {
		require.NotNil(t, img)
		require.Same(t, results[0], img)
	}
}

func TestImagesFromBaseDirAndDataURI(t *testing.T) {
	dir := t.TempDir()
	data := encodePNG(t, 4, 3)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), data, 0o644))

	s := NewImages(dir)
	w, h, err := s.NaturalSize("a.png")
	require.NoError(t, err)
	require.Equal(t, [2]int{4, 3}, [2]int{w, h})

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
	w, h, err = s.NaturalSize(uri)
	require.NoError(t, err)
	require.Equal(t, [2]int{4, 3}, [2]int{w, h})
}

func TestImagesFailuresWrapResourceLoad(t *testing.T) {
	s := NewImages(t.TempDir())
	_, err := s.Load("missing.png")
	require.ErrorIs(t, err, layout.ErrResourceLoad)

	s.Add("junk", []byte("not an image"))
	_, _, err = s.NaturalSize("junk")
	require.ErrorIs(t, err, layout.ErrResourceLoad)

	// 重新登记后失败缓存失效
	s.Add("junk", encodePNG(t, 2, 2))
	_, err = s.Load("junk")
	require.NoError(t, err)

	_, err = s.Load("data:image/png,plain")
	require.ErrorIs(t, err, layout.ErrResourceLoad)
}

func defaultFonts(t *testing.T) *Fonts {
	t.Helper()
	fs, err := DefaultFonts()
	require.NoError(t, err)
	return fs
}

func TestShapeProducesOutlinedGlyphs(t *testing.T) {
	fs := defaultFonts(t)
	spec := layout.FontSpec{Family: fonts.DefaultFamily, Size: 20, Weight: 400}
	run, err := fs.Shape("Hello", spec)
	require.NoError(t, err)
	require.Len(t, run.Glyphs, 5)
	require.Greater(t, run.Advance, 20.0)
	for i := 1; i < len(run.Glyphs); i++ {
		require.Greater(t, run.Glyphs[i].X, run.Glyphs[i-1].X)
		require.NotEmpty(t, run.Glyphs[i].Segments)
	}

	// 空格没有轮廓，但仍然推进
	spaced, err := fs.Shape("a b", spec)
	require.NoError(t, err)
	require.Len(t, spaced.Glyphs, 2)
}

func TestShapeLetterSpacing(t *testing.T) {
	fs := defaultFonts(t)
	spec := layout.FontSpec{Size: 16}
	plain, err := fs.Shape("abcd", spec)
	require.NoError(t, err)
	spec.LetterSpacing = 2
	spaced, err := fs.Shape("abcd", spec)
	require.NoError(t, err)
	require.InDelta(t, plain.Advance+6, spaced.Advance, 1e-9)
}

func TestFontMatching(t *testing.T) {
	fs := defaultFonts(t)
	cases := []struct {
		spec   layout.FontSpec
		weight int
		italic bool
		family string
	}{
		{layout.FontSpec{Family: "Go", Weight: 400}, 400, false, "Go"},
		{layout.FontSpec{Family: "go", Weight: 700}, 700, false, "Go"},
		{layout.FontSpec{Family: "Go", Weight: 600}, 700, false, "Go"},
		{layout.FontSpec{Family: "Go", Weight: 300, Italic: true}, 400, true, "Go"},
		{layout.FontSpec{Family: "Go Mono"}, 400, false, "Go Mono"},
		{layout.FontSpec{Family: "Nonexistent", Weight: 800}, 700, false, "Go"},
	}
	for _, c := range cases {
		fc, err := fs.match(c.spec)
		require.NoError(t, err)
		require.Equal(t, c.family, fc.family, "%+v", c.spec)
		require.Equal(t, c.weight, fc.weight, "%+v", c.spec)
		require.Equal(t, c.italic, fc.italic, "%+v", c.spec)
	}

	_, err := NewFonts().Shape("x", layout.FontSpec{Size: 12})
	require.ErrorIs(t, err, layout.ErrResourceLoad)
	require.ErrorIs(t, NewFonts().Add("bad", 400, false, []byte("nope")), layout.ErrResourceLoad)
}

func TestFontFilesAndMetrics(t *testing.T) {
	fs := NewFonts()
	require.NoError(t, fs.AddFile("Body", "embed:regular", 0, false))
	require.ErrorIs(t, fs.AddFile("Body", filepath.Join(t.TempDir(), "none.ttf"), 400, false), layout.ErrResourceLoad)
	require.Equal(t, []string{"Body"}, fs.Families())

	ascent, descent, err := fs.Metrics(layout.FontSpec{Family: "Body", Size: 32})
	require.NoError(t, err)
	require.Greater(t, ascent, 20.0)
	require.Greater(t, descent, 0.0)

	family, data, err := fs.Bytes(layout.FontSpec{Family: "body"})
	require.NoError(t, err)
	require.Equal(t, "Body", family)
	require.NotEmpty(t, data)
}

func TestRenderWithRealFonts(t *testing.T) {
	fs := defaultFonts(t)
	imgs := NewImages("")
	imgs.Add("icon", encodePNG(t, 10, 10))

	raw := &layout.RawNode{Kind: layout.KindContainer, Attrs: map[string]string{"direction": "row", "align-items": "start"}, Children: []*layout.RawNode{
		{Kind: layout.KindText, Text: "Hi there", Attrs: map[string]string{"size": "24", "width": "120"}},
		{Kind: layout.KindImage, Source: "icon"},
	}}
	tree, diags := layout.ResolveStyles(raw, layout.DefaultContext())
	require.Empty(t, diags)
	geo, diags, err := layout.ComputeLayout(tree, layout.Constraints{Width: 200, Height: 60}, layout.Options{Images: imgs})
	require.NoError(t, err)
	require.Empty(t, diags)

	out, rdiags, err := raster.Render(geo, raster.Resources{Fonts: fs, Images: imgs}, raster.WithParallel(true))
	require.NoError(t, err)
	require.Empty(t, rdiags)

	textBox := geo.Nodes[1].Border
	inked := 0
	for y := 0; y < out.Rect.Dy(); y++ {
		for x := 0; x < out.Rect.Dx(); x++ {
			if out.RGBAAt(x, y).A == 0 {
				continue
			}
			if float64(x) < textBox.Right() && float64(y) < textBox.Bottom() {
				inked++
			}
		}
	}
	require.Greater(t, inked, 20, "文本区域内应有字形像素")
	require.Equal(t, uint8(255), out.RGBAAt(int(geo.Nodes[2].Content.X)+5, 5).A, "图片应被绘制")
}
