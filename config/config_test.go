package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ByLCY/flexpaint/layout"
)

const sample = `
[canvas]
width = 1024
height = 768
background = "#102030"

[[fonts]]
family = "Serif"
src = "fonts/serif.ttf"
weight = 700

[assets]
dir = "assets"

[log]
level = "debug"

[output]
format = "png"

[parallel]
layout = true
paint = true
`

func TestDecodeMergesDefaults(t *testing.T) {
	cfg, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)
	require.Equal(t, 1024.0, cfg.Canvas.Width)
	require.Equal(t, []FontConfig{{Family: "Serif", Src: "fonts/serif.ttf", Weight: 700}}, cfg.Fonts)
	require.Equal(t, "assets", cfg.Assets.Dir)
	require.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	require.True(t, cfg.Parallel.Layout)
	require.Equal(t, layout.Color{R: 0x10, G: 0x20, B: 0x30, A: 255}, cfg.Background())

	partial, err := Decode(strings.NewReader("[log]\nlevel = \"warn\"\n"))
	require.NoError(t, err)
	require.Equal(t, Default().Canvas, partial.Canvas)
	require.Equal(t, slog.LevelWarn, partial.SlogLevel())
	require.Equal(t, layout.Transparent, partial.Background())
}

func TestDecodeRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown field": "[canvas]\ndepth = 3\n",
		"bad size":      "[canvas]\nwidth = 0\n",
		"bad color":     "[canvas]\nbackground = \"#zzz\"\n",
		"font no src":   "[[fonts]]\nfamily = \"A\"\n",
		"bad level":     "[log]\nlevel = \"loud\"\n",
		"bad format":    "[output]\nformat = \"gif\"\n",
	}
	for name, input := range cases {
		_, err := Decode(strings.NewReader(input))
		require.Error(t, err, name)
	}
	_, err := Decode(strings.NewReader("[canvas]\nwidth = -1\n"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flexpaint.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 768.0, cfg.Canvas.Height)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
