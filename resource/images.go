// Package resource 提供渲染期间共享的字体与图片缓存。两者都可以被多个 goroutine 同时读取。
package resource

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"

	"github.com/ByLCY/flexpaint/layout"
)

// Images 是解码一次、多次读取的图片缓存，同时实现 layout.ImageSizer 与 raster.ImageProvider。
// 资源键可以是 Add 登记的名字、data: URI，或相对 BaseDir 的文件路径。
type Images struct {
	BaseDir string

	mu      sync.RWMutex
	decoded map[string]image.Image
	raw     map[string][]byte
	failed  map[string]error

	group singleflight.Group
}

// NewImages 创建以 baseDir 为相对路径根目录的缓存。
func NewImages(baseDir string) *Images {
	return &Images{
		BaseDir: baseDir,
		decoded: map[string]image.Image{},
		raw:     map[string][]byte{},
		failed:  map[string]error{},
	}
}

// Add 登记一份未解码的图片数据，首次使用时解码。
func (s *Images) Add(uri string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw[uri] = data
	delete(s.decoded, uri)
	delete(s.failed, uri)
}

// AddImage 登记已经解码好的图片。
func (s *Images) AddImage(uri string, img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decoded[uri] = img
	delete(s.raw, uri)
	delete(s.failed, uri)
}

// Load 返回解码后的图片。同一资源的并发请求只解码一次，失败结果同样缓存。
func (s *Images) Load(uri string) (image.Image, error) {
	s.mu.RLock()
	img, ok := s.decoded[uri]
	err := s.failed[uri]
	s.mu.RUnlock()
	if ok {
		return img, nil
	}
	if err != nil {
		return nil, err
	}

	v, err, _ := s.group.Do(uri, func() (any, error) {
		img, err := s.decode(uri)
		s.mu.Lock()
		if err != nil {
			s.failed[uri] = err
		} else {
			s.decoded[uri] = img
		}
		s.mu.Unlock()
		return img, err
	})
	if err != nil {
		return nil, err
	}
	return v.(image.Image), nil
}

// NaturalSize 返回图片的像素尺寸。
func (s *Images) NaturalSize(uri string) (int, int, error) {
	img, err := s.Load(uri)
	if err != nil {
		return 0, 0, err
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}

func (s *Images) decode(uri string) (image.Image, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("图片地址为空: %w", layout.ErrResourceLoad)
	}
	data, err := s.read(uri)
	if err != nil {
		return nil, fmt.Errorf("读取图片 %s: %w: %w", uri, layout.ErrResourceLoad, err)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("解码图片 %s: %w: %w", uri, layout.ErrResourceLoad, err)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("图片 %s 尺寸为 0: %w", uri, layout.ErrResourceLoad)
	}
	layout.Logger().Debug("图片已解码", "uri", uri, "format", format, "width", b.Dx(), "height", b.Dy())
	return img, nil
}

func (s *Images) read(uri string) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.raw[uri]
	s.mu.RUnlock()
	if ok {
		return data, nil
	}
	if strings.HasPrefix(uri, "data:") {
		return decodeDataURI(uri)
	}
	path := strings.TrimPrefix(uri, "file://")
	if !filepath.IsAbs(path) && s.BaseDir != "" {
		path = filepath.Join(s.BaseDir, path)
	}
	return os.ReadFile(path)
}

// decodeDataURI 只支持 base64 编码的 data URI。
func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, fmt.Errorf("data URI 缺少逗号")
	}
	meta := uri[len("data:"):comma]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("data URI 仅支持 base64 编码")
	}
	return base64.StdEncoding.DecodeString(uri[comma+1:])
}
