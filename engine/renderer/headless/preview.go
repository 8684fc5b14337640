package headless

import (
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
	"golang.org/x/image/draw"
)

// Preview returns a copy of tex downscaled by scale. Depth textures are
// mapped to gray levels.
func (d *Device) Preview(tex metadata.Texture2d, scale uint32) (image.Image, error) {
	t, ok := d.textures.Get(tex.ID)
	if !ok {
		return nil, fmt.Errorf("preview of texture %d: %w", tex.ID, core.ErrInvalidHandle)
	}
	if scale == 0 {
		scale = 1
	}
	var src image.Image = t.color
	if t.depth != nil {
		gray := image.NewGray(image.Rect(0, 0, int(t.desc.Size.X), int(t.desc.Size.Y)))
		for i, v := range t.depth {
			gray.Pix[i] = unorm8(v)
		}
		src = gray
	}
	size := t.desc.Size.Scaled(scale)
	dst := image.NewRGBA(image.Rect(0, 0, int(size.X), int(size.Y)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst, nil
}

// WritePreview stores the preview of tex as a PNG file.
func (d *Device) WritePreview(tex metadata.Texture2d, scale uint32, path string) error {
	img, err := d.Preview(tex, scale)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode preview %s: %w", path, err)
	}
	return nil
}
