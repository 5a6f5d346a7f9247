// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package texture

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/gogpu/vision/gpucore"
	"github.com/gogpu/vision/shader"
)

// Pyramid is a chain of textures halving in size per level, level 0 being
// the full-resolution base. Levels stop at PyramidMaxLevels or when either
// dimension would fall below one pixel.
type Pyramid struct {
	levels []*Texture
}

// NewPyramid builds the level textures for a base of the given size.
func NewPyramid(dev gpucore.Device, width, height int, format gpucore.TextureFormat) (*Pyramid, error) {
	p := &Pyramid{}
	w, h := width, height
	for lv := 0; lv < shader.PyramidMaxLevels && w >= 1 && h >= 1; lv++ {
		t, err := New(dev, w, h, format)
		if err != nil {
			p.Destroy()
			return nil, fmt.Errorf("texture: pyramid level %d: %w", lv, err)
		}
		p.levels = append(p.levels, t)
		w, h = w/2, h/2
	}
	return p, nil
}

// Levels returns the number of levels.
func (p *Pyramid) Levels() int { return len(p.levels) }

// Level returns the texture at level lv.
func (p *Pyramid) Level(lv int) *Texture { return p.levels[lv] }

// Upload downsamples img on the host and uploads every level.
func (p *Pyramid) Upload(img image.Image) error {
	cur := toRGBA(img, p.levels[0].Width(), p.levels[0].Height())
	for lv, t := range p.levels {
		if lv > 0 {
			next := image.NewRGBA(image.Rect(0, 0, t.Width(), t.Height()))
			draw.ApproxBiLinear.Scale(next, next.Bounds(), cur, cur.Bounds(), draw.Src, nil)
			cur = next
		}
		if err := t.UploadImage(cur); err != nil {
			return fmt.Errorf("texture: pyramid level %d: %w", lv, err)
		}
	}
	return nil
}

// Destroy releases every level.
func (p *Pyramid) Destroy() {
	for _, t := range p.levels {
		t.Destroy()
	}
	p.levels = nil
}
