// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package texture wraps GPU textures and recycles them through a pool keyed
// by exact shape.
package texture

import (
	"fmt"
	"image"
	"sync/atomic"

	"golang.org/x/image/draw"

	"github.com/gogpu/vision/gpucore"
)

// Texture is a GPU-resident 2D buffer. A Texture has exactly one live owner
// at a time: the pool slot holding it or the node using it.
type Texture struct {
	dev      gpucore.Device
	id       gpucore.TextureID
	width    int
	height   int
	format   gpucore.TextureFormat
	mips     bool
	released atomic.Bool
}

// New creates a texture on dev.
func New(dev gpucore.Device, width, height int, format gpucore.TextureFormat) (*Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("texture: invalid size %dx%d", width, height)
	}
	if max := dev.MaxTextureSize(); width > max || height > max {
		return nil, fmt.Errorf("texture: size %dx%d exceeds device limit %d", width, height, max)
	}
	id, err := dev.CreateTexture(width, height, format)
	if err != nil {
		return nil, fmt.Errorf("texture: create: %w", err)
	}
	return &Texture{dev: dev, id: id, width: width, height: height, format: format}, nil
}

// ID returns the device handle.
func (t *Texture) ID() gpucore.TextureID { return t.id }

// Width returns the width in pixels.
func (t *Texture) Width() int { return t.width }

// Height returns the height in pixels.
func (t *Texture) Height() int { return t.height }

// Format returns the pixel format.
func (t *Texture) Format() gpucore.TextureFormat { return t.format }

// ByteSize returns the total pixel data size in bytes.
func (t *Texture) ByteSize() int {
	return t.width * t.height * int(t.format.BytesPerPixel())
}

// HasMips reports whether a mip chain was uploaded.
func (t *Texture) HasMips() bool { return t.mips }

// Upload writes raw pixel data covering the whole texture.
func (t *Texture) Upload(pixels []byte) error {
	if len(pixels) != t.ByteSize() {
		return fmt.Errorf("texture: upload size %d, want %d", len(pixels), t.ByteSize())
	}
	t.dev.WriteTexture(t.id, pixels)
	return nil
}

// UploadImage converts img to the texture's layout and uploads it. Only
// RGBA8 and R8 targets are supported; the image is scaled to the texture
// size when the bounds differ.
func (t *Texture) UploadImage(img image.Image) error {
	switch t.format {
	case gpucore.TextureFormatRGBA8, gpucore.TextureFormatR8:
	default:
		return fmt.Errorf("texture: cannot upload image into %s", t.format)
	}
	rgba := toRGBA(img, t.width, t.height)
	if t.format == gpucore.TextureFormatRGBA8 {
		return t.Upload(rgba.Pix)
	}
	gray := make([]byte, t.width*t.height)
	for i := range gray {
		// ITU-R BT.601 luma, integer arithmetic.
		r := int(rgba.Pix[i*4])
		g := int(rgba.Pix[i*4+1])
		b := int(rgba.Pix[i*4+2])
		gray[i] = byte((299*r + 587*g + 114*b) / 1000)
	}
	return t.Upload(gray)
}

// Destroy releases the GPU resource. Safe to call more than once.
func (t *Texture) Destroy() {
	if t.released.Swap(true) {
		return
	}
	t.dev.DestroyTexture(t.id)
}

// toRGBA converts img to RGBA, scaling to w x h if the bounds differ.
func toRGBA(img image.Image, w, h int) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Dx() == w && rgba.Bounds().Dy() == h {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if img.Bounds().Dx() == w && img.Bounds().Dy() == h {
		draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	}
	return dst
}
