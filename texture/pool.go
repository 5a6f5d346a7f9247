// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package texture

import (
	"github.com/gogpu/vision/gpucore"
)

// shapeKey identifies a free list. Recycling only matches exact shapes.
type shapeKey struct {
	w, h   int
	format gpucore.TextureFormat
}

// PoolStats reports pool activity counters.
type PoolStats struct {
	// Created counts textures allocated fresh on the device.
	Created int
	// Reused counts allocations served from a free list.
	Reused int
	// Pooled counts textures currently sitting in free lists.
	Pooled int
}

// Pool recycles textures by exact (width, height, format) key, amortizing
// allocation cost across pipeline passes. Free lists grow on demand and
// never auto-shrink; Release destroys everything pooled.
//
// A Pool belongs to one execution context. It is not safe for concurrent
// passes.
type Pool struct {
	dev   gpucore.Device
	free  map[shapeKey][]*Texture
	stats PoolStats
}

// NewPool creates an empty pool on dev.
func NewPool(dev gpucore.Device) *Pool {
	return &Pool{dev: dev, free: make(map[shapeKey][]*Texture)}
}

// Allocate returns a texture of exactly the requested shape, recycling a
// freed one when available.
func (p *Pool) Allocate(width, height int, format gpucore.TextureFormat) (*Texture, error) {
	key := shapeKey{width, height, format}
	if list := p.free[key]; len(list) > 0 {
		t := list[len(list)-1]
		p.free[key] = list[:len(list)-1]
		p.stats.Reused++
		p.stats.Pooled--
		return t, nil
	}
	t, err := New(p.dev, width, height, format)
	if err != nil {
		return nil, err
	}
	p.stats.Created++
	return t, nil
}

// Free returns t to the free list keyed by its shape. The texture is not
// destroyed; its contents are unspecified on the next Allocate.
func (p *Pool) Free(t *Texture) {
	key := shapeKey{t.Width(), t.Height(), t.Format()}
	p.free[key] = append(p.free[key], t)
	p.stats.Pooled++
}

// Release destroys every pooled texture. Textures currently checked out are
// the caller's to destroy.
func (p *Pool) Release() {
	for key, list := range p.free {
		for _, t := range list {
			t.Destroy()
		}
		delete(p.free, key)
	}
	p.stats.Pooled = 0
}

// Stats returns a snapshot of the activity counters.
func (p *Pool) Stats() PoolStats { return p.stats }
