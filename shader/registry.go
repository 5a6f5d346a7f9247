// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shader

import (
	"github.com/gogpu/vision/gpucore"
)

// Define is one user-supplied numeric constant. Defines take priority over
// Registry constants of the same name.
type Define struct {
	Name  string
	Value int
}

// Constant is one named numeric constant in a Registry.
type Constant struct {
	Name  string
	Value int
}

// Registry is an ordered table of named numeric constants available to every
// shader template. Order is declaration order; later Add calls with an
// existing name update the value in place, preserving position.
//
// The zero Registry is empty and usable. Registry is not safe for concurrent
// mutation; assemble it once at startup.
type Registry struct {
	ordered []Constant
	index   map[string]int
}

// NewRegistry creates a registry holding the given constants, in order.
func NewRegistry(consts ...Constant) *Registry {
	r := &Registry{index: make(map[string]int, len(consts))}
	for _, c := range consts {
		r.Add(c.Name, c.Value)
	}
	return r
}

// Add inserts or updates a constant.
func (r *Registry) Add(name string, value int) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[name]; ok {
		r.ordered[i].Value = value
		return
	}
	r.index[name] = len(r.ordered)
	r.ordered = append(r.ordered, Constant{Name: name, Value: value})
}

// Lookup returns the value of a constant by name.
func (r *Registry) Lookup(name string) (int, bool) {
	if r.index == nil {
		return 0, false
	}
	i, ok := r.index[name]
	if !ok {
		return 0, false
	}
	return r.ordered[i].Value, true
}

// Constants returns the registry contents in declaration order.
// The returned slice must not be modified.
func (r *Registry) Constants() []Constant {
	return r.ordered
}

// Len returns the number of constants.
func (r *Registry) Len() int { return len(r.ordered) }

// Fixed-point position encoding parameters shared between shaders and the
// feature codec. Positions are stored as 16-bit unsigned fixed point with
// FixBits fractional bits.
const (
	// FixBits is the number of fractional bits in encoded positions.
	FixBits = 3

	// FixResolution is 2^FixBits, the number of steps per pixel.
	FixResolution = 1 << FixBits
)

// Pyramid geometry constants baked into every shader.
const (
	// PyramidMaxLevels is the number of levels kept in image pyramids.
	PyramidMaxLevels = 8

	// Log2PyramidMaxScale is log2 of the largest pyramid upscale factor.
	Log2PyramidMaxScale = 2
)

// NewDefaultRegistry returns the global constant table every preprocessor
// starts from: the static engine constants, in a fixed documented order.
// Platform-derived constants are appended by RegisterPlatform.
func NewDefaultRegistry() *Registry {
	return NewRegistry(
		Constant{"FIX_BITS", FixBits},
		Constant{"FIX_RESOLUTION", FixResolution},
		Constant{"PYRAMID_MAX_LEVELS", PyramidMaxLevels},
		Constant{"LOG2_PYRAMID_MAX_SCALE", Log2PyramidMaxScale},
		Constant{"MAX_DESCRIPTOR_SIZE", 64},
		Constant{"LITTLE_ENDIAN", 1},
	)
}

// RegisterPlatform appends device-derived capability constants to the
// registry. Called once when the engine is created.
func RegisterPlatform(r *Registry, dev gpucore.Device) {
	r.Add("MAX_TEXTURE_LENGTH", dev.MaxTextureSize())
	wg := dev.MaxWorkgroupSize()
	r.Add("MAX_WORKGROUP_X", int(wg[0]))
	r.Add("MAX_WORKGROUP_Y", int(wg[1]))
}
