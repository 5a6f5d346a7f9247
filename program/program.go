// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package program wraps one compiled compute shader with its typed uniform
// table and output textures, and executes full-frame invocations.
package program

import (
	"errors"
	"fmt"

	"github.com/gogpu/vision/gpucore"
	"github.com/gogpu/vision/shader"
	"github.com/gogpu/vision/texture"
)

// ErrUnboundTexture is returned by Run when a declared input texture was
// never bound.
var ErrUnboundTexture = errors.New("program: unbound input texture")

// workgroupSide is the workgroup footprint in pixels per dimension; every
// program shader dispatches in 8x8 tiles.
const workgroupSide = 8

// Desc describes a program.
type Desc struct {
	// Label names the program in errors and debug output.
	Label string

	// Source is the WGSL template. It is preprocessed with Defines before
	// compilation; the entry point is "main".
	Source string

	// Defines are user constants overriding the registry during
	// preprocessing.
	Defines []shader.Define

	// Width and Height fix the output size in pixels.
	Width, Height int

	// Format is the output pixel format. Zero means RGBA8.
	Format gpucore.TextureFormat

	// PingPong allocates two output textures and alternates between them
	// across invocations, so iterative programs can read their previous
	// result while writing the next.
	PingPong bool

	// Uniforms declares the program's uniform block, in order.
	Uniforms []UniformDecl

	// Inputs names the sampled input textures, bound in order after the
	// uniform block.
	Inputs []string
}

// Program is one compiled compute program bound to fixed-size output
// textures. Programs are created through an Engine or directly with New and
// are not safe for concurrent use.
type Program struct {
	dev   gpucore.Device
	pool  *texture.Pool
	label string

	width, height int
	format        gpucore.TextureFormat
	pingPong      bool
	outputs       []*texture.Texture
	cur           int

	table  *uniformTable
	inputs map[string]int // name -> binding slot in bound
	bound  []gpucore.TextureID

	ubuf     gpucore.BufferID
	module   gpucore.ShaderModuleID
	bgl      gpucore.BindGroupLayoutID
	playout  gpucore.PipelineLayoutID
	pipeline gpucore.ComputePipelineID
	group    gpucore.BindGroupID

	closed bool
}

// New preprocesses, compiles, and links the program described by desc,
// allocating its output textures from pool.
func New(dev gpucore.Device, pool *texture.Pool, pre *shader.Preprocessor, desc Desc) (*Program, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("program %q: invalid output size %dx%d", desc.Label, desc.Width, desc.Height)
	}
	if desc.Format == 0 {
		desc.Format = gpucore.TextureFormatRGBA8
	}

	res, err := pre.Process(desc.Source, desc.Defines...)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", desc.Label, err)
	}
	words, err := shader.CompileSPIRV(res.Source)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", desc.Label, err)
	}

	table, err := newUniformTable(desc.Uniforms)
	if err != nil {
		return nil, err
	}

	p := &Program{
		dev:      dev,
		pool:     pool,
		label:    desc.Label,
		width:    desc.Width,
		height:   desc.Height,
		format:   desc.Format,
		pingPong: desc.PingPong,
		table:    table,
		inputs:   make(map[string]int, len(desc.Inputs)),
		bound:    make([]gpucore.TextureID, len(desc.Inputs)),
	}
	for i, name := range desc.Inputs {
		if _, dup := p.inputs[name]; dup {
			return nil, fmt.Errorf("program %q: duplicate input %q", desc.Label, name)
		}
		p.inputs[name] = i
	}

	p.module, err = dev.CreateShaderModule(words, desc.Label)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", desc.Label, err)
	}

	// Binding 0 is the uniform block, then one sampled texture per input,
	// then the storage texture output.
	entries := []gpucore.BindGroupLayoutEntry{{
		Binding:        0,
		Type:           gpucore.BindingTypeUniformBuffer,
		MinBindingSize: uint64(len(table.block)),
	}}
	for i := range desc.Inputs {
		entries = append(entries, gpucore.BindGroupLayoutEntry{
			Binding: uint32(1 + i),
			Type:    gpucore.BindingTypeSampledTexture,
		})
	}
	entries = append(entries, gpucore.BindGroupLayoutEntry{
		Binding: uint32(1 + len(desc.Inputs)),
		Type:    gpucore.BindingTypeStorageTexture,
		Format:  desc.Format,
	})

	p.bgl, err = dev.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{Label: desc.Label, Entries: entries})
	if err != nil {
		p.destroyResources()
		return nil, fmt.Errorf("program %q: %w", desc.Label, err)
	}
	p.playout, err = dev.CreatePipelineLayout([]gpucore.BindGroupLayoutID{p.bgl})
	if err != nil {
		p.destroyResources()
		return nil, fmt.Errorf("program %q: %w", desc.Label, err)
	}
	p.pipeline, err = dev.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:        desc.Label,
		Layout:       p.playout,
		ShaderModule: p.module,
		EntryPoint:   "main",
	})
	if err != nil {
		p.destroyResources()
		return nil, fmt.Errorf("program %q: %w", desc.Label, err)
	}
	p.ubuf, err = dev.CreateBuffer(len(table.block), gpucore.BufferUsageUniform|gpucore.BufferUsageCopyDst)
	if err != nil {
		p.destroyResources()
		return nil, fmt.Errorf("program %q: %w", desc.Label, err)
	}

	if err := p.allocateOutputs(); err != nil {
		p.destroyResources()
		return nil, err
	}
	return p, nil
}

func (p *Program) allocateOutputs() error {
	n := 1
	if p.pingPong {
		n = 2
	}
	for i := 0; i < n; i++ {
		t, err := p.pool.Allocate(p.width, p.height, p.format)
		if err != nil {
			return fmt.Errorf("program %q: output: %w", p.label, err)
		}
		p.outputs = append(p.outputs, t)
	}
	return nil
}

// Resize reallocates the output textures at a new size. Previous outputs
// return to the pool; any texture obtained from Run becomes pool-owned.
func (p *Program) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("program %q: invalid output size %dx%d", p.label, width, height)
	}
	for _, t := range p.outputs {
		p.pool.Free(t)
	}
	p.outputs = p.outputs[:0]
	p.width, p.height = width, height
	p.cur = 0
	return p.allocateOutputs()
}

// SetFloat binds a scalar float uniform.
func (p *Program) SetFloat(name string, v float32) error { return p.table.setFloat(name, v) }

// SetInt binds a scalar integer uniform.
func (p *Program) SetInt(name string, v int32) error { return p.table.setInt(name, v) }

// SetBool binds a boolean uniform.
func (p *Program) SetBool(name string, v bool) error { return p.table.setBool(name, v) }

// SetVec2 binds a 2-component vector uniform.
func (p *Program) SetVec2(name string, x, y float32) error {
	return p.table.setVec(name, KindVec2, []float32{x, y})
}

// SetVec3 binds a 3-component vector uniform.
func (p *Program) SetVec3(name string, x, y, z float32) error {
	return p.table.setVec(name, KindVec3, []float32{x, y, z})
}

// SetVec4 binds a 4-component vector uniform.
func (p *Program) SetVec4(name string, x, y, z, w float32) error {
	return p.table.setVec(name, KindVec4, []float32{x, y, z, w})
}

// SetBoolVec binds up to four booleans; missing components read false.
func (p *Program) SetBoolVec(name string, v ...bool) error { return p.table.setBoolVec(name, v) }

// SetMat3 binds a 3x3 matrix uniform from column-major values.
func (p *Program) SetMat3(name string, columnMajor [9]float32) error {
	return p.table.setMat(name, KindMat3, columnMajor[:])
}

// SetMat4 binds a 4x4 matrix uniform from column-major values.
func (p *Program) SetMat4(name string, columnMajor [16]float32) error {
	return p.table.setMat(name, KindMat4, columnMajor[:])
}

// SetTexture binds an input texture by name.
func (p *Program) SetTexture(name string, t *texture.Texture) error {
	i, ok := p.inputs[name]
	if !ok {
		return fmt.Errorf("%w: %q is not an input of program %q", ErrUnknownUniform, name, p.label)
	}
	p.bound[i] = t.ID()
	return nil
}

// Set binds a uniform or input texture from a dynamically typed value.
// Supported types: float32, float64, int, int32, bool, []float32 (vector by
// declared arity), []bool, [9]float32, [16]float32, and *texture.Texture.
func (p *Program) Set(name string, value any) error {
	switch v := value.(type) {
	case float32:
		return p.SetFloat(name, v)
	case float64:
		return p.SetFloat(name, float32(v))
	case int:
		return p.SetInt(name, int32(v))
	case int32:
		return p.SetInt(name, v)
	case bool:
		return p.SetBool(name, v)
	case []float32:
		s, ok := p.table.slots[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownUniform, name)
		}
		switch s.kind {
		case KindMat3, KindMat4:
			return p.table.setMat(name, s.kind, v)
		default:
			return p.table.setVec(name, s.kind, v)
		}
	case []bool:
		return p.SetBoolVec(name, v...)
	case [9]float32:
		return p.SetMat3(name, v)
	case [16]float32:
		return p.SetMat4(name, v)
	case *texture.Texture:
		return p.SetTexture(name, v)
	default:
		return fmt.Errorf("%w: unsupported value type %T for %q", ErrUniformType, value, name)
	}
}

// Target returns the texture the next Run will write.
func (p *Program) Target() *texture.Texture { return p.outputs[p.cur] }

// Run uploads the uniform block, binds inputs and the current output, and
// dispatches one full-frame invocation. The returned texture holds the
// result once the submitted commands complete; with ping-pong enabled the
// write target advances for the next call.
//
// Run is synchronous with respect to command submission, not GPU completion.
func (p *Program) Run() (*texture.Texture, error) {
	for name, i := range p.inputs {
		if p.bound[i] == gpucore.InvalidID {
			return nil, fmt.Errorf("%w: %q in program %q", ErrUnboundTexture, name, p.label)
		}
	}
	out := p.outputs[p.cur]

	p.dev.WriteBuffer(p.ubuf, 0, p.table.block)

	entries := []gpucore.BindGroupEntry{{Binding: 0, Buffer: p.ubuf}}
	for i, id := range p.bound {
		entries = append(entries, gpucore.BindGroupEntry{Binding: uint32(1 + i), Texture: id})
	}
	entries = append(entries, gpucore.BindGroupEntry{
		Binding: uint32(1 + len(p.bound)),
		Texture: out.ID(),
	})

	if p.group != gpucore.InvalidID {
		p.dev.DestroyBindGroup(p.group)
	}
	group, err := p.dev.CreateBindGroup(p.bgl, entries)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", p.label, err)
	}
	p.group = group

	pass := p.dev.BeginComputePass()
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, p.group)
	pass.Dispatch(groups(p.width), groups(p.height), 1)
	pass.End()
	p.dev.Submit()

	if p.pingPong {
		p.cur = 1 - p.cur
	}
	return out, nil
}

func groups(pixels int) uint32 {
	return uint32((pixels + workgroupSide - 1) / workgroupSide)
}

// Close returns output textures to the pool and destroys GPU resources.
func (p *Program) Close() {
	if p.closed {
		return
	}
	p.closed = true
	for _, t := range p.outputs {
		p.pool.Free(t)
	}
	p.outputs = nil
	p.destroyResources()
}

func (p *Program) destroyResources() {
	if p.group != gpucore.InvalidID {
		p.dev.DestroyBindGroup(p.group)
		p.group = gpucore.InvalidID
	}
	if p.ubuf != gpucore.InvalidID {
		p.dev.DestroyBuffer(p.ubuf)
		p.ubuf = gpucore.InvalidID
	}
	if p.pipeline != gpucore.InvalidID {
		p.dev.DestroyComputePipeline(p.pipeline)
		p.pipeline = gpucore.InvalidID
	}
	if p.playout != gpucore.InvalidID {
		p.dev.DestroyPipelineLayout(p.playout)
		p.playout = gpucore.InvalidID
	}
	if p.bgl != gpucore.InvalidID {
		p.dev.DestroyBindGroupLayout(p.bgl)
		p.bgl = gpucore.InvalidID
	}
	if p.module != gpucore.InvalidID {
		p.dev.DestroyShaderModule(p.module)
		p.module = gpucore.InvalidID
	}
}
