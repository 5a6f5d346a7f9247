// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package sim

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/vision/gpucore"
)

// Default simulated capability limits.
const (
	// DefaultMaxTextureSize is the simulated maximum texture side length.
	DefaultMaxTextureSize = 8192

	// DefaultMaxBufferSize is the simulated maximum buffer size (256 MB).
	DefaultMaxBufferSize = 256 << 20
)

// Option configures a simulated device.
type Option func(*Device)

// WithFenceLatency sets how many polls a submitted fence stays unsignaled
// before reporting completion. The default is 0 (fences signal on the first
// poll after submission). Tests use this to exercise poll backoff.
func WithFenceLatency(polls int) Option {
	return func(d *Device) {
		if polls >= 0 {
			d.fenceLatency = polls
		}
	}
}

// WithMaxTextureSize overrides the simulated maximum texture side length.
func WithMaxTextureSize(size int) Option {
	return func(d *Device) {
		if size > 0 {
			d.maxTexSize = size
		}
	}
}

type simTexture struct {
	width  int
	height int
	format gpucore.TextureFormat
	data   []byte
}

type simFence struct {
	submitted bool
	signaled  bool
	remaining int
}

// Device is an in-memory implementation of gpucore.Device.
//
// Buffer and texture contents live in host memory. Copy commands recorded
// between submits execute, in order, when Submit or SubmitWithFence is
// called. Compute dispatches are recorded but perform no work.
//
// Device is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	nextID atomic.Uint64

	buffers   map[gpucore.BufferID][]byte
	textures  map[gpucore.TextureID]*simTexture
	modules   map[gpucore.ShaderModuleID]string
	layouts   map[gpucore.BindGroupLayoutID]*gpucore.BindGroupLayoutDesc
	pipeLayts map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID
	pipelines map[gpucore.ComputePipelineID]*gpucore.ComputePipelineDesc
	groups    map[gpucore.BindGroupID][]gpucore.BindGroupEntry
	fences    map[gpucore.FenceID]*simFence

	// pending holds copy commands recorded since the last submit.
	pending []func()

	// dispatches counts compute dispatches recorded since creation.
	dispatches atomic.Uint64

	fenceLatency int
	maxTexSize   int

	lost    bool
	lastErr error
	closed  bool
}

// New creates a simulated device.
func New(opts ...Option) *Device {
	d := &Device{
		buffers:    make(map[gpucore.BufferID][]byte),
		textures:   make(map[gpucore.TextureID]*simTexture),
		modules:    make(map[gpucore.ShaderModuleID]string),
		layouts:    make(map[gpucore.BindGroupLayoutID]*gpucore.BindGroupLayoutDesc),
		pipeLayts:  make(map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID),
		pipelines:  make(map[gpucore.ComputePipelineID]*gpucore.ComputePipelineDesc),
		groups:     make(map[gpucore.BindGroupID][]gpucore.BindGroupEntry),
		fences:     make(map[gpucore.FenceID]*simFence),
		maxTexSize: DefaultMaxTextureSize,
	}
	d.nextID.Store(1)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) newID() uint64 {
	return d.nextID.Add(1) - 1
}

// LoseDevice simulates device/context loss. Recorded commands are dropped,
// subsequent submissions are ignored, and fence polls fail with
// gpucore.ErrDeviceLost.
func (d *Device) LoseDevice() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = true
	d.lastErr = gpucore.ErrDeviceLost
	d.pending = nil
}

// DispatchCount returns the number of compute dispatches recorded so far.
func (d *Device) DispatchCount() uint64 {
	return d.dispatches.Load()
}

// TexturePixels returns a copy of a texture's backing store. Test helper.
func (d *Device) TexturePixels(id gpucore.TextureID) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tex, ok := d.textures[id]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(tex.data))
	copy(out, tex.data)
	return out, true
}

// === Capabilities ===

// MaxTextureSize returns the simulated maximum texture side length.
func (d *Device) MaxTextureSize() int { return d.maxTexSize }

// MaxWorkgroupSize returns the simulated maximum workgroup size.
func (d *Device) MaxWorkgroupSize() [3]uint32 { return [3]uint32{256, 256, 64} }

// MaxBufferSize returns the simulated maximum buffer size.
func (d *Device) MaxBufferSize() uint64 { return DefaultMaxBufferSize }

// Lost reports whether LoseDevice has been called.
func (d *Device) Lost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

// LastError returns the device's most recent error, or nil.
func (d *Device) LastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// === Shader Compilation ===

// CreateShaderModule records a shader module. The SPIR-V is not executed.
func (d *Device) CreateShaderModule(spirv []uint32, label string) (gpucore.ShaderModuleID, error) {
	if len(spirv) == 0 {
		return gpucore.InvalidID, fmt.Errorf("sim: empty SPIR-V bytecode")
	}
	id := gpucore.ShaderModuleID(d.newID())
	d.mu.Lock()
	d.modules[id] = label
	d.mu.Unlock()
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (d *Device) DestroyShaderModule(id gpucore.ShaderModuleID) {
	d.mu.Lock()
	delete(d.modules, id)
	d.mu.Unlock()
}

// === Buffer Management ===

// CreateBuffer creates a zero-filled host buffer.
func (d *Device) CreateBuffer(size int, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
	if size <= 0 {
		return gpucore.InvalidID, fmt.Errorf("sim: buffer size must be positive, got %d", size)
	}
	if uint64(size) > d.MaxBufferSize() {
		return gpucore.InvalidID, fmt.Errorf("sim: buffer size %d exceeds limit %d", size, d.MaxBufferSize())
	}
	id := gpucore.BufferID(d.newID())
	d.mu.Lock()
	d.buffers[id] = make([]byte, size)
	d.mu.Unlock()
	return id, nil
}

// DestroyBuffer releases a buffer.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	delete(d.buffers, id)
	d.mu.Unlock()
}

// WriteBuffer writes data into a buffer. Writes past the end are clipped.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return
	}
	buf, ok := d.buffers[id]
	if !ok || offset >= uint64(len(buf)) {
		return
	}
	copy(buf[offset:], data)
}

// ReadBuffer reads len(dst) bytes from a buffer into dst.
func (d *Device) ReadBuffer(id gpucore.BufferID, offset uint64, dst []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("sim: buffer %d: %w", id, gpucore.ErrResourceNotFound)
	}
	if offset+uint64(len(dst)) > uint64(len(buf)) {
		return fmt.Errorf("sim: read [%d,%d) out of bounds for buffer of %d bytes",
			offset, offset+uint64(len(dst)), len(buf))
	}
	copy(dst, buf[offset:])
	return nil
}

// === Texture Management ===

// CreateTexture creates a zero-filled host texture.
func (d *Device) CreateTexture(width, height int, format gpucore.TextureFormat) (gpucore.TextureID, error) {
	if width <= 0 || height <= 0 {
		return gpucore.InvalidID, fmt.Errorf("sim: texture dimensions must be positive, got %dx%d", width, height)
	}
	if width > d.maxTexSize || height > d.maxTexSize {
		return gpucore.InvalidID, fmt.Errorf("sim: texture %dx%d exceeds max side %d", width, height, d.maxTexSize)
	}
	id := gpucore.TextureID(d.newID())
	d.mu.Lock()
	d.textures[id] = &simTexture{
		width:  width,
		height: height,
		format: format,
		data:   make([]byte, width*height*format.BytesPerPixel()),
	}
	d.mu.Unlock()
	return id, nil
}

// DestroyTexture releases a texture.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	delete(d.textures, id)
	d.mu.Unlock()
}

// WriteTexture replaces a texture's contents with tightly packed pixel data.
func (d *Device) WriteTexture(id gpucore.TextureID, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return
	}
	tex, ok := d.textures[id]
	if !ok {
		return
	}
	copy(tex.data, data)
}

// CopyTextureToBuffer records a rect copy executed at submit time.
func (d *Device) CopyTextureToBuffer(src gpucore.TextureID, rect gpucore.Rect, dst gpucore.BufferID, bytesPerRow uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return gpucore.ErrDeviceLost
	}
	tex, ok := d.textures[src]
	if !ok {
		return fmt.Errorf("sim: texture %d: %w", src, gpucore.ErrResourceNotFound)
	}
	if _, ok := d.buffers[dst]; !ok {
		return fmt.Errorf("sim: buffer %d: %w", dst, gpucore.ErrResourceNotFound)
	}
	bpp := tex.format.BytesPerPixel()
	rect = rect.Clamp(tex.width, tex.height)
	if int(bytesPerRow) < rect.W*bpp {
		return fmt.Errorf("sim: bytesPerRow %d smaller than row size %d", bytesPerRow, rect.W*bpp)
	}
	d.pending = append(d.pending, func() {
		buf, ok := d.buffers[dst]
		if !ok {
			return
		}
		for row := 0; row < rect.H; row++ {
			srcOff := ((rect.Y+row)*tex.width + rect.X) * bpp
			dstOff := row * int(bytesPerRow)
			if dstOff+rect.W*bpp > len(buf) {
				break
			}
			copy(buf[dstOff:dstOff+rect.W*bpp], tex.data[srcOff:srcOff+rect.W*bpp])
		}
	})
	return nil
}

// === Pipeline Management ===

// CreateBindGroupLayout records a bind group layout.
func (d *Device) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("sim: nil bind group layout descriptor")
	}
	id := gpucore.BindGroupLayoutID(d.newID())
	d.mu.Lock()
	d.layouts[id] = desc
	d.mu.Unlock()
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (d *Device) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	d.mu.Lock()
	delete(d.layouts, id)
	d.mu.Unlock()
}

// CreatePipelineLayout records a pipeline layout.
func (d *Device) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range layouts {
		if _, ok := d.layouts[l]; !ok {
			return gpucore.InvalidID, fmt.Errorf("sim: bind group layout %d: %w", l, gpucore.ErrResourceNotFound)
		}
	}
	id := gpucore.PipelineLayoutID(d.newID())
	d.pipeLayts[id] = layouts
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (d *Device) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	d.mu.Lock()
	delete(d.pipeLayts, id)
	d.mu.Unlock()
}

// CreateComputePipeline records a compute pipeline.
func (d *Device) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("sim: nil compute pipeline descriptor")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pipeLayts[desc.Layout]; !ok {
		return gpucore.InvalidID, fmt.Errorf("sim: pipeline layout %d: %w", desc.Layout, gpucore.ErrResourceNotFound)
	}
	if _, ok := d.modules[desc.ShaderModule]; !ok {
		return gpucore.InvalidID, fmt.Errorf("sim: shader module %d: %w", desc.ShaderModule, gpucore.ErrResourceNotFound)
	}
	id := gpucore.ComputePipelineID(d.newID())
	d.pipelines[id] = desc
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (d *Device) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	d.mu.Lock()
	delete(d.pipelines, id)
	d.mu.Unlock()
}

// CreateBindGroup records a bind group.
func (d *Device) CreateBindGroup(layout gpucore.BindGroupLayoutID, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.layouts[layout]; !ok {
		return gpucore.InvalidID, fmt.Errorf("sim: bind group layout %d: %w", layout, gpucore.ErrResourceNotFound)
	}
	id := gpucore.BindGroupID(d.newID())
	d.groups[id] = entries
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (d *Device) DestroyBindGroup(id gpucore.BindGroupID) {
	d.mu.Lock()
	delete(d.groups, id)
	d.mu.Unlock()
}

// === Command Recording and Execution ===

// simPassEncoder counts dispatches; the simulation executes no shader code.
type simPassEncoder struct {
	device *Device
	ended  bool
}

func (e *simPassEncoder) SetPipeline(gpucore.ComputePipelineID) {}
func (e *simPassEncoder) SetBindGroup(uint32, gpucore.BindGroupID) {
}

func (e *simPassEncoder) Dispatch(x, y, z uint32) {
	if !e.ended && x > 0 && y > 0 && z > 0 {
		e.device.dispatches.Add(1)
	}
}

func (e *simPassEncoder) End() { e.ended = true }

// BeginComputePass begins a compute pass.
func (d *Device) BeginComputePass() gpucore.ComputePassEncoder {
	return &simPassEncoder{device: d}
}

// Submit executes all recorded copy commands.
func (d *Device) Submit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runPendingLocked()
}

// SubmitWithFence executes all recorded copy commands and arms the fence.
func (d *Device) SubmitWithFence(fence gpucore.FenceID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return gpucore.ErrDeviceLost
	}
	f, ok := d.fences[fence]
	if !ok {
		return fmt.Errorf("sim: fence %d: %w", fence, gpucore.ErrResourceNotFound)
	}
	d.runPendingLocked()
	// Fences are reusable: each submission rearms the countdown.
	f.submitted = true
	f.remaining = d.fenceLatency
	f.signaled = d.fenceLatency == 0
	return nil
}

func (d *Device) runPendingLocked() {
	if d.lost {
		d.pending = nil
		return
	}
	for _, cmd := range d.pending {
		cmd()
	}
	d.pending = nil
}

// === Fences ===

// CreateFence creates an unsignaled fence.
func (d *Device) CreateFence() (gpucore.FenceID, error) {
	id := gpucore.FenceID(d.newID())
	d.mu.Lock()
	d.fences[id] = &simFence{}
	d.mu.Unlock()
	return id, nil
}

// DestroyFence releases a fence.
func (d *Device) DestroyFence(id gpucore.FenceID) {
	d.mu.Lock()
	delete(d.fences, id)
	d.mu.Unlock()
}

// PollFence reports whether the fence has signaled. Each poll of a submitted
// fence burns down the configured latency.
func (d *Device) PollFence(id gpucore.FenceID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return false, gpucore.ErrDeviceLost
	}
	f, ok := d.fences[id]
	if !ok {
		return false, fmt.Errorf("sim: fence %d: %w", id, gpucore.ErrResourceNotFound)
	}
	if f.signaled {
		return true, nil
	}
	if !f.submitted {
		return false, nil
	}
	f.remaining--
	if f.remaining <= 0 {
		f.signaled = true
	}
	return f.signaled, nil
}

// WaitIdle executes any recorded commands. The simulation is always idle
// afterwards.
func (d *Device) WaitIdle() {
	d.Submit()
}

// Close releases every resource. The device must not be used afterwards.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.buffers = map[gpucore.BufferID][]byte{}
	d.textures = map[gpucore.TextureID]*simTexture{}
	d.modules = map[gpucore.ShaderModuleID]string{}
	d.layouts = map[gpucore.BindGroupLayoutID]*gpucore.BindGroupLayoutDesc{}
	d.pipeLayts = map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID{}
	d.pipelines = map[gpucore.ComputePipelineID]*gpucore.ComputePipelineDesc{}
	d.groups = map[gpucore.BindGroupID][]gpucore.BindGroupEntry{}
	d.fences = map[gpucore.FenceID]*simFence{}
	d.pending = nil
}
