// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package halgpu

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vision/gpucore"
)

// copyPitchAlign is the BytesPerRow alignment WebGPU-class backends require
// for texture-to-buffer copies.
const copyPitchAlign = 256

// halTexture pairs a HAL texture with the metadata queue writes and copies
// need. The HAL does not report texture geometry back, so it is kept here.
type halTexture struct {
	tex    hal.Texture
	view   hal.TextureView
	width  int
	height int
	format gpucore.TextureFormat
}

// halFence is a timeline fence. Each submission bumps the target value so
// one fence can cover many submissions without resetting.
type halFence struct {
	fence hal.Fence
	value uint64
}

// Device implements gpucore.Device using gogpu/wgpu/hal directly.
//
// All resource operations are protected by a mutex; the adapter is safe for
// concurrent use from multiple goroutines.
type Device struct {
	mu     sync.RWMutex
	device hal.Device
	queue  hal.Queue

	// instance is non-nil only when New opened a standalone device; Close
	// tears it down along with the device.
	instance hal.Instance

	limits gputypes.Limits

	nextID atomic.Uint64

	buffers          map[gpucore.BufferID]hal.Buffer
	textures         map[gpucore.TextureID]*halTexture
	shaderModules    map[gpucore.ShaderModuleID]hal.ShaderModule
	computePipelines map[gpucore.ComputePipelineID]hal.ComputePipeline
	bindGroupLayouts map[gpucore.BindGroupLayoutID]hal.BindGroupLayout
	pipelineLayouts  map[gpucore.PipelineLayoutID]hal.PipelineLayout
	bindGroups       map[gpucore.BindGroupID]hal.BindGroup
	fences           map[gpucore.FenceID]*halFence

	// Command encoder for the current batch of recorded work.
	encoder    hal.CommandEncoder
	hasEncoder bool

	lost    atomic.Bool
	lastErr error
}

// New opens a standalone compute-only device on the Vulkan backend, picking
// a discrete or integrated GPU when one is available.
func New() (*Device, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("halgpu: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("halgpu: no GPU adapters found")
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("halgpu: open device: %w", err)
	}

	d := NewWithDevice(openDev.Device, openDev.Queue, &limits)
	d.instance = instance
	return d, nil
}

// NewWithDevice wraps a device and queue owned by the caller. Close releases
// the tracked resources but not the device itself. If limits is nil, default
// limits are used.
func NewWithDevice(device hal.Device, queue hal.Queue, limits *gputypes.Limits) *Device {
	var lim gputypes.Limits
	if limits != nil {
		lim = *limits
	} else {
		lim = gputypes.DefaultLimits()
	}

	d := &Device{
		device:           device,
		queue:            queue,
		limits:           lim,
		buffers:          make(map[gpucore.BufferID]hal.Buffer),
		textures:         make(map[gpucore.TextureID]*halTexture),
		shaderModules:    make(map[gpucore.ShaderModuleID]hal.ShaderModule),
		computePipelines: make(map[gpucore.ComputePipelineID]hal.ComputePipeline),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID]hal.BindGroupLayout),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID]hal.PipelineLayout),
		bindGroups:       make(map[gpucore.BindGroupID]hal.BindGroup),
		fences:           make(map[gpucore.FenceID]*halFence),
	}

	// Start ID generation at 1 (0 is invalid).
	d.nextID.Store(1)
	return d
}

// newID generates a unique resource ID.
func (d *Device) newID() uint64 {
	return d.nextID.Add(1) - 1
}

// fail records err as the device's last error.
func (d *Device) fail(err error) {
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
}

// === Capabilities ===

// MaxTextureSize returns the maximum texture side length in pixels.
func (d *Device) MaxTextureSize() int {
	return int(d.limits.MaxTextureDimension2D)
}

// MaxWorkgroupSize returns the maximum workgroup size in each dimension.
func (d *Device) MaxWorkgroupSize() [3]uint32 {
	return [3]uint32{
		d.limits.MaxComputeWorkgroupSizeX,
		d.limits.MaxComputeWorkgroupSizeY,
		d.limits.MaxComputeWorkgroupSizeZ,
	}
}

// MaxBufferSize returns the maximum buffer size in bytes.
func (d *Device) MaxBufferSize() uint64 {
	return d.limits.MaxBufferSize
}

// Lost reports whether the device context has been lost.
func (d *Device) Lost() bool {
	return d.lost.Load()
}

// LastError returns the device's most recent error, or nil.
func (d *Device) LastError() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastErr
}

// === Shader Compilation ===

// CreateShaderModule creates a shader module from SPIR-V bytecode.
func (d *Device) CreateShaderModule(spirv []uint32, label string) (gpucore.ShaderModuleID, error) {
	if len(spirv) == 0 {
		return gpucore.InvalidID, fmt.Errorf("halgpu: empty SPIR-V bytecode")
	}
	if d.lost.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}

	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("halgpu: create shader module: %w", err)
	}

	id := gpucore.ShaderModuleID(d.newID())
	d.mu.Lock()
	d.shaderModules[id] = module
	d.mu.Unlock()
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (d *Device) DestroyShaderModule(id gpucore.ShaderModuleID) {
	d.mu.Lock()
	module, ok := d.shaderModules[id]
	delete(d.shaderModules, id)
	d.mu.Unlock()

	if ok {
		d.device.DestroyShaderModule(module)
	}
}

// === Buffer Management ===

// CreateBuffer creates a GPU buffer.
func (d *Device) CreateBuffer(size int, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
	if size <= 0 {
		return gpucore.InvalidID, fmt.Errorf("halgpu: buffer size must be positive")
	}
	if d.lost.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}

	buffer, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Size:  uint64(size),
		Usage: convertBufferUsage(usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("halgpu: create buffer: %w", err)
	}

	id := gpucore.BufferID(d.newID())
	d.mu.Lock()
	d.buffers[id] = buffer
	d.mu.Unlock()
	return id, nil
}

// DestroyBuffer releases a GPU buffer.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	buffer, ok := d.buffers[id]
	delete(d.buffers, id)
	d.mu.Unlock()

	if ok {
		d.device.DestroyBuffer(buffer)
	}
}

// WriteBuffer writes data to a buffer at the given byte offset.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) {
	if d.lost.Load() || len(data) == 0 {
		return
	}
	d.mu.RLock()
	buffer, ok := d.buffers[id]
	d.mu.RUnlock()

	if ok {
		d.queue.WriteBuffer(buffer, offset, data)
	}
}

// ReadBuffer reads len(dst) bytes from a buffer into dst.
func (d *Device) ReadBuffer(id gpucore.BufferID, offset uint64, dst []byte) error {
	if d.lost.Load() {
		return gpucore.ErrDeviceLost
	}
	d.mu.RLock()
	buffer, ok := d.buffers[id]
	d.mu.RUnlock()

	if !ok {
		return fmt.Errorf("halgpu: buffer %d: %w", id, gpucore.ErrResourceNotFound)
	}
	if err := d.queue.ReadBuffer(buffer, offset, dst); err != nil {
		d.fail(err)
		return fmt.Errorf("halgpu: read buffer: %w", err)
	}
	return nil
}

// === Texture Management ===

// CreateTexture creates a GPU texture together with its default view.
func (d *Device) CreateTexture(width, height int, format gpucore.TextureFormat) (gpucore.TextureID, error) {
	if width <= 0 || height <= 0 {
		return gpucore.InvalidID, fmt.Errorf("halgpu: texture dimensions must be positive")
	}
	if d.lost.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}

	texture, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Size: hal.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        convertTextureFormat(format),
		Usage: gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst |
			gputypes.TextureUsageTextureBinding | gputypes.TextureUsageStorageBinding,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("halgpu: create texture: %w", err)
	}

	view, err := d.device.CreateTextureView(texture, &hal.TextureViewDescriptor{})
	if err != nil {
		d.device.DestroyTexture(texture)
		return gpucore.InvalidID, fmt.Errorf("halgpu: create texture view: %w", err)
	}

	id := gpucore.TextureID(d.newID())
	d.mu.Lock()
	d.textures[id] = &halTexture{
		tex:    texture,
		view:   view,
		width:  width,
		height: height,
		format: format,
	}
	d.mu.Unlock()
	return id, nil
}

// DestroyTexture releases a GPU texture.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	t, ok := d.textures[id]
	delete(d.textures, id)
	d.mu.Unlock()

	if ok {
		d.device.DestroyTextureView(t.view)
		d.device.DestroyTexture(t.tex)
	}
}

// WriteTexture writes tightly packed pixel data covering the whole texture.
func (d *Device) WriteTexture(id gpucore.TextureID, data []byte) {
	if d.lost.Load() || len(data) == 0 {
		return
	}
	d.mu.RLock()
	t, ok := d.textures[id]
	d.mu.RUnlock()
	if !ok {
		return
	}

	bpp := t.format.BytesPerPixel()
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
			Origin:   hal.Origin3D{X: 0, Y: 0, Z: 0},
			Aspect:   gputypes.TextureAspectAll,
		},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(t.width * bpp),
			RowsPerImage: uint32(t.height),
		},
		&hal.Extent3D{
			Width:              uint32(t.width),
			Height:             uint32(t.height),
			DepthOrArrayLayers: 1,
		},
	)
}

// CopyTextureToBuffer records a copy of rect from the texture into the
// buffer. The copy executes at the next Submit.
func (d *Device) CopyTextureToBuffer(src gpucore.TextureID, rect gpucore.Rect, dst gpucore.BufferID, bytesPerRow uint32) error {
	if d.lost.Load() {
		return gpucore.ErrDeviceLost
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.textures[src]
	if !ok {
		return fmt.Errorf("halgpu: texture %d: %w", src, gpucore.ErrResourceNotFound)
	}
	buffer, ok := d.buffers[dst]
	if !ok {
		return fmt.Errorf("halgpu: buffer %d: %w", dst, gpucore.ErrResourceNotFound)
	}

	rect = rect.Clamp(t.width, t.height)
	if rect.Empty() {
		return nil
	}
	if int(bytesPerRow) < rect.W*t.format.BytesPerPixel() {
		return fmt.Errorf("halgpu: bytesPerRow %d below row size %d", bytesPerRow, rect.W*t.format.BytesPerPixel())
	}
	if bytesPerRow%copyPitchAlign != 0 {
		return fmt.Errorf("halgpu: bytesPerRow %d not aligned to %d", bytesPerRow, copyPitchAlign)
	}

	if err := d.ensureEncoderLocked(); err != nil {
		return err
	}
	d.encoder.CopyTextureToBuffer(t.tex, buffer, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  bytesPerRow,
			RowsPerImage: uint32(rect.H),
		},
		TextureBase: hal.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
			Origin:   hal.Origin3D{X: uint32(rect.X), Y: uint32(rect.Y), Z: 0},
			Aspect:   gputypes.TextureAspectAll,
		},
		Size: hal.Extent3D{
			Width:              uint32(rect.W),
			Height:             uint32(rect.H),
			DepthOrArrayLayers: 1,
		},
	}})
	return nil
}

// === Pipeline Management ===

// CreateBindGroupLayout creates a bind group layout.
func (d *Device) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("halgpu: nil bind group layout descriptor")
	}
	if d.lost.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}

	halEntries := make([]gputypes.BindGroupLayoutEntry, len(desc.Entries))
	for i, entry := range desc.Entries {
		halEntries[i] = convertBindGroupLayoutEntry(entry)
	}

	layout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: halEntries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("halgpu: create bind group layout: %w", err)
	}

	id := gpucore.BindGroupLayoutID(d.newID())
	d.mu.Lock()
	d.bindGroupLayouts[id] = layout
	d.mu.Unlock()
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (d *Device) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	d.mu.Lock()
	layout, ok := d.bindGroupLayouts[id]
	delete(d.bindGroupLayouts, id)
	d.mu.Unlock()

	if ok {
		d.device.DestroyBindGroupLayout(layout)
	}
}

// CreatePipelineLayout creates a pipeline layout from bind group layouts.
func (d *Device) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	if d.lost.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}

	d.mu.RLock()
	halLayouts := make([]hal.BindGroupLayout, len(layouts))
	for i, lid := range layouts {
		layout, ok := d.bindGroupLayouts[lid]
		if !ok {
			d.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("halgpu: bind group layout %d: %w", lid, gpucore.ErrResourceNotFound)
		}
		halLayouts[i] = layout
	}
	d.mu.RUnlock()

	pipelineLayout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		BindGroupLayouts: halLayouts,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("halgpu: create pipeline layout: %w", err)
	}

	id := gpucore.PipelineLayoutID(d.newID())
	d.mu.Lock()
	d.pipelineLayouts[id] = pipelineLayout
	d.mu.Unlock()
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (d *Device) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	d.mu.Lock()
	layout, ok := d.pipelineLayouts[id]
	delete(d.pipelineLayouts, id)
	d.mu.Unlock()

	if ok {
		d.device.DestroyPipelineLayout(layout)
	}
}

// CreateComputePipeline creates a compute pipeline.
func (d *Device) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("halgpu: nil compute pipeline descriptor")
	}
	if d.lost.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}

	d.mu.RLock()
	pipelineLayout, layoutOK := d.pipelineLayouts[desc.Layout]
	shaderModule, moduleOK := d.shaderModules[desc.ShaderModule]
	d.mu.RUnlock()

	if !layoutOK {
		return gpucore.InvalidID, fmt.Errorf("halgpu: pipeline layout %d: %w", desc.Layout, gpucore.ErrResourceNotFound)
	}
	if !moduleOK {
		return gpucore.InvalidID, fmt.Errorf("halgpu: shader module %d: %w", desc.ShaderModule, gpucore.ErrResourceNotFound)
	}

	pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: pipelineLayout,
		Compute: hal.ComputeState{
			Module:     shaderModule,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("halgpu: create compute pipeline: %w", err)
	}

	id := gpucore.ComputePipelineID(d.newID())
	d.mu.Lock()
	d.computePipelines[id] = pipeline
	d.mu.Unlock()
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (d *Device) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	d.mu.Lock()
	pipeline, ok := d.computePipelines[id]
	delete(d.computePipelines, id)
	d.mu.Unlock()

	if ok {
		d.device.DestroyComputePipeline(pipeline)
	}
}

// CreateBindGroup creates a bind group binding actual resources to a layout.
func (d *Device) CreateBindGroup(layout gpucore.BindGroupLayoutID, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	if d.lost.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}

	d.mu.RLock()
	halLayout, ok := d.bindGroupLayouts[layout]
	if !ok {
		d.mu.RUnlock()
		return gpucore.InvalidID, fmt.Errorf("halgpu: bind group layout %d: %w", layout, gpucore.ErrResourceNotFound)
	}
	halEntries := make([]gputypes.BindGroupEntry, len(entries))
	for i, entry := range entries {
		halEntry, err := d.convertBindGroupEntry(entry)
		if err != nil {
			d.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("halgpu: bind group entry %d: %w", entry.Binding, err)
		}
		halEntries[i] = halEntry
	}
	d.mu.RUnlock()

	bindGroup, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Layout:  halLayout,
		Entries: halEntries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("halgpu: create bind group: %w", err)
	}

	id := gpucore.BindGroupID(d.newID())
	d.mu.Lock()
	d.bindGroups[id] = bindGroup
	d.mu.Unlock()
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (d *Device) DestroyBindGroup(id gpucore.BindGroupID) {
	d.mu.Lock()
	group, ok := d.bindGroups[id]
	delete(d.bindGroups, id)
	d.mu.Unlock()

	if ok {
		d.device.DestroyBindGroup(group)
	}
}

// === Command Recording and Execution ===

// ensureEncoderLocked creates the batch encoder if none is open. The caller
// must hold mu.
func (d *Device) ensureEncoderLocked() error {
	if d.hasEncoder {
		return nil
	}
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "halgpu-encoder",
	})
	if err != nil {
		return fmt.Errorf("halgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("halgpu-batch"); err != nil {
		return fmt.Errorf("halgpu: begin encoding: %w", err)
	}
	d.encoder = encoder
	d.hasEncoder = true
	return nil
}

// BeginComputePass begins a compute pass on the current batch encoder.
func (d *Device) BeginComputePass() gpucore.ComputePassEncoder {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lost.Load() {
		return &computePassEncoder{dev: d}
	}
	if err := d.ensureEncoderLocked(); err != nil {
		d.lastErr = err
		return &computePassEncoder{dev: d}
	}

	pass := d.encoder.BeginComputePass(&hal.ComputePassDescriptor{
		Label: "compute",
	})
	return &computePassEncoder{dev: d, pass: pass}
}

// endEncodingLocked finishes the current encoder and returns its command
// buffer, or nil when nothing was recorded. The caller must hold mu.
func (d *Device) endEncodingLocked() (hal.CommandBuffer, error) {
	if !d.hasEncoder {
		return nil, nil
	}
	d.hasEncoder = false
	cmdBuf, err := d.encoder.EndEncoding()
	d.encoder = nil
	if err != nil {
		return nil, fmt.Errorf("halgpu: end encoding: %w", err)
	}
	return cmdBuf, nil
}

// Submit submits all recorded commands to the GPU without a fence.
func (d *Device) Submit() {
	d.mu.Lock()
	defer d.mu.Unlock()

	cmdBuf, err := d.endEncodingLocked()
	if err != nil {
		d.lastErr = err
		return
	}
	if cmdBuf == nil {
		return
	}
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, nil, 0); err != nil {
		d.lastErr = err
		d.lost.Store(true)
	}
	cmdBuf.Destroy()
}

// SubmitWithFence submits all recorded commands and arranges for the fence
// to signal once they complete. An empty submission still signals the fence.
func (d *Device) SubmitWithFence(fence gpucore.FenceID) error {
	if d.lost.Load() {
		return gpucore.ErrDeviceLost
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	f, ok := d.fences[fence]
	if !ok {
		return fmt.Errorf("halgpu: fence %d: %w", fence, gpucore.ErrResourceNotFound)
	}
	cmdBuf, err := d.endEncodingLocked()
	if err != nil {
		d.lastErr = err
		return err
	}

	var cmds []hal.CommandBuffer
	if cmdBuf != nil {
		cmds = []hal.CommandBuffer{cmdBuf}
	}
	f.value++
	if err := d.queue.Submit(cmds, f.fence, f.value); err != nil {
		d.lastErr = err
		d.lost.Store(true)
		if cmdBuf != nil {
			cmdBuf.Destroy()
		}
		return gpucore.ErrDeviceLost
	}
	if cmdBuf != nil {
		cmdBuf.Destroy()
	}
	return nil
}

// === Fences ===

// CreateFence creates an unsignaled fence.
func (d *Device) CreateFence() (gpucore.FenceID, error) {
	if d.lost.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}
	fence, err := d.device.CreateFence()
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("halgpu: create fence: %w", err)
	}

	id := gpucore.FenceID(d.newID())
	d.mu.Lock()
	d.fences[id] = &halFence{fence: fence}
	d.mu.Unlock()
	return id, nil
}

// DestroyFence releases a fence.
func (d *Device) DestroyFence(id gpucore.FenceID) {
	d.mu.Lock()
	f, ok := d.fences[id]
	delete(d.fences, id)
	d.mu.Unlock()

	if ok {
		d.device.DestroyFence(f.fence)
	}
}

// PollFence reports whether the fence has reached its latest submission
// value. Polling never blocks.
func (d *Device) PollFence(id gpucore.FenceID) (bool, error) {
	if d.lost.Load() {
		return false, gpucore.ErrDeviceLost
	}
	d.mu.RLock()
	f, ok := d.fences[id]
	d.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("halgpu: fence %d: %w", id, gpucore.ErrResourceNotFound)
	}
	if f.value == 0 {
		// Never submitted.
		return false, nil
	}

	signaled, err := d.device.Wait(f.fence, f.value, 0)
	if err != nil {
		d.fail(err)
		return false, fmt.Errorf("halgpu: fence wait: %w", err)
	}
	return signaled, nil
}

// WaitIdle waits for all GPU operations to complete.
func (d *Device) WaitIdle() {
	d.Submit()

	fence, err := d.device.CreateFence()
	if err != nil {
		return
	}
	defer d.device.DestroyFence(fence)

	if err := d.queue.Submit(nil, fence, 1); err != nil {
		return
	}
	_, _ = d.device.Wait(fence, 1, 5_000_000_000)
}

// Close releases every tracked resource, and the device and instance when
// New opened them.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.hasEncoder {
		d.encoder.DiscardEncoding()
		d.encoder = nil
		d.hasEncoder = false
	}

	for id, group := range d.bindGroups {
		d.device.DestroyBindGroup(group)
		delete(d.bindGroups, id)
	}
	for id, pipeline := range d.computePipelines {
		d.device.DestroyComputePipeline(pipeline)
		delete(d.computePipelines, id)
	}
	for id, layout := range d.pipelineLayouts {
		d.device.DestroyPipelineLayout(layout)
		delete(d.pipelineLayouts, id)
	}
	for id, layout := range d.bindGroupLayouts {
		d.device.DestroyBindGroupLayout(layout)
		delete(d.bindGroupLayouts, id)
	}
	for id, module := range d.shaderModules {
		d.device.DestroyShaderModule(module)
		delete(d.shaderModules, id)
	}
	for id, t := range d.textures {
		d.device.DestroyTextureView(t.view)
		d.device.DestroyTexture(t.tex)
		delete(d.textures, id)
	}
	for id, buffer := range d.buffers {
		d.device.DestroyBuffer(buffer)
		delete(d.buffers, id)
	}
	for id, f := range d.fences {
		d.device.DestroyFence(f.fence)
		delete(d.fences, id)
	}

	if d.instance != nil {
		d.device.Destroy()
		d.instance.Destroy()
		d.instance = nil
	}
}

// === Type Conversion Helpers ===

// convertBufferUsage converts gpucore.BufferUsage to gputypes.BufferUsage.
func convertBufferUsage(usage gpucore.BufferUsage) gputypes.BufferUsage {
	var result gputypes.BufferUsage
	if usage&gpucore.BufferUsageMapRead != 0 {
		result |= gputypes.BufferUsageMapRead
	}
	if usage&gpucore.BufferUsageMapWrite != 0 {
		result |= gputypes.BufferUsageMapWrite
	}
	if usage&gpucore.BufferUsageCopySrc != 0 {
		result |= gputypes.BufferUsageCopySrc
	}
	if usage&gpucore.BufferUsageCopyDst != 0 {
		result |= gputypes.BufferUsageCopyDst
	}
	if usage&gpucore.BufferUsageUniform != 0 {
		result |= gputypes.BufferUsageUniform
	}
	if usage&gpucore.BufferUsageStorage != 0 {
		result |= gputypes.BufferUsageStorage
	}
	return result
}

// convertTextureFormat converts gpucore.TextureFormat to gputypes.TextureFormat.
func convertTextureFormat(format gpucore.TextureFormat) gputypes.TextureFormat {
	switch format {
	case gpucore.TextureFormatRGBA8:
		return gputypes.TextureFormatRGBA8Unorm
	case gpucore.TextureFormatR8:
		return gputypes.TextureFormatR8Unorm
	case gpucore.TextureFormatR32F:
		return gputypes.TextureFormatR32Float
	case gpucore.TextureFormatRGBA32F:
		return gputypes.TextureFormatRGBA32Float
	default:
		return gputypes.TextureFormatRGBA8Unorm
	}
}

// convertBindGroupLayoutEntry converts a gpucore layout entry to its
// gputypes form. All bindings are compute-stage.
func convertBindGroupLayoutEntry(entry gpucore.BindGroupLayoutEntry) gputypes.BindGroupLayoutEntry {
	result := gputypes.BindGroupLayoutEntry{
		Binding:    entry.Binding,
		Visibility: gputypes.ShaderStageCompute,
	}

	switch entry.Type {
	case gpucore.BindingTypeUniformBuffer:
		result.Buffer = &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeUniform,
			MinBindingSize: entry.MinBindingSize,
		}
	case gpucore.BindingTypeStorageBuffer:
		result.Buffer = &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeStorage,
			MinBindingSize: entry.MinBindingSize,
		}
	case gpucore.BindingTypeReadOnlyStorageBuffer:
		result.Buffer = &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeReadOnlyStorage,
			MinBindingSize: entry.MinBindingSize,
		}
	case gpucore.BindingTypeSampledTexture:
		result.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case gpucore.BindingTypeStorageTexture:
		result.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessReadWrite,
			Format:        convertTextureFormat(entry.Format),
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	}
	return result
}

// convertBindGroupEntry converts a gpucore bind group entry to its gputypes
// form. Must be called with mu held.
func (d *Device) convertBindGroupEntry(entry gpucore.BindGroupEntry) (gputypes.BindGroupEntry, error) {
	result := gputypes.BindGroupEntry{Binding: entry.Binding}

	switch {
	case entry.Buffer != gpucore.InvalidID:
		buffer, ok := d.buffers[entry.Buffer]
		if !ok {
			return result, fmt.Errorf("buffer %d: %w", entry.Buffer, gpucore.ErrResourceNotFound)
		}
		result.Resource = gputypes.BufferBinding{
			Buffer: buffer.NativeHandle(),
			Offset: entry.Offset,
			Size:   entry.Size,
		}
	case entry.Texture != gpucore.InvalidID:
		t, ok := d.textures[entry.Texture]
		if !ok {
			return result, fmt.Errorf("texture %d: %w", entry.Texture, gpucore.ErrResourceNotFound)
		}
		result.Resource = gputypes.TextureViewBinding{
			TextureView: t.view.NativeHandle(),
		}
	default:
		return result, fmt.Errorf("entry binds no resource")
	}
	return result, nil
}

// === Compute Pass Encoder ===

// computePassEncoder implements gpucore.ComputePassEncoder. A nil pass
// records nothing; it stands in when encoding could not start.
type computePassEncoder struct {
	dev  *Device
	pass hal.ComputePassEncoder
}

// SetPipeline sets the active compute pipeline.
func (e *computePassEncoder) SetPipeline(pipeline gpucore.ComputePipelineID) {
	if e.pass == nil {
		return
	}
	e.dev.mu.RLock()
	halPipeline, ok := e.dev.computePipelines[pipeline]
	e.dev.mu.RUnlock()
	if ok {
		e.pass.SetPipeline(halPipeline)
	}
}

// SetBindGroup sets a bind group at the specified index.
func (e *computePassEncoder) SetBindGroup(index uint32, group gpucore.BindGroupID) {
	if e.pass == nil {
		return
	}
	e.dev.mu.RLock()
	halGroup, ok := e.dev.bindGroups[group]
	e.dev.mu.RUnlock()
	if ok {
		e.pass.SetBindGroup(index, halGroup, nil)
	}
}

// Dispatch dispatches compute workgroups.
func (e *computePassEncoder) Dispatch(x, y, z uint32) {
	if e.pass == nil {
		return
	}
	e.pass.Dispatch(x, y, z)
}

// End finishes the compute pass.
func (e *computePassEncoder) End() {
	if e.pass == nil {
		return
	}
	e.pass.End()
}
