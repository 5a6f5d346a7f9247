// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gpucore

import (
	"errors"
	"fmt"
)

// Device-level errors.
var (
	// ErrDeviceLost is returned when the device context has been lost.
	// Callers that can degrade gracefully (the readback paths) treat this
	// as non-fatal and return previous valid data instead.
	ErrDeviceLost = errors.New("gpucore: device lost")

	// ErrResourceNotFound is returned when an ID does not name a live resource.
	ErrResourceNotFound = errors.New("gpucore: resource not found")

	// ErrFenceTimeout is returned when fence polling exhausts its attempt
	// budget. The error wraps the device's last reported error, if any.
	ErrFenceTimeout = errors.New("gpucore: fence wait timed out")
)

// FenceTimeoutError wraps ErrFenceTimeout with the device error code that
// was current when the attempt budget ran out.
type FenceTimeoutError struct {
	// Attempts is the number of polls performed before giving up.
	Attempts int

	// DeviceErr is the device's last reported error, or nil.
	DeviceErr error
}

func (e *FenceTimeoutError) Error() string {
	if e.DeviceErr != nil {
		return fmt.Sprintf("gpucore: fence wait timed out after %d polls (device: %v)", e.Attempts, e.DeviceErr)
	}
	return fmt.Sprintf("gpucore: fence wait timed out after %d polls", e.Attempts)
}

// Unwrap makes errors.Is(err, ErrFenceTimeout) hold.
func (e *FenceTimeoutError) Unwrap() error { return ErrFenceTimeout }

// Device abstracts over GPU backend implementations.
//
// This interface is the core abstraction that lets the pipeline engine run
// against gogpu/wgpu HAL hardware (backend/halgpu) or an in-memory
// simulation (backend/sim). Implementations must be safe for concurrent use.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource while in use is undefined behavior
//   - IDs become invalid after destruction and must not be reused
type Device interface {
	// === Capabilities ===

	// MaxTextureSize returns the maximum texture side length in pixels.
	MaxTextureSize() int

	// MaxWorkgroupSize returns the maximum workgroup size in each dimension.
	MaxWorkgroupSize() [3]uint32

	// MaxBufferSize returns the maximum buffer size in bytes.
	MaxBufferSize() uint64

	// Lost reports whether the device context has been lost. Once lost, a
	// device never recovers; commands are silently dropped and reads fail
	// with ErrDeviceLost.
	Lost() bool

	// LastError returns the device's most recent error, or nil. Used to
	// annotate fence timeout errors.
	LastError() error

	// === Shader Compilation ===

	// CreateShaderModule creates a shader module from SPIR-V bytecode.
	// The SPIR-V is produced by naga from preprocessed WGSL.
	CreateShaderModule(spirv []uint32, label string) (ShaderModuleID, error)

	// DestroyShaderModule releases a shader module.
	DestroyShaderModule(id ShaderModuleID)

	// === Buffer Management ===

	// CreateBuffer creates a GPU buffer.
	CreateBuffer(size int, usage BufferUsage) (BufferID, error)

	// DestroyBuffer releases a GPU buffer.
	DestroyBuffer(id BufferID)

	// WriteBuffer writes data to a buffer at the given byte offset.
	WriteBuffer(id BufferID, offset uint64, data []byte)

	// ReadBuffer reads len(dst) bytes from a buffer into dst.
	// The read is only valid after a fence covering the producing commands
	// has signaled.
	ReadBuffer(id BufferID, offset uint64, dst []byte) error

	// === Texture Management ===

	// CreateTexture creates a GPU texture.
	CreateTexture(width, height int, format TextureFormat) (TextureID, error)

	// DestroyTexture releases a GPU texture.
	DestroyTexture(id TextureID)

	// WriteTexture writes tightly packed pixel data covering the whole texture.
	WriteTexture(id TextureID, data []byte)

	// CopyTextureToBuffer records a copy of rect from the texture into the
	// buffer, writing rows at the given pitch. bytesPerRow must be at least
	// rect.W * format.BytesPerPixel(); backends with copy pitch alignment
	// requirements (256 bytes on WebGPU and DX12) reject unaligned pitches.
	// The copy executes when the commands are submitted.
	CopyTextureToBuffer(src TextureID, rect Rect, dst BufferID, bytesPerRow uint32) error

	// === Pipeline Management ===

	// CreateBindGroupLayout creates a bind group layout.
	CreateBindGroupLayout(desc *BindGroupLayoutDesc) (BindGroupLayoutID, error)

	// DestroyBindGroupLayout releases a bind group layout.
	DestroyBindGroupLayout(id BindGroupLayoutID)

	// CreatePipelineLayout creates a pipeline layout from bind group layouts.
	CreatePipelineLayout(layouts []BindGroupLayoutID) (PipelineLayoutID, error)

	// DestroyPipelineLayout releases a pipeline layout.
	DestroyPipelineLayout(id PipelineLayoutID)

	// CreateComputePipeline creates a compute pipeline.
	CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipelineID, error)

	// DestroyComputePipeline releases a compute pipeline.
	DestroyComputePipeline(id ComputePipelineID)

	// CreateBindGroup creates a bind group binding actual resources to a layout.
	CreateBindGroup(layout BindGroupLayoutID, entries []BindGroupEntry) (BindGroupID, error)

	// DestroyBindGroup releases a bind group.
	DestroyBindGroup(id BindGroupID)

	// === Command Recording and Execution ===

	// BeginComputePass begins a compute pass.
	// Returns an encoder for recording compute commands.
	// The encoder must be ended with ComputePassEncoder.End().
	BeginComputePass() ComputePassEncoder

	// Submit submits all recorded commands to the GPU without a fence.
	Submit()

	// SubmitWithFence submits all recorded commands and arranges for the
	// fence to signal once they complete.
	SubmitWithFence(fence FenceID) error

	// === Fences ===

	// CreateFence creates an unsignaled fence.
	CreateFence() (FenceID, error)

	// DestroyFence releases a fence.
	DestroyFence(id FenceID)

	// PollFence reports whether the fence has signaled. Polling never
	// blocks; callers implement their own backoff.
	PollFence(id FenceID) (bool, error)

	// WaitIdle waits for all GPU operations to complete.
	// Use sparingly as this causes a full GPU-CPU synchronization.
	WaitIdle()

	// Close releases the device and every resource still alive on it.
	Close()
}

// ComputePassEncoder records compute commands.
//
// Usage:
//  1. Obtain encoder from Device.BeginComputePass()
//  2. Set pipeline and bind groups
//  3. Dispatch compute workgroups
//  4. Call End() to finish recording
//  5. Call Device.Submit() or SubmitWithFence() to execute
//
// The encoder is single-use and cannot be reused after End().
type ComputePassEncoder interface {
	// SetPipeline sets the active compute pipeline.
	SetPipeline(pipeline ComputePipelineID)

	// SetBindGroup sets a bind group at the specified index.
	SetBindGroup(index uint32, group BindGroupID)

	// Dispatch dispatches compute workgroups.
	// x, y, z are the number of workgroups in each dimension.
	Dispatch(x, y, z uint32)

	// End finishes the compute pass.
	// After this call, the encoder cannot be used again.
	End()
}
