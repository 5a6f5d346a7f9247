// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package halgpu implements gpucore.Device on top of the gogpu/wgpu HAL.
//
// New opens a standalone compute-only Vulkan device. NewWithDevice wraps a
// device and queue the caller already owns (a noop device in tests, or a
// device shared with a renderer). Either way the adapter tracks every
// resource it hands out by opaque ID and records compute work into a single
// command encoder that Submit and SubmitWithFence flush to the queue.
package halgpu
