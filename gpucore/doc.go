// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package gpucore defines the device abstraction the vision engine runs on.
//
// The Device interface exposes the subset of a modern explicit GPU API the
// pipeline engine needs: buffers, textures, shader modules, compute
// pipelines, bind groups, texture→buffer copies, and fences. Resources are
// addressed by opaque uint64 IDs; each backend maintains the mapping between
// IDs and its native handles.
//
// Two implementations ship with the module:
//   - backend/halgpu: gogpu/wgpu HAL
//   - backend/sim: in-memory simulation for tests and CI
package gpucore
