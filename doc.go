// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package vision provides a GPU-resident compute pipeline engine for
// real-time image and feature processing.
//
// # Overview
//
// vision is the execution core under GPU computer-vision workloads in the
// GoGPU ecosystem. It does not implement vision algorithms itself; instead it
// provides the machinery those algorithms are built from:
//
//   - shader: a preprocessor for WGSL templates (constant substitution,
//     file inclusion, bounded loop unrolling) plus naga compilation
//   - program: wrappers around compiled compute programs with typed
//     uniform binding and ping-pong output textures
//   - texture: GPU textures and an exact-shape recycling pool
//   - pipeline: a typed node/port graph executed in cached topological order
//   - feature: the binary codec packing sparse feature records into textures
//   - readback: synchronous and multi-buffered asynchronous GPU→host transfer
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/vision"
//	    "github.com/gogpu/vision/backend/sim"
//	)
//
//	eng, err := vision.New(vision.WithDevice(sim.New()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
// Pipelines are built from nodes connected through typed ports and run one
// pass at a time against the engine's device and texture pool. See the
// pipeline package for graph construction and cmd/visiondemo for a complete
// example.
//
// # Backends
//
// The engine talks to the GPU through the gpucore.Device interface. Two
// implementations ship with the module: backend/halgpu (gogpu/wgpu HAL) and
// backend/sim (in-memory simulation used by tests and CI).
//
// # Architecture
//
// The library is organized into:
//   - Public API: Engine, shader, program, texture, pipeline, feature, readback
//   - Device abstraction: gpucore with backends under backend/
//   - Internal: cache (sharded LRU used by the shader preprocessor)
package vision
