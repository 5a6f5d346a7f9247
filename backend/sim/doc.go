// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package sim provides an in-memory gpucore.Device for tests and CI.
//
// The simulated device stores buffer and texture contents in host memory and
// executes copy commands at submit time, so data flows through the engine
// exactly as it would on hardware — only shader dispatches are no-ops.
// Fence latency and device loss can be injected to exercise the readback
// paths' backoff and degradation behavior.
package sim
