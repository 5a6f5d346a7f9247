// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vision

import (
	"github.com/gogpu/vision/gpucore"
	"github.com/gogpu/vision/shader"
)

type engineOptions struct {
	dev             gpucore.Device
	includes        shader.IncludeResolver
	readbackBuffers int
	constants       []shader.Constant
}

// Option configures an Engine.
type Option func(*engineOptions)

// WithDevice runs the engine on dev instead of opening the default HAL
// device. The caller keeps ownership: Engine.Close does not close it.
func WithDevice(dev gpucore.Device) Option {
	return func(o *engineOptions) { o.dev = dev }
}

// WithIncludes supplies the resolver for #include directives in shader
// source.
func WithIncludes(r shader.IncludeResolver) Option {
	return func(o *engineOptions) { o.includes = r }
}

// WithReadbackBuffers sets the staging slot count of the engine's async
// reader.
func WithReadbackBuffers(n int) Option {
	return func(o *engineOptions) {
		if n > 0 {
			o.readbackBuffers = n
		}
	}
}

// WithConstants registers extra preprocessor constants on top of the
// defaults and the device platform constants.
func WithConstants(consts ...shader.Constant) Option {
	return func(o *engineOptions) { o.constants = append(o.constants, consts...) }
}
