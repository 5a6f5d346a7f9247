// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vision

import (
	"fmt"

	"github.com/gogpu/vision/backend/halgpu"
	"github.com/gogpu/vision/gpucore"
	"github.com/gogpu/vision/pipeline"
	"github.com/gogpu/vision/program"
	"github.com/gogpu/vision/readback"
	"github.com/gogpu/vision/shader"
	"github.com/gogpu/vision/texture"
)

// Engine ties a device to the shared services pipelines need: a shader
// preprocessor seeded with platform constants, a texture pool, and a
// readback reader. One engine serves any number of programs and graphs, all
// executing from a single goroutine.
type Engine struct {
	dev    gpucore.Device
	ownDev bool

	registry *shader.Registry
	pre      *shader.Preprocessor
	pool     *texture.Pool
	reader   *readback.Reader
}

// New creates an engine. Without WithDevice it opens the default HAL device
// and owns it for the engine's lifetime.
func New(opts ...Option) (*Engine, error) {
	o := engineOptions{readbackBuffers: readback.DefaultBuffers}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{dev: o.dev}
	if e.dev == nil {
		dev, err := halgpu.New()
		if err != nil {
			return nil, fmt.Errorf("vision: open device: %w", err)
		}
		e.dev = dev
		e.ownDev = true
		Logger().Info("device opened",
			"max_texture", dev.MaxTextureSize(),
			"max_buffer", dev.MaxBufferSize())
	}

	e.registry = shader.NewDefaultRegistry()
	shader.RegisterPlatform(e.registry, e.dev)
	for _, c := range o.constants {
		e.registry.Add(c.Name, c.Value)
	}

	var preOpts []shader.Option
	if o.includes != nil {
		preOpts = append(preOpts, shader.WithIncludes(o.includes))
	}
	e.pre = shader.NewPreprocessor(e.registry, preOpts...)
	e.pool = texture.NewPool(e.dev)

	reader, err := readback.NewReader(e.dev,
		readback.WithBuffers(o.readbackBuffers),
		readback.WithLogger(Logger()))
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("vision: reader: %w", err)
	}
	e.reader = reader
	return e, nil
}

// Device returns the engine's GPU device.
func (e *Engine) Device() gpucore.Device { return e.dev }

// Pool returns the engine's texture pool.
func (e *Engine) Pool() *texture.Pool { return e.pool }

// Registry returns the engine's shader constant registry.
func (e *Engine) Registry() *shader.Registry { return e.registry }

// Preprocessor returns the engine's shader preprocessor.
func (e *Engine) Preprocessor() *shader.Preprocessor { return e.pre }

// Reader returns the engine's readback reader.
func (e *Engine) Reader() *readback.Reader { return e.reader }

// NewProgram compiles a compute program against the engine's device, pool,
// and preprocessor.
func (e *Engine) NewProgram(desc program.Desc) (*program.Program, error) {
	return program.New(e.dev, e.pool, e.pre, desc)
}

// Context returns a pipeline execution context backed by the engine.
func (e *Engine) Context() *pipeline.Context {
	return &pipeline.Context{
		Device:       e.dev,
		Pool:         e.pool,
		Preprocessor: e.pre,
		Log:          Logger(),
	}
}

// Close releases the reader, the pooled textures, and, when New opened it,
// the device. Programs created from the engine must be closed first.
func (e *Engine) Close() {
	if e.reader != nil {
		e.reader.Close()
		e.reader = nil
	}
	if e.pool != nil {
		e.pool.Release()
		e.pool = nil
	}
	if e.ownDev && e.dev != nil {
		e.dev.Close()
	}
	e.dev = nil
}
