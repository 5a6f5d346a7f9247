// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/vision/gpucore"
	"github.com/gogpu/vision/shader"
	"github.com/gogpu/vision/texture"
)

// Context carries the execution resources handed to every node Run call.
// One Context owns one graph and one pool; reentrant invocation of the same
// pipeline while a pass is in flight is a precondition violation.
type Context struct {
	// Device is the GPU device all programs execute on.
	Device gpucore.Device

	// Pool supplies working textures to nodes.
	Pool *texture.Pool

	// Preprocessor expands shader templates for programs built by nodes.
	Preprocessor *shader.Preprocessor

	// Log receives per-pass diagnostics.
	Log *slog.Logger
}

// Node is one named unit in a pipeline graph. Run reads the node's input
// ports, performs work, and writes its output ports. Nodes are created at
// graph-build time and belong to exactly one graph.
type Node interface {
	// Name returns the node name, unique within a graph.
	Name() string

	// Ports returns the node's ports in declaration order.
	Ports() []*Port

	// Run executes the node once within a pass.
	Run(ctx *Context) error
}

// Exporter is implemented by sink nodes that hand data to the surrounding
// application after a pass.
type Exporter interface {
	Node

	// Export returns the last message the sink consumed.
	Export() Message
}

// Base implements the port bookkeeping shared by all node variants.
// Embed it and declare ports at construction time.
type Base struct {
	name   string
	ports  []*Port
	byName map[string]*Port
}

// NewBase creates the embedded core of a node.
func NewBase(name string) Base {
	return Base{name: name, byName: make(map[string]*Port)}
}

// Name implements Node.
func (b *Base) Name() string { return b.name }

// Ports implements Node.
func (b *Base) Ports() []*Port { return b.ports }

// Port returns a declared port by name, or nil.
func (b *Base) Port(name string) *Port {
	return b.byName[name]
}

// AddInput declares an input port.
func (b *Base) AddInput(name string, spec PortSpec) *Port {
	return b.addPort(name, Input, spec)
}

// AddOutput declares an output port.
func (b *Base) AddOutput(name string, spec PortSpec) *Port {
	return b.addPort(name, Output, spec)
}

func (b *Base) addPort(name string, dir Direction, spec PortSpec) *Port {
	if _, dup := b.byName[name]; dup {
		panic(fmt.Sprintf("pipeline: node %q declares port %q twice", b.name, name))
	}
	p := &Port{name: name, dir: dir, spec: spec}
	b.ports = append(b.ports, p)
	b.byName[name] = p
	return p
}

// adopt stamps the owning node onto the ports when the node joins a graph.
func (b *Base) adopt(n Node) {
	for _, p := range b.ports {
		p.node = n
	}
}

// portOwner is the hook Graph.AddNode uses to reach the embedded Base.
type portOwner interface {
	adopt(n Node)
}

// Source produces one output message per pass and consumes nothing.
type Source struct {
	Base
	produce func(ctx *Context) (Message, error)
}

// NewSource creates a source node with a single output port named "out".
func NewSource(name string, spec PortSpec, produce func(ctx *Context) (Message, error)) *Source {
	s := &Source{Base: NewBase(name), produce: produce}
	s.AddOutput("out", spec)
	return s
}

// Out returns the output port.
func (s *Source) Out() *Port { return s.Port("out") }

// Run implements Node.
func (s *Source) Run(ctx *Context) error {
	m, err := s.produce(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: source %q: %w", s.Name(), err)
	}
	return s.Out().Write(m)
}

// Transform consumes inputs and produces outputs. Ports are declared by the
// caller on the embedded Base before the node joins a graph.
type Transform struct {
	Base
	apply func(ctx *Context, n *Transform) error
}

// NewTransform creates a transform node; declare its ports with AddInput
// and AddOutput before adding it to a graph.
func NewTransform(name string, apply func(ctx *Context, n *Transform) error) *Transform {
	return &Transform{Base: NewBase(name), apply: apply}
}

// Run implements Node.
func (t *Transform) Run(ctx *Context) error {
	if err := t.apply(ctx, t); err != nil {
		return fmt.Errorf("pipeline: transform %q: %w", t.Name(), err)
	}
	return nil
}

// Sink consumes one input per pass and exposes it to the application.
type Sink struct {
	Base
	consume func(ctx *Context, m Message) error
	last    Message
}

// NewSink creates a sink node with a single input port named "in". consume
// may be nil; the message is retained for Export either way.
func NewSink(name string, spec PortSpec, consume func(ctx *Context, m Message) error) *Sink {
	s := &Sink{Base: NewBase(name), consume: consume}
	s.AddInput("in", spec)
	return s
}

// In returns the input port.
func (s *Sink) In() *Port { return s.Port("in") }

// Run implements Node.
func (s *Sink) Run(ctx *Context) error {
	m, err := s.In().Read()
	if err != nil {
		return fmt.Errorf("pipeline: sink %q: %w", s.Name(), err)
	}
	s.last = m
	if s.consume == nil {
		return nil
	}
	if err := s.consume(ctx, m); err != nil {
		return fmt.Errorf("pipeline: sink %q: %w", s.Name(), err)
	}
	return nil
}

// Export implements Exporter.
func (s *Sink) Export() Message {
	if s.last == nil {
		return Nothing{}
	}
	return s.last
}
