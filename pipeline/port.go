// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package pipeline

import (
	"errors"
	"fmt"
)

// Port and connection errors.
var (
	// ErrTagMismatch is returned when connecting ports of different tags.
	ErrTagMismatch = errors.New("pipeline: port tag mismatch")

	// ErrPayload is returned when a written message fails a destination
	// port's payload predicate.
	ErrPayload = errors.New("pipeline: message rejected by port spec")

	// ErrPortDirection is returned when an operation is applied to the
	// wrong port direction.
	ErrPortDirection = errors.New("pipeline: wrong port direction")

	// ErrPortConnected is returned when an input port already has a source.
	ErrPortConnected = errors.New("pipeline: input already connected")

	// ErrPortUnconnected is returned when reading an input with no source.
	ErrPortUnconnected = errors.New("pipeline: input not connected")
)

// Direction of a port.
type Direction uint8

// Port directions.
const (
	Input Direction = iota + 1
	Output
)

func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// PortSpec constrains what a port accepts: a message tag, and optionally a
// payload predicate evaluated on every write reaching the port.
type PortSpec struct {
	// Tag is the accepted message tag. Connections require identical tags
	// on both ends.
	Tag Tag

	// Check, if non-nil, validates payloads. A non-nil error rejects the
	// write immediately.
	Check func(Message) error
}

// Port is one typed endpoint on a node. Output ports hold at most the most
// recent message; input ports reference exactly one upstream output.
type Port struct {
	name string
	dir  Direction
	spec PortSpec
	node Node // set when the owning node joins a graph

	// Output state.
	msg     Message
	readers []*Port

	// Input state.
	upstream *Port
}

// Name returns the port name, unique within its node.
func (p *Port) Name() string { return p.name }

// Direction returns whether the port is an input or an output.
func (p *Port) Direction() Direction { return p.dir }

// Spec returns the port's spec.
func (p *Port) Spec() PortSpec { return p.spec }

// Node returns the owning node, or nil before the node joins a graph.
func (p *Port) Node() Node { return p.node }

func (p *Port) label() string {
	if p.node != nil {
		return p.node.Name() + "." + p.name
	}
	return p.name
}

// Write places a message on an output port, overwriting the previous one.
// The message must match the port's tag and pass the payload predicate of
// the port and of every connected input.
func (p *Port) Write(m Message) error {
	if p.dir != Output {
		return fmt.Errorf("%w: write to %s port %s", ErrPortDirection, p.dir, p.label())
	}
	if m == nil {
		m = Nothing{}
	}
	if m.Tag() != p.spec.Tag && m.Tag() != TagNothing {
		return fmt.Errorf("%w: %s message on %s port %s", ErrTagMismatch, m.Tag(), p.spec.Tag, p.label())
	}
	if err := p.check(m); err != nil {
		return err
	}
	for _, r := range p.readers {
		if err := r.check(m); err != nil {
			return err
		}
	}
	p.msg = m
	return nil
}

func (p *Port) check(m Message) error {
	if p.spec.Check == nil || m.Tag() == TagNothing {
		return nil
	}
	if err := p.spec.Check(m); err != nil {
		return fmt.Errorf("%w: port %s: %v", ErrPayload, p.label(), err)
	}
	return nil
}

// Read returns the current message on an input port's upstream output.
// An upstream that has not written yet reads as Nothing.
func (p *Port) Read() (Message, error) {
	if p.dir != Input {
		return nil, fmt.Errorf("%w: read from %s port %s", ErrPortDirection, p.dir, p.label())
	}
	if p.upstream == nil {
		return nil, fmt.Errorf("%w: %s", ErrPortUnconnected, p.label())
	}
	if p.upstream.msg == nil {
		return Nothing{}, nil
	}
	return p.upstream.msg, nil
}

// connect binds input port in to output port out after tag validation.
func connect(out, in *Port) error {
	if out.dir != Output {
		return fmt.Errorf("%w: %s is not an output", ErrPortDirection, out.label())
	}
	if in.dir != Input {
		return fmt.Errorf("%w: %s is not an input", ErrPortDirection, in.label())
	}
	if out.spec.Tag != in.spec.Tag {
		return fmt.Errorf("%w: %s (%s) -> %s (%s)",
			ErrTagMismatch, out.label(), out.spec.Tag, in.label(), in.spec.Tag)
	}
	if in.upstream != nil {
		return fmt.Errorf("%w: %s", ErrPortConnected, in.label())
	}
	in.upstream = out
	out.readers = append(out.readers, in)
	return nil
}
