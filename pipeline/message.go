// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package pipeline wires GPU programs into a directed acyclic graph of
// nodes exchanging typed messages through ports, and drives one ordered
// execution pass per invocation.
package pipeline

import (
	"fmt"

	"github.com/gogpu/vision/feature"
	"github.com/gogpu/vision/texture"
)

// Tag identifies the payload type of a Message. The set is closed; nodes
// outside the engine interact only through these.
type Tag uint8

// Message tags.
const (
	TagNothing Tag = iota
	TagImage
	TagKeypoints
	TagVector
	TagMatrix
)

func (t Tag) String() string {
	switch t {
	case TagNothing:
		return "Nothing"
	case TagImage:
		return "Image"
	case TagKeypoints:
		return "Keypoints"
	case TagVector:
		return "Vector"
	case TagMatrix:
		return "Matrix"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
}

// Message is one value flowing from an output port to input ports.
// Messages are read-only once written and flow by identity, never copied.
type Message interface {
	Tag() Tag
}

// Nothing is the empty message.
type Nothing struct{}

// Tag implements Message.
func (Nothing) Tag() Tag { return TagNothing }

// Image carries a GPU texture.
type Image struct {
	Texture *texture.Texture
}

// Tag implements Message.
func (*Image) Tag() Tag { return TagImage }

// Keypoints carries an encoded feature texture and the layout needed to
// decode it.
type Keypoints struct {
	Texture *texture.Texture
	Layout  feature.Layout
}

// Tag implements Message.
func (*Keypoints) Tag() Tag { return TagKeypoints }

// Vector carries a numeric vector.
type Vector struct {
	Values []float32
}

// Tag implements Message.
func (*Vector) Tag() Tag { return TagVector }

// Matrix carries a dense column-major matrix.
type Matrix struct {
	Rows, Cols int
	Values     []float32
}

// Tag implements Message.
func (*Matrix) Tag() Tag { return TagMatrix }
