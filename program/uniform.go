// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package program

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Uniform binding errors.
var (
	// ErrUnknownUniform is returned when a name is not declared.
	ErrUnknownUniform = errors.New("program: unknown uniform")

	// ErrUniformType is returned when a value does not match the declared
	// kind or arity.
	ErrUniformType = errors.New("program: uniform type mismatch")
)

// UniformKind is the declared type of one uniform slot.
type UniformKind uint8

// Uniform kinds. Scalars and vectors are float32 unless noted; booleans are
// uploaded as 32-bit integers; matrices are column-major.
const (
	KindFloat UniformKind = iota + 1
	KindInt
	KindBool
	KindVec2
	KindVec3
	KindVec4
	KindBoolVec // up to 4 booleans, uploaded as a uvec4
	KindMat3
	KindMat4
)

func (k UniformKind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindVec2:
		return "vec2"
	case KindVec3:
		return "vec3"
	case KindVec4:
		return "vec4"
	case KindBoolVec:
		return "bvec"
	case KindMat3:
		return "mat3"
	case KindMat4:
		return "mat4"
	default:
		return fmt.Sprintf("UniformKind(%d)", uint8(k))
	}
}

// sizeAlign returns the byte size and alignment of the kind in the packed
// uniform block, per WGSL uniform address space layout rules.
func (k UniformKind) sizeAlign() (size, align int) {
	switch k {
	case KindFloat, KindInt, KindBool:
		return 4, 4
	case KindVec2:
		return 8, 8
	case KindVec3:
		return 12, 16
	case KindVec4, KindBoolVec:
		return 16, 16
	case KindMat3:
		// Three columns, each padded to a 16-byte stride.
		return 48, 16
	case KindMat4:
		return 64, 16
	default:
		return 0, 1
	}
}

// floats returns the number of 32-bit lanes callers must supply.
func (k UniformKind) lanes() int {
	switch k {
	case KindFloat, KindInt, KindBool:
		return 1
	case KindVec2:
		return 2
	case KindVec3:
		return 3
	case KindVec4:
		return 4
	case KindBoolVec:
		return 4
	case KindMat3:
		return 9
	case KindMat4:
		return 16
	default:
		return 0
	}
}

// UniformDecl declares one named slot in a program's uniform block.
type UniformDecl struct {
	Name string
	Kind UniformKind
}

type uniformSlot struct {
	kind   UniformKind
	offset int
	set    bool
}

// uniformTable packs declared uniforms into one buffer-ready block.
type uniformTable struct {
	slots map[string]*uniformSlot
	block []byte
}

func newUniformTable(decls []UniformDecl) (*uniformTable, error) {
	t := &uniformTable{slots: make(map[string]*uniformSlot, len(decls))}
	off := 0
	for _, d := range decls {
		if d.Name == "" {
			return nil, errors.New("program: unnamed uniform")
		}
		if _, dup := t.slots[d.Name]; dup {
			return nil, fmt.Errorf("program: duplicate uniform %q", d.Name)
		}
		size, align := d.Kind.sizeAlign()
		if size == 0 {
			return nil, fmt.Errorf("program: uniform %q has invalid kind", d.Name)
		}
		off = (off + align - 1) / align * align
		t.slots[d.Name] = &uniformSlot{kind: d.Kind, offset: off}
		off += size
	}
	// Uniform blocks bind at a 16-byte granularity.
	off = (off + 15) / 16 * 16
	if off == 0 {
		off = 16
	}
	t.block = make([]byte, off)
	return t, nil
}

func (t *uniformTable) lookup(name string, kind UniformKind) (*uniformSlot, error) {
	s, ok := t.slots[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUniform, name)
	}
	if s.kind != kind {
		return nil, fmt.Errorf("%w: %q is %s, got %s", ErrUniformType, name, s.kind, kind)
	}
	return s, nil
}

func (t *uniformTable) setFloat(name string, v float32) error {
	s, err := t.lookup(name, KindFloat)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(t.block[s.offset:], math.Float32bits(v))
	s.set = true
	return nil
}

func (t *uniformTable) setInt(name string, v int32) error {
	s, err := t.lookup(name, KindInt)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(t.block[s.offset:], uint32(v))
	s.set = true
	return nil
}

func (t *uniformTable) setBool(name string, v bool) error {
	s, err := t.lookup(name, KindBool)
	if err != nil {
		return err
	}
	var u uint32
	if v {
		u = 1
	}
	binary.LittleEndian.PutUint32(t.block[s.offset:], u)
	s.set = true
	return nil
}

// setVec fills a vector slot. kind selects the expected arity.
func (t *uniformTable) setVec(name string, kind UniformKind, v []float32) error {
	s, err := t.lookup(name, kind)
	if err != nil {
		return err
	}
	if len(v) != kind.lanes() {
		return fmt.Errorf("%w: %q wants %d components, got %d", ErrUniformType, name, kind.lanes(), len(v))
	}
	for i, f := range v {
		binary.LittleEndian.PutUint32(t.block[s.offset+i*4:], math.Float32bits(f))
	}
	s.set = true
	return nil
}

func (t *uniformTable) setBoolVec(name string, v []bool) error {
	s, err := t.lookup(name, KindBoolVec)
	if err != nil {
		return err
	}
	if len(v) > 4 {
		return fmt.Errorf("%w: %q takes at most 4 components, got %d", ErrUniformType, name, len(v))
	}
	for i := 0; i < 4; i++ {
		var u uint32
		if i < len(v) && v[i] {
			u = 1
		}
		binary.LittleEndian.PutUint32(t.block[s.offset+i*4:], u)
	}
	s.set = true
	return nil
}

// setMat fills a matrix slot from column-major values, padding each column
// to the 16-byte stride.
func (t *uniformTable) setMat(name string, kind UniformKind, v []float32) error {
	s, err := t.lookup(name, kind)
	if err != nil {
		return err
	}
	if len(v) != kind.lanes() {
		return fmt.Errorf("%w: %q wants %d values column-major, got %d", ErrUniformType, name, kind.lanes(), len(v))
	}
	rows := 3
	if kind == KindMat4 {
		rows = 4
	}
	for col := 0; col < len(v)/rows; col++ {
		for row := 0; row < rows; row++ {
			off := s.offset + col*16 + row*4
			binary.LittleEndian.PutUint32(t.block[off:], math.Float32bits(v[col*rows+row]))
		}
	}
	s.set = true
	return nil
}
