// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package feature

import (
	"fmt"

	"github.com/chewxy/math32"
)

// headerBytes is the fixed record header size: 2x2 position bytes, one
// level-of-detail byte, one orientation byte, two score bytes.
const headerBytes = 8

// pixelBytes is the size of one RGBA8 texture pixel.
const pixelBytes = 4

// DiscardedScore marks a record as discarded: Encode writes such records
// as discarded slots and Decode skips them. It sorts below every valid
// detector response.
const DiscardedScore = float32(-1)

// Record is one detected feature.
type Record struct {
	// X, Y is the position in pixels. Encoded as 16-bit fixed point with
	// 3 fractional bits; values are clamped to [0, MaxPosition].
	X, Y float32

	// LOD is the pyramid level-of-detail the feature was found at.
	LOD uint8

	// Orientation is the quantized feature orientation.
	Orientation uint8

	// Score is the detector response, stored as a half float.
	Score float32

	// Extra holds layout-defined algorithm bytes, Descriptor the feature
	// descriptor. Lengths must match the Layout used for encoding.
	Extra      []byte
	Descriptor []byte
}

// Discarded reports whether the record is marked discarded, which makes
// Encode emit a discarded slot in its place.
func (r *Record) Discarded() bool {
	return r.Score <= DiscardedScore
}

// Layout fixes the variable-length portion of a record.
type Layout struct {
	// ExtraBytes is the length of the per-record extra section.
	ExtraBytes int

	// DescriptorBytes is the length of the descriptor section.
	DescriptorBytes int
}

// RecordBytes returns the full record size, padded to a pixel multiple.
func (l Layout) RecordBytes() int {
	n := headerBytes + l.ExtraBytes + l.DescriptorBytes
	return (n + pixelBytes - 1) / pixelBytes * pixelBytes
}

// RecordPixels returns the number of texture pixels one record occupies.
func (l Layout) RecordPixels() int {
	return l.RecordBytes() / pixelBytes
}

// Capacity returns how many records fit in a side x side texture, reserving
// room for the terminator.
func (l Layout) Capacity(side int) int {
	n := side * side / l.RecordPixels()
	if n == 0 {
		return 0
	}
	return n - 1
}

// EncoderLength returns the side of the smallest square texture holding
// count records plus the terminator.
func (l Layout) EncoderLength(count int) int {
	pixels := (count + 1) * l.RecordPixels()
	return int(math32.Ceil(math32.Sqrt(float32(pixels))))
}

// validate checks a record against the layout.
func (l Layout) validate(r *Record) error {
	if len(r.Extra) != l.ExtraBytes {
		return fmt.Errorf("feature: record has %d extra bytes, layout wants %d", len(r.Extra), l.ExtraBytes)
	}
	if len(r.Descriptor) != l.DescriptorBytes {
		return fmt.Errorf("feature: record has %d descriptor bytes, layout wants %d", len(r.Descriptor), l.DescriptorBytes)
	}
	return nil
}
