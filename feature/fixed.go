// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package feature

import (
	"github.com/chewxy/math32"

	"github.com/gogpu/vision/shader"
)

// Positions are 16-bit unsigned fixed point with shader.FixBits fractional
// bits. 0xFFFF in both components is the terminator sentinel, so the largest
// encodable position is one step below it.
const (
	terminatorCoord = 0xFFFF
	maxFixed        = terminatorCoord - 1
)

// MaxPosition is the largest position representable in a record.
const MaxPosition = float32(maxFixed) / shader.FixResolution

// fixedFromFloat encodes a position coordinate, clamping to the encodable
// range so no payload coordinate collides with the terminator.
func fixedFromFloat(v float32) uint16 {
	if v <= 0 {
		return 0
	}
	f := math32.Round(v * shader.FixResolution)
	if f >= maxFixed {
		return maxFixed
	}
	return uint16(f)
}

// fixedToFloat decodes a position coordinate.
func fixedToFloat(u uint16) float32 {
	return float32(u) / shader.FixResolution
}
