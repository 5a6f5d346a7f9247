// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package feature

import "math"

// float16bits converts f to IEEE 754 binary16, rounding to nearest even.
// Values over the binary16 range become infinity.
func float16bits(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23&0xFF) - 127
	mant := bits & 0x7FFFFF

	switch {
	case exp == 128: // inf or NaN
		if mant != 0 {
			return sign | 0x7E00
		}
		return sign | 0x7C00
	case exp > 15: // overflow
		return sign | 0x7C00
	case exp >= -14: // normal
		// Round the 23-bit mantissa to 10 bits, nearest even.
		m := mant | 0x800000
		shift := uint32(13)
		round := m & ((1 << shift) - 1)
		m >>= shift
		half := uint32(1) << (shift - 1)
		if round > half || (round == half && m&1 == 1) {
			m++
		}
		// Mantissa carry bumps the exponent; m loses its implicit bit below.
		e := uint32(exp+15) + (m >> 11)
		if e >= 31 {
			return sign | 0x7C00
		}
		return sign | uint16(e<<10) | uint16(m&0x3FF)
	case exp >= -24: // subnormal
		m := mant | 0x800000
		shift := uint32(13 + (-14 - exp))
		round := m & ((1 << shift) - 1)
		m >>= shift
		half := uint32(1) << (shift - 1)
		if round > half || (round == half && m&1 == 1) {
			m++
		}
		return sign | uint16(m)
	default: // underflow to zero
		return sign
	}
}

// float16frombits converts IEEE 754 binary16 bits to float32.
func float16frombits(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h >> 10 & 0x1F)
	mant := uint32(h & 0x3FF)

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal: normalize into float32.
		e := uint32(127 - 15 + 1)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x3FF
		return math.Float32frombits(sign | e<<23 | mant<<13)
	case 31:
		return math.Float32frombits(sign | 0xFF<<23 | mant<<13)
	default:
		return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
	}
}
