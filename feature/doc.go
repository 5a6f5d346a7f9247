// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package feature defines the binary record layout that packs sparse
// feature lists into RGBA8 textures.
//
// One record is a fixed 8-byte header (16-bit fixed-point x and y position,
// level-of-detail byte, orientation byte, 16-bit half-float score) followed
// by layout-defined extra bytes and descriptor bytes, padded to a multiple
// of 4 bytes so records tile exactly onto 4-byte texture pixels. A record
// whose position is 0xFFFF in both components terminates the list; an
// all-zero header marks a discarded record that decoders skip.
package feature
