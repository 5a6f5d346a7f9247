// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gpucore

import (
	"errors"
	"testing"
)

// TestTextureFormatBytesPerPixel verifies pixel sizes per format.
func TestTextureFormatBytesPerPixel(t *testing.T) {
	cases := []struct {
		format TextureFormat
		want   int
	}{
		{TextureFormatRGBA8, 4},
		{TextureFormatR8, 1},
		{TextureFormatR32F, 4},
		{TextureFormatRGBA32F, 16},
	}
	for _, c := range cases {
		if got := c.format.BytesPerPixel(); got != c.want {
			t.Errorf("%v.BytesPerPixel() = %d, want %d", c.format, got, c.want)
		}
	}
}

// TestRectClamp verifies rectangle clamping against texture bounds.
func TestRectClamp(t *testing.T) {
	cases := []struct {
		name string
		in   Rect
		want Rect
	}{
		{"inside", Rect{2, 3, 4, 5}, Rect{2, 3, 4, 5}},
		{"negative origin", Rect{-2, -3, 10, 10}, Rect{0, 0, 8, 7}},
		{"overflow", Rect{8, 8, 10, 10}, Rect{8, 8, 8, 8}},
		{"fully outside", Rect{100, 100, 4, 4}, Rect{16, 16, 0, 0}},
		{"zero size", Rect{4, 4, 0, 0}, Rect{4, 4, 0, 0}},
	}
	for _, c := range cases {
		got := c.in.Clamp(16, 16)
		if got != c.want {
			t.Errorf("%s: Clamp(16,16) = %+v, want %+v", c.name, got, c.want)
		}
	}
}

// TestRectEmpty verifies Empty for degenerate rectangles.
func TestRectEmpty(t *testing.T) {
	if (Rect{0, 0, 1, 1}).Empty() {
		t.Error("1x1 rect should not be empty")
	}
	if !(Rect{0, 0, 0, 5}).Empty() {
		t.Error("zero-width rect should be empty")
	}
	if !(Rect{0, 0, 5, -1}).Empty() {
		t.Error("negative-height rect should be empty")
	}
}

// TestFenceTimeoutError verifies wrapping of the sentinel and device error.
func TestFenceTimeoutError(t *testing.T) {
	devErr := errors.New("out of memory")
	err := &FenceTimeoutError{Attempts: 12, DeviceErr: devErr}

	if !errors.Is(err, ErrFenceTimeout) {
		t.Error("FenceTimeoutError should match ErrFenceTimeout")
	}
	msg := err.Error()
	if msg == "" {
		t.Fatal("empty error message")
	}
	bare := &FenceTimeoutError{Attempts: 3}
	if bare.Error() == msg {
		t.Error("messages with and without device error should differ")
	}
}
