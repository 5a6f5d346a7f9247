// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package sim

import (
	"errors"
	"testing"

	"github.com/gogpu/vision/gpucore"
)

// TestBufferRoundTrip verifies write-then-read on a simulated buffer.
func TestBufferRoundTrip(t *testing.T) {
	d := New()
	defer d.Close()

	buf, err := d.CreateBuffer(16, gpucore.BufferUsageCopyDst|gpucore.BufferUsageMapRead)
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	d.WriteBuffer(buf, 4, []byte{1, 2, 3, 4})

	got := make([]byte, 4)
	if err := d.ReadBuffer(buf, 4, got); err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	want := []byte{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d = %d, want %d", i, got[i], want[i])
		}
	}
}

// TestCopyTextureToBufferExecutesOnSubmit verifies deferred copy execution.
func TestCopyTextureToBufferExecutesOnSubmit(t *testing.T) {
	d := New()
	defer d.Close()

	tex, err := d.CreateTexture(4, 4, gpucore.TextureFormatRGBA8)
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	pixels := make([]byte, 4*4*4)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	d.WriteTexture(tex, pixels)

	buf, err := d.CreateBuffer(2*2*4, gpucore.BufferUsageCopyDst|gpucore.BufferUsageMapRead)
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}

	rect := gpucore.Rect{X: 1, Y: 1, W: 2, H: 2}
	if err := d.CopyTextureToBuffer(tex, rect, buf, 8); err != nil {
		t.Fatalf("CopyTextureToBuffer: %v", err)
	}

	// Before submit the buffer must still be zero.
	got := make([]byte, 8)
	if err := d.ReadBuffer(buf, 0, got); err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	for _, b := range got {
		if b != 0 {
			t.Fatal("copy executed before Submit")
		}
	}

	d.Submit()
	full := make([]byte, 16)
	if err := d.ReadBuffer(buf, 0, full); err != nil {
		t.Fatalf("ReadBuffer after submit: %v", err)
	}
	// First pixel of the rect is texture pixel (1,1) = byte offset (1*4+1)*4.
	wantFirst := byte((1*4 + 1) * 4)
	if full[0] != wantFirst {
		t.Errorf("first copied byte = %d, want %d", full[0], wantFirst)
	}
}

// TestFenceLatency verifies fences stay unsignaled for the configured polls.
func TestFenceLatency(t *testing.T) {
	d := New(WithFenceLatency(3))
	defer d.Close()

	fence, err := d.CreateFence()
	if err != nil {
		t.Fatalf("CreateFence: %v", err)
	}
	defer d.DestroyFence(fence)

	// Unsubmitted fence never signals.
	if ok, err := d.PollFence(fence); err != nil || ok {
		t.Fatalf("PollFence before submit = (%v, %v), want (false, nil)", ok, err)
	}

	if err := d.SubmitWithFence(fence); err != nil {
		t.Fatalf("SubmitWithFence: %v", err)
	}

	signaled := 0
	for i := 0; i < 5; i++ {
		ok, err := d.PollFence(fence)
		if err != nil {
			t.Fatalf("PollFence: %v", err)
		}
		if ok {
			signaled = i + 1
			break
		}
	}
	if signaled != 3 {
		t.Errorf("fence signaled on poll %d, want 3", signaled)
	}
}

// TestDeviceLoss verifies post-loss behavior of submits and polls.
func TestDeviceLoss(t *testing.T) {
	d := New()
	defer d.Close()

	fence, err := d.CreateFence()
	if err != nil {
		t.Fatalf("CreateFence: %v", err)
	}

	d.LoseDevice()

	if !d.Lost() {
		t.Error("Lost() = false after LoseDevice")
	}
	if err := d.SubmitWithFence(fence); !errors.Is(err, gpucore.ErrDeviceLost) {
		t.Errorf("SubmitWithFence after loss = %v, want ErrDeviceLost", err)
	}
	if _, err := d.PollFence(fence); !errors.Is(err, gpucore.ErrDeviceLost) {
		t.Errorf("PollFence after loss = %v, want ErrDeviceLost", err)
	}
	if d.LastError() == nil {
		t.Error("LastError() = nil after loss")
	}
}

// TestDispatchCount verifies compute dispatches are recorded.
func TestDispatchCount(t *testing.T) {
	d := New()
	defer d.Close()

	pass := d.BeginComputePass()
	pass.Dispatch(4, 4, 1)
	pass.Dispatch(1, 1, 1)
	pass.End()
	pass.Dispatch(9, 9, 9) // after End: ignored

	if got := d.DispatchCount(); got != 2 {
		t.Errorf("DispatchCount() = %d, want 2", got)
	}
}
