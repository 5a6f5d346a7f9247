// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package readback

import (
	"bytes"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/gogpu/vision/backend/sim"
	"github.com/gogpu/vision/gpucore"
	"github.com/gogpu/vision/texture"
)

func fastPoll() Option {
	return WithPollInterval(time.Millisecond, 100*time.Microsecond)
}

func newTestTexture(t *testing.T, d *sim.Device, w, h int) *texture.Texture {
	t.Helper()
	tex, err := texture.New(d, w, h, gpucore.TextureFormatRGBA8)
	if err != nil {
		t.Fatalf("texture.New: %v", err)
	}
	t.Cleanup(tex.Destroy)
	return tex
}

func fill(t *testing.T, tex *texture.Texture, b byte) {
	t.Helper()
	data := make([]byte, tex.ByteSize())
	for i := range data {
		data[i] = b
	}
	if err := tex.Upload(data); err != nil {
		t.Fatalf("Upload: %v", err)
	}
}

// TestSyncRead verifies a blocking sub-rectangle read strips row padding.
func TestSyncRead(t *testing.T) {
	d := sim.New()
	defer d.Close()
	r, err := NewReader(d, fastPoll())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	tex := newTestTexture(t, d, 4, 4)
	pixels := make([]byte, 4*4*4)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	if err := tex.Upload(pixels); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	data, w, h, err := r.Read(tex, gpucore.Rect{X: 1, Y: 1, W: 2, H: 2})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if w != 2 || h != 2 || len(data) != 2*2*4 {
		t.Fatalf("Read = %dx%d, %d bytes; want 2x2, 16 bytes", w, h, len(data))
	}
	// Row 0 of the rect starts at texture pixel (1,1).
	if want := byte((1*4 + 1) * 4); data[0] != want {
		t.Errorf("data[0] = %d, want %d", data[0], want)
	}
	// Row 1 starts at texture pixel (1,2).
	if want := byte((2*4 + 1) * 4); data[8] != want {
		t.Errorf("data[8] = %d, want %d", data[8], want)
	}
}

// TestSyncReadClamps verifies out-of-bounds rectangles clamp to the texture.
func TestSyncReadClamps(t *testing.T) {
	d := sim.New()
	defer d.Close()
	r, err := NewReader(d, fastPoll())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	tex := newTestTexture(t, d, 4, 4)

	data, w, h, err := r.Read(tex, gpucore.Rect{X: 2, Y: 2, W: 100, H: 100})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if w != 2 || h != 2 || len(data) != 16 {
		t.Errorf("clamped read = %dx%d, %d bytes; want 2x2, 16 bytes", w, h, len(data))
	}

	if data, _, _, err := r.Read(tex, gpucore.Rect{X: 10, Y: 10, W: 2, H: 2}); err != nil || len(data) != 0 {
		t.Errorf("fully outside read = %d bytes, %v; want empty, nil", len(data), err)
	}
}

// orderedReads issues m sequential awaited reads against a 2-buffer reader
// and checks each result carries the fill from two requests earlier.
func orderedReads(t *testing.T, r *Reader, tex *texture.Texture, m int) {
	t.Helper()
	for k := 0; k < m; k++ {
		fill(t, tex, byte(k+1))
		res, err := r.ReadAsync(tex, gpucore.Rect{W: 2, H: 2})
		if err != nil {
			t.Fatalf("ReadAsync %d: %v", k, err)
		}
		if k < 2 {
			// Warmup: slots have no prior transfer.
			if len(res.Data) != 0 {
				t.Errorf("read %d = %d bytes, want empty warmup result", k, len(res.Data))
			}
		} else {
			want := byte(k - 2 + 1)
			if len(res.Data) != 2*2*4 {
				t.Fatalf("read %d = %d bytes, want 16", k, len(res.Data))
			}
			if res.Data[0] != want {
				t.Errorf("read %d served fill %d, want %d", k, res.Data[0], want)
			}
			if res.Stale {
				t.Errorf("read %d marked stale", k)
			}
		}
		res.Release()
	}
}

// TestAsyncOrdering verifies M sequential awaited reads return results in
// request order with the expected N-deep latency.
func TestAsyncOrdering(t *testing.T) {
	d := sim.New()
	defer d.Close()
	r, err := NewReader(d, WithBuffers(2), fastPoll())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	orderedReads(t, r, newTestTexture(t, d, 2, 2), 6)
}

// TestAsyncOrderingSingleProc verifies request-order delivery does not
// depend on goroutine scheduling by running the same sequence on one
// processor, where completion goroutines run back to back.
func TestAsyncOrderingSingleProc(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))

	d := sim.New()
	defer d.Close()
	r, err := NewReader(d, WithBuffers(2), fastPoll())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	orderedReads(t, r, newTestTexture(t, d, 2, 2), 8)
}

// TestAsyncOutOfOrderRelease verifies releasing results in reverse order
// delays slot reuse but never reorders which transfer a request serves.
func TestAsyncOutOfOrderRelease(t *testing.T) {
	d := sim.New()
	defer d.Close()
	r, err := NewReader(d, WithBuffers(2), fastPoll())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	tex := newTestTexture(t, d, 2, 2)
	read := func(k int) *Result {
		t.Helper()
		fill(t, tex, byte(k+1))
		res, err := r.ReadAsync(tex, gpucore.Rect{W: 2, H: 2})
		if err != nil {
			t.Fatalf("ReadAsync %d: %v", k, err)
		}
		return res
	}

	r0 := read(0)
	r1 := read(1)
	r1.Release()
	r0.Release()

	r2 := read(2)
	r3 := read(3)
	if len(r2.Data) == 0 || r2.Data[0] != 1 {
		t.Errorf("read 2 served fill %v, want 1", r2.Data)
	}
	if len(r3.Data) == 0 || r3.Data[0] != 2 {
		t.Errorf("read 3 served fill %v, want 2", r3.Data)
	}
	r3.Release()
	r2.Release()

	r4 := read(4)
	r5 := read(5)
	if len(r4.Data) == 0 || r4.Data[0] != 3 {
		t.Errorf("read 4 served fill %v, want 3", r4.Data)
	}
	if len(r5.Data) == 0 || r5.Data[0] != 4 {
		t.Errorf("read 5 served fill %v, want 4", r5.Data)
	}
	r5.Release()
	r4.Release()
}

// TestAsyncDeviceLoss verifies mid-stream loss degrades to stale results
// instead of errors.
func TestAsyncDeviceLoss(t *testing.T) {
	d := sim.New()
	defer d.Close()
	r, err := NewReader(d, WithBuffers(2), fastPoll())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	// Four warm reads guarantee each of the two slots has gathered at
	// least one transfer before the device goes away.
	tex := newTestTexture(t, d, 2, 2)
	var lastValid []byte
	for k := 0; k < 4; k++ {
		fill(t, tex, byte(k+1))
		res, err := r.ReadAsync(tex, gpucore.Rect{W: 2, H: 2})
		if err != nil {
			t.Fatalf("ReadAsync %d: %v", k, err)
		}
		if len(res.Data) > 0 {
			lastValid = bytes.Clone(res.Data)
		}
		res.Release()
	}

	d.LoseDevice()

	for k := 0; k < 2; k++ {
		res, err := r.ReadAsync(tex, gpucore.Rect{W: 2, H: 2})
		if err != nil {
			t.Fatalf("ReadAsync after loss: %v", err)
		}
		if !res.Stale {
			t.Error("result after device loss not marked stale")
		}
		if len(res.Data) != len(lastValid) {
			t.Errorf("stale result = %d bytes, want %d", len(res.Data), len(lastValid))
		}
		res.Release()
	}
}

// TestSyncDeviceLoss verifies the blocking path returns previous data after
// loss.
func TestSyncDeviceLoss(t *testing.T) {
	d := sim.New()
	defer d.Close()
	r, err := NewReader(d, fastPoll())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	tex := newTestTexture(t, d, 2, 2)
	fill(t, tex, 7)
	first, w, h, err := r.Read(tex, gpucore.Rect{W: 2, H: 2})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	d.LoseDevice()

	again, w2, h2, err := r.Read(tex, gpucore.Rect{W: 2, H: 2})
	if err != nil {
		t.Fatalf("Read after loss: %v", err)
	}
	if w2 != w || h2 != h || !bytes.Equal(again, first) {
		t.Error("read after loss did not return previous valid data")
	}
}

// TestFenceTimeout verifies the poll attempt budget fails with a timeout
// error carrying the device state.
func TestFenceTimeout(t *testing.T) {
	d := sim.New(sim.WithFenceLatency(1000))
	defer d.Close()
	r, err := NewReader(d, WithMaxPollAttempts(3), WithPollInterval(100*time.Microsecond, 100*time.Microsecond))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	tex := newTestTexture(t, d, 2, 2)
	_, _, _, err = r.Read(tex, gpucore.Rect{W: 2, H: 2})
	if !errors.Is(err, gpucore.ErrFenceTimeout) {
		t.Fatalf("Read = %v, want ErrFenceTimeout", err)
	}
	var te *gpucore.FenceTimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Read error %T does not expose attempt count", err)
	}
	if te.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", te.Attempts)
	}
}

// TestAsyncSlotStarvation verifies a reader never blocks indefinitely when
// every slot is held unreleased.
func TestAsyncSlotStarvation(t *testing.T) {
	d := sim.New()
	defer d.Close()
	r, err := NewReader(d, WithBuffers(1), WithMaxPollAttempts(2), WithPollInterval(time.Millisecond, time.Millisecond))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	tex := newTestTexture(t, d, 2, 2)
	held, err := r.ReadAsync(tex, gpucore.Rect{W: 2, H: 2})
	if err != nil {
		t.Fatalf("ReadAsync: %v", err)
	}

	if _, err := r.ReadAsync(tex, gpucore.Rect{W: 2, H: 2}); !errors.Is(err, gpucore.ErrFenceTimeout) {
		t.Errorf("ReadAsync with all slots held = %v, want ErrFenceTimeout", err)
	}
	held.Release()
}