// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package readback moves pixel data from GPU textures to host memory,
// synchronously or through a multi-buffered asynchronous pipeline that
// overlaps GPU transfers with host consumption.
package readback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/vision/gpucore"
	"github.com/gogpu/vision/texture"
)

// copyPitchAlign is the row pitch alignment texture-to-buffer copies
// require on WebGPU-class backends.
const copyPitchAlign = 256

// slot pairs one GPU staging buffer and fence with host-side memory.
// Buffers grow monotonically to the largest request seen and never shrink.
type slot struct {
	buf     gpucore.BufferID
	bufSize int
	fence   gpucore.FenceID

	// data holds tightly packed pixels of the last completed transfer.
	data  []byte
	valid int
	w, h  int
	stale bool
	err   error

	// done closes when the slot's in-flight work has finished: the
	// transfer gathered and the result it was serving released. Idle
	// slots hold an already closed channel.
	done chan struct{}

	// pending transfer geometry, applied once the fence signals.
	pendW, pendH, pendPitch, pendRow int
}

// Result is one asynchronous read. Data aliases reader-owned memory: it is
// valid until Release, which must be called to return the slot to the
// pipeline.
type Result struct {
	// Data is tightly packed pixel data from an earlier request on this
	// slot; the first reads of a fresh reader carry no data yet.
	Data []byte

	// Width and Height describe Data's geometry in pixels.
	Width, Height int

	// Stale marks data served after device loss: the last valid contents
	// rather than the requested pixels.
	Stale bool

	release func()
}

// Release returns the underlying staging slot to the reader. Safe to call
// more than once.
func (r *Result) Release() {
	if r.release != nil {
		r.release()
	}
}

// Reader performs GPU to host pixel transfers on one device.
//
// The synchronous path blocks until the fence signals. The asynchronous
// path cycles requests through N staging slots in ring order: request i
// takes slot i mod N, waits for request i-N's transfer on that same slot
// to finish and its result to be released, serves that transfer's pixels,
// and starts its own transfer in the background. Results therefore arrive
// strictly in request order with N-deep latency while the GPU works ahead
// of the host. Device loss degrades both paths to returning previous
// valid data.
type Reader struct {
	dev  gpucore.Device
	opts options

	slots []*slot
	next  int

	syncSlot *slot
	lastSync []byte
	lastW    int
	lastH    int

	mu     sync.Mutex
	closed bool
}

// NewReader creates a reader with its staging slots. All slots start idle
// holding no data, so the first N reads resolve immediately and empty
// while their transfers warm up.
func NewReader(dev gpucore.Device, opts ...Option) (*Reader, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	r := &Reader{
		dev:  dev,
		opts: o,
	}
	for i := 0; i < o.buffers; i++ {
		fence, err := dev.CreateFence()
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("readback: fence: %w", err)
		}
		done := make(chan struct{})
		close(done)
		r.slots = append(r.slots, &slot{fence: fence, done: done})
	}
	fence, err := dev.CreateFence()
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("readback: fence: %w", err)
	}
	r.syncSlot = &slot{fence: fence}
	return r, nil
}

// Read blocks until rect of tex is copied to the host and returns tightly
// packed pixel data. The rectangle is clamped to the texture bounds. After
// device loss Read returns the previous valid data without error.
func (r *Reader) Read(tex *texture.Texture, rect gpucore.Rect) ([]byte, int, int, error) {
	rect = rect.Clamp(tex.Width(), tex.Height())
	if rect.Empty() {
		return nil, 0, 0, nil
	}
	bpp := tex.Format().BytesPerPixel()
	rowBytes := rect.W * bpp
	pitch := alignPitch(rowBytes)

	err := r.transfer(r.syncSlot, tex, rect, pitch)
	if err == nil {
		err = r.waitFence(r.syncSlot.fence)
	}
	if err != nil {
		if errors.Is(err, gpucore.ErrDeviceLost) {
			r.logDegraded("synchronous read after device loss")
			return r.lastSync, r.lastW, r.lastH, nil
		}
		return nil, 0, 0, err
	}

	data, err := r.gather(r.syncSlot, rect.H, pitch, rowBytes, nil)
	if err != nil {
		if errors.Is(err, gpucore.ErrDeviceLost) {
			r.logDegraded("synchronous read after device loss")
			return r.lastSync, r.lastW, r.lastH, nil
		}
		return nil, 0, 0, err
	}
	r.lastSync, r.lastW, r.lastH = data, rect.W, rect.H
	return data, rect.W, rect.H, nil
}

// ReadAsync starts a transfer of rect and returns the pixels of the
// previous transfer on the request's ring slot. Results arrive strictly
// in request order no matter when transfers complete or in which order
// results are released; at most N transfers are in flight, and a call
// never blocks longer than one fence-timeout period waiting for its slot.
// The caller must Release the result.
//
// After device loss the returned results carry the last valid data, marked
// Stale, and no error.
func (r *Reader) ReadAsync(tex *texture.Texture, rect gpucore.Rect) (*Result, error) {
	s := r.slots[r.next]
	select {
	case <-s.done:
	case <-time.After(r.opts.pollBudget()):
		return nil, &gpucore.FenceTimeoutError{
			Attempts:  r.opts.maxPollAttempts,
			DeviceErr: r.dev.LastError(),
		}
	}
	r.next = (r.next + 1) % len(r.slots)

	if s.err != nil {
		err := s.err
		s.err = nil
		return nil, err
	}

	res := &Result{
		Data:   s.data[:s.valid],
		Width:  s.w,
		Height: s.h,
		Stale:  s.stale,
	}
	released := make(chan struct{})
	var once sync.Once
	res.release = func() { once.Do(func() { close(released) }) }

	rect = rect.Clamp(tex.Width(), tex.Height())
	if rect.Empty() {
		// Nothing to transfer; the slot frees up as soon as the caller
		// releases the served data.
		s.done = releaseOnly(released)
		return res, nil
	}

	bpp := tex.Format().BytesPerPixel()
	rowBytes := rect.W * bpp
	pitch := alignPitch(rowBytes)
	if err := r.transfer(s, tex, rect, pitch); err != nil {
		if errors.Is(err, gpucore.ErrDeviceLost) {
			r.logDegraded("asynchronous read after device loss")
			s.stale = true
			res.Stale = true
			s.done = releaseOnly(released)
			return res, nil
		}
		// The slot keeps its old contents and its done channel stays
		// closed, so the next request finds it idle.
		return nil, err
	}
	s.pendW, s.pendH, s.pendPitch, s.pendRow = rect.W, rect.H, pitch, rowBytes

	// Completion runs off-thread: wait for the fence, then for the caller
	// to release the previous contents, then overwrite the staging memory.
	// The slot is handed back by closing its own done channel, so the
	// request N calls later waits on this transfer and no other.
	done := make(chan struct{})
	s.done = done
	go r.complete(s, released, done)
	return res, nil
}

// releaseOnly returns a channel that closes once the result is released,
// for requests that start no transfer of their own.
func releaseOnly(released <-chan struct{}) chan struct{} {
	done := make(chan struct{})
	go func() {
		<-released
		close(done)
	}()
	return done
}

// complete finishes one async transfer and hands the slot back.
func (r *Reader) complete(s *slot, released <-chan struct{}, done chan<- struct{}) {
	err := r.waitFence(s.fence)
	<-released
	if err == nil {
		_, err = r.gather(s, s.pendH, s.pendPitch, s.pendRow, s)
	}
	switch {
	case err == nil:
		s.valid = s.pendH * s.pendRow
		s.w, s.h = s.pendW, s.pendH
		s.stale = false
	case errors.Is(err, gpucore.ErrDeviceLost):
		// Keep the previous contents; consumers see stale data.
		r.logDegraded("asynchronous completion after device loss")
		s.stale = true
	default:
		s.err = err
	}
	close(done)
}

// transfer records and submits the texture-to-buffer copy for one slot,
// growing the staging buffer when the request outgrows it.
func (r *Reader) transfer(s *slot, tex *texture.Texture, rect gpucore.Rect, pitch int) error {
	need := pitch * rect.H
	if s.buf == gpucore.InvalidID || s.bufSize < need {
		if s.buf != gpucore.InvalidID {
			r.dev.DestroyBuffer(s.buf)
		}
		buf, err := r.dev.CreateBuffer(need, gpucore.BufferUsageCopyDst|gpucore.BufferUsageMapRead)
		if err != nil {
			return fmt.Errorf("readback: staging buffer: %w", err)
		}
		s.buf = buf
		s.bufSize = need
	}
	if err := r.dev.CopyTextureToBuffer(tex.ID(), rect, s.buf, uint32(pitch)); err != nil {
		return fmt.Errorf("readback: copy: %w", err)
	}
	if err := r.dev.SubmitWithFence(s.fence); err != nil {
		return err
	}
	return nil
}

// gather reads the padded rows from the slot's GPU buffer and packs them
// tightly. When dst is non-nil the slot's own staging memory is reused.
func (r *Reader) gather(s *slot, rows, pitch, rowBytes int, dst *slot) ([]byte, error) {
	padded := make([]byte, pitch*rows)
	if err := r.dev.ReadBuffer(s.buf, 0, padded); err != nil {
		return nil, err
	}
	tight := rows * rowBytes
	var out []byte
	if dst != nil {
		if cap(dst.data) < tight {
			dst.data = make([]byte, tight)
		}
		out = dst.data[:tight]
		dst.data = out
	} else {
		out = make([]byte, tight)
	}
	for y := 0; y < rows; y++ {
		copy(out[y*rowBytes:(y+1)*rowBytes], padded[y*pitch:y*pitch+rowBytes])
	}
	return out, nil
}

// waitFence polls with a shrinking interval: coarse at first, finer as the
// transfer nears completion, up to the attempt budget.
func (r *Reader) waitFence(fence gpucore.FenceID) error {
	interval := r.opts.pollStart
	for attempt := 1; attempt <= r.opts.maxPollAttempts; attempt++ {
		ok, err := r.dev.PollFence(fence)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		time.Sleep(interval)
		if interval > r.opts.pollMin {
			interval /= 2
			if interval < r.opts.pollMin {
				interval = r.opts.pollMin
			}
		}
	}
	return &gpucore.FenceTimeoutError{
		Attempts:  r.opts.maxPollAttempts,
		DeviceErr: r.dev.LastError(),
	}
}

func (r *Reader) logDegraded(msg string) {
	if r.opts.log != nil {
		r.opts.log.Warn("serving stale data", "reason", msg)
	}
}

// Close destroys the reader's GPU resources. In-flight async reads must be
// released first.
func (r *Reader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, s := range r.slots {
		r.destroySlot(s)
	}
	if r.syncSlot != nil {
		r.destroySlot(r.syncSlot)
	}
}

func (r *Reader) destroySlot(s *slot) {
	if s.buf != gpucore.InvalidID {
		r.dev.DestroyBuffer(s.buf)
		s.buf = gpucore.InvalidID
	}
	if s.fence != gpucore.InvalidID {
		r.dev.DestroyFence(s.fence)
		s.fence = gpucore.InvalidID
	}
}

func alignPitch(rowBytes int) int {
	return (rowBytes + copyPitchAlign - 1) / copyPitchAlign * copyPitchAlign
}
