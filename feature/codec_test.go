// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package feature

import (
	"bytes"
	"testing"

	"github.com/chewxy/math32"
)

// TestRecordBytesPadded verifies every layout pads to a 4-byte multiple.
func TestRecordBytesPadded(t *testing.T) {
	cases := []struct {
		layout Layout
		want   int
	}{
		{Layout{}, 8},
		{Layout{ExtraBytes: 1}, 12},
		{Layout{ExtraBytes: 4}, 12},
		{Layout{ExtraBytes: 2, DescriptorBytes: 32}, 44},
		{Layout{DescriptorBytes: 64}, 72},
	}
	for _, c := range cases {
		if got := c.layout.RecordBytes(); got != c.want {
			t.Errorf("RecordBytes(%+v) = %d, want %d", c.layout, got, c.want)
		}
		if c.layout.RecordBytes()%4 != 0 {
			t.Errorf("RecordBytes(%+v) not a pixel multiple", c.layout)
		}
	}
}

// TestEncoderLength verifies the square side covers records plus terminator.
func TestEncoderLength(t *testing.T) {
	layout := Layout{DescriptorBytes: 32}
	for _, count := range []int{0, 1, 5, 100, 1000} {
		side := layout.EncoderLength(count)
		if side*side < (count+1)*layout.RecordPixels() {
			t.Errorf("EncoderLength(%d) = %d, too small", count, side)
		}
	}
}

// TestEncodeEmpty verifies zero records yield a leading terminator and
// decode to an empty list.
func TestEncodeEmpty(t *testing.T) {
	layout := Layout{}
	data, err := Encode(nil, layout, 8)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !isTerminator(data) {
		t.Error("first record is not the terminator")
	}
	recs, err := Decode(data, layout)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("Decode returned %d records, want 0", len(recs))
	}
}

// TestRoundTrip verifies K records survive encode/decode in order within
// the fixed-point and half-float precision bounds.
func TestRoundTrip(t *testing.T) {
	layout := Layout{ExtraBytes: 2, DescriptorBytes: 8}
	records := []Record{
		{X: 10.5, Y: 20.25, LOD: 1, Orientation: 32, Score: 0.75,
			Extra: []byte{1, 2}, Descriptor: bytes.Repeat([]byte{0xAB}, 8)},
		{X: 0.125, Y: 4095.875, LOD: 7, Orientation: 255, Score: 123.5,
			Extra: []byte{3, 4}, Descriptor: bytes.Repeat([]byte{0xCD}, 8)},
		{X: 640.1, Y: 480.9, LOD: 0, Orientation: 0, Score: 0.001,
			Extra: []byte{5, 6}, Descriptor: bytes.Repeat([]byte{0xEF}, 8)},
	}

	side := layout.EncoderLength(len(records))
	data, err := Encode(records, layout, side)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data, layout)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("Decode returned %d records, want %d", len(got), len(records))
	}

	const posTol = 1.0 / 16 // half a fixed-point step
	for i, want := range records {
		r := got[i]
		if math32.Abs(r.X-want.X) > posTol || math32.Abs(r.Y-want.Y) > posTol {
			t.Errorf("record %d position = (%g, %g), want (%g, %g)", i, r.X, r.Y, want.X, want.Y)
		}
		if r.LOD != want.LOD || r.Orientation != want.Orientation {
			t.Errorf("record %d LOD/orientation = %d/%d, want %d/%d",
				i, r.LOD, r.Orientation, want.LOD, want.Orientation)
		}
		// Half floats carry 11 significant bits.
		if tol := math32.Abs(want.Score) / 1024; math32.Abs(r.Score-want.Score) > tol+1e-6 {
			t.Errorf("record %d score = %g, want %g", i, r.Score, want.Score)
		}
		if !bytes.Equal(r.Extra, want.Extra) || !bytes.Equal(r.Descriptor, want.Descriptor) {
			t.Errorf("record %d payload mismatch", i)
		}
	}
}

// TestDecodeSkipsDiscarded verifies all-zero headers are skipped and NthValid
// indexes only live records.
func TestDecodeSkipsDiscarded(t *testing.T) {
	layout := Layout{}
	records := []Record{
		{X: 1, Y: 1, Score: 1},
		{X: 2, Y: 2, Score: 2},
		{X: 3, Y: 3, Score: 3},
	}
	data, err := Encode(records, layout, 8)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Discard the middle record by zeroing its header.
	rb := layout.RecordBytes()
	for i := 0; i < headerBytes; i++ {
		data[rb+i] = 0
	}

	got, err := Decode(data, layout)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Decode returned %d records, want 2", len(got))
	}
	if got[0].X != 1 || got[1].X != 3 {
		t.Errorf("Decode order = %g, %g, want 1, 3", got[0].X, got[1].X)
	}

	second, ok := NthValid(data, layout, 1)
	if !ok || second.X != 3 {
		t.Errorf("NthValid(1) = (%+v, %v), want record at x=3", second, ok)
	}
	if _, ok := NthValid(data, layout, 2); ok {
		t.Error("NthValid(2) found a record past the terminator")
	}
}

// TestEncodeDiscarded verifies records marked with DiscardedScore encode as
// discarded slots that hold their position and payload but decode as absent.
func TestEncodeDiscarded(t *testing.T) {
	layout := Layout{ExtraBytes: 2}
	records := []Record{
		{X: 1, Y: 1, Score: 1, Extra: []byte{0x11, 0x11}},
		{X: 2, Y: 2, Score: DiscardedScore, Extra: []byte{0x22, 0x22}},
		{X: 3, Y: 3, Score: 3, Extra: []byte{0x33, 0x33}},
	}
	if !records[1].Discarded() || records[0].Discarded() {
		t.Fatal("Discarded does not follow DiscardedScore")
	}

	data, err := Encode(records, layout, 8)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	rb := layout.RecordBytes()
	if !isDiscarded(data[rb:]) {
		t.Error("discarded record did not encode a discarded header")
	}
	if !bytes.Equal(data[rb+headerBytes:rb+headerBytes+2], []byte{0x22, 0x22}) {
		t.Error("discarded slot lost its payload bytes")
	}

	got, err := Decode(data, layout)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 2 || got[0].X != 1 || got[1].X != 3 {
		t.Fatalf("Decode = %+v, want records at x=1, x=3", got)
	}
	second, ok := NthValid(data, layout, 1)
	if !ok || second.X != 3 {
		t.Errorf("NthValid(1) = (%+v, %v), want record at x=3", second, ok)
	}
}

// TestEncodeOverflow verifies records beyond texture capacity fail.
func TestEncodeOverflow(t *testing.T) {
	layout := Layout{DescriptorBytes: 56} // 16 pixels per record
	records := make([]Record, 5)
	if _, err := Encode(records, layout, 8); err == nil {
		t.Error("Encode accepted records past capacity")
	}
}

// TestPositionClamp verifies positions clamp below the terminator sentinel.
func TestPositionClamp(t *testing.T) {
	if enc := fixedFromFloat(1e9); enc == terminatorCoord {
		t.Error("clamped position collides with terminator")
	}
	if enc := fixedFromFloat(-5); enc != 0 {
		t.Errorf("negative position encoded to %d, want 0", enc)
	}
	if got := fixedToFloat(fixedFromFloat(MaxPosition)); got != MaxPosition {
		t.Errorf("MaxPosition round trip = %g, want %g", got, MaxPosition)
	}
}

// TestFloat16RoundTrip verifies exactly representable values survive.
func TestFloat16RoundTrip(t *testing.T) {
	for _, v := range []float32{0, 1, -1, 0.5, 2048, 0.000061035156, -0.25, 65504} {
		if got := float16frombits(float16bits(v)); got != v {
			t.Errorf("float16 round trip of %g = %g", v, got)
		}
	}
	if got := float16frombits(float16bits(1e30)); !math32.IsInf(got, 1) {
		t.Errorf("overflow = %g, want +Inf", got)
	}
}
