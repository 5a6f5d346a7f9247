// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package feature

import (
	"encoding/binary"
	"fmt"
)

// Encode packs records, in the given priority order, into the pixel data of
// a side x side RGBA8 texture. Records marked Discarded occupy their slot
// with a discarded header so later records keep their positions. A
// terminator record follows the last record when space remains; bytes past
// the terminator are unspecified and decoders never read them. Fails when
// the records do not fit.
func Encode(records []Record, layout Layout, side int) ([]byte, error) {
	rb := layout.RecordBytes()
	total := side * side * pixelBytes
	if len(records)*rb > total {
		return nil, fmt.Errorf("feature: %d records exceed texture capacity %d", len(records), total/rb)
	}
	data := make([]byte, total)
	off := 0
	for i := range records {
		if err := layout.validate(&records[i]); err != nil {
			return nil, err
		}
		if records[i].Discarded() {
			putDiscarded(data[off:], &records[i])
		} else {
			putRecord(data[off:], &records[i])
		}
		off += rb
	}
	if off+rb <= total {
		putTerminator(data[off:])
	}
	return data, nil
}

// Decode walks records from index 0, skipping discarded records, until the
// terminator or the end of the data. Record order is preserved.
func Decode(data []byte, layout Layout) ([]Record, error) {
	rb := layout.RecordBytes()
	var out []Record
	for off := 0; off+rb <= len(data); off += rb {
		h := data[off:]
		if isTerminator(h) {
			return out, nil
		}
		if isDiscarded(h) {
			continue
		}
		out = append(out, getRecord(h, layout))
	}
	return out, nil
}

// NthValid returns the n-th (0-based) non-discarded record. This mirrors the
// scan GPU kernels use to locate records for compaction and re-encoding.
func NthValid(data []byte, layout Layout, n int) (Record, bool) {
	rb := layout.RecordBytes()
	for off := 0; off+rb <= len(data); off += rb {
		h := data[off:]
		if isTerminator(h) {
			return Record{}, false
		}
		if isDiscarded(h) {
			continue
		}
		if n == 0 {
			return getRecord(h, layout), true
		}
		n--
	}
	return Record{}, false
}

func putRecord(b []byte, r *Record) {
	binary.LittleEndian.PutUint16(b[0:], fixedFromFloat(r.X))
	binary.LittleEndian.PutUint16(b[2:], fixedFromFloat(r.Y))
	b[4] = r.LOD
	b[5] = r.Orientation
	binary.LittleEndian.PutUint16(b[6:], float16bits(r.Score))
	copy(b[headerBytes:], r.Extra)
	copy(b[headerBytes+len(r.Extra):], r.Descriptor)
}

func getRecord(b []byte, layout Layout) Record {
	r := Record{
		X:           fixedToFloat(binary.LittleEndian.Uint16(b[0:])),
		Y:           fixedToFloat(binary.LittleEndian.Uint16(b[2:])),
		LOD:         b[4],
		Orientation: b[5],
		Score:       float16frombits(binary.LittleEndian.Uint16(b[6:])),
	}
	if layout.ExtraBytes > 0 {
		r.Extra = append([]byte(nil), b[headerBytes:headerBytes+layout.ExtraBytes]...)
	}
	if layout.DescriptorBytes > 0 {
		start := headerBytes + layout.ExtraBytes
		r.Descriptor = append([]byte(nil), b[start:start+layout.DescriptorBytes]...)
	}
	return r
}

// putDiscarded writes a discarded slot: a zero header with the payload
// bytes kept in place.
func putDiscarded(b []byte, r *Record) {
	for i := 0; i < headerBytes; i++ {
		b[i] = 0
	}
	copy(b[headerBytes:], r.Extra)
	copy(b[headerBytes+len(r.Extra):], r.Descriptor)
}

func putTerminator(b []byte) {
	binary.LittleEndian.PutUint16(b[0:], terminatorCoord)
	binary.LittleEndian.PutUint16(b[2:], terminatorCoord)
}

func isTerminator(b []byte) bool {
	return binary.LittleEndian.Uint16(b[0:]) == terminatorCoord &&
		binary.LittleEndian.Uint16(b[2:]) == terminatorCoord
}

// isDiscarded reports an all-zero header, the form putDiscarded writes.
// Discarded slots keep their payload bytes; only the header is cleared.
func isDiscarded(b []byte) bool {
	for _, v := range b[:headerBytes] {
		if v != 0 {
			return false
		}
	}
	return true
}
