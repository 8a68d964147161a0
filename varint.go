// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamwire

import "encoding/binary"

// Rolling-uint varint: a non-negative integer is encoded as the smallest of
// four forms keyed by its magnitude and a one-byte lead:
//
//	v <  0xFD                 -> 1 byte:  v
//	v <= 0xFFFF                -> 3 bytes: 0xFD, v as little-endian u16
//	v <= 0xFFFFFFFF             -> 5 bytes: 0xFE, v as little-endian u32
//	otherwise (v <= 2^64-1)     -> 9 bytes: 0xFF, v as little-endian u64
//
// Decoding accepts any lead byte regardless of whether a shorter form would
// have fit (robustness); encoding always picks the canonical shortest form.
const (
	varintLead16 = 0xFD
	varintLead32 = 0xFE
	varintLead64 = 0xFF
)

// varintSize returns the number of bytes the canonical encoding of v occupies.
func varintSize(v uint64) int {
	switch {
	case v < varintLead16:
		return 1
	case v <= 0xFFFF:
		return 3
	case v <= 0xFFFFFFFF:
		return 5
	default:
		return 9
	}
}

// putVarint writes the canonical encoding of v into buf, which must have at
// least varintSize(v) bytes, and returns the number of bytes written.
func putVarint(buf []byte, v uint64) int {
	switch {
	case v < varintLead16:
		buf[0] = byte(v)
		return 1
	case v <= 0xFFFF:
		buf[0] = varintLead16
		binary.LittleEndian.PutUint16(buf[1:3], uint16(v))
		return 3
	case v <= 0xFFFFFFFF:
		buf[0] = varintLead32
		binary.LittleEndian.PutUint32(buf[1:5], uint32(v))
		return 5
	default:
		buf[0] = varintLead64
		binary.LittleEndian.PutUint64(buf[1:9], v)
		return 9
	}
}

// takeVarint decodes a canonical or non-canonical varint from the head of
// buf and returns the value and the number of bytes consumed. It reports
// ErrOutOfData if buf is too short for the indicated form.
func takeVarint(buf []byte) (uint64, int, error) {
	if len(buf) < 1 {
		return 0, 0, ErrOutOfData
	}
	switch lead := buf[0]; lead {
	case varintLead16:
		if len(buf) < 3 {
			return 0, 0, ErrOutOfData
		}
		return uint64(binary.LittleEndian.Uint16(buf[1:3])), 3, nil
	case varintLead32:
		if len(buf) < 5 {
			return 0, 0, ErrOutOfData
		}
		return uint64(binary.LittleEndian.Uint32(buf[1:5])), 5, nil
	case varintLead64:
		if len(buf) < 9 {
			return 0, 0, ErrOutOfData
		}
		return binary.LittleEndian.Uint64(buf[1:9]), 9, nil
	default:
		return uint64(lead), 1, nil
	}
}

// zigzagEncode maps a signed integer onto a non-negative one, interleaving
// sign into the low bit.
//
// Known limitation preserved from the source spec: the interleaving is
// carried out at 32-bit width. Magnitudes |v| >= 2^31 round-trip
// incorrectly; this is a documented quirk (see spec.md §9), not a bug to
// silently fix.
func zigzagEncode(v int64) uint64 {
	v32 := int32(v)
	return uint64(uint32((v32 << 1) ^ (v32 >> 31)))
}

// zigzagDecode inverts zigzagEncode, at the same documented 32-bit width.
func zigzagDecode(z uint64) int64 {
	z32 := uint32(z)
	return int64(int32(z32>>1) ^ -int32(z32&1))
}
