// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamwire

import "testing"

func TestVarintCanonicalSize(t *testing.T) {
	cases := []struct {
		v    uint64
		size int
	}{
		{0, 1},
		{252, 1},
		{253, 3},
		{0xFFFF, 3},
		{0x10000, 5},
		{0xFFFFFFFF, 5},
		{0x100000000, 9},
		{^uint64(0), 9},
	}
	for _, c := range cases {
		if got := varintSize(c.v); got != c.size {
			t.Fatalf("varintSize(%d)=%d want %d", c.v, got, c.size)
		}
		buf := make([]byte, c.size)
		n := putVarint(buf, c.v)
		if n != c.size {
			t.Fatalf("putVarint(%d) wrote %d bytes want %d", c.v, n, c.size)
		}
		got, consumed, err := takeVarint(buf)
		if err != nil {
			t.Fatalf("takeVarint(%d): %v", c.v, err)
		}
		if consumed != c.size || got != c.v {
			t.Fatalf("takeVarint(%d)=%d/%d want %d/%d", c.v, got, consumed, c.v, c.size)
		}
	}
}

func TestVarintLiteralBytes(t *testing.T) {
	cases := []struct {
		v    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{252, []byte{0xFC}},
		{253, []byte{0xFD, 0xFD, 0x00}},
	}
	for _, c := range cases {
		buf := make([]byte, varintSize(c.v))
		putVarint(buf, c.v)
		if string(buf) != string(c.want) {
			t.Fatalf("encode(%d)=% x want % x", c.v, buf, c.want)
		}
	}
}

func TestVarintNonCanonicalAcceptedOnDecode(t *testing.T) {
	// A value that fits in one byte, written with the 0xFD prefix, still
	// decodes for robustness even though the encoder never produces it.
	buf := []byte{0xFD, 0x05, 0x00}
	v, n, err := takeVarint(buf)
	if err != nil || v != 5 || n != 3 {
		t.Fatalf("takeVarint(non-canonical)=%d/%d/%v want 5/3/nil", v, n, err)
	}
}

func TestZigzagRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 2, -2, 1000, -1000, 1<<30 - 1, -(1 << 30)} {
		z := zigzagEncode(v)
		got := zigzagDecode(z)
		if got != v {
			t.Fatalf("zigzag round trip: v=%d z=%d got=%d", v, z, got)
		}
	}
}
