// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamwire

import "testing"

func TestReflectBytesStreamingAndDynamicSchemas(t *testing.T) {
	schemas := []Schema{
		PromiseSchema(String()),
		IteratorSchema(Uint8()),
		ReadableStream(),
		Any(),
		Record(Boolean()),
		CompressionTable(String(), true),
		CompressionTable(Array(Uint()), false),
		Union(PromiseSchema(String()), IteratorSchema(Boolean())),
	}
	for _, s := range schemas {
		got, err := reflectBytes(s.Bytes())
		if err != nil {
			t.Fatalf("reflectBytes(% x): %v", s.Bytes(), err)
		}
		if !bytesEqual(got.Bytes(), s.Bytes()) {
			t.Fatalf("reflectBytes round trip: got % x want % x", got.Bytes(), s.Bytes())
		}
		if got.Tag() != s.Tag() {
			t.Fatalf("reflectBytes tag: got 0x%02x want 0x%02x", got.Tag(), s.Tag())
		}
	}
}

func TestReflectBytesRejectsUnknownTag(t *testing.T) {
	if _, err := reflectBytes([]byte{0xEE}); err == nil {
		t.Fatalf("expected an error decoding an unknown schema tag")
	}
}

func TestReflectBytesRejectsTrailingData(t *testing.T) {
	b := append(Uint8().Bytes(), 0xAA)
	if _, err := reflectBytes(b); err == nil {
		t.Fatalf("expected an error for trailing bytes after a complete schema")
	}
}

func TestReflectBytesRejectsTruncatedData(t *testing.T) {
	b := Array(String()).Bytes()
	if _, err := reflectBytes(b[:len(b)-1]); err == nil {
		t.Fatalf("expected an error for truncated schema bytes")
	}
}
