// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamwire

import (
	"context"
	"testing"
)

func TestCompressionTableIdentityDedupesRepeatedValue(t *testing.T) {
	schema := Array(CompressionTable(String(), false))
	value := []any{"repeated", "other", "repeated", "repeated"}
	b := encodeValue(t, schema, value)
	got := decodeValue(t, schema, b).([]any)
	if len(got) != len(value) {
		t.Fatalf("length: got %d want %d", len(got), len(value))
	}
	for i := range value {
		if got[i] != value[i] {
			t.Fatalf("element[%d]: got %v want %v", i, got[i], value[i])
		}
	}
}

func TestCompressionTableDeepDedupesDistinctEqualSlices(t *testing.T) {
	schema := Array(CompressionTable(U8ArraySchema(), true))
	a := U8Array{1, 2, 3}
	bCopy := make(U8Array, len(a))
	copy(bCopy, a)
	value := []any{a, bCopy}

	withDedup := encodeValue(t, schema, value)

	plain := Array(U8ArraySchema())
	withoutDedup := encodeValue(t, plain, value)

	if len(withDedup) >= len(withoutDedup) {
		t.Fatalf("deep dedup should shrink the wire size: with=%d without=%d", len(withDedup), len(withoutDedup))
	}

	got := decodeValue(t, schema, withDedup).([]any)
	if len(got) != 2 {
		t.Fatalf("expected 2 decoded elements, got %d", len(got))
	}
	g0, g1 := got[0].(U8Array), got[1].(U8Array)
	if !bytesEqual(g0, a) || !bytesEqual(g1, a) {
		t.Fatalf("deep dedup round trip: got %v %v want both %v", g0, g1, a)
	}
}

func TestCompressionTableIdentityModeDoesNotDedupeDistinctEqualSlices(t *testing.T) {
	// identity mode only recognizes pointer/reference identity: two
	// distinct (if content-equal) slices must not collapse into a
	// back-reference the way deep mode does.
	schema := Array(CompressionTable(U8ArraySchema(), false))
	a := U8Array{9, 9, 9}
	bCopy := make(U8Array, len(a))
	copy(bCopy, a)
	value := []any{a, bCopy}

	identity := encodeValue(t, schema, value)

	deepSchema := Array(CompressionTable(U8ArraySchema(), true))
	deep := encodeValue(t, deepSchema, value)

	if len(identity) <= len(deep) {
		t.Fatalf("identity-mode encoding should be larger than deep-mode: identity=%d deep=%d", len(identity), len(deep))
	}
}

func TestCompressionTableBackReferenceBeforeFirstOccurrenceIsInternalError(t *testing.T) {
	rc := newReadContext(sliceReader{[]byte{0x02}}, nil)
	schema := CompressionTable(String(), false)
	if _, err := schema.read(rc); err == nil {
		t.Fatalf("expected an internal error for an out-of-range back-reference")
	}
}

// TestCompressionTableDedupesArrayOfIterators covers spec.md §4.5's "Arrays
// recurse element-wise": a compression-table node whose value is itself a
// streaming type, reached twice through the same array, must give each
// occurrence its own independent, fully-replayable consumer handle rather
// than aliasing the same *Iterator.
func TestCompressionTableDedupesArrayOfIterators(t *testing.T) {
	ctx := context.Background()
	schema := Array(CompressionTable(IteratorSchema(Uint()), false))

	producer, consumer := NewIteratorProducer()
	go func() {
		for _, v := range []uint64{1, 2, 3} {
			producer.Yield(ctx, v)
		}
		producer.Close()
	}()

	value := []any{consumer, consumer}

	b, err := EncodeBytes(ctx, schema, value)
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}
	v, err := DecodeBytes(ctx, b, schema)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	got := v.([]any)
	if len(got) != 2 {
		t.Fatalf("expected 2 decoded elements, got %d", len(got))
	}

	drain := func(it *Iterator) []uint64 {
		var out []uint64
		for {
			val, ok, err := it.Next(ctx)
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if !ok {
				return out
			}
			out = append(out, val.(uint64))
		}
	}

	first := drain(got[0].(*Iterator))
	second := drain(got[1].(*Iterator))

	want := []uint64{1, 2, 3}
	for i := range want {
		if first[i] != want[i] || second[i] != want[i] {
			t.Fatalf("back-reference replay: first=%v second=%v want both %v", first, second, want)
		}
	}
}

type sliceReader struct{ b []byte }

func (r sliceReader) Read(p []byte) (int, error) {
	n := copy(p, r.b)
	if n == 0 {
		return 0, ErrOutOfData
	}
	return n, nil
}
