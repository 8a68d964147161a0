// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamwire

import "testing"

func TestArrayRoundTrip(t *testing.T) {
	schema := Array(String())
	value := []any{"a", "bb", "ccc"}
	b := encodeValue(t, schema, value)
	got := decodeValue(t, schema, b).([]any)
	if len(got) != len(value) {
		t.Fatalf("array round trip length: got %d want %d", len(got), len(value))
	}
	for i := range value {
		if got[i] != value[i] {
			t.Fatalf("array[%d]: got %v want %v", i, got[i], value[i])
		}
	}
}

func TestArrayEmpty(t *testing.T) {
	schema := Array(Uint())
	b := encodeValue(t, schema, []any{})
	got := decodeValue(t, schema, b).([]any)
	if len(got) != 0 {
		t.Fatalf("expected empty array, got %v", got)
	}
}

func TestObjectMissingFieldRejected(t *testing.T) {
	schema := Object(map[string]Schema{"a": Uint8(), "b": Uint8()})
	if err := schema.Validate(map[string]any{"a": 1}); err == nil {
		t.Fatalf("expected validation error for missing field b")
	}
}

func TestRecordRoundTripSortsKeysOnWrite(t *testing.T) {
	schema := Record(Uint8())
	value := map[string]any{"z": uint8(1), "a": uint8(2), "m": uint8(3)}
	b := encodeValue(t, schema, value)
	got := decodeValue(t, schema, b).(map[string]any)
	for k, v := range value {
		if got[k] != v {
			t.Fatalf("record[%q]: got %v want %v", k, got[k], v)
		}
	}
}

func TestMapPreservesInsertionOrder(t *testing.T) {
	schema := Map(String(), Uint8())
	value := MapValue{
		{Key: "z", Value: uint8(1)},
		{Key: "a", Value: uint8(2)},
		{Key: "m", Value: uint8(3)},
	}
	b := encodeValue(t, schema, value)
	got := decodeValue(t, schema, b).(MapValue)
	if len(got) != len(value) {
		t.Fatalf("map length: got %d want %d", len(got), len(value))
	}
	for i := range value {
		if got[i].Key != value[i].Key || got[i].Value != value[i].Value {
			t.Fatalf("map[%d]: got %+v want %+v", i, got[i], value[i])
		}
	}
}

func TestNullableNakedOnlyAcceptsNull(t *testing.T) {
	schema := Nullable()
	if err := schema.Validate(nil); err != nil {
		t.Fatalf("naked nullable should accept nil: %v", err)
	}
	if err := schema.Validate("x"); err == nil {
		t.Fatalf("naked nullable should reject non-null values")
	}
	b := encodeValue(t, schema, nil)
	if !bytesEqual(b, []byte{0x00}) {
		t.Fatalf("naked nullable null bytes: got % x want {0x00}", b)
	}
}

func TestOptionalUsesNoneSentinel(t *testing.T) {
	schema := Optional(String())
	if err := schema.Validate(None); err != nil {
		t.Fatalf("optional should accept None: %v", err)
	}
	b := encodeValue(t, schema, None)
	got := decodeValue(t, schema, b)
	if got != None {
		t.Fatalf("optional absent round trip: got %v want None", got)
	}

	b = encodeValue(t, schema, "present")
	got = decodeValue(t, schema, b)
	if got != "present" {
		t.Fatalf("optional present round trip: got %v want %q", got, "present")
	}
}

func TestUnionFirstMatchWins(t *testing.T) {
	// Both alternatives can represent "5": uint() matches first, so the
	// discriminator must always select index 0 for integer inputs.
	schema := Union(Uint(), Int())
	b := encodeValue(t, schema, uint64(5))
	want := []byte{0x00, 0x05} // discriminator index 0, then uint() value 5
	if !bytesEqual(b, want) {
		t.Fatalf("union bytes: got % x want % x", b, want)
	}
	got := decodeValue(t, schema, b)
	if got != uint64(5) {
		t.Fatalf("union round trip: got %v want uint64(5)", got)
	}
}

func TestUnionNoAlternativesPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Union() with no alternatives to panic")
		}
	}()
	Union()
}

func TestPipeTransformsOnWriteOnly(t *testing.T) {
	schema := Pipe(Uint(), func(v any) any { return uint64(v.(int) * 2) })
	b := encodeValue(t, schema, 21)
	got := decodeValue(t, Uint(), b)
	if got != uint64(42) {
		t.Fatalf("pipe write transform: got %v want 42", got)
	}
	if schema.Bytes()[0] != byte(TagUint) {
		t.Fatalf("pipe schema bytes should delegate to inner's tag")
	}
}

func TestCompositeSchemaBytesRoundTripThroughReflect(t *testing.T) {
	schemas := []Schema{
		Array(String()),
		Object(map[string]Schema{"a": Uint8(), "b": Nullable(String())}),
		Record(Float()),
		Map(String(), Int()),
		Nullable(Boolean()),
		Nullable(),
		Optional(BigIntSchema()),
		Union(Uint(), String(), Boolean()),
	}
	for _, s := range schemas {
		got, err := reflectBytes(s.Bytes())
		if err != nil {
			t.Fatalf("reflectBytes(%x): %v", s.Bytes(), err)
		}
		if !bytesEqual(got.Bytes(), s.Bytes()) {
			t.Fatalf("reflectBytes round trip: got % x want % x", got.Bytes(), s.Bytes())
		}
	}
}
