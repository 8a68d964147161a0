// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamwire

import (
	"bytes"
	"reflect"
	"testing"
	"time"
)

// encodeValue runs schema's plan/emit pair directly against v, bypassing the
// session header and mux envelope Encode adds: useful for asserting the
// literal value bytes spec.md §8 specifies.
func encodeValue(t *testing.T, schema Schema, v any) []byte {
	t.Helper()
	n, err := schema.size(v)
	if err != nil {
		t.Fatalf("size(%v): %v", v, err)
	}
	resetCompressionPlans(schema)
	buf := make([]byte, n)
	wc := newWriteContext(buf, nil)
	if err := schema.write(wc, v); err != nil {
		t.Fatalf("write(%v): %v", v, err)
	}
	return buf
}

// decodeValue is encodeValue's mirror: decodes b against schema with no mux
// session backing it, for schemas whose read() never touches one.
func decodeValue(t *testing.T, schema Schema, b []byte) any {
	t.Helper()
	rc := newReadContext(bytes.NewReader(b), nil)
	v, err := schema.read(rc)
	if err != nil {
		t.Fatalf("read(% x): %v", b, err)
	}
	return v
}

// assertDeepEqualish compares a decoded value against its original,
// special-casing time.Time (whose wall/monotonic internals make
// reflect.DeepEqual unreliable even for equal instants).
func assertDeepEqualish(t *testing.T, name string, got, want any) {
	t.Helper()
	if gt, ok := want.(time.Time); ok {
		ct, ok := got.(time.Time)
		if !ok || !ct.Equal(gt) {
			t.Fatalf("%s: got %v want %v", name, got, want)
		}
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("%s: got %#v want %#v", name, got, want)
	}
}
