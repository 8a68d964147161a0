// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamwire

import (
	"fmt"
	"reflect"
	"time"
)

// -- any --

type anySchema struct{ leaf }

// Any returns the any() schema: a self-describing wrapper that infers a
// schema for whatever value it is given at write time, inlines that
// schema's bytes ahead of the value, and decodes the reciprocal way on
// read via reflect_bytes. Unlike every other schema, its size depends on
// the value, not just its shape.
func Any() Schema { return anySchema{leaf{TagAny}} }

func (anySchema) Validate(any) error { return nil }

func (anySchema) size(v any) (int, error) {
	schema, val, err := inferForWrite(v)
	if err != nil {
		return 0, err
	}
	sb := schema.Bytes()
	n, err := schema.size(val)
	if err != nil {
		return 0, err
	}
	return len(sb) + n, nil
}

func (anySchema) write(wc *WriteContext, v any) error {
	schema, val, err := inferForWrite(v)
	if err != nil {
		return err
	}
	if err := wc.PutBytes(schema.Bytes()); err != nil {
		return err
	}
	return schema.write(wc, val)
}

func (anySchema) read(rc *ReadContext) (any, error) {
	schema, err := reflectFromContext(rc)
	if err != nil {
		return nil, err
	}
	return schema.read(rc)
}

func inferForWrite(v any) (Schema, any, error) {
	schema, err := inferSchema(v)
	if err != nil {
		return nil, nil, err
	}
	return schema, v, nil
}

// inferSchema derives a Schema for an arbitrary Go value, the mechanism
// backing the any() type (spec.md §4.6). Composite values are walked
// recursively with cycle detection: a value reachable from itself through
// pointers, slices, or maps raises ErrCycle rather than recursing forever.
func inferSchema(v any) (Schema, error) {
	return inferVisit(v, map[uintptr]bool{})
}

func inferVisit(v any, seen map[uintptr]bool) (Schema, error) {
	switch x := v.(type) {
	case nil:
		return Nullable(), nil
	case bool:
		return Boolean(), nil
	case string:
		return String(), nil
	case U8Array, Buffer:
		return U8ArraySchema(), nil
	case []byte:
		return U8ArraySchema(), nil
	case BigInt:
		return BigIntSchema(), nil
	case time.Time:
		return Date(), nil
	case *Promise:
		return PromiseSchema(Any()), nil
	case *Iterator:
		return IteratorSchema(Any()), nil
	case *ByteStream:
		return ReadableStream(), nil
	case MapValue:
		if len(x) == 0 {
			return Map(Any(), Any()), nil
		}
		keySchema, err := inferVisit(x[0].Key, seen)
		if err != nil {
			return nil, err
		}
		valSchema, err := inferVisit(x[0].Value, seen)
		if err != nil {
			return nil, err
		}
		return Map(keySchema, valSchema), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Int() < 0 {
			return Int(), nil
		}
		return Uint(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Uint(), nil
	case reflect.Float32, reflect.Float64:
		return Float(), nil
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return Nullable(), nil
		}
		ptr := rv.Pointer()
		if seen[ptr] {
			return nil, fmt.Errorf("%w: cyclic value in any()", ErrCycle)
		}
		seen[ptr] = true
		defer delete(seen, ptr)
		return inferVisit(rv.Elem().Interface(), seen)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice {
			if rv.IsNil() {
				return Array(Any()), nil
			}
			ptr := rv.Pointer()
			if seen[ptr] {
				return nil, fmt.Errorf("%w: cyclic value in any()", ErrCycle)
			}
			seen[ptr] = true
			defer delete(seen, ptr)
		}
		elemSchemas := make([]Schema, 0, rv.Len())
		seenBytes := make(map[string]bool)
		for i := 0; i < rv.Len(); i++ {
			es, err := inferVisit(rv.Index(i).Interface(), seen)
			if err != nil {
				return nil, err
			}
			key := string(es.Bytes())
			if !seenBytes[key] {
				seenBytes[key] = true
				elemSchemas = append(elemSchemas, es)
			}
		}
		if len(elemSchemas) == 0 {
			return Array(Any()), nil
		}
		if len(elemSchemas) == 1 {
			return Array(elemSchemas[0]), nil
		}
		return Array(Union(elemSchemas...)), nil
	case reflect.Map:
		if rv.IsNil() {
			return Object(map[string]Schema{}), nil
		}
		ptr := rv.Pointer()
		if seen[ptr] {
			return nil, fmt.Errorf("%w: cyclic value in any()", ErrCycle)
		}
		seen[ptr] = true
		defer delete(seen, ptr)
		fields := make(map[string]Schema, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := fmt.Sprint(iter.Key().Interface())
			fs, err := inferVisit(iter.Value().Interface(), seen)
			if err != nil {
				return nil, err
			}
			fields[k] = fs
		}
		return Object(fields), nil
	}
	return nil, fmt.Errorf("%w: cannot infer a schema for %T", ErrValidation, v)
}
