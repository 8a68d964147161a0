// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamwire

import (
	"fmt"
	"reflect"
	"sort"
)

// -- array(T) --

type arraySchema struct {
	elem  Schema
	bytes []byte
}

// Array returns the array(T) schema: varint count then count x T.
func Array(elem Schema) Schema {
	b := append([]byte{byte(TagArray)}, elem.Bytes()...)
	return &arraySchema{elem: elem, bytes: b}
}

func (s *arraySchema) Tag() Tag      { return TagArray }
func (s *arraySchema) Bytes() []byte { return s.bytes }

func (s *arraySchema) asSlice(v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: not an array: %T", ErrValidation, v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func (s *arraySchema) Validate(v any) error {
	elems, err := s.asSlice(v)
	if err != nil {
		return err
	}
	for i, e := range elems {
		if err := s.elem.Validate(e); err != nil {
			return fmt.Errorf("%w: array[%d]: %v", ErrValidation, i, err)
		}
	}
	return nil
}

func (s *arraySchema) size(v any) (int, error) {
	elems, err := s.asSlice(v)
	if err != nil {
		return 0, err
	}
	total := varintSize(uint64(len(elems)))
	for _, e := range elems {
		n, err := s.elem.size(e)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (s *arraySchema) write(wc *WriteContext, v any) error {
	elems, _ := s.asSlice(v)
	if err := wc.PutVarint(uint64(len(elems))); err != nil {
		return err
	}
	for _, e := range elems {
		if err := s.elem.write(wc, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *arraySchema) read(rc *ReadContext) (any, error) {
	n, err := rc.ReadVarint()
	if err != nil {
		return nil, err
	}
	out := make([]any, n)
	for i := range out {
		v, err := s.elem.read(rc)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// -- object({k: T_k}) --

type objectSchema struct {
	keys   []string
	fields map[string]Schema
	bytes  []byte
}

// Object returns the object({k: T_k}) schema. Field order in fields is
// irrelevant: the wire order is the strict lexicographic order of keys
// (spec.md's object-field-order invariant), computed once here.
func Object(fields map[string]Schema) Schema {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := []byte{byte(TagObject)}
	var tmp [9]byte
	n := putVarint(tmp[:], uint64(len(keys)))
	b = append(b, tmp[:n]...)
	for _, k := range keys {
		n = putVarint(tmp[:], uint64(len(k)))
		b = append(b, tmp[:n]...)
		b = append(b, k...)
		b = append(b, fields[k].Bytes()...)
	}
	return &objectSchema{keys: keys, fields: fields, bytes: b}
}

func (s *objectSchema) Tag() Tag      { return TagObject }
func (s *objectSchema) Bytes() []byte { return s.bytes }

func (s *objectSchema) asMap(v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: not an object: %T", ErrValidation, v)
	}
	return m, nil
}

func (s *objectSchema) Validate(v any) error {
	m, err := s.asMap(v)
	if err != nil {
		return err
	}
	for _, k := range s.keys {
		fv, ok := m[k]
		if !ok {
			return fmt.Errorf("%w: object missing field %q", ErrValidation, k)
		}
		if err := s.fields[k].Validate(fv); err != nil {
			return fmt.Errorf("%w: object field %q: %v", ErrValidation, k, err)
		}
	}
	return nil
}

func (s *objectSchema) size(v any) (int, error) {
	m, err := s.asMap(v)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, k := range s.keys {
		n, err := s.fields[k].size(m[k])
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (s *objectSchema) write(wc *WriteContext, v any) error {
	m, _ := s.asMap(v)
	for _, k := range s.keys {
		if err := s.fields[k].write(wc, m[k]); err != nil {
			return err
		}
	}
	return nil
}

func (s *objectSchema) read(rc *ReadContext) (any, error) {
	out := make(map[string]any, len(s.keys))
	for _, k := range s.keys {
		v, err := s.fields[k].read(rc)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// -- record(T) : dynamic-keyed mapping --

type recordSchema struct {
	value Schema
	bytes []byte
}

// Record returns the record(T) schema: varint count then count x (varint
// key length, UTF-8 key, T), for dynamically keyed string->T mappings.
func Record(value Schema) Schema {
	b := append([]byte{byte(TagRecord)}, value.Bytes()...)
	return &recordSchema{value: value, bytes: b}
}

func (s *recordSchema) Tag() Tag      { return TagRecord }
func (s *recordSchema) Bytes() []byte { return s.bytes }

func (s *recordSchema) asMap(v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: not a record: %T", ErrValidation, v)
	}
	return m, nil
}

func (s *recordSchema) Validate(v any) error {
	m, err := s.asMap(v)
	if err != nil {
		return err
	}
	for k, fv := range m {
		if err := s.value.Validate(fv); err != nil {
			return fmt.Errorf("%w: record field %q: %v", ErrValidation, k, err)
		}
	}
	return nil
}

func (s *recordSchema) size(v any) (int, error) {
	m, err := s.asMap(v)
	if err != nil {
		return 0, err
	}
	keys := sortedKeys(m)
	total := varintSize(uint64(len(keys)))
	for _, k := range keys {
		n, err := s.value.size(m[k])
		if err != nil {
			return 0, err
		}
		total += varintSize(uint64(len(k))) + len(k) + n
	}
	return total, nil
}

func (s *recordSchema) write(wc *WriteContext, v any) error {
	m, _ := s.asMap(v)
	keys := sortedKeys(m)
	if err := wc.PutVarint(uint64(len(keys))); err != nil {
		return err
	}
	for _, k := range keys {
		if err := wc.PutVarint(uint64(len(k))); err != nil {
			return err
		}
		if err := wc.PutBytes([]byte(k)); err != nil {
			return err
		}
		if err := s.value.write(wc, m[k]); err != nil {
			return err
		}
	}
	return nil
}

func (s *recordSchema) read(rc *ReadContext) (any, error) {
	n, err := rc.ReadVarint()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, n)
	for i := uint64(0); i < n; i++ {
		klen, err := rc.ReadVarint()
		if err != nil {
			return nil, err
		}
		kb, err := rc.ReadN(int(klen))
		if err != nil {
			return nil, err
		}
		v, err := s.value.read(rc)
		if err != nil {
			return nil, err
		}
		out[string(kb)] = v
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// -- map(K, V) --

type mapSchema struct {
	key, value Schema
	bytes      []byte
}

// Map returns the map(K,V) schema: varint count then count x (K, V) pairs,
// written in the given iteration order (the wire format does not sort map
// entries; only object fields are sorted).
func Map(key, value Schema) Schema {
	b := []byte{byte(TagMap)}
	b = append(b, key.Bytes()...)
	b = append(b, value.Bytes()...)
	return &mapSchema{key: key, value: value, bytes: b}
}

func (s *mapSchema) Tag() Tag      { return TagMap }
func (s *mapSchema) Bytes() []byte { return s.bytes }

func (s *mapSchema) asEntries(v any) (MapValue, error) {
	m, ok := v.(MapValue)
	if !ok {
		return nil, fmt.Errorf("%w: not a map: %T", ErrValidation, v)
	}
	return m, nil
}

func (s *mapSchema) Validate(v any) error {
	entries, err := s.asEntries(v)
	if err != nil {
		return err
	}
	for i, e := range entries {
		if err := s.key.Validate(e.Key); err != nil {
			return fmt.Errorf("%w: map key[%d]: %v", ErrValidation, i, err)
		}
		if err := s.value.Validate(e.Value); err != nil {
			return fmt.Errorf("%w: map value[%d]: %v", ErrValidation, i, err)
		}
	}
	return nil
}

func (s *mapSchema) size(v any) (int, error) {
	entries, err := s.asEntries(v)
	if err != nil {
		return 0, err
	}
	total := varintSize(uint64(len(entries)))
	for _, e := range entries {
		kn, err := s.key.size(e.Key)
		if err != nil {
			return 0, err
		}
		vn, err := s.value.size(e.Value)
		if err != nil {
			return 0, err
		}
		total += kn + vn
	}
	return total, nil
}

func (s *mapSchema) write(wc *WriteContext, v any) error {
	entries, _ := s.asEntries(v)
	if err := wc.PutVarint(uint64(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.key.write(wc, e.Key); err != nil {
			return err
		}
		if err := s.value.write(wc, e.Value); err != nil {
			return err
		}
	}
	return nil
}

func (s *mapSchema) read(rc *ReadContext) (any, error) {
	n, err := rc.ReadVarint()
	if err != nil {
		return nil, err
	}
	out := make(MapValue, n)
	for i := range out {
		k, err := s.key.read(rc)
		if err != nil {
			return nil, err
		}
		v, err := s.value.read(rc)
		if err != nil {
			return nil, err
		}
		out[i] = MapEntry{Key: k, Value: v}
	}
	return out, nil
}

// -- nullable(T?) --

type nullableSchema struct {
	inner Schema // nil for the naked nullable
	bytes []byte
}

// Nullable returns the nullable(T) schema (T or null). Called with no
// argument it returns the naked nullable, a distinct type whose only legal
// payload is the single byte 0x00.
func Nullable(inner ...Schema) Schema {
	if len(inner) == 0 {
		return &nullableSchema{bytes: []byte{byte(TagNullable), 0x00}}
	}
	b := append([]byte{byte(TagNullable)}, inner[0].Bytes()...)
	return &nullableSchema{inner: inner[0], bytes: b}
}

func (s *nullableSchema) Tag() Tag      { return TagNullable }
func (s *nullableSchema) Bytes() []byte { return s.bytes }

func (s *nullableSchema) Validate(v any) error {
	if v == nil {
		return nil
	}
	if s.inner == nil {
		return fmt.Errorf("%w: naked nullable only accepts null", ErrValidation)
	}
	return s.inner.Validate(v)
}

func (s *nullableSchema) size(v any) (int, error) {
	if v == nil {
		return 1, nil
	}
	n, err := s.inner.size(v)
	if err != nil {
		return 0, err
	}
	return 1 + n, nil
}

func (s *nullableSchema) write(wc *WriteContext, v any) error {
	if v == nil {
		return wc.PutByte(0)
	}
	if err := wc.PutByte(1); err != nil {
		return err
	}
	return s.inner.write(wc, v)
}

func (s *nullableSchema) read(rc *ReadContext) (any, error) {
	flag, err := rc.ReadByte()
	if err != nil {
		return nil, err
	}
	switch flag {
	case 0:
		return nil, nil
	case 1:
		if s.inner == nil {
			return nil, fmt.Errorf("%w: naked nullable got non-null flag", ErrProtocol)
		}
		return s.inner.read(rc)
	default:
		return nil, fmt.Errorf("%w: invalid nullable flag 0x%02x", ErrProtocol, flag)
	}
}

// -- optional(T) --

type optionalSchema struct {
	inner Schema
	bytes []byte
}

// Optional returns the optional(T) schema (T or absent). Use the None
// sentinel, not nil, to represent an absent value.
func Optional(inner Schema) Schema {
	b := append([]byte{byte(TagOptional)}, inner.Bytes()...)
	return &optionalSchema{inner: inner, bytes: b}
}

func (s *optionalSchema) Tag() Tag      { return TagOptional }
func (s *optionalSchema) Bytes() []byte { return s.bytes }

func (s *optionalSchema) Validate(v any) error {
	if v == None {
		return nil
	}
	return s.inner.Validate(v)
}

func (s *optionalSchema) size(v any) (int, error) {
	if v == None {
		return 1, nil
	}
	n, err := s.inner.size(v)
	if err != nil {
		return 0, err
	}
	return 1 + n, nil
}

func (s *optionalSchema) write(wc *WriteContext, v any) error {
	if v == None {
		return wc.PutByte(0)
	}
	if err := wc.PutByte(1); err != nil {
		return err
	}
	return s.inner.write(wc, v)
}

func (s *optionalSchema) read(rc *ReadContext) (any, error) {
	flag, err := rc.ReadByte()
	if err != nil {
		return nil, err
	}
	switch flag {
	case 0:
		return None, nil
	case 1:
		return s.inner.read(rc)
	default:
		return nil, fmt.Errorf("%w: invalid optional flag 0x%02x", ErrProtocol, flag)
	}
}

// -- union(T0, ..., Tn-1) --

type unionSchema struct {
	alts  []Schema
	bytes []byte
}

// Union returns the union(T0,...,Tn-1) schema. Validation and encoding try
// alternatives in declaration order; the emitted discriminator is the
// first-matching index (spec.md's "union first-match" invariant).
func Union(alts ...Schema) Schema {
	if len(alts) == 0 {
		panic(fmt.Errorf("%w: union requires at least one alternative", ErrInvalidArgument))
	}
	b := []byte{byte(TagUnion)}
	var tmp [9]byte
	n := putVarint(tmp[:], uint64(len(alts)-1))
	b = append(b, tmp[:n]...)
	for _, a := range alts {
		b = append(b, a.Bytes()...)
	}
	return &unionSchema{alts: alts, bytes: b}
}

func (s *unionSchema) Tag() Tag      { return TagUnion }
func (s *unionSchema) Bytes() []byte { return s.bytes }

func (s *unionSchema) firstMatch(v any) (int, error) {
	var firstErr error
	for i, a := range s.alts {
		if err := a.Validate(v); err == nil {
			return i, nil
		} else if firstErr == nil {
			firstErr = err
		}
	}
	return -1, fmt.Errorf("%w: union: no alternative matches: %v", ErrValidation, firstErr)
}

func (s *unionSchema) Validate(v any) error {
	_, err := s.firstMatch(v)
	return err
}

func (s *unionSchema) size(v any) (int, error) {
	i, err := s.firstMatch(v)
	if err != nil {
		return 0, err
	}
	n, err := s.alts[i].size(v)
	if err != nil {
		return 0, err
	}
	return varintSize(uint64(i)) + n, nil
}

func (s *unionSchema) write(wc *WriteContext, v any) error {
	i, err := s.firstMatch(v)
	if err != nil {
		return err
	}
	if err := wc.PutVarint(uint64(i)); err != nil {
		return err
	}
	return s.alts[i].write(wc, v)
}

func (s *unionSchema) read(rc *ReadContext) (any, error) {
	idx, err := rc.ReadVarint()
	if err != nil {
		return nil, err
	}
	if int(idx) >= len(s.alts) {
		return nil, fmt.Errorf("%w: union index %d out of range", ErrProtocol, idx)
	}
	return s.alts[idx].read(rc)
}

// -- pipe(T, f) --

type pipeSchema struct {
	inner Schema
	fn    func(any) any
}

// Pipe returns a transparent wrapper: the writer applies f to the value
// before delegating to inner; the reader delegates to inner directly. The
// schema's byte-representation is inner's, since f is a write-time-only
// transform invisible on the wire.
func Pipe(inner Schema, fn func(any) any) Schema {
	return &pipeSchema{inner: inner, fn: fn}
}

func (s *pipeSchema) Tag() Tag      { return s.inner.Tag() }
func (s *pipeSchema) Bytes() []byte { return s.inner.Bytes() }
func (s *pipeSchema) Validate(v any) error {
	return s.inner.Validate(s.fn(v))
}
func (s *pipeSchema) size(v any) (int, error) { return s.inner.size(s.fn(v)) }
func (s *pipeSchema) write(wc *WriteContext, v any) error {
	return s.inner.write(wc, s.fn(v))
}
func (s *pipeSchema) read(rc *ReadContext) (any, error) { return s.inner.read(rc) }
