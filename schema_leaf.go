// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamwire

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// -- boolean --

type booleanSchema struct{ leaf }

// Boolean returns the boolean() leaf schema: 1 byte, 0x01 true / 0x00 false.
func Boolean() Schema { return booleanSchema{leaf{TagBoolean}} }

func (booleanSchema) Validate(v any) error {
	if _, ok := v.(bool); !ok {
		return fmt.Errorf("%w: not a boolean: %T", ErrValidation, v)
	}
	return nil
}
func (booleanSchema) size(any) (int, error) { return 1, nil }
func (booleanSchema) write(wc *WriteContext, v any) error {
	if v.(bool) {
		return wc.PutByte(1)
	}
	return wc.PutByte(0)
}
func (booleanSchema) read(rc *ReadContext) (any, error) {
	b, err := rc.ReadByte()
	if err != nil {
		return nil, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return nil, fmt.Errorf("%w: invalid boolean byte 0x%02x", ErrProtocol, b)
	}
}

// -- uint8 --

type uint8Schema struct{ leaf }

// Uint8 returns the uint8() leaf schema: an integer in 0..255, 1 byte.
func Uint8() Schema { return uint8Schema{leaf{TagUint8}} }

func (uint8Schema) Validate(v any) error {
	n, err := asInt(v)
	if err != nil || n < 0 || n > 255 {
		return fmt.Errorf("%w: not a uint8: %v", ErrValidation, v)
	}
	return nil
}
func (uint8Schema) size(any) (int, error) { return 1, nil }
func (s uint8Schema) write(wc *WriteContext, v any) error {
	n, _ := asInt(v)
	return wc.PutByte(byte(n))
}
func (uint8Schema) read(rc *ReadContext) (any, error) {
	b, err := rc.ReadByte()
	return uint8(b), err
}

// -- uint --

type uintSchema struct{ leaf }

// Uint returns the uint() leaf schema: a non-negative integer, varint-sized.
func Uint() Schema { return uintSchema{leaf{TagUint}} }

func (uintSchema) Validate(v any) error {
	n, err := asUint(v)
	if err != nil {
		return fmt.Errorf("%w: not a uint: %v", ErrValidation, v)
	}
	_ = n
	return nil
}
func (uintSchema) size(v any) (int, error) {
	n, err := asUint(v)
	if err != nil {
		return 0, err
	}
	return varintSize(n), nil
}
func (uintSchema) write(wc *WriteContext, v any) error {
	n, _ := asUint(v)
	return wc.PutVarint(n)
}
func (uintSchema) read(rc *ReadContext) (any, error) {
	v, err := rc.ReadVarint()
	return v, err
}

// -- int --

type intSchema struct{ leaf }

// Int returns the int() leaf schema: a zigzag-wrapped signed integer,
// varint-sized. The zigzag step is carried out at 32-bit width, a known
// limitation preserved from the source spec (see varint.go).
func Int() Schema { return intSchema{leaf{TagInt}} }

func (intSchema) Validate(v any) error {
	_, err := asInt(v)
	if err != nil {
		return fmt.Errorf("%w: not an int: %v", ErrValidation, v)
	}
	return nil
}
func (intSchema) size(v any) (int, error) {
	n, err := asInt(v)
	if err != nil {
		return 0, err
	}
	return varintSize(zigzagEncode(n)), nil
}
func (intSchema) write(wc *WriteContext, v any) error {
	n, _ := asInt(v)
	return wc.PutVarint(zigzagEncode(n))
}
func (intSchema) read(rc *ReadContext) (any, error) {
	z, err := rc.ReadVarint()
	if err != nil {
		return nil, err
	}
	return zigzagDecode(z), nil
}

// -- float --

type floatSchema struct{ leaf }

// Float returns the float() leaf schema: an 8-byte little-endian IEEE-754
// double, including ±infinity and NaN.
func Float() Schema { return floatSchema{leaf{TagFloat}} }

func (floatSchema) Validate(v any) error {
	if _, err := asFloat(v); err != nil {
		return fmt.Errorf("%w: not a float: %v", ErrValidation, v)
	}
	return nil
}
func (floatSchema) size(any) (int, error) { return 8, nil }
func (floatSchema) write(wc *WriteContext, v any) error {
	f, _ := asFloat(v)
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(f))
	return wc.PutBytes(tmp[:])
}
func (floatSchema) read(rc *ReadContext) (any, error) {
	b, err := rc.ReadN(8)
	if err != nil {
		return nil, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// -- bigint --

type bigIntSchema struct{ leaf }

// BigIntSchema returns the bigint() leaf schema: an unsigned 64-bit
// integer, 8 bytes little-endian, tagged distinctly from uint.
func BigIntSchema() Schema { return bigIntSchema{leaf{TagBigInt}} }

func (bigIntSchema) Validate(v any) error {
	switch v.(type) {
	case BigInt, uint64:
		return nil
	default:
		return fmt.Errorf("%w: not a bigint: %T", ErrValidation, v)
	}
}
func (bigIntSchema) size(any) (int, error) { return 8, nil }
func (bigIntSchema) write(wc *WriteContext, v any) error {
	var n uint64
	switch x := v.(type) {
	case BigInt:
		n = uint64(x)
	case uint64:
		n = x
	}
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], n)
	return wc.PutBytes(tmp[:])
}
func (bigIntSchema) read(rc *ReadContext) (any, error) {
	b, err := rc.ReadN(8)
	if err != nil {
		return nil, err
	}
	return BigInt(binary.LittleEndian.Uint64(b)), nil
}

// -- string --

type stringSchema struct{ leaf }

// String returns the string() leaf schema: a UTF-8 string, varint byte
// length followed by its bytes. Length is a byte count, not a code-point
// count.
func String() Schema { return stringSchema{leaf{TagString}} }

func (stringSchema) Validate(v any) error {
	if _, ok := v.(string); !ok {
		return fmt.Errorf("%w: not a string: %T", ErrValidation, v)
	}
	return nil
}
func (stringSchema) size(v any) (int, error) {
	s := v.(string)
	return varintSize(uint64(len(s))) + len(s), nil
}
func (stringSchema) write(wc *WriteContext, v any) error {
	s := v.(string)
	if err := wc.PutVarint(uint64(len(s))); err != nil {
		return err
	}
	return wc.PutBytes([]byte(s))
}
func (stringSchema) read(rc *ReadContext) (any, error) {
	n, err := rc.ReadVarint()
	if err != nil {
		return nil, err
	}
	b, err := rc.ReadN(int(n))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// -- u8-array / buffer --

type u8ArraySchema struct{ leaf }

// U8ArraySchema returns the u8-array() leaf schema: raw bytes, varint length
// then bytes. Distinguished from BufferSchema only by its schema tag.
func U8ArraySchema() Schema { return u8ArraySchema{leaf{TagU8Array}} }

func (u8ArraySchema) Validate(v any) error { return validateBytesLike(v) }
func (u8ArraySchema) size(v any) (int, error) {
	b := bytesLike(v)
	return varintSize(uint64(len(b))) + len(b), nil
}
func (u8ArraySchema) write(wc *WriteContext, v any) error { return writeBytesLike(wc, v) }
func (u8ArraySchema) read(rc *ReadContext) (any, error) {
	b, err := readBytesLike(rc)
	if err != nil {
		return nil, err
	}
	return U8Array(b), nil
}

type bufferSchema struct{ leaf }

// BufferSchema returns the buffer() leaf schema: raw bytes, identical wire
// shape to U8ArraySchema, distinguished only by its schema tag.
func BufferSchema() Schema { return bufferSchema{leaf{TagBuffer}} }

func (bufferSchema) Validate(v any) error { return validateBytesLike(v) }
func (bufferSchema) size(v any) (int, error) {
	b := bytesLike(v)
	return varintSize(uint64(len(b))) + len(b), nil
}
func (bufferSchema) write(wc *WriteContext, v any) error { return writeBytesLike(wc, v) }
func (bufferSchema) read(rc *ReadContext) (any, error) {
	b, err := readBytesLike(rc)
	if err != nil {
		return nil, err
	}
	return Buffer(b), nil
}

func validateBytesLike(v any) error {
	switch v.(type) {
	case []byte, U8Array, Buffer:
		return nil
	default:
		return fmt.Errorf("%w: not a byte blob: %T", ErrValidation, v)
	}
}

func bytesLike(v any) []byte {
	switch x := v.(type) {
	case []byte:
		return x
	case U8Array:
		return x
	case Buffer:
		return x
	default:
		return nil
	}
}

func writeBytesLike(wc *WriteContext, v any) error {
	b := bytesLike(v)
	if err := wc.PutVarint(uint64(len(b))); err != nil {
		return err
	}
	return wc.PutBytes(b)
}

func readBytesLike(rc *ReadContext) ([]byte, error) {
	n, err := rc.ReadVarint()
	if err != nil {
		return nil, err
	}
	return rc.ReadN(int(n))
}

// -- date --

type dateSchema struct{ leaf }

// Date returns the date() leaf schema: an ISO-8601 string underneath,
// normalized to UTC. Any original time-zone offset beyond UTC normalization
// is lost, per spec.md §9.
func Date() Schema { return dateSchema{leaf{TagDate}} }

func (dateSchema) Validate(v any) error {
	if _, ok := v.(time.Time); !ok {
		return fmt.Errorf("%w: not a date: %T", ErrValidation, v)
	}
	return nil
}
func (dateSchema) size(v any) (int, error) {
	s := v.(time.Time).UTC().Format(time.RFC3339Nano)
	return varintSize(uint64(len(s))) + len(s), nil
}
func (dateSchema) write(wc *WriteContext, v any) error {
	s := v.(time.Time).UTC().Format(time.RFC3339Nano)
	if err := wc.PutVarint(uint64(len(s))); err != nil {
		return err
	}
	return wc.PutBytes([]byte(s))
}
func (dateSchema) read(rc *ReadContext) (any, error) {
	n, err := rc.ReadVarint()
	if err != nil {
		return nil, err
	}
	b, err := rc.ReadN(int(n))
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, string(b))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date string: %v", ErrProtocol, err)
	}
	return t, nil
}

// -- potentially-float-string --

type potentiallyFloatStringSchema struct{ leaf }

// PotentiallyFloatStringSchema returns the reflection-only
// potentially-float-string schema (tag 0x15): a UTF-8 string that may denote
// a float, kept distinct from String so a reflected schema round-trips
// exactly.
func PotentiallyFloatStringSchema() Schema {
	return potentiallyFloatStringSchema{leaf{TagPotentiallyFloatString}}
}

func (potentiallyFloatStringSchema) Validate(v any) error {
	switch v.(type) {
	case string, PotentiallyFloatString:
		return nil
	default:
		return fmt.Errorf("%w: not a string: %T", ErrValidation, v)
	}
}
func (potentiallyFloatStringSchema) size(v any) (int, error) {
	s := potentiallyFloatStringBytes(v)
	return varintSize(uint64(len(s))) + len(s), nil
}
func (potentiallyFloatStringSchema) write(wc *WriteContext, v any) error {
	s := potentiallyFloatStringBytes(v)
	if err := wc.PutVarint(uint64(len(s))); err != nil {
		return err
	}
	return wc.PutBytes(s)
}
func (potentiallyFloatStringSchema) read(rc *ReadContext) (any, error) {
	n, err := rc.ReadVarint()
	if err != nil {
		return nil, err
	}
	b, err := rc.ReadN(int(n))
	if err != nil {
		return nil, err
	}
	return PotentiallyFloatString(b), nil
}

func potentiallyFloatStringBytes(v any) []byte {
	switch x := v.(type) {
	case string:
		return []byte(x)
	case PotentiallyFloatString:
		return []byte(x)
	default:
		return nil
	}
}

// -- numeric coercion helpers --

func asInt(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("%w: uint64 overflows int64", ErrValidation)
		}
		return int64(x), nil
	case uint:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("%w: not an integer: %T", ErrValidation, v)
	}
}

func asUint(v any) (uint64, error) {
	n, err := asInt(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative value for uint", ErrValidation)
	}
	return uint64(n), nil
}

func asFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	default:
		n, err := asInt(v)
		if err != nil {
			return 0, fmt.Errorf("%w: not a number: %T", ErrValidation, v)
		}
		return float64(n), nil
	}
}
