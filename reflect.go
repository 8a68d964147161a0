// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamwire

import "fmt"

// schemaCursor abstracts the byte source schemaParse reads from. Schema
// bytes are self-delimiting by construction (every constructor's tag fixes
// how many child schemas and how much structural metadata follow), so the
// same recursive-descent grammar can run either over a fully-buffered
// schema-bytes slice (reflectBytes, used for schema round-trips) or
// directly off a session's ReadContext (reflectFromContext, used wherever
// a schema is embedded inline ahead of a value on the wire): neither needs
// an outer length prefix to know where the schema ends.
type schemaCursor interface {
	byte() (byte, error)
	peek() (byte, error)
	take(n int) ([]byte, error)
	varint() (uint64, error)
}

// reflectBytes parses a complete schema's canonical byte-representation (as
// produced by Schema.Bytes) back into a live Schema value. It is the
// inverse of every constructor's Bytes() output and rejects any trailing
// bytes left over once the schema is fully parsed.
func reflectBytes(b []byte) (Schema, error) {
	p := &sliceCursor{buf: b}
	s, err := schemaParse(p)
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.buf) {
		return nil, fmt.Errorf("%w: trailing bytes after schema", ErrProtocol)
	}
	return s, nil
}

// reflectFromContext parses one schema's byte-representation directly off
// rc and leaves the cursor positioned at whatever follows it: the session
// header's inline schema (§4.8), the any() type's self-describing payload
// (§4.4), and a promise/iterator terminal error frame's embedded error
// schema (§4.7) are all written this way, with no length prefix.
func reflectFromContext(rc *ReadContext) (Schema, error) {
	return schemaParse(&rcCursor{rc: rc})
}

// sliceCursor implements schemaCursor over a fully-buffered byte slice.
type sliceCursor struct {
	buf []byte
	pos int
}

func (p *sliceCursor) byte() (byte, error) {
	if p.pos >= len(p.buf) {
		return 0, fmt.Errorf("%w: truncated schema bytes", ErrProtocol)
	}
	b := p.buf[p.pos]
	p.pos++
	return b, nil
}

func (p *sliceCursor) peek() (byte, error) {
	if p.pos >= len(p.buf) {
		return 0, fmt.Errorf("%w: truncated schema bytes", ErrProtocol)
	}
	return p.buf[p.pos], nil
}

func (p *sliceCursor) take(n int) ([]byte, error) {
	if p.pos+n > len(p.buf) {
		return nil, fmt.Errorf("%w: truncated schema bytes", ErrProtocol)
	}
	b := p.buf[p.pos : p.pos+n]
	p.pos += n
	return b, nil
}

func (p *sliceCursor) varint() (uint64, error) {
	v, n, err := takeVarint(p.buf[p.pos:])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	p.pos += n
	return v, nil
}

// rcCursor implements schemaCursor directly over a *ReadContext, so an
// inline schema can be reflected without the caller pre-slicing its bytes.
type rcCursor struct{ rc *ReadContext }

func (c *rcCursor) byte() (byte, error)        { return c.rc.ReadByte() }
func (c *rcCursor) peek() (byte, error)        { return c.rc.PeekByte() }
func (c *rcCursor) take(n int) ([]byte, error) { return c.rc.ReadN(n) }
func (c *rcCursor) varint() (uint64, error)    { return c.rc.ReadVarint() }

func schemaParse(p schemaCursor) (Schema, error) {
	tag, err := p.byte()
	if err != nil {
		return nil, err
	}
	switch Tag(tag) {
	case TagBoolean:
		return Boolean(), nil
	case TagUint8:
		return Uint8(), nil
	case TagUint:
		return Uint(), nil
	case TagInt:
		return Int(), nil
	case TagFloat:
		return Float(), nil
	case TagBigInt:
		return BigIntSchema(), nil
	case TagString:
		return String(), nil
	case TagU8Array:
		return U8ArraySchema(), nil
	case TagBuffer:
		return BufferSchema(), nil
	case TagDate:
		return Date(), nil
	case TagPotentiallyFloatString:
		return PotentiallyFloatStringSchema(), nil
	case TagAny:
		return Any(), nil
	case TagReadableStream:
		return ReadableStream(), nil
	case TagArray:
		elem, err := schemaParse(p)
		if err != nil {
			return nil, err
		}
		return Array(elem), nil
	case TagRecord:
		elem, err := schemaParse(p)
		if err != nil {
			return nil, err
		}
		return Record(elem), nil
	case TagPromise:
		elem, err := schemaParse(p)
		if err != nil {
			return nil, err
		}
		return PromiseSchema(elem), nil
	case TagIterator:
		elem, err := schemaParse(p)
		if err != nil {
			return nil, err
		}
		return IteratorSchema(elem), nil
	case TagMap:
		key, err := schemaParse(p)
		if err != nil {
			return nil, err
		}
		val, err := schemaParse(p)
		if err != nil {
			return nil, err
		}
		return Map(key, val), nil
	case TagOptional:
		inner, err := schemaParse(p)
		if err != nil {
			return nil, err
		}
		return Optional(inner), nil
	case TagNullable:
		// The naked nullable is the single literal byte sequence
		// {TagNullable, 0x00}; any other next byte begins a nested schema.
		next, err := p.peek()
		if err != nil {
			return nil, err
		}
		if next == 0x00 {
			if _, err := p.byte(); err != nil {
				return nil, err
			}
			return Nullable(), nil
		}
		inner, err := schemaParse(p)
		if err != nil {
			return nil, err
		}
		return Nullable(inner), nil
	case TagUnion:
		nMinus1, err := p.varint()
		if err != nil {
			return nil, err
		}
		alts := make([]Schema, nMinus1+1)
		for i := range alts {
			alts[i], err = schemaParse(p)
			if err != nil {
				return nil, err
			}
		}
		return Union(alts...), nil
	case TagObject:
		n, err := p.varint()
		if err != nil {
			return nil, err
		}
		fields := make(map[string]Schema, n)
		for i := uint64(0); i < n; i++ {
			klen, err := p.varint()
			if err != nil {
				return nil, err
			}
			kb, err := p.take(int(klen))
			if err != nil {
				return nil, err
			}
			fs, err := schemaParse(p)
			if err != nil {
				return nil, err
			}
			fields[string(kb)] = fs
		}
		return Object(fields), nil
	case TagCompressionTable:
		deepFlag, err := p.byte()
		if err != nil {
			return nil, err
		}
		inner, err := schemaParse(p)
		if err != nil {
			return nil, err
		}
		return CompressionTable(inner, deepFlag != 0), nil
	default:
		return nil, fmt.Errorf("%w: unknown schema tag 0x%02x", ErrProtocol, tag)
	}
}
