// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package streamwire is a schema-driven binary serialization codec with
// first-class support for asynchronous and streaming values (deferred
// single values, finite/infinite value streams, raw byte streams)
// multiplexed over a single ordered byte transport.
//
// A sender validates a value against a composed Schema, emits a framed
// header (optionally preceded by the schema's own byte-representation),
// and, whenever the value tree contains streaming nodes, opens auxiliary
// sub-streams carried in-band with a small routing header (internal/mux). A
// receiver reconstructs the value, exposing streaming nodes as live
// consumer handles (*Promise, *Iterator, *ByteStream) that pull from the
// demultiplexed channel.
//
// Schema composition mirrors the wire's type-tag algebra: Boolean, Uint8,
// Uint, Int, Float, BigIntSchema, String, U8ArraySchema, BufferSchema, Date,
// PotentiallyFloatStringSchema, Array, Object, Record, Map, Nullable,
// Optional, Union, PromiseSchema, IteratorSchema, ReadableStream,
// CompressionTable, Any and Pipe. Each schema's byte-representation (its
// Bytes method) is the content-address used to decide whether to inline it
// on the wire (see Encode/Decode).
package streamwire

// Tag is the one-byte type tag that leads every schema's byte-representation
// on the wire. Exact values are fixed by the wire format (spec.md §6) and
// must not be renumbered.
type Tag byte

const (
	TagArray                  Tag = 0x01
	TagObject                 Tag = 0x02
	TagString                 Tag = 0x03
	TagU8Array                Tag = 0x04
	TagBuffer                 Tag = 0x05
	TagPromise                Tag = 0x06
	TagIterator               Tag = 0x07
	TagBoolean                Tag = 0x08
	TagUint8                  Tag = 0x09
	TagUint                   Tag = 0x0A
	TagUnion                  Tag = 0x0B
	TagDate                   Tag = 0x0C
	TagInt                    Tag = 0x0D
	TagFloat                  Tag = 0x0E
	TagNullable               Tag = 0x0F
	TagOptional               Tag = 0x10
	TagBigInt                 Tag = 0x11
	TagReadableStream         Tag = 0x12
	TagRecord                 Tag = 0x13
	TagMap                    Tag = 0x14
	TagPotentiallyFloatString Tag = 0x15
	TagAny                    Tag = 0x16
	TagCompressionTable       Tag = 0x17
)

// Schema is the closed algebra of type constructors described in spec.md
// §3-§4. Every schema except a CompressionTable node is immutable after
// construction; a compression-table node keeps size-phase dedup state (see
// compressionTableSchema).
type Schema interface {
	// Tag returns the schema's leading wire byte.
	Tag() Tag

	// Bytes returns the schema's canonical byte-representation: the
	// content-address used to decide whether to inline the schema ahead of
	// a value on the wire, and the input to reflect_bytes.
	Bytes() []byte

	// Validate reports ErrValidation if v does not satisfy the schema.
	Validate(v any) error

	// size returns the number of wire bytes Write will emit for v. Streaming
	// nodes always report a fixed 2-byte size (a channel ID); the channel
	// itself is allocated lazily during write, not during sizing.
	size(v any) (int, error)

	// write emits v's wire bytes into wc at the schema's planned size.
	write(wc *WriteContext, v any) error

	// read decodes one value of this schema from rc.
	read(rc *ReadContext) (any, error)
}

// leaf is embedded by schemas with no children and a fixed one-byte
// byte-representation.
type leaf struct{ tag Tag }

func (l leaf) Tag() Tag      { return l.tag }
func (l leaf) Bytes() []byte { return []byte{byte(l.tag)} }
