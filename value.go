// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamwire

import (
	"context"
	"io"
)

// BigInt carries the "bigint" leaf type: an unsigned 64-bit integer with a
// distinct wire tag from uint, so that a reflected schema can tell the two
// apart even though Go represents both as 64-bit integers.
type BigInt uint64

// U8Array and Buffer both carry raw bytes and are, byte for byte, identical
// on the wire payload; only the schema tag distinguishes them (§4.4). Two
// named types let Go's type system carry that distinction on decode:
// U8ArraySchema reads back a U8Array and BufferSchema a Buffer. inferSchema
// maps both (and plain []byte) to u8-array.
type U8Array []byte
type Buffer []byte

// PotentiallyFloatString is produced only by reflection (tag 0x15): a string
// that may denote a float, preserved so round-tripping a reflected schema
// does not collapse it into a plain string.
type PotentiallyFloatString string

type absentMarker struct{}

// None is the sentinel value of an absent optional(T). It is distinct from
// Go's nil, which represents a present-but-null nullable(T).
var None = &absentMarker{}

// MapEntry is one key/value pair of a map(K,V) value. Order is preserved as
// given; the wire format does not sort map entries (only object fields are
// sorted).
type MapEntry struct {
	Key   any
	Value any
}

// MapValue is the runtime representation of a map(K,V) value: an ordered
// sequence of entries, since Go's map type cannot preserve insertion order
// and the wire format's iteration order must be reproducible.
type MapValue []MapEntry

// Promise is the runtime handle for a promise(T) value.
//
// On the write side, construct one with NewPromise and settle it exactly
// once with Resolve or Reject; the writer blocks on Await internally while
// emitting the single terminal frame for its sub-stream.
//
// On the read side, Decode returns a *Promise already wired to the session's
// multiplexer; call Await to block until the single frame arrives.
type Promise struct {
	done chan struct{}
	val  any
	err  error
}

// NewPromise returns an unsettled promise handle.
func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Resolve settles the promise with a success value. Settling twice panics,
// matching the "exactly one terminal frame" contract of §4.7.
func (p *Promise) Resolve(v any) {
	p.val = v
	close(p.done)
}

// Reject settles the promise with a serializable error.
func (p *Promise) Reject(err error) {
	p.err = err
	close(p.done)
}

// Await blocks until the promise settles or ctx is done.
func (p *Promise) Await(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Iterator is the runtime handle for an iterator(T) value: a finite or
// infinite stream of T terminated by a normal end or an error.
//
// On the write side, construct one with NewIteratorProducer and push values
// with Yield, then call Close or Fail exactly once.
//
// On the read side, Decode returns a *Iterator wired to the session; call
// Next repeatedly until ok is false, then check the err it returned.
type Iterator struct {
	items  chan any
	done   chan error
	cancel chan struct{}
	err    error

	// onCancel, set by the decode path, releases this sub-stream's mux
	// registration so the session can reach quiescence without waiting for
	// an abandoned infinite iterator's producer to finish on its own.
	onCancel func()
}

type iterItem struct {
	v   any
	end bool
	err error
}

// NewIteratorProducer returns a producer/consumer pair for an iterator(T)
// value. The producer side is used by the writer; the consumer side
// (*Iterator) is handed to the caller as the schema value to serialize.
func NewIteratorProducer() (*IteratorProducer, *Iterator) {
	ch := make(chan iterItem, 1)
	cancel := make(chan struct{})
	consumer := &Iterator{items: make(chan any, 1), done: make(chan error, 1), cancel: cancel}
	go func() {
		for item := range ch {
			if item.end {
				consumer.done <- item.err
				close(consumer.items)
				return
			}
			consumer.items <- item.v
		}
	}()
	return &IteratorProducer{ch: ch, cancel: cancel}, consumer
}

// IteratorProducer is the write-side handle for pushing values into an
// iterator(T) sub-stream.
type IteratorProducer struct {
	ch     chan iterItem
	cancel chan struct{}
}

// Yield pushes one value to the consumer. It returns false if the consumer
// has cancelled (dropped its handle).
func (p *IteratorProducer) Yield(ctx context.Context, v any) bool {
	select {
	case p.ch <- iterItem{v: v}:
		return true
	case <-p.cancel:
		return false
	case <-ctx.Done():
		return false
	}
}

// Close signals normal end of the iterator.
func (p *IteratorProducer) Close() { p.ch <- iterItem{end: true}; close(p.ch) }

// Fail signals an error end of the iterator with a serializable error.
func (p *IteratorProducer) Fail(err error) { p.ch <- iterItem{end: true, err: err}; close(p.ch) }

// Next blocks until the next value is available, the iterator ends, or ctx
// is done. Values already produced are returned before the end. ok is false
// once the iterator has ended, with err holding any terminal error.
func (it *Iterator) Next(ctx context.Context) (v any, ok bool, err error) {
	select {
	case v, open := <-it.items:
		if !open {
			// The terminal error is sent on done before items is closed.
			select {
			case e := <-it.done:
				it.err = e
			default:
			}
			return nil, false, it.err
		}
		return v, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Cancel releases the consumer handle without draining it further. The
// session performs a "slurp" release on the sub-stream so routing frames
// for this iterator's channel ID continue to be consumed and discarded.
func (it *Iterator) Cancel() {
	select {
	case <-it.cancel:
	default:
		close(it.cancel)
		if it.onCancel != nil {
			it.onCancel()
		}
	}
}

// ByteStream is the runtime handle for a readable-stream value: a sequence
// of raw byte chunks with no value schema, terminated by EOF.
//
// On both the write and read sides it behaves as an io.Reader: the writer
// side wraps a user-supplied io.Reader and forwards its chunks as frames;
// the read side exposes a io.Reader fed by the demultiplexer.
type ByteStream struct {
	chunks chan []byte
	errc   chan error
	cancel chan struct{}
	buf    []byte

	// onCancel, set by the decode path, releases this sub-stream's mux
	// registration; see Iterator.onCancel.
	onCancel func()
}

// NewByteStreamProducer returns a producer/consumer pair for a
// readable-stream value, mirroring NewIteratorProducer's split.
func NewByteStreamProducer() (*ByteStreamProducer, *ByteStream) {
	ch := make(chan []byte, 4)
	errc := make(chan error, 1)
	cancel := make(chan struct{})
	return &ByteStreamProducer{ch: ch, errc: errc, cancel: cancel},
		&ByteStream{chunks: ch, errc: errc, cancel: cancel}
}

// ByteStreamProducer is the write-side handle for pushing chunks into a
// readable-stream sub-stream. Zero-length chunks are filtered per §4.7 and
// never reach the consumer.
type ByteStreamProducer struct {
	ch     chan []byte
	errc   chan error
	cancel chan struct{}
}

// Write pushes one chunk. It implements io.Writer so a producer can be fed
// directly by io.Copy from an arbitrary source.
func (p *ByteStreamProducer) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	select {
	case p.ch <- cp:
		return len(b), nil
	case <-p.cancel:
		return 0, ErrOutOfData
	}
}

// Close signals EOF to the consumer.
func (p *ByteStreamProducer) Close() error {
	close(p.ch)
	return nil
}

// Read implements io.Reader by pulling chunks off the channel.
func (bs *ByteStream) Read(p []byte) (int, error) {
	for len(bs.buf) == 0 {
		chunk, open := <-bs.chunks
		if !open {
			select {
			case err := <-bs.errc:
				return 0, err
			default:
				return 0, io.EOF
			}
		}
		bs.buf = chunk
	}
	n := copy(p, bs.buf)
	bs.buf = bs.buf[n:]
	return n, nil
}

// Cancel releases the consumer handle; the session slurp-releases the
// underlying sub-stream.
func (bs *ByteStream) Cancel() {
	select {
	case <-bs.cancel:
	default:
		close(bs.cancel)
		if bs.onCancel != nil {
			bs.onCancel()
		}
	}
}

var _ io.Reader = (*ByteStream)(nil)
var _ io.Writer = (*ByteStreamProducer)(nil)
