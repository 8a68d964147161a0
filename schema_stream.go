// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamwire

import (
	"context"
	"fmt"
	"io"

	"code.hybscloud.com/streamwire/internal/mux"
)

// Streaming nodes (promise, iterator, readable-stream) all occupy a fixed
// 2-byte slot in their parent's planned size: a 16-bit sub-stream channel
// ID, allocated lazily during emit (schema.go's size/write split). Their
// actual content travels as routing frames dispatched through
// internal/mux, independently of the root value's write/read.

const (
	// promise(T) has exactly two legal flags (spec.md §4.7): flag=1 is
	// success, flag=0 is failure. Any other flag is a protocol error.
	promiseFlagResolved byte = 0x01
	promiseFlagRejected byte = 0x00

	// iterator(T) has three legal flags: flag=1 is a continuation value,
	// flag=0 is normal end, flag=2 is an error end.
	iterFlagValue byte = 0x01
	iterFlagEnd   byte = 0x00
	iterFlagError byte = 0x02
)

// errorSchemaAndValue splits a serializable error into a schema/value pair
// for wire encoding: a *StreamError carries its own schema, anything else
// is encoded as its message string.
func errorSchemaAndValue(err error) (Schema, any) {
	if se, ok := err.(*StreamError); ok {
		return se.Schema, se.Value
	}
	return String(), err.Error()
}

// -- promise(T) --

type promiseSchema struct {
	elem  Schema
	bytes []byte
}

// PromiseSchema returns the promise(T) schema.
func PromiseSchema(elem Schema) Schema {
	b := append([]byte{byte(TagPromise)}, elem.Bytes()...)
	return &promiseSchema{elem: elem, bytes: b}
}

func (s *promiseSchema) Tag() Tag      { return TagPromise }
func (s *promiseSchema) Bytes() []byte { return s.bytes }

func (s *promiseSchema) Validate(v any) error {
	if _, ok := v.(*Promise); !ok {
		return fmt.Errorf("%w: promise expects *Promise, got %T", ErrValidation, v)
	}
	return nil
}

func (s *promiseSchema) size(v any) (int, error) {
	if _, ok := v.(*Promise); !ok {
		return 0, fmt.Errorf("%w: promise expects *Promise, got %T", ErrValidation, v)
	}
	return 2, nil
}

func (s *promiseSchema) write(wc *WriteContext, v any) error {
	p, ok := v.(*Promise)
	if !ok {
		return fmt.Errorf("%w: promise expects *Promise, got %T", ErrValidation, v)
	}
	id, err := wc.openSubStream()
	if err != nil {
		return err
	}
	sess := wc.Session()
	wc.spawn(func(ctx context.Context) error {
		val, perr := p.Await(ctx)
		var payload []byte
		if perr != nil {
			payload, err = buildErrorFrame(sess, promiseFlagRejected, perr)
		} else {
			var body []byte
			body, err = encodeNode(sess, s.elem, val)
			if err == nil {
				payload = append([]byte{promiseFlagResolved}, body...)
			}
		}
		if err != nil {
			return err
		}
		return sess.SendFrame(id, payload)
	})
	return nil
}

func (s *promiseSchema) read(rc *ReadContext) (any, error) {
	id, err := rc.ReadID()
	if err != nil {
		return nil, err
	}
	p := NewPromise()
	rc.Session().Register(id, func() (bool, error) {
		flag, err := rc.ReadByte()
		if err != nil {
			return false, err
		}
		switch flag {
		case promiseFlagResolved:
			v, err := s.elem.read(rc)
			if err != nil {
				return false, err
			}
			p.Resolve(v)
			return true, nil
		case promiseFlagRejected:
			se, err := readErrorFrame(rc)
			if err != nil {
				return false, err
			}
			p.Reject(se)
			return true, nil
		default:
			return false, fmt.Errorf("%w: invalid promise flag 0x%02x", ErrProtocol, flag)
		}
	})
	return p, nil
}

// -- iterator(T) --

type iteratorSchema struct {
	elem  Schema
	bytes []byte
}

// IteratorSchema returns the iterator(T) schema.
func IteratorSchema(elem Schema) Schema {
	b := append([]byte{byte(TagIterator)}, elem.Bytes()...)
	return &iteratorSchema{elem: elem, bytes: b}
}

func (s *iteratorSchema) Tag() Tag      { return TagIterator }
func (s *iteratorSchema) Bytes() []byte { return s.bytes }

func (s *iteratorSchema) Validate(v any) error {
	if _, ok := v.(*Iterator); !ok {
		return fmt.Errorf("%w: iterator expects *Iterator, got %T", ErrValidation, v)
	}
	return nil
}

func (s *iteratorSchema) size(v any) (int, error) {
	if _, ok := v.(*Iterator); !ok {
		return 0, fmt.Errorf("%w: iterator expects *Iterator, got %T", ErrValidation, v)
	}
	return 2, nil
}

func (s *iteratorSchema) write(wc *WriteContext, v any) error {
	it, ok := v.(*Iterator)
	if !ok {
		return fmt.Errorf("%w: iterator expects *Iterator, got %T", ErrValidation, v)
	}
	id, err := wc.openSubStream()
	if err != nil {
		return err
	}
	sess := wc.Session()
	wc.spawn(func(ctx context.Context) error {
		for {
			val, ok, err := it.Next(ctx)
			if err != nil && !ok {
				payload, perr := buildErrorFrame(sess, iterFlagError, err)
				if perr != nil {
					return perr
				}
				return sess.SendFrame(id, payload)
			}
			if !ok {
				return sess.SendFrame(id, []byte{iterFlagEnd})
			}
			body, err := encodeNode(sess, s.elem, val)
			if err != nil {
				return err
			}
			payload := append([]byte{iterFlagValue}, body...)
			if err := sess.SendFrame(id, payload); err != nil {
				return err
			}
		}
	})
	return nil
}

func (s *iteratorSchema) read(rc *ReadContext) (any, error) {
	id, err := rc.ReadID()
	if err != nil {
		return nil, err
	}
	producer, consumer := NewIteratorProducer()
	consumer.onCancel = func() { rc.Session().Release(id) }
	rc.Session().Register(id, func() (bool, error) {
		flag, err := rc.ReadByte()
		if err != nil {
			return false, err
		}
		switch flag {
		case iterFlagValue:
			v, err := s.elem.read(rc)
			if err != nil {
				return false, err
			}
			producer.Yield(context.Background(), v)
			return false, nil
		case iterFlagEnd:
			producer.Close()
			return true, nil
		case iterFlagError:
			se, err := readErrorFrame(rc)
			if err != nil {
				return false, err
			}
			producer.Fail(se)
			return true, nil
		default:
			return false, fmt.Errorf("%w: invalid iterator flag 0x%02x", ErrProtocol, flag)
		}
	})
	return consumer, nil
}

// -- readable-stream --

type readableStreamSchema struct{ leaf }

// ReadableStream returns the readable-stream schema: a raw byte stream with
// no element schema.
func ReadableStream() Schema { return &readableStreamSchema{leaf{TagReadableStream}} }

func (s *readableStreamSchema) Validate(v any) error {
	if _, ok := v.(io.Reader); !ok {
		return fmt.Errorf("%w: readable-stream expects io.Reader, got %T", ErrValidation, v)
	}
	return nil
}

func (s *readableStreamSchema) size(v any) (int, error) {
	if _, ok := v.(io.Reader); !ok {
		return 0, fmt.Errorf("%w: readable-stream expects io.Reader, got %T", ErrValidation, v)
	}
	return 2, nil
}

func (s *readableStreamSchema) write(wc *WriteContext, v any) error {
	r, ok := v.(io.Reader)
	if !ok {
		return fmt.Errorf("%w: readable-stream expects io.Reader, got %T", ErrValidation, v)
	}
	id, err := wc.openSubStream()
	if err != nil {
		return err
	}
	sess := wc.Session()
	wc.spawn(func(ctx context.Context) error {
		buf := make([]byte, 4096)
		for {
			n, rerr := r.Read(buf)
			if n > 0 {
				payload := make([]byte, 0, 9+n)
				var tmp [9]byte
				ln := putVarint(tmp[:], uint64(n))
				payload = append(payload, tmp[:ln]...)
				payload = append(payload, buf[:n]...)
				if err := sess.SendFrame(id, payload); err != nil {
					return err
				}
			}
			if rerr == io.EOF {
				return sess.SendFrame(id, []byte{0x00})
			}
			if rerr != nil {
				return rerr
			}
		}
	})
	return nil
}

func (s *readableStreamSchema) read(rc *ReadContext) (any, error) {
	id, err := rc.ReadID()
	if err != nil {
		return nil, err
	}
	producer, consumer := NewByteStreamProducer()
	consumer.onCancel = func() { rc.Session().Release(id) }
	rc.Session().Register(id, func() (bool, error) {
		n, err := rc.ReadVarint()
		if err != nil {
			return false, err
		}
		if n == 0 {
			producer.Close()
			return true, nil
		}
		b, err := rc.ReadN(int(n))
		if err != nil {
			return false, err
		}
		producer.Write(b)
		return false, nil
	})
	return consumer, nil
}

// -- shared error-frame helpers for promise/iterator terminal errors --

// buildErrorFrame encodes err as a terminal error payload under the given
// flag (iterFlagError for iterator, promiseFlagRejected for promise):
// flag, schema bytes, then the error's value written per that schema. The
// schema bytes carry no length prefix — they are self-delimiting, per
// spec.md §4.7's "a schema-bytes for the error type immediately followed by
// that error value" — so the reader recovers the boundary the same way
// reflectFromContext does for any other inline schema. Inlining the schema
// lets the reader decode an error of any shape, since promise and iterator
// errors are not bound to a fixed error schema.
func buildErrorFrame(sess *mux.WriteSession, flag byte, err error) ([]byte, error) {
	schema, val := errorSchemaAndValue(err)
	schemaBytes := schema.Bytes()
	body, berr := encodeNode(sess, schema, val)
	if berr != nil {
		return nil, berr
	}
	payload := make([]byte, 0, 1+len(schemaBytes)+len(body))
	payload = append(payload, flag)
	payload = append(payload, schemaBytes...)
	payload = append(payload, body...)
	return payload, nil
}

// readErrorFrame decodes a buildErrorFrame payload's tail (the flag byte
// itself has already been consumed by the caller) into a *StreamError.
func readErrorFrame(rc *ReadContext) (*StreamError, error) {
	schema, err := reflectFromContext(rc)
	if err != nil {
		return nil, err
	}
	val, err := schema.read(rc)
	if err != nil {
		return nil, err
	}
	return &StreamError{Schema: schema, Value: val}, nil
}
