// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamwire

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"code.hybscloud.com/streamwire/internal/mux"
)

const (
	sessionHeaderOmit   byte = 0x00
	sessionHeaderInline byte = 0x01
)

// Encode validates v against schema and writes one framed session to w: a
// header byte, the schema's own bytes when the peer cannot be assumed to
// already hold them (see WithLastDigest), then v's wire bytes. If v's
// schema tree contains streaming nodes (promise, iterator, readable-stream),
// their content is carried afterward as routing frames multiplexed over w
// (internal/mux); Encode blocks until every one of those sub-streams has
// finished sending before returning, so a caller sees either a complete
// error or a fully transmitted session.
func Encode(ctx context.Context, w io.Writer, schema Schema, v any, opts ...Option) error {
	if err := schema.Validate(v); err != nil {
		return err
	}

	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}

	inline := true
	if o.LastDigest != nil && *o.LastDigest == SchemaDigest(schema) {
		inline = false
	}

	sess := mux.NewWriteSession(ctx, w)

	valueBytes, err := encodeNode(sess, schema, v)
	if err != nil {
		return err
	}

	var header []byte
	if inline {
		sb := schema.Bytes()
		header = make([]byte, 0, 1+len(sb))
		header = append(header, sessionHeaderInline)
		header = append(header, sb...)
	} else {
		header = []byte{sessionHeaderOmit}
	}

	if _, err := w.Write(header); err != nil {
		return err
	}
	if _, err := w.Write(valueBytes); err != nil {
		return err
	}
	if err := sess.FlushRoot(); err != nil {
		return err
	}
	return sess.Wait()
}

// Decode reads one framed session from r. schema is the expected shape
// when the sender may have omitted it (WithLastDigest symmetry with
// Encode); it is ignored when the wire carries an inline schema, and may
// be nil when the sender never omits one. The returned value's streaming
// nodes (*Promise, *Iterator, *ByteStream) are live immediately: a
// background goroutine keeps demultiplexing routing frames off r and
// feeding them as the caller drains the handles, until every sub-stream
// reaches quiescence.
func Decode(ctx context.Context, r io.Reader, schema Schema, opts ...Option) (any, error) {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}

	sess := mux.NewReadSession()
	rc := newReadContext(r, sess)
	rc.retryDelay = o.RetryDelay
	rc.maxBytes = o.MaxReadBytes

	header, err := rc.ReadByte()
	if err != nil {
		return nil, err
	}

	useSchema := schema
	switch header {
	case sessionHeaderInline:
		useSchema, err = reflectFromContext(rc)
		if err != nil {
			return nil, err
		}
	case sessionHeaderOmit:
		if useSchema == nil {
			return nil, fmt.Errorf("%w: session omits its schema and none was supplied", ErrInvalidArgument)
		}
	default:
		return nil, fmt.Errorf("%w: invalid session header 0x%02x", ErrProtocol, header)
	}

	v, err := useSchema.read(rc)
	if err != nil {
		return nil, err
	}

	go driveDispatch(ctx, rc, sess)
	return v, nil
}

// driveDispatch keeps pulling routing frames off rc and dispatching them
// through sess until every sub-stream has reached quiescence or the
// transport fails, per spec.md §4.7's "drain until quiescent" session
// lifecycle.
func driveDispatch(ctx context.Context, rc *ReadContext, sess *mux.ReadSession) {
	for {
		select {
		case <-sess.Quiesced():
			return
		case <-ctx.Done():
			sess.Abort()
			return
		default:
		}
		id, err := rc.ReadID()
		if err != nil {
			sess.Abort()
			return
		}
		if _, err := sess.Dispatch(id); err != nil {
			sess.Abort()
			return
		}
	}
}

// EncodeBytes is Encode against an in-memory buffer, for callers that want
// the finished bytes rather than a live io.Writer.
func EncodeBytes(ctx context.Context, schema Schema, v any, opts ...Option) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(ctx, &buf, schema, v, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeBytes is Decode against an in-memory buffer. Any streaming nodes
// in the result are fed from the same buffer's trailing routing frames, so
// they settle immediately rather than waiting on further transport input.
func DecodeBytes(ctx context.Context, b []byte, schema Schema, opts ...Option) (any, error) {
	return Decode(ctx, bytes.NewReader(b), schema, opts...)
}
