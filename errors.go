// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamwire

import (
	"errors"

	"code.hybscloud.com/iox"
)

var (
	// ErrValidation reports that a value does not satisfy its schema's
	// predicate. Raised at encode time before any bytes are written; never
	// fatal to a session.
	ErrValidation = errors.New("streamwire: validation")

	// ErrProtocol reports a decode-side violation of the wire format: an
	// unknown type tag, a bad sub-stream flag, an out-of-range union index,
	// an invalid nullable/optional flag. Fatal for the session.
	ErrProtocol = errors.New("streamwire: protocol")

	// ErrOutOfData reports that the transport ended while a reader expected
	// more bytes, or that Options.MaxReadBytes was exceeded. It is returned
	// by the read that ran short. When Decode's dispatcher hits it while
	// sub-streams are still open, it aborts the session; the pending
	// *Promise, *Iterator and *ByteStream handles are not sent this error.
	// Fatal for the session.
	ErrOutOfData = errors.New("streamwire: out of data")

	// ErrInternal reports an invariant violation: a size mismatch between
	// the plan and emit phases of a write, or a compression-table index out
	// of range on read. Indicates a bug, not a malformed payload.
	ErrInternal = errors.New("streamwire: internal")

	// ErrInvalidArgument reports an invalid configuration, such as a union
	// schema with no alternatives, or a Decode of a session that omits its
	// schema when no schema was supplied.
	ErrInvalidArgument = errors.New("streamwire: invalid argument")

	// ErrCycle reports that infer_schema encountered a cyclic value graph.
	// The compression table's deep canonicalizer has no cycle guard and
	// does not raise it.
	ErrCycle = errors.New("streamwire: cyclic value")

	// ErrWouldBlock and ErrMore are re-exported iox control-flow signals:
	// not failures, but instructions to retry once more data is available
	// or once the caller is ready to make more progress.
	ErrWouldBlock = iox.ErrWouldBlock
	ErrMore       = iox.ErrMore
)

// StreamError is a user-defined error payload carried over a promise or
// iterator sub-stream. Unlike the sentinels above it is not session-fatal:
// it is delivered to the specific consumer and the session continues
// routing frames for other sub-streams.
type StreamError struct {
	Schema Schema
	Value  any
}

func (e *StreamError) Error() string {
	return "streamwire: serializable error"
}
