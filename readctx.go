// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamwire

import (
	"fmt"
	"io"
	"runtime"
	"time"

	"code.hybscloud.com/streamwire/internal/mux"
)

// ReadContext is an async byte source over a chunked io.Reader, providing
// read_byte/peek_byte/read_n (spec.md §4.3). It keeps a buffer of received
// bytes and a read cursor; EOF while more data is expected is reported as
// ErrOutOfData rather than io.EOF, since a well-formed session never ends
// mid-value.
//
// At any moment exactly one caller owns a ReadContext: the top-level decode
// loop while parsing the root value, and whichever sub-stream handler is
// currently running while parsing a routed frame. Ownership is cooperative,
// not enforced by a lock, mirroring the single-reader-at-a-time discipline
// framer.go's readStream uses for its own cursor.
type ReadContext struct {
	r          io.Reader
	buf        []byte
	off        int
	retryDelay time.Duration
	sess       *mux.ReadSession

	// maxBytes caps cumulative bytes read from the transport (Options.
	// MaxReadBytes); zero means unbounded. totalRead tracks bytes fill has
	// appended so far, including ones since compacted away.
	maxBytes  int
	totalRead int

	// compress is the decode-side compression-table scratchpad, shared by
	// every compression-table(T) node this ReadContext ever decodes
	// (including ones reached from sub-stream frame handlers, since they
	// share the same ReadContext instance as the root decode).
	compress *compressReadTable
}

// newReadContext wraps r with a default non-blocking retry policy
// (RetryDelay < 0): iox.ErrWouldBlock is returned to the caller at once,
// not retried, matching framer's default Options.RetryDelay of -1.
func newReadContext(r io.Reader, sess *mux.ReadSession) *ReadContext {
	return &ReadContext{r: r, retryDelay: -1, sess: sess}
}

// Session returns the multiplexer this context's sub-stream nodes register
// handlers against.
func (rc *ReadContext) Session() *mux.ReadSession { return rc.sess }

// fill reads more bytes from the transport, retrying on iox.ErrWouldBlock
// per rc.retryDelay: negative means return the error immediately to the
// caller (nonblocking), zero means cooperatively yield and retry, positive
// means sleep and retry. This is the same policy framer.Options.RetryDelay
// documents for its own transport reads.
func (rc *ReadContext) fill() error {
	if rc.maxBytes > 0 && rc.totalRead >= rc.maxBytes {
		return fmt.Errorf("%w: exceeded MaxReadBytes", ErrOutOfData)
	}
	tmp := make([]byte, 4096)
	for {
		n, err := rc.r.Read(tmp)
		if n > 0 {
			rc.buf = append(rc.buf, tmp[:n]...)
			rc.totalRead += n
			return nil
		}
		if err == nil {
			continue
		}
		if err == ErrWouldBlock || err == ErrMore {
			if rc.retryDelay < 0 {
				return err
			}
			if rc.retryDelay == 0 {
				runtime.Gosched()
				continue
			}
			time.Sleep(rc.retryDelay)
			continue
		}
		if err == io.EOF {
			return ErrOutOfData
		}
		return err
	}
}

func (rc *ReadContext) ensure(n int) error {
	for len(rc.buf)-rc.off < n {
		if err := rc.fill(); err != nil {
			return err
		}
	}
	return nil
}

// ReadByte returns the next byte, advancing the cursor.
func (rc *ReadContext) ReadByte() (byte, error) {
	if err := rc.ensure(1); err != nil {
		return 0, err
	}
	b := rc.buf[rc.off]
	rc.off++
	rc.compact()
	return b, nil
}

// PeekByte returns the next byte without advancing the cursor.
func (rc *ReadContext) PeekByte() (byte, error) {
	if err := rc.ensure(1); err != nil {
		return 0, err
	}
	return rc.buf[rc.off], nil
}

// ReadN returns the next n bytes, advancing the cursor. The returned slice
// is a fresh copy that the caller may keep.
func (rc *ReadContext) ReadN(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if err := rc.ensure(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, rc.buf[rc.off:rc.off+n])
	rc.off += n
	rc.compact()
	return out, nil
}

// ReadVarint decodes a rolling-uint varint at the cursor, accepting
// non-canonical encodings for robustness.
func (rc *ReadContext) ReadVarint() (uint64, error) {
	lead, err := rc.PeekByte()
	if err != nil {
		return 0, err
	}
	var need int
	switch lead {
	case varintLead16:
		need = 3
	case varintLead32:
		need = 5
	case varintLead64:
		need = 9
	default:
		need = 1
	}
	b, err := rc.ReadN(need)
	if err != nil {
		return 0, err
	}
	v, consumed, err := takeVarint(b)
	if err != nil || consumed != need {
		return 0, ErrProtocol
	}
	return v, nil
}

// compact drops consumed bytes once the backlog grows, so a long session
// does not retain every byte it has ever read.
func (rc *ReadContext) compact() {
	if rc.off < 4096 {
		return
	}
	rc.buf = append(rc.buf[:0], rc.buf[rc.off:]...)
	rc.off = 0
}

// compressReadTable returns this session's compression-table scratchpad,
// creating it on first use.
func (rc *ReadContext) compressReadTable() *compressReadTable {
	if rc.compress == nil {
		rc.compress = newCompressReadTable()
	}
	return rc.compress
}

// ReadID reads a 16-bit big-endian channel ID, per the routing frame
// layout (spec.md §6).
func (rc *ReadContext) ReadID() (uint16, error) {
	b, err := rc.ReadN(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}
