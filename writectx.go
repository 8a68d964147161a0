// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamwire

import (
	"context"
	"fmt"

	"code.hybscloud.com/streamwire/internal/mux"
)

// WriteContext is a mutable cursor over a preallocated byte buffer: the
// root write proceeds in two phases (spec.md §4.2) — plan, where every
// node's size is computed, and emit, where each node's writer closure runs
// in tree order against one buffer sized to the sum of those sizes. Any
// attempt to write past the planned size is an internal error: it means a
// size computation disagreed with its writer.
type WriteContext struct {
	buf  []byte
	pos  int
	sess *mux.WriteSession

	// compressTables holds one write-phase dedup table per compression-table
	// node touched by this write sweep, keyed by schema identity so two
	// independent compression-table(T) nodes in the same tree never share a
	// scratchpad. A WriteContext is always fresh per root/sub-stream write
	// sweep (see encodeNode), so this map starts empty every sweep.
	compressTables map[*compressionTableSchema]*compressDedup
}

// newWriteContext returns a cursor over buf (sized exactly to the planned
// root value) bound to sess for opening sub-streams.
func newWriteContext(buf []byte, sess *mux.WriteSession) *WriteContext {
	return &WriteContext{buf: buf, sess: sess}
}

// Session returns the sub-stream multiplexer this context's sub-stream
// nodes should register against.
func (wc *WriteContext) Session() *mux.WriteSession { return wc.sess }

// PutByte writes one byte at the cursor.
func (wc *WriteContext) PutByte(b byte) error {
	if wc.pos >= len(wc.buf) {
		return fmt.Errorf("%w: write past planned size", ErrInternal)
	}
	wc.buf[wc.pos] = b
	wc.pos++
	return nil
}

// PutBytes writes p at the cursor.
func (wc *WriteContext) PutBytes(p []byte) error {
	if wc.pos+len(p) > len(wc.buf) {
		return fmt.Errorf("%w: write past planned size", ErrInternal)
	}
	copy(wc.buf[wc.pos:], p)
	wc.pos += len(p)
	return nil
}

// PutVarint writes v's canonical rolling-uint encoding at the cursor.
func (wc *WriteContext) PutVarint(v uint64) error {
	var tmp [9]byte
	n := putVarint(tmp[:], v)
	return wc.PutBytes(tmp[:n])
}

// openSubStream reserves id's 2-byte slot in the cursor and returns it so
// the caller can spawn its producer task. The channel ID itself is
// allocated here, during emit, per spec.md §4.2: "they reserve exactly two
// bytes ... and kick off an independent async task during the emit phase."
func (wc *WriteContext) openSubStream() (uint16, error) {
	id := wc.sess.AllocChannel()
	var tmp [2]byte
	tmp[0] = byte(id >> 8)
	tmp[1] = byte(id)
	if err := wc.PutBytes(tmp[:]); err != nil {
		return 0, err
	}
	return id, nil
}

// spawn runs fn as an independent sub-stream producer task under the
// session's task group.
func (wc *WriteContext) spawn(fn func(ctx context.Context) error) {
	wc.sess.Go(fn)
}

// sendFrame emits one routing frame for id through the session, queued
// until the root buffer has been flushed.
func (wc *WriteContext) sendFrame(id uint16, payload []byte) error {
	return wc.sess.SendFrame(id, payload)
}

// compressTableFor returns this write sweep's dedup table for s, creating
// it on first use.
func (wc *WriteContext) compressTableFor(s *compressionTableSchema) *compressDedup {
	if wc.compressTables == nil {
		wc.compressTables = make(map[*compressionTableSchema]*compressDedup)
	}
	t, ok := wc.compressTables[s]
	if !ok {
		t = newCompressDedup()
		wc.compressTables[s] = t
	}
	return t
}

// encodeNode plans and emits a single schema/value pair into its own
// preallocated buffer, bound to sess so any streaming nodes inside v open
// sub-streams against the same session. Sub-stream producer schemas
// (promise, iterator, readable-stream) use this to serialize a resolved
// value or a serializable error into a routing frame's payload.
func encodeNode(sess *mux.WriteSession, schema Schema, v any) ([]byte, error) {
	n, err := schema.size(v)
	if err != nil {
		return nil, err
	}
	resetCompressionPlans(schema)
	buf := make([]byte, n)
	sub := newWriteContext(buf, sess)
	if err := schema.write(sub, v); err != nil {
		return nil, err
	}
	return buf, nil
}
