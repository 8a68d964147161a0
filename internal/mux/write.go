// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mux

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// WriteSession owns channel-ID allocation and the single-writer-at-a-time
// discipline over a session's transport. Root content is always written
// before any sub-stream content; frames produced while the root buffer is
// still being written are held in a pending queue and drained in order once
// FlushRoot is called.
type WriteSession struct {
	mu       sync.Mutex
	w        io.Writer
	nextID   uint32
	rootDone bool
	pending  [][]byte

	g      *errgroup.Group
	gctx   context.Context
	active int32
}

// NewWriteSession returns a session that serializes all writes to w and
// tracks sub-stream producer tasks under ctx via an errgroup.
func NewWriteSession(ctx context.Context, w io.Writer) *WriteSession {
	g, gctx := errgroup.WithContext(ctx)
	return &WriteSession{w: w, g: g, gctx: gctx}
}

// Context returns the session's task context, cancelled on the first
// producer error.
func (s *WriteSession) Context() context.Context { return s.gctx }

// AllocChannel reserves the next sequential 16-bit sub-stream ID. IDs are
// unique within a session, per spec.md's invariants.
func (s *WriteSession) AllocChannel() uint16 {
	return uint16(atomic.AddUint32(&s.nextID, 1) - 1)
}

// Go runs fn as an independent sub-stream producer task, counted toward the
// session's active-stream set so FlushRoot's caller can await full
// quiescence via Wait.
func (s *WriteSession) Go(fn func(ctx context.Context) error) {
	atomic.AddInt32(&s.active, 1)
	s.g.Go(func() error {
		defer atomic.AddInt32(&s.active, -1)
		return fn(s.gctx)
	})
}

// SendFrame writes one routing frame: a 2-byte big-endian channel ID
// followed by payload. Before the root buffer has been flushed, frames are
// queued in arrival order rather than written directly, so sub-stream
// content never races ahead of the root on the wire.
func (s *WriteSession) SendFrame(id uint16, payload []byte) error {
	frame := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(frame[:2], id)
	copy(frame[2:], payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.rootDone {
		s.pending = append(s.pending, frame)
		return nil
	}
	_, err := s.w.Write(frame)
	return err
}

// FlushRoot marks the root buffer as written and drains any frames queued
// while it was still in flight.
func (s *WriteSession) FlushRoot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rootDone = true
	for _, frame := range s.pending {
		if _, err := s.w.Write(frame); err != nil {
			return err
		}
	}
	s.pending = nil
	return nil
}

// Wait blocks until every sub-stream producer task has returned, and
// reports the first error any of them returned (or the context's error on
// cancellation).
func (s *WriteSession) Wait() error { return s.g.Wait() }
