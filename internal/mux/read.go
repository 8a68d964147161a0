// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mux

import "sync"

// Handler decodes exactly one routed frame for its channel. It owns the
// shared reader for the duration of the call (spec.md §4.3: "at any moment
// exactly one handler owns the reader, swapping ownership at frame
// boundaries"), and reports done=true once its sub-stream has reached a
// terminal frame (a promise's single frame, an iterator's end flag, a
// byte-stream's EOF chunk).
type Handler func() (done bool, err error)

type entry struct {
	handle   Handler
	released bool
}

// ReadSession tracks registered sub-stream handlers and the session's
// quiescence state: once every registered handler has either completed
// naturally or been released by its consumer, the session is done reading
// and the caller should abort its transport input.
type ReadSession struct {
	mu       sync.Mutex
	handlers map[uint16]*entry
	usages   int
	quiesced chan struct{}
	once     sync.Once
}

// NewReadSession returns an empty session.
func NewReadSession() *ReadSession {
	return &ReadSession{handlers: make(map[uint16]*entry), quiesced: make(chan struct{})}
}

// Register associates h with id and increments the usage count.
func (s *ReadSession) Register(id uint16, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[id] = &entry{handle: h}
	s.usages++
}

// Lookup returns the handler registered for id, if any.
func (s *ReadSession) Lookup(id uint16) (Handler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.handlers[id]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// Dispatch invokes the handler registered for id. When the handler reports
// its sub-stream has reached a terminal frame, the registration is removed
// and the usage count decremented (unless Release already did so).
func (s *ReadSession) Dispatch(id uint16) (bool, error) {
	h, ok := s.Lookup(id)
	if !ok {
		return false, errUnknownChannel
	}
	done, err := h()
	if err != nil {
		return false, err
	}
	if done {
		s.complete(id)
	}
	return done, nil
}

func (s *ReadSession) complete(id uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.handlers[id]
	if !ok {
		return
	}
	delete(s.handlers, id)
	if !e.released {
		e.released = true
		s.usages--
	}
	s.maybeQuiesceLocked()
}

// Release marks id's registration as finalized from the consumer's side
// (a "slurp" release, per spec.md §4.7): the usage count is decremented
// immediately, even though frames for id may still need parsing by the
// still-registered handler until its own terminal frame arrives. The
// caller's consumer handle is expected to have already switched its
// handler into discard mode.
func (s *ReadSession) Release(id uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.handlers[id]
	if !ok || e.released {
		return
	}
	e.released = true
	s.usages--
	s.maybeQuiesceLocked()
}

func (s *ReadSession) maybeQuiesceLocked() {
	if s.usages <= 0 {
		s.once.Do(func() { close(s.quiesced) })
	}
}

// Quiesced reports when every registered handler has been released or
// completed naturally.
func (s *ReadSession) Quiesced() <-chan struct{} { return s.quiesced }

// Abort force-quiesces the session, used when the transport ends or a
// handler fails while usages > 0, so pending callers of Quiesced unblock.
// Registered handlers are not notified.
func (s *ReadSession) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.once.Do(func() { close(s.quiesced) })
}
