// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mux implements the stream multiplexer described in spec.md §4.7:
// channel-ID allocation, frame routing, the pending queue that holds
// sub-stream frames emitted before the root buffer is flushed, and the
// quiescence-driven teardown of a serialize/deserialize session.
//
// It generalizes the per-message state machine of the teacher package's
// Forwarder (parse/read/write phases, retry-on-ErrWouldBlock contract) from
// relaying exactly one channel to routing an arbitrary number of
// concurrently open sub-streams over one ordered transport.
package mux
