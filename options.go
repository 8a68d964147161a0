// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamwire

import "time"

// Options configures a single Encode or Decode call, following the same
// functional-options shape as framer.Options: a private defaulted struct
// mutated by chainable With* constructors.
type Options struct {
	// RetryDelay controls how ReadContext.fill handles ErrWouldBlock/ErrMore
	// from the underlying transport:
	//   - negative: nonblock, return the error immediately
	//   - zero: yield (runtime.Gosched) and retry
	//   - positive: sleep for the duration and retry
	RetryDelay time.Duration

	// LastDigest, if set, is the schema digest this call's peer is assumed
	// to already hold from an earlier message on the same session: Encode
	// omits the inline schema when it matches. Decode does not consult it;
	// it decodes a schema-omitting session against the schema passed to it
	// and fails with ErrInvalidArgument when none was passed.
	LastDigest *Digest

	// MaxReadBytes caps the total bytes a Decode call will buffer before
	// failing with ErrOutOfData. Zero means unbounded.
	MaxReadBytes int
}

var defaultOptions = Options{RetryDelay: -1}

type Option func(*Options)

// WithRetryDelay sets the retry/wait policy used when the underlying
// transport returns ErrWouldBlock or ErrMore.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) { o.RetryDelay = d }
}

// WithBlock enables cooperative blocking (yield-and-retry) on ErrWouldBlock.
func WithBlock() Option {
	return func(o *Options) { o.RetryDelay = 0 }
}

// WithNonblock forces non-blocking behavior (return ErrWouldBlock immediately).
func WithNonblock() Option {
	return func(o *Options) { o.RetryDelay = -1 }
}

// WithLastDigest records the schema digest this session's peer is assumed
// to already have cached.
func WithLastDigest(d Digest) Option {
	return func(o *Options) { o.LastDigest = &d }
}

// WithMaxReadBytes bounds how much a Decode call will buffer before
// giving up with ErrOutOfData.
func WithMaxReadBytes(n int) Option {
	return func(o *Options) { o.MaxReadBytes = n }
}
