// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mux

import "errors"

// errUnknownChannel reports a routed frame addressed to a channel ID that
// was never registered: a protocol violation from the sender's side.
var errUnknownChannel = errors.New("mux: unknown channel")

// ErrUnknownChannel is the exported form, for callers that need to
// translate it into their own protocol-error sentinel.
var ErrUnknownChannel = errUnknownChannel
