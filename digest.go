// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamwire

import "crypto/sha256"

// Digest is a schema's content address: the SHA-256 of its canonical byte
// representation. Encode uses it to decide whether the schema needs to be
// sent inline ahead of a value, or whether the peer can be trusted to
// already hold it (see Options.LastDigest).
type Digest [sha256.Size]byte

// SchemaDigest computes s's digest.
func SchemaDigest(s Schema) Digest {
	return sha256.Sum256(s.Bytes())
}
