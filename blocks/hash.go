// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package blocks implements the native cell format of the chain: the
// bag-of-cells (BoC) serialization, representation hashing, and the block and
// state structures the light client needs to read from downloaded BoCs.
package blocks

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashSize is the byte length of every hash used by the chain.
const HashSize = 32

// Hash is a 32-byte sha256 digest. Both representation hashes (over the cell
// tree) and file hashes (over the serialized blob) use this type.
type Hash [HashSize]byte

// Hex returns the lowercase hex encoding of the hash.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// String implements fmt.Stringer.
func (h Hash) String() string {
	return h.Hex()
}

// IsZero reports whether the hash is all zeroes.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// HashFromHex parses a 64-character hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if len(raw) != HashSize {
		return h, fmt.Errorf("invalid hash %q: expected %d bytes, got %d", s, HashSize, len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

// FileHash computes the file hash of a serialized blob: sha256 over the raw
// bytes. Distinct from the representation hash, which covers the cell tree.
func FileHash(blob []byte) Hash {
	return sha256.Sum256(blob)
}
