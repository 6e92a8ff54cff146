// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package blocks

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// ValidatorDescr describes one validator of the chain: its node identifier
// (sha256 of the public key), the ed25519 public key, and its voting weight.
type ValidatorDescr struct {
	NodeID    Hash
	PublicKey [32]byte
	Weight    uint64
}

// PubKey returns the validator's key as an ed25519.PublicKey.
func (v *ValidatorDescr) PubKey() ed25519.PublicKey {
	return ed25519.PublicKey(v.PublicKey[:])
}

// ComputeNodeID derives the node identifier from an ed25519 public key.
func ComputeNodeID(pub ed25519.PublicKey) Hash {
	return sha256.Sum256(pub)
}

// ValidatorSet is the validator list published by a key block (or by the
// zerostate for the genesis epoch).
type ValidatorSet struct {
	UtimeSince uint32
	List       []ValidatorDescr
}

// TotalWeight sums the voting weights of all validators in the set.
func (vs *ValidatorSet) TotalWeight() uint64 {
	var total uint64
	for i := range vs.List {
		total += vs.List[i].Weight
	}
	return total
}

// Find returns the validator with the given node identifier, or nil.
func (vs *ValidatorSet) Find(nodeID Hash) *ValidatorDescr {
	for i := range vs.List {
		if vs.List[i].NodeID == nodeID {
			return &vs.List[i]
		}
	}
	return nil
}

// ShortHash computes the 32-bit checksum of the set that block proofs carry as
// validator_list_hash_short. Covers node identifiers, public keys, and weights
// in list order.
func (vs *ValidatorSet) ShortHash() uint32 {
	var buf bytes.Buffer
	var w [8]byte
	binary.BigEndian.PutUint32(w[:4], vs.UtimeSince)
	buf.Write(w[:4])
	for i := range vs.List {
		buf.Write(vs.List[i].NodeID[:])
		buf.Write(vs.List[i].PublicKey[:])
		binary.BigEndian.PutUint64(w[:], vs.List[i].Weight)
		buf.Write(w[:])
	}
	return crc32.ChecksumIEEE(buf.Bytes())
}

// marshalValidatorSet encodes the set into cell payload form.
func marshalValidatorSet(vs *ValidatorSet) []byte {
	var buf bytes.Buffer
	var w [8]byte
	binary.BigEndian.PutUint32(w[:4], vs.UtimeSince)
	buf.Write(w[:4])
	binary.BigEndian.PutUint16(w[:2], uint16(len(vs.List)))
	buf.Write(w[:2])
	for i := range vs.List {
		v := &vs.List[i]
		buf.Write(v.NodeID[:])
		buf.Write(v.PublicKey[:])
		binary.BigEndian.PutUint64(w[:], v.Weight)
		buf.Write(w[:])
	}
	return buf.Bytes()
}

// parseValidatorSet decodes a validator set from cell payload form.
func parseValidatorSet(data []byte) (*ValidatorSet, error) {
	r := bytes.NewReader(data)
	var head [6]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, fmt.Errorf("truncated validator set")
	}
	vs := &ValidatorSet{UtimeSince: binary.BigEndian.Uint32(head[:4])}
	count := binary.BigEndian.Uint16(head[4:6])
	const entrySize = HashSize + 32 + 8
	if r.Len() < int(count)*entrySize {
		return nil, fmt.Errorf("validator set declares %d entries for %d bytes", count, r.Len())
	}
	vs.List = make([]ValidatorDescr, count)
	entry := make([]byte, entrySize)
	for i := range vs.List {
		if _, err := io.ReadFull(r, entry); err != nil {
			return nil, fmt.Errorf("truncated validator entry %d", i)
		}
		copy(vs.List[i].NodeID[:], entry[:HashSize])
		copy(vs.List[i].PublicKey[:], entry[HashSize:HashSize+32])
		vs.List[i].Weight = binary.BigEndian.Uint64(entry[HashSize+32:])
	}
	return vs, nil
}
