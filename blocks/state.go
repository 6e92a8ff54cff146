// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package blocks

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// ShardState is the genesis state of a chain. Its representation hash
// identifies the network, and its validator set bootstraps proof checking for
// the first key-block epoch.
type ShardState struct {
	GlobalID   int32
	Shard      ShardIdent
	GenUtime   uint32
	Validators *ValidatorSet
}

// Cell builds the cell tree for the state.
func (s *ShardState) Cell() *Cell {
	var buf bytes.Buffer
	var w [8]byte
	binary.BigEndian.PutUint32(w[:4], uint32(s.GlobalID))
	buf.Write(w[:4])
	binary.BigEndian.PutUint32(w[:4], uint32(s.Shard.WorkchainID))
	buf.Write(w[:4])
	binary.BigEndian.PutUint64(w[:], s.Shard.Prefix)
	buf.Write(w[:])
	binary.BigEndian.PutUint32(w[:4], s.GenUtime)
	buf.Write(w[:4])

	root := &Cell{Data: buf.Bytes()}
	if s.Validators != nil {
		root.Refs = append(root.Refs, &Cell{Data: marshalValidatorSet(s.Validators)})
	}
	return root
}

// MarshalBoC serializes the state into a bag-of-cells blob.
func (s *ShardState) MarshalBoC() ([]byte, error) {
	return SerializeBoC(s.Cell())
}

// RootHash computes the representation hash of the state's root cell.
func (s *ShardState) RootHash() Hash {
	return s.Cell().ReprHash()
}

// ParseShardStateBoC deserializes a state blob and returns the parsed state
// along with the representation hash of its root cell.
func ParseShardStateBoC(blob []byte) (*ShardState, Hash, error) {
	root, err := DeserializeBoC(blob)
	if err != nil {
		return nil, Hash{}, err
	}
	r := bytes.NewReader(root.Data)
	var w [8]byte
	s := &ShardState{}
	if _, err := io.ReadFull(r, w[:4]); err != nil {
		return nil, Hash{}, fmt.Errorf("truncated state header")
	}
	s.GlobalID = int32(binary.BigEndian.Uint32(w[:4]))
	if _, err := io.ReadFull(r, w[:4]); err != nil {
		return nil, Hash{}, fmt.Errorf("truncated state header")
	}
	s.Shard.WorkchainID = int32(binary.BigEndian.Uint32(w[:4]))
	if _, err := io.ReadFull(r, w[:]); err != nil {
		return nil, Hash{}, fmt.Errorf("truncated state header")
	}
	s.Shard.Prefix = binary.BigEndian.Uint64(w[:])
	if _, err := io.ReadFull(r, w[:4]); err != nil {
		return nil, Hash{}, fmt.Errorf("truncated state header")
	}
	s.GenUtime = binary.BigEndian.Uint32(w[:4])

	if len(root.Refs) > 0 {
		if s.Validators, err = parseValidatorSet(root.Refs[0].Data); err != nil {
			return nil, Hash{}, err
		}
	}
	return s, root.ReprHash(), nil
}
