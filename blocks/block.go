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

// Header flags of the root block cell.
const (
	flagKeyBlock    = 0x01
	flagPrevRef     = 0x02
	flagMasterRef   = 0x04
	flagShardHashes = 0x08
	flagValidators  = 0x10
)

// ExtBlkRef is a back-reference to another block: its sequence number, the
// representation hash of its root cell, and the hash of its serialized blob.
type ExtBlkRef struct {
	SeqNo    uint32
	RootHash Hash
	FileHash Hash
}

// BlkMasterRef points a shard block at the masterchain block it was built
// against.
type BlkMasterRef struct {
	SeqNo uint32
}

// BlockInfo is the header of a block.
type BlockInfo struct {
	Shard             ShardIdent
	SeqNo             uint32
	GenUtime          uint32
	KeyBlock          bool
	PrevRef           *ExtBlkRef
	MasterRef         *BlkMasterRef
	PrevKeyBlockSeqNo uint32
}

// ShardDescr is the head of one shard as committed by a masterchain block.
type ShardDescr struct {
	SeqNo    uint32
	RootHash Hash
}

// ShardHashEntry binds a shard identifier to its committed head.
type ShardHashEntry struct {
	Shard ShardIdent
	Descr ShardDescr
}

// Block is the parsed form of a block cell tree. Masterchain blocks carry the
// shard-hashes table; key blocks additionally publish the next validator set.
type Block struct {
	Info        BlockInfo
	ShardHashes []ShardHashEntry
	Validators  *ValidatorSet
}

// Cell builds the cell tree for the block.
func (b *Block) Cell() *Cell {
	var buf bytes.Buffer
	var w [8]byte

	binary.BigEndian.PutUint32(w[:4], uint32(b.Info.Shard.WorkchainID))
	buf.Write(w[:4])
	binary.BigEndian.PutUint64(w[:], b.Info.Shard.Prefix)
	buf.Write(w[:])
	binary.BigEndian.PutUint32(w[:4], b.Info.SeqNo)
	buf.Write(w[:4])
	binary.BigEndian.PutUint32(w[:4], b.Info.GenUtime)
	buf.Write(w[:4])

	var flags byte
	if b.Info.KeyBlock {
		flags |= flagKeyBlock
	}
	if b.Info.PrevRef != nil {
		flags |= flagPrevRef
	}
	if b.Info.MasterRef != nil {
		flags |= flagMasterRef
	}
	if b.ShardHashes != nil {
		flags |= flagShardHashes
	}
	if b.Validators != nil {
		flags |= flagValidators
	}
	buf.WriteByte(flags)

	if b.Info.PrevRef != nil {
		binary.BigEndian.PutUint32(w[:4], b.Info.PrevRef.SeqNo)
		buf.Write(w[:4])
		buf.Write(b.Info.PrevRef.RootHash[:])
		buf.Write(b.Info.PrevRef.FileHash[:])
	}
	if b.Info.MasterRef != nil {
		binary.BigEndian.PutUint32(w[:4], b.Info.MasterRef.SeqNo)
		buf.Write(w[:4])
	}
	binary.BigEndian.PutUint32(w[:4], b.Info.PrevKeyBlockSeqNo)
	buf.Write(w[:4])

	root := &Cell{Data: buf.Bytes()}
	if b.ShardHashes != nil {
		root.Refs = append(root.Refs, &Cell{Data: marshalShardHashes(b.ShardHashes)})
	}
	if b.Validators != nil {
		root.Refs = append(root.Refs, &Cell{Data: marshalValidatorSet(b.Validators)})
	}
	return root
}

// MarshalBoC serializes the block into a bag-of-cells blob.
func (b *Block) MarshalBoC() ([]byte, error) {
	return SerializeBoC(b.Cell())
}

// RootHash computes the representation hash of the block's root cell.
func (b *Block) RootHash() Hash {
	return b.Cell().ReprHash()
}

// ParseBlockCell decodes a block from its root cell.
func ParseBlockCell(root *Cell) (*Block, error) {
	r := bytes.NewReader(root.Data)
	var w [8]byte

	readU32 := func() (uint32, error) {
		if _, err := io.ReadFull(r, w[:4]); err != nil {
			return 0, err
		}
		return binary.BigEndian.Uint32(w[:4]), nil
	}

	b := &Block{}
	wc, err := readU32()
	if err != nil {
		return nil, fmt.Errorf("truncated block header")
	}
	b.Info.Shard.WorkchainID = int32(wc)
	if _, err := io.ReadFull(r, w[:]); err != nil {
		return nil, fmt.Errorf("truncated block header")
	}
	b.Info.Shard.Prefix = binary.BigEndian.Uint64(w[:])
	if b.Info.SeqNo, err = readU32(); err != nil {
		return nil, fmt.Errorf("truncated block header")
	}
	if b.Info.GenUtime, err = readU32(); err != nil {
		return nil, fmt.Errorf("truncated block header")
	}
	flags, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("truncated block header")
	}
	b.Info.KeyBlock = flags&flagKeyBlock != 0

	if flags&flagPrevRef != 0 {
		ref := &ExtBlkRef{}
		if ref.SeqNo, err = readU32(); err != nil {
			return nil, fmt.Errorf("truncated prev_ref")
		}
		if _, err := io.ReadFull(r, ref.RootHash[:]); err != nil {
			return nil, fmt.Errorf("truncated prev_ref")
		}
		if _, err := io.ReadFull(r, ref.FileHash[:]); err != nil {
			return nil, fmt.Errorf("truncated prev_ref")
		}
		b.Info.PrevRef = ref
	}
	if flags&flagMasterRef != 0 {
		seqNo, err := readU32()
		if err != nil {
			return nil, fmt.Errorf("truncated master_ref")
		}
		b.Info.MasterRef = &BlkMasterRef{SeqNo: seqNo}
	}
	if b.Info.PrevKeyBlockSeqNo, err = readU32(); err != nil {
		return nil, fmt.Errorf("truncated block header")
	}

	refIdx := 0
	nextRef := func(what string) (*Cell, error) {
		if refIdx >= len(root.Refs) {
			return nil, fmt.Errorf("block header declares %s but reference is missing", what)
		}
		ref := root.Refs[refIdx]
		refIdx++
		return ref, nil
	}
	if flags&flagShardHashes != 0 {
		ref, err := nextRef("shard hashes")
		if err != nil {
			return nil, err
		}
		if b.ShardHashes, err = parseShardHashes(ref.Data); err != nil {
			return nil, err
		}
	}
	if flags&flagValidators != 0 {
		ref, err := nextRef("validator set")
		if err != nil {
			return nil, err
		}
		if b.Validators, err = parseValidatorSet(ref.Data); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// ParseBlockBoC deserializes a block blob and returns the parsed block along
// with the representation hash of its root cell.
func ParseBlockBoC(blob []byte) (*Block, Hash, error) {
	root, err := DeserializeBoC(blob)
	if err != nil {
		return nil, Hash{}, err
	}
	b, err := ParseBlockCell(root)
	if err != nil {
		return nil, Hash{}, err
	}
	return b, root.ReprHash(), nil
}

func marshalShardHashes(entries []ShardHashEntry) []byte {
	var buf bytes.Buffer
	var w [8]byte
	binary.BigEndian.PutUint16(w[:2], uint16(len(entries)))
	buf.Write(w[:2])
	for i := range entries {
		e := &entries[i]
		binary.BigEndian.PutUint32(w[:4], uint32(e.Shard.WorkchainID))
		buf.Write(w[:4])
		binary.BigEndian.PutUint64(w[:], e.Shard.Prefix)
		buf.Write(w[:])
		binary.BigEndian.PutUint32(w[:4], e.Descr.SeqNo)
		buf.Write(w[:4])
		buf.Write(e.Descr.RootHash[:])
	}
	return buf.Bytes()
}

func parseShardHashes(data []byte) ([]ShardHashEntry, error) {
	r := bytes.NewReader(data)
	var w [8]byte
	if _, err := io.ReadFull(r, w[:2]); err != nil {
		return nil, fmt.Errorf("truncated shard hashes")
	}
	count := binary.BigEndian.Uint16(w[:2])
	entries := make([]ShardHashEntry, count)
	for i := range entries {
		e := &entries[i]
		if _, err := io.ReadFull(r, w[:4]); err != nil {
			return nil, fmt.Errorf("truncated shard hash entry %d", i)
		}
		e.Shard.WorkchainID = int32(binary.BigEndian.Uint32(w[:4]))
		if _, err := io.ReadFull(r, w[:]); err != nil {
			return nil, fmt.Errorf("truncated shard hash entry %d", i)
		}
		e.Shard.Prefix = binary.BigEndian.Uint64(w[:])
		if _, err := io.ReadFull(r, w[:4]); err != nil {
			return nil, fmt.Errorf("truncated shard hash entry %d", i)
		}
		e.Descr.SeqNo = binary.BigEndian.Uint32(w[:4])
		if _, err := io.ReadFull(r, e.Descr.RootHash[:]); err != nil {
			return nil, fmt.Errorf("truncated shard hash entry %d", i)
		}
	}
	return entries, nil
}
