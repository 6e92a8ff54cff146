// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package blocks

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
)

// bocMagic prefixes every serialized bag of cells.
const bocMagic uint32 = 0xb5ee9c72

// maxCellRefs bounds the fan-out of a single cell.
const maxCellRefs = 8

// Cell is one node of the chain's native cell tree. A cell carries an opaque
// data payload and up to maxCellRefs references to child cells.
type Cell struct {
	Data []byte
	Refs []*Cell
}

// ReprHash computes the representation hash of the cell: sha256 over the data
// length, the data, the reference count, and the representation hashes of all
// referenced cells, bottom-up. Two cell trees are identical iff their root
// representation hashes are equal.
func (c *Cell) ReprHash() Hash {
	h := sha256.New()
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(c.Data)))
	h.Write(lenBuf[:])
	h.Write(c.Data)
	h.Write([]byte{byte(len(c.Refs))})
	for _, ref := range c.Refs {
		refHash := ref.ReprHash()
		h.Write(refHash[:])
	}
	var out Hash
	h.Sum(out[:0])
	return out
}

// SerializeBoC serializes the cell tree rooted at root into a bag-of-cells
// blob. Cells are written in parent-first order; references are encoded as
// forward indexes, so the format cannot represent cycles.
func SerializeBoC(root *Cell) ([]byte, error) {
	if root == nil {
		return nil, fmt.Errorf("cannot serialize nil cell")
	}

	var cells []*Cell
	index := make(map[*Cell]uint32)
	visiting := make(map[*Cell]bool)
	var collect func(c *Cell) error
	collect = func(c *Cell) error {
		if _, done := index[c]; done {
			return nil
		}
		if visiting[c] {
			return fmt.Errorf("cell tree contains a cycle")
		}
		if len(c.Refs) > maxCellRefs {
			return fmt.Errorf("cell has %d references, maximum is %d", len(c.Refs), maxCellRefs)
		}
		visiting[c] = true
		for _, ref := range c.Refs {
			if ref == nil {
				return fmt.Errorf("cell has nil reference")
			}
			if err := collect(ref); err != nil {
				return err
			}
		}
		index[c] = uint32(len(cells))
		cells = append(cells, c)
		return nil
	}
	if err := collect(root); err != nil {
		return nil, err
	}
	// Reverse the post-order so that every cell precedes the cells it
	// references, shared cells included.
	for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
		cells[i], cells[j] = cells[j], cells[i]
	}
	for i, c := range cells {
		index[c] = uint32(i)
	}

	var buf bytes.Buffer
	writeU32 := func(v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	writeU32(bocMagic)
	writeU32(uint32(len(cells)))
	for _, c := range cells {
		writeU32(uint32(len(c.Data)))
		buf.Write(c.Data)
		buf.WriteByte(byte(len(c.Refs)))
		for _, ref := range c.Refs {
			writeU32(index[ref])
		}
	}
	return buf.Bytes(), nil
}

// DeserializeBoC parses a bag-of-cells blob and returns the root cell (the
// first cell of the bag). References must point forward; a backward or
// self-reference makes the blob invalid.
func DeserializeBoC(blob []byte) (*Cell, error) {
	r := bytes.NewReader(blob)
	readU32 := func() (uint32, error) {
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		return binary.BigEndian.Uint32(b[:]), nil
	}

	magic, err := readU32()
	if err != nil {
		return nil, fmt.Errorf("truncated bag of cells")
	}
	if magic != bocMagic {
		return nil, fmt.Errorf("bad bag-of-cells magic: %#x", magic)
	}
	count, err := readU32()
	if err != nil {
		return nil, fmt.Errorf("truncated bag of cells")
	}
	if count == 0 {
		return nil, fmt.Errorf("empty bag of cells")
	}
	if uint64(count) > uint64(len(blob)) {
		return nil, fmt.Errorf("bag of cells declares %d cells for %d bytes", count, len(blob))
	}

	cells := make([]*Cell, count)
	refIndexes := make([][]uint32, count)
	for i := uint32(0); i < count; i++ {
		dataLen, err := readU32()
		if err != nil {
			return nil, fmt.Errorf("truncated cell %d", i)
		}
		if uint64(dataLen) > uint64(r.Len()) {
			return nil, fmt.Errorf("cell %d declares %d data bytes, only %d remain", i, dataLen, r.Len())
		}
		data := make([]byte, dataLen)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("truncated cell %d data", i)
		}
		refCount, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("truncated cell %d", i)
		}
		if int(refCount) > maxCellRefs {
			return nil, fmt.Errorf("cell %d has %d references, maximum is %d", i, refCount, maxCellRefs)
		}
		refs := make([]uint32, refCount)
		for j := range refs {
			ref, err := readU32()
			if err != nil {
				return nil, fmt.Errorf("truncated cell %d references", i)
			}
			if ref <= i || ref >= count {
				return nil, fmt.Errorf("cell %d has out-of-order reference to cell %d", i, ref)
			}
			refs[j] = ref
		}
		cells[i] = &Cell{Data: data}
		refIndexes[i] = refs
	}
	for i, refs := range refIndexes {
		for _, ref := range refs {
			cells[i].Refs = append(cells[i].Refs, cells[ref])
		}
	}
	return cells[0], nil
}
