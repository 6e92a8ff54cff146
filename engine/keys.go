// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package engine

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/tychonet/lite-client/errors"
	"github.com/tychonet/lite-client/indexer"
)

// Logical storage keys. Every key is prefixed with the network namespace
// before it reaches the backend.
const (
	zerostateKey         = "zerostate"
	zsRightBoundKey      = "zs_right_boundary_seq_no"
	rootHashPrefixLength = 8
)

func rootHashPrefix(rootHash string) string {
	if len(rootHash) < rootHashPrefixLength {
		return rootHash
	}
	return rootHash[:rootHashPrefixLength]
}

// genStorageKey builds the fully-namespaced storage key for a network.
func genStorageKey(uid *NetworkUID, key string) string {
	return fmt.Sprintf("%s/%s/%s",
		rootHashPrefix(uid.ZerostateRootHash),
		rootHashPrefix(uid.FirstMasterBlockRootHash),
		key,
	)
}

func (e *Engine) getStorageKey(ctx context.Context, key string) (string, error) {
	uid, err := e.networkUID(ctx)
	if err != nil {
		return "", err
	}
	return genStorageKey(uid, key), nil
}

func mcProofKey(mcSeqNo uint32) string {
	return fmt.Sprintf("proof_mc_%d", mcSeqNo)
}

func mcBlockKey(mcSeqNo uint32) string {
	return fmt.Sprintf("block_mc_%d", mcSeqNo)
}

func trustedBlockRightBoundKey(trustedSeqNo uint32) string {
	return fmt.Sprintf("trusted_%d_right_boundary_seq_no", trustedSeqNo)
}

// Typed accessors. All storage traffic flows through these four plus the
// JSON and u32 helpers below.

func (e *Engine) getBin(ctx context.Context, key string) ([]byte, error) {
	full, err := e.getStorageKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.storage.GetBin(full)
}

func (e *Engine) putBin(ctx context.Context, key string, value []byte) error {
	full, err := e.getStorageKey(ctx, key)
	if err != nil {
		return err
	}
	return e.storage.PutBin(full, value)
}

func (e *Engine) getStr(ctx context.Context, key string) (string, bool, error) {
	full, err := e.getStorageKey(ctx, key)
	if err != nil {
		return "", false, err
	}
	return e.storage.GetStr(full)
}

func (e *Engine) putStr(ctx context.Context, key string, value string) error {
	full, err := e.getStorageKey(ctx, key)
	if err != nil {
		return err
	}
	return e.storage.PutStr(full, value)
}

// getValue reads a JSON value stored as a string. Returns nil when absent.
func (e *Engine) getValue(ctx context.Context, key string) (indexer.Row, error) {
	raw, ok, err := e.getStr(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var row map[string]any
	if err := json.Unmarshal([]byte(raw), &row); err != nil {
		return nil, errors.Wrapf(err, errors.ErrorCodeSerdeError, "cached value under %q is not valid JSON", key)
	}
	return indexer.Row(row), nil
}

func (e *Engine) putValue(ctx context.Context, key string, value indexer.Row) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Internal(err, "value encoding")
	}
	return e.putStr(ctx, key, string(raw))
}

func (e *Engine) readMcProof(ctx context.Context, mcSeqNo uint32) (indexer.Row, error) {
	return e.getValue(ctx, mcProofKey(mcSeqNo))
}

func (e *Engine) writeMcProof(ctx context.Context, mcSeqNo uint32, value indexer.Row) error {
	return e.putValue(ctx, mcProofKey(mcSeqNo), value)
}

func (e *Engine) readMcBlock(ctx context.Context, mcSeqNo uint32) ([]byte, error) {
	return e.getBin(ctx, mcBlockKey(mcSeqNo))
}

func (e *Engine) writeMcBlock(ctx context.Context, mcSeqNo uint32, boc []byte) error {
	return e.putBin(ctx, mcBlockKey(mcSeqNo), boc)
}

// readMetadataValueU32 reads a little-endian u32 metadata value. A value of
// any other width is treated as absent.
func (e *Engine) readMetadataValueU32(ctx context.Context, key string) (uint32, bool, error) {
	raw, err := e.getBin(ctx, key)
	if err != nil {
		return 0, false, err
	}
	if len(raw) != 4 {
		return 0, false, nil
	}
	return binary.LittleEndian.Uint32(raw), true, nil
}

func (e *Engine) writeMetadataValueU32(ctx context.Context, key string, value uint32) error {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], value)
	return e.putBin(ctx, key, raw[:])
}

// updateMetadataValueU32 reads the prior value and writes combine(prior,
// value); an absent prior writes value directly. The engine always passes max
// as combine, which keeps boundaries monotonic regardless of call order.
func (e *Engine) updateMetadataValueU32(ctx context.Context, key string, value uint32,
	combine func(prev, next uint32) uint32) error {

	prev, ok, err := e.readMetadataValueU32(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return e.writeMetadataValueU32(ctx, key, value)
	}
	return e.writeMetadataValueU32(ctx, key, combine(prev, value))
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// readZsRightBound returns the highest mc_seq_no linked to the zerostate by
// verified proofs; absent means 0.
func (e *Engine) readZsRightBound(ctx context.Context) (uint32, error) {
	value, ok, err := e.readMetadataValueU32(ctx, zsRightBoundKey)
	if err != nil || !ok {
		return 0, err
	}
	return value, nil
}

func (e *Engine) updateZsRightBound(ctx context.Context, seqNo uint32) error {
	return e.updateMetadataValueU32(ctx, zsRightBoundKey, seqNo, maxU32)
}

// readTrustedBlockRightBound returns the highest mc_seq_no linked to the
// trusted anchor; absent means the anchor's own seq_no.
func (e *Engine) readTrustedBlockRightBound(ctx context.Context, trustedSeqNo uint32) (uint32, error) {
	value, ok, err := e.readMetadataValueU32(ctx, trustedBlockRightBoundKey(trustedSeqNo))
	if err != nil {
		return 0, err
	}
	if !ok {
		return trustedSeqNo, nil
	}
	return value, nil
}

func (e *Engine) updateTrustedBlockRightBound(ctx context.Context, trustedSeqNo, rightBoundSeqNo uint32) error {
	return e.updateMetadataValueU32(ctx, trustedBlockRightBoundKey(trustedSeqNo), rightBoundSeqNo, maxU32)
}

// BoundarySide selects which right boundary a verified proof extends: the
// chain growing from the zerostate or the chain growing from a trusted
// anchor.
type BoundarySide struct {
	anchorSeqNo uint32
	trusted     bool
}

// ZerostateBoundary is the boundary of the chain verified from the zerostate.
func ZerostateBoundary() BoundarySide {
	return BoundarySide{}
}

// TrustedBoundary is the boundary of the chain verified from the trusted
// anchor with the given seq_no.
func TrustedBoundary(anchorSeqNo uint32) BoundarySide {
	return BoundarySide{anchorSeqNo: anchorSeqNo, trusted: true}
}

// bump records that the chain on the given side now covers seqNo. Bounds only
// ever grow.
func (e *Engine) bump(ctx context.Context, side BoundarySide, seqNo uint32) error {
	if side.trusted {
		return e.updateTrustedBlockRightBound(ctx, side.anchorSeqNo, seqNo)
	}
	return e.updateZsRightBound(ctx, seqNo)
}
