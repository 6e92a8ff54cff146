// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package proofs

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"

	"github.com/tychonet/lite-client/blocks"
	"github.com/tychonet/lite-client/errors"
)

// blockSignTag prefixes the message validators sign over a block.
const blockSignTag uint32 = 0x706e0bc5

// ProofHelper is the capability set a proof needs from the engine while
// checking itself: access to the zerostate and to earlier key-block proofs.
// Passing the interface instead of a concrete engine keeps the verifier
// testable against mocks and avoids ownership cycles.
type ProofHelper interface {
	LoadZerostate(ctx context.Context) (*blocks.ShardState, error)
	LoadKeyBlockProof(ctx context.Context, mcSeqNo uint32) (*BlockProof, error)
}

// CheckProof verifies the proof: the proof BoC must hash to the proof id, and
// the signature set must be signed by the validator set published by the
// preceding key block (or by the zerostate for the first epoch) with more
// than 2/3 of the total weight. Resolving the preceding key block re-enters
// the engine through helper and may trigger trust extension recursively.
//
// Returns the proven block on success.
func (p *BlockProof) CheckProof(ctx context.Context, helper ProofHelper) (*blocks.Block, error) {
	if p.id.FileHash.IsZero() {
		return nil, errors.Newf(errors.ErrorCodeProofVerificationFailed,
			"proof for masterchain block %d has no file_hash attached", p.id.SeqNo)
	}

	block, err := p.Block()
	if err != nil {
		return nil, err
	}
	if !block.Info.Shard.IsMasterchain() {
		return nil, errors.Newf(errors.ErrorCodeProofVerificationFailed,
			"proven block %d is not a masterchain block (workchain %d)", p.id.SeqNo, block.Info.Shard.WorkchainID)
	}
	if block.Info.SeqNo != p.id.SeqNo {
		return nil, errors.Newf(errors.ErrorCodeProofVerificationFailed,
			"proven block seq_no (%d) mismatches proof id seq_no (%d)", block.Info.SeqNo, p.id.SeqNo)
	}

	validators, err := p.resolveValidatorSet(ctx, helper, block)
	if err != nil {
		return nil, err
	}

	if short := validators.ShortHash(); short != p.validatorListHashShort {
		return nil, errors.Newf(errors.ErrorCodeProofVerificationFailed,
			"validator_list_hash_short (%d) mismatches the validator set of the previous key block (%d)",
			p.validatorListHashShort, short)
	}

	message := signedMessage(p.id.RootHash, p.id.FileHash)
	var signedWeight uint64
	for i := range p.signatures {
		sig := &p.signatures[i]
		validator := validators.Find(sig.NodeID)
		if validator == nil {
			return nil, errors.Newf(errors.ErrorCodeProofVerificationFailed,
				"signature from unknown validator %s", sig.NodeID)
		}
		if !ed25519.Verify(validator.PubKey(), message, sig.Signature[:]) {
			return nil, errors.Newf(errors.ErrorCodeProofVerificationFailed,
				"invalid signature from validator %s over block %d", sig.NodeID, p.id.SeqNo)
		}
		signedWeight += validator.Weight
	}

	if p.sigWeight != 0 && p.sigWeight != signedWeight {
		return nil, errors.Newf(errors.ErrorCodeProofVerificationFailed,
			"declared sig_weight (%d) mismatches verified weight (%d)", p.sigWeight, signedWeight)
	}
	total := validators.TotalWeight()
	if signedWeight*3 <= total*2 {
		return nil, errors.Newf(errors.ErrorCodeProofVerificationFailed,
			"insufficient signature weight for block %d: signed %d of total %d", p.id.SeqNo, signedWeight, total)
	}

	return block, nil
}

// resolveValidatorSet locates the validator set the proof must be signed by.
func (p *BlockProof) resolveValidatorSet(ctx context.Context, helper ProofHelper, block *blocks.Block) (*blocks.ValidatorSet, error) {
	if block.Info.PrevKeyBlockSeqNo == 0 {
		state, err := helper.LoadZerostate(ctx)
		if err != nil {
			return nil, err
		}
		if state.Validators == nil {
			return nil, errors.New(errors.ErrorCodeProofVerificationFailed,
				"zerostate carries no validator set")
		}
		return state.Validators, nil
	}

	prevProof, err := helper.LoadKeyBlockProof(ctx, block.Info.PrevKeyBlockSeqNo)
	if err != nil {
		return nil, err
	}
	prevBlock, err := prevProof.Block()
	if err != nil {
		return nil, err
	}
	if !prevBlock.Info.KeyBlock || prevBlock.Validators == nil {
		return nil, errors.Newf(errors.ErrorCodeProofVerificationFailed,
			"previous key block %d publishes no validator set", block.Info.PrevKeyBlockSeqNo)
	}
	return prevBlock.Validators, nil
}

func signedMessage(rootHash, fileHash blocks.Hash) []byte {
	message := make([]byte, 4+2*blocks.HashSize)
	binary.BigEndian.PutUint32(message[:4], blockSignTag)
	copy(message[4:], rootHash[:])
	copy(message[4+blocks.HashSize:], fileHash[:])
	return message
}
