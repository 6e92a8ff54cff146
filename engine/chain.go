// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package engine

import (
	"context"

	"github.com/tychonet/lite-client/errors"
	"github.com/tychonet/lite-client/logging"
	"github.com/tychonet/lite-client/proofs"
)

// downloadTrustedKeyBlockProof fetches the proof for the configured trust
// anchor. The anchor's root hash is ground truth, so a proof matching it is
// accepted and persisted without signature validation: this is what
// bootstraps trust.
func (e *Engine) downloadTrustedKeyBlockProof(ctx context.Context) (*proofs.BlockProof, error) {
	proofRow, err := e.queryMcProof(ctx, e.trusted.SeqNo)
	if err != nil {
		return nil, err
	}
	proof, err := proofs.FromRow(proofRow)
	if err != nil {
		return nil, err
	}
	if proof.ID().SeqNo != e.trusted.SeqNo {
		return nil, errors.Newf(errors.ErrorCodeTrustedAnchorMismatch,
			"proof for trusted key-block seq_no (%d) mismatches trusted key-block seq_no (%d)",
			proof.ID().SeqNo, e.trusted.SeqNo)
	}
	if proof.ID().RootHash != e.trusted.RootHash {
		return nil, errors.Newf(errors.ErrorCodeTrustedAnchorMismatch,
			"proof for trusted key-block root_hash (%s) mismatches trusted key-block root_hash (%s)",
			proof.ID().RootHash, e.trusted.RootHash)
	}
	if err := e.writeMcProof(ctx, e.trusted.SeqNo, proofRow); err != nil {
		return nil, err
	}
	return proof, nil
}

// requireTrustedKeyBlockProof ensures the anchor proof is present, serving
// from cache when possible.
func (e *Engine) requireTrustedKeyBlockProof(ctx context.Context) (*proofs.BlockProof, error) {
	if row, err := e.readMcProof(ctx, e.trusted.SeqNo); err != nil {
		return nil, err
	} else if row != nil {
		return proofs.FromRow(row)
	}
	return e.downloadTrustedKeyBlockProof(ctx)
}

// downloadProofChain downloads, verifies, and persists all key-block proofs
// in the given range, in strictly ascending seq_no order: many proofs
// validate via a reference to the preceding key block in the same chain. The
// boundary on the given side is bumped after each proof is persisted, so a
// crash between the two writes re-verifies at worst a short prefix.
func (e *Engine) downloadProofChain(ctx context.Context, rng seqRange, side BoundarySide) (*proofs.BlockProof, error) {
	if rng.isEmpty() {
		return nil, errors.Newf(errors.ErrorCodeInternalError,
			"empty masterchain seq_no range [%d, %d)", rng.Start, rng.End)
	}

	proofRows, err := e.queryKeyBlocksProofs(ctx, rng)
	if err != nil {
		return nil, err
	}
	if err := e.addFileHashes(ctx, proofRows); err != nil {
		return nil, err
	}

	var lastProof *proofs.BlockProof
	for _, entry := range proofRows {
		proof, err := proofs.FromRow(entry.row)
		if err != nil {
			return nil, err
		}
		if _, err := proof.CheckProof(ctx, e); err != nil {
			e.metrics.ProofFailures.Inc()
			return nil, err
		}
		if err := e.writeMcProof(ctx, entry.seqNo, entry.row); err != nil {
			return nil, err
		}
		if err := e.bump(ctx, side, entry.seqNo); err != nil {
			return nil, err
		}
		e.metrics.ProofsVerified.Inc()
		lastProof = proof
	}

	if lastProof == nil {
		return nil, errors.Newf(errors.ErrorCodeQueryFailed,
			"empty proof chain for range [%d, %d)", rng.Start, rng.End)
	}
	return lastProof, nil
}

// LoadKeyBlockProof returns the verified proof for the masterchain key block
// with the given seq_no, extending the trusted range as needed. The segment
// to download is selected from the persisted boundaries on either side of the
// trusted anchor and of the zerostate.
func (e *Engine) LoadKeyBlockProof(ctx context.Context, mcSeqNo uint32) (*proofs.BlockProof, error) {
	if row, err := e.readMcProof(ctx, mcSeqNo); err != nil {
		return nil, err
	} else if row != nil {
		e.metrics.CacheHits.Inc()
		return proofs.FromRow(row)
	}
	e.metrics.CacheMisses.Inc()

	zsRightBound, err := e.readZsRightBound(ctx)
	if err != nil {
		return nil, err
	}
	trustedRightBound, err := e.readTrustedBlockRightBound(ctx, e.trusted.SeqNo)
	if err != nil {
		return nil, err
	}

	if mcSeqNo == e.trusted.SeqNo {
		return e.downloadTrustedKeyBlockProof(ctx)
	}
	if _, err := e.requireTrustedKeyBlockProof(ctx); err != nil {
		return nil, err
	}

	log := e.log.WithFields(
		logging.Field{Key: "mc_seq_no", Value: mcSeqNo},
		logging.Field{Key: "zs_right_bound", Value: zsRightBound},
		logging.Field{Key: "trusted_right_bound", Value: trustedRightBound},
	)

	switch {
	case mcSeqNo > trustedRightBound:
		log.Debug("extending proof chain right of trusted anchor")
		return e.downloadProofChain(ctx,
			seqRange{Start: trustedRightBound + 1, End: mcSeqNo + 1},
			TrustedBoundary(e.trusted.SeqNo))

	case mcSeqNo < e.trusted.SeqNo && mcSeqNo > zsRightBound:
		log.Debug("extending proof chain from zerostate")
		return e.downloadProofChain(ctx,
			seqRange{Start: zsRightBound + 1, End: mcSeqNo + 1},
			ZerostateBoundary())

	case mcSeqNo <= zsRightBound:
		// Chain from zerostate is broken: the requested block lies inside
		// the covered range but no cached proof was found. Rebuild the
		// whole half-chain.
		log.Warn("cached proof chain from zerostate is broken, re-downloading")
		return e.downloadProofChain(ctx,
			seqRange{Start: 1, End: mcSeqNo + 1},
			ZerostateBoundary())

	case mcSeqNo > e.trusted.SeqNo && mcSeqNo <= trustedRightBound:
		// Chain from the trusted key block to the right is broken.
		log.Warn("cached proof chain from trusted anchor is broken, re-downloading")
		return e.downloadProofChain(ctx,
			seqRange{Start: e.trusted.SeqNo + 1, End: mcSeqNo + 1},
			TrustedBoundary(e.trusted.SeqNo))

	default:
		return nil, errors.Newf(errors.ErrorCodeInternalError,
			"inconsistent proof boundaries: mc_seq_no: %d, zs_right: %d, trusted_right: %d, trusted_seq_no: %d",
			mcSeqNo, zsRightBound, trustedRightBound, e.trusted.SeqNo)
	}
}
