// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package proofs implements masterchain block proofs: parsing proof rows
// delivered by the indexer and checking them against the validator set of the
// preceding key block (or of the zerostate for the first epoch).
package proofs

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/tychonet/lite-client/blocks"
	"github.com/tychonet/lite-client/errors"
	"github.com/tychonet/lite-client/indexer"
)

// TrustedBlockID is the hard-configured trust anchor: a masterchain key block
// the client accepts as ground truth without further validation.
type TrustedBlockID struct {
	SeqNo    uint32      `json:"seq_no"`
	RootHash blocks.Hash `json:"root_hash"`
}

// BlockIDExt fully identifies a block: sequence number, representation hash
// of the root cell, and hash of the serialized blob.
type BlockIDExt struct {
	SeqNo    uint32
	RootHash blocks.Hash
	FileHash blocks.Hash
}

// CryptoSignature is one validator signature over a block.
type CryptoSignature struct {
	NodeID    blocks.Hash
	Signature [64]byte
}

// BlockProof carries a masterchain block proof as delivered by the indexer:
// the proof BoC, the validator signature set, and the block identity. The
// file hash is attached separately from the next block's prev_ref (or
// computed from the block blob) before the proof can be checked.
type BlockProof struct {
	id                     BlockIDExt
	proofBoC               []byte
	catchainSeqNo          uint32
	validatorListHashShort uint32
	sigWeight              uint64
	signatures             []CryptoSignature

	block *blocks.Block // parsed lazily by Block()
}

// ID returns the identity of the proven block.
func (p *BlockProof) ID() BlockIDExt {
	return p.id
}

// FromJSON parses a proof from its persisted JSON form.
func FromJSON(data []byte) (*BlockProof, error) {
	var row map[string]any
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "cached proof is not valid JSON")
	}
	return FromRow(indexer.Row(row))
}

// FromRow parses a proof from an indexer row (or a deserialized cached row).
func FromRow(row indexer.Row) (*BlockProof, error) {
	p := &BlockProof{}

	idHex, err := row.String("id")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed proof row")
	}
	if p.id.RootHash, err = blocks.HashFromHex(idHex); err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed proof row")
	}
	if p.id.SeqNo, err = row.Uint32("seq_no"); err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed proof row")
	}

	// file_hash is attached after querying; a proof without one parses but
	// cannot be checked.
	if fileHashHex, err := row.String("file_hash"); err == nil {
		if p.id.FileHash, err = blocks.HashFromHex(fileHashHex); err != nil {
			return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed proof row")
		}
	}

	sigs, err := row.Child("signatures")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed proof row")
	}
	proofBase64, err := sigs.String("proof")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed proof row")
	}
	if p.proofBoC, err = base64.StdEncoding.DecodeString(proofBase64); err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "proof BoC must be valid base64")
	}
	if p.catchainSeqNo, err = sigs.Uint32("catchain_seqno"); err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed proof row")
	}
	if p.validatorListHashShort, err = sigs.Uint32("validator_list_hash_short"); err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed proof row")
	}
	if p.sigWeight, err = parseWeight(sigs["sig_weight"]); err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed proof row")
	}

	sigList, err := sigs.Array("signatures")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed proof row")
	}
	p.signatures = make([]CryptoSignature, len(sigList))
	for i, sigRow := range sigList {
		nodeIDHex, err := sigRow.String("node_id")
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed proof signature")
		}
		if p.signatures[i].NodeID, err = blocks.HashFromHex(nodeIDHex); err != nil {
			return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed proof signature")
		}
		r, err := sigRow.String("r")
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed proof signature")
		}
		s, err := sigRow.String("s")
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed proof signature")
		}
		if err := decodeSignature(r, s, &p.signatures[i].Signature); err != nil {
			return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed proof signature")
		}
	}
	return p, nil
}

// Block parses and returns the proven (virtual) block. The proof BoC must
// already have passed CheckProof for the contents to be trustworthy.
func (p *BlockProof) Block() (*blocks.Block, error) {
	if p.block != nil {
		return p.block, nil
	}
	block, rootHash, err := blocks.ParseBlockBoC(p.proofBoC)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "proof BoC does not parse as a block")
	}
	if rootHash != p.id.RootHash {
		return nil, errors.Newf(errors.ErrorCodeProofVerificationFailed,
			"proof BoC root hash (%s) mismatches proof id (%s)", rootHash, p.id.RootHash)
	}
	p.block = block
	return block, nil
}

func parseWeight(v any) (uint64, error) {
	switch w := v.(type) {
	case string:
		parsed, err := strconv.ParseUint(w, 10, 64)
		if err != nil {
			return 0, errors.Newf(errors.ErrorCodeSerdeError, "`sig_weight` must be a decimal string: %v", err)
		}
		return parsed, nil
	case float64:
		if w < 0 {
			return 0, errors.New(errors.ErrorCodeSerdeError, "`sig_weight` must be non-negative")
		}
		return uint64(w), nil
	case nil:
		return 0, errors.New(errors.ErrorCodeSerdeError, "`sig_weight` field is missing")
	default:
		return 0, errors.New(errors.ErrorCodeSerdeError, "`sig_weight` must be a string or number")
	}
}

func decodeSignature(r, s string, out *[64]byte) error {
	rRaw, err := hex.DecodeString(r)
	if err != nil || len(rRaw) != 32 {
		return errors.New(errors.ErrorCodeSerdeError, "`r` must be 32 hex-encoded bytes")
	}
	sRaw, err := hex.DecodeString(s)
	if err != nil || len(sRaw) != 32 {
		return errors.New(errors.ErrorCodeSerdeError, "`s` must be 32 hex-encoded bytes")
	}
	copy(out[:32], rRaw)
	copy(out[32:], sRaw)
	return nil
}
