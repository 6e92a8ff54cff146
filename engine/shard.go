// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package engine

import (
	"context"
	"encoding/base64"

	"github.com/tychonet/lite-client/blocks"
	"github.com/tychonet/lite-client/errors"
	"github.com/tychonet/lite-client/indexer"
	"github.com/tychonet/lite-client/logging"
	"github.com/tychonet/lite-client/proofs"
)

// shardCommitPollDelayMs is how long the shard verifier waits before
// re-polling for a masterchain block committing to the queried shard block.
const shardCommitPollDelayMs = 1000

// CheckShardBlock verifies that the given shard block BoC is a descendant of
// the canonical chain: it locates the smallest masterchain block committing
// to a shard block at or beyond its sequence number, verifies that
// masterchain block's proof and BoC, then walks the shard chain backward by
// prev-reference hash equality until it matches the queried block.
//
// Side effect: caches the anchor masterchain block BoC. When no committing
// masterchain block exists yet the verifier polls with a delay; any mismatch
// is fatal for the verification attempt.
func (e *Engine) CheckShardBlock(ctx context.Context, boc []byte) error {
	e.metrics.ShardChecks.Inc()

	block, rootHash, err := blocks.ParseBlockBoC(boc)
	if err != nil {
		return errors.Wrap(err, errors.ErrorCodeSerdeError, "shard block BoC does not parse")
	}
	if block.Info.MasterRef == nil {
		return errors.New(errors.ErrorCodeSerdeError, "unable to read master_ref of block")
	}

	shard := block.Info.Shard
	log := e.log.WithFields(
		logging.Field{Key: "shard", Value: shard.String()},
		logging.Field{Key: "seq_no", Value: block.Info.SeqNo},
	)

	firstMcSeqNo := block.Info.MasterRef.SeqNo
	for {
		mcSeqNo, found, err := e.queryClosestMcBlockForShardBlock(ctx, &firstMcSeqNo, shard, block.Info.SeqNo)
		if err != nil {
			return err
		}
		if !found {
			// No masterchain block commits to this shard block yet; the
			// chain has to produce one, so poll.
			log.Debug("no committing masterchain block yet, waiting",
				logging.Field{Key: "error_code", Value: string(errors.ErrorCodeShardCommitNotYet)})
			if err := e.env.SetTimer(ctx, shardCommitPollDelayMs); err != nil {
				return err
			}
			continue
		}

		return e.checkShardBlockAgainstMc(ctx, mcSeqNo, block, rootHash, log)
	}
}

// checkShardBlockAgainstMc verifies the anchor masterchain block and the
// shard chain linking it back to the queried block.
func (e *Engine) checkShardBlockAgainstMc(ctx context.Context, mcSeqNo uint32,
	block *blocks.Block, rootHash blocks.Hash, log *logging.Logger) error {

	mcProofRow, err := e.queryMcProof(ctx, mcSeqNo)
	if err != nil {
		return err
	}
	mcProof, err := proofs.FromRow(mcProofRow)
	if err != nil {
		return err
	}
	if _, err := mcProof.CheckProof(ctx, e); err != nil {
		e.metrics.ProofFailures.Inc()
		return err
	}

	mcBoC, err := e.downloadMcBoC(ctx, mcSeqNo)
	if err != nil {
		return err
	}
	mcRoot, err := blocks.DeserializeBoC(mcBoC)
	if err != nil {
		return errors.Wrap(err, errors.ErrorCodeSerdeError, "masterchain block BoC does not parse")
	}
	if mcRoot.ReprHash() != mcProof.ID().RootHash {
		return errors.New(errors.ErrorCodeProofVerificationFailed,
			"proof checking failed: `root_hash` of MC block's BoC downloaded from DApp server "+
				"mismatches `root_hash` of proof for this MC block")
	}

	if err := e.writeMcBlock(ctx, mcSeqNo, mcBoC); err != nil {
		return err
	}

	mcBlock, err := blocks.ParseBlockCell(mcRoot)
	if err != nil {
		return errors.Wrap(err, errors.ErrorCodeSerdeError, "masterchain block does not parse")
	}

	topSeqNo, topRootHash, err := extractTopShardBlock(mcBlock, block.Info.Shard)
	if err != nil {
		return err
	}

	if topSeqNo == block.Info.SeqNo {
		if topRootHash != rootHash {
			return errors.Newf(errors.ErrorCodeShardRootHashMismatch,
				"proof checking failed: masterchain block references shard block with different "+
					"`root_hash`: reference %s, but shard block has %s", topRootHash, rootHash)
		}
		log.Debug("shard block committed directly by masterchain block",
			logging.Field{Key: "mc_seq_no", Value: mcSeqNo})
		return nil
	}

	shardChain, err := e.queryShardBlockBocs(ctx, block.Info.Shard,
		seqRange{Start: block.Info.SeqNo + 1, End: topSeqNo + 1})
	if err != nil {
		return err
	}

	// Walk the fetched blocks newest-first, carrying the expected identity of
	// each block from the previous step's prev_ref (seeded from the
	// masterchain commitment).
	lastPrevSeqNo := topSeqNo
	lastPrevRootHash := topRootHash
	for i := len(shardChain) - 1; i >= 0; i-- {
		chainBlock, chainRootHash, err := blocks.ParseBlockBoC(shardChain[i])
		if err != nil {
			return errors.Wrap(err, errors.ErrorCodeSerdeError, "shard chain block BoC does not parse")
		}
		if err := checkWithLastPrevRef(chainBlock.Info.SeqNo, chainRootHash, lastPrevSeqNo, lastPrevRootHash); err != nil {
			return err
		}
		if chainBlock.Info.PrevRef == nil {
			return errors.Newf(errors.ErrorCodeSerdeError,
				"unable to read prev_ref of shard block %d", chainBlock.Info.SeqNo)
		}
		lastPrevSeqNo = chainBlock.Info.PrevRef.SeqNo
		lastPrevRootHash = chainBlock.Info.PrevRef.RootHash
	}

	if err := checkWithLastPrevRef(block.Info.SeqNo, rootHash, lastPrevSeqNo, lastPrevRootHash); err != nil {
		return err
	}
	log.Debug("shard block verified through back-linked chain",
		logging.Field{Key: "mc_seq_no", Value: mcSeqNo},
		logging.Field{Key: "top_seq_no", Value: topSeqNo})
	return nil
}

func checkWithLastPrevRef(seqNo uint32, rootHash blocks.Hash, lastPrevSeqNo uint32, lastPrevRootHash blocks.Hash) error {
	if seqNo != lastPrevSeqNo {
		return errors.Newf(errors.ErrorCodeShardRootHashMismatch,
			"queried shard block's `seq_no` (%d) mismatches `prev_ref.seq_no` (%d) of the next "+
				"block or reference from the masterchain block", seqNo, lastPrevSeqNo)
	}
	if rootHash != lastPrevRootHash {
		return errors.Newf(errors.ErrorCodeShardRootHashMismatch,
			"shard block proof checking failed: block's `root_hash` (%s) mismatches "+
				"`prev_ref.root_hash` (%s) of the next block or reference from the masterchain block",
			rootHash, lastPrevRootHash)
	}
	return nil
}

// extractTopShardBlock reads the shard-hashes table of a masterchain block
// and returns the committed head of the given shard.
func extractTopShardBlock(mcBlock *blocks.Block, shard blocks.ShardIdent) (uint32, blocks.Hash, error) {
	if mcBlock.ShardHashes == nil {
		return 0, blocks.Hash{}, errors.New(errors.ErrorCodeSerdeError, "unable to read McBlockExtra")
	}
	for i := range mcBlock.ShardHashes {
		entry := &mcBlock.ShardHashes[i]
		if entry.Shard == shard {
			return entry.Descr.SeqNo, entry.Descr.RootHash, nil
		}
	}
	return 0, blocks.Hash{}, errors.Newf(errors.ErrorCodeChainGapOrFork,
		"top block for the given shard (%s) not found", shard)
}

// queryClosestMcBlockForShardBlock scans masterchain blocks starting at
// *firstMcSeqNo for the first one whose shard-hashes table commits the given
// shard at or beyond shardBlockSeqNo. firstMcSeqNo advances past scanned
// batches so the poll loop never re-reads them. found is false when the
// indexer has no further masterchain blocks.
func (e *Engine) queryClosestMcBlockForShardBlock(ctx context.Context, firstMcSeqNo *uint32,
	shard blocks.ShardIdent, shardBlockSeqNo uint32) (uint32, bool, error) {

	for {
		rows, err := e.queryCollection(ctx, indexer.ParamsOfQueryCollection{
			Collection: "blocks",
			Result: "seq_no gen_utime master{shard_hashes{workchain_id shard " +
				"descr{seq_no root_hash}}}",
			Filter: map[string]any{
				"workchain_id": map[string]any{"eq": blocks.MasterchainID},
				"seq_no":       map[string]any{"ge": *firstMcSeqNo},
			},
			Order: sortingBySeqNo(),
		})
		if err != nil {
			return 0, false, err
		}
		batch, err := preprocessQueryResult(rows)
		if err != nil {
			return 0, false, err
		}
		if len(batch) == 0 {
			return 0, false, nil
		}

		for _, entry := range batch {
			master, err := entry.row.Child("master")
			if err != nil {
				return 0, false, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed masterchain block row")
			}
			shardHashes, err := master.Array("shard_hashes")
			if err != nil {
				return 0, false, errors.Wrap(err, errors.ErrorCodeSerdeError, "field `shard_hashes` must be an array")
			}
			for _, item := range shardHashes {
				workchainID, err := item.Int64("workchain_id")
				if err != nil {
					return 0, false, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed shard_hashes entry")
				}
				shardPrefix, err := item.String("shard")
				if err != nil {
					return 0, false, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed shard_hashes entry")
				}
				if workchainID != int64(shard.WorkchainID) || shardPrefix != shard.PrefixAsStrWithTag() {
					continue
				}
				descr, err := item.Child("descr")
				if err != nil {
					return 0, false, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed shard_hashes entry")
				}
				descrSeqNo, err := descr.Uint32("seq_no")
				if err != nil {
					return 0, false, errors.Wrap(err, errors.ErrorCodeSerdeError, "field `seq_no` must be an integer")
				}
				if descrSeqNo >= shardBlockSeqNo {
					return entry.seqNo, true, nil
				}
			}
		}

		*firstMcSeqNo = batch[len(batch)-1].seqNo + 1
	}
}

// queryShardBlockBocs downloads the shard block BoCs for the given seq_no
// range. The indexer must return exactly the requested blocks in order.
func (e *Engine) queryShardBlockBocs(ctx context.Context, shard blocks.ShardIdent, rng seqRange) ([][]byte, error) {
	seqNos := make([]uint32, 0, rng.count())
	for seqNo := rng.Start; seqNo < rng.End; seqNo++ {
		seqNos = append(seqNos, seqNo)
	}

	rows, err := e.queryCollection(ctx, indexer.ParamsOfQueryCollection{
		Collection: "blocks",
		Result:     "seq_no gen_utime id boc",
		Filter: map[string]any{
			"workchain_id": map[string]any{"eq": shard.WorkchainID},
			"shard":        map[string]any{"eq": shard.PrefixAsStrWithTag()},
			"seq_no":       map[string]any{"in": seqNos},
		},
		Order: sortingBySeqNo(),
	})
	if err != nil {
		return nil, err
	}
	batch, err := preprocessQueryResult(rows)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, errors.Newf(errors.ErrorCodeChainGapOrFork,
			"no shard blocks found on DApp server for specified range (shard: %s, seq_no_range: [%d, %d))",
			shard, rng.Start, rng.End)
	}
	if uint32(len(batch)) != rng.count() {
		return nil, errors.Newf(errors.ErrorCodeChainGapOrFork,
			"unexpected number of blocks returned by DApp server for specified range "+
				"(shard: %s, seq_no_range: [%d, %d), expected count: %d, actual count: %d)",
			shard, rng.Start, rng.End, rng.count(), len(batch))
	}

	result := make([][]byte, 0, len(batch))
	for i, entry := range batch {
		expectedSeqNo := rng.Start + uint32(i)
		if entry.seqNo != expectedSeqNo {
			return nil, errors.Newf(errors.ErrorCodeChainGapOrFork,
				"unexpected seq_no of block returned by DApp server for specified range "+
					"(shard: %s, seq_no_range: [%d, %d), expected seq_no: %d, actual seq_no: %d)",
				shard, rng.Start, rng.End, expectedSeqNo, entry.seqNo)
		}
		bocBase64, err := entry.row.String("boc")
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "field `boc` must be a string")
		}
		boc, err := base64.StdEncoding.DecodeString(bocBase64)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "field `boc` must be valid base64")
		}
		result = append(result, boc)
	}
	return result, nil
}
