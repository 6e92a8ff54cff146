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
)

// proofQueryResult projects the fields a block proof is built from.
const proofQueryResult = "id workchain_id shard seq_no gen_utime " +
	"signatures{proof catchain_seqno validator_list_hash_short sig_weight " +
	"signatures{node_id r s}}"

// seqRow pairs a block row with its parsed sequence number.
type seqRow struct {
	seqNo uint32
	row   indexer.Row
}

func filterForMcBlock(mcSeqNo uint32) map[string]any {
	return map[string]any{
		"workchain_id": map[string]any{"eq": blocks.MasterchainID},
		"seq_no":       map[string]any{"eq": mcSeqNo},
	}
}

func sortingBySeqNo() []indexer.OrderBy {
	return []indexer.OrderBy{{Path: "seq_no", Direction: indexer.SortAsc}}
}

// queryCollection funnels every indexer query through one place so traffic is
// counted.
func (e *Engine) queryCollection(ctx context.Context, params indexer.ParamsOfQueryCollection) ([]indexer.Row, error) {
	e.metrics.IndexerQueries.Inc()
	return e.indexer.QueryCollection(ctx, params)
}

// preprocessQueryResult deduplicates concurrent-fork rows: the indexer may
// return several rows per seq_no (alternative fork candidates); only the one
// with the largest gen_utime is kept. Relative order across distinct seq_nos
// is preserved as delivered. This is a stopgap for indexer-returned
// alternates, not consensus: authoritative fork choice happens during proof
// verification downstream.
func preprocessQueryResult(rows []indexer.Row) ([]seqRow, error) {
	result := make([]seqRow, 0, len(rows))

	var lastSeqNo, lastGenUtime uint32
	for _, row := range rows {
		seqNo, err := row.Uint32("seq_no")
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed block row")
		}
		genUtime, err := row.Uint32("gen_utime")
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed block row")
		}
		if seqNo != lastSeqNo || len(result) == 0 {
			result = append(result, seqRow{seqNo: seqNo, row: row})
			lastSeqNo = seqNo
			lastGenUtime = genUtime
		} else if genUtime > lastGenUtime {
			result[len(result)-1].row = row
			lastGenUtime = genUtime
		}
	}
	return result, nil
}

// queryZerostateBoC downloads the network's zerostate blob.
func (e *Engine) queryZerostateBoC(ctx context.Context) ([]byte, error) {
	zerostates, err := e.queryCollection(ctx, indexer.ParamsOfQueryCollection{
		Collection: "zerostates",
		Result:     "boc",
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(zerostates) == 0 {
		return nil, errors.New(errors.ErrorCodeQueryFailed,
			"unable to download network's zerostate from DApp server")
	}
	bocBase64, err := zerostates[0].String("boc")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "BoC of zerostate must be a string")
	}
	boc, err := base64.StdEncoding.DecodeString(bocBase64)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "BoC of zerostate must be valid base64")
	}
	return boc, nil
}

// queryFileHashFromNextBlock reads prev_ref.file_hash of block mcSeqNo+1,
// which equals the file hash of block mcSeqNo. Returns ok=false when the next
// block is not on the indexer yet.
func (e *Engine) queryFileHashFromNextBlock(ctx context.Context, mcSeqNo uint32) (string, bool, error) {
	rows, err := e.queryCollection(ctx, indexer.ParamsOfQueryCollection{
		Collection: "blocks",
		Result:     "seq_no gen_utime prev_ref{file_hash}",
		Filter:     filterForMcBlock(mcSeqNo + 1),
		Order:      sortingBySeqNo(),
	})
	if err != nil {
		return "", false, err
	}
	deduped, err := preprocessQueryResult(rows)
	if err != nil {
		return "", false, err
	}
	if len(deduped) == 0 {
		return "", false, nil
	}
	prevRef, err := deduped[0].row.Child("prev_ref")
	if err != nil {
		return "", false, errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed block row")
	}
	fileHash, err := prevRef.String("file_hash")
	if err != nil {
		return "", false, errors.Wrap(err, errors.ErrorCodeSerdeError, "`file_hash` field must be a string")
	}
	return fileHash, true, nil
}

// downloadMcBoC returns the BoC of a masterchain block, serving from the
// block cache when possible.
func (e *Engine) downloadMcBoC(ctx context.Context, mcSeqNo uint32) ([]byte, error) {
	if boc, err := e.readMcBlock(ctx, mcSeqNo); err != nil {
		return nil, err
	} else if boc != nil {
		e.metrics.CacheHits.Inc()
		return boc, nil
	}
	e.metrics.CacheMisses.Inc()

	rows, err := e.queryCollection(ctx, indexer.ParamsOfQueryCollection{
		Collection: "blocks",
		Result:     "seq_no gen_utime boc",
		Filter:     filterForMcBlock(mcSeqNo),
		Order:      sortingBySeqNo(),
	})
	if err != nil {
		return nil, err
	}
	deduped, err := preprocessQueryResult(rows)
	if err != nil {
		return nil, err
	}
	if len(deduped) == 0 {
		return nil, errors.Newf(errors.ErrorCodeQueryFailed,
			"unable to download masterchain block with seq_no: %d from DApp server", mcSeqNo)
	}
	bocBase64, err := deduped[0].row.String("boc")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "`boc` field must be a string")
	}
	boc, err := base64.StdEncoding.DecodeString(bocBase64)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "`boc` field must be valid base64")
	}
	return boc, nil
}

func (e *Engine) downloadMcBoCAndCalcFileHash(ctx context.Context, mcSeqNo uint32) (blocks.Hash, error) {
	boc, err := e.downloadMcBoC(ctx, mcSeqNo)
	if err != nil {
		return blocks.Hash{}, err
	}
	return blocks.FileHash(boc), nil
}

// queryMcBlockFileHash resolves the file hash of a masterchain block: from
// the next block's prev_ref when available, otherwise by downloading the
// block blob and hashing it directly.
func (e *Engine) queryMcBlockFileHash(ctx context.Context, mcSeqNo uint32) (string, error) {
	if fileHash, ok, err := e.queryFileHashFromNextBlock(ctx, mcSeqNo); err != nil {
		return "", err
	} else if ok {
		return fileHash, nil
	}
	fileHash, err := e.downloadMcBoCAndCalcFileHash(ctx, mcSeqNo)
	if err != nil {
		return "", err
	}
	return fileHash.Hex(), nil
}

// queryMcProof downloads the proof row for one masterchain block and attaches
// its file hash.
func (e *Engine) queryMcProof(ctx context.Context, mcSeqNo uint32) (indexer.Row, error) {
	rows, err := e.queryCollection(ctx, indexer.ParamsOfQueryCollection{
		Collection: "blocks",
		Result:     proofQueryResult,
		Filter:     filterForMcBlock(mcSeqNo),
		Order:      sortingBySeqNo(),
	})
	if err != nil {
		return nil, err
	}
	deduped, err := preprocessQueryResult(rows)
	if err != nil {
		return nil, err
	}
	if len(deduped) == 0 {
		return nil, errors.Newf(errors.ErrorCodeQueryFailed,
			"unable to download proof for masterchain block with seq_no: %d from DApp server", mcSeqNo)
	}

	result := deduped[0]
	fileHash, err := e.queryMcBlockFileHash(ctx, result.seqNo)
	if err != nil {
		return nil, err
	}
	result.row["file_hash"] = fileHash
	return result.row, nil
}

// queryKeyBlocksProofs downloads all key-block proof rows in the given range,
// paging until the indexer returns no more rows.
func (e *Engine) queryKeyBlocksProofs(ctx context.Context, rng seqRange) ([]seqRow, error) {
	result := make([]seqRow, 0, rng.count())
	for {
		if rng.isEmpty() {
			return result, nil
		}
		rows, err := e.queryCollection(ctx, indexer.ParamsOfQueryCollection{
			Collection: "blocks",
			Result:     proofQueryResult,
			Filter: map[string]any{
				"workchain_id": map[string]any{"eq": blocks.MasterchainID},
				"key_block":    map[string]any{"eq": true},
				"seq_no":       map[string]any{"ge": rng.Start, "lt": rng.End},
			},
			Order: sortingBySeqNo(),
		})
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return result, nil
		}
		deduped, err := preprocessQueryResult(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, deduped...)
		rng.Start = result[len(result)-1].seqNo + 1
	}
}

// addFileHashes attaches the file hash of each proof's block, taken from
// prev_ref.file_hash of the following block. It is a hard error if the
// indexer returns more matched next-blocks than input proofs or if a returned
// next-block is not the direct successor of its proof. Fewer is acceptable:
// the unattached tail fails proof checking later, and callers retry once the
// chain advances.
func (e *Engine) addFileHashes(ctx context.Context, proofsSorted []seqRow) error {
	remaining := proofsSorted
	for len(remaining) > 0 {
		nextSeqNos := make([]uint32, len(remaining))
		for i, proof := range remaining {
			nextSeqNos[i] = proof.seqNo + 1
		}
		rows, err := e.queryCollection(ctx, indexer.ParamsOfQueryCollection{
			Collection: "blocks",
			Result:     "seq_no gen_utime prev_ref{file_hash}",
			Filter: map[string]any{
				"workchain_id": map[string]any{"eq": blocks.MasterchainID},
				"seq_no":       map[string]any{"in": nextSeqNos},
			},
			Order: sortingBySeqNo(),
		})
		if err != nil {
			return err
		}
		nextBlocks, err := preprocessQueryResult(rows)
		if err != nil {
			return err
		}
		if len(nextBlocks) == 0 {
			return nil
		}
		if len(nextBlocks) > len(remaining) {
			return errors.Newf(errors.ErrorCodeChainGapOrFork,
				"DApp server returned more blocks (%d) than expected (%d)", len(nextBlocks), len(remaining))
		}

		for i, next := range nextBlocks {
			expectedSeqNo := remaining[i].seqNo + 1
			if next.seqNo != expectedSeqNo {
				return errors.Newf(errors.ErrorCodeChainGapOrFork,
					"block with seq_no: %d missed on DApp server (actual seq_no: %d)", expectedSeqNo, next.seqNo)
			}
			prevRef, err := next.row.Child("prev_ref")
			if err != nil {
				return errors.Wrap(err, errors.ErrorCodeSerdeError, "malformed block row")
			}
			fileHash, err := prevRef.String("file_hash")
			if err != nil {
				return errors.Wrap(err, errors.ErrorCodeSerdeError, "`file_hash` field must be a string")
			}
			remaining[i].row["file_hash"] = fileHash
		}
		remaining = remaining[len(nextBlocks):]
	}
	return nil
}
