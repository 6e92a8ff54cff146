// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package engine

import (
	"context"

	"github.com/tychonet/lite-client/blocks"
	"github.com/tychonet/lite-client/errors"
	"github.com/tychonet/lite-client/indexer"
)

// LoadZerostate returns the network's genesis state, downloading and caching
// it on first use. The downloaded blob's representation hash must equal the
// network's zerostate root hash.
func (e *Engine) LoadZerostate(ctx context.Context) (*blocks.ShardState, error) {
	if boc, err := e.getBin(ctx, zerostateKey); err != nil {
		return nil, err
	} else if boc != nil {
		e.metrics.CacheHits.Inc()
		state, _, err := blocks.ParseShardStateBoC(boc)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "cached zerostate does not parse")
		}
		return state, nil
	}
	e.metrics.CacheMisses.Inc()

	boc, err := e.queryZerostateBoC(ctx)
	if err != nil {
		return nil, err
	}

	state, actualHash, err := blocks.ParseShardStateBoC(boc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "downloaded zerostate does not parse")
	}
	uid, err := e.networkUID(ctx)
	if err != nil {
		return nil, err
	}
	if actualHash.Hex() != uid.ZerostateRootHash {
		return nil, errors.Newf(errors.ErrorCodeZerostateHashMismatch,
			"zerostate hashes mismatch (expected `%s`, but queried from DApp is `%s`)",
			uid.ZerostateRootHash, actualHash.Hex())
	}

	if err := e.putBin(ctx, zerostateKey, boc); err != nil {
		return nil, err
	}
	return state, nil
}

// networkUID returns the network identity, resolving it from the indexer on
// first use unless pinned in the configuration. Memoized per engine.
func (e *Engine) networkUID(ctx context.Context) (*NetworkUID, error) {
	if e.pinnedUID != nil {
		return e.pinnedUID, nil
	}

	e.uidMu.Lock()
	defer e.uidMu.Unlock()
	if e.uid != nil {
		return e.uid, nil
	}

	uid, err := e.resolveNetworkUID(ctx)
	if err != nil {
		return nil, err
	}
	e.uid = uid
	return uid, nil
}

// resolveNetworkUID queries the indexer for the zerostate root hash and the
// root hash of the first masterchain block.
func (e *Engine) resolveNetworkUID(ctx context.Context) (*NetworkUID, error) {
	zerostates, err := e.queryCollection(ctx, indexer.ParamsOfQueryCollection{
		Collection: "zerostates",
		Result:     "id",
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(zerostates) == 0 {
		return nil, errors.New(errors.ErrorCodeQueryFailed,
			"unable to resolve network's zerostate id from DApp server")
	}
	zerostateRootHash, err := zerostates[0].String("id")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "zerostate `id` must be a string")
	}

	firstBlocks, err := e.queryCollection(ctx, indexer.ParamsOfQueryCollection{
		Collection: "blocks",
		Result:     "id seq_no gen_utime",
		Filter:     filterForMcBlock(1),
		Order:      sortingBySeqNo(),
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(firstBlocks) == 0 {
		return nil, errors.New(errors.ErrorCodeQueryFailed,
			"unable to resolve first masterchain block id from DApp server")
	}
	firstMasterBlockRootHash, err := firstBlocks[0].String("id")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "block `id` must be a string")
	}

	return &NetworkUID{
		ZerostateRootHash:        zerostateRootHash,
		FirstMasterBlockRootHash: firstMasterBlockRootHash,
	}, nil
}
