// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package engine

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/tychonet/lite-client/blocks"
	"github.com/tychonet/lite-client/config"
	"github.com/tychonet/lite-client/indexer"
	"github.com/tychonet/lite-client/storage"
)

// builtBlock is one fixture block with every derived artifact tests need.
type builtBlock struct {
	block    *blocks.Block
	boc      []byte
	rootHash blocks.Hash
	fileHash blocks.Hash
}

// testChain builds a synthetic network: a zerostate, a contiguous masterchain
// of key blocks signed by a fixed validator set, and optional shard chains.
// Every block lands in the mock indexer's tables.
type testChain struct {
	t *testing.T

	keys   []ed25519.PrivateKey
	valSet *blocks.ValidatorSet

	zerostate     *blocks.ShardState
	zerostateBoC  []byte
	zerostateHash blocks.Hash

	mc     map[uint32]*builtBlock
	topSeq uint32

	shard       blocks.ShardIdent
	shardBlocks map[uint32]*builtBlock

	mock    *mockIndexer
	trusted uint32
}

const testGenUtimeBase = 1_700_000_000

// newTestChain builds masterchain blocks 1..topSeq (all key blocks, each
// publishing the same validator set). commits maps masterchain seq_nos to the
// shard heads they commit.
func newTestChain(t *testing.T, topSeq, trustedSeqNo uint32, commits map[uint32][]blocks.ShardHashEntry) *testChain {
	t.Helper()

	c := &testChain{
		t:           t,
		mc:          make(map[uint32]*builtBlock),
		shardBlocks: make(map[uint32]*builtBlock),
		shard:       blocks.ShardIdent{WorkchainID: 0, Prefix: blocks.FullShardPrefix},
		mock:        newMockIndexer(),
		trusted:     trustedSeqNo,
		topSeq:      topSeq,
	}

	const validatorCount = 3
	c.valSet = &blocks.ValidatorSet{UtimeSince: testGenUtimeBase}
	for i := 0; i < validatorCount; i++ {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			t.Fatalf("generating validator key: %v", err)
		}
		c.keys = append(c.keys, priv)
		descr := blocks.ValidatorDescr{NodeID: blocks.ComputeNodeID(pub), Weight: 1}
		copy(descr.PublicKey[:], pub)
		c.valSet.List = append(c.valSet.List, descr)
	}

	c.zerostate = &blocks.ShardState{
		GlobalID:   1000,
		Shard:      blocks.MasterchainShard,
		GenUtime:   testGenUtimeBase,
		Validators: c.valSet,
	}
	var err error
	if c.zerostateBoC, err = c.zerostate.MarshalBoC(); err != nil {
		t.Fatalf("marshaling zerostate: %v", err)
	}
	c.zerostateHash = c.zerostate.RootHash()
	c.mock.collections["zerostates"] = []indexer.Row{{
		"id":  c.zerostateHash.Hex(),
		"boc": base64.StdEncoding.EncodeToString(c.zerostateBoC),
	}}

	for seqNo := uint32(1); seqNo <= topSeq; seqNo++ {
		c.appendMcBlock(seqNo, commits[seqNo])
	}
	return c
}

// appendMcBlock extends the masterchain by one key block.
func (c *testChain) appendMcBlock(seqNo uint32, shardEntries []blocks.ShardHashEntry) *builtBlock {
	c.t.Helper()

	block := &blocks.Block{
		Info: blocks.BlockInfo{
			Shard:             blocks.MasterchainShard,
			SeqNo:             seqNo,
			GenUtime:          testGenUtimeBase + seqNo,
			KeyBlock:          true,
			PrevKeyBlockSeqNo: seqNo - 1,
		},
		ShardHashes: shardEntries,
		Validators:  c.valSet,
	}
	if block.ShardHashes == nil {
		block.ShardHashes = []blocks.ShardHashEntry{}
	}
	if prev := c.mc[seqNo-1]; prev != nil {
		block.Info.PrevRef = &blocks.ExtBlkRef{
			SeqNo:    seqNo - 1,
			RootHash: prev.rootHash,
			FileHash: prev.fileHash,
		}
	}

	built := c.build(block)
	c.mc[seqNo] = built
	if seqNo > c.topSeq {
		c.topSeq = seqNo
	}
	c.mock.collections["blocks"] = append(c.mock.collections["blocks"], c.mcRow(built))
	return built
}

// buildShardChain creates shard blocks firstSeq..lastSeq back-linked by
// prev_ref and registers them with the mock indexer.
func (c *testChain) buildShardChain(firstSeq, lastSeq, masterRefSeqNo uint32) {
	c.t.Helper()
	for seqNo := firstSeq; seqNo <= lastSeq; seqNo++ {
		block := &blocks.Block{
			Info: blocks.BlockInfo{
				Shard:             c.shard,
				SeqNo:             seqNo,
				GenUtime:          testGenUtimeBase + seqNo,
				MasterRef:         &blocks.BlkMasterRef{SeqNo: masterRefSeqNo},
				PrevKeyBlockSeqNo: 0,
			},
		}
		if prev := c.shardBlocks[seqNo-1]; prev != nil {
			block.Info.PrevRef = &blocks.ExtBlkRef{
				SeqNo:    seqNo - 1,
				RootHash: prev.rootHash,
				FileHash: prev.fileHash,
			}
		}
		built := c.build(block)
		c.shardBlocks[seqNo] = built
		c.mock.collections["blocks"] = append(c.mock.collections["blocks"], c.shardRow(built))
	}
}

func (c *testChain) build(block *blocks.Block) *builtBlock {
	c.t.Helper()
	boc, err := block.MarshalBoC()
	if err != nil {
		c.t.Fatalf("marshaling block %d: %v", block.Info.SeqNo, err)
	}
	return &builtBlock{
		block:    block,
		boc:      boc,
		rootHash: block.RootHash(),
		fileHash: blocks.FileHash(boc),
	}
}

// signBlock produces validator signature rows over tag || root_hash ||
// file_hash, mirroring what proof checking verifies.
func (c *testChain) signBlock(rootHash, fileHash blocks.Hash) []any {
	message := make([]byte, 4+2*blocks.HashSize)
	binary.BigEndian.PutUint32(message[:4], 0x706e0bc5)
	copy(message[4:], rootHash[:])
	copy(message[4+blocks.HashSize:], fileHash[:])

	rows := make([]any, len(c.keys))
	for i, priv := range c.keys {
		sig := ed25519.Sign(priv, message)
		rows[i] = map[string]any{
			"node_id": c.valSet.List[i].NodeID.Hex(),
			"r":       hex.EncodeToString(sig[:32]),
			"s":       hex.EncodeToString(sig[32:]),
		}
	}
	return rows
}

func (c *testChain) mcRow(built *builtBlock) indexer.Row {
	info := built.block.Info
	row := indexer.Row{
		"id":           built.rootHash.Hex(),
		"workchain_id": blocks.MasterchainID,
		"shard":        blocks.MasterchainShard.PrefixAsStrWithTag(),
		"seq_no":       info.SeqNo,
		"gen_utime":    info.GenUtime,
		"key_block":    info.KeyBlock,
		"boc":          base64.StdEncoding.EncodeToString(built.boc),
		"signatures": map[string]any{
			"proof":                     base64.StdEncoding.EncodeToString(built.boc),
			"catchain_seqno":            info.SeqNo,
			"validator_list_hash_short": c.valSet.ShortHash(),
			"sig_weight":                "3",
			"signatures":                c.signBlock(built.rootHash, built.fileHash),
		},
		"master": map[string]any{
			"shard_hashes": shardHashRows(built.block.ShardHashes),
		},
	}
	if info.PrevRef != nil {
		row["prev_ref"] = map[string]any{
			"seq_no":    info.PrevRef.SeqNo,
			"root_hash": info.PrevRef.RootHash.Hex(),
			"file_hash": info.PrevRef.FileHash.Hex(),
		}
	}
	return row
}

func (c *testChain) shardRow(built *builtBlock) indexer.Row {
	info := built.block.Info
	return indexer.Row{
		"id":           built.rootHash.Hex(),
		"workchain_id": info.Shard.WorkchainID,
		"shard":        info.Shard.PrefixAsStrWithTag(),
		"seq_no":       info.SeqNo,
		"gen_utime":    info.GenUtime,
		"key_block":    false,
		"boc":          base64.StdEncoding.EncodeToString(built.boc),
	}
}

func shardHashRows(entries []blocks.ShardHashEntry) []any {
	rows := make([]any, len(entries))
	for i, entry := range entries {
		rows[i] = map[string]any{
			"workchain_id": entry.Shard.WorkchainID,
			"shard":        entry.Shard.PrefixAsStrWithTag(),
			"descr": map[string]any{
				"seq_no":    entry.Descr.SeqNo,
				"root_hash": entry.Descr.RootHash.Hex(),
			},
		}
	}
	return rows
}

// removeRow drops the first row of a collection matching the predicate.
func (c *testChain) removeRow(collection string, match func(indexer.Row) bool) {
	rows := c.mock.collections[collection]
	for i, row := range rows {
		if match(row) {
			c.mock.collections[collection] = append(rows[:i:i], rows[i+1:]...)
			return
		}
	}
	c.t.Fatalf("no row to remove in collection %q", collection)
}

func (c *testChain) networkSettings() config.NetworkSettings {
	return config.NetworkSettings{
		Name:                     "testnet",
		Endpoint:                 "mock",
		ZerostateRootHash:        c.zerostateHash.Hex(),
		FirstMasterBlockRootHash: c.mc[1].rootHash.Hex(),
		TrustedKeyBlock: config.TrustedBlockSettings{
			SeqNo:    c.trusted,
			RootHash: c.mc[c.trusted].rootHash.Hex(),
		},
	}
}

// newEngine constructs an engine over a fresh in-memory store (or over the
// provided one) with the chain's mock indexer and a fake environment.
func (c *testChain) newEngine(store *storage.MemoryStorage, environment *fakeEnv) (*Engine, *storage.MemoryStorage) {
	c.t.Helper()
	if store == nil {
		store = storage.NewMemoryStorage()
	}
	if environment == nil {
		environment = &fakeEnv{}
	}
	eng, err := New(c.mock, store, environment, c.networkSettings(), nil, nil)
	if err != nil {
		c.t.Fatalf("creating engine: %v", err)
	}
	return eng, store
}

// storageKeyFor namespaces a logical key the way the engine does.
func (c *testChain) storageKeyFor(key string) string {
	return genStorageKey(&NetworkUID{
		ZerostateRootHash:        c.zerostateHash.Hex(),
		FirstMasterBlockRootHash: c.mc[1].rootHash.Hex(),
	}, key)
}
