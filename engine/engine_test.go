// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/tychonet/lite-client/blocks"
	"github.com/tychonet/lite-client/errors"
	"github.com/tychonet/lite-client/indexer"
	"github.com/tychonet/lite-client/proofs"
	"github.com/tychonet/lite-client/storage"
)

func TestPreprocessQueryResult(t *testing.T) {
	t.Run("keeps the fork row with the largest gen_utime", func(t *testing.T) {
		rows := []indexer.Row{
			{"seq_no": float64(10), "gen_utime": float64(100), "tag": "a"},
			{"seq_no": float64(10), "gen_utime": float64(130), "tag": "b"},
			{"seq_no": float64(10), "gen_utime": float64(120), "tag": "c"},
			{"seq_no": float64(11), "gen_utime": float64(90), "tag": "d"},
			{"seq_no": float64(12), "gen_utime": float64(95), "tag": "e"},
			{"seq_no": float64(12), "gen_utime": float64(97), "tag": "f"},
		}
		result, err := preprocessQueryResult(rows)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result) != 3 {
			t.Fatalf("expected 3 deduplicated rows, got %d", len(result))
		}
		expected := []struct {
			seqNo uint32
			tag   string
		}{{10, "b"}, {11, "d"}, {12, "f"}}
		for i, want := range expected {
			if result[i].seqNo != want.seqNo {
				t.Errorf("row %d: expected seq_no %d, got %d", i, want.seqNo, result[i].seqNo)
			}
			if tag := result[i].row["tag"]; tag != want.tag {
				t.Errorf("row %d: expected tag %q, got %v", i, want.tag, tag)
			}
		}
	})

	t.Run("fails on a row without seq_no", func(t *testing.T) {
		_, err := preprocessQueryResult([]indexer.Row{{"gen_utime": float64(1)}})
		if !errors.HasCode(err, errors.ErrorCodeSerdeError) {
			t.Fatalf("expected SerdeError, got %v", err)
		}
	})
}

func TestLoadKeyBlockProof(t *testing.T) {
	ctx := context.Background()
	chain := newTestChain(t, 110, 100, nil)

	attachedRow := func(seqNo uint32) string {
		row := chain.mcRow(chain.mc[seqNo])
		row["file_hash"] = chain.mc[seqNo].fileHash.Hex()
		raw, err := json.Marshal(row)
		if err != nil {
			t.Fatalf("marshaling fixture row: %v", err)
		}
		return string(raw)
	}

	t.Run("cache hit serves stored proof without queries or writes", func(t *testing.T) {
		eng, store := chain.newEngine(nil, nil)
		if err := store.PutStr(chain.storageKeyFor(mcProofKey(42)), attachedRow(42)); err != nil {
			t.Fatalf("seeding cache: %v", err)
		}
		keysBefore := len(store.Keys())
		chain.mock.queries = 0

		proof, err := eng.LoadKeyBlockProof(ctx, 42)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if proof.ID().SeqNo != 42 || proof.ID().RootHash != chain.mc[42].rootHash {
			t.Errorf("wrong proof returned: %+v", proof.ID())
		}
		if chain.mock.queries != 0 {
			t.Errorf("expected zero indexer queries, got %d", chain.mock.queries)
		}
		if len(store.Keys()) != keysBefore {
			t.Errorf("cache hit must not write: %d keys before, %d after", keysBefore, len(store.Keys()))
		}
	})

	t.Run("trusted anchor proof is accepted by root hash", func(t *testing.T) {
		eng, store := chain.newEngine(nil, nil)

		proof, err := eng.LoadKeyBlockProof(ctx, 100)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if proof.ID().RootHash != chain.mc[100].rootHash {
			t.Errorf("wrong anchor proof root hash: %s", proof.ID().RootHash)
		}
		if _, ok, _ := store.GetStr(chain.storageKeyFor(mcProofKey(100))); !ok {
			t.Error("anchor proof was not persisted")
		}
		// The right boundary stays unset; absent defaults to the anchor.
		if raw, _ := store.GetBin(chain.storageKeyFor(trustedBlockRightBoundKey(100))); raw != nil {
			t.Errorf("trusted right boundary should remain unset, got %v", raw)
		}
	})

	t.Run("extend right of trusted anchor", func(t *testing.T) {
		eng, store := chain.newEngine(nil, nil)

		proof, err := eng.LoadKeyBlockProof(ctx, 103)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if proof.ID().SeqNo != 103 || proof.ID().RootHash != chain.mc[103].rootHash {
			t.Errorf("wrong proof returned: %+v", proof.ID())
		}
		// Every key block in (100, 103] must have a verified cached proof
		// whose identity matches the chain.
		for seqNo := uint32(101); seqNo <= 103; seqNo++ {
			raw, ok, err := store.GetStr(chain.storageKeyFor(mcProofKey(seqNo)))
			if err != nil || !ok {
				t.Fatalf("proof_mc_%d missing (err: %v)", seqNo, err)
			}
			cached, err := proofs.FromJSON([]byte(raw))
			if err != nil {
				t.Fatalf("proof_mc_%d does not parse: %v", seqNo, err)
			}
			if cached.ID().RootHash != chain.mc[seqNo].rootHash {
				t.Errorf("proof_mc_%d root hash mismatch", seqNo)
			}
		}
		right, err := eng.readTrustedBlockRightBound(ctx, 100)
		if err != nil || right != 103 {
			t.Errorf("expected trusted right boundary 103, got %d (err: %v)", right, err)
		}
		if zs, _ := eng.readZsRightBound(ctx); zs != 0 {
			t.Errorf("zerostate boundary must stay 0, got %d", zs)
		}
	})

	t.Run("extend left from zerostate", func(t *testing.T) {
		eng, store := chain.newEngine(nil, nil)

		proof, err := eng.LoadKeyBlockProof(ctx, 50)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if proof.ID().SeqNo != 50 {
			t.Errorf("expected proof for 50, got %d", proof.ID().SeqNo)
		}
		for seqNo := uint32(1); seqNo <= 50; seqNo++ {
			if _, ok, _ := store.GetStr(chain.storageKeyFor(mcProofKey(seqNo))); !ok {
				t.Fatalf("proof_mc_%d missing", seqNo)
			}
		}
		if zs, _ := eng.readZsRightBound(ctx); zs != 50 {
			t.Errorf("expected zerostate right boundary 50, got %d", zs)
		}
	})

	t.Run("second load issues zero queries", func(t *testing.T) {
		eng, _ := chain.newEngine(nil, nil)
		if _, err := eng.LoadKeyBlockProof(ctx, 103); err != nil {
			t.Fatalf("first load: %v", err)
		}
		chain.mock.queries = 0
		if _, err := eng.LoadKeyBlockProof(ctx, 103); err != nil {
			t.Fatalf("second load: %v", err)
		}
		if chain.mock.queries != 0 {
			t.Errorf("expected zero indexer queries on cached load, got %d", chain.mock.queries)
		}
	})

	t.Run("re-download when trusted chain is broken", func(t *testing.T) {
		eng, store := chain.newEngine(nil, nil)
		if _, err := eng.LoadKeyBlockProof(ctx, 103); err != nil {
			t.Fatalf("initial load: %v", err)
		}
		store.Delete(chain.storageKeyFor(mcProofKey(102)))

		proof, err := eng.LoadKeyBlockProof(ctx, 102)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if proof.ID().SeqNo != 102 {
			t.Errorf("expected proof for 102, got %d", proof.ID().SeqNo)
		}
		if _, ok, _ := store.GetStr(chain.storageKeyFor(mcProofKey(102))); !ok {
			t.Error("proof_mc_102 was not rebuilt")
		}
	})

	t.Run("re-download when zerostate chain is broken", func(t *testing.T) {
		eng, store := chain.newEngine(nil, nil)
		if _, err := eng.LoadKeyBlockProof(ctx, 50); err != nil {
			t.Fatalf("initial load: %v", err)
		}
		store.Delete(chain.storageKeyFor(mcProofKey(30)))

		proof, err := eng.LoadKeyBlockProof(ctx, 30)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if proof.ID().SeqNo != 30 {
			t.Errorf("expected proof for 30, got %d", proof.ID().SeqNo)
		}
	})

	t.Run("bounds never decrease", func(t *testing.T) {
		eng, _ := chain.newEngine(nil, nil)

		var lastZs, lastTrusted uint32
		lastTrusted = 100
		for _, seqNo := range []uint32{103, 50, 101, 105, 20} {
			if _, err := eng.LoadKeyBlockProof(ctx, seqNo); err != nil {
				t.Fatalf("load %d: %v", seqNo, err)
			}
			zs, err := eng.readZsRightBound(ctx)
			if err != nil {
				t.Fatalf("reading zs bound: %v", err)
			}
			trusted, err := eng.readTrustedBlockRightBound(ctx, 100)
			if err != nil {
				t.Fatalf("reading trusted bound: %v", err)
			}
			if zs < lastZs {
				t.Errorf("zerostate boundary decreased after load(%d): %d -> %d", seqNo, lastZs, zs)
			}
			if trusted < lastTrusted {
				t.Errorf("trusted boundary decreased after load(%d): %d -> %d", seqNo, lastTrusted, trusted)
			}
			lastZs, lastTrusted = zs, trusted
		}
	})

	t.Run("trusted anchor mismatch is fatal", func(t *testing.T) {
		settings := chain.networkSettings()
		settings.TrustedKeyBlock.RootHash = chain.mc[99].rootHash.Hex() // wrong block
		eng, err := New(chain.mock, storage.NewMemoryStorage(), &fakeEnv{}, settings, nil, nil)
		if err != nil {
			t.Fatalf("creating engine: %v", err)
		}
		_, err = eng.LoadKeyBlockProof(ctx, 100)
		if !errors.HasCode(err, errors.ErrorCodeTrustedAnchorMismatch) {
			t.Fatalf("expected TrustedAnchorMismatch, got %v", err)
		}
	})
}

func TestNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	chainA := newTestChain(t, 110, 100, nil)
	chainB := newTestChain(t, 110, 100, nil)

	store := storage.NewMemoryStorage()
	engA, _ := chainA.newEngine(store, nil)
	engB, _ := chainB.newEngine(store, nil)

	if _, err := engA.LoadKeyBlockProof(ctx, 103); err != nil {
		t.Fatalf("network A load: %v", err)
	}
	keysA := make(map[string]bool)
	for _, key := range store.Keys() {
		keysA[key] = true
	}

	if _, err := engB.LoadKeyBlockProof(ctx, 103); err != nil {
		t.Fatalf("network B load: %v", err)
	}
	prefixA := chainA.storageKeyFor("")
	prefixB := chainB.storageKeyFor("")
	if prefixA == prefixB {
		t.Fatal("fixture networks must have distinct namespaces")
	}
	for _, key := range store.Keys() {
		if keysA[key] {
			if !strings.HasPrefix(key, prefixA) {
				t.Errorf("network A key %q lacks prefix %q", key, prefixA)
			}
			continue
		}
		if !strings.HasPrefix(key, prefixB) {
			t.Errorf("network B key %q lacks prefix %q", key, prefixB)
		}
	}
}

func TestLoadZerostate(t *testing.T) {
	ctx := context.Background()

	t.Run("downloads, verifies, and caches", func(t *testing.T) {
		chain := newTestChain(t, 10, 5, nil)
		eng, _ := chain.newEngine(nil, nil)

		state, err := eng.LoadZerostate(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if state.Validators == nil || len(state.Validators.List) != 3 {
			t.Fatalf("zerostate validator set not loaded: %+v", state.Validators)
		}

		chain.mock.queries = 0
		if _, err := eng.LoadZerostate(ctx); err != nil {
			t.Fatalf("cached load: %v", err)
		}
		if chain.mock.queries != 0 {
			t.Errorf("expected zero queries on cached zerostate, got %d", chain.mock.queries)
		}
	})

	t.Run("hash mismatch fails and writes nothing", func(t *testing.T) {
		chain := newTestChain(t, 10, 5, nil)

		// Serve a state whose hash differs from the configured network UID.
		other := &blocks.ShardState{GlobalID: 2000, Shard: blocks.MasterchainShard, Validators: chain.valSet}
		otherBoC, err := other.MarshalBoC()
		if err != nil {
			t.Fatalf("marshaling tampered state: %v", err)
		}
		chain.mock.collections["zerostates"][0]["boc"] = base64.StdEncoding.EncodeToString(otherBoC)

		eng, store := chain.newEngine(nil, nil)
		_, err = eng.LoadZerostate(ctx)
		if !errors.HasCode(err, errors.ErrorCodeZerostateHashMismatch) {
			t.Fatalf("expected ZerostateHashMismatch, got %v", err)
		}
		if len(store.Keys()) != 0 {
			t.Errorf("failed zerostate load must write nothing, got keys %v", store.Keys())
		}
	})
}

func TestAddFileHashes(t *testing.T) {
	ctx := context.Background()
	chain := newTestChain(t, 110, 100, nil)

	t.Run("more next-blocks than proofs is a hard error", func(t *testing.T) {
		eng, _ := chain.newEngine(nil, nil)
		chain.mock.transform = func(params indexer.ParamsOfQueryCollection, rows []indexer.Row) []indexer.Row {
			if strings.Contains(params.Result, "prev_ref{file_hash}") {
				extra := chain.mcRow(chain.mc[105])
				copied, _ := deepCopyRows([]indexer.Row{extra})
				return append(rows, copied...)
			}
			return rows
		}
		defer func() { chain.mock.transform = nil }()

		rows := []seqRow{{seqNo: 101, row: indexer.Row{"seq_no": float64(101)}}}
		err := eng.addFileHashes(ctx, rows)
		if !errors.HasCode(err, errors.ErrorCodeChainGapOrFork) {
			t.Fatalf("expected ChainGapOrFork, got %v", err)
		}
	})

	t.Run("wrong successor seq_no is a hard error", func(t *testing.T) {
		eng, _ := chain.newEngine(nil, nil)
		chain.mock.transform = func(params indexer.ParamsOfQueryCollection, rows []indexer.Row) []indexer.Row {
			if strings.Contains(params.Result, "prev_ref{file_hash}") && len(rows) > 0 {
				rows[0]["seq_no"] = float64(107)
			}
			return rows
		}
		defer func() { chain.mock.transform = nil }()

		rows := []seqRow{{seqNo: 101, row: indexer.Row{"seq_no": float64(101)}}}
		err := eng.addFileHashes(ctx, rows)
		if !errors.HasCode(err, errors.ErrorCodeChainGapOrFork) {
			t.Fatalf("expected ChainGapOrFork, got %v", err)
		}
	})

	t.Run("missing tail leaves proofs unattached", func(t *testing.T) {
		eng, _ := chain.newEngine(nil, nil)
		chain.mock.transform = func(params indexer.ParamsOfQueryCollection, rows []indexer.Row) []indexer.Row {
			if strings.Contains(params.Result, "prev_ref{file_hash}") {
				return nil
			}
			return rows
		}
		defer func() { chain.mock.transform = nil }()

		rows := []seqRow{{seqNo: 101, row: indexer.Row{"seq_no": float64(101)}}}
		if err := eng.addFileHashes(ctx, rows); err != nil {
			t.Fatalf("short batch must not error: %v", err)
		}
		if _, ok := rows[0].row["file_hash"]; ok {
			t.Error("tail proof must remain unattached")
		}
	})
}
