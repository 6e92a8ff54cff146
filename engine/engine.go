// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package engine implements the proof helper engine of the lite client: it
// verifies masterchain key-block proofs, connects requested blocks to the
// configured trust root via chains of key-block proofs, and verifies that
// shard blocks are reachable from proven masterchain blocks. Verified
// artifacts are cached in the proof storage so that later verifications
// extend an already-trusted range instead of re-downloading full chains.
package engine

import (
	"sync"

	"github.com/tychonet/lite-client/blocks"
	"github.com/tychonet/lite-client/config"
	"github.com/tychonet/lite-client/env"
	"github.com/tychonet/lite-client/errors"
	"github.com/tychonet/lite-client/indexer"
	"github.com/tychonet/lite-client/logging"
	"github.com/tychonet/lite-client/metrics"
	"github.com/tychonet/lite-client/proofs"
	"github.com/tychonet/lite-client/storage"
)

// NetworkUID identifies the network universe: the hex root hashes of the
// zerostate and of the first masterchain block. Short prefixes of both
// namespace every storage key so that one process switching between networks
// never confuses caches.
type NetworkUID struct {
	ZerostateRootHash        string
	FirstMasterBlockRootHash string
}

// Engine is the proof helper engine. Safe for concurrent use: all state
// lives in the external storage, and concurrent writers converge because
// keys and contents are deterministic.
type Engine struct {
	indexer indexer.Client
	storage storage.ProofStorage
	env     env.Environment
	trusted proofs.TrustedBlockID
	log     *logging.Logger
	metrics *metrics.Metrics

	pinnedUID *NetworkUID

	uidMu sync.Mutex
	uid   *NetworkUID
}

// New creates an engine for the configured network. The trusted key block is
// required; the network UID hashes are optional and resolved from the indexer
// when not pinned in the configuration.
func New(idx indexer.Client, store storage.ProofStorage, environment env.Environment,
	network config.NetworkSettings, log *logging.Logger, m *metrics.Metrics) (*Engine, error) {

	trustedRootHash, err := blocks.HashFromHex(network.TrustedKeyBlock.RootHash)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeSerdeError, "invalid trusted key block root hash")
	}
	if log == nil {
		log = logging.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	if environment == nil {
		environment = env.RealEnvironment{}
	}

	e := &Engine{
		indexer: idx,
		storage: store,
		env:     environment,
		trusted: proofs.TrustedBlockID{
			SeqNo:    network.TrustedKeyBlock.SeqNo,
			RootHash: trustedRootHash,
		},
		log:     log.WithComponent("proof-engine"),
		metrics: m,
	}
	if network.ZerostateRootHash != "" && network.FirstMasterBlockRootHash != "" {
		e.pinnedUID = &NetworkUID{
			ZerostateRootHash:        network.ZerostateRootHash,
			FirstMasterBlockRootHash: network.FirstMasterBlockRootHash,
		}
	}
	return e, nil
}

// Indexer returns the engine's indexer client.
func (e *Engine) Indexer() indexer.Client {
	return e.indexer
}

// Storage returns the engine's proof storage.
func (e *Engine) Storage() storage.ProofStorage {
	return e.storage
}

// TrustedBlock returns the configured trust anchor.
func (e *Engine) TrustedBlock() proofs.TrustedBlockID {
	return e.trusted
}

// seqRange is a half-open range [Start, End) of masterchain sequence numbers.
type seqRange struct {
	Start uint32
	End   uint32
}

func (r seqRange) isEmpty() bool {
	return r.Start >= r.End
}

func (r seqRange) count() uint32 {
	if r.isEmpty() {
		return 0
	}
	return r.End - r.Start
}

var _ proofs.ProofHelper = (*Engine)(nil)
