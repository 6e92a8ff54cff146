// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package storage

import (
	dbm "github.com/cometbft/cometbft-db"

	"github.com/tychonet/lite-client/errors"
)

// strPrefix namespaces string values inside the shared keyspace so that a key
// written with PutStr is never read back through GetBin.
const (
	binPrefix = "b/"
	strPrefix = "s/"
)

// KVStore adapts a CometBFT dbm.DB to the ProofStorage interface. This lets
// the engine persist through any backend CometBFT-DB supports (GoLevelDB on
// disk, MemDB for tests).
type KVStore struct {
	db dbm.DB
}

// NewKVStore wraps an open dbm.DB.
func NewKVStore(db dbm.DB) *KVStore {
	return &KVStore{db: db}
}

// OpenDefault opens (creating if needed) a GoLevelDB-backed store named name
// in dir.
func OpenDefault(name, dir string) (*KVStore, error) {
	db, err := dbm.NewDB(name, dbm.GoLevelDBBackend, dir)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorCodeStorageIO, "failed to open database %q in %q", name, dir)
	}
	return &KVStore{db: db}, nil
}

// Close closes the underlying database.
func (s *KVStore) Close() error {
	return s.db.Close()
}

// GetBin implements ProofStorage.GetBin.
func (s *KVStore) GetBin(key string) ([]byte, error) {
	v, err := s.db.Get([]byte(binPrefix + key))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorCodeStorageIO, "get %q", key)
	}
	// v is nil when the key is absent.
	return v, nil
}

// PutBin implements ProofStorage.PutBin. Writes are synced so that a bound
// bumped after a crash always refers to persisted proofs.
func (s *KVStore) PutBin(key string, value []byte) error {
	if err := s.db.SetSync([]byte(binPrefix+key), value); err != nil {
		return errors.Wrapf(err, errors.ErrorCodeStorageIO, "put %q", key)
	}
	return nil
}

// GetStr implements ProofStorage.GetStr.
func (s *KVStore) GetStr(key string) (string, bool, error) {
	v, err := s.db.Get([]byte(strPrefix + key))
	if err != nil {
		return "", false, errors.Wrapf(err, errors.ErrorCodeStorageIO, "get %q", key)
	}
	if v == nil {
		return "", false, nil
	}
	return string(v), true, nil
}

// PutStr implements ProofStorage.PutStr.
func (s *KVStore) PutStr(key string, value string) error {
	if err := s.db.SetSync([]byte(strPrefix+key), []byte(value)); err != nil {
		return errors.Wrapf(err, errors.ErrorCodeStorageIO, "put %q", key)
	}
	return nil
}
