// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package storage defines the key/value persistence contract the proof engine
// verifies against, plus the production CometBFT-DB backend and an in-memory
// implementation for tests.
package storage

// ProofStorage is the persistence contract of the proof engine: a flat
// key→blob / key→string map. Get methods return nil (or ok=false) for a
// missing key and fail only on backend errors. The backend is assumed to be
// linearizable per key; no cross-key transactions are offered.
type ProofStorage interface {
	// GetBin returns the blob stored under key, or nil if the key is absent.
	GetBin(key string) ([]byte, error)
	// PutBin stores a blob under key, replacing any previous value.
	PutBin(key string, value []byte) error
	// GetStr returns the string stored under key; ok is false if absent.
	GetStr(key string) (value string, ok bool, err error)
	// PutStr stores a string under key, replacing any previous value.
	PutStr(key string, value string) error
}
