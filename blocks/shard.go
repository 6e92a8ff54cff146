// Copyright 2025 The Tychonet Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package blocks

import "fmt"

// MasterchainID is the workchain identifier of the masterchain.
const MasterchainID int32 = -1

// FullShardPrefix is the shard prefix covering an entire workchain: the tag
// bit alone, with no prefix bits set.
const FullShardPrefix uint64 = 0x8000000000000000

// ShardIdent identifies a shard: the workchain it belongs to and the tagged
// binary prefix of the account space it covers. The prefix carries its own
// length marker (the lowest set bit), so the pair is unambiguous.
type ShardIdent struct {
	WorkchainID int32
	Prefix      uint64
}

// MasterchainShard is the shard identifier of the masterchain itself.
var MasterchainShard = ShardIdent{WorkchainID: MasterchainID, Prefix: FullShardPrefix}

// IsMasterchain reports whether the shard is the masterchain.
func (s ShardIdent) IsMasterchain() bool {
	return s.WorkchainID == MasterchainID
}

// PrefixAsStrWithTag renders the tagged shard prefix the way the indexer
// stores it in the `shard` field: 16 lowercase hex digits.
func (s ShardIdent) PrefixAsStrWithTag() string {
	return fmt.Sprintf("%016x", s.Prefix)
}

// String implements fmt.Stringer.
func (s ShardIdent) String() string {
	return fmt.Sprintf("%d:%s", s.WorkchainID, s.PrefixAsStrWithTag())
}
