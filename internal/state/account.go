// Package state implements spec.md §4.3 (trie-backed repository) and §4.4
// (journaled manager): the account model, its persistence, and the
// checkpoint/commit/revert journal the block producer drives.
package state

import (
	"fmt"

	"github.com/chainkit/node/internal/chainerr"
	"github.com/chainkit/node/internal/crypto"
	"github.com/chainkit/node/internal/types"
)

// EmptyCodeHash is Keccak256 of the empty byte string — spec.md §3's
// well-known constant for an account with no installed code.
var EmptyCodeHash = types.BytesToHash(crypto.Keccak256Hash(nil))

// Account is the on-chain record for one address. A zero-value Account has
// all-zero StorageRoot and CodeHash; NewAccount fills in the empty-trie
// root and EmptyCodeHash instead.
type Account struct {
	Nonce       uint64
	Balance     types.Wei
	StorageRoot types.Hash
	CodeHash    types.Hash
}

// NewAccount returns a freshly materialized account with no storage or
// code.
func NewAccount() Account {
	return Account{StorageRoot: emptyTrieRoot(), CodeHash: EmptyCodeHash}
}

// emptyTrieRoot computes Keccak256(RLP("")), the same value as
// trie.EmptyRoot.
func emptyTrieRoot() types.Hash {
	return types.BytesToHash(crypto.Keccak256Hash(crypto.RLPEncode(crypto.RLPString(nil))))
}

// Encode RLP-encodes the account as spec.md §4.3 requires:
// RLP([nonce, balance, storage_root, code_hash]).
func (a Account) Encode() []byte {
	item := crypto.RLPList(
		crypto.RLPUint(a.Nonce),
		crypto.Item{Bytes: a.Balance.MinimalBytes()},
		crypto.RLPString(a.StorageRoot[:]),
		crypto.RLPString(a.CodeHash[:]),
	)
	return crypto.RLPEncode(item)
}

// DecodeAccount parses bytes produced by Encode.
func DecodeAccount(b []byte) (Account, error) {
	item, err := crypto.RLPDecode(b)
	if err != nil {
		return Account{}, err
	}
	if !item.IsList || len(item.List) != 4 {
		return Account{}, fmt.Errorf("%w: account record must be a 4-element list", chainerr.ErrMalformedRLP)
	}
	nonce, err := crypto.DecodeUint(item.List[0])
	if err != nil {
		return Account{}, err
	}
	balance := types.WeiFromBytes(item.List[1].Bytes)
	if item.List[2].IsList || len(item.List[2].Bytes) != types.HashLength {
		return Account{}, fmt.Errorf("%w: storage root must be 32 bytes", chainerr.ErrMalformedRLP)
	}
	if item.List[3].IsList || len(item.List[3].Bytes) != types.HashLength {
		return Account{}, fmt.Errorf("%w: code hash must be 32 bytes", chainerr.ErrMalformedRLP)
	}
	return Account{
		Nonce:       nonce,
		Balance:     balance,
		StorageRoot: types.BytesToHash(item.List[2].Bytes),
		CodeHash:    types.BytesToHash(item.List[3].Bytes),
	}, nil
}
