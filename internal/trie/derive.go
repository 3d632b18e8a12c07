package trie

import (
	"github.com/chainkit/node/internal/crypto"
	"github.com/chainkit/node/internal/types"
)

// DeriveRoot builds a throwaway trie keyed by RLP(index) -> encoded[index]
// and returns its root. This is how spec.md §3 defines both
// transactions_root and receipts_root: "a Merkle-Patricia trie keyed by
// RLP(index) mapping to RLP(tx)" (or RLP(receipt)).
func DeriveRoot(encoded [][]byte) types.Hash {
	t := New()
	for i, v := range encoded {
		key := crypto.RLPEncode(crypto.RLPUint(uint64(i)))
		t.Put(key, v)
	}
	return t.Root()
}
