// Package trie implements the Merkle-Patricia-like structure spec.md §4.3
// and the GLOSSARY describe: a prefix trie over byte keys whose node
// hashes commit to the entire structure. The state repository keys it by
// Keccak-256 of the address; DeriveRoot keys it by RLP(index). It is
// never persisted node-by-node — per spec.md §6's on-disk layout, only
// flat rows are written to the key-value store, and a Trie is always
// rebuilt in memory from those rows (see internal/state.Repository).
//
// To keep the structure simple and still canonical (its root depends only
// on the final key/value set, never on insertion order), every internal
// node is a 16-way branch on one nibble at a time with an optional value
// slot; there is no extension-node path compression. That costs a little
// extra depth versus a textbook MPT but changes nothing observable at the
// root.
package trie

import (
	"github.com/chainkit/node/internal/crypto"
	"github.com/chainkit/node/internal/types"
)

// EmptyRoot is the well-known root hash of a trie containing nothing,
// defined identically to a real MPT: Keccak256(RLP("")).
var EmptyRoot = types.BytesToHash(crypto.Keccak256Hash(crypto.RLPEncode(crypto.RLPString(nil))))

type node struct {
	children [16]*node
	value    []byte
	hasValue bool
}

// Trie is an in-memory key-value trie committing to a root hash.
type Trie struct {
	root *node
}

// New returns an empty trie.
func New() *Trie { return &Trie{} }

// Put inserts or overwrites the value at key.
func (t *Trie) Put(key, value []byte) {
	t.root = insert(t.root, toNibbles(key), value)
}

// Get looks up key, reporting whether it is present.
func (t *Trie) Get(key []byte) ([]byte, bool) {
	n := t.root
	for _, nib := range toNibbles(key) {
		if n == nil {
			return nil, false
		}
		n = n.children[nib]
	}
	if n == nil || !n.hasValue {
		return nil, false
	}
	return n.value, true
}

// Root computes the trie's commitment hash.
func (t *Trie) Root() types.Hash {
	if t.root == nil {
		return EmptyRoot
	}
	return types.BytesToHash(crypto.Keccak256Hash(encodeNode(t.root)))
}

// Clone deep-copies the trie so a caller can speculatively mutate the copy
// — insert mutates nodes in place, so sharing structure with the original
// would corrupt it.
func (t *Trie) Clone() *Trie {
	return &Trie{root: cloneNode(t.root)}
}

func cloneNode(n *node) *node {
	if n == nil {
		return nil
	}
	c := &node{hasValue: n.hasValue}
	c.value = append([]byte(nil), n.value...)
	for i, ch := range n.children {
		c.children[i] = cloneNode(ch)
	}
	return c
}

func insert(n *node, path []byte, value []byte) *node {
	if n == nil {
		n = &node{}
	}
	if len(path) == 0 {
		n.value = value
		n.hasValue = true
		return n
	}
	nib := path[0]
	n.children[nib] = insert(n.children[nib], path[1:], value)
	return n
}

// encodeNode RLP-encodes a node as the canonical 17-element list: one
// string/hash slot per nibble branch, followed by the node's own value
// (empty string if absent).
func encodeNode(n *node) []byte {
	items := make([]crypto.Item, 17)
	for i, c := range n.children {
		items[i] = childRef(c)
	}
	if n.hasValue {
		items[16] = crypto.RLPString(n.value)
	} else {
		items[16] = crypto.RLPString(nil)
	}
	return crypto.RLPEncode(crypto.RLPList(items...))
}

func childRef(c *node) crypto.Item {
	if c == nil {
		return crypto.RLPString(nil)
	}
	h := crypto.Keccak256Hash(encodeNode(c))
	return crypto.RLPString(h)
}

func toNibbles(key []byte) []byte {
	nibbles := make([]byte, 0, len(key)*2)
	for _, b := range key {
		nibbles = append(nibbles, b>>4, b&0x0f)
	}
	return nibbles
}
