package crypto

import "golang.org/x/crypto/sha3"

// HashLength is the byte length of a Keccak-256 digest.
const HashLength = 32

// Keccak256 hashes the concatenation of data with the legacy (pre-NIST)
// Keccak-256 permutation used throughout this system for addresses,
// transaction hashes, block hashes, and trie commitments.
func Keccak256(data ...[]byte) [HashLength]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out [HashLength]byte
	h.Sum(out[:0])
	return out
}

// Keccak256Hash is Keccak256 returning a slice, for callers that don't want
// to deal with array-to-slice conversions at the call site.
func Keccak256Hash(data ...[]byte) []byte {
	sum := Keccak256(data...)
	return sum[:]
}
