package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/chainkit/node/internal/chainerr"
)

// HashLength is the byte length of a Keccak-256 digest.
const HashLength = 32

// Hash is a 32-byte digest: a block hash, transaction hash, or trie root.
type Hash [HashLength]byte

// ZeroHash is the well-known all-zero hash used as genesis's parent hash.
var ZeroHash = Hash{}

func (h Hash) Hex() string    { return "0x" + hex.EncodeToString(h[:]) }
func (h Hash) String() string { return h.Hex() }
func (h Hash) IsZero() bool   { return h == Hash{} }

func (h Hash) Bytes() []byte {
	out := make([]byte, HashLength)
	copy(out, h[:])
	return out
}

// ParseHash decodes a 32-byte hex hash.
func ParseHash(s string) (Hash, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %v", chainerr.ErrInvalidHash, err)
	}
	if len(b) != HashLength {
		return Hash{}, fmt.Errorf("%w: want %d bytes got %d", chainerr.ErrInvalidHash, HashLength, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// BytesToHash left-pads or truncates-from-the-left b into a Hash.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) >= HashLength {
		copy(h[:], b[len(b)-HashLength:])
	} else {
		copy(h[HashLength-len(b):], b)
	}
	return h
}
