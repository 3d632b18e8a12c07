// Package types holds the fixed-size value types shared across the engine:
// Address, Hash, Wei, and Signature. None of them import internal/crypto —
// hashing and signing live one layer up so this package stays a leaf.
package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/chainkit/node/internal/chainerr"
)

// AddressLength is the byte length of an account address.
const AddressLength = 20

// Address is a 20-byte account identifier.
type Address [AddressLength]byte

// Hex renders the address as a lower-case "0x"-prefixed string.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) String() string { return a.Hex() }

// IsZero reports whether a is the all-zero address. spec.md requires
// tx.from to never be the zero address. Contract creation is expressed by a
// nil "to" pointer, not by the zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// ParseAddress decodes a 20-byte hex address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", chainerr.ErrInvalidAddress, err)
	}
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("%w: want %d bytes got %d", chainerr.ErrInvalidAddress, AddressLength, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// BytesToAddress truncates/pads b into an Address, taking the trailing
// AddressLength bytes if b is longer (mirrors how addresses are carved out
// of 32-byte hash digests).
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) >= AddressLength {
		copy(a[:], b[len(b)-AddressLength:])
	} else {
		copy(a[AddressLength-len(b):], b)
	}
	return a
}
