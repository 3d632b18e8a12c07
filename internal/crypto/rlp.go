package crypto

import (
	"fmt"
	"math/big"

	"github.com/chainkit/node/internal/chainerr"
)

// Item is the recursive RLP sum type: either a byte string or a list of
// items. Exactly one of Bytes or List is meaningful for a given Item;
// IsList reports which.
type Item struct {
	Bytes  []byte
	List   []Item
	IsList bool
}

// RLPString wraps a byte string as a leaf Item.
func RLPString(b []byte) Item { return Item{Bytes: b} }

// RLPList wraps a sequence of items as a list Item.
func RLPList(items ...Item) Item { return Item{List: items, IsList: true} }

// RLPUint encodes a uint64 as the big-endian-minimal byte string RLP
// requires: no leading zero bytes, and zero itself is the empty string.
func RLPUint(v uint64) Item {
	if v == 0 {
		return Item{Bytes: nil}
	}
	b := big.NewInt(0).SetUint64(v).Bytes()
	return Item{Bytes: b}
}

// RLPBigInt encodes an arbitrary non-negative big.Int the same way.
func RLPBigInt(v *big.Int) Item {
	if v == nil || v.Sign() == 0 {
		return Item{Bytes: nil}
	}
	return Item{Bytes: v.Bytes()}
}

// DecodeUint interprets a leaf Item as a big-endian minimal unsigned
// integer. It rejects leading zero bytes to keep decoding canonical.
func DecodeUint(it Item) (uint64, error) {
	if it.IsList {
		return 0, fmt.Errorf("%w: expected string, got list", chainerr.ErrMalformedRLP)
	}
	if len(it.Bytes) > 0 && it.Bytes[0] == 0 {
		return 0, fmt.Errorf("%w: non-minimal integer encoding", chainerr.ErrMalformedRLP)
	}
	if len(it.Bytes) > 8 {
		return 0, fmt.Errorf("%w: integer overflow", chainerr.ErrMalformedRLP)
	}
	var v uint64
	for _, b := range it.Bytes {
		v = v<<8 | uint64(b)
	}
	return v, nil
}

// RLPEncode serializes an Item using the canonical recursive length-prefix
// scheme described in spec.md §4.1: single bytes below 0x80 encode as
// themselves, 0-55 byte strings carry an 0x80+len prefix, longer strings
// carry 0xb7+len(len) followed by the big-endian length, and lists use the
// analogous 0xc0/0xf7 prefixes.
func RLPEncode(it Item) []byte {
	if !it.IsList {
		return encodeString(it.Bytes)
	}
	var body []byte
	for _, child := range it.List {
		body = append(body, RLPEncode(child)...)
	}
	return append(encodeListHeader(len(body)), body...)
}

func encodeString(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return []byte{b[0]}
	}
	return append(encodeHeader(0x80, len(b)), b...)
}

func encodeListHeader(bodyLen int) []byte {
	return encodeHeader(0xc0, bodyLen)
}

func encodeHeader(base byte, n int) []byte {
	if n <= 55 {
		return []byte{base + byte(n)}
	}
	lenBytes := minimalBigEndian(uint64(n))
	return append([]byte{base + 55 + byte(len(lenBytes))}, lenBytes...)
}

func minimalBigEndian(v uint64) []byte {
	if v == 0 {
		return []byte{0}
	}
	var buf [8]byte
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	i := 0
	for i < 7 && buf[i] == 0 {
		i++
	}
	return buf[i:]
}

// RLPDecode parses exactly one item from b, failing malformed-rlp if b
// contains trailing bytes or an otherwise non-canonical encoding.
func RLPDecode(b []byte) (Item, error) {
	it, rest, err := decodeOne(b)
	if err != nil {
		return Item{}, err
	}
	if len(rest) != 0 {
		return Item{}, fmt.Errorf("%w: trailing bytes", chainerr.ErrMalformedRLP)
	}
	return it, nil
}

func decodeOne(b []byte) (Item, []byte, error) {
	if len(b) == 0 {
		return Item{}, nil, fmt.Errorf("%w: empty input", chainerr.ErrMalformedRLP)
	}
	prefix := b[0]
	switch {
	case prefix < 0x80:
		return Item{Bytes: b[0:1]}, b[1:], nil

	case prefix < 0xb8:
		n := int(prefix - 0x80)
		return takeString(b[1:], n)

	case prefix < 0xc0:
		lenOfLen := int(prefix - 0xb7)
		n, tail, err := takeLength(b[1:], lenOfLen)
		if err != nil {
			return Item{}, nil, err
		}
		if n <= 55 {
			return Item{}, nil, fmt.Errorf("%w: non-canonical long-string length", chainerr.ErrMalformedRLP)
		}
		return takeString(tail, n)

	case prefix < 0xf8:
		n := int(prefix - 0xc0)
		return takeList(b[1:], n)

	default:
		lenOfLen := int(prefix - 0xf7)
		n, tail, err := takeLength(b[1:], lenOfLen)
		if err != nil {
			return Item{}, nil, err
		}
		if n <= 55 {
			return Item{}, nil, fmt.Errorf("%w: non-canonical long-list length", chainerr.ErrMalformedRLP)
		}
		return takeList(tail, n)
	}
}

func takeString(b []byte, n int) (Item, []byte, error) {
	if len(b) < n {
		return Item{}, nil, fmt.Errorf("%w: short string body", chainerr.ErrMalformedRLP)
	}
	if n == 1 && b[0] < 0x80 {
		return Item{}, nil, fmt.Errorf("%w: single byte must use short form", chainerr.ErrMalformedRLP)
	}
	return Item{Bytes: append([]byte(nil), b[:n]...)}, b[n:], nil
}

func takeList(b []byte, n int) (Item, []byte, error) {
	if len(b) < n {
		return Item{}, nil, fmt.Errorf("%w: short list body", chainerr.ErrMalformedRLP)
	}
	body, rest := b[:n], b[n:]
	var items []Item
	for len(body) > 0 {
		it, tail, err := decodeOne(body)
		if err != nil {
			return Item{}, nil, err
		}
		items = append(items, it)
		body = tail
	}
	return Item{List: items, IsList: true}, rest, nil
}

func takeLength(b []byte, lenOfLen int) (int, []byte, error) {
	if lenOfLen == 0 || lenOfLen > 8 || len(b) < lenOfLen {
		return 0, nil, fmt.Errorf("%w: invalid length-of-length", chainerr.ErrMalformedRLP)
	}
	if b[0] == 0 {
		return 0, nil, fmt.Errorf("%w: non-minimal length encoding", chainerr.ErrMalformedRLP)
	}
	var n uint64
	for _, x := range b[:lenOfLen] {
		n = n<<8 | uint64(x)
	}
	return int(n), b[lenOfLen:], nil
}
