package receipt

import "github.com/chainkit/node/internal/crypto"

// BloomByteLength is spec.md's GLOSSARY "2048-bit filter" rendered as
// bytes.
const BloomByteLength = 2048 / 8

// Bloom is a 2048-bit filter over log addresses and topics. A value is
// added by hashing it and setting the three bit positions the hash's
// first six bytes select — the standard three-hash Bloom construction the
// GLOSSARY describes.
type Bloom [BloomByteLength]byte

// Add folds data into the filter.
func (b *Bloom) Add(data []byte) {
	h := crypto.Keccak256(data)
	for i := 0; i < 3; i++ {
		bitPos := (uint(h[2*i])<<8 | uint(h[2*i+1])) & (2048 - 1)
		byteIdx := BloomByteLength - 1 - bitPos/8
		b[byteIdx] |= 1 << (bitPos % 8)
	}
}

// OrWith ORs other into b in place — how a block's logs_bloom accumulates
// from its receipts' blooms.
func (b *Bloom) OrWith(other Bloom) {
	for i := range b {
		b[i] |= other[i]
	}
}

// Test reports whether every bit data would set is already set — the
// fast-path spec.md §6's get_logs uses to skip receipts that provably
// cannot match a filter.
func (b Bloom) Test(data []byte) bool {
	var probe Bloom
	probe.Add(data)
	for i := range probe {
		if probe[i]&^b[i] != 0 {
			return false
		}
	}
	return true
}

// BloomForLog computes the bloom contribution of a single log: its
// address and every topic.
func BloomForLog(l Log) Bloom {
	var b Bloom
	b.Add(l.Address[:])
	for _, topic := range l.Topics {
		b.Add(topic[:])
	}
	return b
}
