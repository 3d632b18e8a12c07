package crypto

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/chainkit/node/internal/chainerr"
	"github.com/chainkit/node/internal/types"
)

// secp256k1N is the order of the curve's base point. Canonical ("low-s")
// signatures require s <= secp256k1N/2.
var (
	secp256k1N     = secp256k1.S256().N
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// Keypair is a generated secp256k1 identity.
type Keypair struct {
	Private *secp256k1.PrivateKey
	Address types.Address
}

// GenerateKeypair draws a new secp256k1 private key from crypto/rand and
// derives its address the same way Sign/RecoverAddress do.
func GenerateKeypair() (*Keypair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chainerr.ErrInvalidPrivateKey, err)
	}
	return &Keypair{Private: priv, Address: AddressFromPublic(priv.PubKey())}, nil
}

// KeypairFromHex loads a private key from its 32-byte hex encoding.
func KeypairFromHex(hexKey string) (*Keypair, error) {
	b, err := HexDecodeFixed(hexKey, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chainerr.ErrInvalidPrivateKey, err)
	}
	priv := secp256k1.PrivKeyFromBytes(b)
	return &Keypair{Private: priv, Address: AddressFromPublic(priv.PubKey())}, nil
}

// AddressFromPublic derives an address as the last 20 bytes of
// Keccak256(uncompressed_pubkey_without_0x04_prefix).
func AddressFromPublic(pub *secp256k1.PublicKey) types.Address {
	uncompressed := pub.SerializeUncompressed() // 0x04 || X || Y, 65 bytes
	sum := Keccak256(uncompressed[1:])
	var addr types.Address
	copy(addr[:], sum[12:])
	return addr
}

// Sign produces a canonical (low-s) secp256k1 signature over msgHash using
// priv, encoding v in EIP-155 form: v = chainID*2 + 35 + recoveryID.
func Sign(msgHash types.Hash, priv *secp256k1.PrivateKey, chainID uint64) (types.Signature, error) {
	sig := ecdsa.SignCompact(priv, msgHash[:], false)
	// SignCompact returns [recovery_id+27, R(32), S(32)].
	recID := uint64(sig[0]) - 27
	r := new(big.Int).SetBytes(sig[1:33])
	s := new(big.Int).SetBytes(sig[33:65])

	if s.Cmp(secp256k1HalfN) > 0 {
		s = new(big.Int).Sub(secp256k1N, s)
		recID ^= 1
	}

	v := chainID*2 + 35 + recID
	return types.NewSignature(v, r, s)
}

// ChainIDFromV extracts the chain ID folded into an EIP-155 v value.
// Legacy v in {27,28} is rejected with legacy-signature.
func ChainIDFromV(v uint64) (uint64, error) {
	if v < 35 {
		return 0, fmt.Errorf("%w: legacy v=%d not accepted", chainerr.ErrLegacySignature, v)
	}
	return (v - 35) / 2, nil
}

// RecoverAddress recovers the signer's address from msgHash and an
// EIP-155-encoded signature. Any v below 35 (including legacy {27,28}) is
// rejected with legacy-signature; only EIP-155 v for the implied chain ID
// is accepted.
func RecoverAddress(msgHash types.Hash, sig types.Signature) (types.Address, uint64, error) {
	chainID, err := ChainIDFromV(sig.V)
	if err != nil {
		return types.Address{}, 0, err
	}
	// recID is a value mod 2, so it is always 0 or 1 here; there is no
	// malformed-v case left to reject once ChainIDFromV above has already
	// required v >= 35.
	recID := (sig.V - 35) % 2

	rBytes := leftPad32(sig.R.Bytes())
	sBytes := leftPad32(sig.S.Bytes())
	compact := make([]byte, 65)
	compact[0] = byte(recID) + 27
	copy(compact[1:33], rBytes)
	copy(compact[33:65], sBytes)

	pub, wasCompressed, err := ecdsa.RecoverCompact(compact, msgHash[:])
	if err != nil || wasCompressed {
		return types.Address{}, 0, fmt.Errorf("%w: %v", chainerr.ErrBadSignature, err)
	}
	return AddressFromPublic(pub), chainID, nil
}

// Verify reports whether sig over msgHash recovers to expectedAddr.
func Verify(msgHash types.Hash, sig types.Signature, expectedAddr types.Address) bool {
	addr, _, err := RecoverAddress(msgHash, sig)
	if err != nil {
		return false
	}
	return addr == expectedAddr
}

func leftPad32(b []byte) []byte {
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}
