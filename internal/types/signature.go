package types

import (
	"fmt"
	"math/big"

	"github.com/chainkit/node/internal/chainerr"
)

// Signature is an EIP-155 secp256k1 signature triple. V follows the form
// chain_id*2 + 35 + recovery_id; R and S are canonical (low-s) values.
type Signature struct {
	V uint64
	R *big.Int
	S *big.Int
}

// secp256k1HalfN mirrors internal/crypto's constant; duplicated here (with
// no import of internal/crypto, which would create a cycle) purely to
// validate canonicity at construction time.
var secp256k1HalfN, _ = new(big.Int).SetString("7fffffffffffffffffffffffffffffff5d576e7357a4501ddfe92f46681b20a0", 16)

// NewSignature validates r and s are canonical (low-s, both positive) and
// returns the resulting Signature.
func NewSignature(v uint64, r, s *big.Int) (Signature, error) {
	if r == nil || s == nil || r.Sign() <= 0 || s.Sign() <= 0 {
		return Signature{}, fmt.Errorf("%w: r/s must be positive", chainerr.ErrNonCanonicalSignature)
	}
	if s.Cmp(secp256k1HalfN) > 0 {
		return Signature{}, fmt.Errorf("%w: s is not low-s", chainerr.ErrNonCanonicalSignature)
	}
	return Signature{V: v, R: r, S: s}, nil
}
