package types

import (
	"math/big"

	"github.com/holiman/uint256"
)

// WeiPerUnit is the number of wei in one whole unit of the chain's native
// asset (spec.md §6: wei_per_unit = 10^18).
var WeiPerUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Wei is a 256-bit unsigned balance/value/fee amount. Being unsigned, a
// Wei value can never represent a negative balance — spec.md's invariant
// "balance never negative" holds by construction rather than by runtime
// check.
type Wei struct {
	u uint256.Int
}

// ZeroWei is the additive identity.
var ZeroWei = Wei{}

// NewWeiFromUint64 constructs a Wei from a machine integer.
func NewWeiFromUint64(v uint64) Wei {
	var w Wei
	w.u.SetUint64(v)
	return w
}

// NewWeiFromBigInt constructs a Wei from a non-negative big.Int. Negative
// inputs are clamped to zero since Wei cannot represent them.
func NewWeiFromBigInt(v *big.Int) Wei {
	var w Wei
	if v == nil || v.Sign() < 0 {
		return w
	}
	w.u.SetFromBig(v)
	return w
}

// NewWeiFromDecimal parses a base-10 string, the wire format spec.md §6
// uses for genesis allocations.
func NewWeiFromDecimal(s string) (Wei, error) {
	var w Wei
	if err := w.u.SetFromDecimal(s); err != nil {
		return Wei{}, err
	}
	return w, nil
}

// Big returns the value as a *big.Int.
func (w Wei) Big() *big.Int { return w.u.ToBig() }

// String renders the value in base 10.
func (w Wei) String() string { return w.u.Dec() }

// Cmp compares w and o the way big.Int.Cmp does.
func (w Wei) Cmp(o Wei) int { return w.u.Cmp(&o.u) }

// Add returns w+o. Spec.md never calls for overflow to wrap — both
// operands come from bounded real-world balances/fees well under 2^256.
func (w Wei) Add(o Wei) Wei {
	var r Wei
	r.u.Add(&w.u, &o.u)
	return r
}

// Sub returns w-o. Callers must ensure w >= o; GTE should be checked with
// Cmp beforehand since uint256 subtraction wraps on underflow.
func (w Wei) Sub(o Wei) Wei {
	var r Wei
	r.u.Sub(&w.u, &o.u)
	return r
}

// Mul returns w*o.
func (w Wei) Mul(o Wei) Wei {
	var r Wei
	r.u.Mul(&w.u, &o.u)
	return r
}

// IsZero reports whether the value is zero.
func (w Wei) IsZero() bool { return w.u.IsZero() }

// GTE reports whether w >= o.
func (w Wei) GTE(o Wei) bool { return w.Cmp(o) >= 0 }

// Bytes32 renders the value as a 32-byte big-endian array. Account records
// store MinimalBytes, not this form.
func (w Wei) Bytes32() [32]byte {
	return w.u.Bytes32()
}

// WeiFromBytes reconstructs a Wei from a big-endian byte slice (as decoded
// out of an RLP string).
func WeiFromBytes(b []byte) Wei {
	var w Wei
	w.u.SetBytes(b)
	return w
}

// MinimalBytes returns the big-endian minimal encoding (no leading zero
// bytes; zero encodes as the empty slice), matching RLP's integer rule.
func (w Wei) MinimalBytes() []byte {
	if w.u.IsZero() {
		return nil
	}
	return w.u.Bytes()
}
