// Package txn implements spec.md §3's Transaction entity: its canonical
// RLP encoding, hashing, signing, and recovery. It knows nothing of pools,
// nonces-on-chain, or balances — that validation lives in internal/txservice.
package txn

import (
	"fmt"
	"math/big"

	"github.com/chainkit/node/internal/chainerr"
	"github.com/chainkit/node/internal/crypto"
	"github.com/chainkit/node/internal/types"
)

// MinGasLimit is spec.md §3's floor for a pure transfer.
const MinGasLimit = 21000

// Transaction is a signed, account-based transfer or contract call.
// To is nil to mean contract creation ("to_or_empty" in spec.md §3). From
// is carried for convenience but is never trusted on its own — every
// admission path recomputes it from the signature and requires equality.
type Transaction struct {
	From     types.Address
	To       *types.Address
	Value    types.Wei
	Nonce    uint64
	GasPrice types.Wei
	GasLimit uint64
	Data     []byte
	Sig      types.Signature
}

func toItem(to *types.Address) crypto.Item {
	if to == nil {
		return crypto.RLPString(nil)
	}
	return crypto.RLPString(to[:])
}

// unsignedItem builds the RLP item signed over: [nonce, gas_price,
// gas_limit, to_or_empty, value, data, chain_id]. Folding chain_id into
// the signed preimage (rather than only into v) is what gives EIP-155 its
// replay protection — a signature produced for one chain_id cannot be
// replayed as valid on another, since the recovered address would differ.
func unsignedItem(nonce uint64, gasPrice types.Wei, gasLimit uint64, to *types.Address, value types.Wei, data []byte, chainID uint64) crypto.Item {
	return crypto.RLPList(
		crypto.RLPUint(nonce),
		crypto.Item{Bytes: gasPrice.MinimalBytes()},
		crypto.RLPUint(gasLimit),
		toItem(to),
		crypto.Item{Bytes: value.MinimalBytes()},
		crypto.RLPString(data),
		crypto.RLPUint(chainID),
	)
}

// UnsignedHash returns the hash signed over for chainID, before v/r/s
// exist.
func UnsignedHash(nonce uint64, gasPrice types.Wei, gasLimit uint64, to *types.Address, value types.Wei, data []byte, chainID uint64) types.Hash {
	item := unsignedItem(nonce, gasPrice, gasLimit, to, value, data, chainID)
	return types.BytesToHash(crypto.Keccak256Hash(crypto.RLPEncode(item)))
}

// Sign builds a fully-signed Transaction from priv, deriving From and
// filling in the EIP-155 signature. Callers supply the sender's intended
// nonce — internal/txservice is responsible for choosing it.
func Sign(priv *crypto.Keypair, chainID uint64, to *types.Address, value types.Wei, nonce uint64, gasPrice types.Wei, gasLimit uint64, data []byte) (Transaction, error) {
	uh := UnsignedHash(nonce, gasPrice, gasLimit, to, value, data, chainID)
	sig, err := crypto.Sign(uh, priv.Private, chainID)
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		From:     priv.Address,
		To:       to,
		Value:    value,
		Nonce:    nonce,
		GasPrice: gasPrice,
		GasLimit: gasLimit,
		Data:     data,
		Sig:      sig,
	}, nil
}

// signedItem builds the RLP item spec.md §3 defines the canonical hash
// over: [nonce, gas_price, gas_limit, to_or_empty, value, data, v, r, s].
func (t Transaction) signedItem() crypto.Item {
	return crypto.RLPList(
		crypto.RLPUint(t.Nonce),
		crypto.Item{Bytes: t.GasPrice.MinimalBytes()},
		crypto.RLPUint(t.GasLimit),
		toItem(t.To),
		crypto.Item{Bytes: t.Value.MinimalBytes()},
		crypto.RLPString(t.Data),
		crypto.RLPUint(t.Sig.V),
		crypto.RLPBigInt(t.Sig.R),
		crypto.RLPBigInt(t.Sig.S),
	)
}

// Hash is the transaction's canonical identifier: Keccak256 of its signed
// RLP encoding.
func (t Transaction) Hash() types.Hash {
	return types.BytesToHash(crypto.Keccak256Hash(crypto.RLPEncode(t.signedItem())))
}

// Encode RLP-encodes the full signed transaction, the form persisted in a
// block body and leaf value of the transactions trie.
func (t Transaction) Encode() []byte {
	return crypto.RLPEncode(t.signedItem())
}

// RecoverFrom recovers the address that signed t and the chain ID folded
// into its v, independent of whatever t.From currently holds.
func (t Transaction) RecoverFrom() (types.Address, uint64, error) {
	chainID, err := crypto.ChainIDFromV(t.Sig.V)
	if err != nil {
		return types.Address{}, 0, err
	}
	uh := UnsignedHash(t.Nonce, t.GasPrice, t.GasLimit, t.To, t.Value, t.Data, chainID)
	return crypto.RecoverAddress(uh, t.Sig)
}

// Decode parses bytes produced by Encode. From is never part of the wire
// encoding; Decode always recomputes it from the recovered signature.
func Decode(b []byte) (Transaction, error) {
	item, err := crypto.RLPDecode(b)
	if err != nil {
		return Transaction{}, err
	}
	if !item.IsList || len(item.List) != 9 {
		return Transaction{}, fmt.Errorf("%w: transaction must be a 9-element list", chainerr.ErrMalformedRLP)
	}

	nonce, err := crypto.DecodeUint(item.List[0])
	if err != nil {
		return Transaction{}, err
	}
	if item.List[1].IsList || item.List[2].IsList {
		return Transaction{}, fmt.Errorf("%w: gas fields must be strings", chainerr.ErrMalformedRLP)
	}
	gasPrice := types.WeiFromBytes(item.List[1].Bytes)
	gasLimit, err := crypto.DecodeUint(item.List[2])
	if err != nil {
		return Transaction{}, err
	}

	var to *types.Address
	if item.List[3].IsList {
		return Transaction{}, fmt.Errorf("%w: to must be a string", chainerr.ErrMalformedRLP)
	}
	if len(item.List[3].Bytes) > 0 {
		if len(item.List[3].Bytes) != types.AddressLength {
			return Transaction{}, fmt.Errorf("%w: to must be %d bytes", chainerr.ErrMalformedRLP, types.AddressLength)
		}
		addr := types.BytesToAddress(item.List[3].Bytes)
		to = &addr
	}

	if item.List[4].IsList {
		return Transaction{}, fmt.Errorf("%w: value must be a string", chainerr.ErrMalformedRLP)
	}
	value := types.WeiFromBytes(item.List[4].Bytes)

	if item.List[5].IsList {
		return Transaction{}, fmt.Errorf("%w: data must be a string", chainerr.ErrMalformedRLP)
	}
	data := item.List[5].Bytes

	v, err := crypto.DecodeUint(item.List[6])
	if err != nil {
		return Transaction{}, err
	}
	if item.List[7].IsList || item.List[8].IsList {
		return Transaction{}, fmt.Errorf("%w: r/s must be strings", chainerr.ErrMalformedRLP)
	}
	rInt := new(big.Int).SetBytes(item.List[7].Bytes)
	sInt := new(big.Int).SetBytes(item.List[8].Bytes)
	sig, err := types.NewSignature(v, rInt, sInt)
	if err != nil {
		return Transaction{}, err
	}

	tx := Transaction{
		To:       to,
		Value:    value,
		Nonce:    nonce,
		GasPrice: gasPrice,
		GasLimit: gasLimit,
		Data:     data,
		Sig:      sig,
	}

	from, _, err := tx.RecoverFrom()
	if err != nil {
		return Transaction{}, err
	}
	tx.From = from
	return tx, nil
}
