// Package chain implements spec.md §4.7: the content-addressed block
// store over header, body, receipt, and transaction-lookup rows.
package chain

import (
	"fmt"

	"github.com/chainkit/node/internal/chainerr"
	"github.com/chainkit/node/internal/crypto"
	"github.com/chainkit/node/internal/receipt"
	"github.com/chainkit/node/internal/txn"
	"github.com/chainkit/node/internal/types"
)

// Header carries spec.md §3's block header fields.
type Header struct {
	Number           uint64
	ParentHash       types.Hash
	TimestampMS      uint64
	Proposer         types.Address
	StateRoot        types.Hash
	TransactionsRoot types.Hash
	ReceiptsRoot     types.Hash
	LogsBloom        receipt.Bloom
	TransactionCount uint64
}

func (h Header) item() crypto.Item {
	return crypto.RLPList(
		crypto.RLPUint(h.Number),
		crypto.RLPString(h.ParentHash[:]),
		crypto.RLPUint(h.TimestampMS),
		crypto.RLPString(h.Proposer[:]),
		crypto.RLPString(h.StateRoot[:]),
		crypto.RLPString(h.TransactionsRoot[:]),
		crypto.RLPString(h.ReceiptsRoot[:]),
		crypto.RLPString(h.LogsBloom[:]),
		crypto.RLPUint(h.TransactionCount),
	)
}

// Encode RLP-encodes the header, the form persisted and hashed.
func (h Header) Encode() []byte { return crypto.RLPEncode(h.item()) }

// Hash is Keccak256 of the header's RLP encoding — the block hash.
func (h Header) Hash() types.Hash {
	return types.BytesToHash(crypto.Keccak256Hash(h.Encode()))
}

func decodeHeader(b []byte) (Header, error) {
	item, err := crypto.RLPDecode(b)
	if err != nil {
		return Header{}, err
	}
	if !item.IsList || len(item.List) != 9 {
		return Header{}, fmt.Errorf("%w: header must be a 9-element list", chainerr.ErrMalformedRLP)
	}
	f := item.List

	number, err := crypto.DecodeUint(f[0])
	if err != nil {
		return Header{}, err
	}
	if f[1].IsList || len(f[1].Bytes) != types.HashLength {
		return Header{}, fmt.Errorf("%w: parent_hash must be %d bytes", chainerr.ErrMalformedRLP, types.HashLength)
	}
	timestamp, err := crypto.DecodeUint(f[2])
	if err != nil {
		return Header{}, err
	}
	if f[3].IsList || len(f[3].Bytes) != types.AddressLength {
		return Header{}, fmt.Errorf("%w: proposer must be %d bytes", chainerr.ErrMalformedRLP, types.AddressLength)
	}
	if f[4].IsList || len(f[4].Bytes) != types.HashLength {
		return Header{}, fmt.Errorf("%w: state_root must be %d bytes", chainerr.ErrMalformedRLP, types.HashLength)
	}
	if f[5].IsList || len(f[5].Bytes) != types.HashLength {
		return Header{}, fmt.Errorf("%w: transactions_root must be %d bytes", chainerr.ErrMalformedRLP, types.HashLength)
	}
	if f[6].IsList || len(f[6].Bytes) != types.HashLength {
		return Header{}, fmt.Errorf("%w: receipts_root must be %d bytes", chainerr.ErrMalformedRLP, types.HashLength)
	}
	if f[7].IsList || len(f[7].Bytes) != receipt.BloomByteLength {
		return Header{}, fmt.Errorf("%w: logs_bloom must be %d bytes", chainerr.ErrMalformedRLP, receipt.BloomByteLength)
	}
	txCount, err := crypto.DecodeUint(f[8])
	if err != nil {
		return Header{}, err
	}

	var bloom receipt.Bloom
	copy(bloom[:], f[7].Bytes)

	return Header{
		Number:           number,
		ParentHash:       types.BytesToHash(f[1].Bytes),
		TimestampMS:      timestamp,
		Proposer:         types.BytesToAddress(f[3].Bytes),
		StateRoot:        types.BytesToHash(f[4].Bytes),
		TransactionsRoot: types.BytesToHash(f[5].Bytes),
		ReceiptsRoot:     types.BytesToHash(f[6].Bytes),
		LogsBloom:        bloom,
		TransactionCount: txCount,
	}, nil
}

// Body holds the ordered transaction list belonging to a header.
type Body struct {
	Transactions []txn.Transaction
}

func (b Body) Encode() []byte {
	items := make([]crypto.Item, len(b.Transactions))
	for i, tx := range b.Transactions {
		item, err := crypto.RLPDecode(tx.Encode())
		if err != nil {
			// tx.Encode always produces decodable RLP and RLPDecode does
			// not check signatures, so this branch is not reached.
			panic(fmt.Sprintf("chain: transaction re-decode failed: %v", err))
		}
		items[i] = item
	}
	return crypto.RLPEncode(crypto.RLPList(items...))
}

func decodeBody(b []byte) (Body, error) {
	item, err := crypto.RLPDecode(b)
	if err != nil {
		return Body{}, err
	}
	if !item.IsList {
		return Body{}, fmt.Errorf("%w: body must be a list", chainerr.ErrMalformedRLP)
	}
	txs := make([]txn.Transaction, len(item.List))
	for i, it := range item.List {
		tx, err := txn.Decode(crypto.RLPEncode(it))
		if err != nil {
			return Body{}, err
		}
		txs[i] = tx
	}
	return Body{Transactions: txs}, nil
}

// EncodedTransactions returns each transaction's own RLP encoding, the
// input transactions_root derivation uses (spec.md §3: a trie keyed by
// RLP(index) mapping to RLP(tx)).
func (b Body) EncodedTransactions() [][]byte {
	out := make([][]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		out[i] = tx.Encode()
	}
	return out
}

// Block is a header plus its body.
type Block struct {
	Header Header
	Body   Body
}

// Hash is the block's canonical hash: its header's hash.
func (b Block) Hash() types.Hash { return b.Header.Hash() }
