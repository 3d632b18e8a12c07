// Package receipt implements spec.md §3's Receipt record plus the log and
// bloom-filter machinery the GLOSSARY describes.
package receipt

import (
	"fmt"

	"github.com/chainkit/node/internal/chainerr"
	"github.com/chainkit/node/internal/crypto"
	"github.com/chainkit/node/internal/types"
)

// Log is a single event emitted during execution: an address, an ordered
// list of indexed topics, and opaque data.
type Log struct {
	Address types.Address
	Topics  []types.Hash
	Data    []byte
}

func (l Log) encode() crypto.Item {
	topics := make([]crypto.Item, len(l.Topics))
	for i, t := range l.Topics {
		topics[i] = crypto.RLPString(t[:])
	}
	return crypto.RLPList(
		crypto.RLPString(l.Address[:]),
		crypto.RLPList(topics...),
		crypto.RLPString(l.Data),
	)
}

func decodeLog(item crypto.Item) (Log, error) {
	if !item.IsList || len(item.List) != 3 {
		return Log{}, fmt.Errorf("%w: log must be a 3-element list", chainerr.ErrMalformedRLP)
	}
	if item.List[0].IsList || len(item.List[0].Bytes) != types.AddressLength {
		return Log{}, fmt.Errorf("%w: log address must be %d bytes", chainerr.ErrMalformedRLP, types.AddressLength)
	}
	if !item.List[1].IsList {
		return Log{}, fmt.Errorf("%w: log topics must be a list", chainerr.ErrMalformedRLP)
	}
	topics := make([]types.Hash, len(item.List[1].List))
	for i, t := range item.List[1].List {
		if t.IsList || len(t.Bytes) != types.HashLength {
			return Log{}, fmt.Errorf("%w: log topic must be %d bytes", chainerr.ErrMalformedRLP, types.HashLength)
		}
		topics[i] = types.BytesToHash(t.Bytes)
	}
	if item.List[2].IsList {
		return Log{}, fmt.Errorf("%w: log data must be a string", chainerr.ErrMalformedRLP)
	}
	return Log{
		Address: types.BytesToAddress(item.List[0].Bytes),
		Topics:  topics,
		Data:    item.List[2].Bytes,
	}, nil
}

// Receipt is the post-execution record of one transaction, spec.md §3.
// ContractAddress is set only on a successful contract creation.
type Receipt struct {
	TxHash            types.Hash
	TxIndex           uint64
	BlockHash         types.Hash
	BlockNumber       uint64
	From              types.Address
	To                *types.Address
	Status            uint8
	GasUsed           uint64
	CumulativeGasUsed uint64
	ContractAddress   *types.Address
	Logs              []Log
	LogsBloom         Bloom
}

// ContractAddress derives the address a contract-creation transaction
// from sender at nonceAtSend would deploy to: the last 20 bytes of
// Keccak256(RLP([sender, nonce])).
func ContractAddress(sender types.Address, nonceAtSend uint64) types.Address {
	item := crypto.RLPList(crypto.RLPString(sender[:]), crypto.RLPUint(nonceAtSend))
	return types.BytesToAddress(crypto.Keccak256Hash(crypto.RLPEncode(item)))
}

func addressOrEmpty(a *types.Address) crypto.Item {
	if a == nil {
		return crypto.RLPString(nil)
	}
	return crypto.RLPString(a[:])
}

// Encode RLP-encodes the receipt, the form persisted under the "r" prefix
// and hashed as a receipts-trie leaf.
func (r Receipt) Encode() []byte {
	logs := make([]crypto.Item, len(r.Logs))
	for i, l := range r.Logs {
		logs[i] = l.encode()
	}
	item := crypto.RLPList(
		crypto.RLPString(r.TxHash[:]),
		crypto.RLPUint(r.TxIndex),
		crypto.RLPString(r.BlockHash[:]),
		crypto.RLPUint(r.BlockNumber),
		crypto.RLPString(r.From[:]),
		addressOrEmpty(r.To),
		crypto.RLPUint(uint64(r.Status)),
		crypto.RLPUint(r.GasUsed),
		crypto.RLPUint(r.CumulativeGasUsed),
		addressOrEmpty(r.ContractAddress),
		crypto.RLPList(logs...),
		crypto.RLPString(r.LogsBloom[:]),
	)
	return crypto.RLPEncode(item)
}

// Decode parses bytes produced by Encode.
func Decode(b []byte) (Receipt, error) {
	item, err := crypto.RLPDecode(b)
	if err != nil {
		return Receipt{}, err
	}
	if !item.IsList || len(item.List) != 12 {
		return Receipt{}, fmt.Errorf("%w: receipt must be a 12-element list", chainerr.ErrMalformedRLP)
	}
	f := item.List

	if f[0].IsList || len(f[0].Bytes) != types.HashLength {
		return Receipt{}, fmt.Errorf("%w: tx_hash must be %d bytes", chainerr.ErrMalformedRLP, types.HashLength)
	}
	txIndex, err := crypto.DecodeUint(f[1])
	if err != nil {
		return Receipt{}, err
	}
	if f[2].IsList || len(f[2].Bytes) != types.HashLength {
		return Receipt{}, fmt.Errorf("%w: block_hash must be %d bytes", chainerr.ErrMalformedRLP, types.HashLength)
	}
	blockNumber, err := crypto.DecodeUint(f[3])
	if err != nil {
		return Receipt{}, err
	}
	if f[4].IsList || len(f[4].Bytes) != types.AddressLength {
		return Receipt{}, fmt.Errorf("%w: from must be %d bytes", chainerr.ErrMalformedRLP, types.AddressLength)
	}

	var to *types.Address
	if f[5].IsList {
		return Receipt{}, fmt.Errorf("%w: to must be a string", chainerr.ErrMalformedRLP)
	}
	if len(f[5].Bytes) > 0 {
		if len(f[5].Bytes) != types.AddressLength {
			return Receipt{}, fmt.Errorf("%w: to must be %d bytes", chainerr.ErrMalformedRLP, types.AddressLength)
		}
		addr := types.BytesToAddress(f[5].Bytes)
		to = &addr
	}

	status, err := crypto.DecodeUint(f[6])
	if err != nil {
		return Receipt{}, err
	}
	if status > 1 {
		return Receipt{}, fmt.Errorf("%w: status must be 0 or 1", chainerr.ErrMalformedRLP)
	}
	gasUsed, err := crypto.DecodeUint(f[7])
	if err != nil {
		return Receipt{}, err
	}
	cumulative, err := crypto.DecodeUint(f[8])
	if err != nil {
		return Receipt{}, err
	}

	var contractAddr *types.Address
	if f[9].IsList {
		return Receipt{}, fmt.Errorf("%w: contract_address must be a string", chainerr.ErrMalformedRLP)
	}
	if len(f[9].Bytes) > 0 {
		if len(f[9].Bytes) != types.AddressLength {
			return Receipt{}, fmt.Errorf("%w: contract_address must be %d bytes", chainerr.ErrMalformedRLP, types.AddressLength)
		}
		addr := types.BytesToAddress(f[9].Bytes)
		contractAddr = &addr
	}

	if !f[10].IsList {
		return Receipt{}, fmt.Errorf("%w: logs must be a list", chainerr.ErrMalformedRLP)
	}
	logs := make([]Log, len(f[10].List))
	for i, li := range f[10].List {
		l, err := decodeLog(li)
		if err != nil {
			return Receipt{}, err
		}
		logs[i] = l
	}

	if f[11].IsList || len(f[11].Bytes) != BloomByteLength {
		return Receipt{}, fmt.Errorf("%w: logs_bloom must be %d bytes", chainerr.ErrMalformedRLP, BloomByteLength)
	}
	var bloom Bloom
	copy(bloom[:], f[11].Bytes)

	return Receipt{
		TxHash:            types.BytesToHash(f[0].Bytes),
		TxIndex:           txIndex,
		BlockHash:         types.BytesToHash(f[2].Bytes),
		BlockNumber:       blockNumber,
		From:              types.BytesToAddress(f[4].Bytes),
		To:                to,
		Status:            uint8(status),
		GasUsed:           gasUsed,
		CumulativeGasUsed: cumulative,
		ContractAddress:   contractAddr,
		Logs:              logs,
		LogsBloom:         bloom,
	}, nil
}
