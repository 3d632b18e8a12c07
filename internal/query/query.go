// Package query implements spec.md §6's query surface: the seam the
// out-of-scope HTTP/RPC layer binds to. Every function here is a pure
// read (or, for SignTx/SubmitTx, a delegation to txservice.Service) —
// nothing here ever drives block production directly.
package query

import (
	"context"

	"github.com/chainkit/node/internal/chain"
	"github.com/chainkit/node/internal/chainerr"
	"github.com/chainkit/node/internal/crypto"
	"github.com/chainkit/node/internal/receipt"
	"github.com/chainkit/node/internal/state"
	"github.com/chainkit/node/internal/txn"
	"github.com/chainkit/node/internal/txservice"
	"github.com/chainkit/node/internal/types"
)

// Engine answers every read (and transaction-admission) query spec.md
// §6 enumerates, wrapping the repository, chain store, and transaction
// service without holding any of its own mutable state.
type Engine struct {
	repo    *state.Repository
	store   *chain.Store
	service *txservice.Service
}

// New builds an Engine over the given components.
func New(repo *state.Repository, store *chain.Store, service *txservice.Service) *Engine {
	return &Engine{repo: repo, store: store, service: service}
}

// GetAccount returns the full account record for addr, or (zero, false)
// if it has never been materialized.
func (e *Engine) GetAccount(addr types.Address) (state.Account, bool, error) {
	return e.repo.GetAccount(addr)
}

// GetBalance returns addr's balance, zero for an unmaterialized account.
func (e *Engine) GetBalance(addr types.Address) (types.Wei, error) {
	acc, _, err := e.repo.GetAccount(addr)
	if err != nil {
		return types.Wei{}, err
	}
	return acc.Balance, nil
}

// GetNonce returns addr's on-chain nonce, zero for an unmaterialized
// account.
func (e *Engine) GetNonce(addr types.Address) (uint64, error) {
	acc, _, err := e.repo.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return acc.Nonce, nil
}

// SignTx builds and signs a transaction on priv's behalf.
func (e *Engine) SignTx(priv *crypto.Keypair, to *types.Address, value, gasPrice types.Wei, gasLimit uint64, data []byte) (txn.Transaction, error) {
	return e.service.Sign(priv, to, value, gasPrice, gasLimit, data)
}

// SubmitTx runs tx through the admission pipeline and, on success,
// queues it for inclusion.
func (e *Engine) SubmitTx(ctx context.Context, tx txn.Transaction) error {
	return e.service.Submit(ctx, tx)
}

// GetTx locates a transaction by hash, returning its containing block
// location.
func (e *Engine) GetTx(hash types.Hash) (chain.TxLookup, bool, error) {
	return e.store.FindTxLookup(hash)
}

// GetReceipt returns the receipt for a transaction hash.
func (e *Engine) GetReceipt(hash types.Hash) (receipt.Receipt, bool, error) {
	return e.store.FindReceipt(hash)
}

// GetLogs returns every log in [fromBlock, toBlock] matching addresses (any
// of them, or every address if empty) and topics (every given topic must
// appear somewhere in the log's topic list; no constraint if empty). Each
// block's logs_bloom is tested against the whole filter before any receipt
// for that block is read, so a block that provably cannot match is
// skipped entirely.
func (e *Engine) GetLogs(fromBlock, toBlock uint64, addresses []types.Address, topics []types.Hash) ([]receipt.Log, error) {
	var out []receipt.Log
	for num := fromBlock; num <= toBlock; num++ {
		block, ok, err := e.store.FindByNumber(num)
		if err != nil {
			return nil, err
		}
		if !ok || !blockMayContain(block.Header.LogsBloom, addresses, topics) {
			continue
		}

		for _, tx := range block.Body.Transactions {
			r, ok, err := e.store.FindReceipt(tx.Hash())
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			for _, l := range r.Logs {
				if logMatches(l, addresses, topics) {
					out = append(out, l)
				}
			}
		}
	}
	return out, nil
}

// blockMayContain reports whether a block's bloom may hold a log matching
// the filter: at least one of addresses and every topic in topics. An empty
// addresses or topics list imposes no constraint on that dimension.
func blockMayContain(bloom receipt.Bloom, addresses []types.Address, topics []types.Hash) bool {
	if len(addresses) > 0 {
		matched := false
		for _, addr := range addresses {
			if bloom.Test(addr[:]) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, topic := range topics {
		if !bloom.Test(topic[:]) {
			return false
		}
	}
	return true
}

// logMatches reports whether l satisfies the address and topic filters:
// l.Address must be in addresses (or addresses is empty), and every topic
// in topics must appear in l.Topics (or topics is empty).
func logMatches(l receipt.Log, addresses []types.Address, topics []types.Hash) bool {
	if len(addresses) > 0 {
		found := false
		for _, addr := range addresses {
			if l.Address == addr {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, topic := range topics {
		found := false
		for _, lt := range l.Topics {
			if lt == topic {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// GetBlockByNumber, GetBlockByHash, and GetBlockLatest expose the chain
// store's lookups directly.
func (e *Engine) GetBlockByNumber(num uint64) (chain.Block, bool, error) {
	return e.store.FindByNumber(num)
}

func (e *Engine) GetBlockByHash(hash types.Hash) (chain.Block, bool, error) {
	return e.store.FindByHash(hash)
}

func (e *Engine) GetBlockLatest() (chain.Block, bool, error) {
	return e.store.FindLatest()
}

// ChainHeight returns the current chain tip's block number.
func (e *Engine) ChainHeight() (uint64, bool, error) { return e.store.ChainHeight() }

// GetContractCode and CallContract are the seam the out-of-scope
// contract VM binds to; the seam exists here so the query surface's
// shape is complete, but the opcodes it would need are not part of this
// engine.
func (e *Engine) GetContractCode(types.Address) ([]byte, error) {
	return nil, chainerr.ErrNotImplemented
}

func (e *Engine) CallContract(types.Address, []byte) ([]byte, error) {
	return nil, chainerr.ErrNotImplemented
}
