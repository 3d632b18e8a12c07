// Package executor defines the seam the block producer applies each
// transaction through. The contract-VM path spec.md treats as an
// external collaborator; this package ships only the pure value-transfer
// executor spec.md §4.8 step 5 describes.
package executor

import (
	"fmt"

	"github.com/chainkit/node/internal/chainerr"
	"github.com/chainkit/node/internal/receipt"
	"github.com/chainkit/node/internal/state"
	"github.com/chainkit/node/internal/txn"
	"github.com/chainkit/node/internal/types"
)

// Result is what a successful Apply reports back to the producer: the gas
// actually consumed and any logs emitted. On error Apply returns a zero
// Result; the caller charges a failed transaction's gas itself.
type Result struct {
	GasUsed         uint64
	Logs            []receipt.Log
	ContractAddress *types.Address
}

// Executor applies one transaction's effects to the journaled state
// manager, assuming the caller has already pushed a checkpoint. Apply
// itself never checkpoints, commits, or reverts — the producer owns that
// around each call so it can react to Apply's error uniformly.
type Executor interface {
	Apply(state *state.Manager, tx txn.Transaction, proposer types.Address) (Result, error)
}

// Transfer is the shipped default Executor: value transfer only. A
// transaction with a non-nil To moves value from sender to recipient; a
// nil To (contract creation) is rejected, since deploying code is the
// out-of-scope VM's job.
type Transfer struct{}

// Apply implements Executor. Sender, recipient, and proposer may name the
// same address in any combination (e.g. a self-transfer, or a proposer
// paying itself); loading every distinct address once into a local set
// before mutating it avoids the lost-update aliasing bug that falls out
// of reading the same address twice and writing back stale copies.
func (Transfer) Apply(m *state.Manager, tx txn.Transaction, proposer types.Address) (Result, error) {
	if tx.To == nil {
		return Result{}, fmt.Errorf("%w: contract creation requires a VM executor", chainerr.ErrNotImplemented)
	}

	accounts := make(map[types.Address]state.Account)
	load := func(addr types.Address) error {
		if _, seen := accounts[addr]; seen {
			return nil
		}
		acc, ok, err := m.GetAccount(addr)
		if err != nil {
			return err
		}
		if !ok {
			acc = state.NewAccount()
		}
		accounts[addr] = acc
		return nil
	}
	for _, addr := range []types.Address{tx.From, *tx.To, proposer} {
		if err := load(addr); err != nil {
			return Result{}, err
		}
	}

	gasUsed := uint64(txn.MinGasLimit)
	fee := tx.GasPrice.Mul(types.NewWeiFromUint64(gasUsed))
	total := tx.Value.Add(fee)

	sender := accounts[tx.From]
	if !sender.Balance.GTE(total) {
		return Result{}, fmt.Errorf("%w: sender balance insufficient at execution time", chainerr.ErrInsufficientFunds)
	}
	sender.Balance = sender.Balance.Sub(total)
	sender.Nonce++
	accounts[tx.From] = sender

	recipient := accounts[*tx.To]
	recipient.Balance = recipient.Balance.Add(tx.Value)
	accounts[*tx.To] = recipient

	proposerAcc := accounts[proposer]
	proposerAcc.Balance = proposerAcc.Balance.Add(fee)
	accounts[proposer] = proposerAcc

	for addr, acc := range accounts {
		m.SetAccount(addr, acc)
	}

	return Result{GasUsed: gasUsed}, nil
}
