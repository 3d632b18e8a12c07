package executor

import (
	"errors"
	"testing"

	"github.com/chainkit/node/internal/chainerr"
	"github.com/chainkit/node/internal/crypto"
	"github.com/chainkit/node/internal/kv/memkv"
	"github.com/chainkit/node/internal/state"
	"github.com/chainkit/node/internal/txn"
	"github.com/chainkit/node/internal/types"
)

func newManager(t *testing.T) (*state.Manager, *state.Repository) {
	t.Helper()
	store, err := memkv.Open("")
	if err != nil {
		t.Fatalf("memkv.Open: %v", err)
	}
	repo, err := state.OpenRepository(store)
	if err != nil {
		t.Fatalf("OpenRepository: %v", err)
	}
	return state.NewManager(repo), repo
}

func fund(t *testing.T, m *state.Manager, addr types.Address, balance uint64) {
	t.Helper()
	m.StartBlock()
	m.SetAccount(addr, state.Account{Balance: types.NewWeiFromUint64(balance)})
	if err := m.CommitBlock(); err != nil {
		t.Fatalf("CommitBlock: %v", err)
	}
}

func mustSignTransfer(t *testing.T, to types.Address, value, gasPrice uint64, nonce uint64) (txn.Transaction, types.Address) {
	t.Helper()
	priv, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	tx, err := txn.Sign(priv, 1, &to, types.NewWeiFromUint64(value), nonce, types.NewWeiFromUint64(gasPrice), txn.MinGasLimit, nil)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return tx, priv.Address
}

func TestTransferMovesValueAndChargesGas(t *testing.T) {
	m, _ := newManager(t)
	recipient := types.Address{0x02}
	proposer := types.Address{0x03}

	tx, sender := mustSignTransfer(t, recipient, 5000, 10, 0)
	fund(t, m, sender, 1_000_000)

	m.StartBlock()
	m.Checkpoint()
	result, err := (Transfer{}).Apply(m, tx, proposer)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	m.CommitCheckpoint()
	if err := m.CommitBlock(); err != nil {
		t.Fatalf("CommitBlock: %v", err)
	}

	if result.GasUsed != txn.MinGasLimit {
		t.Errorf("gas used = %d, want %d", result.GasUsed, txn.MinGasLimit)
	}

	senderAcc, _, _ := m.GetAccount(sender)
	recipientAcc, _, _ := m.GetAccount(recipient)
	proposerAcc, _, _ := m.GetAccount(proposer)

	wantSender := 1_000_000 - 5000 - txn.MinGasLimit*10
	if senderAcc.Balance.String() != types.NewWeiFromUint64(uint64(wantSender)).String() {
		t.Errorf("sender balance = %s, want %d", senderAcc.Balance.String(), wantSender)
	}
	if recipientAcc.Balance.String() != "5000" {
		t.Errorf("recipient balance = %s, want 5000", recipientAcc.Balance.String())
	}
	if proposerAcc.Balance.String() != types.NewWeiFromUint64(txn.MinGasLimit*10).String() {
		t.Errorf("proposer balance = %s, want %d", proposerAcc.Balance.String(), txn.MinGasLimit*10)
	}
	if senderAcc.Nonce != 1 {
		t.Errorf("sender nonce = %d, want 1", senderAcc.Nonce)
	}
}

func TestTransferInsufficientFundsLeavesStateUntouched(t *testing.T) {
	m, _ := newManager(t)
	recipient := types.Address{0x02}
	proposer := types.Address{0x03}

	tx, sender := mustSignTransfer(t, recipient, 100, 1, 0)
	fund(t, m, sender, 50)

	m.StartBlock()
	m.Checkpoint()
	_, err := (Transfer{}).Apply(m, tx, proposer)
	if !errors.Is(err, chainerr.ErrInsufficientFunds) {
		t.Fatalf("Apply error = %v, want insufficient-funds", err)
	}
	if revertErr := m.RevertCheckpoint(); revertErr != nil {
		t.Fatalf("RevertCheckpoint: %v", revertErr)
	}
	if err := m.CommitBlock(); err != nil {
		t.Fatalf("CommitBlock: %v", err)
	}

	senderAcc, _, _ := m.GetAccount(sender)
	if senderAcc.Balance.String() != "50" {
		t.Errorf("sender balance = %s, want unchanged 50", senderAcc.Balance.String())
	}
}

func TestTransferSelfTransferOnlyChargesFee(t *testing.T) {
	m, _ := newManager(t)
	proposer := types.Address{0x03}

	priv, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	self := priv.Address
	tx, err := txn.Sign(priv, 1, &self, types.NewWeiFromUint64(1000), 0, types.NewWeiFromUint64(2), txn.MinGasLimit, nil)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	fund(t, m, self, 100_000)

	m.StartBlock()
	m.Checkpoint()
	if _, err := (Transfer{}).Apply(m, tx, proposer); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	m.CommitCheckpoint()
	if err := m.CommitBlock(); err != nil {
		t.Fatalf("CommitBlock: %v", err)
	}

	acc, _, _ := m.GetAccount(self)
	want := 100_000 - int(txn.MinGasLimit)*2
	if acc.Balance.String() != types.NewWeiFromUint64(uint64(want)).String() {
		t.Errorf("self balance = %s, want %d", acc.Balance.String(), want)
	}
}

func TestTransferRejectsContractCreation(t *testing.T) {
	m, _ := newManager(t)
	proposer := types.Address{0x03}

	priv, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	tx, err := txn.Sign(priv, 1, nil, types.ZeroWei, 0, types.NewWeiFromUint64(1), txn.MinGasLimit, []byte{0x60})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	m.StartBlock()
	m.Checkpoint()
	_, err = (Transfer{}).Apply(m, tx, proposer)
	if !errors.Is(err, chainerr.ErrNotImplemented) {
		t.Fatalf("Apply error = %v, want not-implemented", err)
	}
}
