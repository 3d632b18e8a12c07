package producer

import (
	"errors"
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/chainkit/node/internal/chain"
	"github.com/chainkit/node/internal/chainerr"
	"github.com/chainkit/node/internal/config"
	"github.com/chainkit/node/internal/crypto"
	"github.com/chainkit/node/internal/executor"
	"github.com/chainkit/node/internal/kv/memkv"
	"github.com/chainkit/node/internal/logging"
	"github.com/chainkit/node/internal/metrics"
	"github.com/chainkit/node/internal/state"
	"github.com/chainkit/node/internal/txn"
	"github.com/chainkit/node/internal/txpool"
	"github.com/chainkit/node/internal/types"
)

var proposer = types.Address{0xFF}

func newHarness(t *testing.T, kvStore *memkv.Store, genesisAlloc map[string]string) (*Producer, *state.Repository, *state.Manager, *chain.Store, *txpool.Pool) {
	t.Helper()
	repo, err := state.OpenRepository(kvStore)
	if err != nil {
		t.Fatalf("OpenRepository: %v", err)
	}
	manager := state.NewManager(repo)
	store, err := chain.Open(kvStore)
	if err != nil {
		t.Fatalf("chain.Open: %v", err)
	}
	pool := txpool.New()

	genesis := config.Genesis{ChainID: 1, TimestampMS: 1_700_000_000_000, Alloc: genesisAlloc}
	chainParams := config.Chain{ChainID: 1, BlockTimeMS: 1000, MaxTransactionsPerBlock: 100, BlockGasLimit: 10_000_000, CommitteeSize: 1}

	p := New(store, manager, pool, executor.Transfer{}, genesis, chainParams, proposer, logging.New("error"))
	return p, repo, manager, store, pool
}

func bigFromDecimal(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("invalid decimal literal %q", s)
	}
	return v
}

func TestScenario1FreshChainSingleTransfer(t *testing.T) {
	kvStore, err := memkv.Open("")
	if err != nil {
		t.Fatalf("memkv.Open: %v", err)
	}

	a, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	b, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	alloc := map[string]string{
		a.Address.Hex(): "10000000000000000000",
		b.Address.Hex(): "0",
	}
	p, _, manager, store, pool := newHarness(t, kvStore, alloc)

	if err := p.Tick(); err != nil {
		t.Fatalf("genesis tick: %v", err)
	}

	value := types.NewWeiFromBigInt(bigFromDecimal(t, "5000000000000000000"))
	gasPrice := types.NewWeiFromUint64(1_000_000_000)
	tx, err := txn.Sign(a, 1, &b.Address, value, 0, gasPrice, txn.MinGasLimit, nil)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := pool.Add(tx, 0); err != nil {
		t.Fatalf("pool.Add: %v", err)
	}

	if err := p.Tick(); err != nil {
		t.Fatalf("block tick: %v", err)
	}

	balanceB, _, _ := manager.GetAccount(b.Address)
	if balanceB.Balance.String() != "5000000000000000000" {
		t.Errorf("balance(B) = %s, want 5000000000000000000", balanceB.Balance.String())
	}
	balanceA, _, _ := manager.GetAccount(a.Address)
	fee := gasPrice.Mul(types.NewWeiFromUint64(txn.MinGasLimit))
	wantABig := bigFromDecimal(t, "10000000000000000000")
	wantABig.Sub(wantABig, bigFromDecimal(t, "5000000000000000000"))
	wantABig.Sub(wantABig, fee.Big())
	if balanceA.Balance.String() != wantABig.String() {
		t.Errorf("balance(A) = %s, want %s", balanceA.Balance.String(), wantABig.String())
	}
	proposerAcc, _, _ := manager.GetAccount(proposer)
	if proposerAcc.Balance.String() != fee.String() {
		t.Errorf("balance(proposer) = %s, want %s", proposerAcc.Balance.String(), fee.String())
	}
	if balanceA.Nonce != 1 {
		t.Errorf("nonce(A) = %d, want 1", balanceA.Nonce)
	}

	latest, ok, err := store.FindLatest()
	if err != nil || !ok {
		t.Fatalf("FindLatest: ok=%v err=%v", ok, err)
	}
	if latest.Header.Number != 1 {
		t.Errorf("block.number = %d, want 1", latest.Header.Number)
	}

	r, ok, err := store.FindReceipt(tx.Hash())
	if err != nil || !ok {
		t.Fatalf("FindReceipt: ok=%v err=%v", ok, err)
	}
	if r.Status != 1 {
		t.Errorf("receipt status = %d, want 1", r.Status)
	}
}

func TestTickRecordsBlockMetricsButNotForGenesis(t *testing.T) {
	kvStore, err := memkv.Open("")
	if err != nil {
		t.Fatalf("memkv.Open: %v", err)
	}
	a, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	b, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	alloc := map[string]string{a.Address.Hex(): "1000000000000000000"}
	p, _, _, _, pool := newHarness(t, kvStore, alloc)

	m := metrics.New(prometheus.NewRegistry())
	p.SetMetrics(m)

	if err := p.Tick(); err != nil {
		t.Fatalf("genesis tick: %v", err)
	}
	var blocksAfterGenesis dto.Metric
	if err := m.BlocksProduced.Write(&blocksAfterGenesis); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if blocksAfterGenesis.GetCounter().GetValue() != 0 {
		t.Errorf("BlocksProduced after genesis tick = %v, want 0", blocksAfterGenesis.GetCounter().GetValue())
	}

	tx, err := txn.Sign(a, 1, &b.Address, types.NewWeiFromUint64(1), 0, types.NewWeiFromUint64(1), txn.MinGasLimit, nil)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := pool.Add(tx, 0); err != nil {
		t.Fatalf("pool.Add: %v", err)
	}
	if err := p.Tick(); err != nil {
		t.Fatalf("block tick: %v", err)
	}

	var blocksAfterBlock, txsIncluded dto.Metric
	if err := m.BlocksProduced.Write(&blocksAfterBlock); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := m.TransactionsIncluded.Write(&txsIncluded); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if blocksAfterBlock.GetCounter().GetValue() != 1 {
		t.Errorf("BlocksProduced after transfer tick = %v, want 1", blocksAfterBlock.GetCounter().GetValue())
	}
	if txsIncluded.GetCounter().GetValue() != 1 {
		t.Errorf("TransactionsIncluded = %v, want 1", txsIncluded.GetCounter().GetValue())
	}
}

func TestApplyOneAndCreditProposerRewardRequireAnOpenBlock(t *testing.T) {
	kvStore, err := memkv.Open("")
	if err != nil {
		t.Fatalf("memkv.Open: %v", err)
	}
	p, _, manager, _, _ := newHarness(t, kvStore, nil)

	manager.RollbackBlock() // ensure the journal has no open frame

	tx := txn.Transaction{From: types.Address{0x01}}
	if _, _, _, _, err := p.applyOne(tx); !errors.Is(err, chainerr.ErrNoParentBlock) {
		t.Fatalf("applyOne without StartBlock: error = %v, want no-parent-block", err)
	}
	if err := p.creditProposerReward(); !errors.Is(err, chainerr.ErrNoParentBlock) {
		t.Fatalf("creditProposerReward without StartBlock: error = %v, want no-parent-block", err)
	}
}

func TestScenario2NonceGapPromotion(t *testing.T) {
	kvStore, err := memkv.Open("")
	if err != nil {
		t.Fatalf("memkv.Open: %v", err)
	}
	a, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	r1, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	r2, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	alloc := map[string]string{a.Address.Hex(): "1000000000000000000"}
	p, _, _, store, pool := newHarness(t, kvStore, alloc)
	if err := p.Tick(); err != nil {
		t.Fatalf("genesis tick: %v", err)
	}

	gasPrice := types.NewWeiFromUint64(1)
	txNonce1, err := txn.Sign(a, 1, &r1.Address, types.NewWeiFromUint64(1), 1, gasPrice, txn.MinGasLimit, nil)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	txNonce0, err := txn.Sign(a, 1, &r2.Address, types.NewWeiFromUint64(1), 0, gasPrice, txn.MinGasLimit, nil)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if err := pool.Add(txNonce1, 0); err != nil {
		t.Fatalf("pool.Add nonce1: %v", err)
	}
	if err := pool.Add(txNonce0, 0); err != nil {
		t.Fatalf("pool.Add nonce0: %v", err)
	}
	if pool.PendingCount() != 2 {
		t.Fatalf("pending count = %d, want 2 after promotion", pool.PendingCount())
	}

	if err := p.Tick(); err != nil {
		t.Fatalf("block tick: %v", err)
	}

	latest, ok, err := store.FindLatest()
	if err != nil || !ok {
		t.Fatalf("FindLatest: ok=%v err=%v", ok, err)
	}
	if len(latest.Body.Transactions) != 2 {
		t.Fatalf("got %d transactions, want 2", len(latest.Body.Transactions))
	}
	if latest.Body.Transactions[0].Hash() != txNonce0.Hash() {
		t.Errorf("tx_index 0 = %s, want nonce-0 tx", latest.Body.Transactions[0].Hash())
	}
	if latest.Body.Transactions[1].Hash() != txNonce1.Hash() {
		t.Errorf("tx_index 1 = %s, want nonce-1 tx", latest.Body.Transactions[1].Hash())
	}
}

func TestScenario5DuplicateSubmission(t *testing.T) {
	kvStore, err := memkv.Open("")
	if err != nil {
		t.Fatalf("memkv.Open: %v", err)
	}
	a, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	b, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	alloc := map[string]string{a.Address.Hex(): "1000000000000000000"}
	_, _, _, _, pool := newHarness(t, kvStore, alloc)

	tx, err := txn.Sign(a, 1, &b.Address, types.NewWeiFromUint64(1), 0, types.NewWeiFromUint64(1), txn.MinGasLimit, nil)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := pool.Add(tx, 0); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := pool.Add(tx, 0); !errors.Is(err, chainerr.ErrDuplicateHash) {
		t.Fatalf("second add error = %v, want duplicate-hash", err)
	}
	if pool.PendingCount() != 1 {
		t.Errorf("pending count = %d, want 1", pool.PendingCount())
	}
}

func TestRestartConsistency(t *testing.T) {
	kvStore, err := memkv.Open("")
	if err != nil {
		t.Fatalf("memkv.Open: %v", err)
	}
	a, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	b, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	alloc := map[string]string{a.Address.Hex(): "1000000000000000000000"}

	p, _, _, _, pool := newHarness(t, kvStore, alloc)
	if err := p.Tick(); err != nil {
		t.Fatalf("genesis tick: %v", err)
	}

	for i := uint64(0); i < 5; i++ {
		tx, err := txn.Sign(a, 1, &b.Address, types.NewWeiFromUint64(1), i, types.NewWeiFromUint64(1), txn.MinGasLimit, nil)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		if err := pool.Add(tx, i); err != nil {
			t.Fatalf("pool.Add: %v", err)
		}
		if err := p.Tick(); err != nil {
			t.Fatalf("block tick %d: %v", i, err)
		}
	}

	// Reopen a fresh repository/chain store over the same backing kv.Store,
	// simulating a process restart against already-persisted data.
	repo2, err := state.OpenRepository(kvStore)
	if err != nil {
		t.Fatalf("reopen OpenRepository: %v", err)
	}
	store2, err := chain.Open(kvStore)
	if err != nil {
		t.Fatalf("reopen chain.Open: %v", err)
	}

	height, ok, err := store2.ChainHeight()
	if err != nil || !ok || height != 5 {
		t.Fatalf("ChainHeight = %d, ok=%v, err=%v, want 5", height, ok, err)
	}

	latest, ok, err := store2.FindLatest()
	if err != nil || !ok {
		t.Fatalf("FindLatest: ok=%v err=%v", ok, err)
	}
	if err := repo2.SetStateRoot(latest.Header.StateRoot); err != nil {
		t.Fatalf("SetStateRoot: %v", err)
	}

	balanceB, ok, err := repo2.GetAccount(b.Address)
	if err != nil || !ok {
		t.Fatalf("GetAccount(B): ok=%v err=%v", ok, err)
	}
	if balanceB.Balance.String() != "5" {
		t.Errorf("balance(B) after restart = %s, want 5", balanceB.Balance.String())
	}
}
