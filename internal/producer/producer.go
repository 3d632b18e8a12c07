// Package producer implements spec.md §4.8's slot-driven block producer:
// a timer-driven task that builds at most one block per tick, executing
// every pending transaction through a pluggable executor.Executor and
// persisting the result as a single atomic chain-store batch.
package producer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chainkit/node/internal/chain"
	"github.com/chainkit/node/internal/config"
	"github.com/chainkit/node/internal/executor"
	"github.com/chainkit/node/internal/metrics"
	"github.com/chainkit/node/internal/receipt"
	"github.com/chainkit/node/internal/state"
	"github.com/chainkit/node/internal/trie"
	"github.com/chainkit/node/internal/txn"
	"github.com/chainkit/node/internal/txpool"
	"github.com/chainkit/node/internal/types"
)

// Producer owns the single mutable path that advances the chain: the
// state journal between StartBlock and CommitBlock/RollbackBlock is
// exclusive to it, per spec.md §5.
type Producer struct {
	store    *chain.Store
	manager  *state.Manager
	pool     *txpool.Pool
	exec     executor.Executor
	genesis  config.Genesis
	params   config.Chain
	proposer types.Address
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// New builds a Producer. proposer is the address credited with
// transaction fees and the per-block reward; in the core spec there is
// no committee election, so a single fixed proposer is supplied by the
// caller.
func New(store *chain.Store, manager *state.Manager, pool *txpool.Pool, exec executor.Executor, genesis config.Genesis, chainParams config.Chain, proposer types.Address, log zerolog.Logger) *Producer {
	return &Producer{
		store:    store,
		manager:  manager,
		pool:     pool,
		exec:     exec,
		genesis:  genesis,
		params:   chainParams,
		proposer: proposer,
		log:      log,
	}
}

// SetMetrics attaches m so every produced block and its transactions are
// counted. Tick is a no-op on metrics until this is called.
func (p *Producer) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// Run starts the slot clock: a ticker goroutine posts to a capacity-1
// mailbox on every BLOCK_TIME_MS tick, non-blocking, so a tick arriving
// while the previous one is still being processed is simply dropped —
// spec.md §4.8 step 1's non-reentrant producer lock, without a mutex.
// Run blocks until ctx is cancelled.
func (p *Producer) Run(ctx context.Context) {
	interval := time.Duration(p.params.BlockTimeMS) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	mailbox := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case mailbox <- struct{}{}:
				default:
					p.log.Warn().Msg("slot tick dropped: previous attempt still running")
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-mailbox:
			if err := p.Tick(); err != nil {
				p.log.Error().Err(err).Msg("block attempt failed")
			}
		}
	}
}

// Tick runs one block-production attempt and records its outcome to
// metrics before returning.
func (p *Producer) Tick() error {
	included, err := p.tick()
	if p.metrics != nil {
		if err != nil {
			p.metrics.BlockProductionErrors.Inc()
		} else if included >= 0 {
			p.metrics.BlocksProduced.Inc()
			p.metrics.TransactionsIncluded.Add(float64(included))
		}
		p.metrics.PoolPending.Set(float64(p.pool.PendingCount()))
		p.metrics.PoolQueued.Set(float64(p.pool.QueuedCount()))
	}
	return err
}

// tick runs one block-production attempt: spec.md §4.8 steps 2-13. It
// returns the number of transactions included, or -1 when the attempt
// only materialized the genesis block.
func (p *Producer) tick() (int, error) {
	attemptID := uuid.New()
	log := p.log.With().Str("attempt_id", attemptID.String()).Logger()

	latest, ok, err := p.store.FindLatest()
	if err != nil {
		return 0, fmt.Errorf("producer: reading latest block: %w", err)
	}
	if !ok {
		if err := p.buildGenesis(log); err != nil {
			return 0, err
		}
		return -1, nil
	}

	p.manager.StartBlock()

	maxTxs := int(p.params.MaxTransactionsPerBlock)
	candidates := p.pool.TakeForBlock(maxTxs, p.params.BlockGasLimit)

	included := make([]txn.Transaction, 0, len(candidates))
	receipts := make([]receipt.Receipt, 0, len(candidates))
	var cumulativeGas uint64

	for idx, tx := range candidates {
		status, gasUsed, logs, contractAddr, err := p.applyOne(tx)
		if err != nil {
			p.manager.RollbackBlock()
			return 0, fmt.Errorf("producer: applying tx %s: %w", tx.Hash(), err)
		}
		cumulativeGas += gasUsed
		included = append(included, tx)
		receipts = append(receipts, receipt.Receipt{
			TxHash:            tx.Hash(),
			TxIndex:           uint64(idx),
			From:              tx.From,
			To:                tx.To,
			Status:            status,
			GasUsed:           gasUsed,
			CumulativeGasUsed: cumulativeGas,
			ContractAddress:   contractAddr,
			Logs:              logs,
			LogsBloom:         logsBloomFor(logs),
		})
	}

	if err := p.creditProposerReward(); err != nil {
		p.manager.RollbackBlock()
		return 0, fmt.Errorf("producer: crediting proposer reward: %w", err)
	}

	txRoot := trie.DeriveRoot(encodedTransactions(included))
	receiptRoot := trie.DeriveRoot(encodedReceipts(receipts))
	var blockBloom receipt.Bloom
	for _, r := range receipts {
		blockBloom.OrWith(r.LogsBloom)
	}

	stateRoot, err := p.manager.CurrentRoot()
	if err != nil {
		p.manager.RollbackBlock()
		return 0, fmt.Errorf("producer: computing state root: %w", err)
	}

	header := chain.Header{
		Number:           latest.Header.Number + 1,
		ParentHash:       latest.Hash(),
		TimestampMS:      uint64(time.Now().UnixMilli()),
		Proposer:         p.proposer,
		StateRoot:        stateRoot,
		TransactionsRoot: txRoot,
		ReceiptsRoot:     receiptRoot,
		LogsBloom:        blockBloom,
		TransactionCount: uint64(len(included)),
	}
	block := chain.Block{Header: header, Body: chain.Body{Transactions: included}}
	blockHash := block.Hash()
	for i := range receipts {
		receipts[i].BlockHash = blockHash
		receipts[i].BlockNumber = header.Number
	}

	if err := p.store.SaveBlock(block, receipts); err != nil {
		p.manager.RollbackBlock()
		return 0, fmt.Errorf("producer: saving block: %w", err)
	}

	// The chain-store batch has already committed at this point; a crash
	// here leaves chaindata/ ahead of state/. Boot does not re-execute the
	// block: its SetStateRoot check fails with state-root-mismatch.
	if err := p.manager.CommitBlock(); err != nil {
		return 0, fmt.Errorf("producer: committing state: %w", err)
	}

	hashes := make([]types.Hash, len(included))
	for i, tx := range included {
		hashes[i] = tx.Hash()
	}
	p.pool.RemoveMany(hashes)

	log.Info().
		Uint64("number", header.Number).
		Int("tx_count", len(included)).
		Str("hash", blockHash.Hex()).
		Msg("block produced")
	return len(included), nil
}

// applyOne runs tx through a checkpoint: on success it commits and
// returns status 1 with the observed gas; on failure it reverts, then
// charges the sender the full gas_limit and credits the proposer, per
// spec.md §4.8 step 5's failure path.
func (p *Producer) applyOne(tx txn.Transaction) (status uint8, gasUsed uint64, logs []receipt.Log, contractAddr *types.Address, err error) {
	if err := p.manager.MustNonEmptyStack(); err != nil {
		return 0, 0, nil, nil, err
	}
	p.manager.Checkpoint()
	result, applyErr := p.exec.Apply(p.manager, tx, p.proposer)
	if applyErr == nil {
		p.manager.CommitCheckpoint()
		return 1, result.GasUsed, result.Logs, result.ContractAddress, nil
	}

	if revertErr := p.manager.RevertCheckpoint(); revertErr != nil {
		return 0, 0, nil, nil, revertErr
	}

	p.manager.Checkpoint()
	if chargeErr := chargeFailedTransaction(p.manager, tx, p.proposer); chargeErr != nil {
		p.manager.RevertCheckpoint()
		return 0, 0, nil, nil, chargeErr
	}
	p.manager.CommitCheckpoint()
	return 0, tx.GasLimit, nil, nil, nil
}

// chargeFailedTransaction charges sender the full gas_limit fee and
// credits the proposer, incrementing the sender's nonce so a failed
// transaction still consumes it — otherwise the next queued nonce could
// never promote. Sender and proposer may be the same address; both
// accounts are loaded into one map before mutation to avoid the
// lost-update aliasing bug spec.md §9 warns against.
func chargeFailedTransaction(m *state.Manager, tx txn.Transaction, proposer types.Address) error {
	accounts := make(map[types.Address]state.Account)
	for _, addr := range []types.Address{tx.From, proposer} {
		if _, seen := accounts[addr]; seen {
			continue
		}
		acc, ok, err := m.GetAccount(addr)
		if err != nil {
			return err
		}
		if !ok {
			acc = state.NewAccount()
		}
		accounts[addr] = acc
	}

	fee := tx.GasPrice.Mul(types.NewWeiFromUint64(tx.GasLimit))
	sender := accounts[tx.From]
	if sender.Balance.GTE(fee) {
		sender.Balance = sender.Balance.Sub(fee)
	} else {
		sender.Balance = types.ZeroWei
	}
	sender.Nonce++
	accounts[tx.From] = sender

	proposerAcc := accounts[proposer]
	proposerAcc.Balance = proposerAcc.Balance.Add(fee)
	accounts[proposer] = proposerAcc

	for addr, acc := range accounts {
		m.SetAccount(addr, acc)
	}
	return nil
}

// creditProposerReward adds the per-block reward to the proposer,
// spec.md §4.8 step 6.
func (p *Producer) creditProposerReward() error {
	if err := p.manager.MustNonEmptyStack(); err != nil {
		return err
	}
	acc, ok, err := p.manager.GetAccount(p.proposer)
	if err != nil {
		return err
	}
	if !ok {
		acc = state.NewAccount()
	}
	acc.Balance = acc.Balance.Add(p.params.ProposerRewardWei())
	p.manager.SetAccount(p.proposer, acc)
	return nil
}

// buildGenesis materializes block 0 from the genesis configuration,
// spec.md §4.8 step 2: per-address balances, no transactions, parent
// hash of 32 zero bytes, transactions_root and receipts_root equal to
// the empty-trie root.
func (p *Producer) buildGenesis(log zerolog.Logger) error {
	allocations, err := p.genesis.Allocations()
	if err != nil {
		return fmt.Errorf("producer: parsing genesis allocations: %w", err)
	}

	p.manager.StartBlock()
	for addr, balance := range allocations {
		p.manager.SetAccount(addr, state.Account{Balance: balance, StorageRoot: trie.EmptyRoot, CodeHash: state.EmptyCodeHash})
	}

	stateRoot, err := p.manager.CurrentRoot()
	if err != nil {
		p.manager.RollbackBlock()
		return fmt.Errorf("producer: computing genesis state root: %w", err)
	}

	header := chain.Header{
		Number:           0,
		ParentHash:       types.ZeroHash,
		TimestampMS:      p.genesis.TimestampMS,
		Proposer:         types.Address{},
		StateRoot:        stateRoot,
		TransactionsRoot: trie.EmptyRoot,
		ReceiptsRoot:     trie.EmptyRoot,
		TransactionCount: 0,
	}
	block := chain.Block{Header: header}

	if err := p.store.SaveBlock(block, nil); err != nil {
		p.manager.RollbackBlock()
		return fmt.Errorf("producer: saving genesis block: %w", err)
	}
	if err := p.manager.CommitBlock(); err != nil {
		return fmt.Errorf("producer: committing genesis state: %w", err)
	}

	log.Info().Str("hash", block.Hash().Hex()).Int("accounts", len(allocations)).Msg("genesis block built")
	return nil
}

func encodedTransactions(txs []txn.Transaction) [][]byte {
	out := make([][]byte, len(txs))
	for i, tx := range txs {
		out[i] = tx.Encode()
	}
	return out
}

func encodedReceipts(receipts []receipt.Receipt) [][]byte {
	out := make([][]byte, len(receipts))
	for i, r := range receipts {
		out[i] = r.Encode()
	}
	return out
}

func logsBloomFor(logs []receipt.Log) receipt.Bloom {
	var bloom receipt.Bloom
	for _, l := range logs {
		bloom.OrWith(receipt.BloomForLog(l))
	}
	return bloom
}
