// Package txpool implements spec.md §4.5's transaction pool: a pending
// partition ready for inclusion and a queued partition waiting on a nonce
// gap, with promotion between them as gaps close.
package txpool

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chainkit/node/internal/chainerr"
	"github.com/chainkit/node/internal/txn"
	"github.com/chainkit/node/internal/types"
)

// Entry is a pooled transaction plus the time it arrived, spec.md §3's
// "pool entry".
type Entry struct {
	Tx      txn.Transaction
	Arrival time.Time
}

type senderNonceKey struct {
	sender types.Address
	nonce  uint64
}

// Pool holds every admitted, not-yet-included transaction. All operations
// are short and in-memory, guarded by a single mutex — spec.md §5's
// resource model for this component.
type Pool struct {
	mu      sync.Mutex
	pending map[types.Hash]Entry
	queued  map[types.Hash]Entry
	index   map[senderNonceKey]types.Hash
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{
		pending: make(map[types.Hash]Entry),
		queued:  make(map[types.Hash]Entry),
		index:   make(map[senderNonceKey]types.Hash),
	}
}

// Add admits tx given the sender's current on-chain nonce. It is placed
// in pending if its nonce contiguously follows the sender's already-
// pending entries, otherwise queued; a successful add always attempts to
// promote the sender's queued entries into pending.
func (p *Pool) Add(tx txn.Transaction, currentNonce uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	hash := tx.Hash()
	if _, ok := p.pending[hash]; ok {
		return fmt.Errorf("%w: %s", chainerr.ErrDuplicateHash, hash)
	}
	if _, ok := p.queued[hash]; ok {
		return fmt.Errorf("%w: %s", chainerr.ErrDuplicateHash, hash)
	}
	if tx.Nonce < currentNonce {
		return fmt.Errorf("%w: nonce %d below current %d", chainerr.ErrNonceTooLow, tx.Nonce, currentNonce)
	}

	key := senderNonceKey{tx.From, tx.Nonce}
	if existing, ok := p.index[key]; ok && existing != hash {
		return fmt.Errorf("%w: sender %s nonce %d already pooled as %s", chainerr.ErrNonceConflict, tx.From.Hex(), tx.Nonce, existing)
	}

	entry := Entry{Tx: tx, Arrival: time.Now()}
	expected := currentNonce + uint64(p.pendingCountForSenderLocked(tx.From))
	if tx.Nonce == expected {
		p.pending[hash] = entry
	} else {
		p.queued[hash] = entry
	}
	p.index[key] = hash

	p.promoteLocked(tx.From)
	return nil
}

// pendingCountForSenderLocked counts sender's entries currently in
// pending. Callers must hold p.mu.
func (p *Pool) pendingCountForSenderLocked(sender types.Address) int {
	n := 0
	for _, e := range p.pending {
		if e.Tx.From == sender {
			n++
		}
	}
	return n
}

// nextPendingNonceLocked returns one past sender's highest pending nonce,
// or (0, false) if sender has no pending entries — there is then no
// contiguous baseline to promote onto.
func (p *Pool) nextPendingNonceLocked(sender types.Address) (uint64, bool) {
	max, ok := uint64(0), false
	for _, e := range p.pending {
		if e.Tx.From != sender {
			continue
		}
		if !ok || e.Tx.Nonce > max {
			max, ok = e.Tx.Nonce, true
		}
	}
	if !ok {
		return 0, false
	}
	return max + 1, true
}

// promoteLocked walks sender's queued entries in nonce order, moving each
// onto pending as soon as it contiguously follows what pending already
// holds. Callers must hold p.mu.
func (p *Pool) promoteLocked(sender types.Address) {
	for {
		next, ok := p.nextPendingNonceLocked(sender)
		if !ok {
			return
		}
		hash, ok := p.index[senderNonceKey{sender, next}]
		if !ok {
			return
		}
		entry, ok := p.queued[hash]
		if !ok {
			return
		}
		delete(p.queued, hash)
		p.pending[hash] = entry
	}
}

// TakeForBlock selects pending transactions for inclusion: descending
// gas-price order (ties broken by earliest arrival), never including a
// sender's transaction ahead of that sender's lower, still-pending
// nonces, stopping once maxCount transactions are chosen or including one
// more would exceed maxGas of cumulative gas_limit. Selected entries stay
// in the pool until RemoveMany is called.
func (p *Pool) TakeForBlock(maxCount int, maxGas uint64) []txn.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	bySender := make(map[types.Address][]Entry)
	for _, e := range p.pending {
		bySender[e.Tx.From] = append(bySender[e.Tx.From], e)
	}
	for sender := range bySender {
		list := bySender[sender]
		sort.Slice(list, func(i, j int) bool { return list[i].Tx.Nonce < list[j].Tx.Nonce })
		bySender[sender] = list
	}
	cursor := make(map[types.Address]int, len(bySender))

	var (
		result []txn.Transaction
		cumGas uint64
	)
	for len(result) < maxCount {
		var (
			bestSender types.Address
			bestEntry  Entry
			found      bool
		)
		for sender, list := range bySender {
			idx := cursor[sender]
			if idx >= len(list) {
				continue
			}
			cand := list[idx]
			if !found || betterCandidate(cand, bestEntry) {
				bestSender, bestEntry, found = sender, cand, true
			}
		}
		if !found {
			break
		}
		if cumGas+bestEntry.Tx.GasLimit > maxGas {
			break
		}
		cursor[bestSender]++
		cumGas += bestEntry.Tx.GasLimit
		result = append(result, bestEntry.Tx)
	}
	return result
}

func betterCandidate(a, b Entry) bool {
	if cmp := a.Tx.GasPrice.Cmp(b.Tx.GasPrice); cmp != 0 {
		return cmp > 0
	}
	return a.Arrival.Before(b.Arrival)
}

// RemoveMany deletes hashes from both partitions, then re-runs promotion
// for every sender touched — a nonce gap closed by a removal (and,
// symmetrically, one left behind) can unlock further queued entries.
func (p *Pool) RemoveMany(hashes []types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()

	affected := make(map[types.Address]struct{})
	for _, h := range hashes {
		if e, ok := p.pending[h]; ok {
			delete(p.pending, h)
			delete(p.index, senderNonceKey{e.Tx.From, e.Tx.Nonce})
			affected[e.Tx.From] = struct{}{}
			continue
		}
		if e, ok := p.queued[h]; ok {
			delete(p.queued, h)
			delete(p.index, senderNonceKey{e.Tx.From, e.Tx.Nonce})
			affected[e.Tx.From] = struct{}{}
		}
	}
	for sender := range affected {
		p.promoteLocked(sender)
	}
}

// Conflict reports whether sender already has a different transaction
// pooled at nonce.
func (p *Pool) Conflict(sender types.Address, nonce uint64, hash types.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	existing, ok := p.index[senderNonceKey{sender, nonce}]
	return ok && existing != hash
}

// CountForSender returns how many of sender's transactions currently
// occupy the pool (pending plus queued), the value internal/txservice
// adds to the on-chain nonce to pick the next nonce to sign.
func (p *Pool) CountForSender(sender types.Address) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pendingCountForSenderLocked(sender) + p.queuedCountForSenderLocked(sender)
}

func (p *Pool) queuedCountForSenderLocked(sender types.Address) int {
	n := 0
	for _, e := range p.queued {
		if e.Tx.From == sender {
			n++
		}
	}
	return n
}

// Get returns a pooled transaction by hash, searching pending then
// queued.
func (p *Pool) Get(hash types.Hash) (txn.Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.pending[hash]; ok {
		return e.Tx, true
	}
	if e, ok := p.queued[hash]; ok {
		return e.Tx, true
	}
	return txn.Transaction{}, false
}

// PendingCount and QueuedCount report partition sizes, used by metrics
// and tests asserting the pool shape after an operation.
func (p *Pool) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *Pool) QueuedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queued)
}
