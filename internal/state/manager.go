package state

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chainkit/node/internal/chainerr"
	"github.com/chainkit/node/internal/crypto"
	"github.com/chainkit/node/internal/types"
)

// DefaultReadCacheSize is spec.md §4.4's default LRU capacity.
const DefaultReadCacheSize = 1024

type frameEntry struct {
	account   Account
	tombstone bool
}

// frame is one reversible scope of mutation: an address -> snapshot map.
type frame map[types.Address]frameEntry

// Manager is the journaled, checkpointable view over a Repository spec.md
// §4.4 describes. It is single-threaded with respect to its own journal —
// the block producer is its sole mutator during a block.
type Manager struct {
	repo  *Repository
	stack []frame
	cache *lru.Cache[types.Address, Account]
}

// NewManager builds a Manager over repo with the default read-cache size.
func NewManager(repo *Repository) *Manager {
	return NewManagerWithCacheSize(repo, DefaultReadCacheSize)
}

// NewManagerWithCacheSize is NewManager with an explicit cache capacity,
// mainly for tests that want to force eviction quickly.
func NewManagerWithCacheSize(repo *Repository, cacheSize int) *Manager {
	cache, _ := lru.New[types.Address, Account](cacheSize)
	return &Manager{repo: repo, cache: cache}
}

// StartBlock resets the journal to a single fresh frame. The producer
// calls this exactly once per block attempt.
func (m *Manager) StartBlock() {
	m.stack = []frame{make(frame)}
}

// Checkpoint pushes a new frame, nestable to any depth.
func (m *Manager) Checkpoint() {
	m.stack = append(m.stack, make(frame))
}

// CommitCheckpoint pops the top frame and overlays its entries onto the
// new top. With only one frame on the stack this is a no-op — the
// producer finalizes a block with CommitBlock instead.
func (m *Manager) CommitCheckpoint() {
	if len(m.stack) <= 1 {
		return
	}
	top := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	under := m.stack[len(m.stack)-1]
	for addr, entry := range top {
		under[addr] = entry
	}
}

// RevertCheckpoint pops and discards the top frame, failing if the stack
// is empty.
func (m *Manager) RevertCheckpoint() error {
	if len(m.stack) == 0 {
		return fmt.Errorf("revert checkpoint: journal stack is empty")
	}
	m.stack = m.stack[:len(m.stack)-1]
	return nil
}

// CommitBlock flattens every frame (top overrides bottom) into one map,
// persists each non-tombstoned entry through the repository, then clears
// the journal and evicts the touched addresses from the read cache.
func (m *Manager) CommitBlock() error {
	flat := m.flatten()
	for addr, entry := range flat {
		if entry.tombstone {
			continue
		}
		if err := m.repo.SaveAccount(addr, entry.account); err != nil {
			return err
		}
		m.cache.Remove(addr)
	}
	m.stack = nil
	return nil
}

// RollbackBlock discards the entire journal without touching the
// repository.
func (m *Manager) RollbackBlock() {
	m.stack = nil
}

// flatten merges every frame top-overrides-bottom into a single map,
// without mutating the stack.
func (m *Manager) flatten() frame {
	flat := make(frame)
	for _, f := range m.stack {
		for addr, entry := range f {
			flat[addr] = entry
		}
	}
	return flat
}

// CurrentRoot computes the state root that would result from persisting
// the journal's current contents, without actually persisting anything:
// it overlays the flattened journal onto a cloned copy of the
// repository's in-memory trie, leaving the repository itself untouched.
func (m *Manager) CurrentRoot() (types.Hash, error) {
	flat := m.flatten()
	if len(flat) == 0 {
		return m.repo.StateRoot(), nil
	}
	scratch := m.repo.trie.Clone()
	for addr, entry := range flat {
		if entry.tombstone {
			continue
		}
		scratch.Put(crypto.Keccak256Hash(addr[:]), entry.account.Encode())
	}
	return scratch.Root(), nil
}

// GetAccount resolves addr through the journal stack (top-down, first hit
// wins, tombstone means absent), then the read cache, then the
// repository — populating the cache on a repository hit.
func (m *Manager) GetAccount(addr types.Address) (Account, bool, error) {
	for i := len(m.stack) - 1; i >= 0; i-- {
		if entry, ok := m.stack[i][addr]; ok {
			if entry.tombstone {
				return Account{}, false, nil
			}
			return entry.account, true, nil
		}
	}
	if acc, ok := m.cache.Get(addr); ok {
		return acc, true, nil
	}
	acc, ok, err := m.repo.GetAccount(addr)
	if err != nil {
		return Account{}, false, err
	}
	if ok {
		m.cache.Add(addr, acc)
	}
	return acc, ok, nil
}

// SetAccount writes acc for addr into the top frame, implicitly pushing a
// fresh frame first if the stack is empty.
func (m *Manager) SetAccount(addr types.Address, acc Account) {
	if len(m.stack) == 0 {
		m.stack = append(m.stack, make(frame))
	}
	m.stack[len(m.stack)-1][addr] = frameEntry{account: acc}
}

// DeleteAccount tombstones addr in the top frame. Per spec.md §9's open
// question, this system never removes an account's row from the trie;
// "deletion" only ever means a caller chose to zero the account's fields
// before calling SetAccount. DeleteAccount exists for callers that need
// the journal to forget a speculative write made earlier in the same
// frame stack (e.g. a reverted contract-creation address reuse).
func (m *Manager) DeleteAccount(addr types.Address) {
	if len(m.stack) == 0 {
		m.stack = append(m.stack, make(frame))
	}
	m.stack[len(m.stack)-1][addr] = frameEntry{tombstone: true}
}

// MustNonEmptyStack is used by callers that require StartBlock to have
// run before any mutation — returns chainerr.ErrNoParentBlock so a
// producer bug fails loudly instead of silently pushing an implicit
// frame mid-block.
func (m *Manager) MustNonEmptyStack() error {
	if len(m.stack) == 0 {
		return fmt.Errorf("%w: state manager has no active block", chainerr.ErrNoParentBlock)
	}
	return nil
}
