package state

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/chainkit/node/internal/chainerr"
	"github.com/chainkit/node/internal/crypto"
	"github.com/chainkit/node/internal/kv"
	"github.com/chainkit/node/internal/trie"
	"github.com/chainkit/node/internal/types"
)

const accountKeyPrefix = "account:"

// accountKey is the on-disk row key for addr, per spec.md §6's layout:
// "account:" ‖ lowercase_hex_address.
func accountKey(addr types.Address) []byte {
	return []byte(accountKeyPrefix + strings.TrimPrefix(addr.Hex(), "0x"))
}

// Repository wraps the account trie and the state/ key-value namespace. It
// never materializes an account on a pure read — only SaveAccount writes
// a row.
type Repository struct {
	store kv.Store
	trie  *trie.Trie
}

// OpenRepository builds a Repository over store, rebuilding its in-memory
// trie from every persisted account row. If the store is empty, the trie
// (and therefore StateRoot) starts at trie.EmptyRoot.
func OpenRepository(store kv.Store) (*Repository, error) {
	r := &Repository{store: store, trie: trie.New()}
	if err := r.rebuildFromStore(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) rebuildFromStore() error {
	it, err := r.store.Scan([]byte(accountKeyPrefix))
	if err != nil {
		return fmt.Errorf("%w: %v", chainerr.ErrStoreIO, err)
	}
	defer it.Release()

	t := trie.New()
	for it.Next() {
		addrHex := bytes.TrimPrefix(it.Key(), []byte(accountKeyPrefix))
		addr, err := types.ParseAddress(string(addrHex))
		if err != nil {
			return err
		}
		acc, err := DecodeAccount(it.Value())
		if err != nil {
			return err
		}
		key := crypto.Keccak256Hash(addr[:])
		t.Put(key, acc.Encode())
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("%w: %v", chainerr.ErrStoreIO, err)
	}
	r.trie = t
	return nil
}

// GetAccount returns (account, true) if addr has ever been materialized,
// or (zero, false) otherwise — a pure read never creates a row.
func (r *Repository) GetAccount(addr types.Address) (Account, bool, error) {
	raw, ok, err := r.store.Get(accountKey(addr))
	if err != nil {
		return Account{}, false, fmt.Errorf("%w: %v", chainerr.ErrStoreIO, err)
	}
	if !ok {
		return Account{}, false, nil
	}
	acc, err := DecodeAccount(raw)
	if err != nil {
		return Account{}, false, err
	}
	return acc, true, nil
}

// SaveAccount materializes addr's record, writing both the flat KV row
// (the durable source of truth) and the in-memory trie entry it commits
// to.
func (r *Repository) SaveAccount(addr types.Address, acc Account) error {
	encoded := acc.Encode()
	if err := r.store.Put(accountKey(addr), encoded); err != nil {
		return fmt.Errorf("%w: %v", chainerr.ErrStoreIO, err)
	}
	r.trie.Put(crypto.Keccak256Hash(addr[:]), encoded)
	return nil
}

// StateRoot returns the current in-memory trie's commitment hash.
func (r *Repository) StateRoot() types.Hash {
	return r.trie.Root()
}

// SetStateRoot rebuilds the in-memory trie by replaying every persisted
// account row and requires the result match want exactly, per spec.md
// §4.3. A node calls this once at boot with the latest block's
// state_root before accepting any work.
func (r *Repository) SetStateRoot(want types.Hash) error {
	if err := r.rebuildFromStore(); err != nil {
		return err
	}
	if got := r.trie.Root(); got != want {
		return fmt.Errorf("%w: want %s got %s", chainerr.ErrStateRootMismatch, want, got)
	}
	return nil
}
