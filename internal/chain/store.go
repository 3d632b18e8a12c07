package chain

import (
	"encoding/binary"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chainkit/node/internal/chainerr"
	"github.com/chainkit/node/internal/crypto"
	"github.com/chainkit/node/internal/kv"
	"github.com/chainkit/node/internal/receipt"
	"github.com/chainkit/node/internal/types"
)

// DefaultHeaderCacheSize is spec.md §4.7's default LRU capacity.
const DefaultHeaderCacheSize = 10_000

var lastBlockKey = []byte("LastBlock")

func u64be(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func keyCanonical(num uint64) []byte {
	return append([]byte{'H'}, u64be(num)...)
}

func keyReverse(hash types.Hash) []byte {
	return append([]byte{'n'}, hash[:]...)
}

func keyHeader(num uint64, hash types.Hash) []byte {
	k := append([]byte{'h'}, u64be(num)...)
	return append(k, hash[:]...)
}

func keyBody(num uint64, hash types.Hash) []byte {
	k := append([]byte{'b'}, u64be(num)...)
	return append(k, hash[:]...)
}

func keyReceipt(txHash types.Hash) []byte {
	return append([]byte{'r'}, txHash[:]...)
}

func keyTxLookup(txHash types.Hash) []byte {
	return append([]byte{'l'}, txHash[:]...)
}

// TxLookup locates a transaction's containing block, per spec.md §4.7's
// "l" row.
type TxLookup struct {
	BlockHash   types.Hash
	BlockNumber uint64
	TxIndex     uint64
}

// Store is the content-addressed chain store: headers, bodies, receipts,
// and the number<->hash and tx-lookup indexes, all in one kv.Store
// namespace.
type Store struct {
	store       kv.Store
	headerCache *lru.Cache[types.Hash, Header]
}

// Open wraps store with the default header-cache capacity.
func Open(store kv.Store) (*Store, error) {
	return OpenWithCacheSize(store, DefaultHeaderCacheSize)
}

// OpenWithCacheSize is Open with an explicit header-cache capacity, for
// tests that want to force eviction.
func OpenWithCacheSize(store kv.Store, cacheSize int) (*Store, error) {
	cache, err := lru.New[types.Hash, Header](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("chain: building header cache: %w", err)
	}
	return &Store{store: store, headerCache: cache}, nil
}

// SaveBlock persists block and its receipts as a single atomic batch:
// header, body, every receipt and tx-lookup row, the canonical number->
// hash and reverse indexes, and the chain tip. The header cache is
// populated only once the batch has committed.
func (s *Store) SaveBlock(block Block, receipts []receipt.Receipt) error {
	hash := block.Hash()
	num := block.Header.Number

	ops := make([]kv.Op, 0, 5+2*len(receipts))
	ops = append(ops,
		kv.PutOp(keyCanonical(num), hash[:]),
		kv.PutOp(keyReverse(hash), u64be(num)),
		kv.PutOp(keyHeader(num, hash), block.Header.Encode()),
		kv.PutOp(keyBody(num, hash), block.Body.Encode()),
		kv.PutOp(lastBlockKey, hash[:]),
	)
	for _, r := range receipts {
		ops = append(ops, kv.PutOp(keyReceipt(r.TxHash), r.Encode()))
		lookup := TxLookup{BlockHash: hash, BlockNumber: num, TxIndex: r.TxIndex}
		ops = append(ops, kv.PutOp(keyTxLookup(r.TxHash), encodeTxLookup(lookup)))
	}

	if err := s.store.Batch(ops); err != nil {
		return fmt.Errorf("%w: save_block: %v", chainerr.ErrStoreIO, err)
	}
	s.headerCache.Add(hash, block.Header)
	return nil
}

func encodeTxLookup(l TxLookup) []byte {
	item := crypto.RLPList(
		crypto.RLPString(l.BlockHash[:]),
		crypto.RLPUint(l.BlockNumber),
		crypto.RLPUint(l.TxIndex),
	)
	return crypto.RLPEncode(item)
}

func decodeTxLookup(b []byte) (TxLookup, error) {
	item, err := crypto.RLPDecode(b)
	if err != nil {
		return TxLookup{}, err
	}
	if !item.IsList || len(item.List) != 3 {
		return TxLookup{}, fmt.Errorf("%w: tx lookup must be a 3-element list", chainerr.ErrMalformedRLP)
	}
	if item.List[0].IsList || len(item.List[0].Bytes) != types.HashLength {
		return TxLookup{}, fmt.Errorf("%w: tx lookup block_hash must be %d bytes", chainerr.ErrMalformedRLP, types.HashLength)
	}
	num, err := crypto.DecodeUint(item.List[1])
	if err != nil {
		return TxLookup{}, err
	}
	idx, err := crypto.DecodeUint(item.List[2])
	if err != nil {
		return TxLookup{}, err
	}
	return TxLookup{
		BlockHash:   types.BytesToHash(item.List[0].Bytes),
		BlockNumber: num,
		TxIndex:     idx,
	}, nil
}

// FindByNumber returns the block at num, or (zero, false) if none exists.
func (s *Store) FindByNumber(num uint64) (Block, bool, error) {
	hashBytes, ok, err := s.store.Get(keyCanonical(num))
	if err != nil {
		return Block{}, false, fmt.Errorf("%w: %v", chainerr.ErrStoreIO, err)
	}
	if !ok {
		return Block{}, false, nil
	}
	return s.blockAt(num, types.BytesToHash(hashBytes))
}

// FindByHash returns the block with the given hash, or (zero, false) if
// none exists.
func (s *Store) FindByHash(hash types.Hash) (Block, bool, error) {
	numBytes, ok, err := s.store.Get(keyReverse(hash))
	if err != nil {
		return Block{}, false, fmt.Errorf("%w: %v", chainerr.ErrStoreIO, err)
	}
	if !ok {
		return Block{}, false, nil
	}
	return s.blockAt(binary.BigEndian.Uint64(numBytes), hash)
}

// FindLatest returns the chain tip, or (zero, false) if no block has ever
// been persisted.
func (s *Store) FindLatest() (Block, bool, error) {
	hashBytes, ok, err := s.store.Get(lastBlockKey)
	if err != nil {
		return Block{}, false, fmt.Errorf("%w: %v", chainerr.ErrStoreIO, err)
	}
	if !ok {
		return Block{}, false, nil
	}
	return s.FindByHash(types.BytesToHash(hashBytes))
}

// ChainHeight returns the tip's block number, or (0, false) before
// genesis.
func (s *Store) ChainHeight() (uint64, bool, error) {
	block, ok, err := s.FindLatest()
	if err != nil || !ok {
		return 0, ok, err
	}
	return block.Header.Number, true, nil
}

func (s *Store) blockAt(num uint64, hash types.Hash) (Block, bool, error) {
	header, cached := s.headerCache.Get(hash)
	if !cached {
		raw, ok, err := s.store.Get(keyHeader(num, hash))
		if err != nil {
			return Block{}, false, fmt.Errorf("%w: %v", chainerr.ErrStoreIO, err)
		}
		if !ok {
			return Block{}, false, nil
		}
		header, err = decodeHeader(raw)
		if err != nil {
			return Block{}, false, err
		}
		s.headerCache.Add(hash, header)
	}

	// The body is always fetched from disk, even on a header cache hit.
	bodyRaw, ok, err := s.store.Get(keyBody(num, hash))
	if err != nil {
		return Block{}, false, fmt.Errorf("%w: %v", chainerr.ErrStoreIO, err)
	}
	if !ok {
		return Block{}, false, nil
	}
	body, err := decodeBody(bodyRaw)
	if err != nil {
		return Block{}, false, err
	}
	return Block{Header: header, Body: body}, true, nil
}

// FindReceipt returns the receipt for txHash, or (zero, false) if none
// exists.
func (s *Store) FindReceipt(txHash types.Hash) (receipt.Receipt, bool, error) {
	raw, ok, err := s.store.Get(keyReceipt(txHash))
	if err != nil {
		return receipt.Receipt{}, false, fmt.Errorf("%w: %v", chainerr.ErrStoreIO, err)
	}
	if !ok {
		return receipt.Receipt{}, false, nil
	}
	r, err := receipt.Decode(raw)
	if err != nil {
		return receipt.Receipt{}, false, err
	}
	return r, true, nil
}

// FindTxLookup returns the block location of txHash, or (zero, false) if
// it was never included.
func (s *Store) FindTxLookup(txHash types.Hash) (TxLookup, bool, error) {
	raw, ok, err := s.store.Get(keyTxLookup(txHash))
	if err != nil {
		return TxLookup{}, false, fmt.Errorf("%w: %v", chainerr.ErrStoreIO, err)
	}
	if !ok {
		return TxLookup{}, false, nil
	}
	lookup, err := decodeTxLookup(raw)
	if err != nil {
		return TxLookup{}, false, err
	}
	return lookup, true, nil
}
