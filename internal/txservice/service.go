// Package txservice implements spec.md §4.6: transaction signing and the
// four-stage admission pipeline (signature, nonce, gas, balance) that
// gates entry into the pool.
package txservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/chainkit/node/internal/chainerr"
	"github.com/chainkit/node/internal/crypto"
	"github.com/chainkit/node/internal/metrics"
	"github.com/chainkit/node/internal/state"
	"github.com/chainkit/node/internal/txn"
	"github.com/chainkit/node/internal/txpool"
	"github.com/chainkit/node/internal/types"
)

// Service signs and admits transactions. Submit is gated by a token-
// bucket limiter — an ambient ingress control, distinct from the
// admission pipeline's own error kinds. Reads go through the repository
// directly rather than the producer's in-flight journal, per spec.md
// §5's "read-only queries from the transaction service read through the
// repository directly, not the in-flight journal".
type Service struct {
	repo    *state.Repository
	pool    *txpool.Pool
	chainID uint64
	limiter *rate.Limiter
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// New builds a Service. limiter may be nil, in which case Submit never
// throttles.
func New(repo *state.Repository, pool *txpool.Pool, chainID uint64, limiter *rate.Limiter, log zerolog.Logger) *Service {
	return &Service{repo: repo, pool: pool, chainID: chainID, limiter: limiter, log: log}
}

// SetMetrics attaches m so every admission rejection is counted by
// error kind. Submit is a no-op on metrics until this is called.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

func (s *Service) reject(err error) error {
	if s.metrics != nil {
		s.metrics.ValidationRejections.WithLabelValues(rejectionKind(err)).Inc()
	}
	return err
}

func rejectionKind(err error) string {
	for _, kind := range []error{
		chainerr.ErrRateLimited,
		chainerr.ErrBadSignature,
		chainerr.ErrNonceTooLow,
		chainerr.ErrNonceConflict,
		chainerr.ErrGasUnderpriced,
		chainerr.ErrGasUnderlimit,
		chainerr.ErrInsufficientFunds,
		chainerr.ErrDuplicateHash,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "other"
}

// Sign builds a signed transaction for priv: the sender's next nonce is
// its on-chain nonce plus however many of its transactions already sit in
// the pool.
func (s *Service) Sign(priv *crypto.Keypair, to *types.Address, value, gasPrice types.Wei, gasLimit uint64, data []byte) (txn.Transaction, error) {
	acc, _, err := s.repo.GetAccount(priv.Address)
	if err != nil {
		return txn.Transaction{}, err
	}
	nonce := acc.Nonce + uint64(s.pool.CountForSender(priv.Address))
	return txn.Sign(priv, s.chainID, to, value, nonce, gasPrice, gasLimit, data)
}

// Submit runs the four-stage validation pipeline and, on success, hands
// tx to the pool. It stops at the first failing stage.
func (s *Service) Submit(ctx context.Context, tx txn.Transaction) error {
	if s.limiter != nil && !s.limiter.Allow() {
		return s.reject(chainerr.ErrRateLimited)
	}

	// 1. Signature.
	recovered, _, err := tx.RecoverFrom()
	if err != nil {
		return s.reject(err)
	}
	if recovered != tx.From {
		return s.reject(fmt.Errorf("%w: recovered %s, tx.from is %s", chainerr.ErrBadSignature, recovered.Hex(), tx.From.Hex()))
	}

	acc, _, err := s.repo.GetAccount(recovered)
	if err != nil {
		return err
	}

	// 2. Nonce.
	if tx.Nonce < acc.Nonce {
		return s.reject(fmt.Errorf("%w: tx nonce %d below on-chain nonce %d", chainerr.ErrNonceTooLow, tx.Nonce, acc.Nonce))
	}
	if s.pool.Conflict(recovered, tx.Nonce, tx.Hash()) {
		return s.reject(fmt.Errorf("%w: sender %s nonce %d already pooled", chainerr.ErrNonceConflict, recovered.Hex(), tx.Nonce))
	}

	// 3. Gas.
	if tx.GasPrice.IsZero() {
		return s.reject(fmt.Errorf("%w: gas price must be positive", chainerr.ErrGasUnderpriced))
	}
	if tx.GasLimit < txn.MinGasLimit {
		return s.reject(fmt.Errorf("%w: gas limit %d below %d", chainerr.ErrGasUnderlimit, tx.GasLimit, txn.MinGasLimit))
	}

	// 4. Balance.
	fee := tx.GasPrice.Mul(types.NewWeiFromUint64(tx.GasLimit))
	cost := tx.Value.Add(fee)
	if !acc.Balance.GTE(cost) {
		return s.reject(fmt.Errorf("%w: balance %s below required %s", chainerr.ErrInsufficientFunds, acc.Balance, cost))
	}

	if err := s.pool.Add(tx, acc.Nonce); err != nil {
		return s.reject(err)
	}
	s.log.Info().
		Str("tx_hash", tx.Hash().Hex()).
		Str("from", recovered.Hex()).
		Uint64("nonce", tx.Nonce).
		Msg("transaction admitted")
	return nil
}
