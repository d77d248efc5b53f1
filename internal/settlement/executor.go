// Package settlement executes the chosen quote against the venue. The
// simulated executor models settlement latency and occasional reverts; a
// production implementation would submit a transaction to the chain.
package settlement

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solrouter/swapflow/internal/order"
)

// ErrSettlementReverted signals a (simulated) revert during swap execution.
// The job dispatcher retries it.
var ErrSettlementReverted = errors.New("settlement reverted")

// Receipt is the outcome of a successful execution.
type Receipt struct {
	Ref           string
	ExecutedPrice decimal.Decimal
}

// Executor performs the swap on the chosen venue.
type Executor interface {
	Execute(ctx context.Context, v order.VenueID, ord *order.Order, slippage float64) (Receipt, error)
}

// SimConfig tunes the simulated executor.
type SimConfig struct {
	// MinDelay/MaxDelay bound the settlement wait.
	MinDelay time.Duration
	MaxDelay time.Duration
	// RevertRate is the probability in [0,1] of a simulated revert.
	// Injectable so tests can force both branches.
	RevertRate float64
}

// SimExecutor executes swaps against the price model instead of a chain.
type SimExecutor struct {
	cfg    SimConfig
	logger *zap.Logger

	mu  sync.Mutex
	rng *mrand.Rand
}

func NewSimExecutor(cfg SimConfig, seed int64, logger *zap.Logger) *SimExecutor {
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	return &SimExecutor{cfg: cfg, logger: logger, rng: mrand.New(mrand.NewSource(seed))}
}

// Execute settles the order on venue v. The executed price is the chosen
// quote's price perturbed within the slippage tolerance.
func (e *SimExecutor) Execute(ctx context.Context, v order.VenueID, ord *order.Order, slippage float64) (Receipt, error) {
	if ord.Meta.Chosen == nil {
		return Receipt{}, fmt.Errorf("order %s has no chosen quote", ord.ID)
	}

	e.mu.Lock()
	revert := e.cfg.RevertRate > 0 && e.rng.Float64() < e.cfg.RevertRate
	delayJitter := e.rng.Float64()
	slipJitter := e.rng.Float64() - 0.5
	e.mu.Unlock()

	delay := e.cfg.MinDelay + time.Duration(delayJitter*float64(e.cfg.MaxDelay-e.cfg.MinDelay))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	case <-timer.C:
	}

	if revert {
		return Receipt{}, fmt.Errorf("venue %s: %w", v, ErrSettlementReverted)
	}

	base := ord.Meta.Chosen.Price
	executed := base.Mul(decimal.NewFromFloat(1 + slipJitter*slippage))
	ref := genSettlementRef()

	e.logger.Debug("swap executed",
		zap.String("order_id", ord.ID.String()),
		zap.String("venue", string(v)),
		zap.String("ref", ref),
		zap.String("executed_price", executed.String()),
	)
	return Receipt{Ref: ref, ExecutedPrice: executed}, nil
}

// genSettlementRef produces a 0x-prefixed transaction-style reference.
func genSettlementRef() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand only fails when the platform entropy source is broken
		return fmt.Sprintf("0x%x", time.Now().UnixNano())
	}
	return "0x" + hex.EncodeToString(b[:])
}
