package venue

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solrouter/swapflow/internal/order"
)

// SimConfig tunes one simulated venue.
type SimConfig struct {
	// BasePrice anchors generated quotes.
	BasePrice decimal.Decimal
	// Bias shifts the anchor multiplicatively, e.g. 0.98 quotes 2% under.
	Bias float64
	// Spread is the width of the uniform band around the biased anchor.
	Spread float64
	// Fee is the venue's taker fee fraction.
	Fee decimal.Decimal
	// Latency is the simulated network round trip.
	Latency time.Duration
	// UnavailableRate is the probability in [0,1] a request fails with
	// ErrQuoteUnavailable. Zero in tests.
	UnavailableRate float64
}

// SimVenue is a QuoteSource backed by a pseudo-random price model instead of
// a venue API. Quotes are generated fresh per call.
type SimVenue struct {
	id     order.VenueID
	cfg    SimConfig
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimVenue creates a simulated venue. seed pins the price stream for
// reproducible tests; pass time.Now().UnixNano() in production wiring.
func NewSimVenue(id order.VenueID, cfg SimConfig, seed int64, logger *zap.Logger) *SimVenue {
	if cfg.BasePrice.IsZero() {
		cfg.BasePrice = decimal.NewFromInt(1)
	}
	return &SimVenue{
		id:     id,
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (v *SimVenue) ID() order.VenueID { return v.id }

// Quote prices the pair after the configured latency. The price lands
// uniformly in [base*bias, base*bias*(1+spread)).
func (v *SimVenue) Quote(ctx context.Context, tokenIn, tokenOut string, amount decimal.Decimal) (order.Quote, error) {
	v.mu.Lock()
	unavailable := v.cfg.UnavailableRate > 0 && v.rng.Float64() < v.cfg.UnavailableRate
	jitter := v.rng.Float64()
	v.mu.Unlock()

	timer := time.NewTimer(v.cfg.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return order.Quote{}, ctx.Err()
	case <-timer.C:
	}

	if unavailable {
		return order.Quote{}, fmt.Errorf("venue %s: %w", v.id, ErrQuoteUnavailable)
	}

	factor := v.cfg.Bias * (1 + jitter*v.cfg.Spread)
	price := v.cfg.BasePrice.Mul(decimal.NewFromFloat(factor))
	q := order.Quote{Price: price, Fee: v.cfg.Fee, Venue: v.id}

	v.logger.Debug("venue quote",
		zap.String("venue", string(v.id)),
		zap.String("pair", tokenIn+"/"+tokenOut),
		zap.String("price", price.String()),
	)
	return q, nil
}

// Static is a QuoteSource returning a fixed quote, used in tests and as a
// pinning tool for scenario replays.
type Static struct {
	Venue order.VenueID
	Out   order.Quote
	Err   error
	Delay time.Duration
}

func (s *Static) ID() order.VenueID { return s.Venue }

func (s *Static) Quote(ctx context.Context, tokenIn, tokenOut string, amount decimal.Decimal) (order.Quote, error) {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return order.Quote{}, ctx.Err()
		case <-timer.C:
		}
	}
	if s.Err != nil {
		return order.Quote{}, s.Err
	}
	return s.Out, nil
}
