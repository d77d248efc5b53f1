// Package venue contains the quote source adapters. Each adapter prices a
// token pair against one liquidity venue; the simulated implementation stands
// in for a real venue quoting API.
package venue

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/solrouter/swapflow/internal/order"
)

// ErrQuoteUnavailable is returned when a venue cannot serve a quote. The
// routing engine treats it as fatal to the routing stage.
var ErrQuoteUnavailable = errors.New("quote unavailable")

// QuoteSource fetches a price/fee quote from a single venue.
type QuoteSource interface {
	// ID identifies the venue the source quotes against.
	ID() order.VenueID

	// Quote prices a swap of amount tokenIn into tokenOut. It completes
	// after a bounded network delay and respects ctx cancellation.
	Quote(ctx context.Context, tokenIn, tokenOut string, amount decimal.Decimal) (order.Quote, error)
}
