// Package router prices an order against both venues concurrently and picks
// the better quote for the requester's side.
package router

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/solrouter/swapflow/internal/order"
	"github.com/solrouter/swapflow/internal/venue"
)

// Result carries both raw quotes plus the selection. Both quotes are always
// present so the client and the audit trail can show the losing venue too.
type Result struct {
	QuoteA order.Quote
	QuoteB order.Quote
	Chosen order.Quote
}

// Router runs the two quote sources and applies the side-aware best-price
// rule.
type Router struct {
	venueA venue.QuoteSource
	venueB venue.QuoteSource
	logger *zap.Logger
}

func New(a, b venue.QuoteSource, logger *zap.Logger) *Router {
	return &Router{venueA: a, venueB: b, logger: logger}
}

type fetchResult struct {
	quote order.Quote
	err   error
}

// Route fetches both quotes concurrently and waits for both — a join, not a
// race. If either source fails, routing fails as a unit and no partial
// selection is returned.
func (r *Router) Route(ctx context.Context, ord *order.Order) (Result, error) {
	chA := make(chan fetchResult, 1)
	chB := make(chan fetchResult, 1)

	fetch := func(src venue.QuoteSource, out chan<- fetchResult) {
		q, err := src.Quote(ctx, ord.TokenIn, ord.TokenOut, ord.Amount)
		out <- fetchResult{quote: q, err: err}
	}
	go fetch(r.venueA, chA)
	go fetch(r.venueB, chB)

	resA := <-chA
	resB := <-chB

	if resA.err != nil {
		return Result{}, fmt.Errorf("routing %s: %w", r.venueA.ID(), resA.err)
	}
	if resB.err != nil {
		return Result{}, fmt.Errorf("routing %s: %w", r.venueB.ID(), resB.err)
	}

	res := Result{
		QuoteA: resA.quote,
		QuoteB: resB.quote,
		Chosen: choose(ord.Side, resA.quote, resB.quote),
	}

	r.logger.Debug("routed order",
		zap.String("order_id", ord.ID.String()),
		zap.String("side", string(ord.Side)),
		zap.String("price_a", res.QuoteA.Price.String()),
		zap.String("price_b", res.QuoteB.Price.String()),
		zap.String("chosen", string(res.Chosen.Venue)),
	)
	return res, nil
}

// choose applies the selection rule: a buyer wants the lower price, a seller
// the higher. Exact ties go to venue A so replays stay deterministic.
func choose(side order.Side, a, b order.Quote) order.Quote {
	cmp := a.Price.Cmp(b.Price)
	if cmp == 0 {
		return a
	}
	if side == order.SideBuy {
		if cmp < 0 {
			return a
		}
		return b
	}
	if cmp > 0 {
		return a
	}
	return b
}
