// Package order defines the domain model shared by the submission boundary,
// the execution pipeline and the event stream: requests, quotes, order state
// and the per-transition event snapshot.
package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the direction of a swap from the requester's point of view.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// VenueID identifies a liquidity venue quotes are sourced from.
type VenueID string

const (
	// VenueRaydium is the primary venue and wins exact-price ties.
	VenueRaydium VenueID = "raydium"
	VenueMeteora VenueID = "meteora"
)

// Quote is an immutable price/fee quote from a single venue, produced fresh
// per routing attempt and never cached across orders.
type Quote struct {
	Price decimal.Decimal `json:"price"`
	Fee   decimal.Decimal `json:"fee"`
	Venue VenueID         `json:"venue"`
}

// Request is the immutable submission payload.
type Request struct {
	Side     Side            `json:"side" binding:"required,oneof=buy sell"`
	TokenIn  string          `json:"tokenIn" binding:"required,asset"`
	TokenOut string          `json:"tokenOut" binding:"required,asset"`
	Amount   decimal.Decimal `json:"amount" binding:"required"`
	Slippage float64         `json:"slippage" binding:"gte=0"`
}

// Meta accumulates stage outputs as the pipeline advances. Fields are
// additive: once populated they are only cleared by a full pipeline restart.
type Meta struct {
	QuoteA        *Quote          `json:"quoteA,omitempty"`
	QuoteB        *Quote          `json:"quoteB,omitempty"`
	Chosen        *Quote          `json:"chosen,omitempty"`
	SettlementRef string          `json:"settlementRef,omitempty"`
	ExecutedPrice *decimal.Decimal `json:"executedPrice,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Order is the central entity. Status and Meta are owned exclusively by the
// pipeline executing the order; everything else is read-only after creation.
type Order struct {
	ID        uuid.UUID
	Side      Side
	TokenIn   string
	TokenOut  string
	Amount    decimal.Decimal
	Slippage  float64
	Status    Status
	UpdatedAt time.Time
	Meta      Meta
}

// New creates a queued order for a validated request.
func New(req Request) *Order {
	return &Order{
		ID:        uuid.New(),
		Side:      req.Side,
		TokenIn:   req.TokenIn,
		TokenOut:  req.TokenOut,
		Amount:    req.Amount,
		Slippage:  req.Slippage,
		Status:    StatusQueued,
		UpdatedAt: time.Now(),
	}
}

// Event is the JSON snapshot emitted to the bound subscriber after every
// transition. Key casing matches the web client's wire contract.
type Event struct {
	OrderID   uuid.UUID `json:"orderId"`
	Status    Status    `json:"status"`
	Timestamp int64     `json:"timestamp"`
	Meta      Meta      `json:"meta"`
}

// Snapshot captures the order's current state as an event record.
func (o *Order) Snapshot() Event {
	return Event{
		OrderID:   o.ID,
		Status:    o.Status,
		Timestamp: o.UpdatedAt.UnixMilli(),
		Meta:      o.Meta,
	}
}
