// Package pipeline drives an order through its execution stages. The
// pipeline is the sole mutator of an order's status and metadata; every
// transition is persisted and emitted to the order's subscriber before the
// next stage's work begins.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solrouter/swapflow/internal/order"
	"github.com/solrouter/swapflow/internal/router"
	"github.com/solrouter/swapflow/internal/settlement"
	"github.com/solrouter/swapflow/internal/store"
)

// Routing is the slice of the routing engine the pipeline needs.
type Routing interface {
	Route(ctx context.Context, ord *order.Order) (router.Result, error)
}

// Broadcaster publishes a state snapshot to the order's live subscriber.
type Broadcaster interface {
	Publish(orderID uuid.UUID, evt order.Event)
}

// Config tunes stage behaviour.
type Config struct {
	// BuildDelay is the fixed synthetic transaction-construction delay
	// between building and submitted.
	BuildDelay time.Duration
}

// Pipeline executes one order at a time per call; concurrent orders each get
// their own Run invocation and share no mutable state.
type Pipeline struct {
	cfg      Config
	routing  Routing
	executor settlement.Executor
	store    store.OrderStore
	events   Broadcaster
	logger   *zap.Logger
}

func New(cfg Config, routing Routing, executor settlement.Executor, st store.OrderStore, events Broadcaster, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		routing:  routing,
		executor: executor,
		store:    st,
		events:   events,
		logger:   logger,
	}
}

// Run drives ord from queued to a terminal state. Any routing or execution
// error moves the order to failed and is returned so the dispatcher's retry
// policy can decide whether to re-run the whole pipeline.
func (p *Pipeline) Run(ctx context.Context, ord *order.Order) error {
	// Initial queued snapshot: observable before any work happens.
	p.persist(ctx, ord)
	p.emit(ord)

	if err := p.advance(ord, order.StatusRouting); err != nil {
		return p.fail(ctx, ord, err)
	}
	p.persist(ctx, ord)
	p.emit(ord)

	// Two-phase routing notification: the snapshot above says routing has
	// started; the one below carries the quotes.
	res, err := p.routing.Route(ctx, ord)
	if err != nil {
		return p.fail(ctx, ord, err)
	}
	qa, qb, chosen := res.QuoteA, res.QuoteB, res.Chosen
	ord.Meta.QuoteA = &qa
	ord.Meta.QuoteB = &qb
	ord.Meta.Chosen = &chosen
	ord.UpdatedAt = time.Now()
	p.emit(ord)

	if err := p.advance(ord, order.StatusBuilding); err != nil {
		return p.fail(ctx, ord, err)
	}
	p.persist(ctx, ord)
	p.emit(ord)

	// Transaction construction is a fixed-duration wait, nothing more.
	if err := p.wait(ctx, p.cfg.BuildDelay); err != nil {
		return p.fail(ctx, ord, err)
	}

	if err := p.advance(ord, order.StatusSubmitted); err != nil {
		return p.fail(ctx, ord, err)
	}
	p.persist(ctx, ord)
	p.emit(ord)

	receipt, err := p.executor.Execute(ctx, chosen.Venue, ord, ord.Slippage)
	if err != nil {
		return p.fail(ctx, ord, err)
	}

	ord.Meta.SettlementRef = receipt.Ref
	executed := receipt.ExecutedPrice
	ord.Meta.ExecutedPrice = &executed
	if err := p.advance(ord, order.StatusConfirmed); err != nil {
		return p.fail(ctx, ord, err)
	}
	if err := p.store.MarkConfirmed(ctx, ord.ID, receipt.Ref, receipt.ExecutedPrice.String()); err != nil {
		p.logger.Warn("persisting confirmation", zap.String("order_id", ord.ID.String()), zap.Error(err))
	}
	p.emit(ord)

	p.logger.Info("order confirmed",
		zap.String("order_id", ord.ID.String()),
		zap.String("venue", string(chosen.Venue)),
		zap.String("executed_price", receipt.ExecutedPrice.String()),
	)
	return nil
}

// advance moves the order one stage forward, enforcing the forward-only
// invariant.
func (p *Pipeline) advance(ord *order.Order, next order.Status) error {
	if !ord.Status.CanTransition(next) {
		return fmt.Errorf("illegal transition %s -> %s for order %s", ord.Status, next, ord.ID)
	}
	ord.Status = next
	ord.UpdatedAt = time.Now()
	return nil
}

// fail records the terminal failure, emits it, and hands the cause back to
// the dispatcher.
func (p *Pipeline) fail(ctx context.Context, ord *order.Order, cause error) error {
	ord.Status = order.StatusFailed
	ord.UpdatedAt = time.Now()
	ord.Meta.Error = cause.Error()

	if err := p.store.MarkFailed(ctx, ord.ID, cause.Error()); err != nil {
		p.logger.Warn("persisting failure", zap.String("order_id", ord.ID.String()), zap.Error(err))
	}
	p.emit(ord)

	p.logger.Warn("order failed",
		zap.String("order_id", ord.ID.String()),
		zap.Error(cause),
	)
	return cause
}

// persist upserts the order row. Persistence errors are logged and swallowed
// so storage trouble never stalls an order.
func (p *Pipeline) persist(ctx context.Context, ord *order.Order) {
	if err := p.store.UpsertStatus(ctx, ord); err != nil {
		p.logger.Warn("persisting status",
			zap.String("order_id", ord.ID.String()),
			zap.String("status", string(ord.Status)),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) emit(ord *order.Order) {
	p.events.Publish(ord.ID, ord.Snapshot())
}

func (p *Pipeline) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
