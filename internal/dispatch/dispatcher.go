// Package dispatch accepts order submissions and schedules pipeline
// execution on a bounded worker pool, retrying failed runs with exponential
// backoff. A retry restarts the whole pipeline, so early states are
// re-observable on the event stream: delivery is at-least-once, and
// consumers must treat the stream as a log rather than a diff.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solrouter/swapflow/internal/order"
	"github.com/solrouter/swapflow/pkg/metrics"
)

// Runner executes one order's pipeline to a terminal state.
type Runner interface {
	Run(ctx context.Context, ord *order.Order) error
}

// Config tunes the worker pool and retry policy.
type Config struct {
	// Workers bounds concurrent in-flight pipeline executions.
	Workers int
	// QueueSize is the FIFO backlog capacity beyond the worker bound.
	QueueSize int
	// MaxAttempts is the total number of pipeline runs per order.
	MaxAttempts int
	// BackoffBase seeds the exponential retry delay.
	BackoffBase time.Duration
	// BackoffMax caps the retry delay.
	BackoffMax time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 10
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
}

// Dispatcher owns the submission queue and worker pool.
type Dispatcher struct {
	cfg     Config
	runner  Runner
	journal *Journal // optional durable backlog
	logger  *zap.Logger

	jobs chan *order.Order
	wg   sync.WaitGroup

	mu     sync.Mutex
	failed map[uuid.UUID]string // permanently failed orders, no cleanup
}

// New creates a dispatcher. journal may be nil to run without durability
// (tests, ephemeral deployments).
func New(cfg Config, runner Runner, journal *Journal, logger *zap.Logger) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		cfg:     cfg,
		runner:  runner,
		journal: journal,
		logger:  logger,
		jobs:    make(chan *order.Order, cfg.QueueSize),
		failed:  make(map[uuid.UUID]string),
	}
}

// Start launches the worker pool and re-dispatches any journaled orders that
// were in flight when the previous process stopped.
func (d *Dispatcher) Start(ctx context.Context) error {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	if d.journal != nil {
		pending, err := d.journal.Pending()
		if err != nil {
			return err
		}
		for _, ord := range pending {
			d.logger.Info("replaying journaled order", zap.String("order_id", ord.ID.String()))
			select {
			case d.jobs <- ord:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// Submit validates the request, creates the order, journals it and enqueues
// the pipeline run. It returns the order id as soon as the job is queued;
// execution happens out-of-band.
func (d *Dispatcher) Submit(ctx context.Context, req order.Request) (uuid.UUID, error) {
	if err := req.Validate(); err != nil {
		return uuid.Nil, err
	}
	ord := order.New(req)
	if d.journal != nil {
		if err := d.journal.Append(ord); err != nil {
			// The journal is a recovery aid, not an admission gate.
			d.logger.Warn("journaling order", zap.String("order_id", ord.ID.String()), zap.Error(err))
		}
	}
	select {
	case d.jobs <- ord:
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
	metrics.OrdersSubmitted.WithLabelValues(string(ord.Side)).Inc()
	d.logger.Info("order submitted",
		zap.String("order_id", ord.ID.String()),
		zap.String("side", string(ord.Side)),
		zap.String("pair", ord.TokenIn+"/"+ord.TokenOut),
	)
	return ord.ID, nil
}

// Failed reports the recorded error for a permanently failed order.
func (d *Dispatcher) Failed(id uuid.UUID) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	reason, ok := d.failed[id]
	return reason, ok
}

// Shutdown waits for in-flight pipelines to finish after the Start context
// has been cancelled, then closes the journal.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if d.journal != nil {
		return d.journal.Close()
	}
	return nil
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ord := <-d.jobs:
			d.process(ctx, ord)
		}
	}
}

// process runs the pipeline up to MaxAttempts times. Each retry resets the
// order to queued with cleared metadata and re-runs every stage.
func (d *Dispatcher) process(ctx context.Context, ord *order.Order) {
	metrics.OrdersInFlight.Inc()
	defer metrics.OrdersInFlight.Dec()
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoffFor(attempt-1, d.cfg.BackoffBase, d.cfg.BackoffMax)
			d.logger.Info("retrying order",
				zap.String("order_id", ord.ID.String()),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			d.reset(ord)
			metrics.OrderRetries.Inc()
		}

		lastErr = d.runner.Run(ctx, ord)
		if lastErr == nil {
			d.ack(ord)
			metrics.OrdersCompleted.WithLabelValues("confirmed").Inc()
			metrics.OrderDuration.Observe(time.Since(start).Seconds())
			return
		}
		if ctx.Err() != nil {
			return
		}
	}

	d.mu.Lock()
	d.failed[ord.ID] = lastErr.Error()
	d.mu.Unlock()
	d.ack(ord)
	metrics.OrdersCompleted.WithLabelValues("failed").Inc()
	metrics.OrderDuration.Observe(time.Since(start).Seconds())
	d.logger.Error("order permanently failed",
		zap.String("order_id", ord.ID.String()),
		zap.Int("attempts", d.cfg.MaxAttempts),
		zap.Error(lastErr),
	)
}

// reset rewinds the order for a full pipeline restart. Metadata from the
// failed attempt is discarded, which is the documented retry caveat.
func (d *Dispatcher) reset(ord *order.Order) {
	ord.Status = order.StatusQueued
	ord.Meta = order.Meta{}
	ord.UpdatedAt = time.Now()
}

func (d *Dispatcher) ack(ord *order.Order) {
	if d.journal == nil {
		return
	}
	if err := d.journal.Ack(ord.ID); err != nil {
		d.logger.Warn("acknowledging journal entry", zap.String("order_id", ord.ID.String()), zap.Error(err))
	}
}
