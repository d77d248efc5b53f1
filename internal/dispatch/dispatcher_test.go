package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solrouter/swapflow/internal/order"
)

// scriptedRunner fails a fixed number of times before succeeding, recording
// the time and order state of every attempt.
type scriptedRunner struct {
	mu       sync.Mutex
	failures int
	attempts []time.Time
	states   []order.Status
	block    chan struct{} // if set, Run blocks until closed
	running  int32
	maxSeen  int32
}

func (r *scriptedRunner) Run(ctx context.Context, ord *order.Order) error {
	now := atomic.AddInt32(&r.running, 1)
	for {
		max := atomic.LoadInt32(&r.maxSeen)
		if now <= max || atomic.CompareAndSwapInt32(&r.maxSeen, max, now) {
			break
		}
	}
	defer atomic.AddInt32(&r.running, -1)

	r.mu.Lock()
	r.attempts = append(r.attempts, time.Now())
	r.states = append(r.states, ord.Status)
	remaining := r.failures
	if remaining > 0 {
		r.failures--
	}
	r.mu.Unlock()

	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if remaining > 0 {
		ord.Status = order.StatusFailed
		ord.Meta.Error = "forced failure"
		return errors.New("forced failure")
	}
	ord.Status = order.StatusConfirmed
	return nil
}

func (r *scriptedRunner) attemptCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}

func testRequest() order.Request {
	return order.Request{
		Side:     order.SideBuy,
		TokenIn:  "USDC",
		TokenOut: "SOL",
		Amount:   decimal.NewFromInt(100),
		Slippage: 0.005,
	}
}

func newDispatcher(t *testing.T, cfg Config, r Runner) (*Dispatcher, context.CancelFunc) {
	t.Helper()
	d := New(cfg, r, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(ctx))
	t.Cleanup(func() {
		cancel()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		d.Shutdown(shutdownCtx)
	})
	return d, cancel
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	d, _ := newDispatcher(t, Config{}, &scriptedRunner{})

	req := testRequest()
	req.Amount = decimal.Zero
	_, err := d.Submit(context.Background(), req)
	require.Error(t, err)
	var verr *order.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestSubmitReturnsImmediately(t *testing.T) {
	r := &scriptedRunner{block: make(chan struct{})}
	d, _ := newDispatcher(t, Config{Workers: 1}, r)

	start := time.Now()
	id, err := d.Submit(context.Background(), testRequest())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	close(r.block)
}

func TestRetryBoundAndBackoff(t *testing.T) {
	r := &scriptedRunner{failures: 100} // never succeeds
	d, _ := newDispatcher(t, Config{
		Workers:     1,
		MaxAttempts: 3,
		BackoffBase: 20 * time.Millisecond,
		BackoffMax:  time.Second,
	}, r)

	id, err := d.Submit(context.Background(), testRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, failed := d.Failed(id)
		return failed
	}, 5*time.Second, 10*time.Millisecond)

	// exactly the configured number of attempts
	assert.Equal(t, 3, r.attemptCount())

	// each retry is separated by a strictly increasing delay
	r.mu.Lock()
	gap1 := r.attempts[1].Sub(r.attempts[0])
	gap2 := r.attempts[2].Sub(r.attempts[1])
	r.mu.Unlock()
	assert.GreaterOrEqual(t, gap1, 20*time.Millisecond)
	assert.Greater(t, gap2, gap1)

	// permanently failed orders stay recorded
	reason, ok := d.Failed(id)
	assert.True(t, ok)
	assert.Equal(t, "forced failure", reason)
}

func TestRetryRestartsFromQueued(t *testing.T) {
	r := &scriptedRunner{failures: 2}
	d, _ := newDispatcher(t, Config{
		Workers:     1,
		MaxAttempts: 3,
		BackoffBase: 5 * time.Millisecond,
	}, r)

	_, err := d.Submit(context.Background(), testRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return r.attemptCount() == 3
	}, 5*time.Second, 5*time.Millisecond)

	// every attempt sees a fresh queued order: full pipeline restart
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.states {
		assert.Equal(t, order.StatusQueued, s, "attempt %d started from %s", i+1, s)
	}
}

func TestSuccessfulOrderLeavesNoFailureRecord(t *testing.T) {
	r := &scriptedRunner{}
	d, _ := newDispatcher(t, Config{Workers: 2}, r)

	id, err := d.Submit(context.Background(), testRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return r.attemptCount() == 1
	}, 5*time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	_, failed := d.Failed(id)
	assert.False(t, failed)
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	r := &scriptedRunner{block: make(chan struct{})}
	d, _ := newDispatcher(t, Config{Workers: 3, QueueSize: 64}, r)

	for i := 0; i < 10; i++ {
		_, err := d.Submit(context.Background(), testRequest())
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&r.running) == 3
	}, 2*time.Second, 5*time.Millisecond)

	// the other seven wait in the queue
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&r.maxSeen))

	close(r.block)
	require.Eventually(t, func() bool {
		return r.attemptCount() == 10
	}, 5*time.Second, 5*time.Millisecond)
}

func TestJournalReplaysInFlightOrders(t *testing.T) {
	dir := t.TempDir()

	journal, err := OpenJournal(dir)
	require.NoError(t, err)

	ord := order.New(testRequest())
	require.NoError(t, journal.Append(ord))
	require.NoError(t, journal.Close())

	// a new dispatcher over the same journal re-dispatches the order
	journal, err = OpenJournal(dir)
	require.NoError(t, err)

	r := &scriptedRunner{}
	d := New(Config{Workers: 1}, r, journal, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(ctx))

	require.Eventually(t, func() bool {
		return r.attemptCount() == 1
	}, 5*time.Second, 5*time.Millisecond)

	// confirmed orders are acknowledged out of the journal
	require.Eventually(t, func() bool {
		pending, err := journal.Pending()
		return err == nil && len(pending) == 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	require.NoError(t, d.Shutdown(shutdownCtx))
}

func TestBackoffFor(t *testing.T) {
	base := 500 * time.Millisecond
	max := 30 * time.Second

	assert.Equal(t, 500*time.Millisecond, backoffFor(1, base, max))
	assert.Equal(t, time.Second, backoffFor(2, base, max))
	assert.Equal(t, 2*time.Second, backoffFor(3, base, max))
	assert.Equal(t, max, backoffFor(10, base, max))
	assert.Equal(t, max, backoffFor(40, base, max))

	// strictly increasing until the cap
	prev := time.Duration(0)
	for i := 1; i <= 6; i++ {
		d := backoffFor(i, base, max)
		assert.Greater(t, d, prev)
		prev = d
	}
}
