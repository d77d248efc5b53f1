package settlement

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solrouter/swapflow/internal/order"
)

func chosenOrder(price string) *order.Order {
	ord := order.New(order.Request{
		Side:     order.SideBuy,
		TokenIn:  "USDC",
		TokenOut: "SOL",
		Amount:   decimal.RequireFromString("100"),
		Slippage: 0.01,
	})
	ord.Meta.Chosen = &order.Quote{
		Price: decimal.RequireFromString(price),
		Fee:   decimal.RequireFromString("0.003"),
		Venue: order.VenueRaydium,
	}
	return ord
}

func TestExecuteProducesReceipt(t *testing.T) {
	e := NewSimExecutor(SimConfig{RevertRate: 0}, 1, zap.NewNop())
	ord := chosenOrder("1.05")

	rcpt, err := e.Execute(context.Background(), order.VenueRaydium, ord, 0.01)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(rcpt.Ref, "0x"))
	assert.Len(t, rcpt.Ref, 34)

	// executed price stays inside the slippage half-band around the quote
	lo := decimal.RequireFromString("1.05").Mul(decimal.NewFromFloat(1 - 0.005))
	hi := decimal.RequireFromString("1.05").Mul(decimal.NewFromFloat(1 + 0.005))
	assert.True(t, rcpt.ExecutedPrice.GreaterThanOrEqual(lo), "executed %s below %s", rcpt.ExecutedPrice, lo)
	assert.True(t, rcpt.ExecutedPrice.LessThanOrEqual(hi), "executed %s above %s", rcpt.ExecutedPrice, hi)
}

func TestExecuteAlwaysReverts(t *testing.T) {
	e := NewSimExecutor(SimConfig{RevertRate: 1}, 7, zap.NewNop())
	ord := chosenOrder("1.05")

	_, err := e.Execute(context.Background(), order.VenueMeteora, ord, 0.01)
	require.ErrorIs(t, err, ErrSettlementReverted)
	assert.Contains(t, err.Error(), "meteora")
}

func TestExecuteRequiresChosenQuote(t *testing.T) {
	e := NewSimExecutor(SimConfig{}, 1, zap.NewNop())
	ord := order.New(order.Request{
		Side:     order.SideBuy,
		TokenIn:  "USDC",
		TokenOut: "SOL",
		Amount:   decimal.RequireFromString("1"),
	})

	_, err := e.Execute(context.Background(), order.VenueRaydium, ord, 0.01)
	assert.Error(t, err)
}

func TestExecuteHonorsContext(t *testing.T) {
	e := NewSimExecutor(SimConfig{MinDelay: time.Second, MaxDelay: 2 * time.Second}, 1, zap.NewNop())
	ord := chosenOrder("1.05")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Execute(ctx, order.VenueRaydium, ord, 0.01)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestGenSettlementRefUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		ref := genSettlementRef()
		assert.False(t, seen[ref])
		seen[ref] = true
	}
}
