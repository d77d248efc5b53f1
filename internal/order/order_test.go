package order

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() Request {
	return Request{
		Side:     SideBuy,
		TokenIn:  "USDC",
		TokenOut: "SOL",
		Amount:   decimal.NewFromInt(100),
		Slippage: 0.005,
	}
}

func TestRequestValidate(t *testing.T) {
	require.NoError(t, validRequest().Validate())

	cases := []struct {
		name   string
		mutate func(*Request)
		field  string
	}{
		{"bad side", func(r *Request) { r.Side = "hold" }, "side"},
		{"unknown token in", func(r *Request) { r.TokenIn = "DOGE" }, "tokenIn"},
		{"unknown token out", func(r *Request) { r.TokenOut = "DOGE" }, "tokenOut"},
		{"same tokens", func(r *Request) { r.TokenOut = "usdc" }, "tokenOut"},
		{"zero amount", func(r *Request) { r.Amount = decimal.Zero }, "amount"},
		{"negative amount", func(r *Request) { r.Amount = decimal.NewFromInt(-5) }, "amount"},
		{"negative slippage", func(r *Request) { r.Slippage = -0.01 }, "slippage"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			err := req.Validate()
			require.Error(t, err)
			verr, ok := err.(*ValidationError)
			require.True(t, ok, "expected *ValidationError, got %T", err)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestStatusForwardOnly(t *testing.T) {
	forward := []Status{StatusQueued, StatusRouting, StatusBuilding, StatusSubmitted, StatusConfirmed}
	for i := 0; i < len(forward)-1; i++ {
		assert.True(t, forward[i].CanTransition(forward[i+1]), "%s -> %s", forward[i], forward[i+1])
	}

	// no skipping, no regression
	assert.False(t, StatusQueued.CanTransition(StatusBuilding))
	assert.False(t, StatusRouting.CanTransition(StatusQueued))
	assert.False(t, StatusSubmitted.CanTransition(StatusRouting))

	// failed is reachable from every non-terminal state only
	for _, s := range []Status{StatusQueued, StatusRouting, StatusBuilding, StatusSubmitted} {
		assert.True(t, s.CanTransition(StatusFailed), "%s -> failed", s)
	}
	assert.False(t, StatusConfirmed.CanTransition(StatusFailed))
	assert.False(t, StatusFailed.CanTransition(StatusRouting))
	assert.False(t, StatusFailed.CanTransition(StatusFailed))

	// routing may re-enter itself for the two-phase notification
	assert.True(t, StatusRouting.CanTransition(StatusRouting))
	assert.False(t, StatusBuilding.CanTransition(StatusBuilding))
}

// Meta fields only appear on the wire once a stage has populated them: the
// queued event carries an empty meta object, and executedPrice shows up at
// confirmed alongside the settlement ref.
func TestEventMetaWireShape(t *testing.T) {
	ord := New(validRequest())

	payload, err := json.Marshal(ord.Snapshot())
	require.NoError(t, err)
	var evt map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &evt))
	assert.JSONEq(t, `{}`, string(evt["meta"]))

	ord.Status = StatusConfirmed
	ord.Meta.SettlementRef = "0xabc"
	executed := decimal.RequireFromString("1.0432")
	ord.Meta.ExecutedPrice = &executed

	payload, err = json.Marshal(ord.Snapshot())
	require.NoError(t, err)
	var confirmed struct {
		Meta map[string]json.RawMessage `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(payload, &confirmed))
	assert.Contains(t, confirmed.Meta, "settlementRef")
	assert.Contains(t, confirmed.Meta, "executedPrice")
	assert.NotContains(t, confirmed.Meta, "error")
}

func TestSnapshotCopiesMeta(t *testing.T) {
	ord := New(validRequest())
	assert.Equal(t, StatusQueued, ord.Status)

	evt := ord.Snapshot()
	assert.Equal(t, ord.ID, evt.OrderID)
	assert.Equal(t, StatusQueued, evt.Status)
	assert.Nil(t, evt.Meta.Chosen)

	q := Quote{Price: decimal.NewFromFloat(1.04), Fee: decimal.NewFromFloat(0.002), Venue: VenueMeteora}
	ord.Meta.Chosen = &q
	evt2 := ord.Snapshot()
	require.NotNil(t, evt2.Meta.Chosen)
	assert.Equal(t, VenueMeteora, evt2.Meta.Chosen.Venue)
	// the earlier snapshot is unaffected
	assert.Nil(t, evt.Meta.Chosen)
}
