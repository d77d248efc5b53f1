package order

import (
	"fmt"
	"strings"
)

// ValidationError rejects a malformed request before it is enqueued. It is
// never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order request: %s %s", e.Field, e.Reason)
}

// knownAssets is the set of asset identifiers the venue quotes. A production
// deployment would source this from the token registry.
var knownAssets = map[string]struct{}{
	"SOL":  {},
	"USDC": {},
	"USDT": {},
	"RAY":  {},
	"JUP":  {},
	"BONK": {},
}

// KnownAsset reports whether the symbol is quotable.
func KnownAsset(symbol string) bool {
	_, ok := knownAssets[strings.ToUpper(symbol)]
	return ok
}

// Validate checks the request against the submission contract: positive
// amount, distinct known assets, a recognised side and a non-negative
// slippage tolerance.
func (r Request) Validate() error {
	if r.Side != SideBuy && r.Side != SideSell {
		return &ValidationError{Field: "side", Reason: "must be buy or sell"}
	}
	if !KnownAsset(r.TokenIn) {
		return &ValidationError{Field: "tokenIn", Reason: fmt.Sprintf("unknown asset %q", r.TokenIn)}
	}
	if !KnownAsset(r.TokenOut) {
		return &ValidationError{Field: "tokenOut", Reason: fmt.Sprintf("unknown asset %q", r.TokenOut)}
	}
	if strings.EqualFold(r.TokenIn, r.TokenOut) {
		return &ValidationError{Field: "tokenOut", Reason: "must differ from tokenIn"}
	}
	if !r.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if r.Slippage < 0 {
		return &ValidationError{Field: "slippage", Reason: "must be >= 0"}
	}
	return nil
}
