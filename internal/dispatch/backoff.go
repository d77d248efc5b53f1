package dispatch

import "time"

// backoffFor returns the delay before retry attempt n (1-based), doubling
// from the base and capped at max. Delays are strictly increasing until the
// cap is reached.
func backoffFor(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		return base
	}
	// 2^30 seconds already dwarfs any sane cap.
	if attempt > 30 {
		return max
	}
	d := base * time.Duration(1<<(attempt-1))
	if d > max {
		return max
	}
	return d
}
