package order

// Status represents the stage of an order in the execution pipeline.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRouting   Status = "routing"
	StatusBuilding  Status = "building"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// rank orders the forward progression of an order. Failed sits outside the
// sequence and is reachable from any non-terminal state.
var rank = map[Status]int{
	StatusQueued:    0,
	StatusRouting:   1,
	StatusBuilding:  2,
	StatusSubmitted: 3,
	StatusConfirmed: 4,
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// CanTransition reports whether an order may move from s to next. The
// sequence advances one stage at a time; failed is reachable from any
// non-terminal state. Re-entering the same routing state is allowed so the
// two-phase routing notification (entered routing / routing result) shares
// one status value.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	if next == s && s == StatusRouting {
		return true
	}
	curr, ok := rank[s]
	if !ok {
		return false
	}
	want, ok := rank[next]
	if !ok {
		return false
	}
	return want == curr+1
}
