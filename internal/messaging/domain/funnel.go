package domain

// Thresholds holds the account-level funnel thresholds.
type Thresholds struct {
	// Interest is the advertising-relevant message count at which the
	// "interest" level crosses.
	Interest int
}

// EvaluateFunnel returns the funnel levels that newly cross for the given
// dialog snapshot, in funnel order. It is a pure function: callers dispatch
// the returned levels and persist the dispatched flags separately.
//
// Only the count-based "interest" level is derived from message counts; the
// "qualified" and "scheduled" levels cross on CRM signals and are evaluated
// at the CRM webhook call sites with the same dispatched-once discipline.
func EvaluateFunnel(state DialogState, th Thresholds) []FunnelLevel {
	var crossed []FunnelLevel

	if !state.InterestDispatched &&
		state.PaidAttributed &&
		th.Interest > 0 &&
		state.AdMessageCount >= th.Interest {
		crossed = append(crossed, LevelInterest)
	}

	return crossed
}
