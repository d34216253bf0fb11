package retry

const (
	actionAck    = "ack"
	actionReject = "reject"
)

// guard enforces call bounds of terminal actions on a single message instance.
// It is owned by one Handle and never shared.
type guard struct {
	correlationID string
	calls         map[string]int
}

func newGuard(correlationID string) *guard {
	return &guard{correlationID: correlationID, calls: make(map[string]int, 2)}
}

// check counts a call of action and panics with *GuardViolation once the
// tally exceeds max. It must run before any side effect of the action.
func (g *guard) check(action string, max int) {
	g.calls[action]++
	if calls := g.calls[action]; calls > max {
		panic(&GuardViolation{
			Action:        action,
			Calls:         calls,
			Max:           max,
			CorrelationID: g.correlationID,
		})
	}
}
