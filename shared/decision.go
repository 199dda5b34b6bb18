package shared

import "fmt"

// DecisionAction represents the action a user takes on an iteration.
type DecisionAction int

const (
	Buy DecisionAction = iota
	Sell
	Skip
)

// String stringifies the provided decision action.
func (a DecisionAction) String() string {
	switch a {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	case Skip:
		return "skip"
	default:
		return "unknown"
	}
}

// ParseDecisionAction parses the provided decision action string.
func ParseDecisionAction(s string) (DecisionAction, error) {
	for _, a := range []DecisionAction{Buy, Sell, Skip} {
		if a.String() == s {
			return a, nil
		}
	}

	return 0, fmt.Errorf("%w: unknown decision action %q", ErrWrongDecision, s)
}
