package turnclock

import "errors"

var ErrUnknownTransition = errors.New("unknown transition")

type Transition string

const (
	TransitionAdvance Transition = "advance"
	TransitionRetreat Transition = "retreat"
	TransitionReset   Transition = "reset"
)

// Apply runs t against c for a list of creatureCount creatures.
func Apply(c Clock, t Transition, creatureCount int) (Clock, error) {
	switch t {
	case TransitionAdvance:
		c.Advance(creatureCount)
	case TransitionRetreat:
		c.Retreat(creatureCount)
	case TransitionReset:
		c.Reset()
	default:
		return c, ErrUnknownTransition
	}
	return c, nil
}

func ParseTransition(s string) (Transition, bool) {
	switch Transition(s) {
	case TransitionAdvance, TransitionRetreat, TransitionReset:
		return Transition(s), true
	default:
		return "", false
	}
}
