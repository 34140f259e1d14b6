package turnclock

// Clock tracks whose turn it is and which round the encounter is in.
// TurnIndex points into the creature list sorted by descending initiative.
type Clock struct {
	TurnIndex   int
	RoundNumber int
}

func New() Clock {
	return Clock{TurnIndex: 0, RoundNumber: 1}
}

func (c *Clock) Advance(creatureCount int) {
	if creatureCount <= 0 {
		return
	}
	next := (c.TurnIndex + 1) % creatureCount
	if next == 0 {
		c.RoundNumber++
	}
	c.TurnIndex = next
}

func (c *Clock) Retreat(creatureCount int) {
	if creatureCount <= 0 {
		return
	}
	next := (c.TurnIndex - 1 + creatureCount) % creatureCount
	if c.TurnIndex == 0 && next == creatureCount-1 {
		c.RoundNumber = max(1, c.RoundNumber-1)
	}
	c.TurnIndex = next
}

func (c *Clock) Reset() {
	*c = New()
}

// ClampTo moves the turn back to the top of the order when the list shrank
// below the current index. The round is left alone.
func (c *Clock) ClampTo(creatureCount int) {
	if c.TurnIndex >= creatureCount {
		c.TurnIndex = 0
	}
}
