package encounter

import (
	"slices"

	"github.com/DoyleJ11/initiative-tracker/internal/turnclock"
)

const (
	DefaultTitle = "D&D Initiative Tracker - Display"
	titleSuffix  = " - D&D Initiative Tracker"
)

// Snapshot is the full state the control window shares with the display.
// Creatures travel unsorted; TurnIndex only means something after
// SortByInitiative has been applied on the receiving side.
type Snapshot struct {
	Encounter     Encounter  `json:"encounter"`
	Creatures     []Creature `json:"creatures"`
	TurnIndex     int        `json:"currentTurn"`
	RoundNumber   int        `json:"currentRound"`
	Transitioning bool       `json:"fade"`
}

func NewSnapshot(enc Encounter, creatures []Creature) Snapshot {
	clock := turnclock.New()
	s := Snapshot{
		Encounter:   enc,
		Creatures:   creatures,
		TurnIndex:   clock.TurnIndex,
		RoundNumber: clock.RoundNumber,
	}
	return s.Clone()
}

// Clone copies the creature slice so the result shares no memory with s.
func (s Snapshot) Clone() Snapshot {
	s.Creatures = slices.Clone(s.Creatures)
	if s.Creatures == nil {
		s.Creatures = []Creature{}
	}
	return s
}

func (s Snapshot) Clock() turnclock.Clock {
	return turnclock.Clock{TurnIndex: s.TurnIndex, RoundNumber: s.RoundNumber}
}

func (s *Snapshot) SetClock(c turnclock.Clock) {
	s.TurnIndex = c.TurnIndex
	s.RoundNumber = c.RoundNumber
}

// Title is the window title for the display.
func (s Snapshot) Title() string {
	if s.Encounter.Name == "" {
		return DefaultTitle
	}
	return s.Encounter.Name + titleSuffix
}

// Lineup is the sorted order plus the three highlighted slots. Slots are nil
// when there is nobody to show.
type Lineup struct {
	Order   []Creature
	Current *Creature
	Next    *Creature
	OnDeck  *Creature
}

func (s Snapshot) Lineup() Lineup {
	order := SortByInitiative(s.Creatures)
	l := Lineup{Order: order}
	n := len(order)
	if n == 0 || s.TurnIndex < 0 || s.TurnIndex >= n {
		return l
	}
	l.Current = &order[s.TurnIndex]
	l.Next = &order[(s.TurnIndex+1)%n]
	l.OnDeck = &order[(s.TurnIndex+2)%n]
	return l
}
