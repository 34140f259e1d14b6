package encounter

import "sort"

type CreatureType string

const (
	CreaturePlayer CreatureType = "player"
	CreatureEnemy  CreatureType = "enemy"
	CreatureAlly   CreatureType = "ally"
	CreatureOther  CreatureType = "other"
)

func (t CreatureType) Valid() bool {
	switch t {
	case CreaturePlayer, CreatureEnemy, CreatureAlly, CreatureOther:
		return true
	default:
		return false
	}
}

func (t CreatureType) Label() string {
	switch t {
	case CreaturePlayer:
		return "Player"
	case CreatureEnemy:
		return "Enemy"
	case CreatureAlly:
		return "Ally"
	default:
		return "Other"
	}
}

// Color is the badge colour the display uses for the type.
func (t CreatureType) Color() string {
	switch t {
	case CreaturePlayer:
		return "blue"
	case CreatureEnemy:
		return "red"
	case CreatureAlly:
		return "green"
	default:
		return "yellow"
	}
}

type Encounter struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	BackgroundImage string `json:"background_image,omitempty"`
}

type Creature struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Initiative int          `json:"initiative"`
	Type       CreatureType `json:"creature_type"`
	ImageURL   string       `json:"image_url,omitempty"`
}

// SortByInitiative returns a copy of creatures ordered highest initiative
// first. Equal initiatives keep their input order, so both windows agree on
// the order as long as they sort the same slice.
func SortByInitiative(creatures []Creature) []Creature {
	sorted := make([]Creature, len(creatures))
	copy(sorted, creatures)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Initiative > sorted[j].Initiative
	})
	return sorted
}

// IndexOf reports the position of id in creatures, or -1.
func IndexOf(creatures []Creature, id string) int {
	for i, c := range creatures {
		if c.ID == id {
			return i
		}
	}
	return -1
}
