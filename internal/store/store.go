package store

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/DoyleJ11/initiative-tracker/internal/encounter"
)

var ErrNotFound = errors.New("not found")
var ErrValidation = errors.New("validation failed")
var ErrNetwork = errors.New("network error")

const (
	MaxNameLength = 255
	MinInitiative = 0
	MaxInitiative = 100
)

// Store is the persistence side the control window talks to. The sync
// protocol never writes state that this has not accepted.
//
// Creature writes are scoped to an encounter: a creature id that belongs to
// another encounter is reported as ErrNotFound and left untouched.
type Store interface {
	GetEncounter(ctx context.Context, id string) (encounter.Encounter, []encounter.Creature, error)
	UpdateEncounter(ctx context.Context, id string, patch EncounterPatch) (encounter.Encounter, error)
	CreateCreature(ctx context.Context, encounterID string, in CreatureInput) (encounter.Creature, error)
	UpdateCreature(ctx context.Context, encounterID, id string, patch CreaturePatch) (encounter.Creature, error)
	DeleteCreature(ctx context.Context, encounterID, id string) error
}

type CreatureInput struct {
	Name       string                 `json:"name" yaml:"name"`
	Initiative int                    `json:"initiative" yaml:"initiative"`
	Type       encounter.CreatureType `json:"creature_type" yaml:"creature_type"`
	ImageURL   string                 `json:"image_url,omitempty" yaml:"image_url"`
}

func (in CreatureInput) Validate() error {
	if err := validateName(in.Name); err != nil {
		return err
	}
	if err := validateInitiative(in.Initiative); err != nil {
		return err
	}
	return validateType(in.Type)
}

// CreaturePatch changes only the fields that are set.
type CreaturePatch struct {
	Name       *string                 `json:"name,omitempty"`
	Initiative *int                    `json:"initiative,omitempty"`
	Type       *encounter.CreatureType `json:"creature_type,omitempty"`
	ImageURL   *string                 `json:"image_url,omitempty"`
}

func (p CreaturePatch) Validate() error {
	if p.Name != nil {
		if err := validateName(*p.Name); err != nil {
			return err
		}
	}
	if p.Initiative != nil {
		if err := validateInitiative(*p.Initiative); err != nil {
			return err
		}
	}
	if p.Type != nil {
		return validateType(*p.Type)
	}
	return nil
}

func (p CreaturePatch) Apply(c encounter.Creature) encounter.Creature {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Initiative != nil {
		c.Initiative = *p.Initiative
	}
	if p.Type != nil {
		c.Type = *p.Type
	}
	if p.ImageURL != nil {
		c.ImageURL = *p.ImageURL
	}
	return c
}

type EncounterPatch struct {
	Name            *string `json:"name,omitempty"`
	BackgroundImage *string `json:"background_image,omitempty"`
}

func (p EncounterPatch) Validate() error {
	if p.Name != nil {
		return validateName(*p.Name)
	}
	return nil
}

func (p EncounterPatch) Apply(e encounter.Encounter) encounter.Encounter {
	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.BackgroundImage != nil {
		e.BackgroundImage = *p.BackgroundImage
	}
	return e
}

func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < 1 || n > MaxNameLength {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrValidation, MaxNameLength)
	}
	return nil
}

func validateInitiative(v int) error {
	if v < MinInitiative || v > MaxInitiative {
		return fmt.Errorf("%w: initiative must be between %d and %d", ErrValidation, MinInitiative, MaxInitiative)
	}
	return nil
}

func validateType(t encounter.CreatureType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: unknown creature type %q", ErrValidation, t)
	}
	return nil
}
