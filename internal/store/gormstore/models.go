package gormstore

import (
	"time"

	"github.com/DoyleJ11/initiative-tracker/internal/encounter"
	"github.com/google/uuid"
)

// encounterRow and creatureRow mirror the tables the CRUD backend owns.
type encounterRow struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name            string    `gorm:"size:255;not null"`
	BackgroundImage *string   `gorm:"size:255"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Creatures       []creatureRow `gorm:"foreignKey:EncounterID;constraint:OnDelete:CASCADE"`
}

func (encounterRow) TableName() string { return "encounters" }

type creatureRow struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	EncounterID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Name         string    `gorm:"size:255;not null"`
	Initiative   int       `gorm:"not null"`
	CreatureType string    `gorm:"not null"`
	ImageURL     *string   `gorm:"size:255"`
	CreatedAt    time.Time
}

func (creatureRow) TableName() string { return "creatures" }

func (r encounterRow) toDomain() encounter.Encounter {
	return encounter.Encounter{
		ID:              r.ID.String(),
		Name:            r.Name,
		BackgroundImage: deref(r.BackgroundImage),
	}
}

func (r creatureRow) toDomain() encounter.Creature {
	return encounter.Creature{
		ID:         r.ID.String(),
		Name:       r.Name,
		Initiative: r.Initiative,
		Type:       encounter.CreatureType(r.CreatureType),
		ImageURL:   deref(r.ImageURL),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
