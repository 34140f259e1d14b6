package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/DoyleJ11/initiative-tracker/internal/encounter"
	"github.com/DoyleJ11/initiative-tracker/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store reads and writes encounters in Postgres.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

var _ store.Store = (*Store)(nil)

func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return New(db, log), nil
}

func New(db *gorm.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}
}

// Migrate creates the tables for local development. In production the CRUD
// backend owns the schema.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&encounterRow{}, &creatureRow{})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) GetEncounter(ctx context.Context, id string) (encounter.Encounter, []encounter.Creature, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return encounter.Encounter{}, nil, fmt.Errorf("encounter %s: %w", id, store.ErrNotFound)
	}

	var row encounterRow
	err = s.db.WithContext(ctx).
		Preload("Creatures", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&row, "id = ?", uid).Error
	if err != nil {
		return encounter.Encounter{}, nil, s.classify("get encounter", err)
	}

	creatures := make([]encounter.Creature, 0, len(row.Creatures))
	for _, c := range row.Creatures {
		creatures = append(creatures, c.toDomain())
	}
	return row.toDomain(), creatures, nil
}

func (s *Store) UpdateEncounter(ctx context.Context, id string, patch store.EncounterPatch) (encounter.Encounter, error) {
	if err := patch.Validate(); err != nil {
		return encounter.Encounter{}, err
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return encounter.Encounter{}, fmt.Errorf("encounter %s: %w", id, store.ErrNotFound)
	}

	var row encounterRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", uid).Error; err != nil {
		return encounter.Encounter{}, s.classify("update encounter", err)
	}
	updated := patch.Apply(row.toDomain())
	row.Name = updated.Name
	row.BackgroundImage = optional(updated.BackgroundImage)
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return encounter.Encounter{}, s.classify("update encounter", err)
	}
	return row.toDomain(), nil
}

func (s *Store) CreateCreature(ctx context.Context, encounterID string, in store.CreatureInput) (encounter.Creature, error) {
	if err := in.Validate(); err != nil {
		return encounter.Creature{}, err
	}
	encID, err := uuid.Parse(encounterID)
	if err != nil {
		return encounter.Creature{}, fmt.Errorf("encounter %s: %w", encounterID, store.ErrNotFound)
	}

	row := creatureRow{
		ID:           uuid.New(),
		EncounterID:  encID,
		Name:         in.Name,
		Initiative:   in.Initiative,
		CreatureType: string(in.Type),
		ImageURL:     optional(in.ImageURL),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return encounter.Creature{}, s.classify("create creature", err)
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateCreature(ctx context.Context, encounterID, id string, patch store.CreaturePatch) (encounter.Creature, error) {
	if err := patch.Validate(); err != nil {
		return encounter.Creature{}, err
	}
	encID, uid, err := parseCreatureIDs(encounterID, id)
	if err != nil {
		return encounter.Creature{}, err
	}

	var row creatureRow
	if err := s.db.WithContext(ctx).Scopes(ownedCreature(encID, uid)).First(&row).Error; err != nil {
		return encounter.Creature{}, s.classify("update creature", err)
	}
	applyCreaturePatch(&row, patch)
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return encounter.Creature{}, s.classify("update creature", err)
	}
	return row.toDomain(), nil
}

func (s *Store) DeleteCreature(ctx context.Context, encounterID, id string) error {
	encID, uid, err := parseCreatureIDs(encounterID, id)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Scopes(ownedCreature(encID, uid)).Delete(&creatureRow{})
	if res.Error != nil {
		return s.classify("delete creature", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("creature %s in encounter %s: %w", id, encounterID, store.ErrNotFound)
	}
	return nil
}

// ownedCreature limits a query to one creature of one encounter.
func ownedCreature(encounterID, id uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ? AND encounter_id = ?", id, encounterID)
	}
}

func parseCreatureIDs(encounterID, id string) (uuid.UUID, uuid.UUID, error) {
	encID, err := uuid.Parse(encounterID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("encounter %s: %w", encounterID, store.ErrNotFound)
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("creature %s: %w", id, store.ErrNotFound)
	}
	return encID, uid, nil
}

func applyCreaturePatch(row *creatureRow, patch store.CreaturePatch) {
	c := patch.Apply(row.toDomain())
	row.Name = c.Name
	row.Initiative = c.Initiative
	row.CreatureType = string(c.Type)
	if patch.ImageURL != nil {
		row.ImageURL = optional(c.ImageURL)
	}
}

// classify maps driver errors onto the store sentinels. Constraint and data
// errors are the caller's fault; anything else is treated as the database
// being unreachable.
func (s *Store) classify(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, store.ErrNetwork, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22", "23":
			if pgErr.Code == "23503" {
				return fmt.Errorf("%s: %w: %s", op, store.ErrNotFound, pgErr.Detail)
			}
			return fmt.Errorf("%s: %w: %s", op, store.ErrValidation, pgErr.Message)
		}
	}

	s.log.Error("database error", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w: %v", op, store.ErrNetwork, err)
}
