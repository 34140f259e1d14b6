package memstore

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/DoyleJ11/initiative-tracker/internal/encounter"
	"github.com/DoyleJ11/initiative-tracker/internal/store"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Store keeps encounters in memory. Creatures stay in insertion order, the
// same order a database returns them by creation time.
type Store struct {
	mu         sync.RWMutex
	encounters map[string]encounter.Encounter
	creatures  map[string]encounter.Creature
	owner      map[string]string   // creature id -> encounter id
	order      map[string][]string // encounter id -> creature ids
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		encounters: make(map[string]encounter.Encounter),
		creatures:  make(map[string]encounter.Creature),
		owner:      make(map[string]string),
		order:      make(map[string][]string),
	}
}

// AddEncounter inserts an encounter with its creatures and returns it. A
// missing id is generated.
func (s *Store) AddEncounter(enc encounter.Encounter, creatures ...store.CreatureInput) (encounter.Encounter, []encounter.Creature, error) {
	if err := (store.EncounterPatch{Name: &enc.Name}).Validate(); err != nil {
		return encounter.Encounter{}, nil, err
	}
	for _, in := range creatures {
		if err := in.Validate(); err != nil {
			return encounter.Encounter{}, nil, err
		}
	}
	if enc.ID == "" {
		enc.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.encounters[enc.ID] = enc
	out := make([]encounter.Creature, 0, len(creatures))
	for _, in := range creatures {
		out = append(out, s.insertLocked(enc.ID, in))
	}
	return enc, out, nil
}

func (s *Store) GetEncounter(ctx context.Context, id string) (encounter.Encounter, []encounter.Creature, error) {
	if err := ctx.Err(); err != nil {
		return encounter.Encounter{}, nil, fmt.Errorf("%w: %v", store.ErrNetwork, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	enc, ok := s.encounters[id]
	if !ok {
		return encounter.Encounter{}, nil, fmt.Errorf("encounter %s: %w", id, store.ErrNotFound)
	}
	creatures := make([]encounter.Creature, 0, len(s.order[id]))
	for _, cid := range s.order[id] {
		creatures = append(creatures, s.creatures[cid])
	}
	return enc, creatures, nil
}

func (s *Store) UpdateEncounter(ctx context.Context, id string, patch store.EncounterPatch) (encounter.Encounter, error) {
	if err := ctx.Err(); err != nil {
		return encounter.Encounter{}, fmt.Errorf("%w: %v", store.ErrNetwork, err)
	}
	if err := patch.Validate(); err != nil {
		return encounter.Encounter{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	enc, ok := s.encounters[id]
	if !ok {
		return encounter.Encounter{}, fmt.Errorf("encounter %s: %w", id, store.ErrNotFound)
	}
	enc = patch.Apply(enc)
	s.encounters[id] = enc
	return enc, nil
}

func (s *Store) CreateCreature(ctx context.Context, encounterID string, in store.CreatureInput) (encounter.Creature, error) {
	if err := ctx.Err(); err != nil {
		return encounter.Creature{}, fmt.Errorf("%w: %v", store.ErrNetwork, err)
	}
	if err := in.Validate(); err != nil {
		return encounter.Creature{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.encounters[encounterID]; !ok {
		return encounter.Creature{}, fmt.Errorf("encounter %s: %w", encounterID, store.ErrNotFound)
	}
	return s.insertLocked(encounterID, in), nil
}

func (s *Store) UpdateCreature(ctx context.Context, encounterID, id string, patch store.CreaturePatch) (encounter.Creature, error) {
	if err := ctx.Err(); err != nil {
		return encounter.Creature{}, fmt.Errorf("%w: %v", store.ErrNetwork, err)
	}
	if err := patch.Validate(); err != nil {
		return encounter.Creature{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ownsLocked(encounterID, id) {
		return encounter.Creature{}, fmt.Errorf("creature %s in encounter %s: %w", id, encounterID, store.ErrNotFound)
	}
	c := s.creatures[id]
	c = patch.Apply(c)
	s.creatures[id] = c
	return c, nil
}

func (s *Store) DeleteCreature(ctx context.Context, encounterID, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrNetwork, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ownsLocked(encounterID, id) {
		return fmt.Errorf("creature %s in encounter %s: %w", id, encounterID, store.ErrNotFound)
	}
	delete(s.creatures, id)
	delete(s.owner, id)
	s.order[encounterID] = slices.DeleteFunc(s.order[encounterID], func(cid string) bool { return cid == id })
	return nil
}

func (s *Store) ownsLocked(encounterID, id string) bool {
	owner, ok := s.owner[id]
	return ok && owner == encounterID
}

func (s *Store) insertLocked(encounterID string, in store.CreatureInput) encounter.Creature {
	c := encounter.Creature{
		ID:         uuid.NewString(),
		Name:       in.Name,
		Initiative: in.Initiative,
		Type:       in.Type,
		ImageURL:   in.ImageURL,
	}
	s.creatures[c.ID] = c
	s.owner[c.ID] = encounterID
	s.order[encounterID] = append(s.order[encounterID], c.ID)
	return c
}

// Fixture is the YAML layout accepted by LoadFixture.
type Fixture struct {
	Encounters []struct {
		ID              string                `yaml:"id"`
		Name            string                `yaml:"name"`
		BackgroundImage string                `yaml:"background_image"`
		Creatures       []store.CreatureInput `yaml:"creatures"`
	} `yaml:"encounters"`
}

// LoadFixture seeds s from a YAML file.
func (s *Store) LoadFixture(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}
	return s.Seed(data)
}

func (s *Store) Seed(data []byte) error {
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return fmt.Errorf("parse fixture: %w", err)
	}
	for _, e := range fx.Encounters {
		enc := encounter.Encounter{ID: e.ID, Name: e.Name, BackgroundImage: e.BackgroundImage}
		if _, _, err := s.AddEncounter(enc, e.Creatures...); err != nil {
			return fmt.Errorf("seed encounter %q: %w", e.Name, err)
		}
	}
	return nil
}
