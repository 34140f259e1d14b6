package memstore

import (
	"context"
	"testing"

	"github.com/DoyleJ11/initiative-tracker/internal/encounter"
	"github.com/DoyleJ11/initiative-tracker/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `
encounters:
  - id: crypt
    name: Crypt of Bones
    background_image: crypt.jpg
    creatures:
      - name: Ada
        initiative: 5
        creature_type: player
      - name: Skeleton
        initiative: 20
        creature_type: enemy
        image_url: skeleton.png
`

func TestSeedAndGet(t *testing.T) {
	s := New()
	require.NoError(t, s.Seed([]byte(fixture)))

	enc, creatures, err := s.GetEncounter(context.Background(), "crypt")
	require.NoError(t, err)
	assert.Equal(t, "Crypt of Bones", enc.Name)
	assert.Equal(t, "crypt.jpg", enc.BackgroundImage)
	require.Len(t, creatures, 2)
	assert.Equal(t, "Ada", creatures[0].Name, "insertion order is kept")
	assert.Equal(t, encounter.CreatureEnemy, creatures[1].Type)
	assert.NotEmpty(t, creatures[1].ID)
}

func TestSeed_RejectsInvalidCreature(t *testing.T) {
	s := New()
	err := s.Seed([]byte(`
encounters:
  - name: Bad
    creatures:
      - name: Dragon
        initiative: 500
        creature_type: enemy
`))
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestCreatureLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	enc, _, err := s.AddEncounter(encounter.Encounter{Name: "Ambush"})
	require.NoError(t, err)

	c, err := s.CreateCreature(ctx, enc.ID, store.CreatureInput{Name: "Goblin", Initiative: 9, Type: encounter.CreatureEnemy})
	require.NoError(t, err)

	initiative := 14
	updated, err := s.UpdateCreature(ctx, enc.ID, c.ID, store.CreaturePatch{Initiative: &initiative})
	require.NoError(t, err)
	assert.Equal(t, 14, updated.Initiative)

	require.NoError(t, s.DeleteCreature(ctx, enc.ID, c.ID))
	_, creatures, err := s.GetEncounter(ctx, enc.ID)
	require.NoError(t, err)
	assert.Empty(t, creatures)

	assert.ErrorIs(t, s.DeleteCreature(ctx, enc.ID, c.ID), store.ErrNotFound)
}

func TestCreatureWritesAreScopedToEncounter(t *testing.T) {
	ctx := context.Background()
	s := New()
	e1, _, err := s.AddEncounter(encounter.Encounter{Name: "Crypt"},
		store.CreatureInput{Name: "Ada", Initiative: 12, Type: encounter.CreaturePlayer})
	require.NoError(t, err)
	e2, goblins, err := s.AddEncounter(encounter.Encounter{Name: "Ambush"},
		store.CreatureInput{Name: "Goblin", Initiative: 9, Type: encounter.CreatureEnemy})
	require.NoError(t, err)
	goblin := goblins[0]

	name := "Hijacked"
	_, err = s.UpdateCreature(ctx, e1.ID, goblin.ID, store.CreaturePatch{Name: &name})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteCreature(ctx, e1.ID, goblin.ID), store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteCreature(ctx, "", "missing"), store.ErrNotFound)

	_, creatures, err := s.GetEncounter(ctx, e2.ID)
	require.NoError(t, err)
	require.Len(t, creatures, 1)
	assert.Equal(t, "Goblin", creatures[0].Name)

	_, creatures, err = s.GetEncounter(ctx, e1.ID)
	require.NoError(t, err)
	require.Len(t, creatures, 1)
	assert.Equal(t, "Ada", creatures[0].Name)
}

func TestErrors(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, _, err := s.GetEncounter(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.CreateCreature(ctx, "missing", store.CreatureInput{Name: "G", Initiative: 1, Type: encounter.CreatureEnemy})
	assert.ErrorIs(t, err, store.ErrNotFound)

	enc, _, err := s.AddEncounter(encounter.Encounter{Name: "Ambush"})
	require.NoError(t, err)
	_, err = s.CreateCreature(ctx, enc.ID, store.CreatureInput{Name: "", Initiative: 1, Type: encounter.CreatureEnemy})
	assert.ErrorIs(t, err, store.ErrValidation)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, _, err = s.GetEncounter(cancelled, enc.ID)
	assert.ErrorIs(t, err, store.ErrNetwork)
}

func TestUpdateEncounter(t *testing.T) {
	ctx := context.Background()
	s := New()
	enc, _, err := s.AddEncounter(encounter.Encounter{Name: "Ambush"})
	require.NoError(t, err)

	name := "Night Ambush"
	got, err := s.UpdateEncounter(ctx, enc.ID, store.EncounterPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Night Ambush", got.Name)
}
