package gormstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/DoyleJ11/initiative-tracker/internal/encounter"
	"github.com/DoyleJ11/initiative-tracker/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// testDatabaseEnv points the round-trip tests at a scratch Postgres database.
const testDatabaseEnv = "TRACKER_TEST_DATABASE_URL"

func TestClassify(t *testing.T) {
	s := New(nil, zap.NewNop())

	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "record not found", err: gorm.ErrRecordNotFound, want: store.ErrNotFound},
		{name: "wrapped not found", err: fmt.Errorf("query: %w", gorm.ErrRecordNotFound), want: store.ErrNotFound},
		{name: "check violation", err: &pgconn.PgError{Code: "23514", Message: "initiative out of range"}, want: store.ErrValidation},
		{name: "bad uuid text", err: &pgconn.PgError{Code: "22P02"}, want: store.ErrValidation},
		{name: "missing parent", err: &pgconn.PgError{Code: "23503"}, want: store.ErrNotFound},
		{name: "connection failure", err: &pgconn.PgError{Code: "08006"}, want: store.ErrNetwork},
		{name: "deadline", err: context.DeadlineExceeded, want: store.ErrNetwork},
		{name: "anything else", err: errors.New("broken pipe"), want: store.ErrNetwork},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := s.classify("op", tc.err)
			assert.ErrorIs(t, got, tc.want)
		})
	}
}

func TestRowMapping(t *testing.T) {
	id := uuid.New()
	bg := "crypt.jpg"
	enc := encounterRow{ID: id, Name: "Crypt", BackgroundImage: &bg}.toDomain()
	assert.Equal(t, encounter.Encounter{ID: id.String(), Name: "Crypt", BackgroundImage: "crypt.jpg"}, enc)

	cid := uuid.New()
	c := creatureRow{ID: cid, Name: "Ghoul", Initiative: 11, CreatureType: "enemy"}.toDomain()
	assert.Equal(t, cid.String(), c.ID)
	assert.Equal(t, encounter.CreatureEnemy, c.Type)
	assert.Empty(t, c.ImageURL)
}

func TestApplyCreaturePatch(t *testing.T) {
	img := "old.png"
	row := creatureRow{ID: uuid.New(), Name: "Ghoul", Initiative: 11, CreatureType: "enemy", ImageURL: &img}

	name := "Ghast"
	applyCreaturePatch(&row, store.CreaturePatch{Name: &name})
	assert.Equal(t, "Ghast", row.Name)
	assert.Equal(t, 11, row.Initiative)
	if assert.NotNil(t, row.ImageURL) {
		assert.Equal(t, "old.png", *row.ImageURL)
	}

	empty := ""
	applyCreaturePatch(&row, store.CreaturePatch{ImageURL: &empty})
	assert.Nil(t, row.ImageURL)
}

func TestInvalidIDsAreNotFound(t *testing.T) {
	s := New(nil, zap.NewNop())
	ctx := context.Background()

	_, _, err := s.GetEncounter(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.DeleteCreature(ctx, "nope", uuid.NewString()), store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteCreature(ctx, uuid.NewString(), "nope"), store.ErrNotFound)

	_, err = s.UpdateCreature(ctx, uuid.NewString(), "nope", store.CreaturePatch{})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.CreateCreature(ctx, "nope", store.CreatureInput{Name: "G", Initiative: 1, Type: encounter.CreatureEnemy})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// dryRunDB builds statements without a server. pgx parses the DSN but never
// dials it.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.Open("host=localhost user=tracker dbname=tracker sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return db
}

func TestOwnedCreatureScopesByEncounter(t *testing.T) {
	db := dryRunDB(t)
	encID, id := uuid.New(), uuid.New()

	sel := db.Scopes(ownedCreature(encID, id)).First(&creatureRow{}).Statement
	assert.Contains(t, sel.SQL.String(), "encounter_id = $2")
	require.GreaterOrEqual(t, len(sel.Vars), 2)
	assert.Equal(t, []any{id, encID}, sel.Vars[:2])

	del := db.Scopes(ownedCreature(encID, id)).Delete(&creatureRow{}).Statement
	assert.Contains(t, del.SQL.String(), `DELETE FROM "creatures"`)
	assert.Contains(t, del.SQL.String(), "encounter_id = $2")
	assert.Equal(t, []any{id, encID}, del.Vars)
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv(testDatabaseEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDatabaseEnv)
	}
	s, err := Open(dsn, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedEncounter(t *testing.T, s *Store, name string) encounter.Encounter {
	t.Helper()
	row := encounterRow{ID: uuid.New(), Name: name}
	require.NoError(t, s.db.Create(&row).Error)
	t.Cleanup(func() { s.db.Delete(&encounterRow{}, "id = ?", row.ID) })
	return row.toDomain()
}

func TestStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	enc := seedEncounter(t, s, "Crypt")

	ada, err := s.CreateCreature(ctx, enc.ID, store.CreatureInput{Name: "Ada", Initiative: 12, Type: encounter.CreaturePlayer})
	require.NoError(t, err)
	ghoul, err := s.CreateCreature(ctx, enc.ID, store.CreatureInput{Name: "Ghoul", Initiative: 11, Type: encounter.CreatureEnemy, ImageURL: "ghoul.png"})
	require.NoError(t, err)

	initiative := 18
	updated, err := s.UpdateCreature(ctx, enc.ID, ghoul.ID, store.CreaturePatch{Initiative: &initiative})
	require.NoError(t, err)
	assert.Equal(t, 18, updated.Initiative)
	assert.Equal(t, "ghoul.png", updated.ImageURL)

	bg := "crypt.jpg"
	got, err := s.UpdateEncounter(ctx, enc.ID, store.EncounterPatch{BackgroundImage: &bg})
	require.NoError(t, err)
	assert.Equal(t, "crypt.jpg", got.BackgroundImage)

	require.NoError(t, s.DeleteCreature(ctx, enc.ID, ada.ID))
	loaded, creatures, err := s.GetEncounter(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Crypt", loaded.Name)
	require.Len(t, creatures, 1)
	assert.Equal(t, ghoul.ID, creatures[0].ID)

	_, err = s.CreateCreature(ctx, enc.ID, store.CreatureInput{Name: "Dragon", Initiative: 500, Type: encounter.CreatureEnemy})
	assert.ErrorIs(t, err, store.ErrValidation)
	_, err = s.CreateCreature(ctx, uuid.NewString(), store.CreatureInput{Name: "Lost", Initiative: 1, Type: encounter.CreatureOther})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStoreCreatureWritesAreScopedToEncounter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	e1 := seedEncounter(t, s, "Crypt")
	e2 := seedEncounter(t, s, "Ambush")

	goblin, err := s.CreateCreature(ctx, e2.ID, store.CreatureInput{Name: "Goblin", Initiative: 9, Type: encounter.CreatureEnemy})
	require.NoError(t, err)

	name := "Hijacked"
	_, err = s.UpdateCreature(ctx, e1.ID, goblin.ID, store.CreaturePatch{Name: &name})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteCreature(ctx, e1.ID, goblin.ID), store.ErrNotFound)

	_, creatures, err := s.GetEncounter(ctx, e2.ID)
	require.NoError(t, err)
	require.Len(t, creatures, 1)
	assert.Equal(t, "Goblin", creatures[0].Name)
}
