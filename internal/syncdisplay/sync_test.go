package syncdisplay_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/DoyleJ11/initiative-tracker/internal/channel"
	"github.com/DoyleJ11/initiative-tracker/internal/displaywin"
	"github.com/DoyleJ11/initiative-tracker/internal/encounter"
	"github.com/DoyleJ11/initiative-tracker/internal/store"
	"github.com/DoyleJ11/initiative-tracker/internal/store/memstore"
	"github.com/DoyleJ11/initiative-tracker/internal/syncctl"
	"github.com/DoyleJ11/initiative-tracker/internal/syncdisplay"
	"github.com/DoyleJ11/initiative-tracker/internal/window"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type session struct {
	browser  *window.Browser
	clock    *clockwork.FakeClock
	ctl      *syncctl.Controller
	mgr      *displaywin.Manager
	views    chan syncdisplay.View
	mounts   chan *syncdisplay.Display
	creature map[string]string // name -> id
}

func newSession(t *testing.T, creatures ...store.CreatureInput) *session {
	t.Helper()
	log := zaptest.NewLogger(t)

	st := memstore.New()
	_, added, err := st.AddEncounter(encounter.Encounter{ID: "e1", Name: "Crypt"}, creatures...)
	require.NoError(t, err)

	s := &session{
		browser:  window.NewBrowser(log),
		clock:    clockwork.NewFakeClock(),
		views:    make(chan syncdisplay.View, 128),
		mounts:   make(chan *syncdisplay.Display, 4),
		creature: make(map[string]string),
	}
	for _, c := range added {
		s.creature[c.Name] = c.ID
	}

	render := syncdisplay.RendererFunc(func(v syncdisplay.View) error {
		s.views <- v
		return nil
	})
	s.browser.Handle("/encounter-display/", syncdisplay.Page(
		syncdisplay.Options{RetryDelay: syncdisplay.DefaultRetryDelay, Clock: s.clock, Logger: log, Renderer: render},
		func(d *syncdisplay.Display) { s.mounts <- d },
	))

	control := s.browser.NewContext("/encounters/e1/control")
	link := channel.NewLink(log)
	control.AddListener(link.Receive)

	s.mgr = displaywin.New(control, link, displaywin.Options{Clock: s.clock, Logger: log})
	s.ctl = syncctl.New(context.Background(), "e1", st, link, s.mgr, syncctl.Options{Clock: s.clock, Logger: log})
	t.Cleanup(func() {
		s.ctl.Close()
		s.browser.Shutdown()
	})

	require.NoError(t, s.ctl.Load(context.Background()))
	require.NoError(t, s.ctl.OpenDisplay())
	return s
}

// waitView reads rendered views until match accepts one.
func (s *session) waitView(t *testing.T, match func(syncdisplay.View) bool) syncdisplay.View {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-s.views:
			if match(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for display to render")
			return syncdisplay.View{}
		}
	}
}

func settled(turn, round int) func(syncdisplay.View) bool {
	return func(v syncdisplay.View) bool {
		return v.State == syncdisplay.StateReady &&
			!v.Snapshot.Transitioning &&
			v.Snapshot.TurnIndex == turn &&
			v.Snapshot.RoundNumber == round
	}
}

func ids(order []encounter.Creature) []string {
	out := make([]string, len(order))
	for i, c := range order {
		out[i] = c.ID
	}
	return out
}

func TestDisplayFollowsTurnOrder(t *testing.T) {
	s := newSession(t,
		store.CreatureInput{Name: "A", Initiative: 5, Type: encounter.CreaturePlayer},
		store.CreatureInput{Name: "B", Initiative: 20, Type: encounter.CreatureEnemy},
		store.CreatureInput{Name: "C", Initiative: 10, Type: encounter.CreatureAlly},
	)
	a, b, c := s.creature["A"], s.creature["B"], s.creature["C"]

	v := s.waitView(t, settled(0, 1))
	assert.Equal(t, []string{b, c, a}, ids(v.Lineup.Order))
	assert.Equal(t, b, v.Lineup.Current.ID)

	steps := []struct {
		turn, round int
		current     string
	}{
		{turn: 1, round: 1, current: c},
		{turn: 2, round: 1, current: a},
		{turn: 0, round: 2, current: b},
	}
	for _, step := range steps {
		require.NoError(t, s.ctl.AdvanceTurn())

		ctlSnap, ok := s.ctl.Snapshot()
		require.True(t, ok)
		ctlLineup := ctlSnap.Lineup()

		v := s.waitView(t, settled(step.turn, step.round))
		assert.Equal(t, ids(ctlLineup.Order), ids(v.Lineup.Order))
		assert.Equal(t, step.current, ctlLineup.Current.ID)
		assert.Equal(t, step.current, v.Lineup.Current.ID)
	}
}

func TestDeletingOnlyCreatureEmptiesDisplay(t *testing.T) {
	s := newSession(t, store.CreatureInput{Name: "Solo", Initiative: 12, Type: encounter.CreatureEnemy})
	s.waitView(t, settled(0, 1))

	require.NoError(t, s.ctl.DeleteCreature(context.Background(), s.creature["Solo"]))

	v := s.waitView(t, func(v syncdisplay.View) bool {
		return v.State == syncdisplay.StateReady && len(v.Snapshot.Creatures) == 0
	})
	assert.Equal(t, 0, v.Snapshot.TurnIndex)
	assert.Nil(t, v.Lineup.Current)

	var out bytes.Buffer
	require.NoError(t, syncdisplay.NewTextRenderer(&out).Render(v))
	assert.Contains(t, out.String(), "No creatures in this encounter")

	ctlSnap, ok := s.ctl.Snapshot()
	require.True(t, ok)
	assert.Empty(t, ctlSnap.Creatures)
	assert.Equal(t, 0, ctlSnap.TurnIndex)
}

func TestReopenFocusesAndClosedDisplayIsDropped(t *testing.T) {
	s := newSession(t, store.CreatureInput{Name: "Solo", Initiative: 12, Type: encounter.CreatureEnemy})
	<-s.mounts
	s.waitView(t, settled(0, 1))

	require.NoError(t, s.ctl.OpenDisplay())
	select {
	case <-s.mounts:
		t.Fatal("second open mounted another display")
	case <-time.After(50 * time.Millisecond):
	}

	win := s.mgr.Window()
	require.NotNil(t, win)
	win.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.clock.BlockUntilContext(ctx, 1))
	s.clock.Advance(displaywin.DefaultPollInterval)

	require.Eventually(t, func() bool {
		v, err := s.ctl.View()
		return err == nil && v.Display == displaywin.StateClosed
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.ctl.AdvanceTurn())
	snap, _ := s.ctl.Snapshot()
	assert.Equal(t, 2, snap.RoundNumber)
}
