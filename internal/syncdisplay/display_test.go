package syncdisplay

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/initiative-tracker/internal/channel"
	"github.com/DoyleJ11/initiative-tracker/internal/encounter"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// controlWindow records what the display posts to its opener.
type controlWindow struct {
	mu       sync.Mutex
	requests int
}

func (w *controlWindow) Post(data []byte) error {
	msg, err := channel.Decode(data)
	if err != nil {
		return err
	}
	if _, ok := msg.(channel.RequestSnapshot); ok {
		w.mu.Lock()
		w.requests++
		w.mu.Unlock()
	}
	return nil
}

func (w *controlWindow) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.requests
}

type harness struct {
	link    *channel.Link
	control *controlWindow
	clock   *clockwork.FakeClock
	out     *bytes.Buffer
	display *Display
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithDelay(t, 500*time.Millisecond)
}

func newHarnessWithDelay(t *testing.T, retryDelay time.Duration) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	h := &harness{
		link:    channel.NewLink(log),
		control: &controlWindow{},
		clock:   clockwork.NewFakeClock(),
		out:     &bytes.Buffer{},
	}
	h.display = New(h.link, h.control, Options{
		RetryDelay: retryDelay,
		Clock:      h.clock,
		Logger:     log,
		Renderer:   NewTextRenderer(h.out),
	})
	t.Cleanup(h.display.Unmount)
	return h
}

func (h *harness) deliver(t *testing.T, msg channel.Message) {
	t.Helper()
	data, err := channel.Encode(msg)
	require.NoError(t, err)
	h.link.Receive(h.control, data)
}

func (h *harness) waitTimer(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
}

func TestMountRequestsSnapshot(t *testing.T) {
	h := newHarness(t)
	h.display.Mount()

	assert.Equal(t, 1, h.control.count())
	assert.Equal(t, StateAwaitingData, h.display.State())
	assert.Contains(t, h.out.String(), "Loading encounter...")
	assert.Contains(t, h.out.String(), encounter.DefaultTitle)
}

func TestPendingRetriesExactlyOnce(t *testing.T) {
	h := newHarness(t)
	h.display.Mount()

	h.deliver(t, channel.SnapshotPending{})
	h.waitTimer(t)
	h.clock.Advance(500 * time.Millisecond)
	require.Eventually(t, func() bool { return h.control.count() == 2 }, time.Second, 5*time.Millisecond)

	// Another pending does not start another retry.
	h.deliver(t, channel.SnapshotPending{})
	h.clock.Advance(5 * time.Second)
	assert.Never(t, func() bool { return h.control.count() > 2 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, StateAwaitingData, h.display.State())
}

func TestZeroRetryDelayRetriesImmediately(t *testing.T) {
	h := newHarnessWithDelay(t, 0)
	h.display.Mount()

	h.deliver(t, channel.SnapshotPending{})
	require.Eventually(t, func() bool { return h.control.count() == 2 }, time.Second, 5*time.Millisecond)

	h.deliver(t, channel.SnapshotPending{})
	assert.Never(t, func() bool { return h.control.count() > 2 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestNegativeRetryDelayIsZero(t *testing.T) {
	assert.Equal(t, time.Duration(0), Options{RetryDelay: -time.Second}.withDefaults().RetryDelay)
	assert.Equal(t, time.Duration(0), Options{}.withDefaults().RetryDelay)
}

func TestPushCancelsRetry(t *testing.T) {
	h := newHarness(t)
	h.display.Mount()

	h.deliver(t, channel.SnapshotPending{})
	h.waitTimer(t)
	h.deliver(t, channel.SnapshotPush{Snapshot: encounter.NewSnapshot(encounter.Encounter{ID: "e1", Name: "Crypt"}, nil)})
	assert.Equal(t, StateReady, h.display.State())

	h.clock.Advance(time.Second)
	assert.Never(t, func() bool { return h.control.count() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestEmptyEncounterRenders(t *testing.T) {
	h := newHarness(t)
	h.display.Mount()

	h.deliver(t, channel.SnapshotPush{Snapshot: encounter.NewSnapshot(encounter.Encounter{ID: "e1", Name: "Crypt"}, nil)})

	v := h.display.View()
	assert.Equal(t, StateReady, v.State)
	assert.Equal(t, "Crypt - D&D Initiative Tracker", v.Title)
	assert.Nil(t, v.Lineup.Current)
	assert.Nil(t, v.Lineup.Next)
	assert.Nil(t, v.Lineup.OnDeck)
	assert.Contains(t, h.out.String(), "No creatures in this encounter")
}

func TestPushReplacesWholesale(t *testing.T) {
	h := newHarness(t)
	h.display.Mount()

	first := encounter.NewSnapshot(encounter.Encounter{ID: "e1", Name: "Crypt"}, []encounter.Creature{
		{ID: "A", Name: "Ada", Initiative: 5, Type: encounter.CreaturePlayer},
		{ID: "B", Name: "Bram", Initiative: 20, Type: encounter.CreatureEnemy},
	})
	h.deliver(t, channel.SnapshotPush{Snapshot: first})

	second := encounter.NewSnapshot(encounter.Encounter{ID: "e1", Name: "Crypt"}, []encounter.Creature{
		{ID: "C", Name: "Cyr", Initiative: 9, Type: encounter.CreatureAlly},
	})
	h.deliver(t, channel.SnapshotPush{Snapshot: second})

	v := h.display.View()
	require.Len(t, v.Snapshot.Creatures, 1)
	assert.Equal(t, "C", v.Lineup.Current.ID)
	assert.Equal(t, "C", v.Lineup.Next.ID)
	assert.Equal(t, "C", v.Lineup.OnDeck.ID)
}

func TestUnmountIgnoresLaterMessages(t *testing.T) {
	h := newHarness(t)
	h.display.Mount()
	h.deliver(t, channel.SnapshotPending{})
	h.waitTimer(t)
	h.display.Unmount()

	h.clock.Advance(time.Second)
	h.deliver(t, channel.SnapshotPush{Snapshot: encounter.NewSnapshot(encounter.Encounter{ID: "e1"}, nil)})

	assert.Never(t, func() bool { return h.control.count() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, StateAwaitingData, h.display.State())
}

func TestTextRenderer(t *testing.T) {
	snap := encounter.NewSnapshot(encounter.Encounter{ID: "e1", Name: "Crypt"}, []encounter.Creature{
		{ID: "A", Name: "Ada", Initiative: 5, Type: encounter.CreaturePlayer},
		{ID: "B", Name: "Bram", Initiative: 20, Type: encounter.CreatureEnemy},
		{ID: "C", Name: "Cyr", Initiative: 10, Type: encounter.CreatureAlly},
	})
	snap.TurnIndex = 1
	snap.RoundNumber = 3
	snap.Transitioning = true

	var out bytes.Buffer
	err := NewTextRenderer(&out).Render(View{
		Title:    snap.Title(),
		State:    StateReady,
		Snapshot: snap,
		Lineup:   snap.Lineup(),
	})
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "Crypt - D&D Initiative Tracker\n")
	assert.Contains(t, got, "Round 3 (changing turn)\n")
	assert.Contains(t, got, "> Cyr")
	assert.Contains(t, got, "Ally")
	assert.Contains(t, got, "Current: Cyr | Next: Ada | On deck: Bram\n")
}
