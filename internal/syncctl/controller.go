package syncctl

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DoyleJ11/initiative-tracker/internal/channel"
	"github.com/DoyleJ11/initiative-tracker/internal/displaywin"
	"github.com/DoyleJ11/initiative-tracker/internal/encounter"
	"github.com/DoyleJ11/initiative-tracker/internal/store"
	"github.com/DoyleJ11/initiative-tracker/internal/turnclock"
	"github.com/DoyleJ11/initiative-tracker/internal/window"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const DefaultTransitionDelay = 350 * time.Millisecond

var (
	// ErrStaleWrite wraps a failed write to the store. The snapshot was not
	// changed and nothing was pushed.
	ErrStaleWrite = errors.New("write not applied")
	ErrNotLoaded  = errors.New("encounter not loaded")
	ErrClosed     = errors.New("controller closed")
)

type Options struct {
	// TransitionDelay is how long the fade lasts before a turn change is
	// applied. Zero applies it immediately.
	TransitionDelay time.Duration
	Clock           clockwork.Clock
	Logger          *zap.Logger
	// DisplayURL builds the display page address for an encounter.
	DisplayURL func(encounterID string) string
}

func (o Options) withDefaults() Options {
	if o.TransitionDelay < 0 {
		o.TransitionDelay = 0
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.DisplayURL == nil {
		o.DisplayURL = DisplayPath
	}
	return o
}

// DisplayPath is the default display page address.
func DisplayPath(encounterID string) string {
	return "/encounter-display/" + encounterID
}

// View is a race-free copy of the controller state.
type View struct {
	EncounterID        string
	Loaded             bool
	Snapshot           encounter.Snapshot
	PendingTransitions int
	Display            displaywin.State
	LastError          error
}

// Controller owns the authoritative snapshot of one encounter and keeps the
// display window in sync with it. All state lives in the loop goroutine.
type Controller struct {
	encounterID string
	store       store.Store
	link        *channel.Link
	display     *displaywin.Manager
	opts        Options
	log         *zap.Logger

	inbox  chan msg
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	unsub  func()
	ready  atomic.Bool

	// writeMu is held from a store write until the loop has applied its
	// result, so the snapshot sees writes in commit order.
	writeMu sync.Mutex

	// loop-owned
	snap    encounter.Snapshot
	loaded  bool
	lastErr error
	pending int
	nextID  int
	timers  map[int]clockwork.Timer
}

// New starts a controller for encounterID. display may be nil when no
// display window can ever be opened.
func New(parent context.Context, encounterID string, st store.Store, link *channel.Link, display *displaywin.Manager, opts Options) *Controller {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(parent)

	c := &Controller{
		encounterID: encounterID,
		store:       st,
		link:        link,
		display:     display,
		opts:        opts,
		log:         opts.Logger.With(zap.String("encounter", encounterID)),
		inbox:       make(chan msg, 64),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		timers:      make(map[int]clockwork.Timer),
	}
	c.unsub = link.OnReceive(inbound{c})

	go c.loop()
	return c
}

func (c *Controller) EncounterID() string { return c.encounterID }

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return

		case m := <-c.inbox:
			c.handle(m)
		}
	}
}

func (c *Controller) handle(m msg) {
	switch msg := m.(type) {
	case loaded:
		c.snap = encounter.NewSnapshot(msg.enc, msg.creatures)
		c.loaded = true
		c.ready.Store(true)
		c.lastErr = nil
		c.log.Info("encounter loaded", zap.Int("creatures", len(msg.creatures)))
		c.emit()
		close(msg.reply)

	case loadFailed:
		c.lastErr = msg.err

	case snapshotRequested:
		if c.loaded {
			c.link.Send(msg.src, channel.SnapshotPush{Snapshot: c.snap.Clone()})
		} else {
			c.link.Send(msg.src, channel.SnapshotPending{})
		}

	case turnRequested:
		if !c.loaded {
			msg.reply <- ErrNotLoaded
			break
		}
		c.beginTransition(msg.t)
		msg.reply <- nil

	case transitionDue:
		if _, ok := c.timers[msg.id]; !ok {
			break
		}
		delete(c.timers, msg.id)
		c.finishTransition(msg.t)

	case creatureAdded:
		c.snap.Creatures = append(c.snap.Creatures, msg.c)
		c.emit()
		close(msg.reply)

	case creatureUpdated:
		if i := encounter.IndexOf(c.snap.Creatures, msg.c.ID); i >= 0 {
			c.snap.Creatures[i] = msg.c
			c.emit()
		} else {
			c.log.Warn("updated creature not in snapshot", zap.String("creature", msg.c.ID))
		}
		close(msg.reply)

	case creatureDeleted:
		c.snap.Creatures = slices.DeleteFunc(c.snap.Creatures, func(cr encounter.Creature) bool {
			return cr.ID == msg.id
		})
		clock := c.snap.Clock()
		clock.ClampTo(len(c.snap.Creatures))
		c.snap.SetClock(clock)
		c.emit()
		close(msg.reply)

	case encounterUpdated:
		c.snap.Encounter = msg.enc
		c.emit()
		close(msg.reply)

	case mutationFailed:
		c.lastErr = msg.err

	case pushCurrent:
		if c.loaded {
			c.emit()
		}

	case getState:
		v := View{
			EncounterID:        c.encounterID,
			Loaded:             c.loaded,
			PendingTransitions: c.pending,
			LastError:          c.lastErr,
		}
		if c.loaded {
			v.Snapshot = c.snap.Clone()
		}
		if c.display != nil {
			v.Display = c.display.State()
		}
		msg.reply <- v
	}
}

// beginTransition raises the fade flag, emits, and schedules the actual turn
// change. Requests made during a fade are queued behind it.
func (c *Controller) beginTransition(t turnclock.Transition) {
	c.pending++
	c.snap.Transitioning = true
	c.emit()

	id := c.nextID
	c.nextID++
	if c.opts.TransitionDelay <= 0 {
		c.timers[id] = nil
		c.handle(transitionDue{id: id, t: t})
		return
	}
	c.timers[id] = c.opts.Clock.AfterFunc(c.opts.TransitionDelay, func() {
		c.post(transitionDue{id: id, t: t})
	})
}

func (c *Controller) finishTransition(t turnclock.Transition) {
	c.pending--
	next, err := turnclock.Apply(c.snap.Clock(), t, len(c.snap.Creatures))
	if err != nil {
		c.log.Error("apply transition", zap.Error(err))
	} else {
		c.snap.SetClock(next)
	}
	if c.pending == 0 {
		c.snap.Transitioning = false
	}
	c.log.Debug("turn changed",
		zap.String("transition", string(t)),
		zap.Int("turn", c.snap.TurnIndex),
		zap.Int("round", c.snap.RoundNumber))
	c.emit()
}

func (c *Controller) emit() {
	if c.display == nil {
		return
	}
	c.display.Push(channel.SnapshotPush{Snapshot: c.snap.Clone()})
}

func (c *Controller) shutdown() {
	for id, t := range c.timers {
		if t != nil {
			t.Stop()
		}
		delete(c.timers, id)
	}
	c.unsub()
	if c.display != nil {
		c.display.Close()
	}
	c.log.Info("controller stopped")
}

// post hands m to the loop. It reports false once the controller is closed.
func (c *Controller) post(m msg) bool {
	select {
	case c.inbox <- m:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func wait[T any](c *Controller, reply chan T) (T, error) {
	select {
	case v := <-reply:
		return v, nil
	case <-c.done:
		var zero T
		return zero, ErrClosed
	}
}

// Load fetches the encounter. Until it returns, display requests are
// answered with a pending message.
func (c *Controller) Load(ctx context.Context) error {
	enc, creatures, err := c.store.GetEncounter(ctx, c.encounterID)
	if err != nil {
		c.log.Warn("load encounter", zap.Error(err))
		if !c.post(loadFailed{err: err}) {
			return ErrClosed
		}
		return err
	}

	reply := make(chan struct{})
	if !c.post(loaded{enc: enc, creatures: creatures, reply: reply}) {
		return ErrClosed
	}
	_, err = wait(c, reply)
	return err
}

// Turn starts a fade and applies t when it ends.
func (c *Controller) Turn(t turnclock.Transition) error {
	reply := make(chan error, 1)
	if !c.post(turnRequested{t: t, reply: reply}) {
		return ErrClosed
	}
	err, closedErr := wait(c, reply)
	if closedErr != nil {
		return closedErr
	}
	return err
}

func (c *Controller) AdvanceTurn() error { return c.Turn(turnclock.TransitionAdvance) }
func (c *Controller) RetreatTurn() error { return c.Turn(turnclock.TransitionRetreat) }
func (c *Controller) ResetRound() error  { return c.Turn(turnclock.TransitionReset) }

func (c *Controller) AddCreature(ctx context.Context, in store.CreatureInput) (encounter.Creature, error) {
	if err := c.checkWritable(); err != nil {
		return encounter.Creature{}, err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	cr, err := c.store.CreateCreature(ctx, c.encounterID, in)
	if err != nil {
		return encounter.Creature{}, c.failed("add creature", err)
	}
	reply := make(chan struct{})
	if !c.post(creatureAdded{c: cr, reply: reply}) {
		return cr, ErrClosed
	}
	_, err = wait(c, reply)
	return cr, err
}

func (c *Controller) UpdateCreature(ctx context.Context, id string, patch store.CreaturePatch) (encounter.Creature, error) {
	if err := c.checkWritable(); err != nil {
		return encounter.Creature{}, err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	cr, err := c.store.UpdateCreature(ctx, c.encounterID, id, patch)
	if err != nil {
		return encounter.Creature{}, c.failed("update creature", err)
	}
	reply := make(chan struct{})
	if !c.post(creatureUpdated{c: cr, reply: reply}) {
		return cr, ErrClosed
	}
	_, err = wait(c, reply)
	return cr, err
}

func (c *Controller) DeleteCreature(ctx context.Context, id string) error {
	if err := c.checkWritable(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.store.DeleteCreature(ctx, c.encounterID, id); err != nil {
		return c.failed("delete creature", err)
	}
	reply := make(chan struct{})
	if !c.post(creatureDeleted{id: id, reply: reply}) {
		return ErrClosed
	}
	_, err := wait(c, reply)
	return err
}

func (c *Controller) UpdateEncounter(ctx context.Context, patch store.EncounterPatch) (encounter.Encounter, error) {
	if err := c.checkWritable(); err != nil {
		return encounter.Encounter{}, err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	enc, err := c.store.UpdateEncounter(ctx, c.encounterID, patch)
	if err != nil {
		return encounter.Encounter{}, c.failed("update encounter", err)
	}
	reply := make(chan struct{})
	if !c.post(encounterUpdated{enc: enc, reply: reply}) {
		return enc, ErrClosed
	}
	_, err = wait(c, reply)
	return enc, err
}

func (c *Controller) checkWritable() error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	if !c.ready.Load() {
		return ErrNotLoaded
	}
	return nil
}

func (c *Controller) failed(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w: %w", op, ErrStaleWrite, err)
	c.log.Warn("write rejected", zap.String("op", op), zap.Error(err))
	c.post(mutationFailed{err: wrapped})
	return wrapped
}

// OpenDisplay opens (or focuses) the display window and pushes the current
// snapshot to it. A display that has not loaded yet drops the push and asks
// for the snapshot itself once it mounts.
func (c *Controller) OpenDisplay() error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	if c.display == nil || !c.display.Open(c.opts.DisplayURL(c.encounterID)) {
		return window.ErrPopupBlocked
	}
	if !c.post(pushCurrent{}) {
		return ErrClosed
	}
	return nil
}

func (c *Controller) View() (View, error) {
	reply := make(chan View, 1)
	if !c.post(getState{reply: reply}) {
		return View{}, ErrClosed
	}
	return wait(c, reply)
}

// Snapshot returns the current snapshot and whether the encounter has loaded.
func (c *Controller) Snapshot() (encounter.Snapshot, bool) {
	v, err := c.View()
	if err != nil || !v.Loaded {
		return encounter.Snapshot{}, false
	}
	return v.Snapshot, true
}

// LastError is the most recent load or write failure, cleared by a
// successful load.
func (c *Controller) LastError() error {
	v, err := c.View()
	if err != nil {
		return err
	}
	return v.LastError
}

// Close stops the loop, cancels pending transitions and closes the display.
func (c *Controller) Close() {
	c.once.Do(c.cancel)
	<-c.done
}

func (c *Controller) Done() <-chan struct{} { return c.done }
