package syncdisplay

import (
	"sync"
	"time"

	"github.com/DoyleJ11/initiative-tracker/internal/channel"
	"github.com/DoyleJ11/initiative-tracker/internal/encounter"
	"github.com/DoyleJ11/initiative-tracker/internal/window"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const DefaultRetryDelay = 500 * time.Millisecond

type State int

const (
	StateAwaitingData State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "awaiting-data"
}

// View is what a Renderer draws.
type View struct {
	Title    string
	State    State
	Snapshot encounter.Snapshot
	Lineup   encounter.Lineup
}

type Renderer interface {
	Render(v View) error
}

type RendererFunc func(v View) error

func (f RendererFunc) Render(v View) error { return f(v) }

type Options struct {
	// RetryDelay is how long to wait before asking again after a pending
	// reply. Zero retries immediately.
	RetryDelay time.Duration
	Clock      clockwork.Clock
	Logger     *zap.Logger
	Renderer   Renderer
}

func (o Options) withDefaults() Options {
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Renderer == nil {
		o.Renderer = RendererFunc(func(View) error { return nil })
	}
	return o
}

// Display is the read-only side of the sync protocol. It asks its opener for
// the snapshot once on mount, retries once if the opener is still loading,
// and otherwise only redraws what it is pushed.
type Display struct {
	link   *channel.Link
	opener channel.Target
	opts   Options
	log    *zap.Logger

	mu      sync.Mutex
	state   State
	snap    encounter.Snapshot
	mounted bool
	retried bool
	retry   clockwork.Timer
	unsub   func()
}

func New(link *channel.Link, opener channel.Target, opts Options) *Display {
	opts = opts.withDefaults()
	return &Display{
		link:   link,
		opener: opener,
		opts:   opts,
		log:    opts.Logger.Named("display"),
	}
}

// Mount starts listening and requests the current snapshot.
func (d *Display) Mount() {
	d.mu.Lock()
	if d.mounted {
		d.mu.Unlock()
		return
	}
	d.mounted = true
	d.retried = false
	d.state = StateAwaitingData
	d.snap = encounter.Snapshot{}
	d.unsub = d.link.OnReceive(d)
	d.renderLocked()
	d.mu.Unlock()

	d.link.Send(d.opener, channel.RequestSnapshot{})
}

// Unmount stops listening and cancels a pending retry.
func (d *Display) Unmount() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.mounted {
		return
	}
	d.mounted = false
	if d.retry != nil {
		d.retry.Stop()
		d.retry = nil
	}
	if d.unsub != nil {
		d.unsub()
		d.unsub = nil
	}
}

func (d *Display) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Display) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewLocked()
}

func (d *Display) RequestSnapshot(channel.Target) {}

func (d *Display) SnapshotPush(_ channel.Target, snap encounter.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.mounted {
		return
	}
	d.snap = snap.Clone()
	d.state = StateReady
	if d.retry != nil {
		d.retry.Stop()
		d.retry = nil
	}
	d.renderLocked()
}

// SnapshotPending schedules the one retry a mount is allowed. Later pending
// replies are ignored; the control window pushes once it has loaded.
func (d *Display) SnapshotPending(channel.Target) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.mounted || d.state == StateReady || d.retried {
		return
	}
	d.retried = true
	d.retry = d.opts.Clock.AfterFunc(d.opts.RetryDelay, d.retryRequest)
	d.log.Debug("control window still loading, retrying", zap.Duration("after", d.opts.RetryDelay))
}

func (d *Display) retryRequest() {
	d.mu.Lock()
	send := d.mounted && d.state == StateAwaitingData
	d.retry = nil
	d.mu.Unlock()

	if send {
		d.link.Send(d.opener, channel.RequestSnapshot{})
	}
}

func (d *Display) viewLocked() View {
	v := View{State: d.state, Snapshot: d.snap.Clone(), Title: encounter.DefaultTitle}
	if d.state == StateReady {
		v.Title = d.snap.Title()
		v.Lineup = d.snap.Lineup()
	}
	return v
}

func (d *Display) renderLocked() {
	if err := d.opts.Renderer.Render(d.viewLocked()); err != nil {
		d.log.Warn("render", zap.Error(err))
	}
}

// Page mounts a Display in a browser context, talking to the window that
// opened it. onMount, if set, is handed the display once it is mounted.
func Page(opts Options, onMount func(*Display)) window.Page {
	return func(c *window.Context) func() {
		link := channel.NewLink(opts.Logger)
		remove := c.AddListener(link.Receive)

		var opener channel.Target
		if w := c.Opener(); w != nil {
			opener = w
		}
		d := New(link, opener, opts)
		d.Mount()
		if onMount != nil {
			onMount(d)
		}
		return func() {
			d.Unmount()
			remove()
		}
	}
}
