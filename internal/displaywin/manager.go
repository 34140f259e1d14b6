package displaywin

import (
	"sync"
	"time"

	"github.com/DoyleJ11/initiative-tracker/internal/channel"
	"github.com/DoyleJ11/initiative-tracker/internal/window"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// WindowName is the logical name the display window is opened under.
const WindowName = "EncounterDisplay"

const DefaultPollInterval = time.Second

type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

type Options struct {
	// PollInterval is how often the display handle is checked for closure.
	// A ticker needs a positive period, so zero or less selects
	// DefaultPollInterval.
	PollInterval time.Duration
	Clock        clockwork.Clock
	Logger       *zap.Logger
	Name         string
	Features     window.Features
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Name == "" {
		o.Name = WindowName
	}
	if o.Features == (window.Features{}) {
		o.Features = window.DisplayFeatures
	}
	return o
}

// Manager owns the control window's handle to its display window. There is
// at most one display at a time; a closed display is only noticed by polling.
type Manager struct {
	opener window.Opener
	link   *channel.Link
	opts   Options
	log    *zap.Logger

	mu    sync.Mutex
	state State
	win   window.Window
	poll  *poller
}

func New(opener window.Opener, link *channel.Link, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		opener: opener,
		link:   link,
		opts:   opts,
		log:    opts.Logger.With(zap.String("window", opts.Name)),
		state:  StateClosed,
	}
}

// Open opens the display at url, or focuses it if it is already open. It
// reports false when the window could not be created, e.g. because a popup
// blocker refused it. That is not retried.
func (m *Manager) Open(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateOpen && m.win != nil && !m.win.Closed() {
		m.win.Focus()
		return true
	}

	m.stopPollLocked()
	m.win = nil
	m.state = StateOpening

	win, err := m.opener.Open(url, m.opts.Name, m.opts.Features)
	if err != nil || win == nil {
		m.state = StateClosed
		m.log.Warn("display window could not be opened", zap.String("url", url), zap.Error(err))
		return false
	}

	m.win = win
	m.state = StateOpen
	m.poll = startPoller(m.opts.Clock, m.opts.PollInterval, win.Closed, func() { m.closed(win) })
	m.log.Info("display window opened", zap.String("url", url))
	return true
}

// Push sends msg to the display if one is open. Without a display the
// message is dropped; a display that loads later asks for the state itself.
func (m *Manager) Push(msg channel.Message) {
	m.mu.Lock()
	win := m.win
	open := m.state == StateOpen
	m.mu.Unlock()

	if !open || win == nil {
		return
	}
	m.link.Send(win, msg)
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Window returns the live display handle, or nil.
func (m *Manager) Window() window.Window {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateOpen {
		return nil
	}
	return m.win
}

// Close stops watching and closes the display window.
func (m *Manager) Close() {
	m.mu.Lock()
	win := m.win
	m.stopPollLocked()
	m.win = nil
	m.state = StateClosed
	m.mu.Unlock()

	if win != nil {
		win.Close()
	}
}

func (m *Manager) closed(win window.Window) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.win != win {
		return
	}
	m.win = nil
	m.state = StateClosed
	m.poll = nil
	m.log.Info("display window closed")
}

func (m *Manager) stopPollLocked() {
	if m.poll != nil {
		m.poll.Stop()
		m.poll = nil
	}
}
