package hub

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/initiative-tracker/internal/channel"
	"github.com/DoyleJ11/initiative-tracker/internal/displaywin"
	"github.com/DoyleJ11/initiative-tracker/internal/store"
	"github.com/DoyleJ11/initiative-tracker/internal/syncctl"
	"github.com/DoyleJ11/initiative-tracker/internal/ws"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var ErrHubClosed = errors.New("hub closed")

const DefaultLoadTimeout = 10 * time.Second

type HubMsg interface{ isHubMsg() }

// EnsureSession returns the control session for an encounter, starting it
// (and its load) if there is none. A session whose load failed is reloaded.
type EnsureSession struct {
	EncounterID string
	Reply       chan *syncctl.Controller
}

type GetSession struct {
	EncounterID string
	Reply       chan *syncctl.Controller
}

// RemoveSession closes the session. Reply gets whether there was one.
type RemoveSession struct {
	EncounterID string
	Reply       chan bool
}

type ShutdownHub struct {
	Done chan struct{}
}

type loadFailed struct {
	encounterID string
	ctl         *syncctl.Controller
}

func (EnsureSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}
func (loadFailed) isHubMsg()    {}

type Config struct {
	Store    store.Store
	Registry *ws.Registry
	Clock    clockwork.Clock
	Logger   *zap.Logger

	TransitionDelay time.Duration
	PollInterval    time.Duration
	LoadTimeout     time.Duration
	DisplayURL      func(encounterID string) string
}

type session struct {
	ctl    *syncctl.Controller
	failed bool
}

// Hub owns one control session per encounter being run.
type Hub struct {
	cfg      Config
	log      *zap.Logger
	inbox    chan HubMsg
	sessions map[string]*session
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewHub(parent context.Context, cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		cfg:      cfg,
		log:      cfg.Logger.Named("hub"),
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureSession:
				if s := h.sessions[msg.EncounterID]; s != nil {
					if s.failed {
						s.failed = false
						go h.load(msg.EncounterID, s.ctl)
					}
					msg.Reply <- s.ctl
					break
				}
				ctl := h.newController(msg.EncounterID)
				h.sessions[msg.EncounterID] = &session{ctl: ctl}
				h.log.Info("control session started", zap.String("encounter", msg.EncounterID))
				go h.load(msg.EncounterID, ctl)
				msg.Reply <- ctl

			case GetSession:
				var ctl *syncctl.Controller
				if s := h.sessions[msg.EncounterID]; s != nil {
					ctl = s.ctl
				}
				msg.Reply <- ctl // May be nil

			case RemoveSession:
				s := h.sessions[msg.EncounterID]
				if s != nil {
					delete(h.sessions, msg.EncounterID)
					s.ctl.Close()
					h.log.Info("control session ended", zap.String("encounter", msg.EncounterID))
				}
				if msg.Reply != nil {
					msg.Reply <- s != nil
				}

			case loadFailed:
				if s := h.sessions[msg.encounterID]; s != nil && s.ctl == msg.ctl {
					s.failed = true
				}

			case ShutdownHub:
				h.shutdown()
				h.cancel()
				if msg.Done != nil {
					close(msg.Done)
				}
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for id, s := range h.sessions {
		s.ctl.Close()
		delete(h.sessions, id)
	}
}

// newController wires a control session: its own channel link, a display
// opener backed by the websocket registry, and the display manager.
func (h *Hub) newController(encounterID string) *syncctl.Controller {
	log := h.cfg.Logger
	link := channel.NewLink(log.With(zap.String("encounter", encounterID)))

	var mgr *displaywin.Manager
	if h.cfg.Registry != nil {
		mgr = displaywin.New(h.cfg.Registry.Opener(encounterID, link.Receive), link, displaywin.Options{
			PollInterval: h.cfg.PollInterval,
			Clock:        h.cfg.Clock,
			Logger:       log,
		})
	}
	return syncctl.New(h.ctx, encounterID, h.cfg.Store, link, mgr, syncctl.Options{
		TransitionDelay: h.cfg.TransitionDelay,
		Clock:           h.cfg.Clock,
		Logger:          log,
		DisplayURL:      h.cfg.DisplayURL,
	})
}

func (h *Hub) load(encounterID string, ctl *syncctl.Controller) {
	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.LoadTimeout)
	defer cancel()
	if err := ctl.Load(ctx); err != nil {
		if errors.Is(err, syncctl.ErrClosed) {
			return
		}
		h.log.Warn("load failed", zap.String("encounter", encounterID), zap.Error(err))
		h.send(loadFailed{encounterID: encounterID, ctl: ctl})
	}
}

func (h *Hub) send(m HubMsg) bool {
	select {
	case h.inbox <- m:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Ensure(encounterID string) (*syncctl.Controller, error) {
	reply := make(chan *syncctl.Controller, 1)
	if !h.send(EnsureSession{EncounterID: encounterID, Reply: reply}) {
		return nil, ErrHubClosed
	}
	select {
	case ctl := <-reply:
		return ctl, nil
	case <-h.done:
		return nil, ErrHubClosed
	}
}

// Get returns the running session for encounterID, or nil.
func (h *Hub) Get(encounterID string) *syncctl.Controller {
	reply := make(chan *syncctl.Controller, 1)
	if !h.send(GetSession{EncounterID: encounterID, Reply: reply}) {
		return nil
	}
	select {
	case ctl := <-reply:
		return ctl
	case <-h.done:
		return nil
	}
}

func (h *Hub) Remove(encounterID string) bool {
	reply := make(chan bool, 1)
	if !h.send(RemoveSession{EncounterID: encounterID, Reply: reply}) {
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-h.done:
		return false
	}
}

// Shutdown closes every session and stops the hub.
func (h *Hub) Shutdown() {
	done := make(chan struct{})
	if h.send(ShutdownHub{Done: done}) {
		select {
		case <-done:
		case <-h.done:
		}
	}
	<-h.done
}
