package ws

import (
	"sync"

	"github.com/DoyleJ11/initiative-tracker/internal/channel"
	"github.com/DoyleJ11/initiative-tracker/internal/window"
	"go.uber.org/zap"
)

// Deliver is called with every frame a remote display sends. src is the
// display's window, so replies can be posted straight back.
type Deliver func(src channel.Target, data []byte)

type slotKey struct {
	encounterID string
	name        string
}

// Registry holds the display windows controllers have opened until a
// websocket attaches to them, and for as long as it stays attached.
type Registry struct {
	log     *zap.Logger
	enabled bool

	mu     sync.Mutex
	slots  map[slotKey]*RemoteWindow
	closed bool
}

// NewRegistry returns a registry. With enabled false every open is refused
// the way a popup blocker would.
func NewRegistry(log *zap.Logger, enabled bool) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		log:     log.Named("ws"),
		enabled: enabled,
		slots:   make(map[slotKey]*RemoteWindow),
	}
}

// Opener returns the window opener for one encounter's control session.
// Frames from its displays are handed to deliver.
func (r *Registry) Opener(encounterID string, deliver Deliver) window.Opener {
	return opener{reg: r, encounterID: encounterID, deliver: deliver}
}

type opener struct {
	reg         *Registry
	encounterID string
	deliver     Deliver
}

func (o opener) Open(url, name string, features window.Features) (window.Window, error) {
	r := o.reg
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled || r.closed {
		return nil, window.ErrPopupBlocked
	}
	key := slotKey{encounterID: o.encounterID, name: name}
	if w := r.slots[key]; w != nil && !w.Closed() {
		return w, nil
	}

	w := newRemoteWindow(r, key, url, o.deliver)
	r.slots[key] = w
	r.log.Debug("display slot opened",
		zap.String("encounter", o.encounterID),
		zap.String("window", name),
		zap.String("url", url),
		zap.String("features", features.String()),
	)
	return w, nil
}

func (r *Registry) lookup(encounterID, name string) *RemoteWindow {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := r.slots[slotKey{encounterID: encounterID, name: name}]
	if w == nil || w.Closed() {
		return nil
	}
	return w
}

func (r *Registry) forget(w *RemoteWindow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots[w.key] == w {
		delete(r.slots, w.key)
	}
}

// Len reports how many display windows are open.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Close refuses further opens and closes every display window.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	windows := make([]*RemoteWindow, 0, len(r.slots))
	for _, w := range r.slots {
		windows = append(windows, w)
	}
	r.mu.Unlock()

	for _, w := range windows {
		w.Close()
	}
}
