package ws

import (
	"errors"
	"fmt"
	"sync"

	"github.com/DoyleJ11/initiative-tracker/internal/channel"
	"github.com/DoyleJ11/initiative-tracker/internal/window"
	"github.com/google/uuid"
)

var (
	ErrAlreadyAttached = errors.New("display window already attached")
	errOutboxFull      = fmt.Errorf("display outbox full: %w", channel.ErrChannelUnavailable)
)

const outboxSize = 16

// RemoteWindow is a display window living at the far end of a websocket.
// Until a socket attaches it behaves like a window that has not finished
// loading; once the socket goes away it is closed for good.
type RemoteWindow struct {
	id      string
	key     slotKey
	url     string
	deliver Deliver
	reg     *Registry

	mu       sync.Mutex
	attached bool
	closed   bool
	focus    int
	out      chan []byte
	done     chan struct{}
}

func newRemoteWindow(reg *Registry, key slotKey, url string, deliver Deliver) *RemoteWindow {
	return &RemoteWindow{
		id:      uuid.NewString(),
		key:     key,
		url:     url,
		deliver: deliver,
		reg:     reg,
		out:     make(chan []byte, outboxSize),
		done:    make(chan struct{}),
	}
}

func (w *RemoteWindow) ID() string   { return w.id }
func (w *RemoteWindow) Name() string { return w.key.name }
func (w *RemoteWindow) URL() string  { return w.url }

// Post queues data for the socket writer. A slow display is dropped.
func (w *RemoteWindow) Post(data []byte) error {
	w.mu.Lock()
	switch {
	case w.closed:
		w.mu.Unlock()
		return window.ErrClosed
	case !w.attached:
		w.mu.Unlock()
		return window.ErrNotLoaded
	}

	select {
	case w.out <- append([]byte(nil), data...):
		w.mu.Unlock()
		return nil
	default:
	}
	w.closeLocked()
	w.mu.Unlock()
	w.reg.forget(w)
	return errOutboxFull
}

func (w *RemoteWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Focus is counted only; a remote display cannot be raised.
func (w *RemoteWindow) Focus() {
	w.mu.Lock()
	w.focus++
	w.mu.Unlock()
}

func (w *RemoteWindow) FocusCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.focus
}

func (w *RemoteWindow) Close() {
	w.mu.Lock()
	w.closeLocked()
	w.mu.Unlock()
	w.reg.forget(w)
}

func (w *RemoteWindow) closeLocked() {
	if w.closed {
		return
	}
	w.closed = true
	close(w.done)
}

func (w *RemoteWindow) attach() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.closed:
		return window.ErrClosed
	case w.attached:
		return ErrAlreadyAttached
	}
	w.attached = true
	return nil
}

// receive hands a frame from the display to the control side.
func (w *RemoteWindow) receive(data []byte) {
	if w.deliver != nil {
		w.deliver(w, data)
	}
}
