package channel

import (
	"errors"
	"sync"

	"github.com/DoyleJ11/initiative-tracker/internal/encounter"
	"go.uber.org/zap"
)

// Target is anything a message can be posted to: the other window, as seen
// from this one.
type Target interface {
	Post(data []byte) error
}

// Handler gets one call per inbound message. Every variant has its own
// method, so adding a variant breaks every handler until it is handled.
type Handler interface {
	RequestSnapshot(src Target)
	SnapshotPush(src Target, snap encounter.Snapshot)
	SnapshotPending(src Target)
}

// Dispatch routes msg to the matching method of h.
func Dispatch(h Handler, src Target, msg Message) {
	switch m := msg.(type) {
	case RequestSnapshot:
		h.RequestSnapshot(src)
	case SnapshotPush:
		h.SnapshotPush(src, m.Snapshot)
	case SnapshotPending:
		h.SnapshotPending(src)
	}
}

// Link is one window's end of the cross-window channel.
type Link struct {
	log *zap.Logger

	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

func NewLink(log *zap.Logger) *Link {
	if log == nil {
		log = zap.NewNop()
	}
	return &Link{log: log, handlers: make(map[int]Handler)}
}

// Send posts msg to target. It never fails: a missing or closed target means
// the other side is gone, and it will ask again when it comes back.
func (l *Link) Send(target Target, msg Message) {
	if target == nil {
		l.log.Debug("send skipped: no target", zap.String("msg", msgName(msg)))
		return
	}
	data, err := Encode(msg)
	if err != nil {
		l.log.Error("encode message", zap.Error(err))
		return
	}
	if err := target.Post(data); err != nil {
		if errors.Is(err, ErrChannelUnavailable) {
			l.log.Debug("channel unavailable", zap.String("msg", msgName(msg)), zap.Error(err))
			return
		}
		l.log.Warn("post message", zap.String("msg", msgName(msg)), zap.Error(err))
	}
}

// OnReceive registers h and returns a func that removes it again.
func (l *Link) OnReceive(h Handler) (remove func()) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.handlers[id] = h
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.handlers, id)
		l.mu.Unlock()
	}
}

// Receive is fed every raw frame that arrives at this window. src is the
// window it came from, so handlers can reply to it directly.
func (l *Link) Receive(src Target, data []byte) {
	msg, err := Decode(data)
	if err != nil {
		l.log.Warn("discarding message", zap.Error(err), zap.Int("bytes", len(data)))
		return
	}

	l.mu.RLock()
	handlers := make([]Handler, 0, len(l.handlers))
	for _, h := range l.handlers {
		handlers = append(handlers, h)
	}
	l.mu.RUnlock()

	for _, h := range handlers {
		Dispatch(h, src, msg)
	}
}

func msgName(msg Message) string {
	switch msg.(type) {
	case RequestSnapshot:
		return TypeRequestSnapshot
	case SnapshotPush:
		return TypeSnapshotPush
	case SnapshotPending:
		return TypeSnapshotPending
	default:
		return "unknown"
	}
}
