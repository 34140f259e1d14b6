package displaywin

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// poller calls check every interval and fires onClosed once, the first time
// check reports true. Swap this out if the platform ever offers a reliable
// close event.
type poller struct {
	stop chan struct{}
	once sync.Once
}

func startPoller(clock clockwork.Clock, interval time.Duration, check func() bool, onClosed func()) *poller {
	p := &poller{stop: make(chan struct{})}
	ticker := clock.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.Chan():
				if check() {
					onClosed()
					return
				}
			}
		}
	}()
	return p
}

// Stop is safe to call more than once and from onClosed's caller.
func (p *poller) Stop() {
	p.once.Do(func() { close(p.stop) })
}
