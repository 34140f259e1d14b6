package window

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/DoyleJ11/initiative-tracker/internal/channel"
	"go.uber.org/zap"
)

// Page is mounted into a context when it loads a url. The returned func, if
// any, runs when the context navigates away or closes.
type Page func(c *Context) (unmount func())

// Listener receives every message posted to a context. src is the poster,
// as seen from the receiving context.
type Listener func(src channel.Target, data []byte)

type route struct {
	prefix string
	page   Page
}

// Browser runs browsing contexts in-process. Each context has its own event
// loop goroutine; posted messages and page loads are queued on it in order,
// so everything a page does runs single-threaded.
type Browser struct {
	log *zap.Logger

	mu       sync.Mutex
	routes   []route
	named    map[string]*Context
	contexts map[*Context]struct{}
	blocked  bool
}

func NewBrowser(log *zap.Logger) *Browser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Browser{
		log:      log,
		named:    make(map[string]*Context),
		contexts: make(map[*Context]struct{}),
	}
}

// Handle mounts page for every url starting with prefix. The longest prefix
// wins.
func (b *Browser) Handle(prefix string, page Page) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes = append(b.routes, route{prefix: prefix, page: page})
}

// BlockPopups makes every Open fail with ErrPopupBlocked.
func (b *Browser) BlockPopups(block bool) {
	b.mu.Lock()
	b.blocked = block
	b.mu.Unlock()
}

// NewContext opens a top-level tab at url.
func (b *Browser) NewContext(url string) *Context {
	b.mu.Lock()
	c := b.newContextLocked("", nil)
	b.mu.Unlock()
	c.navigate(url)
	return c
}

// OpenWindows counts contexts that have not been closed.
func (b *Browser) OpenWindows() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.contexts)
}

func (b *Browser) Shutdown() {
	b.mu.Lock()
	all := make([]*Context, 0, len(b.contexts))
	for c := range b.contexts {
		all = append(all, c)
	}
	b.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
}

func (b *Browser) newContextLocked(name string, opener *Context) *Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Context{
		b:         b,
		name:      name,
		opener:    opener,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		wake:      make(chan struct{}, 1),
		listeners: make(map[int]Listener),
	}
	b.contexts[c] = struct{}{}
	if name != "" {
		b.named[name] = c
	}
	go c.loop()
	return c
}

func (b *Browser) pageFor(url string) Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	var best route
	for _, r := range b.routes {
		if strings.HasPrefix(url, r.prefix) && len(r.prefix) >= len(best.prefix) {
			best = r
		}
	}
	return best.page
}

func (b *Browser) forget(c *Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.contexts, c)
	if c.name != "" && b.named[c.name] == c {
		delete(b.named, c.name)
	}
}

// Context is one browsing context: a tab or a popup.
type Context struct {
	b      *Browser
	name   string
	opener *Context
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wake   chan struct{}
	closed atomic.Bool
	focus  atomic.Int32

	mu           sync.Mutex
	url          string
	queue        []func()
	listeners    map[int]Listener
	nextListener int

	// owned by the loop goroutine
	loaded  bool
	unmount func()
}

func (c *Context) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			if c.unmount != nil {
				c.unmount()
				c.unmount = nil
			}
			return
		case <-c.wake:
			for {
				c.mu.Lock()
				if len(c.queue) == 0 {
					c.mu.Unlock()
					break
				}
				task := c.queue[0]
				c.queue = c.queue[1:]
				c.mu.Unlock()

				if c.ctx.Err() != nil {
					break
				}
				task()
			}
		}
	}
}

func (c *Context) enqueue(task func()) bool {
	if c.Closed() {
		return false
	}
	c.mu.Lock()
	c.queue = append(c.queue, task)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the context's event loop.
func (c *Context) Do(fn func()) bool { return c.enqueue(fn) }

func (c *Context) navigate(url string) {
	c.enqueue(func() {
		if c.loaded {
			if c.unmount != nil {
				c.unmount()
				c.unmount = nil
			}
			c.mu.Lock()
			clear(c.listeners)
			c.mu.Unlock()
		}
		c.loaded = true

		c.mu.Lock()
		c.url = url
		c.mu.Unlock()

		if page := c.b.pageFor(url); page != nil {
			c.b.log.Debug("page mounted", zap.String("url", url), zap.String("window", c.name))
			c.unmount = page(c)
		}
	})
}

func (c *Context) deliver(from *Context, data []byte) error {
	payload := append([]byte(nil), data...)
	ok := c.enqueue(func() {
		c.mu.Lock()
		listeners := make([]Listener, 0, len(c.listeners))
		for _, l := range c.listeners {
			listeners = append(listeners, l)
		}
		c.mu.Unlock()

		src := ref{from: c, to: from}
		for _, l := range listeners {
			l(src, payload)
		}
	})
	if !ok {
		return ErrClosed
	}
	return nil
}

// AddListener subscribes l to messages posted to this context.
func (c *Context) AddListener(l Listener) (remove func()) {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = l
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Open is window.open called from this context.
func (c *Context) Open(url, name string, features Features) (Window, error) {
	if c.Closed() {
		return nil, ErrClosed
	}

	b := c.b
	b.mu.Lock()
	if b.blocked {
		b.mu.Unlock()
		return nil, ErrPopupBlocked
	}
	if existing := b.named[name]; name != "" && existing != nil && !existing.Closed() {
		b.mu.Unlock()
		existing.navigate(url)
		return ref{from: c, to: existing}, nil
	}
	child := b.newContextLocked(name, c)
	b.mu.Unlock()

	b.log.Debug("window opened",
		zap.String("url", url),
		zap.String("window", name),
		zap.String("features", features.String()),
	)
	child.navigate(url)
	return ref{from: c, to: child}, nil
}

// Opener is the window that opened this one, or nil for a top-level tab.
func (c *Context) Opener() Window {
	if c.opener == nil {
		return nil
	}
	return ref{from: c, to: c.opener}
}

func (c *Context) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

func (c *Context) Name() string { return c.name }

func (c *Context) Closed() bool { return c.closed.Load() }

// FocusCount reports how many times the window was brought to the front.
func (c *Context) FocusCount() int { return int(c.focus.Load()) }

// Close closes the context. The page's unmount runs on the loop before it
// exits.
func (c *Context) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.cancel()
	c.b.forget(c)
}

// Done is closed once the context's loop has exited.
func (c *Context) Done() <-chan struct{} { return c.done }

// ref is a handle to the context `to`, held by the context `from`.
type ref struct {
	from, to *Context
}

func (r ref) Post(data []byte) error { return r.to.deliver(r.from, data) }
func (r ref) Name() string           { return r.to.name }
func (r ref) Closed() bool           { return r.to.Closed() }
func (r ref) Focus()                 { r.to.focus.Add(1) }
func (r ref) Close()                 { r.to.Close() }
