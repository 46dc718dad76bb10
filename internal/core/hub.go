package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Hub owns the set of live connections. Every membership change and every
// read used for a fan-out happens under mu, so a broadcast never sees a
// half-updated registry.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool

	messages MessageStore
	files    AttachmentStore
	verifier Verifier

	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Hub) { h.log = l }
}

// WithHeartbeat overrides the ping interval and pong deadline.
// Non-positive values keep the defaults.
func WithHeartbeat(interval, timeout time.Duration) Option {
	return func(h *Hub) {
		if interval > 0 {
			h.interval = interval
		}
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

// NewHub creates a new chat hub instance.
func NewHub(messages MessageStore, files AttachmentStore, verifier Verifier, opts ...Option) *Hub {
	h := &Hub{
		clients:  make(map[*Client]struct{}),
		messages: messages,
		files:    files,
		verifier: verifier,
		interval: DefaultHeartbeatInterval,
		timeout:  DefaultHeartbeatTimeout,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run blocks until ctx is done, then closes every client's event stream and
// refuses new registrations.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		close(c.Events)
		delete(h.clients, c)
	}
	h.log.Debug().Msg("hub stopped")
}

// Register adds c to the registry and pushes a fresh presence snapshot.
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	if _, exists := h.clients[c]; exists {
		h.mu.Unlock()
		return nil
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.log.Debug().Str("client", c.ID).Str("addr", c.Addr).Msg("client registered")
	h.BroadcastPresence()
	return nil
}

// Bind attaches id to a registered client. A client is bound at most once.
func (h *Hub) Bind(c *Client, id Identity) error {
	h.mu.Lock()
	if _, exists := h.clients[c]; !exists {
		h.mu.Unlock()
		return ErrNotRegistered
	}
	if !c.identity.CompareAndSwap(nil, &id) {
		h.mu.Unlock()
		return ErrAlreadyBound
	}
	h.mu.Unlock()

	h.log.Debug().Str("client", c.ID).Int64("user_id", id.UserID).Msg("client bound")
	h.BroadcastPresence()
	return nil
}

// Unregister removes c and closes its event stream. It reports whether c was
// still registered; only the call that removes it triggers a presence broadcast.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	_, exists := h.clients[c]
	if exists {
		delete(h.clients, c)
		close(c.Events)
	}
	h.mu.Unlock()

	if !exists {
		return false
	}
	h.log.Debug().Str("client", c.ID).Msg("client unregistered")
	h.BroadcastPresence()
	return true
}

// AllAlive returns every registered client that has not been declared dead.
func (h *Hub) AllAlive() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.State() != StateDead {
			out = append(out, c)
		}
	}
	return out
}

// ByIdentity returns the live clients bound to userID.
func (h *Hub) ByIdentity(userID int64) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byIdentityLocked(userID)
}

func (h *Hub) byIdentityLocked(userID int64) []*Client {
	var out []*Client
	for c := range h.clients {
		if c.State() == StateDead {
			continue
		}
		if id, ok := c.Identity(); ok && id.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

// Report sends err to c as an error frame.
func (h *Hub) Report(c *Client, err *CoreError) {
	h.send(c, &Event{Kind: EventError, Error: err})
}

func (h *Hub) send(c *Client, ev *Event) {
	h.mu.RLock()
	ok := h.enqueueLocked(c, ev)
	h.mu.RUnlock()

	if !ok {
		h.evict(c, "send buffer full")
	}
}

// enqueueLocked queues ev for c without blocking. Callers hold mu.
// It returns false only when c is registered but its buffer is full.
func (h *Hub) enqueueLocked(c *Client, ev *Event) bool {
	if _, ok := h.clients[c]; !ok {
		return true
	}
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}

// evict forcibly closes c and removes it from the registry.
func (h *Hub) evict(c *Client, reason string) {
	c.markDead()
	if c.transport != nil {
		if err := c.transport.Close(); err != nil {
			h.log.Debug().Err(err).Str("client", c.ID).Msg("close evicted transport")
		}
	}
	if h.Unregister(c) {
		h.log.Info().Str("client", c.ID).Str("reason", reason).Msg("client evicted")
	}
}
