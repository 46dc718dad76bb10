package core

import (
	"context"
	"sync/atomic"
)

const defaultSendBuffer = 32

// Transport is the part of a live connection the hub drives directly.
type Transport interface {
	// Ping sends a ping and blocks until the matching pong arrives or ctx is done.
	Ping(ctx context.Context) error
	// Close drops the connection without a closing handshake.
	Close() error
}

// Client is one live connection as seen by the core layer.
//
// Events is owned by the hub: it is closed exactly once, when the client
// leaves the registry or the hub shuts down.
type Client struct {
	ID     string
	Addr   string
	Events chan *Event

	transport Transport
	identity  atomic.Pointer[Identity]
	state     atomic.Int32
}

// NewClient constructs an unbound, alive client.
func NewClient(id, addr string, t Transport, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Client{
		ID:        id,
		Addr:      addr,
		Events:    make(chan *Event, buffer),
		transport: t,
	}
}

// Identity returns the bound identity, if any.
func (c *Client) Identity() (Identity, bool) {
	id := c.identity.Load()
	if id == nil {
		return Identity{}, false
	}
	return *id, true
}

// State reports the heartbeat state.
func (c *Client) State() HeartbeatState {
	return HeartbeatState(c.state.Load())
}

func (c *Client) transition(from, to HeartbeatState) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

func (c *Client) markDead() {
	c.state.Store(int32(StateDead))
}
