package core

import (
	"context"
	"fmt"
	"time"
)

// HeartbeatState is the liveness state of one connection.
type HeartbeatState int32

const (
	// StateAlive is the initial state; the next ping is scheduled.
	StateAlive HeartbeatState = iota
	// StateAwaitingPong means a ping is out and its deadline is running.
	StateAwaitingPong
	// StateDead is terminal. The connection is being evicted.
	StateDead
)

func (s HeartbeatState) String() string {
	switch s {
	case StateAlive:
		return "alive"
	case StateAwaitingPong:
		return "awaiting_pong"
	case StateDead:
		return "dead"
	default:
		return fmt.Sprintf("HeartbeatState(%d)", int32(s))
	}
}

const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultHeartbeatTimeout  = time.Second
)

// Watch runs the heartbeat for c until ctx is done or c is evicted.
// A ping that gets no pong within the timeout kills the connection; there is
// no retry.
func (h *Hub) Watch(ctx context.Context, c *Client) {
	if c.transport == nil {
		return
	}

	timer := time.NewTimer(h.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if !c.transition(StateAlive, StateAwaitingPong) {
			return
		}

		pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := c.transport.Ping(pingCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.log.Info().Err(err).Str("client", c.ID).Str("addr", c.Addr).Msg("heartbeat timed out")
			h.evict(c, "heartbeat timeout")
			return
		}

		if !c.transition(StateAwaitingPong, StateAlive) {
			return
		}
		timer.Reset(h.interval)
	}
}
