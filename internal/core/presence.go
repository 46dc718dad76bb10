package core

import (
	"cmp"
	"slices"

	"github.com/samber/lo"
)

// Presence returns the users with at least one bound, live connection,
// ordered by user id.
func (h *Hub) Presence() []Identity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.presenceLocked()
}

func (h *Hub) presenceLocked() []Identity {
	online := make([]Identity, 0, len(h.clients))
	for c := range h.clients {
		if c.State() == StateDead {
			continue
		}
		if id, ok := c.Identity(); ok {
			online = append(online, id)
		}
	}
	online = lo.UniqBy(online, func(id Identity) int64 { return id.UserID })
	slices.SortFunc(online, func(a, b Identity) int { return cmp.Compare(a.UserID, b.UserID) })
	return online
}

// BroadcastPresence sends the current snapshot to every live client,
// unbound ones included. It holds the write lock across snapshot and fan-out,
// so broadcasts are queued in the order their snapshots were taken and the
// last one a client receives reflects the latest membership.
func (h *Hub) BroadcastPresence() {
	var slow []*Client

	h.mu.Lock()
	ev := &Event{Kind: EventPresence, Online: h.presenceLocked()}
	if _, err := ev.Encode(); err != nil {
		h.mu.Unlock()
		h.log.Error().Err(err).Msg("encode presence")
		return
	}
	for c := range h.clients {
		if c.State() == StateDead {
			continue
		}
		if !h.enqueueLocked(c, ev) {
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.evict(c, "send buffer full")
	}
}
