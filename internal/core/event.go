package core

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/samber/lo"

	"github.com/vinrai007/neww-mesgar10/internal/proto"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventPresence carries the full list of online users.
	EventPresence EventKind = iota
	// EventDelivery carries a stored message to its recipient.
	EventDelivery
	// EventError notifies a client that its frame was rejected.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPresence:
		return "presence"
	case EventDelivery:
		return "delivery"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Delivery is the routed form of a persisted message.
type Delivery struct {
	ID        int64
	Sender    int64
	Recipient int64
	Text      *string
	File      *string
}

// Event is sent to clients to describe what happened in the system.
// One Event is shared by every client it is fanned out to, so it must not be
// modified after it is queued.
type Event struct {
	Kind     EventKind
	Online   []Identity // EventPresence
	Delivery *Delivery  // EventDelivery
	Error    *CoreError // EventError

	once sync.Once
	data []byte
	err  error
}

// Encode returns the wire form of the event. The payload is built once and
// reused by every writer.
func (e *Event) Encode() ([]byte, error) {
	e.once.Do(func() {
		e.data, e.err = json.Marshal(e.wire())
	})
	return e.data, e.err
}

func (e *Event) wire() any {
	switch e.Kind {
	case EventPresence:
		return proto.Presence{
			Online: lo.Map(e.Online, func(id Identity, _ int) proto.OnlineUser {
				return proto.OnlineUser{UserID: id.UserID, Username: id.Username}
			}),
		}
	case EventDelivery:
		d := e.Delivery
		if d == nil {
			d = &Delivery{}
		}
		return proto.Delivery{
			Text:      d.Text,
			Sender:    d.Sender,
			Recipient: d.Recipient,
			File:      d.File,
			ID:        d.ID,
		}
	case EventError:
		ce := e.Error
		if ce == nil {
			ce = coreError(ErrCodeBadRequest, "unknown error")
		}
		return proto.ErrorFrame{Error: &proto.Error{Code: ce.Code, Msg: ce.Message}}
	default:
		return proto.ErrorFrame{Error: &proto.Error{Code: ErrCodeBadRequest, Msg: "unsupported event"}}
	}
}
