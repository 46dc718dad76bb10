package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vinrai007/neww-mesgar10/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// lastPresence drains ch and returns the newest presence event seen.
func lastPresence(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()

	var last *Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return last
			}
			if ev.Kind == EventPresence {
				last = ev
			}
		default:
			if last == nil {
				t.Fatal("no presence event queued")
			}
			return last
		}
	}
}

func drain(ch <-chan *Event) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func assertNoEvent(t *testing.T, ch <-chan *Event, kind EventKind, wait time.Duration) {
	t.Helper()

	deadline := time.After(wait)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Kind == kind {
				t.Fatalf("unexpected %v event: %+v", kind, ev)
			}
		case <-deadline:
			return
		}
	}
}

func userIDs(online []Identity) []int64 {
	ids := make([]int64, 0, len(online))
	for _, id := range online {
		ids = append(ids, id.UserID)
	}
	return ids
}

type fakeTransport struct {
	mute   atomic.Bool // when set, pings never get a pong
	pings  atomic.Int32
	closed atomic.Int32
}

func (f *fakeTransport) Ping(ctx context.Context) error {
	f.pings.Add(1)
	if f.mute.Load() {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed.Add(1)
	return nil
}

type fakeVerifier map[string]Identity

func (v fakeVerifier) Verify(_ context.Context, credential string) (Identity, error) {
	id, ok := v[credential]
	if !ok {
		return Identity{}, errors.New("unknown token")
	}
	return id, nil
}

type fakeMessages struct {
	mu        sync.Mutex
	messages  []*store.Message
	unread    map[int64]int64
	createErr error
	unreadErr error
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{unread: make(map[int64]int64)}
}

func (f *fakeMessages) CreateMessage(_ context.Context, msg *store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return f.createErr
	}
	msg.ID = int64(len(f.messages) + 1)
	msg.CreatedAt = time.Now()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeMessages) IncrementUnread(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.unreadErr != nil {
		return f.unreadErr
	}
	f.unread[userID]++
	return nil
}

func (f *fakeMessages) stored() []*store.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*store.Message(nil), f.messages...)
}

func (f *fakeMessages) unreadFor(userID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread[userID]
}

var (
	alice = Identity{UserID: 1, Username: "alice"}
	bob   = Identity{UserID: 2, Username: "bob"}
	carol = Identity{UserID: 3, Username: "carol"}
)

func testVerifier() fakeVerifier {
	return fakeVerifier{"alice-token": alice, "bob-token": bob, "carol-token": carol}
}

// connect registers a new client and, when id is non-zero, binds it.
func connect(t *testing.T, h *Hub, name string, id Identity) (*Client, *fakeTransport) {
	t.Helper()

	tr := &fakeTransport{}
	c := NewClient(name, "test", tr, 64)
	if err := h.Register(c); err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	if id.UserID != 0 {
		if err := h.Bind(c, id); err != nil {
			t.Fatalf("bind %s: %v", name, err)
		}
	}
	return c, tr
}
