package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"
)

func TestHubPresenceFollowsMembership(t *testing.T) {
	hub := NewHub(nil, nil, nil)

	anon, _ := connect(t, hub, "anon", Identity{})
	a, _ := connect(t, hub, "a", alice)
	b, _ := connect(t, hub, "b", bob)

	for _, c := range []*Client{anon, a, b} {
		ev := lastPresence(t, c.Events)
		if got := userIDs(ev.Online); !slices.Equal(got, []int64{1, 2}) {
			t.Fatalf("%s: expected online [1 2], got %v", c.ID, got)
		}
	}

	if !hub.Unregister(b) {
		t.Fatal("expected bob to be removed")
	}
	for _, c := range []*Client{anon, a} {
		ev := lastPresence(t, c.Events)
		if got := userIDs(ev.Online); !slices.Equal(got, []int64{1}) {
			t.Fatalf("%s: expected online [1], got %v", c.ID, got)
		}
	}
}

func TestHubPresenceEncodesWireShape(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	a, _ := connect(t, hub, "a", alice)

	data, err := lastPresence(t, a.Events).Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if want := `{"online":[{"userId":1,"username":"alice"}]}`; string(data) != want {
		t.Fatalf("expected %s, got %s", want, data)
	}
}

func TestHubUnboundClientStillReceivesPresence(t *testing.T) {
	hub := NewHub(nil, nil, nil)

	anon, _ := connect(t, hub, "anon", Identity{})
	ev := mustEvent(t, anon.Events, EventPresence)
	if ev.Online == nil || len(ev.Online) != 0 {
		t.Fatalf("expected empty online list, got %+v", ev.Online)
	}

	data, _ := ev.Encode()
	if string(data) != `{"online":[]}` {
		t.Fatalf("unexpected payload %s", data)
	}
}

func TestHubPresenceIsIdempotent(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	a, _ := connect(t, hub, "a", alice)
	connect(t, hub, "b", bob)
	drain(a.Events)

	hub.BroadcastPresence()
	hub.BroadcastPresence()

	first := mustEvent(t, a.Events, EventPresence)
	second := mustEvent(t, a.Events, EventPresence)

	d1, _ := first.Encode()
	d2, _ := second.Encode()
	if string(d1) != string(d2) {
		t.Fatalf("snapshots differ: %s vs %s", d1, d2)
	}
}

func TestHubSameUserListedOnce(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	connect(t, hub, "a1", alice)
	connect(t, hub, "a2", alice)

	if got := userIDs(hub.Presence()); !slices.Equal(got, []int64{1}) {
		t.Fatalf("expected alice once, got %v", got)
	}
	if n := len(hub.ByIdentity(alice.UserID)); n != 2 {
		t.Fatalf("expected 2 connections for alice, got %d", n)
	}
}

func TestHubBindRules(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	a, _ := connect(t, hub, "a", alice)

	if err := hub.Bind(a, bob); !errors.Is(err, ErrAlreadyBound) {
		t.Fatalf("expected ErrAlreadyBound, got %v", err)
	}
	if id, _ := a.Identity(); id != alice {
		t.Fatalf("identity changed to %+v", id)
	}

	stranger := NewClient("s", "test", &fakeTransport{}, 0)
	if err := hub.Bind(stranger, bob); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestHubUnregisterOnce(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	a, _ := connect(t, hub, "a", alice)
	observer, _ := connect(t, hub, "o", bob)
	drain(observer.Events)

	if !hub.Unregister(a) {
		t.Fatal("first unregister should remove the client")
	}
	if hub.Unregister(a) {
		t.Fatal("second unregister should be a no-op")
	}

	mustEvent(t, observer.Events, EventPresence)
	assertNoEvent(t, observer.Events, EventPresence, 50*time.Millisecond)

	drain(a.Events)
	if _, ok := <-a.Events; ok {
		t.Fatal("expected events channel to be closed")
	}
}

func TestHubRunClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil, nil, nil)

	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	a, _ := connect(t, hub, "a", alice)
	cancel()
	<-done

	drain(a.Events)
	if _, ok := <-a.Events; ok {
		t.Fatal("expected events channel to be closed")
	}
	if err := hub.Register(NewClient("late", "test", &fakeTransport{}, 0)); !errors.Is(err, ErrHubClosed) {
		t.Fatalf("expected ErrHubClosed, got %v", err)
	}
	if hub.Unregister(a) {
		t.Fatal("client should already be gone")
	}
}

func TestHubEvictsSlowConsumer(t *testing.T) {
	hub := NewHub(nil, nil, nil)

	tr := &fakeTransport{}
	slow := NewClient("slow", "test", tr, 1)
	if err := hub.Register(slow); err != nil {
		t.Fatal(err)
	}
	// The registration snapshot fills the buffer; the next one cannot be queued.
	hub.BroadcastPresence()

	if tr.closed.Load() == 0 {
		t.Fatal("expected slow client transport to be closed")
	}
	if len(hub.AllAlive()) != 0 {
		t.Fatal("expected slow client to be removed")
	}
}

func TestHubConcurrentChurnConverges(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	stay, _ := connect(t, hub, "stay", carol)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := NewClient(fmt.Sprintf("c%d", i), "test", &fakeTransport{}, 256)
			if err := hub.Register(c); err != nil {
				t.Error(err)
				return
			}
			_ = hub.Bind(c, Identity{UserID: int64(100 + i), Username: "churn"})
			if i%2 == 0 {
				hub.Unregister(c)
			}
		}(i)
	}

	// Keep the observer's buffer from overflowing while churn runs.
	var seen []*Event
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for ev := range stay.Events {
			seen = append(seen, ev)
		}
	}()

	wg.Wait()
	want := userIDs(hub.Presence())
	hub.Unregister(stay)
	<-collected

	var last *Event
	for _, ev := range seen {
		if ev.Kind == EventPresence {
			last = ev
		}
	}
	if last == nil {
		t.Fatal("no presence received")
	}
	if got := userIDs(last.Online); !slices.Equal(got, want) {
		t.Fatalf("last snapshot %v does not match registry %v", got, want)
	}
	if len(want) != 11 {
		t.Fatalf("expected carol plus 10 churn clients, got %v", want)
	}
}
