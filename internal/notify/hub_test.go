package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubRoutesByLocation(t *testing.T) {
	hub := NewHub(nil)
	branch1 := hub.Subscribe("branch1", 4)
	all := hub.Subscribe("", 4)
	branch2 := hub.Subscribe("branch2", 4)

	hub.Notify(context.Background(), "branch1", Event{Action: ActionBooked, EntryID: "e1"})

	got := <-branch1.C
	assert.Equal(t, "e1", got.EntryID)
	assert.Equal(t, "branch1", got.LocationID)
	got = <-all.C
	assert.Equal(t, ActionBooked, got.Action)
	select {
	case ev := <-branch2.C:
		t.Fatalf("unexpected event for branch2: %+v", ev)
	default:
	}
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub(nil)
	sub := hub.Subscribe("branch1", 1)

	hub.Notify(context.Background(), "branch1", Event{EntryID: "first"})
	hub.Notify(context.Background(), "branch1", Event{EntryID: "second"})

	got := <-sub.C
	assert.Equal(t, "first", got.EntryID)
	select {
	case ev := <-sub.C:
		t.Fatalf("expected dropped event, got %+v", ev)
	default:
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(nil)
	sub := hub.Subscribe("branch1", 1)
	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)

	_, open := <-sub.C
	require.False(t, open)
	hub.Notify(context.Background(), "branch1", Event{EntryID: "after"})
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewHub(nil), NewHub(nil)
	subA, subB := a.Subscribe("", 1), b.Subscribe("", 1)

	Multi{a, b, Nop{}}.Notify(context.Background(), "branch1", Event{EntryID: "e1"})

	assert.Equal(t, "e1", (<-subA.C).EntryID)
	assert.Equal(t, "e1", (<-subB.C).EntryID)
}
