package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joeblew999/plat-tweetmap/internal/geo"
	"github.com/joeblew999/plat-tweetmap/internal/query"
)

type memQueries struct {
	created, updated []query.Query
}

func (m *memQueries) ActiveQueries(context.Context) ([]query.Query, error) { return nil, nil }
func (m *memQueries) Query(context.Context, string) (query.Query, error) { return query.Query{}, nil }
func (m *memQueries) RemoveQuery(context.Context, string) error { return nil }

func (m *memQueries) CreateQuery(_ context.Context, q query.Query) (query.Query, error) {
	q.ID = "new-1"
	m.created = append(m.created, q)
	return q, nil
}

func (m *memQueries) UpdateQuery(_ context.Context, q query.Query) (query.Query, error) {
	m.updated = append(m.updated, q)
	return q, nil
}

func validQuery() query.Query {
	return query.Query{
		Name:      "floods",
		StartDate: time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2022, 3, 2, 0, 0, 0, 0, time.UTC),
		Keywords:  []string{"flood"},
		Frequency: 5,
		MaxTweets: 10,
	}
}

func TestEventBusFanOut(t *testing.T) {
	bus := NewEventBus()
	a, b := bus.Subscribe(), bus.Subscribe()
	bus.Publish(Event{Resource: ResourceQueries, Action: ActionDeleted, ID: "q1"})

	for _, ch := range []chan Event{a, b} {
		select {
		case e := <-ch:
			if e.ID != "q1" || e.Action != ActionDeleted {
				t.Fatalf("event=%+v", e)
			}
		default:
			t.Fatal("event not delivered")
		}
	}

	bus.Unsubscribe(a)
	bus.Unsubscribe(a) // second call is a no-op
	if _, ok := <-a; ok {
		t.Fatal("channel not closed")
	}
}

func TestEventBusSkipsFullSubscriber(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	for i := 0; i < cap(ch)+10; i++ {
		bus.Publish(Event{ID: "x"})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("len=%d cap=%d", len(ch), cap(ch))
	}
}

func TestRegionSessionMovesArePublished(t *testing.T) {
	bus := NewEventBus()
	events := bus.Subscribe()
	svc := NewRegionService(bus)

	sess := svc.Open("", geo.GeoPoint{Longitude: -122.4, Latitude: 37.8})
	if svc.Len() != 1 {
		t.Fatalf("len=%d", svc.Len())
	}
	ed := sess.Editor
	ed.PointerDown()
	ed.Move(geo.GeoPoint{Longitude: -122.3, Latitude: 37.7})
	ed.Move(geo.GeoPoint{Longitude: -122.2, Latitude: 37.6})
	ed.PointerUp()

	var moved, committed int
	for len(events) > 0 {
		e := <-events
		if e.ID != sess.ID || e.Resource != ResourceRegions {
			t.Fatalf("event=%+v", e)
		}
		switch e.Action {
		case ActionMoved:
			moved++
		case ActionCommitted:
			committed++
			if e.Position.Longitude != -122.2 {
				t.Fatalf("commit position=%+v", e.Position)
			}
		}
	}
	if moved != 2 || committed != 1 {
		t.Fatalf("moved=%d committed=%d", moved, committed)
	}
}

func TestRegionCancelRestores(t *testing.T) {
	bus := NewEventBus()
	svc := NewRegionService(bus)
	start := geo.GeoPoint{Longitude: 1, Latitude: 1}
	sess := svc.Open("", start)

	if _, ok, _ := svc.Cancel(sess.ID); ok {
		t.Fatal("cancel while idle reported applied")
	}
	sess.Editor.PointerDown()
	sess.Editor.Move(geo.GeoPoint{Longitude: 5, Latitude: 5})

	events := bus.Subscribe()
	defer bus.Unsubscribe(events)
	p, ok, err := svc.Cancel(sess.ID)
	if err != nil || !ok || p != start {
		t.Fatalf("cancel p=%+v ok=%v err=%v", p, ok, err)
	}

	var got []Event
	for len(events) > 0 {
		got = append(got, <-events)
	}
	if len(got) != 1 || got[0].Action != ActionCancelled || *got[0].Position != start {
		t.Fatalf("cancel events=%+v, want one cancelled at %v", got, start)
	}
}

func TestRegionSessionsExpireWhenIdle(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	bus := NewEventBus()
	svc := NewRegionService(bus, WithSessionTTL(10*time.Minute), WithClock(clock))

	idle := svc.Open("", geo.GeoPoint{})
	busy := svc.Open("q1", geo.GeoPoint{})

	now = now.Add(6 * time.Minute)
	if _, err := svc.Get(busy.ID); err != nil {
		t.Fatalf("Get busy: %v", err)
	}

	events := bus.Subscribe()
	defer bus.Unsubscribe(events)
	now = now.Add(5 * time.Minute)
	if n := svc.Sweep(); n != 1 {
		t.Fatalf("swept %d sessions, want 1", n)
	}
	if _, err := svc.Get(idle.ID); !errors.Is(err, ErrNoSession) {
		t.Fatalf("idle session still open: %v", err)
	}
	if _, err := svc.Get(busy.ID); err != nil {
		t.Fatalf("touched session expired: %v", err)
	}
	if e := <-events; e.Action != ActionDeleted || e.ID != idle.ID {
		t.Fatalf("expiry event=%+v", e)
	}

	// Opening a session also sweeps.
	now = now.Add(time.Hour)
	svc.Open("", geo.GeoPoint{})
	if svc.Len() != 1 {
		t.Fatalf("len=%d after open, want 1", svc.Len())
	}
}

func TestRegionSaveCreatesAtMarker(t *testing.T) {
	svc := NewRegionService(NewEventBus())
	qs := &memQueries{}
	sess := svc.Open("", geo.GeoPoint{Longitude: 1, Latitude: 1})
	sess.Editor.PointerDown()
	sess.Editor.Move(geo.GeoPoint{Longitude: 2, Latitude: 3})
	sess.Editor.PointerUp()

	q, err := svc.Save(context.Background(), sess.ID, validQuery(), qs)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if q.ID != "new-1" || q.Location != (geo.GeoPoint{Longitude: 2, Latitude: 3}) {
		t.Fatalf("saved=%+v", q)
	}
	if len(qs.created) != 1 || len(qs.updated) != 0 {
		t.Fatalf("created=%d updated=%d", len(qs.created), len(qs.updated))
	}
	if _, err := svc.Get(sess.ID); !errors.Is(err, ErrNoSession) {
		t.Fatalf("session still open: %v", err)
	}
}

func TestRegionSaveUpdatesAndValidates(t *testing.T) {
	svc := NewRegionService(NewEventBus())
	qs := &memQueries{}
	sess := svc.Open("q7", geo.GeoPoint{Longitude: 1, Latitude: 1})

	bad := validQuery()
	bad.Keywords = nil
	if _, err := svc.Save(context.Background(), sess.ID, bad, qs); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("err=%v", err)
	}
	if svc.Len() != 1 {
		t.Fatal("invalid save closed the session")
	}

	q, err := svc.Save(context.Background(), sess.ID, validQuery(), qs)
	if err != nil || q.ID != "q7" || len(qs.updated) != 1 {
		t.Fatalf("q=%+v err=%v updated=%d", q, err, len(qs.updated))
	}
}

func TestRegionCloseUnknown(t *testing.T) {
	if err := NewRegionService(NewEventBus()).Close("nope"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err=%v", err)
	}
}
