package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestViewsPerPage(t *testing.T) {
	v := NewViews(newFake(), 10, "score")
	a, b := NewID(), NewID()

	pa, err := v.Page(a)
	if err != nil {
		t.Fatalf("Page(a): %v", err)
	}
	pb, err := v.Page(b)
	if err != nil {
		t.Fatalf("Page(b): %v", err)
	}
	if pa == pb || pa.Active == pb.Active || pa.Query == pb.Query {
		t.Fatal("pages share view-models")
	}
	again, _ := v.Page(a)
	if again != pa {
		t.Fatal("same id returned a new page")
	}

	ctx := context.Background()
	pa.Query.SetID(ctx, "a")
	pb.Query.SetID(ctx, "b")
	if got := pa.Query.Snapshot().ID; got != "a" {
		t.Fatalf("page a shows %q", got)
	}
	if got := pb.Query.Snapshot().ID; got != "b" {
		t.Fatalf("page b shows %q", got)
	}
}

func TestViewsRejectMalformedID(t *testing.T) {
	v := NewViews(newFake(), 10, "score")
	for _, id := range []string{"", "tab-1", "'); alert(1); ('"} {
		if _, err := v.Page(id); !errors.Is(err, ErrInvalidView) {
			t.Fatalf("Page(%q) err=%v", id, err)
		}
	}
	if v.Len() != 0 {
		t.Fatalf("len=%d", v.Len())
	}
}

func TestViewsExpireWhenIdle(t *testing.T) {
	c := &clock{t: time.Date(2022, 3, 1, 12, 0, 0, 0, time.UTC)}
	v := NewViews(newFake(), 10, "score", WithViewTTL(10*time.Minute), WithViewClock(c.now))
	a, b := NewID(), NewID()

	pa, _ := v.Page(a)
	v.Page(b)
	c.advance(6 * time.Minute)
	v.Page(a) // touch

	c.advance(6 * time.Minute)
	if n := v.Sweep(); n != 1 {
		t.Fatalf("swept %d want 1", n)
	}
	if v.Len() != 1 {
		t.Fatalf("len=%d", v.Len())
	}
	if got, _ := v.Page(a); got != pa {
		t.Fatal("touched page was swept")
	}

	c.advance(time.Hour)
	if got, _ := v.Page(a); got == pa {
		t.Fatal("expired page came back")
	}
	if v.Len() != 1 {
		t.Fatalf("len after expiry=%d", v.Len())
	}
}

func TestViewsCapEvictsLeastRecent(t *testing.T) {
	c := &clock{t: time.Date(2022, 3, 1, 12, 0, 0, 0, time.UTC)}
	v := NewViews(newFake(), 10, "score", WithMaxViews(2), WithViewClock(c.now))
	a, b, d := NewID(), NewID(), NewID()

	pa, _ := v.Page(a)
	c.advance(time.Second)
	pb, _ := v.Page(b)
	c.advance(time.Second)
	v.Page(a)
	c.advance(time.Second)
	v.Page(d)

	if v.Len() != 2 {
		t.Fatalf("len=%d want 2", v.Len())
	}
	if got, _ := v.Page(a); got != pa {
		t.Fatal("recent page evicted")
	}
	if got, _ := v.Page(b); got == pb {
		t.Fatal("least recent page kept")
	}
}
