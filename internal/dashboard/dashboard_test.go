package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/joeblew999/plat-tweetmap/internal/backend"
	"github.com/joeblew999/plat-tweetmap/internal/geo"
	"github.com/joeblew999/plat-tweetmap/internal/metrics"
	"github.com/joeblew999/plat-tweetmap/internal/query"
	"github.com/joeblew999/plat-tweetmap/internal/selection"
)

// fakeBackend serves canned data. A non-nil gate for an id blocks that
// id's Query call until the channel is closed.
type fakeBackend struct {
	mu        sync.Mutex
	queries   map[string]query.Query
	tweets    map[string][]query.Tweet
	features  map[string]geo.FeatureCollection
	failTweet bool
	gates     map[string]chan struct{}
	removed   []string
}

func newFake() *fakeBackend {
	return &fakeBackend{
		queries: map[string]query.Query{
			"a": {ID: "a", Name: "alpha"},
			"b": {ID: "b", Name: "beta"},
		},
		tweets: map[string][]query.Tweet{
			"a": {{ID: "t1", QueryID: "a", InteractionScore: 3}},
			"b": {{ID: "t2", QueryID: "b", InteractionScore: 5}},
		},
		features: map[string]geo.FeatureCollection{
			"a": {{ID: "t1", Score: 3}},
			"b": {{ID: "t2", Score: 5}},
		},
		gates: map[string]chan struct{}{},
	}
}

func (f *fakeBackend) ActiveQueries(ctx context.Context) ([]query.Query, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []query.Query
	for _, id := range []string{"a", "b"} {
		if q, ok := f.queries[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeBackend) Query(ctx context.Context, id string) (query.Query, error) {
	f.mu.Lock()
	gate := f.gates[id]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.queries[id]
	if !ok {
		return query.Query{}, backend.ErrNotFound
	}
	return q, nil
}

func (f *fakeBackend) CreateQuery(ctx context.Context, q query.Query) (query.Query, error) {
	return q, nil
}

func (f *fakeBackend) UpdateQuery(ctx context.Context, q query.Query) (query.Query, error) {
	return q, nil
}

func (f *fakeBackend) RemoveQuery(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.queries[id]; !ok {
		return backend.ErrNotFound
	}
	delete(f.queries, id)
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeBackend) ActiveTweets(ctx context.Context, limit int) ([]query.Tweet, error) {
	if f.failTweet {
		return nil, backend.ErrUnavailable
	}
	return append(f.tweets["a"], f.tweets["b"]...), nil
}

func (f *fakeBackend) QueryTweets(ctx context.Context, id string, limit int) ([]query.Tweet, error) {
	return f.tweets[id], nil
}

func (f *fakeBackend) ActiveFeatures(ctx context.Context) (geo.FeatureCollection, error) {
	return append(f.features["a"], f.features["b"]...), nil
}

func (f *fakeBackend) QueryFeatures(ctx context.Context, id string) (geo.FeatureCollection, error) {
	return f.features[id], nil
}

func TestActiveRefresh(t *testing.T) {
	a := NewActive(newFake(), 0, "score")
	if a.Snapshot().Loaded {
		t.Fatal("loaded before refresh")
	}
	a.Refresh(context.Background())

	s := a.Snapshot()
	if !s.Loaded || len(s.Queries) != 2 || len(s.Tweets) != 2 || len(s.Features) != 2 {
		t.Fatalf("snapshot=%+v", s)
	}
}

func TestActiveFailedDatasetIsEmpty(t *testing.T) {
	f := newFake()
	f.failTweet = true
	before := testutil.ToFloat64(metrics.FetchTotal.WithLabelValues(DatasetTweets, "error"))

	a := NewActive(f, 5, "score")
	a.Refresh(context.Background())

	s := a.Snapshot()
	if len(s.Tweets) != 0 || len(s.Queries) != 2 {
		t.Fatalf("snapshot=%+v", s)
	}
	if got := testutil.ToFloat64(metrics.FetchTotal.WithLabelValues(DatasetTweets, "error")); got != before+1 {
		t.Fatalf("error count=%v want %v", got, before+1)
	}
}

func TestActiveRemoveRefetches(t *testing.T) {
	f := newFake()
	a := NewActive(f, 5, "score")
	ctx := context.Background()
	a.Refresh(ctx)

	if !a.Confirm("a") || a.Snapshot().Pending == nil {
		t.Fatal("confirm did not open")
	}
	if a.Confirm("zzz") {
		t.Fatal("confirm of unlisted query")
	}
	if err := a.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	s := a.Snapshot()
	if len(s.Queries) != 1 || s.Queries[0].ID != "b" || s.Pending != nil {
		t.Fatalf("after remove=%+v", s)
	}
	if err := a.Remove(ctx, "a"); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("second remove err=%v", err)
	}
}

func TestQueryViewFencing(t *testing.T) {
	f := newFake()
	gate := make(chan struct{})
	f.gates["a"] = gate
	v := NewQueryView(f, 5, "score")
	before := testutil.ToFloat64(metrics.FetchStale.WithLabelValues(DatasetQuery))

	done := make(chan struct{})
	go func() {
		v.SetID(context.Background(), "a")
		close(done)
	}()

	// Wait until the slow request has registered its generation.
	for {
		if v.Snapshot().ID == "a" {
			break
		}
	}
	v.SetID(context.Background(), "b")
	close(gate)
	<-done

	s := v.Snapshot()
	if s.ID != "b" || s.Query == nil || s.Query.Name != "beta" {
		t.Fatalf("snapshot=%+v", s)
	}
	if len(s.Tweets) != 1 || s.Tweets[0].ID != "t2" {
		t.Fatalf("tweets=%+v", s.Tweets)
	}
	if got := testutil.ToFloat64(metrics.FetchStale.WithLabelValues(DatasetQuery)); got != before+1 {
		t.Fatalf("stale count=%v want %v", got, before+1)
	}
}

func TestQueryViewMissing(t *testing.T) {
	v := NewQueryView(newFake(), 5, "score")
	v.SetID(context.Background(), "nope")
	s := v.Snapshot()
	if !s.Loaded || s.Query != nil {
		t.Fatalf("snapshot=%+v", s)
	}
}

func TestClickSelection(t *testing.T) {
	v := NewQueryView(newFake(), 5, "score")
	hit := geojson.NewFeature(orb.Point{1, 2})
	hit.Properties = geojson.Properties{"id": "t2", "score": 5.0}

	if _, ok := v.Click([]selection.Hit{hit}); !ok {
		t.Fatal("expected selection")
	}
	if s := v.Snapshot(); s.Selected == nil || s.Selected.ID != "t2" {
		t.Fatalf("selected=%+v", s.Selected)
	}
	if _, ok := v.Click(nil); ok {
		t.Fatal("empty click selected")
	}
	if v.Snapshot().Selected != nil {
		t.Fatal("selection not cleared")
	}
}
