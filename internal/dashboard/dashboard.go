// Package dashboard owns the dashboard view-models: the overview of all
// active queries and the per-query page. Each owner loads its datasets from
// a backend, keeps the last good result for rendering, and drops responses
// that a newer request has superseded.
package dashboard

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-tweetmap/internal/backend"
	"github.com/joeblew999/plat-tweetmap/internal/geo"
	"github.com/joeblew999/plat-tweetmap/internal/logging"
	"github.com/joeblew999/plat-tweetmap/internal/metrics"
	"github.com/joeblew999/plat-tweetmap/internal/query"
	"github.com/joeblew999/plat-tweetmap/internal/selection"
)

// Dataset names used in logs and metrics.
const (
	DatasetQueries  = "queries"
	DatasetQuery    = "query"
	DatasetTweets   = "tweets"
	DatasetFeatures = "features"
)

// fetch runs one attempt of fn. A failure is logged and counted, and the
// caller renders that dataset as empty.
func fetch[T any](ctx context.Context, log zerolog.Logger, dataset string, fn func(context.Context) (T, error)) (T, bool) {
	v, err := fn(ctx)
	if err != nil {
		var zero T
		ev := log.Warn()
		if errors.Is(err, backend.ErrNotFound) {
			ev = log.Info()
		}
		ev.Err(err).Str("dataset", dataset).Msg("fetch failed")
		metrics.FetchTotal.WithLabelValues(dataset, "error").Inc()
		return zero, false
	}
	metrics.FetchTotal.WithLabelValues(dataset, "ok").Inc()
	return v, true
}

func stale(log zerolog.Logger, dataset string, gen, current uint64) {
	metrics.FetchStale.WithLabelValues(dataset).Inc()
	log.Debug().Str("dataset", dataset).Uint64("generation", gen).Uint64("current", current).
		Msg("discarding superseded response")
}

func click(sel *selection.State, hits []selection.Hit) (geo.ScoredFeature, bool) {
	f, ok := sel.Click(hits)
	if ok {
		metrics.Selections.WithLabelValues("selected").Inc()
	} else {
		metrics.Selections.WithLabelValues("cleared").Inc()
	}
	return f, ok
}

// ActiveSnapshot is a copy of the overview state for rendering.
type ActiveSnapshot struct {
	Loaded   bool
	Queries  []query.Query
	Tweets   []query.Tweet
	Features geo.FeatureCollection
	// Pending is the query awaiting removal confirmation.
	Pending  *query.Query
	Selected *geo.ScoredFeature
}

// Active is the overview of every active query.
type Active struct {
	backend backend.Backend
	limit   int
	sel     *selection.State
	log     zerolog.Logger

	mu       sync.Mutex
	gen      uint64
	loaded   bool
	queries  []query.Query
	tweets   []query.Tweet
	features geo.FeatureCollection
	pending  *query.Query
}

// NewActive creates the overview model. limit is the number of top tweets.
func NewActive(b backend.Backend, limit int, scoreProp string) *Active {
	if limit <= 0 {
		limit = backend.DefaultTweetLimit
	}
	return &Active{
		backend: b,
		limit:   limit,
		sel:     selection.NewState(scoreProp),
		log:     logging.With("dashboard"),
	}
}

// Refresh re-fetches the query list, the top tweets and the feature
// collection. Only the latest refresh may apply its results.
func (a *Active) Refresh(ctx context.Context) {
	a.mu.Lock()
	a.gen++
	gen := a.gen
	a.mu.Unlock()

	var (
		wg       sync.WaitGroup
		queries  []query.Query
		tweets   []query.Tweet
		features geo.FeatureCollection
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		queries, _ = fetch(ctx, a.log, DatasetQueries, a.backend.ActiveQueries)
	}()
	go func() {
		defer wg.Done()
		tweets, _ = fetch(ctx, a.log, DatasetTweets, func(ctx context.Context) ([]query.Tweet, error) {
			return a.backend.ActiveTweets(ctx, a.limit)
		})
	}()
	go func() {
		defer wg.Done()
		features, _ = fetch(ctx, a.log, DatasetFeatures, a.backend.ActiveFeatures)
	}()
	wg.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen {
		stale(a.log, DatasetQueries, gen, a.gen)
		return
	}
	a.loaded = true
	a.queries = queries
	a.tweets = tweets
	a.features = features
	if a.pending != nil && !containsQuery(queries, a.pending.ID) {
		a.pending = nil
	}
}

// Confirm opens the removal dialog for a listed query.
func (a *Active) Confirm(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.queries {
		if a.queries[i].ID == id {
			q := a.queries[i]
			a.pending = &q
			return true
		}
	}
	return false
}

// Dismiss closes the removal dialog.
func (a *Active) Dismiss() {
	a.mu.Lock()
	a.pending = nil
	a.mu.Unlock()
}

// Remove deletes a query and, on success, reloads every dataset.
func (a *Active) Remove(ctx context.Context, id string) error {
	if err := a.backend.RemoveQuery(ctx, id); err != nil {
		a.log.Warn().Err(err).Str("query", id).Msg("remove failed")
		return err
	}
	a.log.Info().Str("query", id).Msg("query removed")
	a.Dismiss()
	a.Refresh(ctx)
	return nil
}

// Click resolves a map click into the popup selection.
func (a *Active) Click(hits []selection.Hit) (geo.ScoredFeature, bool) {
	return click(a.sel, hits)
}

// Snapshot returns a copy of the current state.
func (a *Active) Snapshot() ActiveSnapshot {
	a.mu.Lock()
	s := ActiveSnapshot{
		Loaded:   a.loaded,
		Queries:  append([]query.Query(nil), a.queries...),
		Tweets:   append([]query.Tweet(nil), a.tweets...),
		Features: append(geo.FeatureCollection(nil), a.features...),
	}
	if a.pending != nil {
		q := *a.pending
		s.Pending = &q
	}
	a.mu.Unlock()

	if f, ok := a.sel.Current(); ok {
		s.Selected = &f
	}
	return s
}

// QuerySnapshot is a copy of one query page for rendering.
type QuerySnapshot struct {
	ID       string
	Loaded   bool
	Query    *query.Query
	Tweets   []query.Tweet
	Features geo.FeatureCollection
	Selected *geo.ScoredFeature
}

// QueryView is the page of a single query.
type QueryView struct {
	backend backend.Backend
	limit   int
	sel     *selection.State
	log     zerolog.Logger

	mu       sync.Mutex
	gen      uint64
	id       string
	loaded   bool
	query    *query.Query
	tweets   []query.Tweet
	features geo.FeatureCollection
}

// NewQueryView creates an empty query page model.
func NewQueryView(b backend.Backend, limit int, scoreProp string) *QueryView {
	if limit <= 0 {
		limit = backend.DefaultTweetLimit
	}
	return &QueryView{
		backend: b,
		limit:   limit,
		sel:     selection.NewState(scoreProp),
		log:     logging.With("dashboard"),
	}
}

// SetID switches the page to query id and loads it. A response for an id
// that has since been replaced is discarded.
func (v *QueryView) SetID(ctx context.Context, id string) {
	v.mu.Lock()
	v.gen++
	gen := v.gen
	if id != v.id {
		v.id = id
		v.loaded = false
		v.query = nil
		v.tweets = nil
		v.features = nil
		v.sel.Clear()
	}
	v.mu.Unlock()

	v.load(ctx, gen, id)
}

// Refresh reloads the current query.
func (v *QueryView) Refresh(ctx context.Context) {
	v.mu.Lock()
	v.gen++
	gen, id := v.gen, v.id
	v.mu.Unlock()
	if id == "" {
		return
	}
	v.load(ctx, gen, id)
}

func (v *QueryView) load(ctx context.Context, gen uint64, id string) {
	var (
		wg       sync.WaitGroup
		q        query.Query
		found    bool
		tweets   []query.Tweet
		features geo.FeatureCollection
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		q, found = fetch(ctx, v.log, DatasetQuery, func(ctx context.Context) (query.Query, error) {
			return v.backend.Query(ctx, id)
		})
	}()
	go func() {
		defer wg.Done()
		tweets, _ = fetch(ctx, v.log, DatasetTweets, func(ctx context.Context) ([]query.Tweet, error) {
			return v.backend.QueryTweets(ctx, id, v.limit)
		})
	}()
	go func() {
		defer wg.Done()
		features, _ = fetch(ctx, v.log, DatasetFeatures, func(ctx context.Context) (geo.FeatureCollection, error) {
			return v.backend.QueryFeatures(ctx, id)
		})
	}()
	wg.Wait()

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen || id != v.id {
		stale(v.log, DatasetQuery, gen, v.gen)
		return
	}
	v.loaded = true
	v.query = nil
	if found {
		v.query = &q
	}
	v.tweets = tweets
	v.features = features
}

// Click resolves a map click into the popup selection.
func (v *QueryView) Click(hits []selection.Hit) (geo.ScoredFeature, bool) {
	return click(v.sel, hits)
}

// Snapshot returns a copy of the current state.
func (v *QueryView) Snapshot() QuerySnapshot {
	v.mu.Lock()
	s := QuerySnapshot{
		ID:       v.id,
		Loaded:   v.loaded,
		Tweets:   append([]query.Tweet(nil), v.tweets...),
		Features: append(geo.FeatureCollection(nil), v.features...),
	}
	if v.query != nil {
		q := *v.query
		s.Query = &q
	}
	v.mu.Unlock()

	if f, ok := v.sel.Current(); ok {
		s.Selected = &f
	}
	return s
}

func containsQuery(qs []query.Query, id string) bool {
	for _, q := range qs {
		if q.ID == id {
			return true
		}
	}
	return false
}
