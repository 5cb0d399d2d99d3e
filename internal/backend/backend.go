// Package backend defines the collection API contract consumed by the
// dashboard. Implementations live in internal/remote (HTTP) and
// internal/store (embedded DuckDB).
package backend

import (
	"context"
	"errors"

	"github.com/joeblew999/plat-tweetmap/internal/geo"
	"github.com/joeblew999/plat-tweetmap/internal/query"
)

var (
	// ErrNotFound means the query does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable means the backend could not be reached or answered
	// with a failure status.
	ErrUnavailable = errors.New("backend unavailable")
)

// DefaultTweetLimit is the number of top tweets shown per list.
const DefaultTweetLimit = 5

// Queries covers query listing and management.
type Queries interface {
	ActiveQueries(ctx context.Context) ([]query.Query, error)
	Query(ctx context.Context, id string) (query.Query, error)
	CreateQuery(ctx context.Context, q query.Query) (query.Query, error)
	UpdateQuery(ctx context.Context, q query.Query) (query.Query, error)
	RemoveQuery(ctx context.Context, id string) error
}

// Tweets covers top-tweet listings.
type Tweets interface {
	ActiveTweets(ctx context.Context, limit int) ([]query.Tweet, error)
	QueryTweets(ctx context.Context, id string, limit int) ([]query.Tweet, error)
}

// Features covers the map feature collections.
type Features interface {
	ActiveFeatures(ctx context.Context) (geo.FeatureCollection, error)
	QueryFeatures(ctx context.Context, id string) (geo.FeatureCollection, error)
}

// Backend is the full collection API.
type Backend interface {
	Queries
	Tweets
	Features
}
