// Package remote is the HTTP client for the tweet collection API.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/joeblew999/plat-tweetmap/internal/backend"
	"github.com/joeblew999/plat-tweetmap/internal/geo"
	"github.com/joeblew999/plat-tweetmap/internal/logging"
	"github.com/joeblew999/plat-tweetmap/internal/metrics"
	"github.com/joeblew999/plat-tweetmap/internal/query"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// ScoreProperty names the GeoJSON property read as the feature score.
	ScoreProperty string
	// BreakerFailures consecutive failures open the circuit.
	BreakerFailures uint32
	BreakerCooldown time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client implements backend.Backend over the collection API. Each call is
// a single attempt; failures surface to the caller unchanged.
type Client struct {
	base      *url.URL
	http      *http.Client
	scoreProp string
	breaker   *gobreaker.CircuitBreaker[[]byte]
	log       zerolog.Logger
}

var _ backend.Backend = (*Client)(nil)

// New creates a client for the API at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	if cfg.ScoreProperty == "" {
		cfg.ScoreProperty = geo.DefaultScoreProperty
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	c := &Client{
		base:      base,
		http:      hc,
		scoreProp: cfg.ScoreProperty,
		log:       logging.With("remote"),
	}

	const name = "collection-api"
	metrics.BreakerState.WithLabelValues(name).Set(0)
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A missing query is an answer, not an outage. A caller that gave
		// up says nothing about the API either.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, backend.ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			c.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return c, nil
}

// ActiveQueries lists the running collection queries.
func (c *Client) ActiveQueries(ctx context.Context) ([]query.Query, error) {
	env, err := c.envelope(ctx, http.MethodGet, "/queries/active/list", nil, nil)
	if err != nil {
		return nil, err
	}
	out := make([]query.Query, 0, len(env.Queries))
	for _, q := range env.Queries {
		out = append(out, q.query())
	}
	return out, nil
}

// Query fetches one query by id.
func (c *Client) Query(ctx context.Context, id string) (query.Query, error) {
	env, err := c.envelope(ctx, http.MethodGet, "/query/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return query.Query{}, err
	}
	if env.Query == nil {
		return query.Query{}, fmt.Errorf("query %s: %w", id, backend.ErrNotFound)
	}
	return env.Query.query(), nil
}

// CreateQuery registers a new query and returns it with its assigned id.
func (c *Client) CreateQuery(ctx context.Context, q query.Query) (query.Query, error) {
	w := toWireQuery(q)
	w.ID = ""
	return c.writeQuery(ctx, "/query/new", w)
}

// UpdateQuery replaces an existing query.
func (c *Client) UpdateQuery(ctx context.Context, q query.Query) (query.Query, error) {
	if q.ID == "" {
		return query.Query{}, fmt.Errorf("update query: %w", backend.ErrNotFound)
	}
	return c.writeQuery(ctx, "/query/"+url.PathEscape(q.ID)+"/edit", toWireQuery(q))
}

// RemoveQuery stops and deletes a query.
func (c *Client) RemoveQuery(ctx context.Context, id string) error {
	_, err := c.envelope(ctx, http.MethodPost, "/query/"+url.PathEscape(id)+"/remove", nil, nil)
	return err
}

// ActiveTweets returns the top tweets across active queries.
func (c *Client) ActiveTweets(ctx context.Context, limit int) ([]query.Tweet, error) {
	return c.tweets(ctx, "/queries/active/list/tweets", limit)
}

// QueryTweets returns the top tweets of one query.
func (c *Client) QueryTweets(ctx context.Context, id string, limit int) ([]query.Tweet, error) {
	return c.tweets(ctx, "/query/"+url.PathEscape(id)+"/tweets", limit)
}

// ActiveFeatures returns the map points of every active query.
func (c *Client) ActiveFeatures(ctx context.Context) (geo.FeatureCollection, error) {
	return c.features(ctx, "/queries/active/geojson")
}

// QueryFeatures returns the map points of one query.
func (c *Client) QueryFeatures(ctx context.Context, id string) (geo.FeatureCollection, error) {
	return c.features(ctx, "/query/"+url.PathEscape(id)+"/geojson")
}

func (c *Client) writeQuery(ctx context.Context, path string, w wireQuery) (query.Query, error) {
	body, err := json.Marshal(w)
	if err != nil {
		return query.Query{}, fmt.Errorf("encode query: %w", err)
	}
	env, err := c.envelope(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return query.Query{}, err
	}
	if env.Query == nil {
		// Some deployments answer with only a status; echo the input.
		return w.query(), nil
	}
	return env.Query.query(), nil
}

func (c *Client) tweets(ctx context.Context, path string, limit int) ([]query.Tweet, error) {
	if limit <= 0 {
		limit = backend.DefaultTweetLimit
	}
	params := url.Values{"limit": {strconv.Itoa(limit)}}
	env, err := c.envelope(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return nil, err
	}
	out := make([]query.Tweet, 0, len(env.Tweets))
	for _, t := range env.Tweets {
		out = append(out, t.tweet())
	}
	return out, nil
}

func (c *Client) features(ctx context.Context, path string) (geo.FeatureCollection, error) {
	var fc geo.FeatureCollection
	err := c.do(ctx, http.MethodGet, path, nil, nil, func(data []byte) error {
		var err error
		if fc, err = geo.ParseFeatureCollection(data, c.scoreProp); err != nil {
			return fmt.Errorf("%s: %w: %v", path, backend.ErrUnavailable, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fc, nil
}

// envelope performs the request and checks the status field of the body.
// The API reports failures in that field under HTTP 200, so the check runs
// inside the breaker.
func (c *Client) envelope(ctx context.Context, method, path string, params url.Values, body []byte) (envelope, error) {
	var env envelope
	err := c.do(ctx, method, path, params, body, func(data []byte) error {
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("%s: decode: %w: %v", path, backend.ErrUnavailable, err)
		}
		switch env.Status {
		case http.StatusOK:
			return nil
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", path, backend.ErrNotFound)
		default:
			return fmt.Errorf("%s: status %d %s: %w", path, env.Status, env.Message, backend.ErrUnavailable)
		}
	})
	if err != nil {
		return envelope{}, err
	}
	return env, nil
}

// do runs one HTTP exchange through the circuit breaker and hands the body
// of a 2xx answer to check. An error from check counts against the breaker
// like a transport failure would.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body []byte, check func([]byte) error) error {
	u := c.base.JoinPath(path)
	if params != nil {
		u.RawQuery = params.Encode()
	}

	start := time.Now()
	_, err := c.breaker.Execute(func() ([]byte, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w: %w", method, path, backend.ErrUnavailable, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		if err != nil {
			return nil, fmt.Errorf("%s %s: read body: %w: %w", method, path, backend.ErrUnavailable, err)
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%s %s: %w", method, path, backend.ErrNotFound)
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return nil, fmt.Errorf("%s %s: http %d: %w", method, path, resp.StatusCode, backend.ErrUnavailable)
		}
		if check != nil {
			if err := check(data); err != nil {
				return nil, err
			}
		}
		return data, nil
	})

	ev := c.log.Debug()
	if err != nil {
		ev = c.log.Warn().Err(err)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%s %s: %w: %v", method, path, backend.ErrUnavailable, err)
		}
	}
	ev.Str("method", method).Str("path", path).Dur("elapsed", time.Since(start)).Msg("collection api request")
	return err
}
