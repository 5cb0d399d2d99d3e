// Package store is an embedded DuckDB implementation of the collection API,
// used for local development and demos without the collector service.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-tweetmap/internal/backend"
	"github.com/joeblew999/plat-tweetmap/internal/geo"
	"github.com/joeblew999/plat-tweetmap/internal/logging"
	"github.com/joeblew999/plat-tweetmap/internal/query"
)

// Config holds database configuration.
type Config struct {
	// DataDir holds duckdb/<DBName>.duckdb. Empty opens an in-memory
	// database.
	DataDir string
	DBName  string
}

const schema = `
CREATE TABLE IF NOT EXISTS queries (
	id         VARCHAR PRIMARY KEY,
	name       VARCHAR NOT NULL,
	lon        DOUBLE NOT NULL,
	lat        DOUBLE NOT NULL,
	start_date TIMESTAMP NOT NULL,
	end_date   TIMESTAMP NOT NULL,
	keywords   VARCHAR NOT NULL,
	frequency  INTEGER NOT NULL,
	max_tweets INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS tweets (
	id                 VARCHAR PRIMARY KEY,
	query_id           VARCHAR NOT NULL,
	likes              INTEGER NOT NULL,
	retweets           INTEGER NOT NULL,
	replies            INTEGER NOT NULL,
	content            VARCHAR NOT NULL,
	media              VARCHAR NOT NULL,
	lon                DOUBLE NOT NULL,
	lat                DOUBLE NOT NULL,
	created_at         TIMESTAMP NOT NULL,
	keyword_count      INTEGER NOT NULL,
	interaction_score  DOUBLE NOT NULL,
	relatability_score DOUBLE NOT NULL
);
`

// Store implements backend.Backend on DuckDB.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex // serializes writers
	log zerolog.Logger
}

var _ backend.Backend = (*Store)(nil)

// Open opens (creating if needed) the database and applies the schema.
func Open(cfg Config) (*Store, error) {
	dsn := ""
	if cfg.DataDir != "" {
		dir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create duckdb directory: %w", err)
		}
		name := cfg.DBName
		if name == "" {
			name = "tweetmap"
		}
		dsn = filepath.Join(dir, name+".duckdb")
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{db: db, log: logging.With("store")}
	s.log.Info().Str("path", dsn).Msg("duckdb store opened")
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const queryColumns = `id, name, lon, lat, start_date, end_date, keywords, frequency, max_tweets`

func (s *Store) ActiveQueries(ctx context.Context) ([]query.Query, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+queryColumns+` FROM queries ORDER BY start_date, id`)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	defer rows.Close()

	var out []query.Query
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) Query(ctx context.Context, id string) (query.Query, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+queryColumns+` FROM queries WHERE id = ?`, id)
	q, err := scanQuery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return query.Query{}, fmt.Errorf("query %s: %w", id, backend.ErrNotFound)
	}
	return q, err
}

func (s *Store) CreateQuery(ctx context.Context, q query.Query) (query.Query, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q.ID = strings.ReplaceAll(uuid.NewString(), "-", "")
	kw, err := json.Marshal(q.Keywords)
	if err != nil {
		return query.Query{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO queries (`+queryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.Name, q.Location.Longitude, q.Location.Latitude,
		q.StartDate.UTC(), q.EndDate.UTC(), string(kw), q.Frequency, q.MaxTweets)
	if err != nil {
		return query.Query{}, fmt.Errorf("insert query: %w", err)
	}
	s.log.Info().Str("query", q.ID).Str("name", q.Name).Msg("query created")
	return q, nil
}

func (s *Store) UpdateQuery(ctx context.Context, q query.Query) (query.Query, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kw, err := json.Marshal(q.Keywords)
	if err != nil {
		return query.Query{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE queries SET name = ?, lon = ?, lat = ?, start_date = ?, end_date = ?,
			keywords = ?, frequency = ?, max_tweets = ? WHERE id = ?`,
		q.Name, q.Location.Longitude, q.Location.Latitude,
		q.StartDate.UTC(), q.EndDate.UTC(), string(kw), q.Frequency, q.MaxTweets, q.ID)
	if err != nil {
		return query.Query{}, fmt.Errorf("update query: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return query.Query{}, fmt.Errorf("query %s: %w", q.ID, backend.ErrNotFound)
	}
	return q, nil
}

// RemoveQuery deletes the query and its tweets.
func (s *Store) RemoveQuery(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tweets WHERE query_id = ?`, id); err != nil {
		return fmt.Errorf("delete tweets: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM queries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete query: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("query %s: %w", id, backend.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Info().Str("query", id).Msg("query removed")
	return nil
}

// AddTweets stores collected tweets, replacing any with the same id.
func (s *Store) AddTweets(ctx context.Context, tweets ...query.Tweet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range tweets {
		media, err := json.Marshal(t.Media)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO tweets (`+tweetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.QueryID, t.Likes, t.Retweets, t.Replies, t.Content, string(media),
			t.Location.Longitude, t.Location.Latitude, t.CreatedAt.UTC(),
			t.KeywordCount, t.InteractionScore, t.RelatabilityScore)
		if err != nil {
			return fmt.Errorf("insert tweet %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

const tweetColumns = `id, query_id, likes, retweets, replies, content, media, lon, lat,
	created_at, keyword_count, interaction_score, relatability_score`

func (s *Store) ActiveTweets(ctx context.Context, limit int) ([]query.Tweet, error) {
	return s.tweets(ctx, `SELECT `+prefixed("t.", tweetColumns)+` FROM tweets t
		JOIN queries q ON q.id = t.query_id
		ORDER BY t.interaction_score DESC, t.id LIMIT ?`, limit)
}

func (s *Store) QueryTweets(ctx context.Context, id string, limit int) ([]query.Tweet, error) {
	if _, err := s.Query(ctx, id); err != nil {
		return nil, err
	}
	return s.tweets(ctx, `SELECT `+tweetColumns+` FROM tweets WHERE query_id = ?
		ORDER BY interaction_score DESC, id LIMIT ?`, limit, id)
}

// ActiveFeatures builds the map points from every stored tweet.
func (s *Store) ActiveFeatures(ctx context.Context) (geo.FeatureCollection, error) {
	return s.features(ctx, `SELECT t.id, t.lon, t.lat, t.interaction_score FROM tweets t
		JOIN queries q ON q.id = t.query_id ORDER BY t.created_at, t.id`)
}

func (s *Store) QueryFeatures(ctx context.Context, id string) (geo.FeatureCollection, error) {
	if _, err := s.Query(ctx, id); err != nil {
		return nil, err
	}
	return s.features(ctx, `SELECT id, lon, lat, interaction_score FROM tweets
		WHERE query_id = ? ORDER BY created_at, id`, id)
}

// tweets runs a top-N statement; limit is bound last.
func (s *Store) tweets(ctx context.Context, stmt string, limit int, args ...any) ([]query.Tweet, error) {
	if limit <= 0 {
		limit = backend.DefaultTweetLimit
	}
	rows, err := s.db.QueryContext(ctx, stmt, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("list tweets: %w", err)
	}
	defer rows.Close()

	var out []query.Tweet
	for rows.Next() {
		var (
			t     query.Tweet
			media string
		)
		err := rows.Scan(&t.ID, &t.QueryID, &t.Likes, &t.Retweets, &t.Replies, &t.Content, &media,
			&t.Location.Longitude, &t.Location.Latitude, &t.CreatedAt,
			&t.KeywordCount, &t.InteractionScore, &t.RelatabilityScore)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(media), &t.Media); err != nil {
			return nil, fmt.Errorf("tweet %s media: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) features(ctx context.Context, stmt string, args ...any) (geo.FeatureCollection, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	defer rows.Close()

	fc := geo.FeatureCollection{}
	for rows.Next() {
		var f geo.ScoredFeature
		if err := rows.Scan(&f.ID, &f.Location.Longitude, &f.Location.Latitude, &f.Score); err != nil {
			return nil, err
		}
		if f.Score < 0 {
			f.Score = 0
		}
		fc = append(fc, f)
	}
	return fc, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuery(sc scanner) (query.Query, error) {
	var (
		q  query.Query
		kw string
	)
	err := sc.Scan(&q.ID, &q.Name, &q.Location.Longitude, &q.Location.Latitude,
		&q.StartDate, &q.EndDate, &kw, &q.Frequency, &q.MaxTweets)
	if err != nil {
		return query.Query{}, err
	}
	if err := json.Unmarshal([]byte(kw), &q.Keywords); err != nil {
		return query.Query{}, fmt.Errorf("query %s keywords: %w", q.ID, err)
	}
	return q, nil
}

func prefixed(p, cols string) string {
	parts := strings.Split(cols, ",")
	for i, c := range parts {
		parts[i] = p + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}
