package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-tweetmap/internal/backend"
	"github.com/joeblew999/plat-tweetmap/internal/geo"
	"github.com/joeblew999/plat-tweetmap/internal/logging"
	"github.com/joeblew999/plat-tweetmap/internal/metrics"
	"github.com/joeblew999/plat-tweetmap/internal/query"
	"github.com/joeblew999/plat-tweetmap/internal/region"
)

var (
	// ErrNoSession means the editing session id is unknown or closed.
	ErrNoSession = errors.New("no such editing session")
	// ErrInvalidQuery wraps query validation failures on save.
	ErrInvalidQuery = errors.New("invalid query")
)

// DefaultSessionTTL is how long an untouched editing session survives.
const DefaultSessionTTL = 30 * time.Minute

// Session is one open region editor, for a new query or an existing one.
type Session struct {
	ID      string
	QueryID string // empty when creating
	Opened  time.Time
	Editor  *region.Editor

	lastSeen time.Time // guarded by RegionService.mu
}

// RegionService manages region editing sessions. Sessions not touched
// within the idle TTL are discarded; a tab closed mid-edit never sends
// save or delete.
type RegionService struct {
	bus *EventBus
	log zerolog.Logger
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// RegionOption configures a RegionService.
type RegionOption func(*RegionService)

// WithSessionTTL sets the idle TTL. Zero or negative keeps the default.
func WithSessionTTL(d time.Duration) RegionOption {
	return func(s *RegionService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) RegionOption {
	return func(s *RegionService) { s.now = now }
}

// NewRegionService creates a region service publishing to bus.
func NewRegionService(bus *EventBus, opts ...RegionOption) *RegionService {
	s := &RegionService{
		bus:      bus,
		log:      logging.With("regions"),
		ttl:      DefaultSessionTTL,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open starts a session with the marker at start. queryID is the query
// being edited, or empty for a new one.
func (s *RegionService) Open(queryID string, start geo.GeoPoint) *Session {
	now := s.now()
	sess := &Session{ID: uuid.NewString(), QueryID: queryID, Opened: now, lastSeen: now}
	publish := func(action string) func(geo.GeoPoint) {
		return func(p geo.GeoPoint) {
			s.bus.Publish(Event{Resource: ResourceRegions, Action: action, ID: sess.ID, Position: &p})
		}
	}
	moved := publish(ActionMoved)
	sess.Editor = region.NewEditor(start,
		region.OnMove(func(p geo.GeoPoint) {
			metrics.RegionMoves.Inc()
			moved(p)
		}),
		region.OnCommit(publish(ActionCommitted)),
		region.OnCancel(publish(ActionCancelled)),
	)

	s.mu.Lock()
	expired := s.sweepLocked(now)
	s.sessions[sess.ID] = sess
	n := len(s.sessions)
	s.mu.Unlock()

	s.expired(expired, n)
	s.log.Debug().Str("session", sess.ID).Str("query", queryID).Msg("region session opened")
	return sess
}

// Get returns an open session and marks it as used.
func (s *RegionService) Get(id string) (*Session, error) {
	now := s.now()
	s.mu.Lock()
	expired := s.sweepLocked(now)
	sess, ok := s.sessions[id]
	if ok {
		sess.lastSeen = now
	}
	n := len(s.sessions)
	s.mu.Unlock()

	s.expired(expired, n)
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNoSession)
	}
	return sess, nil
}

// Sweep discards idle sessions and returns how many were removed.
func (s *RegionService) Sweep() int {
	s.mu.Lock()
	expired := s.sweepLocked(s.now())
	n := len(s.sessions)
	s.mu.Unlock()

	s.expired(expired, n)
	return len(expired)
}

func (s *RegionService) sweepLocked(now time.Time) []string {
	var ids []string
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) >= s.ttl {
			delete(s.sessions, id)
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *RegionService) expired(ids []string, n int) {
	metrics.RegionSessions.Set(float64(n))
	for _, id := range ids {
		s.log.Debug().Str("session", id).Msg("region session expired")
		s.bus.Publish(Event{Resource: ResourceRegions, Action: ActionDeleted, ID: id})
	}
}

// Cancel aborts the drag in progress, restoring the pointer-down position.
func (s *RegionService) Cancel(id string) (geo.GeoPoint, bool, error) {
	sess, err := s.Get(id)
	if err != nil {
		return geo.GeoPoint{}, false, err
	}
	ok := sess.Editor.Cancel()
	return sess.Editor.Position(), ok, nil
}

// Close discards a session.
func (s *RegionService) Close(id string) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrNoSession)
	}

	metrics.RegionSessions.Set(float64(n))
	s.bus.Publish(Event{Resource: ResourceRegions, Action: ActionDeleted, ID: id})
	return nil
}

// Len returns the number of open sessions.
func (s *RegionService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Save stores q at the marker position, creating or updating the query
// the session was opened for, and closes the session on success.
func (s *RegionService) Save(ctx context.Context, id string, q query.Query, qs backend.Queries) (query.Query, error) {
	sess, err := s.Get(id)
	if err != nil {
		return query.Query{}, err
	}

	q.Location = sess.Editor.Position()
	q.ID = sess.QueryID
	if err := q.Validate(); err != nil {
		return query.Query{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	action := ActionCreated
	if sess.QueryID == "" {
		q, err = qs.CreateQuery(ctx, q)
	} else {
		action = ActionUpdated
		q, err = qs.UpdateQuery(ctx, q)
	}
	if err != nil {
		return query.Query{}, err
	}

	s.bus.Publish(Event{Resource: ResourceQueries, Action: action, ID: q.ID})
	s.log.Info().Str("session", id).Str("query", q.ID).Str("action", action).Msg("query saved")
	_ = s.Close(id)
	return q, nil
}
