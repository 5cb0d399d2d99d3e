package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-tweetmap/internal/api"
	"github.com/joeblew999/plat-tweetmap/internal/api/editor"
	"github.com/joeblew999/plat-tweetmap/internal/auth"
	"github.com/joeblew999/plat-tweetmap/internal/backend"
	"github.com/joeblew999/plat-tweetmap/internal/config"
	"github.com/joeblew999/plat-tweetmap/internal/dashboard"
	"github.com/joeblew999/plat-tweetmap/internal/logging"
	"github.com/joeblew999/plat-tweetmap/internal/remote"
	"github.com/joeblew999/plat-tweetmap/internal/service"
	"github.com/joeblew999/plat-tweetmap/internal/store"
	"github.com/joeblew999/plat-tweetmap/internal/templates"
	"github.com/joeblew999/plat-tweetmap/internal/visual"
)

// Server is the tweetmap HTTP server.
type Server struct {
	config   config.Config
	mux      *http.ServeMux
	handler  http.Handler
	humaAPI  huma.API
	backend  backend.Backend
	closer   io.Closer
	services *api.Services
	regions  *service.RegionService
	views    *dashboard.Views
	renderer *templates.Renderer
	log      zerolog.Logger
}

// New creates a server from cfg. The backend is opened here; Close
// releases it.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	log := logging.With("server")

	b, closer, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	am, err := newAuth(cfg.Auth, log)
	if err != nil {
		closeQuietly(closer)
		return nil, err
	}

	renderer, err := templates.New()
	if err != nil {
		closeQuietly(closer)
		return nil, fmt.Errorf("load templates: %w", err)
	}

	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-tweetmap API", api.Version)
	humaConfig.Info.Description = "Tweet collection dashboard: active queries, top tweets, score heatmap and the query region editor."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	bus := service.NewEventBus()
	s := &Server{
		config:   cfg,
		mux:      mux,
		humaAPI:  humago.New(mux, humaConfig),
		backend:  b,
		closer:   closer,
		regions:  service.NewRegionService(bus, service.WithSessionTTL(cfg.Server.RegionSessionTTL)),
		views: dashboard.NewViews(b, backend.DefaultTweetLimit, cfg.Map.ScoreProperty,
			dashboard.WithViewTTL(cfg.Server.ViewTTL)),
		renderer: renderer,
		log:      log,
		services: &api.Services{
			Backend: b,
			Encoder: visual.New(cfg.Style),
			Auth:    am,
			Bus:     bus,
			Map: api.MapSettings{
				Center:        cfg.Map.Center(),
				Zoom:          cfg.Map.Zoom,
				Source:        cfg.Map.Source,
				ScoreProperty: cfg.Map.ScoreProperty,
			},
		},
	}

	s.routes()
	s.handler = middleware(mux, cfg.Server)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// API returns the Huma API, for OpenAPI output.
func (s *Server) API() huma.API {
	return s.humaAPI
}

// Backend returns the data backend the server reads from.
func (s *Server) Backend() backend.Backend {
	return s.backend
}

// Close closes server resources.
func (s *Server) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *Server) routes() {
	// Session middleware first so every later operation sees it.
	api.RegisterRoutes(s.humaAPI, s.services)
	api.NewInfoHandler(s.config.Backend.Kind, s.config.Map.ScoreProperty, s.services.Auth != nil).RegisterRoutes(s.humaAPI)

	m := s.services.Map
	editor.NewDashboardHandler(s.views, s.services.Bus, s.renderer).RegisterRoutes(s.humaAPI)
	editor.NewRegionHandler(s.regions, s.backend, s.services.Bus, m.Center, s.renderer).RegisterRoutes(s.humaAPI)

	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Page routes
	s.mux.HandleFunc("GET /{$}", s.handleOverview)
	s.mux.HandleFunc("GET /query/new", s.handleNewQuery)
	s.mux.HandleFunc("GET /query/{id}", s.handleQuery)
	s.mux.HandleFunc("GET /query/{id}/edit", s.handleEditQuery)
}

type pageData struct {
	Title   string
	Page    string
	QueryID string
	Signals string
	Init    string
	Select  string
}

// Each page load gets its own view id. Fragments rendered later reach it
// through the viewid signal.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	view := dashboard.NewID()
	s.page(w, pageData{
		Title:   "Active queries",
		Page:    "overview",
		Signals: s.signals(map[string]any{"hits": []any{}, "loading": true, "viewid": view}),
		Init:    "@get('/api/v1/editor/dashboard?view=" + view + "'); @get('/api/v1/editor/events?view=" + view + "')",
		Select:  "/api/v1/editor/dashboard/select?view=" + view,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !validID(id) {
		http.NotFound(w, r)
		return
	}
	view := dashboard.NewID()
	s.page(w, pageData{
		Title:   "Query",
		Page:    "query",
		QueryID: id,
		Signals: s.signals(map[string]any{"hits": []any{}, "loading": true, "viewid": view}),
		Init:    "@get('/api/v1/editor/queries/" + id + "?view=" + view + "')",
		Select:  "/api/v1/editor/queries/" + id + "/select?view=" + view,
	})
}

func (s *Server) handleNewQuery(w http.ResponseWriter, r *http.Request) {
	s.editorPage(w, "New query", "")
}

func (s *Server) handleEditQuery(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !validID(id) {
		http.NotFound(w, r)
		return
	}
	s.editorPage(w, "Edit query", id)
}

// validID accepts the ids both backends issue. Ids end up inside Datastar
// expressions, so nothing else is allowed.
func validID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

func (s *Server) editorPage(w http.ResponseWriter, title, queryID string) {
	c := s.services.Map.Center
	s.page(w, pageData{
		Title:   title,
		Page:    "editor",
		QueryID: queryID,
		Signals: s.signals(map[string]any{
			"queryid": queryID, "regionid": "",
			"name": "", "startdate": "", "enddate": "",
			"keywords": []string{}, "keyword": "",
			"frequency": 15, "maxtweets": 100,
			"lng": c.Longitude, "lat": c.Latitude,
		}),
		Init: "@post('/api/v1/editor/regions')",
	})
}

func (s *Server) page(w http.ResponseWriter, data pageData) {
	if dir := s.config.Server.TemplatesDir; dir != "" {
		if err := s.renderer.Reload(dir); err != nil {
			s.log.Warn().Err(err).Str("dir", dir).Msg("template reload failed, keeping previous templates")
		}
	}
	html, err := s.renderer.Render("page", data)
	if err != nil {
		s.log.Error().Err(err).Str("page", data.Page).Msg("render page")
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, html)
}

func (s *Server) signals(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// openBackend selects the collection API client or the embedded store.
func openBackend(ctx context.Context, cfg config.Config) (backend.Backend, io.Closer, error) {
	switch cfg.Backend.Kind {
	case "duckdb":
		st, err := store.Open(store.Config{DataDir: cfg.Backend.DataDir, DBName: "tweetmap"})
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		if cfg.Backend.Seed {
			if _, err := st.Seed(ctx, time.Now()); err != nil {
				st.Close()
				return nil, nil, fmt.Errorf("seed store: %w", err)
			}
		}
		return st, st, nil
	case "remote", "":
		c, err := remote.New(remote.Config{
			BaseURL:         cfg.API.BaseURL,
			Timeout:         cfg.API.Timeout,
			ScoreProperty:   cfg.Map.ScoreProperty,
			BreakerFailures: cfg.API.BreakerFailures,
			BreakerCooldown: cfg.API.BreakerCooldown,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend kind %q", cfg.Backend.Kind)
	}
}

// newAuth builds the session manager. Without a configured secret a random
// one is generated, so sessions do not survive a restart.
func newAuth(cfg config.AuthConfig, log zerolog.Logger) (*auth.Manager, error) {
	secret := cfg.Secret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate auth secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		log.Warn().Msg("auth.secret not set; using a random secret, sessions end on restart")
	}
	if cfg.Username == "" || cfg.PasswordHash == "" {
		log.Warn().Msg("auth.username or auth.password_hash not set; login disabled")
	}
	m, err := auth.NewManager(auth.Config{
		Secret:       secret,
		CookieName:   cfg.CookieName,
		TTL:          cfg.SessionTTL,
		Username:     cfg.Username,
		PasswordHash: cfg.PasswordHash,
	})
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	return m, nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		c.Close()
	}
}
