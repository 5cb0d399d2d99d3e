package api

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/goccy/go-json"

	"github.com/joeblew999/plat-tweetmap/internal/auth"
	"github.com/joeblew999/plat-tweetmap/internal/geo"
	"github.com/joeblew999/plat-tweetmap/internal/query"
	"github.com/joeblew999/plat-tweetmap/internal/service"
	"github.com/joeblew999/plat-tweetmap/internal/store"
	"github.com/joeblew999/plat-tweetmap/internal/visual"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	api   humatest.TestAPI
	store *store.Store
	auth  *auth.Manager
	bus   *service.EventBus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.Open(store.Config{})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if _, err := st.Seed(context.Background(), time.Now()); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	hash, err := auth.HashPassword("hunter22")
	if err != nil {
		t.Fatal(err)
	}
	am, err := auth.NewManager(auth.Config{Secret: testSecret, Username: "analyst", PasswordHash: hash})
	if err != nil {
		t.Fatal(err)
	}

	cfg := huma.DefaultConfig("Tweetmap test", Version)
	cfg.Transformers = append(cfg.Transformers, LinkTransformer())
	_, api := humatest.New(t, cfg)

	bus := service.NewEventBus()
	RegisterRoutes(api, &Services{
		Backend: st,
		Encoder: visual.New(visual.DefaultTables()),
		Auth:    am,
		Bus:     bus,
		Map: MapSettings{
			Center:        geo.GeoPoint{Longitude: -122.4, Latitude: 37.8},
			Zoom:          14,
			Source:        "tweets",
			ScoreProperty: geo.DefaultScoreProperty,
		},
	})
	NewInfoHandler("duckdb", geo.DefaultScoreProperty, true).RegisterRoutes(api)
	return &testEnv{api: api, store: st, auth: am, bus: bus}
}

func (e *testEnv) bearer(t *testing.T) string {
	t.Helper()
	token, _, err := e.auth.Issue("analyst")
	if err != nil {
		t.Fatal(err)
	}
	return "Authorization: Bearer " + token
}

func decode(t *testing.T, body []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
}

func newQuery() query.Query {
	return query.Query{
		Name:      "Harbor fog",
		Location:  geo.GeoPoint{Longitude: -122.42, Latitude: 37.81},
		StartDate: time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2022, 3, 8, 0, 0, 0, 0, time.UTC),
		Keywords:  []string{"fog"},
		Frequency: 15,
		MaxTweets: 50,
	}
}

func TestHealthAndInfo(t *testing.T) {
	env := newTestEnv(t)

	resp := env.api.Get("/health")
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	var h HealthBody
	decode(t, resp.Body.Bytes(), &h)
	if h.Status != "ok" || h.Version != Version {
		t.Fatalf("health=%+v", h)
	}
	if links := resp.Header().Values("Link"); len(links) == 0 {
		t.Fatal("health has no Link headers")
	}

	resp = env.api.Get("/api/v1/info")
	var info InfoBody
	decode(t, resp.Body.Bytes(), &info)
	if info.Name != "plat-tweetmap" || info.Backend != "duckdb" || !info.Auth {
		t.Fatalf("info=%+v", info)
	}
}

func TestListQueriesAndTweets(t *testing.T) {
	env := newTestEnv(t)

	resp := env.api.Get("/api/v1/queries")
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d", resp.Code)
	}
	var qs []query.Query
	decode(t, resp.Body.Bytes(), &qs)
	if len(qs) != 2 {
		t.Fatalf("queries=%d, want 2", len(qs))
	}

	resp = env.api.Get("/api/v1/tweets")
	var tweets []query.Tweet
	decode(t, resp.Body.Bytes(), &tweets)
	if len(tweets) != 5 {
		t.Fatalf("default limit gave %d tweets", len(tweets))
	}
	for i := 1; i < len(tweets); i++ {
		if tweets[i].InteractionScore > tweets[i-1].InteractionScore {
			t.Fatalf("tweets not sorted by score: %v > %v", tweets[i].InteractionScore, tweets[i-1].InteractionScore)
		}
	}

	resp = env.api.Get("/api/v1/queries/" + qs[0].ID + "/tweets?limit=3")
	tweets = nil
	decode(t, resp.Body.Bytes(), &tweets)
	if len(tweets) != 3 {
		t.Fatalf("limit=3 gave %d", len(tweets))
	}
	for _, tw := range tweets {
		if tw.QueryID != qs[0].ID {
			t.Fatalf("tweet %s belongs to %s", tw.ID, tw.QueryID)
		}
	}

	if resp := env.api.Get("/api/v1/tweets?limit=500"); resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("limit=500 status=%d", resp.Code)
	}
}

func TestGetQueryActionsAndNotFound(t *testing.T) {
	env := newTestEnv(t)
	qs, _ := env.store.ActiveQueries(context.Background())

	resp := env.api.Get("/api/v1/queries/" + qs[0].ID)
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d", resp.Code)
	}
	links := strings.Join(resp.Header().Values("Link"), "\n")
	for _, want := range []string{`rel="self"`, `rel="edit"; method="PUT"`, `rel="delete"; method="DELETE"`} {
		if !strings.Contains(links, want) {
			t.Fatalf("links missing %q:\n%s", want, links)
		}
	}

	if resp := env.api.Get("/api/v1/queries/nope"); resp.Code != http.StatusNotFound {
		t.Fatalf("missing query status=%d", resp.Code)
	}
	if resp := env.api.Get("/api/v1/queries/nope/tweets"); resp.Code != http.StatusNotFound {
		t.Fatalf("missing query tweets status=%d", resp.Code)
	}
}

func TestWritesRequireSession(t *testing.T) {
	env := newTestEnv(t)
	sub := env.bus.Subscribe()
	defer env.bus.Unsubscribe(sub)

	if resp := env.api.Post("/api/v1/queries", newQuery()); resp.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous create status=%d", resp.Code)
	}
	if resp := env.api.Post("/api/v1/queries", "Authorization: Bearer garbage", newQuery()); resp.Code != http.StatusUnauthorized {
		t.Fatalf("bad token create status=%d", resp.Code)
	}

	resp := env.api.Post("/api/v1/queries", env.bearer(t), newQuery())
	if resp.Code != http.StatusOK {
		t.Fatalf("create status=%d body=%s", resp.Code, resp.Body.String())
	}
	var created query.Query
	decode(t, resp.Body.Bytes(), &created)
	if created.ID == "" || created.Name != "Harbor fog" {
		t.Fatalf("created=%+v", created)
	}
	select {
	case ev := <-sub:
		if ev.Resource != service.ResourceQueries || ev.Action != service.ActionCreated || ev.ID != created.ID {
			t.Fatalf("event=%+v", ev)
		}
	default:
		t.Fatal("no event published")
	}

	bad := newQuery()
	bad.EndDate = bad.StartDate.Add(-time.Hour)
	if resp := env.api.Put("/api/v1/queries/"+created.ID, env.bearer(t), bad); resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid update status=%d", resp.Code)
	}

	upd := newQuery()
	upd.Name = "Harbor fog 2"
	resp = env.api.Put("/api/v1/queries/"+created.ID, env.bearer(t), upd)
	if resp.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", resp.Code, resp.Body.String())
	}
	if resp := env.api.Put("/api/v1/queries/nope", env.bearer(t), upd); resp.Code != http.StatusNotFound {
		t.Fatalf("update missing status=%d", resp.Code)
	}

	if resp := env.api.Delete("/api/v1/queries/" + created.ID); resp.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous delete status=%d", resp.Code)
	}
	if resp := env.api.Delete("/api/v1/queries/"+created.ID, env.bearer(t)); resp.Code != http.StatusOK {
		t.Fatalf("delete status=%d", resp.Code)
	}
	if _, err := env.store.Query(context.Background(), created.ID); err == nil {
		t.Fatal("query still present after delete")
	}
}

func TestLoginAndSession(t *testing.T) {
	env := newTestEnv(t)

	resp := env.api.Get("/api/v1/session")
	var s SessionBody
	decode(t, resp.Body.Bytes(), &s)
	if s.Authenticated || s.User != nil {
		t.Fatalf("anonymous session=%+v", s)
	}

	if resp := env.api.Post("/api/v1/auth/login", map[string]any{"username": "analyst", "password": "wrong"}); resp.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status=%d", resp.Code)
	}

	resp = env.api.Post("/api/v1/auth/login", map[string]any{"username": "analyst", "password": "hunter22"})
	if resp.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Header().Get("Set-Cookie"), "tweetmap_session=") {
		t.Fatalf("Set-Cookie=%q", resp.Header().Get("Set-Cookie"))
	}
	var login struct {
		Token string `json:"token"`
	}
	decode(t, resp.Body.Bytes(), &login)

	resp = env.api.Get("/api/v1/session", "Cookie: tweetmap_session="+login.Token)
	s = SessionBody{}
	decode(t, resp.Body.Bytes(), &s)
	if !s.Authenticated || s.User == nil || s.User.Username != "analyst" {
		t.Fatalf("cookie session=%+v", s)
	}

	resp = env.api.Get("/api/v1/session", "Authorization: Bearer nope")
	s = SessionBody{}
	decode(t, resp.Body.Bytes(), &s)
	if s.Authenticated || s.Error == "" {
		t.Fatalf("bad token session=%+v", s)
	}
}

func TestEncodingAndStyles(t *testing.T) {
	env := newTestEnv(t)

	resp := env.api.Get("/api/v1/encoding?score=20&zoom=12")
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	var enc EncodingBody
	decode(t, resp.Body.Bytes(), &enc)
	want := visual.New(visual.DefaultTables()).Encode(20, 12)
	if enc.Radius != want.Radius || enc.Color != want.Color.String() {
		t.Fatalf("encoding=%+v want %+v", enc, want)
	}

	resp = env.api.Get("/api/v1/styles")
	var styles StylesBody
	decode(t, resp.Body.Bytes(), &styles)
	if styles.Source != "tweets" || len(styles.Layers) != 2 || styles.Zoom != 14 {
		t.Fatalf("styles=%+v", styles)
	}
}

func TestFeaturesAndSelection(t *testing.T) {
	env := newTestEnv(t)

	resp := env.api.Get("/api/v1/features")
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != GeoJSONContentType {
		t.Fatalf("content type=%q", ct)
	}
	fc, err := geo.ParseFeatureCollection(resp.Body.Bytes(), geo.DefaultScoreProperty)
	if err != nil {
		t.Fatalf("parse features: %v", err)
	}
	if len(fc) != 48 {
		t.Fatalf("features=%d, want 48", len(fc))
	}

	if resp := env.api.Get("/api/v1/queries/nope/features"); resp.Code != http.StatusNotFound {
		t.Fatalf("missing query features status=%d", resp.Code)
	}

	hits := fc[:2].ToGeoJSON().Features
	resp = env.api.Post("/api/v1/selection", map[string]any{"hits": hits})
	if resp.Code != http.StatusOK {
		t.Fatalf("selection status=%d body=%s", resp.Code, resp.Body.String())
	}
	var sel SelectionBody
	decode(t, resp.Body.Bytes(), &sel)
	if !sel.Selected || sel.Feature == nil || sel.Feature.ID != fc[0].ID {
		t.Fatalf("selection=%+v", sel)
	}

	resp = env.api.Post("/api/v1/selection", map[string]any{"hits": []any{}})
	sel = SelectionBody{}
	decode(t, resp.Body.Bytes(), &sel)
	if sel.Selected || sel.Feature != nil {
		t.Fatalf("empty selection=%+v", sel)
	}
}
