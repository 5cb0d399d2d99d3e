package editor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-tweetmap/internal/api"
	"github.com/joeblew999/plat-tweetmap/internal/backend"
	"github.com/joeblew999/plat-tweetmap/internal/geo"
	"github.com/joeblew999/plat-tweetmap/internal/humastar"
	"github.com/joeblew999/plat-tweetmap/internal/query"
	"github.com/joeblew999/plat-tweetmap/internal/region"
	"github.com/joeblew999/plat-tweetmap/internal/service"
	"github.com/joeblew999/plat-tweetmap/internal/templates"
)

// Query form signal names. Datastar lowercases data-bind names.
const (
	sigRegion    = "regionid"
	sigQuery     = "queryid"
	sigName      = "name"
	sigStart     = "startdate"
	sigEnd       = "enddate"
	sigKeywords  = "keywords"
	sigKeyword   = "keyword"
	sigFrequency = "frequency"
	sigMaxTweets = "maxtweets"
	sigLng       = "lng"
	sigLat       = "lat"
)

// RegionHandler drives the draggable query-center marker on the create and
// edit pages.
type RegionHandler struct {
	humastar.Handler
	regions *service.RegionService
	queries backend.Queries
	bus     *service.EventBus
	center  geo.GeoPoint
}

func NewRegionHandler(regions *service.RegionService, queries backend.Queries, bus *service.EventBus, center geo.GeoPoint, renderer *templates.Renderer) *RegionHandler {
	return &RegionHandler{
		Handler: humastar.Handler{Renderer: renderer},
		regions: regions,
		queries: queries,
		bus:     bus,
		center:  center,
	}
}

func (h *RegionHandler) RegisterRoutes(a huma.API) {
	huma.Post(a, "/api/v1/editor/regions", h.Open, huma.OperationTags("editor"))
	huma.Post(a, "/api/v1/editor/regions/{id}/down", h.Down, huma.OperationTags("editor"))
	huma.Post(a, "/api/v1/editor/regions/{id}/move", h.Move, huma.OperationTags("editor"))
	huma.Post(a, "/api/v1/editor/regions/{id}/up", h.Up, huma.OperationTags("editor"))
	huma.Post(a, "/api/v1/editor/regions/{id}/cancel", h.Cancel, huma.OperationTags("editor"))
	huma.Post(a, "/api/v1/editor/regions/{id}/save", h.Save, huma.OperationTags("editor"))
	huma.Delete(a, "/api/v1/editor/regions/{id}", h.Discard, huma.OperationTags("editor"))
	huma.Get(a, "/api/v1/editor/regions/{id}/events", h.Events, huma.OperationTags("editor"))

	huma.Post(a, "/api/v1/editor/keywords/add", h.AddKeyword, huma.OperationTags("editor"))
	huma.Post(a, "/api/v1/editor/keywords/{index}/remove", h.RemoveKeyword, huma.OperationTags("editor"))
}

type RegionIDInput struct {
	ID string `path:"id" doc:"Region editing session ID"`
}

type RegionSignalsInput struct {
	RegionIDInput
	humastar.SignalsInput
}

type markerData struct {
	State    region.State
	Position geo.GeoPoint
}

// Open starts an editing session. With a queryid signal the marker starts
// at that query's location and the form is filled from it; otherwise the
// marker starts at the map center.
func (h *RegionHandler) Open(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}

	start := h.center
	var existing *query.Query
	if id := signals.String(sigQuery); id != "" {
		q, err := h.queries.Query(ctx, id)
		if err != nil {
			if errors.Is(err, backend.ErrNotFound) {
				return nil, huma.Error404NotFound("query not found")
			}
			return nil, huma.Error503ServiceUnavailable("could not load query")
		}
		start = q.Location
		existing = &q
	}

	sess := h.regions.Open(signals.String(sigQuery), start)
	return h.Stream(func(sse humastar.SSE) {
		out := map[string]any{sigRegion: sess.ID}
		if existing != nil {
			for k, v := range formSignals(*existing) {
				out[k] = v
			}
		}
		for k, v := range positionSignals(start) {
			out[k] = v
		}
		sse.Signals(out)
		h.marker(sse, sess.Editor)
	}), nil
}

func (h *RegionHandler) Down(ctx context.Context, input *RegionIDInput) (*huma.StreamResponse, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	sess.Editor.PointerDown()
	return h.Stream(func(sse humastar.SSE) {
		h.marker(sse, sess.Editor)
	}), nil
}

// Move takes the pointer position from the lng/lat signals. Positions are
// normalised onto the map.
func (h *RegionHandler) Move(ctx context.Context, input *RegionSignalsInput) (*huma.StreamResponse, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	lng, okLng := signals.Number(sigLng)
	lat, okLat := signals.Number(sigLat)
	if !okLng || !okLat {
		return nil, huma.Error400BadRequest("lng and lat are required")
	}
	moved := sess.Editor.Move(geo.Normalize(lng, lat))
	return h.Stream(func(sse humastar.SSE) {
		if moved {
			sse.Signals(positionSignals(sess.Editor.Position()))
		}
		h.marker(sse, sess.Editor)
	}), nil
}

func (h *RegionHandler) Up(ctx context.Context, input *RegionIDInput) (*huma.StreamResponse, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	sess.Editor.PointerUp()
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(positionSignals(sess.Editor.Position()))
		h.marker(sse, sess.Editor)
	}), nil
}

func (h *RegionHandler) Cancel(ctx context.Context, input *RegionIDInput) (*huma.StreamResponse, error) {
	p, _, err := h.regions.Cancel(input.ID)
	if err != nil {
		return nil, regionError(err)
	}
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(positionSignals(p))
		h.marker(sse, sess.Editor)
	}), nil
}

// Save stores the form at the marker position and closes the session.
func (h *RegionHandler) Save(ctx context.Context, input *RegionSignalsInput) (*huma.StreamResponse, error) {
	if err := api.RequireSession(ctx); err != nil {
		return nil, err
	}
	if _, err := h.session(input.ID); err != nil {
		return nil, err
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}

	q, formErr := parseForm(signals)
	var saved query.Query
	if formErr == nil {
		saved, err = h.regions.Save(ctx, input.ID, q, h.queries)
	}
	return h.Stream(func(sse humastar.SSE) {
		switch {
		case formErr != nil:
			sse.Error(formErr.Error())
		case errors.Is(err, service.ErrInvalidQuery):
			sse.Error(strings.TrimPrefix(err.Error(), service.ErrInvalidQuery.Error()+": "))
		case err != nil:
			sse.Error("Could not save query")
		default:
			sse.Signals(map[string]any{sigRegion: "", sigQuery: saved.ID})
			sse.Success("Query saved")
		}
	}), nil
}

func (h *RegionHandler) Discard(ctx context.Context, input *RegionIDInput) (*huma.StreamResponse, error) {
	if err := h.regions.Close(input.ID); err != nil {
		return nil, regionError(err)
	}
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(map[string]any{sigRegion: ""})
		sse.RemoveElementByID("region-marker")
	}), nil
}

// Events streams every marker change of one session until the session is
// closed or the client goes away.
func (h *RegionHandler) Events(ctx context.Context, input *RegionIDInput) (*huma.StreamResponse, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		ch := h.bus.Subscribe()
		defer h.bus.Unsubscribe(ch)

		// The form stays open while the user types, so the stream keeps
		// the session alive.
		tick := time.NewTicker(keepAlive)
		defer tick.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				h.regions.Get(sess.ID)
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Resource != service.ResourceRegions || ev.ID != sess.ID {
					continue
				}
				if ev.Action == service.ActionDeleted {
					sse.RemoveElementByID("region-marker")
					return
				}
				if ev.Position != nil {
					sse.Signals(positionSignals(*ev.Position))
				}
				h.marker(sse, sess.Editor)
			}
		}
	}), nil
}

func (h *RegionHandler) AddKeyword(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	tags := query.AddKeyword(signals.Strings(sigKeywords), signals.String(sigKeyword))
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(map[string]any{sigKeywords: tags, sigKeyword: ""})
	}), nil
}

func (h *RegionHandler) RemoveKeyword(ctx context.Context, input *struct {
	Index int `path:"index" minimum:"0" doc:"Keyword position"`
	humastar.SignalsInput
}) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	tags := query.RemoveKeyword(signals.Strings(sigKeywords), input.Index)
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(map[string]any{sigKeywords: tags})
	}), nil
}

func (h *RegionHandler) session(id string) (*service.Session, error) {
	sess, err := h.regions.Get(id)
	if err != nil {
		return nil, regionError(err)
	}
	return sess, nil
}

func (h *RegionHandler) marker(sse humastar.SSE, e *region.Editor) {
	sse.Replace(h.Render("region-marker", markerData{State: e.State(), Position: e.Position()}), "#region-marker")
}

func regionError(err error) error {
	if errors.Is(err, service.ErrNoSession) {
		return huma.Error404NotFound("editing session not found")
	}
	return huma.Error500InternalServerError("region editor", err)
}

func positionSignals(p geo.GeoPoint) map[string]any {
	return map[string]any{sigLng: p.Longitude, sigLat: p.Latitude}
}

func formSignals(q query.Query) map[string]any {
	return map[string]any{
		sigName:      q.Name,
		sigStart:     q.StartDate.UTC().Format(time.DateOnly),
		sigEnd:       q.EndDate.UTC().Format(time.DateOnly),
		sigKeywords:  q.Keywords,
		sigFrequency: q.Frequency,
		sigMaxTweets: q.MaxTweets,
	}
}

// parseForm reads the query form. The location comes from the marker.
func parseForm(s humastar.Signals) (query.Query, error) {
	var errs []error
	start, err := s.Time(sigStart)
	if err != nil {
		errs = append(errs, err)
	}
	end, err := s.Time(sigEnd)
	if err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return query.Query{}, errors.Join(errs...)
	}
	return query.Query{
		Name:      strings.TrimSpace(s.String(sigName)),
		StartDate: start,
		EndDate:   end,
		Keywords:  s.Strings(sigKeywords),
		Frequency: s.Int(sigFrequency),
		MaxTweets: s.Int(sigMaxTweets),
	}, nil
}
