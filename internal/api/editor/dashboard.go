// Package editor contains Datastar SSE handlers for the dashboard and the
// query region editor.
package editor

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/goccy/go-json"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-tweetmap/internal/api"
	"github.com/joeblew999/plat-tweetmap/internal/backend"
	"github.com/joeblew999/plat-tweetmap/internal/dashboard"
	"github.com/joeblew999/plat-tweetmap/internal/geo"
	"github.com/joeblew999/plat-tweetmap/internal/humastar"
	"github.com/joeblew999/plat-tweetmap/internal/selection"
	"github.com/joeblew999/plat-tweetmap/internal/service"
	"github.com/joeblew999/plat-tweetmap/internal/templates"
)

// FeaturesEvent is the browser event carrying a new feature collection
// for the map source.
const FeaturesEvent = "features-changed"

// DashboardHandler serves the overview page and the single query page.
// Every request names its page with the view id issued at page load, so
// each browser tab has its own view-models.
type DashboardHandler struct {
	humastar.Handler
	views *dashboard.Views
	bus   *service.EventBus
}

func NewDashboardHandler(views *dashboard.Views, bus *service.EventBus, renderer *templates.Renderer) *DashboardHandler {
	return &DashboardHandler{
		Handler: humastar.Handler{Renderer: renderer},
		views:   views,
		bus:     bus,
	}
}

func (h *DashboardHandler) RegisterRoutes(a huma.API) {
	huma.Get(a, "/api/v1/editor/dashboard", h.Dashboard, huma.OperationTags("editor"))
	huma.Post(a, "/api/v1/editor/dashboard/select", h.SelectActive, huma.OperationTags("editor"))
	huma.Post(a, "/api/v1/editor/dashboard/queries/{id}/confirm", h.ConfirmRemove, huma.OperationTags("editor"))
	huma.Post(a, "/api/v1/editor/dashboard/dismiss", h.DismissRemove, huma.OperationTags("editor"))
	huma.Delete(a, "/api/v1/editor/dashboard/queries/{id}", h.RemoveQuery, huma.OperationTags("editor"))
	huma.Get(a, "/api/v1/editor/events", h.Events, huma.OperationTags("editor"))

	huma.Get(a, "/api/v1/editor/queries/{id}", h.QueryPage, huma.OperationTags("editor"))
	huma.Post(a, "/api/v1/editor/queries/{id}/select", h.SelectQuery, huma.OperationTags("editor"))
}

type QueryIDInput struct {
	ID string `path:"id" doc:"Query ID"`
}

// ViewInput names the browser page a request belongs to.
type ViewInput struct {
	View string `query:"view" required:"true" doc:"View id issued with the page" example:"7f1c2a9e-3b4d-4e5f-8a6b-1c2d3e4f5a6b"`
}

type viewQueryInput struct {
	ViewInput
	QueryIDInput
}

type viewSignalsInput struct {
	ViewInput
	humastar.SignalsInput
}

func (h *DashboardHandler) page(id string) (*dashboard.Page, error) {
	p, err := h.views.Page(id)
	if err != nil {
		return nil, huma.Error400BadRequest("view must be the id issued with the page")
	}
	return p, nil
}

func (h *DashboardHandler) Dashboard(ctx context.Context, input *ViewInput) (*huma.StreamResponse, error) {
	p, err := h.page(input.View)
	if err != nil {
		return nil, err
	}
	p.Active.Refresh(ctx)
	return h.Stream(func(sse humastar.SSE) {
		h.renderActive(sse, p.Active.Snapshot())
	}), nil
}

func (h *DashboardHandler) SelectActive(ctx context.Context, input *viewSignalsInput) (*huma.StreamResponse, error) {
	p, err := h.page(input.View)
	if err != nil {
		return nil, err
	}
	hits, err := parseHits(input.RawBody)
	if err != nil {
		return nil, err
	}
	p.Active.Click(hits)
	return h.Stream(func(sse humastar.SSE) {
		sse.Replace(h.popup(p.Active.Snapshot().Selected), "#map-popup")
	}), nil
}

func (h *DashboardHandler) ConfirmRemove(ctx context.Context, input *viewQueryInput) (*huma.StreamResponse, error) {
	p, err := h.page(input.View)
	if err != nil {
		return nil, err
	}
	if !p.Active.Confirm(input.ID) {
		return nil, huma.Error404NotFound("query not listed")
	}
	return h.Stream(func(sse humastar.SSE) {
		sse.Replace(h.Render("confirm-remove", p.Active.Snapshot().Pending), "#confirm-remove")
	}), nil
}

func (h *DashboardHandler) DismissRemove(ctx context.Context, input *ViewInput) (*huma.StreamResponse, error) {
	p, err := h.page(input.View)
	if err != nil {
		return nil, err
	}
	p.Active.Dismiss()
	return h.Stream(func(sse humastar.SSE) {
		sse.Replace(h.Render("confirm-remove", nil), "#confirm-remove")
	}), nil
}

func (h *DashboardHandler) RemoveQuery(ctx context.Context, input *viewQueryInput) (*huma.StreamResponse, error) {
	if err := api.RequireSession(ctx); err != nil {
		return nil, err
	}
	p, err := h.page(input.View)
	if err != nil {
		return nil, err
	}
	err = p.Active.Remove(ctx, input.ID)
	return h.Stream(func(sse humastar.SSE) {
		if err != nil {
			if errors.Is(err, backend.ErrNotFound) {
				sse.Error("Query no longer exists")
			} else {
				sse.Error("Could not remove query")
			}
			return
		}
		h.renderActive(sse, p.Active.Snapshot())
		sse.Success("Query removed")
		h.bus.Publish(service.Event{Resource: service.ResourceQueries, Action: service.ActionDeleted, ID: input.ID})
	}), nil
}

func (h *DashboardHandler) QueryPage(ctx context.Context, input *viewQueryInput) (*huma.StreamResponse, error) {
	p, err := h.page(input.View)
	if err != nil {
		return nil, err
	}
	p.Query.SetID(ctx, input.ID)
	return h.Stream(func(sse humastar.SSE) {
		h.renderQuery(sse, p.Query.Snapshot())
	}), nil
}

func (h *DashboardHandler) SelectQuery(ctx context.Context, input *struct {
	ViewInput
	QueryIDInput
	humastar.SignalsInput
}) (*huma.StreamResponse, error) {
	p, err := h.page(input.View)
	if err != nil {
		return nil, err
	}
	hits, err := parseHits(input.RawBody)
	if err != nil {
		return nil, err
	}
	if p.Query.Snapshot().ID != input.ID {
		return nil, huma.Error409Conflict("query page is showing another query")
	}
	p.Query.Click(hits)
	return h.Stream(func(sse humastar.SSE) {
		sse.Replace(h.popup(p.Query.Snapshot().Selected), "#map-popup")
	}), nil
}

func (h *DashboardHandler) renderActive(sse humastar.SSE, s dashboard.ActiveSnapshot) {
	sse.Replace(h.Render("query-list", s), "#query-list")
	sse.Replace(h.Render("tweet-list", s), "#tweet-list")
	sse.Replace(h.Render("confirm-remove", s.Pending), "#confirm-remove")
	sse.Replace(h.popup(s.Selected), "#map-popup")
	sse.Signals(map[string]any{"loading": !s.Loaded, "querycount": len(s.Queries)})
	sse.DispatchCustomEvent(FeaturesEvent, s.Features.ToGeoJSON())
}

func (h *DashboardHandler) renderQuery(sse humastar.SSE, s dashboard.QuerySnapshot) {
	sse.Replace(h.Render("query-detail", s.Query), "#query-detail")
	sse.Replace(h.Render("tweet-list", s), "#tweet-list")
	sse.Replace(h.popup(s.Selected), "#map-popup")
	sse.Signals(map[string]any{"loading": !s.Loaded, "found": s.Query != nil})
	sse.DispatchCustomEvent(FeaturesEvent, s.Features.ToGeoJSON())
}

func (h *DashboardHandler) popup(f *geo.ScoredFeature) string {
	return h.Render("popup", f)
}

// parseHits reads the renderer hit list from the "hits" signal.
func parseHits(body []byte) ([]selection.Hit, error) {
	var in struct {
		Hits []*geojson.Feature `json:"hits"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, huma.Error400BadRequest("Invalid hits: " + err.Error())
		}
	}
	hits := make([]selection.Hit, 0, len(in.Hits))
	for _, f := range in.Hits {
		if f != nil {
			hits = append(hits, f)
		}
	}
	return hits, nil
}
