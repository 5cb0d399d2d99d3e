// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-tweetmap/internal/auth"
	"github.com/joeblew999/plat-tweetmap/internal/backend"
	"github.com/joeblew999/plat-tweetmap/internal/geo"
	"github.com/joeblew999/plat-tweetmap/internal/logging"
	"github.com/joeblew999/plat-tweetmap/internal/service"
	"github.com/joeblew999/plat-tweetmap/internal/visual"
)

// MapSettings are the map defaults served to the page.
type MapSettings struct {
	Center        geo.GeoPoint
	Zoom          float64
	Source        string
	ScoreProperty string
}

// Services holds the service dependencies for API handlers.
type Services struct {
	Backend backend.Backend
	Encoder *visual.Encoder
	Auth    *auth.Manager
	Bus     *service.EventBus
	Map     MapSettings
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Query ID" example:"62447e7c2f2f0a5c1c3b9d11"`
}

type LimitInput struct {
	Limit int `query:"limit" minimum:"1" maximum:"100" default:"5" doc:"Number of top tweets"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterRoutes installs the session middleware and every REST route.
func RegisterRoutes(api huma.API, svc *Services) {
	if svc.Auth != nil {
		api.UseMiddleware(SessionMiddleware(svc.Auth))
	}
	huma.AutoRegister(api, NewAPIHandler(svc))
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

// publish sends a change event when a bus is configured.
func (h *APIHandler) publish(resource, action, id string) {
	if h.svc.Bus != nil {
		h.svc.Bus.Publish(service.Event{Resource: resource, Action: action, ID: id})
	}
}

// backendError maps collaborator errors to HTTP errors.
func backendError(err error, what string) error {
	switch {
	case errors.Is(err, backend.ErrNotFound), errors.Is(err, service.ErrNoSession):
		return huma.Error404NotFound(what + " not found")
	case errors.Is(err, service.ErrInvalidQuery):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, backend.ErrUnavailable):
		logging.Warn().Err(err).Str("resource", what).Msg("backend unavailable")
		return huma.Error503ServiceUnavailable("collection API unavailable")
	default:
		logging.Error().Err(err).Str("resource", what).Msg("backend error")
		return huma.Error500InternalServerError("internal error")
	}
}
