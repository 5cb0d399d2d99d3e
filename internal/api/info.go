package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

// Version is the API version reported by /health and /api/v1/info.
const Version = "0.3.0"

type InfoHandler struct {
	backend       string
	scoreProperty string
	auth          bool
}

func NewInfoHandler(backendKind, scoreProperty string, auth bool) *InfoHandler {
	return &InfoHandler{backend: backendKind, scoreProperty: scoreProperty, auth: auth}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name          string   `json:"name" doc:"Service name"`
	Version       string   `json:"version" doc:"Service version"`
	Backend       string   `json:"backend" doc:"Collection backend kind" enum:"remote,duckdb"`
	ScoreProperty string   `json:"score_property" doc:"Feature property holding the interaction score"`
	Auth          bool     `json:"auth" doc:"Whether sign-in is enabled"`
	Features      []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:          "plat-tweetmap",
		Version:       Version,
		Backend:       h.backend,
		ScoreProperty: h.scoreProperty,
		Auth:          h.auth,
		Features:      []string{"queries", "tweets", "heatmap", "selection", "region-editor"},
	}}, nil
}
