package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-tweetmap/internal/geo"
	"github.com/joeblew999/plat-tweetmap/internal/selection"
	"github.com/joeblew999/plat-tweetmap/internal/visual"
)

// GeoJSONContentType is the media type of feature collection responses.
const GeoJSONContentType = "application/geo+json"

type EncodingInput struct {
	Score float64 `query:"score" doc:"Feature score; negative values clamp to the lowest tier" example:"3"`
	Zoom  float64 `query:"zoom" minimum:"0" maximum:"24" doc:"Map zoom level" example:"12"`
}

type EncodingBody struct {
	Score         float64 `json:"score" doc:"Score the encoding was computed for"`
	Zoom          float64 `json:"zoom" doc:"Zoom the encoding was computed for"`
	Radius        float64 `json:"radius" doc:"Circle radius in pixels"`
	Color         string  `json:"color" doc:"Circle color in CSS rgba() form" example:"rgba(239,138,98,1)"`
	Opacity       float64 `json:"opacity" doc:"Circle opacity at this zoom"`
	HeatWeight    float64 `json:"heatWeight" doc:"Heatmap weight contribution"`
	HeatIntensity float64 `json:"heatIntensity" doc:"Heatmap intensity at this zoom"`
	HeatRadius    float64 `json:"heatRadius" doc:"Heatmap kernel radius at this zoom"`
	HeatOpacity   float64 `json:"heatOpacity" doc:"Heatmap opacity at this zoom"`
}

type StylesBody struct {
	Source        string              `json:"source" doc:"Feature source identifier"`
	ScoreProperty string              `json:"scoreProperty" doc:"Feature property holding the score"`
	Center        geo.GeoPoint        `json:"center" doc:"Initial map center"`
	Zoom          float64             `json:"zoom" doc:"Initial map zoom"`
	Layers        []visual.LayerStyle `json:"layers" doc:"Heatmap and circle layers, bottom first"`
}

type GeoJSONOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type SelectionInput struct {
	Body struct {
		Hits []*geojson.Feature `json:"hits" doc:"Renderer hit-test features, topmost first"`
	}
}

type SelectionBody struct {
	Selected bool               `json:"selected" doc:"Whether the click selected a feature"`
	Feature  *geo.ScoredFeature `json:"feature" doc:"Selected feature, null when nothing was selected"`
}

// RegisterMap registers the visual encoding, style and feature routes.
func (h *APIHandler) RegisterMap(api huma.API) {
	huma.Get(api, "/api/v1/encoding", h.GetEncoding, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/styles", h.GetStyles, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/features", h.GetFeatures, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/queries/{id}/features", h.GetQueryFeatures, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/selection", h.PostSelection, huma.OperationTags("map"))
}

func (h *APIHandler) GetEncoding(ctx context.Context, input *EncodingInput) (*struct{ Body EncodingBody }, error) {
	e := h.svc.Encoder
	enc := e.Encode(input.Score, input.Zoom)
	return &struct{ Body EncodingBody }{Body: EncodingBody{
		Score:         input.Score,
		Zoom:          input.Zoom,
		Radius:        enc.Radius,
		Color:         enc.Color.String(),
		Opacity:       e.PointOpacity(input.Zoom),
		HeatWeight:    enc.HeatWeight,
		HeatIntensity: enc.HeatIntensity,
		HeatRadius:    e.HeatRadius(input.Zoom),
		HeatOpacity:   e.HeatOpacity(input.Zoom),
	}}, nil
}

func (h *APIHandler) GetStyles(ctx context.Context, input *struct{}) (*struct{ Body StylesBody }, error) {
	m := h.svc.Map
	return &struct{ Body StylesBody }{Body: StylesBody{
		Source:        m.Source,
		ScoreProperty: m.ScoreProperty,
		Center:        m.Center,
		Zoom:          m.Zoom,
		Layers:        h.svc.Encoder.Layers(m.Source, m.ScoreProperty),
	}}, nil
}

func (h *APIHandler) GetFeatures(ctx context.Context, input *struct{}) (*GeoJSONOutput, error) {
	fc, err := h.svc.Backend.ActiveFeatures(ctx)
	if err != nil {
		return nil, backendError(err, "features")
	}
	return h.geojson(fc)
}

func (h *APIHandler) GetQueryFeatures(ctx context.Context, input *IDInput) (*GeoJSONOutput, error) {
	fc, err := h.svc.Backend.QueryFeatures(ctx, input.ID)
	if err != nil {
		return nil, backendError(err, "query")
	}
	return h.geojson(fc)
}

func (h *APIHandler) PostSelection(ctx context.Context, input *SelectionInput) (*struct{ Body SelectionBody }, error) {
	hits := make([]selection.Hit, len(input.Body.Hits))
	copy(hits, input.Body.Hits)
	out := &struct{ Body SelectionBody }{}
	if f, ok := selection.Resolve(hits, h.svc.Map.ScoreProperty); ok {
		out.Body = SelectionBody{Selected: true, Feature: &f}
	}
	return out, nil
}

// geojson encodes fc with the score under the configured property name.
func (h *APIHandler) geojson(fc geo.FeatureCollection) (*GeoJSONOutput, error) {
	gj := fc.ToGeoJSON()
	if prop := h.svc.Map.ScoreProperty; prop != "" && prop != geo.DefaultScoreProperty {
		for _, f := range gj.Features {
			f.Properties[prop] = f.Properties[geo.DefaultScoreProperty]
		}
	}
	data, err := gj.MarshalJSON()
	if err != nil {
		return nil, huma.Error500InternalServerError("encode features", err)
	}
	return &GeoJSONOutput{ContentType: GeoJSONContentType, Body: data}, nil
}
