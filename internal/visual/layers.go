package visual

// LayerStyle is a renderer-agnostic layer descriptor. Paint values are
// either constants or maplibre interpolate expressions, generated from the
// same tables the encoder evaluates.
type LayerStyle struct {
	ID      string         `json:"id" doc:"Layer identifier" example:"tweets-heat"`
	Type    string         `json:"type" enum:"heatmap,circle" doc:"Layer type"`
	Source  string         `json:"source" doc:"Data source identifier" example:"tweets"`
	MinZoom float64        `json:"minzoom,omitempty" doc:"Minimum visible zoom"`
	MaxZoom float64        `json:"maxzoom,omitempty" doc:"Maximum visible zoom"`
	Paint   map[string]any `json:"paint" doc:"Paint properties"`
}

// Layer identifiers used by the dashboard map.
const (
	HeatmapLayerID = "tweets-heat"
	CircleLayerID  = "tweets-point"
)

// HeatmapLayer describes the density layer shown when zoomed out.
func (e *Encoder) HeatmapLayer(source, scoreProp string) LayerStyle {
	return LayerStyle{
		ID:      HeatmapLayerID,
		Type:    "heatmap",
		Source:  source,
		MaxZoom: e.t.HeatMaxZoom,
		Paint: map[string]any{
			"heatmap-weight":    interpolate(get(scoreProp), e.t.HeatWeight),
			"heatmap-intensity": interpolate(zoomExpr(), e.t.HeatIntensity),
			"heatmap-color":     interpolateColor([]any{"heatmap-density"}, e.t.HeatColor),
			"heatmap-radius":    interpolate(zoomExpr(), e.t.HeatRadius),
			"heatmap-opacity":   interpolate(zoomExpr(), e.t.HeatOpacity),
		},
	}
}

// CircleLayer describes the per-feature points shown when zoomed in.
func (e *Encoder) CircleLayer(source, scoreProp string) LayerStyle {
	radius := []any{"interpolate", []any{"linear"}, zoomExpr()}
	for _, c := range e.t.PointRadius {
		radius = append(radius, c.Zoom, interpolate(get(scoreProp), c.Radius))
	}
	return LayerStyle{
		ID:      CircleLayerID,
		Type:    "circle",
		Source:  source,
		MinZoom: e.t.PointMinZoom,
		Paint: map[string]any{
			"circle-radius":       radius,
			"circle-color":        interpolateColor(get(scoreProp), e.t.PointColor),
			"circle-stroke-color": "white",
			"circle-stroke-width": 1,
			"circle-opacity":      interpolate(zoomExpr(), e.t.PointOpacity),
		},
	}
}

// Layers returns the heatmap and circle layers in draw order.
func (e *Encoder) Layers(source, scoreProp string) []LayerStyle {
	return []LayerStyle{
		e.HeatmapLayer(source, scoreProp),
		e.CircleLayer(source, scoreProp),
	}
}

func interpolate(input []any, r Ramp) []any {
	expr := []any{"interpolate", []any{"linear"}, input}
	for _, cp := range r {
		expr = append(expr, cp.Key, cp.Value)
	}
	return expr
}

func interpolateColor(input []any, r ColorRamp) []any {
	expr := []any{"interpolate", []any{"linear"}, input}
	for _, s := range r {
		expr = append(expr, s.Key, s.Color.String())
	}
	return expr
}

func get(prop string) []any {
	return []any{"get", prop}
}

func zoomExpr() []any {
	return []any{"zoom"}
}
