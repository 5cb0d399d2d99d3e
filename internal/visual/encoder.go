package visual

import "math"

// Encoding is the set of rendering parameters for one feature.
type Encoding struct {
	Radius        float64 `json:"radius" doc:"Circle radius in pixels"`
	Color         RGBA    `json:"color" doc:"Circle color in CSS rgba() form"`
	HeatWeight    float64 `json:"heatWeight" doc:"Heatmap weight contribution"`
	HeatIntensity float64 `json:"heatIntensity" doc:"Heatmap intensity multiplier at this zoom"`
}

// Encoder evaluates a fixed set of Tables.
type Encoder struct {
	t Tables
}

// New returns an encoder over t. The tables are copied; later changes to
// the caller's slices do not affect the encoder.
func New(t Tables) *Encoder {
	return &Encoder{t: t.clone()}
}

// Tables returns a copy of the encoder's tables.
func (e *Encoder) Tables() Tables {
	return e.t.clone()
}

// HeatWeight maps a score to its heatmap weight.
func (e *Encoder) HeatWeight(score float64) float64 {
	return e.t.HeatWeight.At(clampScore(score))
}

// HeatIntensity maps a zoom level to the heatmap intensity multiplier.
func (e *Encoder) HeatIntensity(zoom float64) float64 {
	return e.t.HeatIntensity.At(zoom)
}

// HeatRadius maps a zoom level to the heatmap kernel radius.
func (e *Encoder) HeatRadius(zoom float64) float64 {
	return e.t.HeatRadius.At(zoom)
}

// HeatOpacity maps a zoom level to the heat layer opacity.
func (e *Encoder) HeatOpacity(zoom float64) float64 {
	return e.t.HeatOpacity.At(zoom)
}

// HeatColor maps a heatmap density (0-1) to a color.
func (e *Encoder) HeatColor(density float64) RGBA {
	return e.t.HeatColor.At(density)
}

// PointRadius evaluates every reference curve at score, then interpolates
// between the results by zoom.
func (e *Encoder) PointRadius(score, zoom float64) float64 {
	score = clampScore(score)
	curves := e.t.PointRadius
	switch len(curves) {
	case 0:
		return 0
	case 1:
		return curves[0].Radius.At(score)
	}
	byZoom := make(Ramp, len(curves))
	for i, c := range curves {
		byZoom[i] = ControlPoint{Key: c.Zoom, Value: c.Radius.At(score)}
	}
	return byZoom.At(zoom)
}

// PointColor maps a score to the circle color.
func (e *Encoder) PointColor(score float64) RGBA {
	return e.t.PointColor.At(clampScore(score))
}

// PointOpacity maps a zoom level to the circle layer opacity.
func (e *Encoder) PointOpacity(zoom float64) float64 {
	return e.t.PointOpacity.At(zoom)
}

// Encode returns all per-feature parameters for score at zoom.
func (e *Encoder) Encode(score, zoom float64) Encoding {
	return Encoding{
		Radius:        e.PointRadius(score, zoom),
		Color:         e.PointColor(score),
		HeatWeight:    e.HeatWeight(score),
		HeatIntensity: e.HeatIntensity(zoom),
	}
}

// clampScore maps negative and NaN scores to zero (lowest tier).
func clampScore(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	return s
}

func (t Tables) clone() Tables {
	c := t
	c.HeatWeight = append(Ramp(nil), t.HeatWeight...)
	c.HeatIntensity = append(Ramp(nil), t.HeatIntensity...)
	c.HeatRadius = append(Ramp(nil), t.HeatRadius...)
	c.HeatOpacity = append(Ramp(nil), t.HeatOpacity...)
	c.HeatColor = append(ColorRamp(nil), t.HeatColor...)
	c.PointColor = append(ColorRamp(nil), t.PointColor...)
	c.PointOpacity = append(Ramp(nil), t.PointOpacity...)
	c.PointRadius = make([]ZoomCurve, len(t.PointRadius))
	for i, zc := range t.PointRadius {
		c.PointRadius[i] = ZoomCurve{Zoom: zc.Zoom, Radius: append(Ramp(nil), zc.Radius...)}
	}
	return c
}
