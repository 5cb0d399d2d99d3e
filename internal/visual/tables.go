package visual

import (
	"errors"
	"fmt"
	"sort"
)

// ZoomCurve is a score->radius ramp that applies at one reference zoom.
type ZoomCurve struct {
	Zoom   float64 `json:"zoom" koanf:"zoom" yaml:"zoom" doc:"Reference zoom level"`
	Radius Ramp    `json:"radius" koanf:"radius" yaml:"radius" doc:"Score to circle radius (px) at this zoom"`
}

// Tables holds every interpolation table used by the encoder. Keys are
// scores for HeatWeight, PointRadius curves and PointColor; zoom levels for
// HeatIntensity, HeatRadius, HeatOpacity and PointOpacity; heatmap density
// (0-1) for HeatColor.
type Tables struct {
	HeatWeight    Ramp        `json:"heatWeight" koanf:"heat_weight" yaml:"heat_weight"`
	HeatIntensity Ramp        `json:"heatIntensity" koanf:"heat_intensity" yaml:"heat_intensity"`
	HeatRadius    Ramp        `json:"heatRadius" koanf:"heat_radius" yaml:"heat_radius"`
	HeatOpacity   Ramp        `json:"heatOpacity" koanf:"heat_opacity" yaml:"heat_opacity"`
	HeatColor     ColorRamp   `json:"heatColor" koanf:"heat_color" yaml:"heat_color"`
	PointRadius   []ZoomCurve `json:"pointRadius" koanf:"point_radius" yaml:"point_radius"`
	PointColor    ColorRamp   `json:"pointColor" koanf:"point_color" yaml:"point_color"`
	PointOpacity  Ramp        `json:"pointOpacity" koanf:"point_opacity" yaml:"point_opacity"`

	// HeatMaxZoom hides the heat layer above this zoom; PointMinZoom hides
	// the circle layer below it.
	HeatMaxZoom  float64 `json:"heatMaxZoom" koanf:"heat_max_zoom" yaml:"heat_max_zoom"`
	PointMinZoom float64 `json:"pointMinZoom" koanf:"point_min_zoom" yaml:"point_min_zoom"`
}

// DefaultTables returns the stock dashboard styling.
func DefaultTables() Tables {
	return Tables{
		HeatWeight:    Ramp{{0, 0}, {6, 1}},
		HeatIntensity: Ramp{{0, 1}, {10, 3}},
		HeatRadius:    Ramp{{0, 2}, {10, 20}},
		HeatOpacity:   Ramp{{7, 1}, {9, 0}},
		HeatColor: ColorRamp{
			{0, MustParseColor("rgba(33,102,172,0)")},
			{0.2, MustParseColor("rgb(103,169,207)")},
			{0.4, MustParseColor("rgb(209,229,240)")},
			{0.6, MustParseColor("rgb(253,219,199)")},
			{0.8, MustParseColor("rgb(239,138,98)")},
			{0.9, MustParseColor("rgb(255,201,101)")},
		},
		PointRadius: []ZoomCurve{
			{Zoom: 7, Radius: Ramp{{1, 1}, {6, 4}}},
			{Zoom: 16, Radius: Ramp{{1, 5}, {6, 50}}},
		},
		PointColor: ColorRamp{
			{1, MustParseColor("rgba(33,102,172,0)")},
			{2, MustParseColor("rgb(103,169,207)")},
			{3, MustParseColor("rgb(209,229,240)")},
			{4, MustParseColor("rgb(253,219,199)")},
			{5, MustParseColor("rgb(239,138,98)")},
			{6, MustParseColor("rgb(178,24,43)")},
		},
		PointOpacity: Ramp{{7, 0}, {8, 1}},
		HeatMaxZoom:  9,
		PointMinZoom: 7,
	}
}

// WithDefaults fills every empty table from DefaultTables, so a
// deployment can override a single table and keep the rest.
func (t Tables) WithDefaults() Tables {
	d := DefaultTables()
	if len(t.HeatWeight) == 0 {
		t.HeatWeight = d.HeatWeight
	}
	if len(t.HeatIntensity) == 0 {
		t.HeatIntensity = d.HeatIntensity
	}
	if len(t.HeatRadius) == 0 {
		t.HeatRadius = d.HeatRadius
	}
	if len(t.HeatOpacity) == 0 {
		t.HeatOpacity = d.HeatOpacity
	}
	if len(t.HeatColor) == 0 {
		t.HeatColor = d.HeatColor
	}
	if len(t.PointRadius) == 0 {
		t.PointRadius = d.PointRadius
	}
	if len(t.PointColor) == 0 {
		t.PointColor = d.PointColor
	}
	if len(t.PointOpacity) == 0 {
		t.PointOpacity = d.PointOpacity
	}
	if t.HeatMaxZoom == 0 && t.PointMinZoom == 0 {
		t.HeatMaxZoom, t.PointMinZoom = d.HeatMaxZoom, d.PointMinZoom
	}
	return t
}

// Validate checks that every table is non-empty and ordered, and that
// point radius never shrinks as score or zoom grows.
func (t Tables) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(t.HeatWeight.validate("heat_weight", true))
	add(t.HeatIntensity.validate("heat_intensity", false))
	add(t.HeatRadius.validate("heat_radius", false))
	add(t.HeatOpacity.validate("heat_opacity", false))
	add(t.HeatColor.validate("heat_color"))
	add(t.PointColor.validate("point_color"))
	add(t.PointOpacity.validate("point_opacity", false))

	if len(t.PointRadius) == 0 {
		add(errors.New("point_radius: no zoom curves"))
	}
	for i, c := range t.PointRadius {
		add(c.Radius.validate(fmt.Sprintf("point_radius[%d]", i), true))
		if !finite(c.Zoom) {
			add(fmt.Errorf("point_radius[%d]: non-finite zoom", i))
		}
		if i > 0 && c.Zoom <= t.PointRadius[i-1].Zoom {
			add(fmt.Errorf("point_radius[%d]: zoom %v not greater than %v", i, c.Zoom, t.PointRadius[i-1].Zoom))
		}
	}
	if len(errs) == 0 {
		for i := 1; i < len(t.PointRadius); i++ {
			add(dominates(t.PointRadius[i-1], t.PointRadius[i], i))
		}
	}

	return errors.Join(errs...)
}

// dominates checks hi >= lo at every key of either ramp. Both are
// piecewise linear with clamped ends, so the breakpoints are sufficient.
func dominates(lo, hi ZoomCurve, i int) error {
	keys := make([]float64, 0, len(lo.Radius)+len(hi.Radius))
	for _, cp := range lo.Radius {
		keys = append(keys, cp.Key)
	}
	for _, cp := range hi.Radius {
		keys = append(keys, cp.Key)
	}
	sort.Float64s(keys)
	for _, k := range keys {
		if hi.Radius.At(k) < lo.Radius.At(k) {
			return fmt.Errorf("point_radius[%d]: radius at score %v smaller than at zoom %v", i, k, lo.Zoom)
		}
	}
	return nil
}
