package visual

import (
	"math"
	"strings"
	"testing"
)

func TestRampAt(t *testing.T) {
	r := Ramp{{0, 0}, {6, 1}}
	tests := []struct {
		x, want float64
	}{
		{-5, 0},
		{0, 0},
		{3, 0.5},
		{6, 1},
		{600, 1},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := r.At(tt.x); got != tt.want {
			t.Fatalf("At(%v)=%v, want %v", tt.x, got, tt.want)
		}
	}
	if got := (Ramp{}).At(3); got != 0 {
		t.Fatalf("empty ramp At=%v, want 0", got)
	}
}

func TestRampAtManySegments(t *testing.T) {
	r := Ramp{{0, 0}, {1, 10}, {2, 10}, {4, 30}}
	tests := []struct {
		x, want float64
	}{
		{0.5, 5},
		{1, 10},
		{1.5, 10},
		{3, 20},
	}
	for _, tt := range tests {
		if got := r.At(tt.x); got != tt.want {
			t.Fatalf("At(%v)=%v, want %v", tt.x, got, tt.want)
		}
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want RGBA
	}{
		{"rgba(33,102,172,0)", RGBA{33, 102, 172, 0}},
		{"rgb(103, 169, 207)", RGBA{103, 169, 207, 1}},
		{"#ff8000", RGBA{255, 128, 0, 1}},
		{"#00000080", RGBA{0, 0, 0, 128.0 / 255}},
	}
	for _, tt := range tests {
		got, err := ParseColor(tt.in)
		if err != nil {
			t.Fatalf("ParseColor(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseColor(%q)=%+v, want %+v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"red", "rgb(1,2)", "rgba(1,2,3,4)", "rgb(300,0,0)", "#12"} {
		if _, err := ParseColor(bad); err == nil {
			t.Fatalf("ParseColor(%q) succeeded", bad)
		}
	}
}

func TestColorTextRoundTrip(t *testing.T) {
	c := RGBA{239, 138, 98, 0.5}
	b, err := c.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "rgba(239,138,98,0.5)" {
		t.Fatalf("MarshalText=%s", b)
	}
	var back RGBA
	if err := back.UnmarshalText(b); err != nil {
		t.Fatal(err)
	}
	if back != c {
		t.Fatalf("round trip=%+v, want %+v", back, c)
	}
}

func TestColorRampComponentwise(t *testing.T) {
	r := ColorRamp{
		{0, RGBA{0, 0, 0, 0}},
		{10, RGBA{100, 200, 50, 1}},
	}
	got := r.At(5)
	want := RGBA{50, 100, 25, 0.5}
	if got != want {
		t.Fatalf("At(5)=%+v, want %+v", got, want)
	}
	if got := r.At(-1); got != r[0].Color {
		t.Fatalf("below domain=%+v", got)
	}
	if got := r.At(99); got != r[1].Color {
		t.Fatalf("above domain=%+v", got)
	}
}

func TestDefaultTablesValid(t *testing.T) {
	if err := DefaultTables().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Tables)
		substr string
	}{
		{"empty weight", func(t *Tables) { t.HeatWeight = nil }, "heat_weight"},
		{"unordered", func(t *Tables) { t.HeatIntensity = Ramp{{5, 1}, {5, 2}} }, "heat_intensity[1]"},
		{"decreasing radius", func(t *Tables) { t.PointRadius[0].Radius = Ramp{{1, 4}, {6, 1}} }, "decreases"},
		{"zoom order", func(t *Tables) { t.PointRadius[1].Zoom = 3 }, "zoom 3"},
		{"shrinks with zoom", func(t *Tables) { t.PointRadius[1].Radius = Ramp{{1, 0.5}, {6, 50}} }, "smaller"},
		{"nan", func(t *Tables) { t.HeatRadius = Ramp{{0, math.NaN()}} }, "non-finite"},
		{"empty colors", func(t *Tables) { t.PointColor = nil }, "point_color"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tables := DefaultTables()
			tt.mutate(&tables)
			err := tables.Validate()
			if err == nil {
				t.Fatal("Validate succeeded")
			}
			if !strings.Contains(err.Error(), tt.substr) {
				t.Fatalf("err=%q, want it to mention %q", err, tt.substr)
			}
		})
	}
}

func TestWithDefaults(t *testing.T) {
	custom := Tables{HeatWeight: Ramp{{0, 0}, {100, 1}}}.WithDefaults()
	if custom.HeatWeight.At(50) != 0.5 {
		t.Fatalf("custom heat weight lost: %v", custom.HeatWeight)
	}
	if len(custom.PointColor) != len(DefaultTables().PointColor) {
		t.Fatal("point color not defaulted")
	}
	if custom.HeatMaxZoom != 9 || custom.PointMinZoom != 7 {
		t.Fatalf("zoom limits not defaulted: %v %v", custom.HeatMaxZoom, custom.PointMinZoom)
	}
	if err := custom.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestZeroScoreLowestTier(t *testing.T) {
	e := New(DefaultTables())
	if w := e.HeatWeight(0); w != 0 {
		t.Fatalf("HeatWeight(0)=%v, want 0", w)
	}
	if c := e.PointColor(0); c.A != 0 {
		t.Fatalf("PointColor(0)=%v, want transparent", c)
	}
	for _, z := range []float64{0, 7, 12, 16, 22} {
		if r, min := e.PointRadius(0, z), e.PointRadius(1, z); r != min {
			t.Fatalf("PointRadius(0,%v)=%v, want minimum %v", z, r, min)
		}
	}
	if e.HeatWeight(-3) != 0 || e.HeatWeight(math.NaN()) != 0 {
		t.Fatal("negative/NaN score not clamped to lowest tier")
	}
}

func TestClampAboveTopControlPoint(t *testing.T) {
	e := New(DefaultTables())
	top := DefaultTables()
	topColor := top.PointColor[len(top.PointColor)-1].Color
	for _, s := range []float64{6, 7, 100, 1e9, math.Inf(1)} {
		if got := e.PointColor(s); got != topColor {
			t.Fatalf("PointColor(%v)=%v, want %v", s, got, topColor)
		}
		if got := e.HeatWeight(s); got != 1 {
			t.Fatalf("HeatWeight(%v)=%v, want 1", s, got)
		}
	}
}

func TestPointRadiusMonotonic(t *testing.T) {
	e := New(DefaultTables())
	for z := 0.0; z <= 20; z += 0.5 {
		prev := -1.0
		for s := 0.0; s <= 10; s += 0.25 {
			r := e.PointRadius(s, z)
			if r < prev {
				t.Fatalf("radius decreases in score at zoom %v: %v -> %v", z, prev, r)
			}
			prev = r
		}
	}
	for s := 0.0; s <= 10; s += 0.5 {
		prev := -1.0
		for z := 0.0; z <= 20; z += 0.25 {
			r := e.PointRadius(s, z)
			if r < prev {
				t.Fatalf("radius decreases in zoom at score %v: %v -> %v", s, prev, r)
			}
			prev = r
		}
	}
}

func TestPointRadiusBilinear(t *testing.T) {
	e := New(DefaultTables())
	// Midway in score (3.5) and zoom (11.5): low curve 2.5, high curve 27.5.
	if got := e.PointRadius(3.5, 11.5); got != 15 {
		t.Fatalf("PointRadius(3.5, 11.5)=%v, want 15", got)
	}
	if got := e.PointRadius(6, 16); got != 50 {
		t.Fatalf("PointRadius(6, 16)=%v, want 50", got)
	}
	if got := e.PointRadius(6, 3); got != 4 {
		t.Fatalf("PointRadius(6, 3)=%v, want 4 (clamped zoom)", got)
	}
}

func TestHeatIntensityIndependentOfScore(t *testing.T) {
	e := New(DefaultTables())
	a := e.Encode(0, 5)
	b := e.Encode(1000, 5)
	if a.HeatIntensity != b.HeatIntensity || a.HeatIntensity != 2 {
		t.Fatalf("intensity a=%v b=%v, want 2", a.HeatIntensity, b.HeatIntensity)
	}
}

func TestEncodeOrdersHighScoreAboveLow(t *testing.T) {
	e := New(DefaultTables())
	for _, z := range []float64{0, 8, 14, 20} {
		a := e.Encode(0, z)
		b := e.Encode(1000, z)
		if !(b.Radius > a.Radius) {
			t.Fatalf("zoom %v: radius b=%v not > a=%v", z, b.Radius, a.Radius)
		}
		if !(b.HeatWeight > a.HeatWeight) {
			t.Fatalf("zoom %v: heat weight b=%v not > a=%v", z, b.HeatWeight, a.HeatWeight)
		}
	}
}

func TestEncodeDeterministic(t *testing.T) {
	e := New(DefaultTables())
	for _, in := range [][2]float64{{0, 0}, {2.7, 9.3}, {5.999, 15.1}, {1e6, -3}} {
		a := e.Encode(in[0], in[1])
		b := e.Encode(in[0], in[1])
		if math.Float64bits(a.Radius) != math.Float64bits(b.Radius) ||
			math.Float64bits(a.HeatWeight) != math.Float64bits(b.HeatWeight) ||
			math.Float64bits(a.HeatIntensity) != math.Float64bits(b.HeatIntensity) ||
			a.Color != b.Color {
			t.Fatalf("Encode(%v) not bit-identical: %+v vs %+v", in, a, b)
		}
	}
}

func TestEncoderCopiesTables(t *testing.T) {
	tables := DefaultTables()
	e := New(tables)
	tables.HeatWeight[1].Value = 99
	if e.HeatWeight(6) != 1 {
		t.Fatal("encoder shares caller's slices")
	}
}

func TestEncoderConcurrent(t *testing.T) {
	e := New(DefaultTables())
	want := e.Encode(3.3, 10)
	done := make(chan Encoding)
	for i := 0; i < 8; i++ {
		go func() { done <- e.Encode(3.3, 10) }()
	}
	for i := 0; i < 8; i++ {
		if got := <-done; got != want {
			t.Fatalf("concurrent Encode=%+v, want %+v", got, want)
		}
	}
}

func TestLayers(t *testing.T) {
	e := New(DefaultTables())
	layers := e.Layers("tweets", "score")
	if len(layers) != 2 {
		t.Fatalf("len=%d", len(layers))
	}

	heat := layers[0]
	if heat.ID != HeatmapLayerID || heat.Type != "heatmap" || heat.MaxZoom != 9 {
		t.Fatalf("heat layer=%+v", heat)
	}
	weight := heat.Paint["heatmap-weight"].([]any)
	// interpolate, [linear], [get score], 0, 0, 6, 1
	if len(weight) != 7 || weight[3] != 0.0 || weight[6] != 1.0 {
		t.Fatalf("heatmap-weight=%v", weight)
	}
	if get := weight[2].([]any); get[1] != "score" {
		t.Fatalf("weight input=%v", get)
	}

	circle := layers[1]
	if circle.ID != CircleLayerID || circle.MinZoom != 7 || circle.Source != "tweets" {
		t.Fatalf("circle layer=%+v", circle)
	}
	radius := circle.Paint["circle-radius"].([]any)
	// interpolate, [linear], [zoom], 7, [...], 16, [...]
	if len(radius) != 7 || radius[3] != 7.0 || radius[5] != 16.0 {
		t.Fatalf("circle-radius=%v", radius)
	}
	colors := circle.Paint["circle-color"].([]any)
	if colors[4] != "rgba(33,102,172,0)" {
		t.Fatalf("first circle color=%v", colors[4])
	}
}
