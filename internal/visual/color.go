package visual

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RGBA is a color with 0-255 channels and 0-1 alpha.
// Its text form is the CSS rgba() notation, which is also how it
// marshals to JSON and YAML.
type RGBA struct {
	R, G, B float64
	A       float64
}

// ParseColor accepts rgb(r,g,b), rgba(r,g,b,a), #rrggbb and #rrggbbaa.
func ParseColor(s string) (RGBA, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch {
	case strings.HasPrefix(s, "#"):
		return parseHex(s[1:])
	case strings.HasPrefix(s, "rgba(") && strings.HasSuffix(s, ")"):
		return parseChannels(s[5:len(s)-1], 4)
	case strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")"):
		return parseChannels(s[4:len(s)-1], 3)
	}
	return RGBA{}, fmt.Errorf("unsupported color %q", s)
}

// MustParseColor is ParseColor for package-level tables.
func MustParseColor(s string) RGBA {
	c, err := ParseColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

func parseHex(h string) (RGBA, error) {
	if len(h) != 6 && len(h) != 8 {
		return RGBA{}, fmt.Errorf("hex color #%s: want 6 or 8 digits", h)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return RGBA{}, fmt.Errorf("hex color #%s: %w", h, err)
	}
	a := 1.0
	if len(h) == 8 {
		a = float64(v&0xff) / 255
		v >>= 8
	}
	return RGBA{
		R: float64(v >> 16 & 0xff),
		G: float64(v >> 8 & 0xff),
		B: float64(v & 0xff),
		A: a,
	}, nil
}

func parseChannels(body string, want int) (RGBA, error) {
	parts := strings.Split(body, ",")
	if len(parts) != want {
		return RGBA{}, fmt.Errorf("color %q: want %d channels, got %d", body, want, len(parts))
	}
	vals := make([]float64, 4)
	vals[3] = 1
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return RGBA{}, fmt.Errorf("color channel %q: %w", p, err)
		}
		vals[i] = f
	}
	c := RGBA{R: vals[0], G: vals[1], B: vals[2], A: vals[3]}
	if err := c.validate(); err != nil {
		return RGBA{}, err
	}
	return c, nil
}

func (c RGBA) validate() error {
	for _, ch := range []float64{c.R, c.G, c.B} {
		if !finite(ch) || ch < 0 || ch > 255 {
			return fmt.Errorf("color channel %v outside 0-255", ch)
		}
	}
	if !finite(c.A) || c.A < 0 || c.A > 1 {
		return fmt.Errorf("alpha %v outside 0-1", c.A)
	}
	return nil
}

// String renders the color in CSS rgba() form with integer channels.
func (c RGBA) String() string {
	return fmt.Sprintf("rgba(%d,%d,%d,%s)",
		int(math.Round(c.R)), int(math.Round(c.G)), int(math.Round(c.B)),
		strconv.FormatFloat(math.Round(c.A*1000)/1000, 'f', -1, 64))
}

// MarshalText implements encoding.TextMarshaler.
func (c RGBA) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *RGBA) UnmarshalText(b []byte) error {
	parsed, err := ParseColor(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Lerp interpolates each channel independently.
func (c RGBA) Lerp(to RGBA, t float64) RGBA {
	return RGBA{
		R: lerp(c.R, to.R, t),
		G: lerp(c.G, to.G, t),
		B: lerp(c.B, to.B, t),
		A: lerp(c.A, to.A, t),
	}
}

// ColorStop keys a color in a ColorRamp.
type ColorStop struct {
	Key   float64 `json:"key" koanf:"key" yaml:"key" doc:"Input value"`
	Color RGBA    `json:"color" koanf:"color" yaml:"color" doc:"CSS color at key"`
}

// ColorRamp is a color interpolation table ordered by increasing key.
type ColorRamp []ColorStop

// At interpolates componentwise between the surrounding stops and clamps
// outside the table. An empty ramp yields transparent black.
func (r ColorRamp) At(x float64) RGBA {
	n := len(r)
	if n == 0 {
		return RGBA{}
	}
	if math.IsNaN(x) || x <= r[0].Key {
		return r[0].Color
	}
	if x >= r[n-1].Key {
		return r[n-1].Color
	}
	i := segment(n, func(i int) float64 { return r[i].Key }, x)
	lo, hi := r[i], r[i+1]
	return lo.Color.Lerp(hi.Color, (x-lo.Key)/(hi.Key-lo.Key))
}

func (r ColorRamp) validate(name string) error {
	if len(r) == 0 {
		return fmt.Errorf("%s: no color stops", name)
	}
	for i, s := range r {
		if !finite(s.Key) {
			return fmt.Errorf("%s[%d]: non-finite key", name, i)
		}
		if err := s.Color.validate(); err != nil {
			return fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		if i > 0 && s.Key <= r[i-1].Key {
			return fmt.Errorf("%s[%d]: key %v not greater than %v", name, i, s.Key, r[i-1].Key)
		}
	}
	return nil
}
