// Package visual maps feature scores and zoom levels to rendering
// parameters: heat weight and intensity, point radius and point color.
//
// All parameters come from piecewise-linear control-point tables held in
// [Tables]. An [Encoder] is immutable once built and safe for concurrent
// use; out-of-domain inputs clamp to the table endpoints.
package visual

import (
	"fmt"
	"math"
)

// ControlPoint is one vertex of a piecewise-linear interpolation table.
type ControlPoint struct {
	Key   float64 `json:"key" koanf:"key" yaml:"key" doc:"Input value (score, zoom or density)"`
	Value float64 `json:"value" koanf:"value" yaml:"value" doc:"Output value at key"`
}

// Ramp is a scalar interpolation table ordered by strictly increasing key.
type Ramp []ControlPoint

// At interpolates the ramp at x, clamping to the first and last values.
// NaN inputs yield the first value. An empty ramp yields 0.
func (r Ramp) At(x float64) float64 {
	n := len(r)
	if n == 0 {
		return 0
	}
	if math.IsNaN(x) || x <= r[0].Key {
		return r[0].Value
	}
	if x >= r[n-1].Key {
		return r[n-1].Value
	}
	i := segment(n, func(i int) float64 { return r[i].Key }, x)
	lo, hi := r[i], r[i+1]
	return lerp(lo.Value, hi.Value, (x-lo.Key)/(hi.Key-lo.Key))
}

// validate checks ordering and finiteness. When nonDecreasing is set the
// values must not decrease either.
func (r Ramp) validate(name string, nonDecreasing bool) error {
	if len(r) == 0 {
		return fmt.Errorf("%s: no control points", name)
	}
	for i, cp := range r {
		if !finite(cp.Key) || !finite(cp.Value) {
			return fmt.Errorf("%s[%d]: non-finite control point", name, i)
		}
		if i == 0 {
			continue
		}
		if cp.Key <= r[i-1].Key {
			return fmt.Errorf("%s[%d]: key %v not greater than %v", name, i, cp.Key, r[i-1].Key)
		}
		if nonDecreasing && cp.Value < r[i-1].Value {
			return fmt.Errorf("%s[%d]: value %v decreases", name, i, cp.Value)
		}
	}
	return nil
}

// segment returns i such that key(i) <= x < key(i+1), assuming
// key(0) < x < key(n-1).
func segment(n int, key func(int) float64, x float64) int {
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if key(mid) <= x {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
