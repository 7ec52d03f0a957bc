package inventory

import "math"

// Adjustment is a composed run of clamped steps x -> clamp(x+d, 0, cap). Any such run
// collapses to x -> min(max(x+Offset, Low), High), so the store can apply it in one
// statement against the live value and concurrent reports never overwrite each other.
type Adjustment struct {
	Offset float64
	Low    float64
	High   float64
}

// Identity leaves any value unchanged.
func Identity() Adjustment {
	return Adjustment{Low: math.Inf(-1), High: math.Inf(1)}
}

// Step appends one clamped step: add delta, then clamp into [0, capacity].
func (a Adjustment) Step(delta, capacity float64) Adjustment {
	return Adjustment{
		Offset: a.Offset + delta,
		Low:    clamp(a.Low+delta, 0, capacity),
		High:   clamp(a.High+delta, 0, capacity),
	}
}

// Apply evaluates the adjustment for a current value x.
func (a Adjustment) Apply(x float64) float64 {
	return math.Min(math.Max(x+a.Offset, a.Low), a.High)
}

// Bounded reports whether both bounds are finite, i.e. at least one step was added.
func (a Adjustment) Bounded() bool {
	return !math.IsInf(a.Low, 0) && !math.IsInf(a.High, 0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
