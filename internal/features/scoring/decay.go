package scoring

import (
	"math"
	"time"
)

// Decay shrinks positive components for accounts idle longer than the grace
// period. Negative components are left alone so decay never erases a penalty.
// With a zero rate the components are returned unchanged.
func (p Policy) Decay(c Components, lastActivity, now time.Time) Components {
	if p.InactivityDecayRate == 0 || lastActivity.IsZero() {
		return c
	}
	idle := now.Sub(lastActivity) - p.InactivityGrace
	if idle <= 0 {
		return c
	}
	days := math.Floor(idle.Hours() / 24)
	factor := math.Pow(1-p.InactivityDecayRate, days)

	shrink := func(v float64) float64 {
		if v <= 0 {
			return v
		}
		return v * factor
	}
	return Components{
		Matching:      shrink(c.Matching),
		Contribution:  shrink(c.Contribution),
		Collaboration: shrink(c.Collaboration),
		Community:     shrink(c.Community),
	}
}
