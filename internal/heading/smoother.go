// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package heading

import "math"

// Smoother is an exponential moving average over angles in degrees that
// takes the short way around through 0/360.
//
// Alpha is the weight of each new sample; 1 (or anything outside (0, 1))
// disables smoothing. Not safe for concurrent use.
type Smoother struct {
	Alpha float64

	value  float64
	primed bool
}

// NewSmoother returns a Smoother with the given alpha.
func NewSmoother(alpha float64) *Smoother {
	return &Smoother{Alpha: alpha}
}

// Update feeds one heading and returns the smoothed value in [0, 360).
func (s *Smoother) Update(deg float64) float64 {
	deg = Normalize360(deg)
	if !s.primed || s.Alpha <= 0 || s.Alpha >= 1 {
		s.value = deg
		s.primed = true
		return s.value
	}
	s.value = Normalize360(s.value + s.Alpha*shortestDelta(s.value, deg))
	return s.value
}

// Reset forgets the smoothed state; the next Update starts fresh.
func (s *Smoother) Reset() {
	s.value = 0
	s.primed = false
}

// shortestDelta returns to-from wrapped into [-180, 180).
func shortestDelta(from, to float64) float64 {
	return math.Mod(to-from+540, 360) - 180
}
