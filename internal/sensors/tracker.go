// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"sync"

	"github.com/relabs-tech/compass/internal/heading"
	"github.com/relabs-tech/compass/internal/imu"
	"github.com/relabs-tech/compass/internal/orientation"
)

// Tracker keeps the latest sample of each kind and recomputes the heading on
// every delivered sample. It is safe for concurrent use, so accelerometer and
// magnetometer callbacks may run on different goroutines.
type Tracker struct {
	mu sync.Mutex

	estimator heading.Estimator
	smoother  *heading.Smoother

	gravity      orientation.Vec3
	magnetic     orientation.Vec3
	haveGravity  bool
	haveMagnetic bool

	latest     heading.Reading
	haveLatest bool
}

// NewTracker returns a Tracker using est. smoothing is the EMA weight given
// to each new heading; 1 disables smoothing.
func NewTracker(est heading.Estimator, smoothing float64) *Tracker {
	return &Tracker{
		estimator: est,
		smoother:  heading.NewSmoother(smoothing),
	}
}

// Update stores s and, once both kinds have been seen, computes a new
// reading. ok is false when no new reading was produced: either a kind is
// still missing or the pair is degenerate. The previous heading (if any) is
// returned in that case; on a degenerate pair its pitch and roll follow the
// accelerometer alone.
func (t *Tracker) Update(s imu.Sample) (r heading.Reading, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch s.Kind {
	case imu.KindGravity:
		t.gravity, t.haveGravity = s.Vector, true
	case imu.KindMagnetic:
		t.magnetic, t.haveMagnetic = s.Vector, true
	default:
		return t.latest, false
	}
	if !t.haveGravity || !t.haveMagnetic {
		return t.latest, false
	}

	rot, valid := orientation.RotationFromSamples(t.gravity, t.magnetic)
	if !valid {
		if t.haveLatest && t.gravity.Norm() > 0 {
			_, t.latest.Pitch, t.latest.Roll = orientation.TiltFromGravity(t.gravity).Degrees()
		}
		return t.latest, false
	}

	angles := orientation.Decompose(rot)
	h := t.smoother.Update(t.estimator.FromAngles(angles))
	t.latest = heading.NewReading(h, angles, s.Time)
	t.haveLatest = true
	return t.latest, true
}

// UpdateAll feeds samples in order and reports the last reading and whether
// any of them produced a new one.
func (t *Tracker) UpdateAll(samples []imu.Sample) (r heading.Reading, ok bool) {
	r, _ = t.Latest()
	for _, s := range samples {
		if next, updated := t.Update(s); updated {
			r, ok = next, true
		}
	}
	return r, ok
}

// Latest returns the most recent reading.
func (t *Tracker) Latest() (heading.Reading, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest, t.haveLatest
}

// SetDeclination changes the declination used for subsequent readings.
func (t *Tracker) SetDeclination(deg float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.estimator.DeclinationDeg = deg
}

// Declination returns the declination currently applied.
func (t *Tracker) Declination() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.estimator.DeclinationDeg
}
