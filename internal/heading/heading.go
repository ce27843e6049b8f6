// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package heading turns device orientation into the single angle that drives
// the compass face.
//
// The heading returned by this package is the rotation to apply to the face
// so that its North marker points at north: turning the device clockwise by
// some amount turns the face counter-clockwise by the same amount. A device
// pointing east (azimuth 90°) therefore yields a heading of 270°.
package heading

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/relabs-tech/compass/internal/orientation"
)

// Mode selects how azimuth is taken from the orientation angles.
type Mode int

const (
	// ModeTiltCompensated uses the platform azimuth while the device is within
	// ±90° of level, and past that re-derives it from the horizontal
	// projection of the device's forward axis with roll suppressed.
	ModeTiltCompensated Mode = iota
	// ModePlatform always uses the raw platform azimuth, even when it becomes
	// unstable past vertical.
	ModePlatform
)

// degenerateProjection is the norm under which the forward axis is taken to
// be vertical and its horizontal projection has no direction.
const degenerateProjection = 1e-9

func (m Mode) String() string {
	switch m {
	case ModeTiltCompensated:
		return "tilt"
	case ModePlatform:
		return "platform"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "tilt" or "platform" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tilt", "":
		return ModeTiltCompensated, nil
	case "platform":
		return ModePlatform, nil
	default:
		return 0, fmt.Errorf("unknown heading mode %q (want tilt or platform)", s)
	}
}

// Normalize360 maps any finite angle in degrees into [0, 360).
func Normalize360(deg float64) float64 {
	n := math.Mod(deg, 360)
	if n < 0 {
		n += 360
	}
	// A tiny negative input rounds up to exactly 360 above.
	if n >= 360 {
		n -= 360
	}
	if n == 0 {
		return 0 // fold -0
	}
	return n
}

// Estimator computes headings. The zero value is tilt compensated with no
// declination.
type Estimator struct {
	Mode Mode
	// DeclinationDeg is the local magnetic declination, east positive. It is
	// added to the magnetic azimuth to get a true azimuth.
	DeclinationDeg float64
}

// ComputeHeading returns the heading for rotation matrix r using the zero
// Estimator.
func ComputeHeading(r orientation.Mat3) float64 {
	var e Estimator
	return e.ComputeHeading(r)
}

// ComputeHeading decomposes r and returns the heading in [0, 360).
//
// r must come from a non-degenerate gravity/magnetic pair; see
// orientation.RotationFromSamples.
func (e Estimator) ComputeHeading(r orientation.Mat3) float64 {
	return e.FromAngles(orientation.Decompose(r))
}

// FromAngles returns the heading for already decomposed angles.
func (e Estimator) FromAngles(a orientation.Angles) float64 {
	return Normalize360(-(orientation.Deg(e.Azimuth(a)) + e.DeclinationDeg))
}

// Azimuth returns the magnetic azimuth in radians after applying the mode's
// policy for orientations past vertical.
func (e Estimator) Azimuth(a orientation.Angles) float64 {
	if e.Mode == ModePlatform || math.Abs(a.Pitch) <= math.Pi/2 {
		return a.Azimuth
	}

	// Past vertical roll is ill-defined, so leave it out of the composition and
	// look at where the forward axis points once gravity's component is dropped.
	r := orientation.RotZ(-a.Azimuth).Mul(orientation.RotX(-a.Pitch))
	fwd := r.MulVec(orientation.Vec3{Y: 1})
	if math.Hypot(fwd.X, fwd.Y) < degenerateProjection {
		return a.Azimuth
	}
	return math.Atan2(fwd.X, fwd.Y)
}

// Reading is one heading update as published to consumers.
type Reading struct {
	Heading  float64 `json:"heading"`  // face rotation, degrees [0, 360)
	Azimuth  float64 `json:"azimuth"`  // bearing clockwise from north, degrees [0, 360)
	Pitch    float64 `json:"pitch"`    // degrees
	Roll     float64 `json:"roll"`     // degrees
	Cardinal string  `json:"cardinal"` // 16-point label of Azimuth
	Time     string  `json:"time"`     // RFC3339
}

// NewReading builds a Reading from a (possibly smoothed) heading and the
// angles it was computed from.
func NewReading(headingDeg float64, a orientation.Angles, t time.Time) Reading {
	h := Normalize360(headingDeg)
	az := Normalize360(-h)
	_, pitch, roll := a.Degrees()
	return Reading{
		Heading:  h,
		Azimuth:  az,
		Pitch:    pitch,
		Roll:     roll,
		Cardinal: Cardinal(az),
		Time:     t.Format(time.RFC3339),
	}
}

var cardinals = [16]string{
	"N", "NNE", "NE", "ENE",
	"E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW",
	"W", "WNW", "NW", "NNW",
}

// Cardinal returns the 16-point compass label for a bearing in degrees.
func Cardinal(bearingDeg float64) string {
	idx := int(math.Floor(Normalize360(bearingDeg)/22.5+0.5)) % len(cardinals)
	return cardinals[idx]
}
