// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
)

// minSinAngle is the smallest sine of the angle between gravity and the
// magnetic field that still gives a usable east axis (about 3 degrees).
const minSinAngle = 0.05

// Angles is the (azimuth, pitch, roll) decomposition of a rotation matrix,
// in radians.
//
// Azimuth is the rotation about the vertical axis, measured clockwise from
// magnetic north to the device's forward (Y) axis. Pitch is about the lateral
// (X) axis and roll about the longitudinal (Y) axis.
type Angles struct {
	Azimuth float64 `json:"azimuth"`
	Pitch   float64 `json:"pitch"`
	Roll    float64 `json:"roll"`
}

// Degrees returns the three angles converted to degrees, in the order
// azimuth, pitch, roll.
func (a Angles) Degrees() (azimuth, pitch, roll float64) {
	return Deg(a.Azimuth), Deg(a.Pitch), Deg(a.Roll)
}

// Source is anything that can provide orientation angles over time.
type Source interface {
	Next() (Angles, error)
}

// Deg converts radians to degrees.
func Deg(rad float64) float64 { return rad * 180.0 / math.Pi }

// Rad converts degrees to radians.
func Rad(deg float64) float64 { return deg * math.Pi / 180.0 }

// Decompose splits a device-to-world rotation matrix (world axes east, north,
// up) into azimuth, pitch and roll:
//
//	azimuth = atan2(R[0][1], R[1][1])
//	pitch   = asin(-R[2][1])
//	roll    = atan2(-R[2][0], R[2][2])
//
// Pitch is therefore always within [-90°, 90°].
func Decompose(r Mat3) Angles {
	// Clamp so rounding noise on an orthonormal matrix can't push asin to NaN.
	sp := math.Max(-1, math.Min(1, -r[2][1]))
	return Angles{
		Azimuth: math.Atan2(r[0][1], r[1][1]),
		Pitch:   math.Asin(sp),
		Roll:    math.Atan2(-r[2][0], r[2][2]),
	}
}

// RotationFromAngles composes the rotation matrix Rz(-azimuth)·Rx(-pitch)·Ry(roll).
// It is the inverse of Decompose for |pitch| < 90°.
func RotationFromAngles(a Angles) Mat3 {
	return RotZ(-a.Azimuth).Mul(RotX(-a.Pitch)).Mul(RotY(a.Roll))
}

// RotationFromSamples builds the device-to-world rotation matrix from a
// gravity (accelerometer) and a geomagnetic sample, both in device
// coordinates. Units don't matter as long as each vector is consistent.
//
// The rows of the result are the world east, north and up axes expressed in
// device coordinates. ok is false when either vector is zero or the two are
// close to collinear (free-fall, or near a magnetic pole); no matrix can be
// trusted then and callers should keep their previous heading.
func RotationFromSamples(gravity, geomagnetic Vec3) (r Mat3, ok bool) {
	normA := gravity.Norm()
	normE := geomagnetic.Norm()
	if normA == 0 || normE == 0 {
		return Mat3{}, false
	}

	h := geomagnetic.Cross(gravity)
	normH := h.Norm()
	if normH < minSinAngle*normA*normE {
		return Mat3{}, false
	}

	east := h.Mul(1 / normH)
	up := gravity.Mul(1 / normA)
	north := up.Cross(east)

	return Mat3{
		{east.X, east.Y, east.Z},
		{north.X, north.Y, north.Z},
		{up.X, up.Y, up.Z},
	}, true
}

// TiltFromGravity computes pitch and roll from an accelerometer sample only.
// Azimuth is left at 0 since gravity carries no heading information.
//
// The angles follow the same convention as Decompose, so for a device at rest
// TiltFromGravity(g) and Decompose(R) agree on pitch and roll.
func TiltFromGravity(g Vec3) Angles {
	n := g.Norm()
	if n == 0 {
		return Angles{}
	}
	up := g.Mul(1 / n)
	return Angles{
		Pitch: math.Asin(math.Max(-1, math.Min(1, -up.Y))),
		Roll:  math.Atan2(-up.X, up.Z),
	}
}
