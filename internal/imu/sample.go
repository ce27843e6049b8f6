// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"fmt"
	"time"

	"github.com/relabs-tech/compass/internal/orientation"
)

// Kind tags a sample with the sensor it came from.
type Kind int

const (
	// KindGravity is an accelerometer reading (gravity plus any linear acceleration).
	KindGravity Kind = iota
	// KindMagnetic is a magnetometer reading.
	KindMagnetic
)

func (k Kind) String() string {
	switch k {
	case KindGravity:
		return "gravity"
	case KindMagnetic:
		return "magnetic"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sample is a single immutable 3-axis reading in device coordinates.
type Sample struct {
	Kind   Kind             `json:"kind"`
	Vector orientation.Vec3 `json:"vector"`
	Time   time.Time        `json:"time"`
}

// Raw is one combined accelerometer + magnetometer read, in sensor counts.
type Raw struct {
	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Mx int16 `json:"mx"` // magnetometer, µT×10
	My int16 `json:"my"`
	Mz int16 `json:"mz"`
}

// Samples splits r into gravity and magnetic samples stamped with t.
func (r Raw) Samples(t time.Time) []Sample {
	return []Sample{
		{
			Kind:   KindGravity,
			Vector: orientation.Vec3{X: float64(r.Ax), Y: float64(r.Ay), Z: float64(r.Az)},
			Time:   t,
		},
		{
			Kind:   KindMagnetic,
			Vector: orientation.Vec3{X: float64(r.Mx) / 10, Y: float64(r.My) / 10, Z: float64(r.Mz) / 10},
			Time:   t,
		},
	}
}
