// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"fmt"
	"time"

	"github.com/relabs-tech/compass/internal/config"
	"github.com/relabs-tech/compass/internal/imu"
	"github.com/relabs-tech/compass/internal/orientation"
)

// Source delivers the latest gravity and magnetic samples each time it is
// read. Implementations may return just one kind per call.
type Source interface {
	Read(ctx context.Context) ([]imu.Sample, error)
	Close() error
}

// World reference vectors used by the mock source (east, north, up axes).
var (
	// WorldGravity is the accelerometer reading of a device at rest, level, in m/s².
	WorldGravity = orientation.Vec3{Z: 9.81}
	// WorldField is a mid-latitude geomagnetic field in µT, dipping downwards.
	WorldField = orientation.Vec3{Y: 22, Z: -42}
)

type mockSource struct {
	angles orientation.Source
	now    func() time.Time
}

// NewMockSource synthesizes sensor samples for a device following the angles
// produced by src.
func NewMockSource(src orientation.Source) Source {
	return &mockSource{angles: src, now: time.Now}
}

func (m *mockSource) Read(ctx context.Context) ([]imu.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, err := m.angles.Next()
	if err != nil {
		return nil, fmt.Errorf("mock angles: %w", err)
	}
	return SamplesAt(a, m.now()), nil
}

func (m *mockSource) Close() error { return nil }

// SamplesAt returns the gravity and magnetic samples a device held at angles
// a would report.
func SamplesAt(a orientation.Angles, t time.Time) []imu.Sample {
	toDevice := orientation.RotationFromAngles(a).Transpose()
	return []imu.Sample{
		{Kind: imu.KindGravity, Vector: toDevice.MulVec(WorldGravity), Time: t},
		{Kind: imu.KindMagnetic, Vector: toDevice.MulVec(WorldField), Time: t},
	}
}

// Open returns the mock source when cfg.UseMock is set and the hardware
// source otherwise.
func Open(cfg *config.Config) (Source, error) {
	if cfg.UseMock {
		return NewMockSource(orientation.NewMockSource()), nil
	}
	return NewHardwareSource(cfg)
}
