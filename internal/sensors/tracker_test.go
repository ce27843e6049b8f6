// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/compass/internal/heading"
	"github.com/relabs-tech/compass/internal/imu"
	"github.com/relabs-tech/compass/internal/orientation"
)

var t0 = time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

func facing(azimuthDeg float64) []imu.Sample {
	return SamplesAt(orientation.Angles{Azimuth: orientation.Rad(azimuthDeg)}, t0)
}

func angleDiff(a, b float64) float64 {
	return math.Abs(math.Mod(a-b+540, 360) - 180)
}

func TestTrackerNeedsBothKinds(t *testing.T) {
	tr := NewTracker(heading.Estimator{}, 1)
	samples := facing(90)

	_, ok := tr.Update(samples[0])
	assert.False(t, ok)
	_, ok = tr.Latest()
	assert.False(t, ok)

	r, ok := tr.Update(samples[1])
	require.True(t, ok)
	assert.InDelta(t, 0, angleDiff(270, r.Heading), 1e-6)
	assert.Equal(t, "E", r.Cardinal)
	assert.Equal(t, t0.Format(time.RFC3339), r.Time)
}

func TestTrackerKeepsHeadingOnDegenerateInput(t *testing.T) {
	tr := NewTracker(heading.Estimator{}, 1)
	first, ok := tr.UpdateAll(facing(180))
	require.True(t, ok)
	assert.InDelta(t, 0, angleDiff(180, first.Heading), 1e-6)

	// Field parallel to gravity: no usable east axis.
	r, ok := tr.Update(imu.Sample{Kind: imu.KindMagnetic, Vector: orientation.Vec3{Z: 40}, Time: t0.Add(time.Second)})
	assert.False(t, ok)
	assert.Equal(t, first, r)

	// Free-fall.
	r, ok = tr.Update(imu.Sample{Kind: imu.KindGravity, Time: t0.Add(2 * time.Second)})
	assert.False(t, ok)
	assert.Equal(t, first, r)

	latest, ok := tr.Latest()
	assert.True(t, ok)
	assert.Equal(t, first, latest)
}

func TestTrackerFollowsTiltOnDegenerateInput(t *testing.T) {
	tr := NewTracker(heading.Estimator{}, 1)
	first, ok := tr.UpdateAll(facing(90))
	require.True(t, ok)

	// Field along gravity, then a slight pitch that stays within the
	// collinearity threshold: no new heading, but pitch follows gravity.
	_, ok = tr.Update(imu.Sample{Kind: imu.KindMagnetic, Vector: orientation.Vec3{Z: 40}, Time: t0})
	require.False(t, ok)

	tilt := orientation.Rad(2)
	g := orientation.Vec3{Y: -9.81 * math.Sin(tilt), Z: 9.81 * math.Cos(tilt)}
	r, ok := tr.Update(imu.Sample{Kind: imu.KindGravity, Vector: g, Time: t0.Add(time.Second)})
	assert.False(t, ok)
	assert.Equal(t, first.Heading, r.Heading)
	assert.Equal(t, first.Azimuth, r.Azimuth)
	assert.Equal(t, first.Time, r.Time)
	assert.InDelta(t, 2, r.Pitch, 1e-9)
	assert.InDelta(t, 0, r.Roll, 1e-9)

	latest, _ := tr.Latest()
	assert.Equal(t, r, latest)
}

func TestTrackerIgnoresUnknownKind(t *testing.T) {
	tr := NewTracker(heading.Estimator{}, 1)
	_, ok := tr.Update(imu.Sample{Kind: imu.Kind(9)})
	assert.False(t, ok)
}

func TestTrackerUsesLatestSamplePerKind(t *testing.T) {
	tr := NewTracker(heading.Estimator{}, 1)
	tr.UpdateAll(facing(0))

	// A newer field sample replaces the old one; gravity is unchanged.
	r, ok := tr.Update(facing(90)[1])
	require.True(t, ok)
	assert.InDelta(t, 0, angleDiff(270, r.Heading), 1e-6)
}

func TestTrackerSmoothing(t *testing.T) {
	tr := NewTracker(heading.Estimator{}, 0.5)
	r, ok := tr.UpdateAll(facing(0))
	require.True(t, ok)
	assert.InDelta(t, 0, angleDiff(0, r.Heading), 1e-6)

	// Heading 270 is 90° counter-clockwise of 0; half way is 315.
	r, ok = tr.UpdateAll(facing(90)[1:])
	require.True(t, ok)
	assert.InDelta(t, 0, angleDiff(315, r.Heading), 1e-6)
	assert.InDelta(t, 0, angleDiff(45, r.Azimuth), 1e-6)
}

func TestTrackerDeclination(t *testing.T) {
	tr := NewTracker(heading.Estimator{DeclinationDeg: 5}, 1)
	assert.Equal(t, 5.0, tr.Declination())

	tr.SetDeclination(-10)
	assert.Equal(t, -10.0, tr.Declination())

	r, ok := tr.UpdateAll(facing(0))
	require.True(t, ok)
	assert.InDelta(t, 0, angleDiff(10, r.Heading), 1e-6)
}

func TestTrackerConcurrentUpdates(t *testing.T) {
	tr := NewTracker(heading.Estimator{}, 0.2)
	samples := facing(30)

	var wg sync.WaitGroup
	for _, s := range samples {
		wg.Add(1)
		go func(s imu.Sample) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				tr.Update(s)
				tr.Latest()
			}
		}(s)
	}
	wg.Wait()

	r, ok := tr.Latest()
	require.True(t, ok)
	assert.InDelta(t, 0, angleDiff(330, r.Heading), 1e-6)
}

func TestMockSource(t *testing.T) {
	src := &mockSource{
		angles: fixedAngles{Azimuth: orientation.Rad(120), Pitch: orientation.Rad(20), Roll: orientation.Rad(-35)},
		now:    func() time.Time { return t0 },
	}
	defer src.Close()

	samples, err := src.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, imu.KindGravity, samples[0].Kind)
	assert.Equal(t, imu.KindMagnetic, samples[1].Kind)
	assert.InDelta(t, WorldGravity.Norm(), samples[0].Vector.Norm(), 1e-9)

	tr := NewTracker(heading.Estimator{}, 1)
	r, ok := tr.UpdateAll(samples)
	require.True(t, ok)
	assert.InDelta(t, 0, angleDiff(240, r.Heading), 1e-6)
	assert.InDelta(t, 20, r.Pitch, 1e-6)
	assert.InDelta(t, -35, r.Roll, 1e-6)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRawSamples(t *testing.T) {
	raw := imu.Raw{Ax: 10, Ay: -20, Az: 16384, Mx: 220, My: -15, Mz: -420}
	samples := raw.Samples(t0)
	require.Len(t, samples, 2)
	assert.Equal(t, orientation.Vec3{X: 10, Y: -20, Z: 16384}, samples[0].Vector)
	assert.Equal(t, orientation.Vec3{X: 22, Y: -1.5, Z: -42}, samples[1].Vector)
	assert.Equal(t, "magnetic", samples[1].Kind.String())
}

type fixedAngles orientation.Angles

func (f fixedAngles) Next() (orientation.Angles, error) { return orientation.Angles(f), nil }
