// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"
)

type mockSource struct {
	start time.Time
	now   func() time.Time
}

// NewMockSource creates a mock orientation source that slowly turns through
// a full circle every 12 seconds while rocking gently in pitch and roll.
func NewMockSource() Source {
	return &mockSource{start: time.Now(), now: time.Now}
}

func (m *mockSource) Next() (Angles, error) {
	elapsed := m.now().Sub(m.start).Seconds()

	return Angles{
		Azimuth: Rad(math.Mod(elapsed*30, 360)),
		Pitch:   Rad(15 * math.Cos(elapsed*0.7)),
		Roll:    Rad(20 * math.Sin(elapsed)),
	}, nil
}
