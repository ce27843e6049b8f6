// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/relabs-tech/compass/internal/heading"
	"github.com/relabs-tech/compass/internal/orientation"
	"github.com/relabs-tech/compass/internal/sensors"
)

// RunMockConsole prints headings from the mock sensor source every 100ms,
// without MQTT or hardware.
func RunMockConsole(ctx context.Context, out io.Writer) error {
	src := sensors.NewMockSource(orientation.NewMockSource())
	defer src.Close()
	tracker := sensors.NewTracker(heading.Estimator{}, 1)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			samples, err := src.Read(ctx)
			if err != nil {
				return err
			}
			if r, ok := tracker.UpdateAll(samples); ok {
				fmt.Fprintln(out, formatReading(r))
			}
		}
	}
}
