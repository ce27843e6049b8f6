// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"fmt"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

// rmcVariationField is the index of the magnetic variation in RMC fields.
const rmcVariationField = 9

// Fix represents a single combined GPS fix suitable for JSON and MQTT.
type Fix struct {
	Time         string  `json:"time"`          // e.g. "12:34:56"
	Date         string  `json:"date"`          // e.g. "13/06/94"
	Latitude     float64 `json:"lat"`           // decimal degrees
	Longitude    float64 `json:"lon"`           // decimal degrees
	SpeedKnots   float64 `json:"speed_knots"`   // speed over ground
	CourseDeg    float64 `json:"course_deg"`    // course over ground, true
	VariationDeg float64 `json:"variation_deg"` // magnetic variation, east positive
	Validity     string  `json:"validity"`      // "A" (valid) / "V" (void)

	// HaveVariation is false when the receiver left the RMC variation field
	// blank; VariationDeg is 0 then and carries no information.
	HaveVariation bool `json:"have_variation"`

	// True heading from an HDT sentence, when the receiver provides one.
	TrueHeadingDeg  float64 `json:"true_heading_deg,omitempty"`
	HaveTrueHeading bool    `json:"have_true_heading,omitempty"`
}

// Valid reports whether the last RMC sentence carried a valid fix.
func (f Fix) Valid() bool {
	return f.Validity == nmea.ValidRMC
}

// Apply parses one NMEA line into f. It returns true when the line was an
// RMC sentence, which completes a fix worth publishing. Lines that are not
// NMEA sentences are ignored; malformed sentences return an error.
func (f *Fix) Apply(line string) (bool, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return false, nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return false, fmt.Errorf("nmea parse: %w", err)
	}

	switch sentence.DataType() {
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		f.Time = m.Time.String()
		f.Date = m.Date.String()
		f.Latitude = m.Latitude
		f.Longitude = m.Longitude
		f.SpeedKnots = m.Speed
		f.CourseDeg = m.Course
		f.VariationDeg = m.Variation
		f.HaveVariation = len(m.Fields) > rmcVariationField && strings.TrimSpace(m.Fields[rmcVariationField]) != ""
		f.Validity = string(m.Validity)
		return true, nil
	case nmea.TypeHDT:
		m := sentence.(nmea.HDT)
		if m.True {
			f.TrueHeadingDeg = m.Heading
			f.HaveTrueHeading = true
		}
	default:
		// ignore other sentence types (GGA, GSA, ...)
	}
	return false, nil
}
