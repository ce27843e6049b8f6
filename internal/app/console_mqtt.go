// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/compass/internal/config"
	"github.com/relabs-tech/compass/internal/gps"
	"github.com/relabs-tech/compass/internal/heading"
)

func formatReading(r heading.Reading) string {
	return fmt.Sprintf(
		"[HDG ]  HEADING=%6.2f  AZIMUTH=%6.2f %-3s  PITCH=%6.2f  ROLL=%6.2f",
		r.Heading, r.Azimuth, r.Cardinal, r.Pitch, r.Roll,
	)
}

func formatFix(f gps.Fix) string {
	s := fmt.Sprintf(
		"[GPS ]  time=%s date=%s lat=%.6f lon=%.6f speed=%.1fkn course=%.1f° var=%.1f° validity=%s",
		f.Time, f.Date, f.Latitude, f.Longitude, f.SpeedKnots, f.CourseDeg, f.VariationDeg, f.Validity,
	)
	if f.HaveTrueHeading {
		s += fmt.Sprintf(" hdt=%.1f°", f.TrueHeadingDeg)
	}
	return s
}

// RunConsoleMQTT prints heading and GPS messages until ctx is cancelled.
func RunConsoleMQTT(ctx context.Context) error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	err = subscribe(client, cfg.TopicHeading, func(_ mqtt.Client, msg mqtt.Message) {
		var r heading.Reading
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			log.Printf("console: heading unmarshal error: %v", err)
			return
		}
		fmt.Println(formatReading(r))
	})
	if err != nil {
		return err
	}
	log.Printf("console: subscribed to %s", cfg.TopicHeading)

	if cfg.TopicGPS != "" {
		err = subscribe(client, cfg.TopicGPS, func(_ mqtt.Client, msg mqtt.Message) {
			var f gps.Fix
			if err := json.Unmarshal(msg.Payload(), &f); err != nil {
				log.Printf("console: gps unmarshal error: %v", err)
				return
			}
			fmt.Println(formatFix(f))
		})
		if err != nil {
			return err
		}
		log.Printf("console: subscribed to %s", cfg.TopicGPS)
	}

	<-ctx.Done()
	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
