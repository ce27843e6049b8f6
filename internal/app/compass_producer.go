// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/compass/internal/config"
	"github.com/relabs-tech/compass/internal/gps"
	"github.com/relabs-tech/compass/internal/heading"
	"github.com/relabs-tech/compass/internal/imu"
	"github.com/relabs-tech/compass/internal/sensors"
)

// Producer reads sensor samples on a fixed interval, feeds them to a Tracker
// and publishes every new heading.
type Producer struct {
	Source       sensors.Source
	Tracker      *sensors.Tracker
	Pub          Publisher
	TopicHeading string
	TopicSamples string // empty disables sample publishing
	Interval     time.Duration
	LogInterval  time.Duration

	lastLog time.Time
}

// samplesPayload is what goes out on the samples topic.
type samplesPayload struct {
	Samples []imu.Sample `json:"samples"`
}

// Step performs one read/compute/publish cycle. A degenerate sample pair is
// not an error: nothing is published and the previous heading stands.
func (p *Producer) Step(ctx context.Context, now time.Time) (heading.Reading, bool, error) {
	samples, err := p.Source.Read(ctx)
	if err != nil {
		return heading.Reading{}, false, fmt.Errorf("sensor read: %w", err)
	}

	if p.TopicSamples != "" {
		if err := publishJSON(p.Pub, p.TopicSamples, samplesPayload{Samples: samples}); err != nil {
			log.Printf("compass: %v", err)
		}
	}

	r, ok := p.Tracker.UpdateAll(samples)
	if !ok {
		return r, false, nil
	}
	if err := publishJSON(p.Pub, p.TopicHeading, r); err != nil {
		return r, true, err
	}

	if p.LogInterval > 0 && now.Sub(p.lastLog) >= p.LogInterval {
		p.lastLog = now
		log.Printf("compass: %s heading=%6.2f azimuth=%6.2f (%s) pitch=%6.2f roll=%6.2f",
			now.Format(time.RFC3339), r.Heading, r.Azimuth, r.Cardinal, r.Pitch, r.Roll)
	}
	return r, true, nil
}

// Run calls Step every Interval until ctx is done. Read and publish errors
// are logged and the loop keeps going.
func (p *Producer) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			if _, _, err := p.Step(ctx, t); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Printf("compass: %v", err)
			}
		}
	}
}

// applyGPSDeclination updates the tracker's declination from a GPS fix
// payload. Void fixes and fixes without a variation field are ignored.
func applyGPSDeclination(tr *sensors.Tracker, payload []byte) (bool, error) {
	var f gps.Fix
	if err := json.Unmarshal(payload, &f); err != nil {
		return false, fmt.Errorf("gps unmarshal: %w", err)
	}
	if !f.Valid() || !f.HaveVariation {
		return false, nil
	}
	tr.SetDeclination(f.VariationDeg)
	return true, nil
}

// RunCompassProducer wires the configured sensor source to MQTT and runs
// until ctx is cancelled.
func RunCompassProducer(ctx context.Context) error {
	log.Println("starting compass heading producer")

	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}

	src, err := sensors.Open(cfg)
	if err != nil {
		return fmt.Errorf("open sensors: %w", err)
	}
	defer src.Close()
	if cfg.UseMock {
		log.Println("using mock sensor source")
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("connected to MQTT broker at %s", cfg.MQTTBroker)

	tracker := sensors.NewTracker(cfg.HeadingEstimator(), cfg.HeadingSmoothing)

	if cfg.DeclinationFromGPS && cfg.TopicGPS != "" {
		err := subscribe(client, cfg.TopicGPS, func(_ mqtt.Client, msg mqtt.Message) {
			prev := tracker.Declination()
			updated, err := applyGPSDeclination(tracker, msg.Payload())
			if err != nil {
				log.Printf("compass: %v", err)
				return
			}
			if updated && prev != tracker.Declination() {
				log.Printf("compass: declination set to %.1f° from GPS", tracker.Declination())
			}
		})
		if err != nil {
			return err
		}
		log.Printf("subscribed to %s for declination", cfg.TopicGPS)
	}

	p := &Producer{
		Source:       src,
		Tracker:      tracker,
		Pub:          client,
		TopicHeading: cfg.TopicHeading,
		TopicSamples: cfg.TopicSamples,
		Interval:     time.Duration(cfg.SampleInterval) * time.Millisecond,
		LogInterval:  time.Duration(cfg.ConsoleLogInterval) * time.Millisecond,
	}
	log.Printf("publishing %s mode headings to %s every %s", cfg.HeadingMode, cfg.TopicHeading, p.Interval)
	return p.Run(ctx)
}
